package service

import (
	"fmt"

	"github.com/maxlogvn/AiCMR/internal/model"
)

// RankPolicy is the declarative authorization table: for each resource, the
// set of fields a given rank may modify. Evaluated centrally so the rules
// live in one place instead of if-chains scattered through handlers.
type RankPolicy struct {
	fields map[string]map[int]map[string]bool
}

// DefaultRankPolicy encodes the editorial rules: admins edit anything,
// moderators touch exactly one field per resource (user activity, post
// status), members nothing beyond their own content.
func DefaultRankPolicy() *RankPolicy {
	return &RankPolicy{
		fields: map[string]map[int]map[string]bool{
			"users": {
				model.AdminRank: fieldSet("email", "username", "rank", "is_active"),
			},
			"posts": {
				model.AdminRank:     fieldSet("title", "excerpt", "content", "status"),
				model.ModeratorRank: fieldSet("status"),
			},
		},
	}
}

// AllowedFields returns the modifiable field set for a rank on a resource.
// Ranks between the defined tiers inherit the highest tier at or below them.
func (p *RankPolicy) AllowedFields(resource string, rank int) map[string]bool {
	tiers, ok := p.fields[resource]
	if !ok {
		return nil
	}
	best := -1
	for tier := range tiers {
		if tier <= rank && tier > best {
			best = tier
		}
	}
	if best < 0 {
		return nil
	}
	return tiers[best]
}

// CheckUpdate verifies that every field present in an update is permitted
// for the rank. An empty update is rejected outright.
func (p *RankPolicy) CheckUpdate(resource string, rank int, fields []string) error {
	if len(fields) == 0 {
		return fmt.Errorf("%w: no fields provided for update", ErrInvalidInput)
	}
	allowed := p.AllowedFields(resource, rank)
	for _, f := range fields {
		if !allowed[f] {
			return fmt.Errorf("%w: rank %d may not modify %s.%s", ErrForbidden, rank, resource, f)
		}
	}
	return nil
}

func fieldSet(names ...string) map[string]bool {
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set
}
