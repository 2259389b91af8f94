package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/maxlogvn/AiCMR/internal/config"
	"github.com/maxlogvn/AiCMR/internal/db"
	"github.com/maxlogvn/AiCMR/internal/model"
)

// memStore is an in-memory AuthStore. The mutex stands in for the database
// transaction: RotateRefreshToken's check-and-flip runs under one lock
// acquisition, mirroring the row lock the real store takes.
type memStore struct {
	mu      sync.Mutex
	nextID  int64
	users   map[int64]*model.User
	byEmail map[string]int64
	byName  map[string]int64
	tokens  map[string]*model.RefreshToken
}

func newMemStore() *memStore {
	return &memStore{
		users:   make(map[int64]*model.User),
		byEmail: make(map[string]int64),
		byName:  make(map[string]int64),
		tokens:  make(map[string]*model.RefreshToken),
	}
}

func (m *memStore) CreateUser(_ context.Context, email, username, passwordHash string, rank int) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if _, ok := m.byEmail[email]; ok {
		return nil, db.ErrDuplicate
	}
	if _, ok := m.byName[username]; ok {
		return nil, db.ErrDuplicate
	}

	m.nextID++
	now := time.Now()
	user := &model.User{
		ID:           m.nextID,
		Email:        email,
		Username:     username,
		PasswordHash: passwordHash,
		IsActive:     true,
		Rank:         rank,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	m.users[user.ID] = user
	m.byEmail[email] = user.ID
	m.byName[username] = user.ID
	copied := *user
	return &copied, nil
}

func (m *memStore) GetUserByEmail(_ context.Context, email string) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	id, ok := m.byEmail[email]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *m.users[id]
	return &copied, nil
}

func (m *memStore) GetUserByID(_ context.Context, userID int64) (*model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return nil, db.ErrNotFound
	}
	copied := *user
	return &copied, nil
}

func (m *memStore) UpdateUserPassword(_ context.Context, userID int64, passwordHash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	user, ok := m.users[userID]
	if !ok {
		return db.ErrNotFound
	}
	user.PasswordHash = passwordHash
	return nil
}

func (m *memStore) InsertRefreshToken(_ context.Context, token *model.RefreshToken) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tokens[token.TokenHash]; ok {
		return db.ErrDuplicate
	}
	copied := *token
	m.tokens[token.TokenHash] = &copied
	return nil
}

func (m *memStore) RotateRefreshToken(_ context.Context, oldHash string, successor *model.RefreshToken) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	row, ok := m.tokens[oldHash]
	if !ok {
		return 0, db.ErrNotFound
	}
	if row.Revoked || time.Now().After(row.ExpiresAt) {
		return 0, db.ErrTokenInactive
	}

	row.Revoked = true
	successor.UserID = row.UserID
	copied := *successor
	m.tokens[successor.TokenHash] = &copied
	return row.UserID, nil
}

func (m *memStore) RevokeRefreshToken(_ context.Context, userID int64, tokenHash string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	row, ok := m.tokens[tokenHash]
	if !ok || row.UserID != userID || row.Revoked {
		return false, nil
	}
	row.Revoked = true
	return true, nil
}

type memMailer struct {
	mu     sync.Mutex
	tokens map[string]string // email -> last token
}

func newMemMailer() *memMailer {
	return &memMailer{tokens: make(map[string]string)}
}

func (m *memMailer) SendPasswordReset(_ context.Context, email, token string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.tokens[email] = token
	return nil
}

func (m *memMailer) tokenFor(email string) string {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.tokens[email]
}

type memMarker struct {
	mu   sync.Mutex
	used map[string]bool
}

func newMemMarker() *memMarker {
	return &memMarker{used: make(map[string]bool)}
}

func (m *memMarker) MarkUsed(_ context.Context, tokenID string, _ time.Duration) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.used[tokenID] {
		return false, nil
	}
	m.used[tokenID] = true
	return true, nil
}

type authFixture struct {
	svc    *AuthService
	store  *memStore
	mailer *memMailer
}

func newAuthFixture(t *testing.T) *authFixture {
	t.Helper()

	cfg := config.AuthConfig{
		SecretKey:       testSecret,
		AccessTokenTTL:  30 * time.Minute,
		RefreshTokenTTL: 7 * 24 * time.Hour,
		ResetTokenTTL:   15 * time.Minute,
	}
	codec := NewTokenCodec(cfg.SecretKey, cfg.AccessTokenTTL, cfg.RefreshTokenTTL, cfg.ResetTokenTTL)
	store := newMemStore()
	mailer := newMemMailer()
	svc := NewAuthService(store, codec, mailer, newMemMarker(), cfg, discardLogger())

	return &authFixture{svc: svc, store: store, mailer: mailer}
}

func (f *authFixture) register(t *testing.T, email, username, password string) *model.User {
	t.Helper()
	user, err := f.svc.Register(context.Background(), email, username, password)
	require.NoError(t, err)
	return user
}

func TestRegister(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()

	user := f.register(t, "  A@X.com ", "alice", "password123")
	assert.Equal(t, "a@x.com", user.Email, "email is case-normalized and trimmed")
	assert.Equal(t, model.MemberRank, user.Rank)
	assert.True(t, user.IsActive)
	assert.NotEqual(t, "password123", user.PasswordHash, "password is never stored in the clear")

	_, err := f.svc.Register(ctx, "a@x.com", "other", "password123")
	assert.ErrorIs(t, err, ErrDuplicate)

	_, err = f.svc.Register(ctx, "b@x.com", "alice", "password123")
	assert.ErrorIs(t, err, ErrDuplicate, "username uniqueness")

	_, err = f.svc.Register(ctx, "not-an-email", "bob", "password123")
	assert.ErrorIs(t, err, ErrInvalidInput)

	_, err = f.svc.Register(ctx, "c@x.com", "carol", "short")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestRegister_ConcurrentDuplicateYieldsOneConflict(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()

	results := make(chan error, 2)
	for i := 0; i < 2; i++ {
		go func() {
			_, err := f.svc.Register(ctx, "race@x.com", "racer", "password123")
			results <- err
		}()
	}

	var successes, conflicts int
	for i := 0; i < 2; i++ {
		switch err := <-results; {
		case err == nil:
			successes++
		case assert.ErrorIs(t, err, ErrDuplicate):
			conflicts++
		}
	}
	assert.Equal(t, 1, successes)
	assert.Equal(t, 1, conflicts)
}

func TestLogin(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "alice", "password123")

	tokens, err := f.svc.Login(ctx, "a@x.com", "password123")
	require.NoError(t, err)
	assert.NotEmpty(t, tokens.AccessToken)
	assert.NotEmpty(t, tokens.RefreshToken)
	assert.Equal(t, "bearer", tokens.TokenType)

	// Unknown email and wrong password are the same failure.
	_, err = f.svc.Login(ctx, "nobody@x.com", "password123")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "a@x.com", "wrong-password")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
}

func TestLogin_InactiveUser(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	user := f.register(t, "a@x.com", "alice", "password123")

	f.store.mu.Lock()
	f.store.users[user.ID].IsActive = false
	f.store.mu.Unlock()

	_, err := f.svc.Login(context.Background(), "a@x.com", "password123")
	assert.ErrorIs(t, err, ErrInactiveUser)
}

func TestRefresh_RotationIsSingleUse(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "alice", "password123")

	tokens, err := f.svc.Login(ctx, "a@x.com", "password123")
	require.NoError(t, err)

	rotated, err := f.svc.Refresh(ctx, tokens.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, rotated.AccessToken)
	assert.NotEqual(t, tokens.RefreshToken, rotated.RefreshToken)

	// Replaying the original string fails, no matter who presents it.
	_, err = f.svc.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// The successor is live and rotates normally.
	_, err = f.svc.Refresh(ctx, rotated.RefreshToken)
	require.NoError(t, err)
}

func TestRefresh_ConcurrentRedemptionHasOneWinner(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "alice", "password123")

	tokens, err := f.svc.Login(ctx, "a@x.com", "password123")
	require.NoError(t, err)

	const attempts = 8
	results := make(chan error, attempts)
	for i := 0; i < attempts; i++ {
		go func() {
			_, err := f.svc.Refresh(ctx, tokens.RefreshToken)
			results <- err
		}()
	}

	var successes, failures int
	for i := 0; i < attempts; i++ {
		if err := <-results; err == nil {
			successes++
		} else {
			assert.ErrorIs(t, err, ErrInvalidRefreshToken)
			failures++
		}
	}
	assert.Equal(t, 1, successes, "exactly one concurrent redemption may win")
	assert.Equal(t, attempts-1, failures)
}

func TestRefresh_RejectsGarbageAndForeignTokens(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()

	_, err := f.svc.Refresh(ctx, "not-a-token")
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)

	// A structurally valid refresh token with no ledger row is rejected too.
	codec := NewTokenCodec(testSecret, time.Minute, time.Hour, time.Minute)
	forged, err := codec.IssueRefresh(12345)
	require.NoError(t, err)
	_, err = f.svc.Refresh(ctx, forged)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
}

func TestRefresh_InactiveUserIsRejected(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.register(t, "a@x.com", "alice", "password123")

	tokens, err := f.svc.Login(ctx, "a@x.com", "password123")
	require.NoError(t, err)

	f.store.mu.Lock()
	f.store.users[user.ID].IsActive = false
	f.store.mu.Unlock()

	_, err = f.svc.Refresh(ctx, tokens.RefreshToken)
	assert.ErrorIs(t, err, ErrInactiveUser)
}

func TestLogout(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.register(t, "a@x.com", "alice", "password123")

	first, err := f.svc.Login(ctx, "a@x.com", "password123")
	require.NoError(t, err)
	second, err := f.svc.Login(ctx, "a@x.com", "password123")
	require.NoError(t, err)

	require.NoError(t, f.svc.Logout(ctx, user.ID, first.RefreshToken))

	// The revoked token is dead; the other session is untouched.
	_, err = f.svc.Refresh(ctx, first.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidRefreshToken)
	_, err = f.svc.Refresh(ctx, second.RefreshToken)
	assert.NoError(t, err)

	// Logging out twice, or with someone else's token, fails the same way.
	assert.ErrorIs(t, f.svc.Logout(ctx, user.ID, first.RefreshToken), ErrInvalidRefreshToken)
	f.register(t, "b@x.com", "bob", "password123")
	otherTokens, err := f.svc.Login(ctx, "b@x.com", "password123")
	require.NoError(t, err)
	assert.ErrorIs(t, f.svc.Logout(ctx, user.ID, otherTokens.RefreshToken), ErrInvalidRefreshToken)
}

func TestRequestPasswordReset_IsEnumerationSafe(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "alice", "password123")

	// Identical outcome for existing and unknown accounts.
	assert.NoError(t, f.svc.RequestPasswordReset(ctx, "a@x.com"))
	assert.NoError(t, f.svc.RequestPasswordReset(ctx, "ghost@x.com"))
	assert.NoError(t, f.svc.RequestPasswordReset(ctx, "not-an-email"))

	assert.NotEmpty(t, f.mailer.tokenFor("a@x.com"))
	assert.Empty(t, f.mailer.tokenFor("ghost@x.com"))
}

func TestResetPassword_Flow(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "alice", "oldpassword1")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "a@x.com"))
	token := f.mailer.tokenFor("a@x.com")
	require.NotEmpty(t, token)

	require.NoError(t, f.svc.ResetPassword(ctx, token, "newpassword1"))

	_, err := f.svc.Login(ctx, "a@x.com", "oldpassword1")
	assert.ErrorIs(t, err, ErrInvalidCredentials)
	_, err = f.svc.Login(ctx, "a@x.com", "newpassword1")
	assert.NoError(t, err)

	// Redemption is single-use.
	err = f.svc.ResetPassword(ctx, token, "anotherpassword1")
	assert.ErrorIs(t, err, ErrInvalidToken)
}

func TestResetPassword_RejectsWrongTokens(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()
	f.register(t, "a@x.com", "alice", "password123")

	tokens, err := f.svc.Login(ctx, "a@x.com", "password123")
	require.NoError(t, err)

	// An access token has no reset scope.
	err = f.svc.ResetPassword(ctx, tokens.AccessToken, "newpassword1")
	assert.ErrorIs(t, err, ErrInvalidToken)

	err = f.svc.ResetPassword(ctx, "garbage", "newpassword1")
	assert.ErrorIs(t, err, ErrInvalidToken)

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "a@x.com"))
	token := f.mailer.tokenFor("a@x.com")
	err = f.svc.ResetPassword(ctx, token, "short")
	assert.ErrorIs(t, err, ErrInvalidInput)
}

func TestResetPassword_UserGone(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.register(t, "a@x.com", "alice", "password123")

	require.NoError(t, f.svc.RequestPasswordReset(ctx, "a@x.com"))
	token := f.mailer.tokenFor("a@x.com")

	f.store.mu.Lock()
	delete(f.store.users, user.ID)
	delete(f.store.byEmail, "a@x.com")
	f.store.mu.Unlock()

	err := f.svc.ResetPassword(ctx, token, "newpassword1")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestVerifyAccess(t *testing.T) {
	t.Parallel()

	f := newAuthFixture(t)
	ctx := context.Background()
	user := f.register(t, "a@x.com", "alice", "password123")

	tokens, err := f.svc.Login(ctx, "a@x.com", "password123")
	require.NoError(t, err)

	authUser, err := f.svc.VerifyAccess(tokens.AccessToken)
	require.NoError(t, err)
	assert.Equal(t, user.ID, authUser.ID)
	assert.Equal(t, model.MemberRank, authUser.Rank)

	_, err = f.svc.VerifyAccess("garbage")
	assert.ErrorIs(t, err, ErrInvalidToken)
}
