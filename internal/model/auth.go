package model

import "time"

// Rank privilege levels. Authorization rules compare against these; the
// mapping from rank to allowed actions lives in service.RankPolicy.
const (
	MemberRank    = 1
	ModeratorRank = 3
	AdminRank     = 5
)

type User struct {
	ID           int64
	Email        string
	Username     string
	PasswordHash string
	IsActive     bool
	Rank         int
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// AuthUser is the identity extracted from a verified access token and
// attached to the request context by the auth middleware.
type AuthUser struct {
	ID   int64
	Rank int
}

type RefreshToken struct {
	ID        string
	UserID    int64
	TokenHash string
	ExpiresAt time.Time
	CreatedAt time.Time
	Revoked   bool
}

type RegisterRequest struct {
	Email    string `json:"email" binding:"required"`
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type LoginRequest struct {
	Email    string `json:"email" binding:"required"`
	Password string `json:"password" binding:"required"`
}

type RefreshRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type LogoutRequest struct {
	RefreshToken string `json:"refresh_token" binding:"required"`
}

type ForgotPasswordRequest struct {
	Email string `json:"email" binding:"required"`
}

type ResetPasswordRequest struct {
	Token       string `json:"token" binding:"required"`
	NewPassword string `json:"new_password" binding:"required"`
}

type TokenResponse struct {
	AccessToken  string `json:"access_token"`
	RefreshToken string `json:"refresh_token"`
	TokenType    string `json:"token_type"`
}

type UserResponse struct {
	ID        int64     `json:"id"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	IsActive  bool      `json:"is_active"`
	Rank      int       `json:"rank"`
	CreatedAt time.Time `json:"created_at"`
}

func NewUserResponse(u *User) UserResponse {
	return UserResponse{
		ID:        u.ID,
		Email:     u.Email,
		Username:  u.Username,
		IsActive:  u.IsActive,
		Rank:      u.Rank,
		CreatedAt: u.CreatedAt,
	}
}

type UserUpdateRequest struct {
	Email    *string `json:"email"`
	Username *string `json:"username"`
	Rank     *int    `json:"rank"`
	IsActive *bool   `json:"is_active"`
}

// Fields returns the set of field names present in the update, consumed by
// the rank policy.
func (r UserUpdateRequest) Fields() []string {
	var fields []string
	if r.Email != nil {
		fields = append(fields, "email")
	}
	if r.Username != nil {
		fields = append(fields, "username")
	}
	if r.Rank != nil {
		fields = append(fields, "rank")
	}
	if r.IsActive != nil {
		fields = append(fields, "is_active")
	}
	return fields
}

type CSRFTokenResponse struct {
	CSRFToken string `json:"csrf_token"`
}

type MessageResponse struct {
	Message string `json:"message"`
}
