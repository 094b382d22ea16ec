package models

import (
	"fmt"
	"net/mail"
	"strings"
	"time"
)

// User is a local account. Hosted deployments keep accounts with the auth provider instead.
type User struct {
	id             string
	email          string
	passwordHash   string
	username       string
	avatarURL      string
	resetHash      string
	resetExpiresAt *time.Time
	createdAt      time.Time
	updatedAt      time.Time
	deletedAt      *time.Time
}

// NewUser creates a user with timestamps set to now. The id is assigned on insert.
func NewUser(email, passwordHash string) *User {
	now := time.Now().UTC()
	return &User{
		email:        strings.ToLower(strings.TrimSpace(email)),
		passwordHash: passwordHash,
		createdAt:    now,
		updatedAt:    now,
	}
}

func (u *User) ID() string { return u.id }
func (u *User) Email() string { return u.email }
func (u *User) PasswordHash() string { return u.passwordHash }
func (u *User) Username() string { return u.username }
func (u *User) AvatarURL() string { return u.avatarURL }
func (u *User) ResetHash() string { return u.resetHash }
func (u *User) ResetExpiresAt() *time.Time { return u.resetExpiresAt }
func (u *User) CreatedAt() time.Time { return u.createdAt }
func (u *User) UpdatedAt() time.Time { return u.updatedAt }
func (u *User) DeletedAt() *time.Time { return u.deletedAt }

func (u *User) SetID(id string) { u.id = id }
func (u *User) SetPasswordHash(h string) { u.passwordHash = h }
func (u *User) SetUsername(name string) { u.username = name }
func (u *User) SetAvatarURL(url string) { u.avatarURL = url }
func (u *User) SetCreatedAt(t time.Time) { u.createdAt = t }
func (u *User) SetUpdatedAt(t time.Time) { u.updatedAt = t }
func (u *User) SetDeletedAt(t *time.Time) { u.deletedAt = t }
func (u *User) SetReset(hash string, exp *time.Time) {
	u.resetHash = hash
	u.resetExpiresAt = exp
}

// Validate checks the e-mail address and password hash.
func (u *User) Validate() error {
	if u.email == "" {
		return fmt.Errorf("email is required")
	}
	if _, err := mail.ParseAddress(u.email); err != nil {
		return fmt.Errorf("invalid email %q", u.email)
	}
	if u.passwordHash == "" {
		return fmt.Errorf("password hash is required")
	}
	return nil
}

// Identity returns the public identity of the account.
func (u *User) Identity() Identity {
	return Identity{UserID: u.id, Email: u.email}
}

// Profile returns the display profile of the account.
func (u *User) Profile() Profile {
	p := Profile{UserID: u.id, Username: u.username, AvatarURL: u.avatarURL}
	if p.Username == "" {
		p.Username = DefaultUsername(u.email)
	}
	return p
}

// Identity is who is signed in. The zero value is the anonymous visitor.
type Identity struct {
	UserID string `json:"id"`
	Email  string `json:"email"`
}

// Anonymous reports whether nobody is signed in.
func (i Identity) Anonymous() bool {
	return i.UserID == ""
}

// Session holds the tokens of a signed in identity.
type Session struct {
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token,omitempty"`
	TokenType    string    `json:"token_type,omitempty"`
	ExpiresAt    time.Time `json:"expires_at"`
	User         Identity  `json:"user"`
}

// Expired reports whether the access token is past its expiry, with a small skew.
func (s *Session) Expired(now time.Time) bool {
	if s == nil || s.AccessToken == "" {
		return true
	}
	if s.ExpiresAt.IsZero() {
		return false
	}
	return now.Add(10 * time.Second).After(s.ExpiresAt)
}

// Profile is the display profile shown in the header.
type Profile struct {
	UserID    string `json:"id"`
	Username  string `json:"username"`
	AvatarURL string `json:"avatar_url,omitempty"`
}

// DefaultUsername derives a display name from the local part of an e-mail address.
func DefaultUsername(email string) string {
	local, _, _ := strings.Cut(email, "@")
	return local
}
