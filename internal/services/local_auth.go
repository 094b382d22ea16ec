package services

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/sethvargo/go-password/password"
	"golang.org/x/crypto/bcrypt"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

const (
	tokenAccess  = "access"
	tokenRefresh = "refresh"

	minPasswordLength = 6
	refreshTTL        = 30 * 24 * time.Hour
	localIssuer       = "vibewatch"
)

// UserStore persists local accounts.
type UserStore interface {
	Create(ctx context.Context, user *models.User) error
	Get(ctx context.Context, id string) (*models.User, error)
	GetByEmail(ctx context.Context, email string) (*models.User, error)
	Update(ctx context.Context, user *models.User) error
	Delete(ctx context.Context, id string) error
}

// ResetNotifier delivers a password reset code. Local deployments have no mailer, so the default logs it.
type ResetNotifier func(ctx context.Context, email, code string) error

// LocalAuthOpts configures a [LocalAuth].
type LocalAuthOpts struct {
	Secret   string
	TokenTTL time.Duration
	ResetTTL time.Duration
	Notify   ResetNotifier
	Logger   *log.Logger
	Clock    func() time.Time
}

// LocalAuth implements [Authenticator] and [ResetConfirmer] with accounts in the local database.
//
// Passwords and reset codes are bcrypt hashed; sessions are HS256 tokens signed with the configured secret.
type LocalAuth struct {
	users    UserStore
	secret   []byte
	tokenTTL time.Duration
	resetTTL time.Duration
	notify   ResetNotifier
	logger   *log.Logger
	now      func() time.Time
}

// NewLocalAuth creates a local authenticator.
func NewLocalAuth(users UserStore, opts LocalAuthOpts) (*LocalAuth, error) {
	if opts.Secret == "" {
		return nil, fmt.Errorf("%w: auth.jwt_secret is required", shared.ErrInvalidConfig)
	}
	if opts.TokenTTL <= 0 {
		opts.TokenTTL = time.Hour
	}
	if opts.ResetTTL <= 0 {
		opts.ResetTTL = 30 * time.Minute
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	a := &LocalAuth{
		users:    users,
		secret:   []byte(opts.Secret),
		tokenTTL: opts.TokenTTL,
		resetTTL: opts.ResetTTL,
		notify:   opts.Notify,
		logger:   opts.Logger,
		now:      opts.Clock,
	}
	if a.notify == nil {
		a.notify = func(_ context.Context, email, code string) error {
			a.logger.Info("password reset code issued", "email", email, "code", code)
			return nil
		}
	}
	return a, nil
}

func (a *LocalAuth) Name() string { return "local" }

// SignUp creates the account and signs it in.
func (a *LocalAuth) SignUp(ctx context.Context, email, pw string) (*models.Session, error) {
	if len(pw) < minPasswordLength {
		return nil, fmt.Errorf("%w: password must be at least %d characters", shared.ErrInvalidInput, minPasswordLength)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(pw), bcrypt.DefaultCost)
	if err != nil {
		return nil, fmt.Errorf("failed to hash password: %w", err)
	}

	user := models.NewUser(email, string(hash))
	if err := a.users.Create(ctx, user); err != nil {
		return nil, err
	}
	a.logger.Info("account created", "user", user.ID())
	return a.issue(user.Identity())
}

// SignIn checks the password against the stored hash.
func (a *LocalAuth) SignIn(ctx context.Context, email, pw string) (*models.Session, error) {
	user, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, shared.ErrNotFound) {
		return nil, shared.ErrInvalidCredentials
	}
	if err != nil {
		return nil, err
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.PasswordHash()), []byte(pw)); err != nil {
		return nil, shared.ErrInvalidCredentials
	}
	return a.issue(user.Identity())
}

// SignOut is a no-op; local tokens are stateless and expire on their own.
func (a *LocalAuth) SignOut(ctx context.Context, session *models.Session) error {
	return nil
}

// ResetPassword issues a one-time code for email. Unknown addresses succeed silently.
func (a *LocalAuth) ResetPassword(ctx context.Context, email, _ string) error {
	user, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, shared.ErrNotFound) {
		return nil
	}
	if err != nil {
		return err
	}

	code, err := password.Generate(10, 4, 0, true, true)
	if err != nil {
		return fmt.Errorf("failed to generate reset code: %w", err)
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(code), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash reset code: %w", err)
	}

	exp := a.now().Add(a.resetTTL)
	user.SetReset(string(hash), &exp)
	if err := a.users.Update(ctx, user); err != nil {
		return err
	}
	return a.notify(ctx, user.Email(), code)
}

// ConfirmReset sets a new password when code matches an unexpired reset.
func (a *LocalAuth) ConfirmReset(ctx context.Context, email, code, newPassword string) error {
	if len(newPassword) < minPasswordLength {
		return fmt.Errorf("%w: password must be at least %d characters", shared.ErrInvalidInput, minPasswordLength)
	}
	user, err := a.users.GetByEmail(ctx, email)
	if errors.Is(err, shared.ErrNotFound) {
		return shared.ErrInvalidCredentials
	}
	if err != nil {
		return err
	}

	exp := user.ResetExpiresAt()
	if user.ResetHash() == "" || exp == nil || a.now().After(*exp) {
		return fmt.Errorf("%w: reset code expired", shared.ErrTokenExpired)
	}
	if err := bcrypt.CompareHashAndPassword([]byte(user.ResetHash()), []byte(strings.TrimSpace(code))); err != nil {
		return shared.ErrInvalidCredentials
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
	if err != nil {
		return fmt.Errorf("failed to hash password: %w", err)
	}
	user.SetPasswordHash(string(hash))
	user.SetReset("", nil)
	return a.users.Update(ctx, user)
}

// ExchangeCode has no local counterpart; there is no third-party sign in.
func (a *LocalAuth) ExchangeCode(ctx context.Context, code, verifier string) (*models.Session, error) {
	return nil, fmt.Errorf("%w: code exchange needs the hosted backend", shared.ErrNotImplemented)
}

// Refresh issues a new session from a refresh token of a live account.
func (a *LocalAuth) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}
	id, err := verifyHS256(refreshToken, a.secret, tokenRefresh, a.now)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	user, err := a.users.Get(ctx, id.UserID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	return a.issue(user.Identity())
}

// Verify validates an access token and checks the account still exists.
func (a *LocalAuth) Verify(ctx context.Context, accessToken string) (models.Identity, error) {
	id, err := verifyHS256(accessToken, a.secret, tokenAccess, a.now)
	if err != nil {
		return models.Identity{}, err
	}
	if _, err := a.users.Get(ctx, id.UserID); err != nil {
		return models.Identity{}, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
	}
	return id, nil
}

// Profile returns the stored profile of the account.
func (a *LocalAuth) Profile(ctx context.Context, id models.Identity) (models.Profile, error) {
	if id.Anonymous() {
		return models.Profile{}, shared.ErrNotAuthenticated
	}
	user, err := a.users.Get(ctx, id.UserID)
	if err != nil {
		return models.Profile{UserID: id.UserID, Username: models.DefaultUsername(id.Email)}, err
	}
	return user.Profile(), nil
}

// DeleteAccount soft-deletes the signed-in account.
func (a *LocalAuth) DeleteAccount(ctx context.Context, session *models.Session) error {
	if session == nil {
		return shared.ErrNotAuthenticated
	}
	id, err := a.Verify(ctx, session.AccessToken)
	if err != nil {
		return err
	}
	if err := a.users.Delete(ctx, id.UserID); err != nil {
		return err
	}
	a.logger.Info("account deleted", "user", id.UserID)
	return nil
}

func (a *LocalAuth) issue(id models.Identity) (*models.Session, error) {
	now := a.now()
	access, err := a.sign(id, tokenAccess, now, a.tokenTTL)
	if err != nil {
		return nil, err
	}
	refresh, err := a.sign(id, tokenRefresh, now, refreshTTL)
	if err != nil {
		return nil, err
	}
	return &models.Session{
		AccessToken:  access,
		RefreshToken: refresh,
		TokenType:    "bearer",
		ExpiresAt:    now.Add(a.tokenTTL),
		User:         id,
	}, nil
}

func (a *LocalAuth) sign(id models.Identity, kind string, now time.Time, ttl time.Duration) (string, error) {
	claims := accessClaims{
		Email: id.Email,
		Kind:  kind,
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			Issuer:    localIssuer,
			Subject:   id.UserID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(a.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return token, nil
}
