package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/golang-jwt/jwt/v5"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

// GoTrueAuth implements [Authenticator] against a hosted auth server.
type GoTrueAuth struct {
	baseURL    string
	anonKey    string
	jwtSecret  []byte
	httpClient *http.Client
	logger     *log.Logger
	now        func() time.Time
}

// GoTrueOpts configures a [GoTrueAuth].
type GoTrueOpts struct {
	BaseURL    string
	AnonKey    string
	JWTSecret  string // When set, access tokens are verified locally instead of calling /user.
	HTTPClient *http.Client
	Logger     *log.Logger
}

type gotrueSession struct {
	AccessToken  string     `json:"access_token"`
	RefreshToken string     `json:"refresh_token"`
	TokenType    string     `json:"token_type"`
	ExpiresIn    int64      `json:"expires_in"`
	ExpiresAt    int64      `json:"expires_at"`
	User         gotrueUser `json:"user"`
}

type gotrueUser struct {
	ID    string `json:"id"`
	Email string `json:"email"`
}

type gotrueError struct {
	Error       string `json:"error"`
	Description string `json:"error_description"`
	Msg         string `json:"msg"`
	Message     string `json:"message"`
}

func (e gotrueError) String() string {
	for _, s := range []string{e.Description, e.Msg, e.Message, e.Error} {
		if s != "" {
			return s
		}
	}
	return "unknown error"
}

// accessClaims are the claims of an access token.
type accessClaims struct {
	Email string `json:"email"`
	Kind  string `json:"typ,omitempty"`
	jwt.RegisteredClaims
}

// NewGoTrueAuth creates a hosted authenticator.
func NewGoTrueAuth(opts GoTrueOpts) (*GoTrueAuth, error) {
	if opts.BaseURL == "" || opts.AnonKey == "" {
		return nil, fmt.Errorf("%w: backend url and anon_key", shared.ErrMissingCredentials)
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = &http.Client{Timeout: 15 * time.Second}
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	return &GoTrueAuth{
		baseURL:    strings.TrimRight(opts.BaseURL, "/"),
		anonKey:    opts.AnonKey,
		jwtSecret:  []byte(opts.JWTSecret),
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		now:        time.Now,
	}, nil
}

func (a *GoTrueAuth) Name() string { return "hosted" }

// SignIn uses the password grant.
func (a *GoTrueAuth) SignIn(ctx context.Context, email, password string) (*models.Session, error) {
	body := map[string]string{"email": email, "password": password}
	return a.tokenGrant(ctx, "password", body)
}

// SignUp registers an account. When confirmation e-mails are enabled the server returns no session.
func (a *GoTrueAuth) SignUp(ctx context.Context, email, password string) (*models.Session, error) {
	body := map[string]string{"email": email, "password": password}
	var raw json.RawMessage
	if err := a.doRequest(ctx, http.MethodPost, "/auth/v1/signup", nil, "", body, &raw); err != nil {
		return nil, err
	}

	var s gotrueSession
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("failed to decode signup response: %w", err)
	}
	if s.AccessToken == "" {
		a.logger.Info("signup pending confirmation", "email", email)
		return nil, nil
	}
	return a.session(s), nil
}

// SignOut revokes the session's refresh tokens.
func (a *GoTrueAuth) SignOut(ctx context.Context, session *models.Session) error {
	if session == nil || session.AccessToken == "" {
		return nil
	}
	return a.doRequest(ctx, http.MethodPost, "/auth/v1/logout", nil, session.AccessToken, nil, nil)
}

// ResetPassword sends the recovery e-mail. redirectTo is where the e-mailed link lands.
func (a *GoTrueAuth) ResetPassword(ctx context.Context, email, redirectTo string) error {
	q := url.Values{}
	if redirectTo != "" {
		q.Set("redirect_to", redirectTo)
	}
	return a.doRequest(ctx, http.MethodPost, "/auth/v1/recover", q, "", map[string]string{"email": email}, nil)
}

// ExchangeCode completes a PKCE callback.
func (a *GoTrueAuth) ExchangeCode(ctx context.Context, code, verifier string) (*models.Session, error) {
	if code == "" {
		return nil, fmt.Errorf("%w: missing code", shared.ErrAuthFailed)
	}
	return a.tokenGrant(ctx, "pkce", map[string]string{"auth_code": code, "code_verifier": verifier})
}

// Refresh uses the refresh_token grant.
func (a *GoTrueAuth) Refresh(ctx context.Context, refreshToken string) (*models.Session, error) {
	if refreshToken == "" {
		return nil, shared.ErrNoRefreshToken
	}
	s, err := a.tokenGrant(ctx, "refresh_token", map[string]string{"refresh_token": refreshToken})
	if err != nil {
		return nil, fmt.Errorf("%w: %w", shared.ErrRefreshFailed, err)
	}
	return s, nil
}

// Verify validates an access token, locally when a JWT secret is configured.
func (a *GoTrueAuth) Verify(ctx context.Context, accessToken string) (models.Identity, error) {
	if accessToken == "" {
		return models.Identity{}, shared.ErrNotAuthenticated
	}
	if len(a.jwtSecret) > 0 {
		return verifyHS256(accessToken, a.jwtSecret, "", a.now)
	}

	var u gotrueUser
	if err := a.doRequest(ctx, http.MethodGet, "/auth/v1/user", nil, accessToken, nil, &u); err != nil {
		return models.Identity{}, err
	}
	if u.ID == "" {
		return models.Identity{}, shared.ErrNotAuthenticated
	}
	return models.Identity{UserID: u.ID, Email: u.Email}, nil
}

// Profile reads the public profiles table, defaulting the username to the e-mail local part.
func (a *GoTrueAuth) Profile(ctx context.Context, id models.Identity) (models.Profile, error) {
	profile := models.Profile{UserID: id.UserID, Username: models.DefaultUsername(id.Email)}
	if id.Anonymous() {
		return profile, shared.ErrNotAuthenticated
	}

	q := url.Values{}
	q.Set("id", "eq."+id.UserID)
	q.Set("select", "username,avatar_url")
	var rows []models.Profile
	if err := a.doRequest(ctx, http.MethodGet, "/rest/v1/profiles", q, "", nil, &rows); err != nil {
		a.logger.Warn("failed to load profile", "user", id.UserID, "error", err)
		return profile, nil
	}
	if len(rows) > 0 {
		if rows[0].Username != "" {
			profile.Username = rows[0].Username
		}
		profile.AvatarURL = rows[0].AvatarURL
	}
	return profile, nil
}

// DeleteAccount needs the service role key, which clients never hold.
func (a *GoTrueAuth) DeleteAccount(ctx context.Context, session *models.Session) error {
	return fmt.Errorf("%w: hosted accounts are deleted by the project administrator", shared.ErrNotImplemented)
}

func (a *GoTrueAuth) tokenGrant(ctx context.Context, grant string, body any) (*models.Session, error) {
	q := url.Values{}
	q.Set("grant_type", grant)
	var s gotrueSession
	if err := a.doRequest(ctx, http.MethodPost, "/auth/v1/token", q, "", body, &s); err != nil {
		return nil, err
	}
	if s.AccessToken == "" {
		return nil, fmt.Errorf("%w: empty token response", shared.ErrAuthFailed)
	}
	return a.session(s), nil
}

func (a *GoTrueAuth) session(s gotrueSession) *models.Session {
	out := &models.Session{
		AccessToken:  s.AccessToken,
		RefreshToken: s.RefreshToken,
		TokenType:    s.TokenType,
		User:         models.Identity{UserID: s.User.ID, Email: s.User.Email},
	}
	switch {
	case s.ExpiresAt > 0:
		out.ExpiresAt = time.Unix(s.ExpiresAt, 0)
	case s.ExpiresIn > 0:
		out.ExpiresAt = a.now().Add(time.Duration(s.ExpiresIn) * time.Second)
	}
	return out
}

// doRequest is a helper method to make HTTP requests to the auth server.
// bearer defaults to the anon key.
func (a *GoTrueAuth) doRequest(ctx context.Context, method, endpoint string, q url.Values, bearer string, body, result any) error {
	u := a.baseURL + endpoint
	if len(q) > 0 {
		u += "?" + q.Encode()
	}

	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return fmt.Errorf("failed to marshal request body: %w", err)
		}
		reqBody = bytes.NewReader(data)
	}

	req, err := http.NewRequestWithContext(ctx, method, u, reqBody)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	if bearer == "" {
		bearer = a.anonKey
	}
	req.Header.Set("apikey", a.anonKey)
	req.Header.Set("Authorization", "Bearer "+bearer)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := a.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("%w: %v", shared.ErrAPIRequest, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var gerr gotrueError
		_ = json.NewDecoder(resp.Body).Decode(&gerr)
		switch resp.StatusCode {
		case http.StatusBadRequest, http.StatusUnauthorized, http.StatusForbidden, http.StatusUnprocessableEntity:
			return fmt.Errorf("%w: %s", shared.ErrAuthFailed, gerr.String())
		default:
			return fmt.Errorf("%w: auth status %d: %s", shared.ErrAPIRequest, resp.StatusCode, gerr.String())
		}
	}

	if result != nil && resp.StatusCode != http.StatusNoContent {
		if err := json.NewDecoder(resp.Body).Decode(result); err != nil && err != io.EOF {
			return fmt.Errorf("failed to decode response: %w", err)
		}
	}
	return nil
}

// verifyHS256 parses an HS256 token and returns its identity. A non-empty kind must match the typ claim.
func verifyHS256(token string, secret []byte, kind string, now func() time.Time) (models.Identity, error) {
	claims := &accessClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		return secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired(), jwt.WithTimeFunc(now))
	if err != nil {
		return models.Identity{}, fmt.Errorf("%w: %w", shared.ErrNotAuthenticated, err)
	}
	if kind != "" && claims.Kind != kind {
		return models.Identity{}, fmt.Errorf("%w: unexpected token type %q", shared.ErrNotAuthenticated, claims.Kind)
	}
	if claims.Subject == "" {
		return models.Identity{}, fmt.Errorf("%w: token has no subject", shared.ErrNotAuthenticated)
	}
	return models.Identity{UserID: claims.Subject, Email: claims.Email}, nil
}
