package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"golang.org/x/oauth2"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
)

// AuthStateOpts configures an [AuthState].
type AuthStateOpts struct {
	Fs     afero.Fs
	Path   string // Session file; empty keeps the session in memory only.
	Logger *log.Logger
	Clock  func() time.Time
}

// AuthState holds the current session of a client process and implements [Viewer].
//
// It persists the session to disk, refreshes expired access tokens through the [Authenticator]
// and notifies subscribers whenever the signed-in identity changes.
type AuthState struct {
	mu       sync.RWMutex
	auth     Authenticator
	session  *models.Session
	fs       afero.Fs
	path     string
	watchers map[int]func(models.Identity)
	next     int
	logger   *log.Logger
	now      func() time.Time
}

// NewAuthState creates an empty (anonymous) state.
func NewAuthState(auth Authenticator, opts AuthStateOpts) *AuthState {
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = log.New(io.Discard)
	}
	if opts.Clock == nil {
		opts.Clock = time.Now
	}
	return &AuthState{
		auth:     auth,
		fs:       opts.Fs,
		path:     opts.Path,
		watchers: make(map[int]func(models.Identity)),
		logger:   opts.Logger,
		now:      opts.Clock,
	}
}

// Load restores the persisted session, if any. A missing file leaves the state anonymous.
func (s *AuthState) Load() error {
	if s.path == "" {
		return nil
	}
	data, err := afero.ReadFile(s.fs, s.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to read session: %w", err)
	}

	var session models.Session
	if err := json.Unmarshal(data, &session); err != nil {
		s.logger.Warn("discarding unreadable session file", "path", s.path, "error", err)
		return nil
	}

	s.mu.Lock()
	s.session = &session
	s.mu.Unlock()
	return nil
}

// CurrentUserID returns the signed-in user id, or "" when anonymous.
func (s *AuthState) CurrentUserID() string {
	return s.Identity().UserID
}

// Email returns the signed-in e-mail address.
func (s *AuthState) Email() string {
	return s.Identity().Email
}

// Identity returns who is signed in.
func (s *AuthState) Identity() models.Identity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return models.Identity{}
	}
	return s.session.User
}

// Session returns a copy of the current session or nil.
func (s *AuthState) Session() *models.Session {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.session == nil {
		return nil
	}
	c := *s.session
	return &c
}

// OnChange registers cb to run after the identity changes. The returned func unregisters it.
func (s *AuthState) OnChange(cb func(models.Identity)) func() {
	s.mu.Lock()
	id := s.next
	s.next++
	s.watchers[id] = cb
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.watchers, id)
			s.mu.Unlock()
		})
	}
}

// Set replaces the session, persists it and notifies subscribers if the identity changed.
func (s *AuthState) Set(session *models.Session) error {
	s.mu.Lock()
	prev := models.Identity{}
	if s.session != nil {
		prev = s.session.User
	}
	if session != nil {
		c := *session
		session = &c
	}
	s.session = session
	s.mu.Unlock()

	err := s.persist(session)

	next := models.Identity{}
	if session != nil {
		next = session.User
	}
	if next != prev {
		s.notify(next)
	}
	return err
}

// Clear signs out locally.
func (s *AuthState) Clear() error {
	return s.Set(nil)
}

// SignIn authenticates and stores the resulting session.
func (s *AuthState) SignIn(ctx context.Context, email, password string) (models.Identity, error) {
	session, err := s.auth.SignIn(ctx, email, password)
	if err != nil {
		return models.Identity{}, err
	}
	return session.User, s.Set(session)
}

// SignOut revokes the session with the provider and clears it locally even when revocation fails.
func (s *AuthState) SignOut(ctx context.Context) error {
	session := s.Session()
	var err error
	if session != nil {
		err = s.auth.SignOut(ctx, session)
		if err != nil {
			s.logger.Warn("failed to revoke session", "error", err)
		}
	}
	return errors.Join(err, s.Clear())
}

// Token implements [oauth2.TokenSource], refreshing an expired access token first.
func (s *AuthState) Token() (*oauth2.Token, error) {
	session := s.Session()
	if session == nil {
		return nil, shared.ErrNotAuthenticated
	}

	if session.Expired(s.now()) {
		refreshed, err := s.auth.Refresh(context.Background(), session.RefreshToken)
		if err != nil {
			s.logger.Error("failed to refresh session", "error", err)
			return nil, fmt.Errorf("%w: %w", shared.ErrTokenExpired, err)
		}
		if err := s.Set(refreshed); err != nil {
			s.logger.Warn("failed to persist refreshed session", "error", err)
		}
		session = refreshed
	}

	return &oauth2.Token{
		AccessToken:  session.AccessToken,
		TokenType:    "Bearer",
		RefreshToken: session.RefreshToken,
		Expiry:       session.ExpiresAt,
	}, nil
}

// Client returns an HTTP client that sends the current access token.
func (s *AuthState) Client(ctx context.Context) *http.Client {
	return oauth2.NewClient(ctx, s)
}

func (s *AuthState) persist(session *models.Session) error {
	if s.path == "" {
		return nil
	}
	if session == nil {
		if err := s.fs.Remove(s.path); err != nil && !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("failed to remove session: %w", err)
		}
		return nil
	}

	data, err := json.MarshalIndent(session, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode session: %w", err)
	}
	if err := s.fs.MkdirAll(filepath.Dir(s.path), 0700); err != nil {
		return fmt.Errorf("failed to create session directory: %w", err)
	}
	if err := afero.WriteFile(s.fs, s.path, data, 0600); err != nil {
		return fmt.Errorf("failed to write session: %w", err)
	}
	return nil
}

func (s *AuthState) notify(id models.Identity) {
	s.mu.RLock()
	cbs := make([]func(models.Identity), 0, len(s.watchers))
	for _, cb := range s.watchers {
		cbs = append(cbs, cb)
	}
	s.mu.RUnlock()

	for _, cb := range cbs {
		cb(id)
	}
}
