package server

import (
	"context"
	"errors"
	"net"
	"net/http"
	"time"

	"github.com/charmbracelet/log"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/repositories"
	"github.com/desertthunder/vibewatch/internal/services"
	"github.com/desertthunder/vibewatch/internal/shared"
	"github.com/desertthunder/vibewatch/internal/tasks"
)

// Middleware wraps an http.Handler and returns a new http.Handler with additional behavior.
type Middleware func(http.Handler) http.Handler

// Handler is an [http.Handler] that knows the route patterns it serves.
type Handler interface {
	http.Handler      // ServeHTTP handles the HTTP request and writes the response
	Routes() []string // Routes returns the method patterns this handler serves
}

// Router defines the interface for HTTP routing and middleware management.
type Router interface {
	Use(middleware ...Middleware)                     // Use adds middleware to the router's middleware stack
	Handle(method, path string, handler http.Handler) // Handle registers a handler for the specified method and path
	Handler(handler Handler)                          // Handler registers a custom Handler implementation
	ServeHTTP(w http.ResponseWriter, r *http.Request) // ServeHTTP implements http.Handler for the entire router
}

// Options wires a [Server] to its collaborators.
type Options struct {
	Lists   *repositories.ListRepository
	Catalog services.Catalog
	Auth    services.Authenticator
	Guard   *tasks.ItemGuard

	// OnSession receives sessions completed through the auth callback.
	OnSession func(*models.Session) error

	// RedirectTo is sent with password reset requests.
	RedirectTo string
	Logger     *log.Logger
}

// Server is the JSON API over the list repository and the catalog.
type Server struct {
	lists      *repositories.ListRepository
	catalog    services.Catalog
	auth       services.Authenticator
	guard      *tasks.ItemGuard
	reconciler *tasks.Reconciler
	ratings    *tasks.Ratings
	redirectTo string
	onSession  func(*models.Session) error
	logger     *log.Logger
	router     *BasicRouter
}

// New creates a server and registers its routes.
func New(opts Options) *Server {
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Guard == nil {
		opts.Guard = tasks.NewItemGuard()
	}
	logger := shared.WithLogger(opts.Logger, "component", "server")

	s := &Server{
		lists:      opts.Lists,
		catalog:    opts.Catalog,
		auth:       opts.Auth,
		guard:      opts.Guard,
		reconciler: tasks.NewReconciler(opts.Lists, opts.Logger),
		ratings:    tasks.NewRatings(opts.Lists, opts.Guard, opts.Logger),
		redirectTo: opts.RedirectTo,
		onSession:  opts.OnSession,
		logger:     logger,
		router:     NewBasicRouter(),
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(RequestID, Logging(s.logger), Recover(s.logger), Authenticate(s.auth, s.logger))

	r.HandleFunc(http.MethodGet, "/api/health", s.handleHealth)

	r.HandleFunc(http.MethodPost, "/api/auth/signin", s.handleSignIn)
	r.HandleFunc(http.MethodPost, "/api/auth/signup", s.handleSignUp)
	r.HandleFunc(http.MethodPost, "/api/auth/signout", s.handleSignOut)
	r.HandleFunc(http.MethodPost, "/api/auth/reset", s.handleReset)
	r.HandleFunc(http.MethodGet, "/api/me", s.handleMe)

	r.HandleFunc(http.MethodGet, "/api/lists/{list}", s.handleQuery)
	r.HandleFunc(http.MethodPost, "/api/lists/{list}", s.handleAdd)
	r.HandleFunc(http.MethodPost, "/api/lists/{list}/toggle", s.handleToggle)
	r.HandleFunc(http.MethodDelete, "/api/lists/{list}/{id}", s.handleRemove)
	r.HandleFunc(http.MethodGet, "/api/lists/{list}/count", s.handleCount)
	r.HandleFunc(http.MethodGet, "/api/lists/{list}/count/stream", s.handleCountStream)
	r.HandleFunc(http.MethodGet, "/api/watched/{id}", s.handleGetWatched)
	r.HandleFunc(http.MethodPost, "/api/ratings", s.handleRate)

	r.HandleFunc(http.MethodGet, "/api/catalog/home", s.handleHome)
	r.HandleFunc(http.MethodGet, "/api/catalog/trending", s.handleTrending)
	r.HandleFunc(http.MethodGet, "/api/catalog/people", s.handlePeople)
	r.HandleFunc(http.MethodGet, "/api/catalog/search", s.handleSearch)
	r.HandleFunc(http.MethodGet, "/api/catalog/collection/{id}", s.handleCollection)
	r.HandleFunc(http.MethodGet, "/api/catalog/{type}/{id}", s.handleTitle)

	r.Handler(NewCallbackHandler(s.auth, s.onSession, s.logger))
}

// ServeHTTP implements [http.Handler].
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	srv := &http.Server{
		Addr:              addr,
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		// event streams end with ctx instead of holding up shutdown
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("listening", "addr", addr)
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		s.logger.Info("shutting down")
		return srv.Shutdown(shutdownCtx)
	}
}
