package main

import (
	"bufio"
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"

	"github.com/charmbracelet/log"
	"github.com/spf13/afero"
	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/repositories"
	"github.com/desertthunder/vibewatch/internal/services"
	"github.com/desertthunder/vibewatch/internal/shared"
	"github.com/desertthunder/vibewatch/internal/tasks"
)

// Runner holds all dependencies for CLI commands and provides methods for each command action.
//
// The backend (database, identity provider, list store) is opened on first use so commands that only
// talk to the catalog never touch it.
type Runner struct {
	config     *shared.Config
	configPath string
	fs         afero.Fs
	httpClient *http.Client
	logger     *log.Logger
	output     io.Writer
	input      io.Reader
	lines      *bufio.Reader

	catalog services.Catalog
	auth    services.Authenticator
	store   models.ItemStore
	db      *sql.DB
	dialect shared.Dialect
	state   *services.AuthState
	lists   *repositories.ListRepository
	feed    *repositories.Feed
	guard   *tasks.ItemGuard
}

// RunnerOpts contains configuration options for creating a Runner.
//
// Catalog, Auth and Store replace the services built from the config.
type RunnerOpts struct {
	Config     *shared.Config
	ConfigPath string
	Fs         afero.Fs
	HTTPClient *http.Client
	Logger     *log.Logger
	Output     io.Writer
	Input      io.Reader
	Catalog    services.Catalog
	Auth       services.Authenticator
	Store      models.ItemStore
}

// NewRunner creates a new Runner with the provided configuration
func NewRunner(opts RunnerOpts) *Runner {
	if opts.Config == nil {
		opts.Config = shared.DefaultConfig()
	}
	if opts.Fs == nil {
		opts.Fs = afero.NewOsFs()
	}
	if opts.Logger == nil {
		opts.Logger = shared.NewLogger(nil)
	}
	if opts.Output == nil {
		opts.Output = os.Stdout
	}
	if opts.Input == nil {
		opts.Input = os.Stdin
	}
	if opts.HTTPClient == nil {
		opts.HTTPClient = http.DefaultClient
	}

	return &Runner{
		config:     opts.Config,
		configPath: opts.ConfigPath,
		fs:         opts.Fs,
		httpClient: opts.HTTPClient,
		logger:     opts.Logger,
		output:     opts.Output,
		input:      opts.Input,
		catalog:    opts.Catalog,
		auth:       opts.Auth,
		store:      opts.Store,
		feed:       repositories.NewFeed(0),
		guard:      tasks.NewItemGuard(),
	}
}

func (r *Runner) register() []*cli.Command {
	commands := []*cli.Command{}
	for _, fn := range [](func(*Runner) *cli.Command){
		setupCommand, authCommand, listCommand, rateCommand, catalogCommand, keysCommand, exportCommand, serveCommand, tuiCommand,
	} {
		commands = append(commands, fn(r))
	}

	return commands
}

// SetLogger replaces the logger, e.g. with a file logger while the TUI owns the terminal.
func (r *Runner) SetLogger(l *log.Logger) {
	r.logger = l
}

// loadConfig reads the config file when it exists and keeps the current config otherwise.
func (r *Runner) loadConfig(path string) error {
	r.configPath = path
	exists, err := afero.Exists(r.fs, path)
	if err != nil {
		return fmt.Errorf("failed to check config file: %w", err)
	}
	if !exists {
		r.logger.Debug("config file not found, using defaults", "path", path)
		return nil
	}

	config, err := shared.LoadConfigFS(r.fs, path)
	if err != nil {
		return err
	}
	r.config = config
	shared.SetLogLevel(r.logger, shared.ParseLogLevel(config.Log.Level))
	return nil
}

// Catalog returns the movie and TV catalog, creating the TMDB client on first use.
func (r *Runner) Catalog() (services.Catalog, error) {
	if r.catalog != nil {
		return r.catalog, nil
	}
	client, err := services.NewTMDBClientFromConfig(r.config, r.logger)
	if err != nil {
		return nil, err
	}
	r.catalog = client
	return client, nil
}

// Open connects the configured backend and restores the saved session.
//
// Local mode stores accounts and list rows in the configured database. Hosted mode signs in against
// the project's auth server and reads rows through its REST interface with the session's token.
func (r *Runner) Open(ctx context.Context) error {
	if r.lists != nil {
		return nil
	}

	if r.config.Backend.Hosted() {
		if err := r.openHosted(); err != nil {
			return err
		}
	} else if err := r.openLocal(ctx); err != nil {
		return err
	}

	r.state = services.NewAuthState(r.auth, services.AuthStateOpts{
		Fs:     r.fs,
		Path:   shared.ExpandHome(r.config.Auth.SessionPath),
		Logger: shared.WithLogger(r.logger, "component", "session"),
	})
	if err := r.state.Load(); err != nil {
		r.logger.Warn("failed to restore session", "error", err)
	}

	if r.store == nil {
		r.store = services.NewRESTItemStore(r.config.Backend.URL, r.config.Backend.AnonKey, r.state.Client(ctx))
	}

	scheme, err := models.ParseKeyScheme(r.config.Lists.KeyScheme)
	if err != nil {
		return err
	}
	r.lists = repositories.NewListRepository(r.store, repositories.ListRepositoryOpts{
		Feed:   r.feed,
		Scheme: scheme,
		Logger: r.logger,
	})
	return nil
}

func (r *Runner) openLocal(ctx context.Context) error {
	if r.store != nil && r.auth != nil {
		return nil
	}

	db, dialect, err := shared.OpenDatabase(ctx, r.config.Database)
	if err != nil {
		return err
	}
	if err := shared.RunMigrations(ctx, db, dialect, r.logger); err != nil {
		db.Close()
		return err
	}
	r.db, r.dialect = db, dialect

	if r.store == nil {
		r.store = repositories.NewSQLItemStore(db, dialect)
	}
	if r.auth == nil {
		auth, err := services.NewLocalAuth(repositories.NewUserRepository(db, dialect), services.LocalAuthOpts{
			Secret:   r.config.Auth.JWTSecret,
			TokenTTL: r.config.Auth.TokenTTL.Duration,
			ResetTTL: r.config.Auth.ResetTTL.Duration,
			Logger:   shared.WithLogger(r.logger, "component", "auth"),
		})
		if err != nil {
			return err
		}
		r.auth = auth
	}
	return nil
}

func (r *Runner) openHosted() error {
	backend := r.config.Backend
	if backend.URL == "" || backend.AnonKey == "" {
		return fmt.Errorf("%w: backend.url and backend.anon_key are required in hosted mode", shared.ErrMissingConfig)
	}
	if r.auth != nil {
		return nil
	}

	auth, err := services.NewGoTrueAuth(services.GoTrueOpts{
		BaseURL:    backend.URL,
		AnonKey:    backend.AnonKey,
		JWTSecret:  backend.JWTSecret,
		HTTPClient: r.httpClient,
		Logger:     shared.WithLogger(r.logger, "component", "auth"),
	})
	if err != nil {
		return err
	}
	r.auth = auth
	return nil
}

// Close releases the database connection, if one was opened.
func (r *Runner) Close() error {
	if r.db == nil {
		return nil
	}
	err := r.db.Close()
	r.db = nil
	return err
}

// owner returns the signed-in user id or [shared.ErrNotAuthenticated].
func (r *Runner) owner() (string, error) {
	id := r.state.CurrentUserID()
	if id == "" {
		return "", fmt.Errorf("%w: run `vibewatch auth login` first", shared.ErrNotAuthenticated)
	}
	return id, nil
}

func (r *Runner) writeJSON(data any, pretty bool) error {
	output, err := shared.MarshalJSON(data, pretty)
	if err != nil {
		return fmt.Errorf("failed to marshal JSON: %w", err)
	}

	if _, err := r.output.Write(output); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}

	if _, err := r.output.Write([]byte("\n")); err != nil {
		return fmt.Errorf("failed to write newline: %w", err)
	}

	return nil
}

func (r *Runner) writePlain(format string, args ...any) error {
	text := fmt.Sprintf(format, args...)
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainln(format string, args ...any) error {
	text := "\n" + fmt.Sprintf(format, args...) + "\n"
	if _, err := r.output.Write([]byte(text)); err != nil {
		return fmt.Errorf("failed to write output: %w", err)
	}
	return nil
}

func (r *Runner) writePlainHeader(title string) {
	r.writePlain("═══════════════════════════════════════\n")
	r.writePlain("%v\n", title)
	r.writePlain("═══════════════════════════════════════\n")
}

// exitCode maps an error onto the process exit status.
func exitCode(err error) int {
	switch {
	case err == nil:
		return 0
	case errors.Is(err, shared.ErrNotImplemented):
		return 0
	case errors.Is(err, shared.ErrNotAuthenticated), errors.Is(err, shared.ErrInvalidCredentials), errors.Is(err, shared.ErrAuthFailed):
		return 3
	case errors.Is(err, shared.ErrMissingArgument), errors.Is(err, shared.ErrInvalidArgument), errors.Is(err, shared.ErrInvalidFlag),
		errors.Is(err, shared.ErrInvalidRating), errors.Is(err, shared.ErrInvalidInput):
		return 2
	default:
		return 1
	}
}
