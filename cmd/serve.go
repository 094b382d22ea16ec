package main

import (
	"context"
	"net/http"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vibewatch/internal/repositories"
	"github.com/desertthunder/vibewatch/internal/server"
	"github.com/desertthunder/vibewatch/internal/services"
	"github.com/desertthunder/vibewatch/internal/shared"
)

// serverLists returns the list repository the API serves.
//
// In hosted mode each request reads rows with the caller's own token rather than the CLI session.
func (r *Runner) serverLists() *repositories.ListRepository {
	if !r.config.Backend.Hosted() {
		return r.lists
	}
	client := &http.Client{Transport: &services.ContextTokenTransport{Base: r.httpClient.Transport}}
	store := services.NewRESTItemStore(r.config.Backend.URL, r.config.Backend.AnonKey, client)
	return repositories.NewListRepository(store, repositories.ListRepositoryOpts{
		Feed:   r.feed,
		Scheme: r.lists.Scheme(),
		Logger: r.logger,
	})
}

// Serve runs the JSON API until the process is interrupted.
func (r *Runner) Serve(ctx context.Context, cmd *cli.Command) error {
	if err := r.Open(ctx); err != nil {
		return err
	}
	catalog, err := r.Catalog()
	if err != nil {
		return err
	}

	baseURL := strings.TrimRight(r.config.Server.BaseURL, "/")
	srv := server.New(server.Options{
		Lists:      r.serverLists(),
		Catalog:    catalog,
		Auth:       r.auth,
		Guard:      r.guard,
		OnSession:  r.state.Set,
		RedirectTo: baseURL + "/auth/callback",
		Logger:     r.logger,
	})

	addr := cmd.String("addr")
	if addr == "" {
		addr = r.config.Server.Addr()
	}
	if cmd.Bool("open") {
		if err := shared.OpenBrowser(baseURL + "/api/health"); err != nil {
			r.logger.Warn("failed to open browser", "error", err)
		}
	}

	r.logger.Info("starting server", "addr", addr, "backend", r.auth.Name())
	return srv.ListenAndServe(ctx, addr)
}
