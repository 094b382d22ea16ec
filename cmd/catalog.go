package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
	"github.com/desertthunder/vibewatch/internal/tasks"
)

// viewer returns the signed-in owner when the backend can be opened, or "" to browse anonymously.
func (r *Runner) viewer(ctx context.Context) string {
	if err := r.Open(ctx); err != nil {
		r.logger.Debug("browsing without list badges", "error", err)
		return ""
	}
	return r.state.CurrentUserID()
}

func badges(m models.ReconciledMedia) string {
	var out []string
	if m.InWatchlist {
		out = append(out, "[to-watch]")
	}
	if m.UserRating != nil {
		out = append(out, fmt.Sprintf("[★ %g]", *m.UserRating))
	} else if m.Watched {
		out = append(out, "[watched]")
	}
	return strings.Join(out, " ")
}

func (r *Runner) printMedia(items []models.ReconciledMedia) {
	for i, m := range items {
		r.writePlain("%3d. %s (%s) · %s #%d · %.1f", i+1, m.DisplayTitle(), m.Year(), m.Type(), m.ID, m.VoteAverage)
		if b := badges(m); b != "" {
			r.writePlain(" %s", b)
		}
		r.writePlain("\n")
	}
}

// CatalogTrending prints today's trending titles annotated with the viewer's lists.
func (r *Runner) CatalogTrending(ctx context.Context, cmd *cli.Command) error {
	catalog, err := r.Catalog()
	if err != nil {
		return err
	}
	items, err := catalog.Trending(ctx)
	if err != nil {
		return err
	}

	reconciled := tasks.NewMembership(nil, nil).Annotate(items)
	if owner := r.viewer(ctx); owner != "" {
		reconciled, err = tasks.NewReconciler(r.lists, r.logger).Reconcile(ctx, owner, items)
		if err != nil {
			r.logger.Warn("list badges may be incomplete", "error", err)
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(reconciled, cmd.Bool("pretty"))
	}
	r.writePlainHeader("Trending today")
	r.printMedia(reconciled)
	return nil
}

// CatalogPeople prints popular people with what they are known for.
func (r *Runner) CatalogPeople(ctx context.Context, cmd *cli.Command) error {
	catalog, err := r.Catalog()
	if err != nil {
		return err
	}
	people, err := catalog.PopularPeople(ctx)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(people, cmd.Bool("pretty"))
	}
	r.writePlainHeader("Popular people")
	for i, p := range people {
		known := make([]string, 0, len(p.KnownFor))
		for _, m := range p.KnownFor {
			known = append(known, m.DisplayTitle())
		}
		r.writePlain("%3d. %s (%s)", i+1, p.Name, p.KnownForDepartment)
		if len(known) > 0 {
			r.writePlain(" · %s", strings.Join(known, ", "))
		}
		r.writePlain("\n")
	}
	return nil
}

// CatalogSearch prints one page of search results.
func (r *Runner) CatalogSearch(ctx context.Context, cmd *cli.Command) error {
	query := strings.TrimSpace(cmd.StringArg("query"))
	if query == "" {
		return fmt.Errorf("%w: query", shared.ErrMissingArgument)
	}
	page := int(cmd.Int("page"))
	if page < 1 {
		return fmt.Errorf("%w: --page must be at least 1", shared.ErrInvalidFlag)
	}

	catalog, err := r.Catalog()
	if err != nil {
		return err
	}
	results, err := catalog.Search(ctx, query, page)
	if err != nil {
		return err
	}

	reconciled := tasks.NewMembership(nil, nil).Annotate(results.Results)
	if owner := r.viewer(ctx); owner != "" {
		reconciled, err = tasks.NewReconciler(r.lists, r.logger).Reconcile(ctx, owner, results.Results)
		if err != nil {
			r.logger.Warn("list badges may be incomplete", "error", err)
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(models.Page[models.ReconciledMedia]{
			Page:         results.Page,
			Results:      reconciled,
			TotalPages:   results.TotalPages,
			TotalResults: results.TotalResults,
		}, cmd.Bool("pretty"))
	}
	r.writePlainHeader(fmt.Sprintf("Results for %q (page %d of %d)", query, results.Page, results.TotalPages))
	r.printMedia(reconciled)
	return nil
}

// CatalogTitle prints a title with credits and the viewer's list state.
func (r *Runner) CatalogTitle(ctx context.Context, cmd *cli.Command) error {
	mt, err := models.ParseMediaType(cmd.StringArg("type"))
	if err != nil || mt == models.MediaUnknown || mt == models.MediaPerson {
		return fmt.Errorf("%w: type must be movie or tv", shared.ErrInvalidArgument)
	}
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}

	catalog, err := r.Catalog()
	if err != nil {
		return err
	}
	details, err := catalog.Details(ctx, mt, id)
	if err != nil {
		return err
	}

	state := models.ReconciledMedia{Media: details.Media}
	if owner := r.viewer(ctx); owner != "" {
		if state.InWatchlist, err = r.lists.Contains(ctx, owner, models.ToWatch, id, mt); err != nil {
			r.logger.Warn("failed to check to-watch list", "error", err)
		}
		payload, err := r.lists.GetWatched(ctx, owner, id)
		if err != nil {
			r.logger.Warn("failed to check watched list", "error", err)
		} else if payload != nil {
			state.Watched = true
			state.UserRating = payload.UserRating
		}
	}

	if cmd.Bool("json") {
		return r.writeJSON(struct {
			*models.Details
			InWatchlist bool     `json:"inWatchlist"`
			Watched     bool     `json:"watched"`
			UserRating  *float64 `json:"userRating,omitempty"`
		}{details, state.InWatchlist, state.Watched, state.UserRating}, cmd.Bool("pretty"))
	}

	r.writePlainHeader(fmt.Sprintf("%s (%s)", details.DisplayTitle(), details.Year()))
	if details.Tagline != "" {
		r.writePlain("%s\n\n", details.Tagline)
	}
	genres := make([]string, 0, len(details.Genres))
	for _, g := range details.Genres {
		genres = append(genres, g.Name)
	}
	r.writePlain("Type:     %s\n", mt)
	r.writePlain("Rating:   %.1f\n", details.VoteAverage)
	r.writePlain("Runtime:  %s\n", shared.FormatRuntime(details.RuntimeMinutes()))
	if len(genres) > 0 {
		r.writePlain("Genres:   %s\n", strings.Join(genres, ", "))
	}
	if mt == models.MediaMovie {
		r.writePlain("Budget:   %s\n", shared.FormatCurrency(details.Budget))
		r.writePlain("Revenue:  %s\n", shared.FormatCurrency(details.Revenue))
	} else {
		r.writePlain("Seasons:  %d (%d episodes)\n", details.NumberOfSeasons, details.NumberOfEpisodes)
	}
	if b := badges(state); b != "" {
		r.writePlain("Lists:    %s\n", b)
	}
	if details.Overview != "" {
		r.writePlainln("%s", details.Overview)
	}

	if cast := details.Credits.Cast; len(cast) > 0 {
		r.writePlain("\nCast:\n")
		for _, c := range cast[:min(len(cast), 8)] {
			r.writePlain("  %s as %s\n", c.Name, c.Character)
		}
	}
	if trailers := details.Trailers(); len(trailers) > 0 {
		r.writePlain("\nTrailer: https://www.youtube.com/watch?v=%s\n", trailers[0].Key)
	}
	if ref := details.BelongsToCollection; ref != nil {
		r.writePlain("Part of %s (`vibewatch catalog collection %d`)\n", ref.Name, ref.ID)
	}
	return nil
}

// CatalogCollection prints the movies of a collection.
func (r *Runner) CatalogCollection(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	catalog, err := r.Catalog()
	if err != nil {
		return err
	}
	collection, err := catalog.Collection(ctx, id)
	if err != nil {
		return err
	}

	if cmd.Bool("json") {
		return r.writeJSON(collection, cmd.Bool("pretty"))
	}
	r.writePlainHeader(collection.Name)
	if collection.Overview != "" {
		r.writePlain("%s\n\n", collection.Overview)
	}
	r.printMedia(tasks.NewMembership(nil, nil).Annotate(collection.Parts))
	return nil
}
