package main

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/services"
	"github.com/desertthunder/vibewatch/internal/shared"
	"github.com/desertthunder/vibewatch/internal/tasks"
)

func listArg(cmd *cli.Command) (models.ListKind, error) {
	raw := cmd.StringArg("list")
	if raw == "" {
		return "", fmt.Errorf("%w: list (to-watch or watched)", shared.ErrMissingArgument)
	}
	kind, err := models.ParseListKind(raw)
	if err != nil {
		return "", fmt.Errorf("%w: %v", shared.ErrInvalidArgument, err)
	}
	return kind, nil
}

func idArg(cmd *cli.Command, name string) (int64, error) {
	raw := cmd.StringArg(name)
	if raw == "" {
		return 0, fmt.Errorf("%w: %s", shared.ErrMissingArgument, name)
	}
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: %s must be a positive number, got %q", shared.ErrInvalidArgument, name, raw)
	}
	return id, nil
}

func typeFlag(cmd *cli.Command) (models.MediaType, error) {
	mt, err := models.ParseMediaType(cmd.String("type"))
	if err != nil {
		return "", fmt.Errorf("%w: --type: %v", shared.ErrInvalidFlag, err)
	}
	return mt, nil
}

// lookup fetches a title from the catalog. Without a media type the movie is tried first.
func (r *Runner) lookup(ctx context.Context, mt models.MediaType, id int64) (models.Media, error) {
	catalog, err := r.Catalog()
	if err != nil {
		return models.Media{}, err
	}

	types := []models.MediaType{mt}
	if mt == models.MediaUnknown {
		types = []models.MediaType{models.MediaMovie, models.MediaTV}
	}

	var lastErr error
	for _, t := range types {
		details, err := catalog.Details(ctx, t, id)
		if err == nil {
			media := details.Media
			media.MediaType = t
			return media, nil
		}
		if !services.IsNotFound(err) {
			return models.Media{}, err
		}
		lastErr = err
	}
	return models.Media{}, fmt.Errorf("%w: no title with id %d: %w", shared.ErrNotFound, id, lastErr)
}

func (r *Runner) printEntries(title string, entries []models.ListEntry) {
	r.writePlainHeader(fmt.Sprintf("%s (%d)", title, len(entries)))
	if len(entries) == 0 {
		r.writePlain("  (empty)\n")
		return
	}
	for i, e := range entries {
		r.writePlain("%3d. %s (%s) · %s #%d", i+1, e.Title, e.Year, mediaLabel(e.MediaType), e.ID)
		if e.UserRating != nil {
			r.writePlain(" · ★ %g", *e.UserRating)
		}
		r.writePlain("\n")
	}
}

func mediaLabel(mt models.MediaType) string {
	if mt == models.MediaUnknown {
		return "title"
	}
	return string(mt)
}

func listTitle(kind models.ListKind) string {
	if kind == models.ToWatch {
		return "To-Watch"
	}
	return "Watched"
}

// ListShow prints a list, newest first.
func (r *Runner) ListShow(ctx context.Context, cmd *cli.Command) error {
	kind, err := listArg(cmd)
	if err != nil {
		return err
	}
	if err := r.Open(ctx); err != nil {
		return err
	}
	owner, err := r.owner()
	if err != nil {
		return err
	}

	entries, err := r.lists.Query(ctx, owner, kind)
	if err != nil {
		return err
	}
	if cmd.Bool("json") {
		return r.writeJSON(entries, cmd.Bool("pretty"))
	}
	r.printEntries(listTitle(kind), entries)
	return nil
}

// ListAdd looks a title up in the catalog and adds it to a list.
func (r *Runner) ListAdd(ctx context.Context, cmd *cli.Command) error {
	kind, err := listArg(cmd)
	if err != nil {
		return err
	}
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	mt, err := typeFlag(cmd)
	if err != nil {
		return err
	}
	if err := r.Open(ctx); err != nil {
		return err
	}
	owner, err := r.owner()
	if err != nil {
		return err
	}

	media, err := r.lookup(ctx, mt, id)
	if err != nil {
		return err
	}
	release, err := r.guard.Acquire(owner, kind, media.Type(), media.ID)
	if err != nil {
		return err
	}
	defer release()

	if _, err := r.lists.Add(ctx, owner, kind, media); err != nil {
		if errors.Is(err, shared.ErrConflict) {
			return r.writePlain("%s is already on %s\n", media.DisplayTitle(), listTitle(kind))
		}
		return err
	}
	return r.writePlain("✓ Added %s (%s) to %s\n", media.DisplayTitle(), media.Year(), listTitle(kind))
}

// ListRemove removes every row of a title, or exactly one row with --row.
func (r *Runner) ListRemove(ctx context.Context, cmd *cli.Command) error {
	kind, err := listArg(cmd)
	if err != nil {
		return err
	}
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	mt, err := typeFlag(cmd)
	if err != nil {
		return err
	}
	if err := r.Open(ctx); err != nil {
		return err
	}
	owner, err := r.owner()
	if err != nil {
		return err
	}

	release, err := r.guard.Acquire(owner, kind, mt, id)
	if err != nil {
		return err
	}
	defer release()

	removed, err := r.lists.Remove(ctx, owner, kind, models.ItemRef{MediaID: id, MediaType: mt, RowID: cmd.Int64("row")})
	if err != nil {
		return err
	}
	if !removed {
		return r.writePlain("#%d was not on %s\n", id, listTitle(kind))
	}
	return r.writePlain("✓ Removed #%d from %s\n", id, listTitle(kind))
}

// ListToggle adds a title to a list or removes it when already present.
func (r *Runner) ListToggle(ctx context.Context, cmd *cli.Command) error {
	kind, err := listArg(cmd)
	if err != nil {
		return err
	}
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	mt, err := typeFlag(cmd)
	if err != nil {
		return err
	}
	if err := r.Open(ctx); err != nil {
		return err
	}
	owner, err := r.owner()
	if err != nil {
		return err
	}

	media, err := r.lookup(ctx, mt, id)
	if err != nil {
		return err
	}
	on, err := tasks.Toggle(ctx, r.lists, r.guard, owner, kind, media)
	if err != nil {
		return err
	}
	if on {
		return r.writePlain("✓ Added %s to %s\n", media.DisplayTitle(), listTitle(kind))
	}
	return r.writePlain("✓ Removed %s from %s\n", media.DisplayTitle(), listTitle(kind))
}

// ListCount prints the number of distinct titles on a list.
func (r *Runner) ListCount(ctx context.Context, cmd *cli.Command) error {
	kind, err := listArg(cmd)
	if err != nil {
		return err
	}
	if err := r.Open(ctx); err != nil {
		return err
	}
	owner, err := r.owner()
	if err != nil {
		return err
	}

	n, err := r.lists.Count(ctx, owner, kind)
	if err != nil {
		return err
	}
	return r.writePlain("%d\n", n)
}

// ListClear removes every row of the signed-in user.
func (r *Runner) ListClear(ctx context.Context, cmd *cli.Command) error {
	if err := r.Open(ctx); err != nil {
		return err
	}
	owner, err := r.owner()
	if err != nil {
		return err
	}
	if !cmd.Bool("yes") && !r.confirm("Remove every title from both lists?") {
		return r.writePlain("Cancelled\n")
	}

	n, err := r.lists.Clear(ctx, owner)
	if err != nil {
		return err
	}
	return r.writePlain("✓ Removed %d rows\n", n)
}

// Rate records a rating and moves the title from to-watch to watched.
func (r *Runner) Rate(ctx context.Context, cmd *cli.Command) error {
	id, err := idArg(cmd, "id")
	if err != nil {
		return err
	}
	raw := strings.TrimSpace(cmd.StringArg("rating"))
	if raw == "" {
		return fmt.Errorf("%w: rating", shared.ErrMissingArgument)
	}
	rating, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return fmt.Errorf("%w: %q is not a number", shared.ErrInvalidRating, raw)
	}
	if err := tasks.ValidateRating(rating); err != nil {
		return err
	}
	mt, err := typeFlag(cmd)
	if err != nil {
		return err
	}
	if err := r.Open(ctx); err != nil {
		return err
	}
	owner, err := r.owner()
	if err != nil {
		return err
	}

	media, err := r.lookup(ctx, mt, id)
	if err != nil {
		return err
	}
	result, err := tasks.NewRatings(r.lists, r.guard, r.logger).Submit(ctx, owner, media, rating)
	if errors.Is(err, shared.ErrPartialPromotion) {
		return r.writePlain("⚠ Rated %s ★ %g, but it is still on To-Watch: %v\n", media.DisplayTitle(), rating, err)
	}
	if err != nil {
		return err
	}

	r.writePlain("✓ Rated %s ★ %g\n", media.DisplayTitle(), rating)
	if result.RemovedFromWatchlist {
		r.writePlain("  Moved from To-Watch to Watched\n")
	}
	return nil
}

// KeysMigrate rewrites legacy item keys for the signed-in user, or for every owner with --all.
func (r *Runner) KeysMigrate(ctx context.Context, cmd *cli.Command) error {
	if err := r.Open(ctx); err != nil {
		return err
	}

	scheme := r.lists.Scheme()
	if s := cmd.String("scheme"); s != "" {
		parsed, err := models.ParseKeyScheme(s)
		if err != nil {
			return fmt.Errorf("%w: --scheme: %v", shared.ErrInvalidFlag, err)
		}
		scheme = parsed
	}

	var owners []string
	if cmd.Bool("all") {
		lister, ok := r.store.(interface {
			Owners(ctx context.Context) ([]string, error)
		})
		if !ok {
			return fmt.Errorf("%w: --all needs direct database access (local backend)", shared.ErrInvalidFlag)
		}
		all, err := lister.Owners(ctx)
		if err != nil {
			return err
		}
		owners = all
	} else {
		owner, err := r.owner()
		if err != nil {
			return err
		}
		owners = []string{owner}
	}

	dryRun := cmd.Bool("dry-run")
	migrator := tasks.NewKeyMigrator(r.store, scheme, r.logger)
	if dryRun {
		r.writePlain("Dry run: no rows will be changed\n")
	}

	for _, owner := range owners {
		progress := make(chan tasks.ProgressUpdate, 50)
		done := make(chan struct{})
		go func() {
			defer close(done)
			for update := range progress {
				r.writePlain("  [%s] %s\n", update.Phase, update.Message)
			}
		}()

		result, err := migrator.Run(ctx, owner, progress, dryRun)
		close(progress)
		<-done
		if err != nil {
			return fmt.Errorf("migration failed for %s: %w", owner, err)
		}

		r.writePlain("\n")
		r.writePlainHeader(fmt.Sprintf("Keys for %s (%s scheme)", owner, scheme))
		r.writePlain("Rows scanned: %d\n", result.Scanned)
		r.writePlain("Rewritten:    %d\n", result.Rewritten)
		r.writePlain("Collapsed:    %d\n", result.Collapsed)
		r.writePlain("Typed:        %d\n", result.Typed)
		if result.Unreadable > 0 {
			r.writePlain("Unreadable:   %d (left untouched)\n", result.Unreadable)
		}
		if result.Conflicts > 0 {
			r.writePlain("Conflicts:    %d\n", result.Conflicts)
		}
	}
	return nil
}
