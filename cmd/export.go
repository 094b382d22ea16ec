package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vibewatch/internal/models"
	"github.com/desertthunder/vibewatch/internal/shared"
	"github.com/desertthunder/vibewatch/internal/tasks"
)

// Export writes the signed-in user's lists to a directory.
func (r *Runner) Export(ctx context.Context, cmd *cli.Command) error {
	var kinds []models.ListKind
	for _, raw := range cmd.StringSlice("list") {
		kind, err := models.ParseListKind(raw)
		if err != nil {
			return fmt.Errorf("%w: --list: %v", shared.ErrInvalidFlag, err)
		}
		kinds = append(kinds, kind)
	}

	if err := r.Open(ctx); err != nil {
		return err
	}
	owner, err := r.owner()
	if err != nil {
		return err
	}

	progress := make(chan tasks.ProgressUpdate, 50)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for update := range progress {
			switch update.Phase {
			case tasks.ExportList:
				r.writePlain("📝 %s\n", update.Message)
			case tasks.DownloadPosters:
				r.writePlain("   🖼  %s\n", update.Message)
			}
		}
	}()

	result, err := tasks.ExportLists(ctx, r.lists, owner, progress, tasks.ExportOpts{
		Format:     cmd.String("format"),
		OutputDir:  cmd.String("output"),
		Lists:      kinds,
		NumWorkers: int(cmd.Int("workers")),
		RateLimit:  cmd.Float("rate-limit"),
		HTTPClient: r.httpClient,
	})
	close(progress)
	<-done
	if err != nil {
		return err
	}

	r.writePlain("\n")
	r.writePlainHeader("Export Complete!")
	r.writePlain("Format:    %s\n", result.Format)
	r.writePlain("Directory: %s\n", result.OutputDirectory)
	for _, l := range result.Lists {
		if l.Success {
			r.writePlain("✓ %s: %d titles, %d files\n", listTitle(l.List), l.Entries, len(l.Files))
		} else {
			r.writePlain("✗ %s: %s\n", listTitle(l.List), l.Error)
		}
	}
	if result.PostersSaved+result.PostersFailed > 0 {
		r.writePlain("Posters:   %d saved, %d failed\n", result.PostersSaved, result.PostersFailed)
	}
	r.writePlain("Manifest:  %s\n", result.ManifestPath)
	return nil
}
