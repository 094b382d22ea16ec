package main

import (
	"context"
	"fmt"

	"github.com/urfave/cli/v3"

	"github.com/desertthunder/vibewatch/internal/shared"
	"github.com/desertthunder/vibewatch/internal/ui"
)

// TUI launches the interactive terminal UI.
func (r *Runner) TUI(ctx context.Context, cmd *cli.Command) error {
	// Logs go to a file so they don't interfere with TUI rendering
	fileLogger, err := shared.NewFileLogger(r.config.Log.File, r.config.Log)
	if err != nil {
		return fmt.Errorf("failed to create file logger: %w", err)
	}
	r.SetLogger(fileLogger)

	if err := r.Open(ctx); err != nil {
		return err
	}
	catalog, err := r.Catalog()
	if err != nil {
		return err
	}

	if err := ui.Run(ctx, ui.Options{
		Viewer:  r.state,
		Catalog: catalog,
		Lists:   r.lists,
		Guard:   r.guard,
		Logger:  r.logger,
	}); err != nil {
		return fmt.Errorf("error running TUI: %w", err)
	}
	return nil
}
