// submodule cmd contains command definitions
package main

import "github.com/urfave/cli/v3"

func jsonFlags() []cli.Flag {
	return []cli.Flag{
		&cli.BoolFlag{
			Name:  "json",
			Usage: "Output raw JSON",
		},
		&cli.BoolFlag{
			Name:  "pretty",
			Usage: "Pretty-print JSON output",
			Value: true,
		},
	}
}

func mediaTypeFlag() cli.Flag {
	return &cli.StringFlag{
		Name:    "type",
		Aliases: []string{"t"},
		Usage:   "Media type of the title (movie or tv)",
	}
}

// setupCommand creates the config file and prepares the database.
func setupCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "setup",
		Usage: "Create config.toml and run database migrations",
		Flags: []cli.Flag{
			&cli.BoolFlag{
				Name:  "rollback",
				Usage: "Roll back the most recent migration instead",
			},
		},
		Action: r.Setup,
	}
}

// authCommand handles account and session operations
func authCommand(r *Runner) *cli.Command {
	emailFlag := func() cli.Flag {
		return &cli.StringFlag{
			Name:     "email",
			Aliases:  []string{"e"},
			Usage:    "Account e-mail address",
			Required: true,
		}
	}
	stdinFlag := func() cli.Flag {
		return &cli.BoolFlag{
			Name:  "password-stdin",
			Usage: "Read the password from stdin instead of prompting",
		}
	}

	return &cli.Command{
		Name:  "auth",
		Usage: "Manage your account and session",
		Commands: []*cli.Command{
			{
				Name:   "login",
				Usage:  "Sign in with e-mail and password",
				Flags:  []cli.Flag{emailFlag(), stdinFlag()},
				Action: r.AuthLogin,
			},
			{
				Name:   "signup",
				Usage:  "Create an account",
				Flags:  []cli.Flag{emailFlag(), stdinFlag()},
				Action: r.AuthSignup,
			},
			{
				Name:   "logout",
				Usage:  "Sign out and forget the saved session",
				Action: r.AuthLogout,
			},
			{
				Name:   "status",
				Usage:  "Show who is signed in",
				Flags:  jsonFlags(),
				Action: r.AuthStatus,
			},
			{
				Name:  "reset",
				Usage: "Request a password reset",
				Flags: []cli.Flag{
					emailFlag(),
					&cli.StringFlag{
						Name:  "redirect-to",
						Usage: "Page the reset e-mail links back to (hosted mode)",
					},
				},
				Action: r.AuthReset,
			},
			{
				Name:  "reset-confirm",
				Usage: "Set a new password with a reset code (local mode)",
				Flags: []cli.Flag{
					emailFlag(),
					&cli.StringFlag{
						Name:     "code",
						Usage:    "Reset code",
						Required: true,
					},
					stdinFlag(),
				},
				Action: r.AuthResetConfirm,
			},
			{
				Name:  "delete-account",
				Usage: "Delete the signed-in account and its lists",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Do not ask for confirmation",
					},
				},
				Action: r.AuthDeleteAccount,
			},
		},
	}
}

// listCommand handles to-watch and watched list operations
func listCommand(r *Runner) *cli.Command {
	listArg := func() cli.Argument { return &cli.StringArg{Name: "list", UsageText: "to-watch or watched"} }
	idArg := func() cli.Argument { return &cli.StringArg{Name: "id", UsageText: "TMDB id"} }

	return &cli.Command{
		Name:    "list",
		Aliases: []string{"ls"},
		Usage:   "Manage your to-watch and watched lists",
		Commands: []*cli.Command{
			{
				Name:      "show",
				Usage:     "Print a list",
				Arguments: []cli.Argument{listArg()},
				Flags:     jsonFlags(),
				Action:    r.ListShow,
			},
			{
				Name:      "add",
				Usage:     "Add a title to a list",
				Arguments: []cli.Argument{listArg(), idArg()},
				Flags:     []cli.Flag{mediaTypeFlag()},
				Action:    r.ListAdd,
			},
			{
				Name:      "remove",
				Aliases:   []string{"rm"},
				Usage:     "Remove a title from a list",
				Arguments: []cli.Argument{listArg(), idArg()},
				Flags: []cli.Flag{
					mediaTypeFlag(),
					&cli.Int64Flag{
						Name:  "row",
						Usage: "Remove exactly this stored row",
					},
				},
				Action: r.ListRemove,
			},
			{
				Name:      "toggle",
				Usage:     "Add a title to a list, or remove it when already there",
				Arguments: []cli.Argument{listArg(), idArg()},
				Flags:     []cli.Flag{mediaTypeFlag()},
				Action:    r.ListToggle,
			},
			{
				Name:      "count",
				Usage:     "Print the number of titles on a list",
				Arguments: []cli.Argument{listArg()},
				Action:    r.ListCount,
			},
			{
				Name:  "clear",
				Usage: "Remove every title from both lists",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "yes",
						Usage: "Do not ask for confirmation",
					},
				},
				Action: r.ListClear,
			},
		},
	}
}

// rateCommand records a rating and moves the title to the watched list
func rateCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "rate",
		Usage: "Rate a title from 0 to 10 in half steps",
		Arguments: []cli.Argument{
			&cli.StringArg{Name: "id", UsageText: "TMDB id"},
			&cli.StringArg{Name: "rating", UsageText: "0-10"},
		},
		Flags:  []cli.Flag{mediaTypeFlag()},
		Action: r.Rate,
	}
}

// catalogCommand handles read-only TMDB lookups
func catalogCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "catalog",
		Aliases: []string{"tmdb"},
		Usage:   "Browse movies and shows",
		Commands: []*cli.Command{
			{
				Name:   "trending",
				Usage:  "Today's trending titles with your list badges",
				Flags:  jsonFlags(),
				Action: r.CatalogTrending,
			},
			{
				Name:   "people",
				Usage:  "Popular people",
				Flags:  jsonFlags(),
				Action: r.CatalogPeople,
			},
			{
				Name:      "search",
				Usage:     "Search movies and shows",
				Arguments: []cli.Argument{&cli.StringArg{Name: "query"}},
				Flags: append(jsonFlags(), &cli.IntFlag{
					Name:  "page",
					Usage: "Result page",
					Value: 1,
				}),
				Action: r.CatalogSearch,
			},
			{
				Name:  "title",
				Usage: "Show details for a title",
				Arguments: []cli.Argument{
					&cli.StringArg{Name: "type", UsageText: "movie or tv"},
					&cli.StringArg{Name: "id", UsageText: "TMDB id"},
				},
				Flags:  jsonFlags(),
				Action: r.CatalogTitle,
			},
			{
				Name:      "collection",
				Usage:     "Show a movie collection",
				Arguments: []cli.Argument{&cli.StringArg{Name: "id", UsageText: "TMDB collection id"}},
				Flags:     jsonFlags(),
				Action:    r.CatalogCollection,
			},
		},
	}
}

// keysCommand handles item key maintenance
func keysCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "keys",
		Usage: "Maintain stored item keys",
		Commands: []*cli.Command{
			{
				Name:  "migrate",
				Usage: "Rewrite legacy keys to the configured scheme and collapse duplicates",
				Flags: []cli.Flag{
					&cli.BoolFlag{
						Name:  "dry-run",
						Usage: "Report the changes without writing them",
					},
					&cli.BoolFlag{
						Name:  "all",
						Usage: "Migrate every owner in the local database",
					},
					&cli.StringFlag{
						Name:  "scheme",
						Usage: "Target key scheme (mobile or canonical); defaults to lists.key_scheme",
					},
				},
				Action: r.KeysMigrate,
			},
		},
	}
}

// exportCommand writes both lists to disk
func exportCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "export",
		Usage: "Export your lists as JSON, CSV, text or Markdown with posters",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "format",
				Aliases: []string{"f"},
				Usage:   "Export format: json, csv, txt or markdown",
				Value:   "json",
			},
			&cli.StringFlag{
				Name:    "output",
				Aliases: []string{"o"},
				Usage:   "Output directory (default: vibewatch_export_<timestamp>)",
			},
			&cli.StringSliceFlag{
				Name:  "list",
				Usage: "Export only these lists",
			},
			&cli.IntFlag{
				Name:  "workers",
				Usage: "Concurrent poster downloads",
				Value: 5,
			},
			&cli.FloatFlag{
				Name:  "rate-limit",
				Usage: "Poster downloads per second",
				Value: 5,
			},
		},
		Action: r.Export,
	}
}

// serveCommand starts the HTTP API
func serveCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "Serve the JSON API for the web client",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "addr",
				Usage: "Listen address (default: server.host:server.port)",
			},
			&cli.BoolFlag{
				Name:  "open",
				Usage: "Open the health endpoint in the browser once listening",
			},
		},
		Action: r.Serve,
	}
}

// tuiCommand returns the top-level TUI command.
func tuiCommand(r *Runner) *cli.Command {
	return &cli.Command{
		Name:    "tui",
		Aliases: []string{"interactive", "ui"},
		Usage:   "Browse trending titles and manage your lists interactively",
		Action:  r.TUI,
	}
}
