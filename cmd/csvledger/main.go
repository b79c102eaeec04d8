package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	_ "github.com/joho/godotenv/autoload"
	"github.com/urfave/cli/v3"

	"github.com/starford/csvledger/internal"
	pkgconfig "github.com/starford/csvledger/pkg/config"
)

// withApp loads the configuration, wires the application and runs fn.
func withApp(fn func(ctx context.Context, cmd *cli.Command, app *internal.App) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		cfg := internal.NewDefaultConfig()
		if err := pkgconfig.LoadOptional(cmd.String("config"), cfg); err != nil {
			return fmt.Errorf("failed to parse config: %w", err)
		}
		if v := cmd.String("data-file"); v != "" {
			cfg.Store.DataFile = v
		}
		if cmd.Bool("verbose") {
			cfg.App.LogLevel = slog.LevelDebug
		}
		if cmd.Bool("no-journal") {
			cfg.Journal.Enabled = false
		}

		app, err := internal.New(internal.WithConfig(cfg))
		if err != nil {
			return fmt.Errorf("app init error: %w", err)
		}
		defer app.Close()
		return fn(ctx, cmd, app)
	}
}

func newRootCommand() *cli.Command {
	return &cli.Command{
		Name:  "csvledger",
		Usage: "Plain-text personal finance ledger with indexed CSV storage and changesets",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "config",
				Aliases:     []string{"c"},
				Usage:       "Path to config file",
				DefaultText: "csvledger.yaml",
				Value:       "csvledger.yaml",
				Sources:     cli.EnvVars("CSVLEDGER_CONFIG"),
			},
			&cli.StringFlag{
				Name:    "data-file",
				Aliases: []string{"f"},
				Usage:   "Transactions CSV (overrides store.data_file)",
				Sources: cli.EnvVars("CSVLEDGER_DATA_FILE"),
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Log at debug level",
			},
			&cli.BoolFlag{
				Name:  "no-journal",
				Usage: "Do not record or check applied changesets",
			},
		},
		Commands: []*cli.Command{
			initCommand(),
			listCommand(),
			appendCommand(),
			editCommand(),
			deleteCommand(),
			applyCommand(),
			mergeCommand(),
			importCommand(),
			rebuildIndexCommand(),
			splitCommand(),
			watchCommand(),
			journalCommand(),
			schemaCommand(),
		},
	}
}

func main() {
	if err := newRootCommand().Run(context.Background(), os.Args); err != nil {
		slog.Error("application error", slog.String("error", err.Error()))
		os.Exit(1)
	}
}
