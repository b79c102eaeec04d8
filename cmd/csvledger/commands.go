package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/starford/csvledger/internal"
	"github.com/starford/csvledger/internal/changeset"
	"github.com/starford/csvledger/internal/codec"
	"github.com/starford/csvledger/internal/filter"
	"github.com/starford/csvledger/internal/ledger"
	"github.com/starford/csvledger/internal/models"
	"github.com/starford/csvledger/internal/storage"
)

// selectorFlags returns the --id and --filter flags.
func selectorFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringSliceFlag{
			Name:  "id",
			Usage: "Select the transaction with this id (repeatable)",
		},
		&cli.StringSliceFlag{
			Name:    "filter",
			Aliases: []string{"w"},
			Usage:   "Select transactions matching FIELD OP VALUE, e.g. amount<0 or desc~coffee (repeatable)",
		},
	}
}

func skipDanglingFlag() cli.Flag {
	return &cli.BoolFlag{
		Name:  "skip-dangling",
		Usage: "Skip changeset rows that reference unknown ids instead of failing",
	}
}

// stdout is where command output goes.
func stdout(cmd *cli.Command) io.Writer {
	if w := cmd.Root().Writer; w != nil {
		return w
	}
	return os.Stdout
}

func selector(cmd *cli.Command) (ledger.Selector, error) {
	exprs, err := filter.ParseAll(cmd.StringSlice("filter"))
	if err != nil {
		return ledger.Selector{}, err
	}
	return ledger.Selector{IDs: cmd.StringSlice("id"), Filters: exprs}, nil
}

// parseAssignments turns COLUMN=VALUE arguments into a field map.
func parseAssignments(args []string) (map[string]string, error) {
	fields := make(map[string]string, len(args))
	for _, a := range args {
		k, v, ok := strings.Cut(a, "=")
		k = strings.TrimSpace(k)
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid assignment %q (want COLUMN=VALUE)", a)
		}
		fields[k] = v
	}
	return fields, nil
}

func writeCSV(w io.Writer, columns []string, idColumn string, recs []models.Transaction) error {
	cw := codec.NewWriter(w, columns, idColumn)
	for _, r := range recs {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	return cw.Flush()
}

func initCommand() *cli.Command {
	return &cli.Command{
		Name:  "init",
		Usage: "Create the transactions file and its index",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			if err := app.Ledger.Init(ctx); err != nil {
				return err
			}
			fmt.Fprintln(stdout(cmd), app.Ledger.DataFile())
			return nil
		}),
	}
}

func listCommand() *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "Print transactions as CSV",
		Flags: selectorFlags(),
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			sel, err := selector(cmd)
			if err != nil {
				return err
			}
			cols, recs, err := app.Ledger.List(ctx, sel)
			if err != nil {
				return err
			}
			return writeCSV(stdout(cmd), cols, app.Config.Store.IDColumn, recs)
		}),
	}
}

func appendCommand() *cli.Command {
	return &cli.Command{
		Name:      "append",
		Usage:     "Append one transaction",
		ArgsUsage: "[COLUMN=VALUE ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "date", Required: true},
			&cli.StringFlag{Name: "description", Aliases: []string{"desc"}, Required: true},
			&cli.StringFlag{Name: "amount", Required: true},
			&cli.StringFlag{Name: "account", Required: true},
			&cli.StringFlag{Name: "category"},
			&cli.StringFlag{Name: "notes"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			fields, err := parseAssignments(cmd.Args().Slice())
			if err != nil {
				return err
			}
			for _, col := range []string{models.ColDate, models.ColDescription, models.ColAmount, models.ColAccount, models.ColCategory, models.ColNotes} {
				if v := cmd.String(col); v != "" {
					fields[col] = v
				}
			}
			var t models.Transaction
			if err := codec.Apply(&t, fields); err != nil {
				return err
			}
			out, err := app.Ledger.Append(ctx, t)
			if err != nil {
				return err
			}
			fmt.Fprintln(stdout(cmd), out[0].ID)
			return nil
		}),
	}
}

func editCommand() *cli.Command {
	return &cli.Command{
		Name:      "edit",
		Usage:     "Set columns on selected transactions; an empty value clears the column",
		ArgsUsage: "COLUMN=VALUE ...",
		Flags:     selectorFlags(),
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			fields, err := parseAssignments(cmd.Args().Slice())
			if err != nil {
				return err
			}
			sel, err := selector(cmd)
			if err != nil {
				return err
			}
			edited, err := app.Ledger.Edit(ctx, sel, fields)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout(cmd), "edited %d transactions\n", len(edited))
			return nil
		}),
	}
}

func deleteCommand() *cli.Command {
	return &cli.Command{
		Name:      "delete",
		Usage:     "Delete transactions by id",
		ArgsUsage: "ID ...",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			ids := cmd.Args().Slice()
			if len(ids) == 0 {
				return fmt.Errorf("no ids given")
			}
			n, err := app.Ledger.Delete(ctx, ids...)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout(cmd), "deleted %d transactions\n", n)
			return nil
		}),
	}
}

func applyCommand() *cli.Command {
	return &cli.Command{
		Name:      "apply",
		Usage:     "Apply changesets to the transactions file",
		ArgsUsage: "CHANGESET ...",
		Flags: []cli.Flag{
			skipDanglingFlag(),
			&cli.BoolFlag{Name: "dry-run", Aliases: []string{"n"}, Usage: "Report what would change without writing"},
			&cli.BoolFlag{Name: "backup", Usage: "Keep the previous data file as " + storage.BackupSuffix},
			&cli.BoolFlag{Name: "force", Usage: "Apply changesets the journal has already seen"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			rep, err := app.Ledger.Apply(ctx, cmd.Args().Slice(), ledger.ApplyOptions{
				SkipDangling: cmd.Bool("skip-dangling") || app.Config.Changeset.SkipDangling,
				DryRun:       cmd.Bool("dry-run"),
				Backup:       cmd.Bool("backup") || app.Config.Changeset.Backup,
				Force:        cmd.Bool("force"),
			})
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "CHANGESET\tADDED\tUPDATED\tDELETED\tSPLIT\tSKIPPED")
			for _, cs := range rep.Changesets {
				s := cs.Stats
				fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", cs.Path, s.Added, s.Updated, s.Deleted, s.Split, s.Skipped)
			}
			if err := tw.Flush(); err != nil {
				return err
			}
			if rep.DryRun {
				fmt.Fprintln(stdout(cmd), "dry run: nothing written")
			}
			return nil
		}),
	}
}

func mergeCommand() *cli.Command {
	return &cli.Command{
		Name:      "merge",
		Usage:     "Combine transaction files, apply changesets and print the result sorted by date",
		ArgsUsage: "BASE ...",
		Flags: []cli.Flag{
			skipDanglingFlag(),
			&cli.StringSliceFlag{Name: "changeset", Aliases: []string{"s"}, Usage: "Changeset to apply (repeatable, applied in order)"},
			&cli.StringFlag{Name: "output", Aliases: []string{"o"}, Usage: "Write to this file instead of stdout"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			req := ledger.MergeRequest{
				Bases:        cmd.Args().Slice(),
				Changesets:   cmd.StringSlice("changeset"),
				SkipDangling: cmd.Bool("skip-dangling") || app.Config.Changeset.SkipDangling,
			}
			out := cmd.String("output")
			if out == "" {
				_, err := app.Ledger.Merge(ctx, req, stdout(cmd))
				return err
			}
			return storage.ReplaceFile(out, func(f *os.File) error {
				_, err := app.Ledger.Merge(ctx, req, f)
				return err
			})
		}),
	}
}

func importCommand() *cli.Command {
	return &cli.Command{
		Name:      "import",
		Usage:     "Append the transactions of normalised CSV files",
		ArgsUsage: "FILE ...",
		Flags: []cli.Flag{
			&cli.BoolFlag{Name: "stable-ids", Usage: "Give new records content-hash ids and skip ones already present"},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			files := cmd.Args().Slice()
			if len(files) == 0 {
				return fmt.Errorf("no files given")
			}
			rep, err := app.Ledger.Import(ctx, files, ledger.ImportOptions{StableIDs: cmd.Bool("stable-ids")})
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout(cmd), "imported %d transactions, skipped %d\n", rep.Imported, rep.Skipped)
			return nil
		}),
	}
}

func rebuildIndexCommand() *cli.Command {
	return &cli.Command{
		Name:  "rebuild-index",
		Usage: "Rescan the transactions file and rewrite its index",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			n, err := app.Ledger.RebuildIndex(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(stdout(cmd), "indexed %d transactions\n", n)
			return nil
		}),
	}
}

func splitCommand() *cli.Command {
	return &cli.Command{
		Name:      "split",
		Usage:     "Write one CSV per day, month or year",
		ArgsUsage: "[INPUT ...]",
		Flags: []cli.Flag{
			&cli.StringFlag{Name: "by", Value: string(ledger.PeriodMonth), Usage: "day, month or year"},
			&cli.StringFlag{Name: "output-dir", Aliases: []string{"o"}, Required: true},
		},
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			by, err := ledger.ParsePeriod(cmd.String("by"))
			if err != nil {
				return err
			}
			paths, err := app.Ledger.SplitByPeriod(ctx, cmd.Args().Slice(), by, cmd.String("output-dir"))
			if err != nil {
				return err
			}
			for _, p := range paths {
				fmt.Fprintln(stdout(cmd), p)
			}
			return nil
		}),
	}
}

func watchCommand() *cli.Command {
	return &cli.Command{
		Name:  "watch",
		Usage: "Rebuild the index whenever the transactions file changes",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			return app.Watch(ctx)
		}),
	}
}

func journalCommand() *cli.Command {
	return &cli.Command{
		Name:  "journal",
		Usage: "List applied changesets",
		Action: withApp(func(ctx context.Context, cmd *cli.Command, app *internal.App) error {
			entries, err := app.Ledger.History(ctx)
			if err != nil {
				return err
			}
			tw := tabwriter.NewWriter(stdout(cmd), 0, 4, 2, ' ', 0)
			fmt.Fprintln(tw, "APPLIED\tRUN\tNAME\tCHECKSUM\tADDED\tUPDATED\tDELETED\tSPLIT\tSKIPPED")
			for _, e := range entries {
				fmt.Fprintf(tw, "%s\t%.8s\t%s\t%.12s\t%d\t%d\t%d\t%d\t%d\n",
					e.AppliedAt.Local().Format("2006-01-02 15:04"), e.RunID, e.Name, e.Checksum,
					e.Adds, e.Updates, e.Deletes, e.Splits, e.Skipped)
			}
			return tw.Flush()
		}),
	}
}

func schemaCommand() *cli.Command {
	return &cli.Command{
		Name:  "schema",
		Usage: "Print the JSON Schema of JSON changeset files",
		Action: func(_ context.Context, cmd *cli.Command) error {
			enc := json.NewEncoder(stdout(cmd))
			enc.SetIndent("", "  ")
			return enc.Encode(changeset.Schema())
		},
	}
}
