package ledger

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"slices"

	"github.com/google/uuid"

	"github.com/starford/csvledger/internal/apperr"
	"github.com/starford/csvledger/internal/changeset"
	"github.com/starford/csvledger/internal/checksum"
	"github.com/starford/csvledger/internal/journal"
	"github.com/starford/csvledger/internal/models"
	"github.com/starford/csvledger/internal/storage"
	"github.com/starford/csvledger/internal/store"
)

// ApplyOptions control how changesets are applied to the data file.
type ApplyOptions struct {
	SkipDangling bool
	DryRun       bool
	Backup       bool
	// Force re-applies changesets the journal has already seen.
	Force bool
}

// AppliedChangeset describes one changeset of an Apply call.
type AppliedChangeset struct {
	Path     string
	Checksum string
	Stats    changeset.Stats
	Skipped  []error
}

// ApplyReport summarises an Apply call.
type ApplyReport struct {
	// RunID identifies the call in the journal.
	RunID      string
	Changesets []AppliedChangeset
	Total      changeset.Stats
	DryRun     bool
}

type loadedChangeset struct {
	path     string
	checksum string
	ops      []changeset.Operation
}

// Apply folds the changesets at paths into the data file, in order. Either
// all of them are committed or the data file is left untouched.
func (s *Service) Apply(ctx context.Context, paths []string, opts ApplyOptions) (*ApplyReport, error) {
	if len(paths) == 0 {
		return nil, fmt.Errorf("ledger: apply: no changesets given")
	}
	if _, err := os.Stat(s.dataFile); err != nil {
		return nil, fmt.Errorf("ledger: apply: %w", err)
	}
	dataKey, err := filepath.Abs(s.dataFile)
	if err != nil {
		return nil, fmt.Errorf("ledger: apply: %w", err)
	}
	loaded, err := s.loadChangesets(paths, dataKey, opts.Force)
	if err != nil {
		return nil, err
	}

	report := &ApplyReport{RunID: uuid.NewString(), DryRun: opts.DryRun}
	engine := &changeset.Engine{SkipDangling: opts.SkipDangling, Logger: s.logger}
	storeOpts := storage.Options{
		Backup:     opts.Backup,
		DryRun:     opts.DryRun,
		Companions: []string{store.IndexSuffix},
	}

	err = storage.Update(s.dataFile, storeOpts, func(tmp string) error {
		st, err := s.open(tmp)
		if err != nil {
			return err
		}
		base, err := readBase(st)
		if err != nil {
			return err
		}

		cur := base
		for _, cs := range loaded {
			if err := ctx.Err(); err != nil {
				return err
			}
			res, err := engine.Apply(cur, cs.ops)
			if err != nil {
				return fmt.Errorf("%s: %w", cs.path, err)
			}
			report.Changesets = append(report.Changesets, AppliedChangeset{
				Path:     cs.path,
				Checksum: cs.checksum,
				Stats:    res.Stats,
				Skipped:  res.Skipped,
			})
			addStats(&report.Total, res.Stats)
			cur = changeset.Base{Columns: res.Columns, Records: res.Records}
		}
		return s.commitResult(st, base, cur)
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("ledger: applied changesets",
		slog.String("run_id", report.RunID),
		slog.Int("changesets", len(report.Changesets)),
		slog.Int("added", report.Total.Added),
		slog.Int("updated", report.Total.Updated),
		slog.Int("deleted", report.Total.Deleted),
		slog.Int("split", report.Total.Split),
		slog.Int("skipped", report.Total.Skipped),
		slog.Bool("dry_run", opts.DryRun),
	)
	if opts.DryRun || s.journal == nil {
		return report, nil
	}
	for _, cs := range report.Changesets {
		err := s.journal.Record(journal.Entry{
			Checksum: cs.Checksum,
			RunID:    report.RunID,
			Name:     filepath.Base(cs.Path),
			DataFile: dataKey,
			Adds:     cs.Stats.Added,
			Updates:  cs.Stats.Updated,
			Deletes:  cs.Stats.Deleted,
			Splits:   cs.Stats.Split,
			Skipped:  cs.Stats.Skipped,
		})
		if err != nil {
			// The data file is already committed.
			s.logger.Error("ledger: journal record failed", slog.String("changeset", cs.Path), slog.String("error", err.Error()))
		}
	}
	return report, nil
}

// loadChangesets parses every changeset up front so that a malformed file
// fails the call before the data file is touched.
func (s *Service) loadChangesets(paths []string, dataKey string, force bool) ([]loadedChangeset, error) {
	out := make([]loadedChangeset, 0, len(paths))
	seen := make(map[string]string, len(paths))
	for _, p := range paths {
		format, err := changeset.FormatOf(p)
		if err != nil {
			return nil, err
		}
		data, err := os.ReadFile(p)
		if err != nil {
			return nil, fmt.Errorf("ledger: read changeset: %w", err)
		}
		sum := checksum.Sum(data)
		if !force {
			if prev, dup := seen[sum]; dup {
				return nil, fmt.Errorf("ledger: %s has the same contents as %s: %w", p, prev, apperr.ErrAlreadyApplied)
			}
			if err := s.checkJournal(p, sum, dataKey); err != nil {
				return nil, err
			}
		}
		seen[sum] = p
		ops, err := changeset.LoadReader(bytes.NewReader(data), format, p)
		if err != nil {
			return nil, err
		}
		out = append(out, loadedChangeset{path: p, checksum: sum, ops: ops})
	}
	return out, nil
}

// checkJournal refuses a changeset already applied to the data file at
// dataKey, an absolute path.
func (s *Service) checkJournal(path, sum, dataKey string) error {
	if s.journal == nil {
		return nil
	}
	prev, err := s.journal.Lookup(sum, dataKey)
	if err != nil {
		return err
	}
	if prev != nil {
		return fmt.Errorf("ledger: %s was applied as %s at %s: %w",
			path, prev.Name, prev.AppliedAt.Format("2006-01-02 15:04:05"), apperr.ErrAlreadyApplied)
	}
	return nil
}

func readBase(st *store.Store) (changeset.Base, error) {
	base := changeset.Base{Columns: st.Fieldnames()}
	for r, err := range st.ReadAll() {
		if err != nil {
			return changeset.Base{}, err
		}
		base.Records = append(base.Records, r)
	}
	return base, nil
}

// commitResult turns the difference between base and result into batch
// store operations: deletes, in-place replacements and appends.
func (s *Service) commitResult(st *store.Store, base, result changeset.Base) error {
	var newCols []string
	header := st.Fieldnames()
	for _, c := range result.Columns {
		if slices.Contains(header, c) {
			continue
		}
		if c == models.ColID && s.idColumn != models.ColID {
			continue
		}
		newCols = append(newCols, c)
	}
	if err := st.AddColumns(newCols...); err != nil {
		return err
	}

	final := make(map[string]models.Transaction, len(result.Records))
	for _, r := range result.Records {
		final[r.ID] = r
	}
	inBase := make(map[string]struct{}, len(base.Records))
	var deleted []string
	var changed []models.Transaction
	for _, r := range base.Records {
		inBase[r.ID] = struct{}{}
		f, ok := final[r.ID]
		switch {
		case !ok:
			deleted = append(deleted, r.ID)
		case !f.Equal(r):
			changed = append(changed, f)
		}
	}
	var added []models.Transaction
	for _, r := range result.Records {
		if _, ok := inBase[r.ID]; !ok {
			added = append(added, r)
		}
	}

	if len(deleted) > 0 {
		if _, err := st.BatchDelete(deleted...); err != nil {
			return err
		}
	}
	if len(changed) > 0 {
		if _, err := st.BatchReplace(changed...); err != nil {
			return err
		}
	}
	if len(added) > 0 {
		if _, err := st.Append(added...); err != nil {
			return err
		}
	}
	return nil
}

func addStats(dst *changeset.Stats, s changeset.Stats) {
	dst.Added += s.Added
	dst.Updated += s.Updated
	dst.Deleted += s.Deleted
	dst.Split += s.Split
	dst.Skipped += s.Skipped
}
