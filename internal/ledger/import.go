package ledger

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/starford/csvledger/internal/checksum"
	"github.com/starford/csvledger/internal/models"
)

// ImportOptions control Import.
type ImportOptions struct {
	// StableIDs gives records without an id their content hash instead of
	// the next incremental id, and skips records already in the store.
	StableIDs bool
}

// ImportReport counts what Import did.
type ImportReport struct {
	Imported int
	Skipped  int
}

// Import appends the transactions of already normalised CSV files to the
// data file. Every record is validated before anything is written.
func (s *Service) Import(_ context.Context, paths []string, opts ImportOptions) (*ImportReport, error) {
	var recs []models.Transaction
	for _, p := range paths {
		_, rs, err := readTransactionFile(p, s.idColumn)
		if err != nil {
			return nil, err
		}
		for i, r := range rs {
			if err := validateRecord(r); err != nil {
				return nil, fmt.Errorf("ledger: import %s: record %d: %w", p, i+1, err)
			}
		}
		recs = append(recs, rs...)
	}

	st, err := s.open(s.dataFile)
	if err != nil {
		return nil, err
	}
	report := &ImportReport{}
	if opts.StableIDs {
		index := st.Index()
		kept := recs[:0]
		for _, r := range recs {
			if r.ID == "" {
				r.ID = checksum.StableID(r)
			}
			if _, dup := index[r.ID]; dup {
				report.Skipped++
				continue
			}
			index[r.ID] = -1
			kept = append(kept, r)
		}
		recs = kept
	}

	if err := st.AddColumns(extraColumns(recs)...); err != nil {
		return nil, err
	}
	written, err := st.Append(recs...)
	if err != nil {
		return nil, err
	}
	report.Imported = len(written)
	s.logger.Info("ledger: imported transactions",
		slog.Int("imported", report.Imported),
		slog.Int("skipped", report.Skipped))
	return report, nil
}
