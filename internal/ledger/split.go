package ledger

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/starford/csvledger/internal/models"
	"github.com/starford/csvledger/internal/storage"
)

// Period is the granularity of SplitByPeriod.
type Period string

const (
	PeriodDay   Period = "day"
	PeriodMonth Period = "month"
	PeriodYear  Period = "year"
)

// UndatedPeriod names the file that receives transactions without a date.
const UndatedPeriod = "undated"

// ParsePeriod validates a period name.
func ParsePeriod(s string) (Period, error) {
	switch p := Period(s); p {
	case PeriodDay, PeriodMonth, PeriodYear:
		return p, nil
	}
	return "", fmt.Errorf("unsupported period %q (want day, month or year)", s)
}

func (p Period) key(t models.Transaction) string {
	if t.Date.IsZero() {
		return UndatedPeriod
	}
	switch p {
	case PeriodYear:
		return t.Date.Format("2006")
	case PeriodMonth:
		return t.Date.Format("2006-01")
	default:
		return t.Date.Format("2006-01-02")
	}
}

// SplitByPeriod reads the input transaction files (the data file when none
// are given) and writes one <period>-transactions.csv per period into dir.
// Each output is sorted by date. It returns the written paths in period
// order.
func (s *Service) SplitByPeriod(ctx context.Context, inputs []string, by Period, dir string) ([]string, error) {
	if len(inputs) == 0 {
		inputs = []string{s.dataFile}
	}
	base, err := s.readBases(inputs)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	groups := make(map[string][]models.Transaction)
	for _, r := range base.Records {
		k := by.key(r)
		groups[k] = append(groups[k], r)
	}
	columns := models.OrderColumns(base.Columns)

	periods := make([]string, 0, len(groups))
	for k := range groups {
		periods = append(periods, k)
	}
	slices.Sort(periods)

	paths := make([]string, 0, len(periods))
	for _, k := range periods {
		if err := ctx.Err(); err != nil {
			return paths, err
		}
		recs := groups[k]
		SortByDate(recs)
		out := filepath.Join(dir, k+"-transactions.csv")
		err := storage.ReplaceFile(out, func(f *os.File) error {
			return writeTransactions(f, columns, s.idColumn, recs)
		})
		if err != nil {
			return paths, fmt.Errorf("ledger: split %s: %w", k, err)
		}
		paths = append(paths, out)
	}
	return paths, nil
}
