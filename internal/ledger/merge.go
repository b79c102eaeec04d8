package ledger

import (
	"context"
	"fmt"
	"io"
	"os"
	"slices"
	"strings"

	"github.com/starford/csvledger/internal/changeset"
	"github.com/starford/csvledger/internal/codec"
	"github.com/starford/csvledger/internal/models"
)

// MergeRequest names the files a merge reads.
type MergeRequest struct {
	// Bases are transaction files, concatenated in order.
	Bases []string
	// Changesets are applied to the combined bases in order.
	Changesets   []string
	SkipDangling bool
}

// Merge combines base transaction files, applies changesets to them and
// writes the result to out, sorted by date. No file is modified.
func (s *Service) Merge(ctx context.Context, req MergeRequest, out io.Writer) (*changeset.Result, error) {
	if len(req.Bases) == 0 {
		return nil, fmt.Errorf("ledger: merge: no base files given")
	}
	base, err := s.readBases(req.Bases)
	if err != nil {
		return nil, err
	}

	engine := &changeset.Engine{SkipDangling: req.SkipDangling, Logger: s.logger}
	res := &changeset.Result{Columns: base.Columns, Records: base.Records}
	for _, p := range req.Changesets {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		ops, err := changeset.Load(p)
		if err != nil {
			return nil, err
		}
		next, err := engine.Apply(changeset.Base{Columns: res.Columns, Records: res.Records}, ops)
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		next.Skipped = append(res.Skipped, next.Skipped...)
		addStats(&next.Stats, res.Stats)
		res = next
	}

	SortByDate(res.Records)
	columns := models.OrderColumns(res.Columns)
	if s.idColumn != models.ColID {
		columns = slices.DeleteFunc(columns, func(c string) bool { return c == models.ColID })
	}
	if err := writeTransactions(out, columns, s.idColumn, res.Records); err != nil {
		return nil, err
	}
	return res, nil
}

func (s *Service) readBases(paths []string) (changeset.Base, error) {
	var base changeset.Base
	set := make(map[string]struct{})
	for _, p := range paths {
		cols, recs, err := readTransactionFile(p, s.idColumn)
		if err != nil {
			return changeset.Base{}, err
		}
		for _, c := range cols {
			if _, ok := set[c]; !ok {
				set[c] = struct{}{}
				base.Columns = append(base.Columns, c)
			}
		}
		base.Records = append(base.Records, recs...)
	}
	return base, nil
}

func readTransactionFile(path, idColumn string) ([]string, []models.Transaction, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, err
	}
	defer f.Close()
	return codec.ReadAll(f, path, idColumn)
}

func writeTransactions(w io.Writer, columns []string, idColumn string, recs []models.Transaction) error {
	cw := codec.NewWriter(w, columns, idColumn)
	for _, r := range recs {
		if err := cw.Write(r); err != nil {
			return err
		}
	}
	return cw.Flush()
}

// SortByDate orders recs by date, keeping the relative order of records on
// the same day. Undated records sort first.
func SortByDate(recs []models.Transaction) {
	slices.SortStableFunc(recs, func(a, b models.Transaction) int {
		return strings.Compare(codec.FormatDate(a.Date), codec.FormatDate(b.Date))
	})
}
