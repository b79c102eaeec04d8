package changeset

import (
	"fmt"
	"log/slog"
	"maps"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/starford/csvledger/internal/apperr"
	"github.com/starford/csvledger/internal/checksum"
	"github.com/starford/csvledger/internal/codec"
	"github.com/starford/csvledger/internal/models"
)

// SplitTolerance is the largest accepted gap between the sum of split parts
// and the amount they replace.
var SplitTolerance = decimal.New(1, -6)

// Base is the record set a changeset is applied to.
type Base struct {
	Columns []string
	Records []models.Transaction
}

// Stats counts the effects of one Apply call.
type Stats struct {
	Added   int
	Updated int
	Deleted int
	Split   int // records replaced by split parts
	Skipped int
}

// Result is the merged record set.
type Result struct {
	// Records holds the surviving base records in base order followed by
	// the new records in creation order.
	Records []models.Transaction
	// Columns is the sorted union of the base columns and every changeset
	// column except the type column.
	Columns []string
	// Skipped holds the dangling references ignored in skip mode.
	Skipped []error
	Stats   Stats
}

// Engine folds changesets into a base record set.
type Engine struct {
	// SkipDangling turns dangling references into warnings. Split
	// mismatches are never skipped.
	SkipDangling bool
	Logger       *slog.Logger
}

// working is the mutable copy of the record set.
type working struct {
	order []string
	recs  map[string]models.Transaction
}

func (w *working) put(t models.Transaction) {
	if _, ok := w.recs[t.ID]; !ok {
		w.order = append(w.order, t.ID)
	}
	w.recs[t.ID] = t
}

func (w *working) records() []models.Transaction {
	out := make([]models.Transaction, 0, len(w.recs))
	seen := make(map[string]struct{}, len(w.recs))
	for _, id := range w.order {
		t, ok := w.recs[id]
		if !ok {
			continue
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, t)
	}
	return out
}

// Apply merges ops into base. Operations run in order, except splits, which
// run after every other operation. On error nothing is returned and base is
// left as it was.
func (e *Engine) Apply(base Base, ops []Operation) (*Result, error) {
	logger := e.Logger
	if logger == nil {
		logger = slog.Default()
	}

	w := &working{recs: make(map[string]models.Transaction, len(base.Records))}
	columns := make(map[string]struct{})
	for _, c := range base.Columns {
		columns[c] = struct{}{}
	}
	for _, r := range base.Records {
		w.put(r.Clone())
	}

	res := &Result{}
	dangling := func(err error) error {
		if !e.SkipDangling {
			return err
		}
		logger.Warn("changeset: skipping operation", slog.String("error", err.Error()))
		res.Skipped = append(res.Skipped, err)
		res.Stats.Skipped++
		return nil
	}

	var splitOrder []string
	splits := make(map[string][]Operation)

	for _, op := range ops {
		for _, c := range op.Columns {
			columns[c] = struct{}{}
		}
		switch op.Kind {
		case KindDelete:
			if _, ok := w.recs[op.ID]; !ok {
				if err := dangling(&apperr.DanglingReferenceError{Op: string(op.Kind), ID: op.ID, Line: op.Line}); err != nil {
					return nil, err
				}
				continue
			}
			delete(w.recs, op.ID)
			res.Stats.Deleted++

		case KindUpdate:
			cur, ok := w.recs[op.ID]
			if !ok {
				if err := dangling(&apperr.DanglingReferenceError{Op: string(op.Kind), ID: op.ID, Line: op.Line}); err != nil {
					return nil, err
				}
				continue
			}
			cur = cur.Clone()
			if err := codec.Apply(&cur, op.Fields); err != nil {
				return nil, opError(op, err)
			}
			w.recs[op.ID] = cur
			res.Stats.Updated++

		case KindAdd:
			var t models.Transaction
			if err := codec.Apply(&t, op.Fields); err != nil {
				return nil, opError(op, err)
			}
			t.ID = checksum.StableID(t)
			if _, exists := w.recs[t.ID]; exists {
				logger.Debug("changeset: add replaces record with the same id", slog.String("id", t.ID))
			}
			w.put(t)
			res.Stats.Added++

		case KindSplit:
			if _, ok := splits[op.ID]; !ok {
				splitOrder = append(splitOrder, op.ID)
			}
			splits[op.ID] = append(splits[op.ID], op)

		default:
			if err := dangling(&apperr.DanglingReferenceError{Op: op.Type, Line: op.Line}); err != nil {
				return nil, err
			}
		}
	}

	for _, id := range splitOrder {
		parts := splits[id]
		orig, ok := w.recs[id]
		if !ok {
			if err := dangling(&apperr.DanglingReferenceError{Op: string(KindSplit), ID: id, Line: parts[0].Line}); err != nil {
				return nil, err
			}
			continue
		}
		created, err := splitRecord(orig, parts)
		if err != nil {
			return nil, err
		}
		delete(w.recs, id)
		for _, t := range created {
			if _, exists := w.recs[t.ID]; exists {
				return nil, fmt.Errorf("split %s: part id %s collides with an existing record: %w",
					id, t.ID, apperr.ErrDuplicateID)
			}
		}
		for _, t := range created {
			w.put(t)
		}
		res.Stats.Split++
	}

	delete(columns, TypeColumn)
	res.Columns = slices.Sorted(maps.Keys(columns))
	res.Records = w.records()
	return res, nil
}

// splitRecord checks that the parts add up to orig and builds the
// replacement records. Part amounts are rounded to cents before they are
// summed.
func splitRecord(orig models.Transaction, parts []Operation) ([]models.Transaction, error) {
	original := decimal.Zero
	if orig.Amount.Valid {
		original = orig.Amount.Decimal
	}
	total := decimal.Zero
	for _, p := range parts {
		a, err := codec.ParseAmount(p.Fields[models.ColAmount])
		if err != nil {
			return nil, opError(p, err)
		}
		if a.Valid {
			total = total.Add(a.Decimal.Round(codec.AmountPlaces))
		}
	}
	if total.Sub(original).Abs().GreaterThan(SplitTolerance) {
		return nil, &apperr.SplitMismatchError{
			ID:       orig.ID,
			Original: amountText(original),
			Total:    amountText(total),
		}
	}

	created := make([]models.Transaction, 0, len(parts))
	seen := make(map[string]int, len(parts))
	for i, p := range parts {
		t := orig.Clone()
		if err := codec.Apply(&t, p.Fields); err != nil {
			return nil, opError(p, err)
		}
		if t.Amount.Valid {
			t.Amount.Decimal = t.Amount.Decimal.Round(codec.AmountPlaces)
		}
		t.ID = checksum.StableID(t)
		if j, dup := seen[t.ID]; dup {
			return nil, fmt.Errorf("split %s: parts %d and %d are identical (id %s): %w",
				orig.ID, j+1, i+1, t.ID, apperr.ErrDuplicateID)
		}
		seen[t.ID] = i
		created = append(created, t)
	}
	return created, nil
}

// amountText renders d with two fraction digits, or in full when it has
// sub-cent digits.
func amountText(d decimal.Decimal) string {
	if d.Equal(d.Round(codec.AmountPlaces)) {
		return d.StringFixed(codec.AmountPlaces)
	}
	return d.String()
}

func opError(op Operation, err error) error {
	return &apperr.FormatError{Line: op.Line, Msg: fmt.Sprintf("%s %s", op.Kind, op.ID), Err: err}
}
