// Package ledger implements the transaction workflows on top of the record
// store, the changeset engine and the applied-changeset journal.
package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"slices"
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/csvledger/internal/apperr"
	"github.com/starford/csvledger/internal/codec"
	"github.com/starford/csvledger/internal/filter"
	"github.com/starford/csvledger/internal/journal"
	"github.com/starford/csvledger/internal/models"
	"github.com/starford/csvledger/internal/store"
	"github.com/starford/csvledger/internal/watch"
)

// Options locate the ledger's data file.
type Options struct {
	DataFile string
	IDColumn string
}

// Service coordinates the store, the changeset engine and the journal.
type Service struct {
	dataFile string
	idColumn string
	journal  journal.Recorder
	logger   *slog.Logger
}

// NewService creates a ledger service. j may be nil to disable the journal.
func NewService(opts Options, j journal.Recorder, logger *slog.Logger) *Service {
	if opts.IDColumn == "" {
		opts.IDColumn = models.ColID
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{dataFile: opts.DataFile, idColumn: opts.IDColumn, journal: j, logger: logger}
}

// DataFile returns the path of the transactions file.
func (s *Service) DataFile() string { return s.dataFile }

func (s *Service) open(path string) (*store.Store, error) {
	return store.Open(path, store.WithIDColumn(s.idColumn), store.WithLogger(s.logger))
}

// defaultColumns is the canonical header with the configured id column.
func (s *Service) defaultColumns() []string {
	cols := slices.Clone(models.DefaultColumns)
	cols[0] = s.idColumn
	return cols
}

// Init creates the data file with the default header and builds its index.
func (s *Service) Init(_ context.Context) error {
	if err := store.Create(s.dataFile, s.defaultColumns()); err != nil {
		return err
	}
	_, err := s.open(s.dataFile)
	return err
}

// RebuildIndex rescans the data file and rewrites its index.
func (s *Service) RebuildIndex(_ context.Context) (int, error) {
	st, err := s.open(s.dataFile)
	if err != nil {
		return 0, err
	}
	if err := st.RebuildIndex(); err != nil {
		return 0, err
	}
	return st.Len(), nil
}

// Selector picks transactions by id, by filter expressions or both.
type Selector struct {
	IDs     []string
	Filters []filter.Expr
}

func (sel Selector) empty() bool { return len(sel.IDs) == 0 && len(sel.Filters) == 0 }

// List returns the header of the data file and the selected transactions.
// An empty selector lists everything.
func (s *Service) List(_ context.Context, sel Selector) ([]string, []models.Transaction, error) {
	st, err := s.open(s.dataFile)
	if err != nil {
		return nil, nil, err
	}
	recs, err := s.selectRecords(st, sel)
	if err != nil {
		return nil, nil, err
	}
	return st.Fieldnames(), recs, nil
}

func (s *Service) selectRecords(st *store.Store, sel Selector) ([]models.Transaction, error) {
	get := codec.New(st.Fieldnames(), s.idColumn).Get
	var out []models.Transaction
	if len(sel.IDs) > 0 {
		recs, err := st.ReadMany(sel.IDs...)
		if err != nil {
			return nil, err
		}
		for _, r := range recs {
			if filter.MatchWith(get, r, sel.Filters...) {
				out = append(out, r)
			}
		}
		return out, nil
	}
	for r, err := range st.ReadAll() {
		if err != nil {
			return nil, err
		}
		if filter.MatchWith(get, r, sel.Filters...) {
			out = append(out, r)
		}
	}
	return out, nil
}

// Append validates records and appends them. Records without an id get the
// next incremental id.
func (s *Service) Append(_ context.Context, recs ...models.Transaction) ([]models.Transaction, error) {
	for i, r := range recs {
		if err := validateRecord(r); err != nil {
			return nil, fmt.Errorf("ledger: record %d: %w", i+1, err)
		}
	}
	st, err := s.open(s.dataFile)
	if err != nil {
		return nil, err
	}
	if err := st.AddColumns(extraColumns(recs)...); err != nil {
		return nil, err
	}
	return st.Append(recs...)
}

// Edit sets fields on the selected transactions. Unlike a changeset update,
// an empty value clears the column. Selecting an unknown id is an error and
// leaves the file untouched.
func (s *Service) Edit(_ context.Context, sel Selector, fields map[string]string) ([]models.Transaction, error) {
	if sel.empty() {
		return nil, fmt.Errorf("ledger: edit: no transactions selected")
	}
	if len(fields) == 0 {
		return nil, fmt.Errorf("ledger: edit: no fields given")
	}
	if _, ok := fields[s.idColumn]; ok {
		return nil, fmt.Errorf("ledger: edit: the %s column cannot be edited", s.idColumn)
	}
	st, err := s.open(s.dataFile)
	if err != nil {
		return nil, err
	}
	if err := s.requireIDs(st, sel.IDs); err != nil {
		return nil, err
	}
	targets, err := s.selectRecords(st, sel)
	if err != nil {
		return nil, err
	}
	if len(targets) == 0 {
		return nil, nil
	}

	var newCols []string
	for col, v := range fields {
		if v != "" && !slices.Contains(st.Fieldnames(), col) {
			newCols = append(newCols, col)
		}
	}
	slices.Sort(newCols)
	if err := st.AddColumns(newCols...); err != nil {
		return nil, err
	}
	updates := make(map[string]map[string]string, len(targets))
	ids := make([]string, 0, len(targets))
	for _, t := range targets {
		updates[t.ID] = onlyKnown(fields, st.Fieldnames())
		ids = append(ids, t.ID)
	}
	if _, err := st.BatchUpdate(updates); err != nil {
		return nil, err
	}
	return st.ReadMany(ids...)
}

// Delete removes the transactions with the given ids. Unknown ids are an
// error and nothing is removed.
func (s *Service) Delete(_ context.Context, ids ...string) (int, error) {
	st, err := s.open(s.dataFile)
	if err != nil {
		return 0, err
	}
	if err := s.requireIDs(st, ids); err != nil {
		return 0, err
	}
	removed, err := st.BatchDelete(ids...)
	return len(removed), err
}

// Watch re-indexes the data file whenever another program changes it.
func (s *Service) Watch(ctx context.Context, cb watch.Callback) error {
	st, err := s.open(s.dataFile)
	if err != nil {
		return err
	}
	return watch.Run(ctx, st, s.dataFile, s.logger, cb)
}

// History lists the changesets recorded in the journal.
func (s *Service) History(_ context.Context) ([]journal.Entry, error) {
	if s.journal == nil {
		return nil, nil
	}
	return s.journal.List()
}

func (s *Service) requireIDs(st *store.Store, ids []string) error {
	index := st.Index()
	var missing []string
	for _, id := range ids {
		if _, ok := index[id]; !ok {
			missing = append(missing, id)
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("ledger: id %s: %w", strings.Join(missing, ", "), apperr.ErrNotFound)
	}
	return nil
}

// onlyKnown drops empty values for columns the header does not have: there
// is nothing to clear.
func onlyKnown(fields map[string]string, header []string) map[string]string {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		if v == "" && !slices.Contains(header, k) {
			continue
		}
		out[k] = v
	}
	return out
}

// extraColumns returns the sorted extra columns used by recs.
func extraColumns(recs []models.Transaction) []string {
	set := make(map[string]struct{})
	for _, r := range recs {
		for k, v := range r.Extra {
			if v != "" {
				set[k] = struct{}{}
			}
		}
	}
	out := make([]string, 0, len(set))
	for k := range set {
		out = append(out, k)
	}
	slices.Sort(out)
	return out
}

// validateRecord checks the fields every stored transaction needs.
func validateRecord(t models.Transaction) error {
	return validation.ValidateStruct(&t,
		validation.Field(&t.Date, validation.Required),
		validation.Field(&t.Description, validation.Required),
		validation.Field(&t.Amount, validation.By(func(any) error {
			if !t.Amount.Valid {
				return validation.NewError("validation_required", "cannot be blank")
			}
			return nil
		})),
		validation.Field(&t.Account, validation.Required),
	)
}
