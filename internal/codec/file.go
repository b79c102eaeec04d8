package codec

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"iter"
	"strings"

	"github.com/starford/csvledger/internal/apperr"
	"github.com/starford/csvledger/internal/models"
)

// Reader reads transactions from a CSV stream whose first row is a header.
type Reader struct {
	r     *csv.Reader
	codec *Codec
	name  string
}

// NewReader reads the header of r. name is used in error messages only.
func NewReader(r io.Reader, name, idColumn string) (*Reader, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, apperr.Formatf(name, 1, "missing header")
	}
	if err != nil {
		return nil, &apperr.FormatError{Path: name, Line: 1, Msg: "unreadable header", Err: err}
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}
	for i := range header {
		header[i] = strings.TrimSpace(header[i])
	}
	return &Reader{r: cr, codec: New(header, idColumn), name: name}, nil
}

// Columns returns the header of the stream.
func (r *Reader) Columns() []string { return r.codec.Columns() }

// Read returns the next transaction, or io.EOF.
func (r *Reader) Read() (models.Transaction, error) {
	for {
		values, err := r.r.Read()
		if err != nil {
			if errors.Is(err, io.EOF) {
				return models.Transaction{}, io.EOF
			}
			return models.Transaction{}, &apperr.FormatError{Path: r.name, Msg: "unreadable row", Err: err}
		}
		if len(values) == 1 && strings.TrimSpace(values[0]) == "" {
			continue
		}
		t, err := r.codec.Decode(values)
		if err != nil {
			line, _ := r.r.FieldPos(0)
			return models.Transaction{}, &apperr.FormatError{Path: r.name, Line: line, Msg: "invalid row", Err: err}
		}
		return t, nil
	}
}

// All iterates over the remaining transactions. Iteration stops after the
// first error.
func (r *Reader) All() iter.Seq2[models.Transaction, error] {
	return func(yield func(models.Transaction, error) bool) {
		for {
			t, err := r.Read()
			if errors.Is(err, io.EOF) {
				return
			}
			if !yield(t, err) || err != nil {
				return
			}
		}
	}
}

// ReadAll reads every transaction from r.
func ReadAll(r io.Reader, name, idColumn string) (columns []string, txs []models.Transaction, err error) {
	rd, err := NewReader(r, name, idColumn)
	if err != nil {
		return nil, nil, err
	}
	for t, err := range rd.All() {
		if err != nil {
			return nil, nil, err
		}
		txs = append(txs, t)
	}
	return rd.Columns(), txs, nil
}

// Writer writes transactions as CSV rows under a fixed header.
type Writer struct {
	w      *csv.Writer
	codec  *Codec
	header bool
}

// NewWriter returns a Writer for the given columns. The header is written
// with the first row, or by Flush when no row was written.
func NewWriter(w io.Writer, columns []string, idColumn string) *Writer {
	return &Writer{w: csv.NewWriter(w), codec: New(columns, idColumn)}
}

func (w *Writer) writeHeader() error {
	if w.header {
		return nil
	}
	w.header = true
	return w.w.Write(w.codec.Columns())
}

// Write renders one transaction.
func (w *Writer) Write(t models.Transaction) error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	values, err := w.codec.Encode(t)
	if err != nil {
		return fmt.Errorf("transaction %s: %w", t.ID, err)
	}
	return w.w.Write(values)
}

// Flush writes any buffered data to the underlying writer.
func (w *Writer) Flush() error {
	if err := w.writeHeader(); err != nil {
		return err
	}
	w.w.Flush()
	return w.w.Error()
}
