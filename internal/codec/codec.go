package codec

import (
	"bytes"
	"encoding/csv"
	"fmt"
	"slices"
	"strings"

	"github.com/starford/csvledger/internal/apperr"
	"github.com/starford/csvledger/internal/models"
)

// Codec maps the columns of one header to Transaction fields.
//
// The column named idColumn feeds Transaction.ID. When idColumn is not "id",
// a column literally named "id" is treated as an extra column.
type Codec struct {
	columns  []string
	idColumn string
}

// New returns a Codec for the given header. An empty idColumn means "id".
func New(columns []string, idColumn string) *Codec {
	if idColumn == "" {
		idColumn = models.ColID
	}
	return &Codec{columns: slices.Clone(columns), idColumn: idColumn}
}

// Columns returns the header the codec was built from.
func (c *Codec) Columns() []string { return slices.Clone(c.columns) }

// IDColumn returns the name of the id column.
func (c *Codec) IDColumn() string { return c.idColumn }

// HasColumn reports whether col is part of the header.
func (c *Codec) HasColumn(col string) bool { return slices.Contains(c.columns, col) }

// canonical maps a header column to the name Field/Set understand.
func (c *Codec) canonical(col string) string {
	if col == c.idColumn {
		return models.ColID
	}
	if col == models.ColID {
		// shadowed by a custom id column; keep it as an extra value
		return "\x00" + col
	}
	return col
}

// Get returns the text of header column col for t.
func (c *Codec) Get(t models.Transaction, col string) string {
	k := c.canonical(col)
	if strings.HasPrefix(k, "\x00") {
		return t.Extra[col]
	}
	return Field(t, k)
}

// Set overwrites header column col of t.
func (c *Codec) Set(t *models.Transaction, col, value string) error {
	k := c.canonical(col)
	if strings.HasPrefix(k, "\x00") {
		k = col
		if value == "" {
			delete(t.Extra, k)
			return nil
		}
		if t.Extra == nil {
			t.Extra = make(map[string]string)
		}
		t.Extra[k] = value
		return nil
	}
	return Set(t, k, value)
}

// Decode builds a Transaction from the values of one row. Missing trailing
// values are read as empty.
func (c *Codec) Decode(values []string) (models.Transaction, error) {
	if len(values) > len(c.columns) {
		return models.Transaction{}, fmt.Errorf("row has %d values, header has %d columns", len(values), len(c.columns))
	}
	var t models.Transaction
	for i, col := range c.columns {
		if i >= len(values) {
			break
		}
		if err := c.Set(&t, col, values[i]); err != nil {
			return models.Transaction{}, fmt.Errorf("column %q: %w", col, err)
		}
	}
	return t, nil
}

// Encode renders t as values aligned with the header. Non-empty extra
// values whose column is not in the header are an error.
func (c *Codec) Encode(t models.Transaction) ([]string, error) {
	for k, v := range t.Extra {
		if v != "" && !c.HasColumn(k) {
			return nil, &apperr.FormatError{Msg: fmt.Sprintf("column %q is not in the header", k)}
		}
	}
	values := make([]string, len(c.columns))
	for i, col := range c.columns {
		values[i] = c.Get(t, col)
	}
	return values, nil
}

// EncodeLine renders values as a single CSV line terminated by "\n".
// Values holding a line break are rejected: every record must fit on one line
// for offset based reads.
func EncodeLine(values []string) ([]byte, error) {
	for _, v := range values {
		if strings.ContainsAny(v, "\r\n") {
			return nil, &apperr.FormatError{Msg: fmt.Sprintf("value %q contains a line break", v)}
		}
	}
	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	if err := w.Write(values); err != nil {
		return nil, err
	}
	w.Flush()
	if err := w.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

// DecodeLine splits one CSV line into values. A blank line yields nil.
func DecodeLine(line []byte) ([]string, error) {
	line = bytes.TrimRight(line, "\r\n")
	if len(bytes.TrimSpace(line)) == 0 {
		return nil, nil
	}
	r := csv.NewReader(bytes.NewReader(line))
	r.FieldsPerRecord = -1
	values, err := r.Read()
	if err != nil {
		return nil, err
	}
	return values, nil
}

// DecodeHeader splits a header line and strips a leading UTF-8 BOM.
func DecodeHeader(line []byte) ([]string, error) {
	line = bytes.TrimPrefix(line, []byte("\xef\xbb\xbf"))
	cols, err := DecodeLine(line)
	if err != nil {
		return nil, err
	}
	for i := range cols {
		cols[i] = strings.TrimSpace(cols[i])
	}
	return cols, nil
}
