// Package changeset loads add/update/delete/split operations from CSV or
// JSON files and folds them into a base set of transactions.
package changeset

import (
	"strings"

	validation "github.com/go-ozzo/ozzo-validation/v4"

	"github.com/starford/csvledger/internal/models"
)

// Kind is the type of a change operation.
type Kind string

const (
	KindAdd     Kind = "add"
	KindUpdate  Kind = "update"
	KindDelete  Kind = "delete"
	KindSplit   Kind = "split"
	KindUnknown Kind = "unknown"
)

// TypeColumn names the column holding the operation type.
const TypeColumn = "type"

// Operation is one row of a changeset.
type Operation struct {
	Kind Kind
	// Type is the type as written in the file, lower-cased.
	Type string
	// ID is the target record; always empty for adds.
	ID string
	// Fields holds the non-empty values of the row, without id and type.
	Fields map[string]string
	// Columns lists every column the row carried, empty or not.
	Columns []string
	// Line is the row number in its source: the CSV line or the 1-based
	// position in a JSON array.
	Line int
}

// Validate checks that operations targeting a record carry an id.
func (o Operation) Validate() error {
	needsID := o.Kind == KindUpdate || o.Kind == KindDelete || o.Kind == KindSplit
	return validation.ValidateStruct(&o,
		validation.Field(&o.Type, validation.Required.Error("missing 'type'")),
		validation.Field(&o.ID, validation.When(needsID, validation.Required.Error("required for "+o.Type))),
	)
}

func parseKind(typ string) Kind {
	switch k := Kind(typ); k {
	case KindAdd, KindUpdate, KindDelete, KindSplit:
		return k
	default:
		return KindUnknown
	}
}

// newOperation builds an operation from the raw values of one row.
func newOperation(row map[string]string, columns []string, line int) Operation {
	typ := strings.ToLower(strings.TrimSpace(row[TypeColumn]))
	op := Operation{
		Kind:   parseKind(typ),
		Type:   typ,
		ID:     strings.TrimSpace(row[models.ColID]),
		Fields: make(map[string]string),
		Line:   line,
	}
	for _, c := range columns {
		if c == TypeColumn {
			continue
		}
		op.Columns = append(op.Columns, c)
		if c == models.ColID {
			continue
		}
		if v := row[c]; v != "" {
			op.Fields[c] = v
		}
	}
	if op.Kind == KindAdd {
		op.ID = ""
	}
	return op
}
