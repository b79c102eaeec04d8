// Package filter parses and evaluates "field<op>value" expressions over
// transactions, such as "amount>100" or "desc~coffee".
package filter

import (
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starford/csvledger/internal/codec"
	"github.com/starford/csvledger/internal/models"
)

// Op is a comparison operator.
type Op string

const (
	OpEq          Op = "="
	OpNe          Op = "!="
	OpLt          Op = "<"
	OpLe          Op = "<="
	OpGt          Op = ">"
	OpGe          Op = ">="
	OpContains    Op = "~"
	OpNotContains Op = "!~"
)

var exprRe = regexp.MustCompile(`^(\w+)\s*(!=|<=|>=|!~|=|<|>|~)(.*)$`)

var aliases = map[string]string{"desc": models.ColDescription}

// Expr is one parsed filter.
type Expr struct {
	Field string
	Op    Op
	Value string
}

func (e Expr) String() string { return e.Field + string(e.Op) + e.Value }

// Parse parses a single expression.
func Parse(s string) (Expr, error) {
	m := exprRe.FindStringSubmatch(strings.TrimSpace(s))
	if m == nil {
		return Expr{}, fmt.Errorf("invalid filter %q", s)
	}
	field := strings.ToLower(m[1])
	if a, ok := aliases[field]; ok {
		field = a
	}
	e := Expr{Field: field, Op: Op(m[2]), Value: strings.TrimSpace(m[3])}
	if _, err := e.operand(e.Value); err != nil {
		return Expr{}, fmt.Errorf("filter %q: %w", s, err)
	}
	return e, nil
}

// ParseAll parses every expression.
func ParseAll(exprs []string) ([]Expr, error) {
	out := make([]Expr, 0, len(exprs))
	for _, s := range exprs {
		e, err := Parse(s)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, nil
}

// Getter returns the text of column col of t.
type Getter func(t models.Transaction, col string) string

// Match reports whether t satisfies every expression.
func Match(t models.Transaction, exprs ...Expr) bool {
	return MatchWith(codec.Field, t, exprs...)
}

// MatchWith is Match with columns read through get, for instance the Get
// method of a codec whose id column is not "id".
func MatchWith(get Getter, t models.Transaction, exprs ...Expr) bool {
	for _, e := range exprs {
		if !e.match(get, t) {
			return false
		}
	}
	return true
}

// Match reports whether t satisfies e. Values that cannot be compared
// (an empty date against a date bound, say) do not match.
func (e Expr) Match(t models.Transaction) bool {
	return e.match(codec.Field, t)
}

func (e Expr) match(get Getter, t models.Transaction) bool {
	raw := get(t, e.Field)
	if e.Op == OpContains || e.Op == OpNotContains {
		found := strings.Contains(strings.ToLower(raw), strings.ToLower(e.Value))
		return found == (e.Op == OpContains)
	}
	want, err := e.operand(e.Value)
	if err != nil {
		return false
	}
	got, err := e.operand(raw)
	if err != nil {
		return e.Op == OpNe
	}
	c := got.compare(want)
	switch e.Op {
	case OpEq:
		return c == 0
	case OpNe:
		return c != 0
	case OpLt:
		return c < 0
	case OpLe:
		return c <= 0
	case OpGt:
		return c > 0
	case OpGe:
		return c >= 0
	}
	return false
}

// operand converts s to the type of e.Field.
func (e Expr) operand(s string) (value, error) {
	if e.Op == OpContains || e.Op == OpNotContains {
		return value{text: strings.ToLower(s)}, nil
	}
	switch e.Field {
	case models.ColDate:
		d, err := codec.ParseDate(s)
		if err != nil {
			return value{}, err
		}
		if d.IsZero() {
			return value{}, errors.New("empty date")
		}
		return value{kind: kindDate, date: d}, nil
	case models.ColAmount:
		a, err := codec.ParseAmount(s)
		if err != nil {
			return value{}, err
		}
		if !a.Valid {
			return value{}, errors.New("empty amount")
		}
		return value{kind: kindNumber, num: a.Decimal}, nil
	case models.ColID:
		if n, err := strconv.ParseInt(s, 10, 64); err == nil {
			return value{kind: kindNumber, num: decimal.NewFromInt(n)}, nil
		}
	}
	return value{text: strings.ToLower(s)}, nil
}

type kind int

const (
	kindText kind = iota
	kindNumber
	kindDate
)

type value struct {
	kind kind
	num  decimal.Decimal
	date time.Time
	text string
}

func (v value) compare(o value) int {
	if v.kind != o.kind {
		// numeric and hash ids side by side
		return strings.Compare(v.String(), o.String())
	}
	switch v.kind {
	case kindNumber:
		return v.num.Cmp(o.num)
	case kindDate:
		return v.date.Compare(o.date)
	}
	return strings.Compare(v.text, o.text)
}

func (v value) String() string {
	switch v.kind {
	case kindNumber:
		return v.num.String()
	case kindDate:
		return codec.FormatDate(v.date)
	}
	return v.text
}
