// Package codec converts transactions to and from flat CSV rows and owns the
// canonical text form of dates and amounts.
package codec

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starford/csvledger/internal/models"
)

// DateFormat is the canonical date layout written to files.
const DateFormat = "2006-01-02"

// readDateFormat is permissive: single digit month and day are accepted.
const readDateFormat = "2006-1-2"

// FormatDate renders d as YYYY-MM-DD, or "" for the zero time.
func FormatDate(d time.Time) string {
	if d.IsZero() {
		return ""
	}
	return d.Format(DateFormat)
}

// ParseDate parses a date column. An empty string yields the zero time.
func ParseDate(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return time.Time{}, nil
	}
	d, err := time.Parse(readDateFormat, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid date %q: %w", s, err)
	}
	return d, nil
}

// AmountPlaces is the number of fraction digits amounts are stored with.
const AmountPlaces = 2

// FormatAmount renders a with exactly two fraction digits, or "" when unset.
func FormatAmount(a decimal.NullDecimal) string {
	if !a.Valid {
		return ""
	}
	return a.Decimal.StringFixed(AmountPlaces)
}

// ParseAmount parses an amount column. An empty string yields an unset amount.
func ParseAmount(s string) (decimal.NullDecimal, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.NullDecimal{}, nil
	}
	d, err := decimal.NewFromString(s)
	if err != nil {
		return decimal.NullDecimal{}, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	return decimal.NewNullDecimal(d), nil
}

// Field returns the canonical text of column col of t. Columns outside the
// canonical set are read from t.Extra.
func Field(t models.Transaction, col string) string {
	switch col {
	case models.ColID:
		return t.ID
	case models.ColDate:
		return FormatDate(t.Date)
	case models.ColDescription:
		return t.Description
	case models.ColAmount:
		return FormatAmount(t.Amount)
	case models.ColAccount:
		return t.Account
	case models.ColCategory:
		return t.Category
	case models.ColNotes:
		return t.Notes
	default:
		return t.Extra[col]
	}
}

// Set overwrites column col of t with value. An empty value clears the column.
func Set(t *models.Transaction, col, value string) error {
	switch col {
	case models.ColID:
		t.ID = value
	case models.ColDate:
		d, err := ParseDate(value)
		if err != nil {
			return err
		}
		t.Date = d
	case models.ColDescription:
		t.Description = value
	case models.ColAmount:
		a, err := ParseAmount(value)
		if err != nil {
			return err
		}
		t.Amount = a
	case models.ColAccount:
		t.Account = value
	case models.ColCategory:
		t.Category = value
	case models.ColNotes:
		t.Notes = value
	default:
		if value == "" {
			delete(t.Extra, col)
			return nil
		}
		if t.Extra == nil {
			t.Extra = make(map[string]string)
		}
		t.Extra[col] = value
	}
	return nil
}

// Apply overlays every entry of fields on t, in no particular order.
func Apply(t *models.Transaction, fields map[string]string) error {
	for col, v := range fields {
		if err := Set(t, col, v); err != nil {
			return fmt.Errorf("column %q: %w", col, err)
		}
	}
	return nil
}

// Columns returns the columns that carry a value in t: the canonical ones
// that are set plus every extra column.
func Columns(t models.Transaction) []string {
	var cols []string
	for _, c := range models.DefaultColumns {
		if Field(t, c) != "" {
			cols = append(cols, c)
		}
	}
	for c := range t.Extra {
		cols = append(cols, c)
	}
	return cols
}
