// Package models defines the domain types for csvledger.
package models

import (
	"maps"
	"slices"
	"time"

	"github.com/shopspring/decimal"
)

// Canonical column names of a transactions file.
const (
	ColID          = "id"
	ColDate        = "date"
	ColDescription = "description"
	ColAmount      = "amount"
	ColAccount     = "account"
	ColCategory    = "category"
	ColNotes       = "notes"
)

// DefaultColumns is the header written by `init` and the canonical column order.
var DefaultColumns = []string{ColID, ColDate, ColDescription, ColAmount, ColAccount, ColCategory, ColNotes}

// Transaction is one record of a transactions file.
//
// Columns outside the canonical set are kept in Extra so that
// import-specific data survives a read/write cycle.
type Transaction struct {
	ID          string
	Date        time.Time // zero when the column is empty
	Description string
	Amount      decimal.NullDecimal // Valid is false when the column is empty
	Account     string
	Category    string
	Notes       string
	Extra       map[string]string
}

// Clone returns a deep copy of t.
func (t Transaction) Clone() Transaction {
	c := t
	if t.Extra != nil {
		c.Extra = maps.Clone(t.Extra)
	}
	return c
}

// Equal reports whether t and o hold the same values. Amounts are compared
// numerically and dates by calendar day.
func (t Transaction) Equal(o Transaction) bool {
	if t.ID != o.ID || t.Description != o.Description || t.Account != o.Account ||
		t.Category != o.Category || t.Notes != o.Notes {
		return false
	}
	if !t.Date.Equal(o.Date) {
		return false
	}
	if t.Amount.Valid != o.Amount.Valid {
		return false
	}
	if t.Amount.Valid && !t.Amount.Decimal.Equal(o.Amount.Decimal) {
		return false
	}
	return maps.Equal(nonNil(t.Extra), nonNil(o.Extra))
}

func nonNil(m map[string]string) map[string]string {
	if m == nil {
		return map[string]string{}
	}
	return m
}

// IsCanonical reports whether col is one of the canonical columns.
func IsCanonical(col string) bool {
	return slices.Contains(DefaultColumns, col)
}

// OrderColumns returns the canonical columns present in cols, in canonical
// order, followed by the remaining columns sorted alphabetically.
// Duplicates are removed.
func OrderColumns(cols []string) []string {
	seen := make(map[string]struct{}, len(cols))
	for _, c := range cols {
		seen[c] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for _, c := range DefaultColumns {
		if _, ok := seen[c]; ok {
			out = append(out, c)
			delete(seen, c)
		}
	}
	return append(out, slices.Sorted(maps.Keys(seen))...)
}
