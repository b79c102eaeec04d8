package models

import (
	"strings"
	"testing"

	"github.com/shopspring/decimal"
)

func TestOrderColumns(t *testing.T) {
	got := OrderColumns([]string{"memo", "amount", "id", "bank_ref", "date", "amount"})
	want := "id,date,amount,bank_ref,memo"
	if strings.Join(got, ",") != want {
		t.Errorf("OrderColumns = %v, want %s", got, want)
	}
}

func TestEqual(t *testing.T) {
	a := Transaction{ID: "1", Amount: decimal.NewNullDecimal(decimal.RequireFromString("40"))}
	b := Transaction{ID: "1", Amount: decimal.NewNullDecimal(decimal.RequireFromString("40.00")), Extra: map[string]string{}}
	if !a.Equal(b) {
		t.Error("40 and 40.00 should be equal, nil and empty Extra too")
	}
	b.Amount = decimal.NullDecimal{}
	if a.Equal(b) {
		t.Error("set and unset amounts must differ")
	}
}

func TestClone(t *testing.T) {
	a := Transaction{ID: "1", Extra: map[string]string{"memo": "x"}}
	c := a.Clone()
	c.Extra["memo"] = "y"
	if a.Extra["memo"] != "x" {
		t.Error("Clone must copy Extra")
	}
}
