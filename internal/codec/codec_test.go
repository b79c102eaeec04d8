package codec

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/starford/csvledger/internal/apperr"
	"github.com/starford/csvledger/internal/models"
)

func TestParseAmount_Canonical(t *testing.T) {
	cases := map[string]string{
		"40":      "40.00",
		"40.5":    "40.50",
		"-12.344": "-12.34",
		" 7.1 ":   "7.10",
		"":        "",
	}
	for in, want := range cases {
		a, err := ParseAmount(in)
		if err != nil {
			t.Fatalf("ParseAmount(%q): %v", in, err)
		}
		if got := FormatAmount(a); got != want {
			t.Errorf("FormatAmount(ParseAmount(%q)) = %q, want %q", in, got, want)
		}
	}
	if _, err := ParseAmount("ten"); err == nil {
		t.Error("expected error for non-numeric amount")
	}
}

func TestParseDate_Permissive(t *testing.T) {
	d, err := ParseDate("2025-3-7")
	if err != nil {
		t.Fatalf("ParseDate: %v", err)
	}
	if got := FormatDate(d); got != "2025-03-07" {
		t.Errorf("FormatDate = %q", got)
	}
	d, err = ParseDate("")
	if err != nil || !d.IsZero() {
		t.Errorf("empty date = %v, %v", d, err)
	}
	if _, err := ParseDate("07/03/2025"); err == nil {
		t.Error("expected error for foreign date layout")
	}
}

func TestSet_ExtraColumns(t *testing.T) {
	var tx models.Transaction
	if err := Set(&tx, "bank_ref", "ABC"); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if got := Field(tx, "bank_ref"); got != "ABC" {
		t.Errorf("Field = %q", got)
	}
	if err := Set(&tx, "bank_ref", ""); err != nil {
		t.Fatalf("Set: %v", err)
	}
	if _, ok := tx.Extra["bank_ref"]; ok {
		t.Error("empty value should remove the extra column")
	}
}

func TestCodec_DecodeEncode(t *testing.T) {
	cols := []string{"id", "date", "description", "amount", "account", "category", "notes", "memo"}
	c := New(cols, "")
	tx, err := c.Decode([]string{"3", "2025-01-05", "Coffee", "3.5", "Checking", "", "", "office"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tx.ID != "3" || tx.Description != "Coffee" || tx.Extra["memo"] != "office" {
		t.Errorf("unexpected transaction: %+v", tx)
	}
	values, err := c.Encode(tx)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	want := []string{"3", "2025-01-05", "Coffee", "3.50", "Checking", "", "", "office"}
	if strings.Join(values, ",") != strings.Join(want, ",") {
		t.Errorf("Encode = %v, want %v", values, want)
	}
}

func TestCodec_ShortRowIsPadded(t *testing.T) {
	c := New(models.DefaultColumns, "")
	tx, err := c.Decode([]string{"1", "2025-01-01"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tx.Amount.Valid || tx.Account != "" {
		t.Errorf("missing values should be empty: %+v", tx)
	}
}

func TestCodec_LongRowFails(t *testing.T) {
	c := New([]string{"id", "date"}, "")
	if _, err := c.Decode([]string{"1", "2025-01-01", "extra"}); err == nil {
		t.Error("expected error for row longer than header")
	}
}

func TestCodec_EncodeUnknownExtra(t *testing.T) {
	c := New(models.DefaultColumns, "")
	tx := models.Transaction{ID: "1", Extra: map[string]string{"memo": "x"}}
	_, err := c.Encode(tx)
	if !errors.Is(err, apperr.ErrFormat) {
		t.Errorf("err = %v, want ErrFormat", err)
	}
}

func TestCodec_CustomIDColumn(t *testing.T) {
	c := New([]string{"txn", "id", "amount"}, "txn")
	tx, err := c.Decode([]string{"T-1", "legacy", "9"})
	if err != nil {
		t.Fatalf("Decode: %v", err)
	}
	if tx.ID != "T-1" {
		t.Errorf("ID = %q, want T-1", tx.ID)
	}
	if tx.Extra["id"] != "legacy" {
		t.Errorf("shadowed id column = %q", tx.Extra["id"])
	}
	values, err := c.Encode(tx)
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	if strings.Join(values, "|") != "T-1|legacy|9.00" {
		t.Errorf("Encode = %v", values)
	}
}

func TestEncodeLine_Quoting(t *testing.T) {
	line, err := EncodeLine([]string{"1", "Lunch, with \"team\"", "12.00"})
	if err != nil {
		t.Fatalf("EncodeLine: %v", err)
	}
	if want := "1,\"Lunch, with \"\"team\"\"\",12.00\n"; string(line) != want {
		t.Errorf("EncodeLine = %q, want %q", line, want)
	}
	values, err := DecodeLine(line)
	if err != nil {
		t.Fatalf("DecodeLine: %v", err)
	}
	if values[1] != "Lunch, with \"team\"" {
		t.Errorf("DecodeLine = %v", values)
	}
}

func TestEncodeLine_RejectsNewline(t *testing.T) {
	_, err := EncodeLine([]string{"1", "two\nlines"})
	if !errors.Is(err, apperr.ErrFormat) {
		t.Errorf("err = %v, want ErrFormat", err)
	}
}

func TestDecodeLine_Blank(t *testing.T) {
	values, err := DecodeLine([]byte("  \r\n"))
	if err != nil || values != nil {
		t.Errorf("DecodeLine(blank) = %v, %v", values, err)
	}
}

func TestDecodeHeader_BOM(t *testing.T) {
	cols, err := DecodeHeader([]byte("\xef\xbb\xbfid, date ,amount\n"))
	if err != nil {
		t.Fatalf("DecodeHeader: %v", err)
	}
	if strings.Join(cols, ",") != "id,date,amount" {
		t.Errorf("cols = %q", cols)
	}
}

func TestReaderWriter_RoundTrip(t *testing.T) {
	in := []models.Transaction{
		{
			ID:          "1",
			Date:        time.Date(2025, 1, 2, 0, 0, 0, 0, time.UTC),
			Description: "Salary",
			Amount:      decimal.NewNullDecimal(decimal.RequireFromString("2500")),
			Account:     "Checking",
			Category:    "Income",
		},
		{ID: "2", Description: "No date or amount", Account: "Cash", Notes: "a, b"},
	}
	var sb strings.Builder
	w := NewWriter(&sb, models.DefaultColumns, "")
	for _, tx := range in {
		if err := w.Write(tx); err != nil {
			t.Fatalf("Write: %v", err)
		}
	}
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}

	cols, out, err := ReadAll(strings.NewReader(sb.String()), "mem", "")
	if err != nil {
		t.Fatalf("ReadAll: %v", err)
	}
	if strings.Join(cols, ",") != strings.Join(models.DefaultColumns, ",") {
		t.Errorf("columns = %v", cols)
	}
	if len(out) != len(in) {
		t.Fatalf("got %d records, want %d", len(out), len(in))
	}
	for i := range in {
		if !in[i].Equal(out[i]) {
			t.Errorf("record %d: got %+v, want %+v", i, out[i], in[i])
		}
	}
}

func TestWriter_EmptyWritesHeader(t *testing.T) {
	var sb strings.Builder
	w := NewWriter(&sb, []string{"id", "amount"}, "")
	if err := w.Flush(); err != nil {
		t.Fatalf("Flush: %v", err)
	}
	if sb.String() != "id,amount\n" {
		t.Errorf("output = %q", sb.String())
	}
}

func TestReader_Errors(t *testing.T) {
	if _, err := NewReader(strings.NewReader(""), "empty.csv", ""); !errors.Is(err, apperr.ErrFormat) {
		t.Errorf("empty input: err = %v", err)
	}
	_, _, err := ReadAll(strings.NewReader("id,amount\n1,abc\n"), "bad.csv", "")
	var fe *apperr.FormatError
	if !errors.As(err, &fe) {
		t.Fatalf("err = %v, want FormatError", err)
	}
	if fe.Line != 2 {
		t.Errorf("line = %d, want 2", fe.Line)
	}
}
