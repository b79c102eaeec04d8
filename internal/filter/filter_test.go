package filter

import (
	"testing"

	"github.com/starford/csvledger/internal/codec"
	"github.com/starford/csvledger/internal/models"
)

func mk(id, date, desc, amount, category string) models.Transaction {
	t := models.Transaction{ID: id, Description: desc, Category: category}
	t.Date, _ = codec.ParseDate(date)
	t.Amount, _ = codec.ParseAmount(amount)
	return t
}

func TestParse(t *testing.T) {
	cases := []struct {
		in   string
		want Expr
	}{
		{"amount>=100", Expr{"amount", OpGe, "100"}},
		{"desc~Coffee", Expr{"description", OpContains, "Coffee"}},
		{"category != Food ", Expr{"category", OpNe, "Food"}},
		{"date<2025-02-01", Expr{"date", OpLt, "2025-02-01"}},
		{"notes!~todo", Expr{"notes", OpNotContains, "todo"}},
	}
	for _, c := range cases {
		got, err := Parse(c.in)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.in, err)
		}
		if got != c.want {
			t.Errorf("Parse(%q) = %+v, want %+v", c.in, got, c.want)
		}
	}
}

func TestParse_Invalid(t *testing.T) {
	for _, in := range []string{"", "amount", ">5", "amount>abc", "date=yesterday"} {
		if _, err := Parse(in); err == nil {
			t.Errorf("Parse(%q) should fail", in)
		}
	}
}

func TestMatch(t *testing.T) {
	rows := []models.Transaction{
		mk("1", "2025-01-05", "Coffee shop", "-3.5", "Food"),
		mk("2", "2025-01-20", "Salary", "2500", "Income"),
		mk("10", "2025-02-02", "Coffee beans", "-18", "Food"),
		mk("a1b2c3d4e5", "", "Adjustment", "", ""),
	}
	cases := []struct {
		exprs []string
		want  []string
	}{
		{[]string{"amount<0"}, []string{"1", "10"}},
		{[]string{"amount=-3.50"}, []string{"1"}},
		{[]string{"desc~coffee", "date>=2025-02-01"}, []string{"10"}},
		{[]string{"category=food"}, []string{"1", "10"}},
		{[]string{"id>2"}, []string{"10", "a1b2c3d4e5"}},
		{[]string{"description!~coffee"}, []string{"2", "a1b2c3d4e5"}},
		{[]string{"date<2025-01-10"}, []string{"1"}},
		{[]string{"amount!=2500"}, []string{"1", "10", "a1b2c3d4e5"}},
	}
	for _, c := range cases {
		exprs, err := ParseAll(c.exprs)
		if err != nil {
			t.Fatalf("ParseAll(%v): %v", c.exprs, err)
		}
		var got []string
		for _, r := range rows {
			if Match(r, exprs...) {
				got = append(got, r.ID)
			}
		}
		if len(got) != len(c.want) {
			t.Errorf("%v matched %v, want %v", c.exprs, got, c.want)
			continue
		}
		for i := range got {
			if got[i] != c.want[i] {
				t.Errorf("%v matched %v, want %v", c.exprs, got, c.want)
				break
			}
		}
	}
}

func TestMatchWith_CustomIDColumn(t *testing.T) {
	r := mk("7", "2025-01-05", "Coffee shop", "-3.5", "Food")
	r.Extra = map[string]string{models.ColID: "legacy-9"}
	get := codec.New([]string{"txn", "id", "date", "description", "amount"}, "txn").Get

	cases := []struct {
		expr string
		want bool
	}{
		{"txn=7", true},
		{"txn=8", false},
		{"id=legacy-9", true},
		{"amount<0", true},
	}
	for _, c := range cases {
		e, err := Parse(c.expr)
		if err != nil {
			t.Fatalf("Parse(%q): %v", c.expr, err)
		}
		if got := MatchWith(get, r, e); got != c.want {
			t.Errorf("MatchWith(%q) = %v, want %v", c.expr, got, c.want)
		}
	}
}
