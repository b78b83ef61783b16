package mapping

import "testing"

func TestParse(t *testing.T) {
	source := "01p8W00000EnM1rQAC\tOrderController\n" +
		"01p000000000001,InvoiceService\n" +
		"01p000000000002 QuoteHelper\n" +
		"# a comment\n" +
		"\n" +
		"justanidwithnoname\n"

	table := Parse(source)

	tests := []struct {
		id       string
		wantName string
		wantOK   bool
	}{
		{"01p8W00000EnM1rQAC", "OrderController", true},
		// Truncated prefix of an 18-character id.
		{"01p8W00000EnM1r", "OrderController", true},
		{"01p000000000001", "InvoiceService", true},
		{"01p000000000002", "QuoteHelper", true},
		{"justanidwithnoname", "", false},
		{"absent", "", false},
		{"", "", false},
	}

	for _, tt := range tests {
		name, ok := table.Resolve(tt.id)
		if ok != tt.wantOK || name != tt.wantName {
			t.Errorf("Resolve(%q) = (%q, %v), want (%q, %v)", tt.id, name, ok, tt.wantName, tt.wantOK)
		}
	}
}

func TestResolve_PrefixOfQuery(t *testing.T) {
	// The table holds a 15-character id; the query arrives untruncated.
	table := Parse("01p000000000001 MyController")
	name, ok := table.Resolve("01p000000000001QAC")
	if !ok || name != "MyController" {
		t.Errorf("Resolve() = (%q, %v), want (MyController, true)", name, ok)
	}
}

func TestResolve_NilTable(t *testing.T) {
	var table *Table
	if _, ok := table.Resolve("01p000000000001"); ok {
		t.Error("nil table resolved an id")
	}
	if got := table.Len(); got != 0 {
		t.Errorf("Len() = %d, want 0", got)
	}
}

func TestSwapper(t *testing.T) {
	s := NewSwapper("01p000000000001 First")
	if name, _ := s.Current().Resolve("01p000000000001"); name != "First" {
		t.Fatalf("initial table resolve = %q, want First", name)
	}

	s.Replace("01p000000000001 Second")
	if name, _ := s.Current().Resolve("01p000000000001"); name != "Second" {
		t.Errorf("swapped table resolve = %q, want Second", name)
	}
}
