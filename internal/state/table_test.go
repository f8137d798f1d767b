package state

import (
	"errors"
	"testing"
)

// valveSpec is the canonical two-switch table: each limit switch either
// defers or claims a position.
func valveSpec() TableSpec {
	return TableSpec{
		Name: "open_closed",
		Entries: []EntrySpec{
			{Name: "open", Suffix: ":OPN_SW", Interp: map[any]Label{0: LabelDefer, 1: "out"}},
			{Name: "closed", Suffix: ":CLS_SW", Interp: map[any]Label{0: LabelDefer, 1: "in"}},
		},
	}
}

func mustTable(t *testing.T, spec TableSpec) *Table {
	t.Helper()
	table, err := NewTable(spec)
	if err != nil {
		t.Fatalf("NewTable failed: %v", err)
	}
	return table
}

func TestEvaluateAgreedLabel(t *testing.T) {
	table := mustTable(t, valveSpec())

	tests := []struct {
		name     string
		readings map[string]any
		want     Label
	}{
		{"open switch claims out", map[string]any{"open": 1, "closed": 0}, "out"},
		{"closed switch claims in", map[string]any{"open": 0, "closed": 1}, "in"},
		{"both switches set disagree", map[string]any{"open": 1, "closed": 1}, LabelUnknown},
		{"all defer", map[string]any{"open": 0, "closed": 0}, LabelUnknown},
		{"unmapped raw value", map[string]any{"open": 7, "closed": 1}, LabelUnknown},
		{"missing reading", map[string]any{"open": 1}, LabelUnknown},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := table.Evaluate(tt.readings); got != tt.want {
				t.Errorf("Evaluate(%v) = %q, want %q", tt.readings, got, tt.want)
			}
		})
	}
}

func TestEvaluateAgreementAcrossEntries(t *testing.T) {
	// Three signals that can all claim the same label.
	table := mustTable(t, TableSpec{
		Name: "triple",
		Entries: []EntrySpec{
			{Name: "a", Suffix: ":A", Interp: map[any]Label{0: LabelDefer, 1: "in"}},
			{Name: "b", Suffix: ":B", Interp: map[any]Label{0: LabelDefer, 1: "in", 2: "out"}},
			{Name: "c", Suffix: ":C", Interp: map[any]Label{0: LabelDefer, 1: "in"}},
		},
	})

	if got := table.Evaluate(map[string]any{"a": 1, "b": 1, "c": 1}); got != "in" {
		t.Errorf("all agreeing: got %q, want in", got)
	}
	if got := table.Evaluate(map[string]any{"a": 1, "b": 2, "c": 0}); got != LabelUnknown {
		t.Errorf("disagreement must force unknown, got %q", got)
	}
	if got := table.Evaluate(map[string]any{"a": 0, "b": 1, "c": 0}); got != "in" {
		t.Errorf("single non-deferred entry should win, got %q", got)
	}
}

func TestEvaluateShortCircuitOnUnmapped(t *testing.T) {
	// The unmapped value sits before an entry that would disagree;
	// evaluation must stop at the unmapped value, not report the
	// later label.
	table := mustTable(t, valveSpec())
	if got := table.Evaluate(map[string]any{"open": 99, "closed": 1}); got != LabelUnknown {
		t.Errorf("unmapped raw must short-circuit to unknown, got %q", got)
	}
}

func TestEvaluateExplicitUnknownMapping(t *testing.T) {
	// A raw value mapped to "unknown" behaves as a non-deferred label:
	// alone it yields unknown, and it conflicts with anything else.
	table := mustTable(t, TableSpec{
		Name: "explicit",
		Entries: []EntrySpec{
			{Name: "sw", Suffix: ":SW", Interp: map[any]Label{0: LabelUnknown, 1: "in"}},
		},
	})
	if got := table.Evaluate(map[string]any{"sw": 0}); got != LabelUnknown {
		t.Errorf("got %q, want unknown", got)
	}
}

func TestEvaluateRawNormalization(t *testing.T) {
	table := mustTable(t, valveSpec())

	// Transport readings arrive as int64; table keys were written as
	// untyped ints.
	if got := table.Evaluate(map[string]any{"open": int64(1), "closed": int64(0)}); got != "out" {
		t.Errorf("int64 readings should match int keys, got %q", got)
	}
	if got := table.Evaluate(map[string]any{"open": int32(1), "closed": uint8(0)}); got != "out" {
		t.Errorf("mixed integer widths should match, got %q", got)
	}
}

func TestEvaluateStringRawValues(t *testing.T) {
	table := mustTable(t, TableSpec{
		Name: "enum",
		Entries: []EntrySpec{
			{Name: "sw", Suffix: ":STATE", Interp: map[any]Label{"OUT": "out", "IN": "in"}},
		},
	})
	if got := table.Evaluate(map[string]any{"sw": "OUT"}); got != "out" {
		t.Errorf("got %q, want out", got)
	}
	if got := table.Evaluate(map[string]any{"sw": "MOVING"}); got != LabelUnknown {
		t.Errorf("unmapped string should be unknown, got %q", got)
	}
}

func TestNewTableValidation(t *testing.T) {
	tests := []struct {
		name    string
		spec    TableSpec
		wantErr error
	}{
		{
			name:    "empty table",
			spec:    TableSpec{Name: "empty"},
			wantErr: ErrEmptyTable,
		},
		{
			name: "duplicate entry",
			spec: TableSpec{Name: "dup", Entries: []EntrySpec{
				{Name: "sw", Suffix: ":A", Interp: map[any]Label{0: "in"}},
				{Name: "sw", Suffix: ":B", Interp: map[any]Label{0: "out"}},
			}},
			wantErr: ErrDuplicateEntry,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewTable(tt.spec)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("expected %v, got %v", tt.wantErr, err)
			}
		})
	}

	t.Run("empty entry name", func(t *testing.T) {
		_, err := NewTable(TableSpec{Name: "t", Entries: []EntrySpec{
			{Name: "", Suffix: ":A", Interp: map[any]Label{0: "in"}},
		}})
		if err == nil {
			t.Error("expected error for empty entry name")
		}
	})

	t.Run("no interpretations", func(t *testing.T) {
		_, err := NewTable(TableSpec{Name: "t", Entries: []EntrySpec{
			{Name: "sw", Suffix: ":A"},
		}})
		if err == nil {
			t.Error("expected error for entry with no interpretations")
		}
	})
}

func TestTableLabels(t *testing.T) {
	table := mustTable(t, valveSpec())

	labels := table.Labels()
	if len(labels) != 2 || labels[0] != "in" || labels[1] != "out" {
		t.Errorf("expected [in out], got %v", labels)
	}

	if !table.HasLabel("in") || !table.HasLabel("out") {
		t.Error("enumerated labels should be reported by HasLabel")
	}
	if table.HasLabel(LabelDefer) {
		t.Error("defer must not be an enumerated move target")
	}
	if table.HasLabel(LabelUnknown) {
		t.Error("unknown must not be an enumerated move target")
	}
}

func TestTableEntryAccessors(t *testing.T) {
	table := mustTable(t, valveSpec())

	names := table.EntryNames()
	if len(names) != 2 || names[0] != "open" || names[1] != "closed" {
		t.Errorf("entry order not preserved: %v", names)
	}

	suffix, ok := table.Suffix("open")
	if !ok || suffix != ":OPN_SW" {
		t.Errorf("Suffix(open) = %q, %v", suffix, ok)
	}
	if _, ok := table.Suffix("nope"); ok {
		t.Error("Suffix should report missing entries")
	}
}
