package state

import (
	"fmt"
	"sort"
)

// Label is a discrete named state ("in", "out", "open", "closed").
type Label string

// Sentinel labels.
//
// LabelDefer is only ever an interpreted value inside a table entry: the
// signal has no opinion about the composite state. LabelUnknown is the
// fall-through result of evaluation and never a valid move target.
const (
	LabelUnknown Label = "unknown"
	LabelDefer   Label = "defer"
)

// EntrySpec declares one contributing signal of a state table: the PV
// suffix it lives at and how each raw readback value is interpreted.
//
// Raw keys are normalized the same way readings are, so int and int64
// keys address the same channel value.
type EntrySpec struct {
	Name   string        `yaml:"name"`
	Suffix string        `yaml:"suffix"`
	Interp map[any]Label `yaml:"interp"`
}

// TableSpec is the declarative form of a state table, suitable for
// embedding in config or the catalog.
type TableSpec struct {
	Name    string      `yaml:"name"`
	Entries []EntrySpec `yaml:"entries"`
}

type tableEntry struct {
	name   string
	suffix string
	interp map[any]Label
}

// Table is a validated, ordered state-lookup table.
//
// Evaluation is a pure function over a snapshot of readings; a Table is
// immutable after construction and safe for concurrent use.
type Table struct {
	name    string
	entries []tableEntry
	labels  []Label
}

// NewTable validates a spec and builds a table.
//
// Entry order is preserved: it decides which signal's interpretation is
// accumulated first during evaluation. The enumerated move targets are
// the distinct interpreted labels across all entries, excluding the
// defer and unknown sentinels.
func NewTable(spec TableSpec) (*Table, error) {
	if len(spec.Entries) == 0 {
		return nil, fmt.Errorf("%w: %q", ErrEmptyTable, spec.Name)
	}

	t := &Table{name: spec.Name}
	seen := make(map[string]bool, len(spec.Entries))
	labelSet := make(map[Label]bool)

	for _, e := range spec.Entries {
		if e.Name == "" {
			return nil, fmt.Errorf("state: table %q: entry with empty name", spec.Name)
		}
		if seen[e.Name] {
			return nil, fmt.Errorf("%w: %q in table %q", ErrDuplicateEntry, e.Name, spec.Name)
		}
		seen[e.Name] = true
		if len(e.Interp) == 0 {
			return nil, fmt.Errorf("state: table %q: entry %q has no interpretations", spec.Name, e.Name)
		}

		interp := make(map[any]Label, len(e.Interp))
		for raw, label := range e.Interp {
			if label == "" {
				return nil, fmt.Errorf("state: table %q: entry %q maps %v to empty label", spec.Name, e.Name, raw)
			}
			interp[normalizeRaw(raw)] = label
			if label != LabelDefer && label != LabelUnknown {
				labelSet[label] = true
			}
		}
		t.entries = append(t.entries, tableEntry{name: e.Name, suffix: e.Suffix, interp: interp})
	}

	t.labels = make([]Label, 0, len(labelSet))
	for label := range labelSet {
		t.labels = append(t.labels, label)
	}
	sort.Slice(t.labels, func(i, j int) bool { return t.labels[i] < t.labels[j] })
	return t, nil
}

// Name returns the table's name.
func (t *Table) Name() string {
	return t.name
}

// Labels returns the enumerated move targets, sorted.
func (t *Table) Labels() []Label {
	out := make([]Label, len(t.labels))
	copy(out, t.labels)
	return out
}

// HasLabel reports whether label is an enumerated move target.
func (t *Table) HasLabel(label Label) bool {
	for _, l := range t.labels {
		if l == label {
			return true
		}
	}
	return false
}

// EntryNames returns entry names in declaration order.
func (t *Table) EntryNames() []string {
	out := make([]string, len(t.entries))
	for i, e := range t.entries {
		out[i] = e.name
	}
	return out
}

// Suffix returns the PV suffix for an entry.
func (t *Table) Suffix(entry string) (string, bool) {
	for _, e := range t.entries {
		if e.name == entry {
			return e.suffix, true
		}
	}
	return "", false
}

// Evaluate derives the composite label from one raw reading per entry.
//
// Rules, in order:
//   - a missing or unmapped raw value resolves the whole evaluation to
//     unknown immediately;
//   - entries interpreted as defer contribute nothing;
//   - the first non-deferred label is accumulated, and any later
//     non-deferred label that disagrees forces unknown;
//   - if every entry deferred, the result is unknown.
//
// Evaluation never fails: bad input is an unknown state, not an error.
func (t *Table) Evaluate(readings map[string]any) Label {
	var agreed Label
	found := false

	for _, e := range t.entries {
		raw, ok := readings[e.name]
		if !ok {
			return LabelUnknown
		}
		label, ok := e.interp[normalizeRaw(raw)]
		if !ok {
			return LabelUnknown
		}
		if label == LabelDefer {
			continue
		}
		if !found {
			agreed = label
			found = true
			continue
		}
		if label != agreed {
			return LabelUnknown
		}
	}

	if !found {
		return LabelUnknown
	}
	return agreed
}

// normalizeRaw collapses integer widths to int64 and float32 to float64
// so table keys match transport readings regardless of how either was
// written down.
func normalizeRaw(v any) any {
	switch n := v.(type) {
	case int:
		return int64(n)
	case int8:
		return int64(n)
	case int16:
		return int64(n)
	case int32:
		return int64(n)
	case uint:
		return int64(n)
	case uint8:
		return int64(n)
	case uint16:
		return int64(n)
	case uint32:
		return int64(n)
	case uint64:
		return int64(n)
	case float32:
		return float64(n)
	default:
		return v
	}
}
