package rules

import (
	"maps"
	"slices"
	"strings"
)

// RootRule is the rule every line is validated against.
const RootRule = "all"

// Table holds the compiled rules and value sets of a document.
type Table struct {
	rules map[string]Node
	sets  map[string]map[string]struct{}
}

func newTable() *Table {
	return &Table{
		rules: make(map[string]Node),
		sets:  make(map[string]map[string]struct{}),
	}
}

// Rule returns the compiled rule for key.
func (t *Table) Rule(key string) (Node, bool) {
	n, ok := t.rules[key]
	return n, ok
}

// All returns the root rule.
func (t *Table) All() Node {
	return t.rules[RootRule]
}

// Contains reports whether value is a member of the named set.
func (t *Table) Contains(set, value string) bool {
	_, ok := t.sets[set][value]
	return ok
}

// Keys returns every rule and set key in sorted order.
func (t *Table) Keys() []string {
	keys := slices.Collect(maps.Keys(t.rules))
	keys = slices.AppendSeq(keys, maps.Keys(t.sets))
	slices.Sort(keys)
	return keys
}

// String renders one "key: rule" line per key.
func (t *Table) String() string {
	var b strings.Builder
	for _, key := range t.Keys() {
		b.WriteString(key)
		b.WriteString(": ")
		if n, ok := t.rules[key]; ok {
			b.WriteString(n.String())
		} else {
			values := slices.Sorted(maps.Keys(t.sets[key]))
			b.WriteString("{" + strings.Join(values, ", ") + "}")
		}
		b.WriteByte('\n')
	}
	return b.String()
}
