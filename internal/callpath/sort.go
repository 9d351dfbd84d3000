package callpath

import (
	"cmp"
	"slices"
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/text/collate"
	"golang.org/x/text/language"
)

// Field selects what a column shows.
type Field int

const (
	FieldName Field = iota
	FieldExclusive
	FieldInclusive
	FieldCalls
	FieldSubroutines
)

var fieldNames = map[Field]string{
	FieldName:        "name",
	FieldExclusive:   "excl",
	FieldInclusive:   "incl",
	FieldCalls:       "calls",
	FieldSubroutines: "subrs",
}

func (f Field) String() string { return fieldNames[f] }

// Column is one sortable column: a field of a metric, or the name.
type Column struct {
	Metric int
	Field  Field
}

// Columns returns the standard column layout for the given metrics: the
// name, exclusive and inclusive values of each metric, then calls and
// subroutine calls of the first metric.
func Columns(metrics ...int) []Column {
	cols := []Column{{Field: FieldName}}
	for _, m := range metrics {
		cols = append(cols, Column{Metric: m, Field: FieldExclusive}, Column{Metric: m, Field: FieldInclusive})
	}
	if len(metrics) > 0 {
		cols = append(cols, Column{Metric: metrics[0], Field: FieldCalls}, Column{Metric: metrics[0], Field: FieldSubroutines})
	}
	return cols
}

// ParseColumn resolves a column selector, either a column number or a
// field name ("name", "excl", "incl", "calls", "subrs") of metric.
func ParseColumn(sel string, metric int, columns []Column) (int, error) {
	if i, err := strconv.Atoi(sel); err == nil {
		if i < 0 || i >= len(columns) {
			return 0, errors.Errorf("sort column %d out of range [0, %d)", i, len(columns))
		}
		return i, nil
	}
	var field Field = -1
	for f, name := range fieldNames {
		if strings.EqualFold(sel, name) {
			field = f
		}
	}
	switch strings.ToLower(sel) {
	case "exclusive":
		field = FieldExclusive
	case "inclusive":
		field = FieldInclusive
	}
	if field < 0 {
		return 0, errors.Errorf("unknown sort column %q (valid: name, excl, incl, calls, subrs)", sel)
	}
	fallback := -1
	for i, c := range columns {
		if c.Field != field {
			continue
		}
		if field == FieldName || c.Metric == metric {
			return i, nil
		}
		if fallback < 0 {
			fallback = i
		}
	}
	if fallback < 0 {
		return 0, errors.Errorf("no %s column", field)
	}
	return fallback, nil
}

// Value returns the column's value for a node. It is false for the name
// column, for synthetic nodes, and for nodes lacking the metric.
func (c Column) Value(n *Node) (float64, bool) {
	r, ok := n.Record()
	if !ok || c.Field == FieldName {
		return 0, false
	}
	v, ok := r.Value(c.Metric)
	if !ok {
		return 0, false
	}
	switch c.Field {
	case FieldExclusive:
		return v.Exclusive, true
	case FieldInclusive:
		return v.Inclusive, true
	case FieldCalls:
		return v.Calls, true
	case FieldSubroutines:
		return v.Subroutines, true
	}
	return 0, false
}

// SortKey orders siblings by one column.
type SortKey struct {
	Column    int
	Ascending bool
}

// Sort returns the current sort key.
func (t *Tree) Sort() SortKey { return t.sort }

// SetSort changes the sort key and resorts the tree.
func (t *Tree) SetSort(key SortKey) {
	t.sort = key
	t.Resort()
}

// Resort reorders the roots and the children of every expanded node in
// place. Nodes expanded later are sorted when they are expanded.
func (t *Tree) Resort() {
	if !t.built {
		return
	}
	compare := t.comparator()
	var resort func(nodes []*Node)
	resort = func(nodes []*Node) {
		sortNodes(nodes, compare)
		for _, n := range nodes {
			if n.expanded {
				resort(n.children)
			}
		}
	}
	resort(t.roots)
}

func (t *Tree) comparator() func(a, b *Node) int {
	return newComparator(t.sort, t.columns, t.collator())
}

func (t *Tree) collator() *collate.Collator {
	if t.coll == nil {
		t.coll = collate.New(language.English, collate.Numeric)
	}
	return t.coll
}

// newComparator orders nodes by key.Column of columns. Names compare with
// digit runs taken numerically ("f2" before "f10"). Missing values sort
// last whichever the direction.
func newComparator(key SortKey, columns []Column, coll *collate.Collator) func(a, b *Node) int {
	col := Column{Field: FieldName}
	if key.Column > 0 && key.Column < len(columns) {
		col = columns[key.Column]
	}
	sign := 1
	if !key.Ascending {
		sign = -1
	}
	if col.Field == FieldName {
		return func(a, b *Node) int {
			return sign * coll.CompareString(a.String(), b.String())
		}
	}
	return func(a, b *Node) int {
		va, oka := col.Value(a)
		vb, okb := col.Value(b)
		switch {
		case !oka && !okb:
			return 0
		case !oka:
			return 1
		case !okb:
			return -1
		}
		return sign * cmp.Compare(va, vb)
	}
}

// sortNodes orders nodes by compare. Ties fall back to index order, so a
// resort does not depend on the order left by the previous sort key.
func sortNodes(nodes []*Node, compare func(a, b *Node) int) {
	slices.SortFunc(nodes, func(a, b *Node) int {
		if c := compare(a, b); c != 0 {
			return c
		}
		return cmp.Compare(a.seq, b.seq)
	})
}
