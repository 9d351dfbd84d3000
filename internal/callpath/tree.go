package callpath

import (
	"golang.org/x/text/collate"

	"github.com/jerrinot/pp-query/internal/pathname"
	"github.com/jerrinot/pp-query/internal/profile"
)

// NodeKind says whether a node carries a measurement. It is either Actual
// or Synthetic.
type NodeKind interface {
	isNodeKind()
}

// Actual is a node backed by a record for its exact path.
type Actual struct {
	Record *profile.Record
}

// Synthetic is a node with no record of its own: some deeper path was
// recorded but this intermediate one was not.
type Synthetic struct {
	Name string
}

func (Actual) isNodeKind()    {}
func (Synthetic) isNodeKind() {}

// Node is one node of a thread's call tree.
type Node struct {
	key      PathKey
	kind     NodeKind
	parent   *Node
	tree     *Tree
	children []*Node
	expanded bool
	seq      int // position among its siblings in index order
}

func (n *Node) Key() PathKey    { return n.key }
func (n *Node) Kind() NodeKind  { return n.kind }
func (n *Node) Parent() *Node   { return n.parent }
func (n *Node) Expanded() bool  { return n.expanded }
func (n *Node) Depth() int      { return n.key.Len() }
func (n *Node) Synthetic() bool { _, ok := n.kind.(Synthetic); return ok }

// Record returns the node's record; false for synthetic nodes.
func (n *Node) Record() (*profile.Record, bool) {
	if a, ok := n.kind.(Actual); ok {
		return a.Record, true
	}
	return nil, false
}

// Name is the raw last segment of the node's path.
func (n *Node) Name() string { return n.key.Last() }

// String is the display name, without throttle or source annotations.
func (n *Node) String() string { return pathname.StripAnnotations(n.key.Last()) }

// Children returns the node's children, computing them on first use. The
// same slice is returned on every call until the tree is resorted, which
// reorders it in place.
func (n *Node) Children() []*Node {
	if !n.expanded {
		n.children = n.tree.expand(n)
		n.expanded = true
	}
	return n.children
}

// Tree is the call tree of one thread. It is built lazily: a node's
// children are materialized the first time they are asked for.
type Tree struct {
	ix      *ThreadIndex
	columns []Column
	sort    SortKey
	coll    *collate.Collator
	roots   []*Node
	built   bool
}

// NewTree returns an unexpanded tree over ix, sorted by name ascending.
// columns describes the sortable columns; column 0 is always the name.
func NewTree(ix *ThreadIndex, columns []Column) *Tree {
	if len(columns) == 0 || columns[0].Field != FieldName {
		columns = append([]Column{{Field: FieldName}}, columns...)
	}
	return &Tree{ix: ix, columns: columns, sort: SortKey{Column: 0, Ascending: true}}
}

func (t *Tree) Index() *ThreadIndex { return t.ix }
func (t *Tree) Columns() []Column   { return t.columns }

// Roots returns one node per root key of the thread.
func (t *Tree) Roots() []*Node {
	if !t.built {
		t.built = true
		for i, k := range t.ix.RootKeys() {
			t.roots = append(t.roots, t.newNode(k, nil, t.recordFor(k), i))
		}
		sortNodes(t.roots, t.comparator())
	}
	return t.roots
}

func (t *Tree) recordFor(k PathKey) *profile.Record {
	r, _ := t.ix.Lookup(k)
	return r
}

func (t *Tree) newNode(k PathKey, parent *Node, r *profile.Record, seq int) *Node {
	n := &Node{key: k, parent: parent, tree: t, seq: seq}
	if r != nil {
		n.kind = Actual{Record: r}
	} else {
		n.kind = Synthetic{Name: k.Last()}
	}
	return n
}

func (t *Tree) expand(n *Node) []*Node {
	keys := t.ix.ChildKeys(n.key)
	children := make([]*Node, 0, len(keys))
	for i, ck := range keys {
		children = append(children, t.newNode(ck.Key, n, ck.Record, i))
	}
	sortNodes(children, t.comparator())
	return children
}

// Walk visits nodes depth-first in display order, expanding as it goes.
// Returning false from fn skips the node's subtree.
func (t *Tree) Walk(fn func(n *Node) bool) {
	var walk func(nodes []*Node)
	walk = func(nodes []*Node) {
		for _, n := range nodes {
			if fn(n) {
				walk(n.Children())
			}
		}
	}
	walk(t.Roots())
}

// Find returns every node, in walk order, for which match is true. The
// subtree below a match is not searched.
func (t *Tree) Find(match func(n *Node) bool) []*Node {
	var found []*Node
	t.Walk(func(n *Node) bool {
		if match(n) {
			found = append(found, n)
			return false
		}
		return true
	})
	return found
}
