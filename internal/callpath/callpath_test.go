package callpath

import (
	"context"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jerrinot/pp-query/internal/pathname"
	"github.com/jerrinot/pp-query/internal/profile"
)

// rec builds a TIME record from a forward path string.
func rec(thread int, path string, incl, excl float64) *profile.Record {
	return &profile.Record{
		Thread:  thread,
		Name:    path,
		Path:    pathname.Split(path, pathname.Forward),
		Metrics: map[int]profile.Values{0: {Inclusive: incl, Exclusive: excl}},
	}
}

func names(nodes []*Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.String()
		if n.Synthetic() {
			out[i] += "*"
		}
	}
	return out
}

func child(t *testing.T, n *Node, name string) *Node {
	t.Helper()
	for _, c := range n.Children() {
		if c.Name() == name {
			return c
		}
	}
	t.Fatalf("%s has no child %q (children: %v)", n, name, names(n.Children()))
	return nil
}

func forwardTree(records ...*profile.Record) *Tree {
	return NewTree(BuildThread(0, records, pathname.Forward), Columns(0))
}

func TestScenario(t *testing.T) {
	tree := forwardTree(
		rec(0, "main", 100, 10),
		rec(0, "main => init", 10, 10),
		rec(0, "main => loop => step", 80, 80),
	)
	roots := tree.Roots()
	require.Equal(t, []string{"main"}, names(roots))
	main := roots[0]
	r, ok := main.Record()
	require.True(t, ok)
	assert.Equal(t, 100.0, r.Metrics[0].Inclusive)

	assert.Equal(t, []string{"init", "loop*"}, names(main.Children()))
	loop := child(t, main, "loop")
	assert.Equal(t, Synthetic{Name: "loop"}, loop.Kind())
	_, ok = loop.Record()
	assert.False(t, ok)

	assert.Equal(t, []string{"step"}, names(loop.Children()))
	step := loop.Children()[0]
	sr, ok := step.Record()
	require.True(t, ok)
	assert.Equal(t, 80.0, sr.Metrics[0].Exclusive)
	assert.Empty(t, step.Children())
}

func TestActualPreferredPerChild(t *testing.T) {
	tree := forwardTree(
		rec(0, "A", 1, 1),
		rec(0, "A => B", 1, 1),
		rec(0, "A => C => D", 1, 1),
	)
	a := tree.Roots()[0]
	assert.Equal(t, []string{"B", "C*"}, names(a.Children()))
	_, isActual := child(t, a, "B").Kind().(Actual)
	assert.True(t, isActual)
}

func TestAllSyntheticWhenNoExactChildren(t *testing.T) {
	tree := forwardTree(
		rec(0, "A => B => X", 1, 1),
		rec(0, "A => C => D", 1, 1),
	)
	roots := tree.Roots()
	require.Equal(t, []string{"A*"}, names(roots))
	assert.Equal(t, []string{"B*", "C*"}, names(roots[0].Children()))
}

func TestActualChildAlsoReachedByDeeperPaths(t *testing.T) {
	tree := forwardTree(
		rec(0, "A => C => D", 1, 1),
		rec(0, "A => C", 5, 4),
	)
	a := tree.Roots()[0]
	require.Equal(t, []string{"C"}, names(a.Children()))
	r, ok := a.Children()[0].Record()
	require.True(t, ok)
	assert.Equal(t, 5.0, r.Metrics[0].Inclusive)
}

func TestPrefixInvariant(t *testing.T) {
	tree := forwardTree(
		rec(0, "main", 1, 1),
		rec(0, "main => a => b => c", 1, 1),
		rec(0, "main => a", 1, 1),
		rec(0, "main => x => y", 1, 1),
		rec(0, "other => a", 1, 1),
		rec(0, "main => a => main", 1, 1),
	)
	count := 0
	tree.Walk(func(n *Node) bool {
		count++
		if p := n.Parent(); p != nil {
			assert.Equal(t, p.Key().Len()+1, n.Key().Len(), n.Key().String())
			assert.True(t, n.Key().HasProperPrefix(p.Key()), n.Key().String())
			assert.Equal(t, p.Key(), n.Key().Prefix(p.Key().Len()))
		} else {
			assert.Equal(t, 1, n.Key().Len())
		}
		return true
	})
	// main, a, b, c, main(recursive), x, y, other, a
	assert.Equal(t, 9, count)
}

func TestSelfExclusion(t *testing.T) {
	tree := forwardTree(rec(0, "A", 1, 1), rec(0, "A => A", 1, 1))
	a := tree.Roots()[0]
	kids := a.Children()
	require.Len(t, kids, 1)
	assert.Equal(t, 2, kids[0].Key().Len())
	assert.Empty(t, kids[0].Children())
}

func TestSingleSegmentRecordsAreNotRoots(t *testing.T) {
	tree := forwardTree(rec(0, "lonely", 1, 1), rec(0, "main => work", 1, 1))
	assert.Equal(t, []string{"main*"}, names(tree.Roots()))
}

func TestIdempotentExpansion(t *testing.T) {
	tree := forwardTree(rec(0, "A => B", 1, 1), rec(0, "A => C", 2, 2))
	a := tree.Roots()[0]
	assert.False(t, a.Expanded())
	first := a.Children()
	second := a.Children()
	assert.True(t, a.Expanded())
	require.Len(t, first, 2)
	assert.Equal(t, fmt.Sprintf("%p", first), fmt.Sprintf("%p", second))
	assert.Same(t, first[0], second[0])
	assert.Same(t, tree.Roots()[0], a)
}

func TestReversedTree(t *testing.T) {
	records := []*profile.Record{
		rec(0, "bar", 30, 30),
		rec(0, "main => foo => bar", 20, 20),
		rec(0, "main => baz => bar", 10, 10),
		rec(0, "main => foo", 25, 5),
	}
	tree := NewTree(BuildThread(0, records, pathname.Reversed), Columns(0))
	assert.Equal(t, []string{"bar", "foo*"}, names(tree.Roots()))

	bar := tree.Roots()[0]
	_, ok := bar.Record()
	assert.True(t, ok, "root uses the flat record of the function")
	assert.Equal(t, []string{"baz*", "foo*"}, names(bar.Children()))

	foo := child(t, bar, "foo")
	assert.Equal(t, "bar <= foo", foo.Key().String())
	callers := foo.Children()
	require.Len(t, callers, 1)
	r, ok := callers[0].Record()
	require.True(t, ok)
	assert.Equal(t, "main => foo => bar", r.Name)
}

func TestOrphansAndOtherThreadsIgnored(t *testing.T) {
	records := []*profile.Record{
		rec(0, "main => a", 1, 1),
		rec(1, "main => b", 1, 1),
		{Thread: 0, Name: "empty"},
	}
	ix := BuildThread(0, records, pathname.Forward)
	assert.Equal(t, 1, ix.Len())
	tree := NewTree(ix, nil)
	assert.Equal(t, []string{"a"}, names(tree.Roots()[0].Children()))
}

func TestBuild(t *testing.T) {
	var records []*profile.Record
	for thread := 0; thread < 16; thread++ {
		records = append(records,
			rec(thread, "main", 100, 10),
			rec(thread, fmt.Sprintf("main => work%d", thread), 90, 90),
		)
	}
	ix, err := Build(context.Background(), records, pathname.Forward)
	require.NoError(t, err)
	assert.Equal(t, pathname.Forward, ix.Direction())
	require.Len(t, ix.Threads(), 16)
	for _, id := range ix.Threads() {
		roots := ix.RootKeys(id)
		require.Len(t, roots, 1)
		kids := ix.Thread(id).ChildKeys(roots[0])
		require.Len(t, kids, 1)
		assert.Equal(t, fmt.Sprintf("work%d", id), kids[0].Key.Last())
		assert.NotNil(t, kids[0].Record)
	}
	assert.Nil(t, ix.Thread(99))
	assert.Nil(t, ix.RootKeys(99))
}

func TestBuildCancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := Build(ctx, []*profile.Record{rec(0, "a => b", 1, 1)}, pathname.Forward)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestPathKey(t *testing.T) {
	k := NewPathKey([]string{"a", "b", "c"}, pathname.Forward)
	assert.Equal(t, 3, k.Len())
	assert.Equal(t, "c", k.Last())
	assert.Equal(t, []string{"a", "b", "c"}, k.Segments())
	assert.Equal(t, NewPathKey([]string{"a", "b"}, pathname.Forward), k.Prefix(2))
	assert.Equal(t, k, k.Prefix(5))
	assert.True(t, k.HasProperPrefix(k.Prefix(1)))
	assert.False(t, k.HasProperPrefix(k))
	assert.False(t, k.HasProperPrefix(NewPathKey([]string{"a", "b"}, pathname.Reversed)))
	// segment boundaries matter
	assert.False(t, NewPathKey([]string{"ab", "c"}, pathname.Forward).HasProperPrefix(NewPathKey([]string{"a"}, pathname.Forward)))
	assert.Equal(t, "a => b => c", k.String())
	assert.Equal(t, "c <= b <= a", keyFor([]string{"a", "b", "c"}, pathname.Reversed).String())
}
