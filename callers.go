package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/jerrinot/pp-query/internal/callpath"
	"github.com/jerrinot/pp-query/internal/pathname"
)

func newCallersCmd(o *options) *cobra.Command {
	var f treeFlags
	cmd := &cobra.Command{
		Use:   "callers <profile>",
		Short: "Callers ascending from the functions matching -m",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireMethod(f.method); err != nil {
				return err
			}
			s, err := o.load(args[0])
			if err != nil {
				return err
			}
			return cmdCallers(cmd.OutOrStdout(), s, f)
		},
	}
	f.register(cmd)
	return cmd
}

// callerNode merges caller chains: a root is a matched function and each
// level below holds the functions that called the one above.
type callerNode struct {
	name     string
	value    float64
	known    bool
	children []*callerNode
	byName   map[string]*callerNode
}

func newCallerNode(name string) *callerNode {
	return &callerNode{name: name, byName: make(map[string]*callerNode)}
}

func (c *callerNode) child(name string) *callerNode {
	if k, ok := c.byName[name]; ok {
		return k
	}
	k := newCallerNode(name)
	c.byName[name] = k
	c.children = append(c.children, k)
	return k
}

// callerChains finds every node of the forward tree matching method,
// wherever it sits in a call path, and merges the path from it back to
// the root into one caller tree per function. Functions recorded only on
// their own become roots without callers.
func callerChains(s *session, t *callpath.Tree, method string) []*callerNode {
	incl := callpath.Column{Metric: s.metric, Field: callpath.FieldInclusive}
	top := newCallerNode("")
	for _, n := range t.Find(func(n *callpath.Node) bool { return matchesMethod(n.Name(), method) }) {
		v, ok := inclusive(incl, n)
		c := top
		for a := n; a != nil; a = a.Parent() {
			c = c.child(a.Name())
			c.value += v
			c.known = c.known || ok
		}
	}
	for _, r := range s.ds.Flat(s.thread.ID, s.o.samples) {
		if _, seen := top.byName[r.Leaf()]; seen || !matchesMethod(r.Leaf(), method) {
			continue
		}
		c := top.child(r.Leaf())
		if v, ok := r.Value(s.metric); ok {
			c.value, c.known = v.Inclusive, true
		}
	}
	return top.children
}

func cmdCallers(w io.Writer, s *session, f treeFlags) error {
	t, err := s.tree(pathname.Forward)
	if err != nil {
		return err
	}
	p := newTreePrinter(s, f)
	p.showSelf = false
	p.printCallers(w, f.method, callerChains(s, t, f.method))
	return nil
}

func (p *treePrinter) printCallers(w io.Writer, label string, roots []*callerNode) {
	roots = p.rankCallers(roots)
	names := uniqueNames(lo.Map(roots, func(c *callerNode, _ int) string { return c.name }), p.s.o.fqn)
	if !p.header(w, label, names) {
		return
	}
	tp := treeprint.NewWithRoot(label)
	for _, c := range roots {
		p.addCaller(tp, c, 1)
	}
	fmt.Fprint(w, tp.String())
}

func (p *treePrinter) addCaller(parent treeprint.Tree, c *callerNode, depth int) {
	label := fmt.Sprintf("[%.1f%%] %s", pct(c.value, p.total), displayName(c.name, p.s.o.fqn))
	var kids []*callerNode
	if depth < p.f.depth {
		kids = p.rankCallers(c.children)
	}
	if len(kids) == 0 {
		parent.AddNode(label)
		return
	}
	branch := parent.AddBranch(label)
	for _, k := range kids {
		p.addCaller(branch, k, depth+1)
	}
}

// rankCallers returns the nodes at or above --min-pct, hottest first.
func (p *treePrinter) rankCallers(nodes []*callerNode) []*callerNode {
	out := lo.Filter(nodes, func(c *callerNode, _ int) bool { return c.known && pct(c.value, p.total) >= p.f.minPct })
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].value != out[j].value {
			return out[i].value > out[j].value
		}
		return out[i].name < out[j].name
	})
	return out
}
