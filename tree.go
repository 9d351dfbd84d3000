package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/fatih/color"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/xlab/treeprint"

	"github.com/jerrinot/pp-query/internal/callpath"
	"github.com/jerrinot/pp-query/internal/pathname"
)

type treeFlags struct {
	method string
	depth  int
	minPct float64
}

func (f *treeFlags) register(cmd *cobra.Command) {
	cmd.Flags().StringVarP(&f.method, "method", "m", "", "substring match against function names")
	cmd.Flags().IntVar(&f.depth, "depth", 4, "max tree depth")
	cmd.Flags().Float64Var(&f.minPct, "min-pct", 1.0, "hide nodes below this inclusive %")
}

func newTreeCmd(o *options) *cobra.Command {
	var f treeFlags
	cmd := &cobra.Command{
		Use:   "tree <profile>",
		Short: "Call tree of a thread, or descending from the functions matching -m",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.load(args[0])
			if err != nil {
				return err
			}
			return cmdTree(cmd.OutOrStdout(), s, s.direction(), f)
		},
	}
	f.register(cmd)
	return cmd
}

func cmdTree(w io.Writer, s *session, dir pathname.Direction, f treeFlags) error {
	t, err := s.tree(dir)
	if err != nil {
		return err
	}
	roots := t.Roots()
	label := "(all)"
	if f.method != "" {
		label = f.method
		roots = t.Find(func(n *callpath.Node) bool { return matchesMethod(n.Name(), f.method) })
	}
	newTreePrinter(s, f).print(w, label, roots)
	return nil
}

// treePrinter renders call-tree nodes with their share of the thread total.
type treePrinter struct {
	s        *session
	f        treeFlags
	total    float64
	excl     callpath.Column
	incl     callpath.Column
	showSelf bool
	faint    *color.Color
}

func newTreePrinter(s *session, f treeFlags) *treePrinter {
	return &treePrinter{
		s:        s,
		f:        f,
		total:    s.total(),
		excl:     callpath.Column{Metric: s.metric, Field: callpath.FieldExclusive},
		incl:     callpath.Column{Metric: s.metric, Field: callpath.FieldInclusive},
		showSelf: true,
		faint:    color.New(color.Faint),
	}
}

func (p *treePrinter) print(w io.Writer, label string, roots []*callpath.Node) {
	roots = lo.Filter(roots, func(n *callpath.Node, _ int) bool { return p.visible(n, 1) })
	if !p.header(w, label, matchedNames(roots, p.s.o.fqn)) {
		return
	}
	tp := treeprint.NewWithRoot(label)
	for _, n := range roots {
		p.add(tp, n, 1)
	}
	fmt.Fprint(w, tp.String())
}

// header prints the lines above a tree. It reports false, after printing
// the no-match notice, when names is empty.
func (p *treePrinter) header(w io.Writer, label string, names []string) bool {
	if len(names) == 0 {
		fmt.Fprintf(w, "no frames matching '%s'\n", label)
		return false
	}
	if len(names) > 1 {
		fmt.Fprintf(w, "# matched %d methods: %s\n", len(names), strings.Join(names, ", "))
	}
	fmt.Fprintf(w, "# thread %s, %s total %s\n", p.s.thread.Name, p.s.metricName(), humanize.CommafWithDigits(p.total, 2))
	return true
}

func (p *treePrinter) add(parent treeprint.Tree, n *callpath.Node, depth int) {
	if depth >= p.f.depth {
		parent.AddNode(p.label(n))
		return
	}
	kids := lo.Filter(n.Children(), func(c *callpath.Node, _ int) bool { return p.visible(c, depth+1) })
	if len(kids) == 0 {
		parent.AddNode(p.label(n))
		return
	}
	branch := parent.AddBranch(p.label(n))
	for _, c := range kids {
		p.add(branch, c, depth+1)
	}
}

// visible reports whether n passes --min-pct. A node without a value of
// its own, synthetic or lacking the metric, is shown when one of its
// descendants within the depth limit is.
func (p *treePrinter) visible(n *callpath.Node, depth int) bool {
	if v, ok := p.incl.Value(n); ok {
		return pct(v, p.total) >= p.f.minPct
	}
	if depth >= p.f.depth {
		return n.Synthetic() || len(n.Children()) > 0
	}
	return lo.SomeBy(n.Children(), func(c *callpath.Node) bool { return p.visible(c, depth+1) })
}

func (p *treePrinter) label(n *callpath.Node) string {
	name := displayName(n.Name(), p.s.o.fqn)
	v, ok := p.incl.Value(n)
	if !ok {
		return p.faint.Sprintf("[  -  ] %s", name)
	}
	line := fmt.Sprintf("[%.1f%%] %s", pct(v, p.total), name)
	if p.showSelf {
		if self, ok := p.excl.Value(n); ok && self > 0 && pct(self, p.total) >= p.f.minPct {
			line += fmt.Sprintf("  ← self=%.1f%%", pct(self, p.total))
		}
	}
	return line
}

// inclusive is n's value in col. A node without one, synthetic or lacking
// the metric, counts as the sum of its children; ok is false when nothing
// below it has a value either.
func inclusive(col callpath.Column, n *callpath.Node) (v float64, ok bool) {
	if v, ok := col.Value(n); ok {
		return v, true
	}
	for _, c := range n.Children() {
		if cv, cok := inclusive(col, c); cok {
			v += cv
			ok = true
		}
	}
	return v, ok
}

func matchedNames(nodes []*callpath.Node, fqn bool) []string {
	return uniqueNames(lo.Map(nodes, func(n *callpath.Node, _ int) string { return n.Name() }), fqn)
}

// uniqueNames returns the sorted, distinct display names of raw.
func uniqueNames(raw []string, fqn bool) []string {
	names := lo.Uniq(lo.Map(raw, func(name string, _ int) string { return displayName(name, fqn) }))
	sort.Strings(names)
	return names
}
