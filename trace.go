package main

import (
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/jerrinot/pp-query/internal/callpath"
)

func newTraceCmd(o *options) *cobra.Command {
	var (
		method string
		minPct float64
	)
	cmd := &cobra.Command{
		Use:   "trace <profile>",
		Short: "Follow the hottest path from each root (or from the functions matching -m)",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.load(args[0])
			if err != nil {
				return err
			}
			return cmdTrace(cmd.OutOrStdout(), s, method, minPct)
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", "", "start from functions matching this substring")
	cmd.Flags().Float64Var(&minPct, "min-pct", 1.0, "stop below this inclusive %")
	return cmd
}

func cmdTrace(w io.Writer, s *session, method string, minPct float64) error {
	t, err := s.tree(s.direction())
	if err != nil {
		return err
	}
	tr := &tracer{
		s:      s,
		total:  s.total(),
		incl:   callpath.Column{Metric: s.metric, Field: callpath.FieldInclusive},
		excl:   callpath.Column{Metric: s.metric, Field: callpath.FieldExclusive},
		minPct: minPct,
	}

	roots := t.Roots()
	if method != "" {
		roots = t.Find(func(n *callpath.Node) bool { return matchesMethod(n.Name(), method) })
		if len(roots) == 0 {
			fmt.Fprintf(w, "no frames matching '%s'\n", method)
			return nil
		}
		if matched := matchedNames(roots, s.o.fqn); len(matched) > 1 {
			fmt.Fprintf(w, "# matched %d methods: %s\n", len(matched), strings.Join(matched, ", "))
		}
	}
	for _, root := range tr.ranked(roots) {
		tr.hottestPath(w, root)
	}
	return nil
}

type tracer struct {
	s      *session
	total  float64
	incl   callpath.Column
	excl   callpath.Column
	minPct float64
}

// value is a node's inclusive value. A node without one, synthetic or
// lacking the metric, counts as the sum of its children.
func (tr *tracer) value(n *callpath.Node) float64 {
	v, _ := inclusive(tr.incl, n)
	return v
}

// ranked returns the nodes at or above --min-pct, hottest first. Equal
// nodes keep the tree's order.
func (tr *tracer) ranked(nodes []*callpath.Node) []*callpath.Node {
	type entry struct {
		n *callpath.Node
		v float64
	}
	var out []entry
	for _, n := range nodes {
		if v := tr.value(n); pct(v, tr.total) >= tr.minPct {
			out = append(out, entry{n, v})
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].v > out[j].v })
	return lo.Map(out, func(e entry, _ int) *callpath.Node { return e.n })
}

// hottestPath walks down from root following the hottest child at each
// level.
func (tr *tracer) hottestPath(w io.Writer, root *callpath.Node) {
	n := root
	// printed on the line of the child picked in the previous step
	siblingAnnotation := ""
	for indent := 0; ; indent++ {
		name := displayName(n.Name(), tr.s.o.fqn)
		line := fmt.Sprintf("%s[%.1f%%] %s%s", strings.Repeat("  ", indent), pct(tr.value(n), tr.total), name, siblingAnnotation)

		children := tr.ranked(n.Children())
		if len(children) == 0 {
			self, _ := tr.excl.Value(n)
			if selfPct := pct(self, tr.total); selfPct >= tr.minPct && self > 0 {
				line += fmt.Sprintf("  ← self=%.1f%%", selfPct)
			}
			fmt.Fprintln(w, line)
			fmt.Fprintf(w, "Hottest leaf: %s (self=%.1f%%)\n", name, pct(self, tr.total))
			return
		}
		fmt.Fprintln(w, line)

		siblingAnnotation = ""
		if len(children) > 1 {
			next := children[1]
			word := "siblings"
			if len(children) == 2 {
				word = "sibling"
			}
			siblingAnnotation = fmt.Sprintf("  (+%d %s, next: %.1f%% %s)",
				len(children)-1, word, pct(tr.value(next), tr.total), displayName(next.Name(), tr.s.o.fqn))
		}
		n = children[0]
	}
}
