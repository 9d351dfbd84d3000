package main

import (
	"fmt"
	"io"
	"math"
	"sort"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
)

func newDiffCmd(o *options) *cobra.Command {
	var (
		minDelta float64
		top      int
	)
	cmd := &cobra.Command{
		Use:   "diff <before> <after>",
		Short: "Compare exclusive shares: REGRESSION / IMPROVEMENT / NEW / GONE",
		Args:  exactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			before, err := o.load(args[0])
			if err != nil {
				return err
			}
			after, err := o.load(args[1])
			if err != nil {
				return err
			}
			cmdDiff(cmd.OutOrStdout(), before, after, minDelta, top)
			return nil
		},
	}
	cmd.Flags().Float64Var(&minDelta, "min-delta", 0.5, "hide entries whose share changed less than this %")
	cmd.Flags().IntVar(&top, "top", 0, "limit rows per section (0 = all)")
	return cmd
}

// selfPcts maps display names to their share of the thread total.
func selfPcts(s *session) map[string]float64 {
	total := s.total()
	pcts := make(map[string]float64)
	for _, e := range computeHot(s) {
		pcts[e.name] = pct(e.self, total)
	}
	return pcts
}

type diffEntry struct {
	name   string
	before float64
	after  float64
	delta  float64
}

func cmdDiff(w io.Writer, before, after *session, minDelta float64, top int) {
	beforePct := selfPcts(before)
	afterPct := selfPcts(after)

	allMethods := make(map[string]bool)
	for m := range beforePct {
		allMethods[m] = true
	}
	for m := range afterPct {
		allMethods[m] = true
	}

	var regressions, improvements, newMethods, goneMethods []diffEntry
	for m := range allMethods {
		b, inBefore := beforePct[m]
		a, inAfter := afterPct[m]
		delta := a - b
		switch {
		case inBefore && inAfter:
			if math.Abs(delta) < minDelta {
				continue
			}
			if delta > 0 {
				regressions = append(regressions, diffEntry{m, b, a, delta})
			} else {
				improvements = append(improvements, diffEntry{m, b, a, delta})
			}
		case inAfter:
			if a >= minDelta {
				newMethods = append(newMethods, diffEntry{m, 0, a, a})
			}
		default:
			if b >= minDelta {
				goneMethods = append(goneMethods, diffEntry{m, b, 0, -b})
			}
		}
	}

	rank := func(es []diffEntry, less func(a, b diffEntry) bool) []diffEntry {
		sort.Slice(es, func(i, j int) bool {
			if less(es[i], es[j]) {
				return true
			}
			if less(es[j], es[i]) {
				return false
			}
			return es[i].name < es[j].name
		})
		return es[:truncate(len(es), top)]
	}
	regressions = rank(regressions, func(a, b diffEntry) bool { return a.delta > b.delta })
	improvements = rank(improvements, func(a, b diffEntry) bool { return a.delta < b.delta })
	newMethods = rank(newMethods, func(a, b diffEntry) bool { return a.after > b.after })
	goneMethods = rank(goneMethods, func(a, b diffEntry) bool { return a.before > b.before })

	red := color.New(color.FgRed, color.Bold)
	green := color.New(color.FgGreen, color.Bold)
	anyOutput := false

	if len(regressions) > 0 {
		red.Fprintln(w, "REGRESSION")
		for _, e := range regressions {
			fmt.Fprintf(w, "  %-50s %5.1f%% -> %5.1f%%  (+%.1f%%)\n", e.name, e.before, e.after, e.delta)
		}
		anyOutput = true
	}
	if len(improvements) > 0 {
		green.Fprintln(w, "IMPROVEMENT")
		for _, e := range improvements {
			fmt.Fprintf(w, "  %-50s %5.1f%% -> %5.1f%%  (%.1f%%)\n", e.name, e.before, e.after, e.delta)
		}
		anyOutput = true
	}
	if len(newMethods) > 0 {
		red.Fprintln(w, "NEW")
		for _, e := range newMethods {
			fmt.Fprintf(w, "  %-50s %.1f%%\n", e.name, e.after)
		}
		anyOutput = true
	}
	if len(goneMethods) > 0 {
		green.Fprintln(w, "GONE")
		for _, e := range goneMethods {
			fmt.Fprintf(w, "  %-50s %.1f%%\n", e.name, e.before)
		}
		anyOutput = true
	}

	if !anyOutput {
		fmt.Fprintln(w, "no significant changes")
	}
}
