package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"

	"github.com/jerrinot/pp-query/internal/pathname"
)

func newLinesCmd(o *options) *cobra.Command {
	var (
		method string
		top    int
	)
	cmd := &cobra.Command{
		Use:   "lines <profile>",
		Short: "Source locations of the functions and regions matching -m",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireMethod(method); err != nil {
				return err
			}
			s, err := o.load(args[0])
			if err != nil {
				return err
			}
			return cmdLines(cmd.OutOrStdout(), s, method, top)
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", "", "substring match against function names")
	cmd.Flags().IntVar(&top, "top", 0, "limit output rows (0 = all)")
	return cmd
}

type lineEntry struct {
	name  string
	loc   pathname.Location
	value float64
}

func (e lineEntry) source() string {
	s := fmt.Sprintf("%s:%d", e.loc.File, e.loc.StartLine)
	if e.loc.EndLine > e.loc.StartLine {
		s += fmt.Sprintf("-%d", e.loc.EndLine)
	}
	return s
}

// computeLines returns the inclusive value of every flat record matching
// method whose name carries a source location. hasMethod is true when
// records match but none has a location.
func computeLines(s *session, method string, top int) (result []lineEntry, hasMethod bool) {
	for _, r := range s.ds.Flat(s.thread.ID, true) {
		if !matchesMethod(r.Leaf(), method) {
			continue
		}
		hasMethod = true
		loc, ok := pathname.SourceLocation(r.Leaf())
		if !ok {
			continue
		}
		v, ok := r.Value(s.metric)
		if !ok {
			continue
		}
		result = append(result, lineEntry{name: displayName(r.Leaf(), s.o.fqn), loc: loc, value: v.Inclusive})
	}
	sort.SliceStable(result, func(i, j int) bool { return result[i].value > result[j].value })
	return result[:truncate(len(result), top)], hasMethod
}

func cmdLines(w io.Writer, s *session, method string, top int) error {
	ranked, hasMethod := computeLines(s, method, top)
	if len(ranked) == 0 {
		if hasMethod {
			return errors.Errorf("no line info for frames matching '%s'", method)
		}
		fmt.Fprintf(w, "no frames matching '%s'\n", method)
		return nil
	}

	total := s.total()
	table := newTable(w, "SOURCE:LINE", "NAME", s.metricName(), "PCT")
	for _, e := range ranked {
		table.Append([]string{
			e.source(),
			e.name,
			humanize.CommafWithDigits(e.value, 2),
			fmt.Sprintf("%.1f%%", pct(e.value, total)),
		})
	}
	table.Render()
	return nil
}
