package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/olekukonko/tablewriter"
	"github.com/pkg/errors"
	"github.com/spf13/cobra"
)

func newHotCmd(o *options) *cobra.Command {
	var (
		top         int
		assertBelow float64
	)
	cmd := &cobra.Command{
		Use:   "hot <profile>",
		Short: "Rank functions by exclusive and inclusive value",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.load(args[0])
			if err != nil {
				return err
			}
			return cmdHot(cmd.OutOrStdout(), s, top, assertBelow)
		},
	}
	cmd.Flags().IntVar(&top, "top", 10, "limit output rows (0 = all)")
	cmd.Flags().Float64Var(&assertBelow, "assert-below", 0, "fail if the top function's exclusive % is at or above this")
	return cmd
}

type hotEntry struct {
	name  string
	self  float64
	total float64
}

// computeHot ranks the flat records of the selected thread by exclusive
// value. Records that shorten to the same display name are merged.
func computeHot(s *session) []hotEntry {
	byName := make(map[string]*hotEntry)
	var ranked []*hotEntry
	for _, r := range s.ds.Flat(s.thread.ID, s.o.samples) {
		v, ok := r.Value(s.metric)
		if !ok {
			continue
		}
		name := displayName(r.Leaf(), s.o.fqn)
		e, ok := byName[name]
		if !ok {
			e = &hotEntry{name: name}
			byName[name] = e
			ranked = append(ranked, e)
		}
		e.self += v.Exclusive
		e.total += v.Inclusive
	}
	out := make([]hotEntry, len(ranked))
	for i, e := range ranked {
		out[i] = *e
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].self > out[j].self })
	return out
}

func printHotTables(w io.Writer, ranked []hotEntry, top int, total float64, showTopN bool) {
	section := func(title string, entries []hotEntry, value func(hotEntry) float64) {
		if showTopN {
			fmt.Fprintf(w, "=== RANK BY %s (top %d) ===\n", title, len(entries))
		} else {
			fmt.Fprintf(w, "=== RANK BY %s ===\n", title)
		}
		table := newTable(w, "METHOD", "SELF%", "TOTAL%", "VALUE")
		for _, e := range entries {
			table.Append([]string{
				e.name,
				fmt.Sprintf("%.1f%%", pct(e.self, total)),
				fmt.Sprintf("%.1f%%", pct(e.total, total)),
				humanize.CommafWithDigits(value(e), 2),
			})
		}
		table.Render()
	}

	section("SELF TIME", ranked[:truncate(len(ranked), top)], func(e hotEntry) float64 { return e.self })

	byTotal := make([]hotEntry, len(ranked))
	copy(byTotal, ranked)
	sort.SliceStable(byTotal, func(i, j int) bool { return byTotal[i].total > byTotal[j].total })
	fmt.Fprintln(w)
	section("TOTAL TIME", byTotal[:truncate(len(byTotal), top)], func(e hotEntry) float64 { return e.total })
}

func cmdHot(w io.Writer, s *session, top int, assertBelow float64) error {
	ranked := computeHot(s)
	if len(ranked) == 0 {
		return nil
	}
	total := s.total()
	printHotTables(w, ranked, top, total, false)

	if assertBelow > 0 {
		if selfPct := pct(ranked[0].self, total); selfPct >= assertBelow {
			return errors.Errorf("ASSERT FAILED: %s self=%.1f%% >= threshold %.1f%%", ranked[0].name, selfPct, assertBelow)
		}
	}
	return nil
}

// newTable returns a borderless table in the layout every listing uses.
func newTable(w io.Writer, header ...string) *tablewriter.Table {
	table := tablewriter.NewWriter(w)
	table.SetHeader(header)
	table.SetAutoFormatHeaders(false)
	table.SetHeaderAlignment(tablewriter.ALIGN_LEFT)
	table.SetAlignment(tablewriter.ALIGN_LEFT)
	table.SetBorder(false)
	table.SetColumnSeparator("")
	table.SetHeaderLine(false)
	table.SetTablePadding("  ")
	table.SetNoWhiteSpace(true)
	table.SetAutoWrapText(false)
	return table
}
