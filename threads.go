package main

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/jerrinot/pp-query/internal/profile"
)

func newThreadsCmd(o *options) *cobra.Command {
	var top int
	cmd := &cobra.Command{
		Use:   "threads <profile>",
		Short: "Per-thread record counts and totals",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.load(args[0])
			if err != nil {
				return err
			}
			return cmdThreads(cmd.Context(), cmd.OutOrStdout(), s, top)
		},
	}
	cmd.Flags().IntVar(&top, "top", 0, "limit output rows (0 = all)")
	return cmd
}

type threadEntry struct {
	id        int
	name      string
	records   int
	callPaths int
	roots     int
	total     float64
}

// computeThreads summarizes every thread of the dataset, largest total
// first.
func computeThreads(ctx context.Context, s *session) ([]threadEntry, error) {
	ix, err := s.buildIndex(ctx)
	if err != nil {
		return nil, err
	}
	ranked := make([]threadEntry, 0, len(s.ds.Threads))
	for _, t := range s.ds.Threads {
		e := threadEntry{
			id:      t.ID,
			name:    t.Name,
			records: len(s.ds.ThreadRecords(t.ID)),
			total:   s.ds.Total(t.ID, s.metric),
		}
		if ti := ix.Thread(t.ID); ti != nil {
			e.callPaths = ti.Len()
			e.roots = len(ti.RootKeys())
		}
		ranked = append(ranked, e)
	}
	sort.SliceStable(ranked, func(i, j int) bool { return ranked[i].total > ranked[j].total })
	return ranked, nil
}

func cmdThreads(ctx context.Context, w io.Writer, s *session, top int) error {
	ranked, err := computeThreads(ctx, s)
	if err != nil {
		return err
	}
	var sum float64
	for _, e := range ranked {
		if e.id != profile.MeanThreadID {
			sum += e.total
		}
	}
	ranked = ranked[:truncate(len(ranked), top)]

	table := newTable(w, "THREAD", "RECORDS", "CALLPATHS", "ROOTS", s.metricName(), "PCT")
	for _, e := range ranked {
		table.Append([]string{
			e.name,
			humanize.Comma(int64(e.records)),
			humanize.Comma(int64(e.callPaths)),
			humanize.Comma(int64(e.roots)),
			humanize.CommafWithDigits(e.total, 2),
			fmt.Sprintf("%.1f%%", pct(e.total, sum)),
		})
	}
	table.Render()
	return nil
}
