package main

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/dustin/go-humanize"
	"github.com/go-kit/log/level"
	"github.com/spf13/cobra"

	"github.com/jerrinot/pp-query/internal/pathname"
	"github.com/jerrinot/pp-query/internal/profile"
)

type infoFlags struct {
	expand     int
	topThreads int
	topMethods int
}

func newInfoCmd(o *options) *cobra.Command {
	var f infoFlags
	cmd := &cobra.Command{
		Use:   "info <profile>",
		Short: "One-shot triage: metrics, events (JFR), top threads, hot functions",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.load(args[0])
			if err != nil {
				return err
			}
			return cmdInfo(cmd.Context(), cmd.OutOrStdout(), args[0], s, f)
		},
	}
	cmd.Flags().IntVar(&f.expand, "expand", 0, "drill into the top N hot functions (tree, callers, lines)")
	cmd.Flags().IntVar(&f.topThreads, "top-threads", 10, "threads to list")
	cmd.Flags().IntVar(&f.topMethods, "top-methods", 10, "hot functions to list")
	return cmd
}

func cmdInfo(ctx context.Context, w io.Writer, path string, s *session, f infoFlags) error {
	fmt.Fprintln(w, "=== PROFILE ===")
	fmt.Fprintf(w, "format:   %s\n", s.ds.Format)
	fmt.Fprintf(w, "metrics:  %s\n", strings.Join(s.ds.Metrics, ", "))
	fmt.Fprintf(w, "threads:  %d\n", len(s.ds.Threads))
	fmt.Fprintf(w, "records:  %s\n", humanize.Comma(int64(len(s.ds.Records))))
	fmt.Fprintln(w)

	if s.ds.Format == string(profile.KindJFR) {
		counts, err := profile.DiscoverEvents(path)
		if err != nil {
			level.Warn(s.o.logger).Log("msg", "could not read events", "err", err)
		} else if len(counts) > 0 {
			fmt.Fprintln(w, "=== EVENTS ===")
			for _, e := range rankEvents(counts) {
				fmt.Fprintf(w, "%-10s %9d\n", e.name, e.samples)
			}
			fmt.Fprintln(w)
		}
	}

	if len(s.ds.Threads) > 1 {
		ranked, err := computeThreads(ctx, s)
		if err != nil {
			return err
		}
		shown := ranked[:truncate(len(ranked), f.topThreads)]
		fmt.Fprintf(w, "=== THREADS (top %d) ===\n", len(shown))
		for _, e := range shown {
			fmt.Fprintf(w, "%-30s %15s\n", e.name, humanize.CommafWithDigits(e.total, 2))
		}
		fmt.Fprintln(w)
	}

	fmt.Fprintf(w, "=== THREAD %s ===\n", s.thread.Name)
	hot := computeHot(s)
	total := s.total()
	if len(hot) > 0 {
		printHotTables(w, hot, f.topMethods, total, true)
	}
	fmt.Fprintf(w, "\nTotal %s: %s\n", s.metricName(), humanize.CommafWithDigits(total, 2))

	if f.expand <= 0 {
		return nil
	}
	for _, h := range hot[:truncate(len(hot), f.expand)] {
		fmt.Fprintf(w, "\n=== DRILL-DOWN: %s (self=%.1f%%) ===\n", h.name, pct(h.self, total))

		fmt.Fprintln(w, "--- tree (callees) ---")
		if err := cmdTree(w, s, pathname.Forward, treeFlags{method: h.name, depth: 3, minPct: 1.0}); err != nil {
			return err
		}
		fmt.Fprintln(w, "--- callers ---")
		if err := cmdCallers(w, s, treeFlags{method: h.name, depth: 3, minPct: 1.0}); err != nil {
			return err
		}
		if lines, _ := computeLines(s, h.name, 5); len(lines) > 0 {
			fmt.Fprintln(w, "--- lines ---")
			for _, le := range lines {
				fmt.Fprintf(w, "%-40s %12s %6.1f%%\n", le.source(), humanize.CommafWithDigits(le.value, 2), pct(le.value, total))
			}
		}
	}
	return nil
}
