package main

import (
	"fmt"
	"io"
	"sort"

	"github.com/spf13/cobra"

	"github.com/jerrinot/pp-query/internal/profile"
)

func newEventsCmd(_ *options) *cobra.Command {
	return &cobra.Command{
		Use:   "events <file.jfr>",
		Short: "List event types in a JFR file",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if profile.Detect(args[0]) != profile.KindJFR {
				return usageErrorf("events command requires a JFR file")
			}
			return cmdEvents(cmd.OutOrStdout(), args[0])
		},
	}
}

type eventEntry struct {
	name    string
	samples int
}

func rankEvents(counts map[string]int) []eventEntry {
	ranked := make([]eventEntry, 0, len(counts))
	for name, cnt := range counts {
		ranked = append(ranked, eventEntry{name, cnt})
	}
	sort.Slice(ranked, func(i, j int) bool {
		if ranked[i].samples != ranked[j].samples {
			return ranked[i].samples > ranked[j].samples
		}
		return ranked[i].name < ranked[j].name
	})
	return ranked
}

func cmdEvents(w io.Writer, path string) error {
	counts, err := profile.DiscoverEvents(path)
	if err != nil {
		return err
	}
	if len(counts) == 0 {
		fmt.Fprintln(w, "no supported events found")
		return nil
	}
	fmt.Fprintf(w, "%-10s %9s\n", "EVENT", "SAMPLES")
	for _, e := range rankEvents(counts) {
		fmt.Fprintf(w, "%-10s %9d\n", e.name, e.samples)
	}
	return nil
}
