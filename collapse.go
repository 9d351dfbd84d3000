package main

import (
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jerrinot/pp-query/internal/profile"
)

func newCollapseCmd(o *options) *cobra.Command {
	return &cobra.Command{
		Use:   "collapse <profile>",
		Short: "Emit collapsed-stack text (all threads unless -t is given)",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			s, err := o.load(args[0])
			if err != nil {
				return err
			}
			cmdCollapse(cmd.OutOrStdout(), s, cmd.Flags().Changed("thread"))
			return nil
		},
	}
}

// collapsedStack is one line of collapsed-stack output.
type collapsedStack struct {
	thread string
	frames []string
	value  float64
}

func (c collapsedStack) write(w io.Writer, frames []string) {
	threadPrefix := ""
	if c.thread != "" {
		threadPrefix = fmt.Sprintf("[%s];", c.thread)
	}
	fmt.Fprintf(w, "%s%s %s\n", threadPrefix, strings.Join(frames, ";"), strconv.FormatFloat(c.value, 'f', -1, 64))
}

// collapsedStacks turns records back into stacks weighted by exclusive
// value of the selected metric. A call-path record contributes its own
// exclusive value. A single-function record contributes what is left of
// its exclusive value after the call paths ending in that function, so
// roots and profiles without call paths are not lost.
func collapsedStacks(s *session, threads []profile.Thread) []collapsedStack {
	var out []collapsedStack
	for _, t := range threads {
		name := ""
		if len(threads) > 1 || len(s.ds.Threads) > 1 {
			name = t.Name
		}
		records := s.ds.ThreadRecords(t.ID)
		viaPaths := make(map[string]float64)
		for _, r := range records {
			if v, ok := r.Value(s.metric); ok && r.IsCallPath() {
				viaPaths[r.Leaf()] += v.Exclusive
			}
		}
		for _, r := range records {
			v, ok := r.Value(s.metric)
			if !ok || len(r.Path) == 0 {
				continue
			}
			value := v.Exclusive
			if !r.IsCallPath() {
				if r.InGroup(profile.GroupSample) && !s.o.samples {
					continue
				}
				value -= viaPaths[r.Leaf()]
			}
			if value <= 0 {
				continue
			}
			out = append(out, collapsedStack{thread: name, frames: r.Path, value: value})
		}
	}
	return out
}

// collapseThreads is the selected thread when -t was given, otherwise
// every thread except the mean.
func collapseThreads(s *session, explicit bool) []profile.Thread {
	if explicit || s.thread.ID == profile.MeanThreadID {
		return []profile.Thread{s.thread}
	}
	var threads []profile.Thread
	for _, t := range s.ds.Threads {
		if t.ID != profile.MeanThreadID {
			threads = append(threads, t)
		}
	}
	return threads
}

func cmdCollapse(w io.Writer, s *session, explicitThread bool) {
	for _, st := range collapsedStacks(s, collapseThreads(s, explicitThread)) {
		st.write(w, st.frames)
	}
}
