package main

import (
	"io"

	"github.com/spf13/cobra"
)

func newFilterCmd(o *options) *cobra.Command {
	var (
		method         string
		includeCallers bool
	)
	cmd := &cobra.Command{
		Use:   "filter <profile>",
		Short: "Emit collapsed stacks passing through the functions matching -m",
		Args:  exactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireMethod(method); err != nil {
				return err
			}
			s, err := o.load(args[0])
			if err != nil {
				return err
			}
			cmdFilter(cmd.OutOrStdout(), s, cmd.Flags().Changed("thread"), method, includeCallers)
			return nil
		},
	}
	cmd.Flags().StringVarP(&method, "method", "m", "", "substring match against function names")
	cmd.Flags().BoolVar(&includeCallers, "include-callers", false, "keep the frames above the matched one")
	return cmd
}

func cmdFilter(w io.Writer, s *session, explicitThread bool, method string, includeCallers bool) {
	for _, st := range collapsedStacks(s, collapseThreads(s, explicitThread)) {
		for j, fr := range st.frames {
			if matchesMethod(fr, method) {
				if includeCallers {
					st.write(w, st.frames)
				} else {
					st.write(w, st.frames[j:])
				}
				break
			}
		}
	}
}
