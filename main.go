// pp-query: browse call-path performance profiles (TAU, collapsed stacks,
// JFR, pprof).
//
// Usage:
//
//	pp-query <command> [flags] <profile>
//
// Input: a directory of profile.N.C.T files (or MULTI__<metric>
// subdirectories) or a single profile.N.C.T file is read as a TAU profile;
// .jfr/.jfr.gz as JFR; .pb.gz/.pprof/.prof as pprof; all other files and
// stdin (-) as collapsed text.
//
// Commands: tree, callers, trace, hot, threads, collapse, filter, diff,
// lines, events, info, init
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	"github.com/pkg/errors"
)

// usageError marks errors caused by a bad command line. They exit with 2.
type usageError struct {
	err error
}

func (u usageError) Error() string { return u.err.Error() }
func (u usageError) Unwrap() error { return u.err }

func usageErrorf(format string, args ...any) error {
	return usageError{errors.Errorf(format, args...)}
}

func exitCode(err error) int {
	var u usageError
	if errors.As(err, &u) {
		return 2
	}
	return 1
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	if err := newRootCmd().ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}
