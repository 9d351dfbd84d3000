package main

import (
	"context"
	"strconv"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/samber/lo"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/jerrinot/pp-query/internal/callpath"
	"github.com/jerrinot/pp-query/internal/config"
	"github.com/jerrinot/pp-query/internal/derive"
	"github.com/jerrinot/pp-query/internal/pathname"
	"github.com/jerrinot/pp-query/internal/profile"
)

// options are the flags shared by every command.
type options struct {
	thread     string
	metric     string
	event      string
	sort       string
	asc        bool
	reversed   bool
	derive     []string
	mean       bool
	samples    bool
	fqn        bool
	configPath string
	verbose    bool

	logger log.Logger
}

func newRootCmd() *cobra.Command {
	o := &options{logger: log.NewNopLogger()}
	root := &cobra.Command{
		Use:   "pp-query",
		Short: "Browse call-path performance profiles",
		Long: `pp-query reconstructs the call tree of each thread from per-thread call-path
records and prints sorted tree and flat views.

Input auto-detection:
  directory / profile.N.C.T  ->  TAU profile (MULTI__<metric> subdirs merged)
  .jfr / .jfr.gz             ->  JFR binary (supports --event selection)
  .pb.gz / .pprof / .prof    ->  pprof
  everything else            ->  collapsed-stack text ("frames count" per line)
  -                          ->  collapsed text from stdin`,
		Example: `  pp-query info ./tau-run
  pp-query tree ./tau-run -t 0,0,1 --sort excl --depth 6
  pp-query tree ./tau-run --derive 'FLOPS=PAPI_FP_INS / TIME' --metric FLOPS
  pp-query callers profile.jfr -m HashMap.resize
  pp-query hot ./tau-run --mean --top 20 --assert-below 15
  pp-query diff before/ after/ --min-delta 0.5
  pp-query collapse profile.jfr --event wall | pp-query hot -`,
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			o.logger = newLogger(cmd, o.verbose)
			if cmd.Name() == "init" {
				return nil
			}
			return o.applyConfig(cmd)
		},
	}
	root.SetFlagErrorFunc(func(_ *cobra.Command, err error) error {
		return usageError{err}
	})

	pf := root.PersistentFlags()
	pf.StringVarP(&o.thread, "thread", "t", "", "thread: exact name, numeric id, or name substring (default: first thread)")
	pf.StringVar(&o.metric, "metric", "", "metric to show and rank by (default: first metric)")
	pf.StringVarP(&o.event, "event", "e", "cpu", "JFR event type: cpu, wall, alloc, lock")
	pf.StringVar(&o.sort, "sort", "incl", "sort column: name, excl, incl, calls, subrs, or a column number")
	pf.BoolVar(&o.asc, "asc", false, "sort ascending")
	pf.BoolVarP(&o.reversed, "reversed", "r", false, "show call paths callee first")
	pf.StringArrayVar(&o.derive, "derive", nil, "derived metric NAME=EXPR (repeatable)")
	pf.BoolVar(&o.mean, "mean", false, "add a mean thread averaging all threads and select it")
	pf.BoolVar(&o.samples, "samples", false, "include TAU_SAMPLE records in flat listings")
	pf.BoolVar(&o.fqn, "fqn", false, "show full names instead of shortened ones")
	pf.StringVar(&o.configPath, "config", "", "config file (default: $XDG_CONFIG_HOME/pp-query/config.yaml)")
	pf.BoolVarP(&o.verbose, "verbose", "v", false, "log debug messages to stderr")

	root.AddCommand(
		newTreeCmd(o),
		newCallersCmd(o),
		newTraceCmd(o),
		newHotCmd(o),
		newThreadsCmd(o),
		newCollapseCmd(o),
		newFilterCmd(o),
		newDiffCmd(o),
		newLinesCmd(o),
		newEventsCmd(o),
		newInfoCmd(o),
		newInitCmd(o),
	)
	return root
}

func newLogger(cmd *cobra.Command, verbose bool) log.Logger {
	logger := log.NewLogfmtLogger(log.NewSyncWriter(cmd.ErrOrStderr()))
	if verbose {
		return level.NewFilter(logger, level.AllowDebug())
	}
	return level.NewFilter(logger, level.AllowInfo())
}

// applyConfig fills flags that were not given on the command line from
// the config file.
func (o *options) applyConfig(cmd *cobra.Command) error {
	path, mustExist := o.configPath, true
	if path == "" {
		var err error
		if path, err = config.DefaultPath(); err != nil {
			level.Debug(o.logger).Log("msg", "no config directory", "err", err)
			return nil
		}
		mustExist = false
	}
	cfg, err := config.Load(path, mustExist)
	if err != nil {
		return err
	}

	defaults := map[string][]string{
		"metric": lo.Compact([]string{cfg.Metric}),
		"sort":   lo.Compact([]string{cfg.Sort}),
		"derive": cfg.Derive,
	}
	for name, on := range map[string]bool{
		"asc": cfg.Asc, "reversed": cfg.Reversed, "mean": cfg.Mean, "samples": cfg.Samples, "fqn": cfg.Fqn,
	} {
		if on {
			defaults[name] = []string{"true"}
		}
	}
	if cfg.Depth > 0 {
		defaults["depth"] = []string{strconv.Itoa(cfg.Depth)}
	}
	if cfg.Top > 0 {
		defaults["top"] = []string{strconv.Itoa(cfg.Top)}
	}
	if cfg.MinPct != nil {
		defaults["min-pct"] = []string{strconv.FormatFloat(*cfg.MinPct, 'f', -1, 64)}
	}

	fs := cmd.Flags()
	for name, values := range defaults {
		if err := setDefault(fs, name, values); err != nil {
			return errors.Wrapf(err, "config %s: %s", path, name)
		}
	}
	level.Debug(o.logger).Log("msg", "applied config", "path", path)
	return nil
}

func setDefault(fs *pflag.FlagSet, name string, values []string) error {
	f := fs.Lookup(name)
	if f == nil || f.Changed || len(values) == 0 {
		return nil
	}
	for _, v := range values {
		if err := fs.Set(name, v); err != nil {
			return err
		}
	}
	return nil
}

func exactArgs(n int) cobra.PositionalArgs {
	return func(cmd *cobra.Command, args []string) error {
		if len(args) != n {
			return usageErrorf("%s requires %d argument(s), got %d", cmd.Name(), n, len(args))
		}
		return nil
	}
}

func requireMethod(method string) error {
	if method == "" {
		return usageErrorf("-m/--method required")
	}
	return nil
}

// session is a loaded profile with the thread and metric to show.
type session struct {
	o      *options
	ds     *profile.Dataset
	thread profile.Thread
	metric int
}

// load opens path, applies derived metrics and the mean thread, and
// resolves the thread and metric selectors.
func (o *options) load(path string) (*session, error) {
	ds, err := profile.Open(path, profile.Options{Event: o.event}, o.logger)
	if err != nil {
		return nil, err
	}

	metrics := make([]derive.Metric, 0, len(o.derive))
	for _, def := range o.derive {
		m, err := derive.Parse(def)
		if err != nil {
			return nil, usageError{err}
		}
		metrics = append(metrics, m)
	}
	if err := derive.Apply(ds, metrics, o.logger); err != nil {
		return nil, err
	}

	sel := o.thread
	if o.mean {
		ds.AddMeanThread()
		if sel == "" && len(ds.Threads) > 1 {
			sel = "mean"
		}
	}
	thread, err := ds.FindThread(sel)
	if err != nil {
		return nil, err
	}
	metric, err := ds.MetricIndex(o.metric)
	if err != nil {
		return nil, usageError{err}
	}
	level.Debug(o.logger).Log("msg", "selected", "thread", thread.Name, "metric", ds.Metrics[metric])
	return &session{o: o, ds: ds, thread: thread, metric: metric}, nil
}

// columns lists the selected metric first, then the others.
func (s *session) columns() []callpath.Column {
	metrics := []int{s.metric}
	for i := range s.ds.Metrics {
		if i != s.metric {
			metrics = append(metrics, i)
		}
	}
	return callpath.Columns(metrics...)
}

// tree builds the selected thread's call tree in dir, sorted by the
// --sort and --asc flags.
func (s *session) tree(dir pathname.Direction) (*callpath.Tree, error) {
	ix := callpath.BuildThread(s.thread.ID, s.ds.Records, dir)
	t := callpath.NewTree(ix, s.columns())
	col, err := callpath.ParseColumn(s.o.sort, s.metric, t.Columns())
	if err != nil {
		return nil, usageError{err}
	}
	t.SetSort(callpath.SortKey{Column: col, Ascending: s.o.asc})
	return t, nil
}

func (s *session) direction() pathname.Direction {
	if s.o.reversed {
		return pathname.Reversed
	}
	return pathname.Forward
}

// total is the selected thread's total of the selected metric, used as
// the 100% reference.
func (s *session) total() float64 {
	return s.ds.Total(s.thread.ID, s.metric)
}

func (s *session) metricName() string { return s.ds.Metrics[s.metric] }

func pct(v, total float64) float64 {
	if total == 0 {
		return 0
	}
	return 100 * v / total
}

// buildIndex indexes every thread of the dataset concurrently.
func (s *session) buildIndex(ctx context.Context) (*callpath.Index, error) {
	return callpath.Build(ctx, s.ds.Records, s.direction())
}
