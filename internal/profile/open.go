package profile

import (
	"compress/gzip"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Options control how an input is read.
type Options struct {
	// Event selects the JFR event type (cpu, wall, alloc, lock).
	Event string
}

// Kind is the detected input format.
type Kind string

const (
	KindTAU       Kind = "tau"
	KindJFR       Kind = "jfr"
	KindPprof     Kind = "pprof"
	KindCollapsed Kind = "collapsed"
)

// Detect picks the reader for path without reading it, except for the
// directory check.
func Detect(path string) Kind {
	if path == "-" {
		return KindCollapsed
	}
	if fi, err := os.Stat(path); err == nil && fi.IsDir() {
		return KindTAU
	}
	base := filepath.Base(path)
	if isTAUFile(base) {
		return KindTAU
	}
	p := strings.ToLower(base)
	switch {
	case strings.HasSuffix(p, ".jfr"), strings.HasSuffix(p, ".jfr.gz"):
		return KindJFR
	case strings.HasSuffix(p, ".pb.gz"), strings.HasSuffix(p, ".pprof"), strings.HasSuffix(p, ".prof"):
		return KindPprof
	}
	return KindCollapsed
}

// Open loads a profile, auto-detecting its format.
func Open(path string, opts Options, logger log.Logger) (*Dataset, error) {
	if logger == nil {
		logger = log.NewNopLogger()
	}
	kind := Detect(path)
	level.Debug(logger).Log("msg", "opening profile", "path", path, "format", kind)

	var (
		ds  *Dataset
		err error
	)
	switch kind {
	case KindTAU:
		ds, err = parseTAU(path, logger)
	case KindJFR:
		event := opts.Event
		if event == "" {
			event = "cpu"
		}
		if !lo.Contains(JFREvents, event) {
			return nil, errors.Errorf("unknown event type %q (valid: %s)", event, strings.Join(JFREvents, ", "))
		}
		ds, err = parseJFR(path, event, logger)
	case KindPprof:
		var f *os.File
		if f, err = os.Open(path); err != nil {
			return nil, err
		}
		defer f.Close()
		ds, err = parsePprof(f, logger)
	default:
		var rc io.ReadCloser
		if rc, err = openReader(path); err != nil {
			return nil, err
		}
		defer rc.Close()
		ds, err = parseCollapsed(rc, logger)
	}
	if err != nil {
		return nil, errors.Wrapf(err, "load %s", path)
	}
	level.Debug(logger).Log("msg", "loaded profile", "records", len(ds.Records), "threads", len(ds.Threads), "metrics", len(ds.Metrics))
	return ds, nil
}

// openReader opens path, or stdin for "-", decompressing ".gz" files.
func openReader(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	if !strings.HasSuffix(path, ".gz") {
		return f, nil
	}
	gz, err := gzip.NewReader(f)
	if err != nil {
		f.Close()
		return nil, errors.Wrap(err, "gzip")
	}
	return multiCloser{Reader: gz, closers: []io.Closer{gz, f}}, nil
}

// multiCloser reads from Reader and closes every closer in order.
type multiCloser struct {
	io.Reader
	closers []io.Closer
}

func (m multiCloser) Close() error {
	var first error
	for _, c := range m.closers {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	return first
}
