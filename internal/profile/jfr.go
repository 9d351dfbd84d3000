package profile

import (
	"io"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/grafana/jfr-parser/parser"
	"github.com/grafana/jfr-parser/parser/types"
	"github.com/grafana/jfr-parser/parser/types/def"
	"github.com/pkg/errors"
)

// JFR event selectors accepted by Options.Event.
var JFREvents = []string{"cpu", "wall", "alloc", "lock"}

// jfrKind returns the selector an event type is counted under, or "" for
// event types pp-query does not read.
func jfrKind(tm *def.TypeMap, typ def.TypeID) string {
	switch typ {
	case tm.T_EXECUTION_SAMPLE:
		return "cpu"
	case tm.T_WALL_CLOCK_SAMPLE:
		return "wall"
	case tm.T_ALLOC_IN_NEW_TLAB, tm.T_ALLOC_OUTSIDE_TLAB, tm.T_ALLOC_SAMPLE:
		return "alloc"
	case tm.T_MONITOR_ENTER:
		return "lock"
	}
	return ""
}

// sampleRefs returns the stack trace and thread of the event just parsed.
func sampleRefs(p *parser.Parser, typ def.TypeID) (types.StackTraceRef, types.ThreadRef) {
	tm := &p.TypeMap
	switch typ {
	case tm.T_EXECUTION_SAMPLE:
		return p.ExecutionSample.StackTrace, p.ExecutionSample.SampledThread
	case tm.T_WALL_CLOCK_SAMPLE:
		return p.WallClockSample.StackTrace, p.WallClockSample.SampledThread
	case tm.T_ALLOC_IN_NEW_TLAB:
		return p.ObjectAllocationInNewTLAB.StackTrace, p.ObjectAllocationInNewTLAB.EventThread
	case tm.T_ALLOC_OUTSIDE_TLAB:
		return p.ObjectAllocationOutsideTLAB.StackTrace, p.ObjectAllocationOutsideTLAB.EventThread
	case tm.T_ALLOC_SAMPLE:
		return p.ObjectAllocationSample.StackTrace, p.ObjectAllocationSample.EventThread
	default:
		return p.JavaMonitorEnter.StackTrace, p.JavaMonitorEnter.EventThread
	}
}

// methodName names a frame "pkg.Class.method". References are only valid
// within the chunk being parsed, so names are resolved per event.
func methodName(p *parser.Parser, ref types.MethodRef) string {
	m := p.GetMethod(ref)
	if m == nil {
		return "<unknown>"
	}
	name := p.GetSymbolString(m.Name)
	if class := p.GetClass(m.Type); class != nil {
		if cn := p.GetSymbolString(class.Name); cn != "" {
			name = strings.ReplaceAll(cn, "/", ".") + "." + name
		}
	}
	return name
}

// threadName prefers the Java thread name over the OS one; "" when unknown.
func threadName(p *parser.Parser, ref types.ThreadRef) string {
	idx, ok := p.Threads.IDMap[ref]
	if !ok {
		return ""
	}
	t := &p.Threads.Thread[idx]
	if t.JavaName != "" {
		return t.JavaName
	}
	return t.OsName
}

// scanJFR parses every event of a JFR recording and hands each supported
// one to fn with its selector.
func scanJFR(path string, fn func(p *parser.Parser, typ def.TypeID, kind string)) error {
	rc, err := openReader(path)
	if err != nil {
		return err
	}
	buf, err := io.ReadAll(rc)
	rc.Close()
	if err != nil {
		return errors.Wrapf(err, "read %s", path)
	}

	p := parser.NewParser(buf, parser.Options{})
	for {
		typ, err := p.ParseEvent()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return errors.Wrap(err, "parse event")
		}
		if kind := jfrKind(&p.TypeMap, typ); kind != "" {
			fn(p, typ, kind)
		}
	}
}

// parseJFR reads the samples of one event selector as single-valued stacks.
func parseJFR(path, event string, logger log.Logger) (*Dataset, error) {
	var (
		stacks  []stack
		skipped int
	)
	err := scanJFR(path, func(p *parser.Parser, typ def.TypeID, kind string) {
		if kind != event {
			return
		}
		stRef, thRef := sampleRefs(p, typ)
		st := p.GetStacktrace(stRef)
		if st == nil || len(st.Frames) == 0 {
			skipped++
			return
		}
		// recorded leaf first
		frames := make([]string, len(st.Frames))
		for i, f := range st.Frames {
			frames[len(frames)-1-i] = methodName(p, f.Method)
		}
		stacks = append(stacks, stack{frames: frames, values: []float64{1}, thread: threadName(p, thRef)})
	})
	if err != nil {
		return nil, err
	}
	if skipped > 0 {
		level.Debug(logger).Log("msg", "skipped events without stack trace", "event", event, "count", skipped)
	}
	return fromStacks("jfr", []string{strings.ToUpper(event)}, stacks), nil
}

// DiscoverEvents counts the events of a JFR recording per selector.
func DiscoverEvents(path string) (map[string]int, error) {
	counts := make(map[string]int)
	err := scanJFR(path, func(_ *parser.Parser, _ def.TypeID, kind string) {
		counts[kind]++
	})
	if err != nil {
		return nil, err
	}
	return counts, nil
}
