package profile

import (
	"io"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/google/pprof/profile"
	"github.com/pkg/errors"
)

// threadLabels are the sample labels that name a thread, in preference order.
var threadLabels = []string{"thread", "thread_name", "goroutine"}

// parsePprof reads a (possibly gzipped) pprof profile. Every sample type
// becomes a metric.
func parsePprof(r io.Reader, logger log.Logger) (*Dataset, error) {
	p, err := profile.Parse(r)
	if err != nil {
		return nil, errors.Wrap(err, "parse pprof")
	}

	metrics := make([]string, len(p.SampleType))
	for i, st := range p.SampleType {
		metrics[i] = st.Type
		if st.Unit != "" && st.Unit != "count" {
			metrics[i] += "(" + st.Unit + ")"
		}
	}

	stacks := make([]stack, 0, len(p.Sample))
	for _, s := range p.Sample {
		var frames []string
		// Locations are leaf-first and within a location the last line is
		// the caller the others were inlined into.
		for i := len(s.Location) - 1; i >= 0; i-- {
			loc := s.Location[i]
			for j := len(loc.Line) - 1; j >= 0; j-- {
				if fn := loc.Line[j].Function; fn != nil && fn.Name != "" {
					frames = append(frames, fn.Name)
				}
			}
			if len(loc.Line) == 0 {
				frames = append(frames, "<unknown>")
			}
		}
		if len(frames) == 0 {
			continue
		}
		values := make([]float64, len(s.Value))
		for i, v := range s.Value {
			values[i] = float64(v)
		}
		stacks = append(stacks, stack{frames: frames, values: values, thread: sampleThread(s)})
	}
	level.Debug(logger).Log("msg", "read pprof profile", "samples", len(p.Sample), "metrics", len(metrics))
	return fromStacks("pprof", metrics, stacks), nil
}

func sampleThread(s *profile.Sample) string {
	for _, l := range threadLabels {
		if v := s.Label[l]; len(v) > 0 {
			return v[0]
		}
	}
	return ""
}
