package profile

import (
	"strings"
)

// stack is one sampled call stack with its per-metric sample values.
type stack struct {
	frames []string // root → leaf order
	values []float64
	thread string // "" if unknown
}

// stackKey is used to aggregate identical stack prefixes.
type stackKey struct {
	path   string // NUL-joined
	thread int
}

// fromStacks aggregates sampled stacks into records: one call-path record
// per distinct stack prefix of two or more frames and one flat record per
// function. Inclusive counts samples passing through a path or function,
// exclusive counts samples ending there.
func fromStacks(format string, metrics []string, stacks []stack) *Dataset {
	ds := &Dataset{Format: format, Metrics: metrics}
	threadIDs := make(map[string]int)
	records := make(map[stackKey]*Record)

	get := func(thread int, path []string) *Record {
		key := stackKey{path: strings.Join(path, "\x00"), thread: thread}
		if r, ok := records[key]; ok {
			return r
		}
		p := make([]string, len(path))
		copy(p, path)
		group := GroupDefault
		if len(p) > 1 {
			group = GroupCallPath
		}
		r := &Record{
			Thread:  thread,
			Name:    strings.Join(p, " => "),
			Path:    p,
			Groups:  []string{group},
			Metrics: make(map[int]Values, len(metrics)),
		}
		records[key] = r
		ds.Records = append(ds.Records, r)
		return r
	}

	for i := range stacks {
		st := &stacks[i]
		if len(st.frames) == 0 {
			continue
		}
		name := st.thread
		if name == "" {
			name = "all"
		}
		tid, ok := threadIDs[name]
		if !ok {
			tid = len(ds.Threads)
			threadIDs[name] = tid
			ds.Threads = append(ds.Threads, Thread{ID: tid, Name: name})
		}

		leaf := len(st.frames) - 1
		for depth := 2; depth <= len(st.frames); depth++ {
			r := get(tid, st.frames[:depth])
			add(r, st.values, depth-1 == leaf)
		}
		seen := make(map[string]bool, len(st.frames))
		for j, fr := range st.frames {
			if seen[fr] {
				// recursion: count inclusive once, but a recursive leaf is still self time
				if j == leaf {
					addExclusive(get(tid, st.frames[j:j+1]), st.values)
				}
				continue
			}
			seen[fr] = true
			add(get(tid, st.frames[j:j+1]), st.values, j == leaf)
		}
	}
	return ds
}

func add(r *Record, values []float64, self bool) {
	for m, v := range values {
		acc := r.Metrics[m]
		acc.Inclusive += v
		if self {
			acc.Exclusive += v
		}
		r.Metrics[m] = acc
	}
}

func addExclusive(r *Record, values []float64) {
	for m, v := range values {
		acc := r.Metrics[m]
		acc.Exclusive += v
		r.Metrics[m] = acc
	}
}
