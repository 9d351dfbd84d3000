// Package profile holds the per-thread performance records loaded from
// profile files and the readers that produce them.
package profile

import (
	"strconv"
	"strings"

	"github.com/pkg/errors"
	"github.com/samber/lo"
)

// Well-known group names.
const (
	GroupCallPath = "TAU_CALLPATH"
	GroupDefault  = "TAU_DEFAULT"
	GroupSample   = "TAU_SAMPLE"
)

// MeanThreadID identifies the synthetic thread added by AddMeanThread.
const MeanThreadID = -1

// Values is one metric's measurement for a record.
type Values struct {
	Inclusive   float64
	Exclusive   float64
	Calls       float64
	Subroutines float64
}

// Record is one aggregated measurement for a (thread, call path) pair.
type Record struct {
	Thread  int
	Name    string   // as loaded
	Path    []string // call order, outermost caller first
	Groups  []string
	Metrics map[int]Values
}

// IsCallPath reports whether the record names a chain of calls rather
// than a single function.
func (r *Record) IsCallPath() bool { return len(r.Path) > 1 }

func (r *Record) InGroup(group string) bool {
	return lo.Contains(r.Groups, group)
}

// Value returns the values of metric m, or false when the record has no
// measurement for it.
func (r *Record) Value(m int) (Values, bool) {
	v, ok := r.Metrics[m]
	return v, ok
}

// Leaf is the innermost function of the record's path.
func (r *Record) Leaf() string {
	if len(r.Path) == 0 {
		return r.Name
	}
	return r.Path[len(r.Path)-1]
}

type Thread struct {
	ID   int
	Name string
}

// Dataset is everything loaded from one input.
type Dataset struct {
	Format  string
	Metrics []string
	Threads []Thread
	Records []*Record
}

// MetricIndex returns the index of the named metric. An empty name
// selects the first metric.
func (d *Dataset) MetricIndex(name string) (int, error) {
	if len(d.Metrics) == 0 {
		return 0, errors.New("profile has no metrics")
	}
	if name == "" {
		return 0, nil
	}
	for i, m := range d.Metrics {
		if strings.EqualFold(m, name) {
			return i, nil
		}
	}
	return 0, errors.Errorf("unknown metric %q (available: %s)", name, strings.Join(d.Metrics, ", "))
}

// FindThread resolves a thread selector: an exact thread name, a numeric
// thread id, "mean", or a substring of a thread name. An empty selector
// picks the first thread.
func (d *Dataset) FindThread(sel string) (Thread, error) {
	if len(d.Threads) == 0 {
		return Thread{}, errors.New("profile has no threads")
	}
	if sel == "" {
		return d.Threads[0], nil
	}
	for _, t := range d.Threads {
		if t.Name == sel {
			return t, nil
		}
	}
	if id, err := strconv.Atoi(sel); err == nil {
		for _, t := range d.Threads {
			if t.ID == id {
				return t, nil
			}
		}
	}
	for _, t := range d.Threads {
		if strings.Contains(t.Name, sel) {
			return t, nil
		}
	}
	return Thread{}, errors.Errorf("no thread matching %q", sel)
}

// ThreadRecords returns the records of one thread in load order.
func (d *Dataset) ThreadRecords(thread int) []*Record {
	return lo.Filter(d.Records, func(r *Record, _ int) bool { return r.Thread == thread })
}

// Flat returns the non-call-path records of a thread. Members of the
// TAU_SAMPLE group are left out unless includeSamples is set.
func (d *Dataset) Flat(thread int, includeSamples bool) []*Record {
	return lo.Filter(d.Records, func(r *Record, _ int) bool {
		if r.Thread != thread || r.IsCallPath() || r.InGroup(GroupCallPath) {
			return false
		}
		return includeSamples || !r.InGroup(GroupSample)
	})
}

// Total returns the largest inclusive value of metric m within a thread,
// which is the thread's total for well-formed profiles.
func (d *Dataset) Total(thread, m int) float64 {
	var total float64
	for _, r := range d.Records {
		if r.Thread != thread {
			continue
		}
		if v, ok := r.Metrics[m]; ok && v.Inclusive > total {
			total = v.Inclusive
		}
	}
	return total
}

// AddMeanThread appends a thread whose records average every record name
// over all threads. Threads lacking a record count as zero. Datasets with
// fewer than two threads are left unchanged.
func (d *Dataset) AddMeanThread() {
	if len(d.Threads) < 2 {
		return
	}
	n := float64(len(d.Threads))
	byName := make(map[string]*Record)
	var order []*Record
	for _, r := range d.Records {
		if r.Thread == MeanThreadID {
			return
		}
		mean, ok := byName[r.Name]
		if !ok {
			mean = &Record{
				Thread:  MeanThreadID,
				Name:    r.Name,
				Path:    r.Path,
				Groups:  r.Groups,
				Metrics: make(map[int]Values),
			}
			byName[r.Name] = mean
			order = append(order, mean)
		}
		for m, v := range r.Metrics {
			acc := mean.Metrics[m]
			acc.Inclusive += v.Inclusive / n
			acc.Exclusive += v.Exclusive / n
			acc.Calls += v.Calls / n
			acc.Subroutines += v.Subroutines / n
			mean.Metrics[m] = acc
		}
	}
	d.Threads = append(d.Threads, Thread{ID: MeanThreadID, Name: "mean"})
	d.Records = append(d.Records, order...)
}
