package profile

import (
	"bufio"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/go-kit/log"
	"github.com/go-kit/log/level"
	"github.com/pkg/errors"

	"github.com/jerrinot/pp-query/internal/pathname"
)

const (
	multiDirPrefix   = "MULTI__"
	headerMulti      = "templated_functions_MULTI_"
	headerSingle     = "templated_functions"
	defaultTAUMetric = "TIME"
)

var (
	tauFileRe   = regexp.MustCompile(`^profile\.(\d+)\.(\d+)\.(\d+)$`)
	tauFuncRe   = regexp.MustCompile(`^"(.*)"\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)\s+(\S+)(?:\s+GROUP="([^"]*)")?`)
	tauHeaderRe = regexp.MustCompile(`^(\d+)\s+(\S+)`)
)

// isTAUFile reports whether base is a TAU per-thread profile file name.
func isTAUFile(base string) bool { return tauFileRe.MatchString(base) }

// nct is a TAU (node, context, thread) triple.
type nct [3]int

func (k nct) String() string {
	return strconv.Itoa(k[0]) + "," + strconv.Itoa(k[1]) + "," + strconv.Itoa(k[2])
}

func nctLess(a, b nct) bool {
	for i := range a {
		if a[i] != b[i] {
			return a[i] < b[i]
		}
	}
	return false
}

type tauFunc struct {
	name   string
	groups []string
	values Values
}

type tauProfile struct {
	thread nct
	metric string
	funcs  []tauFunc
}

// parseTAU reads a TAU profile directory (profile.N.C.T files, or one
// MULTI__<metric> subdirectory per metric) or a single profile.N.C.T file.
func parseTAU(path string, logger log.Logger) (*Dataset, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	var profiles []tauProfile
	if !fi.IsDir() {
		p, err := parseTAUFile(path, "", logger)
		if err != nil {
			return nil, err
		}
		profiles = append(profiles, p)
	} else {
		profiles, err = parseTAUDir(path, logger)
		if err != nil {
			return nil, err
		}
	}
	if len(profiles) == 0 {
		return nil, errors.Errorf("no TAU profile files in %s", path)
	}
	return mergeTAU(profiles), nil
}

func parseTAUDir(dir string, logger log.Logger) ([]tauProfile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read profile directory")
	}
	var multi []string
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), multiDirPrefix) {
			multi = append(multi, e.Name())
		}
	}
	if len(multi) == 0 {
		return parseTAUFiles(dir, "", logger)
	}
	sort.SliceStable(multi, func(i, j int) bool {
		// TIME first, the rest alphabetically
		if (multi[i] == multiDirPrefix+defaultTAUMetric) != (multi[j] == multiDirPrefix+defaultTAUMetric) {
			return multi[i] == multiDirPrefix+defaultTAUMetric
		}
		return multi[i] < multi[j]
	})
	var out []tauProfile
	for _, m := range multi {
		ps, err := parseTAUFiles(filepath.Join(dir, m), strings.TrimPrefix(m, multiDirPrefix), logger)
		if err != nil {
			return nil, err
		}
		out = append(out, ps...)
	}
	return out, nil
}

func parseTAUFiles(dir, metric string, logger log.Logger) ([]tauProfile, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, errors.Wrap(err, "read profile directory")
	}
	var out []tauProfile
	for _, e := range entries {
		if e.IsDir() || !isTAUFile(e.Name()) {
			continue
		}
		p, err := parseTAUFile(filepath.Join(dir, e.Name()), metric, logger)
		if err != nil {
			return nil, err
		}
		out = append(out, p)
	}
	return out, nil
}

// parseTAUFile reads the function section of one profile.N.C.T file.
// Aggregates and user events that follow it are not used.
func parseTAUFile(path, metric string, logger log.Logger) (tauProfile, error) {
	m := tauFileRe.FindStringSubmatch(filepath.Base(path))
	if m == nil {
		return tauProfile{}, errors.Errorf("%s: not a profile.N.C.T file", path)
	}
	var p tauProfile
	for i := range p.thread {
		p.thread[i], _ = strconv.Atoi(m[i+1])
	}

	f, err := os.Open(path)
	if err != nil {
		return tauProfile{}, err
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 64*1024*1024)
	if !scanner.Scan() {
		return tauProfile{}, errors.Errorf("%s: empty profile", path)
	}
	hm := tauHeaderRe.FindStringSubmatch(strings.TrimSpace(scanner.Text()))
	if hm == nil || !strings.HasPrefix(hm[2], headerSingle) {
		return tauProfile{}, errors.Errorf("%s: bad header %q", path, scanner.Text())
	}
	count, _ := strconv.Atoi(hm[1])
	p.metric = metric
	if p.metric == "" {
		p.metric = defaultTAUMetric
		if strings.HasPrefix(hm[2], headerMulti) {
			p.metric = strings.TrimPrefix(hm[2], headerMulti)
		}
	}

	// "# Name Calls Subrs Excl Incl ProfileCalls #", maybe with metadata
	if !scanner.Scan() {
		return tauProfile{}, errors.Errorf("%s: truncated profile", path)
	}

	lineNo := 2
	for len(p.funcs) < count && scanner.Scan() {
		lineNo++
		fm := tauFuncRe.FindStringSubmatch(scanner.Text())
		if fm == nil {
			level.Debug(logger).Log("msg", "skipping malformed function line", "file", path, "line", lineNo)
			continue
		}
		var nums [5]float64
		ok := true
		for i := range nums {
			v, err := strconv.ParseFloat(fm[i+2], 64)
			if err != nil {
				ok = false
				break
			}
			nums[i] = v
		}
		if !ok {
			level.Debug(logger).Log("msg", "skipping function line with bad numbers", "file", path, "line", lineNo)
			continue
		}
		p.funcs = append(p.funcs, tauFunc{
			name:   strings.TrimSpace(fm[1]),
			groups: splitGroups(fm[7]),
			values: Values{Calls: nums[0], Subroutines: nums[1], Exclusive: nums[2], Inclusive: nums[3]},
		})
	}
	if err := scanner.Err(); err != nil {
		return tauProfile{}, errors.Wrapf(err, "read %s", path)
	}
	return p, nil
}

func splitGroups(s string) []string {
	var out []string
	for _, g := range strings.Split(s, "|") {
		if g = strings.TrimSpace(g); g != "" {
			out = append(out, g)
		}
	}
	return out
}

func mergeTAU(profiles []tauProfile) *Dataset {
	ds := &Dataset{Format: "tau"}

	metricIdx := make(map[string]int)
	var triples []nct
	seenThread := make(map[nct]bool)
	for _, p := range profiles {
		if _, ok := metricIdx[p.metric]; !ok {
			metricIdx[p.metric] = len(ds.Metrics)
			ds.Metrics = append(ds.Metrics, p.metric)
		}
		if !seenThread[p.thread] {
			seenThread[p.thread] = true
			triples = append(triples, p.thread)
		}
	}
	sort.Slice(triples, func(i, j int) bool { return nctLess(triples[i], triples[j]) })
	threadID := make(map[nct]int, len(triples))
	for i, t := range triples {
		threadID[t] = i
		ds.Threads = append(ds.Threads, Thread{ID: i, Name: t.String()})
	}

	type recKey struct {
		thread int
		name   string
	}
	records := make(map[recKey]*Record)
	for _, p := range profiles {
		tid := threadID[p.thread]
		m := metricIdx[p.metric]
		for _, fn := range p.funcs {
			key := recKey{tid, fn.name}
			r, ok := records[key]
			if !ok {
				r = &Record{
					Thread:  tid,
					Name:    fn.name,
					Path:    pathname.Split(fn.name, pathname.Detect(fn.name)),
					Groups:  fn.groups,
					Metrics: make(map[int]Values),
				}
				records[key] = r
				ds.Records = append(ds.Records, r)
			}
			r.Metrics[m] = fn.values
		}
	}
	sort.SliceStable(ds.Records, func(i, j int) bool { return ds.Records[i].Thread < ds.Records[j].Thread })
	return ds
}
