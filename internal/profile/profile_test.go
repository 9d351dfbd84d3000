package profile

import (
	"bytes"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/go-kit/log"
	"github.com/google/pprof/profile"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0o755))
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
}

func findRecord(t *testing.T, ds *Dataset, thread int, name string) *Record {
	t.Helper()
	for _, r := range ds.Records {
		if r.Thread == thread && r.Name == name {
			return r
		}
	}
	t.Fatalf("no record %q on thread %d", name, thread)
	return nil
}

const tauThread0 = `4 templated_functions_MULTI_TIME
# Name Calls Subrs Excl Incl ProfileCalls # <metadata><attribute><name>Node</name><value>0</value></attribute></metadata>
"int main(int, char **) C" 1 2 10 100 0 GROUP="TAU_DEFAULT"
"int main(int, char **) C => void init() C" 1 0 10 10 0 GROUP="TAU_DEFAULT | TAU_CALLPATH"
"int main(int, char **) C => void loop() C => void step() C" 8 0 80 80 0 GROUP="TAU_CALLPATH"
"[SAMPLE] spin [{spin.c} {3}]" 5 0 5 5 0 GROUP="TAU_SAMPLE"
0 aggregates
`

const tauThread1 = `2 templated_functions_MULTI_TIME
# Name Calls Subrs Excl Incl ProfileCalls #
"int main(int, char **) C" 1 1 20 60 0 GROUP="TAU_DEFAULT"
"int main(int, char **) C => void init() C" 1 0 40 40 0 GROUP="TAU_CALLPATH"
0 aggregates
`

func TestParseTAUDirectory(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "profile.0.0.0"), tauThread0)
	writeFile(t, filepath.Join(dir, "profile.0.0.1"), tauThread1)
	writeFile(t, filepath.Join(dir, "README"), "ignored")

	ds, err := Open(dir, Options{}, log.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, "tau", ds.Format)
	assert.Equal(t, []string{"TIME"}, ds.Metrics)
	assert.Equal(t, []Thread{{0, "0,0,0"}, {1, "0,0,1"}}, ds.Threads)
	assert.Len(t, ds.Records, 6)

	step := findRecord(t, ds, 0, "int main(int, char **) C => void loop() C => void step() C")
	assert.Equal(t, []string{"int main(int, char **) C", "void loop() C", "void step() C"}, step.Path)
	assert.Equal(t, []string{"TAU_CALLPATH"}, step.Groups)
	assert.True(t, step.IsCallPath())
	v, ok := step.Value(0)
	require.True(t, ok)
	assert.Equal(t, Values{Inclusive: 80, Exclusive: 80, Calls: 8}, v)

	initRec := findRecord(t, ds, 0, "int main(int, char **) C => void init() C")
	assert.Equal(t, []string{"TAU_DEFAULT", "TAU_CALLPATH"}, initRec.Groups)

	main1 := findRecord(t, ds, 1, "int main(int, char **) C")
	v, _ = main1.Value(0)
	assert.Equal(t, 60.0, v.Inclusive)
	assert.Equal(t, 1.0, v.Subroutines)
}

func TestParseTAUMultiMetric(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "MULTI__PAPI_FP_INS", "profile.0.0.0"), `1 templated_functions_MULTI_PAPI_FP_INS
# Name Calls Subrs Excl Incl ProfileCalls #
"main" 1 0 5000 9000 0 GROUP="TAU_DEFAULT"
`)
	writeFile(t, filepath.Join(dir, "MULTI__TIME", "profile.0.0.0"), `2 templated_functions_MULTI_TIME
# Name Calls Subrs Excl Incl ProfileCalls #
"main" 1 1 10 100 0 GROUP="TAU_DEFAULT"
"main => foo" 1 0 90 90 0 GROUP="TAU_CALLPATH"
`)

	ds, err := Open(dir, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"TIME", "PAPI_FP_INS"}, ds.Metrics)

	main := findRecord(t, ds, 0, "main")
	assert.Equal(t, Values{Inclusive: 100, Exclusive: 10, Calls: 1, Subroutines: 1}, main.Metrics[0])
	assert.Equal(t, Values{Inclusive: 9000, Exclusive: 5000, Calls: 1}, main.Metrics[1])

	foo := findRecord(t, ds, 0, "main => foo")
	_, ok := foo.Value(1)
	assert.False(t, ok, "metric absent from the PAPI directory")
}

func TestParseTAUSingleFileAndBadHeader(t *testing.T) {
	dir := t.TempDir()
	good := filepath.Join(dir, "profile.2.0.3")
	writeFile(t, good, `1 templated_functions
# Name Calls Subrs Excl Incl ProfileCalls #
"main" 1 0 1.5E+01 2.5E+01 0
`)
	ds, err := Open(good, Options{}, nil)
	require.NoError(t, err)
	assert.Equal(t, []string{"TIME"}, ds.Metrics)
	assert.Equal(t, "2,0,3", ds.Threads[0].Name)
	assert.Equal(t, 25.0, ds.Records[0].Metrics[0].Inclusive)
	assert.Empty(t, ds.Records[0].Groups)

	bad := filepath.Join(dir, "sub", "profile.0.0.0")
	writeFile(t, bad, "garbage\n")
	_, err = Open(bad, Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad header")
}

func TestParseTAUSkipsMalformedLines(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "profile.0.0.0"), `2 templated_functions
# Name Calls Subrs Excl Incl ProfileCalls #
not a function line
"main" 1 0 x 10 0 GROUP="TAU_DEFAULT"
"main" 1 0 10 10 0 GROUP="TAU_DEFAULT"
`)
	ds, err := Open(dir, Options{}, nil)
	require.NoError(t, err)
	require.Len(t, ds.Records, 1)
	assert.Equal(t, 10.0, ds.Records[0].Metrics[0].Exclusive)
}

func TestParseCollapsed(t *testing.T) {
	input := strings.Join([]string{
		"[main tid=1];A;B;C 10",
		"[main tid=1];A;B 5",
		"[worker];A;D:42 3",
		"A;A;A 2",
		"garbage",
		"",
	}, "\n")
	ds, err := parseCollapsed(strings.NewReader(input), log.NewNopLogger())
	require.NoError(t, err)

	assert.Equal(t, []string{"SAMPLES"}, ds.Metrics)
	assert.Equal(t, []Thread{{0, "main"}, {1, "worker"}, {2, "all"}}, ds.Threads)

	ab := findRecord(t, ds, 0, "A => B")
	assert.Equal(t, Values{Inclusive: 15, Exclusive: 5}, ab.Metrics[0])
	abc := findRecord(t, ds, 0, "A => B => C")
	assert.Equal(t, Values{Inclusive: 10, Exclusive: 10}, abc.Metrics[0])
	a := findRecord(t, ds, 0, "A")
	assert.Equal(t, Values{Inclusive: 15}, a.Metrics[0])
	assert.Equal(t, []string{GroupDefault}, a.Groups)
	assert.Equal(t, []string{GroupCallPath}, ab.Groups)

	// line annotations are dropped
	findRecord(t, ds, 1, "A => D")

	// recursion counts inclusive once per stack
	rec := findRecord(t, ds, 2, "A")
	assert.Equal(t, Values{Inclusive: 2, Exclusive: 2}, rec.Metrics[0])
	findRecord(t, ds, 2, "A => A => A")
}

func TestParsePprof(t *testing.T) {
	fMain := &profile.Function{ID: 1, Name: "main.main"}
	fWork := &profile.Function{ID: 2, Name: "main.work"}
	fInl := &profile.Function{ID: 3, Name: "main.inlined"}
	lMain := &profile.Location{ID: 1, Address: 0x10, Line: []profile.Line{{Function: fMain, Line: 5}}}
	// inlined is the leaf, work the caller it was inlined into
	lWork := &profile.Location{ID: 2, Address: 0x20, Line: []profile.Line{{Function: fInl, Line: 9}, {Function: fWork, Line: 12}}}
	p := &profile.Profile{
		SampleType: []*profile.ValueType{{Type: "samples", Unit: "count"}, {Type: "cpu", Unit: "nanoseconds"}},
		PeriodType: &profile.ValueType{Type: "cpu", Unit: "nanoseconds"},
		Period:     1,
		Sample: []*profile.Sample{
			{Location: []*profile.Location{lWork, lMain}, Value: []int64{3, 300}, Label: map[string][]string{"thread": {"worker"}}},
			{Location: []*profile.Location{lMain}, Value: []int64{1, 100}},
		},
		Location: []*profile.Location{lMain, lWork},
		Function: []*profile.Function{fMain, fWork, fInl},
	}
	var buf bytes.Buffer
	require.NoError(t, p.Write(&buf))

	ds, err := parsePprof(&buf, log.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, []string{"samples", "cpu(nanoseconds)"}, ds.Metrics)
	assert.Equal(t, []Thread{{0, "worker"}, {1, "all"}}, ds.Threads)

	leaf := findRecord(t, ds, 0, "main.main => main.work => main.inlined")
	assert.Equal(t, Values{Inclusive: 3, Exclusive: 3}, leaf.Metrics[0])
	assert.Equal(t, Values{Inclusive: 300, Exclusive: 300}, leaf.Metrics[1])
	solo := findRecord(t, ds, 1, "main.main")
	assert.Equal(t, Values{Inclusive: 100, Exclusive: 100}, solo.Metrics[1])
}

func TestDetect(t *testing.T) {
	dir := t.TempDir()
	tests := []struct {
		path string
		want Kind
	}{
		{"-", KindCollapsed},
		{dir, KindTAU},
		{"/x/profile.0.0.0", KindTAU},
		{"rec.jfr", KindJFR},
		{"rec.JFR.gz", KindJFR},
		{"cpu.pb.gz", KindPprof},
		{"cpu.pprof", KindPprof},
		{"stacks.txt", KindCollapsed},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Detect(tt.path), tt.path)
	}
}

func TestOpenRejectsUnknownJFREvent(t *testing.T) {
	_, err := Open("rec.jfr", Options{Event: "gc"}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unknown event type")
}

func TestParseJFR(t *testing.T) {
	path := filepath.Join("testdata", "cpu.jfr.gz")

	counts, err := DiscoverEvents(path)
	require.NoError(t, err)
	require.Greater(t, counts["cpu"], 0)

	ds, err := Open(path, Options{Event: "cpu"}, log.NewNopLogger())
	require.NoError(t, err)
	assert.Equal(t, "jfr", ds.Format)
	assert.Equal(t, []string{"CPU"}, ds.Metrics)
	require.NotEmpty(t, ds.Threads)

	// every kept sample ends in exactly one function
	var self float64
	var fib bool
	for _, r := range ds.Records {
		if r.IsCallPath() {
			assert.Equal(t, GroupCallPath, r.Groups[0], r.Name)
			continue
		}
		v, ok := r.Value(0)
		require.True(t, ok, r.Name)
		assert.GreaterOrEqual(t, v.Inclusive, v.Exclusive, r.Name)
		self += v.Exclusive
		fib = fib || r.Name == "TracingContextKt.fib"
	}
	assert.Greater(t, self, 0.0)
	assert.LessOrEqual(t, self, float64(counts["cpu"]))
	assert.True(t, fib, "frames resolve to Class.method")
}

func TestParseJFRErrors(t *testing.T) {
	dir := t.TempDir()

	_, err := DiscoverEvents(filepath.Join(dir, "missing.jfr"))
	assert.Error(t, err)

	bad := filepath.Join(dir, "bad.jfr.gz")
	writeFile(t, bad, "not gzip")
	_, err = Open(bad, Options{}, nil)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "gzip")
}

func testDataset() *Dataset {
	return &Dataset{
		Metrics: []string{"TIME", "PAPI_L1_DCM"},
		Threads: []Thread{{0, "0,0,0"}, {1, "0,0,1"}},
		Records: []*Record{
			{Thread: 0, Name: "main", Path: []string{"main"}, Groups: []string{GroupDefault},
				Metrics: map[int]Values{0: {Inclusive: 100, Exclusive: 40, Calls: 1}}},
			{Thread: 0, Name: "main => a", Path: []string{"main", "a"}, Groups: []string{GroupCallPath},
				Metrics: map[int]Values{0: {Inclusive: 60, Exclusive: 60}}},
			{Thread: 0, Name: "spin", Path: []string{"spin"}, Groups: []string{GroupSample},
				Metrics: map[int]Values{0: {Inclusive: 5, Exclusive: 5}}},
			{Thread: 1, Name: "main", Path: []string{"main"}, Groups: []string{GroupDefault},
				Metrics: map[int]Values{0: {Inclusive: 50, Exclusive: 50, Calls: 3}}},
		},
	}
}

func TestFindThread(t *testing.T) {
	ds := testDataset()
	tests := []struct {
		sel     string
		want    int
		wantErr bool
	}{
		{"", 0, false},
		{"0,0,1", 1, false},
		{"1", 1, false},
		{",1", 1, false},
		{"7,7,7", 0, true},
	}
	for _, tt := range tests {
		th, err := ds.FindThread(tt.sel)
		if tt.wantErr {
			assert.Error(t, err, tt.sel)
			continue
		}
		require.NoError(t, err, tt.sel)
		assert.Equal(t, tt.want, th.ID, tt.sel)
	}
}

func TestMetricIndex(t *testing.T) {
	ds := testDataset()
	m, err := ds.MetricIndex("")
	require.NoError(t, err)
	assert.Equal(t, 0, m)
	m, err = ds.MetricIndex("papi_l1_dcm")
	require.NoError(t, err)
	assert.Equal(t, 1, m)
	_, err = ds.MetricIndex("CYCLES")
	assert.Error(t, err)
}

func TestFlat(t *testing.T) {
	ds := testDataset()
	names := func(rs []*Record) []string {
		var out []string
		for _, r := range rs {
			out = append(out, r.Name)
		}
		return out
	}
	assert.Equal(t, []string{"main"}, names(ds.Flat(0, false)))
	assert.Equal(t, []string{"main", "spin"}, names(ds.Flat(0, true)))
	assert.Equal(t, 100.0, ds.Total(0, 0))
	assert.Equal(t, 0.0, ds.Total(0, 1))
}

func TestAddMeanThread(t *testing.T) {
	ds := testDataset()
	ds.AddMeanThread()
	require.Len(t, ds.Threads, 3)
	assert.Equal(t, Thread{MeanThreadID, "mean"}, ds.Threads[2])

	mean := findRecord(t, ds, MeanThreadID, "main")
	assert.Equal(t, Values{Inclusive: 75, Exclusive: 45, Calls: 2}, mean.Metrics[0])
	a := findRecord(t, ds, MeanThreadID, "main => a")
	assert.Equal(t, 30.0, a.Metrics[0].Inclusive)

	// idempotent
	n := len(ds.Records)
	ds.AddMeanThread()
	assert.Len(t, ds.Records, n)
	assert.Len(t, ds.Threads, 3)
}
