package pathname

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplit(t *testing.T) {
	tests := []struct {
		name string
		path string
		dir  Direction
		want []string
	}{
		{"forward", "main => foo => bar", Forward, []string{"main", "foo", "bar"}},
		{"reversed is reordered", "bar <= foo <= main", Reversed, []string{"main", "foo", "bar"}},
		{"segments are trimmed", "  main  =>  foo ", Forward, []string{"main", "foo"}},
		{"single", " main ", Forward, []string{"main"}},
		{"empty", "", Forward, []string{""}},
		{"dangling delimiter", "main => ", Forward, []string{"main =>"}},
		{"leading delimiter", " => foo", Forward, []string{"=> foo"}},
		{"wrong direction", "bar <= main", Forward, []string{"bar <= main"}},
		{"operator names survive", "a::operator<=(int) => b", Forward, []string{"a::operator<=(int)", "b"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, Split(tt.path, tt.dir))
		})
	}
}

func TestSplitJoinRoundTrip(t *testing.T) {
	inputs := [][]string{
		{"main"},
		{"main", "foo"},
		{"int main(int, char **) C", "void foo(void) C", "MPI_Send()"},
		{"a [{a.c} {1,1}-{2,1}]", "b"},
	}
	for _, segs := range inputs {
		for _, dir := range []Direction{Forward, Reversed} {
			joined := Join(segs, dir)
			assert.Equal(t, segs, Split(joined, dir), "dir=%s joined=%q", dir, joined)
		}
	}
}

func TestJoinDoesNotMutateInput(t *testing.T) {
	segs := []string{"a", "b", "c"}
	require.Equal(t, "c <= b <= a", Join(segs, Reversed))
	assert.Equal(t, []string{"a", "b", "c"}, segs)
}

func TestDetect(t *testing.T) {
	assert.Equal(t, Forward, Detect("a => b"))
	assert.Equal(t, Reversed, Detect("b <= a"))
	assert.Equal(t, Forward, Detect("a"))
}

func TestLeftmostRightmost(t *testing.T) {
	tests := []struct {
		path        string
		left, right string
	}{
		{"main => foo => bar", "main", "bar"},
		{"bar <= foo <= main", "bar", "main"},
		{"solo", "solo", "solo"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.left, Leftmost(tt.path), tt.path)
		assert.Equal(t, tt.right, Rightmost(tt.path), tt.path)
	}
}

func TestStripAnnotations(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"foo", "foo"},
		{"foo [THROTTLED]", "foo"},
		{"void foo(int) C [{foo.c} {12,1}-{20,1}]", "void foo(int) C"},
		{"[SAMPLE] foo [{foo.c} {7}]", "[SAMPLE] foo"},
		{"bar [{bar.f90} {3,5}-{9,2}] [THROTTLED]", "bar"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, StripAnnotations(tt.in), tt.in)
	}
}

func TestSourceLocation(t *testing.T) {
	loc, ok := SourceLocation("void foo(int) C [{src/foo.c} {12,3}-{20,1}]")
	require.True(t, ok)
	assert.Equal(t, Location{File: "src/foo.c", StartLine: 12, StartCol: 3, EndLine: 20, EndCol: 1}, loc)

	loc, ok = SourceLocation("[SAMPLE] bar [{bar.c} {7}]")
	require.True(t, ok)
	assert.Equal(t, Location{File: "bar.c", StartLine: 7}, loc)

	_, ok = SourceLocation("plain")
	assert.False(t, ok)
}
