// Package pathname splits and joins call-path names such as
// "main => foo => bar" or, reversed, "bar <= foo <= main".
package pathname

import (
	"regexp"
	"strconv"
	"strings"
)

// Direction is the delimiter convention of a call-path string.
type Direction int

const (
	// Forward lists the outermost caller first: "main => foo".
	Forward Direction = iota
	// Reversed lists the innermost callee first: "foo <= main".
	Reversed
)

const (
	forwardDelim  = " => "
	reversedDelim = " <= "
)

func (d Direction) String() string {
	if d == Reversed {
		return "reversed"
	}
	return "forward"
}

// Delimiter returns the segment delimiter, including surrounding spaces.
func (d Direction) Delimiter() string {
	if d == Reversed {
		return reversedDelim
	}
	return forwardDelim
}

// Detect guesses the direction of a path string. Strings without either
// delimiter are treated as forward.
func Detect(path string) Direction {
	if strings.Contains(path, forwardDelim) {
		return Forward
	}
	if strings.Contains(path, reversedDelim) {
		return Reversed
	}
	return Forward
}

// Split returns the segments of path in call order, outermost caller
// first, regardless of dir. A malformed path (empty, or with an empty
// segment left by a dangling delimiter) yields a single segment equal to
// the trimmed input.
func Split(path string, dir Direction) []string {
	parts := strings.Split(path, dir.Delimiter())
	if len(parts) == 1 {
		return []string{strings.TrimSpace(path)}
	}
	out := make([]string, len(parts))
	for i, p := range parts {
		p = strings.TrimSpace(p)
		if p == "" {
			return []string{strings.TrimSpace(path)}
		}
		out[i] = p
	}
	if dir == Reversed {
		reverse(out)
	}
	return out
}

// Join is the inverse of Split: segments are given in call order.
func Join(segments []string, dir Direction) string {
	if dir == Reversed {
		rev := make([]string, len(segments))
		copy(rev, segments)
		reverse(rev)
		return strings.Join(rev, reversedDelim)
	}
	return strings.Join(segments, forwardDelim)
}

// Leftmost returns the first segment of path as written.
func Leftmost(path string) string {
	dir := Detect(path)
	segs := Split(path, dir)
	if dir == Reversed {
		return segs[len(segs)-1]
	}
	return segs[0]
}

// Rightmost returns the last segment of path as written.
func Rightmost(path string) string {
	dir := Detect(path)
	segs := Split(path, dir)
	if dir == Reversed {
		return segs[0]
	}
	return segs[len(segs)-1]
}

func reverse(s []string) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

var (
	throttledRe = regexp.MustCompile(`\s*\[THROTTLED\]`)
	locationRe  = regexp.MustCompile(`\s*\[\{([^}]*)\}\s*\{(\d+)(?:,(\d+))?\}(?:-\{(\d+)(?:,(\d+))?\})?\]`)
)

// StripAnnotations removes throttle tags and source-location suffixes
// from a segment. Used for display; lookups keep the raw segment.
func StripAnnotations(segment string) string {
	s := throttledRe.ReplaceAllString(segment, "")
	s = locationRe.ReplaceAllString(s, "")
	return strings.TrimSpace(s)
}

// Location is a source range attached to a segment, e.g.
// "foo [{foo.c} {12,1}-{20,1}]".
type Location struct {
	File      string
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
}

// SourceLocation extracts the source-location annotation of a segment.
func SourceLocation(segment string) (Location, bool) {
	m := locationRe.FindStringSubmatch(segment)
	if m == nil {
		return Location{}, false
	}
	loc := Location{File: m[1]}
	loc.StartLine, _ = strconv.Atoi(m[2])
	loc.StartCol, _ = strconv.Atoi(m[3])
	loc.EndLine, _ = strconv.Atoi(m[4])
	loc.EndCol, _ = strconv.Atoi(m[5])
	return loc, true
}
