package callpath

import (
	"strings"

	"github.com/jerrinot/pp-query/internal/pathname"
)

const sep = "\x00"

// PathKey identifies a node of a call tree: an ordered list of segments,
// oriented by the tree's direction (outermost caller first for Forward,
// innermost callee first for Reversed). PathKeys are comparable and are
// used as map keys.
type PathKey struct {
	joined string
	n      int
	dir    pathname.Direction
}

// NewPathKey builds a key from segments already in tree orientation.
func NewPathKey(segments []string, dir pathname.Direction) PathKey {
	return PathKey{joined: strings.Join(segments, sep), n: len(segments), dir: dir}
}

// keyFor orients a record path, given in call order, for dir.
func keyFor(path []string, dir pathname.Direction) PathKey {
	if dir == pathname.Forward {
		return NewPathKey(path, dir)
	}
	rev := make([]string, len(path))
	for i, s := range path {
		rev[len(path)-1-i] = s
	}
	return NewPathKey(rev, dir)
}

func (k PathKey) Len() int                      { return k.n }
func (k PathKey) Direction() pathname.Direction { return k.dir }

func (k PathKey) Segments() []string {
	if k.n == 0 {
		return nil
	}
	return strings.Split(k.joined, sep)
}

// Last returns the final segment, the node's own function.
func (k PathKey) Last() string {
	if i := strings.LastIndex(k.joined, sep); i >= 0 {
		return k.joined[i+len(sep):]
	}
	return k.joined
}

// Prefix returns the key truncated to its first n segments.
func (k PathKey) Prefix(n int) PathKey {
	if n >= k.n {
		return k
	}
	if n <= 0 {
		return PathKey{dir: k.dir}
	}
	end, seen := 0, 0
	for i := 0; i < len(k.joined); i++ {
		if k.joined[i] == sep[0] {
			seen++
			if seen == n {
				end = i
				break
			}
		}
	}
	return PathKey{joined: k.joined[:end], n: n, dir: k.dir}
}

// HasProperPrefix reports whether p is a strict prefix of k.
func (k PathKey) HasProperPrefix(p PathKey) bool {
	return p.dir == k.dir && p.n < k.n && p.n > 0 && strings.HasPrefix(k.joined, p.joined+sep)
}

// String renders the key with the direction's delimiter, as it is
// written in profiles.
func (k PathKey) String() string {
	segs := k.Segments()
	if k.dir == pathname.Reversed {
		return strings.Join(segs, pathname.Reversed.Delimiter())
	}
	return strings.Join(segs, pathname.Forward.Delimiter())
}
