// Package callpath rebuilds call trees from flat per-thread call-path
// records and keeps them sorted for display.
package callpath

import (
	"context"
	"runtime"
	"sort"

	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/jerrinot/pp-query/internal/pathname"
	"github.com/jerrinot/pp-query/internal/profile"
)

// Index holds one ThreadIndex per thread.
type Index struct {
	dir     pathname.Direction
	threads map[int]*ThreadIndex
}

type pathEntry struct {
	key    PathKey
	record *profile.Record
}

// ThreadIndex answers root and child queries for one thread.
type ThreadIndex struct {
	thread int
	dir    pathname.Direction
	exact  map[PathKey]*profile.Record
	paths  []pathEntry // call-path records, load order
}

// ChildKey is a child of some node. Record is nil when no record exists
// for the exact path and the child is only implied by deeper paths.
type ChildKey struct {
	Key    PathKey
	Record *profile.Record
}

// Build groups records by thread and indexes every thread. Threads are
// indexed concurrently; records are only read.
func Build(ctx context.Context, records []*profile.Record, dir pathname.Direction) (*Index, error) {
	byThread := make(map[int][]*profile.Record)
	for _, r := range records {
		byThread[r.Thread] = append(byThread[r.Thread], r)
	}
	ids := lo.Keys(byThread)
	sort.Ints(ids)

	results := make([]*ThreadIndex, len(ids))
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(runtime.GOMAXPROCS(0))
	for i, id := range ids {
		i, id := i, id
		g.Go(func() error {
			if err := ctx.Err(); err != nil {
				return err
			}
			results[i] = BuildThread(id, byThread[id], dir)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	ix := &Index{dir: dir, threads: make(map[int]*ThreadIndex, len(ids))}
	for _, t := range results {
		ix.threads[t.thread] = t
	}
	return ix, nil
}

// BuildThread indexes the records of a single thread. Records of other
// threads are ignored.
func BuildThread(thread int, records []*profile.Record, dir pathname.Direction) *ThreadIndex {
	t := &ThreadIndex{
		thread: thread,
		dir:    dir,
		exact:  make(map[PathKey]*profile.Record, len(records)),
	}
	for _, r := range records {
		if r.Thread != thread || len(r.Path) == 0 {
			continue
		}
		key := keyFor(r.Path, dir)
		if _, dup := t.exact[key]; !dup {
			t.exact[key] = r
		}
		if r.IsCallPath() {
			t.paths = append(t.paths, pathEntry{key: key, record: r})
		}
	}
	return t
}

func (ix *Index) Direction() pathname.Direction { return ix.dir }

// Thread returns the index of one thread, or nil if the thread has no
// records.
func (ix *Index) Thread(id int) *ThreadIndex { return ix.threads[id] }

// Threads returns the indexed thread ids in ascending order.
func (ix *Index) Threads() []int {
	ids := lo.Keys(ix.threads)
	sort.Ints(ids)
	return ids
}

// RootKeys returns the root keys of a thread's tree.
func (ix *Index) RootKeys(thread int) []PathKey {
	if t := ix.threads[thread]; t != nil {
		return t.RootKeys()
	}
	return nil
}

func (t *ThreadIndex) ID() int                       { return t.thread }
func (t *ThreadIndex) Direction() pathname.Direction { return t.dir }

// Len returns the number of call-path records in the thread.
func (t *ThreadIndex) Len() int { return len(t.paths) }

// Lookup returns the record whose path is exactly key.
func (t *ThreadIndex) Lookup(key PathKey) (*profile.Record, bool) {
	r, ok := t.exact[key]
	return r, ok
}

// RootKeys returns the distinct leading segments of the thread's call-path
// records, in first-appearance order. Single-function records never
// contribute roots.
func (t *ThreadIndex) RootKeys() []PathKey {
	seen := make(map[PathKey]bool)
	var roots []PathKey
	for _, e := range t.paths {
		k := e.key.Prefix(1)
		if !seen[k] {
			seen[k] = true
			roots = append(roots, k)
		}
	}
	return roots
}

// ChildKeys returns the distinct keys one segment longer than parent that
// start with it, in first-appearance order. A child with a record for its
// exact path is returned with that record; a child only implied by deeper
// paths is returned with a nil record.
func (t *ThreadIndex) ChildKeys(parent PathKey) []ChildKey {
	depth := parent.Len() + 1
	seen := make(map[PathKey]bool)
	var children []ChildKey
	for _, e := range t.paths {
		if e.key.Len() < depth || !e.key.HasProperPrefix(parent) {
			continue
		}
		k := e.key.Prefix(depth)
		if seen[k] {
			continue
		}
		seen[k] = true
		children = append(children, ChildKey{Key: k, Record: t.exact[k]})
	}
	return children
}
