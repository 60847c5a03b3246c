package tree

import (
	"context"
	"iter"
	"sync"

	"github.com/emirpasic/gods/maps/treemap"
	"go.uber.org/zap"
	"golang.org/x/sync/semaphore"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repopath"
	"github.com/systemshift/splice/internal/store"
)

// DiffEntry is one changed path. Err is set if the trees below Path could
// not be read; Before and After are then unset.
type DiffEntry struct {
	Path   repopath.Path
	Before Value
	After  Value
	Err    error
}

type entryDiff struct {
	name          string
	before, after Value
}

// mergedTreeEntryDiff joins the entries of two directories by name and keeps
// the names whose values differ.
func mergedTreeEntryDiff(trees1, trees2 merge.Merge[Tree], sameChange merge.SameChange) []entryDiff {
	entries1 := allTreeEntries(trees1, sameChange)
	entries2 := allTreeEntries(trees2, sameChange)
	var out []entryDiff
	i, j := 0, 0
	for i < len(entries1) || j < len(entries2) {
		var d entryDiff
		switch {
		case j == len(entries2) || (i < len(entries1) && entries1[i].name < entries2[j].name):
			d = entryDiff{name: entries1[i].name, before: entries1[i].value, after: AbsentValue()}
			i++
		case i == len(entries1) || entries2[j].name < entries1[i].name:
			d = entryDiff{name: entries2[j].name, before: AbsentValue(), after: entries2[j].value}
			j++
		default:
			d = entryDiff{name: entries1[i].name, before: entries1[i].value, after: entries2[j].value}
			i++
			j++
		}
		if !merge.Equal(d.before, d.after) {
			out = append(out, d)
		}
	}
	return out
}

// filterDiff replaces the sides that matcher does not select with absent.
// treeMatches reports whether the subtrees at path must be read.
func filterDiff(matcher repopath.Matcher, path repopath.Path, before, after Value) (Value, Value, bool) {
	treeBefore, treeAfter := IsTree(before), IsTree(after)
	treeMatches := (treeBefore || treeAfter) && matcher.Visit(path)
	fileMatches := (!treeBefore || !treeAfter) && matcher.Matches(path)
	if !((treeBefore && treeMatches) || (!treeBefore && fileMatches)) {
		before = AbsentValue()
	}
	if !((treeAfter && treeMatches) || (!treeAfter && fileMatches)) {
		after = AbsentValue()
	}
	return before, after, treeMatches
}

// diffTrees loads the trees for v, or a single empty tree if v is not a
// tree. Non-tree terms of a tree conflict count as empty.
func diffTrees(ctx context.Context, s *store.Store, dir repopath.Path, v Value) (merge.Merge[Tree], error) {
	if !IsTree(v) {
		return merge.Resolved(emptyTree(s, dir)), nil
	}
	return merge.TryMap(v, func(term backend.TreeValue) (Tree, error) {
		if !term.IsTree() {
			return emptyTree(s, dir), nil
		}
		return getTree(ctx, s, dir, term.TreeID())
	})
}

// DiffStream yields the paths whose values differ between m and other, in
// path order. Directories are reported as absent, so a path that changes
// from a file to a directory yields a deletion followed by additions.
func (m *MergedTree) DiffStream(ctx context.Context, other *MergedTree, matcher repopath.Matcher) iter.Seq[DiffEntry] {
	return withoutTrees(m.diffStreamInternal(ctx, other, matcher))
}

// DiffStreamForFileSystem is like DiffStream but yields the files inside a
// removed directory before a file that replaces it.
func (m *MergedTree) DiffStreamForFileSystem(ctx context.Context, other *MergedTree, matcher repopath.Matcher) iter.Seq[DiffEntry] {
	return forFileSystem(m.diffStreamInternal(ctx, other, matcher))
}

// diffStreamInternal includes tree values only when the other side is
// present and not a tree.
func (m *MergedTree) diffStreamInternal(ctx context.Context, other *MergedTree, matcher repopath.Matcher) iter.Seq[DiffEntry] {
	if n := m.store.Concurrency(); n > 1 {
		return concurrentDiff(ctx, m.store, m.trees, other.trees, matcher, n)
	}
	return sequentialDiff(ctx, m.store, m.trees, other.trees, matcher)
}

func withoutTrees(inner iter.Seq[DiffEntry]) iter.Seq[DiffEntry] {
	return func(yield func(DiffEntry) bool) {
		for e := range inner {
			if e.Err == nil {
				e.Before, e.After = withoutTree(e.Before), withoutTree(e.After)
			}
			if !yield(e) {
				return
			}
		}
	}
}

func forFileSystem(inner iter.Seq[DiffEntry]) iter.Seq[DiffEntry] {
	return func(yield func(DiffEntry) bool) {
		var held *DiffEntry
		for next := range inner {
			if held != nil && !next.Path.HasPrefix(held.Path) {
				e := *held
				held = nil
				if !yield(e) {
					return
				}
			}
			switch {
			case next.Err == nil && IsTree(next.Before):
				if held != nil || !IsPresent(next.After) {
					panic("tree: directory replaced by nothing in file-system diff")
				}
				held = &DiffEntry{Path: next.Path, Before: AbsentValue(), After: next.After}
			case next.Err == nil && IsTree(next.After):
				if !yield(DiffEntry{Path: next.Path, Before: next.Before, After: AbsentValue()}) {
					return
				}
			default:
				if !yield(next) {
					return
				}
			}
		}
		if held != nil {
			yield(*held)
		}
	}
}

// sequentialDiff walks both trees depth first, reading one directory at a
// time.
func sequentialDiff(ctx context.Context, s *store.Store, trees1, trees2 merge.Merge[Tree], matcher repopath.Matcher) iter.Seq[DiffEntry] {
	sameChange := s.MergeOptions().SameChange
	dirEntries := func(dir repopath.Path, t1, t2 merge.Merge[Tree]) []DiffEntry {
		var entries []DiffEntry
		for _, d := range mergedTreeEntryDiff(t1, t2, sameChange) {
			path := dir.Join(d.name)
			before, after, _ := filterDiff(matcher, path, d.before, d.after)
			if IsAbsent(before) && IsAbsent(after) {
				continue
			}
			entries = append(entries, DiffEntry{Path: path, Before: before, After: after})
		}
		for i, j := 0, len(entries)-1; i < j; i, j = i+1, j-1 {
			entries[i], entries[j] = entries[j], entries[i]
		}
		return entries
	}

	readDirDiff := func(e DiffEntry) ([]DiffEntry, error) {
		before, err := diffTrees(ctx, s, e.Path, e.Before)
		if err != nil {
			return nil, err
		}
		after, err := diffTrees(ctx, s, e.Path, e.After)
		if err != nil {
			return nil, err
		}
		return dirEntries(e.Path, before, after), nil
	}

	return func(yield func(DiffEntry) bool) {
		var stack [][]DiffEntry
		if matcher.Visit(repopath.Root) {
			stack = append(stack, dirEntries(repopath.Root, trees1, trees2))
		}
		for len(stack) > 0 {
			top := stack[len(stack)-1]
			if len(top) == 0 {
				stack = stack[:len(stack)-1]
				continue
			}
			e := top[len(top)-1]
			stack[len(stack)-1] = top[:len(top)-1]

			var sub []DiffEntry
			var readErr error
			if IsTree(e.Before) || IsTree(e.After) {
				sub, readErr = readDirDiff(e)
			}
			// The file side of a path comes before its directory side,
			// including a failed read of that directory.
			if IsFileLike(e.Before) || IsFileLike(e.After) {
				if !yield(e) {
					return
				}
			}
			if readErr != nil {
				if !yield(DiffEntry{Path: e.Path, Err: readErr}) {
					return
				}
				continue
			}
			if len(sub) > 0 {
				stack = append(stack, sub)
			}
		}
	}
}

type pendingDir struct {
	before, after Value
	started       bool
	done          chan struct{}
	trees1        merge.Merge[Tree]
	trees2        merge.Merge[Tree]
	err           error
}

// diffStream reads up to maxConcurrentReads subdirectories ahead of the
// consumer. items holds entries that may be emitted once no pending
// directory sorts before them.
type diffStream struct {
	store              *store.Store
	matcher            repopath.Matcher
	sameChange         merge.SameChange
	maxConcurrentReads int
	sem                *semaphore.Weighted
	items              *treemap.Map // repopath.Path -> DiffEntry
	pending            *treemap.Map // repopath.Path -> *pendingDir
	wg                 sync.WaitGroup
}

func concurrentDiff(ctx context.Context, s *store.Store, trees1, trees2 merge.Merge[Tree], matcher repopath.Matcher, maxConcurrentReads int) iter.Seq[DiffEntry] {
	return func(yield func(DiffEntry) bool) {
		ctx, cancel := context.WithCancel(ctx)
		d := &diffStream{
			store:              s,
			matcher:            matcher,
			sameChange:         s.MergeOptions().SameChange,
			maxConcurrentReads: maxConcurrentReads,
			sem:                semaphore.NewWeighted(int64(maxConcurrentReads)),
			items:              treemap.NewWith(repopath.Comparator),
			pending:            treemap.NewWith(repopath.Comparator),
		}
		defer func() {
			cancel()
			d.wg.Wait()
		}()
		d.addDirDiffItems(repopath.Root, trees1, trees2)
		for {
			e, ok := d.next(ctx)
			if !ok || !yield(e) {
				return
			}
		}
	}
}

func (d *diffStream) addDirDiffItems(dir repopath.Path, trees1, trees2 merge.Merge[Tree]) {
	for _, diff := range mergedTreeEntryDiff(trees1, trees2, d.sameChange) {
		path := dir.Join(diff.name)
		before, after, treeMatches := filterDiff(d.matcher, path, diff.before, diff.after)
		if IsAbsent(before) && IsAbsent(after) {
			continue
		}
		if treeMatches {
			d.pending.Put(path, &pendingDir{before: before, after: after, done: make(chan struct{})})
		}
		if IsFileLike(before) || IsFileLike(after) {
			d.items.Put(path, DiffEntry{Path: path, Before: before, After: after})
		}
	}
}

// startReads starts reading the first maxConcurrentReads pending
// directories.
func (d *diffStream) startReads(ctx context.Context) {
	it := d.pending.Iterator()
	started := 0
	for started < d.maxConcurrentReads && it.Next() {
		started++
		p := it.Value().(*pendingDir)
		if p.started {
			continue
		}
		p.started = true
		path := it.Key().(repopath.Path)
		d.wg.Add(1)
		go func() {
			defer d.wg.Done()
			defer close(p.done)
			if err := d.sem.Acquire(ctx, 1); err != nil {
				p.err = err
				return
			}
			defer d.sem.Release(1)
			if p.trees1, p.err = diffTrees(ctx, d.store, path, p.before); p.err != nil {
				return
			}
			p.trees2, p.err = diffTrees(ctx, d.store, path, p.after)
		}()
	}
	if started > 1 {
		d.store.Logger().Debug("diff prefetch", zap.Int("dirs", started))
	}
}

func (d *diffStream) next(ctx context.Context) (DiffEntry, bool) {
	for {
		d.startReads(ctx)
		if path, entry := d.items.Min(); path != nil {
			dir, _ := d.pending.Min()
			if dir == nil || !repopath.Less(dir.(repopath.Path), path.(repopath.Path)) {
				d.items.Remove(path)
				return entry.(DiffEntry), true
			}
		} else if d.pending.Empty() {
			return DiffEntry{}, false
		}

		dir, v := d.pending.Min()
		p := v.(*pendingDir)
		<-p.done
		d.pending.Remove(dir)
		path := dir.(repopath.Path)
		if p.err != nil {
			d.items.Put(path, DiffEntry{Path: path, Err: p.err})
			continue
		}
		d.addDirDiffItems(path, p.trees1, p.trees2)
	}
}
