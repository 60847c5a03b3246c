package tree

import (
	"context"
	"sort"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/files"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repopath"
	"github.com/systemshift/splice/internal/store"
)

// MergeTrees merges trees recursively. The result is either resolved or
// has the same number of sides as the input.
func MergeTrees(ctx context.Context, s *store.Store, ids merge.Merge[backend.TreeID]) (merge.Merge[backend.TreeID], error) {
	trees, err := merge.TryMap(ids, func(id backend.TreeID) (Tree, error) {
		return getTree(ctx, s, repopath.Root, id)
	})
	if err != nil {
		return merge.Merge[backend.TreeID]{}, err
	}
	merged, err := mergeTrees(ctx, s, trees)
	if err != nil {
		return merge.Merge[backend.TreeID]{}, err
	}
	return merge.Map(merged, treeID), nil
}

func mergeTrees(ctx context.Context, s *store.Store, trees merge.Merge[Tree]) (merge.Merge[Tree], error) {
	if trees.IsResolved() {
		return trees, nil
	}
	s.Logger().Debug("merging trees", zap.Int("sides", trees.NumSides()))
	m := &treeMerger{
		store: s,
		sem:   semaphore.NewWeighted(int64(s.Concurrency())),
	}
	return m.mergeDir(ctx, repopath.Root, trees)
}

type treeMerger struct {
	store *store.Store
	// sem bounds concurrent backend reads and file merges.
	sem *semaphore.Weighted
}

type namedValue struct {
	name  string
	value Value
}

// allMergedTreeEntries returns every name in any term with the value from
// each term, in name order.
func allMergedTreeEntries(trees merge.Merge[Tree]) []namedValue {
	names := make(map[string]struct{})
	for _, t := range trees.Values() {
		for _, e := range t.Data.Entries() {
			names[e.Name] = struct{}{}
		}
	}
	sorted := make([]string, 0, len(names))
	for name := range names {
		sorted = append(sorted, name)
	}
	sort.Strings(sorted)
	out := make([]namedValue, len(sorted))
	for i, name := range sorted {
		out[i] = namedValue{name: name, value: merge.Map(trees, func(t Tree) backend.TreeValue {
			return t.Data.Value(name)
		})}
	}
	return out
}

// allTreeEntries is allMergedTreeEntries with trivially resolvable values
// resolved.
func allTreeEntries(trees merge.Merge[Tree], sameChange merge.SameChange) []namedValue {
	if t, ok := trees.AsResolved(); ok {
		entries := t.Data.Entries()
		out := make([]namedValue, len(entries))
		for i, e := range entries {
			out[i] = namedValue{name: e.Name, value: merge.Resolved(e.Value)}
		}
		return out
	}
	out := allMergedTreeEntries(trees)
	for i := range out {
		if r, ok := merge.ResolveTrivial(out[i].value, sameChange); ok {
			out[i].value = merge.Resolved(r)
		}
	}
	return out
}

func (m *treeMerger) mergeDir(ctx context.Context, dir repopath.Path, trees merge.Merge[Tree]) (merge.Merge[Tree], error) {
	sameChange := m.store.MergeOptions().SameChange
	resolved := make(map[string]backend.TreeValue)
	var pending []namedValue
	for _, e := range allMergedTreeEntries(trees) {
		if r, ok := merge.ResolveTrivial(e.value, sameChange); ok {
			if r.IsPresent() {
				resolved[e.name] = r
			}
			continue
		}
		pending = append(pending, e)
	}

	results := make([]Value, len(pending))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(m.store.Concurrency())
	for i, e := range pending {
		path := dir.Join(e.name)
		g.Go(func() error {
			var err error
			if IsTree(e.value) {
				results[i], err = m.mergeSubdir(gctx, path, e.value)
			} else {
				results[i], err = m.resolveFile(gctx, path, e.value)
			}
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return merge.Merge[Tree]{}, err
	}

	conflicts := make(map[string]Value)
	for i, e := range pending {
		if r, ok := merge.ResolveTrivial(results[i], sameChange); ok {
			if r.IsPresent() {
				resolved[e.name] = r
			}
		} else {
			conflicts[e.name] = results[i]
		}
	}
	return m.writeTrees(ctx, dir, intoBackendTrees(resolved, conflicts))
}

func (m *treeMerger) mergeSubdir(ctx context.Context, dir repopath.Path, v Value) (Value, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return Value{}, err
	}
	trees, _, err := toTreeMerge(ctx, m.store, dir, v)
	m.sem.Release(1)
	if err != nil {
		return Value{}, err
	}
	merged, err := m.mergeDir(ctx, dir, trees)
	if err != nil {
		return Value{}, err
	}
	empty := m.store.EmptyTreeID()
	return merge.Map(merged, func(t Tree) backend.TreeValue {
		if t.ID == empty {
			return backend.Absent
		}
		return backend.TreeRef(t.ID)
	}), nil
}

func (m *treeMerger) resolveFile(ctx context.Context, path repopath.Path, v Value) (Value, error) {
	if err := m.sem.Acquire(ctx, 1); err != nil {
		return Value{}, err
	}
	defer m.sem.Release(1)
	r, ok, err := tryResolveFileValues(ctx, m.store, path, v)
	if err != nil || !ok {
		return v, err
	}
	return merge.Resolved(r), nil
}

// intoBackendTrees combines the resolved entries with each side's terms of
// the conflicted entries.
func intoBackendTrees(resolved map[string]backend.TreeValue, conflicts map[string]Value) merge.Merge[*backend.Tree] {
	base := make([]backend.TreeEntry, 0, len(resolved))
	for name, v := range resolved {
		base = append(base, backend.TreeEntry{Name: name, Value: v})
	}
	if len(conflicts) == 0 {
		return merge.Resolved(backend.NewTree(base))
	}
	numTerms := -1
	for _, v := range conflicts {
		if numTerms < 0 {
			numTerms = v.Len()
		} else if v.Len() != numTerms {
			panic("tree: conflicts in one directory have different arity")
		}
	}
	terms := make([]*backend.Tree, numTerms)
	for i := range terms {
		entries := append([]backend.TreeEntry(nil), base...)
		for name, v := range conflicts {
			entries = append(entries, backend.TreeEntry{Name: name, Value: v.Values()[i]})
		}
		terms[i] = backend.NewTree(entries)
	}
	return merge.New(terms)
}

func (m *treeMerger) writeTrees(ctx context.Context, dir repopath.Path, data merge.Merge[*backend.Tree]) (merge.Merge[Tree], error) {
	return merge.TryMap(data, func(t *backend.Tree) (Tree, error) {
		id, err := m.store.WriteTree(ctx, dir, t)
		if err != nil {
			return Tree{}, err
		}
		return Tree{Dir: dir, ID: id, Data: t}, nil
	})
}

// ResolveFileValues tries to resolve a conflict between files by merging
// their contents. If it cannot, values is returned unchanged.
func ResolveFileValues(ctx context.Context, s *store.Store, path repopath.Path, values Value) (Value, error) {
	if r, ok := merge.ResolveTrivial(values, s.MergeOptions().SameChange); ok {
		return merge.Resolved(r), nil
	}
	r, ok, err := tryResolveFileValues(ctx, s, path, values)
	if err != nil || !ok {
		return values, err
	}
	return merge.Resolved(r), nil
}

func tryResolveFileValues(ctx context.Context, s *store.Store, path repopath.Path, values Value) (backend.TreeValue, bool, error) {
	// Padding can leave absent or tree terms that cancel out.
	return tryResolveFileConflict(ctx, s, path, merge.Simplify(values))
}

// tryResolveFileConflict merges file contents line by line. Every term
// must be a file; executable bits and copy ids must resolve trivially.
func tryResolveFileConflict(ctx context.Context, s *store.Store, path repopath.Path, conflict Value) (backend.TreeValue, bool, error) {
	ids, executable, copyIDs, ok := fileTerms(conflict)
	if !ok {
		return backend.Absent, false, nil
	}
	exec, ok := merge.ResolveTrivial(executable, merge.SameChangeAccept)
	if !ok {
		return backend.Absent, false, nil
	}
	copyID, ok := merge.ResolveTrivial(copyIDs, merge.SameChangeAccept)
	if !ok {
		return backend.Absent, false, nil
	}
	sameChange := s.MergeOptions().SameChange
	if id, ok := merge.ResolveTrivial(ids, sameChange); ok {
		return backend.FileValue(id, exec, copyID), true, nil
	}

	// Terms may differ only in executable bits, so simplify again.
	contents, err := merge.TryMap(merge.Simplify(ids), func(id backend.FileID) (string, error) {
		data, err := s.ReadFile(ctx, path, id)
		return string(data), err
	})
	if err != nil {
		return backend.Absent, false, err
	}
	merged, ok := files.TryMerge(contents, sameChange)
	if !ok {
		return backend.Absent, false, nil
	}
	id, err := s.WriteFile(ctx, path, []byte(merged))
	if err != nil {
		return backend.Absent, false, err
	}
	return backend.FileValue(id, exec, copyID), true, nil
}
