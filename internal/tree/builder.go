package tree

import (
	"context"
	"fmt"

	"github.com/emirpasic/gods/maps/treemap"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repopath"
	"github.com/systemshift/splice/internal/store"
)

// TreeBuilder writes a new tree from a base tree and a set of per-path
// overrides. Directories left empty by removals are dropped; the root is
// always written.
type TreeBuilder struct {
	store     *store.Store
	base      backend.TreeID
	overrides *treemap.Map // repopath.Path -> backend.TreeValue
}

func NewTreeBuilder(s *store.Store, base backend.TreeID) *TreeBuilder {
	return &TreeBuilder{store: s, base: base, overrides: treemap.NewWith(repopath.Comparator)}
}

// Set replaces the value at path. backend.Absent removes it.
func (b *TreeBuilder) Set(path repopath.Path, v backend.TreeValue) {
	if path.IsRoot() {
		panic("tree: cannot override the root directory")
	}
	b.overrides.Put(path, v)
}

func (b *TreeBuilder) Remove(path repopath.Path) {
	b.Set(path, backend.Absent)
}

type dirEntries map[string]backend.TreeValue

func (b *TreeBuilder) WriteTree(ctx context.Context) (backend.TreeID, error) {
	if b.overrides.Empty() {
		return b.base, nil
	}
	dirs, err := b.baseTrees(ctx)
	if err != nil {
		return backend.TreeID{}, err
	}

	it := b.overrides.Iterator()
	for it.Next() {
		dir, name, _ := it.Key().(repopath.Path).Split()
		entries := mustDir(dirs, dir)
		if v := it.Value().(backend.TreeValue); v.IsPresent() {
			entries[name] = v
		} else {
			delete(entries, name)
		}
	}

	// Children sort after their parents, so popping the maximum writes
	// every subdirectory before the directory containing it.
	for !dirs.Empty() {
		k, v := dirs.Max()
		dirs.Remove(k)
		dir, entries := k.(repopath.Path), v.(dirEntries)
		data := newTreeData(entries)
		parent, name, ok := dir.Split()
		if !ok {
			return b.store.WriteTree(ctx, dir, data)
		}
		parentEntries := mustDir(dirs, parent)
		if data.IsEmpty() {
			// A file override at the same name takes precedence.
			if parentEntries[name].IsTree() {
				delete(parentEntries, name)
			}
			continue
		}
		id, err := b.store.WriteTree(ctx, dir, data)
		if err != nil {
			return backend.TreeID{}, err
		}
		parentEntries[name] = backend.TreeRef(id)
	}
	panic("tree: builder lost the root directory")
}

func mustDir(dirs *treemap.Map, dir repopath.Path) dirEntries {
	v, ok := dirs.Get(dir)
	if !ok {
		panic(fmt.Sprintf("tree: directory %q was not loaded", dir))
	}
	return v.(dirEntries)
}

func newTreeData(entries dirEntries) *backend.Tree {
	list := make([]backend.TreeEntry, 0, len(entries))
	for name, v := range entries {
		list = append(list, backend.TreeEntry{Name: name, Value: v})
	}
	return backend.NewTree(list)
}

// baseTrees loads every directory that contains an overridden path, keyed
// by directory path.
func (b *TreeBuilder) baseTrees(ctx context.Context) (*treemap.Map, error) {
	root, err := getTree(ctx, b.store, repopath.Root, b.base)
	if err != nil {
		return nil, err
	}
	cache := map[repopath.Path]Tree{repopath.Root: root}
	var populate func(dir repopath.Path) (Tree, error)
	populate = func(dir repopath.Path) (Tree, error) {
		if t, ok := cache[dir]; ok {
			return t, nil
		}
		parent, name, _ := dir.Split()
		pt, err := populate(parent)
		if err != nil {
			return Tree{}, err
		}
		t, err := pt.subTree(ctx, b.store, name)
		if err != nil {
			return Tree{}, err
		}
		cache[dir] = t
		return t, nil
	}
	for _, k := range b.overrides.Keys() {
		if _, err := populate(k.(repopath.Path).Parent()); err != nil {
			return nil, err
		}
	}

	dirs := treemap.NewWith(repopath.Comparator)
	for dir, t := range cache {
		entries := make(dirEntries, len(t.Data.Entries()))
		for _, e := range t.Data.Entries() {
			entries[e.Name] = e.Value
		}
		dirs.Put(dir, entries)
	}
	return dirs, nil
}

// MergedTreeBuilder applies overrides to every term of a possibly
// conflicted tree.
type MergedTreeBuilder struct {
	base      *MergedTree
	overrides *treemap.Map // repopath.Path -> Value
}

func NewMergedTreeBuilder(base *MergedTree) *MergedTreeBuilder {
	return &MergedTreeBuilder{base: base, overrides: treemap.NewWith(repopath.Comparator)}
}

// Set overrides the value at path. v must be resolved or have as many sides
// as the base tree. Use AbsentValue to remove the path.
func (b *MergedTreeBuilder) Set(path repopath.Path, v Value) {
	b.overrides.Put(path, v)
}

// WriteTree writes one tree per term and resolves what it can of the
// result.
func (b *MergedTreeBuilder) WriteTree(ctx context.Context) (*MergedTree, error) {
	s := b.base.store
	ids, err := b.writeTrees(ctx)
	if err != nil {
		return nil, err
	}
	ids = merge.Simplify(ids)
	t, err := Load(ctx, s, ids)
	if err != nil {
		return nil, err
	}
	if ids.IsResolved() {
		return t, nil
	}
	return t.Resolve(ctx)
}

func (b *MergedTreeBuilder) writeTrees(ctx context.Context) (merge.Merge[backend.TreeID], error) {
	s := b.base.store
	numSides := 0
	for _, v := range b.overrides.Values() {
		numSides = max(numSides, v.(Value).NumSides())
	}
	base := merge.PadTo(b.base.ID(), numSides, s.EmptyTreeID())
	builders := merge.Map(base, func(id backend.TreeID) *TreeBuilder {
		return NewTreeBuilder(s, id)
	}).Values()

	it := b.overrides.Iterator()
	for it.Next() {
		path, v := it.Key().(repopath.Path), it.Value().(Value)
		if r, ok := v.AsResolved(); ok {
			for _, tb := range builders {
				tb.Set(path, r)
			}
			continue
		}
		terms := merge.PadTo(v, base.NumSides(), backend.Absent).Values()
		if len(terms) != len(builders) {
			panic(fmt.Sprintf("tree: override at %q has %d terms, base has %d", path, len(terms), len(builders)))
		}
		for i, tb := range builders {
			tb.Set(path, terms[i])
		}
	}

	ids := make([]backend.TreeID, len(builders))
	for i, tb := range builders {
		id, err := tb.WriteTree(ctx)
		if err != nil {
			return merge.Merge[backend.TreeID]{}, err
		}
		ids[i] = id
	}
	return merge.New(ids), nil
}
