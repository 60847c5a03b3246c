package tree

import (
	"context"
	"sort"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repopath"
	"github.com/systemshift/splice/internal/store"
)

// Tree is one loaded directory without conflicts.
type Tree struct {
	Dir  repopath.Path
	ID   backend.TreeID
	Data *backend.Tree
}

func treeID(t Tree) backend.TreeID { return t.ID }

func emptyTree(s *store.Store, dir repopath.Path) Tree {
	return Tree{Dir: dir, ID: s.EmptyTreeID(), Data: backend.EmptyTree()}
}

func getTree(ctx context.Context, s *store.Store, dir repopath.Path, id backend.TreeID) (Tree, error) {
	data, err := s.GetTree(ctx, dir, id)
	if err != nil {
		return Tree{}, err
	}
	return Tree{Dir: dir, ID: id, Data: data}, nil
}

// subTree returns the tree for name, or an empty tree if name is not a
// directory.
func (t Tree) subTree(ctx context.Context, s *store.Store, name string) (Tree, error) {
	v := t.Data.Value(name)
	if !v.IsTree() {
		return emptyTree(s, t.Dir.Join(name)), nil
	}
	return getTree(ctx, s, t.Dir.Join(name), v.TreeID())
}

// MergedTree is a directory that may be a conflict between several trees.
// A resolved MergedTree is an ordinary tree.
type MergedTree struct {
	store *store.Store
	trees merge.Merge[Tree]
}

// Load reads the root trees for ids.
func Load(ctx context.Context, s *store.Store, ids merge.Merge[backend.TreeID]) (*MergedTree, error) {
	trees, err := merge.TryMap(ids, func(id backend.TreeID) (Tree, error) {
		return getTree(ctx, s, repopath.Root, id)
	})
	if err != nil {
		return nil, err
	}
	return &MergedTree{store: s, trees: trees}, nil
}

// Empty returns the resolved empty root tree.
func Empty(s *store.Store) *MergedTree {
	return &MergedTree{store: s, trees: merge.Resolved(emptyTree(s, repopath.Root))}
}

// FromTrees wraps already-loaded trees, which must share a directory.
func FromTrees(s *store.Store, trees merge.Merge[Tree]) *MergedTree {
	return &MergedTree{store: s, trees: trees}
}

func (m *MergedTree) Store() *store.Store             { return m.store }
func (m *MergedTree) Trees() merge.Merge[Tree]        { return m.trees }
func (m *MergedTree) Dir() repopath.Path              { return m.trees.First().Dir }
func (m *MergedTree) HasConflict() bool               { return !m.trees.IsResolved() }
func (m *MergedTree) ID() merge.Merge[backend.TreeID] { return merge.Map(m.trees, treeID) }

// Names returns the sorted union of entry names across all terms.
func (m *MergedTree) Names() []string {
	if t, ok := m.trees.AsResolved(); ok {
		return t.Data.Names()
	}
	seen := make(map[string]struct{})
	var names []string
	for _, t := range m.trees.Values() {
		for _, e := range t.Data.Entries() {
			if _, ok := seen[e.Name]; !ok {
				seen[e.Name] = struct{}{}
				names = append(names, e.Name)
			}
		}
	}
	sort.Strings(names)
	return names
}

// Value returns the value for name in this directory. It is resolved when
// the terms can be trivially merged. Trees are not recursed into.
func (m *MergedTree) Value(name string) Value {
	if t, ok := m.trees.AsResolved(); ok {
		return merge.Resolved(t.Data.Value(name))
	}
	v := merge.Map(m.trees, func(t Tree) backend.TreeValue { return t.Data.Value(name) })
	if r, ok := merge.ResolveTrivial(v, m.store.MergeOptions().SameChange); ok {
		return merge.Resolved(r)
	}
	return v
}

// toTreeMerge loads the trees for v if every term is a tree or absent,
// using empty trees for absent terms. ok is false otherwise.
func toTreeMerge(ctx context.Context, s *store.Store, dir repopath.Path, v Value) (trees merge.Merge[Tree], ok bool, err error) {
	for _, term := range v.Values() {
		if term.IsPresent() && !term.IsTree() {
			return trees, false, nil
		}
	}
	trees, err = merge.TryMap(v, func(term backend.TreeValue) (Tree, error) {
		if term.IsAbsent() {
			return emptyTree(s, dir), nil
		}
		return getTree(ctx, s, dir, term.TreeID())
	})
	return trees, err == nil, err
}

// SubTree returns the merged subdirectory name, or nil if name is not a
// directory in any term. Terms where name is absent contribute empty trees.
func (m *MergedTree) SubTree(ctx context.Context, name string) (*MergedTree, error) {
	v := m.Value(name)
	if r, ok := v.AsResolved(); ok {
		if !r.IsTree() {
			return nil, nil
		}
		t, err := getTree(ctx, m.store, m.Dir().Join(name), r.TreeID())
		if err != nil {
			return nil, err
		}
		return &MergedTree{store: m.store, trees: merge.Resolved(t)}, nil
	}
	if !IsTree(v) {
		return nil, nil
	}
	trees, _, err := toTreeMerge(ctx, m.store, m.Dir().Join(name), v)
	if err != nil {
		return nil, err
	}
	return &MergedTree{store: m.store, trees: trees}, nil
}

// SubTreeRecursive looks up the directory at path, returning nil if it is
// not a directory.
func (m *MergedTree) SubTreeRecursive(ctx context.Context, path repopath.Path) (*MergedTree, error) {
	cur := m
	for _, name := range path.Components() {
		sub, err := cur.SubTree(ctx, name)
		if err != nil || sub == nil {
			return nil, err
		}
		cur = sub
	}
	return cur, nil
}

// PathValue returns the value at path. The root yields tree values for
// every term.
func (m *MergedTree) PathValue(ctx context.Context, path repopath.Path) (Value, error) {
	dir, name, ok := path.Split()
	if !ok {
		return merge.Map(m.trees, func(t Tree) backend.TreeValue { return backend.TreeRef(t.ID) }), nil
	}
	sub, err := m.SubTreeRecursive(ctx, dir)
	if err != nil {
		return Value{}, err
	}
	if sub == nil {
		return AbsentValue(), nil
	}
	return sub.Value(name), nil
}

// Resolve merges away every conflict that can be resolved automatically,
// then simplifies what remains.
func (m *MergedTree) Resolve(ctx context.Context) (*MergedTree, error) {
	merged, err := mergeTrees(ctx, m.store, m.trees)
	if err != nil {
		return nil, err
	}
	return &MergedTree{store: m.store, trees: merge.SimplifyFunc(merged, treeID)}, nil
}

// Merge merges m with other using base as the common base, resolving
// conflicts recursively where possible.
func (m *MergedTree) Merge(ctx context.Context, base, other *MergedTree) (*MergedTree, error) {
	return m.MergeNoResolve(base, other).Resolve(ctx)
}

// MergeNoResolve builds the flattened and simplified three-way conflict
// without looking at any contents.
func (m *MergedTree) MergeNoResolve(base, other *MergedTree) *MergedTree {
	nested := merge.New([]merge.Merge[Tree]{m.trees, base.trees, other.trees})
	return &MergedTree{store: m.store, trees: merge.SimplifyFunc(merge.Flatten(nested), treeID)}
}

// MergeAll merges a list of trees as successive deltas:
// trees[0] + (trees[1] - bases[0]) + ... .
func MergeAll(ctx context.Context, trees merge.Merge[*MergedTree]) (*MergedTree, error) {
	first := trees.First()
	nested := merge.Map(trees, func(t *MergedTree) merge.Merge[Tree] { return t.trees })
	flat := &MergedTree{store: first.store, trees: merge.SimplifyFunc(merge.Flatten(nested), treeID)}
	return flat.Resolve(ctx)
}
