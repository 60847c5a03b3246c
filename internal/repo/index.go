package repo

import (
	"errors"
	"fmt"
	"slices"

	"github.com/systemshift/splice/internal/backend"
)

// ErrCommitNotIndexed is wrapped by IndexError when a query names a commit
// the index has never seen.
var ErrCommitNotIndexed = errors.New("commit not indexed")

// IndexError reports a failed index query.
type IndexError struct {
	ID  backend.CommitID
	Err error
}

func (e *IndexError) Error() string {
	return fmt.Sprintf("index lookup %s: %v", e.ID.Short(), e.Err)
}

func (e *IndexError) Unwrap() error { return e.Err }

type indexEntry struct {
	id         backend.CommitID
	changeID   backend.ChangeID
	parents    []int
	generation int
}

// Index is an append-only in-memory commit graph. Positions are assigned
// in insertion order and a commit is only added after its parents, so
// position order is a topological order.
type Index struct {
	entries  []indexEntry
	byID     map[backend.CommitID]int
	byChange map[backend.ChangeID][]int
}

// NewIndex returns an empty index.
func NewIndex() *Index {
	return &Index{
		byID:     make(map[backend.CommitID]int),
		byChange: make(map[backend.ChangeID][]int),
	}
}

// Clone returns an index that shares no mutable state with idx.
func (idx *Index) Clone() *Index {
	out := &Index{
		entries:  slices.Clone(idx.entries),
		byID:     make(map[backend.CommitID]int, len(idx.byID)),
		byChange: make(map[backend.ChangeID][]int, len(idx.byChange)),
	}
	for k, v := range idx.byID {
		out.byID[k] = v
	}
	for k, v := range idx.byChange {
		out.byChange[k] = slices.Clone(v)
	}
	return out
}

// Len is the number of indexed commits.
func (idx *Index) Len() int { return len(idx.entries) }

// Has reports whether id is indexed.
func (idx *Index) Has(id backend.CommitID) bool {
	_, ok := idx.byID[id]
	return ok
}

// Add indexes a commit. Its parents must already be indexed. Adding a
// commit twice is a no-op.
func (idx *Index) Add(id backend.CommitID, commit *backend.Commit) error {
	if idx.Has(id) {
		return nil
	}
	entry := indexEntry{id: id, changeID: commit.ChangeID}
	for _, p := range commit.Parents {
		pos, err := idx.pos(p)
		if err != nil {
			return err
		}
		entry.parents = append(entry.parents, pos)
		entry.generation = max(entry.generation, idx.entries[pos].generation+1)
	}
	pos := len(idx.entries)
	idx.entries = append(idx.entries, entry)
	idx.byID[id] = pos
	idx.byChange[commit.ChangeID] = append(idx.byChange[commit.ChangeID], pos)
	return nil
}

func (idx *Index) pos(id backend.CommitID) (int, error) {
	pos, ok := idx.byID[id]
	if !ok {
		return 0, &IndexError{ID: id, Err: ErrCommitNotIndexed}
	}
	return pos, nil
}

func (idx *Index) positions(ids []backend.CommitID) ([]int, error) {
	out := make([]int, 0, len(ids))
	for _, id := range ids {
		pos, err := idx.pos(id)
		if err != nil {
			return nil, err
		}
		out = append(out, pos)
	}
	return out, nil
}

func (idx *Index) ids(set map[int]bool, descending bool) []backend.CommitID {
	positions := make([]int, 0, len(set))
	for pos, ok := range set {
		if ok {
			positions = append(positions, pos)
		}
	}
	slices.Sort(positions)
	if descending {
		slices.Reverse(positions)
	}
	out := make([]backend.CommitID, len(positions))
	for i, pos := range positions {
		out[i] = idx.entries[pos].id
	}
	return out
}

// ParentIDs returns the indexed parents of id.
func (idx *Index) ParentIDs(id backend.CommitID) ([]backend.CommitID, error) {
	pos, err := idx.pos(id)
	if err != nil {
		return nil, err
	}
	parents := idx.entries[pos].parents
	out := make([]backend.CommitID, len(parents))
	for i, p := range parents {
		out[i] = idx.entries[p].id
	}
	return out, nil
}

// ancestors returns the positions reachable from heads through parent
// edges, heads included. Positions below floor are not visited.
func (idx *Index) ancestors(heads []int, floor int) map[int]bool {
	seen := make(map[int]bool)
	stack := slices.Clone(heads)
	for len(stack) > 0 {
		pos := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if seen[pos] || pos < floor {
			continue
		}
		seen[pos] = true
		stack = append(stack, idx.entries[pos].parents...)
	}
	return seen
}

// IsAncestor reports whether ancestor is reachable from descendant. A
// commit is its own ancestor.
func (idx *Index) IsAncestor(ancestor, descendant backend.CommitID) (bool, error) {
	a, err := idx.pos(ancestor)
	if err != nil {
		return false, err
	}
	d, err := idx.pos(descendant)
	if err != nil {
		return false, err
	}
	gen := idx.entries[a].generation
	seen := make(map[int]bool)
	stack := []int{d}
	for len(stack) > 0 {
		pos := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if pos == a {
			return true, nil
		}
		if seen[pos] || pos < a || idx.entries[pos].generation <= gen {
			continue
		}
		seen[pos] = true
		stack = append(stack, idx.entries[pos].parents...)
	}
	return false, nil
}

// Ancestors returns every ancestor of heads, heads included, newest first.
func (idx *Index) Ancestors(heads []backend.CommitID) ([]backend.CommitID, error) {
	positions, err := idx.positions(heads)
	if err != nil {
		return nil, err
	}
	return idx.ids(idx.ancestors(positions, 0), true), nil
}

func (idx *Index) heads(set map[int]bool) map[int]bool {
	out := make(map[int]bool, len(set))
	var parents []int
	for pos := range set {
		out[pos] = true
		parents = append(parents, idx.entries[pos].parents...)
	}
	floor := len(idx.entries)
	for pos := range set {
		floor = min(floor, pos)
	}
	for pos := range idx.ancestors(parents, floor) {
		delete(out, pos)
	}
	return out
}

// Heads returns the members of ids that are not ancestors of another
// member, newest first.
func (idx *Index) Heads(ids []backend.CommitID) ([]backend.CommitID, error) {
	positions, err := idx.positions(ids)
	if err != nil {
		return nil, err
	}
	set := make(map[int]bool, len(positions))
	for _, pos := range positions {
		set[pos] = true
	}
	return idx.ids(idx.heads(set), true), nil
}

// CommonAncestors returns the heads of the commits that are ancestors of
// both a set and b set.
func (idx *Index) CommonAncestors(a, b []backend.CommitID) ([]backend.CommitID, error) {
	pa, err := idx.positions(a)
	if err != nil {
		return nil, err
	}
	pb, err := idx.positions(b)
	if err != nil {
		return nil, err
	}
	ancA := idx.ancestors(pa, 0)
	common := make(map[int]bool)
	for pos := range idx.ancestors(pb, 0) {
		if ancA[pos] {
			common[pos] = true
		}
	}
	return idx.ids(idx.heads(common), true), nil
}

// descendants returns the positions that have one of roots as an
// ancestor, roots included, restricted to within.
func (idx *Index) descendants(roots []int, within map[int]bool) map[int]bool {
	if len(roots) == 0 {
		return map[int]bool{}
	}
	out := make(map[int]bool)
	start := len(idx.entries)
	for _, pos := range roots {
		if within == nil || within[pos] {
			out[pos] = true
		}
		start = min(start, pos)
	}
	for pos := start; pos < len(idx.entries); pos++ {
		if out[pos] || (within != nil && !within[pos]) {
			continue
		}
		for _, p := range idx.entries[pos].parents {
			if out[p] {
				out[pos] = true
				break
			}
		}
	}
	return out
}

// Descendants returns the descendants of roots (roots included) that are
// ancestors of visible, children before parents.
func (idx *Index) Descendants(roots, visible []backend.CommitID) ([]backend.CommitID, error) {
	pr, err := idx.positions(roots)
	if err != nil {
		return nil, err
	}
	pv, err := idx.positions(visible)
	if err != nil {
		return nil, err
	}
	return idx.ids(idx.descendants(pr, idx.ancestors(pv, 0)), true), nil
}

// Children returns the commits among the ancestors of visible that have a
// parent in ids, newest first.
func (idx *Index) Children(ids, visible []backend.CommitID) ([]backend.CommitID, error) {
	pi, err := idx.positions(ids)
	if err != nil {
		return nil, err
	}
	pv, err := idx.positions(visible)
	if err != nil {
		return nil, err
	}
	set := make(map[int]bool, len(pi))
	for _, pos := range pi {
		set[pos] = true
	}
	out := make(map[int]bool)
	for pos := range idx.ancestors(pv, 0) {
		for _, p := range idx.entries[pos].parents {
			if set[p] {
				out[pos] = true
				break
			}
		}
	}
	return idx.ids(out, true), nil
}

// Connected returns ids plus every commit on a path between two of them,
// children before parents.
func (idx *Index) Connected(ids []backend.CommitID) ([]backend.CommitID, error) {
	positions, err := idx.positions(ids)
	if err != nil {
		return nil, err
	}
	return idx.ids(idx.descendants(positions, idx.ancestors(positions, 0)), true), nil
}

// Range returns the ancestors of heads that are not ancestors of roots,
// children before parents.
func (idx *Index) Range(roots, heads []backend.CommitID) ([]backend.CommitID, error) {
	pr, err := idx.positions(roots)
	if err != nil {
		return nil, err
	}
	ph, err := idx.positions(heads)
	if err != nil {
		return nil, err
	}
	excluded := idx.ancestors(pr, 0)
	out := make(map[int]bool)
	for pos := range idx.ancestors(ph, 0) {
		if !excluded[pos] {
			out[pos] = true
		}
	}
	return idx.ids(out, true), nil
}

// ResolveChangeID returns the commits with the given change id that are
// ancestors of visible, newest first.
func (idx *Index) ResolveChangeID(change backend.ChangeID, visible []backend.CommitID) ([]backend.CommitID, error) {
	pv, err := idx.positions(visible)
	if err != nil {
		return nil, err
	}
	anc := idx.ancestors(pv, 0)
	out := make(map[int]bool)
	for _, pos := range idx.byChange[change] {
		if anc[pos] {
			out[pos] = true
		}
	}
	return idx.ids(out, true), nil
}

// SortTopological orders ids parents first.
func (idx *Index) SortTopological(ids []backend.CommitID) ([]backend.CommitID, error) {
	positions, err := idx.positions(ids)
	if err != nil {
		return nil, err
	}
	set := make(map[int]bool, len(positions))
	for _, pos := range positions {
		set[pos] = true
	}
	return idx.ids(set, false), nil
}
