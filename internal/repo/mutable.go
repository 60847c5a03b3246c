package repo

import (
	"context"
	"fmt"
	"maps"
	"slices"

	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/store"
)

type rewriteKind int

const (
	rewriteRewritten rewriteKind = iota
	rewriteDivergent
	rewriteAbandoned
)

// rewriteEntry records what happened to a commit in this transaction. For
// rewriteAbandoned, ids are the parents its children should move to.
type rewriteEntry struct {
	kind rewriteKind
	ids  []backend.CommitID
}

// MutableRepo is an open transaction. Commits written through it are
// stored immediately, but the view only becomes visible to other readers
// when Commit publishes it.
type MutableRepo struct {
	base          *ReadonlyRepo
	store         *store.Store
	index         *Index
	view          *View
	parentMapping map[backend.CommitID]rewriteEntry
	log           *zap.Logger
}

func (m *MutableRepo) Store() *store.Store { return m.store }
func (m *MutableRepo) Index() *Index       { return m.index }
func (m *MutableRepo) View() *View         { return m.view }
func (m *MutableRepo) Base() *ReadonlyRepo { return m.base }
func (m *MutableRepo) Logger() *zap.Logger { return m.log }

// GetCommit loads a commit.
func (m *MutableRepo) GetCommit(ctx context.Context, id backend.CommitID) (*Commit, error) {
	return loadCommit(ctx, m.store, id)
}

// GetCommits loads several commits, keeping their order.
func (m *MutableRepo) GetCommits(ctx context.Context, ids []backend.CommitID) ([]*Commit, error) {
	out := make([]*Commit, 0, len(ids))
	for _, id := range ids {
		c, err := m.GetCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (m *MutableRepo) signature() backend.Signature {
	opts := m.base.opts
	return backend.Signature{
		Name:      opts.UserName,
		Email:     opts.UserEmail,
		Timestamp: backend.TimestampFromTime(opts.Now()),
	}
}

// NewCommit starts a commit with a fresh change id.
func (m *MutableRepo) NewCommit(parents []backend.CommitID, treeID merge.Merge[backend.TreeID]) *CommitBuilder {
	return newCommitBuilder(m, parents, treeID)
}

// RewriteCommit starts a rewrite of old, keeping its change id.
func (m *MutableRepo) RewriteCommit(old *Commit) *CommitBuilder {
	return rewriteCommitBuilder(m, old)
}

func (m *MutableRepo) writeCommit(ctx context.Context, data *backend.Commit) (*Commit, error) {
	id, stored, err := m.store.WriteCommit(ctx, data)
	if err != nil {
		return nil, err
	}
	known := m.index.Has(id)
	if err := m.index.Add(id, stored); err != nil {
		return nil, err
	}
	if err := m.addHead(id, stored.Parents, known); err != nil {
		return nil, err
	}
	return newCommit(m.store, id, stored), nil
}

func (m *MutableRepo) addHead(id backend.CommitID, parents []backend.CommitID, known bool) error {
	if m.view.IsHead(id) {
		return nil
	}
	if !known && !slices.ContainsFunc(parents, func(p backend.CommitID) bool { return !m.view.IsHead(p) }) {
		for _, p := range parents {
			m.view.removeHead(p)
		}
		m.view.addHead(id)
		return nil
	}
	heads, err := m.index.Heads(append(m.view.Heads(), id))
	if err != nil {
		return err
	}
	m.view.setHeads(heads)
	return nil
}

// SetRewrittenCommit records that old was replaced by new.
func (m *MutableRepo) SetRewrittenCommit(old, new backend.CommitID) {
	if old == new {
		panic(fmt.Sprintf("commit %s rewritten to itself", old.Short()))
	}
	m.parentMapping[old] = rewriteEntry{kind: rewriteRewritten, ids: []backend.CommitID{new}}
}

// SetDivergentRewrite records that old was replaced by several commits.
// Descendants of old are not moved.
func (m *MutableRepo) SetDivergentRewrite(old backend.CommitID, news []backend.CommitID) {
	m.parentMapping[old] = rewriteEntry{kind: rewriteDivergent, ids: slices.Clone(news)}
}

// RecordAbandonedCommit marks c abandoned; its children move to its
// parents.
func (m *MutableRepo) RecordAbandonedCommit(c *Commit) {
	m.RecordAbandonedCommitWithParents(c.ID(), c.ParentIDs())
}

// RecordAbandonedCommitWithParents marks id abandoned; its children move
// to parents.
func (m *MutableRepo) RecordAbandonedCommitWithParents(id backend.CommitID, parents []backend.CommitID) {
	if id == m.store.RootCommitID() {
		panic("cannot abandon the root commit")
	}
	if len(parents) == 0 {
		panic(fmt.Sprintf("abandoned commit %s has no parents", id.Short()))
	}
	m.parentMapping[id] = rewriteEntry{kind: rewriteAbandoned, ids: slices.Clone(parents)}
}

// HasRewrites reports whether any commit was rewritten or abandoned since
// the last RebaseDescendants.
func (m *MutableRepo) HasRewrites() bool { return len(m.parentMapping) > 0 }

// IsRewritten reports whether id was rewritten or abandoned.
func (m *MutableRepo) IsRewritten(id backend.CommitID) bool {
	_, ok := m.parentMapping[id]
	return ok
}

// NewParents maps ids through the recorded rewrites, following chains of
// rewritten and abandoned commits. Divergent commits are kept. The result
// has no duplicates.
func (m *MutableRepo) NewParents(ids []backend.CommitID) []backend.CommitID {
	if len(ids) == 0 {
		panic("new parents of empty list")
	}
	var out []backend.CommitID
	visited := make(map[backend.CommitID]bool)
	toVisit := slices.Clone(ids)
	slices.Reverse(toVisit)
	for len(toVisit) > 0 {
		id := toVisit[len(toVisit)-1]
		toVisit = toVisit[:len(toVisit)-1]
		if visited[id] {
			continue
		}
		visited[id] = true
		entry, ok := m.parentMapping[id]
		if !ok || entry.kind == rewriteDivergent {
			out = append(out, id)
			continue
		}
		if len(entry.ids) == 0 {
			panic(fmt.Sprintf("empty rewrite target for %s", id.Short()))
		}
		for i := len(entry.ids) - 1; i >= 0; i-- {
			toVisit = append(toVisit, entry.ids[i])
		}
	}
	if len(out) == 0 {
		panic("new parents became empty: cycle in rewrite mapping")
	}
	return out
}

// FindDescendantsForRebase returns the visible descendants of roots,
// roots included, in the order they should be rebased. Commits already
// rewritten or abandoned in this transaction are left out; their
// descendants are not.
func (m *MutableRepo) FindDescendantsForRebase(ctx context.Context, roots []backend.CommitID) ([]*Commit, error) {
	ids, err := m.index.Descendants(roots, m.view.Heads())
	if err != nil {
		return nil, err
	}
	ids = slices.DeleteFunc(ids, m.IsRewritten)
	commits, err := m.GetCommits(ctx, ids)
	if err != nil {
		return nil, err
	}
	return m.orderCommitsForRebase(commits, nil), nil
}

// orderCommitsForRebase sorts commits parents first. A commit is also
// placed after the visited commits its parents were rewritten into.
func (m *MutableRepo) orderCommitsForRebase(commits []*Commit, newParentsMap map[backend.CommitID][]backend.CommitID) []*Commit {
	byID := make(map[backend.CommitID]*Commit, len(commits))
	for _, c := range commits {
		byID[c.ID()] = c
	}
	const (
		unvisited = iota
		visiting
		done
	)
	state := make(map[backend.CommitID]int, len(commits))
	out := make([]*Commit, 0, len(commits))
	var visit func(c *Commit)
	visit = func(c *Commit) {
		switch state[c.ID()] {
		case done:
			return
		case visiting:
			panic(fmt.Sprintf("cycle while ordering commits at %s", c.ID().Short()))
		}
		state[c.ID()] = visiting
		parents, ok := newParentsMap[c.ID()]
		if !ok {
			parents = c.ParentIDs()
		}
		for _, p := range parents {
			if entry, ok := m.parentMapping[p]; ok {
				for _, target := range entry.ids {
					if dep, ok := byID[target]; ok && state[target] == unvisited {
						visit(dep)
					}
				}
			}
			if dep, ok := byID[p]; ok {
				visit(dep)
			}
		}
		state[c.ID()] = done
		out = append(out, c)
	}
	for i := len(commits) - 1; i >= 0; i-- {
		visit(commits[i])
	}
	return out
}

// TransformFunc is called once per commit by TransformCommits.
type TransformFunc func(ctx context.Context, rewriter *CommitRewriter) error

// TransformCommits calls fn for each of commits, parents first, with a
// rewriter whose new parents are the commit's entry in newParentsMap (or
// its current parents) mapped through the rewrites recorded so far.
// References to rewritten commits are updated afterwards.
func (m *MutableRepo) TransformCommits(ctx context.Context, commits []*Commit, newParentsMap map[backend.CommitID][]backend.CommitID, opts RewriteRefsOptions, fn TransformFunc) error {
	for _, old := range m.orderCommitsForRebase(commits, newParentsMap) {
		parents, ok := newParentsMap[old.ID()]
		if !ok {
			parents = old.ParentIDs()
		}
		rewriter := NewCommitRewriter(m, old, m.NewParents(parents))
		if err := fn(ctx, rewriter); err != nil {
			return err
		}
	}
	return m.UpdateRewrittenReferences(ctx, opts)
}

// TransformDescendants runs TransformCommits over the visible descendants
// of roots, roots included.
func (m *MutableRepo) TransformDescendants(ctx context.Context, roots []backend.CommitID, fn TransformFunc) error {
	descendants, err := m.FindDescendantsForRebase(ctx, roots)
	if err != nil {
		return err
	}
	return m.TransformCommits(ctx, descendants, nil, RewriteRefsOptions{}, fn)
}

// RebaseDescendantsWithOptions rebases every descendant of a rewritten or
// abandoned commit onto the replacement, then clears the rewrite record.
// progress, if set, is called for each rebased commit.
func (m *MutableRepo) RebaseDescendantsWithOptions(ctx context.Context, opts RebaseOptions, progress func(old *Commit, rebased RebasedCommit)) (int, error) {
	if !m.HasRewrites() {
		return 0, nil
	}
	roots := slices.Collect(maps.Keys(m.parentMapping))
	descendants, err := m.FindDescendantsForRebase(ctx, roots)
	if err != nil {
		return 0, err
	}
	n := 0
	err = m.TransformCommits(ctx, descendants, nil, opts.RewriteRefs, func(ctx context.Context, rewriter *CommitRewriter) error {
		if !rewriter.ParentsChanged() {
			return nil
		}
		old := rewriter.OldCommit()
		rebased, err := RebaseCommitWithOptions(ctx, rewriter, opts)
		if err != nil {
			return err
		}
		n++
		if progress != nil {
			progress(old, rebased)
		}
		return nil
	})
	if err != nil {
		return n, err
	}
	m.log.Debug("rebased descendants", zap.Int("roots", len(roots)), zap.Int("rebased", n))
	clear(m.parentMapping)
	return n, nil
}

// RebaseDescendants rebases descendants of rewritten commits with the
// default options.
func (m *MutableRepo) RebaseDescendants(ctx context.Context) (int, error) {
	return m.RebaseDescendantsWithOptions(ctx, RebaseOptions{}, nil)
}

// UpdateRewrittenReferences moves bookmarks off rewritten and abandoned
// commits and hides the old commits.
func (m *MutableRepo) UpdateRewrittenReferences(_ context.Context, opts RewriteRefsOptions) error {
	for _, name := range m.view.Bookmarks() {
		target, _ := m.view.Bookmark(name)
		entry, ok := m.parentMapping[target]
		if !ok {
			continue
		}
		if entry.kind == rewriteAbandoned && opts.DeleteAbandonedBookmarks {
			m.view.removeBookmark(name)
			continue
		}
		// A bookmark can point at one commit; take the first replacement.
		m.view.setBookmark(name, m.NewParents([]backend.CommitID{target})[0])
	}
	return m.updateHeads()
}

// updateHeads hides rewritten commits and keeps their parents visible.
// The heads are then reduced, so parents with visible descendants
// disappear again.
func (m *MutableRepo) updateHeads() error {
	heads := make(map[backend.CommitID]bool)
	for _, h := range m.view.Heads() {
		heads[h] = true
	}
	for old := range m.parentMapping {
		delete(heads, old)
		parents, err := m.index.ParentIDs(old)
		if err != nil {
			return err
		}
		for _, p := range parents {
			if _, rewritten := m.parentMapping[p]; !rewritten {
				heads[p] = true
			}
		}
	}
	reduced, err := m.index.Heads(slices.Collect(maps.Keys(heads)))
	if err != nil {
		return err
	}
	if len(reduced) == 0 {
		reduced = []backend.CommitID{m.store.RootCommitID()}
	}
	m.view.setHeads(reduced)
	return nil
}

// SetBookmark points name at id.
func (m *MutableRepo) SetBookmark(name string, id backend.CommitID) { m.view.setBookmark(name, id) }

// RemoveBookmark deletes a bookmark.
func (m *MutableRepo) RemoveBookmark(name string) { m.view.removeBookmark(name) }

// ResolveChangeID returns the visible commits with the given change id,
// newest first.
func (m *MutableRepo) ResolveChangeID(change backend.ChangeID) ([]backend.CommitID, error) {
	return m.index.ResolveChangeID(change, m.view.Heads())
}

// Commit rebases any pending descendants and publishes the transaction as
// a new operation.
func (m *MutableRepo) Commit(ctx context.Context, description string) (*ReadonlyRepo, error) {
	if _, err := m.RebaseDescendants(ctx); err != nil {
		return nil, err
	}
	base := m.base
	opID, err := base.oplog.Publish(ctx, base.opID, m.view, description, base.opts.Now())
	if err != nil {
		return nil, err
	}
	m.log.Debug("committed transaction",
		zap.Stringer("operation", opID),
		zap.String("description", description))
	return &ReadonlyRepo{
		store: m.store,
		oplog: base.oplog,
		opID:  opID,
		view:  m.view.Clone(),
		index: m.index.Clone(),
		opts:  base.opts,
	}, nil
}
