// Package rewrite implements graph edits built on top of the commit
// rewriter: moving, duplicating and squashing commits.
package rewrite

import (
	"context"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repo"
)

type targetKind int

const (
	kindCommits targetKind = iota
	kindRoots
)

// MoveCommitsTarget selects the commits to move.
type MoveCommitsTarget struct {
	kind targetKind
	ids  []backend.CommitID
}

// Commits targets exactly ids, which must be in reverse topological order
// (children before parents).
func Commits(ids ...backend.CommitID) MoveCommitsTarget {
	return MoveCommitsTarget{kind: kindCommits, ids: ids}
}

// Roots targets ids and all their visible descendants.
func Roots(ids ...backend.CommitID) MoveCommitsTarget {
	return MoveCommitsTarget{kind: kindRoots, ids: ids}
}

// IDs returns the ids the target was built from.
func (t MoveCommitsTarget) IDs() []backend.CommitID { return t.ids }

// MoveCommitsLocation describes where the target commits go. The target
// roots are placed on NewParentIDs and the target heads become parents of
// NewChildIDs.
type MoveCommitsLocation struct {
	NewParentIDs []backend.CommitID
	NewChildIDs  []backend.CommitID
	Target       MoveCommitsTarget
}

// MoveCommitsStats counts what a move did.
type MoveCommitsStats struct {
	NumRebasedTargets     int
	NumRebasedDescendants int
	// NumSkippedRebases counts commits that were already in place.
	NumSkippedRebases int
	NumAbandonedEmpty int
	RebasedCommits    map[backend.CommitID]repo.RebasedCommit
}

// ComputedMoveCommits is a planned move, ready to be applied.
type ComputedMoveCommits struct {
	targetIDs     idSet
	descendants   []*repo.Commit
	newParentsMap map[backend.CommitID][]backend.CommitID
	toAbandon     map[backend.CommitID]struct{}
}

func emptyMove() *ComputedMoveCommits {
	return &ComputedMoveCommits{
		targetIDs:     newIDSet(),
		newParentsMap: map[backend.CommitID][]backend.CommitID{},
		toAbandon:     map[backend.CommitID]struct{}{},
	}
}

// RecordToAbandon marks commits to be abandoned while the move is applied,
// so their descendants are still rebased onto the right parents.
func (c *ComputedMoveCommits) RecordToAbandon(ids ...backend.CommitID) {
	for _, id := range ids {
		c.toAbandon[id] = struct{}{}
	}
}

// Descendants returns the commits the move will visit.
func (c *ComputedMoveCommits) Descendants() []*repo.Commit { return c.descendants }

// NewParents returns the planned parents of id.
func (c *ComputedMoveCommits) NewParents(id backend.CommitID) ([]backend.CommitID, bool) {
	p, ok := c.newParentsMap[id]
	return p, ok
}

// Apply rewrites the planned commits. Targets are rebased with opts;
// other descendants keep empty commits.
func (c *ComputedMoveCommits) Apply(ctx context.Context, mut *repo.MutableRepo, opts repo.RebaseOptions) (MoveCommitsStats, error) {
	stats := MoveCommitsStats{RebasedCommits: make(map[backend.CommitID]repo.RebasedCommit)}
	if len(c.descendants) == 0 {
		return stats, nil
	}
	descendantOpts := repo.RebaseOptions{
		Empty:                 repo.EmptyKeep,
		RewriteRefs:           opts.RewriteRefs,
		SimplifyAncestorMerge: opts.SimplifyAncestorMerge,
	}
	err := mut.TransformCommits(ctx, c.descendants, c.newParentsMap, opts.RewriteRefs, func(ctx context.Context, rw *repo.CommitRewriter) error {
		oldID := rw.OldCommit().ID()
		if _, ok := c.toAbandon[oldID]; ok {
			rw.Abandon()
			return nil
		}
		if !rw.ParentsChanged() {
			stats.NumSkippedRebases++
			return nil
		}
		isTarget := c.targetIDs.Contains(oldID)
		rebaseOpts := descendantOpts
		if isTarget {
			rebaseOpts = opts
		}
		rebased, err := repo.RebaseCommitWithOptions(ctx, rw, rebaseOpts)
		if err != nil {
			return err
		}
		switch {
		case rebased.IsAbandoned():
			stats.NumAbandonedEmpty++
		case isTarget:
			stats.NumRebasedTargets++
		default:
			stats.NumRebasedDescendants++
		}
		stats.RebasedCommits[oldID] = rebased
		return nil
	})
	if err != nil {
		return MoveCommitsStats{}, err
	}
	mut.Logger().Debug("moved commits",
		zap.Int("targets", stats.NumRebasedTargets),
		zap.Int("descendants", stats.NumRebasedDescendants),
		zap.Int("skipped", stats.NumSkippedRebases),
		zap.Int("abandoned", stats.NumAbandonedEmpty))
	return stats, nil
}

// MoveCommits moves loc.Target to its new location and rebases every
// affected descendant.
func MoveCommits(ctx context.Context, mut *repo.MutableRepo, loc MoveCommitsLocation, opts repo.RebaseOptions) (MoveCommitsStats, error) {
	computed, err := ComputeMoveCommits(ctx, mut, loc)
	if err != nil {
		return MoveCommitsStats{}, err
	}
	return computed.Apply(ctx, mut, opts)
}

// ComputeMoveCommits plans a move without writing anything.
func ComputeMoveCommits(ctx context.Context, mut *repo.MutableRepo, loc MoveCommitsLocation) (*ComputedMoveCommits, error) {
	idx := mut.Index()
	var (
		targetIDs       idSet
		connected       []*repo.Commit
		internalParents map[backend.CommitID]idSet
		targetRoots     idSet
	)
	switch loc.Target.kind {
	case kindCommits:
		if len(loc.Target.ids) == 0 {
			return emptyMove(), nil
		}
		targetIDs = newIDSet(loc.Target.ids...)
		connectedIDs, err := idx.Connected(loc.Target.ids)
		if err != nil {
			return nil, err
		}
		if connected, err = mut.GetCommits(ctx, connectedIDs); err != nil {
			return nil, err
		}
		internalParents = computeInternalParentsWithin(targetIDs, connected)
		targetRoots = newIDSet()
		for _, id := range targetIDs.Values() {
			if internalParents[id].Len() == 0 {
				targetRoots.Add(id)
			}
		}
	case kindRoots:
		if len(loc.Target.ids) == 0 {
			return emptyMove(), nil
		}
		ids, err := idx.Descendants(loc.Target.ids, mut.View().Heads())
		if err != nil {
			return nil, err
		}
		targetIDs = newIDSet(ids...)
		if connected, err = mut.GetCommits(ctx, ids); err != nil {
			return nil, err
		}
		// The descendants of the roots are already connected.
		internalParents = map[backend.CommitID]idSet{}
		targetRoots = newIDSet(loc.Target.ids...)
	}

	// A commit outside the set whose parent is in the set gets that
	// parent's nearest ancestors outside the set instead.
	externalParents := make(map[backend.CommitID]idSet, targetIDs.Len())
	targets := targetIDs.Values()
	for i := len(targets) - 1; i >= 0; i-- {
		parents, err := idx.ParentIDs(targets[i])
		if err != nil {
			return nil, err
		}
		ext := newIDSet()
		for _, p := range parents {
			if pp, ok := externalParents[p]; ok {
				ext.Add(pp.Values()...)
			} else {
				ext.Add(p)
			}
		}
		externalParents[targets[i]] = ext
	}

	// Moving a commit onto itself means onto its parents.
	newParentIDs := lo.FlatMap(loc.NewParentIDs, func(id backend.CommitID, _ int) []backend.CommitID {
		if pp, ok := externalParents[id]; ok {
			return pp.Values()
		}
		return []backend.CommitID{id}
	})

	newChildren, err := resolveNewChildren(ctx, mut, targetIDs, loc.NewChildIDs)
	if err != nil {
		return nil, err
	}

	newChildrenParents := make(map[backend.CommitID][]backend.CommitID, len(newChildren))
	if len(newChildren) > 0 {
		heads := computeCommitsHeads(targetIDs, connected)
		for _, child := range newChildren {
			parents := newIDSet()
			for _, old := range child.ParentIDs() {
				mapped := []backend.CommitID{old}
				if pp, ok := externalParents[old]; ok {
					mapped = pp.Values()
				}
				for _, id := range mapped {
					if lo.Contains(newParentIDs, id) {
						parents.Add(heads...)
					} else {
						parents.Add(id)
					}
				}
			}
			parents.Add(heads...)
			newChildrenParents[child.ID()] = parents.Values()
		}
	}

	roots := append(targetRoots.Values(), lo.Map(newChildren, func(c *repo.Commit, _ int) backend.CommitID { return c.ID() })...)
	descendants, err := mut.FindDescendantsForRebase(ctx, roots)
	if err != nil {
		return nil, err
	}

	newParentsMap := make(map[backend.CommitID][]backend.CommitID, len(descendants))
	for _, c := range descendants {
		id := c.ID()
		if parents, ok := newChildrenParents[id]; ok {
			newParentsMap[id] = parents
			continue
		}
		switch {
		case targetIDs.Contains(id) && targetRoots.Contains(id):
			newParentsMap[id] = newParentIDs
		case targetIDs.Contains(id):
			var parents []backend.CommitID
			for _, p := range c.ParentIDs() {
				if targetIDs.Contains(p) {
					parents = append(parents, p)
					continue
				}
				if pp, ok := internalParents[p]; ok {
					parents = append(parents, pp.Values()...)
					continue
				}
				below, err := anyAncestorOf(idx, newChildren, p)
				if err != nil {
					return nil, err
				}
				if !below {
					parents = append(parents, p)
				}
			}
			newParentsMap[id] = parents
		case lo.SomeBy(c.ParentIDs(), func(p backend.CommitID) bool { _, ok := externalParents[p]; return ok }):
			newParentsMap[id] = lo.FlatMap(c.ParentIDs(), func(p backend.CommitID, _ int) []backend.CommitID {
				if pp, ok := externalParents[p]; ok {
					return pp.Values()
				}
				return []backend.CommitID{p}
			})
		default:
			newParentsMap[id] = c.ParentIDs()
		}
	}

	mut.Logger().Debug("planned move",
		zap.Int("targets", targetIDs.Len()),
		zap.Int("new_parents", len(newParentIDs)),
		zap.Int("new_children", len(newChildren)),
		zap.Int("descendants", len(descendants)))
	return &ComputedMoveCommits{
		targetIDs:     targetIDs,
		descendants:   descendants,
		newParentsMap: newParentsMap,
		toAbandon:     map[backend.CommitID]struct{}{},
	}, nil
}

// resolveNewChildren loads the new children. A child inside the target
// set is replaced by the nearest descendants outside the set.
func resolveNewChildren(ctx context.Context, mut *repo.MutableRepo, targetIDs idSet, childIDs []backend.CommitID) ([]*repo.Commit, error) {
	if !lo.SomeBy(childIDs, targetIDs.Contains) {
		return mut.GetCommits(ctx, childIDs)
	}
	idx := mut.Index()
	targets := targetIDs.Values()
	children, err := idx.Children(targets, mut.View().Heads())
	if err != nil {
		return nil, err
	}
	ordered, err := idx.SortTopological(lo.Uniq(append(children, targets...)))
	if err != nil {
		return nil, err
	}
	commits, err := mut.GetCommits(ctx, ordered)
	if err != nil {
		return nil, err
	}

	// Children first: each target collects the closest non-target
	// descendants.
	external := make(map[backend.CommitID][]*repo.Commit)
	for i := len(commits) - 1; i >= 0; i-- {
		c := commits[i]
		if _, ok := external[c.ID()]; !ok {
			if targetIDs.Contains(c.ID()) {
				external[c.ID()] = nil
			} else {
				external[c.ID()] = []*repo.Commit{c}
			}
		}
		for _, p := range c.ParentIDs() {
			if targetIDs.Contains(p) {
				external[p] = appendUnique(external[p], external[c.ID()]...)
			}
		}
	}

	var out []*repo.Commit
	for _, id := range childIDs {
		if desc, ok := external[id]; ok {
			out = append(out, desc...)
			continue
		}
		c, err := mut.GetCommit(ctx, id)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func appendUnique(dst []*repo.Commit, cs ...*repo.Commit) []*repo.Commit {
	for _, c := range cs {
		if !lo.ContainsBy(dst, func(d *repo.Commit) bool { return d.ID() == c.ID() }) {
			dst = append(dst, c)
		}
	}
	return dst
}

func anyAncestorOf(idx *repo.Index, commits []*repo.Commit, id backend.CommitID) (bool, error) {
	for _, c := range commits {
		ok, err := idx.IsAncestor(c.ID(), id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// FindDuplicateDivergentCommits returns the target commits whose change
// already exists, with identical content, among the new ancestors the move
// would give them. Such commits can be abandoned instead of moved.
func FindDuplicateDivergentCommits(ctx context.Context, mut *repo.MutableRepo, newParentIDs []backend.CommitID, target MoveCommitsTarget) ([]*repo.Commit, error) {
	idx := mut.Index()
	targetIDs := target.ids
	if target.kind == kindRoots {
		var err error
		if targetIDs, err = idx.Descendants(target.ids, mut.View().Heads()); err != nil {
			return nil, err
		}
	}
	targetCommits, err := mut.GetCommits(ctx, targetIDs)
	if err != nil {
		return nil, err
	}
	targetSet := newIDSet(targetIDs...)

	type divergent struct {
		commit     *repo.Commit
		candidates []backend.CommitID
	}
	var changes []divergent
	for _, c := range targetCommits {
		ids, err := mut.ResolveChangeID(c.ChangeID())
		if err != nil {
			return nil, err
		}
		candidates := lo.Reject(ids, func(id backend.CommitID, _ int) bool { return targetSet.Contains(id) })
		if len(candidates) > 0 {
			changes = append(changes, divergent{commit: c, candidates: candidates})
		}
	}
	if len(changes) == 0 {
		return nil, nil
	}

	// Only commits that would become new ancestors count.
	newAncestors, err := idx.Range(target.ids, newParentIDs)
	if err != nil {
		return nil, err
	}
	isNewAncestor := newIDSet(newAncestors...)

	var out []*repo.Commit
	for _, d := range changes {
		for _, id := range d.candidates {
			if !isNewAncestor.Contains(id) {
				continue
			}
			candidate, err := mut.GetCommit(ctx, id)
			if err != nil {
				return nil, err
			}
			rebased, err := RebaseToDestParent(ctx, mut, []*repo.Commit{d.commit}, candidate)
			if err != nil {
				return nil, err
			}
			if merge.Equal(rebased.ID(), candidate.TreeIDs()) {
				out = append(out, d.commit)
				break
			}
		}
	}
	return out, nil
}
