package rewrite

import (
	"context"

	"github.com/emirpasic/gods/maps/linkedhashmap"
	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/repo"
)

// DuplicateCommitsStats reports a duplication. DuplicatedCommits maps each
// original id to its copy, in the order the copies were written.
type DuplicateCommitsStats struct {
	DuplicatedCommits *linkedhashmap.Map
	NumRebased        int
}

func newDuplicateStats() DuplicateCommitsStats {
	return DuplicateCommitsStats{DuplicatedCommits: linkedhashmap.New()}
}

// Duplicate returns the copy of id, if it was duplicated.
func (s DuplicateCommitsStats) Duplicate(id backend.CommitID) (*repo.Commit, bool) {
	v, ok := s.DuplicatedCommits.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*repo.Commit), true
}

// Copies returns the new commits in the order they were written.
func (s DuplicateCommitsStats) Copies() []*repo.Commit {
	values := s.DuplicatedCommits.Values()
	return lo.Map(values, func(v interface{}, _ int) *repo.Commit { return v.(*repo.Commit) })
}

func (s DuplicateCommitsStats) mapID(id backend.CommitID) backend.CommitID {
	if c, ok := s.Duplicate(id); ok {
		return c.ID()
	}
	return id
}

// DuplicateCommits copies targetIDs (children before parents) with fresh
// change ids. The target roots are placed on parentIDs, the other copies on
// the copies of their parents inside the set. Each of childrenIDs is then
// rebased onto the heads of the copies. descriptions overrides the
// description of individual targets.
func DuplicateCommits(ctx context.Context, mut *repo.MutableRepo, targetIDs []backend.CommitID, descriptions map[backend.CommitID]string, parentIDs, childrenIDs []backend.CommitID) (DuplicateCommitsStats, error) {
	stats := newDuplicateStats()
	if len(targetIDs) == 0 {
		return stats, nil
	}
	targets := newIDSet(targetIDs...)

	connectedIDs, err := mut.Index().Connected(targetIDs)
	if err != nil {
		return stats, err
	}
	connected, err := mut.GetCommits(ctx, connectedIDs)
	if err != nil {
		return stats, err
	}
	internalParents := computeInternalParentsWithin(targets, connected)

	var heads []backend.CommitID
	if len(childrenIDs) > 0 {
		heads = computeCommitsHeads(targets, connected)
	}

	ordered := targets.Values()
	for i := len(ordered) - 1; i >= 0; i-- {
		original, err := mut.GetCommit(ctx, ordered[i])
		if err != nil {
			return stats, err
		}
		newParents := parentIDs
		if internal := internalParents[original.ID()].Values(); len(internal) > 0 {
			newParents = lo.Map(internal, func(id backend.CommitID, _ int) backend.CommitID { return stats.mapID(id) })
		}
		builder, err := repo.NewCommitRewriter(mut, original, newParents).Rebase(ctx)
		if err != nil {
			return stats, err
		}
		builder.ClearRewriteSource().GenerateNewChangeID()
		if desc, ok := descriptions[original.ID()]; ok {
			builder.SetDescription(desc)
		}
		dup, err := builder.Write(ctx)
		if err != nil {
			return stats, err
		}
		stats.DuplicatedCommits.Put(original.ID(), dup)
	}

	heads = lo.Map(heads, func(id backend.CommitID, _ int) backend.CommitID { return stats.mapID(id) })
	children := newIDSet(childrenIDs...)
	err = mut.TransformDescendants(ctx, childrenIDs, func(ctx context.Context, rw *repo.CommitRewriter) error {
		if children.Contains(rw.OldCommit().ID()) {
			parents := newIDSet()
			for _, p := range rw.OldCommit().ParentIDs() {
				if lo.Contains(parentIDs, p) {
					parents.Add(heads...)
				} else {
					parents.Add(p)
				}
			}
			parents.Add(heads...)
			rw.SetNewParents(parents.Values())
		}
		stats.NumRebased++
		builder, err := rw.Rebase(ctx)
		if err != nil {
			return err
		}
		_, err = builder.Write(ctx)
		return err
	})
	if err != nil {
		return stats, err
	}
	mut.Logger().Debug("duplicated commits",
		zap.Int("duplicated", stats.DuplicatedCommits.Size()),
		zap.Int("rebased", stats.NumRebased))
	return stats, nil
}

// DuplicateCommitsOntoParents copies targetIDs (children before parents)
// onto their own parents, or onto the copies of those parents. Trees are
// kept unchanged.
func DuplicateCommitsOntoParents(ctx context.Context, mut *repo.MutableRepo, targetIDs []backend.CommitID, descriptions map[backend.CommitID]string) (DuplicateCommitsStats, error) {
	stats := newDuplicateStats()
	for i := len(targetIDs) - 1; i >= 0; i-- {
		original, err := mut.GetCommit(ctx, targetIDs[i])
		if err != nil {
			return stats, err
		}
		parents := lo.Map(original.ParentIDs(), func(id backend.CommitID, _ int) backend.CommitID { return stats.mapID(id) })
		builder := mut.RewriteCommit(original).
			ClearRewriteSource().
			GenerateNewChangeID().
			SetParents(parents)
		if desc, ok := descriptions[original.ID()]; ok {
			builder.SetDescription(desc)
		}
		dup, err := builder.Write(ctx)
		if err != nil {
			return stats, err
		}
		stats.DuplicatedCommits.Put(original.ID(), dup)
	}
	return stats, nil
}

// computeInternalParentsWithin maps every commit of graph (children before
// parents) to its nearest ancestors inside targets, skipping over commits
// outside targets. Roots of the set map to an empty set.
func computeInternalParentsWithin(targets idSet, graph []*repo.Commit) map[backend.CommitID]idSet {
	internal := make(map[backend.CommitID]idSet, len(graph))
	for i := len(graph) - 1; i >= 0; i-- {
		c := graph[i]
		parents := newIDSet()
		for _, p := range c.ParentIDs() {
			if targets.Contains(p) {
				parents.Add(p)
			} else if pp, ok := internal[p]; ok {
				parents.Add(pp.Values()...)
			}
		}
		internal[c.ID()] = parents
	}
	return internal
}

// computeCommitsHeads returns the commits of targets that have no child in
// the connected graph (children before parents), parents first.
func computeCommitsHeads(targets idSet, connected []*repo.Commit) []backend.CommitID {
	heads := make(map[backend.CommitID]bool, len(connected))
	for i := len(connected) - 1; i >= 0; i-- {
		c := connected[i]
		heads[c.ID()] = true
		for _, p := range c.ParentIDs() {
			delete(heads, p)
		}
	}
	var out []backend.CommitID
	for i := len(connected) - 1; i >= 0; i-- {
		id := connected[i].ID()
		if heads[id] && targets.Contains(id) {
			out = append(out, id)
		}
	}
	return out
}
