package rewrite

import (
	"context"
	"fmt"

	"github.com/samber/lo"
	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repo"
	"github.com/systemshift/splice/internal/tree"
)

// CommitWithSelection is a commit plus the part of its changes selected for
// a squash: SelectedTree is ParentTree with the selected changes applied.
type CommitWithSelection struct {
	Commit       *repo.Commit
	SelectedTree *tree.MergedTree
	ParentTree   *tree.MergedTree
}

// SelectAll selects every change in c.
func SelectAll(ctx context.Context, r repo.Repo, c *repo.Commit) (CommitWithSelection, error) {
	selected, err := c.Tree(ctx)
	if err != nil {
		return CommitWithSelection{}, err
	}
	parent, err := c.ParentTree(ctx, r)
	if err != nil {
		return CommitWithSelection{}, err
	}
	return CommitWithSelection{Commit: c, SelectedTree: selected, ParentTree: parent}, nil
}

// IsFullSelection reports whether every change in the commit is selected.
func (s CommitWithSelection) IsFullSelection() bool {
	return merge.Equal(s.SelectedTree.ID(), s.Commit.TreeIDs())
}

// IsEmptySelection reports whether nothing is selected. An empty commit is
// both a full and an empty selection.
func (s CommitWithSelection) IsEmptySelection() bool {
	return merge.Equal(s.SelectedTree.ID(), s.ParentTree.ID())
}

// SquashedCommit holds the unwritten destination commit of a squash and
// the sources that were abandoned. The caller sets the description and
// writes Builder.
type SquashedCommit struct {
	Builder   *repo.CommitBuilder
	Abandoned []*repo.Commit
}

type squashSource struct {
	CommitWithSelection
	abandon bool
}

// SquashCommits moves the selected changes of sources into destination.
// Sources left with nothing are abandoned unless keepEmptied is set. It
// returns nil when no source has anything to move.
func SquashCommits(ctx context.Context, mut *repo.MutableRepo, sources []CommitWithSelection, destination *repo.Commit, keepEmptied bool) (*SquashedCommit, error) {
	var picked []squashSource
	for _, src := range sources {
		abandon := !keepEmptied && src.IsFullSelection()
		// An already empty source is still picked so it can be abandoned.
		if !abandon && src.IsEmptySelection() {
			continue
		}
		picked = append(picked, squashSource{CommitWithSelection: src, abandon: abandon})
	}
	if len(picked) == 0 {
		return nil, nil
	}

	var abandoned []*repo.Commit
	for _, src := range picked {
		if src.abandon {
			mut.RecordAbandonedCommit(src.Commit)
			abandoned = append(abandoned, src.Commit)
			continue
		}
		srcTree, err := src.Commit.Tree(ctx)
		if err != nil {
			return nil, err
		}
		// Take the selected changes out of the source.
		remaining, err := srcTree.Merge(ctx, src.SelectedTree, src.ParentTree)
		if err != nil {
			return nil, err
		}
		if _, err := mut.RewriteCommit(src.Commit).SetTree(remaining.ID()).Write(ctx); err != nil {
			return nil, err
		}
	}

	rewrittenDest := destination
	intoDescendant, err := anySourceIsAncestor(mut.Index(), sources, destination.ID())
	if err != nil {
		return nil, err
	}
	if intoDescendant {
		// Rebase first, or the destination would already contain the
		// moved changes and applying them again would drop them.
		_, err := mut.RebaseDescendantsWithOptions(ctx, repo.RebaseOptions{}, func(old *repo.Commit, rebased repo.RebasedCommit) {
			if old.ID() != destination.ID() {
				return
			}
			if rebased.IsAbandoned() {
				panic(fmt.Sprintf("squash destination %s was abandoned", destination.ID().Short()))
			}
			rewrittenDest = rebased.Rewritten
		})
		if err != nil {
			return nil, err
		}
	}

	destTree, err := rewrittenDest.Tree(ctx)
	if err != nil {
		return nil, err
	}
	for _, src := range picked {
		if destTree, err = destTree.Merge(ctx, src.ParentTree, src.SelectedTree); err != nil {
			return nil, err
		}
	}
	predecessors := append([]backend.CommitID{destination.ID()}, lo.Map(picked, func(s squashSource, _ int) backend.CommitID {
		return s.Commit.ID()
	})...)

	mut.Logger().Debug("squashed commits",
		zap.Stringer("destination", destination.ID()),
		zap.Int("sources", len(picked)),
		zap.Int("abandoned", len(abandoned)))
	return &SquashedCommit{
		Builder: mut.RewriteCommit(rewrittenDest).
			SetTree(destTree.ID()).
			SetPredecessors(predecessors),
		Abandoned: abandoned,
	}, nil
}

func anySourceIsAncestor(idx *repo.Index, sources []CommitWithSelection, id backend.CommitID) (bool, error) {
	for _, src := range sources {
		ok, err := idx.IsAncestor(src.Commit.ID(), id)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}
