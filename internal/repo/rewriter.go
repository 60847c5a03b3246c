package repo

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/tree"
)

// EmptyBehavior decides what happens to a commit that becomes empty when
// rebased.
type EmptyBehavior int

const (
	// EmptyKeep never abandons.
	EmptyKeep EmptyBehavior = iota
	// EmptyAbandonNewlyEmpty abandons commits that were not empty before
	// the rebase but are afterwards.
	EmptyAbandonNewlyEmpty
	// EmptyAbandonAllEmpty abandons every commit that is empty after the
	// rebase.
	EmptyAbandonAllEmpty
)

func (e EmptyBehavior) String() string {
	switch e {
	case EmptyKeep:
		return "keep"
	case EmptyAbandonNewlyEmpty:
		return "abandon-newly-empty"
	case EmptyAbandonAllEmpty:
		return "abandon-all-empty"
	}
	return fmt.Sprintf("EmptyBehavior(%d)", int(e))
}

// ParseEmptyBehavior parses the String form of an EmptyBehavior.
func ParseEmptyBehavior(s string) (EmptyBehavior, error) {
	for _, e := range []EmptyBehavior{EmptyKeep, EmptyAbandonNewlyEmpty, EmptyAbandonAllEmpty} {
		if e.String() == s {
			return e, nil
		}
	}
	return EmptyKeep, fmt.Errorf("unknown empty behavior %q", s)
}

// RewriteRefsOptions controls how references follow rewritten commits.
type RewriteRefsOptions struct {
	// DeleteAbandonedBookmarks deletes bookmarks pointing at abandoned
	// commits instead of moving them to the parent.
	DeleteAbandonedBookmarks bool
}

// RebaseOptions controls a rebase.
type RebaseOptions struct {
	Empty       EmptyBehavior
	RewriteRefs RewriteRefsOptions
	// SimplifyAncestorMerge drops new parents that are ancestors of other
	// new parents.
	SimplifyAncestorMerge bool
}

// RebasedCommit is the result of rebasing one commit: either the rewritten
// commit, or the parent it was abandoned into.
type RebasedCommit struct {
	Rewritten       *Commit
	AbandonedParent backend.CommitID
}

// IsAbandoned reports whether the commit was abandoned.
func (r RebasedCommit) IsAbandoned() bool { return r.Rewritten == nil }

// FindRecursiveMergeCommits returns the merge of commits, with the common
// ancestors of each pair merged recursively as the bases.
func FindRecursiveMergeCommits(ctx context.Context, r Repo, commits []*Commit) (merge.Merge[*Commit], error) {
	switch len(commits) {
	case 0:
		root, err := r.GetCommit(ctx, r.Store().RootCommitID())
		if err != nil {
			return merge.Merge[*Commit]{}, err
		}
		return merge.Resolved(root), nil
	case 1:
		return merge.Resolved(commits[0]), nil
	}
	ids := commitIDs(commits)
	result := merge.Resolved(commits[0])
	for i := 1; i < len(commits); i++ {
		ancestorIDs, err := r.Index().CommonAncestors(ids[:i], ids[i:i+1])
		if err != nil {
			return merge.Merge[*Commit]{}, err
		}
		ancestors := make([]*Commit, 0, len(ancestorIDs))
		for _, id := range ancestorIDs {
			c, err := r.GetCommit(ctx, id)
			if err != nil {
				return merge.Merge[*Commit]{}, err
			}
			ancestors = append(ancestors, c)
		}
		ancestorMerge, err := FindRecursiveMergeCommits(ctx, r, ancestors)
		if err != nil {
			return merge.Merge[*Commit]{}, err
		}
		result = merge.Flatten(merge.New([]merge.Merge[*Commit]{result, ancestorMerge, merge.Resolved(commits[i])}))
	}
	return result, nil
}

// MergeCommitTrees returns the merged tree of commits, resolved as far as
// possible.
func MergeCommitTrees(ctx context.Context, r Repo, commits []*Commit) (*tree.MergedTree, error) {
	if len(commits) == 1 {
		return commits[0].Tree(ctx)
	}
	commitMerge, err := FindRecursiveMergeCommits(ctx, r, commits)
	if err != nil {
		return nil, err
	}
	ids := merge.Simplify(merge.Flatten(merge.Map(commitMerge, (*Commit).TreeIDs)))
	t, err := tree.Load(ctx, r.Store(), ids)
	if err != nil {
		return nil, err
	}
	return t.Resolve(ctx)
}

// CommitRewriter rewrites one commit onto new parents. After adjusting
// the parents, exactly one of Rebase, RebaseWithEmptyBehavior, Reparent
// or Abandon should be called.
type CommitRewriter struct {
	mut        *MutableRepo
	old        *Commit
	newParents []backend.CommitID
}

// NewCommitRewriter returns a rewriter moving old onto newParents.
func NewCommitRewriter(mut *MutableRepo, old *Commit, newParents []backend.CommitID) *CommitRewriter {
	return &CommitRewriter{mut: mut, old: old, newParents: slices.Clone(newParents)}
}

func (rw *CommitRewriter) Repo() *MutableRepo             { return rw.mut }
func (rw *CommitRewriter) OldCommit() *Commit             { return rw.old }
func (rw *CommitRewriter) NewParents() []backend.CommitID { return rw.newParents }

func (rw *CommitRewriter) SetNewParents(ids []backend.CommitID) {
	rw.newParents = slices.Clone(ids)
}

// SetNewRewrittenParents sets the new parents to ids mapped through the
// rewrites recorded in the repo.
func (rw *CommitRewriter) SetNewRewrittenParents(ids []backend.CommitID) {
	rw.newParents = rw.mut.NewParents(ids)
}

// ReplaceParent replaces the first occurrence of old among the new parents
// with replacements, dropping duplicates.
func (rw *CommitRewriter) ReplaceParent(old backend.CommitID, replacements []backend.CommitID) {
	i := slices.Index(rw.newParents, old)
	if i < 0 {
		return
	}
	rw.newParents = slices.Concat(rw.newParents[:i], replacements, rw.newParents[i+1:])
	seen := make(map[backend.CommitID]bool, len(rw.newParents))
	rw.newParents = slices.DeleteFunc(rw.newParents, func(id backend.CommitID) bool {
		if seen[id] {
			return true
		}
		seen[id] = true
		return false
	})
}

// ParentsChanged reports whether the new parents differ from the old
// commit's parents.
func (rw *CommitRewriter) ParentsChanged() bool {
	return !slices.Equal(rw.newParents, rw.old.ParentIDs())
}

// SimplifyAncestorMerge drops new parents that are ancestors of other new
// parents.
func (rw *CommitRewriter) SimplifyAncestorMerge() error {
	heads, err := rw.mut.index.Heads(rw.newParents)
	if err != nil {
		return err
	}
	rw.newParents = slices.DeleteFunc(rw.newParents, func(id backend.CommitID) bool {
		return !slices.Contains(heads, id)
	})
	return nil
}

// Abandon records the old commit as abandoned; its descendants will move
// to the new parents.
func (rw *CommitRewriter) Abandon() {
	rw.mut.RecordAbandonedCommitWithParents(rw.old.ID(), rw.newParents)
}

// Rebase returns a builder for the old commit moved onto the new parents,
// with its changes replayed on top of them.
func (rw *CommitRewriter) Rebase(ctx context.Context) (*CommitBuilder, error) {
	return rw.RebaseWithEmptyBehavior(ctx, EmptyKeep)
}

// RebaseWithEmptyBehavior is Rebase, but abandons the commit and returns
// nil if empty says so. Commits with several new parents are never
// abandoned.
func (rw *CommitRewriter) RebaseWithEmptyBehavior(ctx context.Context, empty EmptyBehavior) (*CommitBuilder, error) {
	oldParents, err := rw.old.Parents(ctx)
	if err != nil {
		return nil, err
	}
	newParents, err := rw.mut.GetCommits(ctx, rw.newParents)
	if err != nil {
		return nil, err
	}

	var (
		wasEmpty bool
		newTree  merge.Merge[backend.TreeID]
	)
	if sameTrees(oldParents, newParents) {
		// Nothing to replay; the commit cannot have become empty.
		wasEmpty = true
		newTree = rw.old.TreeIDs()
	} else {
		oldBase, err := MergeCommitTrees(ctx, rw.mut, oldParents)
		if err != nil {
			return nil, err
		}
		newBase, err := MergeCommitTrees(ctx, rw.mut, newParents)
		if err != nil {
			return nil, err
		}
		oldTree, err := rw.old.Tree(ctx)
		if err != nil {
			return nil, err
		}
		wasEmpty = merge.Equal(oldBase.ID(), rw.old.TreeIDs())
		merged, err := newBase.Merge(ctx, oldBase, oldTree)
		if err != nil {
			return nil, fmt.Errorf("rebase %s: %w", rw.old.ID().Short(), err)
		}
		newTree = merged.ID()
	}

	if len(newParents) == 1 {
		isEmpty := merge.Equal(newParents[0].TreeIDs(), newTree)
		var abandon bool
		switch empty {
		case EmptyAbandonNewlyEmpty:
			abandon = isEmpty && !wasEmpty
		case EmptyAbandonAllEmpty:
			abandon = isEmpty
		}
		if abandon {
			rw.mut.log.Debug("abandoned empty commit",
				zap.Stringer("commit", rw.old.ID()),
				zap.Stringer("empty", empty))
			rw.Abandon()
			return nil, nil
		}
	}
	return rw.mut.RewriteCommit(rw.old).SetParents(rw.newParents).SetTree(newTree), nil
}

// Reparent returns a builder for the old commit on the new parents with
// its tree unchanged.
func (rw *CommitRewriter) Reparent() *CommitBuilder {
	return rw.mut.RewriteCommit(rw.old).SetParents(rw.newParents)
}

func sameTrees(a, b []*Commit) bool {
	return slices.EqualFunc(a, b, func(x, y *Commit) bool {
		return merge.Equal(x.TreeIDs(), y.TreeIDs())
	})
}

// RebaseCommitWithOptions rebases the rewriter's commit and writes the
// result.
func RebaseCommitWithOptions(ctx context.Context, rw *CommitRewriter, opts RebaseOptions) (RebasedCommit, error) {
	if opts.SimplifyAncestorMerge {
		if err := rw.SimplifyAncestorMerge(); err != nil {
			return RebasedCommit{}, err
		}
	}
	parents := slices.Clone(rw.newParents)
	builder, err := rw.RebaseWithEmptyBehavior(ctx, opts.Empty)
	if err != nil {
		return RebasedCommit{}, err
	}
	if builder == nil {
		if len(parents) != 1 {
			panic(fmt.Sprintf("abandoned %s with %d parents", rw.old.ID().Short(), len(parents)))
		}
		return RebasedCommit{AbandonedParent: parents[0]}, nil
	}
	commit, err := builder.Write(ctx)
	if err != nil {
		return RebasedCommit{}, err
	}
	return RebasedCommit{Rewritten: commit}, nil
}

// RebaseCommit rebases old onto newParents, keeping it even if it becomes
// empty.
func RebaseCommit(ctx context.Context, mut *MutableRepo, old *Commit, newParents []backend.CommitID) (*Commit, error) {
	builder, err := NewCommitRewriter(mut, old, newParents).Rebase(ctx)
	if err != nil {
		return nil, err
	}
	return builder.Write(ctx)
}
