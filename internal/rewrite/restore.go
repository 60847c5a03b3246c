package rewrite

import (
	"context"
	"slices"

	"github.com/systemshift/splice/internal/repo"
	"github.com/systemshift/splice/internal/repopath"
	"github.com/systemshift/splice/internal/tree"
)

// RestoreTree returns destination with the paths matched by matcher taken
// from source.
func RestoreTree(ctx context.Context, source, destination *tree.MergedTree, matcher repopath.Matcher) (*tree.MergedTree, error) {
	if matcher.MatchesAll() {
		return source, nil
	}
	b := tree.NewMergedTreeBuilder(destination)
	for entry := range source.DiffStream(ctx, destination, matcher) {
		if entry.Err != nil {
			return nil, entry.Err
		}
		b.Set(entry.Path, entry.Before)
	}
	return b.WriteTree(ctx)
}

// RebaseToDestParent returns the tree destination would have if the
// changes of sources were applied to its parents instead of its own
// changes.
func RebaseToDestParent(ctx context.Context, r repo.Repo, sources []*repo.Commit, destination *repo.Commit) (*tree.MergedTree, error) {
	if len(sources) == 1 && slices.Equal(sources[0].ParentIDs(), destination.ParentIDs()) {
		return sources[0].Tree(ctx)
	}
	result, err := destination.ParentTree(ctx, r)
	if err != nil {
		return nil, err
	}
	for _, src := range sources {
		parentTree, err := src.ParentTree(ctx, r)
		if err != nil {
			return nil, err
		}
		srcTree, err := src.Tree(ctx)
		if err != nil {
			return nil, err
		}
		if result, err = result.Merge(ctx, parentTree, srcTree); err != nil {
			return nil, err
		}
	}
	return result, nil
}
