package rewrite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/repo"
	"github.com/systemshift/splice/internal/repopath"
)

func TestSquashCommits_IntoParent(t *testing.T) {
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	a := createCommit(t, mut, nil, map[string]string{"f": "1"})
	b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"f": "1", "g": "2"})

	src, err := SelectAll(ctx, mut, b)
	require.NoError(t, err)
	assert.True(t, src.IsFullSelection())
	assert.False(t, src.IsEmptySelection())

	squashed, err := SquashCommits(ctx, mut, []CommitWithSelection{src}, a, false)
	require.NoError(t, err)
	require.NotNil(t, squashed)
	assert.Equal(t, ids(b), ids(squashed.Abandoned...))

	a2, err := squashed.Builder.SetDescription("squashed").Write(ctx)
	require.NoError(t, err)
	assert.Equal(t, a.ChangeID(), a2.ChangeID())
	assert.Equal(t, ids(a, b), a2.PredecessorIDs())
	assert.Equal(t, map[string]string{"f": "1", "g": "2"}, commitFiles(t, a2))

	_, err = mut.RebaseDescendants(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids(a2), mut.View().Heads())
}

func TestSquashCommits_PartialSelection(t *testing.T) {
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	a := createCommit(t, mut, nil, map[string]string{"f": "1"})
	b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"f": "1", "g": "2", "h": "3"})

	bTree, err := b.Tree(ctx)
	require.NoError(t, err)
	parentTree, err := b.ParentTree(ctx, mut)
	require.NoError(t, err)
	selected, err := RestoreTree(ctx, bTree, parentTree, repopath.Files(repopath.MustParse("g")))
	require.NoError(t, err)
	src := CommitWithSelection{Commit: b, SelectedTree: selected, ParentTree: parentTree}
	assert.False(t, src.IsFullSelection())

	squashed, err := SquashCommits(ctx, mut, []CommitWithSelection{src}, a, false)
	require.NoError(t, err)
	require.NotNil(t, squashed)
	assert.Empty(t, squashed.Abandoned)
	a2, err := squashed.Builder.Write(ctx)
	require.NoError(t, err)
	assert.Equal(t, map[string]string{"f": "1", "g": "2"}, commitFiles(t, a2))

	_, err = mut.RebaseDescendants(ctx)
	require.NoError(t, err)
	heads := headCommits(t, mut)
	require.Len(t, heads, 1)
	b3 := heads[0]
	assert.Equal(t, b.ChangeID(), b3.ChangeID())
	assert.Equal(t, ids(a2), b3.ParentIDs())
	// Nothing is lost: the stack still holds every change.
	assert.Equal(t, map[string]string{"f": "1", "g": "2", "h": "3"}, commitFiles(t, b3))
}

func TestSquashCommits_IntoDescendant(t *testing.T) {
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	a := createCommit(t, mut, nil, map[string]string{"f": "1"})
	b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"f": "1", "g": "1"})

	src, err := SelectAll(ctx, mut, a)
	require.NoError(t, err)
	squashed, err := SquashCommits(ctx, mut, []CommitWithSelection{src}, b, false)
	require.NoError(t, err)
	require.NotNil(t, squashed)
	b3, err := squashed.Builder.Write(ctx)
	require.NoError(t, err)

	root := mut.Store().RootCommitID()
	assert.Equal(t, b.ChangeID(), b3.ChangeID())
	assert.Equal(t, []backend.CommitID{root}, b3.ParentIDs())
	assert.Equal(t, ids(b, a), b3.PredecessorIDs())
	assert.Equal(t, map[string]string{"f": "1", "g": "1"}, commitFiles(t, b3))

	_, err = mut.RebaseDescendants(ctx)
	require.NoError(t, err)
	assert.Equal(t, ids(b3), mut.View().Heads())
}

func TestSquashCommits_NothingSelected(t *testing.T) {
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	a := createCommit(t, mut, nil, map[string]string{"f": "1"})
	b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"f": "2"})

	parentTree, err := b.ParentTree(ctx, mut)
	require.NoError(t, err)
	src := CommitWithSelection{Commit: b, SelectedTree: parentTree, ParentTree: parentTree}
	assert.True(t, src.IsEmptySelection())

	squashed, err := SquashCommits(ctx, mut, []CommitWithSelection{src}, a, false)
	require.NoError(t, err)
	assert.Nil(t, squashed)
	assert.False(t, mut.HasRewrites())
}

func TestSquashCommits_KeepEmptied(t *testing.T) {
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	a := createCommit(t, mut, nil, map[string]string{"f": "1"})
	b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"f": "1", "g": "2"})

	src, err := SelectAll(ctx, mut, b)
	require.NoError(t, err)
	squashed, err := SquashCommits(ctx, mut, []CommitWithSelection{src}, a, true)
	require.NoError(t, err)
	require.NotNil(t, squashed)
	assert.Empty(t, squashed.Abandoned)
	_, err = squashed.Builder.Write(ctx)
	require.NoError(t, err)

	_, err = mut.RebaseDescendants(ctx)
	require.NoError(t, err)
	heads := headCommits(t, mut)
	require.Len(t, heads, 1)
	assert.Equal(t, b.ChangeID(), heads[0].ChangeID())
	empty, err := heads[0].IsEmpty(ctx, mut)
	require.NoError(t, err)
	assert.True(t, empty)
}
