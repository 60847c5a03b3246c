package rewrite

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/repo"
)

func TestMoveCommits_Revision(t *testing.T) {
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	a := createCommit(t, mut, nil, map[string]string{"a": "1"})
	b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"a": "1", "b": "1"})
	c := createCommit(t, mut, []*repo.Commit{b}, map[string]string{"a": "1", "b": "1", "c": "1"})
	d := createCommit(t, mut, nil, map[string]string{"d": "1"})

	stats, err := MoveCommits(ctx, mut, MoveCommitsLocation{
		NewParentIDs: ids(d),
		Target:       Commits(b.ID()),
	}, repo.RebaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NumRebasedTargets)
	assert.Equal(t, 1, stats.NumRebasedDescendants)
	assert.Zero(t, stats.NumSkippedRebases)

	b2 := stats.RebasedCommits[b.ID()].Rewritten
	c2 := stats.RebasedCommits[c.ID()].Rewritten
	require.NotNil(t, b2)
	require.NotNil(t, c2)
	assert.Equal(t, ids(d), b2.ParentIDs())
	assert.Equal(t, map[string]string{"b": "1", "d": "1"}, commitFiles(t, b2))
	// c stays where it was, without b's change.
	assert.Equal(t, ids(a), c2.ParentIDs())
	assert.Equal(t, map[string]string{"a": "1", "c": "1"}, commitFiles(t, c2))
	assert.ElementsMatch(t, ids(b2, c2), mut.View().Heads())
}

func TestMoveCommits_Roots(t *testing.T) {
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	a := createCommit(t, mut, nil, map[string]string{"a": "1"})
	b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"a": "1", "b": "1"})
	c := createCommit(t, mut, []*repo.Commit{b}, map[string]string{"a": "1", "b": "1", "c": "1"})
	d := createCommit(t, mut, nil, map[string]string{"d": "1"})

	stats, err := MoveCommits(ctx, mut, MoveCommitsLocation{
		NewParentIDs: ids(d),
		Target:       Roots(b.ID()),
	}, repo.RebaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, 2, stats.NumRebasedTargets)
	assert.Zero(t, stats.NumRebasedDescendants)

	b2 := stats.RebasedCommits[b.ID()].Rewritten
	c2 := stats.RebasedCommits[c.ID()].Rewritten
	assert.Equal(t, ids(d), b2.ParentIDs())
	assert.Equal(t, ids(b2), c2.ParentIDs())
	assert.Equal(t, map[string]string{"b": "1", "c": "1", "d": "1"}, commitFiles(t, c2))
	// a lost its only child but stays visible.
	assert.ElementsMatch(t, ids(a, c2), mut.View().Heads())
}

func TestMoveCommits_KeepsEarlierRewrite(t *testing.T) {
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	a := createCommit(t, mut, nil, map[string]string{"a": "1"})
	b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"a": "1", "b": "1"})
	c := createCommit(t, mut, []*repo.Commit{b}, map[string]string{"a": "1", "b": "1", "c": "1"})
	d := createCommit(t, mut, nil, map[string]string{"d": "1"})

	edited, err := mut.RewriteCommit(b).SetDescription("edited").Write(ctx)
	require.NoError(t, err)

	stats, err := MoveCommits(ctx, mut, MoveCommitsLocation{
		NewParentIDs: ids(d),
		Target:       Roots(a.ID()),
	}, repo.RebaseOptions{})
	require.NoError(t, err)
	assert.NotContains(t, stats.RebasedCommits, b.ID())
	assert.Equal(t, 3, stats.NumRebasedTargets)
	_, err = mut.RebaseDescendants(ctx)
	require.NoError(t, err)

	heads := headCommits(t, mut)
	require.Len(t, heads, 1)
	c2 := heads[0]
	assert.Equal(t, c.ChangeID(), c2.ChangeID())
	require.Len(t, c2.ParentIDs(), 1)
	b2, err := mut.GetCommit(ctx, c2.ParentIDs()[0])
	require.NoError(t, err)
	assert.Equal(t, "edited", b2.Description())
	assert.Equal(t, stats.RebasedCommits[edited.ID()].Rewritten.ID(), b2.ID())
	a2 := stats.RebasedCommits[a.ID()].Rewritten
	assert.Equal(t, ids(a2), b2.ParentIDs())
	assert.Equal(t, ids(d), a2.ParentIDs())

	visible, err := mut.ResolveChangeID(b.ChangeID())
	require.NoError(t, err)
	assert.Equal(t, ids(b2), visible)
}

func TestMoveCommits_InsertBetween(t *testing.T) {
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	a := createCommit(t, mut, nil, map[string]string{"a": "1"})
	b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"a": "1", "b": "1"})
	x := createCommit(t, mut, nil, map[string]string{"x": "1"})

	stats, err := MoveCommits(ctx, mut, MoveCommitsLocation{
		NewParentIDs: ids(a),
		NewChildIDs:  ids(b),
		Target:       Commits(x.ID()),
	}, repo.RebaseOptions{})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NumRebasedTargets)
	assert.Equal(t, 1, stats.NumRebasedDescendants)

	x2 := stats.RebasedCommits[x.ID()].Rewritten
	b2 := stats.RebasedCommits[b.ID()].Rewritten
	assert.Equal(t, ids(a), x2.ParentIDs())
	assert.Equal(t, ids(x2), b2.ParentIDs())
	assert.Equal(t, map[string]string{"a": "1", "b": "1", "x": "1"}, commitFiles(t, b2))
	assert.Equal(t, ids(b2), mut.View().Heads())
}

func TestMoveCommits_OntoItself(t *testing.T) {
	ctx := context.Background()

	t.Run("before", func(t *testing.T) {
		mut := newTestMutableRepo(t)
		a := createCommit(t, mut, nil, map[string]string{"a": "1"})
		b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"b": "1"})

		// A target named as new parent is replaced by its own parents.
		computed, err := ComputeMoveCommits(ctx, mut, MoveCommitsLocation{
			NewParentIDs: ids(b),
			Target:       Commits(b.ID()),
		})
		require.NoError(t, err)
		parents, ok := computed.NewParents(b.ID())
		require.True(t, ok)
		assert.Equal(t, ids(a), parents)

		stats, err := computed.Apply(ctx, mut, repo.RebaseOptions{})
		require.NoError(t, err)
		assert.Equal(t, 1, stats.NumSkippedRebases)
		assert.Empty(t, stats.RebasedCommits)
		assert.Equal(t, ids(b), mut.View().Heads())
	})

	t.Run("after", func(t *testing.T) {
		mut := newTestMutableRepo(t)
		a := createCommit(t, mut, nil, map[string]string{"a": "1"})
		b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"b": "1"})
		c := createCommit(t, mut, []*repo.Commit{b}, map[string]string{"c": "1"})

		// A target named as new child is replaced by its own children.
		stats, err := MoveCommits(ctx, mut, MoveCommitsLocation{
			NewParentIDs: ids(a),
			NewChildIDs:  ids(b),
			Target:       Commits(b.ID()),
		}, repo.RebaseOptions{})
		require.NoError(t, err)
		assert.Equal(t, 2, stats.NumSkippedRebases)
		assert.Equal(t, ids(c), mut.View().Heads())
	})
}

func TestMoveCommits_AbandonNewlyEmpty(t *testing.T) {
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	a := createCommit(t, mut, nil, map[string]string{"f": "1"})
	b := createCommit(t, mut, nil, map[string]string{"f": "1"})

	stats, err := MoveCommits(ctx, mut, MoveCommitsLocation{
		NewParentIDs: ids(a),
		Target:       Commits(b.ID()),
	}, repo.RebaseOptions{Empty: repo.EmptyAbandonNewlyEmpty})
	require.NoError(t, err)
	assert.Equal(t, 1, stats.NumAbandonedEmpty)
	rebased := stats.RebasedCommits[b.ID()]
	require.True(t, rebased.IsAbandoned())
	assert.Equal(t, a.ID(), rebased.AbandonedParent)
	assert.Equal(t, ids(a), mut.View().Heads())
}

func TestComputedMoveCommits_RecordToAbandon(t *testing.T) {
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	a := createCommit(t, mut, nil, map[string]string{"a": "1"})
	b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"a": "1", "b": "1"})
	c := createCommit(t, mut, []*repo.Commit{b}, map[string]string{"a": "1", "b": "1", "c": "1"})
	d := createCommit(t, mut, nil, map[string]string{"d": "1"})

	computed, err := ComputeMoveCommits(ctx, mut, MoveCommitsLocation{
		NewParentIDs: ids(d),
		Target:       Roots(b.ID()),
	})
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(b, c), ids(computed.Descendants()...))
	computed.RecordToAbandon(b.ID())

	stats, err := computed.Apply(ctx, mut, repo.RebaseOptions{})
	require.NoError(t, err)
	c2 := stats.RebasedCommits[c.ID()].Rewritten
	require.NotNil(t, c2)
	assert.Equal(t, ids(d), c2.ParentIDs())
	assert.Equal(t, map[string]string{"c": "1", "d": "1"}, commitFiles(t, c2))
	assert.ElementsMatch(t, ids(a, c2), mut.View().Heads())
}

func TestMoveCommits_EmptyTarget(t *testing.T) {
	mut := newTestMutableRepo(t)
	stats, err := MoveCommits(context.Background(), mut, MoveCommitsLocation{
		NewParentIDs: []backend.CommitID{mut.Store().RootCommitID()},
		Target:       Commits(),
	}, repo.RebaseOptions{})
	require.NoError(t, err)
	assert.Empty(t, stats.RebasedCommits)
}

func TestFindDuplicateDivergentCommits(t *testing.T) {
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	a := createCommit(t, mut, nil, map[string]string{"f": "1"})
	b := createCommit(t, mut, []*repo.Commit{a}, map[string]string{"f": "1", "g": "1"})
	// Same change as b with the same content, with a child on top.
	twin, err := mut.NewCommit(ids(a), b.TreeIDs()).SetChangeID(b.ChangeID()).Write(ctx)
	require.NoError(t, err)
	e := createCommit(t, mut, []*repo.Commit{twin}, map[string]string{"f": "1", "g": "1", "e": "1"})

	dups, err := FindDuplicateDivergentCommits(ctx, mut, ids(e), Roots(b.ID()))
	require.NoError(t, err)
	assert.Equal(t, ids(b), ids(dups...))

	// Moving onto a does not bring the twin into b's ancestry.
	dups, err = FindDuplicateDivergentCommits(ctx, mut, ids(a), Commits(b.ID()))
	require.NoError(t, err)
	assert.Empty(t, dups)
}
