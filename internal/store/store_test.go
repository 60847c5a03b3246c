package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/dag"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repopath"
)

func newStore(t *testing.T, opts ...Option) *Store {
	t.Helper()
	b, err := backend.NewObjectBackend(context.Background(), dag.NewMemStore(), 2)
	require.NoError(t, err)
	return New(b, opts...)
}

func TestStore_CachesTrees(t *testing.T) {
	ctx := context.Background()
	s := newStore(t)
	fileID, err := s.WriteFile(ctx, "f", []byte("x"))
	require.NoError(t, err)
	tree := backend.NewTree([]backend.TreeEntry{{Name: "f", Value: backend.FileValue(fileID, false, "")}})
	id, err := s.WriteTree(ctx, repopath.Root, tree)
	require.NoError(t, err)

	got, err := s.GetTree(ctx, repopath.Root, id)
	require.NoError(t, err)
	assert.Same(t, tree, got)
}

func TestStore_WriteCommitCopies(t *testing.T) {
	ctx := context.Background()
	s := newStore(t, WithMergeOptions(MergeOptions{SameChange: merge.SameChangeKeep}))
	assert.Equal(t, merge.SameChangeKeep, s.MergeOptions().SameChange)
	assert.Equal(t, 2, s.Concurrency())

	commit := &backend.Commit{
		Parents:      []backend.CommitID{s.RootCommitID()},
		Predecessors: []backend.CommitID{},
		RootTree:     merge.Resolved(s.EmptyTreeID()),
		ChangeID:     backend.NewChangeID(),
	}
	id, stored, err := s.WriteCommit(ctx, commit)
	require.NoError(t, err)
	commit.Description = "changed after write"
	assert.Empty(t, stored.Description)

	got, err := s.GetCommit(ctx, id)
	require.NoError(t, err)
	assert.Same(t, stored, got)
}
