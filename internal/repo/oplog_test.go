package repo

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRepo_PersistsOperations(t *testing.T) {
	ctx := context.Background()
	dir := t.TempDir()

	r, err := Init(ctx, dir, testOptions())
	require.NoError(t, err)
	_, err = Init(ctx, dir, testOptions())
	assert.ErrorIs(t, err, ErrAlreadyInitialized)

	mut := r.StartTransaction()
	a := createCommit(t, mut, nil, map[string]string{"a": "1"})
	mut.SetBookmark("main", a.ID())
	r2, err := mut.Commit(ctx, "add a")
	require.NoError(t, err)

	reopened, err := Open(ctx, dir, testOptions())
	require.NoError(t, err)
	assert.Equal(t, r2.OperationID(), reopened.OperationID())
	assert.Equal(t, r2.View().Heads(), reopened.View().Heads())
	main, ok := reopened.View().Bookmark("main")
	require.True(t, ok)
	assert.Equal(t, a.ID(), main)
	assert.True(t, reopened.Index().Has(a.ID()))

	loaded, err := reopened.GetCommit(ctx, a.ID())
	require.NoError(t, err)
	assert.Equal(t, "1", readFile(t, loaded, "a"))
	assert.Equal(t, "Test User", loaded.Author().Name)

	ops, err := reopened.OpLog().Log(ctx, 10)
	require.NoError(t, err)
	require.Len(t, ops, 2)
	assert.Equal(t, "add a", ops[0].Description)
	assert.Equal(t, "initialize repo", ops[1].Description)
	assert.True(t, testTime.Equal(ops[0].Timestamp))
}

func TestRepo_ConcurrentTransactions(t *testing.T) {
	ctx := context.Background()
	r := newTestRepo(t)

	tx1 := r.StartTransaction()
	tx2 := r.StartTransaction()
	createCommit(t, tx1, nil, map[string]string{"a": "1"})
	createCommit(t, tx2, nil, map[string]string{"b": "1"})

	_, err := tx1.Commit(ctx, "first")
	require.NoError(t, err)
	_, err = tx2.Commit(ctx, "second")
	assert.True(t, errors.Is(err, ErrConcurrentOperation))
}

func TestRepo_DiscardedTransaction(t *testing.T) {
	r := newTestRepo(t)
	mut := r.StartTransaction()
	a := createCommit(t, mut, nil, map[string]string{"a": "1"})
	mut.SetBookmark("main", a.ID())

	assert.Empty(t, r.View().Bookmarks())
	assert.Equal(t, 1, r.Index().Len())
	assert.False(t, r.View().IsHead(a.ID()))
}

func TestOpen_NotInitialized(t *testing.T) {
	_, err := Open(context.Background(), t.TempDir(), testOptions())
	assert.ErrorIs(t, err, ErrNotInitialized)
}
