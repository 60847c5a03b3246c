package backend

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/splice/internal/dag"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repopath"
)

func newBackend(t *testing.T) *ObjectBackend {
	t.Helper()
	b, err := NewObjectBackend(context.Background(), dag.NewMemStore(), 4)
	require.NoError(t, err)
	return b
}

func TestObjectBackend_RootObjects(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)

	tree, err := b.ReadTree(ctx, repopath.Root, b.EmptyTreeID())
	require.NoError(t, err)
	assert.True(t, tree.IsEmpty())

	root, err := b.ReadCommit(ctx, b.RootCommitID())
	require.NoError(t, err)
	assert.Empty(t, root.Parents)
	assert.True(t, root.ChangeID.IsZero())
	assert.Equal(t, merge.Resolved(b.EmptyTreeID()), root.RootTree)

	// Root ids do not depend on the store instance.
	other := newBackend(t)
	assert.Equal(t, b.RootCommitID(), other.RootCommitID())
}

func TestObjectBackend_TreeRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	fileID, err := b.WriteFile(ctx, "a", []byte("contents"))
	require.NoError(t, err)
	linkID, err := b.WriteSymlink(ctx, "l", "target")
	require.NoError(t, err)

	tree := NewTree([]TreeEntry{
		{Name: "z", Value: TreeRef(b.EmptyTreeID())},
		{Name: "a", Value: FileValue(fileID, true, "copy-a")},
		{Name: "l", Value: SymlinkValue(linkID)},
		{Name: "gone", Value: Absent},
	})
	assert.Equal(t, []string{"a", "l", "z"}, tree.Names())

	id, err := b.WriteTree(ctx, repopath.Root, tree)
	require.NoError(t, err)
	again, err := b.WriteTree(ctx, repopath.Root, NewTree(tree.Entries()))
	require.NoError(t, err)
	assert.Equal(t, id, again)

	read, err := b.ReadTree(ctx, repopath.Root, id)
	require.NoError(t, err)
	assert.Equal(t, tree.Entries(), read.Entries())
	assert.Equal(t, FileValue(fileID, true, "copy-a"), read.Value("a"))
	assert.Equal(t, Absent, read.Value("missing"))

	target, err := b.ReadSymlink(ctx, "l", linkID)
	require.NoError(t, err)
	assert.Equal(t, "target", target)
}

func TestObjectBackend_CommitRoundTrip(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	sig := Signature{Name: "Test", Email: "test@example.com", Timestamp: Timestamp{Millis: 1700000000000, TZMinutes: 60}}
	commit := &Commit{
		Parents:      []CommitID{b.RootCommitID()},
		Predecessors: []CommitID{},
		RootTree:     merge.New([]TreeID{b.EmptyTreeID(), b.EmptyTreeID(), b.EmptyTreeID()}),
		ChangeID:     NewChangeID(),
		Description:  "msg\n",
		Author:       sig,
		Committer:    sig,
	}
	id, err := b.WriteCommit(ctx, commit)
	require.NoError(t, err)
	read, err := b.ReadCommit(ctx, id)
	require.NoError(t, err)
	assert.Equal(t, commit, read)

	_, err = b.WriteCommit(ctx, &Commit{RootTree: merge.Resolved(b.EmptyTreeID())})
	assert.ErrorIs(t, err, ErrNoParents)
}

func TestObjectBackend_NotFound(t *testing.T) {
	ctx := context.Background()
	b := newBackend(t)
	missing, err := dag.ComputeCID(dag.CodecDagJSON, []byte(`{"entries":[]} `))
	require.NoError(t, err)

	_, err = b.ReadTree(ctx, repopath.Root, TreeID{missing})
	require.ErrorIs(t, err, ErrObjectNotFound)
	var objErr *ObjectError
	require.True(t, errors.As(err, &objErr))
	assert.Equal(t, "read", objErr.Op)
	assert.Equal(t, "tree", objErr.Kind)

	// A file id is never readable as a commit.
	fileID, err := b.WriteFile(ctx, "f", []byte("x"))
	require.NoError(t, err)
	_, err = b.ReadCommit(ctx, CommitID{fileID.Cid})
	assert.Error(t, err)
}

func TestChangeID_RoundTrip(t *testing.T) {
	id := NewChangeID()
	parsed, err := ParseChangeID(id.String())
	require.NoError(t, err)
	assert.Equal(t, id, parsed)
	assert.Equal(t, "zzzzzzzzzzzzzzzzzzzzzzzzzzzzzzzz", ChangeID{}.String())
	_, err = ParseChangeID("abc")
	assert.Error(t, err)
}
