package fuse

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/dag"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repo"
	"github.com/systemshift/splice/internal/repopath"
	"github.com/systemshift/splice/internal/store"
	"github.com/systemshift/splice/internal/tree"
)

func newTestMutableRepo(t *testing.T) *repo.MutableRepo {
	t.Helper()
	ctx := context.Background()
	blocks := dag.NewMemStore()
	b, err := backend.NewObjectBackend(ctx, blocks, 4)
	require.NoError(t, err)
	refs, err := dag.NewRefStore(filepath.Join(t.TempDir(), "refs"))
	require.NoError(t, err)
	r, err := repo.New(ctx, store.New(b), repo.NewOpLog(blocks, refs), repo.Options{
		UserName:  "Test User",
		UserEmail: "test.user@example.com",
		Now:       func() time.Time { return time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC) },
	})
	require.NoError(t, err)
	return r.StartTransaction()
}

// writeTree stores a tree of files; a value starting with "->" is a
// symlink target.
func writeTree(t *testing.T, s *store.Store, files map[string]string) backend.TreeID {
	t.Helper()
	ctx := context.Background()
	b := tree.NewTreeBuilder(s, s.EmptyTreeID())
	for path, content := range files {
		p := repopath.MustParse(path)
		if target, ok := strings.CutPrefix(content, "->"); ok {
			id, err := s.WriteSymlink(ctx, p, target)
			require.NoError(t, err)
			b.Set(p, backend.SymlinkValue(id))
			continue
		}
		id, err := s.WriteFile(ctx, p, []byte(content))
		require.NoError(t, err)
		b.Set(p, backend.FileValue(id, false, ""))
	}
	id, err := b.WriteTree(ctx)
	require.NoError(t, err)
	return id
}

// snapshotOf commits the merge of the given trees and materializes it.
func snapshotOf(t *testing.T, terms ...map[string]string) *Snapshot {
	t.Helper()
	ctx := context.Background()
	mut := newTestMutableRepo(t)
	ids := make([]backend.TreeID, len(terms))
	for i, files := range terms {
		ids[i] = writeTree(t, mut.Store(), files)
	}
	c, err := mut.NewCommit([]backend.CommitID{mut.Store().RootCommitID()}, merge.New(ids)).Write(ctx)
	require.NoError(t, err)
	snap, err := NewSnapshot(ctx, c, nil)
	require.NoError(t, err)
	return snap
}

func names(nodes []Node) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.Name()
	}
	return out
}

func TestSnapshot_Resolved(t *testing.T) {
	ctx := context.Background()
	snap := snapshotOf(t, map[string]string{"a": "1", "dir/b": "2", "link": "->a"})
	assert.False(t, snap.HasManySidedConflict())

	root, err := snap.ReadDir(ctx, repopath.Root)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "dir", "link"}, names(root))
	assert.Equal(t, []Kind{KindFile, KindDir, KindSymlink}, []Kind{root[0].Kind, root[1].Kind, root[2].Kind})

	b, err := snap.Stat(ctx, repopath.MustParse("dir/b"))
	require.NoError(t, err)
	assert.Equal(t, KindFile, b.Kind)
	data, err := snap.ReadFile(ctx, b)
	require.NoError(t, err)
	assert.Equal(t, "2", string(data))

	link, err := snap.Stat(ctx, repopath.MustParse("link"))
	require.NoError(t, err)
	target, err := snap.ReadLink(ctx, link)
	require.NoError(t, err)
	assert.Equal(t, "a", target)

	_, err = snap.Stat(ctx, repopath.MustParse("missing"))
	assert.ErrorIs(t, err, ErrNotExist)
	_, err = snap.ReadDir(ctx, repopath.MustParse("a"))
	assert.ErrorIs(t, err, ErrNotExist)
}

func TestSnapshot_TwoSidedConflict(t *testing.T) {
	ctx := context.Background()
	snap := snapshotOf(t,
		map[string]string{"f": "left\n", "same": "s"},
		map[string]string{"f": "base\n", "same": "s"},
		map[string]string{"f": "right\n", "same": "s"},
	)
	assert.False(t, snap.HasManySidedConflict())

	root, err := snap.ReadDir(ctx, repopath.Root)
	require.NoError(t, err)
	assert.Equal(t, []string{"f", "same"}, names(root))

	f, err := snap.Stat(ctx, repopath.MustParse("f"))
	require.NoError(t, err)
	assert.True(t, f.Conflicted)
	data, err := snap.ReadFile(ctx, f)
	require.NoError(t, err)
	text := string(data)
	assert.Contains(t, text, "<<<<<<< conflict 1 of 1")
	assert.Contains(t, text, "left\n")
	assert.Contains(t, text, "right\n")
	assert.Contains(t, text, ">>>>>>> conflict 1 of 1 ends")

	same, err := snap.Stat(ctx, repopath.MustParse("same"))
	require.NoError(t, err)
	assert.False(t, same.Conflicted)
}

func TestSnapshot_ManySidedConflict(t *testing.T) {
	ctx := context.Background()
	base := map[string]string{"f": "base\n"}
	snap := snapshotOf(t,
		map[string]string{"f": "one\n"}, base,
		map[string]string{"f": "two\n"}, base,
		map[string]string{"f": "three\n"},
	)
	require.True(t, snap.HasManySidedConflict())

	root, err := snap.ReadDir(ctx, repopath.Root)
	require.NoError(t, err)
	assert.Equal(t, []string{"f", ConflictSentinelPath}, names(root))

	sentinel, err := snap.Stat(ctx, repopath.MustParse(ConflictSentinelPath))
	require.NoError(t, err)
	data, err := snap.ReadFile(ctx, sentinel)
	require.NoError(t, err)
	assert.Equal(t, sentinelContent, string(data))

	// The conflict itself is still materialized in full.
	f, err := snap.Stat(ctx, repopath.MustParse("f"))
	require.NoError(t, err)
	data, err = snap.ReadFile(ctx, f)
	require.NoError(t, err)
	for _, side := range []string{"one", "two", "three"} {
		assert.Contains(t, string(data), side)
	}
}

func TestSnapshot_RealFileAtSentinelPath(t *testing.T) {
	ctx := context.Background()
	real := func(f string) map[string]string {
		return map[string]string{"f": f, ConflictSentinelPath: "real\n"}
	}
	snap := snapshotOf(t, real("one\n"), real("base\n"), real("two\n"), real("base\n"), real("three\n"))
	require.True(t, snap.HasManySidedConflict())

	root, err := snap.ReadDir(ctx, repopath.Root)
	require.NoError(t, err)
	assert.ElementsMatch(t, []string{"f", ConflictSentinelPath}, names(root))

	n, err := snap.Stat(ctx, repopath.MustParse(ConflictSentinelPath))
	require.NoError(t, err)
	data, err := snap.ReadFile(ctx, n)
	require.NoError(t, err)
	assert.Equal(t, "real\n", string(data))
}

func TestSnapshot_FileDirectoryConflict(t *testing.T) {
	ctx := context.Background()
	snap := snapshotOf(t,
		map[string]string{"x": "file"},
		map[string]string{},
		map[string]string{"x/inner": "nested"},
	)
	x, err := snap.Stat(ctx, repopath.MustParse("x"))
	require.NoError(t, err)
	assert.True(t, x.Conflicted)
	data, err := snap.ReadFile(ctx, x)
	require.NoError(t, err)
	assert.NotEmpty(t, data)
	assert.NotContains(t, string(data), "<<<<<<<")
}
