package repo

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/dag"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repopath"
	"github.com/systemshift/splice/internal/store"
	"github.com/systemshift/splice/internal/tree"
)

var testTime = time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC)

func testOptions() Options {
	return Options{
		UserName:  "Test User",
		UserEmail: "test.user@example.com",
		Now:       func() time.Time { return testTime },
	}
}

func newTestRepo(t *testing.T) *ReadonlyRepo {
	t.Helper()
	ctx := context.Background()
	blocks := dag.NewMemStore()
	b, err := backend.NewObjectBackend(ctx, blocks, 4)
	require.NoError(t, err)
	refs, err := dag.NewRefStore(filepath.Join(t.TempDir(), "refs"))
	require.NoError(t, err)
	r, err := New(ctx, store.New(b), NewOpLog(blocks, refs), testOptions())
	require.NoError(t, err)
	return r
}

// writeTree stores a resolved tree holding files (path -> content).
func writeTree(t *testing.T, s *store.Store, files map[string]string) merge.Merge[backend.TreeID] {
	t.Helper()
	ctx := context.Background()
	b := tree.NewTreeBuilder(s, s.EmptyTreeID())
	for path, content := range files {
		p := repopath.MustParse(path)
		id, err := s.WriteFile(ctx, p, []byte(content))
		require.NoError(t, err)
		b.Set(p, backend.FileValue(id, false, ""))
	}
	id, err := b.WriteTree(ctx)
	require.NoError(t, err)
	return merge.Resolved(id)
}

func createCommit(t *testing.T, mut *MutableRepo, parents []*Commit, files map[string]string) *Commit {
	t.Helper()
	ids := commitIDs(parents)
	if len(ids) == 0 {
		ids = []backend.CommitID{mut.Store().RootCommitID()}
	}
	c, err := mut.NewCommit(ids, writeTree(t, mut.Store(), files)).Write(context.Background())
	require.NoError(t, err)
	return c
}

// readFile returns the content of path in c, or "" if it is absent.
func readFile(t *testing.T, c *Commit, path string) string {
	t.Helper()
	ctx := context.Background()
	tr, err := c.Tree(ctx)
	require.NoError(t, err)
	v, err := tr.PathValue(ctx, repopath.MustParse(path))
	require.NoError(t, err)
	r, ok := v.AsResolved()
	require.True(t, ok, "%s is conflicted", path)
	if r.IsAbsent() {
		return ""
	}
	data, err := c.Store().ReadFile(ctx, repopath.MustParse(path), r.FileID())
	require.NoError(t, err)
	return string(data)
}
