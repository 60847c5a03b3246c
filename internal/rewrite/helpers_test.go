package rewrite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

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

func loadTree(t *testing.T, s *store.Store, files map[string]string) *tree.MergedTree {
	t.Helper()
	mt, err := tree.Load(context.Background(), s, writeTree(t, s, files))
	require.NoError(t, err)
	return mt
}

// createCommit writes a commit holding exactly files. No parents means
// the root commit.
func createCommit(t *testing.T, mut *repo.MutableRepo, parents []*repo.Commit, files map[string]string) *repo.Commit {
	t.Helper()
	ids := ids(parents...)
	if len(ids) == 0 {
		ids = []backend.CommitID{mut.Store().RootCommitID()}
	}
	c, err := mut.NewCommit(ids, writeTree(t, mut.Store(), files)).Write(context.Background())
	require.NoError(t, err)
	return c
}

func ids(commits ...*repo.Commit) []backend.CommitID {
	out := make([]backend.CommitID, len(commits))
	for i, c := range commits {
		out[i] = c.ID()
	}
	return out
}

// files lists the content of every path in tr.
func files(t *testing.T, s *store.Store, tr *tree.MergedTree) map[string]string {
	t.Helper()
	ctx := context.Background()
	out := make(map[string]string)
	for entry, err := range tr.Entries(ctx, repopath.Everything{}) {
		require.NoError(t, err)
		v, ok := entry.Value.AsResolved()
		require.True(t, ok, "%s is conflicted", entry.Path)
		data, err := s.ReadFile(ctx, entry.Path, v.FileID())
		require.NoError(t, err)
		out[entry.Path.String()] = string(data)
	}
	return out
}

func commitFiles(t *testing.T, c *repo.Commit) map[string]string {
	t.Helper()
	tr, err := c.Tree(context.Background())
	require.NoError(t, err)
	return files(t, c.Store(), tr)
}

func headCommits(t *testing.T, mut *repo.MutableRepo) []*repo.Commit {
	t.Helper()
	commits, err := mut.GetCommits(context.Background(), mut.View().Heads())
	require.NoError(t, err)
	return commits
}
