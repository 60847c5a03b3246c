package tree

import (
	"context"
	"iter"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/dag"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repopath"
	"github.com/systemshift/splice/internal/store"
)

func newTestStore(t *testing.T, concurrency int, opts ...store.Option) *store.Store {
	t.Helper()
	b, err := backend.NewObjectBackend(context.Background(), dag.NewMemStore(), concurrency)
	require.NoError(t, err)
	return store.New(b, opts...)
}

func fileValue(t *testing.T, s *store.Store, path, content string) backend.TreeValue {
	t.Helper()
	id, err := s.WriteFile(context.Background(), repopath.MustParse(path), []byte(content))
	require.NoError(t, err)
	return backend.FileValue(id, false, "")
}

// createTree writes a resolved tree holding files (path -> content).
func createTree(t *testing.T, s *store.Store, files map[string]string) *MergedTree {
	t.Helper()
	ctx := context.Background()
	b := NewTreeBuilder(s, s.EmptyTreeID())
	for path, content := range files {
		b.Set(repopath.MustParse(path), fileValue(t, s, path, content))
	}
	id, err := b.WriteTree(ctx)
	require.NoError(t, err)
	tree, err := Load(ctx, s, merge.Resolved(id))
	require.NoError(t, err)
	return tree
}

func readContent(t *testing.T, tree *MergedTree, path string) string {
	t.Helper()
	ctx := context.Background()
	v, err := tree.PathValue(ctx, repopath.MustParse(path))
	require.NoError(t, err)
	r, ok := v.AsResolved()
	require.True(t, ok, "%s is conflicted", path)
	require.True(t, r.IsFile(), "%s is %s", path, r.Kind)
	data, err := tree.Store().ReadFile(ctx, repopath.MustParse(path), r.FileID())
	require.NoError(t, err)
	return string(data)
}

func collect[T any](seq iter.Seq[T]) []T {
	var out []T
	for v := range seq {
		out = append(out, v)
	}
	return out
}

func diffPaths(t *testing.T, entries []DiffEntry) []string {
	t.Helper()
	paths := make([]string, len(entries))
	for i, e := range entries {
		require.NoError(t, e.Err)
		paths[i] = e.Path.String()
	}
	return paths
}
