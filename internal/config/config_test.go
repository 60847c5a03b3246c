package config

import (
	"os"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repo"
)

func TestLoad_Defaults(t *testing.T) {
	s, err := Load(t.TempDir())
	require.NoError(t, err)
	assert.Equal(t, Default(), *s)

	opts, err := s.RebaseOptions()
	require.NoError(t, err)
	assert.Equal(t, repo.RebaseOptions{Empty: repo.EmptyKeep}, opts)

	ro, err := s.RepoOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, merge.SameChangeAccept, ro.MergeOptions.SameChange)
	assert.Equal(t, backend.DefaultConcurrency, ro.Concurrency)
	assert.NotNil(t, ro.Now)
}

func TestWriteDefault_RoundTrip(t *testing.T) {
	dir := t.TempDir()
	want := Default()
	want.User = UserSettings{Name: "Test User", Email: "test.user@example.com", Timestamp: "2024-01-02T03:04:05Z"}
	want.Rebase.Empty = repo.EmptyAbandonNewlyEmpty.String()
	want.Rebase.SimplifyAncestorMerge = true
	require.NoError(t, WriteDefault(dir, want))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, want, *got)

	ro, err := got.RepoOptions(nil)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 1, 2, 3, 4, 5, 0, time.UTC), ro.Now().UTC())
	assert.Equal(t, "Test User", ro.UserName)

	opts, err := got.RebaseOptions()
	require.NoError(t, err)
	assert.Equal(t, repo.EmptyAbandonNewlyEmpty, opts.Empty)
	assert.True(t, opts.SimplifyAncestorMerge)
}

func TestWriteDefault_KeepsExisting(t *testing.T) {
	dir := t.TempDir()
	first := Default()
	first.User.Name = "first"
	require.NoError(t, WriteDefault(dir, first))
	second := Default()
	second.User.Name = "second"
	require.NoError(t, WriteDefault(dir, second))

	got, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "first", got.User.Name)
}

func TestLoad_EnvOverride(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, WriteDefault(dir, Default()))
	t.Setenv("SPLICE_REBASE_EMPTY", "abandon-all-empty")
	t.Setenv("SPLICE_MERGE_SAME_CHANGE", "keep")

	s, err := Load(dir)
	require.NoError(t, err)
	assert.Equal(t, "abandon-all-empty", s.Rebase.Empty)
	mo, err := s.MergeOptions()
	require.NoError(t, err)
	assert.Equal(t, merge.SameChangeKeep, mo.SameChange)
}

func TestLoad_Invalid(t *testing.T) {
	for _, tc := range []struct {
		name    string
		content string
	}{
		{"empty behavior", "rebase:\n  empty: sometimes\n"},
		{"same change", "merge:\n  same-change: maybe\n"},
		{"timestamp", "user:\n  timestamp: yesterday\n"},
		{"concurrency", "store:\n  concurrency: -1\n"},
		{"syntax", "rebase: [\n"},
	} {
		t.Run(tc.name, func(t *testing.T) {
			dir := t.TempDir()
			require.NoError(t, os.MkdirAll(dir+"/"+repo.DirName, 0755))
			require.NoError(t, os.WriteFile(Path(dir), []byte(tc.content), 0644))
			_, err := Load(dir)
			assert.Error(t, err)
		})
	}
}
