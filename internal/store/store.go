// Package store wraps a backend with object caches and the repository-wide
// merge options.
package store

import (
	"context"

	cmap "github.com/orcaman/concurrent-map"
	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repopath"
)

// MergeOptions controls content-level conflict resolution.
type MergeOptions struct {
	SameChange merge.SameChange
}

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger. The default discards everything.
func WithLogger(log *zap.Logger) Option {
	return func(s *Store) { s.log = log }
}

// WithMergeOptions sets the merge options.
func WithMergeOptions(opts MergeOptions) Option {
	return func(s *Store) { s.mergeOpts = opts }
}

// Store is safe for concurrent use. Trees and commits are immutable, so
// cached values are shared between callers and must not be modified.
type Store struct {
	backend   backend.Backend
	log       *zap.Logger
	mergeOpts MergeOptions
	trees     cmap.ConcurrentMap
	commits   cmap.ConcurrentMap
}

// New wraps b.
func New(b backend.Backend, opts ...Option) *Store {
	s := &Store{
		backend: b,
		log:     zap.NewNop(),
		trees:   cmap.New(),
		commits: cmap.New(),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *Store) Backend() backend.Backend   { return s.backend }
func (s *Store) Logger() *zap.Logger        { return s.log }
func (s *Store) MergeOptions() MergeOptions { return s.mergeOpts }

// Concurrency is the number of backend reads worth issuing in parallel.
func (s *Store) Concurrency() int {
	if n := s.backend.Concurrency(); n > 0 {
		return n
	}
	return 1
}

func (s *Store) RootCommitID() backend.CommitID { return s.backend.RootCommitID() }
func (s *Store) RootChangeID() backend.ChangeID { return s.backend.RootChangeID() }
func (s *Store) EmptyTreeID() backend.TreeID    { return s.backend.EmptyTreeID() }

// GetTree reads a tree, consulting the cache first.
func (s *Store) GetTree(ctx context.Context, dir repopath.Path, id backend.TreeID) (*backend.Tree, error) {
	key := id.KeyString()
	if v, ok := s.trees.Get(key); ok {
		return v.(*backend.Tree), nil
	}
	tree, err := s.backend.ReadTree(ctx, dir, id)
	if err != nil {
		return nil, err
	}
	s.trees.Set(key, tree)
	return tree, nil
}

// WriteTree writes a tree and caches it under the returned id.
func (s *Store) WriteTree(ctx context.Context, dir repopath.Path, tree *backend.Tree) (backend.TreeID, error) {
	id, err := s.backend.WriteTree(ctx, dir, tree)
	if err != nil {
		return backend.TreeID{}, err
	}
	s.trees.Set(id.KeyString(), tree)
	return id, nil
}

func (s *Store) ReadFile(ctx context.Context, path repopath.Path, id backend.FileID) ([]byte, error) {
	return s.backend.ReadFile(ctx, path, id)
}

func (s *Store) WriteFile(ctx context.Context, path repopath.Path, contents []byte) (backend.FileID, error) {
	return s.backend.WriteFile(ctx, path, contents)
}

func (s *Store) ReadSymlink(ctx context.Context, path repopath.Path, id backend.SymlinkID) (string, error) {
	return s.backend.ReadSymlink(ctx, path, id)
}

func (s *Store) WriteSymlink(ctx context.Context, path repopath.Path, target string) (backend.SymlinkID, error) {
	return s.backend.WriteSymlink(ctx, path, target)
}

// GetCommit reads a commit, consulting the cache first.
func (s *Store) GetCommit(ctx context.Context, id backend.CommitID) (*backend.Commit, error) {
	key := id.KeyString()
	if v, ok := s.commits.Get(key); ok {
		return v.(*backend.Commit), nil
	}
	commit, err := s.backend.ReadCommit(ctx, id)
	if err != nil {
		return nil, err
	}
	s.commits.Set(key, commit)
	return commit, nil
}

// WriteCommit writes a commit. The stored value is a copy of commit.
func (s *Store) WriteCommit(ctx context.Context, commit *backend.Commit) (backend.CommitID, *backend.Commit, error) {
	stored := commit.Clone()
	id, err := s.backend.WriteCommit(ctx, stored)
	if err != nil {
		return backend.CommitID{}, nil, err
	}
	s.commits.Set(id.KeyString(), stored)
	s.log.Debug("wrote commit",
		zap.Stringer("commit", id),
		zap.Stringer("change", stored.ChangeID),
		zap.Int("parents", len(stored.Parents)))
	return id, stored, nil
}
