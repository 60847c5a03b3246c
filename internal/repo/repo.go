// Package repo holds the commit graph: commits, the index over them, the
// visible heads and bookmarks, and the transaction that rewrites them.
package repo

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	gocid "github.com/ipfs/go-cid"
	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/dag"
	"github.com/systemshift/splice/internal/store"
)

// DirName is the repository metadata directory under the workspace root.
const DirName = ".splice"

// ErrNotInitialized is returned when opening a directory without a
// repository.
var ErrNotInitialized = errors.New("repository not initialized")

// ErrAlreadyInitialized is returned by Init when a repository exists.
var ErrAlreadyInitialized = errors.New("repository already initialized")

// Options configures a repository.
type Options struct {
	Logger    *zap.Logger
	UserName  string
	UserEmail string
	// Now returns the time stamped on new commits and operations.
	Now func() time.Time
	// Store options, used when the repository opens its own store.
	Concurrency  int
	MergeOptions store.MergeOptions
}

func (o Options) withDefaults() Options {
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

// ReadonlyRepo is the repository as of one operation.
type ReadonlyRepo struct {
	store *store.Store
	oplog *OpLog
	opID  gocid.Cid
	view  *View
	index *Index
	opts  Options
}

// New creates a repository in an empty operation log. The first operation
// has the root commit as its only head.
func New(ctx context.Context, s *store.Store, oplog *OpLog, opts Options) (*ReadonlyRepo, error) {
	opts = opts.withDefaults()
	head, err := oplog.Head()
	if err != nil {
		return nil, err
	}
	if head.Defined() {
		return nil, ErrAlreadyInitialized
	}
	root, err := loadCommit(ctx, s, s.RootCommitID())
	if err != nil {
		return nil, fmt.Errorf("load root commit: %w", err)
	}
	index := NewIndex()
	if err := index.Add(root.ID(), root.data); err != nil {
		return nil, err
	}
	view := NewView(root.ID())
	opID, err := oplog.Publish(ctx, gocid.Undef, view, "initialize repo", opts.Now())
	if err != nil {
		return nil, err
	}
	return &ReadonlyRepo{store: s, oplog: oplog, opID: opID, view: view, index: index, opts: opts}, nil
}

// LoadAt reads the repository as of the head operation of oplog.
func LoadAt(ctx context.Context, s *store.Store, oplog *OpLog, opts Options) (*ReadonlyRepo, error) {
	opts = opts.withDefaults()
	head, err := oplog.Head()
	if err != nil {
		return nil, err
	}
	if !head.Defined() {
		return nil, ErrNotInitialized
	}
	op, err := oplog.GetOperation(ctx, head)
	if err != nil {
		return nil, err
	}
	view, err := oplog.GetView(ctx, op)
	if err != nil {
		return nil, err
	}
	index, err := buildIndex(ctx, s, view.Heads())
	if err != nil {
		return nil, err
	}
	opts.Logger.Debug("loaded repo",
		zap.Stringer("operation", head),
		zap.Int("heads", len(view.heads)),
		zap.Int("commits", index.Len()))
	return &ReadonlyRepo{store: s, oplog: oplog, opID: head, view: view, index: index, opts: opts}, nil
}

// buildIndex indexes every ancestor of heads, parents before children.
func buildIndex(ctx context.Context, s *store.Store, heads []backend.CommitID) (*Index, error) {
	index := NewIndex()
	type frame struct {
		id       backend.CommitID
		expanded bool
	}
	var stack []frame
	for _, h := range heads {
		stack = append(stack, frame{id: h})
	}
	for len(stack) > 0 {
		f := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		if index.Has(f.id) {
			continue
		}
		commit, err := s.GetCommit(ctx, f.id)
		if err != nil {
			return nil, fmt.Errorf("index commit %s: %w", f.id.Short(), err)
		}
		if f.expanded {
			if err := index.Add(f.id, commit); err != nil {
				return nil, err
			}
			continue
		}
		stack = append(stack, frame{id: f.id, expanded: true})
		for i := len(commit.Parents) - 1; i >= 0; i-- {
			if !index.Has(commit.Parents[i]) {
				stack = append(stack, frame{id: commit.Parents[i]})
			}
		}
	}
	return index, nil
}

// Init creates a repository under dir/.splice on disk.
func Init(ctx context.Context, dir string, opts Options) (*ReadonlyRepo, error) {
	s, oplog, err := openStorage(ctx, dir, opts)
	if err != nil {
		return nil, err
	}
	return New(ctx, s, oplog, opts)
}

// Open loads the repository under dir/.splice.
func Open(ctx context.Context, dir string, opts Options) (*ReadonlyRepo, error) {
	if _, err := os.Stat(filepath.Join(dir, DirName)); os.IsNotExist(err) {
		return nil, fmt.Errorf("open %s: %w", dir, ErrNotInitialized)
	}
	s, oplog, err := openStorage(ctx, dir, opts)
	if err != nil {
		return nil, err
	}
	return LoadAt(ctx, s, oplog, opts)
}

func openStorage(ctx context.Context, dir string, opts Options) (*store.Store, *OpLog, error) {
	opts = opts.withDefaults()
	spliceDir := filepath.Join(dir, DirName)
	for _, d := range []string{
		spliceDir,
		filepath.Join(spliceDir, "objects"),
		filepath.Join(spliceDir, "refs"),
	} {
		if err := os.MkdirAll(d, 0755); err != nil {
			return nil, nil, fmt.Errorf("create dir %s: %w", d, err)
		}
	}
	blocks, err := dag.NewDiskStore(filepath.Join(spliceDir, "objects"))
	if err != nil {
		return nil, nil, err
	}
	refs, err := dag.NewRefStore(filepath.Join(spliceDir, "refs"))
	if err != nil {
		return nil, nil, err
	}
	b, err := backend.NewObjectBackend(ctx, blocks, opts.Concurrency)
	if err != nil {
		return nil, nil, err
	}
	s := store.New(b, store.WithLogger(opts.Logger), store.WithMergeOptions(opts.MergeOptions))
	return s, NewOpLog(blocks, refs), nil
}

func (r *ReadonlyRepo) Store() *store.Store    { return r.store }
func (r *ReadonlyRepo) Index() *Index          { return r.index }
func (r *ReadonlyRepo) View() *View            { return r.view }
func (r *ReadonlyRepo) OpLog() *OpLog          { return r.oplog }
func (r *ReadonlyRepo) OperationID() gocid.Cid { return r.opID }

// GetCommit loads a commit.
func (r *ReadonlyRepo) GetCommit(ctx context.Context, id backend.CommitID) (*Commit, error) {
	return loadCommit(ctx, r.store, id)
}

// StartTransaction returns a MutableRepo based on r. Changes become
// visible only when the MutableRepo is committed.
func (r *ReadonlyRepo) StartTransaction() *MutableRepo {
	return &MutableRepo{
		base:          r,
		store:         r.store,
		index:         r.index.Clone(),
		view:          r.view.Clone(),
		parentMapping: make(map[backend.CommitID]rewriteEntry),
		log:           r.opts.Logger,
	}
}
