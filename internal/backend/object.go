package backend

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	gocid "github.com/ipfs/go-cid"

	"github.com/systemshift/splice/internal/dag"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repopath"
)

// DefaultConcurrency is the read fan-out used when none is configured.
const DefaultConcurrency = 8

// ObjectBackend stores objects in a dag.Blockstore. File contents and
// symlink targets use the raw codec; trees and commits are canonical
// DAG-JSON.
type ObjectBackend struct {
	blocks       dag.Blockstore
	concurrency  int
	emptyTreeID  TreeID
	rootCommitID CommitID
}

var _ Backend = (*ObjectBackend)(nil)

// NewObjectBackend opens a backend over blocks, writing the empty tree and
// the root commit if they are missing.
func NewObjectBackend(ctx context.Context, blocks dag.Blockstore, concurrency int) (*ObjectBackend, error) {
	if concurrency <= 0 {
		concurrency = DefaultConcurrency
	}
	b := &ObjectBackend{blocks: blocks, concurrency: concurrency}
	emptyTree, err := b.WriteTree(ctx, repopath.Root, EmptyTree())
	if err != nil {
		return nil, err
	}
	b.emptyTreeID = emptyTree
	root := &Commit{
		Parents:      []CommitID{},
		Predecessors: []CommitID{},
		RootTree:     merge.Resolved(emptyTree),
	}
	rootID, err := b.putJSON(ctx, "commit", root)
	if err != nil {
		return nil, err
	}
	b.rootCommitID = CommitID{rootID}
	return b, nil
}

func (b *ObjectBackend) Concurrency() int       { return b.concurrency }
func (b *ObjectBackend) RootCommitID() CommitID { return b.rootCommitID }
func (b *ObjectBackend) RootChangeID() ChangeID { return ChangeID{} }
func (b *ObjectBackend) EmptyTreeID() TreeID    { return b.emptyTreeID }

func (b *ObjectBackend) get(ctx context.Context, kind string, c gocid.Cid, codec uint64) ([]byte, error) {
	if !c.Defined() {
		return nil, &ObjectError{Op: "read", Kind: kind, Err: ErrObjectNotFound}
	}
	if c.Prefix().Codec != codec {
		return nil, &ObjectError{Op: "read", Kind: kind, ID: c.String(), Err: fmt.Errorf("unexpected codec %#x", c.Prefix().Codec)}
	}
	data, err := b.blocks.Get(ctx, c)
	if errors.Is(err, dag.ErrNotFound) {
		return nil, &ObjectError{Op: "read", Kind: kind, ID: c.String(), Err: ErrObjectNotFound}
	}
	if err != nil {
		return nil, &ObjectError{Op: "read", Kind: kind, ID: c.String(), Err: err}
	}
	return data, nil
}

func (b *ObjectBackend) putJSON(ctx context.Context, kind string, v interface{}) (gocid.Cid, error) {
	data, err := dag.CanonicalJSON(v)
	if err != nil {
		return gocid.Undef, &ObjectError{Op: "write", Kind: kind, Err: fmt.Errorf("serialize: %w", err)}
	}
	c, err := b.blocks.Put(ctx, dag.CodecDagJSON, data)
	if err != nil {
		return gocid.Undef, &ObjectError{Op: "write", Kind: kind, Err: err}
	}
	return c, nil
}

func (b *ObjectBackend) ReadFile(ctx context.Context, _ repopath.Path, id FileID) ([]byte, error) {
	return b.get(ctx, "file", id.Cid, dag.CodecRaw)
}

func (b *ObjectBackend) WriteFile(ctx context.Context, _ repopath.Path, contents []byte) (FileID, error) {
	c, err := b.blocks.Put(ctx, dag.CodecRaw, contents)
	if err != nil {
		return FileID{}, &ObjectError{Op: "write", Kind: "file", Err: err}
	}
	return FileID{c}, nil
}

func (b *ObjectBackend) ReadSymlink(ctx context.Context, _ repopath.Path, id SymlinkID) (string, error) {
	data, err := b.get(ctx, "symlink", id.Cid, dag.CodecRaw)
	if err != nil {
		return "", err
	}
	return string(data), nil
}

func (b *ObjectBackend) WriteSymlink(ctx context.Context, _ repopath.Path, target string) (SymlinkID, error) {
	c, err := b.blocks.Put(ctx, dag.CodecRaw, []byte(target))
	if err != nil {
		return SymlinkID{}, &ObjectError{Op: "write", Kind: "symlink", Err: err}
	}
	return SymlinkID{c}, nil
}

func (b *ObjectBackend) ReadTree(ctx context.Context, _ repopath.Path, id TreeID) (*Tree, error) {
	data, err := b.get(ctx, "tree", id.Cid, dag.CodecDagJSON)
	if err != nil {
		return nil, err
	}
	var tree Tree
	if err := json.Unmarshal(data, &tree); err != nil {
		return nil, &ObjectError{Op: "read", Kind: "tree", ID: id.String(), Err: fmt.Errorf("decode: %w", err)}
	}
	return &tree, nil
}

func (b *ObjectBackend) WriteTree(ctx context.Context, _ repopath.Path, tree *Tree) (TreeID, error) {
	c, err := b.putJSON(ctx, "tree", tree)
	if err != nil {
		return TreeID{}, err
	}
	return TreeID{c}, nil
}

func (b *ObjectBackend) ReadCommit(ctx context.Context, id CommitID) (*Commit, error) {
	data, err := b.get(ctx, "commit", id.Cid, dag.CodecDagJSON)
	if err != nil {
		return nil, err
	}
	var commit Commit
	if err := json.Unmarshal(data, &commit); err != nil {
		return nil, &ObjectError{Op: "read", Kind: "commit", ID: id.String(), Err: fmt.Errorf("decode: %w", err)}
	}
	if commit.Parents == nil {
		commit.Parents = []CommitID{}
	}
	if commit.Predecessors == nil {
		commit.Predecessors = []CommitID{}
	}
	return &commit, nil
}

func (b *ObjectBackend) WriteCommit(ctx context.Context, commit *Commit) (CommitID, error) {
	if len(commit.Parents) == 0 {
		return CommitID{}, &ObjectError{Op: "write", Kind: "commit", Err: ErrNoParents}
	}
	c, err := b.putJSON(ctx, "commit", commit)
	if err != nil {
		return CommitID{}, err
	}
	return CommitID{c}, nil
}
