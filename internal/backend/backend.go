// Package backend defines the object model and the content-addressed
// storage interface that the rest of the repository is built on.
package backend

import (
	"context"
	"errors"
	"fmt"

	"github.com/systemshift/splice/internal/repopath"
)

// ErrObjectNotFound is wrapped by errors for missing objects.
var ErrObjectNotFound = errors.New("object not found")

// ErrNoParents is returned when writing a non-root commit without parents.
var ErrNoParents = errors.New("commit has no parents")

// ObjectError describes a failed read or write of one object.
type ObjectError struct {
	Op   string // "read" or "write"
	Kind string // "file", "symlink", "tree", "commit"
	ID   string
	Err  error
}

func (e *ObjectError) Error() string {
	if e.ID == "" {
		return fmt.Sprintf("%s %s: %v", e.Op, e.Kind, e.Err)
	}
	return fmt.Sprintf("%s %s %s: %v", e.Op, e.Kind, e.ID, e.Err)
}

func (e *ObjectError) Unwrap() error { return e.Err }

// Backend stores files, symlinks, trees and commits by content hash.
// Writes are idempotent: writing the same content twice returns the same
// id.
type Backend interface {
	// Concurrency is the number of reads worth issuing in parallel.
	Concurrency() int
	RootCommitID() CommitID
	RootChangeID() ChangeID
	EmptyTreeID() TreeID

	ReadFile(ctx context.Context, path repopath.Path, id FileID) ([]byte, error)
	WriteFile(ctx context.Context, path repopath.Path, contents []byte) (FileID, error)
	ReadSymlink(ctx context.Context, path repopath.Path, id SymlinkID) (string, error)
	WriteSymlink(ctx context.Context, path repopath.Path, target string) (SymlinkID, error)
	ReadTree(ctx context.Context, dir repopath.Path, id TreeID) (*Tree, error)
	WriteTree(ctx context.Context, dir repopath.Path, tree *Tree) (TreeID, error)
	ReadCommit(ctx context.Context, id CommitID) (*Commit, error)
	WriteCommit(ctx context.Context, commit *Commit) (CommitID, error)
}
