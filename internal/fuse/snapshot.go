package fuse

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/files"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/repo"
	"github.com/systemshift/splice/internal/repopath"
	"github.com/systemshift/splice/internal/tree"
)

// ConflictSentinelPath is the placeholder exposed at the root of a
// snapshot holding a conflict with more than MaxMaterializedSides sides.
// A real file at this path takes precedence.
const ConflictSentinelPath = ".jj-do-not-resolve-this-conflict"

// MaxMaterializedSides is the largest conflict a checkout can represent
// without the placeholder.
const MaxMaterializedSides = 2

const sentinelContent = "The commit contains conflicts with more sides than a checkout can represent.\n"

// ErrNotExist is returned for paths absent from the snapshot.
var ErrNotExist = errors.New("path does not exist")

// Kind is the kind of a materialized path.
type Kind int

const (
	KindFile Kind = iota
	KindDir
	KindSymlink
)

// Node describes one materialized path.
type Node struct {
	Path       repopath.Path
	Kind       Kind
	Executable bool
	// Conflicted files hold conflict markers or a conflict description.
	Conflicted bool
	value      tree.Value
	sentinel   bool
}

// Name returns the last component of the path.
func (n Node) Name() string {
	_, name, _ := n.Path.Split()
	return name
}

// Snapshot is a read-only materialization of one commit's merged tree.
type Snapshot struct {
	commit     backend.CommitID
	store      storeReader
	tree       *tree.MergedTree
	sameChange merge.SameChange
	manySided  bool
	log        *zap.Logger
}

type storeReader interface {
	ReadFile(ctx context.Context, path repopath.Path, id backend.FileID) ([]byte, error)
	ReadSymlink(ctx context.Context, path repopath.Path, id backend.SymlinkID) (string, error)
}

// NewSnapshot loads c's tree and scans it for conflicts too large to
// materialize.
func NewSnapshot(ctx context.Context, c *repo.Commit, log *zap.Logger) (*Snapshot, error) {
	if log == nil {
		log = zap.NewNop()
	}
	t, err := c.Tree(ctx)
	if err != nil {
		return nil, fmt.Errorf("load tree of %s: %w", c.ID().Short(), err)
	}
	s := &Snapshot{
		commit:     c.ID(),
		store:      c.Store(),
		tree:       t,
		sameChange: c.Store().MergeOptions().SameChange,
		log:        log,
	}
	for entry, err := range t.Conflicts(ctx) {
		if err != nil {
			return nil, fmt.Errorf("scan conflicts: %w", err)
		}
		if merge.Simplify(entry.Value).NumSides() > MaxMaterializedSides {
			s.manySided = true
			log.Debug("conflict too large to materialize",
				zap.Stringer("path", entry.Path),
				zap.String("summary", tree.SummarizeConflict(entry.Value)))
			break
		}
	}
	return s, nil
}

// CommitID returns the materialized commit.
func (s *Snapshot) CommitID() backend.CommitID { return s.commit }

// HasManySidedConflict reports whether the placeholder is in use.
func (s *Snapshot) HasManySidedConflict() bool { return s.manySided }

func classify(path repopath.Path, v tree.Value) (Node, bool) {
	n := Node{Path: path, value: v}
	if r, ok := v.AsResolved(); ok {
		switch {
		case r.IsAbsent():
			return n, false
		case r.IsTree():
			n.Kind = KindDir
		case r.Kind == backend.KindSymlink:
			n.Kind = KindSymlink
		default:
			n.Kind = KindFile
			n.Executable = r.Executable
		}
		return n, true
	}
	if tree.IsTree(v) {
		n.Kind = KindDir
		return n, true
	}
	n.Kind = KindFile
	n.Conflicted = true
	return n, true
}

func (s *Snapshot) dir(ctx context.Context, dir repopath.Path) (*tree.MergedTree, error) {
	if dir.IsRoot() {
		return s.tree, nil
	}
	sub, err := s.tree.SubTreeRecursive(ctx, dir)
	if err != nil {
		return nil, err
	}
	if sub == nil {
		return nil, ErrNotExist
	}
	return sub, nil
}

// ReadDir lists dir in name order.
func (s *Snapshot) ReadDir(ctx context.Context, dir repopath.Path) ([]Node, error) {
	t, err := s.dir(ctx, dir)
	if err != nil {
		return nil, err
	}
	var out []Node
	for _, name := range t.Names() {
		if n, ok := classify(dir.Join(name), t.Value(name)); ok {
			out = append(out, n)
		}
	}
	if dir.IsRoot() && s.manySided && !containsName(out, ConflictSentinelPath) {
		out = append(out, s.sentinelNode())
	}
	return out, nil
}

func containsName(nodes []Node, name string) bool {
	for _, n := range nodes {
		if n.Name() == name {
			return true
		}
	}
	return false
}

func (s *Snapshot) sentinelNode() Node {
	return Node{Path: repopath.MustParse(ConflictSentinelPath), Kind: KindFile, sentinel: true}
}

// Stat describes path, or returns ErrNotExist.
func (s *Snapshot) Stat(ctx context.Context, path repopath.Path) (Node, error) {
	if path.IsRoot() {
		return Node{Path: path, Kind: KindDir}, nil
	}
	v, err := s.tree.PathValue(ctx, path)
	if err != nil {
		return Node{}, err
	}
	if n, ok := classify(path, v); ok {
		return n, nil
	}
	if s.manySided && path.String() == ConflictSentinelPath {
		return s.sentinelNode(), nil
	}
	return Node{}, ErrNotExist
}

// ReadFile returns the content of a file node. Conflicted files are
// rendered with conflict markers; conflicts involving directories or
// symlinks are rendered as a description of the sides.
func (s *Snapshot) ReadFile(ctx context.Context, n Node) ([]byte, error) {
	if n.sentinel {
		return []byte(sentinelContent), nil
	}
	if n.Kind != KindFile {
		return nil, fmt.Errorf("read %s: not a file", n.Path)
	}
	if r, ok := n.value.AsResolved(); ok {
		return s.store.ReadFile(ctx, n.Path, r.FileID())
	}
	contents, ok, err := s.conflictContents(ctx, n.Path, n.value)
	if err != nil {
		return nil, err
	}
	if !ok {
		return []byte(tree.DescribeConflict(n.value)), nil
	}
	return []byte(files.MaterializeMerge(contents, s.sameChange)), nil
}

// conflictContents reads every term of a file conflict. ok is false if a
// term is neither a file nor absent.
func (s *Snapshot) conflictContents(ctx context.Context, path repopath.Path, v tree.Value) (merge.Merge[string], bool, error) {
	for _, term := range v.Values() {
		if term.IsPresent() && !term.IsFile() {
			return merge.Merge[string]{}, false, nil
		}
	}
	contents, err := merge.TryMap(v, func(term backend.TreeValue) (string, error) {
		if term.IsAbsent() {
			return "", nil
		}
		data, err := s.store.ReadFile(ctx, path, term.FileID())
		return string(data), err
	})
	return contents, err == nil, err
}

// ReadLink returns the target of a symlink node.
func (s *Snapshot) ReadLink(ctx context.Context, n Node) (string, error) {
	r, ok := n.value.AsResolved()
	if !ok || n.Kind != KindSymlink {
		return "", fmt.Errorf("readlink %s: not a symlink", n.Path)
	}
	return s.store.ReadSymlink(ctx, n.Path, r.SymlinkID())
}
