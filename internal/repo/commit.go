package repo

import (
	"context"
	"fmt"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
	"github.com/systemshift/splice/internal/store"
	"github.com/systemshift/splice/internal/tree"
)

// Repo is the read side shared by ReadonlyRepo and MutableRepo.
type Repo interface {
	Store() *store.Store
	Index() *Index
	View() *View
	GetCommit(ctx context.Context, id backend.CommitID) (*Commit, error)
}

// Commit is a stored commit together with its id.
type Commit struct {
	store *store.Store
	id    backend.CommitID
	data  *backend.Commit
}

func newCommit(s *store.Store, id backend.CommitID, data *backend.Commit) *Commit {
	return &Commit{store: s, id: id, data: data}
}

func loadCommit(ctx context.Context, s *store.Store, id backend.CommitID) (*Commit, error) {
	data, err := s.GetCommit(ctx, id)
	if err != nil {
		return nil, err
	}
	return newCommit(s, id, data), nil
}

func (c *Commit) ID() backend.CommitID               { return c.id }
func (c *Commit) Store() *store.Store                { return c.store }
func (c *Commit) ChangeID() backend.ChangeID         { return c.data.ChangeID }
func (c *Commit) Description() string                { return c.data.Description }
func (c *Commit) Author() backend.Signature          { return c.data.Author }
func (c *Commit) Committer() backend.Signature       { return c.data.Committer }
func (c *Commit) ParentIDs() []backend.CommitID      { return c.data.Parents }
func (c *Commit) PredecessorIDs() []backend.CommitID { return c.data.Predecessors }
func (c *Commit) TreeIDs() merge.Merge[backend.TreeID] {
	return c.data.RootTree
}

// Data returns a copy of the stored commit.
func (c *Commit) Data() *backend.Commit { return c.data.Clone() }

// IsRoot reports whether c is the root commit.
func (c *Commit) IsRoot() bool { return c.id == c.store.RootCommitID() }

// HasConflict reports whether the commit's tree is conflicted.
func (c *Commit) HasConflict() bool { return !c.data.RootTree.IsResolved() }

// Tree loads the commit's tree.
func (c *Commit) Tree(ctx context.Context) (*tree.MergedTree, error) {
	return tree.Load(ctx, c.store, c.data.RootTree)
}

// Parents loads the parent commits.
func (c *Commit) Parents(ctx context.Context) ([]*Commit, error) {
	out := make([]*Commit, 0, len(c.data.Parents))
	for _, id := range c.data.Parents {
		p, err := loadCommit(ctx, c.store, id)
		if err != nil {
			return nil, fmt.Errorf("load parent of %s: %w", c.id.Short(), err)
		}
		out = append(out, p)
	}
	return out, nil
}

// ParentTree returns the merge of the parents' trees. The root commit's
// parent tree is the empty tree.
func (c *Commit) ParentTree(ctx context.Context, r Repo) (*tree.MergedTree, error) {
	parents, err := c.Parents(ctx)
	if err != nil {
		return nil, err
	}
	if len(parents) == 0 {
		return tree.Empty(c.store), nil
	}
	return MergeCommitTrees(ctx, r, parents)
}

// IsEmpty reports whether the commit changes nothing relative to its
// parents.
func (c *Commit) IsEmpty(ctx context.Context, r Repo) (bool, error) {
	parentTree, err := c.ParentTree(ctx, r)
	if err != nil {
		return false, err
	}
	return merge.Equal(parentTree.ID(), c.data.RootTree), nil
}

func (c *Commit) String() string {
	return fmt.Sprintf("%s %s", c.id.Short(), c.data.ChangeID.Short())
}

func commitIDs(commits []*Commit) []backend.CommitID {
	out := make([]backend.CommitID, len(commits))
	for i, c := range commits {
		out[i] = c.id
	}
	return out
}
