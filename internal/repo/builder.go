package repo

import (
	"context"
	"fmt"
	"slices"

	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/merge"
)

// CommitBuilder prepares a new or rewritten commit. Nothing is stored
// until Write.
type CommitBuilder struct {
	mut           *MutableRepo
	commit        *backend.Commit
	rewriteSource *Commit
}

func newCommitBuilder(mut *MutableRepo, parents []backend.CommitID, treeID merge.Merge[backend.TreeID]) *CommitBuilder {
	sig := mut.signature()
	return &CommitBuilder{
		mut: mut,
		commit: &backend.Commit{
			Parents:      slices.Clone(parents),
			Predecessors: []backend.CommitID{},
			RootTree:     treeID,
			ChangeID:     backend.NewChangeID(),
			Author:       sig,
			Committer:    sig,
		},
	}
}

func rewriteCommitBuilder(mut *MutableRepo, predecessor *Commit) *CommitBuilder {
	commit := predecessor.Data()
	commit.Predecessors = []backend.CommitID{predecessor.ID()}
	commit.Committer = mut.signature()
	return &CommitBuilder{mut: mut, commit: commit, rewriteSource: predecessor}
}

func (b *CommitBuilder) Parents() []backend.CommitID       { return b.commit.Parents }
func (b *CommitBuilder) Tree() merge.Merge[backend.TreeID] { return b.commit.RootTree }
func (b *CommitBuilder) ChangeID() backend.ChangeID        { return b.commit.ChangeID }
func (b *CommitBuilder) Description() string               { return b.commit.Description }
func (b *CommitBuilder) Predecessors() []backend.CommitID  { return b.commit.Predecessors }
func (b *CommitBuilder) Author() backend.Signature         { return b.commit.Author }

func (b *CommitBuilder) SetParents(parents []backend.CommitID) *CommitBuilder {
	b.commit.Parents = slices.Clone(parents)
	return b
}

func (b *CommitBuilder) SetTree(id merge.Merge[backend.TreeID]) *CommitBuilder {
	b.commit.RootTree = id
	return b
}

func (b *CommitBuilder) SetDescription(description string) *CommitBuilder {
	b.commit.Description = description
	return b
}

func (b *CommitBuilder) SetPredecessors(ids []backend.CommitID) *CommitBuilder {
	b.commit.Predecessors = slices.Clone(ids)
	return b
}

func (b *CommitBuilder) SetAuthor(sig backend.Signature) *CommitBuilder {
	b.commit.Author = sig
	return b
}

func (b *CommitBuilder) SetChangeID(id backend.ChangeID) *CommitBuilder {
	b.commit.ChangeID = id
	return b
}

// GenerateNewChangeID gives the commit a fresh change id, so it is no
// longer the same change as the commit it was built from.
func (b *CommitBuilder) GenerateNewChangeID() *CommitBuilder {
	b.commit.ChangeID = backend.NewChangeID()
	return b
}

// ClearRewriteSource drops the link to the rewritten commit and its
// predecessor record.
func (b *CommitBuilder) ClearRewriteSource() *CommitBuilder {
	b.rewriteSource = nil
	b.commit.Predecessors = []backend.CommitID{}
	return b
}

// Write stores the commit, indexes it and makes it a head. A rewrite that
// kept its change id is recorded in the repo's rewrite mapping.
func (b *CommitBuilder) Write(ctx context.Context) (*Commit, error) {
	if len(b.commit.Parents) == 0 {
		return nil, fmt.Errorf("write commit: %w", backend.ErrNoParents)
	}
	commit, err := b.mut.writeCommit(ctx, b.commit)
	if err != nil {
		return nil, err
	}
	if src := b.rewriteSource; src != nil && src.ChangeID() == commit.ChangeID() {
		b.mut.SetRewrittenCommit(src.ID(), commit.ID())
		b.mut.log.Debug("rewrote commit",
			zap.Stringer("old", src.ID()),
			zap.Stringer("new", commit.ID()))
	}
	return commit, nil
}
