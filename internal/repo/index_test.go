package repo

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/systemshift/splice/internal/backend"
)

func TestIndex_Queries(t *testing.T) {
	mut := newTestRepo(t).StartTransaction()
	// root -> a -> b -> d, a -> c -> d, root -> e
	a := createCommit(t, mut, nil, map[string]string{"a": "1"})
	b := createCommit(t, mut, []*Commit{a}, map[string]string{"b": "1"})
	c := createCommit(t, mut, []*Commit{a}, map[string]string{"c": "1"})
	d := createCommit(t, mut, []*Commit{b, c}, map[string]string{"d": "1"})
	e := createCommit(t, mut, nil, map[string]string{"e": "1"})
	idx := mut.Index()
	ids := func(cs ...*Commit) []backend.CommitID { return commitIDs(cs) }

	assert.ElementsMatch(t, ids(d, e), mut.View().Heads())

	for _, tc := range []struct {
		anc, desc *Commit
		want      bool
	}{
		{a, d, true},
		{d, d, true},
		{b, c, false},
		{d, a, false},
		{e, d, false},
	} {
		got, err := idx.IsAncestor(tc.anc.ID(), tc.desc.ID())
		require.NoError(t, err)
		assert.Equal(t, tc.want, got, "%s ancestor of %s", tc.anc, tc.desc)
	}

	heads, err := idx.Heads(ids(a, b, c))
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(b, c), heads)

	common, err := idx.CommonAncestors(ids(b), ids(c))
	require.NoError(t, err)
	assert.Equal(t, ids(a), common)

	desc, err := idx.Descendants(ids(b), mut.View().Heads())
	require.NoError(t, err)
	assert.Equal(t, ids(d, b), desc)

	connected, err := idx.Connected(ids(a, d))
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(a, b, c, d), connected)
	assert.Equal(t, d.ID(), connected[0])
	assert.Equal(t, a.ID(), connected[len(connected)-1])

	rng, err := idx.Range(ids(b), ids(d))
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(c, d), rng)

	children, err := idx.Children(ids(a), mut.View().Heads())
	require.NoError(t, err)
	assert.ElementsMatch(t, ids(b, c), children)

	sorted, err := idx.SortTopological(ids(d, a, c))
	require.NoError(t, err)
	assert.Equal(t, ids(a, c, d), sorted)

	byChange, err := idx.ResolveChangeID(c.ChangeID(), mut.View().Heads())
	require.NoError(t, err)
	assert.Equal(t, ids(c), byChange)
}

func TestIndex_UnknownCommit(t *testing.T) {
	mut := newTestRepo(t).StartTransaction()
	a := createCommit(t, mut, nil, map[string]string{"a": "1"})

	other := newTestRepo(t).StartTransaction()
	stranger := createCommit(t, other, nil, map[string]string{"x": "1"})

	_, err := mut.Index().IsAncestor(a.ID(), stranger.ID())
	require.Error(t, err)
	var ie *IndexError
	require.True(t, errors.As(err, &ie))
	assert.Equal(t, stranger.ID(), ie.ID)
	assert.ErrorIs(t, err, ErrCommitNotIndexed)
}

func TestIndex_CloneIsIndependent(t *testing.T) {
	r := newTestRepo(t)
	mut := r.StartTransaction()
	createCommit(t, mut, nil, map[string]string{"a": "1"})
	assert.Equal(t, 1, r.Index().Len())
	assert.Equal(t, 2, mut.Index().Len())
}
