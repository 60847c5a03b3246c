package rewrite

import (
	orderedset "github.com/emirpasic/gods/sets/linkedhashset"

	"github.com/systemshift/splice/internal/backend"
)

// idSet is an insertion-ordered set of commit ids.
type idSet struct {
	set *orderedset.Set
}

func newIDSet(ids ...backend.CommitID) idSet {
	s := idSet{set: orderedset.New()}
	s.Add(ids...)
	return s
}

func (s idSet) Add(ids ...backend.CommitID) {
	for _, id := range ids {
		s.set.Add(id)
	}
}

func (s idSet) Remove(id backend.CommitID)        { s.set.Remove(id) }
func (s idSet) Contains(id backend.CommitID) bool { return s.set.Contains(id) }
func (s idSet) Len() int                          { return s.set.Size() }

func (s idSet) Values() []backend.CommitID {
	values := s.set.Values()
	out := make([]backend.CommitID, len(values))
	for i, v := range values {
		out[i] = v.(backend.CommitID)
	}
	return out
}
