package repo

import (
	"maps"
	"slices"
	"strings"

	"github.com/systemshift/splice/internal/backend"
)

// View is the visible state of the repository: the head commits and the
// bookmarks.
type View struct {
	heads     map[backend.CommitID]struct{}
	bookmarks map[string]backend.CommitID
}

// NewView returns a view with the given heads and no bookmarks.
func NewView(heads ...backend.CommitID) *View {
	v := &View{
		heads:     make(map[backend.CommitID]struct{}, len(heads)),
		bookmarks: make(map[string]backend.CommitID),
	}
	for _, h := range heads {
		v.heads[h] = struct{}{}
	}
	return v
}

// Clone returns an independent copy of v.
func (v *View) Clone() *View {
	return &View{heads: maps.Clone(v.heads), bookmarks: maps.Clone(v.bookmarks)}
}

// Heads returns the head commit ids in a stable order.
func (v *View) Heads() []backend.CommitID {
	out := slices.Collect(maps.Keys(v.heads))
	slices.SortFunc(out, func(a, b backend.CommitID) int {
		return strings.Compare(a.KeyString(), b.KeyString())
	})
	return out
}

// IsHead reports whether id is a head.
func (v *View) IsHead(id backend.CommitID) bool {
	_, ok := v.heads[id]
	return ok
}

func (v *View) addHead(id backend.CommitID)    { v.heads[id] = struct{}{} }
func (v *View) removeHead(id backend.CommitID) { delete(v.heads, id) }

func (v *View) setHeads(ids []backend.CommitID) {
	v.heads = make(map[backend.CommitID]struct{}, len(ids))
	for _, id := range ids {
		v.heads[id] = struct{}{}
	}
}

// Bookmarks returns the bookmark names in sorted order.
func (v *View) Bookmarks() []string {
	return slices.Sorted(maps.Keys(v.bookmarks))
}

// Bookmark returns the target of a bookmark.
func (v *View) Bookmark(name string) (backend.CommitID, bool) {
	id, ok := v.bookmarks[name]
	return id, ok
}

func (v *View) setBookmark(name string, id backend.CommitID) { v.bookmarks[name] = id }
func (v *View) removeBookmark(name string)                   { delete(v.bookmarks, name) }

// viewObject is the stored form of a View.
type viewObject struct {
	V         int                         `json:"v"`
	Heads     []backend.CommitID          `json:"heads"`
	Bookmarks map[string]backend.CommitID `json:"bookmarks"`
}

func (v *View) object() *viewObject {
	return &viewObject{V: 1, Heads: v.Heads(), Bookmarks: maps.Clone(v.bookmarks)}
}

func viewFromObject(obj *viewObject) *View {
	v := NewView(obj.Heads...)
	for name, id := range obj.Bookmarks {
		v.bookmarks[name] = id
	}
	return v
}
