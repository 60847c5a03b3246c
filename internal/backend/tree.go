package backend

import (
	"encoding/json"
	"fmt"
	"sort"

	gocid "github.com/ipfs/go-cid"
)

// Kind is the type of a tree entry.
type Kind uint8

const (
	KindAbsent Kind = iota
	KindFile
	KindSymlink
	KindTree
)

func (k Kind) String() string {
	switch k {
	case KindAbsent:
		return "absent"
	case KindFile:
		return "file"
	case KindSymlink:
		return "symlink"
	case KindTree:
		return "tree"
	default:
		return fmt.Sprintf("Kind(%d)", uint8(k))
	}
}

// TreeValue is the value at one path. The zero value is absent. It is
// comparable so merges of values can be simplified with ==.
type TreeValue struct {
	Kind       Kind
	ID         gocid.Cid
	Executable bool
	CopyID     CopyID
}

// Absent is the value of a path that does not exist.
var Absent = TreeValue{}

// FileValue returns a file entry.
func FileValue(id FileID, executable bool, copyID CopyID) TreeValue {
	return TreeValue{Kind: KindFile, ID: id.Cid, Executable: executable, CopyID: copyID}
}

// SymlinkValue returns a symlink entry.
func SymlinkValue(id SymlinkID) TreeValue {
	return TreeValue{Kind: KindSymlink, ID: id.Cid}
}

// TreeRef returns a subdirectory entry.
func TreeRef(id TreeID) TreeValue {
	return TreeValue{Kind: KindTree, ID: id.Cid}
}

func (v TreeValue) IsAbsent() bool  { return v.Kind == KindAbsent }
func (v TreeValue) IsPresent() bool { return v.Kind != KindAbsent }
func (v TreeValue) IsTree() bool    { return v.Kind == KindTree }
func (v TreeValue) IsFile() bool    { return v.Kind == KindFile }

// IsFileLike reports whether v is present and not a directory.
func (v TreeValue) IsFileLike() bool {
	return v.Kind == KindFile || v.Kind == KindSymlink
}

func (v TreeValue) FileID() FileID       { return FileID{v.ID} }
func (v TreeValue) TreeID() TreeID       { return TreeID{v.ID} }
func (v TreeValue) SymlinkID() SymlinkID { return SymlinkID{v.ID} }

func (v TreeValue) String() string {
	switch v.Kind {
	case KindAbsent:
		return "absent"
	case KindFile:
		s := "file(" + shortCID(v.ID)
		if v.Executable {
			s += ", executable"
		}
		return s + ")"
	default:
		return v.Kind.String() + "(" + shortCID(v.ID) + ")"
	}
}

// TreeEntry is a named value in a tree.
type TreeEntry struct {
	Name  string
	Value TreeValue
}

// Tree is a single directory level with entries sorted by name. Absent
// values are never stored.
type Tree struct {
	entries []TreeEntry
}

// NewTree builds a tree from entries, sorting them and dropping absent ones.
func NewTree(entries []TreeEntry) *Tree {
	out := make([]TreeEntry, 0, len(entries))
	for _, e := range entries {
		if e.Value.IsPresent() {
			out = append(out, e)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return &Tree{entries: out}
}

// EmptyTree returns a tree with no entries.
func EmptyTree() *Tree {
	return &Tree{}
}

// Entries returns the sorted entries. The slice must not be modified.
func (t *Tree) Entries() []TreeEntry {
	return t.entries
}

// Names returns the sorted entry names.
func (t *Tree) Names() []string {
	names := make([]string, len(t.entries))
	for i, e := range t.entries {
		names[i] = e.Name
	}
	return names
}

// Value returns the value for name, or Absent.
func (t *Tree) Value(name string) TreeValue {
	i := sort.Search(len(t.entries), func(i int) bool { return t.entries[i].Name >= name })
	if i < len(t.entries) && t.entries[i].Name == name {
		return t.entries[i].Value
	}
	return Absent
}

func (t *Tree) IsEmpty() bool {
	return len(t.entries) == 0
}

// Set returns a copy of t with name set to v. An absent v removes the name.
func (t *Tree) Set(name string, v TreeValue) *Tree {
	entries := make([]TreeEntry, 0, len(t.entries)+1)
	for _, e := range t.entries {
		if e.Name != name {
			entries = append(entries, e)
		}
	}
	entries = append(entries, TreeEntry{Name: name, Value: v})
	return NewTree(entries)
}

type treeEntryJSON struct {
	Name       string    `json:"name"`
	Kind       string    `json:"kind"`
	ID         gocid.Cid `json:"id"`
	Executable bool      `json:"executable,omitempty"`
	CopyID     CopyID    `json:"copy_id,omitempty"`
}

type treeJSON struct {
	Entries []treeEntryJSON `json:"entries"`
}

func (t *Tree) MarshalJSON() ([]byte, error) {
	out := treeJSON{Entries: make([]treeEntryJSON, len(t.entries))}
	for i, e := range t.entries {
		out.Entries[i] = treeEntryJSON{
			Name:       e.Name,
			Kind:       e.Value.Kind.String(),
			ID:         e.Value.ID,
			Executable: e.Value.Executable,
			CopyID:     e.Value.CopyID,
		}
	}
	return json.Marshal(out)
}

func (t *Tree) UnmarshalJSON(data []byte) error {
	var in treeJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	entries := make([]TreeEntry, len(in.Entries))
	for i, e := range in.Entries {
		var kind Kind
		switch e.Kind {
		case "file":
			kind = KindFile
		case "symlink":
			kind = KindSymlink
		case "tree":
			kind = KindTree
		default:
			return fmt.Errorf("tree entry %q: unknown kind %q", e.Name, e.Kind)
		}
		entries[i] = TreeEntry{Name: e.Name, Value: TreeValue{
			Kind:       kind,
			ID:         e.ID,
			Executable: e.Executable,
			CopyID:     e.CopyID,
		}}
	}
	*t = *NewTree(entries)
	return nil
}
