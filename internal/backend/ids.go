package backend

import (
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/google/uuid"
	gocid "github.com/ipfs/go-cid"
)

// CommitID identifies a commit object. It is the CID of the commit's
// canonical encoding.
type CommitID struct{ gocid.Cid }

// TreeID identifies a tree object.
type TreeID struct{ gocid.Cid }

// FileID identifies file contents.
type FileID struct{ gocid.Cid }

// SymlinkID identifies a symlink target.
type SymlinkID struct{ gocid.Cid }

// Short returns an abbreviated id for display.
func (id CommitID) Short() string { return shortCID(id.Cid) }

// Short returns an abbreviated id for display.
func (id TreeID) Short() string { return shortCID(id.Cid) }

func shortCID(c gocid.Cid) string {
	s := c.String()
	if len(s) > 12 {
		return s[len(s)-12:]
	}
	return s
}

// ParseCommitID parses the string form of a commit id.
func ParseCommitID(s string) (CommitID, error) {
	c, err := gocid.Decode(s)
	if err != nil {
		return CommitID{}, fmt.Errorf("parse commit id %q: %w", s, err)
	}
	return CommitID{c}, nil
}

// ChangeID is the stable identity of a change across rewrites.
type ChangeID [16]byte

// NewChangeID returns a random change id.
func NewChangeID() ChangeID {
	return ChangeID(uuid.New())
}

// IsZero reports whether id is the root change id.
func (id ChangeID) IsZero() bool {
	return id == ChangeID{}
}

// reverse hex keeps change ids visually distinct from commit ids.
const reverseHexDigits = "zyxwvutsrqponmlk"

func (id ChangeID) String() string {
	var b strings.Builder
	b.Grow(len(id) * 2)
	for _, v := range id {
		b.WriteByte(reverseHexDigits[v>>4])
		b.WriteByte(reverseHexDigits[v&0xf])
	}
	return b.String()
}

// Short returns the first 12 characters of the change id.
func (id ChangeID) Short() string {
	return id.String()[:12]
}

// ParseChangeID parses a full reverse-hex change id.
func ParseChangeID(s string) (ChangeID, error) {
	var id ChangeID
	if len(s) != len(id)*2 {
		return id, fmt.Errorf("parse change id %q: wrong length", s)
	}
	raw := make([]byte, len(s))
	for i := 0; i < len(s); i++ {
		j := strings.IndexByte(reverseHexDigits, s[i])
		if j < 0 {
			return id, fmt.Errorf("parse change id %q: invalid digit %q", s, s[i])
		}
		raw[i] = "0123456789abcdef"[j]
	}
	if _, err := hex.Decode(id[:], raw); err != nil {
		return id, fmt.Errorf("parse change id %q: %w", s, err)
	}
	return id, nil
}

func (id ChangeID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

func (id *ChangeID) UnmarshalText(text []byte) error {
	parsed, err := ParseChangeID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}

// CopyID groups file values that descend from the same original file.
type CopyID string
