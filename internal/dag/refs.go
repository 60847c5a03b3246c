package dag

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	gocid "github.com/ipfs/go-cid"
)

// ErrRefConflict is returned by CompareAndSwap when the ref has moved.
var ErrRefConflict = errors.New("ref changed concurrently")

// RefStore manages name -> CID mappings as files. Each ref is a file in
// the refs directory whose content is the base32 CID. Filenames use
// URL-safe encoding: colons become double underscores. Every update is
// also appended to a reflog next to the directory.
type RefStore struct {
	dir     string
	logPath string
	mu      sync.Mutex
}

// NewRefStore creates a RefStore at the given directory.
func NewRefStore(dir string) (*RefStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create refs dir: %w", err)
	}
	return &RefStore{dir: dir, logPath: filepath.Clean(dir) + ".log"}, nil
}

func refFilename(id string) string {
	return strings.ReplaceAll(id, ":", "__")
}

func (r *RefStore) set(id string, c gocid.Cid) error {
	encoded := CIDToFilename(c)
	if err := SafeWrite(filepath.Join(r.dir, refFilename(id)), []byte(encoded+"\n"), 0644); err != nil {
		return fmt.Errorf("write ref %s: %w", id, err)
	}
	if err := SafeAppend(r.logPath, []byte(id+" "+encoded+"\n")); err != nil {
		return fmt.Errorf("append reflog: %w", err)
	}
	return nil
}

// CompareAndSwap sets id to next only if it currently points at prev. An
// undefined prev means the ref must not exist yet.
func (r *RefStore) CompareAndSwap(id string, prev, next gocid.Cid) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cur, err := r.get(id)
	switch {
	case errors.Is(err, ErrNotFound):
		cur = gocid.Undef
	case err != nil:
		return err
	}
	if !cur.Equals(prev) {
		return fmt.Errorf("update ref %s: %w", id, ErrRefConflict)
	}
	return r.set(id, next)
}

// Get resolves a ref name to a CID.
func (r *RefStore) Get(id string) (gocid.Cid, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.get(id)
}

func (r *RefStore) get(id string) (gocid.Cid, error) {
	data, err := os.ReadFile(filepath.Join(r.dir, refFilename(id)))
	if os.IsNotExist(err) {
		return gocid.Undef, fmt.Errorf("ref %s: %w", id, ErrNotFound)
	}
	if err != nil {
		return gocid.Undef, fmt.Errorf("read ref %s: %w", id, err)
	}
	return CIDFromString(strings.TrimSpace(string(data)))
}

// History returns every value id has been set to, oldest first.
func (r *RefStore) History(id string) ([]gocid.Cid, error) {
	data, err := os.ReadFile(r.logPath)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read reflog: %w", err)
	}
	var out []gocid.Cid
	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		name, encoded, ok := strings.Cut(sc.Text(), " ")
		if !ok || name != id {
			continue
		}
		c, err := CIDFromString(encoded)
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, sc.Err()
}
