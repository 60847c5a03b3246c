package dag

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	gocid "github.com/ipfs/go-cid"
	"github.com/multiformats/go-multibase"
	"github.com/multiformats/go-multihash"
	cmap "github.com/orcaman/concurrent-map"
)

// Codecs used for stored objects.
const (
	CodecRaw     = gocid.Raw
	CodecDagJSON = gocid.DagJSON
)

// ErrNotFound is returned when a block or ref does not exist.
var ErrNotFound = errors.New("not found")

// Blockstore stores immutable content-addressed blocks.
type Blockstore interface {
	// Put stores data under the CID computed from codec and data.
	Put(ctx context.Context, codec uint64, data []byte) (gocid.Cid, error)
	// Get returns the block for c, or an error wrapping ErrNotFound.
	Get(ctx context.Context, c gocid.Cid) ([]byte, error)
	Has(ctx context.Context, c gocid.Cid) (bool, error)
}

// ComputeCID computes a CIDv1 (SHA2-256) for data under the given codec.
func ComputeCID(codec uint64, data []byte) (gocid.Cid, error) {
	mh, err := multihash.Sum(data, multihash.SHA2_256, -1)
	if err != nil {
		return gocid.Undef, fmt.Errorf("multihash: %w", err)
	}
	return gocid.NewCidV1(codec, mh), nil
}

// CIDToFilename returns the base32lower encoding of a CID for use as a filename.
func CIDToFilename(c gocid.Cid) string {
	encoded, _ := multibase.Encode(multibase.Base32, c.Bytes())
	return encoded
}

// CIDFromString decodes a multibase-encoded CID.
func CIDFromString(s string) (gocid.Cid, error) {
	_, raw, err := multibase.Decode(s)
	if err != nil {
		return gocid.Undef, fmt.Errorf("decode CID %q: %w", s, err)
	}
	return gocid.Cast(raw)
}

// DiskStore keeps one file per block in a directory.
type DiskStore struct {
	dir string
}

var _ Blockstore = (*DiskStore)(nil)

// NewDiskStore creates a DiskStore at the given directory.
func NewDiskStore(dir string) (*DiskStore, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("create objects dir: %w", err)
	}
	return &DiskStore{dir: dir}, nil
}

func (s *DiskStore) path(c gocid.Cid) string {
	return filepath.Join(s.dir, CIDToFilename(c))
}

// Put writes data to the store. If the block already exists, this is a no-op.
func (s *DiskStore) Put(ctx context.Context, codec uint64, data []byte) (gocid.Cid, error) {
	if err := ctx.Err(); err != nil {
		return gocid.Undef, err
	}
	c, err := ComputeCID(codec, data)
	if err != nil {
		return gocid.Undef, err
	}
	path := s.path(c)
	if _, err := os.Stat(path); err == nil {
		return c, nil
	}
	if err := SafeWrite(path, data, 0644); err != nil {
		return gocid.Undef, fmt.Errorf("write object: %w", err)
	}
	return c, nil
}

// Get reads a block by CID.
func (s *DiskStore) Get(ctx context.Context, c gocid.Cid) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	data, err := os.ReadFile(s.path(c))
	if os.IsNotExist(err) {
		return nil, fmt.Errorf("read object %s: %w", c, ErrNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("read object %s: %w", c, err)
	}
	return data, nil
}

// Has checks if a block exists.
func (s *DiskStore) Has(ctx context.Context, c gocid.Cid) (bool, error) {
	if err := ctx.Err(); err != nil {
		return false, err
	}
	_, err := os.Stat(s.path(c))
	if os.IsNotExist(err) {
		return false, nil
	}
	return err == nil, err
}

// MemStore is an in-memory Blockstore, used by tests and throwaway repos.
type MemStore struct {
	blocks cmap.ConcurrentMap
}

var _ Blockstore = (*MemStore)(nil)

// NewMemStore returns an empty MemStore.
func NewMemStore() *MemStore {
	return &MemStore{blocks: cmap.New()}
}

func (s *MemStore) Put(_ context.Context, codec uint64, data []byte) (gocid.Cid, error) {
	c, err := ComputeCID(codec, data)
	if err != nil {
		return gocid.Undef, err
	}
	s.blocks.SetIfAbsent(c.KeyString(), append([]byte(nil), data...))
	return c, nil
}

func (s *MemStore) Get(_ context.Context, c gocid.Cid) ([]byte, error) {
	v, ok := s.blocks.Get(c.KeyString())
	if !ok {
		return nil, fmt.Errorf("read object %s: %w", c, ErrNotFound)
	}
	return v.([]byte), nil
}

func (s *MemStore) Has(_ context.Context, c gocid.Cid) (bool, error) {
	return s.blocks.Has(c.KeyString()), nil
}

// Len returns the number of stored blocks.
func (s *MemStore) Len() int {
	return s.blocks.Count()
}
