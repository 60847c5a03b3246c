package fuse

import (
	"hash/fnv"

	"github.com/systemshift/splice/internal/backend"
	"github.com/systemshift/splice/internal/repopath"
)

// stableIno returns a stable inode number for a path within one commit.
func stableIno(commit backend.CommitID, path repopath.Path) uint64 {
	h := fnv.New64a()
	h.Write(commit.Bytes())
	h.Write([]byte{0})
	h.Write([]byte(path.String()))
	return h.Sum64()
}
