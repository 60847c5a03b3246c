package fuse

import (
	"context"
	"errors"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/repopath"
)

// DirNode is a directory of the materialized tree. The mount root is the
// DirNode for the repository root.
type DirNode struct {
	fs.Inode
	snap *Snapshot
	path repopath.Path
	log  *zap.Logger
}

var _ = (fs.NodeLookuper)((*DirNode)(nil))
var _ = (fs.NodeReaddirer)((*DirNode)(nil))
var _ = (fs.NodeGetattrer)((*DirNode)(nil))

func (d *DirNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0555
	out.Ino = stableIno(d.snap.CommitID(), d.path)
	return fs.OK
}

func modeOf(k Kind) uint32 {
	switch k {
	case KindDir:
		return syscall.S_IFDIR
	case KindSymlink:
		return syscall.S_IFLNK
	default:
		return syscall.S_IFREG
	}
}

func (d *DirNode) Readdir(ctx context.Context) (fs.DirStream, syscall.Errno) {
	nodes, err := d.snap.ReadDir(ctx, d.path)
	if err != nil {
		return nil, d.errno("readdir", err)
	}
	entries := make([]fuse.DirEntry, len(nodes))
	for i, n := range nodes {
		entries[i] = fuse.DirEntry{
			Name: n.Name(),
			Mode: modeOf(n.Kind),
			Ino:  stableIno(d.snap.CommitID(), n.Path),
		}
	}
	return fs.NewListDirStream(entries), fs.OK
}

func (d *DirNode) Lookup(ctx context.Context, name string, out *fuse.EntryOut) (*fs.Inode, syscall.Errno) {
	n, err := d.snap.Stat(ctx, d.path.Join(name))
	if err != nil {
		return nil, d.errno("lookup", err)
	}
	attr := fs.StableAttr{
		Mode: modeOf(n.Kind),
		Ino:  stableIno(d.snap.CommitID(), n.Path),
	}
	var node fs.InodeEmbedder
	switch n.Kind {
	case KindDir:
		node = &DirNode{snap: d.snap, path: n.Path, log: d.log}
	case KindSymlink:
		node = &SymlinkNode{snap: d.snap, node: n, log: d.log}
	default:
		node = &FileNode{snap: d.snap, node: n, log: d.log}
	}
	return d.NewInode(ctx, node, attr), fs.OK
}

func (d *DirNode) errno(op string, err error) syscall.Errno {
	if errors.Is(err, ErrNotExist) {
		return syscall.ENOENT
	}
	d.log.Warn("fuse "+op+" failed", zap.Stringer("path", d.path), zap.Error(err))
	return syscall.EIO
}
