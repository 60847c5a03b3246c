package fuse

import (
	"context"
	"syscall"

	"github.com/hanwen/go-fuse/v2/fs"
	"github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"
)

// FileNode exposes one file, or the materialized text of a conflict.
type FileNode struct {
	fs.Inode
	snap *Snapshot
	node Node
	log  *zap.Logger
}

var _ = (fs.NodeGetattrer)((*FileNode)(nil))
var _ = (fs.NodeOpener)((*FileNode)(nil))
var _ = (fs.NodeReader)((*FileNode)(nil))

func (f *FileNode) content(ctx context.Context) ([]byte, syscall.Errno) {
	data, err := f.snap.ReadFile(ctx, f.node)
	if err != nil {
		f.log.Warn("fuse read failed", zap.Stringer("path", f.node.Path), zap.Error(err))
		return nil, syscall.EIO
	}
	return data, fs.OK
}

func (f *FileNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	data, errno := f.content(ctx)
	if errno != fs.OK {
		return errno
	}
	out.Mode = 0444
	if f.node.Executable {
		out.Mode = 0555
	}
	out.Size = uint64(len(data))
	out.Ino = stableIno(f.snap.CommitID(), f.node.Path)
	return fs.OK
}

func (f *FileNode) Open(ctx context.Context, flags uint32) (fs.FileHandle, uint32, syscall.Errno) {
	if flags&(syscall.O_WRONLY|syscall.O_RDWR|syscall.O_TRUNC) != 0 {
		return nil, 0, syscall.EROFS
	}
	return nil, fuse.FOPEN_KEEP_CACHE, fs.OK
}

func (f *FileNode) Read(ctx context.Context, fh fs.FileHandle, dest []byte, off int64) (fuse.ReadResult, syscall.Errno) {
	data, errno := f.content(ctx)
	if errno != fs.OK {
		return nil, errno
	}
	if off >= int64(len(data)) {
		return fuse.ReadResultData(nil), fs.OK
	}
	end := off + int64(len(dest))
	if end > int64(len(data)) {
		end = int64(len(data))
	}
	return fuse.ReadResultData(data[off:end]), fs.OK
}

// SymlinkNode is a symlink in the materialized tree.
type SymlinkNode struct {
	fs.Inode
	snap *Snapshot
	node Node
	log  *zap.Logger
}

var _ = (fs.NodeReadlinker)((*SymlinkNode)(nil))
var _ = (fs.NodeGetattrer)((*SymlinkNode)(nil))

func (s *SymlinkNode) Readlink(ctx context.Context) ([]byte, syscall.Errno) {
	target, err := s.snap.ReadLink(ctx, s.node)
	if err != nil {
		s.log.Warn("fuse readlink failed", zap.Stringer("path", s.node.Path), zap.Error(err))
		return nil, syscall.EIO
	}
	return []byte(target), fs.OK
}

func (s *SymlinkNode) Getattr(ctx context.Context, fh fs.FileHandle, out *fuse.AttrOut) syscall.Errno {
	out.Mode = 0777 | syscall.S_IFLNK
	out.Ino = stableIno(s.snap.CommitID(), s.node.Path)
	return fs.OK
}
