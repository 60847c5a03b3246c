package fuse

import (
	"time"

	"github.com/hanwen/go-fuse/v2/fs"
	gofuse "github.com/hanwen/go-fuse/v2/fuse"
	"go.uber.org/zap"

	"github.com/systemshift/splice/internal/repopath"
)

// MountOptions controls a mount.
type MountOptions struct {
	// Debug logs every FUSE request.
	Debug bool
	Log   *zap.Logger
}

// MountFS mounts snap read-only at mountpoint.
// Returns the server (call server.Wait() to block, server.Unmount() to stop).
func MountFS(mountpoint string, snap *Snapshot, opts MountOptions) (*gofuse.Server, error) {
	log := opts.Log
	if log == nil {
		log = zap.NewNop()
	}
	root := &DirNode{snap: snap, path: repopath.Root, log: log}

	// The snapshot never changes, so the kernel may cache freely.
	timeout := time.Hour
	fsOpts := &fs.Options{
		EntryTimeout: &timeout,
		AttrTimeout:  &timeout,
		MountOptions: gofuse.MountOptions{
			FsName:        "splice",
			Name:          "splice",
			DisableXAttrs: true,
			Debug:         opts.Debug,
			Options:       []string{"ro"},
		},
	}

	server, err := fs.Mount(mountpoint, root, fsOpts)
	if err != nil {
		return nil, err
	}
	return server, nil
}
