// Package fusebridge adapts httpfs.Filesystem to the low-level FUSE wire
// protocol via github.com/hanwen/go-fuse/v2/fuse. Unlike a filesystem with a
// persistent, user-assembled node tree, this bridge's tree is entirely
// dynamic: every node's metadata is computed on demand from
// Filesystem.ReadDir, so the bridge only needs a lightweight NodeID->path
// registry rather than a full Node/Inode tree.
package fusebridge

import (
	"context"
	"hash/fnv"
	"os"

	"github.com/brettbedarf/httpdirfs-go/autoindex"
	"github.com/brettbedarf/httpdirfs-go/httpfs"
	"github.com/brettbedarf/httpdirfs-go/internal/util"
	"github.com/hanwen/go-fuse/v2/fuse"
	"github.com/puzpuzpuz/xsync/v3"
)

var log = util.GetLogger("fusebridge")

// entryTimeoutSeconds/attrTimeoutSeconds bound how long the kernel trusts a
// cached lookup/attr result before asking again.
const (
	entryTimeoutSeconds = 1.0
	attrTimeoutSeconds  = 1.0
)

// Bridge implements fuse.RawFileSystem over an httpfs.Filesystem. It
// embeds fuse.NewDefaultRawFileSystem()'s stub, which returns ENOSYS for
// anything not explicitly overridden below.
type Bridge struct {
	fuse.RawFileSystem

	fs *httpfs.Filesystem

	// paths maps a FUSE NodeID to the canonical path it names. Directory
	// paths end in "/" (root is "/" itself); file paths don't.
	paths *xsync.MapOf[uint64, string]
}

// New creates a Bridge over fs. The root node is pre-registered under
// fuse.FUSE_ROOT_ID.
func New(fs *httpfs.Filesystem) *Bridge {
	b := &Bridge{
		RawFileSystem: fuse.NewDefaultRawFileSystem(),
		fs:            fs,
		paths:         xsync.NewMapOf[uint64, string](),
	}
	b.paths.Store(fuse.FUSE_ROOT_ID, "/")
	return b
}

func (b *Bridge) String() string {
	return "httpdirfs"
}

func (b *Bridge) Init(s *fuse.Server) {
	log.Debug().Msg("fuse server initialized")
}

func (b *Bridge) OnUnmount() {
	log.Info().Msg("fuse filesystem unmounted")
}

// inodeFor derives a synthetic, session-stable inode number from a
// canonical path. Stability only holds for the life of one mount;
// inode numbers are not stable across remounts, matching the explicit
// non-goal.
func inodeFor(path string) uint64 {
	if path == "/" {
		return fuse.FUSE_ROOT_ID
	}
	h := fnv.New64a()
	h.Write([]byte(path))
	return h.Sum64()
}

func fillAttr(out *fuse.Attr, nodeID uint64, meta autoindex.FileMeta) {
	out.Ino = nodeID
	out.Size = meta.Size
	out.Blocks = (meta.Size + 511) / 512
	out.Mode = meta.Mode
	out.Nlink = meta.Nlink
	out.Atime = uint64(meta.Atime)
	out.Mtime = uint64(meta.Mtime)
	out.Ctime = uint64(meta.Ctime)
	out.Owner = fuse.Owner{Uid: meta.Uid, Gid: meta.Gid}
}

// Lookup resolves a (parent NodeID, name) pair to a child node, registering
// it in the path registry on success.
func (b *Bridge) Lookup(cancel <-chan struct{}, header *fuse.InHeader, name string, out *fuse.EntryOut) fuse.Status {
	parentPath, ok := b.paths.Load(header.NodeId)
	if !ok {
		return fuse.ENOENT
	}

	entry, err := b.fs.ReadDir(context.Background(), parentPath)
	if err != nil {
		log.Debug().Err(err).Str("parent", parentPath).Msg("lookup: readDir failed")
		return fuse.EIO
	}

	meta, ok := entry.Entries[name]
	if !ok {
		return fuse.ENOENT
	}

	childPath := parentPath + name
	if meta.IsDir() {
		childPath += "/"
	}

	nodeID := inodeFor(childPath)
	b.paths.Store(nodeID, childPath)

	out.NodeId = nodeID
	out.Generation = 1
	out.SetEntryTimeout(entryTimeoutSeconds)
	out.SetAttrTimeout(attrTimeoutSeconds)
	fillAttr(&out.Attr, nodeID, meta)

	return fuse.OK
}

// Forget discards a NodeID from the registry. Not guaranteed to fire for
// every registered node, and does no I/O.
func (b *Bridge) Forget(nodeid, nlookup uint64) {
	if nodeid == fuse.FUSE_ROOT_ID {
		return
	}
	b.paths.Delete(nodeid)
}

// GetAttr returns stat metadata for a NodeID. The root is synthesized
// directly without a readDir call; everything else is resolved by reading
// its parent directory.
func (b *Bridge) GetAttr(cancel <-chan struct{}, input *fuse.GetAttrIn, out *fuse.AttrOut) fuse.Status {
	p, ok := b.paths.Load(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}

	out.SetTimeout(attrTimeoutSeconds)

	if p == "/" {
		out.Attr = fuse.Attr{
			Ino:   fuse.FUSE_ROOT_ID,
			Mode:  fuse.S_IFDIR | 0o440,
			Nlink: 1,
			Owner: fuse.Owner{Uid: uint32(os.Getuid()), Gid: uint32(os.Getgid())},
		}
		return fuse.OK
	}

	parentPath, base := httpfs.SplitPath(p)
	entry, err := b.fs.ReadDir(context.Background(), parentPath)
	if err != nil {
		log.Debug().Err(err).Str("path", p).Msg("getattr: readDir failed")
		return fuse.EIO
	}

	meta, ok := entry.Entries[base]
	if !ok {
		return fuse.ENOENT
	}

	fillAttr(&out.Attr, input.NodeId, meta)
	return fuse.OK
}

// ReadDir lists the entries of a directory NodeID.
func (b *Bridge) ReadDir(cancel <-chan struct{}, input *fuse.ReadIn, out *fuse.DirEntryList) fuse.Status {
	p, ok := b.paths.Load(input.NodeId)
	if !ok {
		return fuse.ENOENT
	}

	entry, err := b.fs.ReadDir(context.Background(), p)
	if err != nil {
		log.Debug().Err(err).Str("path", p).Msg("readdir: readDir failed")
		return fuse.EIO
	}

	for name, meta := range entry.Entries {
		childPath := p + name
		if meta.IsDir() {
			childPath += "/"
		}
		out.AddDirEntry(fuse.DirEntry{
			Name: name,
			Mode: meta.Mode,
			Ino:  inodeFor(childPath),
		})
	}

	return fuse.OK
}

// Open always succeeds without checking existence; a later Read against an
// invalid path surfaces the failure instead.
func (b *Bridge) Open(cancel <-chan struct{}, input *fuse.OpenIn, out *fuse.OpenOut) fuse.Status {
	return fuse.OK
}

// Read delegates to Filesystem.ReadBlock for a byte-range GET.
func (b *Bridge) Read(cancel <-chan struct{}, input *fuse.ReadIn, buf []byte) (fuse.ReadResult, fuse.Status) {
	p, ok := b.paths.Load(input.NodeId)
	if !ok {
		return nil, fuse.ENOENT
	}

	data, err := b.fs.ReadBlock(context.Background(), p, int64(input.Offset), int64(len(buf)))
	if err != nil {
		log.Debug().Err(err).Str("path", p).Msg("read: readBlock failed")
		return nil, fuse.EIO
	}

	return fuse.ReadResultData(data), fuse.OK
}

// The filesystem is read-only: every mutating operation is rejected
// unconditionally, issuing no HTTP requests.

func (b *Bridge) Mkdir(cancel <-chan struct{}, input *fuse.MkdirIn, name string, out *fuse.EntryOut) fuse.Status {
	return fuse.EACCES
}

func (b *Bridge) Mknod(cancel <-chan struct{}, input *fuse.MknodIn, name string, out *fuse.EntryOut) fuse.Status {
	return fuse.EACCES
}

func (b *Bridge) Unlink(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return fuse.EACCES
}

func (b *Bridge) Rmdir(cancel <-chan struct{}, header *fuse.InHeader, name string) fuse.Status {
	return fuse.EACCES
}

func (b *Bridge) Symlink(cancel <-chan struct{}, header *fuse.InHeader, pointedTo string, linkName string, out *fuse.EntryOut) fuse.Status {
	return fuse.EACCES
}

func (b *Bridge) Rename(cancel <-chan struct{}, input *fuse.RenameIn, oldName string, newName string) fuse.Status {
	return fuse.EACCES
}

func (b *Bridge) Link(cancel <-chan struct{}, input *fuse.LinkIn, name string, out *fuse.EntryOut) fuse.Status {
	return fuse.EACCES
}

func (b *Bridge) SetAttr(cancel <-chan struct{}, input *fuse.SetAttrIn, out *fuse.AttrOut) fuse.Status {
	return fuse.EACCES
}

func (b *Bridge) Create(cancel <-chan struct{}, input *fuse.CreateIn, name string, out *fuse.CreateOut) fuse.Status {
	return fuse.EACCES
}

func (b *Bridge) Write(cancel <-chan struct{}, input *fuse.WriteIn, data []byte) (uint32, fuse.Status) {
	return 0, fuse.EACCES
}
