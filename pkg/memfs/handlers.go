// Copyright 2024 The Fuselite Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package memfs

import (
	"syscall"

	"golang.org/x/sys/unix"

	"github.com/fuselite/fuselite/pkg/fuse"
	"github.com/fuselite/fuselite/pkg/memtree"
	"github.com/fuselite/fuselite/pkg/perm"
)

const blockSize = 512

// Static STATFS geometry; files/ffree are derived from the live arena.
const statfsBlocks = 2048

func (s *Server) attr(n *memtree.Node) fuse.Attr {
	nlink := uint32(1)
	if n.IsDir() {
		nlink = 2
	}
	return fuse.Attr{
		Ino:     uint64(n.ID),
		Size:    n.Size(),
		Blocks:  (n.Size() + blockSize - 1) / blockSize,
		Mode:    n.Mode,
		Nlink:   nlink,
		Uid:     n.UID,
		Gid:     n.GID,
		Blksize: blockSize,
	}
}

func (s *Server) entry(n *memtree.Node) *fuse.Entry {
	return &fuse.Entry{Node: n.ID, Attr: s.attr(n)}
}

// checkAccess runs the permission policy for the requesting identity
// against a node. mask may be zero for metadata operations; owner-only
// screening still applies.
func (s *Server) checkAccess(h *fuse.Header, n *memtree.Node, mask uint32) error {
	return s.eval.Check(h.Uid, h.Gid, n.UID, n.GID, n.Mode&0777, mask)
}

// writeGate rejects mutating operations on a read-only session.
func (s *Server) writeGate() error {
	if !s.cfg.EnableWriteOps {
		return fuse.EACCES
	}
	return nil
}

func (s *Server) handleLookup(r *fuse.LookupRequest) error {
	dir, err := s.tree.Lookup(r.Node)
	if err != nil {
		return err
	}
	if err := s.checkAccess(&r.Header, dir, perm.MaskExec); err != nil {
		return err
	}
	n, err := s.tree.LookupChild(r.Node, r.Name)
	if err != nil {
		return err
	}
	return r.Respond(s.entry(n))
}

// handleForget has no reply to send; it only feeds the counters.
func (s *Server) handleForget(r *fuse.ForgetRequest) {
	s.Stats.ForgetCount.Add(1)
	s.Stats.ForgetNlookupSum.Add(r.N)
}

func (s *Server) handleGetattr(r *fuse.GetattrRequest) error {
	n, err := s.tree.Lookup(r.Node)
	if err != nil {
		return err
	}
	if err := s.checkAccess(&r.Header, n, 0); err != nil {
		return err
	}
	return r.Respond(s.attr(n))
}

func (s *Server) handleSetattr(r *fuse.SetattrRequest) error {
	n, err := s.tree.Lookup(r.Node)
	if err != nil {
		return err
	}
	if r.Valid.Size() || r.Valid.Mode() {
		if err := s.writeGate(); err != nil {
			return err
		}
	}
	if r.Valid.Size() {
		if err := s.checkAccess(&r.Header, n, perm.MaskWrite); err != nil {
			return err
		}
		if n.IsDir() {
			return fuse.EISDIR
		}
		if r.Size > s.maxFileSize {
			return fuse.EFBIG
		}
		n.Resize(r.Size)
	}
	if r.Valid.Mode() {
		if err := s.checkAccess(&r.Header, n, 0); err != nil {
			return err
		}
		n.Mode = (n.Mode &^ 07777) | (r.Mode & 07777)
	}
	return r.Respond(s.attr(n))
}

func (s *Server) handleMknod(r *fuse.MknodRequest) error {
	if err := s.writeGate(); err != nil {
		return err
	}
	if r.Mode&syscall.S_IFMT != syscall.S_IFREG {
		// Only regular files; no devices, sockets or pipes here.
		return fuse.EPERM
	}
	dir, err := s.tree.Lookup(r.Node)
	if err != nil {
		return err
	}
	if err := s.checkAccess(&r.Header, dir, perm.MaskWrite); err != nil {
		return err
	}
	n, err := s.tree.Insert(r.Node, r.Name, memtree.RegularFile, r.Mode)
	if err != nil {
		return err
	}
	return r.Respond(s.entry(n))
}

func (s *Server) handleMkdir(r *fuse.MkdirRequest) error {
	if err := s.writeGate(); err != nil {
		return err
	}
	dir, err := s.tree.Lookup(r.Node)
	if err != nil {
		return err
	}
	if err := s.checkAccess(&r.Header, dir, perm.MaskWrite); err != nil {
		return err
	}
	mode := syscall.S_IFDIR | (r.Mode & 07777)
	n, err := s.tree.Insert(r.Node, r.Name, memtree.Directory, mode)
	if err != nil {
		return err
	}
	return r.Respond(s.entry(n))
}

func (s *Server) handleCreate(r *fuse.CreateRequest) error {
	if err := s.writeGate(); err != nil {
		return err
	}
	dir, err := s.tree.Lookup(r.Node)
	if err != nil {
		return err
	}
	if err := s.checkAccess(&r.Header, dir, perm.MaskWrite); err != nil {
		return err
	}
	mode := syscall.S_IFREG | (r.Mode & 07777)
	n, err := s.tree.Insert(r.Node, r.Name, memtree.RegularFile, mode)
	if err != nil {
		return err
	}
	h := s.handles.alloc(n.ID, false, true)
	return r.Respond(s.entry(n), h)
}

func (s *Server) handleRemove(r *fuse.RemoveRequest) error {
	if err := s.writeGate(); err != nil {
		return err
	}
	dir, err := s.tree.Lookup(r.Node)
	if err != nil {
		return err
	}
	if err := s.checkAccess(&r.Header, dir, perm.MaskWrite); err != nil {
		return err
	}
	n, err := s.tree.LookupChild(r.Node, r.Name)
	if err != nil {
		return err
	}
	if r.Dir && !n.IsDir() {
		return fuse.ENOTDIR
	}
	if !r.Dir && n.IsDir() {
		return fuse.EISDIR
	}
	if err := s.tree.Remove(r.Node, r.Name); err != nil {
		return err
	}
	return r.Respond()
}

func (s *Server) handleRename(r *fuse.RenameRequest) error {
	if err := s.writeGate(); err != nil {
		return err
	}
	oldDir, err := s.tree.Lookup(r.Node)
	if err != nil {
		return err
	}
	if err := s.checkAccess(&r.Header, oldDir, perm.MaskWrite); err != nil {
		return err
	}
	newDir, err := s.tree.Lookup(r.NewDir)
	if err != nil {
		return err
	}
	if err := s.checkAccess(&r.Header, newDir, perm.MaskWrite); err != nil {
		return err
	}
	if err := s.tree.Rename(r.Node, r.OldName, r.NewDir, r.NewName); err != nil {
		return err
	}
	return r.Respond()
}

func (s *Server) handleOpen(r *fuse.OpenRequest) error {
	n, err := s.tree.Lookup(r.Node)
	if err != nil {
		return err
	}
	if r.Dir && !n.IsDir() {
		return fuse.ENOTDIR
	}
	if !r.Dir && n.IsDir() {
		return fuse.EISDIR
	}

	var mask uint32
	writable := false
	if r.Dir {
		mask = perm.MaskRead
	} else {
		switch r.Flags & unix.O_ACCMODE {
		case unix.O_RDONLY:
			mask = perm.MaskRead
		case unix.O_WRONLY:
			mask = perm.MaskWrite
			writable = true
		case unix.O_RDWR:
			mask = perm.MaskRead | perm.MaskWrite
			writable = true
		}
	}
	if writable {
		if err := s.writeGate(); err != nil {
			return err
		}
	}
	if err := s.checkAccess(&r.Header, n, mask); err != nil {
		return err
	}
	h := s.handles.alloc(n.ID, r.Dir, writable)
	return r.Respond(h)
}

func (s *Server) handleRead(r *fuse.ReadRequest) error {
	oh, ok := s.handles.get(r.Handle)
	if !ok || oh.dir != r.Dir {
		return fuse.EBADF
	}
	n, err := s.tree.Lookup(oh.node)
	if err != nil {
		// The node went away under the open handle.
		return fuse.EBADF
	}
	if r.Dir {
		return s.respondReaddir(r, n)
	}
	return r.Respond(n.ReadAt(r.Offset, r.Size))
}

// respondReaddir packs directory entries starting at the entry index in
// Offset: 0 is ".", 1 is "..", children follow in name order. Each record's
// Off is the index to resume after it.
func (s *Server) respondReaddir(r *fuse.ReadRequest, dir *memtree.Node) error {
	children, err := s.tree.Children(dir.ID)
	if err != nil {
		return err
	}

	var data []byte
	idx := uint64(0)
	add := func(ino uint64, typ fuse.DirentType, name string) bool {
		defer func() { idx++ }()
		if idx < r.Offset {
			return true
		}
		if len(data)+fuse.DirentLen(len(name)) > int(r.Size) {
			return false
		}
		data = fuse.AppendDirent(data, fuse.Dirent{
			Ino:  ino,
			Off:  idx + 1,
			Type: typ,
			Name: name,
		})
		return true
	}

	if !add(uint64(dir.ID), fuse.DT_Dir, ".") {
		return r.Respond(data)
	}
	if !add(uint64(dir.Parent), fuse.DT_Dir, "..") {
		return r.Respond(data)
	}
	for _, c := range children {
		typ := fuse.DT_File
		if c.IsDir() {
			typ = fuse.DT_Dir
		}
		if !add(uint64(c.ID), typ, c.Name) {
			break
		}
	}
	return r.Respond(data)
}

func (s *Server) handleWrite(r *fuse.WriteRequest) error {
	if err := s.writeGate(); err != nil {
		return err
	}
	oh, ok := s.handles.get(r.Handle)
	if !ok || oh.dir || !oh.writable {
		return fuse.EBADF
	}
	n, err := s.tree.Lookup(oh.node)
	if err != nil {
		return fuse.EBADF
	}
	// The extent check must not wrap: a kernel-supplied offset near
	// 2^64 would otherwise slip past the cap and blow up WriteAt.
	if r.Offset > s.maxFileSize || uint64(len(r.Data)) > s.maxFileSize-r.Offset {
		return fuse.EFBIG
	}
	n.WriteAt(r.Data, r.Offset)
	return r.Respond(uint32(len(r.Data)))
}

func (s *Server) handleStatfs(r *fuse.StatfsRequest) error {
	total := uint64(s.tree.Capacity())
	used := uint64(s.tree.Len())
	return r.Respond(&fuse.StatfsResponse{
		Blocks:  statfsBlocks,
		Bfree:   statfsBlocks,
		Bavail:  statfsBlocks,
		Files:   total,
		Ffree:   total - used,
		Bsize:   blockSize,
		Namelen: memtree.MaxNameLen,
		Frsize:  blockSize,
	})
}

func (s *Server) handleRelease(r *fuse.ReleaseRequest) error {
	if !s.handles.release(r.Handle) {
		return fuse.EBADF
	}
	return r.Respond()
}

func (s *Server) handleFlush(r *fuse.FlushRequest) error {
	if _, ok := s.handles.get(r.Handle); !ok {
		return fuse.EBADF
	}
	return r.Respond()
}

func (s *Server) handleAccess(r *fuse.AccessRequest) error {
	n, err := s.tree.Lookup(r.Node)
	if err != nil {
		return err
	}
	if err := s.checkAccess(&r.Header, n, r.Mask&7); err != nil {
		return err
	}
	return r.Respond()
}

// handleDestroy has no reply to send.
func (s *Server) handleDestroy(r *fuse.DestroyRequest) {
	s.Stats.DestroyCount.Add(1)
	if s.cfg.StopOnDestroy {
		s.stop.Store(true)
	}
}
