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

package fuse

import (
	"errors"
	"fmt"
	"unsafe"
)

// A RequestID identifies one in-flight FUSE request; replies echo it.
type RequestID uint64

func (r RequestID) String() string {
	return fmt.Sprintf("%#x", uint64(r))
}

// A NodeID is the protocol's addressing handle for a filesystem entry.
type NodeID uint64

func (n NodeID) String() string {
	return fmt.Sprintf("%#x", uint64(n))
}

// RootID identifies the root directory of the filesystem.
const RootID NodeID = 1

// A HandleID identifies an open file or directory, as returned by OPEN.
type HandleID uint64

func (h HandleID) String() string {
	return fmt.Sprintf("%#x", uint64(h))
}

// An Attr is the wire-visible metadata for a single entry. Mode carries the
// full S_IFMT type bits, as in the raw protocol.
type Attr struct {
	Ino     uint64
	Size    uint64
	Blocks  uint64
	Mode    uint32
	Nlink   uint32
	Uid     uint32
	Gid     uint32
	Rdev    uint32
	Blksize uint32
}

func (a Attr) String() string {
	return fmt.Sprintf("ino=%d size=%d mode=%#o", a.Ino, a.Size, a.Mode)
}

func (a *Attr) store(out *attr) {
	out.Ino = a.Ino
	out.Size = a.Size
	out.Blocks = a.Blocks
	out.Mode = a.Mode
	out.Nlink = a.Nlink
	out.Uid = a.Uid
	out.Gid = a.Gid
	out.Rdev = a.Rdev
	out.Blksize = a.Blksize
}

// An Entry describes a resolved directory entry: the node it names plus its
// attributes, as carried in LOOKUP/MKDIR/MKNOD/CREATE replies.
type Entry struct {
	Node       NodeID
	Generation uint64
	Attr       Attr
}

func (e Entry) String() string {
	return fmt.Sprintf("%v gen=%d attr={%v}", e.Node, e.Generation, e.Attr)
}

func (e *Entry) store(out *entryOut) {
	out.Nodeid = uint64(e.Node)
	out.Generation = e.Generation
	e.Attr.store(&out.Attr)
}

// replySink consumes framed reply buffers; Conn is the production
// implementation.
type replySink interface {
	writeReply(buf buffer) error
}

// A Request represents a single FUSE request received from the kernel. Use a
// type switch to determine the specific kind.
type Request interface {
	// Hdr returns the Header shared by all requests.
	Hdr() *Header

	// RespondError replies to the request with the given error's errno.
	RespondError(error) error

	String() string
}

// A Header carries the fields common to every request.
type Header struct {
	ID   RequestID // unique id, echoed in the reply
	Node NodeID    // file or directory the request is about
	Uid  uint32    // uid of the requesting process
	Gid  uint32    // gid of the requesting process
	Pid  uint32    // pid of the requesting process

	sink replySink
}

func (h *Header) String() string {
	return fmt.Sprintf("ID=%v Node=%v Uid=%d Gid=%d Pid=%d", h.ID, h.Node, h.Uid, h.Gid, h.Pid)
}

func (h *Header) Hdr() *Header {
	return h
}

func (h *Header) respond(buf buffer) error {
	out := (*outHeader)(unsafe.Pointer(&buf[0]))
	out.Unique = uint64(h.ID)
	return h.sink.writeReply(buf)
}

// RespondError replies with a negative errno and no body. Errors that do not
// implement ErrorNumber are reported as DefaultErrno.
func (h *Header) RespondError(err error) error {
	errno := DefaultErrno
	var en ErrorNumber
	if errors.As(err, &en) {
		errno = en.Errno()
	}
	buf := newBuffer(0)
	out := (*outHeader)(unsafe.Pointer(&buf[0]))
	out.Error = -int32(errno)
	return h.respond(buf)
}

// An InitRequest is the first request sent on a fresh session.
type InitRequest struct {
	Header
	Kernel       Protocol
	MaxReadahead uint32
	Flags        uint32
	Flags2       uint32
}

var _ Request = (*InitRequest)(nil)

func (r *InitRequest) String() string {
	return fmt.Sprintf("Init [%v] %v ra=%d fl=%#x fl2=%#x", &r.Header, r.Kernel, r.MaxReadahead, r.Flags, r.Flags2)
}

// An InitResponse carries the server's negotiated limits.
type InitResponse struct {
	Library             Protocol
	MaxReadahead        uint32
	Flags               InitFlags
	Flags2              uint32
	MaxBackground       uint16
	CongestionThreshold uint16
	MaxWrite            uint32
	TimeGran            uint32
	MaxPages            uint16
}

func (r *InitResponse) String() string {
	return fmt.Sprintf("Init %v ra=%d fl=%#x w=%d pages=%d", r.Library, r.MaxReadahead, uint32(r.Flags), r.MaxWrite, r.MaxPages)
}

// Respond replies to the request with the given response.
func (r *InitRequest) Respond(resp *InitResponse) error {
	buf := newBuffer(unsafe.Sizeof(initOut{}))
	out := (*initOut)(buf.alloc(unsafe.Sizeof(initOut{})))
	out.Major = resp.Library.Major
	out.Minor = resp.Library.Minor
	out.MaxReadahead = resp.MaxReadahead
	out.Flags = uint32(resp.Flags)
	out.Flags2 = resp.Flags2
	out.MaxBackground = resp.MaxBackground
	out.CongestionThreshold = resp.CongestionThreshold
	out.MaxWrite = resp.MaxWrite
	out.TimeGran = resp.TimeGran
	out.MaxPages = resp.MaxPages
	return r.respond(buf)
}

// A LookupRequest asks to look up the given name in the directory r.Node.
type LookupRequest struct {
	Header
	Name string
}

var _ Request = (*LookupRequest)(nil)

func (r *LookupRequest) String() string {
	return fmt.Sprintf("Lookup [%v] %q", &r.Header, r.Name)
}

// Respond replies with the resolved entry.
func (r *LookupRequest) Respond(e *Entry) error {
	buf := newBuffer(unsafe.Sizeof(entryOut{}))
	out := (*entryOut)(buf.alloc(unsafe.Sizeof(entryOut{})))
	e.store(out)
	return r.respond(buf)
}

// A ForgetRequest tells the server the kernel has dropped r.Node from its
// cache. It must not be replied to.
type ForgetRequest struct {
	Header
	N uint64
}

var _ Request = (*ForgetRequest)(nil)

func (r *ForgetRequest) String() string {
	return fmt.Sprintf("Forget [%v] %d", &r.Header, r.N)
}

// A GetattrRequest asks for the metadata of r.Node.
type GetattrRequest struct {
	Header
	Flags  uint32
	Handle HandleID
}

var _ Request = (*GetattrRequest)(nil)

func (r *GetattrRequest) String() string {
	return fmt.Sprintf("Getattr [%v] %v fl=%#x", &r.Header, r.Handle, r.Flags)
}

// Respond replies with the node's attributes.
func (r *GetattrRequest) Respond(a Attr) error {
	return respondAttr(&r.Header, a)
}

func respondAttr(h *Header, a Attr) error {
	buf := newBuffer(unsafe.Sizeof(attrOut{}))
	out := (*attrOut)(buf.alloc(unsafe.Sizeof(attrOut{})))
	a.store(&out.Attr)
	return h.respond(buf)
}

// A SetattrRequest asks to change the attributes selected by Valid.
type SetattrRequest struct {
	Header
	Valid  SetattrValid
	Handle HandleID
	Size   uint64
	Mode   uint32
	Uid    uint32
	Gid    uint32
}

var _ Request = (*SetattrRequest)(nil)

// SetattrValid is the bitmask of attributes a SETATTR carries.
type SetattrValid uint32

func (v SetattrValid) Mode() bool { return v&fattrMode != 0 }
func (v SetattrValid) Uid() bool  { return v&fattrUID != 0 }
func (v SetattrValid) Gid() bool  { return v&fattrGID != 0 }
func (v SetattrValid) Size() bool { return v&fattrSize != 0 }

func (r *SetattrRequest) String() string {
	return fmt.Sprintf("Setattr [%v] valid=%#x size=%d mode=%#o", &r.Header, uint32(r.Valid), r.Size, r.Mode)
}

// Respond replies with the attributes as they stand after the change.
func (r *SetattrRequest) Respond(a Attr) error {
	return respondAttr(&r.Header, a)
}

// A MknodRequest asks to create a non-directory entry under r.Node.
type MknodRequest struct {
	Header
	Name  string
	Mode  uint32
	Rdev  uint32
	Umask uint32
}

var _ Request = (*MknodRequest)(nil)

func (r *MknodRequest) String() string {
	return fmt.Sprintf("Mknod [%v] %q mode=%#o", &r.Header, r.Name, r.Mode)
}

// Respond replies with the created entry.
func (r *MknodRequest) Respond(e *Entry) error {
	return respondEntry(&r.Header, e)
}

func respondEntry(h *Header, e *Entry) error {
	buf := newBuffer(unsafe.Sizeof(entryOut{}))
	out := (*entryOut)(buf.alloc(unsafe.Sizeof(entryOut{})))
	e.store(out)
	return h.respond(buf)
}

// A MkdirRequest asks to create a directory under r.Node.
type MkdirRequest struct {
	Header
	Name  string
	Mode  uint32
	Umask uint32
}

var _ Request = (*MkdirRequest)(nil)

func (r *MkdirRequest) String() string {
	return fmt.Sprintf("Mkdir [%v] %q mode=%#o", &r.Header, r.Name, r.Mode)
}

// Respond replies with the created entry.
func (r *MkdirRequest) Respond(e *Entry) error {
	return respondEntry(&r.Header, e)
}

// A RemoveRequest asks to remove the named entry from the directory r.Node.
// Dir distinguishes RMDIR from UNLINK.
type RemoveRequest struct {
	Header
	Name string
	Dir  bool
}

var _ Request = (*RemoveRequest)(nil)

func (r *RemoveRequest) String() string {
	return fmt.Sprintf("Remove [%v] %q dir=%v", &r.Header, r.Name, r.Dir)
}

// Respond replies that the entry was removed.
func (r *RemoveRequest) Respond() error {
	return r.respond(newBuffer(0))
}

// A RenameRequest asks to move OldName under r.Node to NewName under NewDir.
type RenameRequest struct {
	Header
	NewDir  NodeID
	OldName string
	NewName string
}

var _ Request = (*RenameRequest)(nil)

func (r *RenameRequest) String() string {
	return fmt.Sprintf("Rename [%v] %q to %v %q", &r.Header, r.OldName, r.NewDir, r.NewName)
}

// Respond replies that the rename took effect.
func (r *RenameRequest) Respond() error {
	return r.respond(newBuffer(0))
}

// An OpenRequest asks to open r.Node. Dir distinguishes OPENDIR from OPEN.
type OpenRequest struct {
	Header
	Dir   bool
	Flags uint32
}

var _ Request = (*OpenRequest)(nil)

func (r *OpenRequest) String() string {
	return fmt.Sprintf("Open [%v] dir=%v fl=%#x", &r.Header, r.Dir, r.Flags)
}

// Respond replies with the allocated handle.
func (r *OpenRequest) Respond(h HandleID) error {
	buf := newBuffer(unsafe.Sizeof(openOut{}))
	out := (*openOut)(buf.alloc(unsafe.Sizeof(openOut{})))
	out.Fh = uint64(h)
	return r.respond(buf)
}

// A CreateRequest asks to create a regular file under r.Node and open it in
// the same step.
type CreateRequest struct {
	Header
	Name  string
	Flags uint32
	Mode  uint32
	Umask uint32
}

var _ Request = (*CreateRequest)(nil)

func (r *CreateRequest) String() string {
	return fmt.Sprintf("Create [%v] %q fl=%#x mode=%#o", &r.Header, r.Name, r.Flags, r.Mode)
}

// Respond replies with the created entry and its open handle.
func (r *CreateRequest) Respond(e *Entry, h HandleID) error {
	buf := newBuffer(unsafe.Sizeof(entryOut{}) + unsafe.Sizeof(openOut{}))
	eOut := (*entryOut)(buf.alloc(unsafe.Sizeof(entryOut{})))
	e.store(eOut)
	oOut := (*openOut)(buf.alloc(unsafe.Sizeof(openOut{})))
	oOut.Fh = uint64(h)
	return r.respond(buf)
}

// A ReadRequest asks for bytes from an open file, or directory entries when
// Dir is set (READDIR). For directories Offset is an entry index, not a byte
// offset.
type ReadRequest struct {
	Header
	Dir    bool
	Handle HandleID
	Offset uint64
	Size   uint32
}

var _ Request = (*ReadRequest)(nil)

func (r *ReadRequest) String() string {
	return fmt.Sprintf("Read [%v] %v %d @%d dir=%v", &r.Header, r.Handle, r.Size, r.Offset, r.Dir)
}

// Respond replies with the read payload; for READDIR this is the packed
// dirent listing.
func (r *ReadRequest) Respond(data []byte) error {
	buf := newBuffer(uintptr(len(data)))
	buf = append(buf, data...)
	return r.respond(buf)
}

// A WriteRequest asks to store Data at Offset in an open file.
//
// Data aliases the connection's read buffer and is only valid until the next
// ReadRequest call.
type WriteRequest struct {
	Header
	Handle     HandleID
	Offset     uint64
	Data       []byte
	WriteFlags uint32
}

var _ Request = (*WriteRequest)(nil)

func (r *WriteRequest) String() string {
	return fmt.Sprintf("Write [%v] %v %d @%d", &r.Header, r.Handle, len(r.Data), r.Offset)
}

// Respond replies with the number of bytes accepted.
func (r *WriteRequest) Respond(n uint32) error {
	buf := newBuffer(unsafe.Sizeof(writeOut{}))
	out := (*writeOut)(buf.alloc(unsafe.Sizeof(writeOut{})))
	out.Size = n
	return r.respond(buf)
}

// A StatfsRequest asks for filesystem geometry.
type StatfsRequest struct {
	Header
}

var _ Request = (*StatfsRequest)(nil)

func (r *StatfsRequest) String() string {
	return fmt.Sprintf("Statfs [%v]", &r.Header)
}

// A StatfsResponse is the reply to a StatfsRequest.
type StatfsResponse struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Namelen uint32
	Frsize  uint32
}

// Respond replies with the given geometry.
func (r *StatfsRequest) Respond(resp *StatfsResponse) error {
	buf := newBuffer(unsafe.Sizeof(statfsOut{}))
	out := (*statfsOut)(buf.alloc(unsafe.Sizeof(statfsOut{})))
	out.St = kstatfs{
		Blocks:  resp.Blocks,
		Bfree:   resp.Bfree,
		Bavail:  resp.Bavail,
		Files:   resp.Files,
		Ffree:   resp.Ffree,
		Bsize:   resp.Bsize,
		Namelen: resp.Namelen,
		Frsize:  resp.Frsize,
	}
	return r.respond(buf)
}

// A ReleaseRequest closes an open handle. Dir distinguishes RELEASEDIR.
type ReleaseRequest struct {
	Header
	Dir    bool
	Handle HandleID
	Flags  uint32
}

var _ Request = (*ReleaseRequest)(nil)

func (r *ReleaseRequest) String() string {
	return fmt.Sprintf("Release [%v] %v dir=%v", &r.Header, r.Handle, r.Dir)
}

// Respond replies that the handle was released.
func (r *ReleaseRequest) Respond() error {
	return r.respond(newBuffer(0))
}

// A FlushRequest is sent when a file descriptor over an open handle is
// closed.
type FlushRequest struct {
	Header
	Handle HandleID
}

var _ Request = (*FlushRequest)(nil)

func (r *FlushRequest) String() string {
	return fmt.Sprintf("Flush [%v] %v", &r.Header, r.Handle)
}

// Respond replies that the flush succeeded.
func (r *FlushRequest) Respond() error {
	return r.respond(newBuffer(0))
}

// An AccessRequest asks whether r.Node may be accessed for the purposes in
// Mask.
type AccessRequest struct {
	Header
	Mask uint32
}

var _ Request = (*AccessRequest)(nil)

func (r *AccessRequest) String() string {
	return fmt.Sprintf("Access [%v] mask=%#x", &r.Header, r.Mask)
}

// Respond replies that access is allowed; use RespondError to deny.
func (r *AccessRequest) Respond() error {
	return r.respond(newBuffer(0))
}

// A DestroyRequest is sent when the filesystem is unmounted. The kernel does
// not wait for a reply and none is sent.
type DestroyRequest struct {
	Header
}

var _ Request = (*DestroyRequest)(nil)

func (r *DestroyRequest) String() string {
	return fmt.Sprintf("Destroy [%v]", &r.Header)
}

// An UnsupportedRequest is a recognized protocol opcode outside the subset
// this server implements (xattrs, locks, symlinks and the like). The caller
// replies with ENOSYS.
type UnsupportedRequest struct {
	Header
	Opcode uint32
}

var _ Request = (*UnsupportedRequest)(nil)

func (r *UnsupportedRequest) String() string {
	name, ok := opcodeNames[r.Opcode]
	if !ok {
		name = fmt.Sprintf("opcode %d", r.Opcode)
	}
	return fmt.Sprintf("%s [%v] (unsupported)", name, &r.Header)
}
