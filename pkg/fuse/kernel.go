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

import "unsafe"

// Raw wire structures, overlaid on the byte buffers read from and written to
// the device fd. Field order and widths mirror include/uapi/linux/fuse.h and
// must not be rearranged.

type inHeader struct {
	Len         uint32
	Opcode      uint32
	Unique      uint64
	Nodeid      uint64
	Uid         uint32
	Gid         uint32
	Pid         uint32
	TotalExtlen uint16
	padding     uint16
}

type outHeader struct {
	Len    uint32
	Error  int32 // negative errno, 0 on success
	Unique uint64
}

type initIn struct {
	Major        uint32
	Minor        uint32
	MaxReadahead uint32
	Flags        uint32
	Flags2       uint32
	Unused       [11]uint32
}

type initOut struct {
	Major               uint32
	Minor               uint32
	MaxReadahead        uint32
	Flags               uint32
	MaxBackground       uint16
	CongestionThreshold uint16
	MaxWrite            uint32
	TimeGran            uint32
	MaxPages            uint16
	MapAlignment        uint16
	Flags2              uint32
	Unused              [7]uint32
}

type attr struct {
	Ino       uint64
	Size      uint64
	Blocks    uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Nlink     uint32
	Uid       uint32
	Gid       uint32
	Rdev      uint32
	Blksize   uint32
	Flags     uint32
}

type entryOut struct {
	Nodeid         uint64
	Generation     uint64
	EntryValid     uint64
	AttrValid      uint64
	EntryValidNsec uint32
	AttrValidNsec  uint32
	Attr           attr
}

type attrOut struct {
	AttrValid     uint64
	AttrValidNsec uint32
	Dummy         uint32
	Attr          attr
}

type forgetIn struct {
	Nlookup uint64
}

type getattrIn struct {
	GetattrFlags uint32
	Dummy        uint32
	Fh           uint64
}

type setattrIn struct {
	Valid     uint32
	Padding   uint32
	Fh        uint64
	Size      uint64
	LockOwner uint64
	Atime     uint64
	Mtime     uint64
	Ctime     uint64
	AtimeNsec uint32
	MtimeNsec uint32
	CtimeNsec uint32
	Mode      uint32
	Unused4   uint32
	Uid       uint32
	Gid       uint32
	Unused5   uint32
}

type mknodIn struct {
	Mode    uint32
	Rdev    uint32
	Umask   uint32
	Padding uint32
}

type mkdirIn struct {
	Mode  uint32
	Umask uint32
}

type renameIn struct {
	Newdir uint64
}

type openIn struct {
	Flags     uint32
	OpenFlags uint32
}

type openOut struct {
	Fh        uint64
	OpenFlags uint32
	Padding   uint32
}

type createIn struct {
	Flags   uint32
	Mode    uint32
	Umask   uint32
	Padding uint32
}

type readIn struct {
	Fh        uint64
	Offset    uint64
	Size      uint32
	ReadFlags uint32
	LockOwner uint64
	Flags     uint32
	Padding   uint32
}

type writeIn struct {
	Fh         uint64
	Offset     uint64
	Size       uint32
	WriteFlags uint32
	LockOwner  uint64
	Flags      uint32
	Padding    uint32
}

type writeOut struct {
	Size    uint32
	Padding uint32
}

type kstatfs struct {
	Blocks  uint64
	Bfree   uint64
	Bavail  uint64
	Files   uint64
	Ffree   uint64
	Bsize   uint32
	Namelen uint32
	Frsize  uint32
	Padding uint32
	Spare   [6]uint32
}

type statfsOut struct {
	St kstatfs
}

type releaseIn struct {
	Fh           uint64
	Flags        uint32
	ReleaseFlags uint32
	LockOwner    uint64
}

type flushIn struct {
	Fh        uint64
	Unused    uint32
	Padding   uint32
	LockOwner uint64
}

type accessIn struct {
	Mask    uint32
	Padding uint32
}

type dirent struct {
	Ino     uint64
	Off     uint64
	Namelen uint32
	Type    uint32
	// name bytes follow, padded to an 8-byte boundary
}

const (
	inHeaderSize  = int(unsafe.Sizeof(inHeader{}))
	outHeaderSize = int(unsafe.Sizeof(outHeader{}))
	initInSize    = int(unsafe.Sizeof(initIn{}))
	direntSize    = int(unsafe.Sizeof(dirent{}))
)

// Opcodes. The full closed set the kernel may legitimately send; anything
// outside it is a framing-level protocol violation.
const (
	opLookup      = 1
	opForget      = 2
	opGetattr     = 3
	opSetattr     = 4
	opReadlink    = 5
	opSymlink     = 6
	opMknod       = 8
	opMkdir       = 9
	opUnlink      = 10
	opRmdir       = 11
	opRename      = 12
	opLink        = 13
	opOpen        = 14
	opRead        = 15
	opWrite       = 16
	opStatfs      = 17
	opRelease     = 18
	opFsync       = 20
	opSetxattr    = 21
	opGetxattr    = 22
	opListxattr   = 23
	opRemovexattr = 24
	opFlush       = 25
	opInit        = 26
	opOpendir     = 27
	opReaddir     = 28
	opReleasedir  = 29
	opFsyncdir    = 30
	opGetlk       = 31
	opSetlk       = 32
	opSetlkw      = 33
	opAccess      = 34
	opCreate      = 35
	opInterrupt   = 36
	opBmap        = 37
	opDestroy     = 38
	opIoctl       = 39
	opPoll        = 40
	opNotifyReply = 41
	opBatchForget = 42
	opFallocate   = 43
	opReaddirplus = 44
	opRename2     = 45
	opLseek       = 46
	opCopyFileRng = 47
	opSetupMapng  = 48
	opRemoveMapng = 49
	opSyncfs      = 50
	opTmpfile     = 51
)

var opcodeNames = map[uint32]string{
	opLookup:      "Lookup",
	opForget:      "Forget",
	opGetattr:     "Getattr",
	opSetattr:     "Setattr",
	opReadlink:    "Readlink",
	opSymlink:     "Symlink",
	opMknod:       "Mknod",
	opMkdir:       "Mkdir",
	opUnlink:      "Unlink",
	opRmdir:       "Rmdir",
	opRename:      "Rename",
	opLink:        "Link",
	opOpen:        "Open",
	opRead:        "Read",
	opWrite:       "Write",
	opStatfs:      "Statfs",
	opRelease:     "Release",
	opFsync:       "Fsync",
	opSetxattr:    "Setxattr",
	opGetxattr:    "Getxattr",
	opListxattr:   "Listxattr",
	opRemovexattr: "Removexattr",
	opFlush:       "Flush",
	opInit:        "Init",
	opOpendir:     "Opendir",
	opReaddir:     "Readdir",
	opReleasedir:  "Releasedir",
	opFsyncdir:    "Fsyncdir",
	opGetlk:       "Getlk",
	opSetlk:       "Setlk",
	opSetlkw:      "Setlkw",
	opAccess:      "Access",
	opCreate:      "Create",
	opInterrupt:   "Interrupt",
	opBmap:        "Bmap",
	opDestroy:     "Destroy",
	opIoctl:       "Ioctl",
	opPoll:        "Poll",
	opNotifyReply: "NotifyReply",
	opBatchForget: "BatchForget",
	opFallocate:   "Fallocate",
	opReaddirplus: "Readdirplus",
	opRename2:     "Rename2",
	opLseek:       "Lseek",
	opCopyFileRng: "CopyFileRange",
	opSetupMapng:  "SetupMapping",
	opRemoveMapng: "RemoveMapping",
	opSyncfs:      "Syncfs",
	opTmpfile:     "Tmpfile",
}

// InitFlags are the feature bits exchanged during the INIT handshake. Only
// the bits this server advertises are named.
type InitFlags uint32

const (
	// InitMaxPages signals that initOut.MaxPages is meaningful.
	InitMaxPages InitFlags = 1 << 22
	// InitExt signals support for the extended (flags2-bearing) handshake.
	InitExt InitFlags = 1 << 30
)

// Setattr valid bits (subset the server honors).
const (
	fattrMode = 1 << 0
	fattrUID  = 1 << 1
	fattrGID  = 1 << 2
	fattrSize = 1 << 3
)
