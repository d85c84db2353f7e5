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
	"bytes"
	"unsafe"
)

// parseRequest converts one kernel message into a typed Request. Strict
// framing: the declared header length must equal len(b) and every body must
// be at least as long as its opcode requires. Do not trust the kernel to
// hand us well-formed data.
func parseRequest(sink replySink, b []byte) (Request, error) {
	if len(b) < inHeaderSize {
		return nil, &FramingError{Read: len(b), Want: inHeaderSize}
	}
	h := (*inHeader)(unsafe.Pointer(&b[0]))
	if h.Len != uint32(len(b)) {
		return nil, &FramingError{Opcode: h.Opcode, Read: len(b), Want: int(h.Len)}
	}

	hdr := Header{
		ID:   RequestID(h.Unique),
		Node: NodeID(h.Nodeid),
		Uid:  h.Uid,
		Gid:  h.Gid,
		Pid:  h.Pid,
		sink: sink,
	}
	payload := b[inHeaderSize:]

	short := func(want uintptr) error {
		return &FramingError{Opcode: h.Opcode, Read: len(b), Want: inHeaderSize + int(want)}
	}
	data := func() unsafe.Pointer {
		return unsafe.Pointer(&payload[0])
	}

	switch h.Opcode {
	case opInit:
		if len(payload) < initInSize {
			return nil, short(uintptr(initInSize))
		}
		in := (*initIn)(data())
		return &InitRequest{
			Header:       hdr,
			Kernel:       Protocol{in.Major, in.Minor},
			MaxReadahead: in.MaxReadahead,
			Flags:        in.Flags,
			Flags2:       in.Flags2,
		}, nil

	case opLookup:
		name, ok := nulTerminated(payload)
		if !ok {
			return nil, short(1)
		}
		return &LookupRequest{Header: hdr, Name: name}, nil

	case opForget:
		if uintptr(len(payload)) < unsafe.Sizeof(forgetIn{}) {
			return nil, short(unsafe.Sizeof(forgetIn{}))
		}
		in := (*forgetIn)(data())
		return &ForgetRequest{Header: hdr, N: in.Nlookup}, nil

	case opGetattr:
		if uintptr(len(payload)) < unsafe.Sizeof(getattrIn{}) {
			return nil, short(unsafe.Sizeof(getattrIn{}))
		}
		in := (*getattrIn)(data())
		return &GetattrRequest{
			Header: hdr,
			Flags:  in.GetattrFlags,
			Handle: HandleID(in.Fh),
		}, nil

	case opSetattr:
		if uintptr(len(payload)) < unsafe.Sizeof(setattrIn{}) {
			return nil, short(unsafe.Sizeof(setattrIn{}))
		}
		in := (*setattrIn)(data())
		return &SetattrRequest{
			Header: hdr,
			Valid:  SetattrValid(in.Valid),
			Handle: HandleID(in.Fh),
			Size:   in.Size,
			Mode:   in.Mode,
			Uid:    in.Uid,
			Gid:    in.Gid,
		}, nil

	case opMknod:
		size := unsafe.Sizeof(mknodIn{})
		if uintptr(len(payload)) < size+1 {
			return nil, short(size + 1)
		}
		in := (*mknodIn)(data())
		name, ok := firstName(payload[size:])
		if !ok {
			return nil, short(size + 1)
		}
		return &MknodRequest{
			Header: hdr,
			Name:   name,
			Mode:   in.Mode,
			Rdev:   in.Rdev,
			Umask:  in.Umask,
		}, nil

	case opMkdir:
		size := unsafe.Sizeof(mkdirIn{})
		if uintptr(len(payload)) < size+1 {
			return nil, short(size + 1)
		}
		in := (*mkdirIn)(data())
		name, ok := firstName(payload[size:])
		if !ok {
			return nil, short(size + 1)
		}
		return &MkdirRequest{
			Header: hdr,
			Name:   name,
			Mode:   in.Mode,
			Umask:  in.Umask,
		}, nil

	case opUnlink, opRmdir:
		name, ok := nulTerminated(payload)
		if !ok {
			return nil, short(1)
		}
		return &RemoveRequest{
			Header: hdr,
			Name:   name,
			Dir:    h.Opcode == opRmdir,
		}, nil

	case opRename:
		size := unsafe.Sizeof(renameIn{})
		// shortest legal payload: struct + "a\0b\0"
		if uintptr(len(payload)) < size+4 {
			return nil, short(size + 4)
		}
		in := (*renameIn)(data())
		oldNew := payload[size:]
		if oldNew[len(oldNew)-1] != '\x00' {
			return nil, short(size + 4)
		}
		i := bytes.IndexByte(oldNew, '\x00')
		if i < 0 || i == len(oldNew)-1 {
			return nil, short(size + 4)
		}
		return &RenameRequest{
			Header:  hdr,
			NewDir:  NodeID(in.Newdir),
			OldName: string(oldNew[:i]),
			NewName: string(oldNew[i+1 : len(oldNew)-1]),
		}, nil

	case opOpen, opOpendir:
		if uintptr(len(payload)) < unsafe.Sizeof(openIn{}) {
			return nil, short(unsafe.Sizeof(openIn{}))
		}
		in := (*openIn)(data())
		return &OpenRequest{
			Header: hdr,
			Dir:    h.Opcode == opOpendir,
			Flags:  in.Flags,
		}, nil

	case opCreate:
		size := unsafe.Sizeof(createIn{})
		if uintptr(len(payload)) < size+1 {
			return nil, short(size + 1)
		}
		in := (*createIn)(data())
		name, ok := firstName(payload[size:])
		if !ok {
			return nil, short(size + 1)
		}
		return &CreateRequest{
			Header: hdr,
			Name:   name,
			Flags:  in.Flags,
			Mode:   in.Mode,
			Umask:  in.Umask,
		}, nil

	case opRead, opReaddir:
		if uintptr(len(payload)) < unsafe.Sizeof(readIn{}) {
			return nil, short(unsafe.Sizeof(readIn{}))
		}
		in := (*readIn)(data())
		return &ReadRequest{
			Header: hdr,
			Dir:    h.Opcode == opReaddir,
			Handle: HandleID(in.Fh),
			Offset: in.Offset,
			Size:   in.Size,
		}, nil

	case opWrite:
		size := unsafe.Sizeof(writeIn{})
		if uintptr(len(payload)) < size {
			return nil, short(size)
		}
		in := (*writeIn)(data())
		rest := payload[size:]
		if uint32(len(rest)) < in.Size {
			return nil, short(size + uintptr(in.Size))
		}
		return &WriteRequest{
			Header:     hdr,
			Handle:     HandleID(in.Fh),
			Offset:     in.Offset,
			Data:       rest[:in.Size],
			WriteFlags: in.WriteFlags,
		}, nil

	case opStatfs:
		return &StatfsRequest{Header: hdr}, nil

	case opRelease, opReleasedir:
		if uintptr(len(payload)) < unsafe.Sizeof(releaseIn{}) {
			return nil, short(unsafe.Sizeof(releaseIn{}))
		}
		in := (*releaseIn)(data())
		return &ReleaseRequest{
			Header: hdr,
			Dir:    h.Opcode == opReleasedir,
			Handle: HandleID(in.Fh),
			Flags:  in.Flags,
		}, nil

	case opFlush:
		if uintptr(len(payload)) < unsafe.Sizeof(flushIn{}) {
			return nil, short(unsafe.Sizeof(flushIn{}))
		}
		in := (*flushIn)(data())
		return &FlushRequest{Header: hdr, Handle: HandleID(in.Fh)}, nil

	case opAccess:
		if uintptr(len(payload)) < unsafe.Sizeof(accessIn{}) {
			return nil, short(unsafe.Sizeof(accessIn{}))
		}
		in := (*accessIn)(data())
		return &AccessRequest{Header: hdr, Mask: in.Mask}, nil

	case opDestroy:
		return &DestroyRequest{Header: hdr}, nil

	default:
		if _, known := opcodeNames[h.Opcode]; known {
			return &UnsupportedRequest{Header: hdr, Opcode: h.Opcode}, nil
		}
		return nil, &UnknownOpcodeError{Opcode: h.Opcode}
	}
}

// nulTerminated interprets the whole payload as a single NUL-terminated
// name.
func nulTerminated(b []byte) (string, bool) {
	if len(b) == 0 || b[len(b)-1] != '\x00' {
		return "", false
	}
	return string(b[:len(b)-1]), true
}

// firstName extracts a NUL-terminated name that may be followed by protocol
// padding.
func firstName(b []byte) (string, bool) {
	i := bytes.IndexByte(b, '\x00')
	if i < 0 {
		return "", false
	}
	return string(b[:i]), true
}
