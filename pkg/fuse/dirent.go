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
	"syscall"
	"unsafe"
)

// A Dirent is one entry in a READDIR listing.
type Dirent struct {
	// Inode this entry names.
	Ino uint64

	// Off is the offset the kernel passes back to resume the listing
	// after this entry. This server uses entry indexes, so Off is the
	// index of the entry following this one.
	Off uint64

	// Type of the entry, DT_Dir or DT_File here.
	Type DirentType

	// Name of the entry.
	Name string
}

// DirentType is the d_type of a directory entry.
type DirentType uint32

// The shift by 12 is the standard S_IFMT-to-d_type conversion.
const (
	DT_File DirentType = syscall.S_IFREG >> 12
	DT_Dir  DirentType = syscall.S_IFDIR >> 12
)

// AppendDirent appends the wire encoding of one directory entry to data and
// returns the resulting slice. Records are padded to 8-byte alignment.
func AppendDirent(data []byte, dir Dirent) []byte {
	de := dirent{
		Ino:     dir.Ino,
		Off:     dir.Off,
		Namelen: uint32(len(dir.Name)),
		Type:    uint32(dir.Type),
	}
	data = append(data, (*[uintptr(direntSize)]byte)(unsafe.Pointer(&de))[:]...)
	data = append(data, dir.Name...)
	n := direntSize + len(dir.Name)
	if n%8 != 0 {
		var pad [8]byte
		data = append(data, pad[:8-n%8]...)
	}
	return data
}

// DirentLen returns the padded encoded length of an entry with the given
// name length.
func DirentLen(namelen int) int {
	return (direntSize + namelen + 7) &^ 7
}
