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
	"fmt"
	"syscall"
)

// An ErrorNumber is an error with a specific errno.
//
// Handler errors that implement ErrorNumber control the errno sent back to
// the kernel; anything else is reported as the generic DefaultErrno.
type ErrorNumber interface {
	Errno() Errno
}

// Errno implements Error and ErrorNumber using a syscall.Errno.
type Errno syscall.Errno

const (
	ENOENT    = Errno(syscall.ENOENT)
	EACCES    = Errno(syscall.EACCES)
	EEXIST    = Errno(syscall.EEXIST)
	ENOTDIR   = Errno(syscall.ENOTDIR)
	EISDIR    = Errno(syscall.EISDIR)
	ENOTEMPTY = Errno(syscall.ENOTEMPTY)
	EINVAL    = Errno(syscall.EINVAL)
	ENOSYS    = Errno(syscall.ENOSYS)
	EPROTO    = Errno(syscall.EPROTO)
	EBADF     = Errno(syscall.EBADF)
	EFBIG     = Errno(syscall.EFBIG)
	ENOSPC    = Errno(syscall.ENOSPC)
	EIO       = Errno(syscall.EIO)
	EPERM     = Errno(syscall.EPERM)

	ENAMETOOLONG = Errno(syscall.ENAMETOOLONG)
)

// DefaultErrno is used when a handler error does not implement ErrorNumber.
const DefaultErrno = EIO

var errnoNames = map[Errno]string{
	ENOENT:    "ENOENT",
	EACCES:    "EACCES",
	EEXIST:    "EEXIST",
	ENOTDIR:   "ENOTDIR",
	EISDIR:    "EISDIR",
	ENOTEMPTY: "ENOTEMPTY",
	EINVAL:    "EINVAL",
	ENOSYS:    "ENOSYS",
	EPROTO:    "EPROTO",
	EBADF:     "EBADF",
	EFBIG:     "EFBIG",
	ENOSPC:    "ENOSPC",
	EIO:       "EIO",
	EPERM:     "EPERM",

	ENAMETOOLONG: "ENAMETOOLONG",
}

var _ = ErrorNumber(Errno(0))
var _ = error(Errno(0))

func (e Errno) Errno() Errno {
	return e
}

func (e Errno) Error() string {
	return syscall.Errno(e).Error()
}

func (e Errno) String() string {
	return e.ErrnoName()
}

// ErrnoName returns the short non-numeric identifier, e.g. "ENOENT".
func (e Errno) ErrnoName() string {
	if s, ok := errnoNames[e]; ok {
		return s
	}
	return fmt.Sprintf("errno %d", int(e))
}
