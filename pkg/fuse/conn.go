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
	"io"
	"os"
	"unsafe"

	"golang.org/x/sys/unix"
)

// BufSize is the size of the connection's request buffer. It bounds the
// largest request the kernel may deliver, and therefore the max_write this
// server can advertise.
const BufSize = 64 * 1024

// A Conn is one session's connection to the kernel FUSE driver: a /dev/fuse
// fd (or, in tests, anything else that speaks the same framing).
//
// Conn is intended for a single reader: ReadRequest reuses one buffer, so a
// request and any byte slices derived from it are invalidated by the next
// ReadRequest call. Replies may be written from the same goroutine only;
// that is the protocol's natural shape here, one request in flight at a
// time.
type Conn struct {
	dev   *os.File
	devFd int
	buf   []byte
}

// NewConn wraps an already-open device fd. The Conn takes ownership; Close
// closes the file.
//
// The fd is captured once here; os.File.Fd would otherwise flip the
// descriptor back to blocking mode on every use.
func NewConn(dev *os.File) *Conn {
	return &Conn{
		dev:   dev,
		devFd: int(dev.Fd()),
		buf:   make([]byte, BufSize),
	}
}

// Close closes the device fd. A dispatch loop blocked in ReadRequest is
// woken with an error.
func (c *Conn) Close() error {
	return c.dev.Close()
}

// SetNonblock switches the device fd between blocking and non-blocking
// reads. Non-blocking mode makes ReadRequest return ErrAgain on an empty
// queue, letting the dispatch loop poll its stop flag.
func (c *Conn) SetNonblock(nonblocking bool) error {
	return unix.SetNonblock(c.devFd, nonblocking)
}

func (c *Conn) fd() int {
	return c.devFd
}

// ReadRequest returns the next request from the kernel.
//
// io.EOF reports an orderly end of session (fd closed or filesystem
// unmounted). ErrAgain reports an empty queue on a non-blocking fd. Any
// other error is a protocol violation and the session must not continue.
func (c *Conn) ReadRequest() (Request, error) {
	var n int
	var err error
	for {
		n, err = unix.Read(c.fd(), c.buf)
		if err == unix.EINTR {
			continue
		}
		break
	}
	switch {
	case err == unix.EAGAIN:
		return nil, ErrAgain
	case err == unix.ENODEV, err == unix.ENOTCONN:
		// The kernel tears the device down on unmount.
		return nil, io.EOF
	case err != nil:
		return nil, err
	case n == 0:
		return nil, io.EOF
	}
	return parseRequest(c, c.buf[:n])
}

// writeReply frames and writes one reply buffer.
func (c *Conn) writeReply(buf buffer) error {
	out := (*outHeader)(unsafe.Pointer(&buf[0]))
	out.Len = uint32(len(buf))
	n, err := unix.Write(c.fd(), buf)
	if err != nil {
		return err
	}
	if n != len(buf) {
		return fmt.Errorf("fuse: short reply write: %d of %d bytes", n, len(buf))
	}
	return nil
}
