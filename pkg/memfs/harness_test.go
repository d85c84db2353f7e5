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
	"encoding/binary"
	"os"
	"syscall"
	"testing"
	"time"

	"golang.org/x/sys/unix"

	"github.com/fuselite/fuselite/pkg/fuse"
	"github.com/fuselite/fuselite/pkg/log"
)

// The harness plays the kernel: it builds raw request frames and decodes
// raw replies, sharing no code with pkg/fuse so the two sides check each
// other. A seqpacket socketpair stands in for /dev/fuse; it preserves the
// one-message-per-read framing the device guarantees.

const (
	opLookup     = 1
	opForget     = 2
	opGetattr    = 3
	opSetattr    = 4
	opSymlink    = 6
	opMknod      = 8
	opMkdir      = 9
	opUnlink     = 10
	opRmdir      = 11
	opRename     = 12
	opOpen       = 14
	opRead       = 15
	opWrite      = 16
	opStatfs     = 17
	opRelease    = 18
	opFlush      = 25
	opInit       = 26
	opOpendir    = 27
	opReaddir    = 28
	opReleasedir = 29
	opAccess     = 34
	opCreate     = 35
	opDestroy    = 38
)

const (
	testUID = uint32(1000)
	testGID = uint32(1000)
)

var le = binary.LittleEndian

type session struct {
	t      *testing.T
	srv    *Server
	conn   *fuse.Conn
	kernel int // fd of the kernel end
	unique uint64
	uid    uint32
	gid    uint32

	served chan error
}

// newSession builds a server over a socketpair and starts Serve. The mount
// identity defaults to 1000:1000 unless cfg.Mount says otherwise.
func newSession(t *testing.T, cfg Config) *session {
	t.Helper()
	fds, err := unix.Socketpair(unix.AF_UNIX, unix.SOCK_SEQPACKET, 0)
	if err != nil {
		t.Fatalf("socketpair: %v", err)
	}
	if cfg.Mount.UserID == 0 && cfg.Mount.GroupID == 0 {
		cfg.Mount.UserID = testUID
		cfg.Mount.GroupID = testGID
	}

	conn := fuse.NewConn(os.NewFile(uintptr(fds[0]), "fuse-server-end"))
	srv, err := NewServer(conn, cfg, log.Discarder())
	if err != nil {
		t.Fatalf("expected server construction to succeed, got error: %v", err)
	}

	s := &session{
		t:      t,
		srv:    srv,
		conn:   conn,
		kernel: fds[1],
		uid:    cfg.Mount.UserID,
		gid:    cfg.Mount.GroupID,
		served: make(chan error, 1),
	}
	go func() {
		s.served <- srv.Serve()
		conn.Close()
	}()
	t.Cleanup(func() {
		unix.Close(s.kernel)
		s.wait()
	})
	return s
}

// wait returns Serve's result, once.
func (s *session) wait() error {
	select {
	case err := <-s.served:
		s.served <- err
		return err
	case <-time.After(5 * time.Second):
		s.t.Fatal("timed out waiting for Serve to return")
		return nil
	}
}

// end closes the kernel fd and expects a clean shutdown.
func (s *session) end() {
	s.t.Helper()
	unix.Close(s.kernel)
	if err := s.wait(); err != nil {
		s.t.Errorf("expected clean session end, got error: %v", err)
	}
}

// send frames one request and writes it. It returns the unique id used.
func (s *session) send(opcode uint32, nodeid uint64, body []byte) uint64 {
	s.t.Helper()
	s.unique++
	frame := make([]byte, 40+len(body))
	le.PutUint32(frame[0:], uint32(len(frame)))
	le.PutUint32(frame[4:], opcode)
	le.PutUint64(frame[8:], s.unique)
	le.PutUint64(frame[16:], nodeid)
	le.PutUint32(frame[24:], s.uid)
	le.PutUint32(frame[28:], s.gid)
	le.PutUint32(frame[32:], 4242) // pid
	copy(frame[40:], body)
	if _, err := unix.Write(s.kernel, frame); err != nil {
		s.t.Fatalf("writing request: %v", err)
	}
	return s.unique
}

// sendRaw writes an arbitrary frame without touching the unique counter.
func (s *session) sendRaw(frame []byte) {
	s.t.Helper()
	if _, err := unix.Write(s.kernel, frame); err != nil {
		s.t.Fatalf("writing raw frame: %v", err)
	}
}

type reply struct {
	unique uint64
	errno  int32
	body   []byte
}

// recv reads one reply frame.
func (s *session) recv() reply {
	s.t.Helper()
	buf := make([]byte, 64*1024)
	var n int
	var err error
	for {
		n, err = unix.Read(s.kernel, buf)
		if err != unix.EINTR {
			break
		}
	}
	if err != nil {
		s.t.Fatalf("reading reply: %v", err)
	}
	if n < 16 {
		s.t.Fatalf("reply shorter than its header: %d bytes", n)
	}
	if got := le.Uint32(buf[0:]); got != uint32(n) {
		s.t.Fatalf("reply length: header says %d, read %d", got, n)
	}
	return reply{
		unique: le.Uint64(buf[8:]),
		errno:  int32(le.Uint32(buf[4:])),
		body:   append([]byte(nil), buf[16:n]...),
	}
}

// roundTrip sends and receives, checking the unique id matches.
func (s *session) roundTrip(opcode uint32, nodeid uint64, body []byte) reply {
	s.t.Helper()
	unique := s.send(opcode, nodeid, body)
	r := s.recv()
	if r.unique != unique {
		s.t.Fatalf("reply unique: expected %d, got %d", unique, r.unique)
	}
	return r
}

// expectErrno asserts the reply is an error with the given errno.
func (s *session) expectErrno(r reply, errno syscall.Errno) {
	s.t.Helper()
	if r.errno != -int32(errno) {
		s.t.Fatalf("expected errno -%d (%v), got %d", int32(errno), errno, r.errno)
	}
	if len(r.body) != 0 {
		s.t.Fatalf("expected empty error reply body, got %d bytes", len(r.body))
	}
}

// expectOK asserts a success reply.
func (s *session) expectOK(r reply) {
	s.t.Helper()
	if r.errno != 0 {
		s.t.Fatalf("expected success reply, got errno %d", r.errno)
	}
}

// Request body builders.

func initBody(major, minor, maxReadahead, flags, flags2 uint32) []byte {
	b := make([]byte, 64)
	le.PutUint32(b[0:], major)
	le.PutUint32(b[4:], minor)
	le.PutUint32(b[8:], maxReadahead)
	le.PutUint32(b[12:], flags)
	le.PutUint32(b[16:], flags2)
	return b
}

func lookupBody(name string) []byte {
	return append([]byte(name), 0)
}

func forgetBody(nlookup uint64) []byte {
	b := make([]byte, 8)
	le.PutUint64(b, nlookup)
	return b
}

func getattrBody() []byte {
	return make([]byte, 16)
}

const (
	fattrMode = 1 << 0
	fattrSize = 1 << 3
)

func setattrBody(valid uint32, size uint64, mode uint32) []byte {
	b := make([]byte, 88)
	le.PutUint32(b[0:], valid)
	le.PutUint64(b[16:], size)
	le.PutUint32(b[68:], mode)
	return b
}

func mknodBody(mode uint32, name string) []byte {
	b := make([]byte, 16)
	le.PutUint32(b[0:], mode)
	return append(append(b, name...), 0)
}

func mkdirBody(mode uint32, name string) []byte {
	b := make([]byte, 8)
	le.PutUint32(b[0:], mode)
	return append(append(b, name...), 0)
}

func renameBody(newDir uint64, oldName, newName string) []byte {
	b := make([]byte, 8)
	le.PutUint64(b, newDir)
	b = append(append(b, oldName...), 0)
	return append(append(b, newName...), 0)
}

func openBody(flags uint32) []byte {
	b := make([]byte, 8)
	le.PutUint32(b[0:], flags)
	return b
}

func createBody(flags, mode uint32, name string) []byte {
	b := make([]byte, 16)
	le.PutUint32(b[0:], flags)
	le.PutUint32(b[4:], mode)
	return append(append(b, name...), 0)
}

func readBody(fh, offset uint64, size uint32) []byte {
	b := make([]byte, 40)
	le.PutUint64(b[0:], fh)
	le.PutUint64(b[8:], offset)
	le.PutUint32(b[16:], size)
	return b
}

func writeBody(fh, offset uint64, data []byte) []byte {
	b := make([]byte, 40)
	le.PutUint64(b[0:], fh)
	le.PutUint64(b[8:], offset)
	le.PutUint32(b[16:], uint32(len(data)))
	return append(b, data...)
}

func releaseBody(fh uint64) []byte {
	b := make([]byte, 24)
	le.PutUint64(b[0:], fh)
	return b
}

func flushBody(fh uint64) []byte {
	b := make([]byte, 24)
	le.PutUint64(b[0:], fh)
	return b
}

func accessBody(mask uint32) []byte {
	b := make([]byte, 8)
	le.PutUint32(b[0:], mask)
	return b
}

// Reply body views.

type entryReply struct {
	nodeid uint64
	attr   attrReply
}

type attrReply struct {
	ino  uint64
	size uint64
	mode uint32
	uid  uint32
	gid  uint32
}

func parseAttr(b []byte) attrReply {
	return attrReply{
		ino:  le.Uint64(b[0:]),
		size: le.Uint64(b[8:]),
		mode: le.Uint32(b[60:]),
		uid:  le.Uint32(b[68:]),
		gid:  le.Uint32(b[72:]),
	}
}

func parseEntry(t *testing.T, b []byte) entryReply {
	t.Helper()
	if len(b) != 128 {
		t.Fatalf("entry reply body: expected 128 bytes, got %d", len(b))
	}
	return entryReply{
		nodeid: le.Uint64(b[0:]),
		attr:   parseAttr(b[40:]),
	}
}

func parseAttrOut(t *testing.T, b []byte) attrReply {
	t.Helper()
	if len(b) != 104 {
		t.Fatalf("attr reply body: expected 104 bytes, got %d", len(b))
	}
	return parseAttr(b[16:])
}

func parseOpen(t *testing.T, b []byte) uint64 {
	t.Helper()
	if len(b) != 16 {
		t.Fatalf("open reply body: expected 16 bytes, got %d", len(b))
	}
	return le.Uint64(b[0:])
}

func parseCreate(t *testing.T, b []byte) (entryReply, uint64) {
	t.Helper()
	if len(b) != 144 {
		t.Fatalf("create reply body: expected 144 bytes, got %d", len(b))
	}
	return parseEntry(t, b[:128]), le.Uint64(b[128:])
}

func parseWrite(t *testing.T, b []byte) uint32 {
	t.Helper()
	if len(b) != 8 {
		t.Fatalf("write reply body: expected 8 bytes, got %d", len(b))
	}
	return le.Uint32(b[0:])
}

type direntReply struct {
	ino  uint64
	off  uint64
	typ  uint32
	name string
}

func parseDirents(t *testing.T, b []byte) []direntReply {
	t.Helper()
	var out []direntReply
	for len(b) > 0 {
		if len(b) < 24 {
			t.Fatalf("truncated dirent record: %d bytes left", len(b))
		}
		namelen := int(le.Uint32(b[16:]))
		reclen := (24 + namelen + 7) &^ 7
		if len(b) < reclen {
			t.Fatalf("dirent record of %d bytes in %d remaining", reclen, len(b))
		}
		out = append(out, direntReply{
			ino:  le.Uint64(b[0:]),
			off:  le.Uint64(b[8:]),
			typ:  le.Uint32(b[20:]),
			name: string(b[24 : 24+namelen]),
		})
		b = b[reclen:]
	}
	return out
}

// Session-level conveniences.

// init performs the INIT handshake and sanity-checks the negotiated reply.
func (s *session) init() {
	s.t.Helper()
	r := s.roundTrip(opInit, 0, initBody(7, 39, 65536, 0x40400000, 0))
	s.expectOK(r)
	if len(r.body) != 64 {
		s.t.Fatalf("init reply body: expected 64 bytes, got %d", len(r.body))
	}
	if major := le.Uint32(r.body[0:]); major != 7 {
		s.t.Fatalf("init major: expected 7, got %d", major)
	}
}

// lookup resolves name under parent, failing the test on error replies.
func (s *session) lookup(parent uint64, name string) entryReply {
	s.t.Helper()
	r := s.roundTrip(opLookup, parent, lookupBody(name))
	s.expectOK(r)
	return parseEntry(s.t, r.body)
}

// open opens a node and returns the handle.
func (s *session) open(node uint64, flags uint32) uint64 {
	s.t.Helper()
	r := s.roundTrip(opOpen, node, openBody(flags))
	s.expectOK(r)
	return parseOpen(s.t, r.body)
}

// read reads from an open file handle.
func (s *session) read(node, fh, offset uint64, size uint32) []byte {
	s.t.Helper()
	r := s.roundTrip(opRead, node, readBody(fh, offset, size))
	s.expectOK(r)
	return r.body
}
