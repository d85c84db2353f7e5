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

// Package memfs serves a small in-memory filesystem over a FUSE device
// connection: a single dispatch goroutine reads requests, runs them against
// the node tree, and writes replies.
package memfs

import (
	"errors"
	"io"
	"strings"
	"sync/atomic"
	"time"

	"github.com/fuselite/fuselite/pkg/fuse"
	"github.com/fuselite/fuselite/pkg/log"
	"github.com/fuselite/fuselite/pkg/memtree"
	"github.com/fuselite/fuselite/pkg/perm"
)

// Session-fatal protocol violations, beyond what pkg/fuse reports.
var (
	// ErrInitExpected reports a request arriving before the INIT
	// handshake completed.
	ErrInitExpected = errors.New("memfs: request received before INIT")

	// ErrDuplicateInit reports a second INIT on an initialized session.
	ErrDuplicateInit = errors.New("memfs: duplicate INIT")
)

// INIT reply constants. MaxWrite and MaxPages are deliberately small; this
// is a correctness vehicle, not a throughput one.
const (
	initMaxWrite = 4096
	initMaxPages = 32
)

// pollInterval is how long the loop sleeps when a non-blocking device read
// finds no request pending.
const pollInterval = time.Millisecond

// A Server runs one FUSE session: it owns the node tree, the open-handle
// table and the permission evaluator, and drives the dispatch loop.
//
// Serve is the only goroutine that touches the tree and handles. Stop,
// InitDone and the Stats fields are safe to use from other goroutines.
type Server struct {
	conn    *fuse.Conn
	cfg     Config
	tree    *memtree.Tree
	eval    *perm.Evaluator
	handles *handleTable
	logger  *log.Logger

	Stats Stats

	maxFileSize uint64

	stop     atomic.Bool
	initDone atomic.Bool
}

// NewServer builds a session over conn. The tree starts with the root
// directory, hello.txt, and any configured seed entries; ownership of every
// node is the mount-time user and group.
func NewServer(conn *fuse.Conn, cfg Config, logger *log.Logger) (*Server, error) {
	tree := memtree.New(cfg.rootMode(), cfg.Mount.UserID, cfg.Mount.GroupID)
	hello, err := tree.Insert(fuse.RootID, "hello.txt", memtree.RegularFile, cfg.helloMode())
	if err != nil {
		return nil, err
	}
	hello.Content = []byte(HelloContent)

	s := &Server{
		conn:        conn,
		cfg:         cfg,
		tree:        tree,
		eval:        perm.New(cfg.Mount),
		handles:     newHandleTable(),
		logger:      logger,
		maxFileSize: cfg.maxFileSize(),
	}
	if err := s.seed(cfg.Seed); err != nil {
		return nil, err
	}
	return s, nil
}

// seed materializes manifest entries, creating intermediate directories as
// needed.
func (s *Server) seed(entries []SeedEntry) error {
	for _, e := range entries {
		bits, err := e.PermBits()
		if err != nil {
			return err
		}
		parts := strings.Split(strings.Trim(e.Path, "/"), "/")
		parent := fuse.RootID
		for _, part := range parts[:len(parts)-1] {
			dir, err := s.tree.LookupChild(parent, part)
			if errors.Is(err, memtree.ErrNoSuchEntry) {
				dir, err = s.tree.Insert(parent, part, memtree.Directory, s.cfg.rootMode())
			}
			if err != nil {
				return err
			}
			parent = dir.ID
		}
		name := parts[len(parts)-1]
		if e.Dir {
			_, err = s.tree.Insert(parent, name, memtree.Directory, 040000|bits)
		} else {
			var n *memtree.Node
			n, err = s.tree.Insert(parent, name, memtree.RegularFile, 0100000|bits)
			if err == nil {
				n.Content = []byte(e.Content)
			}
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Tree exposes the node table, for daemon-side inspection and tests.
func (s *Server) Tree() *memtree.Tree {
	return s.tree
}

// Stop asks the dispatch loop to exit before its next read. Safe to call
// from any goroutine; with a non-blocking device fd the loop notices within
// a poll interval.
func (s *Server) Stop() {
	s.stop.Store(true)
}

// InitDone reports whether the INIT handshake has completed.
func (s *Server) InitDone() bool {
	return s.initDone.Load()
}

// Serve runs the dispatch loop until the stop flag is raised, the kernel
// closes the connection, or a protocol violation occurs. A clean shutdown
// returns nil; EOF before INIT returns fuse.ErrClosedWithoutInit; protocol
// violations return the describing error.
//
// Handler failures are not loop failures: they turn into errno replies and
// the loop keeps serving.
func (s *Server) Serve() error {
	for !s.stop.Load() {
		req, err := s.conn.ReadRequest()
		if err == fuse.ErrAgain {
			time.Sleep(pollInterval)
			continue
		}
		if err == io.EOF {
			if !s.initDone.Load() {
				return fuse.ErrClosedWithoutInit
			}
			s.logger.Info("connection closed, session over")
			return nil
		}
		if err != nil {
			s.logger.Errorf("protocol violation: %v", err)
			return err
		}

		s.logger.Debugf("-> %v", req)

		init, isInit := req.(*fuse.InitRequest)
		switch {
		case isInit && s.initDone.Load():
			return ErrDuplicateInit
		case !isInit && !s.initDone.Load():
			return ErrInitExpected
		case isInit:
			if err := s.handleInit(init); err != nil {
				return err
			}
			if s.cfg.ExitAfterInit {
				s.logger.Info("exiting after INIT as configured")
				return nil
			}
			continue
		}

		if err := s.dispatch(req); err != nil {
			// Respond failed; the device is gone or truncating
			// replies. Nothing sensible left to do on this session.
			s.logger.Errorf("writing reply: %v", err)
			return err
		}
	}
	s.logger.Info("stop requested, session over")
	return nil
}

// handleInit runs the INIT handshake. An unsupported major version is
// answered with -EPROTO and ends the session.
func (s *Server) handleInit(r *fuse.InitRequest) error {
	s.Stats.InitFlags.Store(r.Flags)
	s.Stats.InitFlags2.Store(r.Flags2)
	s.Stats.InitMaxReadahead.Store(r.MaxReadahead)

	if r.Kernel.Major != fuse.ServerProtocol.Major {
		r.RespondError(fuse.EPROTO)
		return &fuse.OldVersionError{Kernel: r.Kernel, Supported: fuse.ServerProtocol}
	}

	resp := &fuse.InitResponse{
		Library:      fuse.ServerProtocol,
		MaxReadahead: r.MaxReadahead,
		Flags:        fuse.InitExt | fuse.InitMaxPages,
		MaxWrite:     initMaxWrite,
		MaxPages:     initMaxPages,
	}
	if err := r.Respond(resp); err != nil {
		return err
	}
	s.initDone.Store(true)
	s.logger.Infof("session initialized, kernel %v", r.Kernel)
	return nil
}

// dispatch runs one request through its handler. The returned error is a
// device write failure; handler errnos are consumed here as error replies.
func (s *Server) dispatch(req fuse.Request) error {
	var err error
	switch r := req.(type) {
	case *fuse.LookupRequest:
		err = s.handleLookup(r)
	case *fuse.ForgetRequest:
		s.handleForget(r)
	case *fuse.GetattrRequest:
		err = s.handleGetattr(r)
	case *fuse.SetattrRequest:
		err = s.handleSetattr(r)
	case *fuse.MknodRequest:
		err = s.handleMknod(r)
	case *fuse.MkdirRequest:
		err = s.handleMkdir(r)
	case *fuse.CreateRequest:
		err = s.handleCreate(r)
	case *fuse.RemoveRequest:
		err = s.handleRemove(r)
	case *fuse.RenameRequest:
		err = s.handleRename(r)
	case *fuse.OpenRequest:
		err = s.handleOpen(r)
	case *fuse.ReadRequest:
		err = s.handleRead(r)
	case *fuse.WriteRequest:
		err = s.handleWrite(r)
	case *fuse.StatfsRequest:
		err = s.handleStatfs(r)
	case *fuse.ReleaseRequest:
		err = s.handleRelease(r)
	case *fuse.FlushRequest:
		err = s.handleFlush(r)
	case *fuse.AccessRequest:
		err = s.handleAccess(r)
	case *fuse.DestroyRequest:
		s.handleDestroy(r)
	case *fuse.UnsupportedRequest:
		s.logger.Debugf("unsupported operation: %v", r)
		err = fuse.ENOSYS
	default:
		err = fuse.ENOSYS
	}

	if err == nil {
		return nil
	}
	if _, ok := err.(fuse.ErrorNumber); ok || isTreeError(err) {
		s.logger.Debugf("<- %v error: %v", req.Hdr().ID, err)
		return req.RespondError(treeErrno(err))
	}
	return err
}

// isTreeError reports whether err is a memtree sentinel (wrapped or not).
func isTreeError(err error) bool {
	for _, sentinel := range []error{
		memtree.ErrNoSuchNode,
		memtree.ErrNoSuchEntry,
		memtree.ErrNotADirectory,
		memtree.ErrAlreadyExists,
		memtree.ErrDirectoryNotEmpty,
		memtree.ErrCycle,
		memtree.ErrNoSpace,
		memtree.ErrNameTooLong,
	} {
		if errors.Is(err, sentinel) {
			return true
		}
	}
	return false
}

// treeErrno maps node-table sentinels onto wire errnos; anything else is
// passed through for RespondError to interpret.
func treeErrno(err error) error {
	switch {
	case errors.Is(err, memtree.ErrNoSuchNode), errors.Is(err, memtree.ErrNoSuchEntry):
		return fuse.ENOENT
	case errors.Is(err, memtree.ErrNotADirectory):
		return fuse.ENOTDIR
	case errors.Is(err, memtree.ErrAlreadyExists):
		return fuse.EEXIST
	case errors.Is(err, memtree.ErrDirectoryNotEmpty):
		return fuse.ENOTEMPTY
	case errors.Is(err, memtree.ErrCycle):
		return fuse.EINVAL
	case errors.Is(err, memtree.ErrNoSpace):
		return fuse.ENOSPC
	case errors.Is(err, memtree.ErrNameTooLong):
		return fuse.ENAMETOOLONG
	default:
		return err
	}
}
