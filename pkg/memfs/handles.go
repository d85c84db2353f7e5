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

import "github.com/fuselite/fuselite/pkg/fuse"

// An openHandle records what an OPEN/OPENDIR/CREATE reply's fh refers to.
type openHandle struct {
	node     fuse.NodeID
	dir      bool
	writable bool
}

// handleTable allocates open handles from a session-local counter. Ids are
// never reused within a session, so a released or fabricated handle fails
// lookup rather than aliasing a live one.
type handleTable struct {
	next fuse.HandleID
	open map[fuse.HandleID]*openHandle
}

func newHandleTable() *handleTable {
	return &handleTable{
		next: 1,
		open: make(map[fuse.HandleID]*openHandle),
	}
}

func (t *handleTable) alloc(node fuse.NodeID, dir, writable bool) fuse.HandleID {
	h := t.next
	t.next++
	t.open[h] = &openHandle{node: node, dir: dir, writable: writable}
	return h
}

func (t *handleTable) get(h fuse.HandleID) (*openHandle, bool) {
	oh, ok := t.open[h]
	return oh, ok
}

func (t *handleTable) release(h fuse.HandleID) bool {
	if _, ok := t.open[h]; !ok {
		return false
	}
	delete(t.open, h)
	return true
}
