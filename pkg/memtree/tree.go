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

// Package memtree owns the in-memory filesystem tree: an arena of nodes
// addressed by numeric id, with parent links stored as ids and children as
// an ordered name-to-id mapping. There are no pointers between nodes, so
// there is nothing to cycle-collect; the rename cycle check walks ancestor
// ids instead.
//
// The tree is not safe for concurrent use. The serving model gives each
// session exactly one dispatch goroutine, which is the only code that
// touches the tree.
package memtree

import (
	"errors"
	"fmt"

	"github.com/google/btree"

	"github.com/fuselite/fuselite/pkg/fuse"
)

// Lookup and mutation failures. Handlers translate these into negative
// errnos with errors.Is.
var (
	ErrNoSuchNode        = errors.New("memtree: no such node")
	ErrNoSuchEntry       = errors.New("memtree: no such directory entry")
	ErrNotADirectory     = errors.New("memtree: not a directory")
	ErrAlreadyExists     = errors.New("memtree: entry already exists")
	ErrDirectoryNotEmpty = errors.New("memtree: directory not empty")
	ErrCycle             = errors.New("memtree: rename would create a cycle")
	ErrNoSpace           = errors.New("memtree: node table full")
	ErrNameTooLong       = errors.New("memtree: entry name too long")
)

// Kind distinguishes the two node variants this filesystem serves.
type Kind int

const (
	Directory Kind = iota
	RegularFile
)

func (k Kind) String() string {
	switch k {
	case Directory:
		return "dir"
	case RegularFile:
		return "file"
	}
	return "invalid"
}

// MaxNameLen caps entry name length; it is also the namelen this filesystem
// reports in STATFS.
const MaxNameLen = 63

// A Node is one filesystem entry. Content is meaningful only for
// RegularFile nodes, the children index only for Directory nodes.
type Node struct {
	ID     fuse.NodeID
	Parent fuse.NodeID
	Name   string
	Kind   Kind
	Mode   uint32 // permission bits plus S_IFMT type bits
	UID    uint32
	GID    uint32

	// Content is the file's bytes; len(Content) is the externally
	// visible size. There is no separate size field to diverge from it.
	Content []byte

	children *btree.BTree
}

func (n *Node) String() string {
	return fmt.Sprintf("node %v %s %q mode=%#o size=%d", n.ID, n.Kind, n.Name, n.Mode, n.Size())
}

// IsDir reports whether the node is a directory.
func (n *Node) IsDir() bool {
	return n.Kind == Directory
}

// Size is the externally visible size in bytes.
func (n *Node) Size() uint64 {
	return uint64(len(n.Content))
}

// Resize truncates or zero-extends the file content to size bytes.
func (n *Node) Resize(size uint64) {
	switch cur := uint64(len(n.Content)); {
	case size < cur:
		n.Content = n.Content[:size]
	case size > cur:
		n.Content = append(n.Content, make([]byte, size-cur)...)
	}
}

// WriteAt overwrites or extends the content at off, zero-filling any gap
// between the current end and off. off+len(data) must not overflow; the
// caller bounds the extent against its size cap.
func (n *Node) WriteAt(data []byte, off uint64) {
	if end := off + uint64(len(data)); end > uint64(len(n.Content)) {
		n.Resize(end)
	}
	copy(n.Content[off:], data)
}

// ReadAt returns up to size bytes starting at off, clamped to the content
// length. Reads at or past the end return an empty slice, never an error.
func (n *Node) ReadAt(off uint64, size uint32) []byte {
	if off >= uint64(len(n.Content)) {
		return nil
	}
	b := n.Content[off:]
	if uint64(size) < uint64(len(b)) {
		b = b[:size]
	}
	return b
}

// childEntry is the btree item for one name-to-id mapping.
type childEntry struct {
	name string
	id   fuse.NodeID
}

func (e childEntry) Less(than btree.Item) bool {
	return e.name < than.(childEntry).name
}

const childDegree = 2

// A Tree owns all nodes of one session. Node ids are unique and never
// reused within a session; id 1 is the root.
type Tree struct {
	nodes    map[fuse.NodeID]*Node
	nextID   fuse.NodeID
	capacity int

	uid uint32
	gid uint32
}

// DefaultCapacity bounds the node arena, mirroring the fixed-size table the
// original test filesystem used.
const DefaultCapacity = 64

// New creates a tree holding only the root directory. Every node the tree
// ever allocates reports ownership (uid, gid); rootMode must carry the
// S_IFDIR type bit.
func New(rootMode, uid, gid uint32) *Tree {
	t := &Tree{
		nodes:    make(map[fuse.NodeID]*Node),
		nextID:   fuse.RootID + 1,
		capacity: DefaultCapacity,
		uid:      uid,
		gid:      gid,
	}
	t.nodes[fuse.RootID] = &Node{
		ID:       fuse.RootID,
		Parent:   fuse.RootID, // root's parent is itself
		Kind:     Directory,
		Mode:     rootMode,
		UID:      uid,
		GID:      gid,
		children: btree.New(childDegree),
	}
	return t
}

// Root returns the root directory node.
func (t *Tree) Root() *Node {
	return t.nodes[fuse.RootID]
}

// Len is the number of live nodes.
func (t *Tree) Len() int {
	return len(t.nodes)
}

// Capacity is the maximum number of live nodes.
func (t *Tree) Capacity() int {
	return t.capacity
}

// Lookup resolves a node id.
func (t *Tree) Lookup(id fuse.NodeID) (*Node, error) {
	n, ok := t.nodes[id]
	if !ok {
		return nil, fmt.Errorf("%w: %v", ErrNoSuchNode, id)
	}
	return n, nil
}

// LookupChild resolves name under the directory parent.
func (t *Tree) LookupChild(parent fuse.NodeID, name string) (*Node, error) {
	p, err := t.dir(parent)
	if err != nil {
		return nil, err
	}
	item := p.children.Get(childEntry{name: name})
	if item == nil {
		return nil, fmt.Errorf("%w: %q", ErrNoSuchEntry, name)
	}
	return t.nodes[item.(childEntry).id], nil
}

// Insert allocates a fresh node under the directory parent. Mode must
// include the type bits matching kind.
func (t *Tree) Insert(parent fuse.NodeID, name string, kind Kind, mode uint32) (*Node, error) {
	p, err := t.dir(parent)
	if err != nil {
		return nil, err
	}
	if len(name) > MaxNameLen {
		return nil, fmt.Errorf("%w: %q", ErrNameTooLong, name)
	}
	if p.children.Has(childEntry{name: name}) {
		return nil, fmt.Errorf("%w: %q", ErrAlreadyExists, name)
	}
	if len(t.nodes) >= t.capacity {
		return nil, ErrNoSpace
	}
	n := &Node{
		ID:     t.nextID,
		Parent: parent,
		Name:   name,
		Kind:   kind,
		Mode:   mode,
		UID:    t.uid,
		GID:    t.gid,
	}
	if kind == Directory {
		n.children = btree.New(childDegree)
	}
	t.nextID++
	t.nodes[n.ID] = n
	p.children.ReplaceOrInsert(childEntry{name: name, id: n.ID})
	return n, nil
}

// Remove deletes name from the directory parent. Directory targets must be
// empty.
func (t *Tree) Remove(parent fuse.NodeID, name string) error {
	p, err := t.dir(parent)
	if err != nil {
		return err
	}
	item := p.children.Get(childEntry{name: name})
	if item == nil {
		return fmt.Errorf("%w: %q", ErrNoSuchEntry, name)
	}
	n := t.nodes[item.(childEntry).id]
	if n.IsDir() && n.children.Len() > 0 {
		return fmt.Errorf("%w: %q", ErrDirectoryNotEmpty, name)
	}
	p.children.Delete(childEntry{name: name})
	delete(t.nodes, n.ID)
	return nil
}

// Rename atomically moves (parent, name) to (newParent, newName). An
// existing target is silently replaced if it is a regular file or an empty
// directory. Moving a directory beneath itself is rejected.
func (t *Tree) Rename(parent fuse.NodeID, name string, newParent fuse.NodeID, newName string) error {
	src, err := t.LookupChild(parent, name)
	if err != nil {
		return err
	}
	np, err := t.dir(newParent)
	if err != nil {
		return err
	}
	if len(newName) > MaxNameLen {
		return fmt.Errorf("%w: %q", ErrNameTooLong, newName)
	}
	if src.IsDir() {
		if err := t.checkCycle(src.ID, newParent); err != nil {
			return err
		}
	}
	if item := np.children.Get(childEntry{name: newName}); item != nil {
		target := t.nodes[item.(childEntry).id]
		if target.ID == src.ID {
			// Renaming an entry onto itself is a no-op.
			if parent == newParent && name == newName {
				return nil
			}
		}
		if target.IsDir() && target.children.Len() > 0 {
			return fmt.Errorf("%w: %q", ErrDirectoryNotEmpty, newName)
		}
		np.children.Delete(childEntry{name: newName})
		delete(t.nodes, target.ID)
	}
	op := t.nodes[src.Parent]
	op.children.Delete(childEntry{name: name})
	src.Parent = newParent
	src.Name = newName
	np.children.ReplaceOrInsert(childEntry{name: newName, id: src.ID})
	return nil
}

// Children returns the directory's entries in name order.
func (t *Tree) Children(id fuse.NodeID) ([]*Node, error) {
	p, err := t.dir(id)
	if err != nil {
		return nil, err
	}
	out := make([]*Node, 0, p.children.Len())
	p.children.Ascend(func(item btree.Item) bool {
		out = append(out, t.nodes[item.(childEntry).id])
		return true
	})
	return out, nil
}

func (t *Tree) dir(id fuse.NodeID) (*Node, error) {
	n, err := t.Lookup(id)
	if err != nil {
		return nil, err
	}
	if !n.IsDir() {
		return nil, fmt.Errorf("%w: %v", ErrNotADirectory, id)
	}
	return n, nil
}

// checkCycle rejects moves that would place src inside its own subtree. It
// walks newParent's ancestor chain; the root is its own parent, which
// terminates the walk.
func (t *Tree) checkCycle(src, newParent fuse.NodeID) error {
	for id := newParent; ; {
		if id == src {
			return ErrCycle
		}
		n, ok := t.nodes[id]
		if !ok || n.Parent == id {
			return nil
		}
		id = n.Parent
	}
}
