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

package memtree

import (
	"bytes"
	"errors"
	"strings"
	"testing"

	"github.com/fuselite/fuselite/pkg/fuse"
)

const (
	testRootMode = 040755
	testFileMode = 0100644
	testDirMode  = 040755
)

func newTestTree(t *testing.T) *Tree {
	t.Helper()
	return New(testRootMode, 1000, 1000)
}

func TestNewTreeRoot(t *testing.T) {
	tr := newTestTree(t)
	root := tr.Root()
	if root.ID != fuse.RootID {
		t.Errorf("root id: expected %v, got %v", fuse.RootID, root.ID)
	}
	if root.Parent != fuse.RootID {
		t.Errorf("root parent: expected %v, got %v", fuse.RootID, root.Parent)
	}
	if !root.IsDir() {
		t.Error("expected root to be a directory")
	}
	if got := tr.Len(); got != 1 {
		t.Errorf("node count: expected 1, got %d", got)
	}
}

func TestInsertLookup(t *testing.T) {
	tr := newTestTree(t)
	n, err := tr.Insert(fuse.RootID, "hello.txt", RegularFile, testFileMode)
	if err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	if n.ID != fuse.RootID+1 {
		t.Errorf("first allocated id: expected %v, got %v", fuse.RootID+1, n.ID)
	}
	if n.UID != 1000 || n.GID != 1000 {
		t.Errorf("ownership: expected 1000:1000, got %d:%d", n.UID, n.GID)
	}

	got, err := tr.LookupChild(fuse.RootID, "hello.txt")
	if err != nil {
		t.Fatalf("expected lookup to succeed, got error: %v", err)
	}
	if got != n {
		t.Errorf("lookup: expected node %v, got %v", n.ID, got.ID)
	}
	byID, err := tr.Lookup(n.ID)
	if err != nil {
		t.Fatalf("expected id lookup to succeed, got error: %v", err)
	}
	if byID != n {
		t.Errorf("id lookup: expected node %v, got %v", n.ID, byID.ID)
	}
}

func TestLookupErrors(t *testing.T) {
	tr := newTestTree(t)
	if _, err := tr.Lookup(99); !errors.Is(err, ErrNoSuchNode) {
		t.Errorf("expected ErrNoSuchNode, got %v", err)
	}
	if _, err := tr.LookupChild(fuse.RootID, "absent"); !errors.Is(err, ErrNoSuchEntry) {
		t.Errorf("expected ErrNoSuchEntry, got %v", err)
	}
	f, err := tr.Insert(fuse.RootID, "f", RegularFile, testFileMode)
	if err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	if _, err := tr.LookupChild(f.ID, "x"); !errors.Is(err, ErrNotADirectory) {
		t.Errorf("expected ErrNotADirectory, got %v", err)
	}
}

func TestInsertDuplicate(t *testing.T) {
	tr := newTestTree(t)
	if _, err := tr.Insert(fuse.RootID, "a", RegularFile, testFileMode); err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	if _, err := tr.Insert(fuse.RootID, "a", Directory, testDirMode); !errors.Is(err, ErrAlreadyExists) {
		t.Errorf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestInsertNameTooLong(t *testing.T) {
	tr := newTestTree(t)
	name := strings.Repeat("x", MaxNameLen+1)
	if _, err := tr.Insert(fuse.RootID, name, RegularFile, testFileMode); !errors.Is(err, ErrNameTooLong) {
		t.Errorf("expected ErrNameTooLong, got %v", err)
	}
}

func TestInsertCapacity(t *testing.T) {
	tr := newTestTree(t)
	for i := 0; tr.Len() < tr.Capacity(); i++ {
		name := "f" + strings.Repeat("x", i%8) + string(rune('a'+i%26)) + string(rune('a'+i/26))
		if _, err := tr.Insert(fuse.RootID, name, RegularFile, testFileMode); err != nil {
			t.Fatalf("expected insert %d to succeed, got error: %v", i, err)
		}
	}
	if _, err := tr.Insert(fuse.RootID, "overflow", RegularFile, testFileMode); !errors.Is(err, ErrNoSpace) {
		t.Errorf("expected ErrNoSpace, got %v", err)
	}
}

func TestRemove(t *testing.T) {
	tr := newTestTree(t)
	n, err := tr.Insert(fuse.RootID, "a", RegularFile, testFileMode)
	if err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	if err := tr.Remove(fuse.RootID, "a"); err != nil {
		t.Fatalf("expected remove to succeed, got error: %v", err)
	}
	if _, err := tr.LookupChild(fuse.RootID, "a"); !errors.Is(err, ErrNoSuchEntry) {
		t.Errorf("expected ErrNoSuchEntry after remove, got %v", err)
	}
	if _, err := tr.Lookup(n.ID); !errors.Is(err, ErrNoSuchNode) {
		t.Errorf("expected ErrNoSuchNode after remove, got %v", err)
	}
	if err := tr.Remove(fuse.RootID, "a"); !errors.Is(err, ErrNoSuchEntry) {
		t.Errorf("expected ErrNoSuchEntry, got %v", err)
	}
}

func TestRemoveNonEmptyDirectory(t *testing.T) {
	tr := newTestTree(t)
	d, err := tr.Insert(fuse.RootID, "d", Directory, testDirMode)
	if err != nil {
		t.Fatalf("expected mkdir to succeed, got error: %v", err)
	}
	if _, err := tr.Insert(d.ID, "inner", RegularFile, testFileMode); err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	if err := tr.Remove(fuse.RootID, "d"); !errors.Is(err, ErrDirectoryNotEmpty) {
		t.Errorf("expected ErrDirectoryNotEmpty, got %v", err)
	}
	if err := tr.Remove(d.ID, "inner"); err != nil {
		t.Fatalf("expected remove to succeed, got error: %v", err)
	}
	if err := tr.Remove(fuse.RootID, "d"); err != nil {
		t.Errorf("expected empty directory remove to succeed, got error: %v", err)
	}
}

func TestRename(t *testing.T) {
	tr := newTestTree(t)
	n, err := tr.Insert(fuse.RootID, "old", RegularFile, testFileMode)
	if err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	d, err := tr.Insert(fuse.RootID, "d", Directory, testDirMode)
	if err != nil {
		t.Fatalf("expected mkdir to succeed, got error: %v", err)
	}
	if err := tr.Rename(fuse.RootID, "old", d.ID, "new"); err != nil {
		t.Fatalf("expected rename to succeed, got error: %v", err)
	}
	if _, err := tr.LookupChild(fuse.RootID, "old"); !errors.Is(err, ErrNoSuchEntry) {
		t.Errorf("expected source entry gone, got %v", err)
	}
	got, err := tr.LookupChild(d.ID, "new")
	if err != nil {
		t.Fatalf("expected lookup of moved entry to succeed, got error: %v", err)
	}
	if got.ID != n.ID {
		t.Errorf("moved node id: expected %v, got %v", n.ID, got.ID)
	}
	if got.Parent != d.ID {
		t.Errorf("moved node parent: expected %v, got %v", d.ID, got.Parent)
	}
	if got.Name != "new" {
		t.Errorf("moved node name: expected %q, got %q", "new", got.Name)
	}
}

func TestRenameReplacesTarget(t *testing.T) {
	tr := newTestTree(t)
	src, err := tr.Insert(fuse.RootID, "src", RegularFile, testFileMode)
	if err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	target, err := tr.Insert(fuse.RootID, "target", RegularFile, testFileMode)
	if err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	if err := tr.Rename(fuse.RootID, "src", fuse.RootID, "target"); err != nil {
		t.Fatalf("expected rename to succeed, got error: %v", err)
	}
	got, err := tr.LookupChild(fuse.RootID, "target")
	if err != nil {
		t.Fatalf("expected lookup to succeed, got error: %v", err)
	}
	if got.ID != src.ID {
		t.Errorf("replacement id: expected %v, got %v", src.ID, got.ID)
	}
	if _, err := tr.Lookup(target.ID); !errors.Is(err, ErrNoSuchNode) {
		t.Errorf("expected replaced node freed, got %v", err)
	}
}

func TestRenameNonEmptyTarget(t *testing.T) {
	tr := newTestTree(t)
	if _, err := tr.Insert(fuse.RootID, "src", RegularFile, testFileMode); err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	d, err := tr.Insert(fuse.RootID, "d", Directory, testDirMode)
	if err != nil {
		t.Fatalf("expected mkdir to succeed, got error: %v", err)
	}
	if _, err := tr.Insert(d.ID, "inner", RegularFile, testFileMode); err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	if err := tr.Rename(fuse.RootID, "src", fuse.RootID, "d"); !errors.Is(err, ErrDirectoryNotEmpty) {
		t.Errorf("expected ErrDirectoryNotEmpty, got %v", err)
	}
}

func TestRenameCycle(t *testing.T) {
	tr := newTestTree(t)
	a, err := tr.Insert(fuse.RootID, "a", Directory, testDirMode)
	if err != nil {
		t.Fatalf("expected mkdir to succeed, got error: %v", err)
	}
	b, err := tr.Insert(a.ID, "b", Directory, testDirMode)
	if err != nil {
		t.Fatalf("expected mkdir to succeed, got error: %v", err)
	}
	if err := tr.Rename(fuse.RootID, "a", b.ID, "a"); !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle for move into own subtree, got %v", err)
	}
	if err := tr.Rename(fuse.RootID, "a", a.ID, "a"); !errors.Is(err, ErrCycle) {
		t.Errorf("expected ErrCycle for move into self, got %v", err)
	}
}

func TestRenameOntoSelf(t *testing.T) {
	tr := newTestTree(t)
	n, err := tr.Insert(fuse.RootID, "a", RegularFile, testFileMode)
	if err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	if err := tr.Rename(fuse.RootID, "a", fuse.RootID, "a"); err != nil {
		t.Fatalf("expected self rename to succeed, got error: %v", err)
	}
	got, err := tr.LookupChild(fuse.RootID, "a")
	if err != nil {
		t.Fatalf("expected lookup to succeed, got error: %v", err)
	}
	if got.ID != n.ID {
		t.Errorf("node id: expected %v, got %v", n.ID, got.ID)
	}
}

func TestChildrenOrdered(t *testing.T) {
	tr := newTestTree(t)
	for _, name := range []string{"zeta", "alpha", "mid"} {
		if _, err := tr.Insert(fuse.RootID, name, RegularFile, testFileMode); err != nil {
			t.Fatalf("expected insert to succeed, got error: %v", err)
		}
	}
	children, err := tr.Children(fuse.RootID)
	if err != nil {
		t.Fatalf("expected children listing to succeed, got error: %v", err)
	}
	want := []string{"alpha", "mid", "zeta"}
	if len(children) != len(want) {
		t.Fatalf("child count: expected %d, got %d", len(want), len(children))
	}
	for i, n := range children {
		if n.Name != want[i] {
			t.Errorf("child %d: expected %q, got %q", i, want[i], n.Name)
		}
	}
}

func TestNodeIDsNotReused(t *testing.T) {
	tr := newTestTree(t)
	a, err := tr.Insert(fuse.RootID, "a", RegularFile, testFileMode)
	if err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	if err := tr.Remove(fuse.RootID, "a"); err != nil {
		t.Fatalf("expected remove to succeed, got error: %v", err)
	}
	b, err := tr.Insert(fuse.RootID, "b", RegularFile, testFileMode)
	if err != nil {
		t.Fatalf("expected insert to succeed, got error: %v", err)
	}
	if b.ID <= a.ID {
		t.Errorf("expected fresh id after %v, got %v", a.ID, b.ID)
	}
}

func TestContentReadWrite(t *testing.T) {
	n := &Node{Kind: RegularFile}
	n.WriteAt([]byte("hello"), 0)
	if got := n.Size(); got != 5 {
		t.Errorf("size: expected 5, got %d", got)
	}
	if got := n.ReadAt(0, 100); !bytes.Equal(got, []byte("hello")) {
		t.Errorf("read: expected %q, got %q", "hello", got)
	}
	if got := n.ReadAt(2, 2); !bytes.Equal(got, []byte("ll")) {
		t.Errorf("partial read: expected %q, got %q", "ll", got)
	}
	if got := n.ReadAt(5, 4); len(got) != 0 {
		t.Errorf("read at end: expected empty, got %q", got)
	}
	if got := n.ReadAt(100, 4); len(got) != 0 {
		t.Errorf("read past end: expected empty, got %q", got)
	}
}

func TestWriteAtGapZeroFill(t *testing.T) {
	n := &Node{Kind: RegularFile}
	n.WriteAt([]byte("ab"), 4)
	want := []byte{0, 0, 0, 0, 'a', 'b'}
	if !bytes.Equal(n.Content, want) {
		t.Errorf("content: expected %v, got %v", want, n.Content)
	}
}

func TestResize(t *testing.T) {
	n := &Node{Kind: RegularFile, Content: []byte("hello")}
	n.Resize(2)
	if !bytes.Equal(n.Content, []byte("he")) {
		t.Errorf("truncate: expected %q, got %q", "he", n.Content)
	}
	n.Resize(4)
	want := []byte{'h', 'e', 0, 0}
	if !bytes.Equal(n.Content, want) {
		t.Errorf("extend: expected %v, got %v", want, n.Content)
	}
	n.Resize(4)
	if !bytes.Equal(n.Content, want) {
		t.Errorf("no-op resize: expected %v, got %v", want, n.Content)
	}
}
