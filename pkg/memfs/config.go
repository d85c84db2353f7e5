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
	"fmt"
	"os"
	"strconv"

	"gopkg.in/yaml.v3"

	"github.com/fuselite/fuselite/pkg/fuse"
)

// Default modes for seeded entries, type bits included.
const (
	DefaultRootMode  = 040755
	DefaultHelloMode = 0100644
)

// HelloContent is the body of the hello.txt file every session starts with.
const HelloContent = "hello from fuse\n"

// DefaultMaxFileSize caps file content; writes and truncates beyond it fail
// with EFBIG.
const DefaultMaxFileSize = 1 << 20

// Config is the immutable per-session configuration. It is built once
// before Serve and never written afterwards; handlers only read it.
type Config struct {
	// Mount carries the mount-time identity and permission options.
	Mount fuse.MountConfig

	// EnableWriteOps admits the mutating operations. When false they all
	// fail with EACCES.
	EnableWriteOps bool

	// ExitAfterInit stops the dispatch loop right after a successful INIT
	// exchange.
	ExitAfterInit bool

	// StopOnDestroy raises the stop flag when DESTROY arrives.
	StopOnDestroy bool

	// RootMode and HelloMode override the seeded modes when non-zero.
	// Type bits are supplied by the server; only permission bits matter
	// here.
	RootMode  uint32
	HelloMode uint32

	// MaxFileSize overrides DefaultMaxFileSize when non-zero.
	MaxFileSize uint64

	// Seed lists extra entries materialized into the tree at session
	// start, after hello.txt.
	Seed []SeedEntry
}

func (c Config) rootMode() uint32 {
	if c.RootMode != 0 {
		return 040000 | (c.RootMode & 07777)
	}
	return DefaultRootMode
}

func (c Config) helloMode() uint32 {
	if c.HelloMode != 0 {
		return 0100000 | (c.HelloMode & 07777)
	}
	return DefaultHelloMode
}

func (c Config) maxFileSize() uint64 {
	if c.MaxFileSize != 0 {
		return c.MaxFileSize
	}
	return DefaultMaxFileSize
}

// A SeedEntry is one extra node to materialize at session start. Paths are
// slash-separated and relative to the root; missing intermediate
// directories are created with the root's permission bits.
type SeedEntry struct {
	Path    string `yaml:"path"`
	Dir     bool   `yaml:"dir,omitempty"`
	Mode    string `yaml:"mode,omitempty"` // octal, e.g. "0644"
	Content string `yaml:"content,omitempty"`
}

// PermBits parses the entry's octal mode string. An empty mode means 0644
// for files and 0755 for directories.
func (e SeedEntry) PermBits() (uint32, error) {
	if e.Mode == "" {
		if e.Dir {
			return 0755, nil
		}
		return 0644, nil
	}
	bits, err := strconv.ParseUint(e.Mode, 8, 32)
	if err != nil {
		return 0, fmt.Errorf("memfs: bad mode %q for %q: %v", e.Mode, e.Path, err)
	}
	return uint32(bits) & 07777, nil
}

type seedManifest struct {
	Entries []SeedEntry `yaml:"entries"`
}

// LoadSeedManifest reads a YAML seed manifest:
//
//	entries:
//	  - path: docs
//	    dir: true
//	  - path: docs/readme.txt
//	    mode: "0640"
//	    content: "seeded\n"
func LoadSeedManifest(path string) ([]SeedEntry, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var m seedManifest
	if err := yaml.Unmarshal(raw, &m); err != nil {
		return nil, fmt.Errorf("memfs: parsing seed manifest %s: %v", path, err)
	}
	for _, e := range m.Entries {
		if e.Path == "" {
			return nil, fmt.Errorf("memfs: seed manifest %s: entry without path", path)
		}
		if _, err := e.PermBits(); err != nil {
			return nil, err
		}
	}
	return m.Entries, nil
}
