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

package doc

import "github.com/fuselite/fuselite/pkg/cli"

var ArchitectureCmd = &cli.Command{
	UsageLine: "architecture",
	Short:     "Fuselite system architecture overview",
	Long: `
Fuselite is a minimal userspace FUSE filesystem server. A single daemon
process owns a /dev/fuse descriptor and serves the kernel's requests from
an in-memory tree.

The pieces, bottom up:

  pkg/fuse     Wire codec and device connection. Decodes kernel messages
               into typed requests with strict framing, encodes replies,
               and negotiates the protocol version at INIT.

  pkg/memtree  The in-memory node table: a bounded arena of files and
               directories with name-ordered children, reached by their
               kernel-visible node ids.

  pkg/perm     Permission evaluator. The allow_other/default_permissions
               mount options select one of three policies; see the
               permissions pseudo-command.

  pkg/memfs    Operation handlers and the session controller: a single
               dispatch goroutine reads one request at a time, applies it
               to the tree, and writes the reply.

  cmd/fuse-daemon
               Mounts the filesystem and runs a session until unmount,
               DESTROY or a termination signal.

There is no persistence and no concurrency in the filesystem proper: one
kernel request is in flight at a time, so the tree needs no locking.
`,
}
