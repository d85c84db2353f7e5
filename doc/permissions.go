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

var PermissionsCmd = &cli.Command{
	UsageLine: "permissions",
	Short:     "permission policy overview",
	Long: `
Two mount options select how fuselite screens the uid/gid carried on each
kernel request:

  (neither)             Owner-only. Requests from any uid other than the
                        mount owner fail with EACCES, root included. This
                        mirrors the kernel's own behaviour of hiding a fuse
                        mount from other users, and is the default.

  -allow-other          Bypass. Any uid may use the filesystem and no mode
                        bits are checked; the kernel is trusted to have
                        done its own checking.

  -allow-other
  -default-permissions  Full DAC checks. Requests are screened against the
                        node's owner/group/other permission bits. The class
                        is chosen once (owner, else group, else other) with
                        no fall-through, and uid 0 bypasses the bits.

-default-permissions without -allow-other keeps the owner-only policy:
there is no one besides the mount owner to screen.
`,
}
