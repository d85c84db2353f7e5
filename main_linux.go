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

package main

import (
	"os"

	"github.com/fuselite/fuselite/doc"
	"github.com/fuselite/fuselite/pkg/cli"

	fusedaemon "github.com/fuselite/fuselite/cmd/fuse-daemon"
)

func main() {
	// Top-level commands, i.e. 'fuselite <command> ...'.
	var commands cli.Commands
	commands = append(commands, fusedaemon.FuseDaemonCmd)

	// Documentation pseudo-commands.
	commands = append(commands, doc.ArchitectureCmd)
	commands = append(commands, doc.PermissionsCmd)

	abstract := "Fuselite is a minimal in-memory FUSE filesystem server in Go."
	if err := cli.Process(abstract, commands); err != nil {
		os.Exit(1)
	}
}
