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

// Package cli structures a program into subcommands with generated help
// output, in the style of the go tool.
//
// Example:
//
//	commands := cli.Commands{
//		daemon.DaemonCmd,
//		version.VersionCmd,
//	}
//	abstract := "Fuselite serves a small in-memory FUSE filesystem."
//	if err := cli.Process(abstract, commands); err != nil {
//		os.Exit(1)
//	}
//
// Which provides, out of the box:
//
//	$ fuselite {,-h,help}
//	Fuselite serves a small in-memory FUSE filesystem.
//
//	Usage:
//
//	    fuselite command [arguments]
//
//	The commands are:
//
//	    daemon                 serve an in-memory filesystem over /dev/fuse
//	    ...
//
//	Use 'fuselite help [command]' for more information about a command.
//
// '<program> help <command>' prints the command's long description, and
// '<program> <command> -h' its flag defaults. Commands with a nil Run serve
// as plain help topics.
package cli
