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

package cli

import (
	"fmt"
	"io"
	"os"
	"strings"
)

// Process dispatches os.Args across the given commands and runs the matching
// one. There is no root-level command: invoking the program bare prints the
// full usage, built from the abstract and the command listing.
//
// CLI mistakes (unknown command, bad flags, malformed help invocations) are
// reported on os.Stderr followed by os.Exit(2). Errors returned by a
// command's Run are propagated to the caller.
func Process(abstract string, commands Commands) error {
	// The program name prints as invoked, relative path and all.
	program, args := os.Args[0], os.Args[1:]

	for _, cmd := range commands {
		cmd.FlagSet.SetOutput(io.Discard)
	}

	if len(args) == 0 {
		printFullUsage(program, abstract, commands)
		return nil
	}

	command := args[0]
	if (command == "help" || command == "-h") && len(args) == 1 {
		printFullUsage(program, abstract, commands)
		return nil
	}

	if command == "help" && len(args) > 2 {
		fmt.Fprintf(os.Stderr, "Usage: %s help [command]\n\n", program)
		fmt.Fprintln(os.Stderr, "Too many arguments given.")
		os.Exit(2)
	}

	if command == "help" && len(args) == 2 {
		topic := args[1]
		if err := printCommandUsage(program, topic, commands); err != nil {
			fmt.Fprintf(os.Stderr, "Unknown help topic '%s'\n\n", topic)
			fmt.Fprintf(os.Stderr, "Run '%s help' for available topics.\n", program)
			os.Exit(2)
		}
		return nil
	}

	for _, cmd := range commands {
		if cmd.Name() != command || !cmd.Runnable() {
			continue
		}

		err := cmd.Run(cmd, args[1:])
		if _, ok := err.(cmdParseError); !ok {
			return err
		}

		// flag.Parse reports -h as "help requested"; that is a valid
		// invocation, not a mistake. Checked after Run since the flags
		// may only be defined there.
		if strings.Contains(err.Error(), "help requested") {
			printCommandHelp(program, cmd)
			return nil
		}

		printCommandParsingError(program, cmd, err)
		os.Exit(2)
	}

	fmt.Fprintf(os.Stderr, "Unknown command '%s'\n\n", command)
	fmt.Fprintf(os.Stderr, "Run '%s help' for available commands.\n", program)
	os.Exit(2)
	return nil
}
