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
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/template"
	"unicode"
)

var usageTemplate = `{{abstract}}

Usage:

    {{program}} command [arguments]

The commands are:
{{range .}}{{if .Runnable}}
	{{.Name | printf "%-20s"}}   {{.Short}}{{end}}{{end}}

Use '{{program}} help [command]' for more information about a command.

Additional help topics:
{{range .}}{{if not .Runnable}}
	{{.Name | printf "%-20s"}}   {{.Short}}{{end}}{{end}}

Use "{{program}} help [topic]" for more information about that topic.
`

var helpTemplate = `{{if .Runnable}}Usage: {{program}} {{.UsageLine}}

{{else}}Topic: {{.Short}}

{{end}}{{.Long | trim}}
`

var cmdErrorHelpTemplate = `Usage:

  {{program}} {{.UsageLine}}

`

// tmpl executes the given template text on data, writing the result to w.
func tmpl(w io.Writer, templateText, program, abstract string, data interface{}) {
	t := template.New("")
	t.Funcs(template.FuncMap{
		"trim":     strings.TrimSpace,
		"abstract": func() string { return abstract },
		"program":  func() string { return program },
	})
	template.Must(t.Parse(templateText))
	if err := t.Execute(w, data); err != nil {
		panic(err)
	}
}

// printFullUsage writes the top-level usage: the program abstract, all
// commands and help topics.
func printFullUsage(program, abstract string, commands Commands) {
	tmpl(os.Stdout, usageTemplate, program, abstract, commands)
}

// printCommandUsage writes the help output for one command, as shown by
// '<program> help command'.
func printCommandUsage(program, command string, commands Commands) error {
	for _, cmd := range commands {
		if cmd.Name() == command {
			tmpl(os.Stdout, helpTemplate, program, "", cmd)
			return nil
		}
	}
	return errors.New("command not found")
}

// printCommandParsingError writes the flag parsing error with brief usage
// information.
func printCommandParsingError(program string, cmd *Command, err error) {
	if !strings.Contains(err.Error(), "help requested") {
		fmt.Fprintln(os.Stderr, upcaseInitial(err.Error()))
	}
	tmpl(os.Stderr, cmdErrorHelpTemplate, program, "", cmd)
	cmd.FlagSet.SetOutput(os.Stderr)
	cmd.FlagSet.PrintDefaults()
}

// printCommandHelp writes the command's usage and default flags, as shown by
// '<program> command -h'.
func printCommandHelp(program string, cmd *Command) {
	tmpl(os.Stdout, cmdErrorHelpTemplate, program, "", cmd)
	cmd.FlagSet.SetOutput(os.Stderr)
	cmd.FlagSet.PrintDefaults()
}

// Flag package errors start with a lowercase letter; sentence-case the first
// rune for display.
func upcaseInitial(str string) string {
	for i, v := range str {
		return string(unicode.ToUpper(v)) + str[i+1:]
	}
	return ""
}
