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

package log

import "io"

// Flag selects which header fields are rendered before each log line.
type Flag int

const (
	// Lmode prefixes the single mode byte, e.g. 'I' for info.
	Lmode Flag = 1 << iota
	// Ldate renders the date as yymmdd.
	Ldate
	// Ltime renders the time as hh:mm:ss.
	Ltime
	// Lmicroseconds extends Ltime with microsecond resolution.
	Lmicroseconds
	// LUTC uses UTC rather than the local time zone.
	LUTC
	// Llongfile renders the full file path and line number.
	Llongfile
	// Lshortfile renders the file base name and line number, overriding
	// Llongfile.
	Lshortfile

	// LstdFlags is the default header format.
	LstdFlags = Lmode | Ldate | Ltime | Lmicroseconds | Lshortfile
)

type option func(*Logger)

// Writer directs the logger's output to w. The writer is used as given; wrap
// it in SynchronizedWriter if the logger is shared between goroutines.
func Writer(w io.Writer) option {
	return func(l *Logger) {
		l.w = w
	}
}

// Flags sets the header format.
func Flags(f Flag) option {
	return func(l *Logger) {
		l.flag = f
	}
}

// BasePath strips the given prefix from file paths rendered with Llongfile.
func BasePath(path string) option {
	return func(l *Logger) {
		l.basePath = path
	}
}
