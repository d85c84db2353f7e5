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

import "fmt"

// Mode is a bitmask of log modes. A statement is emitted when its mode
// intersects the effective mask.
type Mode int

const (
	InfoMode Mode = 1 << iota
	WarnMode
	ErrorMode
	FatalMode
	DebugMode

	// The zero value doubles as the intersection check:
	// (lmode & mask) != DisabledMode.
	DisabledMode Mode = 0
	DefaultMode       = InfoMode | WarnMode | ErrorMode
)

func (m Mode) byte() byte {
	switch m {
	case InfoMode:
		return 'I'
	case WarnMode:
		return 'W'
	case ErrorMode:
		return 'E'
	case FatalMode:
		return 'F'
	case DebugMode:
		return 'D'
	default:
		return '?'
	}
}

// ParseMode maps a -log-level flag value to the mask it enables. Each named
// level includes everything more severe than itself.
func ParseMode(s string) (Mode, error) {
	switch s {
	case "debug":
		return DebugMode | DefaultMode, nil
	case "info":
		return DefaultMode, nil
	case "warn":
		return WarnMode | ErrorMode, nil
	case "error":
		return ErrorMode, nil
	default:
		return DisabledMode, fmt.Errorf("log: unrecognized level %q", s)
	}
}
