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

package fuse

import (
	"errors"
	"fmt"
)

// Protocol violations. All of these are fatal to the session: the caller is
// expected to stop reading from the connection rather than resynchronize.

// ErrClosedWithoutInit reports that the device fd reached EOF before the
// kernel sent its INIT request.
var ErrClosedWithoutInit = errors.New("fuse: connection closed without init")

// ErrAgain reports that a read on a non-blocking device fd found no request
// queued. The caller may poll and retry; this is the only ReadRequest error
// that is not fatal.
var ErrAgain = errors.New("fuse: no request pending")

// A FramingError reports a message whose declared length disagrees with the
// bytes actually read, or a body shorter than its opcode requires.
type FramingError struct {
	Opcode uint32
	Read   int
	Want   int
}

func (e *FramingError) Error() string {
	return fmt.Sprintf("fuse: read %d bytes for opcode %d but header declares %d", e.Read, e.Opcode, e.Want)
}

// An UnknownOpcodeError reports an opcode outside the protocol's closed set.
type UnknownOpcodeError struct {
	Opcode uint32
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("fuse: unknown opcode %d", e.Opcode)
}

// An OldVersionError reports an INIT handshake with an unsupported major
// protocol version.
type OldVersionError struct {
	Kernel    Protocol
	Supported Protocol
}

func (e *OldVersionError) Error() string {
	return fmt.Sprintf("fuse: kernel protocol %v not supported, need major %d", e.Kernel, e.Supported.Major)
}
