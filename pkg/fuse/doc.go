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

// Package fuse speaks the kernel's FUSE wire protocol over a /dev/fuse file
// descriptor.
//
// The package is deliberately low level: a Conn wraps the device fd, and
// ReadRequest hands back one typed request per kernel message. Each request
// type carries Respond methods that frame and write the matching reply. There
// is no fs.Serve-style callback layer; the caller owns the read/dispatch/reply
// loop.
//
// Framing is strict. The kernel writes exactly one request per read(2) and
// the declared header length must match the byte count actually read;
// anything else is a protocol violation surfaced as an error from
// ReadRequest, and the caller is expected to abandon the session rather than
// resynchronize.
//
// The wire layout follows the modern (7.39-era) ABI: a 40-byte request
// header, a 64-byte extended INIT body carrying flags2, and negative errno
// values in the 16-byte reply header.
package fuse
