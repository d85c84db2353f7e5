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

import "sync"

// Process-wide filtering state, shared by all loggers. The global mode masks
// every statement; per-file overrides take precedence over the global mode
// for statements in that file.
var state struct {
	mu        sync.RWMutex
	gmode     Mode
	fileModes map[string]Mode
}

func init() {
	state.gmode = DefaultMode
	state.fileModes = make(map[string]Mode)
}

// SetGlobalLogMode sets the global mode mask. Logging outside the mask is
// suppressed, except Fatal which is never filtered.
func SetGlobalLogMode(m Mode) {
	state.mu.Lock()
	state.gmode = m
	state.mu.Unlock()
}

// GetGlobalLogMode returns the current global mode mask.
func GetGlobalLogMode() Mode {
	state.mu.RLock()
	defer state.mu.RUnlock()
	return state.gmode
}

// SetFileLogMode overrides the mode mask for statements in the named file
// (base name, e.g. "conn.go").
func SetFileLogMode(fname string, m Mode) {
	state.mu.Lock()
	state.fileModes[fname] = m
	state.mu.Unlock()
}

// GetFileLogMode returns the override for the named file, if any.
func GetFileLogMode(fname string) (Mode, bool) {
	state.mu.RLock()
	defer state.mu.RUnlock()
	m, ok := state.fileModes[fname]
	return m, ok
}

// ResetFileLogMode removes the override for the named file; its statements
// fall back to the global mask.
func ResetFileLogMode(fname string) {
	state.mu.Lock()
	delete(state.fileModes, fname)
	state.mu.Unlock()
}
