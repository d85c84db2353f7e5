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

package memfs

import "sync/atomic"

// Stats are session counters the dispatch goroutine updates and any
// goroutine may read concurrently, mainly test harnesses inspecting a live
// session.
type Stats struct {
	// ForgetCount counts FORGET requests; ForgetNlookupSum accumulates
	// their nlookup values.
	ForgetCount      atomic.Uint64
	ForgetNlookupSum atomic.Uint64

	// DestroyCount counts DESTROY requests.
	DestroyCount atomic.Uint64

	// What the kernel advertised in its INIT request.
	InitFlags        atomic.Uint32
	InitFlags2       atomic.Uint32
	InitMaxReadahead atomic.Uint32
}
