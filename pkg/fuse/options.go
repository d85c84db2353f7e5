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
	"fmt"
	"strconv"
	"strings"
)

// A MountConfig is the parsed form of the fuse mount(2) data string:
// comma-separated key=value pairs plus bare flags, e.g.
//
//	fd=7,rootmode=040755,user_id=0,group_id=0,allow_other
//
// The flag pair allow_other/default_permissions selects the session's
// permission policy.
type MountConfig struct {
	// FD is the /dev/fuse file descriptor passed to the kernel.
	FD int

	// RootMode is the root directory's mode, including type bits.
	RootMode uint32

	// UserID and GroupID identify the mount owner; every node reports
	// this ownership.
	UserID  uint32
	GroupID uint32

	// AllowOther permits uids other than the mount owner to access the
	// filesystem at all.
	AllowOther bool

	// DefaultPermissions enables owner/group/other mode-bit checks.
	DefaultPermissions bool
}

// ParseMountOptions parses a fuse mount data string. Unrecognized keys are
// rejected; the kernel does the same.
func ParseMountOptions(s string) (MountConfig, error) {
	c := MountConfig{FD: -1}
	if s == "" {
		return c, fmt.Errorf("fuse: empty mount options")
	}
	for _, opt := range strings.Split(s, ",") {
		key, value, hasValue := strings.Cut(opt, "=")
		switch key {
		case "fd":
			n, err := strconv.ParseInt(value, 10, 32)
			if err != nil || !hasValue {
				return c, fmt.Errorf("fuse: bad fd option %q", opt)
			}
			c.FD = int(n)
		case "rootmode":
			// rootmode is octal on the wire, with or without a
			// leading zero.
			n, err := strconv.ParseUint(value, 8, 32)
			if err != nil || !hasValue {
				return c, fmt.Errorf("fuse: bad rootmode option %q", opt)
			}
			c.RootMode = uint32(n)
		case "user_id":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil || !hasValue {
				return c, fmt.Errorf("fuse: bad user_id option %q", opt)
			}
			c.UserID = uint32(n)
		case "group_id":
			n, err := strconv.ParseUint(value, 10, 32)
			if err != nil || !hasValue {
				return c, fmt.Errorf("fuse: bad group_id option %q", opt)
			}
			c.GroupID = uint32(n)
		case "allow_other":
			if hasValue {
				return c, fmt.Errorf("fuse: allow_other takes no value")
			}
			c.AllowOther = true
		case "default_permissions":
			if hasValue {
				return c, fmt.Errorf("fuse: default_permissions takes no value")
			}
			c.DefaultPermissions = true
		default:
			return c, fmt.Errorf("fuse: unknown mount option %q", opt)
		}
	}
	if c.FD < 0 {
		return c, fmt.Errorf("fuse: mount options missing fd")
	}
	return c, nil
}

// String renders the config back into the mount(2) data string form.
func (c MountConfig) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "fd=%d,rootmode=%o,user_id=%d,group_id=%d", c.FD, c.RootMode, c.UserID, c.GroupID)
	if c.AllowOther {
		b.WriteString(",allow_other")
	}
	if c.DefaultPermissions {
		b.WriteString(",default_permissions")
	}
	return b.String()
}
