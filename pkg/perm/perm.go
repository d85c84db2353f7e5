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

// Package perm decides whether the identity behind a request may act on a
// node. The policy is fixed at mount time from the allow_other and
// default_permissions mount options and never changes for the life of a
// session.
package perm

import (
	"github.com/fuselite/fuselite/pkg/fuse"
)

// Policy selects how requests are screened.
type Policy int

const (
	// OwnerOnly rejects every request whose uid differs from the mount
	// owner's. Active when allow_other is absent.
	OwnerOnly Policy = iota

	// DACChecked admits any uid but checks the classic rwx mode bits of
	// the node being accessed. Active with allow_other plus
	// default_permissions.
	DACChecked

	// Bypass admits everything. Active with allow_other alone.
	Bypass
)

func (p Policy) String() string {
	switch p {
	case OwnerOnly:
		return "owner-only"
	case DACChecked:
		return "dac-checked"
	case Bypass:
		return "bypass"
	}
	return "invalid"
}

// PolicyFor maps the two mount options to a policy.
func PolicyFor(allowOther, defaultPermissions bool) Policy {
	switch {
	case !allowOther:
		return OwnerOnly
	case defaultPermissions:
		return DACChecked
	default:
		return Bypass
	}
}

// Access masks, in the usual rwx bit positions.
const (
	MaskExec  uint32 = 1
	MaskWrite uint32 = 2
	MaskRead  uint32 = 4
)

// An Evaluator screens requests for one session.
type Evaluator struct {
	policy Policy
	owner  uint32
}

// New derives an evaluator from mount-time options. owner is the uid the
// filesystem was mounted for.
func New(cfg fuse.MountConfig) *Evaluator {
	return &Evaluator{
		policy: PolicyFor(cfg.AllowOther, cfg.DefaultPermissions),
		owner:  cfg.UserID,
	}
}

// Policy returns the evaluator's fixed policy.
func (e *Evaluator) Policy() Policy {
	return e.policy
}

// Check reports whether the requesting identity (uid, gid) may perform the
// accesses in mask against a node owned by nodeUID:nodeGID with the given
// mode bits. A nil return means allowed; the only failure is fuse.EACCES.
//
// Under DACChecked, uid 0 bypasses the mode bits, matching kernel DAC.
// Mode selection does not fall through: a requester matching the owner uid
// is judged by the owner bits alone even if the group bits would admit it.
func (e *Evaluator) Check(uid, gid uint32, nodeUID, nodeGID, mode, mask uint32) error {
	switch e.policy {
	case OwnerOnly:
		if uid != e.owner {
			return fuse.EACCES
		}
		return nil
	case DACChecked:
		if uid == 0 {
			return nil
		}
		var bits uint32
		switch {
		case uid == nodeUID:
			bits = mode >> 6
		case gid == nodeGID:
			bits = mode >> 3
		default:
			bits = mode
		}
		if mask&^(bits&7) != 0 {
			return fuse.EACCES
		}
		return nil
	default:
		return nil
	}
}
