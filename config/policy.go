// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

// PolicyFlags are the individual behaviors a POLICY version can gate.
// See DESIGN.md for the Decision on which behaviors are bundled into
// which version: the original CLRX_POLICY_* constants are not fully
// enumerated in any source this module was built from, so the set
// below is a documented, conservative reconstruction from the one
// behavior named explicitly (unified SGPR counting) plus two other
// driver-version-gated behaviors already described elsewhere (legacy
// AMD's UAV remapping and per-arg constant buffers), rather than a
// guess at the full undocumented list.
type PolicyFlags uint32

const (
	// PolicyUnifiedSGPRCount makes AMDCL2's SGPR accounting add the
	// VCC/FLAT_SCRATCH/XNACK reserved registers into sgprsnum the same
	// way regardless of which optional features are enabled, instead of
	// the pre-policy behavior of only counting them when the kernel
	// actually requested the corresponding hidden argument.
	PolicyUnifiedSGPRCount PolicyFlags = 1 << iota
	// PolicyNewUAVLayout switches legacy AMD's UAV id remapping to the
	// post-134805 scheme (pre-134805 drivers use remapped UAV ids).
	PolicyNewUAVLayout
	// PolicyPerArgConstBuffers carries legacy AMD's pre-112402 per-arg
	// constant-buffer-size CONSTANTBUFFERS CAL note entries forward
	// even on a newer driver, for sources that opt into it explicitly.
	PolicyPerArgConstBuffers
)

// PolicyEntry bundles one POLICY version's cumulative behavior: every
// version at or above Version carries Flags in addition to every
// lower version's flags, centralizing version-gated behavior in a
// small table rather than a single flat flag set per version.
type PolicyEntry struct {
	Version int
	Flags   PolicyFlags
}

// Policies is ordered by ascending Version; ResolvePolicy accumulates
// every entry at or below the requested version.
var Policies = []PolicyEntry{
	{Version: 0, Flags: 0},
	{Version: 1, Flags: PolicyPerArgConstBuffers},
	{Version: 2, Flags: PolicyNewUAVLayout},
	{Version: 3, Flags: PolicyUnifiedSGPRCount},
}

// ResolvePolicy returns the union of every PolicyFlags bundled into
// POLICY versions up to and including version.
func ResolvePolicy(version int) PolicyFlags {
	var flags PolicyFlags
	for _, p := range Policies {
		if p.Version <= version {
			flags |= p.Flags
		}
	}
	return flags
}
