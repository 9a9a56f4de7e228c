// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package config

import "testing"

func TestFlagsHas(t *testing.T) {
	fl := DefaultFlags
	if !fl.Has(FlagWarnings) {
		t.Error("DefaultFlags should include FlagWarnings")
	}
	if fl.Has(FlagAltMacroDefault) {
		t.Error("DefaultFlags should not include FlagAltMacroDefault")
	}

	fl |= FlagAltMacroDefault
	if !fl.Has(FlagWarnings | FlagAltMacroDefault) {
		t.Error("Has should report both bits set once both are ORed in")
	}
}

func TestResolvePolicyAccumulates(t *testing.T) {
	cases := []struct {
		version int
		want    PolicyFlags
	}{
		{0, 0},
		{1, PolicyPerArgConstBuffers},
		{2, PolicyPerArgConstBuffers | PolicyNewUAVLayout},
		{3, PolicyPerArgConstBuffers | PolicyNewUAVLayout | PolicyUnifiedSGPRCount},
		{99, PolicyPerArgConstBuffers | PolicyNewUAVLayout | PolicyUnifiedSGPRCount},
	}
	for _, c := range cases {
		if got := ResolvePolicy(c.version); got != c.want {
			t.Errorf("ResolvePolicy(%d) = %b, want %b", c.version, got, c.want)
		}
	}
}

func TestResolvePolicyBelowLowestVersionIsEmpty(t *testing.T) {
	if got := ResolvePolicy(-1); got != 0 {
		t.Errorf("ResolvePolicy(-1) = %b, want 0", got)
	}
}
