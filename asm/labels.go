// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "github.com/gcnkit/gcnasm"

// localLabelRefLen reports the length of a local numbered label
// reference ("1f", "23b", ...) at the start of s, or 0 if s does not
// begin with one. A reference is one or more decimal digits followed
// immediately by 'f' or 'b', and that letter must not itself continue
// into a longer identifier (so "1field" is an identifier, not a
// reference to local label 1 followed by garbage).
func localLabelRefLen(s string) int {
	i := 0
	for i < len(s) && s[i] >= '0' && s[i] <= '9' {
		i++
	}
	if i == 0 || i >= len(s) {
		return 0
	}
	if s[i] != 'f' && s[i] != 'b' {
		return 0
	}
	if i+1 < len(s) && identifierChar(s[i+1]) {
		return 0
	}
	return i + 1
}

// localLabelDef is one recorded definition of a numbered local label,
// in the order it was assembled.
type localLabelDef struct {
	value   int64
	section gcnasm.SectionID
}
