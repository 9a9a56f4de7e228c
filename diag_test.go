// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcnasm

import "testing"

func TestSinkGoodAndErrorCount(t *testing.T) {
	files := NewFileTable()
	sink := NewSink(files)
	if !sink.Good() {
		t.Error("a fresh Sink should be Good")
	}
	sink.Warning(nil, "just a warning")
	if !sink.Good() {
		t.Error("Sink with only warnings should still be Good")
	}
	sink.Error(nil, "something broke: %d", 42)
	if sink.Good() {
		t.Error("Sink with an error should not be Good")
	}
	if sink.ErrorCount() != 1 {
		t.Errorf("ErrorCount() = %d, want 1", sink.ErrorCount())
	}
	if len(sink.Diagnostics()) != 2 {
		t.Errorf("Diagnostics() has %d entries, want 2", len(sink.Diagnostics()))
	}
}

func TestFileTableInternIsStable(t *testing.T) {
	files := NewFileTable()
	a := files.Intern("a.s")
	b := files.Intern("b.s")
	if files.Intern("a.s") != a {
		t.Error("Intern should return the same ref for a repeated name")
	}
	if a == b {
		t.Error("distinct names should get distinct refs")
	}
	if files.Name(a) != "a.s" {
		t.Errorf("Name(a) = %q, want a.s", files.Name(a))
	}
	if files.Name(FileRef(999)) != "<unknown>" {
		t.Error("Name of an out-of-range ref should be <unknown>")
	}
}

func TestPositionChainFormat(t *testing.T) {
	files := NewFileTable()
	ref := files.Intern("kernel.s")
	root := &PositionChain{Head: Position{File: ref, Line: 3, Column: 0}}
	chain := root.Push(Position{File: ref, Line: 10, Column: 4}, "in expansion of macro 'FOO'")

	got := chain.Format(files)
	want := "kernel.s:10:5\n\tin expansion of macro 'FOO' (kernel.s:3:1)"
	if got != want {
		t.Errorf("Format() = %q, want %q", got, want)
	}
}

func TestPositionChainFormatNil(t *testing.T) {
	var c *PositionChain
	if got := c.Format(nil); got != "<unknown position>" {
		t.Errorf("nil chain Format() = %q", got)
	}
}

func TestSortCodeFlowOrdersByOffsetThenTargetThenKind(t *testing.T) {
	entries := []CodeFlowEntry{
		{Offset: 8, Target: 0, Kind: CFJump},
		{Offset: 0, Target: 4, Kind: CFCall},
		{Offset: 0, Target: 4, Kind: CFCJump},
		{Offset: 0, Target: 0, Kind: CFStart},
	}
	SortCodeFlow(entries)

	want := []CodeFlowEntry{
		{Offset: 0, Target: 0, Kind: CFStart},
		{Offset: 0, Target: 4, Kind: CFCJump},
		{Offset: 0, Target: 4, Kind: CFCall},
		{Offset: 8, Target: 0, Kind: CFJump},
	}
	for i := range want {
		if entries[i] != want[i] {
			t.Errorf("entries[%d] = %+v, want %+v", i, entries[i], want[i])
		}
	}
}

func TestCodeFlowKindString(t *testing.T) {
	if got := CFReturn.String(); got != "RETURN" {
		t.Errorf("CFReturn.String() = %q, want RETURN", got)
	}
	if got := CodeFlowKind(99).String(); got != "?" {
		t.Errorf("unknown kind String() = %q, want ?", got)
	}
}
