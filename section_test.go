// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcnasm

import "testing"

func TestSectionWriteAndHere(t *testing.T) {
	s := &Section{}
	if s.Here() != 0 {
		t.Fatalf("Here() = %d, want 0", s.Here())
	}
	off := s.Write([]byte{1, 2, 3})
	if off != 0 {
		t.Errorf("first Write offset = %d, want 0", off)
	}
	off = s.Write([]byte{4, 5})
	if off != 3 {
		t.Errorf("second Write offset = %d, want 3", off)
	}
	if s.Here() != 5 {
		t.Errorf("Here() = %d, want 5", s.Here())
	}
}

func TestSectionSetHereForwardPads(t *testing.T) {
	s := &Section{}
	s.Write([]byte{1})
	s.SetHere(4)
	if s.Here() != 4 {
		t.Fatalf("Here() = %d, want 4", s.Here())
	}
	want := []byte{1, 0, 0, 0}
	if string(s.Content) != string(want) {
		t.Errorf("Content = %v, want %v", s.Content, want)
	}
}

func TestSectionSetHereBackwardTruncates(t *testing.T) {
	s := &Section{}
	s.Write([]byte{1, 2, 3, 4})
	s.SetHere(2)
	if s.Here() != 2 {
		t.Fatalf("Here() = %d, want 2", s.Here())
	}
	s.Write([]byte{9})
	want := []byte{1, 2, 9}
	if string(s.Content) != string(want) {
		t.Errorf("Content = %v, want %v", s.Content, want)
	}
}

func TestAbsoluteSectionHasNoBackingBytes(t *testing.T) {
	s := &Section{Absolute: true}
	s.Write(make([]byte, 8))
	if s.Here() != 8 {
		t.Errorf("Here() = %d, want 8", s.Here())
	}
	if s.Content != nil {
		t.Errorf("Content = %v, want nil for an absolute section", s.Content)
	}
}

func TestSectionAddRelocationAndCodeFlow(t *testing.T) {
	s := &Section{}
	s.Write([]byte{0, 0, 0, 0})
	s.AddRelocation(RelocLow32, SymbolID(3), 8)
	if len(s.Relocations) != 1 || s.Relocations[0].Offset != 4 {
		t.Errorf("Relocations = %+v, want one entry at offset 4", s.Relocations)
	}
	s.AddCodeFlow(0x100, CFJump)
	if len(s.CodeFlow) != 1 || s.CodeFlow[0].Offset != 4 || s.CodeFlow[0].Target != 0x100 {
		t.Errorf("CodeFlow = %+v", s.CodeFlow)
	}
}

func TestSectionSetCreateFindGet(t *testing.T) {
	ss := NewSectionSet()
	if ss.Get(NoSection) != nil {
		t.Error("Get(NoSection) should be nil")
	}
	text := ss.Create(".text", SectionText, "")
	if got := ss.Find(".text", SectionText, ""); got != text {
		t.Errorf("Find did not return the just-created section")
	}
	if got := ss.Find(".text", SectionText, "kernel1"); got != nil {
		t.Error("Find should not match a different owner")
	}
	if got := ss.Get(text.ID); got != text {
		t.Errorf("Get(%d) = %v, want %v", text.ID, got, text)
	}
	if len(ss.All()) != 1 {
		t.Errorf("All() has %d entries, want 1", len(ss.All()))
	}
}

func TestSectionKindString(t *testing.T) {
	if got := SectionText.String(); got != "text" {
		t.Errorf("SectionText.String() = %q, want text", got)
	}
	if got := SectionKind(999).String(); got != "unknown" {
		t.Errorf("unknown kind String() = %q, want unknown", got)
	}
}
