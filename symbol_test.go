// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcnasm

import "testing"

func TestSymbolTableInternIsIdempotent(t *testing.T) {
	tab := NewSymbolTable()
	id1 := tab.Intern("foo")
	id2 := tab.Intern("foo")
	if id1 != id2 {
		t.Errorf("Intern(\"foo\") twice returned different ids: %d, %d", id1, id2)
	}
	if tab.Len() != 1 {
		t.Errorf("Len() = %d, want 1", tab.Len())
	}
}

func TestSymbolTableLookupAndGetByName(t *testing.T) {
	tab := NewSymbolTable()
	if _, ok := tab.Lookup("missing"); ok {
		t.Error("Lookup should fail for an uninterned name")
	}
	id := tab.Intern("bar")
	got, ok := tab.Lookup("bar")
	if !ok || got != id {
		t.Errorf("Lookup(bar) = %d, %v, want %d, true", got, ok, id)
	}
	sym := tab.GetByName("bar")
	if sym == nil || sym.Name != "bar" {
		t.Errorf("GetByName(bar) = %+v", sym)
	}
	if tab.GetByName("nope") != nil {
		t.Error("GetByName should return nil for an unknown name")
	}
}

func TestSymbolTableOrderMatchesInsertion(t *testing.T) {
	tab := NewSymbolTable()
	tab.Intern("a")
	tab.Intern("b")
	tab.Intern("c")
	all := tab.All()
	if len(all) != 3 || all[0].Name != "a" || all[1].Name != "b" || all[2].Name != "c" {
		t.Errorf("All() order = %v, want [a b c]", namesOf(all))
	}
}

func namesOf(syms []*Symbol) []string {
	out := make([]string, len(syms))
	for i, s := range syms {
		out[i] = s.Name
	}
	return out
}

func TestSymbolFlagsQueries(t *testing.T) {
	s := &Symbol{Flags: FlagDefined | FlagSnapshot}
	if !s.Defined() {
		t.Error("Defined() should be true")
	}
	if s.OnceDefined() {
		t.Error("OnceDefined() should be false")
	}
	if !s.IsSnapshot() {
		t.Error("IsSnapshot() should be true")
	}
}
