// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gcnasm

import "testing"

func TestValueKindStringRoundTrip(t *testing.T) {
	for v := ValueKindByValue; v <= ValueKindHiddenGridDims; v++ {
		name := v.String()
		got, ok := ParseValueKind(name)
		if !ok || got != v {
			t.Errorf("ParseValueKind(%q) = %v, %v, want %v, true", name, got, ok, v)
		}
	}
}

func TestValueKindUnknown(t *testing.T) {
	if got := ValueKind(1000).String(); got != "Unknown" {
		t.Errorf("ValueKind(1000).String() = %q, want Unknown", got)
	}
	if _, ok := ParseValueKind("NotARealKind"); ok {
		t.Error("ParseValueKind should fail on an unrecognized name")
	}
}

func TestValueTypeStringRoundTrip(t *testing.T) {
	for v := ValueTypeStruct; v <= ValueTypeF64; v++ {
		name := v.String()
		got, ok := ParseValueType(name)
		if !ok || got != v {
			t.Errorf("ParseValueType(%q) = %v, %v, want %v, true", name, got, ok, v)
		}
	}
}

func TestNewKernelArgSentinels(t *testing.T) {
	a := NewKernelArg("buf")
	if a.Name != "buf" {
		t.Errorf("Name = %q, want buf", a.Name)
	}
	if a.Size != NotSupplied || a.Align != NotSupplied {
		t.Error("Size/Align should default to NotSupplied")
	}
	if a.TargetSize != NotSupplied || a.TargetAlign != NotSupplied || a.PointeeAlign != NotSupplied {
		t.Error("TargetSize/TargetAlign/PointeeAlign should default to NotSupplied")
	}
	if a.ValueKind != ValueKindByValue {
		t.Errorf("ValueKind zero value = %v, want ValueKindByValue", a.ValueKind)
	}
}
