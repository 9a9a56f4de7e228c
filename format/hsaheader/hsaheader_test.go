// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package hsaheader

import (
	"reflect"
	"testing"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	h := Header{
		CodeVersionMajor:            1,
		MachineKind:                 1,
		ComputePgmRsrc1:             0x01234567,
		ComputePgmRsrc2:             0x89abcdef,
		EnableSgprRegisterFlags:     SgprKernargSegmentPtr | SgprDispatchPtr,
		EnableFeatureFlags:          FeatureUsePtr64 | FeatureXnackEnabled,
		KernelCodeEntryOffset:       Size,
		KernargSegmentSize:          64,
		WorkgroupGroupSegmentSize:   256,
		WorkitemPrivateSegmentSize:  128,
		KernargSegmentAlignmentLog2: 4,
		WavefrontSizeLog2:           6,
		RuntimeLoaderKernelSymbol:   0xdeadbeefcafebabe,
	}
	h.ControlDirective[0] = 0xaa
	h.ControlDirective[127] = 0xbb

	packed := h.Pack()
	if len(packed) != Size {
		t.Fatalf("Pack() returned %d bytes, want %d", len(packed), Size)
	}

	got := Unpack(packed)
	if !reflect.DeepEqual(h, got) {
		t.Errorf("Unpack(Pack(h)) != h\nwant: %+v\ngot:  %+v", h, got)
	}
}

func TestPackRsrc1Fields(t *testing.T) {
	// vgprs=8 -> (8-1)/4=1, sgprs=16 -> (16-1)/8=1, priority=2, floatMode=0xf0.
	got := PackRsrc1(8, 16, 2, 0xf0, true, false, true, false)
	want := uint32(1)<<0 | uint32(1)<<6 | uint32(2)<<10 | uint32(0xf0)<<12 | uint32(1)<<20 | uint32(1)<<22
	if got != want {
		t.Errorf("PackRsrc1 = %#x, want %#x", got, want)
	}
}

func TestPackRsrc1ZeroCountsContributeNoBits(t *testing.T) {
	got := PackRsrc1(0, 0, 0, 0, false, false, false, false)
	if got != 0 {
		t.Errorf("PackRsrc1(0,...) = %#x, want 0", got)
	}
}

func TestPackRsrc2(t *testing.T) {
	got := PackRsrc2(true, 0x07)
	want := uint32(1)<<10 | uint32(0x07)<<24
	if got != want {
		t.Errorf("PackRsrc2 = %#x, want %#x", got, want)
	}
}
