// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package metadata

import (
	"reflect"
	"testing"

	"github.com/gcnkit/gcnasm"
)

func sampleDoc() Metadata {
	return Metadata{
		Version: [2]int{1, 0},
		Printf:  []string{"1:1:4:%d\n"},
		Kernels: []Kernel{
			{
				Name:       "vecadd",
				SymbolName: "vecadd.kd",
				Attrs:      Attrs{ReqdWorkGroupSize: [3]int{64, 1, 1}},
				Args: []Arg{
					{Name: "a", Size: 8, Align: 8, ValueKind: ValueKind(gcnasm.ValueKindGlobalBuffer), ValueType: ValueType(gcnasm.ValueTypeF32), AddrSpaceQual: "Global"},
					{Name: "n", Size: 4, Align: 4, ValueKind: ValueKind(gcnasm.ValueKindByValue), ValueType: ValueType(gcnasm.ValueTypeI32)},
				},
				CodeProps: CodeProps{
					KernargSegmentSize: 16, GroupSegmentFixedSize: 0, PrivateSegmentFixedSize: 0,
					KernargSegmentAlign: 8, WavefrontSize: 64, NumSGPRs: 8, NumVGPRs: 4,
					MaxFlatWorkGroupSize: 256,
				},
			},
		},
	}
}

func TestYAMLRoundTrip(t *testing.T) {
	doc := sampleDoc()
	raw, err := EncodeYAML(doc)
	if err != nil {
		t.Fatalf("EncodeYAML: %v", err)
	}
	got, err := DecodeYAML(raw)
	if err != nil {
		t.Fatalf("DecodeYAML: %v", err)
	}
	if !reflect.DeepEqual(doc, got) {
		t.Errorf("YAML round trip mismatch\nwant: %+v\ngot:  %+v\nraw:\n%s", doc, got, raw)
	}
}

func TestMsgPackRoundTrip(t *testing.T) {
	doc := sampleDoc()
	raw, err := EncodeMsgPack(doc)
	if err != nil {
		t.Fatalf("EncodeMsgPack: %v", err)
	}
	got, err := DecodeMsgPack(raw)
	if err != nil {
		t.Fatalf("DecodeMsgPack: %v", err)
	}
	if !reflect.DeepEqual(doc, got) {
		t.Errorf("MsgPack round trip mismatch\nwant: %+v\ngot:  %+v", doc, got)
	}
}

func TestFromKernelArgToKernelArgRoundTrip(t *testing.T) {
	arg := gcnasm.NewKernelArg("buf")
	arg.Size, arg.Align = 8, 8
	arg.ValueKind = gcnasm.ValueKindGlobalBuffer
	arg.ValueType = gcnasm.ValueTypeF32
	arg.IsConst = true

	meta := FromKernelArg(arg)
	back := meta.ToKernelArg()

	if back.Name != arg.Name || back.Size != arg.Size || back.Align != arg.Align {
		t.Errorf("ToKernelArg() = %+v, want fields matching %+v", back, arg)
	}
	if back.ValueKind != arg.ValueKind || back.ValueType != arg.ValueType {
		t.Errorf("ValueKind/ValueType not preserved: got %v/%v, want %v/%v", back.ValueKind, back.ValueType, arg.ValueKind, arg.ValueType)
	}
	if back.IsConst != true {
		t.Error("IsConst should round-trip as true")
	}
}
