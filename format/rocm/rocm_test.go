// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rocm

import (
	"bytes"
	"debug/elf"
	"encoding/hex"
	"testing"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/asm"
	"github.com/gcnkit/gcnasm/format"
	"github.com/gcnkit/gcnasm/format/hsaheader"
	"github.com/gcnkit/gcnasm/format/rocm/metadata"
	"github.com/gcnkit/gcnasm/isatest"
)

func assembleROCm(t *testing.T, source string) *asm.Result {
	t.Helper()
	r := asm.Assemble(asm.Options{
		SourceName:   "test",
		Source:       source,
		Format:       format.ROCm,
		Architecture: gcnasm.ArchGCN1_2,
		Encoder:      isatest.Encoder{},
	})
	if !r.Good {
		for _, d := range r.Diagnostics {
			t.Errorf("diagnostic: %v", d)
		}
		t.Fatal("assembly did not succeed")
	}
	return r
}

func openELF(t *testing.T, out []byte) *elf.File {
	t.Helper()
	f, err := elf.NewFile(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("ELF: %v", err)
	}
	return f
}

func TestTextAlwaysCarriesFullHSAHeader(t *testing.T) {
	r := assembleROCm(t, `
.kernel vecadd
.vgprsnum 4
.sgprsnum 8
.text
	nop
	endpgm
`)
	f := openELF(t, r.Output)
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		t.Errorf("Class = %v, want ELFCLASS64", f.Class)
	}
	if f.Machine != elf.Machine(224) {
		t.Errorf("Machine = %v, want EM_AMDGPU (224)", f.Machine)
	}

	raw, err := f.Section(".text").Data()
	if err != nil {
		t.Fatalf(".text data: %v", err)
	}
	if len(raw) != hsaheader.Size+8 {
		t.Fatalf("len(.text) = %d, want header + two instructions", len(raw))
	}
	hdr := hsaheader.Unpack(raw[:hsaheader.Size])
	if hdr.CodeVersionMajor != 1 {
		t.Errorf("CodeVersionMajor = %d, want 1", hdr.CodeVersionMajor)
	}
	if hdr.KernelCodeEntryOffset != hsaheader.Size {
		t.Errorf("KernelCodeEntryOffset = %d, want %d", hdr.KernelCodeEntryOffset, hsaheader.Size)
	}
	if hdr.WavefrontSizeLog2 != 6 {
		t.Errorf("WavefrontSizeLog2 = %d, want 6", hdr.WavefrontSizeLog2)
	}
	want := hsaheader.PackRsrc1(4, 8, 0, 0, false, false, false, true)
	if hdr.ComputePgmRsrc1 != want {
		t.Errorf("ComputePgmRsrc1 = %#x, want %#x", hdr.ComputePgmRsrc1, want)
	}
	code := raw[hsaheader.Size:]
	wantCode := []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00} // nop, endpgm
	if !bytes.Equal(code, wantCode) {
		t.Errorf("code after header = %x, want %x", code, wantCode)
	}
}

func TestObjectRegionSkipsHeader(t *testing.T) {
	r := assembleROCm(t, `
.kernel blob
.object
.text
	nop
`)
	f := openELF(t, r.Output)
	defer f.Close()
	raw, err := f.Section(".text").Data()
	if err != nil {
		t.Fatalf(".text data: %v", err)
	}
	if len(raw) != 4 {
		t.Errorf("len(.text) = %d, want 4 (no header for .object regions)", len(raw))
	}
}

func TestKernargSegmentAlignLog2EncodesPowerOfTwo(t *testing.T) {
	r := assembleROCm(t, `
.kernel vecadd
.kernargsegmentsize 16
.text
	nop
`)
	f := openELF(t, r.Output)
	defer f.Close()
	raw, _ := f.Section(".text").Data()
	hdr := hsaheader.Unpack(raw[:hsaheader.Size])
	// newKernelConfig defaults kernargSegmentAlign to 8 = 1<<3.
	if hdr.KernargSegmentAlignmentLog2 != 3 {
		t.Errorf("KernargSegmentAlignmentLog2 = %d, want 3 (log2(8))", hdr.KernargSegmentAlignmentLog2)
	}
	if hdr.KernargSegmentSize != 16 {
		t.Errorf("KernargSegmentSize = %d, want 16", hdr.KernargSegmentSize)
	}
}

func noteDesc(t *testing.T, f *elf.File) []byte {
	t.Helper()
	sec := f.Section(".note")
	if sec == nil {
		t.Fatal("missing .note")
	}
	raw, err := sec.Data()
	if err != nil {
		t.Fatalf(".note data: %v", err)
	}
	desc := stripNote(raw)
	if desc == nil {
		t.Fatal("stripNote returned nil")
	}
	return desc
}

func TestMetadataDefaultsToMsgPack(t *testing.T) {
	r := assembleROCm(t, `
.kernel vecadd
.arg n, ByValue, I32, 4, 4
.text
	nop
`)
	f := openELF(t, r.Output)
	defer f.Close()
	desc := noteDesc(t, f)

	doc, err := metadata.DecodeMsgPack(desc)
	if err != nil {
		t.Fatalf("expected .note desc to decode as MsgPack by default: %v", err)
	}
	if len(doc.Kernels) != 1 || doc.Kernels[0].Name != "vecadd" {
		t.Errorf("decoded Kernels = %+v, want one kernel named vecadd", doc.Kernels)
	}
}

func TestMetadataFormatYAMLSwitchesEncoding(t *testing.T) {
	r := assembleROCm(t, `
.kernel vecadd
.metadataformat yaml
.arg n, ByValue, I32, 4, 4
.text
	nop
`)
	f := openELF(t, r.Output)
	defer f.Close()
	desc := noteDesc(t, f)

	if _, err := metadata.DecodeMsgPack(desc); err == nil {
		t.Error(".metadataformat yaml should not produce MsgPack-decodable bytes")
	}
	doc, err := metadata.DecodeYAML(desc)
	if err != nil {
		t.Fatalf("DecodeYAML: %v", err)
	}
	if len(doc.Kernels) != 1 || doc.Kernels[0].Name != "vecadd" {
		t.Errorf("decoded Kernels = %+v, want one kernel named vecadd", doc.Kernels)
	}
}

func TestDynrefWiresSymtabEntryAndRelaSection(t *testing.T) {
	r := assembleROCm(t, `
.kernel vecadd
.text
	nop
helper:
	endpgm
.dynref helper
`)
	f := openELF(t, r.Output)
	defer f.Close()
	if f.Section(".rela.dyn") == nil {
		t.Fatal("missing .rela.dyn after .dynref")
	}
	syms, err := f.Symbols()
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	found := false
	for _, s := range syms {
		if s.Name == "helper" {
			found = true
		}
	}
	if !found {
		t.Errorf("expected a symtab entry named helper, got %+v", syms)
	}
}

func TestNoDynrefMeansNoRelaSection(t *testing.T) {
	r := assembleROCm(t, `
.kernel vecadd
.text
	nop
`)
	f := openELF(t, r.Output)
	defer f.Close()
	if f.Section(".rela.dyn") != nil {
		t.Error("no .dynref was used; .rela.dyn should not be emitted")
	}
}

func TestParseBinaryRecoversKernelsFromNote(t *testing.T) {
	r := assembleROCm(t, `
.kernel vecadd
.arg n, ByValue, I32, 4, 4
.text
	nop
	endpgm
`)
	h := New(gcnasm.ArchGCN1_2, 0, gcnasm.NewSectionSet(), gcnasm.NewSymbolTable())
	in, err := h.ParseBinary(r.Output)
	if err != nil {
		t.Fatalf("ParseBinary: %v", err)
	}
	if len(in.Kernels) != 1 || in.Kernels[0].Name != "vecadd" {
		t.Fatalf("Kernels = %+v, want one kernel named vecadd", in.Kernels)
	}
	if len(in.Kernels[0].Args) != 1 || in.Kernels[0].Args[0].Name != "n" {
		t.Fatalf("Args = %+v, want one arg named n", in.Kernels[0].Args)
	}
	if len(in.Sections) != 1 || in.Sections[0].Name != ".text" {
		t.Fatalf("Sections = %+v, want one .text section", in.Sections)
	}
	wantCode := "0000000001000000"
	if got := hex.EncodeToString(in.Sections[0].Content[hsaheader.Size:]); got != wantCode {
		t.Errorf(".text content after header = %s, want %s", got, wantCode)
	}
}
