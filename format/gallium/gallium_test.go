// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gallium

import (
	"bytes"
	"debug/elf"
	"encoding/hex"
	"testing"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/asm"
	"github.com/gcnkit/gcnasm/format"
	"github.com/gcnkit/gcnasm/format/hsaheader"
	"github.com/gcnkit/gcnasm/isatest"
)

func assembleGallium(t *testing.T, llvmVersion gcnasm.LLVMVersion, source string) *asm.Result {
	t.Helper()
	r := asm.Assemble(asm.Options{
		SourceName:   "test",
		Source:       source,
		Format:       format.Gallium,
		Architecture: gcnasm.ArchGCN1_2,
		LLVMVersion:  llvmVersion,
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

func TestKernelsShareOneTextSection(t *testing.T) {
	r := assembleGallium(t, 0, `
.kernel a
.text
	nop
.kernel b
.text
	endpgm
`)
	f := openELF(t, r.Output)
	defer f.Close()

	if n := len(sectionsNamed(f, ".text")); n != 1 {
		t.Errorf(".text sections = %d, want 1 (shared across kernels)", n)
	}
	text := f.Section(".text")
	raw, err := text.Data()
	if err != nil {
		t.Fatalf(".text data: %v", err)
	}
	want := "0000000001000000" // nop, endpgm
	if got := hex.EncodeToString(raw); got != want {
		t.Errorf(".text = %s, want %s", got, want)
	}
}

func TestNoAMDHSAHeaderBelowLLVM4(t *testing.T) {
	r := assembleGallium(t, gcnasm.MakeLLVMVersion(3, 9, 0), `
.kernel a
.vgprsnum 4
.text
	nop
`)
	f := openELF(t, r.Output)
	defer f.Close()
	raw, _ := f.Section(".text").Data()
	if len(raw) != 4 {
		t.Errorf("len(.text) = %d, want 4 (no AMDHSA header below LLVM 4.0)", len(raw))
	}
}

func TestAMDHSAHeaderWrittenAtLLVM4(t *testing.T) {
	r := assembleGallium(t, gcnasm.MakeLLVMVersion(4, 0, 0), `
.kernel a
.vgprsnum 4
.sgprsnum 8
.text
	nop
`)
	f := openELF(t, r.Output)
	defer f.Close()
	raw, err := f.Section(".text").Data()
	if err != nil {
		t.Fatalf(".text data: %v", err)
	}
	if len(raw) != hsaheader.Size+4 {
		t.Fatalf("len(.text) = %d, want header + one instruction", len(raw))
	}
	hdr := hsaheader.Unpack(raw[:hsaheader.Size])
	want := hsaheader.PackRsrc1(4, 8, 0, 0, false, false, false, true)
	if hdr.ComputePgmRsrc1 != want {
		t.Errorf("ComputePgmRsrc1 = %#x, want %#x", hdr.ComputePgmRsrc1, want)
	}
}

func TestHSAConfigOverridesComputedRsrc(t *testing.T) {
	r := assembleGallium(t, gcnasm.MakeLLVMVersion(4, 0, 0), `
.kernel a
.vgprsnum 4
.hsaconfig
.hsarsrc1 0x12345678
.hsarsrc2 0x9
.text
	nop
`)
	f := openELF(t, r.Output)
	defer f.Close()
	raw, _ := f.Section(".text").Data()
	hdr := hsaheader.Unpack(raw[:hsaheader.Size])
	if hdr.ComputePgmRsrc1 != 0x12345678 {
		t.Errorf("ComputePgmRsrc1 = %#x, want 0x12345678 (explicit .hsarsrc1 overrides computed value)", hdr.ComputePgmRsrc1)
	}
	if hdr.ComputePgmRsrc2 != 0x9 {
		t.Errorf("ComputePgmRsrc2 = %#x, want 0x9", hdr.ComputePgmRsrc2)
	}
}

func TestProgInfoGrowsAtLLVM39(t *testing.T) {
	below := assembleGallium(t, gcnasm.MakeLLVMVersion(3, 8, 0), ".kernel a\n.text\n\tnop")
	atLeast := assembleGallium(t, gcnasm.MakeLLVMVersion(3, 9, 0), ".kernel a\n.text\n\tnop")

	belowLen := len(configSection(t, below.Output))
	atLeastLen := len(configSection(t, atLeast.Output))
	if atLeastLen-belowLen != 16 {
		t.Errorf(".AMDGPU.config grew by %d bytes at LLVM>=3.9, want 16 (two more 8-byte entries)", atLeastLen-belowLen)
	}
}

func configSection(t *testing.T, out []byte) []byte {
	t.Helper()
	f := openELF(t, out)
	defer f.Close()
	sec := f.Section(".AMDGPU.config")
	if sec == nil {
		t.Fatal("missing .AMDGPU.config")
	}
	raw, err := sec.Data()
	if err != nil {
		t.Fatalf(".AMDGPU.config data: %v", err)
	}
	return raw
}

func TestKernelTableRoundTripsThroughParseBinary(t *testing.T) {
	r := assembleGallium(t, 0, `
.kernel vecadd
.arg n, scalar, 4
.arg buf, global, 8
.text
	nop
`)
	h := New(gcnasm.ArchGCN1_2, 0, gcnasm.NewSectionSet(), gcnasm.NewSymbolTable())
	in, err := h.ParseBinary(r.Output)
	if err != nil {
		t.Fatalf("ParseBinary: %v", err)
	}
	if len(in.Kernels) != 1 || in.Kernels[0].Name != "vecadd" {
		t.Fatalf("Kernels = %+v, want one kernel named vecadd", in.Kernels)
	}
	args := in.Kernels[0].Args
	if len(args) != 2 || args[0].Name != "n" || args[1].Name != "buf" {
		t.Fatalf("Args = %+v, want [n buf]", args)
	}
	if args[0].GalliumType != gcnasm.GalliumArgScalar || args[1].GalliumType != gcnasm.GalliumArgGlobal {
		t.Errorf("GalliumType not preserved: %+v", args)
	}
	if args[0].Size != 4 || args[1].Size != 8 {
		t.Errorf("Size not preserved: %+v", args)
	}
	if len(in.Sections) != 1 || in.Sections[0].Name != ".text" {
		t.Fatalf("Sections = %+v, want one .text section", in.Sections)
	}
}

func sectionsNamed(f *elf.File, name string) []*elf.Section {
	var out []*elf.Section
	for _, s := range f.Sections {
		if s.Name == name {
			out = append(out, s)
		}
	}
	return out
}

