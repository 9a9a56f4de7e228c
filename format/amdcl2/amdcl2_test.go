// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amdcl2

import (
	"bytes"
	"debug/elf"
	"testing"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/asm"
	"github.com/gcnkit/gcnasm/format"
	"github.com/gcnkit/gcnasm/format/hsaheader"
	"github.com/gcnkit/gcnasm/isatest"
)

func assembleAMDCL2(t *testing.T, driverVersion gcnasm.DriverVersion, source string) *asm.Result {
	t.Helper()
	r := asm.Assemble(asm.Options{
		SourceName:    "test",
		Source:        source,
		Format:        format.AMDCL2,
		Architecture:  gcnasm.ArchGCN1_2,
		DriverVersion: driverVersion,
		Encoder:       isatest.Encoder{},
	})
	if !r.Good {
		for _, d := range r.Diagnostics {
			t.Errorf("diagnostic: %v", d)
		}
		t.Fatal("assembly did not succeed")
	}
	return r
}

func innerELF(t *testing.T, out []byte) *elf.File {
	t.Helper()
	outer, err := elf.NewFile(bytes.NewReader(out))
	if err != nil {
		t.Fatalf("outer ELF: %v", err)
	}
	defer outer.Close()
	sec := outer.Section(".text")
	if sec == nil {
		t.Fatal("outer ELF missing .text (embedded inner ELF)")
	}
	raw, err := sec.Data()
	if err != nil {
		t.Fatalf("outer .text data: %v", err)
	}
	inner, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("inner ELF: %v", err)
	}
	return inner
}

func TestKernelCodeCarriesHSAHeader(t *testing.T) {
	r := assembleAMDCL2(t, 200000, `
.kernel vecadd
.vgprsnum 4
.sgprsnum 8
.text
	nop
	endpgm
`)
	inner := innerELF(t, r.Output)
	defer inner.Close()

	sec := inner.Section(".hsatext")
	if sec == nil {
		t.Fatal("inner ELF missing .hsatext")
	}
	raw, err := sec.Data()
	if err != nil {
		t.Fatalf(".hsatext data: %v", err)
	}
	if len(raw) < hsaheader.Size+8 {
		t.Fatalf(".hsatext too short for a header plus two instructions: %d bytes", len(raw))
	}
	hdr := hsaheader.Unpack(raw[:hsaheader.Size])
	if hdr.CodeVersionMajor != 1 {
		t.Errorf("CodeVersionMajor = %d, want 1", hdr.CodeVersionMajor)
	}
	if hdr.KernelCodeEntryOffset != hsaheader.Size {
		t.Errorf("KernelCodeEntryOffset = %d, want %d", hdr.KernelCodeEntryOffset, hsaheader.Size)
	}
	code := raw[hsaheader.Size:]
	want := []byte{0x00, 0x00, 0x00, 0x00, 0x01, 0x00, 0x00, 0x00} // nop, endpgm
	if !bytes.Equal(code, want) {
		t.Errorf("code after header = %x, want %x", code, want)
	}
}

func TestPreHSAStubDriverUsesPlaceholder(t *testing.T) {
	r := assembleAMDCL2(t, preHSAStubDriverVersion-1, `
.kernel vecadd
.text
	nop
`)
	inner := innerELF(t, r.Output)
	defer inner.Close()
	raw, err := inner.Section(".hsatext").Data()
	if err != nil {
		t.Fatalf(".hsatext data: %v", err)
	}
	if len(raw) != 16+4 {
		t.Fatalf("len(.hsatext) = %d, want 20 (16-byte stub + one instruction)", len(raw))
	}
	if !bytes.Equal(raw[:16], make([]byte, 16)) {
		t.Errorf("pre-HSA stub should be all zero, got %x", raw[:16])
	}
}

func TestHSALayoutSharesOneTextAcrossKernels(t *testing.T) {
	r := assembleAMDCL2(t, 200000, `
.hsalayout
.kernel a
.text
	nop
.kernel b
.text
	nop
`)
	inner := innerELF(t, r.Output)
	defer inner.Close()
	if n := len(sectionsNamed(inner, ".hsatext")); n != 1 {
		t.Errorf("with .hsalayout, expected exactly one .hsatext section, got %d", n)
	}
}

func TestWithoutHSALayoutEachKernelGetsOwnText(t *testing.T) {
	r := assembleAMDCL2(t, 200000, `
.kernel a
.text
	nop
.kernel b
.text
	nop
`)
	inner := innerELF(t, r.Output)
	defer inner.Close()
	if n := len(sectionsNamed(inner, ".hsatext")); n != 2 {
		t.Errorf("without .hsalayout, expected one .hsatext per kernel, got %d", n)
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

func TestUseSetupPrependsHiddenArgs(t *testing.T) {
	r := assembleAMDCL2(t, 200000, `
.kernel vecadd
.usesetup
.arg n, int, 4, 4, ByValue, I32
.text
	nop
`)
	outer, err := elf.NewFile(bytes.NewReader(r.Output))
	if err != nil {
		t.Fatalf("outer ELF: %v", err)
	}
	defer outer.Close()
	meta := outer.Section(".comment.vecadd")
	if meta == nil {
		t.Fatal("outer ELF missing .comment.vecadd")
	}
	raw, err := meta.Data()
	if err != nil {
		t.Fatalf(".comment.vecadd data: %v", err)
	}
	// 4 header words (rsrc1, rsrc2, localSize, argCount) plus 6 hidden
	// args plus 1 declared arg, each arg 10 bytes: 4*4 + 7*10 = 86.
	if want := 16 + 7*10; len(raw) != want {
		t.Errorf("metadata length = %d, want %d", len(raw), want)
	}
}

func TestDataSectionRolesGetDistinctNames(t *testing.T) {
	r := assembleAMDCL2(t, 200000, `
.kernel a
.text
	nop
.rodata
	.byte 1
.data
	.byte 2
.bss
	.skip 4
`)
	inner := innerELF(t, r.Output)
	defer inner.Close()
	for _, name := range []string{".hsadata_readonly_agent", ".hsadata_global_agent", ".hsabss_global_agent"} {
		if inner.Section(name) == nil {
			t.Errorf("inner ELF missing %s", name)
		}
	}
}

func TestParseBinaryRecoversHSAText(t *testing.T) {
	r := assembleAMDCL2(t, 200000, `
.kernel a
.text
	nop
	endpgm
`)
	h := New(gcnasm.ArchGCN1_2, 200000, gcnasm.NewSectionSet(), gcnasm.NewSymbolTable())
	in, err := h.ParseBinary(r.Output)
	if err != nil {
		t.Fatalf("ParseBinary: %v", err)
	}
	if len(in.Sections) != 1 || in.Sections[0].Name != ".hsatext" {
		t.Fatalf("Sections = %+v, want one .hsatext section", in.Sections)
	}
}
