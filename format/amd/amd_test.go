// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amd

import (
	"bytes"
	"debug/elf"
	"encoding/hex"
	"strings"
	"testing"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/asm"
	"github.com/gcnkit/gcnasm/format"
	"github.com/gcnkit/gcnasm/isatest"
)

func assembleAMD(t *testing.T, source string) *asm.Result {
	t.Helper()
	r := asm.Assemble(asm.Options{
		SourceName:   "test",
		Source:       source,
		Format:       format.AMD,
		Architecture: gcnasm.ArchGCN1_0,
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

func TestOuterELFCarriesOneSectionPerKernel(t *testing.T) {
	r := assembleAMD(t, `
.kernel vecadd
.config
.vgprsnum 4
.sgprsnum 8
.arg value, foo
.text
	nop
	endpgm
.kernel scale
.config
.vgprsnum 2
.text
	nop
	endpgm
`)

	outer, err := elf.NewFile(bytes.NewReader(r.Output))
	if err != nil {
		t.Fatalf("outer ELF: %v", err)
	}
	defer outer.Close()

	if outer.Class != elf.ELFCLASS32 {
		t.Errorf("Class = %v, want ELFCLASS32 for GCN1.0", outer.Class)
	}

	for _, name := range []string{"vecadd", "scale"} {
		sec := outer.Section(name)
		if sec == nil {
			t.Fatalf("outer ELF missing section %q", name)
		}
		raw, err := sec.Data()
		if err != nil {
			t.Fatalf("section %q data: %v", name, err)
		}
		inner, err := elf.NewFile(bytes.NewReader(raw))
		if err != nil {
			t.Fatalf("inner ELF for %q: %v", name, err)
		}
		defer inner.Close()

		text := inner.Section(".text")
		if text == nil {
			t.Fatalf("inner ELF for %q missing .text", name)
		}
		code, err := text.Data()
		if err != nil {
			t.Fatalf("inner .text data for %q: %v", name, err)
		}
		want := "0000000001000000" // nop, endpgm
		if got := hex.EncodeToString(code); got != want {
			t.Errorf("kernel %q .text = %s, want %s", name, got, want)
		}

		if inner.Section(".note") == nil {
			t.Errorf("kernel %q missing .note (PROGINFO)", name)
		}
		if inner.Section(".comment") == nil {
			t.Errorf("kernel %q missing .comment (metadata)", name)
		}
	}
}

func TestRodataIsSharedAcrossKernels(t *testing.T) {
	r := assembleAMD(t, `
.kernel a
.config
.rodata
	.byte 1, 2, 3
.text
	endpgm
`)
	outer, err := elf.NewFile(bytes.NewReader(r.Output))
	if err != nil {
		t.Fatalf("outer ELF: %v", err)
	}
	defer outer.Close()

	sec := outer.Section(".rodata")
	if sec == nil {
		t.Fatal("outer ELF missing shared .rodata")
	}
	raw, err := sec.Data()
	if err != nil {
		t.Fatalf(".rodata data: %v", err)
	}
	if hex.EncodeToString(raw) != "010203" {
		t.Errorf(".rodata = %x, want 010203", raw)
	}
}

func TestMetadataContainsArgAndDims(t *testing.T) {
	r := assembleAMD(t, `
.kernel vecadd
.config
.dims x, y
.arg value, foo
.text
	endpgm
`)
	outer, _ := elf.NewFile(bytes.NewReader(r.Output))
	defer outer.Close()
	raw, _ := outer.Section("vecadd").Data()
	inner, _ := elf.NewFile(bytes.NewReader(raw))
	defer inner.Close()
	meta, err := inner.Section(".comment").Data()
	if err != nil {
		t.Fatalf(".comment data: %v", err)
	}
	text := string(meta)
	for _, want := range []string{";dim:0\n", ";dim:1\n", ";value:foo\n", ";ARGSTART", ";ARGEND"} {
		if !strings.Contains(text, want) {
			t.Errorf("metadata missing %q, got:\n%s", want, text)
		}
	}
}

func TestUnterminatedKernelIsClosedAtEOF(t *testing.T) {
	r := assembleAMD(t, ".kernel only\n.config\n.text\n\tendpgm")
	outer, err := elf.NewFile(bytes.NewReader(r.Output))
	if err != nil {
		t.Fatalf("outer ELF: %v", err)
	}
	defer outer.Close()
	if outer.Section("only") == nil {
		t.Error("kernel left open at EOF should still be finalized into the outer ELF")
	}
}

func TestParseBinaryRoundTripsKernelsAndRodata(t *testing.T) {
	r := assembleAMD(t, `
.kernel vecadd
.config
.rodata
	.byte 9
.text
	nop
	endpgm
`)
	h := New(gcnasm.ArchGCN1_0, 0, gcnasm.NewSectionSet(), gcnasm.NewSymbolTable())
	in, err := h.ParseBinary(r.Output)
	if err != nil {
		t.Fatalf("ParseBinary: %v", err)
	}
	if len(in.Kernels) != 1 || in.Kernels[0].Name != "vecadd" {
		t.Fatalf("Kernels = %+v, want one kernel named vecadd", in.Kernels)
	}
	if hex.EncodeToString(in.GlobalData) != "09" {
		t.Errorf("GlobalData = %x, want 09", in.GlobalData)
	}
	if len(in.Sections) != 1 || hex.EncodeToString(in.Sections[0].Content) != "0000000001000000" {
		t.Errorf("Sections = %+v", in.Sections)
	}
}

