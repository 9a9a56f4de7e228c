// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package elfbuild

import (
	"bytes"
	"debug/elf"
	"testing"
)

func TestBytesRoundTripsThroughDebugElf64(t *testing.T) {
	b := NewBuilder(elf.ELFCLASS64, elf.Machine(EM_AMDGPU), elf.ET_DYN)
	b.AddSection(Section{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: []byte{0x01, 0x02, 0x03, 0x04}, Align: 256})
	b.AddSection(Section{Name: ".rodata", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC, Data: []byte("hello"), Align: 16})
	b.AddSymbol(Symbol{Name: "mykernel", Value: 0, Size: 4, Info: ST_INFO(elf.STB_GLOBAL, elf.STT_FUNC), Section: 0})

	raw, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}

	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("debug/elf rejected the image: %v", err)
	}
	defer f.Close()

	if f.Class != elf.ELFCLASS64 {
		t.Errorf("Class = %v, want ELFCLASS64", f.Class)
	}
	if f.Machine != elf.Machine(EM_AMDGPU) {
		t.Errorf("Machine = %v, want %v", f.Machine, EM_AMDGPU)
	}
	if f.Type != elf.ET_DYN {
		t.Errorf("Type = %v, want ET_DYN", f.Type)
	}

	text := f.Section(".text")
	if text == nil {
		t.Fatal(".text section missing")
	}
	data, err := text.Data()
	if err != nil {
		t.Fatalf(".text.Data(): %v", err)
	}
	if !bytes.Equal(data, []byte{0x01, 0x02, 0x03, 0x04}) {
		t.Errorf(".text content = %x, want 01020304", data)
	}

	rodata := f.Section(".rodata")
	if rodata == nil {
		t.Fatal(".rodata section missing")
	}
	rdata, err := rodata.Data()
	if err != nil {
		t.Fatalf(".rodata.Data(): %v", err)
	}
	if string(rdata) != "hello" {
		t.Errorf(".rodata content = %q, want %q", rdata, "hello")
	}

	syms, err := f.Symbols()
	if err != nil {
		t.Fatalf("Symbols: %v", err)
	}
	found := false
	for _, s := range syms {
		if s.Name == "mykernel" {
			found = true
			if elf.ST_BIND(s.Info) != elf.STB_GLOBAL {
				t.Errorf("mykernel bind = %v, want STB_GLOBAL", elf.ST_BIND(s.Info))
			}
		}
	}
	if !found {
		t.Error("symbol \"mykernel\" not found in round-tripped image")
	}
}

func TestBytesRejectsUnsupportedClass(t *testing.T) {
	b := NewBuilder(elf.Class(0xff), elf.EM_NONE, elf.ET_REL)
	if _, err := b.Bytes(); err == nil {
		t.Error("expected an error for an unsupported ELF class")
	}
}

func TestBytesNoSymbolsOmitsSymtab(t *testing.T) {
	b := NewBuilder(elf.ELFCLASS32, elf.EM_NONE, elf.ET_REL)
	b.AddSection(Section{Name: ".text", Type: elf.SHT_PROGBITS, Data: []byte{0xaa}})

	raw, err := b.Bytes()
	if err != nil {
		t.Fatalf("Bytes: %v", err)
	}
	f, err := elf.NewFile(bytes.NewReader(raw))
	if err != nil {
		t.Fatalf("debug/elf rejected the image: %v", err)
	}
	defer f.Close()
	if s := f.Section(".symtab"); s != nil {
		t.Error(".symtab should be absent when no symbols were added")
	}
}
