// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package disasm

import (
	"strconv"
	"strings"
	"testing"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/format"
	"github.com/gcnkit/gcnasm/isatest"
)

// buildCode assembles raw toy-ISA bytes directly (bypassing the
// assembler front end) so a test can hand-construct a binary's
// section content and relocation set for Disassemble to consume.
// It returns the assembled code along with the byte offsets of the
// branch instruction and the instruction immediately following it.
func buildCode() (code []byte, branchOffset, afterBranchOffset int64) {
	enc := isatest.Encoder{}
	var out []byte
	emit := func(b []byte) { out = append(out, b...) }
	symtab := gcnasm.NewSymbolTable()
	lookup := func(name string) (gcnasm.SymbolID, bool) { return symtab.Intern(name), true }
	noop := func(string, ...interface{}) {}

	enc.Encode("mov r0, #5", gcnasm.ArchGCN1_2, emit, func(gcnasm.RelocKind, gcnasm.SymbolID, int64) {}, lookup, noop)
	branchOffset = int64(len(out))
	enc.Encode("branch target", gcnasm.ArchGCN1_2, emit, func(gcnasm.RelocKind, gcnasm.SymbolID, int64) {}, lookup, noop)
	afterBranchOffset = int64(len(out))
	enc.Encode("endpgm", gcnasm.ArchGCN1_2, emit, func(gcnasm.RelocKind, gcnasm.SymbolID, int64) {}, lookup, noop)
	return out, branchOffset, afterBranchOffset
}

func TestDisassembleSingleKernelSharedText(t *testing.T) {
	code, _, _ := buildCode()

	in := &format.DisasmInput{
		Format:       format.ROCm,
		Architecture: gcnasm.ArchGCN1_2,
		Kernels: []gcnasm.Kernel{
			{Name: "vecadd", Args: []gcnasm.KernelArg{
				{Name: "n", ValueKind: gcnasm.ValueKindByValue, ValueType: gcnasm.ValueTypeI32, Size: 4, Align: 4},
			}},
		},
		Sections: []gcnasm.Section{
			{ID: 0, Name: ".text", Kind: gcnasm.SectionText, Content: code},
		},
	}

	dis := isatest.NewDisassembler()
	out, err := Disassemble(in, dis, nil, Options{})
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}

	for _, want := range []string{".rocm", "// architecture: GCN1.2", ".kernel vecadd", "// arg n:", "mov r0, #5", "endpgm"} {
		if !strings.Contains(out, want) {
			t.Errorf("output missing %q\nfull output:\n%s", want, out)
		}
	}
}

func TestDisassembleRelocationAndNamedLabel(t *testing.T) {
	code, branchOffset, afterBranchOffset := buildCode()

	symbols := gcnasm.NewSymbolTable()
	targetID := symbols.Intern("target")
	sym := symbols.Get(targetID)
	sym.Value = afterBranchOffset // the instruction right after the branch: "endpgm"
	sym.Section = 0
	sym.Flags |= gcnasm.FlagDefined | gcnasm.FlagOnceDefined | gcnasm.FlagHasValue

	sec := gcnasm.Section{
		ID: 0, Name: ".text", Kind: gcnasm.SectionText, Content: code,
		Relocations: []gcnasm.Relocation{{Offset: branchOffset, Kind: gcnasm.RelocLow32, Symbol: targetID}},
	}
	in := &format.DisasmInput{
		Format:       format.ROCm,
		Architecture: gcnasm.ArchGCN1_2,
		Kernels:      []gcnasm.Kernel{{Name: "k"}},
		Sections:     []gcnasm.Section{sec},
	}

	dis := isatest.NewDisassembler()
	out, err := Disassemble(in, dis, symbols, Options{})
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if !strings.Contains(out, "branch sym"+strconv.Itoa(int(targetID))) {
		t.Errorf("expected a relocation-driven branch operand, got:\n%s", out)
	}
	if !strings.Contains(out, "target:") {
		t.Errorf("expected a named label line for the defined symbol, got:\n%s", out)
	}
}

func TestDisassembleGlobalDataAsRodata(t *testing.T) {
	in := &format.DisasmInput{
		Format:       format.Gallium,
		Architecture: gcnasm.ArchGCN1_0,
		GlobalData:   []byte{0x01, 0x02, 0x03},
	}
	dis := isatest.NewDisassembler()
	out, err := Disassemble(in, dis, nil, Options{})
	if err != nil {
		t.Fatalf("Disassemble: %v", err)
	}
	if !strings.Contains(out, ".rodata") || !strings.Contains(out, "0x01,0x02,0x03") {
		t.Errorf("expected a .rodata dump of the global data, got:\n%s", out)
	}
}

func TestDisassembleNilInputIsAnError(t *testing.T) {
	if _, err := Disassemble(nil, isatest.NewDisassembler(), nil, Options{}); err == nil {
		t.Error("expected an error for a nil DisasmInput")
	}
}

func TestKernelTextSectionPerKernelVsShared(t *testing.T) {
	one := []*gcnasm.Section{{ID: 0}}
	if got := kernelTextSection(one, 5); got != one[0] {
		t.Error("a single shared section should be returned for every kernel index")
	}

	many := []*gcnasm.Section{{ID: 0}, {ID: 1}, {ID: 2}}
	if got := kernelTextSection(many, 1); got != many[1] {
		t.Error("with one section per kernel, index should select positionally")
	}
	if got := kernelTextSection(many, 99); got != many[2] {
		t.Error("an out-of-range index should fall back to the last section")
	}

	if got := kernelTextSection(nil, 0); got != nil {
		t.Error("no sections should return nil")
	}
}
