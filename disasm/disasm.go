// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package disasm implements the format-agnostic disassembly path
// (C10): given a format.Handler's ParseBinary output and a real
// per-architecture gcnasm.IsaDisassembler, it reconstructs assembly
// source text, synthesizing ".L<offset>" labels for branch targets an
// IsaDisassembler's analysis pass discovers and re-expressing
// relocations as the Disassembler implementation's own operand text
// (e.g. "sym+N") rather than trying to print raw relocation records.
package disasm

import (
	"fmt"
	"strings"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/format"
)

// Options controls the disassembly path's output.
type Options struct {
	// DontPrintLabels suppresses synthesized .L<offset> labels,
	// forwarded directly to IsaDisassembler.SetDontPrintLabels.
	DontPrintLabels bool
}

// Disassemble reconstructs source text from a parsed binary. dis is
// reused across kernels: ClearRelocations resets it between each one.
func Disassemble(in *format.DisasmInput, dis gcnasm.IsaDisassembler, symbols *gcnasm.SymbolTable, opts Options) (string, error) {
	if in == nil {
		return "", fmt.Errorf("disasm: nil input")
	}
	var out strings.Builder

	fmt.Fprintf(&out, ".%s\n", in.Format)
	fmt.Fprintf(&out, "// architecture: %s\n", in.Architecture)

	if len(in.GlobalData) > 0 {
		out.WriteString(".rodata\n")
		writeDataBytes(&out, in.GlobalData)
	}

	textSections := textSectionsOf(in)

	for i := range in.Kernels {
		k := &in.Kernels[i]
		fmt.Fprintf(&out, ".kernel %s\n", k.Name)
		for _, a := range k.Args {
			fmt.Fprintf(&out, "// arg %s: %s/%s size=%d align=%d\n", a.Name, a.ValueKind, a.ValueType, a.Size, a.Align)
		}

		sec := kernelTextSection(textSections, i)
		if sec == nil {
			continue
		}
		if err := disassembleSection(&out, sec, dis, symbols, opts); err != nil {
			return "", fmt.Errorf("disasm: kernel %q: %w", k.Name, err)
		}
	}

	return out.String(), nil
}

// textSectionsOf collects every executable-code section from the
// parsed binary, in the order ParseBinary produced them.
func textSectionsOf(in *format.DisasmInput) []*gcnasm.Section {
	var out []*gcnasm.Section
	for i := range in.Sections {
		if in.Sections[i].Kind == gcnasm.SectionText {
			out = append(out, &in.Sections[i])
		}
	}
	return out
}

// kernelTextSection resolves kernel index i to its code section: a
// container with one .text per kernel (legacy AMD) indexes by
// position, while an input with a single code section (AMDCL2, whose
// ParseBinary returns one .hsatext section; Gallium; ROCm) returns
// that lone section for every kernel.
func kernelTextSection(sections []*gcnasm.Section, i int) *gcnasm.Section {
	switch {
	case len(sections) == 0:
		return nil
	case len(sections) == 1:
		return sections[0]
	case i < len(sections):
		return sections[i]
	default:
		return sections[len(sections)-1]
	}
}

func disassembleSection(out *strings.Builder, sec *gcnasm.Section, dis gcnasm.IsaDisassembler, symbols *gcnasm.SymbolTable, opts Options) error {
	dis.ClearRelocations()
	dis.SetInput(sec.Content, 0)
	dis.SetDontPrintLabels(opts.DontPrintLabels)

	for _, r := range sec.Relocations {
		dis.AddRelocation(r.Offset, r.Kind, int(r.Symbol), r.Addend)
	}
	if symbols != nil {
		for _, sym := range symbols.All() {
			if sym.Section == sec.ID && sym.Defined() {
				dis.AddNamedLabel(sym.Value, sym.Name)
			}
		}
	}

	dis.AnalyzeBeforeDisassemble()
	dis.PrepareLabelsAndRelocations()

	for {
		line, _, ok := dis.Disassemble()
		if !ok {
			break
		}
		if strings.HasSuffix(line, ":") {
			out.WriteString(line)
		} else {
			out.WriteString("\t")
			out.WriteString(line)
		}
		out.WriteString("\n")
	}
	return nil
}

// writeDataBytes emits .byte lines, 16 bytes per line, the conventional
// disassembler-output wrapping width.
func writeDataBytes(out *strings.Builder, data []byte) {
	const perLine = 16
	for i := 0; i < len(data); i += perLine {
		end := i + perLine
		if end > len(data) {
			end = len(data)
		}
		fields := make([]string, 0, end-i)
		for _, b := range data[i:end] {
			fields = append(fields, fmt.Sprintf("0x%02x", b))
		}
		fmt.Fprintf(out, "\t.byte %s\n", strings.Join(fields, ","))
	}
}
