package gcnasm

// IsaEncoder is the per-architecture GCN instruction encoder
// collaborator. It is deliberately external to this module: one
// opcode maps to one bit pattern, and that table is not part of the
// assembler core. The assembler driver (C4) calls Encode once per
// instruction line with the current architecture and the callbacks it
// needs to emit bytes, request a relocation, and look up/force a
// forward-referenced symbol.
type IsaEncoder interface {
	// Encode parses and encodes a single instruction line (with the
	// leading opcode mnemonic and operand text, comments already
	// stripped) against arch. It uses emit to append encoded bytes,
	// reloc to request a relocation against a forward/external
	// symbol at the byte offset just emitted, and errs to report a
	// non-fatal encoding error (bad mnemonic, bad operand, etc).
	// Encode returns false if the line could not be recognized as an
	// instruction at all (letting the caller report "invalid
	// opcode"), true otherwise (even if errs received a diagnostic).
	Encode(line string, arch GPUArchitecture, emit func([]byte), reloc func(kind RelocKind, symbol SymbolID, addend int64), lookup func(name string) (SymbolID, bool), errs func(format string, args ...interface{})) bool
}

// IsaDisassembler is the per-architecture GCN instruction decoder
// collaborator. The disassembly path (C10) drives one
// instance per code region: set the input bytes, run the two
// decoding passes, and ask for each instruction's mnemonic text in
// turn.
type IsaDisassembler interface {
	// SetInput binds the decoder to a byte slice, with baseOffset
	// added to every offset reported to/from the decoder (so a
	// kernel's private code section can be decoded starting at
	// offset 0 while still reporting absolute offsets for relocation
	// and label lookups).
	SetInput(code []byte, baseOffset int64)

	// AnalyzeBeforeDisassemble performs a first pass over the bound
	// input collecting branch targets, without producing text, so
	// the caller can synthesize .L<offset> labels before the second,
	// text-producing pass.
	AnalyzeBeforeDisassemble()

	// PrepareLabelsAndRelocations is called after
	// AnalyzeBeforeDisassemble and after the caller has registered
	// any named labels/relocations it already knows about (from the
	// container's symbol table), so the decoder can merge them with
	// the branch targets it found.
	PrepareLabelsAndRelocations()

	// AddNamedLabel registers a label the caller already knows the
	// name of (e.g. from an ELF symbol) at offset.
	AddNamedLabel(offset int64, name string)

	// AddRelocation registers a relocation the caller parsed from the
	// container directly (as opposed to one the decoder infers from
	// branch analysis).
	AddRelocation(offset int64, kind RelocKind, symbolIndex int, addend int64)

	// ClearRelocations drops all previously registered relocations
	// (used when re-disassembling the same decoder instance against
	// a different kernel's relocation set).
	ClearRelocations()

	// SetDontPrintLabels suppresses synthesized .L<offset> label
	// lines from Disassemble's output (used for the raw/"don't
	// symbolicate" disassembly mode).
	SetDontPrintLabels(dont bool)

	// Disassemble runs the second pass, returning one formatted
	// instruction-or-label line per call, and the next offset to
	// decode from. ok is false once the bound input is exhausted.
	Disassemble() (line string, next int64, ok bool)
}
