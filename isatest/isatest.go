// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package isatest is a deterministic, architecture-independent stand-in
// for the real GCN IsaEncoder/IsaDisassembler collaborator (explicitly
// out of scope for this module: one opcode maps to one bit pattern,
// and that table belongs to a real instruction-set package). It
// implements a tiny four-byte-per-instruction toy ISA wide enough to
// exercise every hook the driver and disassembly path actually call:
// byte emission, relocation requests, forward symbol lookup, and
// two-pass label discovery. It is used only by this module's own
// tests.
package isatest

import (
	"encoding/binary"
	"fmt"
	"strconv"
	"strings"

	"github.com/gcnkit/gcnasm"
)

// instrWidth is the fixed size of every toy instruction, little-endian:
// byte 0 opcode, byte 1 register operand (0 if unused), bytes 2-3 a
// 16-bit immediate or, for branch-class opcodes, unused (the target is
// carried purely as a relocation against the placeholder zero bytes).
const instrWidth = 4

const (
	opNop     = 0x00
	opEndpgm  = 0x01
	opMov     = 0x02 // mov rREG, #IMM | mov rREG, SYMBOL
	opAdd     = 0x03 // add rREG, #IMM
	opBranch  = 0x04 // branch SYMBOL  (unconditional)
	opCBranch = 0x05 // cbranch SYMBOL (conditional)
	opCall    = 0x06 // call SYMBOL
)

var mnemonicByOp = map[byte]string{
	opNop: "nop", opEndpgm: "endpgm", opMov: "mov", opAdd: "add",
	opBranch: "branch", opCBranch: "cbranch", opCall: "call",
}

var opByMnemonic = func() map[string]byte {
	m := make(map[string]byte, len(mnemonicByOp))
	for op, name := range mnemonicByOp {
		m[name] = op
	}
	return m
}()

// Encoder implements gcnasm.IsaEncoder against the toy ISA above. It
// carries no architecture-dependent state: arch is accepted per-call
// but never consulted, since the toy ISA is deliberately the same
// across every GPUArchitecture.
type Encoder struct{}

// Encode implements gcnasm.IsaEncoder.
func (Encoder) Encode(line string, arch gcnasm.GPUArchitecture, emit func([]byte), reloc func(kind gcnasm.RelocKind, symbol gcnasm.SymbolID, addend int64), lookup func(name string) (gcnasm.SymbolID, bool), errs func(format string, args ...interface{})) bool {
	mnemonic, rest := splitFirst(line)
	op, ok := opByMnemonic[strings.ToLower(mnemonic)]
	if !ok {
		return false
	}

	var buf [instrWidth]byte
	buf[0] = op

	switch op {
	case opNop, opEndpgm:
		emit(buf[:])
		return true

	case opMov, opAdd:
		reg, operand, ok := splitOperands(rest)
		if !ok {
			errs("%s: expected \"rN, operand\"", mnemonic)
			emit(buf[:])
			return true
		}
		buf[1] = byte(reg)
		if n, err := strconv.ParseInt(strings.TrimPrefix(strings.TrimSpace(operand), "#"), 0, 32); err == nil {
			binary.LittleEndian.PutUint16(buf[2:4], uint16(n))
			emit(buf[:])
			return true
		}
		sym, ok := lookup(strings.TrimSpace(operand))
		if !ok {
			errs("%s: undefined symbol %q", mnemonic, operand)
		}
		emit(buf[:])
		reloc(gcnasm.RelocLow32, sym, 0)
		return true

	case opBranch, opCBranch, opCall:
		target := strings.TrimSpace(rest)
		sym, ok := lookup(target)
		if !ok {
			errs("%s: undefined symbol %q", mnemonic, target)
		}
		emit(buf[:])
		reloc(gcnasm.RelocLow32, sym, 0)
		return true
	}
	return false
}

func splitFirst(s string) (first, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// splitOperands parses "rN, operand" into the register number N and
// the remaining operand text.
func splitOperands(s string) (reg int, operand string, ok bool) {
	i := strings.IndexByte(s, ',')
	if i < 0 {
		return 0, "", false
	}
	regText := strings.TrimSpace(s[:i])
	if !strings.HasPrefix(regText, "r") {
		return 0, "", false
	}
	n, err := strconv.Atoi(regText[1:])
	if err != nil {
		return 0, "", false
	}
	return n, strings.TrimSpace(s[i+1:]), true
}

// Disassembler implements gcnasm.IsaDisassembler against the toy ISA,
// decoding whatever Encoder produced back into text.
type Disassembler struct {
	code       []byte
	base       int64
	pos        int64
	names      map[int64]string
	relocs     map[int64]gcnasm.Relocation
	dontLabels bool
}

// NewDisassembler returns a Disassembler ready for SetInput.
func NewDisassembler() *Disassembler {
	return &Disassembler{names: map[int64]string{}, relocs: map[int64]gcnasm.Relocation{}}
}

func (d *Disassembler) SetInput(code []byte, baseOffset int64) {
	d.code, d.base, d.pos = code, baseOffset, 0
}

// AnalyzeBeforeDisassemble is a no-op: the toy ISA carries no implicit
// branch targets beyond the relocations the caller registers directly
// via AddRelocation, so there is nothing to discover by scanning ahead.
func (d *Disassembler) AnalyzeBeforeDisassemble() {}

// PrepareLabelsAndRelocations is a no-op for the same reason.
func (d *Disassembler) PrepareLabelsAndRelocations() {}

func (d *Disassembler) AddNamedLabel(offset int64, name string) {
	d.names[offset] = name
}

func (d *Disassembler) AddRelocation(offset int64, kind gcnasm.RelocKind, symbolIndex int, addend int64) {
	d.relocs[offset] = gcnasm.Relocation{Offset: offset, Kind: kind, Symbol: gcnasm.SymbolID(symbolIndex), Addend: addend}
}

func (d *Disassembler) ClearRelocations() {
	d.relocs = map[int64]gcnasm.Relocation{}
}

func (d *Disassembler) SetDontPrintLabels(dont bool) {
	d.dontLabels = dont
}

// Disassemble decodes one instruction (or, if a named label lands at
// the current offset, emits that label line first and leaves the
// instruction for the following call).
func (d *Disassembler) Disassemble() (line string, next int64, ok bool) {
	abs := d.base + d.pos
	if !d.dontLabels {
		if name, has := d.names[abs]; has {
			delete(d.names, abs)
			return name + ":", abs, true
		}
	}
	if d.pos+instrWidth > int64(len(d.code)) {
		return "", 0, false
	}
	b := d.code[d.pos : d.pos+instrWidth]
	mnemonic, has := mnemonicByOp[b[0]]
	if !has {
		mnemonic = fmt.Sprintf(".byte 0x%02x,0x%02x,0x%02x,0x%02x", b[0], b[1], b[2], b[3])
		d.pos += instrWidth
		return mnemonic, d.base + d.pos, true
	}

	var text string
	switch b[0] {
	case opNop, opEndpgm:
		text = mnemonic
	case opMov, opAdd:
		if r, has := d.relocs[abs]; has {
			text = fmt.Sprintf("%s r%d, %s", mnemonic, b[1], relocOperand(r))
		} else {
			text = fmt.Sprintf("%s r%d, #%d", mnemonic, b[1], binary.LittleEndian.Uint16(b[2:4]))
		}
	case opBranch, opCBranch, opCall:
		if r, has := d.relocs[abs]; has {
			text = fmt.Sprintf("%s %s", mnemonic, relocOperand(r))
		} else {
			text = mnemonic
		}
	}
	d.pos += instrWidth
	return text, d.base + d.pos, true
}

func relocOperand(r gcnasm.Relocation) string {
	name := fmt.Sprintf("sym%d", r.Symbol)
	if r.Addend == 0 {
		return name
	}
	return fmt.Sprintf("%s+%d", name, r.Addend)
}
