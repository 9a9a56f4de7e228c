// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package asm is the assembler core: a macro-expanding line reader
// (C1), an expression engine (C2), a symbol/section/relocation model
// shared with the rest of the module, and the two-pass driver (C3/C4)
// that ties them together and delegates container-specific behavior
// to a format.Handler.
package asm

import (
	"strings"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/format"
)

// Options configures one Assemble call.
type Options struct {
	SourceName    string
	Source        string
	Includer      Includer
	Format        format.Format
	Architecture  gcnasm.GPUArchitecture
	DriverVersion gcnasm.DriverVersion
	LLVMVersion   gcnasm.LLVMVersion
	Encoder       gcnasm.IsaEncoder // nil is valid: a source with no instruction lines never needs it
}

// Result is everything produced by a successful-or-not Assemble call;
// Diagnostics should always be inspected even when Good is true
// (there may be warnings).
type Result struct {
	Good        bool
	Diagnostics []gcnasm.Diagnostic
	Output      []byte
	Symbols     *gcnasm.SymbolTable
	Sections    *gcnasm.SectionSet
}

// fixup is a deferred patch: a fixed-width value directive whose
// expression could not be fully evaluated when it was first emitted
// (almost always because it references a label defined later in the
// source). The placeholder bytes already reserve the right amount of
// space; once every label is known, resolveFixups re-evaluates e and
// patches the real bytes in.
type fixup struct {
	pos     *gcnasm.PositionChain
	section gcnasm.SectionID
	offset  int64
	width   int
	e       *expr
}

// Assembler is the C3/C4 driver: one instance per translation unit,
// constructed fresh (no shared process-wide state).
type Assembler struct {
	files    *gcnasm.FileTable
	sink     *gcnasm.Sink
	symtab   *gcnasm.SymbolTable
	sections *gcnasm.SectionSet
	reader   *Reader
	exprp    *exprParser

	arch          gcnasm.GPUArchitecture
	archMinor     int
	archStepping  int
	driverVersion gcnasm.DriverVersion
	llvmVersion   gcnasm.LLVMVersion
	encoder       gcnasm.IsaEncoder
	handler       format.Handler
	handlerKind   format.Format

	curSection gcnasm.SectionID
	curKernel  *gcnasm.Kernel
	curPos     *gcnasm.PositionChain

	scopeLabel string // name of the nearest preceding non-local label, for N-local scoping
	localDefs  map[string][]localLabelDef

	fixups []fixup

	onceGuard map[string]bool // once-only pseudo-ops already seen (.driver_version etc)
}

// Assemble runs the full pipeline over opts.Source and returns the
// finalized container bytes from the active format.Handler.
func Assemble(opts Options) *Result {
	files := gcnasm.NewFileTable()
	sink := gcnasm.NewSink(files)
	symtab := gcnasm.NewSymbolTable()
	sections := gcnasm.NewSectionSet()

	handler, ok := format.New(opts.Format, opts.Architecture, opts.DriverVersion, sections, symtab)
	if !ok {
		sink.Error(nil, "no format handler registered for %v", opts.Format)
		return &Result{Diagnostics: sink.Diagnostics(), Symbols: symtab, Sections: sections}
	}

	a := &Assembler{
		files:         files,
		sink:          sink,
		symtab:        symtab,
		sections:      sections,
		arch:          opts.Architecture,
		driverVersion: opts.DriverVersion,
		llvmVersion:   opts.LLVMVersion,
		encoder:       opts.Encoder,
		handler:       handler,
		handlerKind:   opts.Format,
		curSection:    gcnasm.NoSection,
		localDefs:     make(map[string][]localLabelDef),
		onceGuard:     make(map[string]bool),
	}
	a.exprp = newExprParser(symtab, sink)

	includer := opts.Includer
	if includer == nil {
		includer = noIncluder{}
	}
	a.reader = NewReader(files, sink, includer, opts.SourceName, opts.Source)
	a.reader.EvalExpr = a.evalStandalone
	a.reader.SymbolDefined = func(name string) bool {
		s := symtab.GetByName(name)
		return s != nil && s.Defined()
	}

	a.run()
	a.resolveFixups()

	if a.curKernel != nil {
		if err := handler.EndKernel(); err != nil {
			sink.Error(nil, "%v", err)
		}
	}

	out, err := handler.Finalize()
	if err != nil {
		sink.Error(nil, "finalize: %v", err)
	}

	return &Result{
		Good:        sink.Good(),
		Diagnostics: sink.Diagnostics(),
		Output:      out,
		Symbols:     symtab,
		Sections:    sections,
	}
}

type noIncluder struct{}

func (noIncluder) Open(name string) (string, bool) { return "", false }

// run consumes every logical line from the reader and dispatches it.
func (a *Assembler) run() {
	for {
		text, pos, ok, err := a.reader.NextLine()
		if err != nil {
			if fe, isFatal := err.(*gcnasm.FatalError); isFatal {
				a.sink.Error(fe.Position, "%s", fe.Message)
			}
			return
		}
		if !ok {
			return
		}
		a.curPos = pos
		a.dispatchLine(text, pos)
	}
}

// dispatchLine implements the three-way dispatch: a line is a
// label, a pseudo-op, or an instruction, in that order (a label may
// be followed on the same line by either of the other two).
func (a *Assembler) dispatchLine(text string, pos *gcnasm.PositionChain) {
	line := newFstring(pos, 0, pos.Head.Line, text)
	line = line.stripTrailingComment()

	for {
		trimmed := strings.TrimSpace(line.String())
		if trimmed == "" {
			return
		}
		line = newFstring(pos, 0, pos.Head.Line, trimmed)

		if name, rest, matched := a.matchLabel(line); matched {
			a.defineLabel(name, pos)
			line = rest
			continue
		}
		break
	}

	trimmed := strings.TrimSpace(line.String())
	if trimmed == "" {
		return
	}

	if pseudoOpStartChar(trimmed[0]) {
		a.dispatchPseudoOp(line, pos)
		return
	}

	a.dispatchInstruction(trimmed, pos)
}

// matchLabel recognizes "name:", "name::" (global), and the numeric
// local-label form "N:".
func (a *Assembler) matchLabel(line fstring) (name string, rest fstring, ok bool) {
	s := line.String()
	i := 0
	for i < len(s) && labelChar(s[i]) {
		i++
	}
	if i == 0 || i >= len(s) || s[i] != ':' {
		return "", line, false
	}
	name = s[:i]
	j := i + 1
	global := j < len(s) && s[j] == ':'
	if global {
		j++
	}
	return name, line.consume(j), true
}

func (a *Assembler) defineLabel(name string, pos *gcnasm.PositionChain) {
	if isDecimal(name) {
		a.localDefs[name] = append(a.localDefs[name], localLabelDef{value: a.currentPosValue(), section: a.curSection})
		return
	}
	a.scopeLabel = name
	sec := a.sections.Get(a.curSection)
	if sec == nil {
		a.sink.Error(pos, "label %q defined outside any section", name)
		return
	}
	id := a.symtab.Intern(name)
	sym := a.symtab.Get(id)
	if sym.OnceDefined() {
		a.sink.Error(pos, "label %q redefined", name)
		return
	}
	sym.Value = sec.Here()
	sym.Section = a.curSection
	sym.Flags |= gcnasm.FlagDefined | gcnasm.FlagOnceDefined | gcnasm.FlagHasValue
}

func isDecimal(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}

func (a *Assembler) currentPosValue() int64 {
	sec := a.sections.Get(a.curSection)
	if sec == nil {
		return 0
	}
	return sec.Here()
}

// dispatchInstruction hands an instruction line to the active
// IsaEncoder, which this module treats as an opaque collaborator
// (its encoding table is explicitly out of scope here).
func (a *Assembler) dispatchInstruction(text string, pos *gcnasm.PositionChain) {
	sec := a.sections.Get(a.curSection)
	if sec == nil {
		a.sink.Error(pos, "instruction outside any section")
		return
	}
	if a.encoder == nil {
		a.sink.Error(pos, "no instruction encoder available")
		return
	}
	ok := a.encoder.Encode(text, a.arch,
		func(b []byte) { sec.Write(b) },
		func(kind gcnasm.RelocKind, sym gcnasm.SymbolID, addend int64) { sec.AddRelocation(kind, sym, addend) },
		func(name string) (gcnasm.SymbolID, bool) { return a.symtab.Intern(name), true },
		func(f string, args ...interface{}) { a.sink.Error(pos, f, args...) },
	)
	if !ok {
		a.sink.Error(pos, "invalid opcode: %s", firstToken(text))
	}
}

func firstToken(s string) string {
	w, _ := firstWord(s)
	return w
}

// evalStandalone parses and fully evaluates a bare expression string
// (used by conditional assembly and .rept counts, neither of which
// may defer to a fixup).
func (a *Assembler) evalStandalone(text string) (int64, bool) {
	e, err := a.parseExprText(text, false)
	if err != nil || e == nil {
		return 0, false
	}
	if !e.eval(a.evalEnv()) {
		return 0, false
	}
	return e.value, true
}

func (a *Assembler) evalEnv() *evalEnv {
	return &evalEnv{
		symtab: a.symtab,
		sink:   a.sink,
		here: func() (int64, gcnasm.SectionID) {
			return a.currentPosValue(), a.curSection
		},
		LocalLabelDefCount: func(num string) int {
			return len(a.localDefs[num])
		},
		LocalLabelResolve: func(num string, forward bool, priorCount int) (int64, gcnasm.SectionID, bool) {
			defs := a.localDefs[num]
			idx := priorCount
			if !forward {
				idx = priorCount - 1
			}
			if idx < 0 || idx >= len(defs) {
				return 0, gcnasm.NoSection, false
			}
			return defs[idx].value, defs[idx].section, true
		},
	}
}

func (a *Assembler) parseExprText(text string, snapshot bool) (*expr, error) {
	line := newFstring(a.curPos, 0, 0, strings.TrimSpace(text))
	flags := allowParentheses | allowStrings
	if snapshot {
		flags |= makeSnapshot
	}
	e, _, err := a.exprp.parse(line, flags)
	return e, err
}

// EvalExprText implements format.Context.
func (a *Assembler) EvalExprText(text string) (int64, bool) { return a.evalStandalone(text) }
func (a *Assembler) Sink() *gcnasm.Sink                     { return a.sink }
func (a *Assembler) Symbols() *gcnasm.SymbolTable           { return a.symtab }
func (a *Assembler) CurrentPosition() *gcnasm.PositionChain { return a.curPos }
func (a *Assembler) Architecture() gcnasm.GPUArchitecture   { return a.arch }
func (a *Assembler) DriverVersion() gcnasm.DriverVersion    { return a.driverVersion }
func (a *Assembler) LLVMVersion() gcnasm.LLVMVersion        { return a.llvmVersion }

// emitFixed evaluates expr text for a fixed-width value directive,
// writing resolved bytes immediately or zero-filled placeholder bytes
// plus a queued fixup when the expression cannot yet be resolved.
func (a *Assembler) emitFixed(width int, text string, pos *gcnasm.PositionChain) {
	sec := a.sections.Get(a.curSection)
	if sec == nil {
		a.sink.Error(pos, "data directive outside any section")
		return
	}
	e, err := a.parseExprText(text, false)
	if err != nil {
		a.sink.Error(pos, "%v", err)
		return
	}
	if e.eval(a.evalEnv()) {
		sec.Write(toBytes(width, e.value))
		return
	}
	off := sec.Write(make([]byte, width))
	a.fixups = append(a.fixups, fixup{pos: pos, section: a.curSection, offset: off, width: width, e: e})
}

// resolveFixups retries every queued expression now that all labels
// in the translation unit are known, patching bytes in place. An
// expression still unresolved at this point (an undefined symbol, or
// a genuine circular dependency) is reported as an error.
func (a *Assembler) resolveFixups() {
	for _, fx := range a.fixups {
		if !fx.e.eval(a.evalEnv()) {
			a.sink.Error(fx.pos, "unresolved expression (undefined symbol or circular reference)")
			continue
		}
		sec := a.sections.Get(fx.section)
		b := toBytes(fx.width, fx.e.value)
		copy(sec.Content[fx.offset:fx.offset+int64(fx.width)], b)
	}
}
