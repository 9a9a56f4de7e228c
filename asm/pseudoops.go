// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strconv"
	"strings"

	"github.com/beevik/prefixtree/v2"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/format"
)

// builtinOp is one of the driver's own directives - the fixed set that
// exists independent of which format.Handler is active.
type builtinOp func(a *Assembler, rest string, pos *gcnasm.PositionChain)

// builtins is looked up by unambiguous prefix, the same
// way the debugger's settings table resolves abbreviated setting
// names: ".rodat" resolves to ".rodata" as long as no other builtin
// directive shares that prefix.
var builtins = prefixtree.New[builtinOp]()

func addBuiltin(name string, op builtinOp) {
	builtins.Add(name, op)
}

func init() {
	addBuiltin(".byte", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.emitEach(1, rest, pos) })
	addBuiltin(".short", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.emitEach(2, rest, pos) })
	addBuiltin(".hword", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.emitEach(2, rest, pos) })
	addBuiltin(".int", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.emitEach(4, rest, pos) })
	addBuiltin(".word", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.emitEach(4, rest, pos) })
	addBuiltin(".long", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.emitEach(4, rest, pos) })
	addBuiltin(".quad", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.emitEach(8, rest, pos) })
	addBuiltin(".octa", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.emitEach(16, rest, pos) })

	addBuiltin(".ascii", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.emitAscii(rest, pos, false) })
	addBuiltin(".asciz", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.emitAscii(rest, pos, true) })
	addBuiltin(".string", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.emitAscii(rest, pos, true) })

	addBuiltin(".fill", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoFill(rest, pos) })
	addBuiltin(".align", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoAlign(rest, pos, false) })
	addBuiltin(".balign", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoAlign(rest, pos, false) })
	addBuiltin(".p2align", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoAlign(rest, pos, true) })
	addBuiltin(".skip", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoSkip(rest, pos) })
	addBuiltin(".space", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoSkip(rest, pos) })
	addBuiltin(".org", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoOrg(rest, pos) })

	addBuiltin(".set", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoAssign(rest, pos, false, false) })
	addBuiltin(".equ", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoAssign(rest, pos, false, false) })
	addBuiltin(".eqv", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoAssign(rest, pos, true, false) })
	addBuiltin(".equiv", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoAssign(rest, pos, true, true) })

	addBuiltin(".text", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.selectRole(format.RoleText, pos) })
	addBuiltin(".data", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.selectRole(format.RoleData, pos) })
	addBuiltin(".rodata", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.selectRole(format.RoleRodata, pos) })
	addBuiltin(".bss", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.selectRole(format.RoleBss, pos) })
	addBuiltin(".section", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoSection(rest, pos) })

	addBuiltin(".kernel", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoKernel(rest, pos) })

	addBuiltin(".global", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoLinkage(rest, gcnasm.FlagGlobal) })
	addBuiltin(".globl", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoLinkage(rest, gcnasm.FlagGlobal) })
	addBuiltin(".local", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoLinkage(rest, gcnasm.FlagLocal) })
	addBuiltin(".extern", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoLinkage(rest, gcnasm.FlagExtern) })

	addBuiltin(".gpu", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoGPU(rest, pos) })
	addBuiltin(".arch_minor", func(a *Assembler, rest string, pos *gcnasm.PositionChain) {
		a.pseudoContextInt(".arch_minor", rest, pos, func(v int) { a.archMinor = v })
	})
	addBuiltin(".arch_stepping", func(a *Assembler, rest string, pos *gcnasm.PositionChain) {
		a.pseudoContextInt(".arch_stepping", rest, pos, func(v int) { a.archStepping = v })
	})
	addBuiltin(".driver_version", func(a *Assembler, rest string, pos *gcnasm.PositionChain) {
		a.pseudoContextInt(".driver_version", rest, pos, func(v int) { a.driverVersion = gcnasm.DriverVersion(v) })
	})
	addBuiltin(".llvm_version", func(a *Assembler, rest string, pos *gcnasm.PositionChain) {
		a.pseudoContextInt(".llvm_version", rest, pos, func(v int) { a.llvmVersion = gcnasm.LLVMVersion(v) })
	})

	addBuiltin(".cf_jump", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoCodeFlow(rest, pos, gcnasm.CFJump) })
	addBuiltin(".cf_cjump", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoCodeFlow(rest, pos, gcnasm.CFCJump) })
	addBuiltin(".cf_call", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoCodeFlow(rest, pos, gcnasm.CFCall) })
	addBuiltin(".cf_ret", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoCodeFlowHere(pos, gcnasm.CFReturn) })
	addBuiltin(".cf_start", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoCodeFlowHere(pos, gcnasm.CFStart) })
	addBuiltin(".cf_end", func(a *Assembler, rest string, pos *gcnasm.PositionChain) { a.pseudoCodeFlowHere(pos, gcnasm.CFEnd) })
}

// dispatchPseudoOp implements the generic pseudo-op table. "=" is
// handled directly since it is punctuation, not a name a prefix tree
// can usefully match. A directive this driver does not recognize
// (including a prefix ambiguous between two builtins) is offered to
// the active format.Handler before being reported as an error, so
// formats can extend the directive set (.config, .arg, .sgprsnum,
// ...) without this file knowing about any of them.
func (a *Assembler) dispatchPseudoOp(line fstring, pos *gcnasm.PositionChain) {
	word, rest := firstWord(line.String())
	name := strings.ToLower(word)

	if name == "=" {
		a.pseudoAssign(rest, pos, false, false)
		return
	}

	if op, err := builtins.FindValue(name); err == nil {
		op(a, rest, pos)
		return
	}

	ok, err := a.handler.HandlePseudoOp(a, name, rest)
	if err != nil {
		a.sink.Error(pos, "%v", err)
		return
	}
	if !ok {
		a.sink.Error(pos, "unknown directive %q", name)
	}
}

func (a *Assembler) emitEach(width int, rest string, pos *gcnasm.PositionChain) {
	for _, item := range splitMacroArgs(rest) {
		if item != "" {
			a.emitFixed(width, item, pos)
		}
	}
}

func (a *Assembler) emitAscii(rest string, pos *gcnasm.PositionChain, nulTerminate bool) {
	sec := a.sections.Get(a.curSection)
	if sec == nil {
		a.sink.Error(pos, "data directive outside any section")
		return
	}
	for _, item := range splitMacroArgs(rest) {
		s, err := unquoteString(item)
		if err != nil {
			a.sink.Error(pos, "%v", err)
			continue
		}
		b := []byte(s)
		if nulTerminate {
			b = append(b, 0)
		}
		sec.Write(b)
	}
}

func unquoteString(s string) (string, error) {
	s = strings.TrimSpace(s)
	if len(s) < 2 || s[0] != '"' || s[len(s)-1] != '"' {
		return "", errParse
	}
	return strconv.Unquote(s)
}

func (a *Assembler) pseudoFill(rest string, pos *gcnasm.PositionChain) {
	sec := a.sections.Get(a.curSection)
	if sec == nil {
		a.sink.Error(pos, "data directive outside any section")
		return
	}
	parts := splitMacroArgs(rest)
	count, ok := a.evalStandalone(parts[0])
	if !ok {
		a.sink.Error(pos, ".fill repeat count must be a resolvable constant")
		return
	}
	size := int64(1)
	value := int64(0)
	if len(parts) > 1 {
		if v, ok := a.evalStandalone(parts[1]); ok {
			size = v
		}
	}
	if len(parts) > 2 {
		if v, ok := a.evalStandalone(parts[2]); ok {
			value = v
		}
	}
	b := toBytes(int(size), value)
	for i := int64(0); i < count; i++ {
		sec.Write(b)
	}
}

func (a *Assembler) pseudoAlign(rest string, pos *gcnasm.PositionChain, isPow2 bool) {
	sec := a.sections.Get(a.curSection)
	if sec == nil {
		a.sink.Error(pos, "data directive outside any section")
		return
	}
	parts := splitMacroArgs(rest)
	n, ok := a.evalStandalone(parts[0])
	if !ok || n <= 0 {
		a.sink.Error(pos, ".align argument must be a positive resolvable constant")
		return
	}
	align := n
	if isPow2 {
		align = int64(1) << uint(n)
	}
	fill := byte(0)
	if len(parts) > 1 {
		if v, ok := a.evalStandalone(parts[1]); ok {
			fill = byte(v)
		}
	}
	here := sec.Here()
	rem := here % align
	if rem == 0 {
		return
	}
	pad := align - rem
	b := make([]byte, pad)
	for i := range b {
		b[i] = fill
	}
	sec.Write(b)
}

func (a *Assembler) pseudoSkip(rest string, pos *gcnasm.PositionChain) {
	sec := a.sections.Get(a.curSection)
	if sec == nil {
		a.sink.Error(pos, "data directive outside any section")
		return
	}
	parts := splitMacroArgs(rest)
	n, ok := a.evalStandalone(parts[0])
	if !ok || n < 0 {
		a.sink.Error(pos, ".skip/.space count must be a non-negative resolvable constant")
		return
	}
	fill := byte(0)
	if len(parts) > 1 {
		if v, ok := a.evalStandalone(parts[1]); ok {
			fill = byte(v)
		}
	}
	b := make([]byte, n)
	for i := range b {
		b[i] = fill
	}
	sec.Write(b)
}

func (a *Assembler) pseudoOrg(rest string, pos *gcnasm.PositionChain) {
	sec := a.sections.Get(a.curSection)
	if sec == nil {
		a.sink.Error(pos, ".org outside any section")
		return
	}
	n, ok := a.evalStandalone(rest)
	if !ok {
		a.sink.Error(pos, ".org target must be a resolvable constant")
		return
	}
	sec.SetHere(n)
}

func (a *Assembler) pseudoAssign(rest string, pos *gcnasm.PositionChain, isEqv, equiv bool) {
	i := strings.IndexByte(rest, ',')
	if i < 0 {
		i = strings.IndexByte(rest, '=')
	}
	var name, exprText string
	if i >= 0 {
		name, exprText = strings.TrimSpace(rest[:i]), strings.TrimSpace(rest[i+1:])
	} else {
		a.sink.Error(pos, "malformed assignment")
		return
	}

	id := a.symtab.Intern(name)
	sym := a.symtab.Get(id)
	if sym.OnceDefined() {
		a.sink.Error(pos, "symbol %q cannot be redefined", name)
		return
	}

	e, err := a.parseExprText(exprText, isEqv)
	if err != nil {
		a.sink.Error(pos, "%v", err)
		return
	}

	if isEqv {
		sym.Flags |= gcnasm.FlagDefined | gcnasm.FlagSnapshot
		if equiv {
			sym.Flags |= gcnasm.FlagOnceDefined
		} else {
			sym.Flags |= gcnasm.FlagBase
		}
		if e.eval(a.evalEnv()) {
			sym.Value, sym.Section, sym.Flags = e.value, e.section, sym.Flags|gcnasm.FlagHasValue
		}
		return
	}

	sym.Flags |= gcnasm.FlagDefined
	if e.eval(a.evalEnv()) {
		sym.Value, sym.Section, sym.Flags = e.value, e.section, sym.Flags|gcnasm.FlagHasValue
	} else {
		a.sink.Error(pos, "%q must be a resolvable expression at the point of assignment", name)
	}
}

// pseudoGPU sets the target device/architecture by codename, once per
// translation unit (redeclaring it mid-file is almost always a mistake
// since every format backend reads Architecture() lazily).
func (a *Assembler) pseudoGPU(rest string, pos *gcnasm.PositionChain) {
	name := strings.TrimSpace(rest)
	dev, ok := gcnasm.ParseDevice(name)
	if !ok {
		a.sink.Error(pos, "unknown GPU device %q", name)
		return
	}
	if a.onceGuard[".gpu"] {
		a.sink.Warning(pos, ".gpu redeclared, overriding previous target device")
	}
	a.onceGuard[".gpu"] = true
	a.arch = dev.Architecture()
}

// pseudoContextInt implements the single-bare-integer directives that
// set target context (.driver_version, .llvm_version, .arch_minor,
// .arch_stepping), guarding against silent redefinition.
func (a *Assembler) pseudoContextInt(name, rest string, pos *gcnasm.PositionChain, set func(int)) {
	v, ok := a.evalStandalone(rest)
	if !ok {
		a.sink.Error(pos, "%s argument must be a resolvable constant", name)
		return
	}
	if a.onceGuard[name] {
		a.sink.Warning(pos, "%s redeclared", name)
	}
	a.onceGuard[name] = true
	set(int(v))
}

func (a *Assembler) selectRole(role format.SectionRole, pos *gcnasm.PositionChain) {
	kernel := ""
	if a.curKernel != nil {
		kernel = a.curKernel.Name
	}
	if _, err := a.SelectSection(format.SectionRequest{Role: role, Kernel: kernel}); err != nil {
		a.sink.Error(pos, "%v", err)
	}
}

// SelectSection implements format.Context, letting a Handler's own
// section-selecting directives move the location counter the same way
// the driver's built-in ".text"/".data"/... handling does.
func (a *Assembler) SelectSection(req format.SectionRequest) (gcnasm.SectionID, error) {
	id, err := a.handler.SelectSection(req)
	if err != nil {
		return gcnasm.NoSection, err
	}
	a.curSection = id
	return id, nil
}

func (a *Assembler) pseudoSection(rest string, pos *gcnasm.PositionChain) {
	name := strings.TrimSpace(strings.Split(rest, ",")[0])
	var kind gcnasm.SectionKind
	switch name {
	case ".text":
		kind = gcnasm.SectionText
	case ".data":
		kind = gcnasm.SectionData
	case ".rodata":
		kind = gcnasm.SectionRodata
	case ".bss":
		kind = gcnasm.SectionBSS
	default:
		kind = gcnasm.SectionExtra
	}
	kernel := ""
	if a.curKernel != nil {
		kernel = a.curKernel.Name
	}
	if s := a.sections.Find(name, kind, kernel); s != nil {
		a.curSection = s.ID
		return
	}
	a.curSection = a.sections.Create(name, kind, kernel).ID
}

func (a *Assembler) pseudoKernel(rest string, pos *gcnasm.PositionChain) {
	name := strings.TrimSpace(rest)
	if name == "" {
		a.sink.Error(pos, ".kernel requires a name")
		return
	}
	if a.curKernel != nil {
		if err := a.handler.EndKernel(); err != nil {
			a.sink.Error(pos, "%v", err)
		}
	}
	k, err := a.handler.BeginKernel(name)
	if err != nil {
		a.sink.Error(pos, "%v", err)
		return
	}
	a.curKernel = k
	a.curSection = k.CodeSection
}

func (a *Assembler) pseudoLinkage(rest string, flag gcnasm.SymbolFlags) {
	for _, name := range splitMacroArgs(rest) {
		if name == "" {
			continue
		}
		id := a.symtab.Intern(name)
		a.symtab.Get(id).Flags |= flag
	}
}

func (a *Assembler) pseudoCodeFlow(rest string, pos *gcnasm.PositionChain, kind gcnasm.CodeFlowKind) {
	sec := a.sections.Get(a.curSection)
	if sec == nil {
		a.sink.Error(pos, ".cf_* directive outside any section")
		return
	}
	target, ok := a.evalStandalone(rest)
	if !ok {
		a.sink.Error(pos, "code-flow target must be a resolvable constant")
		return
	}
	sec.AddCodeFlow(target, kind)
}

func (a *Assembler) pseudoCodeFlowHere(pos *gcnasm.PositionChain, kind gcnasm.CodeFlowKind) {
	sec := a.sections.Get(a.curSection)
	if sec == nil {
		a.sink.Error(pos, ".cf_* directive outside any section")
		return
	}
	sec.AddCodeFlow(sec.Here(), kind)
}
