// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package format defines the pluggable binary-container interface
// that the assembler driver and disassembly path program
// against, independent of which of the four on-disk formats (or the
// format-less RAWCODE mode) is active.
package format

import "github.com/gcnkit/gcnasm"

// Format selects which of the five container variants a Handler
// implements.
type Format int

const (
	RawCode Format = iota
	AMD
	AMDCL2
	Gallium
	ROCm
)

func (f Format) String() string {
	switch f {
	case RawCode:
		return "rawcode"
	case AMD:
		return "amd"
	case AMDCL2:
		return "amdcl2"
	case Gallium:
		return "gallium"
	case ROCm:
		return "rocm"
	}
	return "unknown"
}

// ParseFormat resolves a ".rawcode"/".amd"/".amdcl2"/".gallium"/".rocm"
// directive name (without its leading dot) to a Format.
func ParseFormat(name string) (Format, bool) {
	switch name {
	case "rawcode":
		return RawCode, true
	case "amd":
		return AMD, true
	case "amdcl2":
		return AMDCL2, true
	case "gallium":
		return Gallium, true
	case "rocm":
		return ROCm, true
	}
	return 0, false
}

// SectionRole is the semantic section kind the driver asks a Handler
// to resolve into a concrete section, independent of what that
// section is actually named/typed on disk for this format.
type SectionRole int

const (
	RoleText SectionRole = iota
	RoleData
	RoleRodata
	RoleBss
	RoleMetadata
	RoleHeader
	RoleStub
	RoleSetup
	RoleCalNote
	RoleProgInfo
	RoleConfig
	RoleComment
	RoleSamplerInit
	RoleControlDirective
	RoleExtra
)

// SectionRequest carries the optional parameters a role needs: a
// CAL note type for RoleCalNote, or a custom name/ELF type/flags for
// RoleExtra.
type SectionRequest struct {
	Role         SectionRole
	Kernel       string // owning kernel name, or "" for a global section
	CalNoteType  int
	ExtraName    string
	ExtraELFType uint32
	ExtraELFFlag uint64
}

// Context is the subset of the assembler driver a Handler needs in
// order to implement format-specific pseudo-ops: expression parsing
// against the live symbol table, the diagnostic sink, and selection
// of the section that subsequent data directives write into.
type Context interface {
	Sink() *gcnasm.Sink
	Symbols() *gcnasm.SymbolTable
	CurrentPosition() *gcnasm.PositionChain
	Architecture() gcnasm.GPUArchitecture
	DriverVersion() gcnasm.DriverVersion
	LLVMVersion() gcnasm.LLVMVersion
	// EvalExprText parses and fully evaluates a standalone expression
	// given as already-isolated source text (used by format-specific
	// directives like ".sgprsnum 36" that take one bare expression per
	// argument slot); ok is false if parsing failed or the expression
	// could not be resolved immediately.
	EvalExprText(text string) (value int64, ok bool)

	// SelectSection lets a format-specific section-selecting directive
	// (".calnote TYPE", ".header", ...) change where subsequent data
	// directives write, the same way the driver's own ".text"/".data"
	// handling does.
	SelectSection(req SectionRequest) (gcnasm.SectionID, error)
}

// DisasmInput is the parsed, format-agnostic view of a binary that
// C10 walks to reconstruct source text. Each Handler's ParseBinary
// populates it from that format's own container layout.
type DisasmInput struct {
	Format       Format
	Architecture gcnasm.GPUArchitecture
	Kernels      []gcnasm.Kernel
	Sections     []gcnasm.Section
	GlobalData   []byte
}

// Handler is implemented once per Format.
type Handler interface {
	Format() Format

	// BeginKernel opens a new kernel scope, creating whatever default
	// sections this format always gives a kernel (e.g. ROCm's shared
	// .text). Some formats create none here and defer section setup to
	// SelectSection (AMDCL2 writes its 256-byte header there).
	BeginKernel(name string) (*gcnasm.Kernel, error)

	// EndKernel closes the currently open kernel scope, finalizing any
	// kernel-scoped config block into its on-disk encoding.
	EndKernel() error

	// SelectSection resolves a semantic role into a concrete section,
	// creating it on first use.
	SelectSection(req SectionRequest) (gcnasm.SectionID, error)

	// HandlePseudoOp attempts to handle a pseudo-op this format
	// defines (e.g. ".config", ".arg", ".sgprsnum"). handled is false
	// if name is not one of this format's directives, in which case
	// the driver reports "unknown directive".
	HandlePseudoOp(ctx Context, name string, args string) (handled bool, err error)

	// Finalize emits the on-disk container built from everything
	// assembled so far.
	Finalize() ([]byte, error)

	// ParseBinary is the disassembly-path inverse of Finalize.
	ParseBinary(data []byte) (*DisasmInput, error)
}

// Factory constructs a fresh Handler instance for one translation
// unit; registered per Format so the driver never holds a process-
// wide singleton.
type Factory func(arch gcnasm.GPUArchitecture, driverVersion gcnasm.DriverVersion, sections *gcnasm.SectionSet, symbols *gcnasm.SymbolTable) Handler

var registry = map[Format]Factory{}

// Register associates a Factory with a Format. Called from each
// backend subpackage's init().
func Register(f Format, factory Factory) {
	registry[f] = factory
}

// New constructs a Handler for f, or (nil, false) if no backend
// registered itself for that format.
func New(f Format, arch gcnasm.GPUArchitecture, driverVersion gcnasm.DriverVersion, sections *gcnasm.SectionSet, symbols *gcnasm.SymbolTable) (Handler, bool) {
	factory, ok := registry[f]
	if !ok {
		return nil, false
	}
	return factory(arch, driverVersion, sections, symbols), true
}
