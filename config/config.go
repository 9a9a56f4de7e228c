// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package config is the CLI-facing configuration surface: everything
// an assembler front end collects from argument parsing, include-path
// setup and predefined-symbol flags before handing a translation unit
// to asm.Assemble. None of it is interpreted here; the driver consumes
// a Config's fields directly through asm.Options.
package config

import (
	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/format"
)

// Flags are the assembler's boolean command-line switches.
type Flags uint32

const (
	// FlagAll turns on every optional warning class.
	FlagAll Flags = 1 << iota
	// FlagWarnings enables warning diagnostics; on by default.
	FlagWarnings
	// FlagForceAddSymbols adds every -D predefined symbol to the symbol
	// table even if the source never references it (normally unused
	// predefined symbols are silently dropped).
	FlagForceAddSymbols
	// FlagAltMacroDefault starts the translation unit in .altmacro mode.
	FlagAltMacroDefault
	// FlagBuggyFPLit reproduces a legacy floating-point literal parsing
	// quirk some existing kernel sources depend on.
	FlagBuggyFPLit
	// FlagOldModParam selects the pre-191205 AMDCL2 kernel-argument
	// layout even when the driver version alone would not require it.
	FlagOldModParam
	// FlagTestRun is "pure mode": no filesystem side effects, used by
	// test harnesses that supply source text directly.
	FlagTestRun
)

// DefaultFlags matches the CLI's documented defaults: warnings on,
// everything else off.
const DefaultFlags = FlagWarnings

// Has reports whether every bit in f is set.
func (fl Flags) Has(f Flags) bool { return fl&f == f }

// PredefinedSymbol is one "-D NAME[=VALUE]" command-line definition,
// bound into the symbol table before assembly begins.
type PredefinedSymbol struct {
	Name  string
	Value string // expression text; "" means "define with value 1"
}

// Config is the configuration surface the core accepts: everything
// outside file I/O and argument parsing itself.
type Config struct {
	InputPath    string
	OutputPath   string
	IncludePaths []string
	Predefined   []PredefinedSymbol

	Device        gcnasm.GPUDevice
	Architecture  gcnasm.GPUArchitecture
	DriverVersion gcnasm.DriverVersion
	LLVMVersion   gcnasm.LLVMVersion
	Format        format.Format

	Flags  Flags
	Policy int // POLICY version, see Policies/ResolvePolicy
}

// Exit codes for a CLI front end built on this core.
const (
	ExitSuccess  = 0
	ExitErrors   = 1
	ExitInternal = 2
)
