// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rawcode implements the RAWCODE format.Handler: no container
// at all, just the bytes of whichever section role was selected. It
// is the degenerate backend useful for expression/section unit tests
// that don't want to pull in a full ELF container.
package rawcode

import (
	"fmt"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/format"
)

func init() {
	format.Register(format.RawCode, New)
}

type handler struct {
	arch     gcnasm.GPUArchitecture
	sections *gcnasm.SectionSet
	symbols  *gcnasm.SymbolTable
}

// New constructs the RAWCODE handler.
func New(arch gcnasm.GPUArchitecture, driverVersion gcnasm.DriverVersion, sections *gcnasm.SectionSet, symbols *gcnasm.SymbolTable) format.Handler {
	return &handler{arch: arch, sections: sections, symbols: symbols}
}

func (h *handler) Format() format.Format { return format.RawCode }

func (h *handler) BeginKernel(name string) (*gcnasm.Kernel, error) {
	return nil, fmt.Errorf("rawcode: kernels are not supported")
}

func (h *handler) EndKernel() error {
	return fmt.Errorf("rawcode: kernels are not supported")
}

var roleNames = map[format.SectionRole]struct {
	name string
	kind gcnasm.SectionKind
}{
	format.RoleText:   {".text", gcnasm.SectionText},
	format.RoleData:   {".data", gcnasm.SectionData},
	format.RoleRodata: {".rodata", gcnasm.SectionRodata},
	format.RoleBss:    {".bss", gcnasm.SectionBSS},
}

func (h *handler) SelectSection(req format.SectionRequest) (gcnasm.SectionID, error) {
	info, ok := roleNames[req.Role]
	if !ok {
		return gcnasm.NoSection, fmt.Errorf("rawcode: section role %v not supported", req.Role)
	}
	if s := h.sections.Find(info.name, info.kind, ""); s != nil {
		return s.ID, nil
	}
	return h.sections.Create(info.name, info.kind, "").ID, nil
}

func (h *handler) HandlePseudoOp(ctx format.Context, name string, args string) (bool, error) {
	return false, nil
}

// Finalize concatenates every section's content in creation order: a
// RAWCODE translation unit normally has just .text, but multi-section
// input (e.g. .text then .rodata) is laid out back to back with no
// padding or header, matching the "no container at all" contract.
func (h *handler) Finalize() ([]byte, error) {
	var out []byte
	for _, s := range h.sections.All() {
		out = append(out, s.Content...)
	}
	return out, nil
}

func (h *handler) ParseBinary(data []byte) (*format.DisasmInput, error) {
	return &format.DisasmInput{
		Format:       format.RawCode,
		Architecture: h.arch,
		Sections: []gcnasm.Section{{
			ID:   0,
			Name: ".text",
			Kind: gcnasm.SectionText,
			Content: data,
		}},
	}, nil
}
