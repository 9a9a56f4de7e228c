// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package amd implements the legacy AMD OpenCL 1.x container: one
// outer ELF carrying one inner ELF per kernel plus a shared .rodata
// section, CAL notes, and the PROGINFO magic-constant schema a
// ".config" block lowers to.
package amd

import (
	"bytes"
	"debug/elf"
	"fmt"
	"strings"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/elfbuild"
	"github.com/gcnkit/gcnasm/format"
)

func init() {
	format.Register(format.AMD, New)
}

type handler struct {
	arch          gcnasm.GPUArchitecture
	driverVersion gcnasm.DriverVersion
	sections      *gcnasm.SectionSet
	symbols       *gcnasm.SymbolTable

	kernels   []*gcnasm.Kernel
	cfgs      map[string]*kernelConfig
	noteSecID map[string]map[int]gcnasm.SectionID // kernel -> cal note type -> section

	curKernel *gcnasm.Kernel
	rodataID  gcnasm.SectionID
}

// New constructs the legacy AMD handler.
func New(arch gcnasm.GPUArchitecture, driverVersion gcnasm.DriverVersion, sections *gcnasm.SectionSet, symbols *gcnasm.SymbolTable) format.Handler {
	return &handler{
		arch: arch, driverVersion: driverVersion, sections: sections, symbols: symbols,
		cfgs:      make(map[string]*kernelConfig),
		noteSecID: make(map[string]map[int]gcnasm.SectionID),
		rodataID:  gcnasm.NoSection,
	}
}

func (h *handler) Format() format.Format { return format.AMD }

func (h *handler) BeginKernel(name string) (*gcnasm.Kernel, error) {
	if h.curKernel != nil {
		return nil, fmt.Errorf("amd: kernel %q still open", h.curKernel.Name)
	}
	text := h.sections.Create(".text", gcnasm.SectionText, name)
	k := &gcnasm.Kernel{Name: name, CodeSection: text.ID, SetupSection: gcnasm.NoSection}
	h.kernels = append(h.kernels, k)
	h.cfgs[name] = newKernelConfig()
	h.noteSecID[name] = make(map[int]gcnasm.SectionID)
	h.curKernel = k
	return k, nil
}

func (h *handler) EndKernel() error {
	if h.curKernel == nil {
		return fmt.Errorf("amd: no open kernel")
	}
	k := h.curKernel
	cfg := h.cfgs[k.Name]

	entries, metadata, rawNotes := cfg.finalize()
	k.Metadata = []byte(metadata)

	notes := make([]calNote, 0, len(rawNotes)+1)
	notes = append(notes, calNote{Type: CalNoteProgInfo, Payload: encodeProgInfo(entries)})
	for _, n := range rawNotes {
		payload := n.Payload
		if sid, ok := h.noteSecID[k.Name][n.Type]; ok {
			payload = h.sections.Get(sid).Content
		}
		notes = append(notes, calNote{Type: n.Type, Payload: payload})
	}
	k.ConfigBlock = notes

	h.curKernel = nil
	return nil
}

func encodeProgInfo(entries []progInfoEntry) []byte {
	out := make([]byte, 0, len(entries)*8)
	for _, e := range entries {
		out = appendU32(out, e.Addr)
		out = appendU32(out, e.Value)
	}
	return out
}

var roleNames = map[format.SectionRole]struct {
	name string
	kind gcnasm.SectionKind
}{
	format.RoleText:   {".text", gcnasm.SectionText},
	format.RoleData:   {".data", gcnasm.SectionData},
	format.RoleBss:    {".bss", gcnasm.SectionBSS},
	format.RoleHeader: {".header", gcnasm.SectionHeader},
}

func (h *handler) SelectSection(req format.SectionRequest) (gcnasm.SectionID, error) {
	if req.Role == format.RoleRodata {
		// .rodata is shared globally across the whole translation unit,
		// not per kernel: the outer ELF carries exactly one.
		if s := h.sections.Find(".rodata", gcnasm.SectionRodata, ""); s != nil {
			return s.ID, nil
		}
		s := h.sections.Create(".rodata", gcnasm.SectionRodata, "")
		h.rodataID = s.ID
		return s.ID, nil
	}
	if req.Role == format.RoleCalNote {
		return h.selectCalNote(req)
	}
	info, ok := roleNames[req.Role]
	if !ok {
		return gcnasm.NoSection, fmt.Errorf("amd: section role %v not supported", req.Role)
	}
	if s := h.sections.Find(info.name, info.kind, req.Kernel); s != nil {
		return s.ID, nil
	}
	return h.sections.Create(info.name, info.kind, req.Kernel).ID, nil
}

func (h *handler) selectCalNote(req format.SectionRequest) (gcnasm.SectionID, error) {
	if h.curKernel == nil {
		return gcnasm.NoSection, fmt.Errorf("amd: .calnote outside a kernel")
	}
	name := ".calnote." + calNoteTypeName(req.CalNoteType)
	if s := h.sections.Find(name, gcnasm.SectionCalNote, req.Kernel); s != nil {
		return s.ID, nil
	}
	s := h.sections.Create(name, gcnasm.SectionCalNote, req.Kernel)
	s.CalNoteType = req.CalNoteType
	h.noteSecID[req.Kernel][req.CalNoteType] = s.ID
	return s.ID, nil
}

func (h *handler) HandlePseudoOp(ctx format.Context, name string, args string) (bool, error) {
	if h.curKernel == nil {
		return false, nil
	}
	cfg := h.cfgs[h.curKernel.Name]

	switch name {
	case ".calnote":
		typ, ok := ParseCalNoteType(strings.TrimSpace(strings.ToUpper(args)))
		if !ok {
			return true, fmt.Errorf(".calnote: unknown note type %q", args)
		}
		cfg.haveRaw = true
		cfg.rawNotes = append(cfg.rawNotes, calNote{Type: typ})
		if _, err := ctx.SelectSection(format.SectionRequest{Role: format.RoleCalNote, Kernel: h.curKernel.Name, CalNoteType: typ}); err != nil {
			return true, err
		}
		return true, nil
	case ".header":
		if _, err := ctx.SelectSection(format.SectionRequest{Role: format.RoleHeader, Kernel: h.curKernel.Name}); err != nil {
			return true, err
		}
		return true, nil
	}

	return cfg.handle(ctx, name, args)
}

// Finalize builds the outer ELF: one section per kernel carrying that
// kernel's inner ELF, plus the shared .rodata.
func (h *handler) Finalize() ([]byte, error) {
	class := elf.ELFCLASS32
	if h.arch >= gcnasm.ArchGCN1_2 {
		class = elf.ELFCLASS64
	}
	outer := elfbuild.NewBuilder(class, elf.Machine(machineFor(h.arch)), elf.ET_EXEC)

	if s := h.sections.Find(".rodata", gcnasm.SectionRodata, ""); s != nil {
		outer.AddSection(elfbuild.Section{Name: ".rodata", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC, Data: s.Content, Align: 4})
	}

	for _, k := range h.kernels {
		inner, err := h.buildInnerELF(k)
		if err != nil {
			return nil, err
		}
		outer.AddSection(elfbuild.Section{
			Name: k.Name, Type: elf.SHT_PROGBITS, Data: inner, Align: 4,
		})
	}
	return outer.Bytes()
}

func (h *handler) buildInnerELF(k *gcnasm.Kernel) ([]byte, error) {
	class := elf.ELFCLASS32
	if h.arch >= gcnasm.ArchGCN1_2 {
		class = elf.ELFCLASS64
	}
	inner := elfbuild.NewBuilder(class, elf.Machine(machineFor(h.arch)), elf.ET_EXEC)

	text := h.sections.Get(k.CodeSection)
	inner.AddSection(elfbuild.Section{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: text.Content, Align: 4})

	if s := h.sections.Find(".data", gcnasm.SectionData, k.Name); s != nil {
		inner.AddSection(elfbuild.Section{Name: ".data", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_WRITE, Data: s.Content, Align: 4})
	}

	notes, _ := k.ConfigBlock.([]calNote)
	var noteData []byte
	for _, n := range notes {
		noteData = append(noteData, encodeNote(n.Type, n.Payload)...)
	}
	if len(noteData) > 0 {
		inner.AddSection(elfbuild.Section{Name: ".note", Type: elf.SHT_NOTE, Data: noteData, Align: 4})
	}
	if len(k.Metadata) > 0 {
		inner.AddSection(elfbuild.Section{Name: ".comment", Type: elf.SHT_PROGBITS, Data: k.Metadata, Align: 1})
	}
	return inner.Bytes()
}

// machineFor picks the ELF e_machine value legacy AMD containers use;
// every GCN generation shares the same AMD GPU machine id in this
// container (unlike ROCm's EM_AMDGPU, legacy AMD uses the numeric id
// 0x3fd, which debug/elf has no named constant for).
func machineFor(arch gcnasm.GPUArchitecture) int {
	return int(elf.EM_NONE) + 0x3fd // AMD's historical CAL/legacy e_machine value
}

// ParseBinary reads the outer ELF back and, for each non-.rodata
// section, the inner ELF it carries, producing one gcnasm.Kernel plus
// one gcnasm.Section (its .text) per kernel.
func (h *handler) ParseBinary(data []byte) (*format.DisasmInput, error) {
	outer, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("amd: outer ELF: %w", err)
	}
	defer outer.Close()

	in := &format.DisasmInput{Format: format.AMD, Architecture: h.arch}

	for _, sec := range outer.Sections {
		if sec.Type != elf.SHT_PROGBITS || sec.Name == "" {
			continue
		}
		raw, err := sec.Data()
		if err != nil {
			return nil, fmt.Errorf("amd: section %q: %w", sec.Name, err)
		}
		if sec.Name == ".rodata" {
			in.GlobalData = raw
			continue
		}
		k, sections, err := parseInnerELF(sec.Name, raw)
		if err != nil {
			return nil, err
		}
		k.CodeSection = gcnasm.SectionID(len(in.Sections))
		in.Kernels = append(in.Kernels, k)
		in.Sections = append(in.Sections, sections...)
	}
	return in, nil
}

func parseInnerELF(kernelName string, data []byte) (gcnasm.Kernel, []gcnasm.Section, error) {
	inner, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return gcnasm.Kernel{}, nil, fmt.Errorf("amd: kernel %q inner ELF: %w", kernelName, err)
	}
	defer inner.Close()

	k := gcnasm.Kernel{Name: kernelName, SetupSection: gcnasm.NoSection}
	var sections []gcnasm.Section
	for _, sec := range inner.Sections {
		switch sec.Name {
		case ".text":
			raw, err := sec.Data()
			if err != nil {
				return k, nil, err
			}
			sections = append(sections, gcnasm.Section{Name: ".text", Kind: gcnasm.SectionText, OwnerKernel: kernelName, Content: raw})
		case ".note":
			raw, err := sec.Data()
			if err != nil {
				return k, nil, err
			}
			k.Header = raw
		case ".comment":
			raw, err := sec.Data()
			if err != nil {
				return k, nil, err
			}
			k.Metadata = raw
		}
	}
	return k, sections, nil
}
