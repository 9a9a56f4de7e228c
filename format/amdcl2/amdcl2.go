// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package amdcl2 implements the AMDCL2 container: an outer ELF with an
// embedded inner ELF (stored as a plain section), the inner ELF
// carrying .hsatext/.hsadata_*/.hsabss_*/.hsaimage_samplerinit and a
// per-kernel 256-byte AMDHSA kernel-code header (or, on pre-191205
// drivers, a stub in its place).
package amdcl2

import (
	"bytes"
	"debug/elf"
	"encoding/binary"
	"fmt"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/elfbuild"
	"github.com/gcnkit/gcnasm/format"
	"github.com/gcnkit/gcnasm/format/hsaheader"
)

func init() {
	format.Register(format.AMDCL2, New)
}

// preHSAStubDriverVersion is the threshold below which kernels carry a
// per-kernel stub ahead of their code instead of the 256-byte AMDHSA
// header.
const preHSAStubDriverVersion = gcnasm.DriverVersion(191205)

// reloc encoding: data-section symbol references pack into 2 bits.
const (
	symGData = 0
	symDData = 1
	symBData = 2
)

type handler struct {
	arch          gcnasm.GPUArchitecture
	driverVersion gcnasm.DriverVersion
	sections      *gcnasm.SectionSet
	symbols       *gcnasm.SymbolTable

	kernels   []*gcnasm.Kernel
	cfgs      map[string]*kernelConfig
	hsaLayout bool

	curKernel *gcnasm.Kernel
}

// New constructs the AMDCL2 handler.
func New(arch gcnasm.GPUArchitecture, driverVersion gcnasm.DriverVersion, sections *gcnasm.SectionSet, symbols *gcnasm.SymbolTable) format.Handler {
	return &handler{
		arch: arch, driverVersion: driverVersion, sections: sections, symbols: symbols,
		cfgs: make(map[string]*kernelConfig),
	}
}

func (h *handler) Format() format.Format { return format.AMDCL2 }

func (h *handler) BeginKernel(name string) (*gcnasm.Kernel, error) {
	if h.curKernel != nil {
		return nil, fmt.Errorf("amdcl2: kernel %q still open", h.curKernel.Name)
	}
	k := &gcnasm.Kernel{Name: name, CodeSection: gcnasm.NoSection, SetupSection: gcnasm.NoSection}
	h.kernels = append(h.kernels, k)
	h.cfgs[name] = newKernelConfig()
	h.curKernel = k
	return k, nil
}

func (h *handler) EndKernel() error {
	if h.curKernel == nil {
		return fmt.Errorf("amdcl2: no open kernel")
	}
	k := h.curKernel
	cfg := h.cfgs[k.Name]

	args := cfg.args
	if cfg.useSetup {
		args = append(hiddenArgs(), args...)
	}
	k.Args = args

	extra := extraReservedSGPRs(h.arch, cfg.enqueue || cfg.genericPtr)
	rsrc1 := hsaheader.PackRsrc1(cfg.vgprsNum, cfg.sgprsNum+extra, cfg.priority, cfg.floatMode, cfg.privMode, cfg.dx10Clamp, cfg.debugMode, cfg.ieeeMode)
	rsrc2 := hsaheader.PackRsrc2(cfg.tgSize, cfg.exceptions)
	k.Metadata = buildMetadata(k, rsrc1, rsrc2, cfg)

	h.curKernel = nil
	return nil
}

func buildMetadata(k *gcnasm.Kernel, rsrc1, rsrc2 uint32, cfg *kernelConfig) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, rsrc1)
	binary.Write(&buf, binary.LittleEndian, rsrc2)
	binary.Write(&buf, binary.LittleEndian, uint32(cfg.localSize))
	binary.Write(&buf, binary.LittleEndian, uint32(len(k.Args)))
	for _, a := range k.Args {
		binary.Write(&buf, binary.LittleEndian, uint8(a.ValueKind))
		binary.Write(&buf, binary.LittleEndian, uint8(a.ValueType))
		binary.Write(&buf, binary.LittleEndian, uint32(a.Size))
		binary.Write(&buf, binary.LittleEndian, uint32(a.Align))
	}
	return buf.Bytes()
}

var dataSectionNames = map[format.SectionRole]struct {
	name string
	kind gcnasm.SectionKind
}{
	format.RoleRodata: {".hsadata_readonly_agent", gcnasm.SectionRodata},
	format.RoleData:   {".hsadata_global_agent", gcnasm.SectionData},
	format.RoleBss:    {".hsabss_global_agent", gcnasm.SectionBSS},
	format.RoleSamplerInit: {".hsaimage_samplerinit", gcnasm.SectionSamplerInit},
}

func (h *handler) SelectSection(req format.SectionRequest) (gcnasm.SectionID, error) {
	if req.Role == format.RoleText {
		return h.selectText(req.Kernel)
	}
	info, ok := dataSectionNames[req.Role]
	if !ok {
		return gcnasm.NoSection, fmt.Errorf("amdcl2: section role %v not supported", req.Role)
	}
	owner := ""
	if s := h.sections.Find(info.name, info.kind, owner); s != nil {
		return s.ID, nil
	}
	return h.sections.Create(info.name, info.kind, owner).ID, nil
}

func (h *handler) selectText(kernelName string) (gcnasm.SectionID, error) {
	owner := kernelName
	if h.hsaLayout {
		owner = ""
	}
	sec := h.sections.Find(".hsatext", gcnasm.SectionText, owner)
	if sec == nil {
		sec = h.sections.Create(".hsatext", gcnasm.SectionText, owner)
	}
	cfg := h.cfgs[kernelName]
	if cfg != nil && !cfg.headerWritten {
		cfg.headerWritten = true
		cfg.codeOffset = sec.Here()
		if h.driverVersion < preHSAStubDriverVersion {
			sec.Write(make([]byte, 16)) // pre-HSA per-kernel stub placeholder
		} else {
			sec.Write((&hsaheader.Header{CodeVersionMajor: 1, KernelCodeEntryOffset: hsaheader.Size}).Pack())
		}
		if h.curKernel != nil {
			h.curKernel.CodeSection = sec.ID
		}
	}
	return sec.ID, nil
}

func (h *handler) HandlePseudoOp(ctx format.Context, name string, args string) (bool, error) {
	if name == ".hsalayout" {
		h.hsaLayout = true
		return true, nil
	}
	if h.curKernel == nil {
		return false, nil
	}
	return h.cfgs[h.curKernel.Name].handle(ctx, name, args)
}

func machineFor(arch gcnasm.GPUArchitecture) elf.Machine {
	return elf.Machine(elfbuild.EM_AMDGPU)
}

func (h *handler) Finalize() ([]byte, error) {
	inner := elfbuild.NewBuilder(elf.ELFCLASS64, machineFor(h.arch), elf.ET_REL)
	if s := h.sections.Find(".hsatext", gcnasm.SectionText, ""); s != nil {
		h.addSectionWithRelocs(inner, ".hsatext", elf.SHF_ALLOC|elf.SHF_EXECINSTR, s)
	}
	for _, k := range h.kernels {
		if s := h.sections.Find(".hsatext", gcnasm.SectionText, k.Name); s != nil {
			h.addSectionWithRelocs(inner, ".hsatext", elf.SHF_ALLOC|elf.SHF_EXECINSTR, s)
		}
	}
	for _, info := range dataSectionNames {
		if s := h.sections.Find(info.name, info.kind, ""); s != nil {
			flags := elf.SHF_ALLOC
			if info.kind == gcnasm.SectionData || info.kind == gcnasm.SectionBSS {
				flags |= elf.SHF_WRITE
			}
			inner.AddSection(elfbuild.Section{Name: info.name, Type: elf.SHT_PROGBITS, Flags: flags, Data: s.Content, Align: 16})
		}
	}
	innerBytes, err := inner.Bytes()
	if err != nil {
		return nil, err
	}

	outer := elfbuild.NewBuilder(elf.ELFCLASS64, machineFor(h.arch), elf.ET_EXEC)
	outer.AddSection(elfbuild.Section{Name: ".text", Type: elf.SHT_PROGBITS, Data: innerBytes, Align: 4})
	for _, k := range h.kernels {
		if len(k.Metadata) > 0 {
			outer.AddSection(elfbuild.Section{Name: ".comment." + k.Name, Type: elf.SHT_PROGBITS, Data: k.Metadata, Align: 1})
		}
	}
	return outer.Bytes()
}

// addSectionWithRelocs appends s's content to inner, then one
// relocation-entry blob per Relocation using the compact
// {offset u64, symcode u8, kind u8, addend i64} encoding: symcode
// identifies which of the three data sections (or an external symbol,
// which falls outside the compact encoding and is skipped here) the
// target belongs to.
func (h *handler) addSectionWithRelocs(b *elfbuild.Builder, name string, flags elf.SectionFlag, s *gcnasm.Section) {
	b.AddSection(elfbuild.Section{Name: name, Type: elf.SHT_PROGBITS, Flags: flags, Data: s.Content, Align: 256})
	if len(s.Relocations) == 0 {
		return
	}
	var relData bytes.Buffer
	for _, r := range s.Relocations {
		code, ok := h.symCodeFor(r.Symbol)
		if !ok {
			continue
		}
		binary.Write(&relData, binary.LittleEndian, uint64(r.Offset))
		relData.WriteByte(code)
		relData.WriteByte(byte(r.Kind))
		binary.Write(&relData, binary.LittleEndian, r.Addend)
	}
	b.AddSection(elfbuild.Section{Name: ".rel" + name, Type: elf.SHT_REL, Data: relData.Bytes(), Align: 8})
}

func (h *handler) symCodeFor(sym gcnasm.SymbolID) (byte, bool) {
	symData := h.symbols.Get(sym)
	if symData == nil {
		return 0, false
	}
	sec := h.sections.Get(symData.Section)
	if sec == nil {
		return 0, false
	}
	switch sec.Name {
	case ".hsadata_readonly_agent":
		return symGData, true
	case ".hsadata_global_agent":
		return symDData, true
	case ".hsabss_global_agent":
		return symBData, true
	}
	return 0, false
}

func (h *handler) ParseBinary(data []byte) (*format.DisasmInput, error) {
	outer, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("amdcl2: outer ELF: %w", err)
	}
	defer outer.Close()

	textSec := outer.Section(".text")
	if textSec == nil {
		return nil, fmt.Errorf("amdcl2: outer ELF has no .text")
	}
	innerBytes, err := textSec.Data()
	if err != nil {
		return nil, err
	}
	inner, err := elf.NewFile(bytes.NewReader(innerBytes))
	if err != nil {
		return nil, fmt.Errorf("amdcl2: inner ELF: %w", err)
	}
	defer inner.Close()

	in := &format.DisasmInput{Format: format.AMDCL2, Architecture: h.arch}
	if s := inner.Section(".hsatext"); s != nil {
		raw, err := s.Data()
		if err != nil {
			return nil, err
		}
		in.Sections = append(in.Sections, gcnasm.Section{Name: ".hsatext", Kind: gcnasm.SectionText, Content: raw})
	}
	return in, nil
}
