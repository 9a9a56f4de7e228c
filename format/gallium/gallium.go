// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gallium implements the Gallium Compute container: a single
// ELF with .text/.rodata/.AMDGPU.config/.AMDGPU.scratch/.comment and a
// binary kernel table, with an optional LLVM>=4.0 AMDHSA kernel-code
// header mode configured independently via ".hsaconfig".
package gallium

import (
	"bytes"
	"debug/elf"
	"fmt"
	"strings"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/elfbuild"
	"github.com/gcnkit/gcnasm/format"
	"github.com/gcnkit/gcnasm/format/hsaheader"
)

func init() {
	format.Register(format.Gallium, New)
}

// llvm39 / llvm40 are the feature-gate thresholds: at LLVM>=3.9 the
// prog-info schema grows two entries, at LLVM>=4.0 kernels
// additionally get an AMDHSA header (AMDHSA layout mode).
var (
	llvm39Threshold = gcnasm.MakeLLVMVersion(3, 9, 0)
	llvm40Threshold = gcnasm.MakeLLVMVersion(4, 0, 0)
)

type handler struct {
	arch          gcnasm.GPUArchitecture
	driverVersion gcnasm.DriverVersion
	sections      *gcnasm.SectionSet
	symbols       *gcnasm.SymbolTable

	kernels []*gcnasm.Kernel
	cfgs    map[string]*kernelConfig

	curKernel   *gcnasm.Kernel
	llvmVersion gcnasm.LLVMVersion
	sink        *gcnasm.Sink

	scratchSym   gcnasm.SymbolID
	haveScratch  bool
}

// New constructs the Gallium handler.
func New(arch gcnasm.GPUArchitecture, driverVersion gcnasm.DriverVersion, sections *gcnasm.SectionSet, symbols *gcnasm.SymbolTable) format.Handler {
	return &handler{
		arch: arch, driverVersion: driverVersion, sections: sections, symbols: symbols,
		cfgs: make(map[string]*kernelConfig),
	}
}

func (h *handler) Format() format.Format { return format.Gallium }

func (h *handler) BeginKernel(name string) (*gcnasm.Kernel, error) {
	if h.curKernel != nil {
		return nil, fmt.Errorf("gallium: kernel %q still open", h.curKernel.Name)
	}
	text := h.sections.Find(".text", gcnasm.SectionText, "")
	if text == nil {
		text = h.sections.Create(".text", gcnasm.SectionText, "")
	}
	k := &gcnasm.Kernel{Name: name, CodeSection: text.ID, SetupSection: gcnasm.NoSection}
	h.kernels = append(h.kernels, k)
	h.cfgs[name] = newKernelConfig()
	h.curKernel = k
	return k, nil
}

func (h *handler) EndKernel() error {
	if h.curKernel == nil {
		return fmt.Errorf("gallium: no open kernel")
	}
	k := h.curKernel
	cfg := h.cfgs[k.Name]
	k.Args = cfg.args
	h.curKernel = nil
	return nil
}

var roleNames = map[format.SectionRole]struct {
	name string
	kind gcnasm.SectionKind
}{
	format.RoleRodata:  {".rodata", gcnasm.SectionRodata},
	format.RoleComment: {".comment", gcnasm.SectionComment},
}

func (h *handler) SelectSection(req format.SectionRequest) (gcnasm.SectionID, error) {
	if req.Role == format.RoleText {
		if s := h.sections.Find(".text", gcnasm.SectionText, ""); s != nil {
			h.writeHeaderOnce(s)
			return s.ID, nil
		}
		s := h.sections.Create(".text", gcnasm.SectionText, "")
		h.writeHeaderOnce(s)
		return s.ID, nil
	}
	info, ok := roleNames[req.Role]
	if !ok {
		return gcnasm.NoSection, fmt.Errorf("gallium: section role %v not supported", req.Role)
	}
	if s := h.sections.Find(info.name, info.kind, ""); s != nil {
		return s.ID, nil
	}
	return h.sections.Create(info.name, info.kind, "").ID, nil
}

// writeHeaderOnce emits the per-kernel AMDHSA header immediately ahead
// of a kernel's code once LLVM>=4.0 mode is active, mirroring
// AMDCL2's "write it when .text is first selected for this kernel".
func (h *handler) writeHeaderOnce(text *gcnasm.Section) {
	if h.curKernel == nil || !h.llvmVersion.AtLeast(4, 0) {
		return
	}
	cfg := h.cfgs[h.curKernel.Name]
	if cfg.headerWritten {
		return
	}
	cfg.headerWritten = true
	rsrc1, rsrc2 := rsrc1(cfg), rsrc2(cfg)
	if cfg.hsaConfigSet {
		rsrc1, rsrc2 = cfg.hsaRsrc1, cfg.hsaRsrc2
	}
	text.Write((&hsaheader.Header{CodeVersionMajor: 1, ComputePgmRsrc1: rsrc1, ComputePgmRsrc2: rsrc2, KernelCodeEntryOffset: hsaheader.Size}).Pack())
}

func (h *handler) HandlePseudoOp(ctx format.Context, name string, args string) (bool, error) {
	h.llvmVersion = ctx.LLVMVersion()
	h.sink = ctx.Sink()

	if name == ".scratchsym" {
		sym := ctx.Symbols().Intern(strings.TrimSpace(args))
		h.scratchSym, h.haveScratch = sym, true
		return true, nil
	}
	if name == ".hsaconfig" {
		return true, nil // scope marker only; .hsarsrc1/.hsarsrc2 carry the payload
	}
	if h.curKernel == nil {
		return false, nil
	}
	return h.cfgs[h.curKernel.Name].handle(ctx, name, args)
}

func (h *handler) Finalize() ([]byte, error) {
	if h.haveScratch {
		h.checkScratchRelocations()
	}

	class := elf.ELFCLASS64
	if h.arch < gcnasm.ArchGCN1_2 {
		class = elf.ELFCLASS32
	}
	b := elfbuild.NewBuilder(class, elf.Machine(elfbuild.EM_AMDGPU), elf.ET_REL)

	if s := h.sections.Find(".text", gcnasm.SectionText, ""); s != nil {
		b.AddSection(elfbuild.Section{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: s.Content, Align: 256})
		if h.haveScratch && len(s.Relocations) > 0 {
			b.AddSection(elfbuild.Section{Name: ".AMDGPU.scratch", Type: elf.SHT_REL, Data: encodeScratchRelocs(s.Relocations, h.scratchSym), Align: 8})
		}
	}
	if s := h.sections.Find(".rodata", gcnasm.SectionRodata, ""); s != nil {
		b.AddSection(elfbuild.Section{Name: ".rodata", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC, Data: s.Content, Align: 4})
	}
	if s := h.sections.Find(".comment", gcnasm.SectionComment, ""); s != nil {
		b.AddSection(elfbuild.Section{Name: ".comment", Type: elf.SHT_PROGBITS, Data: s.Content, Align: 1})
	}

	llvmAtLeast39 := h.llvmVersion.AtLeast(3, 9)
	var progInfoData bytes.Buffer
	var tableEntries []kernelTableEntry
	for _, k := range h.kernels {
		cfg := h.cfgs[k.Name]
		for _, e := range cfg.finalize(llvmAtLeast39) {
			progInfoData.Write([]byte{byte(e.Addr), byte(e.Addr >> 8), byte(e.Addr >> 16), byte(e.Addr >> 24)})
			progInfoData.Write([]byte{byte(e.Value), byte(e.Value >> 8), byte(e.Value >> 16), byte(e.Value >> 24)})
		}
		tableEntries = append(tableEntries, kernelTableEntry{Name: k.Name, Args: k.Args})
	}
	if progInfoData.Len() > 0 {
		b.AddSection(elfbuild.Section{Name: ".AMDGPU.config", Type: elf.SHT_PROGBITS, Data: progInfoData.Bytes(), Align: 4})
	}
	b.AddSection(elfbuild.Section{Name: ".AMDGPU.kerneltable", Type: elf.SHT_PROGBITS, Data: encodeKernelTable(tableEntries), Align: 4})

	return b.Bytes()
}

// checkScratchRelocations enforces the restriction that an expression
// resolving to a relocation against the scratch symbol must point
// exactly at it, never at a nonzero addend from it.
func (h *handler) checkScratchRelocations() {
	for _, s := range h.sections.All() {
		for _, r := range s.Relocations {
			if r.Symbol == h.scratchSym && r.Addend != 0 {
				h.sink.Error(nil, "scratch symbol reference must not carry a nonzero addend")
			}
		}
	}
}

func encodeScratchRelocs(relocs []gcnasm.Relocation, scratchSym gcnasm.SymbolID) []byte {
	var buf bytes.Buffer
	for _, r := range relocs {
		if r.Symbol != scratchSym {
			continue
		}
		buf.Write([]byte{byte(r.Offset), byte(r.Offset >> 8), byte(r.Offset >> 16), byte(r.Offset >> 24)})
		buf.WriteByte(byte(r.Kind))
	}
	return buf.Bytes()
}

func (h *handler) ParseBinary(data []byte) (*format.DisasmInput, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("gallium: %w", err)
	}
	defer f.Close()

	in := &format.DisasmInput{Format: format.Gallium, Architecture: h.arch}
	if s := f.Section(".text"); s != nil {
		raw, err := s.Data()
		if err != nil {
			return nil, err
		}
		in.Sections = append(in.Sections, gcnasm.Section{Name: ".text", Kind: gcnasm.SectionText, Content: raw})
	}
	if s := f.Section(".rodata"); s != nil {
		raw, err := s.Data()
		if err == nil {
			in.GlobalData = raw
		}
	}
	if s := f.Section(".AMDGPU.kerneltable"); s != nil {
		raw, err := s.Data()
		if err != nil {
			return nil, err
		}
		entries, err := decodeKernelTable(raw)
		if err != nil {
			return nil, err
		}
		for _, e := range entries {
			in.Kernels = append(in.Kernels, gcnasm.Kernel{Name: e.Name, Args: e.Args, CodeSection: 0, SetupSection: gcnasm.NoSection})
		}
	}
	return in, nil
}
