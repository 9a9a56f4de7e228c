// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package rocm implements the ROCm (HSACO) container: a single
// ELF64/EM_AMDGPU object whose .text carries a 256-byte AMDHSA
// kernel-code header ahead of every kernel's code, plus .rodata, a
// .note holding the AMDGPU metadata document (YAML or MsgPack,
// selected by ".metadataformat"), and, when ".dynref" is used, a
// .symtab entry per referenced symbol plus a .rela.dyn section, which
// is emitted with no relocation entries.
package rocm

import (
	"bytes"
	"debug/elf"
	"fmt"

	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/elfbuild"
	"github.com/gcnkit/gcnasm/format"
	"github.com/gcnkit/gcnasm/format/hsaheader"
	"github.com/gcnkit/gcnasm/format/rocm/metadata"
)

func init() {
	format.Register(format.ROCm, New)
}

// noteOwner / noteType identify the AMDGPU metadata note the way a
// real code-object v3 ELF names it.
const (
	noteOwner = "AMD"
	noteType  = 32 // NT_AMD_AMDGPU_HSA_METADATA
)

type handler struct {
	arch          gcnasm.GPUArchitecture
	driverVersion gcnasm.DriverVersion
	sections      *gcnasm.SectionSet
	symbols       *gcnasm.SymbolTable

	kernels []*gcnasm.Kernel
	cfgs    map[string]*kernelConfig

	curKernel     *gcnasm.Kernel
	useMsgPack    bool // metadata note encoding; MsgPack is the code-object v3 default
	dynSymRefs    map[gcnasm.SymbolID]bool
}

// New constructs the ROCm handler.
func New(arch gcnasm.GPUArchitecture, driverVersion gcnasm.DriverVersion, sections *gcnasm.SectionSet, symbols *gcnasm.SymbolTable) format.Handler {
	return &handler{
		arch: arch, driverVersion: driverVersion, sections: sections, symbols: symbols,
		cfgs:       make(map[string]*kernelConfig),
		useMsgPack: true,
		dynSymRefs: make(map[gcnasm.SymbolID]bool),
	}
}

func (h *handler) Format() format.Format { return format.ROCm }

func (h *handler) BeginKernel(name string) (*gcnasm.Kernel, error) {
	if h.curKernel != nil {
		return nil, fmt.Errorf("rocm: kernel %q still open", h.curKernel.Name)
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
		return fmt.Errorf("rocm: no open kernel")
	}
	k := h.curKernel
	cfg := h.cfgs[k.Name]
	k.Args = cfg.args
	k.ConfigBlock = cfg
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
		return h.selectText()
	}
	info, ok := roleNames[req.Role]
	if !ok {
		return gcnasm.NoSection, fmt.Errorf("rocm: section role %v not supported", req.Role)
	}
	if s := h.sections.Find(info.name, info.kind, ""); s != nil {
		return s.ID, nil
	}
	return h.sections.Create(info.name, info.kind, "").ID, nil
}

// selectText writes the 256-byte AMDHSA header immediately ahead of a
// kernel's first code byte, the way every code-object version has
// always done it (unlike AMDCL2, HSACO never drops to a stub — the
// full header is mandatory).
func (h *handler) selectText() (gcnasm.SectionID, error) {
	text := h.sections.Find(".text", gcnasm.SectionText, "")
	if text == nil {
		text = h.sections.Create(".text", gcnasm.SectionText, "")
	}
	if h.curKernel == nil {
		return text.ID, nil
	}
	cfg := h.cfgs[h.curKernel.Name]
	if cfg.kind == regionData || cfg.headerWritten {
		return text.ID, nil
	}
	cfg.headerWritten = true
	hdr := hsaheader.Header{
		CodeVersionMajor:      1,
		ComputePgmRsrc1:       cfg.rsrc1(),
		ComputePgmRsrc2:       cfg.rsrc2(),
		KernelCodeEntryOffset: hsaheader.Size,
		KernargSegmentSize:    uint64(cfg.kernargSegmentSize),
		KernargSegmentAlignmentLog2: log2(cfg.kernargSegmentAlign),
		WorkgroupGroupSegmentSize:  uint32(cfg.groupSegmentFixedSize),
		WorkitemPrivateSegmentSize: uint32(cfg.privateSegmentFixedSize),
		WavefrontSizeLog2:          6,
	}
	text.Write(hdr.Pack())
	return text.ID, nil
}

func log2(n int) uint8 {
	var l uint8
	for n > 1 {
		n >>= 1
		l++
	}
	return l
}

func (h *handler) HandlePseudoOp(ctx format.Context, name string, args string) (bool, error) {
	switch name {
	case ".metadataformat":
		h.useMsgPack = trim(args) != "yaml"
		return true, nil
	}
	if h.curKernel == nil {
		return false, nil
	}
	cfg := h.cfgs[h.curKernel.Name]
	switch name {
	case ".fkernel":
		cfg.kind = regionFKernel
		return true, nil
	case ".object":
		cfg.kind = regionData
		return true, nil
	case ".dynref":
		if sym, ok := ctx.Symbols().Lookup(trim(args)); ok {
			h.dynSymRefs[sym] = true
		}
		return true, nil
	}
	return cfg.handle(ctx, name, args)
}

func (h *handler) buildMetadataNote() ([]byte, error) {
	doc := metadata.Metadata{Version: [2]int{1, 0}}
	for _, k := range h.kernels {
		cfg, _ := k.ConfigBlock.(*kernelConfig)
		if cfg == nil {
			continue
		}
		doc.Kernels = append(doc.Kernels, toMetadataKernel(k, cfg))
	}
	if h.useMsgPack {
		return metadata.EncodeMsgPack(doc)
	}
	return metadata.EncodeYAML(doc)
}

func (h *handler) Finalize() ([]byte, error) {
	b := elfbuild.NewBuilder(elf.ELFCLASS64, elf.Machine(elfbuild.EM_AMDGPU), elf.ET_DYN)

	if s := h.sections.Find(".text", gcnasm.SectionText, ""); s != nil {
		b.AddSection(elfbuild.Section{Name: ".text", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC | elf.SHF_EXECINSTR, Data: s.Content, Align: 256})
	}
	if s := h.sections.Find(".rodata", gcnasm.SectionRodata, ""); s != nil {
		b.AddSection(elfbuild.Section{Name: ".rodata", Type: elf.SHT_PROGBITS, Flags: elf.SHF_ALLOC, Data: s.Content, Align: 16})
	}
	if s := h.sections.Find(".comment", gcnasm.SectionComment, ""); s != nil {
		b.AddSection(elfbuild.Section{Name: ".comment", Type: elf.SHT_PROGBITS, Data: s.Content, Align: 1})
	}

	metaBytes, err := h.buildMetadataNote()
	if err != nil {
		return nil, fmt.Errorf("rocm: metadata: %w", err)
	}
	b.AddSection(elfbuild.Section{Name: ".note", Type: elf.SHT_NOTE, Data: encodeNote(noteOwner, noteType, metaBytes), Align: 4})

	if len(h.dynSymRefs) > 0 {
		var relaData bytes.Buffer
		for sym := range h.dynSymRefs {
			sd := h.symbols.Get(sym)
			if sd == nil {
				continue
			}
			b.AddSymbol(elfbuild.Symbol{Name: sd.Name, Section: -1})
		}
		b.AddSection(elfbuild.Section{Name: ".rela.dyn", Type: elf.SHT_RELA, Data: relaData.Bytes(), Align: 8})
	}

	return b.Bytes()
}

// encodeNote packs a single ELF note in the standard
// {namesz, descsz, type, name (padded), desc (padded)} layout.
func encodeNote(owner string, typ uint32, desc []byte) []byte {
	var buf bytes.Buffer
	name := append([]byte(owner), 0)
	writeU32 := func(v uint32) {
		buf.WriteByte(byte(v))
		buf.WriteByte(byte(v >> 8))
		buf.WriteByte(byte(v >> 16))
		buf.WriteByte(byte(v >> 24))
	}
	writeU32(uint32(len(name)))
	writeU32(uint32(len(desc)))
	writeU32(typ)
	buf.Write(name)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	buf.Write(desc)
	for buf.Len()%4 != 0 {
		buf.WriteByte(0)
	}
	return buf.Bytes()
}

func (h *handler) ParseBinary(data []byte) (*format.DisasmInput, error) {
	f, err := elf.NewFile(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("rocm: %w", err)
	}
	defer f.Close()

	in := &format.DisasmInput{Format: format.ROCm, Architecture: h.arch}
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
	if s := f.Section(".note"); s != nil {
		raw, err := s.Data()
		if err == nil {
			in.Kernels = decodeKernelsFromNote(raw)
		}
	}
	return in, nil
}

// decodeKernelsFromNote strips the ELF note envelope and decodes the
// AMDGPU metadata document, trying MsgPack first (the code-object v3
// default) and falling back to YAML.
func decodeKernelsFromNote(raw []byte) []gcnasm.Kernel {
	desc := stripNote(raw)
	doc, err := metadata.DecodeMsgPack(desc)
	if err != nil {
		doc, err = metadata.DecodeYAML(desc)
		if err != nil {
			return nil
		}
	}
	kernels := make([]gcnasm.Kernel, 0, len(doc.Kernels))
	for _, mk := range doc.Kernels {
		k := gcnasm.Kernel{Name: mk.Name, CodeSection: 0, SetupSection: gcnasm.NoSection}
		for _, a := range mk.Args {
			k.Args = append(k.Args, a.ToKernelArg())
		}
		kernels = append(kernels, k)
	}
	return kernels
}

func stripNote(raw []byte) []byte {
	if len(raw) < 12 {
		return nil
	}
	namesz := uint32(raw[0]) | uint32(raw[1])<<8 | uint32(raw[2])<<16 | uint32(raw[3])<<24
	descsz := uint32(raw[4]) | uint32(raw[5])<<8 | uint32(raw[6])<<16 | uint32(raw[7])<<24
	nameEnd := 12 + int(namesz)
	for nameEnd%4 != 0 {
		nameEnd++
	}
	if nameEnd+int(descsz) > len(raw) {
		return nil
	}
	return raw[nameEnd : nameEnd+int(descsz)]
}
