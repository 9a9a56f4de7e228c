// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amd

import (
	"fmt"
	"strings"

	"github.com/gcnkit/gcnasm"
)

// PROGINFO entries are addressed by hard-coded magic constants rather
// than a struct layout; this table is the fixed schema a ".config"
// block lowers to.
const (
	progInfoUserDataCount = 0x80001000
	progInfoUserDataFirst = 0x80001001
	progInfoUserDataLast  = 0x80001041 // exclusive-ish: 32 slots, one per 0x80001001+i
	progInfoVGPRs         = 0x80001041
	progInfoSGPRs         = 0x80001042
	progInfoFloatMode     = 0x80001043
	progInfoIeeeMode      = 0x80001044
	progInfoFeatures      = 0x8000001f
	progInfoPGMRSRC2      = 0x00002e13
	progInfoUAVMaskFirst  = 0x80001843
	progInfoUAVMaskLast   = 0x80001863
)

// progInfoEntry is one (address, value) PROGINFO note entry.
type progInfoEntry struct {
	Addr  uint32
	Value uint32
}

// metadataArg is one lowered ";pointer:"/";value:"/... argument line.
type metadataArg struct {
	Kind gcnasm.AMDArgKind
	Text string // the fully-formed line content after "Kind:"
}

// kernelConfig accumulates one kernel's ".config" block state between
// ".config" and the directive that ends it (".text" or a new
// ".kernel"/".config").
type kernelConfig struct {
	active bool

	vgprsNum    int
	sgprsNum    int
	floatMode   int
	ieeeMode    bool
	priority    int
	userDataNum int
	pgmRSRC2    uint32
	dimMask     uint8 // bits 0-2 group, bits 3-5 local
	uavIDs      []int
	scratchBuf  int
	args        []metadataArg

	// Raw-mode state, independent of .config: direct .header/.metadata/
	// .calnote/.proginfo content bypasses the synthesized form above.
	rawHeader   []byte
	rawMetadata string
	rawNotes    []calNote
	rawProgInfo []progInfoEntry
	haveRaw     bool
}

func newKernelConfig() *kernelConfig {
	return &kernelConfig{ieeeMode: true}
}

// handle dispatches one format-specific directive line while a kernel
// scope is open. ok is false if name is not one recognized here.
func (c *kernelConfig) handle(ctx interface {
	EvalExprText(string) (int64, bool)
	Sink() *gcnasm.Sink
	CurrentPosition() *gcnasm.PositionChain
}, name, args string) (ok bool, err error) {
	pos := ctx.CurrentPosition()
	evalInt := func(text string) (int, bool) {
		v, ok := ctx.EvalExprText(text)
		if !ok {
			ctx.Sink().Error(pos, "%s: cannot resolve %q", name, text)
			return 0, false
		}
		return int(v), true
	}

	switch name {
	case ".config":
		c.active = true
		return true, nil

	case ".dims":
		c.dimMask = 0
		for _, f := range strings.FieldsFunc(strings.ToLower(args), func(r rune) bool { return r == ',' || r == ' ' || r == '\t' }) {
			switch f {
			case "x":
				c.dimMask |= 1 << 0
			case "y":
				c.dimMask |= 1 << 1
			case "z":
				c.dimMask |= 1 << 2
			case "lx":
				c.dimMask |= 1 << 3
			case "ly":
				c.dimMask |= 1 << 4
			case "lz":
				c.dimMask |= 1 << 5
			default:
				ctx.Sink().Error(pos, ".dims: unknown dimension %q", f)
			}
		}
		return true, nil

	case ".sgprsnum":
		if v, ok := evalInt(args); ok {
			c.sgprsNum = v
		}
		return true, nil
	case ".vgprsnum":
		if v, ok := evalInt(args); ok {
			c.vgprsNum = v
		}
		return true, nil
	case ".floatmode":
		if v, ok := evalInt(args); ok {
			c.floatMode = v
		}
		return true, nil
	case ".ieeemode":
		c.ieeeMode = true
		return true, nil
	case ".priority":
		if v, ok := evalInt(args); ok {
			c.priority = v
		}
		return true, nil
	case ".userdatanum":
		if v, ok := evalInt(args); ok {
			c.userDataNum = v
		}
		return true, nil
	case ".pgmrsrc2":
		if v, ok := evalInt(args); ok {
			c.pgmRSRC2 = uint32(v)
		}
		return true, nil
	case ".uavid":
		if v, ok := evalInt(args); ok {
			c.uavIDs = append(c.uavIDs, v)
		}
		return true, nil
	case ".scratchbuffer":
		if v, ok := evalInt(args); ok {
			c.scratchBuf = v
		}
		return true, nil

	case ".arg":
		kind, line, err := parseArgLine(args)
		if err != nil {
			ctx.Sink().Error(pos, ".arg: %v", err)
			return true, nil
		}
		c.args = append(c.args, metadataArg{Kind: kind, Text: line})
		return true, nil

	case ".header":
		c.haveRaw = true
		c.rawHeader = append([]byte(nil), []byte(strings.TrimSpace(args))...)
		return true, nil
	case ".metadata":
		c.haveRaw = true
		c.rawMetadata = args
		return true, nil
	case ".calnote":
		typ, ok := ParseCalNoteType(strings.TrimSpace(strings.ToUpper(args)))
		if !ok {
			ctx.Sink().Error(pos, ".calnote: unknown note type %q", args)
			return true, nil
		}
		c.haveRaw = true
		c.rawNotes = append(c.rawNotes, calNote{Type: typ})
		return true, nil
	case ".entry":
		// ".proginfo .entry addr, val" — addr/val pair appended to the
		// in-progress raw PROGINFO note.
		addr, val, ok := parseEntryArgs(args, evalInt)
		if ok {
			c.haveRaw = true
			c.rawProgInfo = append(c.rawProgInfo, progInfoEntry{Addr: uint32(addr), Value: uint32(val)})
		}
		return true, nil
	}
	return false, nil
}

func parseEntryArgs(args string, evalInt func(string) (int, bool)) (addr, val int, ok bool) {
	i := strings.IndexByte(args, ',')
	if i < 0 {
		return 0, 0, false
	}
	a, okA := evalInt(strings.TrimSpace(args[:i]))
	v, okV := evalInt(strings.TrimSpace(args[i+1:]))
	return a, v, okA && okV
}

// parseArgLine turns ".arg KIND, rest..." into the AMDArgKind plus the
// lowered ";kind:rest" metadata line.
func parseArgLine(args string) (gcnasm.AMDArgKind, string, error) {
	i := strings.IndexByte(args, ',')
	kindName := strings.TrimSpace(args)
	rest := ""
	if i >= 0 {
		kindName = strings.TrimSpace(args[:i])
		rest = strings.TrimSpace(args[i+1:])
	}
	var kind gcnasm.AMDArgKind
	var tag string
	switch strings.ToLower(kindName) {
	case "value":
		kind, tag = gcnasm.AMDArgValue, "value"
	case "pointer":
		kind, tag = gcnasm.AMDArgPointer, "pointer"
	case "image":
		kind, tag = gcnasm.AMDArgImage, "image"
	case "counter":
		kind, tag = gcnasm.AMDArgCounter, "counter"
	case "sampler":
		kind, tag = gcnasm.AMDArgSampler, "sampler"
	case "reflection":
		kind, tag = gcnasm.AMDArgReflection, "reflection"
	default:
		return 0, "", fmt.Errorf("unknown argument kind %q", kindName)
	}
	return kind, fmt.Sprintf(";%s:%s", tag, rest), nil
}

// finalize lowers the accumulated .config state into the fixed
// PROGINFO schema plus the synthesized metadata string, or returns the
// raw-mode content verbatim if any raw directive was used for this
// kernel.
func (c *kernelConfig) finalize() (entries []progInfoEntry, metadata string, notes []calNote) {
	if c.haveRaw {
		return c.rawProgInfo, c.rawMetadata, c.rawNotes
	}

	entries = append(entries,
		progInfoEntry{Addr: progInfoVGPRs, Value: uint32(c.vgprsNum)},
		progInfoEntry{Addr: progInfoSGPRs, Value: uint32(c.sgprsNum)},
		progInfoEntry{Addr: progInfoFloatMode, Value: uint32(c.floatMode)},
		progInfoEntry{Addr: progInfoIeeeMode, Value: boolU32(c.ieeeMode)},
		progInfoEntry{Addr: progInfoUserDataCount, Value: uint32(c.userDataNum)},
		progInfoEntry{Addr: progInfoPGMRSRC2, Value: c.pgmRSRC2},
	)
	for i := 0; i < c.userDataNum && i < 32; i++ {
		entries = append(entries, progInfoEntry{Addr: progInfoUserDataFirst + uint32(i), Value: 0})
	}
	for i, id := range c.uavIDs {
		if progInfoUAVMaskFirst+uint32(i) > progInfoUAVMaskLast {
			break
		}
		entries = append(entries, progInfoEntry{Addr: progInfoUAVMaskFirst + uint32(i), Value: uint32(id)})
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, ";ARGSTART\n;version:3:1:104\n")
	for i := 0; i < 6; i++ {
		if c.dimMask&(1<<i) != 0 {
			fmt.Fprintf(&sb, ";dim:%d\n", i)
		}
	}
	for _, a := range c.args {
		sb.WriteString(a.Text)
		sb.WriteByte('\n')
	}
	sb.WriteString(";ARGEND:__OpenCL_kernel\n")
	return entries, sb.String(), nil
}

func boolU32(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}

// oldUAVRemap reports whether driverVersion predates the 134805 UAV id
// remapping change: before it, UAV ids use the older semantics.
func oldUAVRemap(driverVersion gcnasm.DriverVersion) bool {
	return int(driverVersion) < 134805
}

// perArgConstBuffers reports whether driverVersion predates 112402,
// where per-arg constant-buffer sizes are carried in CONSTANTBUFFERS
// CAL note entries instead of the newer combined form.
func perArgConstBuffers(driverVersion gcnasm.DriverVersion) bool {
	return int(driverVersion) < 112402
}
