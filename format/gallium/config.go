// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gallium

import (
	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/format/hsaheader"
)

func rsrc1(c *kernelConfig) uint32 {
	return hsaheader.PackRsrc1(c.vgprsNum, c.sgprsNum, c.priority, c.floatMode, c.privMode, c.dx10Clamp, c.debugMode, c.ieeeMode)
}

func rsrc2(c *kernelConfig) uint32 {
	return hsaheader.PackRsrc2(c.tgSize, c.exceptions)
}

// progInfo addresses are hard-coded magic constants, same convention
// as legacy AMD's PROGINFO schema but with Gallium's own addresses.
const (
	progInfoPGMRSRC1    = 0xb848
	progInfoPGMRSRC2    = 0xb84c
	progInfoScratchSize = 0xb860
	progInfoSpilledSGPRs = 0xb854
	progInfoSpilledVGPRs = 0xb858
)

type progInfoEntry struct {
	Addr  uint32
	Value uint32
}

// kernelConfig accumulates one kernel's ".config"/".hsaconfig" state.
type kernelConfig struct {
	vgprsNum   int
	sgprsNum   int
	priority   int
	floatMode  int
	privMode   bool
	dx10Clamp  bool
	debugMode  bool
	ieeeMode   bool
	tgSize     bool
	exceptions int
	scratchSize int
	spilledSGPRs int
	spilledVGPRs int

	hsaRsrc1, hsaRsrc2 uint32
	hsaConfigSet       bool

	args []gcnasm.KernelArg

	headerWritten bool
}

func newKernelConfig() *kernelConfig {
	return &kernelConfig{ieeeMode: true}
}

type evalCtx interface {
	EvalExprText(string) (int64, bool)
	Sink() *gcnasm.Sink
	CurrentPosition() *gcnasm.PositionChain
}

// handle dispatches one ".config"/".hsaconfig"-scope directive.
func (c *kernelConfig) handle(ctx evalCtx, name, args string) (ok bool, err error) {
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
	case ".priority":
		if v, ok := evalInt(args); ok {
			c.priority = v
		}
		return true, nil
	case ".floatmode":
		if v, ok := evalInt(args); ok {
			c.floatMode = v
		}
		return true, nil
	case ".privmode":
		c.privMode = true
		return true, nil
	case ".dx10clamp":
		c.dx10Clamp = true
		return true, nil
	case ".debugmode":
		c.debugMode = true
		return true, nil
	case ".ieeemode":
		c.ieeeMode = true
		return true, nil
	case ".tgsize":
		c.tgSize = true
		return true, nil
	case ".exceptions":
		if v, ok := evalInt(args); ok {
			c.exceptions = v
		}
		return true, nil
	case ".scratchbuffer":
		if v, ok := evalInt(args); ok {
			c.scratchSize = v
		}
		return true, nil
	case ".arg":
		arg, err := parseArg(ctx, args)
		if err != nil {
			ctx.Sink().Error(pos, ".arg: %v", err)
			return true, nil
		}
		c.args = append(c.args, arg)
		return true, nil
	case ".hsarsrc1":
		if v, ok := evalInt(args); ok {
			c.hsaRsrc1 = uint32(v)
			c.hsaConfigSet = true
		}
		return true, nil
	case ".hsarsrc2":
		if v, ok := evalInt(args); ok {
			c.hsaRsrc2 = uint32(v)
			c.hsaConfigSet = true
		}
		return true, nil
	}
	return false, nil
}

func parseArg(ctx evalCtx, text string) (gcnasm.KernelArg, error) {
	fields := splitCSV(text)
	arg := gcnasm.NewKernelArg("")
	if len(fields) > 0 {
		arg.Name = fields[0]
	}
	if len(fields) > 1 {
		switch fields[1] {
		case "scalar":
			arg.GalliumType = gcnasm.GalliumArgScalar
		case "constant":
			arg.GalliumType = gcnasm.GalliumArgConstant
		case "global":
			arg.GalliumType = gcnasm.GalliumArgGlobal
		case "local":
			arg.GalliumType = gcnasm.GalliumArgLocal
		case "image2d_ro":
			arg.GalliumType = gcnasm.GalliumArgImage2DRO
		case "image2d_wo":
			arg.GalliumType = gcnasm.GalliumArgImage2DWO
		case "image3d_ro":
			arg.GalliumType = gcnasm.GalliumArgImage3DRO
		case "image3d_wo":
			arg.GalliumType = gcnasm.GalliumArgImage3DWO
		case "sampler":
			arg.GalliumType = gcnasm.GalliumArgSampler
		}
	}
	if len(fields) > 2 {
		if v, ok := ctx.EvalExprText(fields[2]); ok {
			arg.Size = int(v)
		}
	}
	if len(fields) > 3 {
		if v, ok := ctx.EvalExprText(fields[3]); ok {
			arg.TargetSize = int(v)
		}
	}
	if len(fields) > 4 {
		if v, ok := ctx.EvalExprText(fields[4]); ok {
			arg.TargetAlign = int(v)
		}
	}
	return arg, nil
}

func splitCSV(text string) []string {
	var out []string
	start := 0
	depth := 0
	for i := 0; i < len(text); i++ {
		switch text[i] {
		case '(':
			depth++
		case ')':
			depth--
		case ',':
			if depth == 0 {
				out = append(out, trim(text[start:i]))
				start = i + 1
			}
		}
	}
	out = append(out, trim(text[start:]))
	return out
}

func trim(s string) string {
	for len(s) > 0 && (s[0] == ' ' || s[0] == '\t') {
		s = s[1:]
	}
	for len(s) > 0 && (s[len(s)-1] == ' ' || s[len(s)-1] == '\t') {
		s = s[:len(s)-1]
	}
	return s
}

// finalize lowers the accumulated state into the fixed PROGINFO
// schema: three entries, five once llvmAtLeast39 adds
// SpilledSGPRs/SpilledVGPRs.
func (c *kernelConfig) finalize(llvmAtLeast39 bool) []progInfoEntry {
	entries := []progInfoEntry{
		{Addr: progInfoPGMRSRC1, Value: rsrc1(c)},
		{Addr: progInfoPGMRSRC2, Value: rsrc2(c)},
		{Addr: progInfoScratchSize, Value: uint32(c.scratchSize)},
	}
	if llvmAtLeast39 {
		entries = append(entries,
			progInfoEntry{Addr: progInfoSpilledSGPRs, Value: uint32(c.spilledSGPRs)},
			progInfoEntry{Addr: progInfoSpilledVGPRs, Value: uint32(c.spilledVGPRs)},
		)
	}
	return entries
}
