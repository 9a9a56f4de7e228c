// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package rocm

import (
	"github.com/gcnkit/gcnasm"
	"github.com/gcnkit/gcnasm/format/hsaheader"
	"github.com/gcnkit/gcnasm/format/rocm/metadata"
)

// regionKind distinguishes the three kinds of .kernel scope HSACO
// recognizes: an ordinary kernel, a "fully-HSA" kernel (different ABI
// flag, no implicit setup section), and a plain data object.
type regionKind int

const (
	regionKernel regionKind = iota
	regionFKernel
	regionData
)

// kernelConfig accumulates one kernel's ".config" block plus the
// AMDHSA-specific fields HSACO's header and metadata note both need.
type kernelConfig struct {
	kind regionKind

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

	kernargSegmentSize      int
	groupSegmentFixedSize   int
	privateSegmentFixedSize int
	kernargSegmentAlign     int
	wavefrontSize           int
	reqdWorkGroupSize       [3]int
	hasReqdWorkGroupSize    bool

	args []gcnasm.KernelArg

	headerWritten bool
}

func newKernelConfig() *kernelConfig {
	return &kernelConfig{
		ieeeMode:            true,
		kernargSegmentAlign: 8,
		wavefrontSize:       6, // log2(64)
	}
}

type evalCtx interface {
	EvalExprText(string) (int64, bool)
	Sink() *gcnasm.Sink
	CurrentPosition() *gcnasm.PositionChain
}

// handle dispatches one ".config"-scope directive; ".fkernel" is
// handled by the caller since it toggles kind rather than a field.
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
	case ".kernargsegmentsize":
		if v, ok := evalInt(args); ok {
			c.kernargSegmentSize = v
		}
		return true, nil
	case ".groupsegmentsize":
		if v, ok := evalInt(args); ok {
			c.groupSegmentFixedSize = v
		}
		return true, nil
	case ".privatesegmentsize":
		if v, ok := evalInt(args); ok {
			c.privateSegmentFixedSize = v
		}
		return true, nil
	case ".reqdworkgroupsize":
		fields := splitCSV(args)
		if len(fields) == 3 {
			for i, f := range fields {
				if v, ok := evalInt(f); ok {
					c.reqdWorkGroupSize[i] = v
				}
			}
			c.hasReqdWorkGroupSize = true
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
		if kind, ok := gcnasm.ParseValueKind(fields[1]); ok {
			arg.ValueKind = kind
		}
	}
	if len(fields) > 2 {
		if typ, ok := gcnasm.ParseValueType(fields[2]); ok {
			arg.ValueType = typ
		}
	}
	if len(fields) > 3 {
		if v, ok := ctx.EvalExprText(fields[3]); ok {
			arg.Size = int(v)
		}
	}
	if len(fields) > 4 {
		if v, ok := ctx.EvalExprText(fields[4]); ok {
			arg.Align = int(v)
		}
	}
	return arg, nil
}

func splitCSV(text string) []string {
	var out []string
	start, depth := 0, 0
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

// rsrc1 / rsrc2 pack this config's resource-usage bits through the
// shared AMDHSA encoder.
func (c *kernelConfig) rsrc1() uint32 {
	return hsaheader.PackRsrc1(c.vgprsNum, c.sgprsNum, c.priority, c.floatMode, c.privMode, c.dx10Clamp, c.debugMode, c.ieeeMode)
}

func (c *kernelConfig) rsrc2() uint32 {
	return hsaheader.PackRsrc2(c.tgSize, c.exceptions)
}

// toMetadataKernel renders this config plus the kernel's resolved
// argument list into the shared metadata model, ready for the YAML or
// MsgPack codec.
func toMetadataKernel(k *gcnasm.Kernel, cfg *kernelConfig) metadata.Kernel {
	mk := metadata.Kernel{
		Name:       k.Name,
		SymbolName: k.Name + ".kd",
		CodeProps: metadata.CodeProps{
			KernargSegmentSize:      cfg.kernargSegmentSize,
			GroupSegmentFixedSize:   cfg.groupSegmentFixedSize,
			PrivateSegmentFixedSize: cfg.privateSegmentFixedSize,
			KernargSegmentAlign:     cfg.kernargSegmentAlign,
			WavefrontSize:           64,
			NumSGPRs:                cfg.sgprsNum,
			NumVGPRs:                cfg.vgprsNum,
			MaxFlatWorkGroupSize:    256,
		},
	}
	if cfg.hasReqdWorkGroupSize {
		mk.Attrs.ReqdWorkGroupSize = cfg.reqdWorkGroupSize
	}
	for _, a := range cfg.args {
		mk.Args = append(mk.Args, metadata.FromKernelArg(a))
	}
	return mk
}
