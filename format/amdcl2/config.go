// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amdcl2

import (
	"strings"

	"github.com/gcnkit/gcnasm"
)

// kernelConfig accumulates one kernel's ".config" block state between
// ".kernel NAME" and the following ".kernel"/end of input.
type kernelConfig struct {
	vgprsNum    int
	sgprsNum    int
	priority    int
	floatMode   int
	privMode    bool
	dx10Clamp   bool
	debugMode   bool
	ieeeMode    bool
	tgSize      bool
	exceptions  int
	localSize   int
	useSetup    bool
	enqueue     bool
	genericPtr  bool
	dimMask     uint8
	args        []gcnasm.KernelArg

	headerWritten bool
	codeOffset    int64
}

func newKernelConfig() *kernelConfig {
	return &kernelConfig{ieeeMode: true}
}

type evalCtx interface {
	EvalExprText(string) (int64, bool)
	Sink() *gcnasm.Sink
	CurrentPosition() *gcnasm.PositionChain
}

// handle dispatches one ".config"-scope directive. ok is false if name
// is not recognized here.
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
	case ".localsize":
		if v, ok := evalInt(args); ok {
			c.localSize = v
		}
		return true, nil
	case ".usesetup":
		c.useSetup = true
		return true, nil
	case ".useenqueue":
		c.enqueue = true
		return true, nil
	case ".usegenericptr":
		c.genericPtr = true
		return true, nil
	case ".arg":
		arg, err := parseArg(args)
		if err != nil {
			ctx.Sink().Error(pos, ".arg: %v", err)
			return true, nil
		}
		c.args = append(c.args, arg)
		return true, nil
	}
	return false, nil
}

// parseArg parses ".arg name, typeName, size, align, valueKind, valueType[, flags]".
func parseArg(text string) (gcnasm.KernelArg, error) {
	fields := splitCSV(text)
	arg := gcnasm.NewKernelArg("")
	if len(fields) > 0 {
		arg.Name = fields[0]
	}
	if len(fields) > 1 {
		arg.TypeName = fields[1]
	}
	if len(fields) > 2 {
		if v, ok := parseIntField(fields[2]); ok {
			arg.Size = v
		}
	}
	if len(fields) > 3 {
		if v, ok := parseIntField(fields[3]); ok {
			arg.Align = v
		}
	}
	if len(fields) > 4 {
		if vk, ok := gcnasm.ParseValueKind(fields[4]); ok {
			arg.ValueKind = vk
		}
	}
	if len(fields) > 5 {
		if vt, ok := gcnasm.ParseValueType(fields[5]); ok {
			arg.ValueType = vt
		}
	}
	return arg, nil
}

func splitCSV(text string) []string {
	var out []string
	for _, f := range strings.Split(text, ",") {
		out = append(out, strings.TrimSpace(f))
	}
	return out
}

func parseIntField(s string) (int, bool) {
	n := 0
	neg := false
	i := 0
	if i < len(s) && s[i] == '-' {
		neg = true
		i++
	}
	if i >= len(s) {
		return 0, false
	}
	for ; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return 0, false
		}
		n = n*10 + int(s[i]-'0')
	}
	if neg {
		n = -n
	}
	return n, true
}

// hiddenArgs returns the implicit kernel arguments AMDCL2 prepends
// when ".usesetup" was declared, in their fixed order.
func hiddenArgs() []gcnasm.KernelArg {
	names := []struct {
		name string
		kind gcnasm.ValueKind
	}{
		{"_.global_offset_0", gcnasm.ValueKindHiddenGlobalOffsetX},
		{"_.global_offset_1", gcnasm.ValueKindHiddenGlobalOffsetY},
		{"_.global_offset_2", gcnasm.ValueKindHiddenGlobalOffsetZ},
		{"_.printf_buffer", gcnasm.ValueKindHiddenPrintfBuffer},
		{"_.vqueue_pointer", gcnasm.ValueKindHiddenDefaultQueue},
		{"_.aqlwrap_pointer", gcnasm.ValueKindHiddenCompletionAction},
	}
	args := make([]gcnasm.KernelArg, 0, len(names))
	for _, n := range names {
		a := gcnasm.NewKernelArg(n.name)
		a.ValueKind = n.kind
		a.Size = 8
		a.Align = 8
		args = append(args, a)
	}
	return args
}

// extraReservedSGPRs accounts for SGPRs reserved for runtime use:
// VCC +2 always when enqueue or generic-pointer features are enabled,
// FLAT_SCRATCH +4 on GCN1.1 / +6 on GCN>=1.2, XNACK +4 on GCN>=1.2.
func extraReservedSGPRs(arch gcnasm.GPUArchitecture, enqueueOrGenericPtr bool) int {
	if !enqueueOrGenericPtr {
		return 0
	}
	n := 2 // VCC
	switch {
	case arch == gcnasm.ArchGCN1_1:
		n += 4
	case arch >= gcnasm.ArchGCN1_2:
		n += 6
		n += 4 // XNACK
	}
	return n
}
