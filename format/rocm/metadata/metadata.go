// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package metadata models the ROCm/AMDCL2 kernel metadata document —
// the schema a kernel's .note section (or, pre-MsgPack, an embedded
// YAML string) carries describing every kernel's arguments and
// resource usage — and codes it to and from both historical wire
// formats.
package metadata

import "github.com/gcnkit/gcnasm"

// ValueKind is gcnasm.ValueKind with dual marshaling behavior: emitted
// verbatim as a string in YAML, a small integer in MsgPack. See
// yaml_codec.go / msgpack_codec.go for the two implementations.
type ValueKind gcnasm.ValueKind

// ValueType is gcnasm.ValueType under the same dual-encoding contract.
type ValueType gcnasm.ValueType

// Attrs is a kernel's optional compile-time attribute block.
type Attrs struct {
	ReqdWorkGroupSize  [3]int `yaml:"ReqdWorkGroupSize,omitempty" msgpack:"ReqdWorkGroupSize,omitempty"`
	WorkGroupSizeHint  [3]int `yaml:"WorkGroupSizeHint,omitempty" msgpack:"WorkGroupSizeHint,omitempty"`
	VecTypeHint        string `yaml:"VecTypeHint,omitempty" msgpack:"VecTypeHint,omitempty"`
	RuntimeHandle      string `yaml:"RuntimeHandle,omitempty" msgpack:"RuntimeHandle,omitempty"`
}

// Arg is one kernel argument's metadata entry.
type Arg struct {
	Name          string    `yaml:"Name,omitempty" msgpack:"Name,omitempty"`
	TypeName      string    `yaml:"TypeName,omitempty" msgpack:"TypeName,omitempty"`
	Size          int       `yaml:"Size" msgpack:"Size"`
	Align         int       `yaml:"Align" msgpack:"Align"`
	PointeeAlign  int       `yaml:"PointeeAlign,omitempty" msgpack:"PointeeAlign,omitempty"`
	ValueKind     ValueKind `yaml:"ValueKind" msgpack:"ValueKind"`
	ValueType     ValueType `yaml:"ValueType" msgpack:"ValueType"`
	AddrSpaceQual string    `yaml:"AddrSpaceQual,omitempty" msgpack:"AddrSpaceQual,omitempty"`
	AccQual       string    `yaml:"AccQual,omitempty" msgpack:"AccQual,omitempty"`
	ActualAccQual string    `yaml:"ActualAccQual,omitempty" msgpack:"ActualAccQual,omitempty"`
	IsConst       bool      `yaml:"IsConst,omitempty" msgpack:"IsConst,omitempty"`
	IsRestrict    bool      `yaml:"IsRestrict,omitempty" msgpack:"IsRestrict,omitempty"`
	IsVolatile    bool      `yaml:"IsVolatile,omitempty" msgpack:"IsVolatile,omitempty"`
	IsPipe        bool      `yaml:"IsPipe,omitempty" msgpack:"IsPipe,omitempty"`
}

// CodeProps is a kernel's resource-usage block.
type CodeProps struct {
	KernargSegmentSize       int `yaml:"KernargSegmentSize" msgpack:"KernargSegmentSize"`
	GroupSegmentFixedSize    int `yaml:"GroupSegmentFixedSize" msgpack:"GroupSegmentFixedSize"`
	PrivateSegmentFixedSize  int `yaml:"PrivateSegmentFixedSize" msgpack:"PrivateSegmentFixedSize"`
	KernargSegmentAlign      int `yaml:"KernargSegmentAlign" msgpack:"KernargSegmentAlign"`
	WavefrontSize            int `yaml:"WavefrontSize" msgpack:"WavefrontSize"`
	NumSGPRs                 int `yaml:"NumSGPRs" msgpack:"NumSGPRs"`
	NumVGPRs                 int `yaml:"NumVGPRs" msgpack:"NumVGPRs"`
	MaxFlatWorkGroupSize     int `yaml:"MaxFlatWorkGroupSize" msgpack:"MaxFlatWorkGroupSize"`
	FixedWorkGroupSize       [3]int `yaml:"FixedWorkGroupSize,omitempty" msgpack:"FixedWorkGroupSize,omitempty"`
	NumSpilledSGPRs          int `yaml:"NumSpilledSGPRs,omitempty" msgpack:"NumSpilledSGPRs,omitempty"`
	NumSpilledVGPRs          int `yaml:"NumSpilledVGPRs,omitempty" msgpack:"NumSpilledVGPRs,omitempty"`
}

// Kernel is one kernel's full metadata record.
type Kernel struct {
	Name            string    `yaml:"Name" msgpack:"Name"`
	SymbolName      string    `yaml:"SymbolName,omitempty" msgpack:"SymbolName,omitempty"`
	Language        string    `yaml:"Language,omitempty" msgpack:"Language,omitempty"`
	LanguageVersion [2]int    `yaml:"LanguageVersion,omitempty" msgpack:"LanguageVersion,omitempty"`
	Attrs           Attrs     `yaml:"Attrs,omitempty" msgpack:"Attrs,omitempty"`
	Args            []Arg     `yaml:"Args,omitempty" msgpack:"Args,omitempty"`
	CodeProps       CodeProps `yaml:"CodeProps" msgpack:"CodeProps"`
}

// Metadata is the top-level document: every kernel in the module,
// plus the document version and whether printf is used.
type Metadata struct {
	Version [2]int   `yaml:"Version" msgpack:"Version"`
	Printf  []string `yaml:"Printf,omitempty" msgpack:"Printf,omitempty"`
	Kernels []Kernel `yaml:"Kernels" msgpack:"Kernels"`
}

// FromKernelArg converts a gcnasm.KernelArg into its metadata.Arg
// form; the reverse direction is ToKernelArg.
func FromKernelArg(a gcnasm.KernelArg) Arg {
	return Arg{
		Name: a.Name, TypeName: a.TypeName, Size: a.Size, Align: a.Align,
		PointeeAlign: a.PointeeAlign, ValueKind: ValueKind(a.ValueKind), ValueType: ValueType(a.ValueType),
		AddrSpaceQual: a.AddrSpaceQual.String(), AccQual: a.AccQual.String(), ActualAccQual: a.ActualAccQual.String(),
		IsConst: a.IsConst, IsRestrict: a.IsRestrict, IsVolatile: a.IsVolatile, IsPipe: a.IsPipe,
	}
}

// ToKernelArg is FromKernelArg's inverse for every field except
// AddrSpaceQual, AccQual and ActualAccQual, which are left at their
// zero values.
func (a Arg) ToKernelArg() gcnasm.KernelArg {
	arg := gcnasm.NewKernelArg(a.Name)
	arg.TypeName, arg.Size, arg.Align, arg.PointeeAlign = a.TypeName, a.Size, a.Align, a.PointeeAlign
	arg.ValueKind, arg.ValueType = gcnasm.ValueKind(a.ValueKind), gcnasm.ValueType(a.ValueType)
	arg.IsConst, arg.IsRestrict, arg.IsVolatile, arg.IsPipe = a.IsConst, a.IsRestrict, a.IsVolatile, a.IsPipe
	return arg
}
