package gcnasm

import "math"

// NotSupplied is the sentinel used for numeric KernelArg fields that
// do not apply to the kernel's binary format, distinct from a
// legitimate zero value.
const NotSupplied = math.MinInt32

// ValueKind is the ROCm/AMDCL2 metadata argument value-kind: 24
// variants including the hidden kinds used for implicit arguments.
type ValueKind int

const (
	ValueKindByValue ValueKind = iota
	ValueKindGlobalBuffer
	ValueKindDynamicSharedPointer
	ValueKindSampler
	ValueKindImage
	ValueKindPipe
	ValueKindQueue
	ValueKindHiddenGlobalOffsetX
	ValueKindHiddenGlobalOffsetY
	ValueKindHiddenGlobalOffsetZ
	ValueKindHiddenNone
	ValueKindHiddenPrintfBuffer
	ValueKindHiddenDefaultQueue
	ValueKindHiddenCompletionAction
	ValueKindHiddenMultiGridSyncArg
	ValueKindHiddenHostcallBuffer
	ValueKindHiddenHeapV1
	ValueKindHiddenBlockCountX
	ValueKindHiddenBlockCountY
	ValueKindHiddenBlockCountZ
	ValueKindHiddenRemainderX
	ValueKindHiddenRemainderY
	ValueKindHiddenRemainderZ
	ValueKindHiddenGridDims
)

var valueKindNames = [...]string{
	"ByValue", "GlobalBuffer", "DynamicSharedPointer", "Sampler", "Image",
	"Pipe", "Queue", "HiddenGlobalOffsetX", "HiddenGlobalOffsetY",
	"HiddenGlobalOffsetZ", "HiddenNone", "HiddenPrintfBuffer",
	"HiddenDefaultQueue", "HiddenCompletionAction", "HiddenMultiGridSyncArg",
	"HiddenHostcallBuffer", "HiddenHeapV1", "HiddenBlockCountX",
	"HiddenBlockCountY", "HiddenBlockCountZ", "HiddenRemainderX",
	"HiddenRemainderY", "HiddenRemainderZ", "HiddenGridDims",
}

func (v ValueKind) String() string {
	if int(v) >= 0 && int(v) < len(valueKindNames) {
		return valueKindNames[v]
	}
	return "Unknown"
}

// ParseValueKind resolves the on-disk string form back to a ValueKind.
func ParseValueKind(s string) (ValueKind, bool) {
	for i, n := range valueKindNames {
		if n == s {
			return ValueKind(i), true
		}
	}
	return 0, false
}

// ValueType is the ROCm/AMDCL2 metadata argument value-type: 12
// variants, emitted verbatim as strings in YAML and small integers in
// MsgPack.
type ValueType int

const (
	ValueTypeStruct ValueType = iota
	ValueTypeI8
	ValueTypeU8
	ValueTypeI16
	ValueTypeU16
	ValueTypeF16
	ValueTypeI32
	ValueTypeU32
	ValueTypeF32
	ValueTypeI64
	ValueTypeU64
	ValueTypeF64
)

var valueTypeNames = [...]string{
	"Struct", "I8", "U8", "I16", "U16", "F16", "I32", "U32", "F32", "I64", "U64", "F64",
}

func (v ValueType) String() string {
	if int(v) >= 0 && int(v) < len(valueTypeNames) {
		return valueTypeNames[v]
	}
	return "Unknown"
}

// ParseValueType resolves the on-disk string form back to a ValueType.
func ParseValueType(s string) (ValueType, bool) {
	for i, n := range valueTypeNames {
		if n == s {
			return ValueType(i), true
		}
	}
	return 0, false
}

// AddrSpaceQual is the ROCm/AMDCL2 address-space qualifier.
type AddrSpaceQual int

const (
	AddrSpaceNone AddrSpaceQual = iota
	AddrSpacePrivate
	AddrSpaceGlobal
	AddrSpaceConstant
	AddrSpaceLocal
	AddrSpaceGeneric
	AddrSpaceRegion
)

var addrSpaceNames = [...]string{"", "Private", "Global", "Constant", "Local", "Generic", "Region"}

func (a AddrSpaceQual) String() string { return addrSpaceNames[a] }

// AccQual is the ROCm/AMDCL2 access qualifier.
type AccQual int

const (
	AccDefault AccQual = iota
	AccReadOnly
	AccWriteOnly
	AccReadWrite
)

var accQualNames = [...]string{"Default", "ReadOnly", "WriteOnly", "ReadWrite"}

func (a AccQual) String() string { return accQualNames[a] }

// AMDArgKind is the legacy AMD (CAL) metadata-string argument kind,
// lowered to one of the ";pointer:"/";value:"/";image:"/";counter:"/
// ";sampler:"/";reflection:" line forms.
type AMDArgKind int

const (
	AMDArgNone AMDArgKind = iota
	AMDArgValue
	AMDArgPointer
	AMDArgImage
	AMDArgCounter
	AMDArgSampler
	AMDArgReflection
)

// GalliumArgType is the Gallium kernel-table argument type.
type GalliumArgType int

const (
	GalliumArgScalar GalliumArgType = iota
	GalliumArgConstant
	GalliumArgGlobal
	GalliumArgLocal
	GalliumArgImage2DRO
	GalliumArgImage2DWO
	GalliumArgImage3DRO
	GalliumArgImage3DWO
	GalliumArgSampler
)

// GalliumArgSemantic is the Gallium kernel-table argument semantic tag.
type GalliumArgSemantic int

const (
	GalliumSemanticGeneral GalliumArgSemantic = iota
	GalliumSemanticGridDim
	GalliumSemanticGridOffset
	GalliumSemanticImgSize
	GalliumSemanticImgFormat
)

// A KernelArg models the union of argument attributes across the
// four binary formats. A numeric field that does not apply to the
// kernel's format is left at NotSupplied, which is distinct from any
// legitimate value; an enum field is left at its type's zero value,
// which is also a valid setting (e.g. ValueKindByValue).
type KernelArg struct {
	Name string

	// Legacy AMD.
	AMDKind AMDArgKind

	// Gallium.
	GalliumType  GalliumArgType
	Semantic     GalliumArgSemantic
	SignExtended bool
	TargetSize   int
	TargetAlign  int

	// AMDCL2 / ROCm metadata.
	TypeName      string
	ValueKind     ValueKind
	ValueType     ValueType
	AddrSpaceQual AddrSpaceQual
	AccQual       AccQual
	ActualAccQual AccQual
	IsConst       bool
	IsRestrict    bool
	IsVolatile    bool
	IsPipe        bool
	PointeeAlign  int

	// Shared.
	Size  int
	Align int
}

// NewKernelArg returns a KernelArg with every numeric field set to
// NotSupplied, ready for a format backend to fill in only the fields
// its on-disk layout uses.
func NewKernelArg(name string) KernelArg {
	return KernelArg{
		Name:         name,
		TargetSize:   NotSupplied,
		TargetAlign:  NotSupplied,
		PointeeAlign: NotSupplied,
		Size:         NotSupplied,
		Align:        NotSupplied,
	}
}

// A Kernel is a named entry point plus its argument list, resolved
// code/setup sections, and any format-specific config/metadata/header
// blobs. ConfigBlock is owned and type-asserted by the format backend
// that created it.
type Kernel struct {
	Name         string
	Args         []KernelArg
	ConfigBlock  interface{}
	CodeSection  SectionID
	SetupSection SectionID // NoSection if the format has none
	Metadata     []byte
	Header       []byte
}
