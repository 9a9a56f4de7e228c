// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package hsaheader packs and unpacks the 256-byte AMDHSA kernel-code
// header (128 bytes of fields followed by a 128-byte control
// directive block) shared by the AMDCL2 and ROCm containers: both
// embed the same ABI structure ahead of a kernel's code bytes, so the
// byte layout lives in one place instead of being duplicated per
// backend.
package hsaheader

import "encoding/binary"

// Size is the total header size in bytes: 128 fixed fields plus the
// 128-byte control directive block.
const Size = 256

// Header models every named field of the AMDHSA kernel-code header.
type Header struct {
	CodeVersionMajor, CodeVersionMinor uint32
	MachineKind                       uint16
	MachineMajor, MachineMinor        uint16
	MachineStepping                   uint16
	KernelCodeEntryOffset             uint64
	KernelCodePrefetchOffset          uint64
	KernelCodePrefetchSize            uint64
	MaxScratchBackingMemorySize       uint64
	ComputePgmRsrc1, ComputePgmRsrc2  uint32
	EnableSgprRegisterFlags           uint16
	EnableFeatureFlags                uint16
	WorkitemPrivateSegmentSize        uint32
	WorkgroupGroupSegmentSize         uint32
	GdsSegmentSize                    uint32
	KernargSegmentSize                uint64
	WorkgroupFbarrierCount            uint32
	WavefrontSgprCount                uint16
	WorkitemVgprCount                 uint16
	ReservedVgprFirst, ReservedVgprCount uint16
	ReservedSgprFirst, ReservedSgprCount uint16
	DebugWavefrontPrivateSegmentOffsetSgpr uint16
	DebugPrivateSegmentBufferSgpr          uint16
	KernargSegmentAlignmentLog2 uint8
	GroupSegmentAlignmentLog2   uint8
	PrivateSegmentAlignmentLog2 uint8
	WavefrontSizeLog2           uint8
	CallConvention              uint32
	RuntimeLoaderKernelSymbol   uint64
	ControlDirective            [128]byte
}

// enableSgpr bits for enableSgprRegisterFlags, private_segment_buffer
// first.
const (
	SgprPrivateSegmentBuffer = 1 << iota
	SgprDispatchPtr
	SgprQueuePtr
	SgprKernargSegmentPtr
	SgprDispatchID
	SgprFlatScratchInit
	SgprPrivateSegmentSize
	SgprGridWorkgroupCountX
	SgprGridWorkgroupCountY
	SgprGridWorkgroupCountZ
)

// enableFeature bits; PrivateElemSize occupies bits 1-2.
const (
	FeatureOrderedAppendGDS = 1 << 0
	FeatureUsePtr64         = 1 << 3
	FeatureDynamicCallStack = 1 << 4
	FeatureDebugEnabled     = 1 << 5
	FeatureXnackEnabled     = 1 << 6
)

// Pack renders h as the 256-byte little-endian on-disk form.
func (h *Header) Pack() []byte {
	b := make([]byte, Size)
	le := binary.LittleEndian
	le.PutUint32(b[0:], h.CodeVersionMajor)
	le.PutUint32(b[4:], h.CodeVersionMinor)
	le.PutUint16(b[8:], h.MachineKind)
	le.PutUint16(b[10:], h.MachineMajor)
	le.PutUint16(b[12:], h.MachineMinor)
	le.PutUint16(b[14:], h.MachineStepping)
	le.PutUint64(b[16:], h.KernelCodeEntryOffset)
	le.PutUint64(b[24:], h.KernelCodePrefetchOffset)
	le.PutUint64(b[32:], h.KernelCodePrefetchSize)
	le.PutUint64(b[40:], h.MaxScratchBackingMemorySize)
	le.PutUint32(b[48:], h.ComputePgmRsrc1)
	le.PutUint32(b[52:], h.ComputePgmRsrc2)
	le.PutUint16(b[56:], h.EnableSgprRegisterFlags)
	le.PutUint16(b[58:], h.EnableFeatureFlags)
	le.PutUint32(b[60:], h.WorkitemPrivateSegmentSize)
	le.PutUint32(b[64:], h.WorkgroupGroupSegmentSize)
	le.PutUint32(b[68:], h.GdsSegmentSize)
	le.PutUint64(b[72:], h.KernargSegmentSize)
	le.PutUint32(b[80:], h.WorkgroupFbarrierCount)
	le.PutUint16(b[84:], h.WavefrontSgprCount)
	le.PutUint16(b[86:], h.WorkitemVgprCount)
	le.PutUint16(b[88:], h.ReservedVgprFirst)
	le.PutUint16(b[90:], h.ReservedVgprCount)
	le.PutUint16(b[92:], h.ReservedSgprFirst)
	le.PutUint16(b[94:], h.ReservedSgprCount)
	le.PutUint16(b[96:], h.DebugWavefrontPrivateSegmentOffsetSgpr)
	le.PutUint16(b[98:], h.DebugPrivateSegmentBufferSgpr)
	b[100] = h.KernargSegmentAlignmentLog2
	b[101] = h.GroupSegmentAlignmentLog2
	b[102] = h.PrivateSegmentAlignmentLog2
	b[103] = h.WavefrontSizeLog2
	le.PutUint32(b[104:], h.CallConvention)
	le.PutUint64(b[108:], h.RuntimeLoaderKernelSymbol)
	copy(b[128:256], h.ControlDirective[:])
	return b
}

// Unpack is Pack's inverse; data must be at least Size bytes.
func Unpack(data []byte) Header {
	var h Header
	le := binary.LittleEndian
	h.CodeVersionMajor = le.Uint32(data[0:])
	h.CodeVersionMinor = le.Uint32(data[4:])
	h.MachineKind = le.Uint16(data[8:])
	h.MachineMajor = le.Uint16(data[10:])
	h.MachineMinor = le.Uint16(data[12:])
	h.MachineStepping = le.Uint16(data[14:])
	h.KernelCodeEntryOffset = le.Uint64(data[16:])
	h.KernelCodePrefetchOffset = le.Uint64(data[24:])
	h.KernelCodePrefetchSize = le.Uint64(data[32:])
	h.MaxScratchBackingMemorySize = le.Uint64(data[40:])
	h.ComputePgmRsrc1 = le.Uint32(data[48:])
	h.ComputePgmRsrc2 = le.Uint32(data[52:])
	h.EnableSgprRegisterFlags = le.Uint16(data[56:])
	h.EnableFeatureFlags = le.Uint16(data[58:])
	h.WorkitemPrivateSegmentSize = le.Uint32(data[60:])
	h.WorkgroupGroupSegmentSize = le.Uint32(data[64:])
	h.GdsSegmentSize = le.Uint32(data[68:])
	h.KernargSegmentSize = le.Uint64(data[72:])
	h.WorkgroupFbarrierCount = le.Uint32(data[80:])
	h.WavefrontSgprCount = le.Uint16(data[84:])
	h.WorkitemVgprCount = le.Uint16(data[86:])
	h.ReservedVgprFirst = le.Uint16(data[88:])
	h.ReservedVgprCount = le.Uint16(data[90:])
	h.ReservedSgprFirst = le.Uint16(data[92:])
	h.ReservedSgprCount = le.Uint16(data[94:])
	h.DebugWavefrontPrivateSegmentOffsetSgpr = le.Uint16(data[96:])
	h.DebugPrivateSegmentBufferSgpr = le.Uint16(data[98:])
	h.KernargSegmentAlignmentLog2 = data[100]
	h.GroupSegmentAlignmentLog2 = data[101]
	h.PrivateSegmentAlignmentLog2 = data[102]
	h.WavefrontSizeLog2 = data[103]
	h.CallConvention = le.Uint32(data[104:])
	h.RuntimeLoaderKernelSymbol = le.Uint64(data[108:])
	copy(h.ControlDirective[:], data[128:256])
	return h
}

// PackRsrc1 bit-packs computePgmRsrc1/pgmRSRC1 from vgprs/sgprs counts
// and the float/priority/mode fields, per the formulas shared by the
// AMDCL2 and Gallium .config directives: VGPRS_field=(vgprs-1)/4<<0,
// SGPRS_field=(sgprs-1)/8<<6, priority<<10, floatmode<<12,
// privmode<<20, dx10clamp<<21, debugmode<<22, ieeemode<<23.
func PackRsrc1(vgprs, sgprs, priority, floatMode int, privMode, dx10Clamp, debugMode, ieeeMode bool) uint32 {
	v := uint32(0)
	if vgprs > 0 {
		v |= uint32((vgprs-1)/4) << 0
	}
	if sgprs > 0 {
		v |= uint32((sgprs-1)/8) << 6
	}
	v |= uint32(priority&0x3) << 10
	v |= uint32(floatMode&0xff) << 12
	v |= boolBit(privMode) << 20
	v |= boolBit(dx10Clamp) << 21
	v |= boolBit(debugMode) << 22
	v |= boolBit(ieeeMode) << 23
	return v
}

// PackRsrc2 bit-packs computePgmRsrc2/pgmRSRC2's tgsize and exceptions
// fields (the remaining bits are left zero; a format backend ORs in
// its own scratch/LDS-size bits where it tracks them).
func PackRsrc2(tgSize bool, exceptions int) uint32 {
	return boolBit(tgSize)<<10 | uint32(exceptions&0xff)<<24
}

func boolBit(b bool) uint32 {
	if b {
		return 1
	}
	return 0
}
