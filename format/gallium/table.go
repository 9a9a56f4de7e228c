// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package gallium

import (
	"bytes"
	"encoding/binary"

	"github.com/gcnkit/gcnasm"
)

// kernelTableEntry is one row of the binary kernel table: name, the
// code offset within .text, and its argument descriptors.
type kernelTableEntry struct {
	Name       string
	CodeOffset uint64
	Args       []gcnasm.KernelArg
}

// encodeKernelTable serializes the kernel table the way a Gallium
// compute binary lists kernels for the state tracker: a 4-byte count,
// then per kernel a length-prefixed name, the u64 code offset, a
// 4-byte arg count, and one fixed-width descriptor per argument
// (type, sign_extended, semantic, size, target_size, target_align).
func encodeKernelTable(entries []kernelTableEntry) []byte {
	var buf bytes.Buffer
	binary.Write(&buf, binary.LittleEndian, uint32(len(entries)))
	for _, e := range entries {
		binary.Write(&buf, binary.LittleEndian, uint32(len(e.Name)))
		buf.WriteString(e.Name)
		binary.Write(&buf, binary.LittleEndian, e.CodeOffset)
		binary.Write(&buf, binary.LittleEndian, uint32(len(e.Args)))
		for _, a := range e.Args {
			binary.Write(&buf, binary.LittleEndian, uint8(a.GalliumType))
			signExt := uint8(0)
			if a.SignExtended {
				signExt = 1
			}
			buf.WriteByte(signExt)
			binary.Write(&buf, binary.LittleEndian, uint8(a.Semantic))
			binary.Write(&buf, binary.LittleEndian, uint32(a.Size))
			binary.Write(&buf, binary.LittleEndian, uint32(a.TargetSize))
			binary.Write(&buf, binary.LittleEndian, uint32(a.TargetAlign))
		}
	}
	return buf.Bytes()
}

// decodeKernelTable is encodeKernelTable's inverse, used by the
// disassembly path.
func decodeKernelTable(data []byte) ([]kernelTableEntry, error) {
	r := bytes.NewReader(data)
	var count uint32
	if err := binary.Read(r, binary.LittleEndian, &count); err != nil {
		return nil, err
	}
	entries := make([]kernelTableEntry, 0, count)
	for i := uint32(0); i < count; i++ {
		var nameLen uint32
		if err := binary.Read(r, binary.LittleEndian, &nameLen); err != nil {
			return nil, err
		}
		name := make([]byte, nameLen)
		if _, err := r.Read(name); err != nil {
			return nil, err
		}
		var e kernelTableEntry
		e.Name = string(name)
		if err := binary.Read(r, binary.LittleEndian, &e.CodeOffset); err != nil {
			return nil, err
		}
		var argCount uint32
		if err := binary.Read(r, binary.LittleEndian, &argCount); err != nil {
			return nil, err
		}
		for j := uint32(0); j < argCount; j++ {
			var a gcnasm.KernelArg
			var typ, signExt, semantic uint8
			var size, targetSize, targetAlign uint32
			binary.Read(r, binary.LittleEndian, &typ)
			binary.Read(r, binary.LittleEndian, &signExt)
			binary.Read(r, binary.LittleEndian, &semantic)
			binary.Read(r, binary.LittleEndian, &size)
			binary.Read(r, binary.LittleEndian, &targetSize)
			binary.Read(r, binary.LittleEndian, &targetAlign)
			a.GalliumType = gcnasm.GalliumArgType(typ)
			a.SignExtended = signExt != 0
			a.Semantic = gcnasm.GalliumArgSemantic(semantic)
			a.Size, a.TargetSize, a.TargetAlign = int(size), int(targetSize), int(targetAlign)
			e.Args = append(e.Args, a)
		}
		entries = append(entries, e)
	}
	return entries, nil
}
