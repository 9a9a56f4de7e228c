// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package amd

// CAL note types, carried by the inner kernel ELF's .note section as
// one note per type. The numeric ids are not named anywhere in this
// module's own sources; see DESIGN.md for the reconstruction this
// table is based on.
const (
	CalNoteProgInfo           = 1
	CalNoteInputs             = 2
	CalNoteOutputs            = 3
	CalNoteCondOut            = 4
	CalNoteFloat32Consts      = 5
	CalNoteInt32Consts        = 6
	CalNoteBool32Consts       = 7
	CalNoteEarlyExit          = 8
	CalNoteGlobalBuffers      = 9
	CalNoteConstantBuffers    = 10
	CalNoteInputSamplers      = 11
	CalNotePersistentBuffers  = 12
	CalNoteScratchBuffers     = 13
	CalNoteSubConstantBuffers = 14
	CalNoteUAVMailboxSize     = 15
	CalNoteUAV                = 16
	CalNoteUAVOpMask          = 17
)

var calNoteNames = map[int]string{
	CalNoteProgInfo:           "PROGINFO",
	CalNoteInputs:             "INPUTS",
	CalNoteOutputs:            "OUTPUTS",
	CalNoteCondOut:            "CONDOUT",
	CalNoteFloat32Consts:      "FLOAT32CONSTS",
	CalNoteInt32Consts:        "INT32CONSTS",
	CalNoteBool32Consts:       "BOOL32CONSTS",
	CalNoteEarlyExit:          "EARLYEXIT",
	CalNoteGlobalBuffers:      "GLOBALBUFFERS",
	CalNoteConstantBuffers:    "CONSTANTBUFFERS",
	CalNoteInputSamplers:      "INPUTSAMPLERS",
	CalNotePersistentBuffers:  "PERSISTENTBUFFERS",
	CalNoteScratchBuffers:     "SCRATCHBUFFERS",
	CalNoteSubConstantBuffers: "SUBCONSTANTBUFFERS",
	CalNoteUAVMailboxSize:     "UAVMAILBOXSIZE",
	CalNoteUAV:                "UAV",
	CalNoteUAVOpMask:          "UAVOPMASK",
}

var calNoteByName = func() map[string]int {
	m := make(map[string]int, len(calNoteNames))
	for id, name := range calNoteNames {
		m[name] = id
	}
	return m
}()

// ParseCalNoteType resolves a ".calnote TYPE" directive's type name.
func ParseCalNoteType(name string) (int, bool) {
	t, ok := calNoteByName[name]
	return t, ok
}

func calNoteTypeName(t int) string {
	if n, ok := calNoteNames[t]; ok {
		return n
	}
	return "UNKNOWN"
}

// calNote is one raw (type, content) note entry queued for the
// kernel's .note section; PROGINFO and the CAL note types synthesized
// from .config directives are encoded into their note payload at
// EndKernel, everything else (raw mode's ".calnote TYPE") already
// carries its payload as assembled bytes.
type calNote struct {
	Type    int
	Payload []byte
}

// encodeNote lays out one Elf32 CAL note the way readelf/objdump
// expects it: namesz/descsz/type header, "ATI CAL" owner name padded
// to a 4-byte boundary, then the descriptor bytes padded the same way.
func encodeNote(typ int, desc []byte) []byte {
	const owner = "ATI CAL\x00"
	pad := func(n int) int { return (n + 3) &^ 3 }

	out := make([]byte, 0, 12+pad(len(owner))+pad(len(desc)))
	out = appendU32(out, uint32(len(owner)))
	out = appendU32(out, uint32(len(desc)))
	out = appendU32(out, uint32(typ))
	out = append(out, owner...)
	out = append(out, make([]byte, pad(len(owner))-len(owner))...)
	out = append(out, desc...)
	out = append(out, make([]byte, pad(len(desc))-len(desc))...)
	return out
}

func appendU32(b []byte, v uint32) []byte {
	return append(b, byte(v), byte(v>>8), byte(v>>16), byte(v>>24))
}
