// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Package gcnasm holds the data model shared by the assembler, the
// four binary format backends and the disassembler: GPU device and
// architecture tables, source positions, symbols, sections,
// relocations, kernels, code-flow annotations, and the collaborator
// interfaces (IsaEncoder, IsaDisassembler) that the per-architecture
// instruction encoder/decoder must implement.
package gcnasm
