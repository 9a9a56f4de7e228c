// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strings"

	"github.com/gcnkit/gcnasm"
)

// evalCondition resolves one .if/.ifdef/.../.ifnc test to a boolean.
// Lines inside a false branch are still scanned for nested
// .if/.endif balance (via pushCond/popCond's own stack) but their
// bodies are never macro-expanded, matching the convention that
// conditional assembly is purely lexical until a branch is taken.
func (r *Reader) evalCondition(kind, rest string) bool {
	switch kind {
	case ".if":
		if r.EvalExpr == nil {
			return false
		}
		v, ok := r.EvalExpr(rest)
		return ok && v != 0
	case ".ifdef":
		return r.SymbolDefined != nil && r.SymbolDefined(strings.TrimSpace(rest))
	case ".ifndef":
		return r.SymbolDefined == nil || !r.SymbolDefined(strings.TrimSpace(rest))
	case ".ifb":
		return strings.TrimSpace(rest) == ""
	case ".ifnb":
		return strings.TrimSpace(rest) != ""
	case ".ifc", ".ifnc":
		args := splitMacroArgs(rest)
		eq := len(args) == 2 && strings.TrimSpace(args[0]) == strings.TrimSpace(args[1])
		if kind == ".ifnc" {
			return !eq
		}
		return eq
	}
	return false
}

func (r *Reader) pushCond(kind, rest string, p *gcnasm.PositionChain) {
	parentActive := r.currentActive()
	taken := parentActive && r.evalCondition(kind, rest)
	r.conds = append(r.conds, condFrame{
		parentActive: parentActive,
		active:       taken,
		everTaken:    taken,
		pos:          p,
	})
}

func (r *Reader) elseifCond(rest string, p *gcnasm.PositionChain) {
	if len(r.conds) == 0 {
		r.sink.Error(p, ".elseif without matching .if")
		return
	}
	top := &r.conds[len(r.conds)-1]
	if top.everTaken || !top.parentActive {
		top.active = false
		return
	}
	var ok bool
	if r.EvalExpr != nil {
		v, resolved := r.EvalExpr(rest)
		ok = resolved && v != 0
	}
	top.active = ok
	top.everTaken = top.everTaken || ok
}

func (r *Reader) elseCond(p *gcnasm.PositionChain) {
	if len(r.conds) == 0 {
		r.sink.Error(p, ".else without matching .if")
		return
	}
	top := &r.conds[len(r.conds)-1]
	top.active = top.parentActive && !top.everTaken
	top.everTaken = true
}

func (r *Reader) popCond(p *gcnasm.PositionChain) {
	if len(r.conds) == 0 {
		r.sink.Error(p, ".endif without matching .if")
		return
	}
	r.conds = r.conds[:len(r.conds)-1]
}
