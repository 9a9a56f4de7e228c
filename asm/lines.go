// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"strings"

	"github.com/gcnkit/gcnasm"
)

// maxMacroDepth bounds recursive macro/rept expansion: a
// translation unit that nests deeper than this is almost certainly an
// infinite recursion, and runaway expansion is reported as a fatal
// error rather than exhausting memory.
const maxMacroDepth = 250

// Includer resolves ".include" paths against an ordered search list.
// It is supplied by the driver's caller; the core never touches the
// real filesystem directly.
type Includer interface {
	// Open returns the file's full text and true, or ("", false) if
	// name cannot be found on the include path.
	Open(name string) (text string, ok bool)
}

// EvalFunc evaluates a standalone expression fragment for ".if" and
// is supplied by the driver once its expression parser exists,
// keeping C1 free of a direct C2 dependency while still letting
// conditional assembly see resolved values.
type EvalFunc func(exprText string) (value int64, resolved bool)

// DefinedFunc reports whether name is a currently-defined symbol, for
// ".ifdef"/".ifndef".
type DefinedFunc func(name string) bool

type lineProvider struct {
	text []string
	idx  int
}

func newLineProvider(text string) *lineProvider {
	return &lineProvider{text: splitLines(text)}
}

func splitLines(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")
	if text == "" {
		return nil
	}
	return strings.Split(strings.TrimSuffix(text, "\n"), "\n")
}

func (p *lineProvider) next() (string, int, bool) {
	if p.idx >= len(p.text) {
		return "", 0, false
	}
	line := p.text[p.idx]
	p.idx++
	return line, p.idx, true
}

type frame struct {
	provider *lineProvider
	file     gcnasm.FileRef
	chain    *gcnasm.PositionChain // chain to attach to this frame's own lines
	depth    int                   // macro/rept nesting depth, for the recursion-depth check
}

type macroParam struct {
	name       string
	hasDefault bool
	def        string
}

type macroDef struct {
	name   string
	params []macroParam
	body   []string
	pos    *gcnasm.PositionChain
}

type condFrame struct {
	// parentActive is whether the enclosing scope was emitting lines;
	// active is whether THIS frame currently is.
	parentActive bool
	active       bool
	everTaken    bool
	pos          *gcnasm.PositionChain
}

// Reader is the C1 input stream & macro substitutor: it delivers
// fully macro/rept/irp/include-expanded logical lines to the driver,
// each tagged with the position chain of every expansion frame that
// produced it.
type Reader struct {
	files     *gcnasm.FileTable
	sink      *gcnasm.Sink
	includer  Includer
	altMacro  bool
	macros    map[string]*macroDef
	frames    []*frame
	conds     []condFrame

	EvalExpr      EvalFunc
	SymbolDefined DefinedFunc
}

// NewReader begins reading rootText as if it were the file named
// rootName.
func NewReader(files *gcnasm.FileTable, sink *gcnasm.Sink, includer Includer, rootName, rootText string) *Reader {
	r := &Reader{
		files:    files,
		sink:     sink,
		includer: includer,
		macros:   make(map[string]*macroDef),
	}
	ref := files.Intern(rootName)
	r.frames = []*frame{{provider: newLineProvider(rootText), file: ref}}
	return r
}

func (r *Reader) currentActive() bool {
	if len(r.conds) == 0 {
		return true
	}
	return r.conds[len(r.conds)-1].active
}

func (r *Reader) topFrame() *frame {
	if len(r.frames) == 0 {
		return nil
	}
	return r.frames[len(r.frames)-1]
}

func (r *Reader) posFor(lineNo int) *gcnasm.PositionChain {
	f := r.topFrame()
	head := gcnasm.Position{File: f.file, Line: lineNo}
	if f.chain == nil {
		return &gcnasm.PositionChain{Head: head}
	}
	cp := *f.chain
	cp.Head = head
	return &cp
}

// NextLine returns the next fully expanded logical line, or ok=false
// at end of input. err is non-nil only for a fatal condition:
// unterminated macro/rept/if/include at EOF, or recursion depth
// exceeded.
func (r *Reader) NextLine() (text string, pos *gcnasm.PositionChain, ok bool, err error) {
	for {
		f := r.topFrame()
		if f == nil {
			if len(r.conds) > 0 {
				return "", nil, false, &gcnasm.FatalError{Position: r.conds[len(r.conds)-1].pos, Message: "unterminated conditional at end of input"}
			}
			return "", nil, false, nil
		}

		raw, lineNo, has := f.provider.next()
		if !has {
			r.frames = r.frames[:len(r.frames)-1]
			continue
		}

		// Backslash-newline continuation.
		for strings.HasSuffix(raw, "\\") {
			cont, _, more := f.provider.next()
			if !more {
				break
			}
			raw = strings.TrimSuffix(raw, "\\") + cont
		}

		p := r.posFor(lineNo)
		trimmed := strings.TrimSpace(raw)

		if handled, newOK, newErr := r.handleDirectiveLine(trimmed, p, f); handled {
			if newErr != nil || !newOK {
				return "", nil, newOK, newErr
			}
			continue
		}

		if !r.currentActive() {
			continue
		}

		if name, args, isInvoke := r.matchMacroInvocation(trimmed); isInvoke {
			if err := r.expandMacro(name, args, p); err != nil {
				return "", nil, false, err
			}
			continue
		}

		return raw, p, true, nil
	}
}

// handleDirectiveLine intercepts every C1-owned directive
// (.macro/.endm, .rept/.irp/.endr, .if*/.else*/.endif, .include,
// .altmacro) so none of them ever reach the driver as an ordinary
// line. handled is false for anything else, including ordinary lines
// inside a false conditional branch; the caller drops those itself
// when the current conditional is inactive.
func (r *Reader) handleDirectiveLine(trimmed string, p *gcnasm.PositionChain, f *frame) (handled bool, ok bool, err error) {
	word, rest := firstWord(trimmed)
	lower := strings.ToLower(word)

	switch lower {
	case ".altmacro":
		r.altMacro = true
		return true, true, nil
	case ".noaltmacro":
		r.altMacro = false
		return true, true, nil

	case ".include":
		if !r.currentActive() {
			return true, true, nil
		}
		path := strings.Trim(strings.TrimSpace(rest), "\"")
		text, found := r.includer.Open(path)
		if !found {
			return true, false, &gcnasm.FatalError{Position: p, Message: fmt.Sprintf("cannot open include file %q", path)}
		}
		ref := r.files.Intern(path)
		r.frames = append(r.frames, &frame{provider: newLineProvider(text), file: ref, chain: p.Push(p.Head, "in .include"), depth: f.depth})
		return true, true, nil

	case ".macro":
		if !r.currentActive() {
			r.skipBalanced(f, ".macro", ".endm")
			return true, true, nil
		}
		if err := r.defineMacro(rest, p, f); err != nil {
			return true, false, err
		}
		return true, true, nil
	case ".endm":
		return true, false, &gcnasm.FatalError{Position: p, Message: ".endm without matching .macro"}

	case ".rept", ".irp":
		if !r.currentActive() {
			r.skipBalanced(f, lower, ".endr")
			return true, true, nil
		}
		if err := r.expandRept(lower, rest, p, f); err != nil {
			return true, false, err
		}
		return true, true, nil
	case ".endr":
		return true, false, &gcnasm.FatalError{Position: p, Message: ".endr without matching .rept/.irp"}

	case ".if", ".ifdef", ".ifndef", ".ifb", ".ifnb", ".ifc", ".ifnc":
		r.pushCond(lower, rest, p)
		return true, true, nil
	case ".elseif":
		r.elseifCond(rest, p)
		return true, true, nil
	case ".else":
		r.elseCond(p)
		return true, true, nil
	case ".endif":
		r.popCond(p)
		return true, true, nil
	}
	return false, true, nil
}
