// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"strings"

	"github.com/gcnkit/gcnasm"
)

// firstWord splits s into its leading whitespace-delimited word and
// the remainder (with leading whitespace stripped from rest).
func firstWord(s string) (word, rest string) {
	s = strings.TrimSpace(s)
	i := strings.IndexAny(s, " \t")
	if i < 0 {
		return s, ""
	}
	return s[:i], strings.TrimSpace(s[i+1:])
}

// splitLabel strips a leading "IDENT:" label from line, if present,
// returning the label name and the remainder. A pseudo-op (starting
// with '.') is never mistaken for a label since label names never
// start with '.'.
func splitLabel(line string) (label, rest string) {
	i := strings.IndexByte(line, ':')
	if i <= 0 {
		return "", line
	}
	name := line[:i]
	if !isIdentifier(name) {
		return "", line
	}
	return name, strings.TrimSpace(line[i+1:])
}

func isIdentifier(s string) bool {
	if s == "" {
		return false
	}
	for i, c := range s {
		if c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z') {
			continue
		}
		if i > 0 && c >= '0' && c <= '9' {
			continue
		}
		return false
	}
	return true
}

// matchMacroInvocation reports whether trimmed is a call to a
// registered macro, after optionally skipping a leading label.
func (r *Reader) matchMacroInvocation(trimmed string) (name string, args string, ok bool) {
	_, rest := splitLabel(trimmed)
	word, tail := firstWord(rest)
	word = strings.TrimSuffix(word, ",")
	lname := strings.ToLower(word)
	if _, defined := r.macros[lname]; !defined {
		return "", "", false
	}
	return lname, tail, true
}

// splitMacroArgs splits a comma-separated macro-call argument list,
// respecting single/double-quoted strings and balanced parentheses so
// commas inside either are not treated as separators.
func splitMacroArgs(s string) []string {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil
	}
	var args []string
	depth := 0
	var quote byte
	start := 0
	for i := 0; i < len(s); i++ {
		c := s[i]
		switch {
		case quote != 0:
			if c == quote {
				quote = 0
			}
		case c == '"' || c == '\'':
			quote = c
		case c == '(':
			depth++
		case c == ')':
			if depth > 0 {
				depth--
			}
		case c == ',' && depth == 0:
			args = append(args, strings.TrimSpace(s[start:i]))
			start = i + 1
		}
	}
	args = append(args, strings.TrimSpace(s[start:]))
	return args
}

// parseMacroParams parses the ".macro name p1, p2=default, ..." tail
// (name already consumed by the caller; rest is "p1, p2=default").
func parseMacroParams(rest string) []macroParam {
	var params []macroParam
	for _, a := range splitMacroArgs(rest) {
		if a == "" {
			continue
		}
		if i := strings.IndexByte(a, '='); i >= 0 {
			params = append(params, macroParam{name: strings.TrimSpace(a[:i]), hasDefault: true, def: strings.TrimSpace(a[i+1:])})
		} else {
			params = append(params, macroParam{name: a})
		}
	}
	return params
}

// defineMacro parses ".macro name params..." (rest is everything
// after ".macro") and consumes lines from f's provider up to and
// including the matching ".endm", storing the body verbatim (no
// substitution happens until the macro is invoked).
func (r *Reader) defineMacro(rest string, p *gcnasm.PositionChain, f *frame) error {
	name, paramText := firstWord(rest)
	name = strings.ToLower(name)
	def := &macroDef{name: name, params: parseMacroParams(paramText), pos: p}

	depth := 1
	for {
		line, _, has := f.provider.next()
		if !has {
			return &gcnasm.FatalError{Position: p, Message: "unterminated .macro (missing .endm)"}
		}
		word, _ := firstWord(strings.TrimSpace(line))
		switch strings.ToLower(word) {
		case ".macro":
			depth++
		case ".endm":
			depth--
			if depth == 0 {
				r.macros[name] = def
				return nil
			}
		}
		def.body = append(def.body, line)
	}
}

// skipBalanced discards lines from f's provider until the matching
// close directive is found, without recording a definition or
// expanding anything; used when a .macro/.rept appears inside a
// currently-false conditional branch.
func (r *Reader) skipBalanced(f *frame, open, close string) {
	depth := 1
	for {
		line, _, has := f.provider.next()
		if !has {
			return
		}
		word, _ := firstWord(strings.TrimSpace(line))
		switch strings.ToLower(word) {
		case open:
			depth++
		case close:
			depth--
			if depth == 0 {
				return
			}
		}
	}
}

// substituteMacroBody replaces \name (and, in altmacro mode, &name&)
// references and the positional \1.. \9, \0 (macro name), \@ (unique
// invocation counter) forms throughout a body line.
func substituteMacroBody(line string, bindings map[string]string, invocation int, macroName string, altMacro bool) string {
	var b strings.Builder
	for i := 0; i < len(line); i++ {
		c := line[i]
		if c == '\\' && i+1 < len(line) {
			j := i + 1
			switch {
			case line[j] == '@':
				b.WriteString(itoa(invocation))
				i = j
				continue
			case line[j] == '(' :
				// \() is the empty-separator token; drop it.
				i = j
				continue
			case line[j] >= '0' && line[j] <= '9':
				d := line[j : j+1]
				if v, ok := bindings[d]; ok {
					b.WriteString(v)
				} else if d == "0" && macroName != "" {
					b.WriteString(macroName)
				} else {
					b.WriteByte('\\')
					b.WriteString(d)
				}
				i = j
				continue
			case isIdentStart(line[j]):
				k := j
				for k < len(line) && isIdentCont(line[k]) {
					k++
				}
				name := line[j:k]
				if v, ok := bindings[name]; ok {
					b.WriteString(v)
				} else {
					b.WriteByte('\\')
					b.WriteString(name)
				}
				i = k - 1
				continue
			}
		}
		if altMacro && c == '&' {
			k := i + 1
			for k < len(line) && isIdentCont(line[k]) {
				k++
			}
			if k > i+1 && k < len(line) && line[k] == '&' {
				name := line[i+1 : k]
				if v, ok := bindings[name]; ok {
					b.WriteString(v)
					i = k
					continue
				}
			}
		}
		b.WriteByte(c)
	}
	return b.String()
}

func isIdentStart(c byte) bool {
	return c == '_' || (c >= 'A' && c <= 'Z') || (c >= 'a' && c <= 'z')
}
func isIdentCont(c byte) bool {
	return isIdentStart(c) || (c >= '0' && c <= '9')
}

func itoa(n int) string {
	if n == 0 {
		return "0"
	}
	neg := n < 0
	if neg {
		n = -n
	}
	var buf [20]byte
	i := len(buf)
	for n > 0 {
		i--
		buf[i] = byte('0' + n%10)
		n /= 10
	}
	if neg {
		i--
		buf[i] = '-'
	}
	return string(buf[i:])
}

var macroInvocationCounter int

// expandMacro pushes a new frame whose provider yields name's body
// with \-parameters substituted for args.
func (r *Reader) expandMacro(name string, argText string, p *gcnasm.PositionChain) error {
	if r.topFrame().depth >= maxMacroDepth {
		return &gcnasm.FatalError{Position: p, Message: "macro expansion recursion limit exceeded"}
	}
	def := r.macros[name]
	args := splitMacroArgs(argText)

	bindings := map[string]string{}
	for i, param := range def.params {
		val := param.def
		if i < len(args) && args[i] != "" {
			val = args[i]
		}
		bindings[param.name] = val
		bindings[itoa(i+1)] = val
	}
	// Named-argument form: "param=value" anywhere in the call overrides
	// positional binding.
	for _, a := range args {
		if i := strings.IndexByte(a, '='); i > 0 {
			key := strings.TrimSpace(a[:i])
			if _, isParam := bindings[key]; isParam {
				bindings[key] = strings.TrimSpace(a[i+1:])
			}
		}
	}

	macroInvocationCounter++
	body := make([]string, len(def.body))
	for i, line := range def.body {
		body[i] = substituteMacroBody(line, bindings, macroInvocationCounter, name, r.altMacro)
	}

	r.frames = append(r.frames, &frame{
		provider: &lineProvider{text: body},
		file:     r.topFrame().file,
		chain:    p.Push(p.Head, "in macro '"+name+"'"),
		depth:    r.topFrame().depth + 1,
	})
	return nil
}

// expandRept implements ".rept N" and ".irp var, v1, v2, ...": it
// captures the body up to the matching ".endr" and pushes a frame
// containing the body repeated (rept) or bound once per value (irp).
func (r *Reader) expandRept(kind, rest string, p *gcnasm.PositionChain, f *frame) error {
	if f.depth >= maxMacroDepth {
		return &gcnasm.FatalError{Position: p, Message: "macro expansion recursion limit exceeded"}
	}
	var body []string
	depth := 1
	for {
		line, _, has := f.provider.next()
		if !has {
			return &gcnasm.FatalError{Position: p, Message: "unterminated " + kind + " (missing .endr)"}
		}
		word, _ := firstWord(strings.TrimSpace(line))
		switch strings.ToLower(word) {
		case ".rept", ".irp":
			depth++
		case ".endr":
			depth--
			if depth == 0 {
				goto captured
			}
		}
		body = append(body, line)
	}
captured:

	var expanded []string
	switch kind {
	case ".rept":
		n, ok := r.evalRept(rest, p)
		if !ok {
			return &gcnasm.FatalError{Position: p, Message: ".rept count must be a resolvable constant"}
		}
		for i := int64(0); i < n; i++ {
			for _, l := range body {
				expanded = append(expanded, substituteMacroBody(l, map[string]string{}, int(i), "", r.altMacro))
			}
		}
	case ".irp":
		varName, valText := firstWord(rest)
		varName = strings.TrimSuffix(varName, ",")
		for _, v := range splitMacroArgs(valText) {
			bindings := map[string]string{varName: v}
			for _, l := range body {
				expanded = append(expanded, substituteMacroBody(l, bindings, 0, "", true))
			}
		}
	}

	r.frames = append(r.frames, &frame{
		provider: &lineProvider{text: expanded},
		file:     f.file,
		chain:    p.Push(p.Head, "in "+kind),
		depth:    f.depth + 1,
	})
	return nil
}

func (r *Reader) evalRept(text string, p *gcnasm.PositionChain) (int64, bool) {
	if r.EvalExpr == nil {
		return 0, false
	}
	return r.EvalExpr(strings.TrimSpace(text))
}
