// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import "github.com/gcnkit/gcnasm"

// An fstring is a string that keeps track of its position within the
// logical line it was produced from, plus the position chain that
// produced that logical line (macro/rept/include expansion frames).
// It is the substring-slicing cursor every C1/C2/C4 parser advances.
type fstring struct {
	chain  *gcnasm.PositionChain
	file   gcnasm.FileRef
	row    int
	column int
	str    string
	full   string
}

func newFstring(chain *gcnasm.PositionChain, file gcnasm.FileRef, row int, str string) fstring {
	return fstring{chain: chain, file: file, row: row, str: str, full: str}
}

// pos returns the position chain for the start of the current
// substring: the chain's own head frame, but with row/column replaced
// by this fstring's precise cursor position.
func (l fstring) pos() *gcnasm.PositionChain {
	head := gcnasm.Position{File: l.file, Line: l.row, Column: l.column}
	if l.chain == nil {
		return &gcnasm.PositionChain{Head: head}
	}
	cp := *l.chain
	cp.Head = head
	return &cp
}

func (l fstring) String() string { return l.str }

func (l *fstring) advanceColumn(n int) int {
	c := l.column
	for i := 0; i < n; i++ {
		if l.str[i] == '\t' {
			c += 8 - (c % 8)
		} else {
			c++
		}
	}
	return c
}

func (l fstring) consume(n int) fstring {
	col := l.advanceColumn(n)
	return fstring{l.chain, l.file, l.row, col, l.str[n:], l.full}
}

func (l fstring) trunc(n int) fstring {
	return fstring{l.chain, l.file, l.row, l.column, l.str[:n], l.full}
}

func (l fstring) isEmpty() bool { return len(l.str) == 0 }

func (l fstring) startsWith(fn func(c byte) bool) bool {
	return len(l.str) > 0 && fn(l.str[0])
}

func (l fstring) startsWithChar(c byte) bool {
	return len(l.str) > 0 && l.str[0] == c
}

func (l fstring) startsWithString(s string) bool {
	return len(l.str) >= len(s) && l.str[:len(s)] == s
}

func (l fstring) consumeWhitespace() fstring {
	return l.consume(l.scanWhile(whitespace))
}

func (l fstring) scanWhile(fn func(c byte) bool) int {
	i := 0
	for ; i < len(l.str) && fn(l.str[i]); i++ {
	}
	return i
}

func (l fstring) scanUntil(fn func(c byte) bool) int {
	i := 0
	for ; i < len(l.str) && !fn(l.str[i]); i++ {
	}
	return i
}

func (l fstring) scanUntilChar(c byte) int {
	i := 0
	for ; i < len(l.str) && l.str[i] != c; i++ {
	}
	return i
}

func (l fstring) consumeWhile(fn func(c byte) bool) (consumed, remain fstring) {
	i := l.scanWhile(fn)
	return l.trunc(i), l.consume(i)
}

func (l fstring) consumeUntil(fn func(c byte) bool) (consumed, remain fstring) {
	i := l.scanUntil(fn)
	return l.trunc(i), l.consume(i)
}

func (l fstring) consumeUntilChar(c byte) (consumed, remain fstring) {
	i := l.scanUntilChar(c)
	return l.trunc(i), l.consume(i)
}

// consumeUntilUnquotedChar scans until c is found outside of a quoted
// string (single or double quotes), so comma-separated argument lists
// don't split inside string literals.
func (l fstring) consumeUntilUnquotedChar(c byte) (consumed, remain fstring) {
	var quote byte
	i := 0
loop:
	for ; i < len(l.str); i++ {
		switch {
		case quote == 0 && l.str[i] == c:
			break loop
		case quote == 0 && (l.str[i] == '\'' || l.str[i] == '"'):
			quote = l.str[i]
		case quote != 0 && l.str[i] == quote:
			quote = 0
		}
	}
	return l.trunc(i), l.consume(i)
}

// stripTrailingComment trims a ';'- or '#'-prefixed trailing comment
// that is not inside a quoted string literal.
func (l fstring) stripTrailingComment() fstring {
	lastNonWS := 0
	for i := 0; i < len(l.str); i++ {
		if comment(l.str[i]) {
			break
		}
		if stringQuote(l.str[i]) {
			q := l.str[i]
			i++
			for ; i < len(l.str) && l.str[i] != q; i++ {
			}
			lastNonWS = i
			if i == len(l.str) {
				break
			}
			continue
		}
		if !whitespace(l.str[i]) {
			lastNonWS = i + 1
		}
	}
	return l.trunc(lastNonWS)
}

//
// character classes
//

func whitespace(c byte) bool { return c == ' ' || c == '\t' }
func wordChar(c byte) bool   { return c != ' ' && c != '\t' }
func alpha(c byte) bool      { return (c >= 'a' && c <= 'z') || (c >= 'A' && c <= 'Z') }
func decimal(c byte) bool    { return c >= '0' && c <= '9' }
func comment(c byte) bool    { return c == ';' || c == '#' }
func hexadecimal(c byte) bool {
	return decimal(c) || (c >= 'A' && c <= 'F') || (c >= 'a' && c <= 'f')
}
func binarynum(c byte) bool { return c == '0' || c == '1' }

func identifierStartChar(c byte) bool { return alpha(c) || c == '_' || c == '.' }
func identifierChar(c byte) bool      { return alpha(c) || decimal(c) || c == '_' || c == '.' || c == '$' }
func pseudoOpStartChar(c byte) bool   { return c == '.' }
func stringQuote(c byte) bool         { return c == '"' || c == '\'' }
func labelChar(c byte) bool           { return identifierChar(c) }
func labelStartChar(c byte) bool      { return identifierStartChar(c) }
