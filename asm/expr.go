// Copyright 2024 The gcnasm Authors.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package asm

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/gcnkit/gcnasm"
)

// exprOp is one of the 25 operators, plus the leaf kinds and the
// parse-only parenthesis/ternary pseudo-tokens. Declared in
// descending order of precedence so ops[op].precedence sorts the same
// way the table reads.
type exprOp byte

const (
	// unary (right-associative)
	opUPlus exprOp = iota
	opUMinus
	opUBitNot
	opULogNot

	// * / // % %%
	opMul
	opDivS
	opDivU
	opModS
	opModU

	// << >> >>>
	opShl
	opShr
	opShrA

	// &
	opAnd

	// ^ !!
	opXor
	opOrNot

	// |
	opOr

	// + -
	opAdd
	opSub

	// comparisons
	opEq
	opNe
	opLt
	opLe
	opGt
	opGe
	opLtU
	opLeU
	opGtU
	opGeU

	// &&
	opLAnd

	// ||
	opLOr

	// ?: (right-associative, 3 children)
	opTernary

	// leaves
	opNumber
	opString
	opIdentifier
	opHere

	// parse-only pseudo-tokens, never stored in a final expr tree
	opLeftParen
	opRightParen
	opQuestion
	opColon
)

type opdata struct {
	precedence int
	arity      int // 0 = leaf/pseudo, 1 = unary, 2 = binary, 3 = ternary
	rightAssoc bool
	symbol     string
}

// ops is indexed by exprOp; order matches the const block above.
var ops = []opdata{
	{9, 1, true, "+"},
	{9, 1, true, "-"},
	{9, 1, true, "~"},
	{9, 1, true, "!"},
	{8, 2, false, "*"},
	{8, 2, false, "/"},
	{8, 2, false, "//"},
	{8, 2, false, "%"},
	{8, 2, false, "%%"},
	{7, 2, false, "<<"},
	{7, 2, false, ">>"},
	{7, 2, false, ">>>"},
	{6, 2, false, "&"},
	{5, 2, false, "^"},
	{5, 2, false, "!!"},
	{4, 2, false, "|"},
	{3, 2, false, "+"},
	{3, 2, false, "-"},
	{2, 2, false, "=="},
	{2, 2, false, "!="},
	{2, 2, false, "<"},
	{2, 2, false, "<="},
	{2, 2, false, ">"},
	{2, 2, false, ">="},
	{2, 2, false, "<@"},
	{2, 2, false, "<=@"},
	{2, 2, false, ">@"},
	{2, 2, false, ">=@"},
	{1, 2, false, "&&"},
	{0, 2, false, "||"},
	{-1, 3, true, "?:"},
	{0, 0, false, ""},
	{0, 0, false, ""},
	{0, 0, false, ""},
	{0, 0, false, "."},
	{0, 0, false, "("},
	{0, 0, false, ")"},
	{-1, 0, false, "?"},
	{-1, 0, false, ":"},
}

func (op exprOp) data() opdata   { return ops[op] }
func (op exprOp) isBinary() bool { return ops[op].arity == 2 }
func (op exprOp) isUnary() bool  { return ops[op].arity == 1 }
func (op exprOp) symbol() string { return ops[op].symbol }

// collapses reports whether an operator already on the stack (other)
// must be reduced before op is pushed, by the usual shunting-yard
// precedence/associativity rule.
func (op exprOp) collapses(other exprOp) bool {
	if !other.isBinary() && !other.isUnary() {
		return false
	}
	if ops[op].rightAssoc {
		return ops[op].precedence < ops[other].precedence
	}
	return ops[op].precedence <= ops[other].precedence
}

// binaryOpTokens lists every real binary operator's exprOp, in an
// order the tokenizer can scan greedily: longer symbols that share a
// prefix with a shorter one come first.
var binaryOpTokens = []exprOp{
	opShrA, opShl, opShr,
	opLeU, opGeU, opLtU, opGtU,
	opLe, opGe, opEq, opNe, opLAnd, opLOr,
	opModU, opDivU,
	opOrNot,
	opMul, opDivS, opModS, opAdd, opSub, opAnd, opXor, opOr,
	opLt, opGt,
}

//
// expr
//

// An expr is one node of a parsed expression tree. The root's
// String() renders the whole tree as RPN/postfix text.
type expr struct {
	pos        *gcnasm.PositionChain
	op         exprOp
	value      int64
	section    gcnasm.SectionID
	resolved   bool
	isString   bool
	stringVal  string
	identifier string
	children   []*expr // 0 (leaf), 1 (unary), 2 (binary) or 3 (ternary)

	// snapshot support (.eqv): when non-nil, identifier lookups during
	// eval consult this captured environment instead of the live
	// symbol table.
	snapshotEnv map[string]*expr

	// local numbered label reference ("1f"/"1b"): resolved
	// through evalEnv.LocalLabelDefCount/LocalLabelResolve rather than
	// the symbol table, since
	// the same number can be (re)defined many times in one file.
	isLocalLabel      bool
	localLabelNum     string
	localLabelForward bool
	// localLabelPrior is how many definitions of localLabelNum existed
	// at the moment this leaf was first evaluated; captured once (-1
	// means "not yet captured") so a retried evaluation during fixup
	// resolution asks the same question a first pass asked, rather
	// than drifting to whatever the count has grown to by then.
	localLabelPrior int

	// suspended-evaluation bookkeeping: symbol ids this (sub)expression
	// still needs resolved, merged upward from failed children so the
	// root's set is always complete.
	unresolvedSyms map[gcnasm.SymbolID]struct{}
}

func newLeafNumber(pos *gcnasm.PositionChain, v int64) *expr {
	return &expr{pos: pos, op: opNumber, value: v, resolved: true, section: gcnasm.NoSection}
}

func newLeafString(pos *gcnasm.PositionChain, s string) *expr {
	return &expr{pos: pos, op: opString, stringVal: s, isString: true, resolved: true, section: gcnasm.NoSection}
}

// String renders the expression as postfix/RPN text.
func (e *expr) String() string {
	switch {
	case e.op == opNumber:
		return strconv.FormatInt(e.value, 10)
	case e.op == opString:
		return e.stringVal
	case e.op == opIdentifier:
		return e.identifier
	case e.op == opHere:
		return "."
	case e.op == opTernary:
		return fmt.Sprintf("%s %s %s ?:", e.children[0].String(), e.children[1].String(), e.children[2].String())
	case e.op.isBinary():
		return fmt.Sprintf("%s %s %s", e.children[0].String(), e.children[1].String(), e.op.symbol())
	case e.op.isUnary():
		return fmt.Sprintf("%s %s", e.children[0].String(), e.op.symbol())
	default:
		return "<bad-expr>"
	}
}

// RPN is the flattened postorder token stream: parallel ops/args
// slices, with a non-nil Args entry at every leaf position.
type RPN struct {
	Ops  []exprOp
	Args []*expr
}

// Serialize flattens the tree into postorder RPN form.
func (e *expr) Serialize() RPN {
	var r RPN
	var walk func(*expr)
	walk = func(n *expr) {
		for _, c := range n.children {
			walk(c)
		}
		r.Ops = append(r.Ops, n.op)
		if len(n.children) == 0 {
			r.Args = append(r.Args, n)
		} else {
			r.Args = append(r.Args, nil)
		}
	}
	walk(e)
	return r
}

//
// evaluation
//

// evalEnv is the live environment an expr resolves identifiers
// against: the assembler's symbol table plus a "here" provider for
// the active section's location counter.
type evalEnv struct {
	symtab *gcnasm.SymbolTable
	here   func() (int64, gcnasm.SectionID)
	sink   *gcnasm.Sink

	// LocalLabelDefCount and LocalLabelResolve implement "Nf"/"Nb"
	// local numbered label references; both are nil-safe (a nil
	// LocalLabelResolve simply leaves every such reference
	// unresolved).
	LocalLabelDefCount func(num string) int
	LocalLabelResolve  func(num string, forward bool, priorCount int) (value int64, section gcnasm.SectionID, ok bool)
}

// eval attempts to fully evaluate the tree. It returns true on full
// success; on partial success (some subtree references an unresolved
// symbol) it returns false, leaving e.unresolvedSyms populated so the
// caller can register this expr against each symbol's pending list
// and retry once that symbol resolves.
func (e *expr) eval(env *evalEnv) bool {
	if e.resolved {
		return true
	}
	switch e.op {
	case opNumber, opString:
		e.resolved = true
		return true

	case opHere:
		addr, sec := env.here()
		e.value, e.section, e.resolved = addr, sec, true
		return true

	case opIdentifier:
		return e.evalIdentifier(env)

	case opTernary:
		c, t, f := e.children[0], e.children[1], e.children[2]
		c.eval(env)
		if !c.resolved {
			e.mergeUnresolved(c)
			return false
		}
		branch := f
		if c.value != 0 {
			branch = t
		}
		branch.eval(env)
		if !branch.resolved {
			e.mergeUnresolved(branch)
			return false
		}
		e.value, e.section, e.resolved = branch.value, branch.section, true
		return true

	case opUPlus, opUMinus, opUBitNot, opULogNot:
		c := e.children[0]
		c.eval(env)
		if !c.resolved {
			e.mergeUnresolved(c)
			return false
		}
		e.value, e.section, e.resolved = evalUnary(e.op, c.value), c.section, true
		return true

	default: // binary
		a, b := e.children[0], e.children[1]
		a.eval(env)
		b.eval(env)
		if !a.resolved {
			e.mergeUnresolved(a)
		}
		if !b.resolved {
			e.mergeUnresolved(b)
		}
		if !a.resolved || !b.resolved {
			return false
		}
		v, sec, err := evalBinary(e.op, a.value, a.section, b.value, b.section)
		if err != nil {
			if env.sink != nil {
				env.sink.Error(e.pos, "%s", err.Error())
			}
			// Resolve to zero so assembly can continue; one
			// diagnostic per occurrence, mirroring how a bad operand
			// encoding is reported without aborting the whole pass.
			e.value, e.section, e.resolved = 0, gcnasm.NoSection, true
			return true
		}
		e.value, e.section, e.resolved = v, sec, true
		return true
	}
}

func (e *expr) mergeUnresolved(child *expr) {
	if len(child.unresolvedSyms) == 0 {
		return
	}
	if e.unresolvedSyms == nil {
		e.unresolvedSyms = make(map[gcnasm.SymbolID]struct{}, len(child.unresolvedSyms))
	}
	for id := range child.unresolvedSyms {
		e.unresolvedSyms[id] = struct{}{}
	}
}

func (e *expr) evalIdentifier(env *evalEnv) bool {
	if e.isLocalLabel {
		if env.LocalLabelResolve == nil {
			return false
		}
		if e.localLabelPrior < 0 {
			prior := 0
			if env.LocalLabelDefCount != nil {
				prior = env.LocalLabelDefCount(e.localLabelNum)
			}
			e.localLabelPrior = prior
		}
		v, sec, ok := env.LocalLabelResolve(e.localLabelNum, e.localLabelForward, e.localLabelPrior)
		if !ok {
			return false
		}
		e.value, e.section, e.resolved = v, sec, true
		return true
	}

	name := e.identifier
	if e.snapshotEnv != nil {
		if snap, ok := e.snapshotEnv[name]; ok {
			snap.eval(env)
			if !snap.resolved {
				e.mergeUnresolved(snap)
				return false
			}
			e.value, e.section, e.resolved = snap.value, snap.section, true
			return true
		}
	}
	id, ok := env.symtab.Lookup(name)
	if !ok {
		id = env.symtab.Intern(name)
	}
	sym := env.symtab.Get(id)
	if !sym.Defined() {
		if e.unresolvedSyms == nil {
			e.unresolvedSyms = make(map[gcnasm.SymbolID]struct{}, 1)
		}
		e.unresolvedSyms[id] = struct{}{}
		return false
	}
	e.value, e.section, e.resolved = sym.Value, sym.Section, true
	return true
}

func evalUnary(op exprOp, a int64) int64 {
	switch op {
	case opUPlus:
		return a
	case opUMinus:
		return -a
	case opUBitNot:
		return ^a
	case opULogNot:
		if a == 0 {
			return 1
		}
		return 0
	}
	return 0
}

// evalBinary implements the cross-section arithmetic rule: values in
// the same section combine within that section; subtracting two
// section-relative values yields an absolute (NoSection) result; any
// other combination of two different, non-absolute sections is an
// error.
func evalBinary(op exprOp, a int64, asec gcnasm.SectionID, b int64, bsec gcnasm.SectionID) (int64, gcnasm.SectionID, error) {
	var sec gcnasm.SectionID
	switch {
	case asec == bsec:
		sec = asec
	case op == opSub && asec != gcnasm.NoSection && bsec != gcnasm.NoSection:
		sec = gcnasm.NoSection
	case asec != gcnasm.NoSection && bsec != gcnasm.NoSection:
		return 0, 0, fmt.Errorf("cross-section arithmetic not allowed")
	case asec != gcnasm.NoSection:
		sec = asec
	default:
		sec = bsec
	}

	switch op {
	case opMul:
		return a * b, sec, nil
	case opDivS:
		if b == 0 {
			return 0, 0, fmt.Errorf("division by zero")
		}
		return a / b, sec, nil
	case opDivU:
		if b == 0 {
			return 0, 0, fmt.Errorf("division by zero")
		}
		return int64(uint64(a) / uint64(b)), sec, nil
	case opModS:
		if b == 0 {
			return 0, 0, fmt.Errorf("modulo by zero")
		}
		return a % b, sec, nil
	case opModU:
		if b == 0 {
			return 0, 0, fmt.Errorf("modulo by zero")
		}
		return int64(uint64(a) % uint64(b)), sec, nil
	case opAdd:
		return a + b, sec, nil
	case opSub:
		return a - b, sec, nil
	case opShl:
		return shiftAmount(b, func(n uint) int64 { return a << n }), sec, nil
	case opShr:
		return shiftAmount(b, func(n uint) int64 { return int64(uint64(a) >> n) }), sec, nil
	case opShrA:
		return shiftAmount(b, func(n uint) int64 { return a >> n }), sec, nil
	case opAnd:
		return a & b, sec, nil
	case opXor:
		return a ^ b, sec, nil
	case opOrNot:
		return a | ^b, sec, nil
	case opOr:
		return a | b, sec, nil
	case opEq:
		return boolInt(a == b), sec, nil
	case opNe:
		return boolInt(a != b), sec, nil
	case opLt:
		return boolInt(a < b), sec, nil
	case opLe:
		return boolInt(a <= b), sec, nil
	case opGt:
		return boolInt(a > b), sec, nil
	case opGe:
		return boolInt(a >= b), sec, nil
	case opLtU:
		return boolInt(uint64(a) < uint64(b)), sec, nil
	case opLeU:
		return boolInt(uint64(a) <= uint64(b)), sec, nil
	case opGtU:
		return boolInt(uint64(a) > uint64(b)), sec, nil
	case opGeU:
		return boolInt(uint64(a) >= uint64(b)), sec, nil
	case opLAnd:
		return boolInt(a != 0 && b != 0), sec, nil
	case opLOr:
		return boolInt(a != 0 || b != 0), sec, nil
	}
	return 0, 0, fmt.Errorf("internal: unhandled operator")
}

// shiftAmount applies fn for a shift count in [0,63]; a larger or
// negative count is defined as producing 0.
func shiftAmount(b int64, fn func(uint) int64) int64 {
	if b < 0 || b > 63 {
		return 0
	}
	return fn(uint(b))
}

func boolInt(b bool) int64 {
	if b {
		return 1
	}
	return 0
}

//
// token
//

type parseFlags uint32

const (
	allowParentheses parseFlags = 1 << iota
	allowStrings
	makeSnapshot
)

type tokentype byte

const (
	tokenNil tokentype = iota
	tokenOp
	tokenNumber
	tokenString
	tokenIdentifier
	tokenLocalLabel
	tokenHere
	tokenLeftParen
	tokenRightParen
	tokenQuestion
	tokenColon
)

func (tt tokentype) isValue() bool {
	return tt == tokenNumber || tt == tokenIdentifier || tt == tokenLocalLabel || tt == tokenHere || tt == tokenString || tt == tokenRightParen
}

func (tt tokentype) canPrecedeUnaryOp() bool {
	return !tt.isValue()
}

type token struct {
	typ     tokentype
	value   int64
	str     string
	op      exprOp
	forward bool // tokenLocalLabel only: "f" suffix vs "b"
}

var errParse = fmt.Errorf("invalid expression")

//
// exprParser
//

// exprParser implements Dijkstra's shunting-yard algorithm,
// generalized to the full operator table above, parentheses, string
// literals and the ternary operator.
type exprParser struct {
	operands     stack2[*expr]
	operators    stack2[exprOp]
	parenCounter int
	flags        parseFlags
	prevType     tokentype
	symtab       *gcnasm.SymbolTable
	sink         *gcnasm.Sink
	failed       bool
}

func newExprParser(symtab *gcnasm.SymbolTable, sink *gcnasm.Sink) *exprParser {
	return &exprParser{symtab: symtab, sink: sink}
}

// parse consumes one expression from line. If flags has makeSnapshot
// set, every identifier leaf captures the live symbol table's current
// binding for that name instead of remaining a live lookup, giving
// .eqv its snapshot-at-definition-time semantics.
func (p *exprParser) parse(line fstring, flags parseFlags) (e *expr, remain fstring, err error) {
	p.operands.data, p.operators.data = nil, nil
	p.parenCounter = 0
	p.flags = flags
	p.prevType = tokenNil
	p.failed = false

	orig := line
	remain = line
	for {
		var tok token
		tok, remain, err = p.parseToken(remain)
		if err != nil {
			return nil, remain, err
		}
		if tok.typ == tokenNil {
			break
		}

		switch tok.typ {
		case tokenNumber:
			p.operands.push(newLeafNumber(remain.pos(), tok.value))

		case tokenString:
			p.operands.push(newLeafString(remain.pos(), tok.str))

		case tokenIdentifier:
			leaf := &expr{pos: remain.pos(), op: opIdentifier, identifier: tok.str, section: gcnasm.NoSection}
			if flags&makeSnapshot != 0 {
				p.snapshot(leaf)
			}
			p.operands.push(leaf)

		case tokenLocalLabel:
			p.operands.push(&expr{
				pos: remain.pos(), op: opIdentifier, section: gcnasm.NoSection,
				isLocalLabel: true, localLabelNum: tok.str, localLabelForward: tok.forward,
				localLabelPrior: -1,
			})

		case tokenHere:
			p.operands.push(&expr{pos: remain.pos(), op: opHere, section: gcnasm.NoSection})

		case tokenOp:
			for !p.operators.empty() && tok.op.collapses(p.operators.peek()) {
				if !p.collapse(p.operators.pop()) {
					return nil, remain, errParse
				}
			}
			p.operators.push(tok.op)

		case tokenLeftParen:
			p.operators.push(opLeftParen)

		case tokenRightParen:
			for {
				if p.operators.empty() {
					p.addError(remain, "mismatched parentheses")
					return nil, remain, errParse
				}
				top := p.operators.pop()
				if top == opLeftParen {
					break
				}
				if !p.collapse(top) {
					return nil, remain, errParse
				}
			}

		case tokenQuestion:
			for !p.operators.empty() && p.operators.peek() != opLeftParen && p.operators.peek() != opQuestion {
				if !p.collapse(p.operators.pop()) {
					return nil, remain, errParse
				}
			}
			p.operators.push(opQuestion)

		case tokenColon:
			for !p.operators.empty() && p.operators.peek() != opQuestion {
				if !p.collapse(p.operators.pop()) {
					return nil, remain, errParse
				}
			}
			if p.operators.empty() {
				p.addError(remain, "':' without matching '?'")
				return nil, remain, errParse
			}
			p.operators.pop() // discard opQuestion
			if len(p.operands.data) < 2 {
				p.addError(remain, "invalid ternary expression")
				return nil, remain, errParse
			}
			trueBranch := p.operands.pop()
			cond := p.operands.pop()
			p.operands.push(&expr{pos: cond.pos, op: opTernary, children: []*expr{cond, trueBranch}, section: gcnasm.NoSection})
			p.operators.push(opColon)
		}
	}

	for !p.operators.empty() {
		if !p.collapse(p.operators.pop()) {
			return nil, remain, errParse
		}
	}

	if len(p.operands.data) != 1 {
		p.addError(orig, "invalid expression")
		return nil, remain, errParse
	}
	e = p.operands.pop()
	e.pos = orig.pos()
	return e, remain, nil
}

// collapse pops the operands op needs and pushes the combined node.
// opColon finishes a ternary: its true-branch was already folded into
// an opTernary node with two children sitting on the operand stack.
func (p *exprParser) collapse(op exprOp) bool {
	switch op {
	case opLeftParen, opRightParen, opQuestion:
		return true

	case opColon:
		if len(p.operands.data) < 2 {
			return false
		}
		falseBranch := p.operands.pop()
		tern := p.operands.pop()
		tern.children = append(tern.children, falseBranch)
		p.operands.push(tern)
		return true

	default:
		switch op.data().arity {
		case 1:
			if p.operands.empty() {
				return false
			}
			c := p.operands.pop()
			p.operands.push(&expr{pos: c.pos, op: op, children: []*expr{c}, section: gcnasm.NoSection})
			return true
		case 2:
			if len(p.operands.data) < 2 {
				return false
			}
			b := p.operands.pop()
			a := p.operands.pop()
			p.operands.push(&expr{pos: a.pos, op: op, children: []*expr{a, b}, section: gcnasm.NoSection})
			return true
		default:
			return false
		}
	}
}

// snapshot freezes the current binding of a live identifier for .eqv
// semantics: a later .set of the underlying name does not change what
// this leaf evaluates to.
func (p *exprParser) snapshot(leaf *expr) {
	id, ok := p.symtab.Lookup(leaf.identifier)
	if !ok {
		return
	}
	sym := p.symtab.Get(id)
	if !sym.Defined() {
		return
	}
	frozen := newLeafNumber(leaf.pos, sym.Value)
	frozen.section = sym.Section
	if leaf.snapshotEnv == nil {
		leaf.snapshotEnv = map[string]*expr{}
	}
	leaf.snapshotEnv[leaf.identifier] = frozen
}

// parseToken scans the next token from line.
func (p *exprParser) parseToken(line fstring) (t token, remain fstring, err error) {
	line = line.consumeWhitespace()
	if line.isEmpty() {
		return token{typ: tokenNil}, line, nil
	}

	switch {
	case line.startsWithChar('.') && (len(line.str) == 1 || !identifierChar(line.str[1])):
		t.typ, remain = tokenHere, line.consume(1)

	case line.startsWithChar('$') && len(line.str) > 1 && hexadecimal(line.str[1]):
		t.value, remain, err = p.parseNumber(line)
		t.typ = tokenNumber

	case line.startsWith(decimal) && localLabelRefLen(line.str) > 0:
		n := localLabelRefLen(line.str)
		t.typ, t.str, t.forward = tokenLocalLabel, line.str[:n-1], line.str[n-1] == 'f'
		remain = line.consume(n)

	case line.startsWith(decimal):
		t.value, remain, err = p.parseNumber(line)
		t.typ = tokenNumber

	case line.startsWithChar('\''):
		t.value, remain, err = p.parseCharLiteral(line)
		t.typ = tokenNumber

	case line.startsWith(stringQuote) && p.flags&allowStrings != 0:
		t.str, remain, err = p.parseStringLiteral(line)
		t.typ = tokenString

	case line.startsWithChar('(') && p.flags&allowParentheses != 0:
		p.parenCounter++
		t.typ, remain = tokenLeftParen, line.consume(1)

	case line.startsWithChar(')') && p.flags&allowParentheses != 0:
		if p.parenCounter == 0 {
			p.addError(line, "mismatched parentheses")
			return t, line.consume(1), errParse
		}
		p.parenCounter--
		t.typ, remain = tokenRightParen, line.consume(1)

	case line.startsWithChar('?'):
		t.typ, remain = tokenQuestion, line.consume(1)

	case line.startsWithChar(':'):
		t.typ, remain = tokenColon, line.consume(1)

	case line.startsWith(identifierStartChar) && !line.startsWithChar('.'):
		ident, rest := line.consumeWhile(identifierChar)
		t.typ, t.str, remain = tokenIdentifier, ident.str, rest

	default:
		t.typ = tokenNil
		if p.prevType.canPrecedeUnaryOp() {
			for _, opc := range []exprOp{opUMinus, opUPlus, opUBitNot, opULogNot} {
				sym := opc.symbol()
				if line.startsWithString(sym) && !startsWithLongerOp(line, sym) {
					t.typ, t.op, remain = tokenOp, opc, line.consume(len(sym))
					break
				}
			}
		}
		if t.typ == tokenNil {
			for _, opc := range binaryOpTokens {
				sym := opc.symbol()
				if line.startsWithString(sym) {
					t.typ, t.op, remain = tokenOp, opc, line.consume(len(sym))
					break
				}
			}
		}
		if t.typ == tokenNil {
			p.addError(line, "invalid token '%c'", line.str[0])
			return t, line, errParse
		}
	}

	p.prevType = t.typ
	return t, remain, err
}

// startsWithLongerOp reports whether line actually begins with a
// longer operator token that merely shares sym as a prefix (e.g. "!!"
// sharing its first byte with unary "!").
func startsWithLongerOp(line fstring, sym string) bool {
	for _, opc := range binaryOpTokens {
		full := opc.symbol()
		if len(full) > len(sym) && strings.HasPrefix(full, sym) && line.startsWithString(full) {
			return true
		}
	}
	return false
}

// parseNumber accepts decimal, $hex, 0x/0X hex and 0b/0B binary forms.
func (p *exprParser) parseNumber(line fstring) (value int64, remain fstring, err error) {
	base, fn := 10, decimal
	switch {
	case line.startsWithChar('$'):
		line, base, fn = line.consume(1), 16, hexadecimal
	case line.startsWithString("0x") || line.startsWithString("0X"):
		line, base, fn = line.consume(2), 16, hexadecimal
	case line.startsWithString("0b") || line.startsWithString("0B"):
		line, base, fn = line.consume(2), 2, binarynum
	}
	numstr, remain := line.consumeWhile(fn)
	if numstr.isEmpty() {
		p.addError(line, "invalid numeric literal")
		return 0, remain, errParse
	}
	v, convErr := strconv.ParseUint(strings.ToLower(numstr.str), base, 64)
	if convErr != nil {
		p.addError(numstr, "invalid numeric literal")
		return 0, remain, errParse
	}
	return int64(v), remain, nil
}

func (p *exprParser) parseStringLiteral(line fstring) (s string, remain fstring, err error) {
	quote := line.str[0]
	rest := line.consume(1)
	lit, rest2 := rest.consumeUntilChar(quote)
	if rest2.isEmpty() {
		p.addError(rest2, "string literal missing closing quote")
		return "", rest2, errParse
	}
	return lit.str, rest2.consume(1), nil
}

func (p *exprParser) parseCharLiteral(line fstring) (value int64, remain fstring, err error) {
	if len(line.str) < 3 || line.str[2] != '\'' {
		p.addError(line, "invalid character literal")
		return 0, line, errParse
	}
	return int64(line.str[1]), line.consume(3), nil
}

func (p *exprParser) addError(line fstring, format string, args ...interface{}) {
	p.failed = true
	if p.sink != nil {
		p.sink.Error(line.pos(), format, args...)
	}
}

//
// stack
//

type stack2[T any] struct{ data []T }

func (s *stack2[T]) push(v T) { s.data = append(s.data, v) }
func (s *stack2[T]) pop() T {
	i := len(s.data) - 1
	v := s.data[i]
	s.data = s.data[:i]
	return v
}
func (s *stack2[T]) empty() bool { return len(s.data) == 0 }
func (s *stack2[T]) peek() T     { return s.data[len(s.data)-1] }
