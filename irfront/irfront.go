// Package irfront reads the textual IR format the CLI driver and the
// tests feed the back end. It is deliberately not a language front
// end: no expressions, no scoping, no types beyond the IR's own — one
// instruction per line, exercising exactly the construction surface of
// spec.md §6.1. The tokenize-a-line, dispatch-on-mnemonic structure
// follows the teacher's assembler, inverted to build ir.Function
// values instead of machine words.
//
// Format sketch:
//
//	# comment
//	function main
//	  params a:int32, b:int32
//	  x = add.int32 a, b
//	  c = cmplt.int32 x, $10
//	  branch c, small, big
//	small:
//	  y = mov.int32 $1
//	  goto join
//	big:
//	  y = mov.int32 $2
//	  goto join
//	join:
//	  results y
//	end
package irfront

import (
	"bufio"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/nc-labs/ssabe/ir"
)

// assignOps is the mnemonic table for OpAssign sub-operations.
var assignOps = map[string]ir.AssignOp{
	"mov":   ir.AssignMove,
	"add":   ir.AssignAdd,
	"sub":   ir.AssignSub,
	"mul":   ir.AssignMul,
	"div":   ir.AssignDiv,
	"udiv":  ir.AssignUDiv,
	"neg":   ir.AssignNeg,
	"and":   ir.AssignAnd,
	"or":    ir.AssignOr,
	"xor":   ir.AssignXor,
	"not":   ir.AssignNot,
	"shl":   ir.AssignShl,
	"shr":   ir.AssignShr,
	"sar":   ir.AssignSar,
	"cmpeq": ir.AssignCmpEQ,
	"cmpne": ir.AssignCmpNE,
	"cmplt": ir.AssignCmpLT,
	"cmple": ir.AssignCmpLE,
	"cmpgt": ir.AssignCmpGT,
	"cmpge": ir.AssignCmpGE,
}

var typeNames = map[string]ir.Type{
	"bool":    ir.TypeBool,
	"int8":    ir.TypeInt8,
	"int16":   ir.TypeInt16,
	"int32":   ir.TypeInt32,
	"int64":   ir.TypeInt64,
	"uint8":   ir.TypeUint8,
	"uint16":  ir.TypeUint16,
	"uint32":  ir.TypeUint32,
	"uint64":  ir.TypeUint64,
	"sat8":    ir.TypeSat8,
	"sat16":   ir.TypeSat16,
	"real32":  ir.TypeReal32,
	"real64":  ir.TypeReal64,
	"pointer": ir.TypePointer,
}

// Parse reads every function in the stream.
func Parse(r io.Reader) ([]*ir.Function, error) {
	p := &parser{scan: bufio.NewScanner(r)}
	var fns []*ir.Function
	for p.next() {
		if p.line == "" {
			continue
		}
		name, ok := strings.CutPrefix(p.line, "function ")
		if !ok {
			return nil, p.errorf("expected 'function <name>', got %q", p.line)
		}
		fn, err := p.parseFunction(strings.TrimSpace(name))
		if err != nil {
			return nil, err
		}
		fns = append(fns, fn)
	}
	if err := p.scan.Err(); err != nil {
		return nil, err
	}
	return fns, nil
}

type parser struct {
	scan   *bufio.Scanner
	line   string
	lineNo int

	f      *ir.Function
	vars   map[string]*ir.Var
	labels map[string]*ir.Instr
	placed map[string]bool
}

func (p *parser) next() bool {
	for p.scan.Scan() {
		p.lineNo++
		line := p.scan.Text()
		if idx := strings.IndexByte(line, '#'); idx >= 0 {
			line = line[:idx]
		}
		p.line = strings.TrimSpace(line)
		if p.line != "" {
			return true
		}
	}
	return false
}

func (p *parser) errorf(format string, args ...any) error {
	return fmt.Errorf("line %d: %s", p.lineNo, fmt.Sprintf(format, args...))
}

func (p *parser) parseFunction(name string) (*ir.Function, error) {
	p.f = ir.NewFunction(name)
	p.vars = map[string]*ir.Var{}
	p.labels = map[string]*ir.Instr{}
	p.placed = map[string]bool{}
	p.f.Append(ir.NewLabel())

	for p.next() {
		if p.line == "end" {
			for l := range p.labels {
				if !p.placed[l] {
					return nil, p.errorf("label %q is referenced but never defined", l)
				}
			}
			return p.f, nil
		}
		if err := p.statement(); err != nil {
			return nil, err
		}
	}
	return nil, p.errorf("missing 'end' for function %s", name)
}

func (p *parser) statement() error {
	line := p.line
	if l, ok := strings.CutSuffix(line, ":"); ok {
		lbl := p.label(strings.TrimSpace(l))
		if p.placed[strings.TrimSpace(l)] {
			return p.errorf("label %q defined twice", l)
		}
		p.f.Append(lbl)
		p.placed[strings.TrimSpace(l)] = true
		return nil
	}

	var dsts []string
	if before, after, found := strings.Cut(line, "="); found {
		for _, d := range strings.Split(before, ",") {
			dsts = append(dsts, strings.TrimSpace(d))
		}
		line = strings.TrimSpace(after)
	}

	mnemonic, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch {
	case mnemonic == "params":
		return p.params(rest)
	case mnemonic == "results":
		return p.results(rest)
	case mnemonic == "goto":
		g := ir.NewGoto(p.label(rest))
		p.f.Append(g)
		return nil
	case mnemonic == "branch":
		return p.branch(rest)
	case mnemonic == "call":
		return p.call(dsts, rest)
	case strings.HasPrefix(mnemonic, "load."):
		return p.load(dsts, mnemonic[len("load."):], rest)
	case strings.HasPrefix(mnemonic, "store."):
		return p.store(mnemonic[len("store."):], rest)
	case strings.HasPrefix(mnemonic, "cast."):
		return p.cast(dsts, mnemonic[len("cast."):], rest)
	}

	op, typName, found := strings.Cut(mnemonic, ".")
	sub, known := assignOps[op]
	if !found || !known {
		return p.errorf("unknown instruction %q", mnemonic)
	}
	typ, ok := typeNames[typName]
	if !ok {
		return p.errorf("unknown type %q", typName)
	}
	return p.assign(dsts, sub, typ, rest)
}

func (p *parser) assign(dsts []string, sub ir.AssignOp, typ ir.Type, rest string) error {
	if len(dsts) != 1 {
		return p.errorf("assignment needs exactly one destination")
	}
	resTyp := typ
	switch sub {
	case ir.AssignCmpEQ, ir.AssignCmpNE, ir.AssignCmpLT,
		ir.AssignCmpLE, ir.AssignCmpGT, ir.AssignCmpGE:
		resTyp = ir.TypeBool
	}
	i := ir.NewInstr(ir.OpAssign)
	i.Sub = sub
	i.AddResult(p.varNamed(dsts[0], resTyp))
	for _, tok := range splitOperands(rest) {
		val, err := p.operand(tok, typ)
		if err != nil {
			return err
		}
		i.AddArg(val)
	}
	want := 2
	switch sub {
	case ir.AssignMove, ir.AssignNeg, ir.AssignNot:
		want = 1
	}
	if len(i.Args) != want {
		return p.errorf("%d operands given, %d expected", len(i.Args), want)
	}
	p.f.Append(i)
	return nil
}

func (p *parser) params(rest string) error {
	i := ir.NewInstr(ir.OpSetParams)
	for _, tok := range splitOperands(rest) {
		name, typName, found := strings.Cut(tok, ":")
		if !found {
			return p.errorf("parameter %q needs a :type", tok)
		}
		typ, ok := typeNames[typName]
		if !ok {
			return p.errorf("unknown type %q", typName)
		}
		v := p.varNamed(name, typ)
		i.AddResult(v)
		p.f.Params = append(p.f.Params, v)
	}
	p.f.Append(i)
	return nil
}

func (p *parser) results(rest string) error {
	i := ir.NewInstr(ir.OpSetResults)
	for _, tok := range splitOperands(rest) {
		v, ok := p.vars[tok]
		if !ok {
			return p.errorf("result %q was never assigned", tok)
		}
		i.AddArg(v)
	}
	p.f.Append(i)
	return nil
}

func (p *parser) branch(rest string) error {
	ops := splitOperands(rest)
	if len(ops) != 3 {
		return p.errorf("branch needs cond, taken, nottaken")
	}
	cond, err := p.operand(ops[0], ir.TypeBool)
	if err != nil {
		return err
	}
	p.f.Append(ir.NewBranch(cond, p.label(ops[1]), p.label(ops[2])))
	return nil
}

func (p *parser) call(dsts []string, rest string) error {
	sym, argstr, _ := strings.Cut(rest, " ")
	i := ir.NewInstr(ir.OpCall)
	i.Symbol = sym
	for _, d := range dsts {
		name, typName, found := strings.Cut(d, ":")
		if !found {
			return p.errorf("call result %q needs a :type", d)
		}
		typ, ok := typeNames[typName]
		if !ok {
			return p.errorf("unknown type %q", typName)
		}
		i.AddResult(p.varNamed(name, typ))
	}
	for _, tok := range splitOperands(strings.TrimSpace(argstr)) {
		v, ok := p.vars[tok]
		if !ok {
			return p.errorf("call argument %q was never assigned", tok)
		}
		i.AddArg(v)
	}
	p.f.Append(i)
	return nil
}

func (p *parser) load(dsts []string, typName, rest string) error {
	typ, ok := typeNames[typName]
	if !ok {
		return p.errorf("unknown type %q", typName)
	}
	if len(dsts) != 1 {
		return p.errorf("load needs exactly one destination")
	}
	ops := splitOperands(rest)
	if len(ops) < 2 || len(ops) > 3 {
		return p.errorf("load needs base[, index], offset")
	}
	i := ir.NewInstr(ir.OpLoad)
	i.AddResult(p.varNamed(dsts[0], typ))
	for _, tok := range ops[:len(ops)-1] {
		v, ok := p.vars[tok]
		if !ok {
			return p.errorf("address operand %q was never assigned", tok)
		}
		i.AddArg(v)
	}
	off, err := strconv.ParseInt(ops[len(ops)-1], 10, 64)
	if err != nil {
		return p.errorf("bad load offset %q", ops[len(ops)-1])
	}
	i.Offset = off
	p.f.Append(i)
	return nil
}

func (p *parser) store(typName, rest string) error {
	typ, ok := typeNames[typName]
	if !ok {
		return p.errorf("unknown type %q", typName)
	}
	ops := splitOperands(rest)
	if len(ops) < 3 || len(ops) > 4 {
		return p.errorf("store needs value, base[, index], offset")
	}
	i := ir.NewInstr(ir.OpStore)
	val, err := p.operand(ops[0], typ)
	if err != nil {
		return err
	}
	i.AddArg(val)
	for _, tok := range ops[1 : len(ops)-1] {
		v, ok := p.vars[tok]
		if !ok {
			return p.errorf("address operand %q was never assigned", tok)
		}
		i.AddArg(v)
	}
	off, err := strconv.ParseInt(ops[len(ops)-1], 10, 64)
	if err != nil {
		return p.errorf("bad store offset %q", ops[len(ops)-1])
	}
	i.Offset = off
	p.f.Append(i)
	return nil
}

func (p *parser) cast(dsts []string, typName, rest string) error {
	typ, ok := typeNames[typName]
	if !ok {
		return p.errorf("unknown type %q", typName)
	}
	if len(dsts) != 1 {
		return p.errorf("cast needs exactly one destination")
	}
	src, ok := p.vars[strings.TrimSpace(rest)]
	if !ok {
		return p.errorf("cast source %q was never assigned", rest)
	}
	i := ir.NewInstr(ir.OpCast)
	i.CastK = castKind(src.Typ, typ)
	i.AddResult(p.varNamed(dsts[0], typ))
	i.AddArg(src)
	p.f.Append(i)
	return nil
}

// castKind infers the conversion from the source and destination
// types.
func castKind(src, dst ir.Type) ir.CastKind {
	sf, df := ir.ClassOf(src) == ir.FClass, ir.ClassOf(dst) == ir.FClass
	switch {
	case sf && df:
		return ir.CastFloatToFloat
	case sf:
		return ir.CastFloatToInt
	case df:
		return ir.CastIntToFloat
	}
	ss, ds := ir.ByteSize(src), ir.ByteSize(dst)
	switch {
	case ss == ds:
		return ir.CastBitcast
	case ss > ds:
		return ir.CastTruncate
	}
	switch src {
	case ir.TypeUint8, ir.TypeUint16, ir.TypeUint32, ir.TypeUint64, ir.TypeBool, ir.TypePointer:
		return ir.CastZeroExtend
	}
	return ir.CastSignExtend
}

// varNamed returns the pre-SSA variable for a source name, minting it
// on first sight. Redefinitions reuse the same pre-SSA name, which is
// what lets ssabuild see them as one variable.
func (p *parser) varNamed(name string, typ ir.Type) *ir.Var {
	if v, ok := p.vars[name]; ok {
		return v
	}
	v := p.f.NewPreSSAReg(typ)
	p.vars[name] = v
	return v
}

// label returns the Label instruction for a name, creating it forward
// references and all; the instruction joins the stream when its
// defining "name:" line appears.
func (p *parser) label(name string) *ir.Instr {
	if l, ok := p.labels[name]; ok {
		return l
	}
	l := ir.NewLabel()
	p.labels[name] = l
	return l
}

// operand parses a $-literal or a variable reference.
func (p *parser) operand(tok string, typ ir.Type) (ir.Operand, error) {
	if lit, ok := strings.CutPrefix(tok, "$"); ok {
		if ir.ClassOf(typ) == ir.FClass {
			fv, err := strconv.ParseFloat(lit, 64)
			if err != nil {
				return nil, p.errorf("bad float literal %q", tok)
			}
			if typ == ir.TypeReal32 {
				return p.f.Const(typ, uint64(math.Float32bits(float32(fv)))), nil
			}
			return p.f.Const(typ, math.Float64bits(fv)), nil
		}
		iv, err := strconv.ParseInt(lit, 0, 64)
		if err != nil {
			uv, uerr := strconv.ParseUint(lit, 0, 64)
			if uerr != nil {
				return nil, p.errorf("bad integer literal %q", tok)
			}
			return p.f.Const(typ, uv), nil
		}
		return p.f.Const(typ, uint64(iv)), nil
	}
	v, ok := p.vars[tok]
	if !ok {
		return nil, p.errorf("variable %q used before assignment", tok)
	}
	return v, nil
}

func splitOperands(s string) []string {
	if strings.TrimSpace(s) == "" {
		return nil
	}
	parts := strings.Split(s, ",")
	for i := range parts {
		parts[i] = strings.TrimSpace(parts[i])
	}
	return parts
}
