package codegen

import (
	"fmt"

	"github.com/nc-labs/ssabe/archx64"
	"github.com/nc-labs/ssabe/diag"
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/layout"
	"github.com/nc-labs/ssabe/phi"
)

// assign dispatches an OpAssign on its sub-operation and operand kinds.
func (fe *fnEmitter) assign(i *ir.Instr) {
	d := i.Results[0].Var
	switch i.Sub {
	case ir.AssignMove:
		fe.move(d, i.Args[0].Val)
	case ir.AssignAdd, ir.AssignSub, ir.AssignMul, ir.AssignAnd, ir.AssignOr, ir.AssignXor:
		fe.binary(i, d)
	case ir.AssignShl, ir.AssignShr, ir.AssignSar:
		fe.shift(i, d)
	case ir.AssignDiv, ir.AssignUDiv:
		fe.divide(i, d)
	case ir.AssignNeg:
		fe.negate(i, d)
	case ir.AssignNot:
		if !sameReg(d, i.Args[0].Val) {
			fe.move(d, i.Args[0].Val)
		}
		fmt.Fprintf(fe.w, "\tnot%s\t%s\n", suffix(d.Typ), fe.reg(d))
	case ir.AssignCmpEQ, ir.AssignCmpNE, ir.AssignCmpLT, ir.AssignCmpLE, ir.AssignCmpGT, ir.AssignCmpGE:
		fe.compare(i, d)
	}
}

// move materializes src into d's register, suppressing the mov when
// source and destination already share a color (spec.md §4.13).
func (fe *fnEmitter) move(d *ir.Var, src ir.Operand) {
	if sameReg(d, src) {
		return
	}
	if _, ok := src.(*ir.Undef); ok {
		return // UNDEF moves emit nothing
	}
	if isFloat(d.Typ) {
		fmt.Fprintf(fe.w, "\tmov%s\t%s, %s\n", fpSuffix(d.Typ), fe.fpOperand(src), fe.reg(d))
		return
	}
	if c, ok := src.(*ir.Const); ok && !fitsImm32(c) {
		fmt.Fprintf(fe.w, "\tmovabsq\t$%d, %s\n", int64(c.Bits), fe.reg(d))
		return
	}
	fmt.Fprintf(fe.w, "\tmov%s\t%s, %s\n", suffix(d.Typ), fe.operand(src), fe.reg(d))
}

var binMnemonic = map[ir.AssignOp]string{
	ir.AssignAdd: "add",
	ir.AssignSub: "sub",
	ir.AssignMul: "imul",
	ir.AssignAnd: "and",
	ir.AssignOr:  "or",
	ir.AssignXor: "xor",
}

var fpBinMnemonic = map[ir.AssignOp]string{
	ir.AssignAdd: "add",
	ir.AssignSub: "sub",
	ir.AssignMul: "mul",
	ir.AssignDiv: "div",
}

func commutative(op ir.AssignOp) bool {
	switch op {
	case ir.AssignAdd, ir.AssignMul, ir.AssignAnd, ir.AssignOr, ir.AssignXor:
		return true
	}
	return false
}

// binary lowers two-operand arithmetic into x86 two-address form:
// dst ← arg1, then op arg2 into dst, with the aliasing cases
// (dst == arg2) rewritten instead of clobbered.
func (fe *fnEmitter) binary(i *ir.Instr, d *ir.Var) {
	a1, a2 := i.Args[0].Val, i.Args[1].Val

	if folded, ok := foldConsts(i.Sub, a1, a2, d.Typ); ok {
		fe.move(d, folded)
		return
	}
	if isFloat(d.Typ) {
		fe.fpBinary(i, d, a1, a2)
		return
	}

	mn := binMnemonic[i.Sub]
	sfx := suffix(d.Typ)
	if sameReg(d, a2) && !sameReg(d, a1) {
		if commutative(i.Sub) {
			fmt.Fprintf(fe.w, "\t%s%s\t%s, %s\n", mn, sfx, fe.operand(a1), fe.reg(d))
			return
		}
		// d == arg2 on a subtraction: compute arg2-arg1, then negate.
		fmt.Fprintf(fe.w, "\tsub%s\t%s, %s\n", sfx, fe.operand(a1), fe.reg(d))
		fmt.Fprintf(fe.w, "\tneg%s\t%s\n", sfx, fe.reg(d))
		return
	}
	fe.move(d, a1)
	fmt.Fprintf(fe.w, "\t%s%s\t%s, %s\n", mn, sfx, fe.operand(a2), fe.reg(d))
}

// fpBinary is the scalar SSE version. The dst == arg2 aliasing case on
// non-commutative operations parks arg2 in the red zone first.
func (fe *fnEmitter) fpBinary(i *ir.Instr, d *ir.Var, a1, a2 ir.Operand) {
	mn := fpBinMnemonic[i.Sub]
	sfx := fpSuffix(d.Typ)
	if sameReg(d, a2) && !sameReg(d, a1) {
		if commutative(i.Sub) {
			fmt.Fprintf(fe.w, "\t%s%s\t%s, %s\n", mn, sfx, fe.fpOperand(a1), fe.reg(d))
			return
		}
		fmt.Fprintf(fe.w, "\tmov%s\t%s, -16(%%rsp)\n", sfx, fe.reg(d))
		fe.move(d, a1)
		fmt.Fprintf(fe.w, "\t%s%s\t-16(%%rsp), %s\n", mn, sfx, fe.reg(d))
		return
	}
	fe.move(d, a1)
	fmt.Fprintf(fe.w, "\t%s%s\t%s, %s\n", mn, sfx, fe.fpOperand(a2), fe.reg(d))
}

// foldConsts folds integer Const ⊕ Const at emission time (spec.md
// §8 S6). Floats are left to the SSE path and the constant pool.
func foldConsts(op ir.AssignOp, a1, a2 ir.Operand, typ ir.Type) (ir.Operand, bool) {
	c1, ok1 := a1.(*ir.Const)
	c2, ok2 := a2.(*ir.Const)
	if !ok1 || !ok2 || isFloat(typ) {
		return nil, false
	}
	x, y := int64(c1.Bits), int64(c2.Bits)
	var r int64
	switch op {
	case ir.AssignAdd:
		r = x + y
	case ir.AssignSub:
		r = x - y
	case ir.AssignMul:
		r = x * y
	case ir.AssignAnd:
		r = x & y
	case ir.AssignOr:
		r = x | y
	case ir.AssignXor:
		r = x ^ y
	default:
		return nil, false
	}
	return &ir.Const{Typ: typ, Bits: uint64(r)}, true
}

// shift emits sal/shr/sar with either an immediate count or %cl
// (register-targeting pins variable counts to RCX).
func (fe *fnEmitter) shift(i *ir.Instr, d *ir.Var) {
	mn := map[ir.AssignOp]string{
		ir.AssignShl: "sal",
		ir.AssignShr: "shr",
		ir.AssignSar: "sar",
	}[i.Sub]
	sfx := suffix(d.Typ)
	if !sameReg(d, i.Args[0].Val) {
		fe.move(d, i.Args[0].Val)
	}
	if c, ok := i.Args[1].Val.(*ir.Const); ok {
		fmt.Fprintf(fe.w, "\t%s%s\t$%d, %s\n", mn, sfx, c.Bits&63, fe.reg(d))
		return
	}
	fmt.Fprintf(fe.w, "\t%s%s\t%%cl, %s\n", mn, sfx, fe.reg(d))
}

// divide emits idiv/div. Register targeting has pinned the dividend
// and quotient to RAX and parked the RDX clobber (spec.md §8 S4), so
// only the sign/zero extension and the divide itself remain.
func (fe *fnEmitter) divide(i *ir.Instr, d *ir.Var) {
	if isFloat(d.Typ) {
		fe.fpBinary(i, d, i.Args[0].Val, i.Args[1].Val)
		return
	}
	sfx := suffix(d.Typ)
	if i.Sub == ir.AssignDiv {
		if ir.ByteSize(d.Typ) == 8 {
			fmt.Fprintf(fe.w, "\tcqto\n")
		} else {
			fmt.Fprintf(fe.w, "\tcltd\n")
		}
		fmt.Fprintf(fe.w, "\tidiv%s\t%s\n", sfx, fe.operand(i.Args[1].Val))
		return
	}
	fmt.Fprintf(fe.w, "\txorl\t%%edx, %%edx\n")
	fmt.Fprintf(fe.w, "\tdiv%s\t%s\n", sfx, fe.operand(i.Args[1].Val))
}

// negate: integers use neg; floats flip the sign bit against the
// width's mask constant (spec.md §4.11's .LCS labels).
func (fe *fnEmitter) negate(i *ir.Instr, d *ir.Var) {
	if !sameReg(d, i.Args[0].Val) {
		fe.move(d, i.Args[0].Val)
	}
	if isFloat(d.Typ) {
		if d.Typ == ir.TypeReal32 {
			fmt.Fprintf(fe.w, "\txorps\t.LCS32, %s\n", fe.reg(d))
		} else {
			fmt.Fprintf(fe.w, "\txorpd\t.LCS64, %s\n", fe.reg(d))
		}
		return
	}
	fmt.Fprintf(fe.w, "\tneg%s\t%s\n", suffix(d.Typ), fe.reg(d))
}

// compare emits cmp (or ucomis) and, unless the result was fused into
// the following branch by register targeting, a setcc into the result
// byte.
func (fe *fnEmitter) compare(i *ir.Instr, d *ir.Var) {
	a1, a2 := i.Args[0].Val, i.Args[1].Val
	argTyp := a1.Type()
	if isFloat(argTyp) {
		fmt.Fprintf(fe.w, "\tucomi%s\t%s, %s\n", fpSuffix(argTyp), fe.fpOperand(a2), fe.fpOperand(a1))
	} else {
		fmt.Fprintf(fe.w, "\tcmp%s\t%s, %s\n", suffix(argTyp), fe.operand(a2), fe.operand(a1))
	}
	if d.Color == ir.DontColor {
		return // branch fusion: the jcc consumes the flags directly
	}
	fmt.Fprintf(fe.w, "\tset%s\t%s\n", ccString(ir.CondForCompare(i.Sub, argTyp)), fe.regSized(d, ir.TypeBool))
}

func ccString(cc ir.CondCode) string {
	switch cc {
	case ir.CondEQ:
		return "e"
	case ir.CondNE:
		return "ne"
	case ir.CondLT:
		return "l"
	case ir.CondLE:
		return "le"
	case ir.CondGT:
		return "g"
	case ir.CondGE:
		return "ge"
	case ir.CondB:
		return "b"
	case ir.CondBE:
		return "be"
	case ir.CondA:
		return "a"
	case ir.CondAE:
		return "ae"
	}
	return "?"
}

// branch emits the conditional jump pair, skipping the unconditional
// half when the not-taken block is the next thing in the stream.
func (fe *fnEmitter) branch(i *ir.Instr) {
	taken, notTaken := i.Targets[0], i.Targets[1]
	cc := i.Cond
	if cc == ir.CondNone {
		v, ok := i.Args[0].Val.(*ir.Var)
		diag.Assertf(ok, "unfused branch condition must be a register Var")
		r := fe.regSized(v, ir.TypeBool)
		fmt.Fprintf(fe.w, "\ttestb\t%s, %s\n", r, r)
		cc = ir.CondNE
	}
	fmt.Fprintf(fe.w, "\tj%s\t%s\n", ccString(cc), fe.blockLabel(taken))
	if i.Next() == notTaken.Label {
		return
	}
	fmt.Fprintf(fe.w, "\tjmp\t%s\n", fe.blockLabel(notTaken))
}

// spill stores a register value into its shadow slot.
func (fe *fnEmitter) spill(i *ir.Instr) {
	mv := i.Results[0].Var
	v, ok := i.Args[0].Val.(*ir.Var)
	diag.Assertf(ok && !v.IsSpilled, "spill source must be register-resident")
	if isFloat(v.Typ) {
		fmt.Fprintf(fe.w, "\tmov%s\t%s, %s\n", fpSuffix(v.Typ), fe.reg(v), fe.slotAddr(mv))
		return
	}
	fmt.Fprintf(fe.w, "\tmovq\t%s, %s\n", fe.regSized(v, ir.TypeInt64), fe.slotAddr(mv))
}

// reload loads a spilled value back into a register.
func (fe *fnEmitter) reload(i *ir.Instr) {
	d := i.Results[0].Var
	mv, ok := i.Args[0].Val.(*ir.Var)
	diag.Assertf(ok && mv.IsSpilled, "reload source must be a spilled Var")
	if isFloat(d.Typ) {
		fmt.Fprintf(fe.w, "\tmov%s\t%s, %s\n", fpSuffix(d.Typ), fe.slotAddr(mv), fe.reg(d))
		return
	}
	fmt.Fprintf(fe.w, "\tmovq\t%s, %s\n", fe.slotAddr(mv), fe.regSized(d, ir.TypeInt64))
}

// load reads offset(base,index) into the result register.
func (fe *fnEmitter) load(i *ir.Instr) {
	d := i.Results[0].Var
	var index ir.Operand
	if len(i.Args) > 1 {
		index = i.Args[1].Val
	}
	addr := fe.addr(i.Args[0].Val, index, i.Offset)
	if isFloat(d.Typ) {
		fmt.Fprintf(fe.w, "\tmov%s\t%s, %s\n", fpSuffix(d.Typ), addr, fe.reg(d))
		return
	}
	fmt.Fprintf(fe.w, "\tmov%s\t%s, %s\n", suffix(d.Typ), addr, fe.reg(d))
}

// store writes the value argument to offset(base,index).
func (fe *fnEmitter) store(i *ir.Instr) {
	val := i.Args[0].Val
	var index ir.Operand
	if len(i.Args) > 2 {
		index = i.Args[2].Val
	}
	addr := fe.addr(i.Args[1].Val, index, i.Offset)
	typ := val.Type()
	if isFloat(typ) {
		fmt.Fprintf(fe.w, "\tmov%s\t%s, %s\n", fpSuffix(typ), fe.fpOperand(val), addr)
		return
	}
	fmt.Fprintf(fe.w, "\tmov%s\t%s, %s\n", suffix(typ), fe.operand(val), addr)
}

// cast is the conversion table (spec.md §4.13): extends, truncates,
// int/float conversions, and bitcasts, keyed on the CastKind register
// targeting resolved plus the operand widths.
func (fe *fnEmitter) cast(i *ir.Instr) {
	d := i.Results[0].Var
	src, ok := i.Args[0].Val.(*ir.Var)
	if !ok {
		// Constant casts reduce to a typed move of the bit pattern.
		fe.move(d, i.Args[0].Val)
		return
	}
	ss, ds := ir.ByteSize(src.Typ), ir.ByteSize(d.Typ)
	switch i.CastK {
	case ir.CastSignExtend:
		fmt.Fprintf(fe.w, "\tmovs%s%s\t%s, %s\n", suffix(src.Typ), suffix(d.Typ), fe.reg(src), fe.reg(d))
	case ir.CastZeroExtend:
		if ss == 4 && ds == 8 {
			// A 32-bit mov zero-extends for free.
			fmt.Fprintf(fe.w, "\tmovl\t%s, %s\n", fe.reg(src), fe.regSized(d, ir.TypeUint32))
			return
		}
		fmt.Fprintf(fe.w, "\tmovz%s%s\t%s, %s\n", suffix(src.Typ), suffix(d.Typ), fe.reg(src), fe.reg(d))
	case ir.CastTruncate:
		if src.Color == d.Color {
			return // the narrower view of the same register
		}
		fmt.Fprintf(fe.w, "\tmov%s\t%s, %s\n", suffix(d.Typ), fe.regSized(src, d.Typ), fe.reg(d))
	case ir.CastIntToFloat:
		diag.Assertf(ss >= 4, "int-to-float cast below 32 bits must be widened by register targeting")
		fmt.Fprintf(fe.w, "\tcvtsi2%s%s\t%s, %s\n", fpSuffix(d.Typ), suffix(src.Typ), fe.reg(src), fe.reg(d))
	case ir.CastFloatToInt:
		diag.Assertf(ds >= 4, "float-to-int cast below 32 bits must be narrowed by register targeting")
		fmt.Fprintf(fe.w, "\tcvtt%s2si%s\t%s, %s\n", fpSuffix(src.Typ), suffix(d.Typ), fe.reg(src), fe.reg(d))
	case ir.CastFloatToFloat:
		if d.Typ == ir.TypeReal64 {
			fmt.Fprintf(fe.w, "\tcvtss2sd\t%s, %s\n", fe.reg(src), fe.reg(d))
		} else {
			fmt.Fprintf(fe.w, "\tcvtsd2ss\t%s, %s\n", fe.reg(src), fe.reg(d))
		}
	case ir.CastBitcast:
		switch {
		case isFloat(d.Typ) == isFloat(src.Typ):
			fe.move(d, src)
		case ds == 4 || ss == 4:
			fmt.Fprintf(fe.w, "\tmovd\t%s, %s\n", fe.reg(src), fe.reg(d))
		default:
			fmt.Fprintf(fe.w, "\tmovq\t%s, %s\n", fe.reg(src), fe.reg(d))
		}
	}
}

// phiMove renders one lowered parallel-copy step.
func (fe *fnEmitter) phiMove(m phi.Move) {
	mn := "movq"
	if isFloat(m.Type) {
		mn = "mov" + fpSuffix(m.Type)
	}
	src := fe.phiLoc(m.Src, m.Type)
	dst := fe.phiLoc(m.Dst, m.Type)

	if m.Src.Kind == phi.LocImm && !isFloat(m.Type) {
		v := int64(m.Src.Lo)
		if m.Via == nil && (v < -(1<<31) || v >= 1<<31) {
			fmt.Fprintf(fe.w, "\tmovabsq\t$%d, %s\n", v, dst)
			return
		}
	}
	if m.Via == nil {
		fmt.Fprintf(fe.w, "\t%s\t%s, %s\n", mn, src, dst)
		return
	}
	via := fe.phiLoc(*m.Via, m.Type)
	if m.Src.Kind == phi.LocImm && !isFloat(m.Type) {
		v := int64(m.Src.Lo)
		if v < -(1<<31) || v >= 1<<31 {
			fmt.Fprintf(fe.w, "\tmovabsq\t$%d, %s\n", v, via)
		} else {
			fmt.Fprintf(fe.w, "\t%s\t%s, %s\n", mn, src, via)
		}
	} else {
		fmt.Fprintf(fe.w, "\t%s\t%s, %s\n", mn, src, via)
	}
	fmt.Fprintf(fe.w, "\t%s\t%s, %s\n", mn, via, dst)
}

// phiLoc prints one endpoint of a lowered phi move.
func (fe *fnEmitter) phiLoc(l phi.Loc, typ ir.Type) string {
	switch l.Kind {
	case phi.LocGPReg:
		return "%" + fe.arch.RegName(ir.RClass, l.Index, ir.TypeInt64)
	case phi.LocXMMReg:
		return "%" + fe.arch.RegName(ir.FClass, l.Index, typ)
	case phi.LocQuadSlot:
		return fmt.Sprintf("%d(%%rsp)", layout.SlotOffset(fe.f, archx64.PlaceQuad, l.Index))
	case phi.LocOctSlot:
		return fmt.Sprintf("%d(%%rsp)", layout.SlotOffset(fe.f, archx64.PlaceOct, l.Index))
	case phi.LocRedZone:
		return fmt.Sprintf("-%d(%%rsp)", l.Index)
	case phi.LocImm:
		if isFloat(typ) {
			n := fe.pool.Add(ir.ByteSize(typ), l.Lo, l.Hi)
			return fmt.Sprintf(".LC%d", n)
		}
		return fmt.Sprintf("$%d", int64(l.Lo))
	}
	diag.Assertf(false, "unprintable phi location kind %d", l.Kind)
	return ""
}
