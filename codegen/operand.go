package codegen

import (
	"fmt"

	"github.com/nc-labs/ssabe/archx64"
	"github.com/nc-labs/ssabe/diag"
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/layout"
)

// suffix returns the AT&T operand-size suffix for an integer type.
func suffix(typ ir.Type) string {
	switch ir.ByteSize(typ) {
	case 1:
		return "b"
	case 2:
		return "w"
	case 4:
		return "l"
	default:
		return "q"
	}
}

// fpSuffix returns the scalar SSE suffix for a float type.
func fpSuffix(typ ir.Type) string {
	if typ == ir.TypeReal32 {
		return "ss"
	}
	return "sd"
}

func isFloat(typ ir.Type) bool { return ir.ClassOf(typ) == ir.FClass }

// reg prints v's assigned register, % prefixed and sized for v's type.
func (fe *fnEmitter) reg(v *ir.Var) string {
	diag.Assertf(v.Color >= 0, "operand %s reached emission uncolored", ir.VarString(v))
	return "%" + fe.arch.RegName(ir.ClassOf(v.Typ), v.Color, v.Typ)
}

// regSized prints v's register with an explicit operand type (for the
// cast table, which reads a register at one width and writes another).
func (fe *fnEmitter) regSized(v *ir.Var, typ ir.Type) string {
	return "%" + fe.arch.RegName(ir.ClassOf(v.Typ), v.Color, typ)
}

// slotAddr prints the stack address of a spilled Var.
func (fe *fnEmitter) slotAddr(v *ir.Var) string {
	place := archx64.PlaceOf(ir.ClassOf(v.Typ))
	return fmt.Sprintf("%d(%%rsp)", layout.SlotOffset(fe.f, place, v.Color))
}

// memAddr prints the stack address of a MemVar plus a constant offset.
func (fe *fnEmitter) memAddr(v *ir.Var, off int64) string {
	return fmt.Sprintf("%d(%%rsp)", int64(layout.MemVarOffset(fe.f, v))+off)
}

// imm prints a Const as an immediate, sign-extended to the operand
// size the instruction will use.
func imm(c *ir.Const) string {
	switch ir.ByteSize(c.Typ) {
	case 1:
		return fmt.Sprintf("$%d", int8(c.Bits))
	case 2:
		return fmt.Sprintf("$%d", int16(c.Bits))
	case 4:
		return fmt.Sprintf("$%d", int32(c.Bits))
	default:
		return fmt.Sprintf("$%d", int64(c.Bits))
	}
}

// fitsImm32 reports whether a 64-bit constant can be used as a
// sign-extended 32-bit immediate.
func fitsImm32(c *ir.Const) bool {
	if ir.ByteSize(c.Typ) < 8 {
		return true
	}
	v := int64(c.Bits)
	return v >= -(1<<31) && v < (1<<31)
}

// poolLabel interns a float constant and returns its .LCn label.
func (fe *fnEmitter) poolLabel(c *ir.Const) string {
	n := fe.pool.Add(ir.ByteSize(c.Typ), c.Bits, c.Hi)
	return fmt.Sprintf(".LC%d", n)
}

// operand prints an argument for use in an integer instruction:
// immediate, spill slot, MemVar address, or register.
func (fe *fnEmitter) operand(op ir.Operand) string {
	switch o := op.(type) {
	case *ir.Const:
		return imm(o)
	case *ir.Var:
		if o.IsMem {
			return fe.memAddr(o, 0)
		}
		if o.IsSpilled {
			return fe.slotAddr(o)
		}
		return fe.reg(o)
	}
	diag.Assertf(false, "undef reached operand printing")
	return ""
}

// fpOperand prints an argument for a scalar SSE instruction: float
// constants come from the pool, everything else as usual.
func (fe *fnEmitter) fpOperand(op ir.Operand) string {
	if c, ok := op.(*ir.Const); ok {
		return fe.poolLabel(c)
	}
	return fe.operand(op)
}

// addr assembles an offset(base,index) memory operand for Load/Store
// (spec.md §4.13's operand printers). base may be a pointer register
// or a MemVar; index, when present, is always a register.
func (fe *fnEmitter) addr(base ir.Operand, index ir.Operand, off int64) string {
	bv, ok := base.(*ir.Var)
	diag.Assertf(ok, "memory base must be a Var")
	if bv.IsMem {
		if index == nil {
			return fe.memAddr(bv, off)
		}
		iv := index.(*ir.Var)
		return fmt.Sprintf("%d(%%rsp,%s)", int64(layout.MemVarOffset(fe.f, bv))+off, fe.regSized(iv, ir.TypeInt64))
	}
	b := fe.regSized(bv, ir.TypePointer)
	if index == nil {
		if off == 0 {
			return fmt.Sprintf("(%s)", b)
		}
		return fmt.Sprintf("%d(%s)", off, b)
	}
	iv := index.(*ir.Var)
	return fmt.Sprintf("%d(%s,%s)", off, b, fe.regSized(iv, ir.TypeInt64))
}

// sameReg reports whether two operands are register Vars occupying the
// same color in the same class.
func sameReg(a, b ir.Operand) bool {
	av, ok1 := a.(*ir.Var)
	bv, ok2 := b.(*ir.Var)
	if !ok1 || !ok2 || av.IsMem || bv.IsMem || av.IsSpilled || bv.IsSpilled {
		return false
	}
	return av.Color >= 0 && av.Color == bv.Color && ir.ClassOf(av.Typ) == ir.ClassOf(bv.Typ)
}
