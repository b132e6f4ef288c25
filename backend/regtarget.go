package backend

import (
	"github.com/nc-labs/ssabe/archx64"
	"github.com/nc-labs/ssabe/diag"
	"github.com/nc-labs/ssabe/ir"
)

// registerTargeting is the pre-allocation pass of spec.md §4.14 step 1:
// it pins ABI operands (params, results, call arguments) to their
// System V registers, pins division to RAX/RDX and variable shift
// counts to CL, fuses comparisons into the branches that consume them,
// hoists constant divisors into registers, and legalizes the casts the
// cast table cannot express directly.
func registerTargeting(f *ir.Function, arch *archx64.Arch) {
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		switch i.Op {
		case ir.OpSetParams:
			targetParams(i, arch)
		case ir.OpSetResults:
			targetResults(i, arch)
		case ir.OpCall:
			targetCall(f, i, arch)
		case ir.OpAssign:
			targetAssign(f, i)
		case ir.OpCast:
			legalizeCast(f, i)
		}
	}
}

func targetParams(i *ir.Instr, arch *archx64.Arch) {
	ints, fps := arch.IntArgRegs(), arch.FPArgRegs()
	ii, fi := 0, 0
	for k := range i.Results {
		if ir.ClassOf(i.Results[k].Var.Typ) == ir.FClass {
			diag.Assertf(fi < len(fps), "more FP parameters than registers")
			i.Results[k].Constraint = fps[fi]
			fi++
		} else {
			diag.Assertf(ii < len(ints), "more integer parameters than registers")
			i.Results[k].Constraint = ints[ii]
			ii++
		}
	}
}

func targetResults(i *ir.Instr, arch *archx64.Arch) {
	ints, fps := arch.IntRetRegs(), arch.FPRetRegs()
	ii, fi := 0, 0
	for k := range i.Args {
		if ir.ClassOf(i.Args[k].Val.Type()) == ir.FClass {
			diag.Assertf(fi < len(fps), "more FP results than return registers")
			i.Args[k].Constraint = fps[fi]
			fi++
		} else {
			diag.Assertf(ii < len(ints), "more integer results than return registers")
			i.Args[k].Constraint = ints[ii]
			ii++
		}
	}
}

// targetCall pins arguments and results to the calling convention and
// parks a clobber result on every caller-save register the results do
// not already cover, so nothing the allocator keeps live across the
// call can sit in one. Live F-class values land in the high XMM
// registers (see DESIGN.md on the XMM clobber model).
func targetCall(f *ir.Function, i *ir.Instr, arch *archx64.Arch) {
	ints, fps := arch.IntArgRegs(), arch.FPArgRegs()
	ii, fi := 0, 0
	for k := range i.Args {
		if ir.ClassOf(i.Args[k].Val.Type()) == ir.FClass {
			diag.Assertf(fi < len(fps), "call %s: more FP arguments than registers", i.Symbol)
			i.Args[k].Constraint = fps[fi]
			fi++
		} else {
			diag.Assertf(ii < len(ints), "call %s: more integer arguments than registers", i.Symbol)
			i.Args[k].Constraint = ints[ii]
			ii++
		}
	}

	taken := map[int]bool{}
	fpTaken := map[int]bool{}
	iret, fret := arch.IntRetRegs(), arch.FPRetRegs()
	ir2, fr2 := 0, 0
	for k := range i.Results {
		if ir.ClassOf(i.Results[k].Var.Typ) == ir.FClass {
			i.Results[k].Constraint = fret[fr2]
			fpTaken[fret[fr2]] = true
			fr2++
		} else {
			i.Results[k].Constraint = iret[ir2]
			taken[iret[ir2]] = true
			ir2++
		}
	}

	b := i.Block()
	for _, c := range arch.CallerClobbered() {
		if taken[c] {
			continue
		}
		clob := f.NewSSAReg(ir.TypeInt64)
		clob.SetDef(i, b)
		i.Results = append(i.Results, ir.ResultSlot{Var: clob, Constraint: c})
	}
	for _, c := range arch.FPArgRegs() {
		if fpTaken[c] {
			continue
		}
		clob := f.NewSSAReg(ir.TypeReal64)
		clob.SetDef(i, b)
		i.Results = append(i.Results, ir.ResultSlot{Var: clob, Constraint: c})
	}
}

func targetAssign(f *ir.Function, i *ir.Instr) {
	switch i.Sub {
	case ir.AssignDiv, ir.AssignUDiv:
		targetDivide(f, i)
	case ir.AssignShl, ir.AssignShr, ir.AssignSar:
		if _, isConst := i.Args[1].Val.(*ir.Const); !isConst {
			i.Args[1].Constraint = archx64.RCX
		}
	case ir.AssignCmpEQ, ir.AssignCmpNE, ir.AssignCmpLT,
		ir.AssignCmpLE, ir.AssignCmpGT, ir.AssignCmpGE:
		fuseCompare(f, i)
	}
}

// targetDivide pins the dividend and quotient to RAX, declares the
// RDX clobber as an extra result, injects an undef argument that
// occupies RDX on input so the divisor can never be assigned there
// (spec.md §8 S4), and hoists a constant divisor into a register
// (idiv has no immediate form).
func targetDivide(f *ir.Function, i *ir.Instr) {
	if ir.ClassOf(i.Results[0].Var.Typ) == ir.FClass {
		return // SSE division has no register requirements
	}
	b := i.Block()

	if c, ok := i.Args[1].Val.(*ir.Const); ok {
		tmp := f.NewSSAReg(c.Typ)
		cp := ir.NewInstr(ir.OpAssign)
		cp.Sub = ir.AssignMove
		cp.AddResult(tmp)
		cp.AddArg(c)
		tmp.SetDef(cp, b)
		f.InsertBefore(cp, i)
		cp.SetBlockForCFG(b)
		if b.FirstOrdinary == i {
			b.FirstOrdinary = cp
		}
		i.Args[1].Val = tmp
		tmp.AddUse(i, b)
	}

	i.Args[0].Constraint = archx64.RAX
	i.Results[0].Constraint = archx64.RAX

	rem := f.NewSSAReg(i.Results[0].Var.Typ)
	rem.SetDef(i, b)
	i.Results = append(i.Results, ir.ResultSlot{Var: rem, Constraint: archx64.RDX})

	typ := i.Results[0].Var.Typ
	i.Args = append(i.Args, ir.ArgSlot{Val: f.Undef(typ), Constraint: archx64.RDX})
}

// fuseCompare folds a comparison into an immediately following branch
// when the branch is the comparison's only consumer: the branch gets
// the condition code and the boolean result is excluded from coloring
// (ir.DontColor, the cleaner equivalent spec.md §9 suggests for the
// original's type-mutation trick). A phi whose result nothing reads
// (SSA construction does not prune such phis) does not count as a
// consumer; its argument for the comparison becomes undef.
func fuseCompare(f *ir.Function, i *ir.Instr) {
	next := i.Next()
	if next == nil || next.Op != ir.OpBranch {
		return
	}
	r := i.Results[0].Var
	bv, ok := next.Args[0].Val.(*ir.Var)
	if !ok || bv != r {
		return
	}
	for _, u := range r.Uses {
		if u.Instr != next && (u.Instr.Op != ir.OpPhi || len(u.Instr.Results[0].Var.Uses) != 0) {
			return
		}
	}
	for _, u := range r.Uses {
		for k := range u.Instr.Args {
			if u.Instr != next && u.Instr.Args[k].Val == r {
				u.Instr.Args[k].Val = f.Undef(r.Typ)
			}
		}
	}
	r.Uses = []ir.UseSite{{Instr: next, Block: next.Block()}}
	next.Cond = ir.CondForCompare(i.Sub, i.Args[0].Val.Type())
	r.Color = ir.DontColor
}

// legalizeCast rewrites the conversions the emission table cannot
// express in one instruction: sub-32-bit int↔float conversions go
// through an int32 intermediate.
func legalizeCast(f *ir.Function, i *ir.Instr) {
	d := i.Results[0].Var
	src, ok := i.Args[0].Val.(*ir.Var)
	if !ok {
		return
	}
	b := i.Block()

	if i.CastK == ir.CastIntToFloat && ir.ByteSize(src.Typ) < 4 {
		midTyp := ir.TypeInt32
		widen := ir.CastSignExtend
		switch src.Typ {
		case ir.TypeUint8, ir.TypeUint16, ir.TypeBool:
			widen = ir.CastZeroExtend
		}
		mid := f.NewSSAReg(midTyp)
		w := ir.NewInstr(ir.OpCast)
		w.CastK = widen
		w.AddResult(mid)
		w.AddArg(src)
		src.RemoveUse(i)
		src.AddUse(w, b)
		mid.SetDef(w, b)
		f.InsertBefore(w, i)
		w.SetBlockForCFG(b)
		if b.FirstOrdinary == i {
			b.FirstOrdinary = w
		}
		i.Args[0].Val = mid
		mid.AddUse(i, b)
	}

	if i.CastK == ir.CastFloatToInt && ir.ByteSize(d.Typ) < 4 {
		mid := f.NewSSAReg(ir.TypeInt32)
		cv := ir.NewInstr(ir.OpCast)
		cv.CastK = ir.CastFloatToInt
		cv.AddResult(mid)
		cv.AddArg(src)
		src.RemoveUse(i)
		src.AddUse(cv, b)
		mid.SetDef(cv, b)
		f.InsertBefore(cv, i)
		cv.SetBlockForCFG(b)
		if b.FirstOrdinary == i {
			b.FirstOrdinary = cv
		}
		i.CastK = ir.CastTruncate
		i.Args[0].Val = mid
		mid.AddUse(i, b)
	}
}
