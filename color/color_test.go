package color

import (
	"testing"

	"github.com/nc-labs/ssabe/cfg"
	"github.com/nc-labs/ssabe/dom"
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/liveness"
	"github.com/nc-labs/ssabe/ssabuild"
)

// buildDiamond constructs the usual branch/join with one variable
// assigned on both sides and consumed at the join.
func buildDiamond(t *testing.T) *ir.Function {
	t.Helper()
	f := ir.NewFunction("diamond")
	x := f.NewPreSSAReg(ir.TypeInt64)

	entryLbl := ir.NewLabel()
	thenLbl := ir.NewLabel()
	elseLbl := ir.NewLabel()
	joinLbl := ir.NewLabel()

	f.Append(entryLbl)
	params := ir.NewInstr(ir.OpSetParams)
	cond := f.NewPreSSAReg(ir.TypeBool)
	params.AddResult(cond)
	f.Append(params)
	f.Append(ir.NewBranch(cond, thenLbl, elseLbl))

	f.Append(thenLbl)
	one := ir.NewInstr(ir.OpAssign)
	one.Sub = ir.AssignMove
	one.AddResult(x)
	one.AddArg(f.Const(ir.TypeInt64, 1))
	f.Append(one)
	f.Append(ir.NewGoto(joinLbl))

	f.Append(elseLbl)
	two := ir.NewInstr(ir.OpAssign)
	two.Sub = ir.AssignMove
	two.AddResult(x)
	two.AddArg(f.Const(ir.TypeInt64, 2))
	f.Append(two)
	f.Append(ir.NewGoto(joinLbl))

	f.Append(joinLbl)
	use := ir.NewInstr(ir.OpSetResults)
	use.AddArg(x)
	f.Append(use)

	cfg.Build(f)
	dom.Compute(f)
	ssabuild.Build(f)
	liveness.ComputeDefUse(f)
	liveness.Compute(f)
	return f
}

// checkAdmissible asserts no two simultaneously live same-class vars
// share a register (spec.md §8 property 5).
func checkAdmissible(t *testing.T, f *ir.Function, class ir.Class) {
	t.Helper()
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		seen := map[int]*ir.Var{}
		for v := range i.LiveIn {
			if v.IsMem || v.IsSpilled || v.Color < 0 || ir.ClassOf(v.Typ) != class {
				continue
			}
			if prev, clash := seen[v.Color]; clash {
				t.Fatalf("%s and %s both live with color %d at %s",
					ir.VarString(prev), ir.VarString(v), v.Color, i.Op)
			}
			seen[v.Color] = v
		}
	}
}

func TestColoringAdmissible(t *testing.T) {
	f := buildDiamond(t)
	Regs(f, ir.RClass, []int{0, 1, 2, 3})

	for _, v := range f.Vars() {
		if v.IsMem || v.IsSpilled || v.Color == ir.DontColor {
			continue
		}
		if len(v.Uses) > 0 && v.Color < 0 {
			t.Fatalf("used var %s left uncolored", ir.VarString(v))
		}
	}
	checkAdmissible(t, f, ir.RClass)
}

func TestConstrainedResultGetsItsRegister(t *testing.T) {
	f := buildDiamond(t)
	// The parameter carries a constraint, the way register targeting
	// pins ABI registers.
	var params *ir.Instr
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		if i.Op == ir.OpSetParams {
			params = i
			break
		}
	}
	params.Results[0].Constraint = 2

	Regs(f, ir.RClass, []int{0, 1, 2, 3})
	if got := params.Results[0].Var.Color; got != 2 {
		t.Fatalf("constrained parameter colored %d, want 2", got)
	}
	checkAdmissible(t, f, ir.RClass)
}

func TestSlotColoringIsDense(t *testing.T) {
	f := ir.NewFunction("slots")
	f.Append(ir.NewLabel())

	var slotVars []*ir.Var
	for k := 0; k < 3; k++ {
		src := f.NewSSAReg(ir.TypeInt64)
		def := ir.NewInstr(ir.OpAssign)
		def.Sub = ir.AssignMove
		def.AddResult(src)
		def.AddArg(f.Const(ir.TypeInt64, uint64(k)))
		f.Append(def)

		mv := f.NewSSAReg(ir.TypeInt64)
		mv.IsSpilled = true
		sp := ir.NewInstr(ir.OpSpill)
		sp.AddResult(mv)
		sp.AddArg(src)
		f.Append(sp)
		slotVars = append(slotVars, mv)
	}
	use := ir.NewInstr(ir.OpSetResults)
	for _, mv := range slotVars {
		use.AddArg(mv)
	}
	f.Append(use)

	cfg.Build(f)
	dom.Compute(f)
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		for _, r := range i.Results {
			r.Var.SetDef(i, i.Block())
		}
	}
	liveness.ComputeDefUse(f)
	liveness.Compute(f)

	n := Slots(f, ir.RClass)
	if n != 3 {
		t.Fatalf("three overlapping slot vars need 3 slots, got %d", n)
	}
	seen := map[int]bool{}
	for _, mv := range slotVars {
		if mv.Color < 0 || mv.Color >= 3 {
			t.Fatalf("slot color %d out of the dense range", mv.Color)
		}
		if seen[mv.Color] {
			t.Fatalf("slot color %d assigned twice", mv.Color)
		}
		seen[mv.Color] = true
	}
}
