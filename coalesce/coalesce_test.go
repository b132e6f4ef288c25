package coalesce

import (
	"testing"

	"github.com/nc-labs/ssabe/cfg"
	"github.com/nc-labs/ssabe/color"
	"github.com/nc-labs/ssabe/dom"
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/liveness"
	"github.com/nc-labs/ssabe/ssabuild"
)

var reservoir = []int{0, 1, 2, 3}

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
	color.Regs(f, ir.RClass, reservoir)
	return f
}

// TestPhiSourcesCoalesce checks spec.md §8 S2: in a diamond the phi
// and both its sources can share one register, so phi lowering emits
// no move.
func TestPhiSourcesCoalesce(t *testing.T) {
	f := buildDiamond(t)
	Run(f, ir.RClass, reservoir)

	var phi *ir.Instr
	for _, b := range f.Blocks {
		if ps := b.Phis(); len(ps) > 0 {
			phi = ps[0]
			break
		}
	}
	if phi == nil {
		t.Fatal("diamond should have produced a phi at the join")
	}
	want := phi.Results[0].Var.Color
	for _, a := range phi.Args {
		v, ok := a.Val.(*ir.Var)
		if !ok {
			continue
		}
		if v.Color != want {
			t.Fatalf("phi source %s has color %d, result has %d: move not coalesced",
				ir.VarString(v), v.Color, want)
		}
	}
}

// TestCoalescingPreservesAdmissibility recolors and then re-checks
// that no two simultaneously live vars share a register.
func TestCoalescingPreservesAdmissibility(t *testing.T) {
	f := buildDiamond(t)
	Run(f, ir.RClass, reservoir)

	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		seen := map[int]*ir.Var{}
		for v := range i.LiveIn {
			if v.IsMem || v.IsSpilled || v.Color < 0 || ir.ClassOf(v.Typ) != ir.RClass {
				continue
			}
			if prev, clash := seen[v.Color]; clash {
				t.Fatalf("%s and %s share color %d while both live",
					ir.VarString(prev), ir.VarString(v), v.Color)
			}
			seen[v.Color] = v
		}
	}
}

// TestPinnedVarsStayPut puts a constraint-colored var in a chunk and
// verifies recoloring routes around it.
func TestPinnedVarsStayPut(t *testing.T) {
	f := buildDiamond(t)

	var use *ir.Instr
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		if i.Op == ir.OpSetResults {
			use = i
		}
	}
	v := use.Args[0].Val.(*ir.Var)
	use.Args[0].Constraint = v.Color

	Run(f, ir.RClass, reservoir)
	if got := use.Args[0].Val.(*ir.Var).Color; got != use.Args[0].Constraint {
		t.Fatalf("pinned var moved from color %d to %d", use.Args[0].Constraint, got)
	}
}
