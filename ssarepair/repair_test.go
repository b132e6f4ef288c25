package ssarepair

import (
	"testing"

	"github.com/nc-labs/ssabe/cfg"
	"github.com/nc-labs/ssabe/dom"
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/liveness"
)

// buildSingleDefDiamond builds x defined once at entry, with a direct
// (unmerged) use in both the then and join blocks — no phi needed
// originally, since every use is dominated by the single entry def.
func buildSingleDefDiamond(t *testing.T) (f *ir.Function, x *ir.Var, thenUse, joinUse *ir.Instr) {
	t.Helper()
	f = ir.NewFunction("diamond2")

	entryLbl := ir.NewLabel()
	thenLbl := ir.NewLabel()
	elseLbl := ir.NewLabel()
	joinLbl := ir.NewLabel()

	x = f.NewSSAReg(ir.TypeInt64)

	f.Append(entryLbl)
	xDef := ir.NewInstr(ir.OpAssign)
	xDef.Sub = ir.AssignMove
	xDef.AddResult(x)
	xDef.AddArg(f.Const(ir.TypeInt64, 9))
	f.Append(xDef)
	cond := f.NewSSAReg(ir.TypeBool)
	f.Append(ir.NewBranch(cond, thenLbl, elseLbl))

	f.Append(thenLbl)
	thenUse = ir.NewInstr(ir.OpAssign)
	thenUse.Sub = ir.AssignMove
	thenUse.AddResult(f.NewSSAReg(ir.TypeInt64))
	thenUse.AddArg(x)
	f.Append(thenUse)
	f.Append(ir.NewGoto(joinLbl))

	f.Append(elseLbl)
	f.Append(ir.NewGoto(joinLbl))

	f.Append(joinLbl)
	joinUse = ir.NewInstr(ir.OpSetResults)
	joinUse.AddArg(x)
	f.Append(joinUse)

	cfg.Build(f)
	dom.Compute(f)

	// x's owning block only exists once cfg.Build has run, so SetDef
	// has to happen here rather than at construction time.
	x.SetDef(xDef, f.Blocks[0])

	return f, x, thenUse, joinUse
}

func TestRepairShadowsLocalUseAndMergesAtJoin(t *testing.T) {
	f, x, thenUse, joinUse := buildSingleDefDiamond(t)
	liveness.ComputeDefUse(f)

	thenBlock := f.Blocks[1]
	joinBlock := f.Blocks[3]

	reload := ir.NewInstr(ir.OpReload)
	vPrime := f.NewSSAReg(ir.TypeInt64)
	reload.AddResult(vPrime)
	f.InsertBefore(reload, thenUse)
	reload.SetBlockForCFG(thenBlock)
	vPrime.SetDef(reload, thenBlock)
	if thenBlock.FirstOrdinary == thenUse {
		thenBlock.FirstOrdinary = reload
	}

	Repair(f, x, vPrime)

	got, ok := thenUse.Args[0].Val.(*ir.Var)
	if !ok || got != vPrime {
		t.Fatalf("then's use should now read the reload, got %#v", thenUse.Args[0].Val)
	}

	phis := joinBlock.Phis()
	if len(phis) != 1 {
		t.Fatalf("expected exactly 1 materialized phi at join, got %d", len(phis))
	}
	phi := phis[0]
	if len(phi.Args) != 2 {
		t.Fatalf("expected 2 phi args, got %d", len(phi.Args))
	}

	var gotThen, gotElse ir.Operand
	for _, a := range phi.Args {
		switch a.SourceBlock {
		case f.Blocks[1]:
			gotThen = a.Val
		case f.Blocks[2]:
			gotElse = a.Val
		}
	}
	if v, ok := gotThen.(*ir.Var); !ok || v != vPrime {
		t.Fatalf("phi's then-arg should be the reload, got %#v", gotThen)
	}
	if v, ok := gotElse.(*ir.Var); !ok || v != x {
		t.Fatalf("phi's else-arg should be the original def, got %#v", gotElse)
	}

	joinArg, ok := joinUse.Args[0].Val.(*ir.Var)
	if !ok || joinArg != phi.Results[0].Var {
		t.Fatalf("join's use should now read the merged phi, got %#v", joinUse.Args[0].Val)
	}
}
