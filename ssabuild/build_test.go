package ssabuild

import (
	"testing"

	"github.com/nc-labs/ssabe/cfg"
	"github.com/nc-labs/ssabe/dom"
	"github.com/nc-labs/ssabe/ir"
)

// buildDiamond constructs: entry branches to then/else, each assigns a
// distinct constant to the same pre-SSA variable x, both join and use
// x. A correctly-built SSA form needs exactly one phi at the join.
func buildDiamond(t *testing.T) (*ir.Function, *ir.Var) {
	t.Helper()
	f := ir.NewFunction("diamond")
	x := f.NewPreSSAReg(ir.TypeInt64)

	entryLbl := ir.NewLabel()
	thenLbl := ir.NewLabel()
	elseLbl := ir.NewLabel()
	joinLbl := ir.NewLabel()

	f.Append(entryLbl)
	cond := f.NewSSAReg(ir.TypeBool)
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
	return f, x
}

func TestBuildInsertsPhiAtJoin(t *testing.T) {
	f, _ := buildDiamond(t)
	Build(f)

	join := f.Blocks[3]
	phis := join.Phis()
	if len(phis) != 1 {
		t.Fatalf("expected 1 phi at join, got %d", len(phis))
	}
	phi := phis[0]
	if len(phi.Args) != 2 {
		t.Fatalf("expected 2 phi args, got %d", len(phi.Args))
	}
	for _, a := range phi.Args {
		v, ok := a.Val.(*ir.Var)
		if !ok || v.Number < 0 {
			t.Fatalf("phi arg should be a renamed SSA var, got %#v", a.Val)
		}
	}

	use := join.Last()
	if use.Op != ir.OpSetResults {
		t.Fatalf("expected join's last instruction to be the use, got %v", use.Op)
	}
	argVar, ok := use.Args[0].Val.(*ir.Var)
	if !ok {
		t.Fatalf("use argument should be a Var")
	}
	if argVar != phi.Results[0].Var {
		t.Fatalf("use should read the phi's result, got v%d want v%d", argVar.Number, phi.Results[0].Var.Number)
	}
}

func TestBuildNoStrayPreSSANames(t *testing.T) {
	f, _ := buildDiamond(t)
	Build(f)

	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		for _, r := range i.Results {
			if r.Var.Number < 0 {
				t.Fatalf("result var still pre-SSA after Build: %v", ir.VarString(r.Var))
			}
		}
		for _, a := range i.Args {
			if v, ok := a.Val.(*ir.Var); ok && v.Number < 0 {
				t.Fatalf("arg var still pre-SSA after Build: %v", ir.VarString(v))
			}
		}
	}
}

// buildStraightLine has no control-flow join at all, so no phi should
// ever be inserted: a single def of x dominates its only use.
func buildStraightLine(t *testing.T) *ir.Function {
	t.Helper()
	f := ir.NewFunction("straight")
	x := f.NewPreSSAReg(ir.TypeInt64)

	entryLbl := ir.NewLabel()
	f.Append(entryLbl)
	def := ir.NewInstr(ir.OpAssign)
	def.Sub = ir.AssignMove
	def.AddResult(x)
	def.AddArg(f.Const(ir.TypeInt64, 7))
	f.Append(def)
	use := ir.NewInstr(ir.OpSetResults)
	use.AddArg(x)
	f.Append(use)

	cfg.Build(f)
	dom.Compute(f)
	return f
}

func TestBuildNoPhiWithoutJoin(t *testing.T) {
	f := buildStraightLine(t)
	Build(f)

	for _, b := range f.Blocks {
		if len(b.Phis()) != 0 {
			t.Fatalf("block %d should have no phis on a straight-line function", b.ID)
		}
	}
}
