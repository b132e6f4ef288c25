package split

import (
	"testing"

	"github.com/nc-labs/ssabe/cfg"
	"github.com/nc-labs/ssabe/dom"
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/liveness"
)

// buildConstrainedUse builds a straight line where a constrained
// instruction sits mid-block with a value live across it:
//
//	a = mov 1; b = mov 2; use(a) [a pinned to reg 0]; r = add a, b
func buildConstrainedUse(t *testing.T) (*ir.Function, *ir.Instr) {
	t.Helper()
	f := ir.NewFunction("constrained")
	f.Append(ir.NewLabel())

	a := f.NewSSAReg(ir.TypeInt64)
	defA := ir.NewInstr(ir.OpAssign)
	defA.Sub = ir.AssignMove
	defA.AddResult(a)
	defA.AddArg(f.Const(ir.TypeInt64, 1))
	f.Append(defA)

	b := f.NewSSAReg(ir.TypeInt64)
	defB := ir.NewInstr(ir.OpAssign)
	defB.Sub = ir.AssignMove
	defB.AddResult(b)
	defB.AddArg(f.Const(ir.TypeInt64, 2))
	f.Append(defB)

	use := ir.NewInstr(ir.OpNop)
	use.Args = []ir.ArgSlot{{Val: a, Constraint: 0}}
	f.Append(use)

	r := f.NewSSAReg(ir.TypeInt64)
	add := ir.NewInstr(ir.OpAssign)
	add.Sub = ir.AssignAdd
	add.AddResult(r)
	add.AddArg(a)
	add.AddArg(b)
	f.Append(add)

	ret := ir.NewInstr(ir.OpSetResults)
	ret.AddArg(r)
	f.Append(ret)

	cfg.Build(f)
	dom.Compute(f)
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		for _, res := range i.Results {
			res.Var.SetDef(i, i.Block())
		}
	}
	liveness.ComputeDefUse(f)
	liveness.Compute(f)
	return f, use
}

func TestSplitPutsConstrainedInstrAtBlockTop(t *testing.T) {
	f, use := buildConstrainedUse(t)
	SplitLiveRanges(f)

	b := use.Block()
	if b.FirstOrdinary != use {
		t.Fatalf("constrained instruction is not its block's first ordinary instruction")
	}
	if len(b.Preds) != 1 {
		t.Fatalf("split block should have exactly one predecessor, has %d", len(b.Preds))
	}
}

func TestSplitBridgesLiveValues(t *testing.T) {
	f, use := buildConstrainedUse(t)
	liveBefore := len(use.LiveIn)
	SplitLiveRanges(f)

	b := use.Block()
	if got := len(b.Phis()); got != liveBefore {
		t.Fatalf("expected %d bridge phis (one per live-in value), got %d", liveBefore, got)
	}
	// The constrained use must now read a phi defined in its own block.
	v := use.Args[0].Val.(*ir.Var)
	if !v.HasDef() || v.Def.Instr.Op != ir.OpPhi || v.Def.Block != b {
		t.Fatalf("constrained argument should read a bridge phi, reads %s", ir.VarString(v))
	}
}

func TestSplitKeepsSSADominance(t *testing.T) {
	f, _ := buildConstrainedUse(t)
	SplitLiveRanges(f)
	liveness.ComputeDefUse(f)

	for _, v := range f.Vars() {
		if !v.HasDef() {
			continue
		}
		for _, u := range v.Uses {
			if u.Instr.Op == ir.OpPhi {
				continue
			}
			if !dom.DominatesInstr(v.Def.Instr, u.Instr) {
				t.Fatalf("use of %s is not dominated by its def after splitting", ir.VarString(v))
			}
		}
	}
}

func TestInsertCopiesDecouplesAliasedArgs(t *testing.T) {
	f := ir.NewFunction("alias")
	f.Append(ir.NewLabel())

	a := f.NewSSAReg(ir.TypeInt64)
	def := ir.NewInstr(ir.OpAssign)
	def.Sub = ir.AssignMove
	def.AddResult(a)
	def.AddArg(f.Const(ir.TypeInt64, 7))
	f.Append(def)

	use := ir.NewInstr(ir.OpCall)
	use.Symbol = "f"
	use.Args = []ir.ArgSlot{
		{Val: a, Constraint: 7},
		{Val: a, Constraint: 6},
	}
	f.Append(use)

	f.Append(ir.NewInstr(ir.OpSetResults))

	cfg.Build(f)
	dom.Compute(f)
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		for _, res := range i.Results {
			res.Var.SetDef(i, i.Block())
		}
	}
	liveness.ComputeDefUse(f)
	liveness.Compute(f)

	InsertCopies(f)

	v0 := use.Args[0].Val.(*ir.Var)
	v1 := use.Args[1].Val.(*ir.Var)
	if v0 == v1 {
		t.Fatalf("two differently-constrained slots still share one var")
	}
	cp := use.Prev()
	if cp.Op != ir.OpAssign || cp.Sub != ir.AssignMove {
		t.Fatalf("expected a copy right before the constrained call, found %s", cp.Op)
	}
}

func TestInsertCopiesMaterializesConstrainedConsts(t *testing.T) {
	f := ir.NewFunction("constarg")
	f.Append(ir.NewLabel())

	use := ir.NewInstr(ir.OpCall)
	use.Symbol = "g"
	use.Args = []ir.ArgSlot{{Val: f.Const(ir.TypeInt64, 9), Constraint: 7}}
	f.Append(use)
	f.Append(ir.NewInstr(ir.OpSetResults))

	cfg.Build(f)
	dom.Compute(f)
	liveness.ComputeDefUse(f)
	liveness.Compute(f)

	InsertCopies(f)

	if _, stillConst := use.Args[0].Val.(*ir.Const); stillConst {
		t.Fatalf("a constant bound for a fixed register must be copied into a var first")
	}
}
