package spill

import (
	"testing"

	"github.com/nc-labs/ssabe/cfg"
	"github.com/nc-labs/ssabe/dom"
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/liveness"
)

// pressure builds a straight-line function defining n int64 values up
// front and then summing them pairwise, so all n are live at once.
func pressure(f *ir.Function, n int) {
	f.Append(ir.NewLabel())

	vals := make([]*ir.Var, n)
	for i := range vals {
		v := f.NewSSAReg(ir.TypeInt64)
		def := ir.NewInstr(ir.OpAssign)
		def.Sub = ir.AssignMove
		def.AddResult(v)
		def.AddArg(f.Const(ir.TypeInt64, uint64(i)))
		f.Append(def)
		vals[i] = v
	}

	sum := vals[0]
	for _, v := range vals[1:] {
		r := f.NewSSAReg(ir.TypeInt64)
		add := ir.NewInstr(ir.OpAssign)
		add.Sub = ir.AssignAdd
		add.AddResult(r)
		add.AddArg(sum)
		add.AddArg(v)
		f.Append(add)
		sum = r
	}

	ret := ir.NewInstr(ir.OpSetResults)
	ret.AddArg(sum)
	f.Append(ret)
}

func prepare(t *testing.T, build func(*ir.Function)) *ir.Function {
	t.Helper()
	f := ir.NewFunction("test")
	build(f)
	cfg.Build(f)
	dom.Compute(f)
	setDefs(f)
	liveness.ComputeDefUse(f)
	liveness.Compute(f)
	return f
}

// setDefs records each result's defining site, which the front-end
// helpers above skipped (ssabuild normally does this during renaming;
// these functions are already in SSA form).
func setDefs(f *ir.Function) {
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		for _, r := range i.Results {
			if !r.Var.HasDef() {
				r.Var.SetDef(i, i.Block())
			}
		}
	}
}

func TestSpillUnderPressure(t *testing.T) {
	const n, k = 10, 4
	f := prepare(t, func(f *ir.Function) { pressure(f, n) })

	New(k, ir.RClass).Run(f)

	liveness.ComputeDefUse(f)
	liveness.Compute(f)

	spills, reloads := 0, 0
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		switch i.Op {
		case ir.OpSpill:
			spills++
		case ir.OpReload:
			reloads++
		}
	}
	if spills < n-k {
		t.Fatalf("expected at least %d spills, got %d", n-k, spills)
	}
	if reloads < n-k {
		t.Fatalf("expected at least %d reloads, got %d", n-k, reloads)
	}

	// Register pressure must now fit the reservoir at every point.
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		live := 0
		for v := range i.LiveIn {
			if !v.IsSpilled && !v.IsMem && ir.ClassOf(v.Typ) == ir.RClass {
				live++
			}
		}
		if live > k {
			t.Fatalf("%d R-class values live at once, reservoir is %d", live, k)
		}
	}
}

func TestReloadDominatedBySpill(t *testing.T) {
	f := prepare(t, func(f *ir.Function) { pressure(f, 8) })
	New(3, ir.RClass).Run(f)

	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		if i.Op != ir.OpReload {
			continue
		}
		mv, ok := i.Args[0].Val.(*ir.Var)
		if !ok || !mv.IsSpilled {
			t.Fatalf("reload argument should be a spilled var, got %v", i.Args[0].Val)
		}
		if !mv.HasDef() {
			t.Fatalf("spilled var %s has no defining Spill", ir.VarString(mv))
		}
		def := mv.Def.Instr
		if def.Op != ir.OpSpill && def.Op != ir.OpPhi {
			t.Fatalf("spilled var %s defined by %s, want spill or phi-spill", ir.VarString(mv), def.Op)
		}
		if !dom.DominatesInstr(def, i) {
			t.Fatalf("reload of %s is not dominated by its spill", ir.VarString(mv))
		}
	}
}
