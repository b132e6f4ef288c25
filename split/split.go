// Package split prepares register-constrained instructions for coloring
// (spec.md §4.8): every constrained instruction ends up as the first
// ordinary instruction of its block with a phi (one argument per
// predecessor) bridging each value live across the split, so the coloring pass can satisfy
// the constraints by coloring the bridge phis, and copy insertion
// breaks the operand aliasing patterns no coloring could satisfy.
package split

import (
	"github.com/nc-labs/ssabe/cfg"
	"github.com/nc-labs/ssabe/dom"
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/liveness"
	"github.com/nc-labs/ssabe/ssarepair"
)

// Constrained reports whether instr declares any per-operand register
// constraint.
func Constrained(instr *ir.Instr) bool {
	for _, r := range instr.Results {
		if r.Constraint != ir.NoConstraint {
			return true
		}
	}
	for _, a := range instr.Args {
		if a.Constraint != ir.NoConstraint {
			return true
		}
	}
	return false
}

// SplitLiveRanges splits, for every constrained instruction I, I's
// block so that I is its first ordinary instruction, then inserts one
// phi per value live into I so the value's range is cut at the block
// boundary. Liveness must be current on entry. Post-order and the
// dominator tree are recomputed before return; liveness and use lists
// are stale on return (the driver recomputes them).
func SplitLiveRanges(f *ir.Function) {
	var worklist []*ir.Instr
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		if i.Op != ir.OpPhi && i.Op != ir.OpLabel && Constrained(i) {
			worklist = append(worklist, i)
		}
	}

	for _, instr := range worklist {
		if instr.Op == ir.OpSetParams {
			continue // entry projection: defs only, nothing lives into it
		}
		b := instr.Block()
		if instr != b.FirstOrdinary {
			_, b = cfg.SplitBlockBefore(f, instr)
			cfg.Rebuild(f)
			dom.Compute(f)
		}
		// The previous iteration's repair leaves both liveness and use
		// lists stale, and bridgeLiveIns needs an exact live-in set at
		// instr, so recompute before every bridge.
		liveness.ComputeDefUse(f)
		liveness.Compute(f)
		bridgeLiveIns(f, b, instr)
	}
	cfg.Rebuild(f)
	dom.Compute(f)
}

// bridgeLiveIns inserts, for each register value live into instr that
// is not already defined by one of b's phis, a phi with one argument
// per predecessor, all reading the original value, then repairs SSA so
// instr (and everything below) reads the phi instead. Reports whether
// any phi was inserted.
func bridgeLiveIns(f *ir.Function, b *ir.Block, instr *ir.Instr) bool {
	if len(b.Preds) == 0 {
		return false
	}

	already := map[*ir.Var]bool{}
	for _, phi := range b.Phis() {
		already[phi.Results[0].Var] = true
	}

	live := liveInVars(instr)
	inserted := false
	for _, v := range live {
		if already[v] {
			continue
		}
		nv := f.NewSSAReg(v.Typ)
		nv.IsSpilled = v.IsSpilled
		phi := ir.NewInstr(ir.OpPhi)
		phi.AddResult(nv)
		phi.Args = make([]ir.ArgSlot, len(b.Preds))
		for i, p := range b.Preds {
			phi.Args[i] = ir.ArgSlot{Val: v, Constraint: ir.NoConstraint, SourceBlock: p}
			v.AddUse(phi, p)
		}
		insertPhi(f, b, phi)
		nv.SetDef(phi, b)
		ssarepair.Repair(f, v, nv)
		inserted = true
	}
	return inserted
}

// liveInVars returns the register Vars live into instr in a
// deterministic order.
func liveInVars(instr *ir.Instr) []*ir.Var {
	var live []*ir.Var
	for v := range instr.LiveIn {
		if v.IsMem || v.IsSpilled || v.Color == ir.DontColor {
			continue
		}
		live = append(live, v)
	}
	for i := 1; i < len(live); i++ {
		for j := i; j > 0 && live[j].Number < live[j-1].Number; j-- {
			live[j], live[j-1] = live[j-1], live[j]
		}
	}
	return live
}

func insertPhi(f *ir.Function, b *ir.Block, phi *ir.Instr) {
	if phis := b.Phis(); len(phis) > 0 {
		f.InsertAfter(phi, phis[len(phis)-1])
	} else {
		f.InsertAfter(phi, b.Label)
		b.FirstPhi = phi
	}
	phi.SetBlockForCFG(b)
}

// InsertCopies linearizes the operand-aliasing patterns of constrained
// instructions (spec.md §4.8's copy insertion): constants bound for a
// fixed register are materialized into a temporary, two argument slots
// naming the same value under different constraints are decoupled, and
// an argument that both lives through the instruction and shares its
// constraint with a result is copied so the result can clobber the
// register. Liveness must be current on entry.
func InsertCopies(f *ir.Function) {
	for instr := f.Instrs.Front(); instr != nil; instr = instr.Next() {
		if instr.Op == ir.OpPhi || instr.Op == ir.OpLabel || !Constrained(instr) {
			continue
		}
		copyConstrainedConsts(f, instr)
		decoupleAliasedArgs(f, instr)
		copyLiveThroughConflicts(f, instr)
	}
}

func copyConstrainedConsts(f *ir.Function, instr *ir.Instr) {
	for i := range instr.Args {
		c, ok := instr.Args[i].Val.(*ir.Const)
		if !ok || instr.Args[i].Constraint == ir.NoConstraint {
			continue
		}
		tmp := insertCopyBefore(f, instr, c, c.Typ)
		instr.Args[i].Val = tmp
		tmp.AddUse(instr, instr.Block())
	}
}

func decoupleAliasedArgs(f *ir.Function, instr *ir.Instr) {
	for i := range instr.Args {
		vi, ok := instr.Args[i].Val.(*ir.Var)
		if !ok {
			continue
		}
		for j := i + 1; j < len(instr.Args); j++ {
			if instr.Args[j].Val != ir.Operand(vi) {
				continue
			}
			if instr.Args[j].Constraint == instr.Args[i].Constraint {
				continue
			}
			tmp := insertCopyBefore(f, instr, vi, vi.Typ)
			instr.Args[j].Val = tmp
			vi.RemoveUse(instr)
			tmp.AddUse(instr, instr.Block())
		}
	}
}

func copyLiveThroughConflicts(f *ir.Function, instr *ir.Instr) {
	for i := range instr.Args {
		v, ok := instr.Args[i].Val.(*ir.Var)
		if !ok || instr.Args[i].Constraint == ir.NoConstraint {
			continue
		}
		if _, liveThrough := instr.LiveOut[v]; !liveThrough {
			continue
		}
		for _, r := range instr.Results {
			if r.Constraint != instr.Args[i].Constraint {
				continue
			}
			tmp := insertCopyBefore(f, instr, v, v.Typ)
			instr.Args[i].Val = tmp
			v.RemoveUse(instr)
			tmp.AddUse(instr, instr.Block())
			break
		}
	}
}

// insertCopyBefore splices `tmp = mov src` right before instr and
// returns tmp.
func insertCopyBefore(f *ir.Function, instr *ir.Instr, src ir.Operand, typ ir.Type) *ir.Var {
	b := instr.Block()
	tmp := f.NewSSAReg(typ)
	cp := ir.NewInstr(ir.OpAssign)
	cp.Sub = ir.AssignMove
	cp.AddResult(tmp)
	cp.AddArg(src)
	if v, ok := src.(*ir.Var); ok {
		v.AddUse(cp, b)
	}
	tmp.SetDef(cp, b)
	f.InsertBefore(cp, instr)
	cp.SetBlockForCFG(b)
	if b.FirstOrdinary == instr {
		b.FirstOrdinary = cp
	}
	return tmp
}
