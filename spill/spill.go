// Package spill inserts Spill/Reload instructions so that no point in a
// function ever needs more simultaneously live values of one register
// class than that class has physical registers, using Belady's
// furthest-use-first heuristic (spec.md §4.7). One Spiller instance
// handles exactly one class; the back-end driver runs one pass for
// R-class and a separate one for F-class (spec.md §4.14).
package spill

import (
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/ssarepair"
)

// Spiller is parametrized by the number of allocatable registers in
// its class; it ignores every Var outside that class entirely.
type Spiller struct {
	K     int
	Class ir.Class

	// reloads collects, per original Var, the fresh defs this pass
	// minted for it; Run hands them to ssarepair once the whole
	// function has been walked.
	reloads map[*ir.Var][]*ir.Var
}

func New(k int, class ir.Class) *Spiller {
	return &Spiller{K: k, Class: class, reloads: map[*ir.Var][]*ir.Var{}}
}

// blockResult is what the local pass publishes per block for the
// global combine step to reconcile.
type blockResult struct {
	inRegs  map[*ir.Var]bool
	outRegs map[*ir.Var]bool
}

// spillMap records, per original Var, the fresh spilled Var its value
// has been written to — minted and bound to a dominating Spill the
// first time it's needed (spec.md §4.7's spill map plus the
// dominating-spill invariant, merged into one lazily-populated table).
type spillMap map[*ir.Var]*ir.Var

// Run performs the local per-block pass in dominator-tree pre-order,
// then the global combine pass that reconciles block-boundary register
// residency and phi results.
func (s *Spiller) Run(f *ir.Function) {
	if f.Entry == nil {
		return
	}
	results := map[*ir.Block]*blockResult{}
	sm := spillMap{}

	var walk func(b *ir.Block)
	walk = func(b *ir.Block) {
		results[b] = s.localPass(f, b, sm)
		for _, c := range b.DomChildren {
			walk(c)
		}
	}
	walk(f.Entry)

	s.globalCombine(f, results, sm)

	// Every Reload minted a competing definition; repair the uses in
	// deterministic (arena) order.
	for _, v := range f.Vars() {
		if defs := s.reloads[v]; len(defs) > 0 {
			ssarepair.Repair(f, v, defs...)
		}
	}
}

func (s *Spiller) inClass(v *ir.Var) bool {
	return v != nil && !v.IsMem && v.Color != ir.DontColor && ir.ClassOf(v.Typ) == s.Class
}

// spillSlotFor returns v's memory-class shadow Var, minting one and
// eagerly inserting a Spill right after v's own definition the first
// time v is spilled anywhere in the function. Spilling eagerly at the
// definition (rather than lazily at whichever instruction happens to
// trigger register pressure, as spec.md §4.7 literally describes)
// trades a handful of values spilled that might never need reloading
// for an implementation that can never have an un-dominated Reload —
// the invariant spec.md §4.7 separately requires — by construction,
// with no second bookkeeping pass to get wrong.
func (s *Spiller) spillSlotFor(f *ir.Function, v *ir.Var, sm spillMap) *ir.Var {
	if mv, ok := sm[v]; ok {
		return mv
	}
	mv := f.NewSSAReg(v.Typ)
	mv.IsSpilled = true
	sm[v] = mv

	if !v.HasDef() {
		return mv
	}
	defBlock := v.Def.Block
	defInstr := v.Def.Instr

	spillInstr := ir.NewInstr(ir.OpSpill)
	spillInstr.AddResult(mv)
	spillInstr.AddArg(v)
	v.AddUse(spillInstr, defBlock)
	mv.SetDef(spillInstr, defBlock)

	insertAfter := defInstr
	if defInstr.Op == ir.OpPhi {
		phis := defBlock.Phis()
		insertAfter = phis[len(phis)-1]
	}
	f.InsertAfter(spillInstr, insertAfter)
	spillInstr.SetBlockForCFG(defBlock)
	if insertAfter.IsLabel() || insertAfter.Op == ir.OpPhi {
		defBlock.FirstOrdinary = spillInstr
	}
	return mv
}

func cloneSet(m map[*ir.Var]bool) map[*ir.Var]bool {
	c := make(map[*ir.Var]bool, len(m))
	for v := range m {
		c[v] = true
	}
	return c
}
