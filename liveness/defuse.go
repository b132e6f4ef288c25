// Package liveness computes def-use chains and backward liveness over
// an SSA function (spec.md §4.5). Both are fully recomputed rather than
// incrementally maintained: every pass that reshapes the instruction
// stream (spill, split) invalidates use lists in ways that
// are easy to get wrong piecemeal, and the back-end driver re-runs this
// package after each such pass anyway (spec.md §4.14), so a cheap full
// recompute is both simpler and more robust than threading careful
// AddUse/RemoveUse bookkeeping through every transform.
package liveness

import "github.com/nc-labs/ssabe/ir"

// ComputeDefUse rebuilds every Var's use list from the current
// instruction stream. A Var's Def is never touched here: SSA gives each
// Var exactly one defining instruction, fixed forever at the point the
// var is minted (ir.Function.NewSSAReg plus a single SetDef call), so
// there is nothing to recompute about it. Phi argument slots are
// attributed to their recorded source block rather than the phi's own
// block (spec.md §4.5), matching how ssabuild and every later pass
// record phi args.
func ComputeDefUse(f *ir.Function) {
	for _, v := range f.Vars() {
		v.Uses = nil
	}
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		for _, a := range i.Args {
			v, ok := a.Val.(*ir.Var)
			if !ok {
				continue
			}
			block := i.Block()
			if a.SourceBlock != nil {
				block = a.SourceBlock
			}
			v.AddUse(i, block)
		}
	}
}
