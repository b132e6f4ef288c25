package cfg

import (
	"github.com/nc-labs/ssabe/diag"
	"github.com/nc-labs/ssabe/ir"
)

// SplitBlockBefore splits instr's owning block into two: top keeps
// everything up to (not including) instr, bottom starts at instr and
// keeps the original block's Jump and successors. top is given a fresh
// explicit Goto to bottom. Used by package split (spec.md §4.8) when a
// register-constrained instruction is not already the first ordinary
// instruction of its block.
//
// Callers that go on to insert single-argument phis at the top of
// bottom (as split.go does, to preserve live-in values across the new
// edge) should do so after this returns; SplitBlockBefore only performs
// the mechanical CFG surgery. Callers must follow up with cfg.Rebuild
// once all splits for a pass are done, since PostOrder is now stale.
func SplitBlockBefore(f *ir.Function, instr *ir.Instr) (top, bottom *ir.Block) {
	top = instr.Block()
	diag.Assertf(instr != top.Label, "cfg: cannot split a block at its own Label")
	diag.Assertf(instr.Op != ir.OpPhi, "cfg: cannot split a block at a Phi")

	origLast := top.Last()

	lbl := ir.NewLabel()
	f.InsertBefore(lbl, instr)

	bottom = f.NewBlock()
	bottom.Label = lbl
	lbl.SetBlockForCFG(bottom)
	bottom.FirstOrdinary = instr

	for cur := instr; ; {
		cur.SetBlockForCFG(bottom)
		if cur == origLast {
			break
		}
		cur = cur.Next()
	}

	bottom.Succs = top.Succs
	for _, s := range bottom.Succs {
		for i, p := range s.Preds {
			if p == top {
				s.Preds[i] = bottom
			}
		}
	}
	top.Succs = nil

	gotoInstr := ir.NewGoto(lbl)
	gotoInstr.Targets = []*ir.Block{bottom}
	f.InsertBefore(gotoInstr, lbl)
	gotoInstr.SetBlockForCFG(top)

	ir.AddEdge(top, bottom)

	return top, bottom
}
