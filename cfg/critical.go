package cfg

import "github.com/nc-labs/ssabe/ir"

// splitCriticalEdges inserts a block on every edge from a multi-successor
// block to a multi-predecessor block (spec.md §4.1 step 3, §3.4's "no
// critical edges" invariant). Self-loops are handled by the same
// splitEdge call: nothing here special-cases p == to.
func (b *builder) splitCriticalEdges() {
	type edge struct{ p, to *ir.Block }
	var criticals []edge
	for _, blk := range b.f.Blocks {
		if len(blk.Succs) <= 1 {
			continue
		}
		for _, s := range blk.Succs {
			if len(s.Preds) > 1 {
				criticals = append(criticals, edge{blk, s})
			}
		}
	}
	for _, e := range criticals {
		b.splitEdge(e.p, e.to)
	}
}

// splitEdge interposes a new block m on edge p -> to: p -> m -> to. m
// contains only a Label and an explicit Goto to `to` (spec.md §4.1:
// "if the newly interposed edge m->b falls through only via a label
// that used to be b's, insert a Goto so that control flow is
// explicit" — this implementation always emits the Goto, which is
// always correct and never relies on incidental stream adjacency).
func (b *builder) splitEdge(p, to *ir.Block) {
	f := b.f
	m := f.NewBlock()
	lbl := ir.NewLabel()
	m.Label = lbl
	lbl.SetBlockForCFG(m)

	gotoInstr := ir.NewGoto(to.Label)
	gotoInstr.Targets = []*ir.Block{to}
	gotoInstr.SetBlockForCFG(m)
	m.FirstOrdinary = gotoInstr

	f.InsertBefore(lbl, to.Label)
	f.InsertBefore(gotoInstr, to.Label)

	ir.RemoveEdge(p, to)
	ir.AddEdge(p, m)
	ir.AddEdge(m, to)

	last := p.Last()
	for i, t := range last.Targets {
		if t == to {
			last.Targets[i] = m
			last.LabelRefs[i] = lbl
		}
	}
	b.labelToBlock[lbl] = m
}
