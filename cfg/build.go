// Package cfg turns a flat instruction stream into the block graph
// (spec.md §4.1). Grounded on the teacher's emu/sys_channel edge-wiring
// style: explicit adjacency slices, rebuilt per pass rather than
// incrementally patched, so every pass starts from a known-consistent
// graph.
package cfg

import "github.com/nc-labs/ssabe/ir"

// Build partitions f's flat instruction stream into blocks, wires CFG
// edges, splits every critical edge, and computes post-order from the
// entry. It is always the first pass run on a freshly-parsed function
// and is re-run (via Rebuild) whenever a pass inserts new blocks.
func Build(f *ir.Function) {
	b := &builder{f: f, labelToBlock: map[*ir.Instr]*ir.Block{}}
	b.partition()
	b.wireEdges()
	b.splitCriticalEdges()
	computePostOrder(f)
}

// Rebuild recomputes post-order after a pass has spliced in new blocks
// with already-consistent Succs/Preds (SplitBlockBefore leaves this to
// its callers, and split.go's constrained-instruction splitting calls
// this rather than the full Build, since the edges are already wired).
func Rebuild(f *ir.Function) {
	computePostOrder(f)
}

type builder struct {
	f            *ir.Function
	labelToBlock map[*ir.Instr]*ir.Block
}

// partition walks the instruction stream and creates one Block per
// Label, recording FirstPhi/FirstOrdinary as it goes (spec.md §3.4).
func (b *builder) partition() {
	f := b.f
	f.Blocks = f.Blocks[:0]
	var cur *ir.Block

	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		if i.IsLabel() {
			cur = f.NewBlock()
			cur.Label = i
			b.labelToBlock[i] = cur
			i.SetBlockForCFG(cur)
			continue
		}
		i.SetBlockForCFG(cur)
		if i.Op == ir.OpPhi {
			if cur.FirstPhi == nil {
				cur.FirstPhi = i
			}
		} else if cur.FirstOrdinary == nil {
			cur.FirstOrdinary = i
		}
	}
	if len(f.Blocks) > 0 {
		f.Entry = f.Blocks[0]
	}
}
