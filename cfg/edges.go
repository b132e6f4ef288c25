package cfg

import "github.com/nc-labs/ssabe/ir"

// wireEdges links each block to its successors: a Jump's resolved
// targets, or — for a block that falls off the end without a Jump —
// the next block in program order (spec.md §4.1 step 2).
func (b *builder) wireEdges() {
	f := b.f
	for idx, blk := range f.Blocks {
		last := blk.Last()
		switch last.Op {
		case ir.OpGoto:
			tgt := b.labelToBlock[last.LabelRefs[0]]
			last.Targets = []*ir.Block{tgt}
			ir.AddEdge(blk, tgt)
		case ir.OpBranch:
			taken := b.labelToBlock[last.LabelRefs[0]]
			notTaken := b.labelToBlock[last.LabelRefs[1]]
			last.Targets = []*ir.Block{taken, notTaken}
			ir.AddEdge(blk, taken)
			ir.AddEdge(blk, notTaken)
		default:
			if idx+1 < len(f.Blocks) {
				ir.AddEdge(blk, f.Blocks[idx+1])
			}
		}
	}
}
