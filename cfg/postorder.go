package cfg

import "github.com/nc-labs/ssabe/ir"

// computePostOrder walks successors from the entry and records a
// post-order array, with each reachable block's PostOrderNum set to
// its index (spec.md §4.1 step 4; consumed by package dom).
func computePostOrder(f *ir.Function) {
	f.PostOrder = f.PostOrder[:0]
	if f.Entry == nil {
		return
	}
	visited := make(map[*ir.Block]bool, len(f.Blocks))
	var visit func(*ir.Block)
	visit = func(b *ir.Block) {
		if visited[b] {
			return
		}
		visited[b] = true
		for _, s := range b.Succs {
			visit(s)
		}
		b.PostOrderNum = len(f.PostOrder)
		f.PostOrder = append(f.PostOrder, b)
	}
	visit(f.Entry)
}
