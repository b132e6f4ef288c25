// Package dom computes the dominator tree, dominance frontiers, and
// O(1) dominance queries over a CFG already built by package cfg
// (spec.md §4.2). The algorithm is Cooper-Harvey-Kennedy iterative
// immediate-dominator computation over post-order, studied from the
// shape of the reference SSA construction in the retrieval pack's
// aclements-go-misc obj/internal/ssa package (an unrelated module's
// internal package, read for algorithm structure only — nothing here
// is copied, since that package can't be imported anyway).
package dom

import "github.com/nc-labs/ssabe/ir"

// Compute fills in IDom, DomChildren, DomFrontier, and the pre/post
// dom-tree discovery intervals for every block reachable from the
// entry. f.PostOrder must already be populated (cfg.Build/cfg.Rebuild).
func Compute(f *ir.Function) {
	if f.Entry == nil {
		return
	}
	computeIdom(f)
	buildDomChildren(f)
	computeFrontier(f)
	assignIntervals(f)
}

// computeIdom is the CHK fixed-point loop: idom[entry] = entry, then
// repeatedly recompute each other block's idom as the intersection of
// its processed predecessors' idoms, in reverse-postorder, until
// nothing changes.
func computeIdom(f *ir.Function) {
	po := f.PostOrder
	entry := f.Entry
	idom := make([]*ir.Block, len(po))
	idom[entry.PostOrderNum] = entry

	changed := true
	for changed {
		changed = false
		// Reverse postorder: decreasing PostOrderNum, skipping entry.
		for i := len(po) - 1; i >= 0; i-- {
			b := po[i]
			if b == entry {
				continue
			}
			var newIdom *ir.Block
			for _, p := range b.Preds {
				if idom[p.PostOrderNum] == nil {
					continue // predecessor not yet processed this round
				}
				if newIdom == nil {
					newIdom = p
				} else {
					newIdom = intersect(newIdom, p, idom)
				}
			}
			if idom[b.PostOrderNum] != newIdom {
				idom[b.PostOrderNum] = newIdom
				changed = true
			}
		}
	}

	for _, b := range po {
		b.IDom = idom[b.PostOrderNum]
	}
	entry.IDom = entry
}

// intersect walks two blocks up their (partially-built) idom chains
// until they meet, using post-order numbers as the "higher in the
// tree" ordering: idom always has a strictly larger PostOrderNum than
// its child in a post-order DFS.
func intersect(a, b *ir.Block, idom []*ir.Block) *ir.Block {
	for a != b {
		for a.PostOrderNum < b.PostOrderNum {
			a = idom[a.PostOrderNum]
		}
		for b.PostOrderNum < a.PostOrderNum {
			b = idom[b.PostOrderNum]
		}
	}
	return a
}

// buildDomChildren inverts IDom into each block's DomChildren list.
func buildDomChildren(f *ir.Function) {
	for _, b := range f.PostOrder {
		b.DomChildren = nil
	}
	for _, b := range f.PostOrder {
		if b == f.Entry {
			continue
		}
		b.IDom.DomChildren = append(b.IDom.DomChildren, b)
	}
}

// computeFrontier implements Cooper/Harvey/Kennedy's dominance-frontier
// algorithm: for each join point (>=2 preds), walk each predecessor up
// its idom chain until reaching the join's own idom, adding the join to
// every block walked (spec.md §4.2).
func computeFrontier(f *ir.Function) {
	for _, b := range f.PostOrder {
		b.DomFrontier = map[*ir.Block]struct{}{}
	}
	for _, b := range f.PostOrder {
		if len(b.Preds) < 2 {
			continue
		}
		for _, p := range b.Preds {
			runner := p
			for runner != b.IDom {
				runner.DomFrontier[b] = struct{}{}
				runner = runner.IDom
			}
		}
	}
}

// assignIntervals walks the dominator tree in pre-order, stamping each
// block with a pre/post discovery interval so Dominates(b1, b2) below
// is an O(1) interval-containment check instead of an idom-chain walk.
func assignIntervals(f *ir.Function) {
	counter := 0
	var visit func(b *ir.Block)
	visit = func(b *ir.Block) {
		counter++
		b.PreNum = counter
		for _, c := range b.DomChildren {
			visit(c)
		}
		counter++
		b.PostNum = counter
	}
	visit(f.Entry)
}

// Dominates reports whether b1 dominates b2 (every path from entry to
// b2 passes through b1), including b1 == b2.
func Dominates(b1, b2 *ir.Block) bool {
	return b1.PreNum <= b2.PreNum && b2.PostNum <= b1.PostNum
}

// DominatesInstr reports whether instr1 dominates instr2: same-block
// instructions compare stream order; otherwise it reduces to block
// dominance (spec.md §4.2).
func DominatesInstr(i1, i2 *ir.Instr) bool {
	b1, b2 := i1.Block(), i2.Block()
	if b1 == b2 {
		if i1 == i2 {
			return true
		}
		for cur := i1; cur != nil; cur = cur.Next() {
			if cur == i2 {
				return true
			}
			if cur.Block() != b1 {
				break
			}
		}
		return false
	}
	return Dominates(b1, b2)
}
