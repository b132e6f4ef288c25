package dom

import "github.com/nc-labs/ssabe/ir"

// IDF computes the iterated dominance frontier of an arbitrary set of
// blocks by worklist (spec.md §4.3): seed the worklist with the set,
// repeatedly pop a block and add every block in its frontier to the
// result (if new) and to the worklist. This terminates because the
// result set only grows and the CFG is finite.
func IDF(seed []*ir.Block) map[*ir.Block]struct{} {
	result := map[*ir.Block]struct{}{}
	worklist := append([]*ir.Block(nil), seed...)

	for len(worklist) > 0 {
		b := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		for f := range b.DomFrontier {
			if _, already := result[f]; already {
				continue
			}
			result[f] = struct{}{}
			worklist = append(worklist, f)
		}
	}
	return result
}
