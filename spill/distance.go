package spill

import "github.com/nc-labs/ssabe/ir"

// infinity stands for "no next use on any path". Large enough that
// adding per-instruction costs can never wrap.
const infinity = 1 << 30

// distance implements the Belady metric (spec.md §4.7): 0 if the
// instruction uses v, infinity if v is not live there, otherwise 1 plus
// the minimum distance over successors — with Label and Phi
// instructions counting as zero-cost edges. Phi argument uses are
// charged when stepping from a predecessor's jump into the target's
// Label, since that is the edge the argument is read on.
func (s *Spiller) distance(from *ir.Instr, v *ir.Var) int {
	return distRec(from, nil, v, map[*ir.Instr]bool{})
}

// distRec carries fromBlock across block boundaries so a Label knows
// which predecessor edge it was entered on (for phi-argument uses).
// inProgress breaks loop recursion: an instruction already on the
// current walk contributes no closer use than the walk itself will
// find, so it reports infinity.
func distRec(i *ir.Instr, fromBlock *ir.Block, v *ir.Var, inProgress map[*ir.Instr]bool) int {
	if i == nil {
		return infinity
	}
	if inProgress[i] {
		return infinity
	}

	if i.IsLabel() && fromBlock != nil {
		for _, phi := range i.Block().Phis() {
			for _, a := range phi.Args {
				if a.Val == ir.Operand(v) && a.SourceBlock == fromBlock {
					return 0
				}
			}
		}
	}
	if i.Op != ir.OpPhi && i.Op != ir.OpLabel && usesVar(i, v) {
		return 0
	}

	// Prune on liveness where the sets exist. Instructions inserted by
	// this very pass have no sets yet; the walk just steps through them.
	if i.LiveIn != nil && i.Op != ir.OpLabel {
		if _, live := i.LiveIn[v]; !live {
			return infinity
		}
	}

	cost := 1
	if i.IsLabel() || i.Op == ir.OpPhi {
		cost = 0
	}

	inProgress[i] = true
	best := infinity
	if i.IsJump() {
		for _, t := range i.Targets {
			if d := distRec(t.Label, i.Block(), v, inProgress); d < best {
				best = d
			}
		}
	} else {
		b := i.Block()
		best = distRec(i.Next(), b, v, inProgress)
	}
	delete(inProgress, i)

	if best >= infinity {
		return infinity
	}
	return cost + best
}

func usesVar(i *ir.Instr, v *ir.Var) bool {
	for _, a := range i.Args {
		if a.Val == ir.Operand(v) {
			return true
		}
	}
	return false
}
