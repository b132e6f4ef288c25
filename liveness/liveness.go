package liveness

import "github.com/nc-labs/ssabe/ir"

// Compute runs the backward liveness dataflow described in spec.md
// §4.5 from scratch: for every var, for every recorded use, walk
// backward from that use until the set memoization shows there is
// nothing left to propagate. ComputeDefUse must have been run first (or
// be current) so each Var's Uses list reflects the present IR.
func Compute(f *ir.Function) {
	Reset(f)
	for _, v := range f.Vars() {
		for _, u := range v.Uses {
			if u.Instr.Op == ir.OpPhi {
				// Phi arguments are live only along the single
				// recorded source-block edge, not through the phi's
				// own block (spec.md §4.5) — so propagation starts at
				// the end of that predecessor, not at the phi itself.
				liveOutAtBlock(u.Block, v)
			} else {
				liveInAtInstr(u.Instr, v)
			}
		}
	}
}

// Reset clears every block's and instruction's liveness sets so a pass
// can recompute from scratch (spec.md §4.5's "incremental reset").
func Reset(f *ir.Function) {
	for _, b := range f.Blocks {
		b.ResetLiveness()
		for i := b.Label; i != nil; i = i.Next() {
			i.ResetLiveness()
			if i == b.Last() {
				break
			}
		}
	}
}

func liveInAtInstr(i *ir.Instr, v *ir.Var) {
	if _, ok := i.LiveIn[v]; ok {
		return
	}
	if i.LiveIn == nil {
		i.LiveIn = map[*ir.Var]struct{}{}
	}
	i.LiveIn[v] = struct{}{}

	b := i.Block()
	if i == b.Label {
		if b.LiveIn == nil {
			b.LiveIn = map[*ir.Var]struct{}{}
		}
		b.LiveIn[v] = struct{}{}
		for _, p := range b.Preds {
			liveOutAtBlock(p, v)
		}
		return
	}
	liveOutAtInstr(i.Prev(), v)
}

func liveOutAtInstr(i *ir.Instr, v *ir.Var) {
	if _, ok := i.LiveOut[v]; ok {
		return
	}
	if i.LiveOut == nil {
		i.LiveOut = map[*ir.Var]struct{}{}
	}
	i.LiveOut[v] = struct{}{}

	if i.DefinesVar(v) {
		return
	}
	liveInAtInstr(i, v)
}

func liveOutAtBlock(b *ir.Block, v *ir.Var) {
	if _, ok := b.LiveOut[v]; ok {
		return
	}
	if b.LiveOut == nil {
		b.LiveOut = map[*ir.Var]struct{}{}
	}
	b.LiveOut[v] = struct{}{}
	liveOutAtInstr(b.Last(), v)
}
