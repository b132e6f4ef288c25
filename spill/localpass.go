package spill

import (
	"sort"

	"github.com/nc-labs/ssabe/ir"
)

// localPass runs the per-block Belady walk (spec.md §4.7): seed the
// register residency set from live-in values and phi results, keep only
// the K with the nearest next use, then walk the ordinary instructions
// reloading arguments that fell out of registers and evicting the
// furthest-used value whenever results would push residency past K.
func (s *Spiller) localPass(f *ir.Function, b *ir.Block, sm spillMap) *blockResult {
	res := &blockResult{inRegs: map[*ir.Var]bool{}, outRegs: map[*ir.Var]bool{}}

	start := b.FirstOrdinary
	if start == nil {
		start = b.Last()
	}

	var candidates []*ir.Var
	for v := range b.LiveIn {
		if s.inClass(v) && !v.IsSpilled {
			candidates = append(candidates, v)
		}
	}
	for _, phi := range b.Phis() {
		r := phi.Results[0].Var
		if s.inClass(r) && !r.IsSpilled {
			candidates = append(candidates, r)
		}
	}
	dist := map[*ir.Var]int{}
	for _, v := range candidates {
		dist[v] = s.distance(start, v)
	}
	sort.Slice(candidates, func(i, j int) bool {
		if dist[candidates[i]] != dist[candidates[j]] {
			return dist[candidates[i]] < dist[candidates[j]]
		}
		return candidates[i].Number < candidates[j].Number
	})

	cur := map[*ir.Var]bool{}
	for i, v := range candidates {
		if i >= s.K {
			break
		}
		if dist[v] >= infinity {
			break // no next use at all: not worth a register
		}
		cur[v] = true
	}
	res.inRegs = cloneSet(cur)

	if b.FirstOrdinary == nil {
		res.outRegs = cloneSet(cur)
		return res
	}

	last := b.Last()
	for instr := b.FirstOrdinary; ; instr = instr.Next() {
		// Arguments that fell out of registers get a Reload right
		// before this instruction.
		for _, a := range instr.Args {
			v, ok := a.Val.(*ir.Var)
			if !ok || !s.inClass(v) || v.IsSpilled || cur[v] {
				continue
			}
			s.reloadBefore(f, b, instr, v, sm)
			cur[v] = true
			s.evictOver(b, instr, cur, s.K)
		}

		// Make room for this instruction's results.
		nresults := 0
		for _, r := range instr.Results {
			if s.inClass(r.Var) && !r.Var.IsSpilled {
				nresults++
			}
		}
		s.evictOver(b, instr, cur, s.K-nresults)
		for _, r := range instr.Results {
			if s.inClass(r.Var) && !r.Var.IsSpilled {
				cur[r.Var] = true
			}
		}

		// Values dead past this instruction free their register.
		for v := range cur {
			if _, live := instr.LiveOut[v]; !live {
				delete(cur, v)
			}
		}

		if instr == last {
			break
		}
	}

	res.outRegs = cloneSet(cur)
	return res
}

// evictOver shrinks cur to at most limit entries by discarding the
// values whose next use is furthest away, never touching at's own
// arguments (they are needed right now). Eviction only removes the
// value from the residency set: the dominating Spill is emitted lazily
// by spillSlotFor the first time a Reload actually needs the slot, so a
// value that is never used again costs nothing (spec.md §4.7's
// spill-suppression rule, achieved by construction).
func (s *Spiller) evictOver(b *ir.Block, at *ir.Instr, cur map[*ir.Var]bool, limit int) {
	if limit < 0 {
		limit = 0
	}
	for len(cur) > limit {
		var victim *ir.Var
		victimDist := -1
		for v := range cur {
			if usesVar(at, v) {
				continue
			}
			d := s.distance(at, v)
			if d > victimDist || (d == victimDist && victim != nil && v.Number < victim.Number) {
				victim, victimDist = v, d
			}
		}
		if victim == nil {
			return // everything left is an argument of at
		}
		delete(cur, victim)
	}
}

// reloadBefore loads v's spilled value into a fresh register Var right
// before instr. The fresh def is recorded so Run can repair SSA once
// the whole pass is done.
func (s *Spiller) reloadBefore(f *ir.Function, b *ir.Block, instr *ir.Instr, v *ir.Var, sm spillMap) *ir.Var {
	mv := s.spillSlotFor(f, v, sm)
	nv := f.NewSSAReg(v.Typ)
	rl := ir.NewInstr(ir.OpReload)
	rl.AddResult(nv)
	rl.AddArg(mv)
	mv.AddUse(rl, b)
	nv.SetDef(rl, b)
	f.InsertBefore(rl, instr)
	rl.SetBlockForCFG(b)
	if b.FirstOrdinary == instr {
		b.FirstOrdinary = rl
	}
	s.reloads[v] = append(s.reloads[v], nv)
	return nv
}
