package spill

import (
	"sort"

	"github.com/nc-labs/ssabe/ir"
)

// globalCombine reconciles register residency across block boundaries
// (spec.md §4.7's global pass, dom-tree pre-order): phi results decide
// between register phis and phi-spills, and every value a block expects
// in a register on entry is reloaded on whichever predecessor edges let
// it fall out.
func (s *Spiller) globalCombine(f *ir.Function, results map[*ir.Block]*blockResult, sm spillMap) {
	var walk func(b *ir.Block)
	walk = func(b *ir.Block) {
		rb := results[b]
		for _, phi := range b.Phis() {
			r := phi.Results[0].Var
			if !s.inClass(r) || r.IsSpilled {
				continue
			}
			if rb.inRegs[r] {
				s.combineRegisterPhi(f, phi, results, sm)
			} else {
				s.phiSpill(f, phi, r, results, sm)
			}
		}
		s.reconcileEntry(f, b, rb, results, sm)
		for _, c := range b.DomChildren {
			walk(c)
		}
	}
	walk(f.Entry)
}

// combineRegisterPhi keeps a phi in registers: every argument must be
// register-resident at the end of its source block, reloading there if
// the local pass let it slip out.
func (s *Spiller) combineRegisterPhi(f *ir.Function, phi *ir.Instr, results map[*ir.Block]*blockResult, sm spillMap) {
	for ai := range phi.Args {
		p := phi.Args[ai].SourceBlock
		v, ok := phi.Args[ai].Val.(*ir.Var)
		if !ok || !s.inClass(v) || v.IsSpilled {
			continue
		}
		if results[p].outRegs[v] {
			continue
		}
		nv := s.reloadAtEnd(f, p, v, sm)
		phi.Args[ai].Val = nv
		v.RemoveUse(phi)
		nv.AddUse(phi, p)
		results[p].outRegs[nv] = true
	}
}

// phiSpill converts a phi whose result did not earn a register into a
// slot-resident phi: the result becomes its own spill slot and every
// argument is replaced by its spilled form, storing at the end of the
// predecessor when the value is still in a register there.
func (s *Spiller) phiSpill(f *ir.Function, phi *ir.Instr, r *ir.Var, results map[*ir.Block]*blockResult, sm spillMap) {
	r.IsSpilled = true
	if shadow, ok := sm[r]; ok && shadow != r {
		// The local pass already minted a shadow slot for r (a Reload
		// inside r's own block forced one). r is now itself the slot,
		// so the shadow's Spill is redundant: retarget the shadow's
		// readers at r and drop the Spill.
		s.dropShadow(f, r, shadow)
	}
	sm[r] = r

	for ai := range phi.Args {
		p := phi.Args[ai].SourceBlock
		v, ok := phi.Args[ai].Val.(*ir.Var)
		if !ok || !s.inClass(v) || v.IsSpilled {
			continue
		}
		var mv *ir.Var
		if results[p].outRegs[v] {
			mv = s.spillAtEnd(f, p, v, sm)
		} else {
			mv = s.spillSlotFor(f, v, sm)
		}
		phi.Args[ai].Val = mv
		v.RemoveUse(phi)
		mv.AddUse(phi, p)
	}
}

// dropShadow replaces every reader of shadow (the Reload arguments the
// local pass created) with r itself and unlinks shadow's defining
// Spill from the stream.
func (s *Spiller) dropShadow(f *ir.Function, r, shadow *ir.Var) {
	uses := append([]ir.UseSite(nil), shadow.Uses...)
	for _, u := range uses {
		for i := range u.Instr.Args {
			if u.Instr.Args[i].Val == ir.Operand(shadow) {
				u.Instr.Args[i].Val = r
				shadow.RemoveUse(u.Instr)
				r.AddUse(u.Instr, u.Block)
			}
		}
	}
	if shadow.HasDef() {
		sp := shadow.Def.Instr
		b := sp.Block()
		if b.FirstOrdinary == sp {
			next := sp.Next()
			if next != nil && next.Block() == b && !next.IsLabel() {
				b.FirstOrdinary = next
			} else {
				b.FirstOrdinary = nil
			}
		}
		for _, a := range sp.Args {
			if v, ok := a.Val.(*ir.Var); ok {
				v.RemoveUse(sp)
			}
		}
		f.Remove(sp)
	}
}

// reconcileEntry reloads, for every non-phi value the block expects in
// a register on entry, on each predecessor edge where the value is not
// register-resident. With a single predecessor the Reload goes at the
// top of the block; otherwise each offending predecessor has a single
// successor (no critical edges) and the Reload goes at its end.
func (s *Spiller) reconcileEntry(f *ir.Function, b *ir.Block, rb *blockResult, results map[*ir.Block]*blockResult, sm spillMap) {
	phiResults := map[*ir.Var]bool{}
	for _, phi := range b.Phis() {
		phiResults[phi.Results[0].Var] = true
	}

	want := make([]*ir.Var, 0, len(rb.inRegs))
	for v := range rb.inRegs {
		if !phiResults[v] {
			want = append(want, v)
		}
	}
	sort.Slice(want, func(i, j int) bool { return want[i].Number < want[j].Number })

	for _, v := range want {
		if len(b.Preds) == 1 {
			p := b.Preds[0]
			if !results[p].outRegs[v] {
				s.reloadAtTop(f, b, v, sm)
			}
			continue
		}
		for _, p := range b.Preds {
			if !results[p].outRegs[v] {
				nv := s.reloadAtEnd(f, p, v, sm)
				results[p].outRegs[nv] = true
			}
		}
	}
}

// reloadAtEnd inserts a Reload of v at the end of p, before its jump.
func (s *Spiller) reloadAtEnd(f *ir.Function, p *ir.Block, v *ir.Var, sm spillMap) *ir.Var {
	mv := s.spillSlotFor(f, v, sm)
	nv := f.NewSSAReg(v.Typ)
	rl := ir.NewInstr(ir.OpReload)
	rl.AddResult(nv)
	rl.AddArg(mv)
	mv.AddUse(rl, p)
	nv.SetDef(rl, p)
	insertAtEnd(f, p, rl)
	s.reloads[v] = append(s.reloads[v], nv)
	return nv
}

// reloadAtTop inserts a Reload of v as the block's first ordinary
// instruction, after any phis.
func (s *Spiller) reloadAtTop(f *ir.Function, b *ir.Block, v *ir.Var, sm spillMap) *ir.Var {
	mv := s.spillSlotFor(f, v, sm)
	nv := f.NewSSAReg(v.Typ)
	rl := ir.NewInstr(ir.OpReload)
	rl.AddResult(nv)
	rl.AddArg(mv)
	mv.AddUse(rl, b)
	nv.SetDef(rl, b)

	after := b.Label
	if phis := b.Phis(); len(phis) > 0 {
		after = phis[len(phis)-1]
	}
	f.InsertAfter(rl, after)
	rl.SetBlockForCFG(b)
	b.FirstOrdinary = rl
	s.reloads[v] = append(s.reloads[v], nv)
	return nv
}

// spillAtEnd stores v (register-resident at the end of p) into its
// slot at the end of p, minting the slot if this is v's first spill.
// When the spill map already holds a slot for v, that slot is returned
// and no second Spill is inserted.
func (s *Spiller) spillAtEnd(f *ir.Function, p *ir.Block, v *ir.Var, sm spillMap) *ir.Var {
	if mv, ok := sm[v]; ok {
		return mv
	}
	mv := f.NewSSAReg(v.Typ)
	mv.IsSpilled = true
	sm[v] = mv

	sp := ir.NewInstr(ir.OpSpill)
	sp.AddResult(mv)
	sp.AddArg(v)
	v.AddUse(sp, p)
	mv.SetDef(sp, p)
	insertAtEnd(f, p, sp)
	return mv
}

// insertAtEnd splices instr at the end of block b: before the closing
// jump if b has one, after the final instruction otherwise.
func insertAtEnd(f *ir.Function, b *ir.Block, instr *ir.Instr) {
	last := b.Last()
	if last.IsJump() {
		f.InsertBefore(instr, last)
		if b.FirstOrdinary == last {
			b.FirstOrdinary = instr
		}
	} else {
		f.InsertAfter(instr, last)
		if b.FirstOrdinary == nil {
			b.FirstOrdinary = instr
		}
	}
	instr.SetBlockForCFG(b)
}
