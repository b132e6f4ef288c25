// Package phi lowers the parallel copies implied by a block's phis
// into an explicit move sequence per predecessor edge (spec.md §4.12).
// Each resource class — general-purpose registers, XMM registers,
// quadword spill slots, octword spill slots — gets its own transfer
// graph on colors; chains are peeled off from the ends and the
// leftover cycles are rotated through a scratch register, borrowing a
// fixed one via the red zone when the class has nothing free.
package phi

import (
	"sort"

	"github.com/nc-labs/ssabe/archx64"
	"github.com/nc-labs/ssabe/diag"
	"github.com/nc-labs/ssabe/ir"
)

// LocKind identifies the storage a Move endpoint names.
type LocKind int

const (
	LocNone LocKind = iota
	LocGPReg
	LocXMMReg
	LocQuadSlot
	LocOctSlot
	LocRedZone // Index is a positive byte offset below RSP
	LocImm     // Lo/Hi carry the bit pattern
)

// Loc is one endpoint of a lowered move.
type Loc struct {
	Kind   LocKind
	Index  int
	Lo, Hi uint64
}

// Move is one step of the lowered sequence. Via, when non-nil, names a
// scratch register the emitter must route the value through (both
// endpoints are memory, or the source is an immediate bound for a
// slot).
type Move struct {
	Type ir.Type
	Src  Loc
	Dst  Loc
	Via  *Loc
}

// Lower computes the move sequence realizing all of s's phis along the
// edge p→s. Coloring and slot coloring must be complete. The sequence
// order matters: register transfers first (general purpose, then XMM),
// slot transfers next, constant materializations last — constants
// write colors nothing in the permutation reads.
func Lower(p, s *ir.Block, arch *archx64.Arch) []Move {
	l := &lowerer{arch: arch, rzNext: 16}
	l.findFree(p, s)

	type transfer struct {
		typ      ir.Type
		src, dst Loc
	}
	perKind := map[LocKind][]transfer{}
	type constLoad struct {
		c   *ir.Const
		dst Loc
		typ ir.Type
	}
	var constLoads []constLoad

	for _, phi := range s.Phis() {
		r := phi.Results[0].Var
		if r.IsMem || r.Color == ir.DontColor || r.Color == ir.NotColored {
			continue
		}
		dst := locOf(r)
		ai := -1
		for i := range phi.Args {
			if phi.Args[i].SourceBlock == p {
				ai = i
				break
			}
		}
		diag.Assertf(ai >= 0, "phi in bb%d has no argument for predecessor bb%d", s.ID, p.ID)

		switch val := phi.Args[ai].Val.(type) {
		case *ir.Undef:
			// An undefined input needs no move.
		case *ir.Const:
			constLoads = append(constLoads, constLoad{c: val, dst: dst, typ: r.Typ})
		case *ir.Var:
			src := locOf(val)
			diag.Assertf(src.Kind == dst.Kind,
				"phi move crosses resource kinds (%d -> %d)", src.Kind, dst.Kind)
			if src.Index == dst.Index {
				continue // coalesced: no move
			}
			perKind[src.Kind] = append(perKind[src.Kind], transfer{typ: r.Typ, src: src, dst: dst})
		}
	}

	for _, kind := range []LocKind{LocGPReg, LocXMMReg, LocQuadSlot, LocOctSlot} {
		transfers := perKind[kind]
		if len(transfers) == 0 {
			continue
		}
		srcOf := map[int]Loc{}
		typOf := map[int]ir.Type{}
		outDeg := map[int]int{}
		for _, t := range transfers {
			diag.Assertf(srcOf[t.dst.Index].Kind == LocNone,
				"two phi moves write the same color %d", t.dst.Index)
			srcOf[t.dst.Index] = t.src
			typOf[t.dst.Index] = t.typ
			outDeg[t.src.Index]++
		}
		l.lowerKind(kind, srcOf, typOf, outDeg)
	}

	for _, cl := range constLoads {
		l.emitConst(cl.c, cl.dst, cl.typ)
	}
	return l.moves
}

type lowerer struct {
	arch    *archx64.Arch
	moves   []Move
	rzNext  int
	freeGP  []int
	freeXMM []int
}

// findFree computes scratch candidates at the edge: registers neither
// live out of p nor touched by s's phis. Anything on these lists can
// be clobbered without a save.
func (l *lowerer) findFree(p, s *ir.Block) {
	usedGP := map[int]bool{}
	usedXMM := map[int]bool{}
	note := func(v *ir.Var) {
		if v == nil || v.IsMem || v.IsSpilled || v.Color < 0 {
			return
		}
		if ir.ClassOf(v.Typ) == ir.FClass {
			usedXMM[v.Color] = true
		} else {
			usedGP[v.Color] = true
		}
	}
	for v := range p.LiveOut {
		note(v)
	}
	for _, phi := range s.Phis() {
		note(phi.Results[0].Var)
		for i := range phi.Args {
			if v, ok := phi.Args[i].Val.(*ir.Var); ok {
				note(v)
			}
		}
	}
	for _, c := range l.arch.Reservoir(ir.RClass) {
		if !usedGP[c] {
			l.freeGP = append(l.freeGP, c)
		}
	}
	for _, c := range l.arch.Reservoir(ir.FClass) {
		if !usedXMM[c] {
			l.freeXMM = append(l.freeXMM, c)
		}
	}
}

func locOf(v *ir.Var) Loc {
	if v.IsSpilled {
		if archx64.PlaceOf(ir.ClassOf(v.Typ)) == archx64.PlaceOct {
			return Loc{Kind: LocOctSlot, Index: v.Color}
		}
		return Loc{Kind: LocQuadSlot, Index: v.Color}
	}
	if ir.ClassOf(v.Typ) == ir.FClass {
		return Loc{Kind: LocXMMReg, Index: v.Color}
	}
	return Loc{Kind: LocGPReg, Index: v.Color}
}

// lowerKind peels chains, then rotates the remaining cycles.
func (l *lowerer) lowerKind(kind LocKind, srcOf map[int]Loc, typOf map[int]ir.Type, outDeg map[int]int) {
	mem := kind == LocQuadSlot || kind == LocOctSlot

	emit := func(dst int, via *Loc) {
		l.moves = append(l.moves, Move{
			Type: typOf[dst],
			Src:  srcOf[dst],
			Dst:  Loc{Kind: kind, Index: dst},
			Via:  via,
		})
	}

	// Chain removal: any destination nothing reads can be written now.
	worklist := dests(srcOf)
	for len(worklist) > 0 {
		dst := worklist[len(worklist)-1]
		worklist = worklist[:len(worklist)-1]
		if _, pending := srcOf[dst]; !pending || outDeg[dst] > 0 {
			continue
		}
		if mem {
			via, restore := l.scratchReg(kind, nil)
			emit(dst, &via)
			l.moves = append(l.moves, restore...)
		} else {
			emit(dst, nil)
		}
		src := srcOf[dst].Index
		delete(srcOf, dst)
		outDeg[src]--
		if outDeg[src] == 0 {
			worklist = append(worklist, src)
		}
	}

	// Everything left forms disjoint cycles.
	for len(srcOf) > 0 {
		start := dests(srcOf)[0]
		var cycle []int
		for cur := start; ; {
			cycle = append(cycle, cur)
			next := srcOf[cur].Index
			if next == start {
				break
			}
			cur = next
		}
		l.rotateCycle(kind, cycle, srcOf, typOf)
		for _, dst := range cycle {
			delete(srcOf, dst)
		}
	}
}

// rotateCycle emits the tmp-rotation realizing one cycle: park the
// first destination's value, shift every other value one step along
// the cycle, then write the parked value into the last destination.
// Register cycles park in a scratch register; slot cycles park in the
// red zone and route every slot-to-slot move through a register
// scratch.
func (l *lowerer) rotateCycle(kind LocKind, cycle []int, srcOf map[int]Loc, typOf map[int]ir.Type) {
	inCycle := map[int]bool{}
	if kind == LocGPReg || kind == LocXMMReg {
		for _, c := range cycle {
			inCycle[c] = true
		}
	}
	mem := kind == LocQuadSlot || kind == LocOctSlot

	var park Loc
	var via *Loc
	var restore []Move
	if mem {
		park = l.redZone()
		v, r := l.scratchReg(kind, nil)
		via, restore = &v, r
	} else {
		park, restore = l.scratchReg(kind, inCycle)
	}

	first := cycle[0]
	l.moves = append(l.moves, Move{Type: typOf[first], Src: Loc{Kind: kind, Index: first}, Dst: park, Via: via})
	cur := first
	for {
		src := srcOf[cur]
		if src.Index == first {
			break
		}
		l.moves = append(l.moves, Move{Type: typOf[cur], Src: src, Dst: Loc{Kind: kind, Index: cur}, Via: via})
		cur = src.Index
	}
	l.moves = append(l.moves, Move{Type: typOf[cur], Src: park, Dst: Loc{Kind: kind, Index: cur}, Via: via})
	l.moves = append(l.moves, restore...)
}

// emitConst materializes a constant into its destination after the
// permutation has run. Integer constants reach registers directly;
// anything bound for a slot, and any float, routes through a scratch.
func (l *lowerer) emitConst(c *ir.Const, dst Loc, typ ir.Type) {
	m := Move{Type: typ, Src: Loc{Kind: LocImm, Lo: c.Bits, Hi: c.Hi}, Dst: dst}
	needVia := dst.Kind == LocQuadSlot || dst.Kind == LocOctSlot
	if !needVia {
		l.moves = append(l.moves, m)
		return
	}
	via, restore := l.scratchReg(dst.Kind, nil)
	m.Via = &via
	l.moves = append(l.moves, m)
	l.moves = append(l.moves, restore...)
}

// scratchReg hands back a clobberable register for the kind: the
// matching register file for register kinds, a general-purpose
// register for quadword slots, an XMM register for octword slots. A
// free register costs nothing; otherwise a fixed register (RAX or
// XMM1) is borrowed, saved to the red zone first, with the restore
// moves returned for the caller to append after the use. The save is
// unconditional on the borrow path — conditioning it on how many free
// registers remain is exactly the trap spec.md §9 flags.
func (l *lowerer) scratchReg(kind LocKind, avoid map[int]bool) (Loc, []Move) {
	regKind := LocGPReg
	free := l.freeGP
	fixed := archx64.RAX
	typ := ir.TypeInt64
	if kind == LocXMMReg || kind == LocOctSlot {
		regKind = LocXMMReg
		free = l.freeXMM
		fixed = archx64.XMM1
		typ = ir.TypeReal64
	}
	for _, c := range free {
		if !avoid[c] {
			return Loc{Kind: regKind, Index: c}, nil
		}
	}

	borrow := fixed
	if avoid[borrow] {
		class := ir.RClass
		if regKind == LocXMMReg {
			class = ir.FClass
		}
		for _, c := range l.arch.Reservoir(class) {
			if !avoid[c] {
				borrow = c
				break
			}
		}
	}
	save := l.redZone()
	l.moves = append(l.moves, Move{Type: typ, Src: Loc{Kind: regKind, Index: borrow}, Dst: save})
	return Loc{Kind: regKind, Index: borrow},
		[]Move{{Type: typ, Src: save, Dst: Loc{Kind: regKind, Index: borrow}}}
}

// redZone hands out 16-byte scratch below RSP (System V red zone, 128
// bytes). Index o addresses the 16 bytes at [-o, -o+16) from RSP.
func (l *lowerer) redZone() Loc {
	off := l.rzNext
	l.rzNext += 16
	diag.Assertf(off <= 128, "phi: red zone exhausted")
	return Loc{Kind: LocRedZone, Index: off}
}

func dests(srcOf map[int]Loc) []int {
	out := make([]int, 0, len(srcOf))
	for d := range srcOf {
		out = append(out, d)
	}
	sort.Ints(out)
	return out
}
