// Package color assigns physical registers (or dense spill-slot
// numbers) to SSA Vars in a single dominator-tree pre-order walk
// (spec.md §4.9). Constraint satisfaction leans on package split
// having already arranged every constrained instruction to sit at the
// top of its block behind bridge phis, so every operand needing a
// specific register is defined exactly where this pass can pin it.
package color

import (
	"sort"

	"github.com/nc-labs/ssabe/diag"
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/split"
)

// Regs colors every non-spilled Var of the class from the reservoir.
func Regs(f *ir.Function, class ir.Class, reservoir []int) {
	a := &allocator{class: class, reservoir: reservoir}
	a.run(f)
}

// Slots colors every spilled Var of the class with dense slot numbers
// 0,1,2,… and returns how many slots the class ended up using.
func Slots(f *ir.Function, class ir.Class) int {
	a := &allocator{class: class, spilled: true}
	a.run(f)
	return a.maxSlot
}

type allocator struct {
	class     ir.Class
	reservoir []int // nil when coloring spill slots
	spilled   bool
	maxSlot   int // spill-slot mode: one past the highest slot handed out
}

func (a *allocator) run(f *ir.Function) {
	if f.Entry == nil {
		return
	}
	var walk func(b *ir.Block)
	walk = func(b *ir.Block) {
		a.colorBlock(b)
		for _, c := range b.DomChildren {
			walk(c)
		}
	}
	walk(f.Entry)
}

// wants reports whether v is this allocator's to color.
func (a *allocator) wants(v *ir.Var) bool {
	return v != nil && !v.IsMem && v.Color != ir.DontColor &&
		v.IsSpilled == a.spilled && ir.ClassOf(v.Typ) == a.class
}

// pick returns the first admissible color not in inUse, preferring the
// just-freed list.
func (a *allocator) pick(inUse map[int]bool, justFreed []int, avoid map[int]bool) int {
	for _, c := range justFreed {
		if !inUse[c] && !avoid[c] {
			return c
		}
	}
	if a.spilled {
		for c := 0; ; c++ {
			if !inUse[c] && !avoid[c] {
				if c+1 > a.maxSlot {
					a.maxSlot = c + 1
				}
				return c
			}
		}
	}
	for _, c := range a.reservoir {
		if !inUse[c] && !avoid[c] {
			return c
		}
	}
	diag.Assertf(false, "color: reservoir exhausted for class %d", a.class)
	return ir.NotColored
}

func (a *allocator) colorBlock(b *ir.Block) {
	inUse := map[int]bool{}
	for v := range b.LiveIn {
		if a.wants(v) && v.Color >= 0 {
			inUse[v.Color] = true
		}
	}

	start := b.FirstOrdinary
	if ci := b.FirstOrdinary; ci != nil && !a.spilled && split.Constrained(ci) && ci.Op != ir.OpSetParams {
		a.constrainedTop(b, ci, inUse)
		start = ci.Next()
		if start != nil && (start.Block() != b || start.IsLabel()) {
			start = nil
		}
	} else {
		a.colorPhis(b, inUse)
	}

	if start == nil {
		return
	}
	last := b.Last()
	for instr := start; ; instr = instr.Next() {
		a.colorOrdinary(instr, inUse)
		if instr == last {
			break
		}
	}
}

// colorPhis hands each phi result the lowest free color; a result with
// no use at all still gets one (phi lowering writes it regardless) but
// releases it immediately.
func (a *allocator) colorPhis(b *ir.Block, inUse map[int]bool) {
	for _, phi := range b.Phis() {
		r := phi.Results[0].Var
		if !a.wants(r) || r.Color >= 0 {
			continue
		}
		c := a.pick(inUse, nil, nil)
		r.Color = c
		if len(r.Uses) > 0 {
			inUse[c] = true
		}
	}
}

// colorOrdinary frees the colors of arguments making their last use
// here, then allocates result colors, preferring a just-freed color
// (spec.md §4.9's local reuse bias).
func (a *allocator) colorOrdinary(instr *ir.Instr, inUse map[int]bool) {
	var justFreed []int
	for _, arg := range instr.Args {
		v, ok := arg.Val.(*ir.Var)
		if !ok || !a.wants(v) || v.Color < 0 {
			continue
		}
		_, in := instr.LiveIn[v]
		_, out := instr.LiveOut[v]
		if in && !out {
			if inUse[v.Color] {
				delete(inUse, v.Color)
				justFreed = append(justFreed, v.Color)
			}
		}
	}

	for i := range instr.Results {
		r := instr.Results[i].Var
		if !a.wants(r) || r.Color >= 0 {
			continue
		}
		var c int
		if cons := instr.Results[i].Constraint; cons != ir.NoConstraint && !a.spilled {
			diag.Assertf(!inUse[cons], "color: constrained result collides on color %d", cons)
			c = cons
		} else {
			c = a.pick(inUse, justFreed, nil)
		}
		r.Color = c
		inUse[c] = true
		if _, out := instr.LiveOut[r]; !out {
			delete(inUse, c)
		}
	}
}

// constrainedTop is the constrained path of spec.md §4.9, colouring a
// block whose first ordinary instruction pins operands to specific
// registers. Everything live at I is defined by b's bridge phis
// (package split's contract), so every operand is colored here, in
// dependency order: pinned slots first, then dying arguments, then
// live-through values, then unconstrained results.
func (a *allocator) constrainedTop(b *ir.Block, instr *ir.Instr, inUse map[int]bool) {
	ca := map[int]bool{}      // colors taken by arguments
	cd := map[int]bool{}      // colors taken by results
	liveThru := map[int]bool{} // subset of ca that survives the instruction
	pinned := map[int]bool{}   // subset of ca claimed by argument constraints
	var dyingColors []int

	// Pinned slots claim their registers outright. Constraints for the
	// other class's register file are none of this allocator's
	// business.
	for i := range instr.Args {
		cons := instr.Args[i].Constraint
		if cons == ir.NoConstraint || ir.ClassOf(instr.Args[i].Val.Type()) != a.class {
			continue
		}
		ca[cons] = true
		pinned[cons] = true
		if v, ok := instr.Args[i].Val.(*ir.Var); ok && a.wants(v) {
			v.Color = cons
			if _, out := instr.LiveOut[v]; out {
				liveThru[cons] = true
			}
		}
		// Pinned argument colors are never offered to unconstrained
		// results: the two-address lowering may still need the pinned
		// register (a shift count in CL, say) after writing the result.
	}
	for i := range instr.Results {
		cons := instr.Results[i].Constraint
		r := instr.Results[i].Var
		if cons == ir.NoConstraint || ir.ClassOf(r.Typ) != a.class {
			continue
		}
		cd[cons] = true
		if a.wants(r) {
			r.Color = cons
		}
	}

	// Remaining uncolored values live at I: b's phi results (and, for
	// robustness, any other uncolored argument). Dying ones may share a
	// result's register; live-through ones may not.
	var dying, thru []*ir.Var
	seen := map[*ir.Var]bool{}
	consider := func(v *ir.Var) {
		if !a.wants(v) || v.Color >= 0 || seen[v] {
			return
		}
		seen[v] = true
		if _, out := instr.LiveOut[v]; out {
			thru = append(thru, v)
		} else {
			dying = append(dying, v)
		}
	}
	for _, phi := range b.Phis() {
		consider(phi.Results[0].Var)
	}
	for _, arg := range instr.Args {
		if v, ok := arg.Val.(*ir.Var); ok {
			consider(v)
		}
	}
	sort.Slice(dying, func(i, j int) bool { return dying[i].Number < dying[j].Number })
	sort.Slice(thru, func(i, j int) bool { return thru[i].Number < thru[j].Number })

	for _, v := range dying {
		c := a.pickConstrained(cd, ca, inUse, nil)
		if c == ir.NotColored {
			c = a.pickFresh(ca, inUse, nil)
		}
		v.Color = c
		ca[c] = true
		dyingColors = append(dyingColors, c)
	}
	for _, v := range thru {
		c := a.pickFresh(ca, cd, inUse)
		v.Color = c
		ca[c] = true
		liveThru[c] = true
	}

	// Unconstrained results prefer a dying argument's register.
	for i := range instr.Results {
		r := instr.Results[i].Var
		if !a.wants(r) || r.Color >= 0 {
			continue
		}
		c := ir.NotColored
		for _, dc := range dyingColors {
			if !cd[dc] && !liveThru[dc] {
				c = dc
				break
			}
		}
		if c == ir.NotColored {
			c = a.pickFresh(cd, liveThru, inUse, pinned)
		}
		r.Color = c
		cd[c] = true
	}

	// Residue after I: live-through values and live-out results.
	for c := range liveThru {
		inUse[c] = true
	}
	for i := range instr.Results {
		r := instr.Results[i].Var
		if !a.wants(r) || r.Color < 0 {
			continue
		}
		if _, out := instr.LiveOut[r]; out {
			inUse[r.Color] = true
		}
	}
}

// pickConstrained returns the first reservoir color in from minus every
// avoid set, or NotColored.
func (a *allocator) pickConstrained(from map[int]bool, avoid ...map[int]bool) int {
	for _, c := range a.reservoir {
		if !from[c] {
			continue
		}
		bad := false
		for _, m := range avoid {
			if m[c] {
				bad = true
				break
			}
		}
		if !bad {
			return c
		}
	}
	return ir.NotColored
}

// pickFresh returns the first reservoir color outside every avoid set.
func (a *allocator) pickFresh(avoid ...map[int]bool) int {
	for _, c := range a.reservoir {
		bad := false
		for _, m := range avoid {
			if m[c] {
				bad = true
				break
			}
		}
		if !bad {
			return c
		}
	}
	diag.Assertf(false, "color: constrained block exhausted the reservoir")
	return ir.NotColored
}
