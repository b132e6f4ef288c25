package ssabuild

import "github.com/nc-labs/ssabe/ir"

// rename walks the dominator tree in preorder starting at b, maintaining
// one stack per pre-SSA variable: push a fresh SSA name at every def
// (phi or ordinary instruction), rewrite every use to the stack's top,
// fill this block's outgoing phi arguments on the way out, recurse into
// dominator children, then pop whatever this block pushed.
func rename(f *ir.Function, stacks map[*ir.Var][]*ir.Var, bySucc map[*ir.Block]map[*ir.Var]*ir.Instr, byInstr map[*ir.Instr]*ir.Var, b *ir.Block) {
	pushed := map[*ir.Var]int{}

	for _, phi := range b.Phis() {
		preVar := byInstr[phi]
		newVar := f.NewSSAReg(preVar.Typ)
		phi.AddResult(newVar)
		newVar.SetDef(phi, b)
		stacks[preVar] = append(stacks[preVar], newVar)
		pushed[preVar]++
	}

	if b.FirstOrdinary != nil {
		last := b.Last()
		for instr := b.FirstOrdinary; ; instr = instr.Next() {
			renameArgs(f, stacks, instr, b)
			for i := range instr.Results {
				preVar := instr.Results[i].Var
				if preVar.Number >= 0 {
					continue
				}
				newVar := f.NewSSAReg(preVar.Typ)
				instr.Results[i].Var = newVar
				newVar.SetDef(instr, b)
				stacks[preVar] = append(stacks[preVar], newVar)
				pushed[preVar]++
			}
			if instr == last {
				break
			}
		}
	}

	for _, s := range b.Succs {
		predIdx := ir.PredIndex(s, b)
		for preVar, phi := range bySucc[s] {
			val := top(f, stacks, preVar)
			phi.Args[predIdx] = ir.ArgSlot{Val: val, SourceBlock: b}
			if vv, ok := val.(*ir.Var); ok {
				vv.AddUse(phi, b)
			}
		}
	}

	for _, c := range b.DomChildren {
		rename(f, stacks, bySucc, byInstr, c)
	}

	for preVar, n := range pushed {
		s := stacks[preVar]
		stacks[preVar] = s[:len(s)-n]
	}
}

// renameArgs rewrites every pre-SSA Var argument of instr to the
// current reaching SSA value and records the use. Phi arguments are
// filled separately, from the predecessor side, so instr is never an
// OpPhi here.
func renameArgs(f *ir.Function, stacks map[*ir.Var][]*ir.Var, instr *ir.Instr, b *ir.Block) {
	for i := range instr.Args {
		v, ok := instr.Args[i].Val.(*ir.Var)
		if !ok || v.Number >= 0 {
			continue
		}
		val := top(f, stacks, v)
		instr.Args[i].Val = val
		if vv, ok := val.(*ir.Var); ok {
			vv.AddUse(instr, b)
		}
	}
}

// top returns the current reaching value of a pre-SSA variable: the
// stack's top, or a well-typed Undef if no definition dominates this
// point (spec.md §4.4's strict-SSA requirement).
func top(f *ir.Function, stacks map[*ir.Var][]*ir.Var, v *ir.Var) ir.Operand {
	s := stacks[v]
	if len(s) == 0 {
		return f.Undef(v.Typ)
	}
	return s[len(s)-1]
}
