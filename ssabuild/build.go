// Package ssabuild turns a pre-SSA function (negative-numbered Vars
// shared across redefinitions) into strict SSA (spec.md §4.4): place a
// Phi at every join the variable's definitions can reach, then rename
// every def and use in a single dominator-tree preorder walk with one
// stack per source variable. Grounded on the phi-placement-plus-rename
// shape surveyed from the retrieval pack's SSA-construction reference
// material; the renaming stacks are written directly from spec.md
// §4.4's algorithm description.
package ssabuild

import (
	"sort"

	"github.com/nc-labs/ssabe/dom"
	"github.com/nc-labs/ssabe/ir"
)

// Build performs SSA construction in place. f's CFG and dominator tree
// must already be current (cfg.Build, dom.Compute); Build itself never
// touches the CFG shape, only instruction contents.
func Build(f *ir.Function) {
	defBlocks := collectDefBlocks(f)
	bySucc, byInstr := placePhis(f, defBlocks)

	stacks := map[*ir.Var][]*ir.Var{}
	rename(f, stacks, bySucc, byInstr, f.Entry)

	fixParams(f)
}

// collectDefBlocks finds, for every pre-SSA variable, the set of blocks
// containing an assignment to it (spec.md §4.4's D(v)).
func collectDefBlocks(f *ir.Function) map[*ir.Var]map[*ir.Block]struct{} {
	defs := map[*ir.Var]map[*ir.Block]struct{}{}
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		for _, r := range i.Results {
			if r.Var.Number >= 0 {
				continue
			}
			if defs[r.Var] == nil {
				defs[r.Var] = map[*ir.Block]struct{}{}
			}
			defs[r.Var][i.Block()] = struct{}{}
		}
	}
	return defs
}

// placePhis inserts an (as yet argument-less) Phi for every variable v
// at the entry of every block in IDF(D(v)), skipping a block already
// holding a phi for that variable. It returns two views of the same
// placements: bySucc lets rename fill a successor's phi arguments when
// finishing a predecessor; byInstr recovers which source variable a
// given phi instruction stands for.
func placePhis(f *ir.Function, defBlocks map[*ir.Var]map[*ir.Block]struct{}) (bySucc map[*ir.Block]map[*ir.Var]*ir.Instr, byInstr map[*ir.Instr]*ir.Var) {
	bySucc = map[*ir.Block]map[*ir.Var]*ir.Instr{}
	byInstr = map[*ir.Instr]*ir.Var{}
	lastPhi := map[*ir.Block]*ir.Instr{}

	vars := make([]*ir.Var, 0, len(defBlocks))
	for v := range defBlocks {
		vars = append(vars, v)
	}
	sort.Slice(vars, func(i, j int) bool { return vars[i].Number < vars[j].Number })

	for _, v := range vars {
		defs := defBlocks[v]
		seed := make([]*ir.Block, 0, len(defs))
		for b := range defs {
			seed = append(seed, b)
		}
		sort.Slice(seed, func(i, j int) bool { return seed[i].ID < seed[j].ID })

		frontier := dom.IDF(seed)
		joins := make([]*ir.Block, 0, len(frontier))
		for b := range frontier {
			joins = append(joins, b)
		}
		sort.Slice(joins, func(i, j int) bool { return joins[i].ID < joins[j].ID })

		for _, b := range joins {
			if bySucc[b] != nil && bySucc[b][v] != nil {
				continue
			}
			phi := ir.NewInstr(ir.OpPhi)
			phi.Args = make([]ir.ArgSlot, len(b.Preds))
			for i, p := range b.Preds {
				phi.Args[i] = ir.ArgSlot{Val: f.Undef(v.Typ), SourceBlock: p}
			}

			if last, ok := lastPhi[b]; ok {
				f.InsertAfter(phi, last)
			} else {
				f.InsertAfter(phi, b.Label)
				b.FirstPhi = phi
			}
			phi.SetBlockForCFG(b)
			lastPhi[b] = phi

			if bySucc[b] == nil {
				bySucc[b] = map[*ir.Var]*ir.Instr{}
			}
			bySucc[b][v] = phi
			byInstr[phi] = v
		}
	}
	return bySucc, byInstr
}

// fixParams refreshes Function.Params with the renamed result vars of
// the entry's SetParams instruction; the slice built at parse time
// still points at the original pre-SSA names.
func fixParams(f *ir.Function) {
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		if i.Op == ir.OpSetParams {
			f.Params = i.ResultVars()
			return
		}
	}
}
