// Package ssarepair re-establishes strict SSA after another pass (spill,
// split) mints new defs that are meant to stand in for an existing Var
// on part of its live range (spec.md §4.6). It is the on-demand cousin
// of package ssabuild: instead of renaming a whole function, it resolves
// one variable's reaching definition at a handful of use sites, lazily
// materializing new phis wherever the inserted defs and the original
// disagree across a join.
package ssarepair

import (
	"github.com/nc-labs/ssabe/dom"
	"github.com/nc-labs/ssabe/ir"
)

// Repair rewrites every argument slot that currently reads orig so it
// instead reads whichever of {orig} ∪ newDefs actually reaches that
// site. newDefs are Vars some other pass has already spliced into the
// instruction stream as competing definitions of orig's value; each
// must already have its SetDef called. Repair snapshots orig's use list
// before making any changes, since rewriting a use removes it from
// orig.Uses.
func Repair(f *ir.Function, orig *ir.Var, newDefs ...*ir.Var) {
	if len(newDefs) == 0 {
		return
	}

	record := map[*ir.Var]bool{orig: true}
	defBlocks := map[*ir.Block]struct{}{}
	if orig.HasDef() {
		defBlocks[orig.Def.Block] = struct{}{}
	}
	for _, v := range newDefs {
		record[v] = true
		if v.HasDef() {
			defBlocks[v.Def.Block] = struct{}{}
		}
	}

	seed := make([]*ir.Block, 0, len(defBlocks))
	for b := range defBlocks {
		seed = append(seed, b)
	}
	idf := dom.IDF(seed)
	memo := map[*ir.Block]ir.Operand{}

	uses := append([]ir.UseSite(nil), orig.Uses...)
	for _, u := range uses {
		for i := range u.Instr.Args {
			v, ok := u.Instr.Args[i].Val.(*ir.Var)
			if !ok || v != orig {
				continue
			}
			if u.Instr.Op == ir.OpPhi && u.Instr.Args[i].SourceBlock != u.Block {
				continue
			}

			var val ir.Operand
			if u.Instr.Op == ir.OpPhi {
				val = resolveInBlock(f, record, orig.Typ, idf, memo, u.Block, nil)
			} else {
				val = resolveInBlock(f, record, orig.Typ, idf, memo, u.Block, u.Instr)
			}

			u.Instr.Args[i].Val = val
			orig.RemoveUse(u.Instr)
			if vv, ok := val.(*ir.Var); ok {
				vv.AddUse(u.Instr, u.Block)
			}
		}
	}
}

// resolveInBlock finds the value reaching a point in block b: just
// before instruction `before`, or — when before is nil, the form every
// recursive call up the dominator tree uses — at the very end of b
// (spec.md §4.6's "continue at the last instruction of that block").
// memo caches the end-of-block answer so a block with many predecessor
// paths converging on it is only resolved once, and so a freshly
// materialized phi is visible to its own back-edge predecessors before
// they're resolved (breaking cycles).
func resolveInBlock(f *ir.Function, record map[*ir.Var]bool, typ ir.Type, idf map[*ir.Block]struct{}, memo map[*ir.Block]ir.Operand, b *ir.Block, before *ir.Instr) ir.Operand {
	if before == nil {
		if val, ok := memo[b]; ok {
			return val
		}
	}

	if def, ok := latestDefInRange(record, b, before); ok {
		return def
	}

	var val ir.Operand
	if _, isJoin := idf[b]; isJoin {
		val = materializePhi(f, record, typ, idf, memo, b)
	} else if b == f.Entry {
		val = f.Undef(typ)
	} else {
		val = resolveInBlock(f, record, typ, idf, memo, b.IDom, nil)
	}

	if before == nil {
		memo[b] = val
	}
	return val
}

// latestDefInRange walks backward from `before`'s predecessor (or, if
// before is nil, from b's last instruction) looking for the nearest
// instruction whose result is one of record's vars.
func latestDefInRange(record map[*ir.Var]bool, b *ir.Block, before *ir.Instr) (*ir.Var, bool) {
	start := b.Last()
	if before != nil {
		start = before.Prev()
	}
	for cur := start; cur != nil; cur = cur.Prev() {
		for _, r := range cur.Results {
			if record[r.Var] {
				return r.Var, true
			}
		}
		if cur == b.Label {
			break
		}
	}
	return nil, false
}

// materializePhi creates a fresh phi at the entry of a join block b,
// registers its result as a new member of the record (so sibling
// resolutions and further recursion see it), and lazily resolves one
// argument per predecessor — which may recursively materialize further
// phis higher in the dominator tree. Termination follows from spec.md
// §4.6: every phi created this way sits strictly higher in the
// dominator tree than the use that triggered it.
func materializePhi(f *ir.Function, record map[*ir.Var]bool, typ ir.Type, idf map[*ir.Block]struct{}, memo map[*ir.Block]ir.Operand, b *ir.Block) ir.Operand {
	newVar := f.NewSSAReg(typ)
	phi := ir.NewInstr(ir.OpPhi)
	phi.AddResult(newVar)
	insertPhi(f, b, phi)
	newVar.SetDef(phi, b)

	record[newVar] = true
	memo[b] = newVar

	phi.Args = make([]ir.ArgSlot, len(b.Preds))
	for i, p := range b.Preds {
		val := resolveInBlock(f, record, typ, idf, memo, p, nil)
		phi.Args[i] = ir.ArgSlot{Val: val, SourceBlock: p}
		if vv, ok := val.(*ir.Var); ok {
			vv.AddUse(phi, p)
		}
	}
	return newVar
}

// insertPhi splices phi after b's existing phis (or right after the
// Label if it has none) and registers it as owned by b.
func insertPhi(f *ir.Function, b *ir.Block, phi *ir.Instr) {
	phis := b.Phis()
	if len(phis) == 0 {
		f.InsertAfter(phi, b.Label)
		b.FirstPhi = phi
	} else {
		f.InsertAfter(phi, phis[len(phis)-1])
	}
	phi.SetBlockForCFG(b)
}
