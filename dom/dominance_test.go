package dom

import (
	"testing"

	"github.com/nc-labs/ssabe/cfg"
	"github.com/nc-labs/ssabe/ir"
)

func buildDiamond(t *testing.T) *ir.Function {
	t.Helper()
	f := ir.NewFunction("diamond")
	entryLbl := ir.NewLabel()
	thenLbl := ir.NewLabel()
	elseLbl := ir.NewLabel()
	joinLbl := ir.NewLabel()

	f.Append(entryLbl)
	cond := f.NewSSAReg(ir.TypeBool)
	f.Append(ir.NewBranch(cond, thenLbl, elseLbl))

	f.Append(thenLbl)
	f.Append(ir.NewGoto(joinLbl))

	f.Append(elseLbl)
	f.Append(ir.NewGoto(joinLbl))

	f.Append(joinLbl)
	f.Append(ir.NewInstr(ir.OpSetResults))

	cfg.Build(f)
	return f
}

func TestDominanceDiamond(t *testing.T) {
	f := buildDiamond(t)
	Compute(f)

	entry, then, els, join := f.Blocks[0], f.Blocks[1], f.Blocks[2], f.Blocks[3]

	if join.IDom != entry {
		t.Fatalf("join's idom should be entry (neither branch alone dominates it), got block %d", join.IDom.ID)
	}
	if then.IDom != entry || els.IDom != entry {
		t.Fatalf("then/else idom should be entry")
	}
	if !Dominates(entry, join) {
		t.Fatalf("entry should dominate join")
	}
	if Dominates(then, join) {
		t.Fatalf("then should not dominate join (else is a path around it)")
	}
	if _, ok := then.DomFrontier[join]; !ok {
		t.Fatalf("then's dominance frontier should include join")
	}
	if _, ok := els.DomFrontier[join]; !ok {
		t.Fatalf("else's dominance frontier should include join")
	}
	if _, ok := entry.DomFrontier[join]; ok {
		t.Fatalf("entry's dominance frontier should not include join (entry dominates join)")
	}
}

func TestIDF(t *testing.T) {
	f := buildDiamond(t)
	Compute(f)
	then, els, join := f.Blocks[1], f.Blocks[2], f.Blocks[3]

	idf := IDF([]*ir.Block{then, els})
	if _, ok := idf[join]; !ok {
		t.Fatalf("IDF({then,else}) should contain join")
	}
	if len(idf) != 1 {
		t.Fatalf("expected exactly 1 block in IDF, got %d", len(idf))
	}
}
