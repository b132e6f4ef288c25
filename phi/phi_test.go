package phi

import (
	"testing"

	"github.com/nc-labs/ssabe/archx64"
	"github.com/nc-labs/ssabe/ir"
)

// buildSwapEdge constructs a predecessor p and successor s where s's
// two phis swap a pair of registers: the spec.md §8 S5 shape.
func buildSwapEdge(t *testing.T, colorA, colorB int) (*ir.Function, *ir.Block, *ir.Block) {
	t.Helper()
	f := ir.NewFunction("swapedge")

	p := f.NewBlock()
	pLbl := ir.NewLabel()
	p.Label = pLbl
	pLbl.SetBlockForCFG(p)
	f.Append(pLbl)

	a := f.NewSSAReg(ir.TypeInt64)
	a.Color = colorA
	b := f.NewSSAReg(ir.TypeInt64)
	b.Color = colorB

	s := f.NewBlock()
	sLbl := ir.NewLabel()
	s.Label = sLbl
	sLbl.SetBlockForCFG(s)

	g := ir.NewGoto(sLbl)
	g.Targets = []*ir.Block{s}
	f.Append(g)
	g.SetBlockForCFG(p)
	ir.AddEdge(p, s)

	f.Append(sLbl)
	phi1 := ir.NewInstr(ir.OpPhi)
	r1 := f.NewSSAReg(ir.TypeInt64)
	r1.Color = colorA
	phi1.AddResult(r1)
	phi1.Args = []ir.ArgSlot{{Val: b, SourceBlock: p}}
	f.Append(phi1)
	phi1.SetBlockForCFG(s)
	s.FirstPhi = phi1

	phi2 := ir.NewInstr(ir.OpPhi)
	r2 := f.NewSSAReg(ir.TypeInt64)
	r2.Color = colorB
	phi2.AddResult(r2)
	phi2.Args = []ir.ArgSlot{{Val: a, SourceBlock: p}}
	f.Append(phi2)
	phi2.SetBlockForCFG(s)

	return f, p, s
}

func TestSwapCycleUsesThreeMoves(t *testing.T) {
	_, p, s := buildSwapEdge(t, 0, 1)
	moves := Lower(p, s, archx64.New())

	if len(moves) != 3 {
		t.Fatalf("a two-register swap needs exactly 3 moves, got %d: %+v", len(moves), moves)
	}
	park := moves[0].Dst
	if park.Kind != LocGPReg {
		t.Fatalf("swap should park in a free register, parked in kind %d", park.Kind)
	}
	if park.Index == 0 || park.Index == 1 {
		t.Fatalf("scratch register %d collides with the cycle", park.Index)
	}
	if moves[2].Src != park {
		t.Fatalf("last move should read the parked value, reads %+v", moves[2].Src)
	}
	if moves[1].Src.Index != 1 || moves[1].Dst.Index != 0 {
		t.Fatalf("middle move should shift color 1 into color 0, got %+v", moves[1])
	}
}

func TestCoalescedPhiEmitsNoMove(t *testing.T) {
	_, p, s := buildSwapEdge(t, 0, 1)
	// Rewrite the phis so each argument already matches its result.
	for _, phi := range s.Phis() {
		v := phi.Args[0].Val.(*ir.Var)
		v.Color = phi.Results[0].Var.Color
	}
	moves := Lower(p, s, archx64.New())
	if len(moves) != 0 {
		t.Fatalf("coalesced phis must lower to nothing, got %d moves", len(moves))
	}
}

func TestChainBeforeCycleOrdering(t *testing.T) {
	f, p, s := buildSwapEdge(t, 0, 1)

	// Add a third phi reading color 0 into a fresh color 5: a chain
	// hanging off the cycle. Its move must run before color 0 is
	// overwritten.
	a := f.NewSSAReg(ir.TypeInt64)
	a.Color = 0
	phi3 := ir.NewInstr(ir.OpPhi)
	r3 := f.NewSSAReg(ir.TypeInt64)
	r3.Color = 5
	phi3.AddResult(r3)
	phi3.Args = []ir.ArgSlot{{Val: a, SourceBlock: p}}
	f.InsertAfter(phi3, s.Phis()[len(s.Phis())-1])
	phi3.SetBlockForCFG(s)

	moves := Lower(p, s, archx64.New())
	if len(moves) != 4 {
		t.Fatalf("chain plus swap should need 4 moves, got %d", len(moves))
	}
	if moves[0].Dst.Index != 5 || moves[0].Src.Index != 0 {
		t.Fatalf("the chain move must be peeled first, got %+v", moves[0])
	}
}

func TestConstLoadsComeLast(t *testing.T) {
	f, p, s := buildSwapEdge(t, 0, 1)

	phi3 := ir.NewInstr(ir.OpPhi)
	r3 := f.NewSSAReg(ir.TypeInt64)
	r3.Color = 6
	phi3.AddResult(r3)
	phi3.Args = []ir.ArgSlot{{Val: f.Const(ir.TypeInt64, 42), SourceBlock: p}}
	f.InsertAfter(phi3, s.Phis()[len(s.Phis())-1])
	phi3.SetBlockForCFG(s)

	moves := Lower(p, s, archx64.New())
	last := moves[len(moves)-1]
	if last.Src.Kind != LocImm || last.Src.Lo != 42 {
		t.Fatalf("the constant load must come after the permutation, got %+v", last)
	}
}
