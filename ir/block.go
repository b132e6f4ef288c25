package ir

// Block is a maximal straight-line instruction range bounded by Labels
// (spec.md §3.4). Blocks own none of their instructions or operands;
// they hold non-owning references into the Function's tables.
type Block struct {
	ID    int
	Label *Instr // leading Label; block begins here

	FirstPhi      *Instr // first Phi in the block, nil if none
	FirstOrdinary *Instr // first post-phi instruction

	Preds []*Block
	Succs []*Block

	LiveIn  map[*Var]struct{}
	LiveOut map[*Var]struct{}

	DomFrontier map[*Block]struct{}
	IDom        *Block
	DomChildren []*Block

	// PostOrderNum indexes this block in the CFG's post-order array;
	// dom.go's idom array is indexed by this number.
	PostOrderNum int

	// PreNum/PostNum are dom-tree preorder/postorder discovery times,
	// giving dominates() O(1) interval containment checks after dom.go
	// computes them.
	PreNum, PostNum int
}

func NewBlock(id int) *Block {
	return &Block{
		ID:          id,
		LiveIn:      map[*Var]struct{}{},
		LiveOut:     map[*Var]struct{}{},
		DomFrontier: map[*Block]struct{}{},
	}
}

// Last returns the block's final instruction (a Jump on every block
// except possibly the function's last block): the instruction
// immediately preceding the next block's Label, or the stream's tail.
func (b *Block) Last() *Instr {
	last := b.Label
	for cur := b.Label.next; cur != nil && !cur.IsLabel(); cur = cur.next {
		last = cur
	}
	return last
}

// Phis returns the block's phi instructions in order.
func (b *Block) Phis() []*Instr {
	var phis []*Instr
	for i := b.FirstPhi; i != nil && i.Op == OpPhi; i = i.next {
		phis = append(phis, i)
	}
	return phis
}

// ResetLiveness clears live-in/out sets so a pass can recompute them
// from scratch (spec.md §4.5 "Incremental reset").
func (b *Block) ResetLiveness() {
	b.LiveIn = map[*Var]struct{}{}
	b.LiveOut = map[*Var]struct{}{}
}

// AddEdge wires a single directed CFG edge both ways.
func AddEdge(from, to *Block) {
	from.Succs = append(from.Succs, to)
	to.Preds = append(to.Preds, from)
}

// RemoveEdge undoes AddEdge.
func RemoveEdge(from, to *Block) {
	from.Succs = removeBlock(from.Succs, to)
	to.Preds = removeBlock(to.Preds, from)
}

func removeBlock(list []*Block, b *Block) []*Block {
	for i, x := range list {
		if x == b {
			return append(list[:i], list[i+1:]...)
		}
	}
	return list
}

// PredIndex returns the index of from within to's predecessor list,
// used to keep phi argument slots aligned with predecessor order.
func PredIndex(to, from *Block) int {
	for i, p := range to.Preds {
		if p == from {
			return i
		}
	}
	return -1
}
