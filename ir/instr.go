package ir

// Opcode is the closed set of instruction variants (spec.md §3.3).
type Opcode int

const (
	OpLabel Opcode = iota
	OpPhi
	OpAssign
	OpGoto
	OpBranch
	OpSpill
	OpReload
	OpLoad
	OpStore
	OpCast
	OpCall
	OpSetParams
	OpSetResults
	OpNop
)

func (op Opcode) String() string {
	switch op {
	case OpLabel:
		return "label"
	case OpPhi:
		return "phi"
	case OpAssign:
		return "assign"
	case OpGoto:
		return "goto"
	case OpBranch:
		return "branch"
	case OpSpill:
		return "spill"
	case OpReload:
		return "reload"
	case OpLoad:
		return "load"
	case OpStore:
		return "store"
	case OpCast:
		return "cast"
	case OpCall:
		return "call"
	case OpSetParams:
		return "setparams"
	case OpSetResults:
		return "setresults"
	case OpNop:
		return "nop"
	default:
		return "?"
	}
}

// AssignOp selects the operation an OpAssign instruction performs.
type AssignOp int

const (
	AssignNone AssignOp = iota
	AssignMove
	AssignAdd
	AssignSub
	AssignMul
	AssignDiv
	AssignUDiv
	AssignNeg
	AssignAnd
	AssignOr
	AssignXor
	AssignNot
	AssignShl
	AssignShr
	AssignSar
	AssignCmpEQ
	AssignCmpNE
	AssignCmpLT
	AssignCmpLE
	AssignCmpGT
	AssignCmpGE
)

// CondCode is a back-end condition code, attached to a Branch when an
// immediately preceding comparison has been fused into it by
// register-targeting.
type CondCode int

const (
	CondNone CondCode = iota
	CondEQ
	CondNE
	CondLT
	CondLE
	CondGT
	CondGE
	CondB  // unsigned below
	CondBE // unsigned below-or-equal
	CondA  // unsigned above
	CondAE // unsigned above-or-equal
)

// CondForCompare maps a comparison sub-op to the condition code that
// makes it true, honoring unsigned and floating-point ordering (both
// use the below/above family on x86).
func CondForCompare(op AssignOp, argTyp Type) CondCode {
	unsigned := ClassOf(argTyp) == FClass
	switch argTyp {
	case TypeUint8, TypeUint16, TypeUint32, TypeUint64, TypePointer, TypeBool:
		unsigned = true
	}
	switch op {
	case AssignCmpEQ:
		return CondEQ
	case AssignCmpNE:
		return CondNE
	case AssignCmpLT:
		if unsigned {
			return CondB
		}
		return CondLT
	case AssignCmpLE:
		if unsigned {
			return CondBE
		}
		return CondLE
	case AssignCmpGT:
		if unsigned {
			return CondA
		}
		return CondGT
	case AssignCmpGE:
		if unsigned {
			return CondAE
		}
		return CondGE
	}
	return CondNone
}

// ResultSlot is one entry of an instruction's ordered result list: the
// defined Var, its optional fixed physical-register constraint, and the
// pre-SSA name it corresponds to (needed by liveness/reconstruction
// before and during SSA renaming).
type ResultSlot struct {
	Var        *Var
	Constraint int // NoConstraint or a physical register index
	PreSSA     int
}

// ArgSlot is one entry of an instruction's ordered argument list.
type ArgSlot struct {
	Val        Operand
	Constraint int // NoConstraint or a physical register index

	// SourceBlock is set only for Phi argument slots: the predecessor
	// block this argument flows from. Liveness and reconstruction walk
	// phi arguments by source block, not by the phi's own block
	// (spec.md §4.5).
	SourceBlock *Block
}

// Instr is one instruction in the function's stream. The zero value is
// not meaningful; use NewInstr.
type Instr struct {
	Op    Opcode
	Sub   AssignOp // valid for OpAssign
	Cond  CondCode // valid for OpBranch
	CastK CastKind // valid for OpCast

	Results []ResultSlot
	Args    []ArgSlot

	// LabelRefs holds the raw target Label instructions as emitted by
	// the front end (spec.md §6.1: Jumps name Labels, blocks don't
	// exist yet): one entry for OpGoto, two ([taken, not-taken]) for
	// OpBranch. Targets is the resolved CFG form package cfg fills in
	// once blocks exist; passes after CFG construction should read
	// Targets, not LabelRefs.
	LabelRefs []*Instr
	Targets   []*Block

	Symbol string // OpCall callee symbol
	Offset int64  // OpLoad/OpStore addressing offset

	// LiveIn/LiveOut are per-instruction liveness sets, populated by
	// package liveness (spec.md §4.5) and consumed by the spiller's
	// Belady distance metric and by coloring.
	LiveIn  map[*Var]struct{}
	LiveOut map[*Var]struct{}

	block *Block
	prev  *Instr
	next  *Instr
}

// CastKind selects the conversion an OpCast performs; the full table
// lives in codegen (spec.md §4.13's 20-way cast table), this is just
// the IR-level tag.
type CastKind int

const (
	CastNone CastKind = iota
	CastSignExtend
	CastZeroExtend
	CastTruncate
	CastIntToFloat
	CastFloatToInt
	CastFloatToFloat
	CastBitcast
)

func NewInstr(op Opcode) *Instr { return &Instr{Op: op} }

// NewLabel creates a block-boundary marker.
func NewLabel() *Instr { return NewInstr(OpLabel) }

// NewGoto creates an unconditional branch to target's Label.
func NewGoto(target *Instr) *Instr {
	i := NewInstr(OpGoto)
	i.LabelRefs = []*Instr{target}
	return i
}

// NewBranch creates a conditional branch on cond, taken if arg is
// true, falling to notTaken otherwise.
func NewBranch(cond Operand, taken, notTaken *Instr) *Instr {
	i := NewInstr(OpBranch)
	i.AddArg(cond)
	i.LabelRefs = []*Instr{taken, notTaken}
	return i
}

func (instr *Instr) Block() *Block { return instr.block }

// SetBlockForCFG assigns instr's owning block. Only package cfg (and
// passes that splice new instructions into an existing block) should
// call this; it is exported because CFG construction lives in a
// separate package from the IR entity schema by design (spec.md §9:
// passes operate on handles, not by reaching into sibling packages'
// internals).
func (instr *Instr) SetBlockForCFG(b *Block) { instr.block = b }

// IsJump reports whether instr transfers control unconditionally or
// conditionally (Goto or Branch); spec.md §3.4 requires a Label
// immediately follow every jump-variant instruction.
func (instr *Instr) IsJump() bool {
	return instr.Op == OpGoto || instr.Op == OpBranch
}

// IsLabel reports whether instr opens a basic block.
func (instr *Instr) IsLabel() bool { return instr.Op == OpLabel }

// AddResult appends a new unconstrained result Var. It does not record
// instr as v's defining site; callers do that with v.SetDef.
func (instr *Instr) AddResult(v *Var) {
	instr.Results = append(instr.Results, ResultSlot{Var: v, Constraint: NoConstraint})
}

func (instr *Instr) AddArg(val Operand) {
	instr.Args = append(instr.Args, ArgSlot{Val: val, Constraint: NoConstraint})
}

// ResultVars returns the Results' Vars for convenient iteration.
func (instr *Instr) ResultVars() []*Var {
	vs := make([]*Var, len(instr.Results))
	for i := range instr.Results {
		vs[i] = instr.Results[i].Var
	}
	return vs
}

// DefinesVar reports whether v is one of instr's results.
func (instr *Instr) DefinesVar(v *Var) bool {
	for _, r := range instr.Results {
		if r.Var == v {
			return true
		}
	}
	return false
}

// ResetLiveness clears this instruction's live-in/out sets.
func (instr *Instr) ResetLiveness() {
	instr.LiveIn = map[*Var]struct{}{}
	instr.LiveOut = map[*Var]struct{}{}
}
