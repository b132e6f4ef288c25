package ir

import "strconv"

// Operand is the closed set of value producers/consumers an instruction
// argument or result can refer to (spec.md §3.1). It is implemented by
// *Const, *Undef, and *Var; a type switch over these three is the
// idiomatic way to inspect an Operand, mirroring the tagged-union
// dispatch spec.md §9 asks for in place of a class hierarchy.
type Operand interface {
	Type() Type
	operand()
}

// Undef is a well-typed unknown value, used to satisfy strict SSA when
// a variable has no dominating definition on some path.
type Undef struct {
	Typ Type
}

func (u *Undef) Type() Type { return u.Typ }
func (*Undef) operand()     {}

// Const is a bit-pattern literal. Bits holds the low 64 bits of the
// pattern; Hi holds the upper 64 bits for TypeVec128 literals and is
// zero otherwise. Floats and doubles are stored via their IEEE bit
// pattern, not their decimal value.
type Const struct {
	Typ Type
	Bits uint64
	Hi   uint64
}

func (c *Const) Type() Type { return c.Typ }
func (*Const) operand()     {}

// UseSite names the one place an operand is read or written: a
// specific instruction inside a specific block. Phi arguments are
// registered as uses in the phi's *source* block (spec.md §4.5), not
// the phi's own block, so Block is carried explicitly rather than
// derived from Instr.Block().
type UseSite struct {
	Instr *Instr
	Block *Block
}

// Var is either a Reg (intended to live in a machine register or spill
// slot) or a MemVar (a named stack location holding an aggregate).
// Number is negative for pre-SSA names (the same source variable across
// redefinitions) and non-negative for SSA names (unique definitions);
// SSA construction (ssabuild) performs the transition.
type Var struct {
	Number int
	Typ    Type
	Color  int // NotColored, DontColor, or an assigned color

	IsMem     bool // true: MemVar: a named aggregate stack slot
	IsSpilled bool // Reg only: colors are drawn from the spill pool

	Def  UseSite   // valid once Number >= 0 (SSA name)
	Uses []UseSite

	hasDef bool
}

func (v *Var) Type() Type { return v.Typ }
func (*Var) operand()     {}

// IsSSA reports whether this Var has already been through SSA renaming.
func (v *Var) IsSSA() bool { return v.Number >= 0 }

// SetDef records v's unique defining site. Re-defining an SSA name is a
// contract violation the construction passes must never commit.
func (v *Var) SetDef(instr *Instr, block *Block) {
	if v.hasDef && v.IsSSA() {
		panic("ir: redefinition of SSA var " + VarString(v))
	}
	v.Def = UseSite{Instr: instr, Block: block}
	v.hasDef = true
}

func (v *Var) HasDef() bool { return v.hasDef }

// AddUse records a new use site. Duplicate (instr, block) pairs are
// harmless but unusual; callers should not add the same use twice.
func (v *Var) AddUse(instr *Instr, block *Block) {
	v.Uses = append(v.Uses, UseSite{Instr: instr, Block: block})
}

// RemoveUse deletes the first matching use site, if any.
func (v *Var) RemoveUse(instr *Instr) {
	for i, u := range v.Uses {
		if u.Instr == instr {
			v.Uses = append(v.Uses[:i], v.Uses[i+1:]...)
			return
		}
	}
}

func VarString(v *Var) string {
	if v == nil {
		return "<nil>"
	}
	kind := "v"
	if v.IsMem {
		kind = "m"
	}
	return kind + strconv.Itoa(v.Number)
}
