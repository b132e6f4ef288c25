package ir

// Function owns its CFG, instruction list, operand tables (Vars,
// Consts, Undefs), and its stack layout (spec.md §3.5). Blocks hold
// non-owning references into these tables. Go's garbage collector
// reclaims everything a Function owns once the Function itself is
// unreachable, so there is no explicit leaves-first teardown to write;
// the ownership discipline here is about *authority to mutate*, not
// manual memory management.
type Function struct {
	Name string

	Params  []*Var // SetParams results, in ABI order
	Results []*Var // SetResults arguments, in ABI order

	Instrs InstrList
	Blocks []*Block
	Entry  *Block

	// PostOrder is populated by cfg.Build/cfg.Rebuild and the blocks'
	// immediate dominators by dom.Compute; both are stale after any block insertion (split_block, critical-edge
	// splitting) until explicitly recomputed; nothing here auto-detects
	// staleness, matching spec.md §5's "must be explicitly recomputed."
	PostOrder []*Block

	// Stack layout (spec.md §4.11), populated by package layout.
	Frame StackLayout

	vars       []*Var
	undefs     map[Type]*Undef
	consts     map[constKey]*Const
	nextSSA    int
	nextPreSSA int
	nextBlock  int
}

// StackLayout holds, per "place" (spec.md §4.11: 0 = quadword slots,
// 1 = octword slots), the color-to-slot assignment and the final
// absolute byte offset of the place's base, plus each MemVar's packed
// offset. Populated by package layout; ir only stores the data so
// Function can own it without importing layout.
type StackLayout struct {
	PlaceBase  []int         // byte offset of place i's base, indexed by place
	PlaceSlots []map[int]int // place i: color -> slot number
	MemOffsets map[*Var]int  // MemVar -> byte offset from frame base
	TotalSize  int           // total frame size, 16-byte aligned per call boundary
	NumPushes  int           // callee-save registers pushed in the prologue
}

type constKey struct {
	typ Type
	lo  uint64
	hi  uint64
}

func NewFunction(name string) *Function {
	return &Function{
		Name:   name,
		undefs: map[Type]*Undef{},
		consts: map[constKey]*Const{},
	}
}

// NewBlock creates and registers a fresh block (used by CFG
// construction and by any pass that splits an edge or an instruction
// stream).
func (f *Function) NewBlock() *Block {
	b := NewBlock(f.nextBlock)
	f.nextBlock++
	f.Blocks = append(f.Blocks, b)
	return b
}

// NewSSAReg allocates a fresh SSA-named register Var of the given type
// with no fixed color (spec.md §6.1's new_ssa_reg). Pre-SSA
// construction instead uses NewPreSSAReg; SSA renaming is what mints
// non-negative numbers for intermediate defs.
func (f *Function) NewSSAReg(typ Type) *Var {
	v := &Var{Number: f.nextSSA, Typ: typ, Color: NotColored}
	f.nextSSA++
	f.vars = append(f.vars, v)
	return v
}

// NewPreSSAReg allocates a fresh pre-SSA variable: a negative number
// shared by every redefinition of the same source-level variable until
// ssabuild renumbers it. Each call returns a distinct pre-SSA name;
// callers that want the *same* pre-SSA variable across several
// instructions must reuse the returned Var, not call this again.
func (f *Function) NewPreSSAReg(typ Type) *Var {
	f.nextPreSSA--
	v := &Var{Number: f.nextPreSSA, Typ: typ, Color: NotColored}
	f.vars = append(f.vars, v)
	return v
}

// NewMemVar allocates a named stack location holding an aggregate
// (spec.md §6.1's new_mem_var). MemVars are never colored; their
// location is assigned directly by package layout.
func (f *Function) NewMemVar(typ Type) *Var {
	v := &Var{Number: f.nextSSA, Typ: typ, Color: DontColor, IsMem: true}
	f.nextSSA++
	f.vars = append(f.vars, v)
	return v
}

// RenumberSSA assigns v a fresh, unique SSA name. Used by ssabuild
// during renaming and by any pass (spill, split, ssarepair) that mints
// a new definition for an existing pre-SSA or stale-SSA Var.
func (f *Function) RenumberSSA(v *Var) {
	v.Number = f.nextSSA
	f.nextSSA++
}

// Const interns a bit-pattern literal: repeated calls with the same
// (type, bits) return the identical *Const pointer, matching spec.md
// §3.6's idempotence property at the operand level (the emission-time
// constant pool in package layout performs the analogous dedup for
// .LCn labels).
func (f *Function) Const(typ Type, bits uint64) *Const {
	return f.Const128(typ, bits, 0)
}

func (f *Function) Const128(typ Type, lo, hi uint64) *Const {
	key := constKey{typ: typ, lo: lo, hi: hi}
	if c, ok := f.consts[key]; ok {
		return c
	}
	c := &Const{Typ: typ, Bits: lo, Hi: hi}
	f.consts[key] = c
	return c
}

// Undef interns the unique Undef value of a given type.
func (f *Function) Undef(typ Type) *Undef {
	if u, ok := f.undefs[typ]; ok {
		return u
	}
	u := &Undef{Typ: typ}
	f.undefs[typ] = u
	return u
}

// Append adds instr to the end of the instruction stream. Appending a
// Label implicitly does not open a Block; CFG construction (package
// cfg) is what partitions the flat stream into Blocks.
func (f *Function) Append(instr *Instr) {
	f.Instrs.PushBack(instr)
}

// InsertBefore/InsertAfter splice instr into the stream relative to an
// existing instruction, used by every pass that inserts new
// definitions (Spill, Reload, copies, phi materialization).
func (f *Function) InsertBefore(instr, mark *Instr) { f.Instrs.InsertBefore(instr, mark) }
func (f *Function) InsertAfter(instr, mark *Instr)  { f.Instrs.InsertAfter(instr, mark) }
func (f *Function) Remove(instr *Instr)             { f.Instrs.Remove(instr) }

// Vars returns every Var the function has allocated, in allocation
// order. Used by passes that need to iterate the whole arena (coloring
// validation, dumping).
func (f *Function) Vars() []*Var { return f.vars }
