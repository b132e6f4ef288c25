// Package codegen performs instruction selection and assembly text
// emission (spec.md §4.13): System V AT&T syntax for x86-64 Linux, one
// function at a time, with prologue/epilogue framing, phi-move
// placement at block edges, and a dispatch keyed on (opcode, operand
// kinds, register aliasing). The operand printers follow the teacher's
// disassembler structure: one small formatter per addressing shape.
package codegen

import (
	"fmt"
	"io"

	"github.com/nc-labs/ssabe/archx64"
	"github.com/nc-labs/ssabe/diag"
	"github.com/nc-labs/ssabe/ir"
	"github.com/nc-labs/ssabe/layout"
	"github.com/nc-labs/ssabe/phi"
)

// Emitter renders functions against one shared architecture and
// constant pool. It is safe to use from concurrent goroutines as long
// as each call writes to its own io.Writer (the pool serializes
// internally).
type Emitter struct {
	arch *archx64.Arch
	pool *layout.ConstPool
}

func New(arch *archx64.Arch, pool *layout.ConstPool) *Emitter {
	return &Emitter{arch: arch, pool: pool}
}

// Prelude opens the .text section.
func (e *Emitter) Prelude(w io.Writer) {
	fmt.Fprintf(w, "\t.text\n")
}

// Start emits the process entry point: align the stack, call the entry
// function, exit with its return value (spec.md §4.13).
func (e *Emitter) Start(w io.Writer, entry string) {
	fmt.Fprintf(w, "\t.globl _start\n")
	fmt.Fprintf(w, "_start:\n")
	fmt.Fprintf(w, "\txorl\t%%ebp, %%ebp\n")
	fmt.Fprintf(w, "\tandq\t$-16, %%rsp\n")
	fmt.Fprintf(w, "\tcall\t%s\n", entry)
	fmt.Fprintf(w, "\tmovq\t%%rax, %%rdi\n")
	fmt.Fprintf(w, "\tmovq\t$60, %%rax\n")
	fmt.Fprintf(w, "\tsyscall\n")
}

// Constants writes the deduplicated pool and sign masks.
func (e *Emitter) Constants(w io.Writer) {
	e.pool.Emit(w)
}

// Function emits one fully-allocated function. index disambiguates the
// .LFB/.LFE framing and block labels across the compilation unit.
func (e *Emitter) Function(w io.Writer, f *ir.Function, index int) {
	fe := &fnEmitter{Emitter: e, w: w, f: f, index: index}
	fe.run()
}

type fnEmitter struct {
	*Emitter
	w     io.Writer
	f     *ir.Function
	index int
	saves []int // callee-save colors pushed by the prologue, in order
}

func (fe *fnEmitter) run() {
	f := fe.f
	fe.saves = fe.usedCalleeSaves()
	diag.Assertf(len(fe.saves) == f.Frame.NumPushes,
		"%s: layout planned %d callee-save pushes, prologue needs %d",
		f.Name, f.Frame.NumPushes, len(fe.saves))

	fmt.Fprintf(fe.w, "\t.globl %s\n", f.Name)
	fmt.Fprintf(fe.w, "\t.type %s, @function\n", f.Name)
	fmt.Fprintf(fe.w, "%s:\n", f.Name)
	fmt.Fprintf(fe.w, ".LFB%d:\n", fe.index)

	if f.Frame.TotalSize > 0 {
		fmt.Fprintf(fe.w, "\tsubq\t$%d, %%rsp\n", f.Frame.TotalSize)
	}
	for _, c := range fe.saves {
		fmt.Fprintf(fe.w, "\tpushq\t%%%s\n", fe.arch.RegName(ir.RClass, c, ir.TypeInt64))
	}

	fe.body()
	fe.epilogue()

	fmt.Fprintf(fe.w, ".LFE%d:\n", fe.index)
	fmt.Fprintf(fe.w, "\t.size %s, .-%s\n", f.Name, f.Name)
}

func (fe *fnEmitter) epilogue() {
	for i := len(fe.saves) - 1; i >= 0; i-- {
		fmt.Fprintf(fe.w, "\tpopq\t%%%s\n", fe.arch.RegName(ir.RClass, fe.saves[i], ir.TypeInt64))
	}
	if fe.f.Frame.TotalSize > 0 {
		fmt.Fprintf(fe.w, "\taddq\t$%d, %%rsp\n", fe.f.Frame.TotalSize)
	}
	fmt.Fprintf(fe.w, "\tret\n")
}

// usedCalleeSaves intersects the callee-save set with the colors the
// function actually uses, in the fixed push order.
func (fe *fnEmitter) usedCalleeSaves() []int {
	used := map[int]bool{}
	for _, v := range fe.f.Vars() {
		if !v.IsMem && !v.IsSpilled && v.Color >= 0 && ir.ClassOf(v.Typ) == ir.RClass {
			used[v.Color] = true
		}
	}
	var saves []int
	for _, c := range fe.arch.CalleeSaved() {
		if used[c] {
			saves = append(saves, c)
		}
	}
	return saves
}

// body walks the instruction stream. Phis are skipped (their moves are
// emitted at block edges), SetParams/SetResults project the ABI and
// emit nothing, and everything else dispatches on opcode.
func (fe *fnEmitter) body() {
	f := fe.f
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		switch i.Op {
		case ir.OpLabel:
			b := i.Block()
			// A predecessor falling through to a join emits its phi
			// moves here, still on its own side of the label.
			if prev := i.Prev(); prev != nil && !prev.IsJump() && len(b.Preds) > 1 {
				if p := prev.Block(); p != nil && hasPhis(b) && isPred(b, p) {
					fe.phiMoves(p, b)
				}
			}
			fmt.Fprintf(fe.w, "%s:\n", fe.blockLabel(b))
			// A single-predecessor block's phi moves belong to its one
			// edge, which is equivalent to its own entry.
			if hasPhis(b) && len(b.Preds) == 1 {
				fe.phiMoves(b.Preds[0], b)
			}
		case ir.OpPhi, ir.OpSetParams, ir.OpSetResults, ir.OpNop:
			// no code
		case ir.OpGoto:
			t := i.Targets[0]
			if hasPhis(t) && len(t.Preds) > 1 {
				fe.phiMoves(i.Block(), t)
			}
			fmt.Fprintf(fe.w, "\tjmp\t%s\n", fe.blockLabel(t))
		case ir.OpBranch:
			fe.branch(i)
		case ir.OpAssign:
			fe.assign(i)
		case ir.OpSpill:
			fe.spill(i)
		case ir.OpReload:
			fe.reload(i)
		case ir.OpLoad:
			fe.load(i)
		case ir.OpStore:
			fe.store(i)
		case ir.OpCast:
			fe.cast(i)
		case ir.OpCall:
			fmt.Fprintf(fe.w, "\tcall\t%s\n", i.Symbol)
		}
	}
}

func hasPhis(b *ir.Block) bool { return b.FirstPhi != nil && b.FirstPhi.Op == ir.OpPhi }

func isPred(b, p *ir.Block) bool { return ir.PredIndex(b, p) >= 0 }

func (fe *fnEmitter) blockLabel(b *ir.Block) string {
	return fmt.Sprintf(".L%d_%d", fe.index, b.ID)
}

// phiMoves lowers and prints the parallel copy for edge p→b.
func (fe *fnEmitter) phiMoves(p, b *ir.Block) {
	for _, m := range phi.Lower(p, b, fe.arch) {
		fe.phiMove(m)
	}
}
