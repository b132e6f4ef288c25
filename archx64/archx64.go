// Package archx64 is the x86-64 capability object (spec.md §9): the
// register file, System V parameter/result/callee-save conventions, the
// stack "places" and alignment rule, and register-name printing. Dense
// named constants plus lookup tables, in the same style as the
// teacher's emu/opcodemap.
package archx64

import "github.com/nc-labs/ssabe/ir"

// General-purpose register indices (colors for the R class). Canonical
// encoding order: RAX=0 ... R15=15.
const (
	RAX = iota
	RCX
	RDX
	RBX
	RSP
	RBP
	RSI
	RDI
	R8
	R9
	R10
	R11
	R12
	R13
	R14
	R15
)

// XMM register indices (colors for the F class).
const (
	XMM0 = iota
	XMM1
	XMM2
	XMM3
	XMM4
	XMM5
	XMM6
	XMM7
	XMM8
	XMM9
	XMM10
	XMM11
	XMM12
	XMM13
	XMM14
	XMM15
)

// Stack places (spec.md §4.11): place 0 holds 8-byte slots, place 1
// holds 16-byte slots.
const (
	PlaceQuad = 0
	PlaceOct  = 1
	NumPlaces = 2
)

// PlaceSize maps a place to its item size in bytes.
var PlaceSize = [NumPlaces]int{8, 16}

// Arch bundles the target's allocation and emission capabilities so
// the passes take one object instead of reaching for globals. NumGP
// and NumXMM bound the reservoirs, letting tests (and the config file)
// shrink the register file to force spilling.
type Arch struct {
	NumGP  int
	NumXMM int
}

// New returns the full-register-file x86-64 target.
func New() *Arch { return &Arch{NumGP: 14, NumXMM: 16} }

// gpAllocOrder is the preference order for R-class allocation:
// caller-save registers first so short-lived values avoid forcing
// prologue pushes, RSP never, RBP last (only taken when the frame
// pointer is omitted, which this back end always does).
var gpAllocOrder = []int{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11, RBX, R12, R13, R14, R15, RBP}

// Reservoir returns the admissible colors for a register class, in
// allocation-preference order.
func (a *Arch) Reservoir(class ir.Class) []int {
	switch class {
	case ir.RClass:
		n := a.NumGP
		if n > len(gpAllocOrder) {
			n = len(gpAllocOrder)
		}
		return gpAllocOrder[:n]
	case ir.FClass:
		res := make([]int, a.NumXMM)
		for i := range res {
			res[i] = i
		}
		return res
	}
	return nil
}

// CalleeSaved lists the integer registers the System V ABI requires a
// function to preserve. All XMM registers are caller-save.
func (a *Arch) CalleeSaved() []int { return []int{RBX, RBP, R12, R13, R14, R15} }

// IntArgRegs / FPArgRegs are the System V parameter registers.
func (a *Arch) IntArgRegs() []int { return []int{RDI, RSI, RDX, RCX, R8, R9} }
func (a *Arch) FPArgRegs() []int {
	return []int{XMM0, XMM1, XMM2, XMM3, XMM4, XMM5, XMM6, XMM7}
}

// IntRetRegs / FPRetRegs are the System V result registers.
func (a *Arch) IntRetRegs() []int { return []int{RAX, RDX} }
func (a *Arch) FPRetRegs() []int  { return []int{XMM0} }

// CallerClobbered lists the integer registers a call may destroy.
func (a *Arch) CallerClobbered() []int {
	return []int{RAX, RCX, RDX, RSI, RDI, R8, R9, R10, R11}
}

// PlaceOf maps a register class to the stack place its spill slots
// live in: R-class values spill to quadword slots, F-class values to
// octword slots (SSE stores are 16-byte friendly and the phi-lowering
// scratch path treats them as octwords).
func PlaceOf(class ir.Class) int {
	if class == ir.FClass {
		return PlaceOct
	}
	return PlaceQuad
}

// AlignedOffset is the layout alignment rule (spec.md §4.11):
// round current up to min(next power of two >= size, 16).
func AlignedOffset(current, size int) int {
	align := 1
	for align < size {
		align <<= 1
	}
	if align > 16 {
		align = 16
	}
	return (current + align - 1) &^ (align - 1)
}

var gpName64 = [16]string{"rax", "rcx", "rdx", "rbx", "rsp", "rbp", "rsi", "rdi",
	"r8", "r9", "r10", "r11", "r12", "r13", "r14", "r15"}
var gpName32 = [16]string{"eax", "ecx", "edx", "ebx", "esp", "ebp", "esi", "edi",
	"r8d", "r9d", "r10d", "r11d", "r12d", "r13d", "r14d", "r15d"}
var gpName16 = [16]string{"ax", "cx", "dx", "bx", "sp", "bp", "si", "di",
	"r8w", "r9w", "r10w", "r11w", "r12w", "r13w", "r14w", "r15w"}
var gpName8 = [16]string{"al", "cl", "dl", "bl", "spl", "bpl", "sil", "dil",
	"r8b", "r9b", "r10b", "r11b", "r12b", "r13b", "r14b", "r15b"}

// RegName prints the AT&T name (no % prefix) of a register color sized
// for operand type typ.
func (a *Arch) RegName(class ir.Class, color int, typ ir.Type) string {
	if class == ir.FClass {
		return xmmName(color)
	}
	switch ir.ByteSize(typ) {
	case 1:
		return gpName8[color]
	case 2:
		return gpName16[color]
	case 4:
		return gpName32[color]
	default:
		return gpName64[color]
	}
}

func xmmName(color int) string {
	names := [16]string{"xmm0", "xmm1", "xmm2", "xmm3", "xmm4", "xmm5", "xmm6", "xmm7",
		"xmm8", "xmm9", "xmm10", "xmm11", "xmm12", "xmm13", "xmm14", "xmm15"}
	return names[color]
}
