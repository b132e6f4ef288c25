package backend

import (
	"bytes"
	"strings"
	"testing"

	"github.com/nc-labs/ssabe/archx64"
	"github.com/nc-labs/ssabe/irfront"
)

// compile parses the textual IR and runs the full pipeline, returning
// the assembly text.
func compile(t *testing.T, src string, numGP int) string {
	t.Helper()
	fns, err := irfront.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	arch := archx64.New()
	if numGP > 0 {
		arch.NumGP = numGP
	}
	var out bytes.Buffer
	if err := Compile(fns, Options{Arch: arch}, &out); err != nil {
		t.Fatalf("compile: %v", err)
	}
	return out.String()
}

func TestStraightLineAdd(t *testing.T) {
	asm := compile(t, `
function add2
  params a:int32, b:int32
  r = add.int32 a, b
  results r
end
`, 0)
	if !strings.Contains(asm, "addl") {
		t.Fatalf("expected an addl in:\n%s", asm)
	}
	if !strings.Contains(asm, "%eax") {
		t.Fatalf("result should end up in %%eax:\n%s", asm)
	}
	if strings.Contains(asm, "subq\t$") {
		t.Fatalf("straight-line add should not allocate a frame:\n%s", asm)
	}
	if strings.Contains(asm, "pushq") {
		t.Fatalf("no callee-save register should be touched:\n%s", asm)
	}
}

func TestDiamondPhiCoalesces(t *testing.T) {
	asm := compile(t, `
function pick
  params c:bool
  branch c, small, big
small:
  y = mov.int32 $1
  goto join
big:
  y = mov.int32 $2
  goto join
join:
  results y
end
`, 0)
	one := findDst(t, asm, "$1,")
	two := findDst(t, asm, "$2,")
	if one != two {
		t.Fatalf("phi sources landed in different registers (%s vs %s):\n%s", one, two, asm)
	}
}

// findDst returns the destination operand of the first mov whose
// source contains the given immediate text.
func findDst(t *testing.T, asm, immediate string) string {
	t.Helper()
	for _, line := range strings.Split(asm, "\n") {
		if !strings.Contains(line, immediate) {
			continue
		}
		fields := strings.Split(line, ",")
		return strings.TrimSpace(fields[len(fields)-1])
	}
	t.Fatalf("no instruction with source %q in:\n%s", immediate, asm)
	return ""
}

func TestSpillUnderPressure(t *testing.T) {
	asm := compile(t, `
function sum10
  v0 = mov.int64 $10
  v1 = mov.int64 $11
  v2 = mov.int64 $12
  v3 = mov.int64 $13
  v4 = mov.int64 $14
  v5 = mov.int64 $15
  v6 = mov.int64 $16
  v7 = mov.int64 $17
  v8 = mov.int64 $18
  v9 = mov.int64 $19
  s0 = add.int64 v0, v1
  s1 = add.int64 s0, v2
  s2 = add.int64 s1, v3
  s3 = add.int64 s2, v4
  s4 = add.int64 s3, v5
  s5 = add.int64 s4, v6
  s6 = add.int64 s5, v7
  s7 = add.int64 s6, v8
  s8 = add.int64 s7, v9
  results s8
end
`, 4)
	if !strings.Contains(asm, "(%rsp)") {
		t.Fatalf("4 registers for 10 live values should spill to the stack:\n%s", asm)
	}
	if !strings.Contains(asm, "subq\t$") {
		t.Fatalf("spilling requires a stack frame:\n%s", asm)
	}
}

func TestDivTargetsRAXAndRDX(t *testing.T) {
	asm := compile(t, `
function quot
  params a:int32, b:int32
  q = div.int32 a, b
  results q
end
`, 0)
	if !strings.Contains(asm, "cltd") {
		t.Fatalf("32-bit signed division needs cltd before idivl:\n%s", asm)
	}
	if !strings.Contains(asm, "idivl") {
		t.Fatalf("expected idivl:\n%s", asm)
	}
	if strings.Contains(asm, "idivl\t%edx") || strings.Contains(asm, "idivl\t%eax") {
		t.Fatalf("divisor must not occupy rax or rdx:\n%s", asm)
	}
}

func TestLoopSwapCompiles(t *testing.T) {
	asm := compile(t, `
function swap
  params a:int64, b:int64, n:int64
  i = mov.int64 $0
loop:
  t = mov.int64 a
  a = mov.int64 b
  b = mov.int64 t
  i = add.int64 i, $1
  c = cmplt.int64 i, n
  branch c, loop, done
done:
  results a
end
`, 0)
	if !strings.Contains(asm, "jl\t") {
		t.Fatalf("the loop comparison should fuse into a jl:\n%s", asm)
	}
	if strings.Contains(asm, "setl") {
		t.Fatalf("a fused comparison must not also materialize its result:\n%s", asm)
	}
}

func TestConstantFoldAtEmission(t *testing.T) {
	asm := compile(t, `
function fold
  z = add.int32 $3, $4
  results z
end
`, 0)
	if !strings.Contains(asm, "$7") {
		t.Fatalf("3 + 4 should fold to an immediate 7:\n%s", asm)
	}
	if strings.Contains(asm, "addl") {
		t.Fatalf("folded constants should not emit an add:\n%s", asm)
	}
}

func TestCallUsesSysVRegisters(t *testing.T) {
	asm := compile(t, `
function caller
  params x:int64
  a = mov.int64 $5
  r:int64 = call helper a
  s = add.int64 r, x
  results s
end
`, 0)
	if !strings.Contains(asm, "call\thelper") {
		t.Fatalf("expected a call to helper:\n%s", asm)
	}
	if !strings.Contains(asm, "%rdi") {
		t.Fatalf("the argument should travel in %%rdi:\n%s", asm)
	}
	// x lives across the call, so a callee-save register must be
	// preserved in the prologue.
	if !strings.Contains(asm, "pushq") {
		t.Fatalf("a value living across a call needs a callee-save register:\n%s", asm)
	}
}

func TestFunctionFraming(t *testing.T) {
	asm := compile(t, `
function main
  r = mov.int32 $0
  results r
end
`, 0)
	for _, want := range []string{".globl main", ".type main, @function", ".LFB0:", ".LFE0:",
		".size main, .-main", "_start:", ".LCS64:", "syscall"} {
		if !strings.Contains(asm, want) {
			t.Fatalf("missing %q in:\n%s", want, asm)
		}
	}
}

func TestConcurrentCompileMatchesSerial(t *testing.T) {
	src := `
function one
  params a:int32, b:int32
  r = add.int32 a, b
  results r
end
function two
  params a:int32, b:int32
  r = sub.int32 a, b
  results r
end
`
	fns1, err := irfront.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	var serial bytes.Buffer
	if err := Compile(fns1, Options{}, &serial); err != nil {
		t.Fatal(err)
	}

	fns2, err := irfront.Parse(strings.NewReader(src))
	if err != nil {
		t.Fatal(err)
	}
	var parallel bytes.Buffer
	if err := Compile(fns2, Options{Concurrency: 4}, &parallel); err != nil {
		t.Fatal(err)
	}

	if serial.String() != parallel.String() {
		t.Fatalf("concurrent compilation diverged from serial output")
	}
}
