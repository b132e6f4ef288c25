package irfront

import (
	"strings"
	"testing"

	"github.com/google/go-cmp/cmp"

	"github.com/nc-labs/ssabe/ir"
)

func parseOne(t *testing.T, src string) *ir.Function {
	t.Helper()
	fns, err := Parse(strings.NewReader(src))
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if len(fns) != 1 {
		t.Fatalf("expected 1 function, got %d", len(fns))
	}
	return fns[0]
}

func opcodes(f *ir.Function) []ir.Opcode {
	var ops []ir.Opcode
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		ops = append(ops, i.Op)
	}
	return ops
}

func TestParseStraightLine(t *testing.T) {
	f := parseOne(t, `
# plain add
function add2
  params a:int32, b:int32
  r = add.int32 a, b
  results r
end
`)
	if f.Name != "add2" {
		t.Fatalf("function name %q", f.Name)
	}
	want := []ir.Opcode{ir.OpLabel, ir.OpSetParams, ir.OpAssign, ir.OpSetResults}
	if diff := cmp.Diff(want, opcodes(f)); diff != "" {
		t.Fatalf("instruction stream mismatch (-want +got):\n%s", diff)
	}
	if len(f.Params) != 2 || f.Params[0].Typ != ir.TypeInt32 {
		t.Fatalf("parameters not recorded: %+v", f.Params)
	}
	if f.Params[0].Number >= 0 {
		t.Fatalf("parser should mint pre-SSA names, got %d", f.Params[0].Number)
	}
}

func TestParseBranchesAndLabels(t *testing.T) {
	f := parseOne(t, `
function pick
  params c:bool
  branch c, yes, no
yes:
  y = mov.int32 $1
  goto join
no:
  y = mov.int32 $2
  goto join
join:
  results y
end
`)
	want := []ir.Opcode{
		ir.OpLabel, ir.OpSetParams, ir.OpBranch,
		ir.OpLabel, ir.OpAssign, ir.OpGoto,
		ir.OpLabel, ir.OpAssign, ir.OpGoto,
		ir.OpLabel, ir.OpSetResults,
	}
	if diff := cmp.Diff(want, opcodes(f)); diff != "" {
		t.Fatalf("instruction stream mismatch (-want +got):\n%s", diff)
	}

	// Both movs write the same pre-SSA variable.
	var defs []*ir.Var
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		if i.Op == ir.OpAssign {
			defs = append(defs, i.Results[0].Var)
		}
	}
	if defs[0] != defs[1] {
		t.Fatalf("redefinitions of y should share one pre-SSA name")
	}
}

func TestParseReusesConsts(t *testing.T) {
	f := parseOne(t, `
function twice
  a = mov.int32 $5
  b = mov.int32 $5
  r = add.int32 a, b
  results r
end
`)
	var consts []*ir.Const
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		for _, a := range i.Args {
			if c, ok := a.Val.(*ir.Const); ok {
				consts = append(consts, c)
			}
		}
	}
	if len(consts) != 2 || consts[0] != consts[1] {
		t.Fatalf("identical literals should intern to one Const")
	}
}

func TestParseFloatLiteral(t *testing.T) {
	f := parseOne(t, `
function half
  x = mov.real64 $0.5
  results x
end
`)
	var c *ir.Const
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		if i.Op == ir.OpAssign {
			c = i.Args[0].Val.(*ir.Const)
		}
	}
	if c.Typ != ir.TypeReal64 || c.Bits != 0x3fe0000000000000 {
		t.Fatalf("0.5 should store its IEEE bits, got %#x", c.Bits)
	}
}

func TestParseErrors(t *testing.T) {
	cases := []struct {
		name string
		src  string
	}{
		{"unknown mnemonic", "function f\n  x = frob.int32 $1\nend"},
		{"unknown type", "function f\n  x = mov.int128 $1\nend"},
		{"missing end", "function f\n  x = mov.int32 $1"},
		{"undefined label", "function f\n  goto nowhere\nend"},
		{"use before def", "function f\n  r = add.int32 a, b\n  results r\nend"},
		{"bad operand count", "function f\n  x = add.int32 $1\n  results x\nend"},
	}
	for _, tc := range cases {
		if _, err := Parse(strings.NewReader(tc.src)); err == nil {
			t.Errorf("%s: expected an error", tc.name)
		}
	}
}
