package ir

import (
	"fmt"
	"strings"
)

// Dump renders the function's instruction stream as text, in the same
// spirit as the teacher's emu/disassemble operand printers: one
// instruction per line, block boundaries marked by their Label.
func (f *Function) Dump() string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "function %s\n", f.Name)
	for i := f.Instrs.Front(); i != nil; i = i.Next() {
		dumpInstr(&sb, i)
	}
	return sb.String()
}

func dumpInstr(sb *strings.Builder, i *Instr) {
	switch i.Op {
	case OpLabel:
		fmt.Fprintf(sb, "L%p:\n", i)
		return
	case OpGoto:
		fmt.Fprintf(sb, "  goto %s\n", blockName(i.Targets[0]))
		return
	case OpBranch:
		fmt.Fprintf(sb, "  branch(%s) %s %s, %s\n", i.Cond, operandString(i.Args[0].Val),
			blockName(i.Targets[0]), blockName(i.Targets[1]))
		return
	}
	sb.WriteString("  ")
	if len(i.Results) > 0 {
		parts := make([]string, len(i.Results))
		for k, r := range i.Results {
			parts[k] = VarString(r.Var)
		}
		sb.WriteString(strings.Join(parts, ", "))
		sb.WriteString(" = ")
	}
	sb.WriteString(i.Op.String())
	if i.Op == OpAssign {
		fmt.Fprintf(sb, ".%d", i.Sub)
	}
	for _, a := range i.Args {
		sb.WriteString(" ")
		sb.WriteString(operandString(a.Val))
	}
	sb.WriteString("\n")
}

func (c CondCode) String() string {
	names := [...]string{"none", "eq", "ne", "lt", "le", "gt", "ge", "b", "be", "a", "ae"}
	if int(c) < len(names) {
		return names[c]
	}
	return "?"
}

func blockName(b *Block) string {
	if b == nil {
		return "<nil>"
	}
	return fmt.Sprintf("bb%d", b.ID)
}

func operandString(op Operand) string {
	switch o := op.(type) {
	case *Const:
		return fmt.Sprintf("$%d", o.Bits)
	case *Undef:
		return "undef"
	case *Var:
		return VarString(o)
	default:
		return "?"
	}
}
