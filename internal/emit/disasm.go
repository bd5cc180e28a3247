package emit

import (
	"fmt"
	"strings"

	"deqjs/internal/bytecode"
	"deqjs/internal/qjs"
)

// Disasm renders one function as an instruction listing. Atom operands
// carry the resolved name as a trailing comment; label operands print the
// raw relative offset the way the encoder wrote it.
func Disasm(fn *qjs.FunctionInfo, atoms *qjs.AtomTable, instrs []bytecode.Instr) string {
	var b strings.Builder
	name, ok := fn.Name.Ident()
	if !ok || name == "" {
		name = "<anonymous>"
	}
	fmt.Fprintf(&b, "function %s (args=%d, vars=%d, strict=%t)\n",
		name, fn.ArgCount, fn.VarCount, fn.StrictMode)
	b.WriteString("bytecode:\n")

	for i := range instrs {
		ins := &instrs[i]
		fmt.Fprintf(&b, "%05d %-18s", ins.PC, ins.Name)
		writeOperands(&b, ins, atoms)
		b.WriteString("\n")
	}
	return b.String()
}

func writeOperands(b *strings.Builder, ins *bytecode.Instr, atoms *qjs.AtomTable) {
	atomName := func() string { return atoms.ResolveOrRaw(ins.Atom).String() }

	switch ins.Fmt {
	case bytecode.FmtNone, bytecode.FmtNoneInt, bytecode.FmtNoneLoc,
		bytecode.FmtNoneArg, bytecode.FmtNoneVarRef, bytecode.FmtNPopX:
	case bytecode.FmtU8, bytecode.FmtI8, bytecode.FmtU16, bytecode.FmtI16,
		bytecode.FmtU32, bytecode.FmtI32, bytecode.FmtLoc8, bytecode.FmtLoc,
		bytecode.FmtArg, bytecode.FmtVarRef, bytecode.FmtNPop,
		bytecode.FmtConst8, bytecode.FmtConst,
		bytecode.FmtLabel8, bytecode.FmtLabel16, bytecode.FmtLabel:
		fmt.Fprintf(b, "       %d", ins.Imm)
	case bytecode.FmtNPopU16, bytecode.FmtLabelU16:
		fmt.Fprintf(b, "       %d, %d", ins.Imm, ins.Imm2)
	case bytecode.FmtAtom:
		fmt.Fprintf(b, "       %d ; %s", ins.Atom, atomName())
	case bytecode.FmtAtomU8, bytecode.FmtAtomU16:
		fmt.Fprintf(b, "       %d, %d ; %s", ins.Atom, ins.Imm2, atomName())
	case bytecode.FmtAtomLabelU8, bytecode.FmtAtomLabelU16:
		fmt.Fprintf(b, "       %d, %d, %d ; %s", ins.Atom, ins.Imm, ins.Imm2, atomName())
	default:
		fmt.Fprintf(b, "       <fmt:%d>", ins.Fmt)
	}
}
