package bytecode

import (
	"encoding/binary"
	"testing"

	"deqjs/internal/qjs"
)

// asm assembles instructions by mnemonic for fixtures.
type asm struct {
	b []byte
}

func (a *asm) op(t *testing.T, name string, args ...byte) {
	t.Helper()
	op, ok := OpByName(name)
	if !ok {
		t.Fatalf("no opcode named %q", name)
	}
	info, _ := Info(op)
	if len(args) != int(info.Size)-1 {
		t.Fatalf("%s wants %d operand bytes, got %d", name, info.Size-1, len(args))
	}
	a.b = append(a.b, op)
	a.b = append(a.b, args...)
}

func u32le(v uint32) []byte {
	var b [4]byte
	binary.LittleEndian.PutUint32(b[:], v)
	return b[:]
}

func TestTableSanity(t *testing.T) {
	if len(opcodeTable) != 244 {
		t.Fatalf("table has %d entries", len(opcodeTable))
	}
	checks := map[string]struct {
		size  uint8
		fmt   OpFormat
		npop  uint8
		npush uint8
	}{
		"invalid":      {1, FmtNone, 0, 0},
		"push_i32":     {5, FmtI32, 0, 1},
		"get_field":    {5, FmtAtom, 1, 1},
		"if_false":     {5, FmtLabel, 1, 0},
		"with_get_var": {10, FmtAtomLabelU8, 1, 0},
		"make_loc_ref": {7, FmtAtomU16, 0, 2},
		"goto8":        {2, FmtLabel8, 0, 0},
		"call":         {3, FmtNPop, 1, 1},
		"eval":         {5, FmtNPopU16, 1, 1},
		"typeof_is_function": {1, FmtNone, 1, 1},
	}
	for name, want := range checks {
		op, ok := OpByName(name)
		if !ok {
			t.Errorf("missing opcode %q", name)
			continue
		}
		info, _ := Info(op)
		if info.Size != want.size || info.Fmt != want.fmt || info.NPop != want.npop || info.NPush != want.npush {
			t.Errorf("%s: got %+v, want %+v", name, info, want)
		}
	}
	// Short forms sit at the tail of the table.
	if op, _ := OpByName("typeof_is_function"); int(op) != len(opcodeTable)-1 {
		t.Errorf("typeof_is_function at %d", op)
	}
}

func TestDecodeSimple(t *testing.T) {
	var a asm
	a.op(t, "push_i8", 7)
	a.op(t, "push_0")
	a.op(t, "add")
	a.op(t, "return")

	res, err := Decode(a.b, qjs.Strict)
	if err != nil {
		t.Fatal(err)
	}
	ins := res.Value
	if len(ins) != 4 {
		t.Fatalf("decoded %d instrs", len(ins))
	}
	if ins[0].Name != "push_i8" || ins[0].Imm != 7 {
		t.Errorf("ins[0] = %+v", ins[0])
	}
	if ins[1].PC != 2 || ins[2].PC != 3 || ins[3].PC != 4 {
		t.Errorf("pcs = %d %d %d", ins[1].PC, ins[2].PC, ins[3].PC)
	}
	if ins[2].NPop != 2 || ins[2].NPush != 1 {
		t.Errorf("add effect = %d/%d", ins[2].NPop, ins[2].NPush)
	}
	if !ins[3].Terminates() {
		t.Error("return should terminate")
	}
}

func TestDecodeLabels(t *testing.T) {
	var a asm
	a.op(t, "push_true")                // pc 0
	a.op(t, "if_false", u32le(6)...)    // pc 1, target 1+1+6 = 8
	a.op(t, "push_1")                   // pc 6
	a.op(t, "return")                   // pc 7
	a.op(t, "return_undef")             // pc 8

	res, err := Decode(a.b, qjs.Strict)
	if err != nil {
		t.Fatal(err)
	}
	br := res.Value[1]
	if !br.HasTarget() || br.Target != 8 {
		t.Errorf("if_false target = %d, want 8", br.Target)
	}
	if !br.IsJump() {
		t.Error("if_false should be a jump")
	}
	if br.Terminates() {
		t.Error("if_false falls through")
	}
}

func TestDecodeBackwardLabel8(t *testing.T) {
	var a asm
	a.op(t, "nop")         // pc 0
	a.op(t, "goto8", 0xfe) // pc 1, rel -2, target 0
	res, err := Decode(a.b, qjs.Strict)
	if err != nil {
		t.Fatal(err)
	}
	if got := res.Value[1].Target; got != 0 {
		t.Errorf("goto8 target = %d, want 0", got)
	}
}

func TestDecodeAtomLabel(t *testing.T) {
	var a asm
	args := append(u32le(9), u32le(2)...) // atom 9, rel 2
	args = append(args, 1)                // scope byte
	a.op(t, "with_get_var", args...)

	res, err := Decode(a.b, qjs.Strict)
	if err != nil {
		t.Fatal(err)
	}
	ins := res.Value[0]
	if ins.Atom != 9 {
		t.Errorf("atom = %d", ins.Atom)
	}
	// atom_label targets are relative to pc+5.
	if ins.Target != 7 {
		t.Errorf("target = %d, want 7", ins.Target)
	}
	if ins.Imm2 != 1 {
		t.Errorf("imm2 = %d", ins.Imm2)
	}
}

func TestDecodeUnknownOpcode(t *testing.T) {
	code := []byte{0xff, 0x06} // out of table, then "undefined"

	if _, err := Decode(code, qjs.Strict); err == nil {
		t.Fatal("strict mode should reject unknown opcodes")
	}

	res, err := Decode(code, qjs.BestEffort)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Value) != 2 {
		t.Fatalf("decoded %d instrs", len(res.Value))
	}
	if res.Value[0].Name != "unknown" {
		t.Errorf("placeholder name = %q", res.Value[0].Name)
	}
	if res.Value[1].Name != "undefined" {
		t.Errorf("decode should resume after the placeholder, got %q", res.Value[1].Name)
	}
	if len(res.Diags) != 1 || res.Diags[0].Kind != "unknown_opcode" {
		t.Errorf("diags = %+v", res.Diags)
	}
}

func TestDecodeTruncatedTail(t *testing.T) {
	op, _ := OpByName("push_i32")
	code := []byte{op, 1, 2} // needs 4 operand bytes

	if _, err := Decode(code, qjs.Strict); err == nil {
		t.Fatal("strict mode should reject a truncated tail")
	}

	res, err := Decode(code, qjs.BestEffort)
	if err != nil {
		t.Fatal(err)
	}
	if len(res.Value) != 1 || res.Value[0].Name != "unknown" {
		t.Errorf("instrs = %+v", res.Value)
	}
	if len(res.Diags) != 1 || res.Diags[0].Kind != "truncated_instruction" {
		t.Errorf("diags = %+v", res.Diags)
	}
}
