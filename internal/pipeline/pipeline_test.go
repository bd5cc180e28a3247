package pipeline

import (
	"strings"
	"testing"

	"deqjs/internal/bytecode"
	"deqjs/internal/qjs"
)

// enc mirrors the serializer just enough to build module fixtures.
type enc struct {
	b []byte
}

func (e *enc) u8(v byte)    { e.b = append(e.b, v) }
func (e *enc) u16(v uint16) { e.b = append(e.b, byte(v), byte(v>>8)) }

func (e *enc) leb(v uint32) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if v != 0 {
			c |= 0x80
		}
		e.b = append(e.b, c)
		if v == 0 {
			return
		}
	}
}

func (e *enc) qstr(s string) {
	e.leb(uint32(len(s)) << 1)
	e.b = append(e.b, s...)
}

func (e *enc) atomRef(idx uint32) { e.leb(idx << 1) }

func op(t *testing.T, name string) byte {
	t.Helper()
	b, ok := bytecode.OpByName(name)
	if !ok {
		t.Fatalf("no opcode %q", name)
	}
	return b
}

// fixture builds a current-format module with one strict two-arg
// function named "main" holding the given bytecode.
func fixture(bc []byte) []byte {
	var e enc
	e.u8(23) // version
	e.leb(1) // atom count
	e.u8(1)
	e.qstr("main")

	e.u8(12) // function tag
	e.u16(0) // flags
	e.u8(1)  // js mode
	e.atomRef(qjs.BuiltinEndAtom())
	e.leb(2) // argCount
	e.leb(0) // varCount
	e.leb(2) // definedArgCount
	e.leb(8) // stackSize
	e.leb(0) // varRefCount
	e.leb(0) // closureVarCount
	e.leb(0) // cpoolCount
	e.leb(uint32(len(bc)))
	e.leb(0) // localCount
	e.b = append(e.b, bc...)
	return e.b
}

func TestDecompilePseudo(t *testing.T) {
	bc := []byte{op(t, "get_arg0"), op(t, "get_arg1"), op(t, "add"), op(t, "return")}
	out, err := Decompile(fixture(bc), qjs.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	if len(out.Funcs) != 1 {
		t.Fatalf("funcs = %d, want 1", len(out.Funcs))
	}
	f := out.Funcs[0]
	if f.Name != "main" {
		t.Errorf("name = %q", f.Name)
	}
	if f.Fallback {
		t.Error("unexpected disasm fallback")
	}
	for _, frag := range []string{"function main(arg0, arg1) {", "return arg0 + arg1;"} {
		if !strings.Contains(f.Text, frag) {
			t.Errorf("output missing %q:\n%s", frag, f.Text)
		}
	}
}

func TestDecompileDisasm(t *testing.T) {
	bc := []byte{op(t, "push_1"), op(t, "return")}
	opts := qjs.DefaultOptions()
	opts.Emit = qjs.EmitDisasm
	out, err := Decompile(fixture(bc), opts)
	if err != nil {
		t.Fatal(err)
	}
	text := out.Funcs[0].Text
	for _, frag := range []string{"function main (args=2, vars=0, strict=true)", "bytecode:", "push_1", "return"} {
		if !strings.Contains(text, frag) {
			t.Errorf("listing missing %q:\n%s", frag, text)
		}
	}
}

func TestUnknownOpcodeWarningTagged(t *testing.T) {
	bc := []byte{0xfe, op(t, "return_undef")}
	out, err := Decompile(fixture(bc), qjs.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, d := range out.Warnings() {
		if d.Kind == "unknown_opcode" && d.Func == "main" {
			found = true
		}
	}
	if !found {
		t.Errorf("no tagged unknown_opcode warning in %+v", out.Warnings())
	}
}

func TestStrictUnknownOpcodeFallsBack(t *testing.T) {
	bc := []byte{0xfe, op(t, "return_undef")}
	opts := qjs.DefaultOptions()
	opts.Mode = qjs.Strict
	out, err := Decompile(fixture(bc), opts)
	if err != nil {
		t.Fatal(err)
	}
	f := out.Funcs[0]
	if !strings.Contains(f.Text, "decode error") {
		t.Errorf("expected decode error placeholder, got:\n%s", f.Text)
	}
}

func TestIrreducibleFlowWarning(t *testing.T) {
	// A two-block cycle entered at both ends cannot be structured.
	bc := []byte{
		op(t, "if_true8"), 3, // 0 -> 4
		op(t, "goto8"), 1, // 2 -> 4
		op(t, "goto8"), 0xfd, // 4 -> 2
	}
	out, err := Decompile(fixture(bc), qjs.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	var found bool
	for _, d := range out.Warnings() {
		if d.Kind == "unstructured" && d.Func == "main" &&
			strings.Contains(d.Msg, "irreducible") {
			found = true
		}
	}
	if !found {
		t.Errorf("no irreducible-flow warning in %+v", out.Warnings())
	}
}

func TestModuleGraph(t *testing.T) {
	bc := []byte{op(t, "get_arg0"), op(t, "if_false8"), 2, op(t, "return_undef"), op(t, "return_undef")}
	out, err := Decompile(fixture(bc), qjs.DefaultOptions())
	if err != nil {
		t.Fatal(err)
	}
	g := out.Graph()
	if g == nil || len(g.Funcs) != 1 {
		t.Fatalf("graph = %+v", g)
	}
	if len(g.Funcs[0].Blocks) < 2 {
		t.Errorf("blocks = %d, want at least 2", len(g.Funcs[0].Blocks))
	}
}
