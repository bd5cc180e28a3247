package container

import (
	"encoding/binary"
	"math"
	"strings"
	"testing"

	"deqjs/internal/qjs"
)

// enc builds serialized fixtures byte by byte.
type enc struct {
	b []byte
}

func (e *enc) u8(v byte)    { e.b = append(e.b, v) }
func (e *enc) u16(v uint16) { e.b = binary.LittleEndian.AppendUint16(e.b, v) }
func (e *enc) u32(v uint32) { e.b = binary.LittleEndian.AppendUint32(e.b, v) }
func (e *enc) f64(v float64) {
	e.b = binary.LittleEndian.AppendUint64(e.b, math.Float64bits(v))
}

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

func (e *enc) sleb(v int32) {
	for {
		c := byte(v & 0x7f)
		v >>= 7
		if (v == 0 && c&0x40 == 0) || (v == -1 && c&0x40 != 0) {
			e.b = append(e.b, c)
			return
		}
		e.b = append(e.b, c|0x80)
	}
}

func (e *enc) qstr(s string) {
	e.leb(uint32(len(s)) << 1)
	e.b = append(e.b, s...)
}

// atomRef encodes an inline atom operand for the current format.
func (e *enc) atomRef(idx uint32) { e.leb(idx << 1) }

func TestLEB128(t *testing.T) {
	cases := []struct {
		bytes []byte
		want  uint32
	}{
		{[]byte{0x00}, 0},
		{[]byte{0x7f}, 127},
		{[]byte{0x80, 0x01}, 128},
		{[]byte{0xe5, 0x8e, 0x26}, 624485},
		{[]byte{0xff, 0xff, 0xff, 0xff, 0x0f}, 0xffffffff},
	}
	for _, c := range cases {
		r := newReader(c.bytes, qjs.Strict)
		got, err := r.leb128()
		if err != nil {
			t.Fatalf("leb128(%v): %v", c.bytes, err)
		}
		if got != c.want {
			t.Errorf("leb128(%v) = %d, want %d", c.bytes, got, c.want)
		}
	}
}

func TestLEB128Truncated(t *testing.T) {
	r := newReader([]byte{0x80, 0x80}, qjs.Strict)
	if _, err := r.leb128(); err == nil {
		t.Fatal("expected error for unterminated leb128")
	}
}

func TestSLEB128(t *testing.T) {
	for _, want := range []int32{0, 1, -1, 63, -64, 64, -65, 1 << 20, -(1 << 20), math.MaxInt32, math.MinInt32} {
		var e enc
		e.sleb(want)
		r := newReader(e.b, qjs.Strict)
		got, err := r.sleb128()
		if err != nil {
			t.Fatalf("sleb128(%d): %v", want, err)
		}
		if got != want {
			t.Errorf("sleb128 round trip: got %d, want %d", got, want)
		}
	}
}

func TestQString(t *testing.T) {
	var e enc
	e.qstr("hello")
	r := newReader(e.b, qjs.Strict)
	s, err := r.qstring()
	if err != nil {
		t.Fatal(err)
	}
	if s != "hello" {
		t.Errorf("got %q, want %q", s, "hello")
	}

	// Wide string: len<<1|1 then UTF-16LE units.
	var w enc
	w.leb(3<<1 | 1)
	for _, c := range []uint16{'a', 0x00e9, 'z'} {
		w.u16(c)
	}
	r = newReader(w.b, qjs.Strict)
	s, err = r.qstring()
	if err != nil {
		t.Fatal(err)
	}
	if s != "aéz" {
		t.Errorf("got %q, want %q", s, "aéz")
	}
}

// encodeFunc appends a current-format function record holding the given
// atom-table index as its name and bc as bytecode, with one constant.
func encodeFunc(e *enc, nameIdx uint32, bc []byte) {
	e.u8(tagFunctionBytecode)
	e.u16(0)                           // flags
	e.u8(1)                            // strict
	e.atomRef(qjs.BuiltinEndAtom() + nameIdx)
	e.leb(2)  // argCount
	e.leb(1)  // varCount
	e.leb(2)  // definedArgCount
	e.leb(8)  // stackSize
	e.leb(0)  // varRefCount
	e.leb(0)  // closureVarCount
	e.leb(1)  // cpoolCount
	e.leb(uint32(len(bc)))
	e.leb(1) // localCount

	// local: name, scopeLevel, scopeNext, flags (not captured)
	e.atomRef(qjs.BuiltinEndAtom() + 1)
	e.leb(0)
	e.leb(1)
	e.u8(0)

	// cpool: one int32
	e.u8(tagInt32)
	e.sleb(-42)

	e.b = append(e.b, bc...)
}

func currentFixture() []byte {
	var e enc
	e.u8(versionCurrent)
	e.leb(2)
	e.u8(1)
	e.qstr("main")
	e.u8(1)
	e.qstr("x")
	encodeFunc(&e, 0, []byte{0x06, 0x28}) // push_i32-free toy bytes
	return e.b
}

func TestDecodeCurrent(t *testing.T) {
	m, err := Decode(currentFixture())
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != qjs.VersionCurrent {
		t.Fatalf("version = %v", m.Version)
	}
	if m.Root.Kind != qjs.ValFunction {
		t.Fatalf("root kind = %v", m.Root.Kind)
	}
	fn := m.Root.Func
	if got, _ := fn.Name.Ident(); got != "main" {
		t.Errorf("name = %q, want main", got)
	}
	if !fn.StrictMode {
		t.Error("strict mode not set")
	}
	if fn.ArgCount != 2 || fn.VarCount != 1 || fn.StackSize != 8 {
		t.Errorf("counts = %d/%d/%d", fn.ArgCount, fn.VarCount, fn.StackSize)
	}
	if len(fn.Locals) != 1 {
		t.Fatalf("locals = %d", len(fn.Locals))
	}
	if got, _ := fn.Locals[0].Name.Ident(); got != "x" {
		t.Errorf("local name = %q", got)
	}
	if fn.Locals[0].ScopeNext != 0 {
		t.Errorf("scopeNext = %d, want 0", fn.Locals[0].ScopeNext)
	}
	if fn.Locals[0].Captured() {
		t.Error("local should not be captured")
	}
	if len(fn.ConstPool) != 1 || fn.ConstPool[0].Kind != qjs.ValInt32 || fn.ConstPool[0].Int != -42 {
		t.Errorf("cpool = %+v", fn.ConstPool)
	}
	if len(fn.Bytecode) != 2 {
		t.Errorf("bytecode len = %d", len(fn.Bytecode))
	}
}

func TestDecodeCurrentValues(t *testing.T) {
	var e enc
	e.u8(versionCurrent)
	e.leb(1)
	e.u8(1)
	e.qstr("k")

	e.u8(tagArray)
	e.leb(5)
	e.u8(tagBoolTrue)
	e.u8(tagFloat64)
	e.f64(1.5)
	e.u8(tagString)
	e.qstr("s")
	e.u8(tagObject)
	e.leb(1)
	e.atomRef(qjs.BuiltinEndAtom()) // "k"
	e.u8(tagNull)
	e.u8(tagUndefined)

	m, err := Decode(e.b)
	if err != nil {
		t.Fatal(err)
	}
	items := m.Root.Items
	if len(items) != 5 {
		t.Fatalf("items = %d", len(items))
	}
	if items[0].Kind != qjs.ValBool || !items[0].Bool {
		t.Errorf("items[0] = %+v", items[0])
	}
	if items[1].Kind != qjs.ValFloat64 || items[1].Float != 1.5 {
		t.Errorf("items[1] = %+v", items[1])
	}
	if items[2].Kind != qjs.ValString || items[2].Str != "s" {
		t.Errorf("items[2] = %+v", items[2])
	}
	obj := items[3]
	if obj.Kind != qjs.ValObject || len(obj.Props) != 1 {
		t.Fatalf("items[3] = %+v", obj)
	}
	if got, _ := obj.Props[0].Name.Ident(); got != "k" {
		t.Errorf("prop name = %q", got)
	}
	if obj.Props[0].Value.Kind != qjs.ValNull {
		t.Errorf("prop value = %+v", obj.Props[0].Value)
	}
}

func TestDecodeBadVersion(t *testing.T) {
	_, err := Decode([]byte{99, 0})
	if err == nil {
		t.Fatal("expected version error")
	}
	if !strings.Contains(err.Error(), "version") {
		t.Errorf("err = %v", err)
	}
}

func TestDecodeUnsupportedTag(t *testing.T) {
	var e enc
	e.u8(versionCurrent)
	e.leb(0)
	e.u8(tagMap)
	if _, err := Decode(e.b); err == nil {
		t.Fatal("expected error for map tag")
	}

	// Unknown tags outside the reserved list decode as opaque values.
	var u enc
	u.u8(versionCurrent)
	u.leb(0)
	u.u8(99)
	m, err := Decode(u.b)
	if err != nil {
		t.Fatal(err)
	}
	if m.Root.Kind != qjs.ValUnsupported || m.Root.Tag != 99 {
		t.Errorf("root = %+v", m.Root)
	}
}

func TestDecodeTruncated(t *testing.T) {
	full := currentFixture()
	for _, cut := range []int{1, 3, len(full) / 2, len(full) - 1} {
		if _, err := Decode(full[:cut]); err == nil {
			t.Errorf("cut at %d: expected error", cut)
		}
	}
}

func TestClampCountBestEffort(t *testing.T) {
	var e enc
	e.u8(versionCurrent)
	e.leb(1 << 30) // absurd atom count
	res, err := DecodeOpt(e.b, qjs.Options{Mode: qjs.BestEffort})
	// Clamped to zero atoms, then the root value is missing.
	if err == nil && res.Value != nil {
		t.Fatal("expected failure after clamp")
	}

	r := newReader(make([]byte, 10), qjs.BestEffort)
	n, err := r.clampCount(1<<30, 2, "entries")
	if err != nil {
		t.Fatal(err)
	}
	if n != 5 {
		t.Errorf("clamped to %d, want 5", n)
	}
	if len(r.diags) == 0 {
		t.Error("expected a diagnostic for the clamp")
	}

	rs := newReader(make([]byte, 10), qjs.Strict)
	if _, err := rs.clampCount(1<<30, 2, "entries"); err == nil {
		t.Error("strict mode should reject oversized counts")
	}
}

func legacyFixture() []byte {
	var e enc
	e.u8(versionLegacy)
	e.leb(1)
	e.qstr("work")

	firstModuleAtom := uint32(len(qjs.BuiltinAtoms)) + 1

	e.u8(tagFunctionBytecodeV1)
	e.u16(hasDebugFlag) // flags with debug info present
	e.u8(0)             // js mode
	e.leb(firstModuleAtom)
	e.leb(1) // argCount
	e.leb(0) // varCount
	e.leb(1) // definedArgCount
	e.leb(4) // stackSize
	e.leb(0) // closureVarCount
	e.leb(1) // cpoolCount
	e.leb(1) // bytecodeLen
	e.leb(0) // localCount

	e.u8(0x28) // bytecode

	// debug block: filename atom, line, pc2line map
	e.leb(firstModuleAtom)
	e.leb(12)
	e.leb(2)
	e.u8(0xaa)
	e.u8(0xbb)

	// cpool after debug in the legacy layout
	e.u8(tagString)
	e.qstr("c")
	return e.b
}

func TestDecodeLegacy(t *testing.T) {
	m, err := Decode(legacyFixture())
	if err != nil {
		t.Fatal(err)
	}
	if m.Version != qjs.VersionLegacy {
		t.Fatalf("version = %v", m.Version)
	}
	if m.Atoms.FirstAtom != 1 {
		t.Errorf("firstAtom = %d", m.Atoms.FirstAtom)
	}
	fn := m.Root.Func
	if fn == nil {
		t.Fatalf("root = %+v", m.Root)
	}
	if got, _ := fn.Name.Ident(); got != "work" {
		t.Errorf("name = %q", got)
	}
	if fn.ArgCount != 1 || fn.StackSize != 4 {
		t.Errorf("argCount = %d stackSize = %d", fn.ArgCount, fn.StackSize)
	}
	if len(fn.Bytecode) != 1 || fn.Bytecode[0] != 0x28 {
		t.Errorf("bytecode = %v", fn.Bytecode)
	}
	if len(fn.ConstPool) != 1 || fn.ConstPool[0].Str != "c" {
		t.Errorf("cpool = %+v", fn.ConstPool)
	}
}

func TestDecodeLegacyBuiltinAtom(t *testing.T) {
	var e enc
	e.u8(versionLegacy)
	e.leb(0)
	e.u8(tagObject)
	e.leb(1)
	e.leb(1) // atom id 1: first builtin
	e.u8(tagBoolFalse)

	m, err := Decode(e.b)
	if err != nil {
		t.Fatal(err)
	}
	name := m.Root.Props[0].Name
	if name.Str != qjs.BuiltinAtoms[0] {
		t.Errorf("atom = %q, want %q", name.Str, qjs.BuiltinAtoms[0])
	}
}

func TestVersionAutodetect(t *testing.T) {
	if m, err := Decode(legacyFixture()); err != nil || m.Version != qjs.VersionLegacy {
		t.Errorf("legacy sniff failed: %v %v", m, err)
	}
	if m, err := Decode(currentFixture()); err != nil || m.Version != qjs.VersionCurrent {
		t.Errorf("current sniff failed: %v %v", m, err)
	}

	// Forced version overrides the sniff.
	res, err := DecodeOpt(legacyFixture(), qjs.Options{Mode: qjs.Strict, Version: qjs.VersionCurrent})
	if err == nil && res.Value != nil && res.Value.Version == qjs.VersionLegacy {
		t.Error("forced current should not decode as legacy")
	}
}
