package lift

import (
	"errors"
	"testing"

	"deqjs/internal/bytecode"
	"deqjs/internal/cfg"
	"deqjs/internal/ir"
	"deqjs/internal/qjs"
)

// asm assembles mnemonics and raw operand bytes into bytecode.
func asm(t *testing.T, parts ...any) []byte {
	t.Helper()
	var code []byte
	for _, p := range parts {
		switch p := p.(type) {
		case string:
			op, ok := bytecode.OpByName(p)
			if !ok {
				t.Fatalf("unknown mnemonic %q", p)
			}
			code = append(code, op)
		case int:
			code = append(code, byte(p))
		default:
			t.Fatalf("bad asm part %T", p)
		}
	}
	return code
}

func liftCode(t *testing.T, fn *qjs.FunctionInfo, atoms *qjs.AtomTable, opts Options) qjs.Result[*Lifted] {
	t.Helper()
	res, err := bytecode.Decode(fn.Bytecode, qjs.Strict)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	g := cfg.Build(res.Value)
	out, err := Function(fn, atoms, g, opts)
	if err != nil {
		t.Fatalf("lift: %v", err)
	}
	return out
}

func testAtoms(strs ...string) *qjs.AtomTable {
	at := &qjs.AtomTable{FirstAtom: 1}
	for _, s := range strs {
		at.Atoms = append(at.Atoms, qjs.StringAtom(s))
	}
	return at
}

func TestLiftArithmetic(t *testing.T) {
	fn := &qjs.FunctionInfo{
		ArgCount: 2,
		Locals: []qjs.VarDef{
			{Name: qjs.StringAtom("a"), VarRefIdx: -1},
			{Name: qjs.StringAtom("b"), VarRefIdx: -1},
		},
		Bytecode: asm(t, "get_arg0", "get_arg1", "add", "return"),
	}
	out := liftCode(t, fn, testAtoms(), Options{})
	if len(out.Value.Stmts) != 1 {
		t.Fatalf("got %d stmts, want 1", len(out.Value.Stmts))
	}
	ret, ok := out.Value.Stmts[0].(*ir.Return)
	if !ok {
		t.Fatalf("stmt is %T, want Return", out.Value.Stmts[0])
	}
	bin, ok := ret.X.(*ir.BinaryOp)
	if !ok || bin.Op != "+" {
		t.Fatalf("return value is %#v, want a + b", ret.X)
	}
	if lhs := bin.Lhs.(*ir.Identifier); lhs.Name != "a" {
		t.Errorf("lhs = %q, want a", lhs.Name)
	}
	if rhs := bin.Rhs.(*ir.Identifier); rhs.Name != "b" {
		t.Errorf("rhs = %q, want b", rhs.Name)
	}
}

func TestLiftLocalStore(t *testing.T) {
	fn := &qjs.FunctionInfo{
		VarCount: 1,
		Bytecode: asm(t, "push_5", "put_loc0", "return_undef"),
	}
	out := liftCode(t, fn, testAtoms(), Options{})
	if len(out.Value.Stmts) != 2 {
		t.Fatalf("got %d stmts, want 2", len(out.Value.Stmts))
	}
	es, ok := out.Value.Stmts[0].(*ir.ExpressionStatement)
	if !ok {
		t.Fatalf("stmt is %T, want ExpressionStatement", out.Value.Stmts[0])
	}
	as, ok := es.X.(*ir.Assignment)
	if !ok || as.Op != "=" {
		t.Fatalf("expr is %#v, want loc0 = 5", es.X)
	}
	if tgt := as.Target.(*ir.Identifier); tgt.Name != "loc0" {
		t.Errorf("target = %q, want loc0", tgt.Name)
	}
	if v := as.Value.(*ir.Literal); v.Kind != ir.LitInt || v.Int != 5 {
		t.Errorf("value = %#v, want 5", as.Value)
	}
	if _, ok := out.Value.Stmts[1].(*ir.Return); !ok {
		t.Errorf("trailing stmt is %T, want bare Return", out.Value.Stmts[1])
	}
}

func TestLiftMethodCall(t *testing.T) {
	atoms := testAtoms("console", "log")
	fn := &qjs.FunctionInfo{
		Bytecode: asm(t,
			"get_var", 1, 0, 0, 0, // console
			"get_field2", 2, 0, 0, 0, // console.log
			"push_i8", 42,
			"call_method", 1, 0,
			"drop",
			"return_undef",
		),
	}
	out := liftCode(t, fn, atoms, Options{})
	if len(out.Value.Stmts) != 2 {
		t.Fatalf("got %d stmts, want 2", len(out.Value.Stmts))
	}
	es := out.Value.Stmts[0].(*ir.ExpressionStatement)
	call, ok := es.X.(*ir.Call)
	if !ok {
		t.Fatalf("expr is %T, want Call", es.X)
	}
	m, ok := call.Callee.(*ir.MemberAccess)
	if !ok || m.Prop != "log" {
		t.Fatalf("callee = %#v, want console.log", call.Callee)
	}
	if obj := m.Object.(*ir.Identifier); obj.Name != "console" {
		t.Errorf("receiver = %q, want console", obj.Name)
	}
	if len(call.Args) != 1 {
		t.Fatalf("got %d args, want 1", len(call.Args))
	}
	if len(out.Value.Calls) != 1 || out.Value.Calls[0].Callee != "console.log" {
		t.Errorf("call summary = %+v, want console.log", out.Value.Calls)
	}
}

func TestLiftBranch(t *testing.T) {
	fn := &qjs.FunctionInfo{
		ArgCount: 1,
		Bytecode: asm(t,
			"get_arg0", // 0
			"if_false8", 3, // 1, target 5
			"push_1", // 3
			"return", // 4
			"return_undef", // 5
		),
	}
	out := liftCode(t, fn, testAtoms(), Options{})
	var cond *ir.CondGoto
	var labels []int
	for _, s := range out.Value.Stmts {
		switch s := s.(type) {
		case *ir.CondGoto:
			cond = s
		case *ir.Label:
			labels = append(labels, s.PC)
		}
	}
	if cond == nil {
		t.Fatal("no CondGoto lifted")
	}
	if !cond.IfFalse || cond.Target != 5 {
		t.Errorf("CondGoto = %+v, want if_false to 5", cond)
	}
	if len(labels) != 1 || labels[0] != 5 {
		t.Errorf("labels = %v, want [5]", labels)
	}
}

func TestLiftStackMismatch(t *testing.T) {
	// The join at offset 4 sees depth 1 from the fallthrough path and
	// depth 0 from the jump path.
	code := asm(t,
		"push_0",       // 0
		"if_true8", 2,  // 1, target 4
		"push_1",       // 3
		"return_undef", // 4
	)
	fn := &qjs.FunctionInfo{Bytecode: code}

	res, err := bytecode.Decode(code, qjs.Strict)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	g := cfg.Build(res.Value)

	_, err = Function(fn, testAtoms(), g, Options{Mode: qjs.Strict, FuncName: "f"})
	var sm *qjs.StackMismatchError
	if !errors.As(err, &sm) {
		t.Fatalf("strict err = %v, want StackMismatchError", err)
	}
	if sm.Offset != 4 {
		t.Errorf("mismatch offset = %d, want 4", sm.Offset)
	}

	out, err := Function(fn, testAtoms(), g, Options{Mode: qjs.BestEffort, FuncName: "f"})
	if err != nil {
		t.Fatalf("best effort: %v", err)
	}
	found := false
	for _, d := range out.Diags {
		if d.Kind == "stack_mismatch" {
			found = true
		}
	}
	if !found {
		t.Error("best effort lift lost the stack_mismatch diagnostic")
	}
}

func TestLiftCallDepthAcrossBranch(t *testing.T) {
	// The call arm pops the callee plus one argument, so both arms reach
	// the join one deep. Strict lifting must agree on that depth.
	fn := &qjs.FunctionInfo{
		ArgCount: 2,
		Bytecode: asm(t,
			"get_arg0",     // 0
			"if_false8", 6, // 1, target 8
			"get_arg1",     // 3
			"push_1",       // 4
			"call1",        // 5
			"goto8", 2,     // 6, target 9
			"push_2",       // 8
			"return",       // 9
		),
	}
	out := liftCode(t, fn, testAtoms(), Options{Mode: qjs.Strict, FuncName: "f"})
	for _, d := range out.Diags {
		if d.Kind == "stack_mismatch" || d.Kind == "stack_join" {
			t.Errorf("unexpected diagnostic %s: %s", d.Kind, d.Msg)
		}
	}
	var ret *ir.Return
	for _, s := range out.Value.Stmts {
		if r, ok := s.(*ir.Return); ok {
			ret = r
		}
	}
	if ret == nil {
		t.Fatal("no Return lifted")
	}
	if _, ok := ret.X.(*ir.Conditional); !ok {
		t.Errorf("return value is %T, want Conditional", ret.X)
	}
}

func TestLiftTernaryJoin(t *testing.T) {
	fn := &qjs.FunctionInfo{
		ArgCount: 1,
		Bytecode: asm(t,
			"get_arg0",     // 0
			"if_false8", 4, // 1, target 6
			"push_1",       // 3
			"goto8", 2,     // 4, target 7
			"push_2",       // 6
			"return",       // 7
		),
	}
	out := liftCode(t, fn, testAtoms(), Options{Mode: qjs.Strict, FuncName: "f"})
	if len(out.Diags) != 0 {
		t.Errorf("diags = %+v, want none", out.Diags)
	}
	var rest []ir.Stmt
	for _, s := range out.Value.Stmts {
		switch s.(type) {
		case *ir.Label:
		case *ir.Goto, *ir.CondGoto:
			t.Errorf("branch artifact %T survived the join fold", s)
		default:
			rest = append(rest, s)
		}
	}
	if len(rest) != 1 {
		t.Fatalf("got %d stmts besides labels, want 1", len(rest))
	}
	ret, ok := rest[0].(*ir.Return)
	if !ok {
		t.Fatalf("stmt is %T, want Return", rest[0])
	}
	c, ok := ret.X.(*ir.Conditional)
	if !ok {
		t.Fatalf("return value is %T, want Conditional", ret.X)
	}
	if id, ok := c.Cond.(*ir.Identifier); !ok || id.Name != "arg0" {
		t.Errorf("cond = %#v, want arg0", c.Cond)
	}
	if v, ok := c.Then.(*ir.Literal); !ok || v.Int != 1 {
		t.Errorf("then arm = %#v, want 1", c.Then)
	}
	if v, ok := c.Else.(*ir.Literal); !ok || v.Int != 2 {
		t.Errorf("else arm = %#v, want 2", c.Else)
	}
}

func TestLiftShortCircuitAnd(t *testing.T) {
	fn := &qjs.FunctionInfo{
		ArgCount: 2,
		Bytecode: asm(t,
			"get_arg0",     // 0
			"dup",          // 1
			"if_false8", 3, // 2, target 6
			"drop",         // 4
			"get_arg1",     // 5
			"return",       // 6
		),
	}
	out := liftCode(t, fn, testAtoms(), Options{Mode: qjs.Strict, FuncName: "f"})
	if len(out.Diags) != 0 {
		t.Errorf("diags = %+v, want none", out.Diags)
	}
	var ret *ir.Return
	for _, s := range out.Value.Stmts {
		switch s := s.(type) {
		case *ir.CondGoto:
			t.Error("CondGoto survived the short-circuit fold")
		case *ir.Return:
			ret = s
		}
	}
	if ret == nil {
		t.Fatal("no Return lifted")
	}
	bin, ok := ret.X.(*ir.BinaryOp)
	if !ok || bin.Op != "&&" {
		t.Fatalf("return value is %#v, want arg0 && arg1", ret.X)
	}
	if lhs := bin.Lhs.(*ir.Identifier); lhs.Name != "arg0" {
		t.Errorf("lhs = %q, want arg0", lhs.Name)
	}
	if rhs := bin.Rhs.(*ir.Identifier); rhs.Name != "arg1" {
		t.Errorf("rhs = %q, want arg1", rhs.Name)
	}
}

func TestLiftJoinDiagnostic(t *testing.T) {
	// One arm does real work before pushing its value, so the diamond is
	// not a plain ternary and the join value cannot be reconstructed.
	fn := &qjs.FunctionInfo{
		ArgCount: 2,
		VarCount: 1,
		Bytecode: asm(t,
			"get_arg0",     // 0
			"if_false8", 6, // 1, target 8
			"push_1",       // 3
			"put_loc0",     // 4
			"get_arg1",     // 5
			"goto8", 2,     // 6, target 9
			"push_2",       // 8
			"return",       // 9
		),
	}
	out := liftCode(t, fn, testAtoms(), Options{FuncName: "f"})
	found := false
	for _, d := range out.Diags {
		if d.Kind == "stack_join" && d.Offset == 9 {
			found = true
		}
	}
	if !found {
		t.Errorf("diags = %+v, want a stack_join at 9", out.Diags)
	}
	var ret *ir.Return
	for _, s := range out.Value.Stmts {
		if r, ok := s.(*ir.Return); ok {
			ret = r
		}
	}
	if ret == nil {
		t.Fatal("no Return lifted")
	}
	if u, ok := ret.X.(*ir.Unknown); !ok || u.Text != "stack0" {
		t.Errorf("return value = %#v, want the stack0 placeholder", ret.X)
	}
}

func TestBindings(t *testing.T) {
	fn := &qjs.FunctionInfo{
		ArgCount: 1,
		VarCount: 2,
		Locals: []qjs.VarDef{
			{Name: qjs.StringAtom("x"), VarRefIdx: -1},
		},
		ClosureVars: []qjs.ClosureVar{{Name: qjs.StringAtom("outer")}},
	}
	b := NewScope(fn).Bindings()
	if len(b) != 4 {
		t.Fatalf("got %d bindings, want 4", len(b))
	}
	want := []Binding{
		{Slot: 0, Name: "x", Kind: BindParam},
		{Slot: 0, Name: "loc0", Kind: BindLocal},
		{Slot: 1, Name: "loc1", Kind: BindLocal},
		{Slot: 0, Name: "outer", Kind: BindCaptured},
	}
	for i, w := range want {
		if b[i] != w {
			t.Errorf("binding %d = %+v, want %+v", i, b[i], w)
		}
	}
}

func TestDisplayName(t *testing.T) {
	named := &qjs.FunctionInfo{Name: qjs.StringAtom("init")}
	if got := DisplayName(named, 3, true); got != "init" {
		t.Errorf("named = %q, want init", got)
	}
	anon := &qjs.FunctionInfo{}
	if got := DisplayName(anon, 3, true); got != "closure_3" {
		t.Errorf("deobfuscated anon = %q, want closure_3", got)
	}
	if got := DisplayName(anon, 3, false); got != "anonymous" {
		t.Errorf("anon = %q, want anonymous", got)
	}
}
