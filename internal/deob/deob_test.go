package deob

import (
	"reflect"
	"testing"

	"deqjs/internal/ir"
)

func expr(x ir.Expr) ir.Stmt { return &ir.ExpressionStatement{X: x} }

func call(name string) ir.Stmt { return expr(&ir.Call{Callee: ir.Ident(name)}) }

func setState(name string, v int64) ir.Stmt {
	return expr(&ir.Assignment{Op: "=", Target: ir.Ident(name), Value: ir.Int(v)})
}

func TestOpaquePredicateTrue(t *testing.T) {
	stmts := []ir.Stmt{
		&ir.If{
			Cond: &ir.BinaryOp{Op: "<", Lhs: ir.Int(1), Rhs: ir.Int(2)},
			Then: []ir.Stmt{call("taken")},
			Else: []ir.Stmt{call("dead")},
		},
	}
	out := Apply(stmts, Options{})
	if len(out) != 1 {
		t.Fatalf("got %d stmts: %#v", len(out), out)
	}
	es := out[0].(*ir.ExpressionStatement)
	if c := es.X.(*ir.Call).Callee.(*ir.Identifier); c.Name != "taken" {
		t.Errorf("kept %q, want taken branch", c.Name)
	}
}

func TestOpaquePredicateFalseLoop(t *testing.T) {
	stmts := []ir.Stmt{
		&ir.While{Cond: ir.Bool(false), Body: []ir.Stmt{call("dead")}},
		call("live"),
	}
	out := Apply(stmts, Options{})
	if len(out) != 1 {
		t.Fatalf("dead loop survived: %#v", out)
	}
}

func TestJunkStatements(t *testing.T) {
	stmts := []ir.Stmt{
		expr(ir.Ident("noop")),
		expr(&ir.BinaryOp{Op: "+", Lhs: ir.Int(1), Rhs: ir.Int(2)}),
		call("kept"),
		&ir.Block{},
	}
	out := Apply(stmts, Options{})
	if len(out) != 1 {
		t.Fatalf("got %d stmts, want only the call: %#v", len(out), out)
	}
}

func TestStringTableLookup(t *testing.T) {
	tables := map[string][]string{"tbl": {"alpha", "beta"}}
	stmts := []ir.Stmt{
		&ir.Return{X: &ir.MemberAccess{Object: ir.Ident("tbl"), Index: ir.Int(1), Computed: true}},
	}
	out := Apply(stmts, Options{StringTables: tables})
	ret := out[0].(*ir.Return)
	lit, ok := ret.X.(*ir.Literal)
	if !ok || lit.Kind != ir.LitString || lit.Str != "beta" {
		t.Fatalf("got %#v, want \"beta\"", ret.X)
	}
}

func TestStringTableOutOfRange(t *testing.T) {
	tables := map[string][]string{"tbl": {"alpha"}}
	stmts := []ir.Stmt{
		&ir.Return{X: &ir.MemberAccess{Object: ir.Ident("tbl"), Index: ir.Int(5), Computed: true}},
	}
	out := Apply(stmts, Options{StringTables: tables})
	if _, ok := out[0].(*ir.Return).X.(*ir.MemberAccess); !ok {
		t.Fatal("out-of-range lookup was rewritten")
	}
}

func TestUnflatten(t *testing.T) {
	stmts := []ir.Stmt{
		setState("state", 0),
		&ir.While{
			Cond: ir.Bool(true),
			Body: []ir.Stmt{&ir.Switch{
				Tag: ir.Ident("state"),
				Cases: []ir.SwitchCase{
					{Match: ir.Int(0), Body: []ir.Stmt{call("first"), setState("state", 2), &ir.Break{}}},
					{Match: ir.Int(1), Body: []ir.Stmt{call("third"), setState("state", 9), &ir.Break{}}},
					{Match: ir.Int(2), Body: []ir.Stmt{call("second"), setState("state", 1), &ir.Break{}}},
				},
			}},
		},
	}
	out := Apply(stmts, Options{})
	var got []string
	for _, s := range out {
		es, ok := s.(*ir.ExpressionStatement)
		if !ok {
			t.Fatalf("leftover %T: %#v", s, out)
		}
		got = append(got, es.X.(*ir.Call).Callee.(*ir.Identifier).Name)
	}
	want := []string{"first", "second", "third"}
	if !reflect.DeepEqual(got, want) {
		t.Fatalf("linearized order %v, want %v", got, want)
	}
}

func TestUnflattenKeepsRealLoop(t *testing.T) {
	stmts := []ir.Stmt{
		setState("state", 0),
		&ir.While{
			Cond: ir.Bool(true),
			Body: []ir.Stmt{&ir.Switch{
				Tag: ir.Ident("state"),
				Cases: []ir.SwitchCase{
					{Match: ir.Int(0), Body: []ir.Stmt{call("spin"), setState("state", 0), &ir.Break{}}},
				},
			}},
		},
	}
	out := Apply(stmts, Options{})
	found := false
	for _, s := range out {
		if _, ok := s.(*ir.While); ok {
			found = true
		}
	}
	if !found {
		t.Fatalf("cyclic dispatcher was linearized: %#v", out)
	}
}

func TestFixedPoint(t *testing.T) {
	stmts := []ir.Stmt{
		&ir.If{Cond: ir.Bool(true), Then: []ir.Stmt{call("a")}},
		call("b"),
	}
	once := Apply(stmts, Options{})
	twice := Apply(once, Options{})
	if !reflect.DeepEqual(once, twice) {
		t.Errorf("not a fixed point:\nonce:  %#v\ntwice: %#v", once, twice)
	}
}
