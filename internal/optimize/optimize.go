// Package optimize applies conservative, semantics-preserving rewrites
// to structured function bodies: constant folding, dead-store removal,
// single-use temporary collapsing, and trailing return-undefined removal.
// Rules only fire when provably safe; anything uncertain stays as is.
package optimize

import (
	"math"

	"deqjs/internal/ir"
	"deqjs/internal/qjs"
)

// Apply rewrites stmts to a fixed point, capped at maxSteps rounds.
func Apply(stmts []ir.Stmt, maxSteps int) []ir.Stmt {
	if maxSteps <= 0 {
		maxSteps = qjs.DefaultMaxSteps
	}
	for step := 0; step < maxSteps; step++ {
		changed := false

		stmts = ir.RewriteStmts(stmts, nil, func(e ir.Expr) ir.Expr {
			out := foldOne(e)
			if out != e {
				changed = true
			}
			return out
		})

		reads := readCounts(stmts)
		stmts = ir.RewriteStmts(stmts, func(list []ir.Stmt) []ir.Stmt {
			out, ch := collapseTemps(list, reads)
			if ch {
				changed = true
			}
			out, ch = dropDeadStores(out, reads)
			if ch {
				changed = true
			}
			return out
		}, nil)

		if !changed {
			break
		}
	}
	return dropTrailingReturn(stmts)
}

// FoldExpr folds constant subexpressions bottom-up.
func FoldExpr(e ir.Expr) ir.Expr {
	return ir.RewriteExpr(e, foldOne)
}

func foldOne(e ir.Expr) ir.Expr {
	switch x := e.(type) {
	case *ir.BinaryOp:
		if out, ok := foldBinary(x); ok {
			return out
		}
	case *ir.UnaryOp:
		if out, ok := foldUnary(x); ok {
			return out
		}
	}
	return e
}

// numeric returns the float64 value of a numeric literal.
func numeric(e ir.Expr) (float64, bool) {
	l, ok := e.(*ir.Literal)
	if !ok {
		return 0, false
	}
	switch l.Kind {
	case ir.LitInt:
		return float64(l.Int), true
	case ir.LitFloat:
		return l.Num, true
	case ir.LitBool:
		if l.Bool {
			return 1, true
		}
		return 0, true
	}
	return 0, false
}

// numLit renders a float64 result, preferring the integer form when
// exact.
func numLit(v float64) ir.Expr {
	if v == math.Trunc(v) && !math.IsInf(v, 0) && math.Abs(v) < 1<<53 {
		return ir.Int(int64(v))
	}
	return ir.Float(v)
}

func foldBinary(x *ir.BinaryOp) (ir.Expr, bool) {
	ls, lIsStr := x.Lhs.(*ir.Literal)
	rs, rIsStr := x.Rhs.(*ir.Literal)
	lIsStr = lIsStr && ls.Kind == ir.LitString
	rIsStr = rIsStr && rs.Kind == ir.LitString

	if x.Op == "+" && lIsStr && rIsStr {
		return ir.Str(ls.Str + rs.Str), true
	}
	if (x.Op == "===" || x.Op == "==") && lIsStr && rIsStr {
		return ir.Bool(ls.Str == rs.Str), true
	}
	if (x.Op == "!==" || x.Op == "!=") && lIsStr && rIsStr {
		return ir.Bool(ls.Str != rs.Str), true
	}

	a, aok := numeric(x.Lhs)
	b, bok := numeric(x.Rhs)
	if !aok || !bok {
		return nil, false
	}
	switch x.Op {
	case "+":
		return numLit(a + b), true
	case "-":
		return numLit(a - b), true
	case "*":
		return numLit(a * b), true
	case "/":
		return numLit(a / b), true // IEEE: x/0 = Inf, 0/0 = NaN
	case "%":
		return numLit(math.Mod(a, b)), true
	case "**":
		return numLit(math.Pow(a, b)), true
	case "&":
		return ir.Int(int64(toInt32(a) & toInt32(b))), true
	case "|":
		return ir.Int(int64(toInt32(a) | toInt32(b))), true
	case "^":
		return ir.Int(int64(toInt32(a) ^ toInt32(b))), true
	case "<<":
		return ir.Int(int64(toInt32(a) << (toUint32(b) & 31))), true
	case ">>":
		return ir.Int(int64(toInt32(a) >> (toUint32(b) & 31))), true
	case ">>>":
		return ir.Int(int64(toUint32(a) >> (toUint32(b) & 31))), true
	case "<":
		return ir.Bool(a < b), true
	case "<=":
		return ir.Bool(a <= b), true
	case ">":
		return ir.Bool(a > b), true
	case ">=":
		return ir.Bool(a >= b), true
	case "==", "===":
		return ir.Bool(a == b), true
	case "!=", "!==":
		return ir.Bool(a != b), true
	}
	return nil, false
}

func foldUnary(x *ir.UnaryOp) (ir.Expr, bool) {
	if x.Postfix {
		return nil, false
	}
	switch x.Op {
	case "!":
		if v, ok := ir.TruthyConst(x.Operand); ok {
			return ir.Bool(!v), true
		}
	case "-":
		if v, ok := numeric(x.Operand); ok {
			return numLit(-v), true
		}
	case "~":
		if v, ok := numeric(x.Operand); ok {
			return ir.Int(int64(^toInt32(v))), true
		}
	}
	return nil, false
}

// toInt32 applies the ToInt32 conversion used by JS bitwise operators.
func toInt32(v float64) int32 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return int32(uint32(int64(math.Trunc(v))))
}

func toUint32(v float64) uint32 {
	return uint32(toInt32(v))
}

// readCounts counts identifier reads (occurrences outside plain
// assignment-target position) across the whole body.
func readCounts(stmts []ir.Stmt) map[string]int {
	reads := make(map[string]int)
	skip := make(map[*ir.Identifier]bool)
	ir.WalkExprs(stmts, func(e ir.Expr) bool {
		if as, ok := e.(*ir.Assignment); ok && as.Op == "=" {
			if id, ok := as.Target.(*ir.Identifier); ok {
				skip[id] = true
			}
		}
		if id, ok := e.(*ir.Identifier); ok && !skip[id] {
			reads[id.Name]++
		}
		return true
	})
	return reads
}

// pure reports whether evaluating e has no observable side effect.
func pure(e ir.Expr) bool {
	switch x := e.(type) {
	case *ir.Literal, *ir.Identifier, *ir.FunctionRef:
		return true
	case *ir.BinaryOp:
		return pure(x.Lhs) && pure(x.Rhs)
	case *ir.UnaryOp:
		switch x.Op {
		case "++", "--", "delete", "await", "yield", "yield*":
			return false
		}
		return pure(x.Operand)
	case *ir.Conditional:
		return pure(x.Cond) && pure(x.Then) && pure(x.Else)
	}
	return false
}

// simpleStore matches `name = value` statements.
func simpleStore(s ir.Stmt) (string, ir.Expr, bool) {
	es, ok := s.(*ir.ExpressionStatement)
	if !ok {
		return "", nil, false
	}
	as, ok := es.X.(*ir.Assignment)
	if !ok || as.Op != "=" {
		return "", nil, false
	}
	id, ok := as.Target.(*ir.Identifier)
	if !ok {
		return "", nil, false
	}
	return id.Name, as.Value, true
}

// collapseTemps substitutes a single-use temporary into the immediately
// following statement. Impure values only move into positions where the
// temporary is the whole expression, preserving evaluation order.
func collapseTemps(list []ir.Stmt, reads map[string]int) ([]ir.Stmt, bool) {
	changed := false
	for i := 0; i+1 < len(list); i++ {
		name, val, ok := simpleStore(list[i])
		if !ok || reads[name] != 1 {
			continue
		}
		next := list[i+1]
		if !pure(val) && !wholeExprUse(next, name) {
			continue
		}
		if !usesName(next, name) || assignsName(next, name) {
			continue
		}
		sub := ir.RewriteStmts([]ir.Stmt{next}, nil, func(e ir.Expr) ir.Expr {
			if id, ok := e.(*ir.Identifier); ok && id.Name == name {
				return val
			}
			return e
		})
		list = append(list[:i], append(sub, list[i+2:]...)...)
		changed = true
		i--
	}
	return list, changed
}

// wholeExprUse reports whether the statement's expression is exactly the
// named identifier.
func wholeExprUse(s ir.Stmt, name string) bool {
	isName := func(e ir.Expr) bool {
		id, ok := e.(*ir.Identifier)
		return ok && id.Name == name
	}
	switch s := s.(type) {
	case *ir.Return:
		return isName(s.X)
	case *ir.Throw:
		return isName(s.X)
	case *ir.ExpressionStatement:
		return isName(s.X)
	}
	return false
}

// assignsName reports whether the statement writes the named binding.
func assignsName(s ir.Stmt, name string) bool {
	found := false
	ir.WalkExprs([]ir.Stmt{s}, func(e ir.Expr) bool {
		if as, ok := e.(*ir.Assignment); ok {
			if id, ok := as.Target.(*ir.Identifier); ok && id.Name == name {
				found = true
			}
		}
		return !found
	})
	return found
}

func usesName(s ir.Stmt, name string) bool {
	found := false
	ir.WalkExprs([]ir.Stmt{s}, func(e ir.Expr) bool {
		if id, ok := e.(*ir.Identifier); ok && id.Name == name {
			found = true
		}
		return !found
	})
	return found
}

// dropDeadStores removes pure stores to names never read anywhere.
func dropDeadStores(list []ir.Stmt, reads map[string]int) ([]ir.Stmt, bool) {
	changed := false
	out := list[:0]
	for _, s := range list {
		if name, val, ok := simpleStore(s); ok && reads[name] == 0 && pure(val) {
			changed = true
			continue
		}
		out = append(out, s)
	}
	return out, changed
}

// dropTrailingReturn removes a redundant final return of undefined.
func dropTrailingReturn(stmts []ir.Stmt) []ir.Stmt {
	for len(stmts) > 0 {
		r, ok := stmts[len(stmts)-1].(*ir.Return)
		if !ok || (r.X != nil && !ir.IsUndefined(r.X)) {
			break
		}
		stmts = stmts[:len(stmts)-1]
	}
	return stmts
}
