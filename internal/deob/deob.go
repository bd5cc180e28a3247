// Package deob undoes common obfuscation patterns in structured function
// bodies: opaque predicates, junk statements, string-table indirection,
// and control-flow flattening. Each rule matches a specific shape and is
// skipped when the shape is absent; the set runs to a fixed point under a
// bounded iteration cap.
package deob

import (
	"deqjs/internal/ir"
	"deqjs/internal/optimize"
	"deqjs/internal/qjs"
)

// Options configures the rule set.
type Options struct {
	// StringTables maps a binding name to the module-level string array
	// it holds, for resolving table[index] indirection.
	StringTables map[string][]string
	MaxSteps     int
}

// Apply runs the ordered rule set to a fixed point.
func Apply(stmts []ir.Stmt, opts Options) []ir.Stmt {
	maxSteps := opts.MaxSteps
	if maxSteps <= 0 {
		maxSteps = qjs.DefaultMaxSteps
	}
	for step := 0; step < maxSteps; step++ {
		changed := false
		mark := func(out ir.Expr, in ir.Expr) ir.Expr {
			if out != in {
				changed = true
			}
			return out
		}

		stmts = ir.RewriteStmts(stmts, func(list []ir.Stmt) []ir.Stmt {
			out, ch := opaquePredicates(list)
			if ch {
				changed = true
			}
			out, ch = junkStatements(out)
			if ch {
				changed = true
			}
			out, ch = unflatten(out)
			if ch {
				changed = true
			}
			return out
		}, func(e ir.Expr) ir.Expr {
			return mark(stringLookup(e, opts.StringTables), e)
		})

		if !changed {
			break
		}
	}
	return stmts
}

// opaquePredicates collapses branches and loops whose condition folds to
// a known constant.
func opaquePredicates(list []ir.Stmt) ([]ir.Stmt, bool) {
	changed := false
	out := make([]ir.Stmt, 0, len(list))
	for _, s := range list {
		switch s := s.(type) {
		case *ir.If:
			v, ok := ir.TruthyConst(optimize.FoldExpr(s.Cond))
			if !ok {
				out = append(out, s)
				continue
			}
			changed = true
			if v {
				out = append(out, s.Then...)
			} else {
				out = append(out, s.Else...)
			}
		case *ir.While:
			if v, ok := ir.TruthyConst(optimize.FoldExpr(s.Cond)); ok && !v {
				changed = true
				continue
			}
			out = append(out, s)
		case *ir.DoWhile:
			if v, ok := ir.TruthyConst(optimize.FoldExpr(s.Cond)); ok && !v {
				changed = true
				out = append(out, s.Body...)
				continue
			}
			out = append(out, s)
		default:
			out = append(out, s)
		}
	}
	return out, changed
}

// junkStatements drops statements with no observable effect.
func junkStatements(list []ir.Stmt) ([]ir.Stmt, bool) {
	changed := false
	out := make([]ir.Stmt, 0, len(list))
	for _, s := range list {
		switch s := s.(type) {
		case *ir.ExpressionStatement:
			if effectFree(s.X) {
				changed = true
				continue
			}
		case *ir.Block:
			if len(s.Body) == 0 {
				changed = true
				continue
			}
		case *ir.If:
			if len(s.Then) == 0 && len(s.Else) == 0 && effectFree(s.Cond) {
				changed = true
				continue
			}
		}
		out = append(out, s)
	}
	return out, changed
}

// effectFree is a conservative purity check: only shapes that provably
// cannot observe or mutate anything qualify.
func effectFree(e ir.Expr) bool {
	switch x := e.(type) {
	case *ir.Literal, *ir.Identifier, *ir.FunctionRef:
		return true
	case *ir.BinaryOp:
		return effectFree(x.Lhs) && effectFree(x.Rhs)
	case *ir.UnaryOp:
		switch x.Op {
		case "++", "--", "delete", "await", "yield", "yield*":
			return false
		}
		return effectFree(x.Operand)
	}
	return false
}

// stringLookup replaces table[i] with the i-th literal when the table
// contents are known.
func stringLookup(e ir.Expr, tables map[string][]string) ir.Expr {
	if len(tables) == 0 {
		return e
	}
	m, ok := e.(*ir.MemberAccess)
	if !ok || !m.Computed {
		return e
	}
	id, ok := m.Object.(*ir.Identifier)
	if !ok {
		return e
	}
	items, ok := tables[id.Name]
	if !ok {
		return e
	}
	idx, ok := m.Index.(*ir.Literal)
	if !ok || idx.Kind != ir.LitInt || idx.Int < 0 || idx.Int >= int64(len(items)) {
		return e
	}
	return ir.Str(items[idx.Int])
}

// unflatten re-linearizes a dispatcher loop: a state variable initialized
// before a loop whose body is a single switch on that variable, where
// every case deterministically sets the next state. The chain is followed
// from the initial state; a next state with no matching case exits.
func unflatten(list []ir.Stmt) ([]ir.Stmt, bool) {
	for i := 1; i < len(list); i++ {
		loop, ok := list[i].(*ir.While)
		if !ok || len(loop.Body) != 1 {
			continue
		}
		sw, ok := loop.Body[0].(*ir.Switch)
		if !ok {
			continue
		}
		stateVar, ok := sw.Tag.(*ir.Identifier)
		if !ok {
			continue
		}
		exit, condOK := dispatcherCond(loop.Cond, stateVar.Name)
		if !condOK {
			continue
		}
		name, init, isStore := storeOf(list[i-1])
		if !isStore || name != stateVar.Name {
			continue
		}
		start, ok := intLit(init)
		if !ok {
			continue
		}

		cases := make(map[int64][]ir.Stmt, len(sw.Cases))
		for _, c := range sw.Cases {
			k, ok := intLit(c.Match)
			if !ok {
				cases = nil
				break
			}
			cases[k] = c.Body
		}
		if cases == nil {
			continue
		}

		linear, ok := followChain(start, exit, cases, stateVar.Name)
		if !ok {
			continue
		}

		out := append([]ir.Stmt(nil), list[:i-1]...)
		out = append(out, linear...)
		out = append(out, list[i+1:]...)
		return out, true
	}
	return list, false
}

// dispatcherCond accepts `while (true)` and `while (state != K)` loop
// heads, returning the exit state for the latter.
func dispatcherCond(cond ir.Expr, stateVar string) (exit *int64, ok bool) {
	if v, isConst := ir.TruthyConst(cond); isConst && v {
		return nil, true
	}
	bin, isBin := cond.(*ir.BinaryOp)
	if !isBin || (bin.Op != "!==" && bin.Op != "!=") {
		return nil, false
	}
	id, isID := bin.Lhs.(*ir.Identifier)
	if !isID || id.Name != stateVar {
		return nil, false
	}
	k, isInt := intLit(bin.Rhs)
	if !isInt {
		return nil, false
	}
	return &k, true
}

// followChain walks dispatcher states from start, concatenating case
// bodies with their state updates stripped. Fails on a revisited state
// (a real loop) or a case with a non-constant next state.
func followChain(start int64, exit *int64, cases map[int64][]ir.Stmt, stateVar string) ([]ir.Stmt, bool) {
	var linear []ir.Stmt
	visited := make(map[int64]bool)
	state := start
	for {
		if exit != nil && state == *exit {
			return linear, true
		}
		body, ok := cases[state]
		if !ok {
			return linear, true // falls out of the dispatcher
		}
		if visited[state] {
			return nil, false
		}
		visited[state] = true

		next, stripped, ok := nextState(body, stateVar)
		if !ok {
			return nil, false
		}
		linear = append(linear, stripped...)
		state = next
	}
}

// nextState extracts the single trailing `state = K` from a case body,
// ignoring a final break.
func nextState(body []ir.Stmt, stateVar string) (int64, []ir.Stmt, bool) {
	end := len(body)
	if end > 0 {
		if _, ok := body[end-1].(*ir.Break); ok {
			end--
		}
	}
	if end == 0 {
		return 0, nil, false
	}
	name, val, ok := storeOf(body[end-1])
	if !ok || name != stateVar {
		return 0, nil, false
	}
	next, ok := intLit(val)
	if !ok {
		return 0, nil, false
	}
	return next, body[:end-1], true
}

func storeOf(s ir.Stmt) (string, ir.Expr, bool) {
	switch s := s.(type) {
	case *ir.ExpressionStatement:
		if as, ok := s.X.(*ir.Assignment); ok && as.Op == "=" {
			if id, ok := as.Target.(*ir.Identifier); ok {
				return id.Name, as.Value, true
			}
		}
	case *ir.VariableDeclaration:
		if s.Init != nil {
			return s.Name, s.Init, true
		}
	}
	return "", nil, false
}

func intLit(e ir.Expr) (int64, bool) {
	l, ok := e.(*ir.Literal)
	if !ok || l.Kind != ir.LitInt {
		return 0, false
	}
	return l.Int, true
}
