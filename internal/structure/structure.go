// Package structure folds the lifter's flat Label/Goto/CondGoto stream
// into structured control flow: if/else, loops, try/catch and switch.
// Recognition is pattern based and conservative; anything that does not
// match a known shape is left as a labeled goto and reported.
package structure

import (
	"fmt"

	"deqjs/internal/ir"
	"deqjs/internal/qjs"
)

// Statements structures one function body. maxSteps caps the number of
// rewrite rounds; 0 uses the default.
func Statements(stmts []ir.Stmt, maxSteps int) ([]ir.Stmt, []qjs.Diagnostic) {
	if maxSteps <= 0 {
		maxSteps = qjs.DefaultMaxSteps
	}

	for step := 0; step < maxSteps; step++ {
		changed := false
		apply := func(pass func([]ir.Stmt) ([]ir.Stmt, bool)) {
			stmts = ir.RewriteStmts(stmts, func(list []ir.Stmt) []ir.Stmt {
				out, ch := pass(list)
				if ch {
					changed = true
				}
				return out
			}, nil)
		}
		apply(foldTry)
		apply(foldWhile)
		apply(foldDoWhile)
		apply(foldIfElse)
		apply(foldIf)

		var ch bool
		stmts, ch = foldGotoReturn(stmts)
		if ch {
			changed = true
		}
		stmts, ch = pruneLabels(stmts)
		if ch {
			changed = true
		}
		if !changed {
			break
		}
	}

	stmts = foldShortCircuit(stmts)
	stmts = foldSwitch(stmts)
	stmts = promoteFor(stmts)

	var diags []qjs.Diagnostic
	if n := countArtifacts(stmts); n > 0 {
		diags = append(diags, qjs.Diagnostic{
			Kind: "unstructured",
			Msg:  fmt.Sprintf("%d control transfers left as labeled gotos", n),
		})
	}
	return stmts, diags
}

// findLabel returns the index of Label{pc} in list after from, or -1.
func findLabel(list []ir.Stmt, pc, from int) int {
	for i := from; i < len(list); i++ {
		if l, ok := list[i].(*ir.Label); ok && l.PC == pc {
			return i
		}
	}
	return -1
}

// hasLabel reports whether the list contains a Label at its own level.
func hasLabel(list []ir.Stmt) bool {
	for _, s := range list {
		if _, ok := s.(*ir.Label); ok {
			return true
		}
	}
	return false
}

// foldGotoReturn replaces a goto whose target label is immediately
// followed by a return with that return, and drops gotos that land
// straight on their own label. Targets are collected across nesting
// levels: a branch folded into an If may still jump to an outer label.
func foldGotoReturn(stmts []ir.Stmt) ([]ir.Stmt, bool) {
	returns := make(map[int]*ir.Return)
	ir.RewriteStmts(stmts, func(list []ir.Stmt) []ir.Stmt {
		for i, s := range list {
			l, ok := s.(*ir.Label)
			if !ok || i+1 >= len(list) {
				continue
			}
			if r, ok := list[i+1].(*ir.Return); ok {
				returns[l.PC] = r
			}
		}
		return list
	}, nil)

	changed := false
	out := ir.RewriteStmts(stmts, func(list []ir.Stmt) []ir.Stmt {
		kept := make([]ir.Stmt, 0, len(list))
		for i, s := range list {
			g, ok := s.(*ir.Goto)
			if !ok {
				kept = append(kept, s)
				continue
			}
			if i+1 < len(list) {
				if l, ok := list[i+1].(*ir.Label); ok && l.PC == g.Target {
					changed = true
					continue
				}
			}
			if r, ok := returns[g.Target]; ok {
				kept = append(kept, &ir.Return{X: r.X})
				changed = true
				continue
			}
			kept = append(kept, s)
		}
		return kept
	}, nil)
	return out, changed
}

// foldWhile recognizes the top-tested loop shape
//
//	Label L; CondGoto !cond -> E; body...; Goto L; Label E
func foldWhile(list []ir.Stmt) ([]ir.Stmt, bool) {
	for i := 0; i+3 < len(list); i++ {
		lab, ok := list[i].(*ir.Label)
		if !ok {
			continue
		}
		cg, ok := list[i+1].(*ir.CondGoto)
		if !ok || !cg.IfFalse {
			continue
		}
		end := findLabel(list, cg.Target, i+2)
		if end < 0 || end < i+3 {
			continue
		}
		back, ok := list[end-1].(*ir.Goto)
		if !ok || back.Target != lab.PC {
			continue
		}
		body := append([]ir.Stmt(nil), list[i+2:end-1]...)
		if hasLabel(body) {
			continue
		}
		body = replaceJumps(body, lab.PC, cg.Target)
		loop := &ir.While{Cond: cg.Cond, Body: body}

		out := append([]ir.Stmt(nil), list[:i]...)
		out = append(out, loop, list[end])
		out = append(out, list[end+1:]...)
		return out, true
	}
	return list, false
}

// foldDoWhile recognizes the bottom-tested shape
//
//	Label L; body...; CondGoto cond -> L
func foldDoWhile(list []ir.Stmt) ([]ir.Stmt, bool) {
	for j := 1; j < len(list); j++ {
		cg, ok := list[j].(*ir.CondGoto)
		if !ok || cg.IfFalse {
			continue
		}
		i := findLabel(list, cg.Target, 0)
		if i < 0 || i >= j {
			continue
		}
		body := append([]ir.Stmt(nil), list[i+1:j]...)
		if hasLabel(body) || hasArtifacts(body) {
			continue
		}
		loop := &ir.DoWhile{Body: body, Cond: cg.Cond}

		out := append([]ir.Stmt(nil), list[:i+1]...)
		out = append(out, loop)
		out = append(out, list[j+1:]...)
		return out, true
	}
	return list, false
}

// foldIfElse recognizes
//
//	CondGoto !cond -> ELSE; then...; Goto END; Label ELSE; else...; Label END
func foldIfElse(list []ir.Stmt) ([]ir.Stmt, bool) {
	for i := 0; i < len(list); i++ {
		cg, ok := list[i].(*ir.CondGoto)
		if !ok {
			continue
		}
		elseAt := findLabel(list, cg.Target, i+1)
		if elseAt < i+2 {
			continue
		}
		jmp, ok := list[elseAt-1].(*ir.Goto)
		if !ok {
			continue
		}
		endAt := findLabel(list, jmp.Target, elseAt+1)
		if endAt < 0 {
			continue
		}
		thenBody := append([]ir.Stmt(nil), list[i+1:elseAt-1]...)
		elseBody := append([]ir.Stmt(nil), list[elseAt+1:endAt]...)
		if hasLabel(thenBody) || hasLabel(elseBody) {
			continue
		}
		cond := cg.Cond
		if !cg.IfFalse {
			cond = negate(cond)
		}
		node := &ir.If{Cond: cond, Then: thenBody, Else: elseBody}

		out := append([]ir.Stmt(nil), list[:i]...)
		out = append(out, node, list[endAt])
		out = append(out, list[endAt+1:]...)
		return out, true
	}
	return list, false
}

// foldIf recognizes the else-less shape
//
//	CondGoto !cond -> END; then...; Label END
func foldIf(list []ir.Stmt) ([]ir.Stmt, bool) {
	for i := 0; i < len(list); i++ {
		cg, ok := list[i].(*ir.CondGoto)
		if !ok {
			continue
		}
		endAt := findLabel(list, cg.Target, i+1)
		if endAt < i+2 {
			continue
		}
		thenBody := append([]ir.Stmt(nil), list[i+1:endAt]...)
		if hasLabel(thenBody) || hasArtifacts(thenBody) {
			continue
		}
		cond := cg.Cond
		if !cg.IfFalse {
			cond = negate(cond)
		}
		node := &ir.If{Cond: cond, Then: thenBody}

		out := append([]ir.Stmt(nil), list[:i]...)
		out = append(out, node, list[endAt])
		out = append(out, list[endAt+1:]...)
		return out, true
	}
	return list, false
}

// foldTry recognizes the handler registration shape
//
//	TryMarker H; body...; Goto END; Label H; handler...; Label END
func foldTry(list []ir.Stmt) ([]ir.Stmt, bool) {
	for i := 0; i < len(list); i++ {
		tm, ok := list[i].(*ir.TryMarker)
		if !ok {
			continue
		}
		handlerAt := findLabel(list, tm.HandlerPC, i+1)
		if handlerAt < i+2 {
			continue
		}
		jmp, ok := list[handlerAt-1].(*ir.Goto)
		if !ok {
			continue
		}
		endAt := findLabel(list, jmp.Target, handlerAt+1)
		if endAt < 0 {
			continue
		}
		body := append([]ir.Stmt(nil), list[i+1:handlerAt-1]...)
		handler := append([]ir.Stmt(nil), list[handlerAt+1:endAt]...)
		if hasLabel(body) || hasLabel(handler) {
			continue
		}

		catchVar, handler := catchBinding(handler)
		node := &ir.Try{Body: body, CatchVar: catchVar, Catch: handler}

		out := append([]ir.Stmt(nil), list[:i]...)
		out = append(out, node, list[endAt])
		out = append(out, list[endAt+1:]...)
		return out, true
	}
	return list, false
}

// catchBinding recovers the catch variable. The handler enters with the
// thrown value as the sole incoming stack slot; a leading store of that
// slot names the variable, otherwise the placeholder is renamed to e.
func catchBinding(handler []ir.Stmt) (string, []ir.Stmt) {
	if len(handler) > 0 {
		if es, ok := handler[0].(*ir.ExpressionStatement); ok {
			if as, ok := es.X.(*ir.Assignment); ok && as.Op == "=" {
				if u, ok := as.Value.(*ir.Unknown); ok && u.Text == "stack0" {
					if id, ok := as.Target.(*ir.Identifier); ok {
						return id.Name, handler[1:]
					}
				}
			}
		}
	}
	renamed := ir.RewriteStmts(handler, nil, func(e ir.Expr) ir.Expr {
		if u, ok := e.(*ir.Unknown); ok && u.Text == "stack0" {
			return ir.Ident("e")
		}
		return e
	})
	return "e", renamed
}

// replaceJumps maps loop-internal gotos to break/continue.
func replaceJumps(body []ir.Stmt, head, exit int) []ir.Stmt {
	return ir.RewriteStmts(body, func(list []ir.Stmt) []ir.Stmt {
		out := make([]ir.Stmt, 0, len(list))
		for _, s := range list {
			if g, ok := s.(*ir.Goto); ok {
				switch g.Target {
				case head:
					out = append(out, &ir.Continue{})
					continue
				case exit:
					out = append(out, &ir.Break{})
					continue
				}
			}
			out = append(out, s)
		}
		return out
	}, nil)
}

// pruneLabels drops labels no remaining jump refers to.
func pruneLabels(stmts []ir.Stmt) ([]ir.Stmt, bool) {
	refs := make(map[int]bool)
	collect := func(list []ir.Stmt) []ir.Stmt {
		for _, s := range list {
			switch s := s.(type) {
			case *ir.Goto:
				refs[s.Target] = true
			case *ir.CondGoto:
				refs[s.Target] = true
			case *ir.TryMarker:
				refs[s.HandlerPC] = true
			}
		}
		return list
	}
	ir.RewriteStmts(stmts, collect, nil)

	changed := false
	out := ir.RewriteStmts(stmts, func(list []ir.Stmt) []ir.Stmt {
		kept := make([]ir.Stmt, 0, len(list))
		for _, s := range list {
			if l, ok := s.(*ir.Label); ok && !refs[l.PC] {
				changed = true
				continue
			}
			kept = append(kept, s)
		}
		return kept
	}, nil)
	return out, changed
}

// foldShortCircuit merges nested else-less ifs into && conditions.
func foldShortCircuit(stmts []ir.Stmt) []ir.Stmt {
	return ir.RewriteStmts(stmts, func(list []ir.Stmt) []ir.Stmt {
		for i, s := range list {
			outer, ok := s.(*ir.If)
			if !ok || len(outer.Else) != 0 || len(outer.Then) != 1 {
				continue
			}
			inner, ok := outer.Then[0].(*ir.If)
			if !ok || len(inner.Else) != 0 {
				continue
			}
			list[i] = &ir.If{
				Cond: &ir.BinaryOp{Op: "&&", Lhs: outer.Cond, Rhs: inner.Cond},
				Then: inner.Then,
			}
		}
		return list
	}, nil)
}

// foldSwitch collapses an if/else-if chain testing one tag with === into
// a switch statement.
func foldSwitch(stmts []ir.Stmt) []ir.Stmt {
	return ir.RewriteStmts(stmts, func(list []ir.Stmt) []ir.Stmt {
		for i, s := range list {
			n, ok := s.(*ir.If)
			if !ok {
				continue
			}
			tag, cases, dflt, depth := switchChain(n)
			if depth < 3 {
				continue
			}
			if dflt != nil {
				cases = append(cases, ir.SwitchCase{Body: dflt})
			}
			list[i] = &ir.Switch{Tag: tag, Cases: cases}
		}
		return list
	}, nil)
}

// switchChain walks an else-if chain comparing the same tag expression.
func switchChain(n *ir.If) (tag ir.Expr, cases []ir.SwitchCase, dflt []ir.Stmt, depth int) {
	for {
		bin, ok := n.Cond.(*ir.BinaryOp)
		if !ok || bin.Op != "===" {
			return tag, cases, []ir.Stmt{n}, depth
		}
		if tag == nil {
			tag = bin.Lhs
		} else if !exprEqual(tag, bin.Lhs) {
			return tag, cases, []ir.Stmt{n}, depth
		}
		body := append(append([]ir.Stmt(nil), n.Then...), &ir.Break{})
		cases = append(cases, ir.SwitchCase{Match: bin.Rhs, Body: body})
		depth++
		if len(n.Else) == 1 {
			if next, ok := n.Else[0].(*ir.If); ok {
				n = next
				continue
			}
		}
		return tag, cases, n.Else, depth
	}
}

// promoteFor rewrites while loops whose body ends with a simple counter
// update, preceded by that counter's initialization, into for loops.
func promoteFor(stmts []ir.Stmt) []ir.Stmt {
	return ir.RewriteStmts(stmts, func(list []ir.Stmt) []ir.Stmt {
		for i := 1; i < len(list); i++ {
			loop, ok := list[i].(*ir.While)
			if !ok || len(loop.Body) == 0 {
				continue
			}
			name, post := counterUpdate(loop.Body[len(loop.Body)-1])
			if name == "" {
				continue
			}
			init, ok := counterInit(list[i-1], name)
			if !ok {
				continue
			}
			list[i] = &ir.For{
				Init: init,
				Cond: loop.Cond,
				Post: post,
				Body: loop.Body[:len(loop.Body)-1],
			}
			list = append(list[:i-1], list[i:]...)
			return list
		}
		return list
	}, nil)
}

// counterUpdate matches i++ / i-- / i += k at loop bottom.
func counterUpdate(s ir.Stmt) (string, ir.Expr) {
	es, ok := s.(*ir.ExpressionStatement)
	if !ok {
		return "", nil
	}
	switch x := es.X.(type) {
	case *ir.UnaryOp:
		if x.Op == "++" || x.Op == "--" {
			if id, ok := x.Operand.(*ir.Identifier); ok {
				return id.Name, x
			}
		}
	case *ir.Assignment:
		if id, ok := x.Target.(*ir.Identifier); ok {
			if x.Op != "=" {
				return id.Name, x
			}
			// i = i + 1 counts too
			if bin, ok := x.Value.(*ir.BinaryOp); ok {
				if lhs, ok := bin.Lhs.(*ir.Identifier); ok && lhs.Name == id.Name {
					return id.Name, x
				}
			}
		}
	}
	return "", nil
}

// counterInit matches an assignment or declaration of name.
func counterInit(s ir.Stmt, name string) (ir.Stmt, bool) {
	switch s := s.(type) {
	case *ir.ExpressionStatement:
		if as, ok := s.X.(*ir.Assignment); ok && as.Op == "=" {
			if id, ok := as.Target.(*ir.Identifier); ok && id.Name == name {
				return s, true
			}
		}
	case *ir.VariableDeclaration:
		if s.Name == name {
			return s, true
		}
	}
	return nil, false
}

// negate inverts a condition, unwrapping double negation.
func negate(e ir.Expr) ir.Expr {
	if u, ok := e.(*ir.UnaryOp); ok && u.Op == "!" {
		return u.Operand
	}
	return &ir.UnaryOp{Op: "!", Operand: e}
}

// exprEqual is shallow structural equality for switch tag matching.
func exprEqual(a, b ir.Expr) bool {
	switch a := a.(type) {
	case *ir.Identifier:
		b, ok := b.(*ir.Identifier)
		return ok && a.Name == b.Name
	case *ir.Literal:
		b, ok := b.(*ir.Literal)
		return ok && *a == *b
	case *ir.MemberAccess:
		b, ok := b.(*ir.MemberAccess)
		return ok && !a.Computed && !b.Computed && a.Prop == b.Prop && exprEqual(a.Object, b.Object)
	}
	return false
}

// hasArtifacts reports whether the list still contains lowering
// artifacts at its own level.
func hasArtifacts(list []ir.Stmt) bool {
	for _, s := range list {
		switch s.(type) {
		case *ir.Goto, *ir.CondGoto, *ir.TryMarker:
			return true
		}
	}
	return false
}

// countArtifacts counts leftover lowering artifacts anywhere in the tree.
func countArtifacts(stmts []ir.Stmt) int {
	n := 0
	ir.RewriteStmts(stmts, func(list []ir.Stmt) []ir.Stmt {
		for _, s := range list {
			switch s.(type) {
			case *ir.Goto, *ir.CondGoto, *ir.TryMarker:
				n++
			}
		}
		return list
	}, nil)
	return n
}
