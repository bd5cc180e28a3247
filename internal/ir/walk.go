package ir

// RewriteExpr applies f bottom-up over e and returns the replacement.
// Children are rewritten before their parent so f sees already-simplified
// operands.
func RewriteExpr(e Expr, f func(Expr) Expr) Expr {
	if e == nil {
		return nil
	}
	switch x := e.(type) {
	case *BinaryOp:
		e = &BinaryOp{Op: x.Op, Lhs: RewriteExpr(x.Lhs, f), Rhs: RewriteExpr(x.Rhs, f)}
	case *UnaryOp:
		e = &UnaryOp{Op: x.Op, Operand: RewriteExpr(x.Operand, f), Postfix: x.Postfix}
	case *Call:
		e = &Call{Callee: RewriteExpr(x.Callee, f), Args: rewriteExprs(x.Args, f)}
	case *New:
		e = &New{Callee: RewriteExpr(x.Callee, f), Args: rewriteExprs(x.Args, f)}
	case *MemberAccess:
		e = &MemberAccess{Object: RewriteExpr(x.Object, f), Prop: x.Prop, Index: RewriteExpr(x.Index, f), Computed: x.Computed}
	case *Assignment:
		e = &Assignment{Op: x.Op, Target: RewriteExpr(x.Target, f), Value: RewriteExpr(x.Value, f)}
	case *Conditional:
		e = &Conditional{Cond: RewriteExpr(x.Cond, f), Then: RewriteExpr(x.Then, f), Else: RewriteExpr(x.Else, f)}
	case *Sequence:
		e = &Sequence{Items: rewriteExprs(x.Items, f)}
	}
	return f(e)
}

func rewriteExprs(es []Expr, f func(Expr) Expr) []Expr {
	if es == nil {
		return nil
	}
	out := make([]Expr, len(es))
	for i, e := range es {
		out[i] = RewriteExpr(e, f)
	}
	return out
}

// RewriteStmts applies fe to every expression and fs to every statement
// list, innermost first. Either function may be nil.
func RewriteStmts(stmts []Stmt, fs func([]Stmt) []Stmt, fe func(Expr) Expr) []Stmt {
	if stmts == nil {
		return nil
	}
	if fe == nil {
		fe = func(e Expr) Expr { return e }
	}
	out := make([]Stmt, 0, len(stmts))
	for _, s := range stmts {
		out = append(out, rewriteStmt(s, fs, fe))
	}
	if fs != nil {
		out = fs(out)
	}
	return out
}

func rewriteStmt(s Stmt, fs func([]Stmt) []Stmt, fe func(Expr) Expr) Stmt {
	switch x := s.(type) {
	case *ExpressionStatement:
		return &ExpressionStatement{X: RewriteExpr(x.X, fe)}
	case *If:
		return &If{Cond: RewriteExpr(x.Cond, fe), Then: RewriteStmts(x.Then, fs, fe), Else: RewriteStmts(x.Else, fs, fe)}
	case *While:
		return &While{Cond: RewriteExpr(x.Cond, fe), Body: RewriteStmts(x.Body, fs, fe)}
	case *DoWhile:
		return &DoWhile{Body: RewriteStmts(x.Body, fs, fe), Cond: RewriteExpr(x.Cond, fe)}
	case *For:
		var init Stmt
		if x.Init != nil {
			init = rewriteStmt(x.Init, fs, fe)
		}
		return &For{Init: init, Cond: RewriteExpr(x.Cond, fe), Post: RewriteExpr(x.Post, fe), Body: RewriteStmts(x.Body, fs, fe)}
	case *Switch:
		cases := make([]SwitchCase, len(x.Cases))
		for i, c := range x.Cases {
			cases[i] = SwitchCase{Match: RewriteExpr(c.Match, fe), Body: RewriteStmts(c.Body, fs, fe)}
		}
		return &Switch{Tag: RewriteExpr(x.Tag, fe), Cases: cases}
	case *Try:
		return &Try{
			Body:     RewriteStmts(x.Body, fs, fe),
			CatchVar: x.CatchVar,
			Catch:    RewriteStmts(x.Catch, fs, fe),
			Finally:  RewriteStmts(x.Finally, fs, fe),
		}
	case *Return:
		if x.X == nil {
			return x
		}
		return &Return{X: RewriteExpr(x.X, fe)}
	case *Throw:
		return &Throw{X: RewriteExpr(x.X, fe)}
	case *Block:
		return &Block{Body: RewriteStmts(x.Body, fs, fe)}
	case *VariableDeclaration:
		if x.Init == nil {
			return x
		}
		return &VariableDeclaration{Kind: x.Kind, Name: x.Name, Init: RewriteExpr(x.Init, fe)}
	case *CondGoto:
		return &CondGoto{Cond: RewriteExpr(x.Cond, fe), IfFalse: x.IfFalse, Target: x.Target}
	default:
		return s
	}
}

// WalkExprs visits every expression in a statement list without
// rewriting. The visitor returns false to stop descending into children.
func WalkExprs(stmts []Stmt, visit func(Expr) bool) {
	for _, s := range stmts {
		walkStmtExprs(s, visit)
	}
}

func walkStmtExprs(s Stmt, visit func(Expr) bool) {
	switch x := s.(type) {
	case *ExpressionStatement:
		walkExpr(x.X, visit)
	case *If:
		walkExpr(x.Cond, visit)
		WalkExprs(x.Then, visit)
		WalkExprs(x.Else, visit)
	case *While:
		walkExpr(x.Cond, visit)
		WalkExprs(x.Body, visit)
	case *DoWhile:
		WalkExprs(x.Body, visit)
		walkExpr(x.Cond, visit)
	case *For:
		if x.Init != nil {
			walkStmtExprs(x.Init, visit)
		}
		walkExpr(x.Cond, visit)
		walkExpr(x.Post, visit)
		WalkExprs(x.Body, visit)
	case *Switch:
		walkExpr(x.Tag, visit)
		for _, c := range x.Cases {
			walkExpr(c.Match, visit)
			WalkExprs(c.Body, visit)
		}
	case *Try:
		WalkExprs(x.Body, visit)
		WalkExprs(x.Catch, visit)
		WalkExprs(x.Finally, visit)
	case *Return:
		walkExpr(x.X, visit)
	case *Throw:
		walkExpr(x.X, visit)
	case *Block:
		WalkExprs(x.Body, visit)
	case *VariableDeclaration:
		walkExpr(x.Init, visit)
	case *CondGoto:
		walkExpr(x.Cond, visit)
	}
}

func walkExpr(e Expr, visit func(Expr) bool) {
	if e == nil {
		return
	}
	if !visit(e) {
		return
	}
	switch x := e.(type) {
	case *BinaryOp:
		walkExpr(x.Lhs, visit)
		walkExpr(x.Rhs, visit)
	case *UnaryOp:
		walkExpr(x.Operand, visit)
	case *Call:
		walkExpr(x.Callee, visit)
		for _, a := range x.Args {
			walkExpr(a, visit)
		}
	case *New:
		walkExpr(x.Callee, visit)
		for _, a := range x.Args {
			walkExpr(a, visit)
		}
	case *MemberAccess:
		walkExpr(x.Object, visit)
		walkExpr(x.Index, visit)
	case *Assignment:
		walkExpr(x.Target, visit)
		walkExpr(x.Value, visit)
	case *Conditional:
		walkExpr(x.Cond, visit)
		walkExpr(x.Then, visit)
		walkExpr(x.Else, visit)
	case *Sequence:
		for _, it := range x.Items {
			walkExpr(it, visit)
		}
	}
}
