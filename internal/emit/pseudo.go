// Package emit renders decompiled functions as text. Pseudo mode
// prioritizes readability; disasm mode is a literal per-instruction
// listing. Both walk the same trees and differ only in formatting
// policy.
package emit

import (
	"fmt"
	"math"
	"strconv"
	"strings"

	"deqjs/internal/ir"
)

// Function renders one function as pseudo-JavaScript.
func Function(name string, params []string, body []ir.Stmt) string {
	p := &printer{}
	p.printf("function %s(%s) {\n", name, strings.Join(params, ", "))
	p.indent++
	p.stmts(body)
	p.indent--
	p.printf("}\n")
	return p.b.String()
}

type printer struct {
	b      strings.Builder
	indent int
}

func (p *printer) printf(format string, args ...any) {
	for i := 0; i < p.indent; i++ {
		p.b.WriteString("  ")
	}
	fmt.Fprintf(&p.b, format, args...)
}

func (p *printer) stmts(list []ir.Stmt) {
	for _, s := range list {
		p.stmt(s)
	}
}

func (p *printer) block(list []ir.Stmt) {
	p.b.WriteString(" {\n")
	p.indent++
	p.stmts(list)
	p.indent--
	p.printf("}")
}

func (p *printer) stmt(s ir.Stmt) {
	switch s := s.(type) {
	case *ir.ExpressionStatement:
		p.printf("%s;\n", Expr(s.X))
	case *ir.If:
		p.printf("if (%s)", Expr(s.Cond))
		p.block(s.Then)
		if len(s.Else) > 0 {
			p.b.WriteString(" else")
			if len(s.Else) == 1 {
				if chained, ok := s.Else[0].(*ir.If); ok {
					p.b.WriteString(" ")
					p.inlineIf(chained)
					return
				}
			}
			p.block(s.Else)
		}
		p.b.WriteString("\n")
	case *ir.While:
		p.printf("while (%s)", Expr(s.Cond))
		p.block(s.Body)
		p.b.WriteString("\n")
	case *ir.DoWhile:
		p.printf("do")
		p.block(s.Body)
		fmt.Fprintf(&p.b, " while (%s);\n", Expr(s.Cond))
	case *ir.For:
		init := ""
		if s.Init != nil {
			init = p.inlineStmt(s.Init)
		}
		cond := ""
		if s.Cond != nil {
			cond = Expr(s.Cond)
		}
		post := ""
		if s.Post != nil {
			post = Expr(s.Post)
		}
		p.printf("for (%s; %s; %s)", init, cond, post)
		p.block(s.Body)
		p.b.WriteString("\n")
	case *ir.Switch:
		p.printf("switch (%s) {\n", Expr(s.Tag))
		p.indent++
		for _, c := range s.Cases {
			if c.Match != nil {
				p.printf("case %s:\n", Expr(c.Match))
			} else {
				p.printf("default:\n")
			}
			p.indent++
			p.stmts(c.Body)
			p.indent--
		}
		p.indent--
		p.printf("}\n")
	case *ir.Try:
		p.printf("try")
		p.block(s.Body)
		if s.Catch != nil || s.CatchVar != "" {
			if s.CatchVar != "" {
				fmt.Fprintf(&p.b, " catch (%s)", s.CatchVar)
			} else {
				p.b.WriteString(" catch")
			}
			p.block(s.Catch)
		}
		if len(s.Finally) > 0 {
			p.b.WriteString(" finally")
			p.block(s.Finally)
		}
		p.b.WriteString("\n")
	case *ir.Return:
		if s.X == nil {
			p.printf("return;\n")
		} else {
			p.printf("return %s;\n", Expr(s.X))
		}
	case *ir.Throw:
		p.printf("throw %s;\n", Expr(s.X))
	case *ir.Break:
		p.printf("break;\n")
	case *ir.Continue:
		p.printf("continue;\n")
	case *ir.Block:
		p.printf("{\n")
		p.indent++
		p.stmts(s.Body)
		p.indent--
		p.printf("}\n")
	case *ir.VariableDeclaration:
		if s.Init != nil {
			p.printf("%s %s = %s;\n", s.Kind, s.Name, Expr(s.Init))
		} else {
			p.printf("%s %s;\n", s.Kind, s.Name)
		}
	case *ir.FunctionDeclaration:
		p.printf("function %s() { /* #%d */ }\n", s.Name, s.Index)
	case *ir.Label:
		p.printf("L%d:\n", s.PC)
	case *ir.Goto:
		p.printf("goto L%d;\n", s.Target)
	case *ir.CondGoto:
		cond := Expr(s.Cond)
		if s.IfFalse {
			cond = "!" + parens(s.Cond, cond)
		}
		p.printf("if (%s) goto L%d;\n", cond, s.Target)
	case *ir.TryMarker:
		p.printf("// handler at L%d\n", s.HandlerPC)
	}
}

// inlineIf continues an else-if chain on the current line.
func (p *printer) inlineIf(s *ir.If) {
	fmt.Fprintf(&p.b, "if (%s)", Expr(s.Cond))
	p.block(s.Then)
	if len(s.Else) > 0 {
		p.b.WriteString(" else")
		if len(s.Else) == 1 {
			if chained, ok := s.Else[0].(*ir.If); ok {
				p.b.WriteString(" ")
				p.inlineIf(chained)
				return
			}
		}
		p.block(s.Else)
	}
	p.b.WriteString("\n")
}

// inlineStmt renders a statement without indentation or terminator, for
// for-loop initializers.
func (p *printer) inlineStmt(s ir.Stmt) string {
	switch s := s.(type) {
	case *ir.ExpressionStatement:
		return Expr(s.X)
	case *ir.VariableDeclaration:
		if s.Init != nil {
			return fmt.Sprintf("%s %s = %s", s.Kind, s.Name, Expr(s.Init))
		}
		return fmt.Sprintf("%s %s", s.Kind, s.Name)
	default:
		return ""
	}
}

// Expr renders one expression.
func Expr(e ir.Expr) string {
	switch x := e.(type) {
	case *ir.Literal:
		return literal(x)
	case *ir.Identifier:
		return x.Name
	case *ir.BinaryOp:
		return parens(x.Lhs, Expr(x.Lhs)) + " " + x.Op + " " + parens(x.Rhs, Expr(x.Rhs))
	case *ir.UnaryOp:
		if x.Postfix {
			return parens(x.Operand, Expr(x.Operand)) + x.Op
		}
		op := x.Op
		if wordOp(op) {
			op += " "
		}
		return op + parens(x.Operand, Expr(x.Operand))
	case *ir.Call:
		return callee(x.Callee) + "(" + args(x.Args) + ")"
	case *ir.New:
		return "new " + callee(x.Callee) + "(" + args(x.Args) + ")"
	case *ir.MemberAccess:
		if x.Computed {
			return callee(x.Object) + "[" + Expr(x.Index) + "]"
		}
		return callee(x.Object) + "." + x.Prop
	case *ir.Assignment:
		return Expr(x.Target) + " " + x.Op + " " + Expr(x.Value)
	case *ir.Conditional:
		return parens(x.Cond, Expr(x.Cond)) + " ? " + Expr(x.Then) + " : " + Expr(x.Else)
	case *ir.Sequence:
		parts := make([]string, len(x.Items))
		for i, it := range x.Items {
			parts[i] = Expr(it)
		}
		return "(" + strings.Join(parts, ", ") + ")"
	case *ir.FunctionRef:
		return x.Name
	case *ir.Unknown:
		return x.Text
	default:
		return "<?>"
	}
}

func literal(l *ir.Literal) string {
	switch l.Kind {
	case ir.LitUndefined:
		return "undefined"
	case ir.LitNull:
		return "null"
	case ir.LitBool:
		return strconv.FormatBool(l.Bool)
	case ir.LitInt:
		return strconv.FormatInt(l.Int, 10)
	case ir.LitFloat:
		switch {
		case math.IsNaN(l.Num):
			return "NaN"
		case math.IsInf(l.Num, 1):
			return "Infinity"
		case math.IsInf(l.Num, -1):
			return "-Infinity"
		default:
			return strconv.FormatFloat(l.Num, 'g', -1, 64)
		}
	case ir.LitString:
		return strconv.Quote(l.Str)
	default:
		return l.Str
	}
}

// parens wraps compound subexpressions used in operand position.
func parens(e ir.Expr, s string) string {
	switch e.(type) {
	case *ir.BinaryOp, *ir.Conditional, *ir.Assignment, *ir.Sequence:
		return "(" + s + ")"
	}
	return s
}

// callee wraps expressions that cannot stand bare before ( or .
func callee(e ir.Expr) string {
	s := Expr(e)
	switch e.(type) {
	case *ir.Identifier, *ir.MemberAccess, *ir.Call, *ir.FunctionRef, *ir.Unknown:
		return s
	case *ir.Literal:
		if l := e.(*ir.Literal); l.Kind == ir.LitString || l.Kind == ir.LitRaw {
			return s
		}
		return "(" + s + ")"
	default:
		return "(" + s + ")"
	}
}

func wordOp(op string) bool {
	switch op {
	case "typeof", "delete", "void", "await", "yield", "yield*":
		return true
	}
	return false
}

func args(list []ir.Expr) string {
	parts := make([]string, len(list))
	for i, a := range list {
		parts[i] = Expr(a)
	}
	return strings.Join(parts, ", ")
}
