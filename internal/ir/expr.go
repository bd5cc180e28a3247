// Package ir defines the expression and statement trees produced by the
// lifter and consumed by the structurer, deobfuscator, optimizer and
// emitter. Both sets are closed: consumers switch exhaustively over the
// variants, so a new node kind must be handled everywhere.
package ir

// Expr is a recovered expression. Nodes are treated as immutable once
// built; rewriting stages replace whole subtrees.
type Expr interface{ isExpr() }

// LitKind discriminates Literal payloads.
type LitKind uint8

const (
	LitUndefined LitKind = iota
	LitNull
	LitBool
	LitInt
	LitFloat
	LitString
	LitRaw // preformatted source text (regexp, bigint, template)
)

// Literal is a constant value.
type Literal struct {
	Kind LitKind
	Bool bool
	Int  int64
	Num  float64
	Str  string // LitString payload or LitRaw source text
}

// Identifier names a variable, argument, captured binding or global.
type Identifier struct {
	Name string
}

// BinaryOp applies a JS binary operator. Op is the source-level token
// ("+", "===", "instanceof", "in", ...).
type BinaryOp struct {
	Op   string
	Lhs  Expr
	Rhs  Expr
}

// UnaryOp applies a prefix or postfix unary operator.
type UnaryOp struct {
	Op      string
	Operand Expr
	Postfix bool
}

// Call invokes Callee with Args. A method call keeps its receiver inside
// Callee as a MemberAccess.
type Call struct {
	Callee Expr
	Args   []Expr
}

// New is a constructor invocation.
type New struct {
	Callee Expr
	Args   []Expr
}

// MemberAccess reads a property. Computed selects obj[Index] over
// obj.Prop.
type MemberAccess struct {
	Object   Expr
	Prop     string
	Index    Expr
	Computed bool
}

// Assignment writes Value through Target. Op is "=" or a compound form
// such as "+=".
type Assignment struct {
	Op     string
	Target Expr
	Value  Expr
}

// Conditional is the ternary operator.
type Conditional struct {
	Cond Expr
	Then Expr
	Else Expr
}

// Sequence is the comma operator; the value is the last item.
type Sequence struct {
	Items []Expr
}

// FunctionRef names a nested function from the constant pool.
type FunctionRef struct {
	Name  string
	Index int
}

// Unknown stands in for stack values the lifter could not reconstruct,
// including unknown-opcode placeholders. Text is rendered verbatim.
type Unknown struct {
	Text string
}

func (*Literal) isExpr()      {}
func (*Identifier) isExpr()   {}
func (*BinaryOp) isExpr()     {}
func (*UnaryOp) isExpr()      {}
func (*Call) isExpr()         {}
func (*New) isExpr()          {}
func (*MemberAccess) isExpr() {}
func (*Assignment) isExpr()   {}
func (*Conditional) isExpr()  {}
func (*Sequence) isExpr()     {}
func (*FunctionRef) isExpr()  {}
func (*Unknown) isExpr()      {}

// Convenience constructors used throughout the lifter.

func Undefined() *Literal      { return &Literal{Kind: LitUndefined} }
func Null() *Literal           { return &Literal{Kind: LitNull} }
func Bool(v bool) *Literal     { return &Literal{Kind: LitBool, Bool: v} }
func Int(v int64) *Literal     { return &Literal{Kind: LitInt, Int: v} }
func Float(v float64) *Literal { return &Literal{Kind: LitFloat, Num: v} }
func Str(s string) *Literal    { return &Literal{Kind: LitString, Str: s} }
func Raw(s string) *Literal    { return &Literal{Kind: LitRaw, Str: s} }
func Ident(name string) *Identifier { return &Identifier{Name: name} }

// IsUndefined reports whether e is the undefined literal.
func IsUndefined(e Expr) bool {
	l, ok := e.(*Literal)
	return ok && l.Kind == LitUndefined
}

// TruthyConst evaluates a literal's truthiness. ok is false for
// non-literals and raw literals, whose value is not statically known.
func TruthyConst(e Expr) (val, ok bool) {
	l, isLit := e.(*Literal)
	if !isLit {
		return false, false
	}
	switch l.Kind {
	case LitUndefined, LitNull:
		return false, true
	case LitBool:
		return l.Bool, true
	case LitInt:
		return l.Int != 0, true
	case LitFloat:
		return l.Num != 0 && l.Num == l.Num, true
	case LitString:
		return l.Str != "", true
	}
	return false, false
}
