package ir

// Stmt is one statement of a function body. The structured variants are
// what stages after the structurer see; Label, Goto, CondGoto and
// TryMarker are lowering artifacts that only exist between lifting and
// structuring (a leftover in final output renders as a labeled goto).
type Stmt interface{ isStmt() }

// ExpressionStatement evaluates X for its side effects.
type ExpressionStatement struct {
	X Expr
}

// If is a conditional with an optional else branch.
type If struct {
	Cond Expr
	Then []Stmt
	Else []Stmt
}

// While is a top-tested loop.
type While struct {
	Cond Expr
	Body []Stmt
}

// DoWhile is a bottom-tested loop.
type DoWhile struct {
	Body []Stmt
	Cond Expr
}

// For is a promoted counting loop. Init and Post may be nil.
type For struct {
	Init Stmt
	Cond Expr
	Post Expr
	Body []Stmt
}

// SwitchCase is one arm of a Switch; a nil Match is the default case.
type SwitchCase struct {
	Match Expr
	Body  []Stmt
}

// Switch dispatches on Tag.
type Switch struct {
	Tag   Expr
	Cases []SwitchCase
}

// Try wraps Body with an optional catch clause and finalizer.
type Try struct {
	Body     []Stmt
	CatchVar string
	Catch    []Stmt
	Finally  []Stmt
}

// Return exits the function; a nil X is a bare return.
type Return struct {
	X Expr
}

// Throw raises X.
type Throw struct {
	X Expr
}

// Break exits the innermost loop or switch.
type Break struct{}

// Continue resumes the innermost loop.
type Continue struct{}

// Block groups statements without other semantics.
type Block struct {
	Body []Stmt
}

// VariableDeclaration introduces a binding. Kind is "var", "let" or
// "const"; Init may be nil.
type VariableDeclaration struct {
	Kind string
	Name string
	Init Expr
}

// FunctionDeclaration names a nested function. The body lives in its own
// FunctionInfo and is decompiled separately; Index is its position in the
// module's function list.
type FunctionDeclaration struct {
	Name  string
	Index int
}

// Label marks a bytecode offset as a potential jump target.
type Label struct {
	PC int
}

// Goto is an unconditional jump to the Label with matching PC.
type Goto struct {
	Target int
}

// CondGoto jumps to Target when Cond (negated when IfFalse) holds.
type CondGoto struct {
	Cond    Expr
	IfFalse bool
	Target  int
}

// TryMarker records a catch-handler registration: the protected region
// runs until the matching handler label. The structurer folds it into a
// Try statement.
type TryMarker struct {
	HandlerPC int
}

func (*ExpressionStatement) isStmt() {}
func (*If) isStmt()                  {}
func (*While) isStmt()               {}
func (*DoWhile) isStmt()             {}
func (*For) isStmt()                 {}
func (*Switch) isStmt()              {}
func (*Try) isStmt()                 {}
func (*Return) isStmt()              {}
func (*Throw) isStmt()               {}
func (*Break) isStmt()               {}
func (*Continue) isStmt()            {}
func (*Block) isStmt()               {}
func (*VariableDeclaration) isStmt() {}
func (*FunctionDeclaration) isStmt() {}
func (*Label) isStmt()               {}
func (*Goto) isStmt()                {}
func (*CondGoto) isStmt()            {}
func (*TryMarker) isStmt()           {}
