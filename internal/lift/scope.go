// Package lift reconstructs expression statements from stack-machine
// bytecode. It walks each basic block with an abstract operand stack,
// turning instruction sequences back into ir trees, and leaves control
// transfers as Label/Goto/CondGoto artifacts for the structurer.
package lift

import (
	"fmt"

	"deqjs/internal/qjs"
)

// BindKind classifies a recovered binding.
type BindKind uint8

const (
	BindParam BindKind = iota
	BindLocal
	BindCaptured
)

func (k BindKind) String() string {
	switch k {
	case BindParam:
		return "param"
	case BindLocal:
		return "local"
	default:
		return "captured"
	}
}

// Binding maps one stack slot to its display name.
type Binding struct {
	Slot int
	Name string
	Kind BindKind
}

// Scope resolves slot indices to names for one function. Argument slots
// reuse declared local names when the compiler recorded them; everything
// else gets a synthesized positional name.
type Scope struct {
	fn *qjs.FunctionInfo
}

// NewScope builds the naming scope for fn.
func NewScope(fn *qjs.FunctionInfo) *Scope { return &Scope{fn: fn} }

// Arg names argument slot idx.
func (s *Scope) Arg(idx int) string {
	if idx >= 0 && idx < len(s.fn.Locals) {
		if name, ok := s.fn.Locals[idx].Name.Ident(); ok {
			return name
		}
	}
	return fmt.Sprintf("arg%d", idx)
}

// Loc names local slot idx. Local slots are positional; declared names
// describe lexical scopes, not runtime slots, so the slot number is the
// only stable identity.
func (s *Scope) Loc(idx int) string {
	return fmt.Sprintf("loc%d", idx)
}

// VarRef names captured slot idx after its source variable.
func (s *Scope) VarRef(idx int) string {
	if idx >= 0 && idx < len(s.fn.ClosureVars) {
		if name, ok := s.fn.ClosureVars[idx].Name.Ident(); ok {
			return name
		}
	}
	return fmt.Sprintf("var_ref%d", idx)
}

// Bindings returns the full slot table: parameters, locals, captures.
func (s *Scope) Bindings() []Binding {
	out := make([]Binding, 0, int(s.fn.ArgCount)+int(s.fn.VarCount)+len(s.fn.ClosureVars))
	for i := 0; i < int(s.fn.ArgCount); i++ {
		out = append(out, Binding{Slot: i, Name: s.Arg(i), Kind: BindParam})
	}
	for i := 0; i < int(s.fn.VarCount); i++ {
		out = append(out, Binding{Slot: i, Name: s.Loc(i), Kind: BindLocal})
	}
	for i := range s.fn.ClosureVars {
		out = append(out, Binding{Slot: i, Name: s.VarRef(i), Kind: BindCaptured})
	}
	return out
}

// DisplayName names a function for output. Anonymous functions become
// closure_<idx> when deobfuscation naming is on.
func DisplayName(fn *qjs.FunctionInfo, idx int, deobfuscate bool) string {
	if name, ok := fn.Name.Ident(); ok {
		return name
	}
	if deobfuscate {
		return fmt.Sprintf("closure_%d", idx)
	}
	return "anonymous"
}

// closureName names the function at constant-pool slot idx for an
// fclosure push.
func closureName(fn *qjs.FunctionInfo, idx int, deobfuscate bool) string {
	if idx >= 0 && idx < len(fn.ConstPool) {
		v := &fn.ConstPool[idx]
		if v.Kind == qjs.ValFunction && v.Func != nil {
			return DisplayName(v.Func, idx, deobfuscate)
		}
	}
	return fmt.Sprintf("closure_%d", idx)
}
