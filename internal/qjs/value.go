package qjs

import (
	"fmt"
	"strconv"
)

// ValueKind discriminates Value variants.
type ValueKind int

const (
	ValNull ValueKind = iota
	ValUndefined
	ValBool
	ValInt32
	ValFloat64
	ValString
	ValArray
	ValObject
	ValModule
	ValRegExp
	ValBigInt
	ValSymbol
	ValArrayBuffer
	ValTypedArray
	ValDate
	ValFunction
	ValUnsupported
)

// Value is one entry of a serialized constant pool or object tree. The
// closed variant set mirrors the container's object tags; unsupported tags
// decode to ValUnsupported rather than failing the whole pool.
type Value struct {
	Kind  ValueKind
	Bool  bool
	Int   int32
	Float float64
	Str   string // ValString, ValRegExp pattern
	Bytes []byte // ValBigInt, ValArrayBuffer

	Items []Value    // ValArray elements
	Props []Property // ValObject properties

	Atom Atom   // ValModule name, ValSymbol atom
	Sub  *Value // ValModule func obj, ValTypedArray buffer, ValDate value

	RegExpBytecode string // ValRegExp compiled form
	TypedKind      byte   // ValTypedArray element kind
	TypedLen       uint32
	TypedOffset    uint32

	Func *FunctionInfo // ValFunction
	Tag  byte          // ValUnsupported: the raw tag byte
}

// Property is one object key/value pair.
type Property struct {
	Name  Atom
	Value Value
}

func (v Value) String() string {
	switch v.Kind {
	case ValNull:
		return "null"
	case ValUndefined:
		return "undefined"
	case ValBool:
		return strconv.FormatBool(v.Bool)
	case ValInt32:
		return strconv.FormatInt(int64(v.Int), 10)
	case ValFloat64:
		return strconv.FormatFloat(v.Float, 'g', -1, 64)
	case ValString:
		return strconv.Quote(v.Str)
	case ValArray:
		return fmt.Sprintf("<array:%d>", len(v.Items))
	case ValObject:
		return fmt.Sprintf("<object:%d>", len(v.Props))
	case ValModule:
		return fmt.Sprintf("<module:%s>", v.Atom)
	case ValRegExp:
		return fmt.Sprintf("<regexp:%s>", v.Str)
	case ValBigInt:
		return fmt.Sprintf("<bigint:%d bytes>", len(v.Bytes))
	case ValSymbol:
		return fmt.Sprintf("<symbol:%s>", v.Atom)
	case ValArrayBuffer:
		return fmt.Sprintf("<arraybuffer:%d bytes>", len(v.Bytes))
	case ValTypedArray:
		return fmt.Sprintf("<typedarray:%d len=%d>", v.TypedKind, v.TypedLen)
	case ValDate:
		return "<date>"
	case ValFunction:
		return fmt.Sprintf("<function:%s>", v.Func.Name)
	default:
		return fmt.Sprintf("<tag:%d>", v.Tag)
	}
}

// VarDef describes one declared local variable slot.
type VarDef struct {
	Name       Atom
	ScopeLevel uint32
	ScopeNext  uint32
	Flags      byte
	VarRefIdx  int // closure slot when captured; -1 otherwise
}

// Captured reports whether the local is captured by a closure.
func (v VarDef) Captured() bool { return v.VarRefIdx >= 0 }

// ClosureVar describes one captured-variable slot and its source in the
// enclosing scope (parent local slot or outer closure slot, per Flags).
type ClosureVar struct {
	Name   Atom
	VarIdx uint32
	Flags  uint32
}

// FunctionInfo is one compiled function: metadata, declared slots, constant
// pool (which may embed nested FunctionInfo nodes), and raw bytecode.
type FunctionInfo struct {
	Name            Atom
	StrictMode      bool
	ArgCount        uint16
	VarCount        uint16
	DefinedArgCount uint16
	StackSize       uint16
	VarRefCount     uint16
	ClosureVarCount uint16
	Flags           uint16

	Locals      []VarDef
	ClosureVars []ClosureVar
	ConstPool   []Value
	Bytecode    []byte
}

// Module is the top-level decoded unit: the atom table plus the serialized
// root value, whose tree exclusively owns every FunctionInfo.
type Module struct {
	Version Version
	Atoms   *AtomTable
	Root    Value
}

// Functions returns every FunctionInfo reachable from the root, entry
// function first when the root is a module value.
func (m *Module) Functions() []*FunctionInfo {
	var funcs []*FunctionInfo
	collectFunctions(&m.Root, &funcs)
	if entry := m.entryFunction(); entry != nil {
		ordered := make([]*FunctionInfo, 0, len(funcs))
		ordered = append(ordered, entry)
		for _, f := range funcs {
			if f != entry {
				ordered = append(ordered, f)
			}
		}
		return ordered
	}
	return funcs
}

func (m *Module) entryFunction() *FunctionInfo {
	if m.Root.Kind == ValModule && m.Root.Sub != nil && m.Root.Sub.Kind == ValFunction {
		return m.Root.Sub.Func
	}
	return nil
}

func collectFunctions(v *Value, out *[]*FunctionInfo) {
	switch v.Kind {
	case ValFunction:
		*out = append(*out, v.Func)
		for i := range v.Func.ConstPool {
			collectFunctions(&v.Func.ConstPool[i], out)
		}
	case ValArray:
		for i := range v.Items {
			collectFunctions(&v.Items[i], out)
		}
	case ValObject:
		for i := range v.Props {
			collectFunctions(&v.Props[i].Value, out)
		}
	case ValModule, ValDate:
		if v.Sub != nil {
			collectFunctions(v.Sub, out)
		}
	case ValTypedArray:
		if v.Sub != nil {
			collectFunctions(v.Sub, out)
		}
	}
}
