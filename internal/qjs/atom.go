package qjs

import (
	"fmt"
	"strings"
)

// AtomKind discriminates Atom variants.
type AtomKind int

const (
	AtomNull AtomKind = iota
	AtomBuiltin
	AtomString
	AtomSymbol
	AtomTaggedInt
	AtomRaw
)

// Atom is one interned string or identifier reference. Instruction operands
// and metadata refer to atoms by table index; a resolved Atom carries the
// decoded representation.
type Atom struct {
	Kind AtomKind
	Str  string // AtomString, AtomSymbol: decoded text
	Num  uint32 // AtomBuiltin, AtomTaggedInt, AtomRaw: id/value
	Typ  byte   // AtomSymbol: symbol type byte
}

// StringAtom builds a plain string atom.
func StringAtom(s string) Atom { return Atom{Kind: AtomString, Str: s} }

func (a Atom) String() string {
	switch a.Kind {
	case AtomNull:
		return "<null>"
	case AtomBuiltin:
		idx := int(a.Num) - 1
		if a.Num != 0 && idx < len(BuiltinAtoms) {
			return BuiltinAtoms[idx]
		}
		return fmt.Sprintf("<atom:%d>", a.Num)
	case AtomString:
		return a.Str
	case AtomSymbol:
		return fmt.Sprintf("<sym:%d:%s>", a.Typ, a.Str)
	case AtomTaggedInt:
		return fmt.Sprintf("<int:%d>", a.Num)
	default:
		return fmt.Sprintf("<atom:%d>", a.Num)
	}
}

// IsNull reports whether the atom is the null atom.
func (a Atom) IsNull() bool { return a.Kind == AtomNull }

// Ident returns the atom as a sanitized JavaScript identifier, or ("", false)
// when it has no usable textual form.
func (a Atom) Ident() (string, bool) {
	if a.Kind != AtomString && a.Kind != AtomBuiltin {
		return "", false
	}
	s := SanitizeIdent(a.String())
	if s == "_" {
		return "", false
	}
	return s, true
}

// AtomTable maps atom indices to resolved atoms. Indices below FirstAtom
// name builtins; the rest index the per-module entries.
type AtomTable struct {
	FirstAtom uint32
	Atoms     []Atom
}

// Resolve maps an atom index to its Atom. Index 0 is the null atom.
func (t *AtomTable) Resolve(idx uint32) (Atom, error) {
	if idx == 0 {
		return Atom{Kind: AtomNull}, nil
	}
	if idx < t.FirstAtom {
		return Atom{Kind: AtomBuiltin, Num: idx}, nil
	}
	off := int(idx - t.FirstAtom)
	if off >= len(t.Atoms) {
		return Atom{}, fmt.Errorf("atom index %d out of range (%d entries)", idx, len(t.Atoms))
	}
	return t.Atoms[off], nil
}

// ResolveOrRaw resolves an index, degrading to a raw atom on failure.
func (t *AtomTable) ResolveOrRaw(idx uint32) Atom {
	a, err := t.Resolve(idx)
	if err != nil {
		return Atom{Kind: AtomRaw, Num: idx}
	}
	return a
}

// SanitizeIdent rewrites s into a valid JavaScript identifier, replacing
// rejected characters with underscores. Empty input yields "_".
func SanitizeIdent(s string) string {
	if s == "" {
		return "_"
	}
	var b strings.Builder
	for i, ch := range s {
		ok := ch == '_' || ch == '$' ||
			(ch >= 'a' && ch <= 'z') || (ch >= 'A' && ch <= 'Z') ||
			(i > 0 && ch >= '0' && ch <= '9')
		if ok {
			b.WriteRune(ch)
		} else {
			b.WriteByte('_')
		}
	}
	return b.String()
}

// BuiltinAtoms is the interpreter's preloaded atom table, in atom-id order
// (atom id 1 = BuiltinAtoms[0]). The legacy format indexes it directly; the
// current format reserves ids below len(BuiltinAtoms)+1 for it.
var BuiltinAtoms = []string{
	"null", "false", "true", "if", "else", "return", "var", "this", "delete",
	"void", "typeof", "new", "in", "instanceof", "do", "while", "for", "break",
	"continue", "switch", "case", "default", "throw", "try", "catch", "finally",
	"function", "debugger", "with", "__FILE__", "__DIR__", "class", "const",
	"enum", "export", "extends", "import", "super", "implements", "interface",
	"let", "package", "private", "protected", "public", "static", "yield",
	"await", "", "length", "fileName", "lineNumber", "message", "errors",
	"stack", "name", "toString", "toLocaleString", "valueOf", "eval",
	"prototype", "constructor", "configurable", "writable", "enumerable",
	"value", "get", "set", "of", "__proto__", "undefined", "number", "boolean",
	"string", "object", "symbol", "integer", "unknown", "arguments", "callee",
	"caller", "<eval>", "<ret>", "<var>", "<arg_var>", "<with>", "lastIndex",
	"target", "index", "input", "defineProperties", "apply", "join", "concat",
	"split", "construct", "getPrototypeOf", "setPrototypeOf", "isExtensible",
	"preventExtensions", "has", "deleteProperty", "defineProperty",
	"getOwnPropertyDescriptor", "ownKeys", "add", "done", "next", "values",
	"source", "flags", "global", "unicode", "raw", "new.target",
	"this.active_func", "<home_object>", "<computed_field>",
	"<static_computed_field>", "<class_fields_init>", "<brand>", "#constructor",
	"as", "from", "meta", "*default*", "*", "Module", "then", "resolve",
	"reject", "promise", "proxy", "revoke", "async", "exec", "groups",
	"status", "reason", "globalThis", "not-equal", "timed-out", "ok", "toJSON",
	"Object", "Array", "Error", "Number", "String", "Boolean", "Symbol",
	"Arguments", "Math", "JSON", "Date", "Function", "GeneratorFunction",
	"ForInIterator", "RegExp", "ArrayBuffer", "SharedArrayBuffer",
	"Uint8ClampedArray", "Int8Array", "Uint8Array", "Int16Array",
	"Uint16Array", "Int32Array", "Uint32Array", "Float32Array",
	"Float64Array", "DataView", "Map", "Set", "WeakMap", "WeakSet",
	"Map Iterator", "Set Iterator", "Array Iterator", "String Iterator",
	"RegExp String Iterator", "Generator", "Proxy", "Promise",
	"PromiseResolveFunction", "PromiseRejectFunction", "AsyncFunction",
	"AsyncFunctionResolve", "AsyncFunctionReject", "AsyncGeneratorFunction",
	"AsyncGenerator", "EvalError", "RangeError", "ReferenceError",
	"SyntaxError", "TypeError", "URIError", "InternalError", "<brand>",
	"Symbol.toPrimitive", "Symbol.iterator", "Symbol.match", "Symbol.matchAll",
	"Symbol.replace", "Symbol.search", "Symbol.split", "Symbol.toStringTag",
	"Symbol.isConcatSpreadable", "Symbol.hasInstance", "Symbol.species",
	"Symbol.unscopables", "Symbol.asyncIterator",
}

// BuiltinEndAtom is the first atom id past the builtin table.
func BuiltinEndAtom() uint32 { return uint32(len(BuiltinAtoms)) + 1 }
