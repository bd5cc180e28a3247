// Package qjs defines the shared domain types for QuickJS bytecode modules:
// decode options, diagnostics, atoms, serialized values, and function objects.
package qjs

// Mode controls error handling behavior for container decode and
// instruction decoding.
type Mode int

const (
	// Strict returns an error on the first structural invalidity.
	Strict Mode = iota
	// BestEffort continues with placeholders, collecting diagnostics.
	BestEffort
)

// Version selects the container format version.
type Version int

const (
	// VersionAuto sniffs the leading version byte.
	VersionAuto Version = iota
	// VersionCurrent is the modern serialization format (version byte 23).
	VersionCurrent
	// VersionLegacy is the old v1 format with shifted object tags.
	VersionLegacy
)

func (v Version) String() string {
	switch v {
	case VersionCurrent:
		return "current"
	case VersionLegacy:
		return "legacy"
	default:
		return "auto"
	}
}

// EmitMode selects the output fidelity strategy.
type EmitMode int

const (
	// EmitPseudo prioritizes readability: synthesized names, structured
	// control flow, best-effort approximations.
	EmitPseudo EmitMode = iota
	// EmitDisasm is a literal per-instruction listing.
	EmitDisasm
)

func (m EmitMode) String() string {
	if m == EmitDisasm {
		return "disasm"
	}
	return "pseudo"
}

// Options configures a decompilation run.
type Options struct {
	Mode        Mode
	Version     Version
	Emit        EmitMode
	Deobfuscate bool
	Optimize    bool
	MaxSteps    int // safety cap for loop iterations; 0 uses default
}

// DefaultOptions returns BestEffort pseudo decompilation with version sniffing.
func DefaultOptions() Options {
	return Options{Mode: BestEffort, Version: VersionAuto, Emit: EmitPseudo}
}

// DefaultMaxSteps is the default safety cap for iteration loops.
const DefaultMaxSteps = 1 << 20

// EffectiveMaxSteps returns the effective step limit.
func (o Options) EffectiveMaxSteps() int {
	if o.MaxSteps <= 0 {
		return DefaultMaxSteps
	}
	return o.MaxSteps
}

// Decode limits guarding adversarial inputs.
const (
	// MaxReadBytes caps any single length-prefixed read.
	MaxReadBytes = 64 << 20
	// MaxAllocCount caps any single count-prefixed allocation.
	MaxAllocCount = 1 << 20
	// MaxDecodeDepth caps recursion over the serialized value tree.
	MaxDecodeDepth = 256
)

// Diagnostic records one anomaly found during decode or decompilation.
type Diagnostic struct {
	Offset int    // byte offset where the issue occurred
	Kind   string // "truncated", "invalid", "clamped", "unknown_opcode", "stack_mismatch", "stack_join", "unstructured", "unreachable"
	Msg    string
	Func   string // function name, set when aggregating across functions
}

// Result pairs a value with accumulated diagnostics.
type Result[T any] struct {
	Value T
	Diags []Diagnostic
}
