package qjs

import "fmt"

// FormatError reports container-level corruption: bad version byte or an
// object tag the format does not define. Fatal to the whole run.
type FormatError struct {
	Offset int
	Msg    string
}

func (e *FormatError) Error() string {
	return fmt.Sprintf("format error at offset %d: %s", e.Offset, e.Msg)
}

// TruncatedInputError reports a declared length exceeding the remaining
// buffer. Fatal for the affected subtree; siblings already parsed survive.
type TruncatedInputError struct {
	Offset int
	Need   int
	Have   int
	What   string
}

func (e *TruncatedInputError) Error() string {
	return fmt.Sprintf("truncated input at offset %d: %s needs %d bytes, have %d",
		e.Offset, e.What, e.Need, e.Have)
}

// StackMismatchError reports disagreeing abstract stack depths at a basic
// block boundary. Non-fatal at module level: the function falls back to a
// raw instruction listing.
type StackMismatchError struct {
	Func   string
	Offset int
	Want   int
	Got    int
}

func (e *StackMismatchError) Error() string {
	return fmt.Sprintf("stack mismatch in %s at offset %d: entry depth %d vs %d",
		e.Func, e.Offset, e.Want, e.Got)
}

// UnknownOpcodeError reports an opcode byte outside the known set. Only
// surfaced as an error in Strict mode; BestEffort decodes a placeholder.
type UnknownOpcodeError struct {
	Offset int
	Op     byte
}

func (e *UnknownOpcodeError) Error() string {
	return fmt.Sprintf("unknown opcode 0x%02x at offset %d", e.Op, e.Offset)
}
