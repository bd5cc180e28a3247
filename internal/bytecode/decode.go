package bytecode

import (
	"encoding/binary"

	"deqjs/internal/qjs"
)

// Instr is one decoded instruction. Operand payloads are valid according
// to Fmt: Imm carries the primary numeric operand (immediates, slot
// indices, pool indices, argument counts), Imm2 the secondary one, Atom
// the raw atom operand, and Target the resolved branch destination.
type Instr struct {
	PC    int
	Op    byte
	Name  string
	Size  int
	Fmt   OpFormat
	NPop  int
	NPush int

	Imm    int64
	Imm2   int
	Atom   uint32
	Target int
}

// HasTarget reports whether the instruction carries a branch destination.
func (i *Instr) HasTarget() bool { return i.Target >= 0 }

// IsJump reports whether the instruction unconditionally or conditionally
// transfers control to Target.
func (i *Instr) IsJump() bool {
	switch i.Name {
	case "goto", "goto8", "goto16", "if_true", "if_false", "if_true8", "if_false8", "gosub", "catch":
		return true
	}
	return false
}

// Terminates reports whether control never falls through to the next
// instruction.
func (i *Instr) Terminates() bool {
	switch i.Name {
	case "return", "return_undef", "return_async", "throw", "tail_call", "tail_call_method", "ret", "goto", "goto8", "goto16":
		return true
	}
	return false
}

// Decode walks a raw bytecode stream into instructions. In Strict mode an
// unknown opcode or a truncated trailing instruction is fatal; BestEffort
// substitutes a one-byte placeholder and records a diagnostic so the
// remaining functions still decode.
func Decode(code []byte, mode qjs.Mode) (qjs.Result[[]Instr], error) {
	var instrs []Instr
	var diags []qjs.Diagnostic

	pc := 0
	for pc < len(code) {
		op := code[pc]
		info, ok := Info(op)
		if !ok {
			if mode == qjs.Strict {
				return qjs.Result[[]Instr]{Diags: diags}, &qjs.UnknownOpcodeError{Offset: pc, Op: op}
			}
			diags = append(diags, qjs.Diagnostic{
				Offset: pc,
				Kind:   "unknown_opcode",
				Msg:    (&qjs.UnknownOpcodeError{Offset: pc, Op: op}).Error(),
			})
			instrs = append(instrs, Instr{PC: pc, Op: op, Name: "unknown", Size: 1, Target: -1})
			pc++
			continue
		}

		size := int(info.Size)
		if len(code)-pc < size {
			err := &qjs.TruncatedInputError{Offset: pc, Need: size, Have: len(code) - pc, What: info.Name}
			if mode == qjs.Strict {
				return qjs.Result[[]Instr]{Diags: diags}, err
			}
			diags = append(diags, qjs.Diagnostic{Offset: pc, Kind: "truncated_instruction", Msg: err.Error()})
			instrs = append(instrs, Instr{PC: pc, Op: op, Name: "unknown", Size: len(code) - pc, Target: -1})
			break
		}

		ins := decodeOne(code, pc, op, info)
		instrs = append(instrs, ins)
		pc += size
	}
	return qjs.Result[[]Instr]{Value: instrs, Diags: diags}, nil
}

func decodeOne(code []byte, pc int, op byte, info OpInfo) Instr {
	ins := Instr{
		PC:     pc,
		Op:     op,
		Name:   info.Name,
		Size:   int(info.Size),
		Fmt:    info.Fmt,
		NPop:   int(info.NPop),
		NPush:  int(info.NPush),
		Target: -1,
	}
	args := code[pc+1 : pc+int(info.Size)]

	u16 := func(b []byte) uint16 { return binary.LittleEndian.Uint16(b) }
	u32 := func(b []byte) uint32 { return binary.LittleEndian.Uint32(b) }

	switch info.Fmt {
	case FmtNone, FmtNoneInt, FmtNoneLoc, FmtNoneArg, FmtNoneVarRef, FmtNPopX:
		// Operand is implicit in the mnemonic.
	case FmtU8, FmtLoc8:
		ins.Imm = int64(args[0])
	case FmtI8:
		ins.Imm = int64(int8(args[0]))
	case FmtU16, FmtLoc, FmtArg, FmtVarRef, FmtNPop:
		ins.Imm = int64(u16(args))
	case FmtI16:
		ins.Imm = int64(int16(u16(args)))
	case FmtNPopU16:
		ins.Imm = int64(u16(args))
		ins.Imm2 = int(u16(args[2:]))
	case FmtU32:
		ins.Imm = int64(u32(args))
	case FmtI32:
		ins.Imm = int64(int32(u32(args)))
	case FmtConst8:
		ins.Imm = int64(args[0])
	case FmtConst:
		ins.Imm = int64(u32(args))
	case FmtLabel8:
		rel := int(int8(args[0]))
		ins.Imm = int64(rel)
		ins.Target = pc + 1 + rel
	case FmtLabel16:
		rel := int(int16(u16(args)))
		ins.Imm = int64(rel)
		ins.Target = pc + 1 + rel
	case FmtLabel:
		rel := int(int32(u32(args)))
		ins.Imm = int64(rel)
		ins.Target = pc + 1 + rel
	case FmtLabelU16:
		rel := int(int32(u32(args)))
		ins.Imm = int64(rel)
		ins.Imm2 = int(u16(args[4:]))
		ins.Target = pc + 1 + rel
	case FmtAtom:
		ins.Atom = u32(args)
	case FmtAtomU8:
		ins.Atom = u32(args)
		ins.Imm2 = int(args[4])
	case FmtAtomU16:
		ins.Atom = u32(args)
		ins.Imm2 = int(u16(args[4:]))
	case FmtAtomLabelU8:
		ins.Atom = u32(args)
		rel := int(int32(u32(args[4:])))
		ins.Imm = int64(rel)
		ins.Imm2 = int(args[8])
		ins.Target = pc + 5 + rel
	case FmtAtomLabelU16:
		ins.Atom = u32(args)
		rel := int(int32(u32(args[4:])))
		ins.Imm = int64(rel)
		ins.Imm2 = int(u16(args[8:]))
		ins.Target = pc + 5 + rel
	}
	return ins
}
