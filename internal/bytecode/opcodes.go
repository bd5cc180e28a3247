// Package bytecode decodes QuickJS instruction streams into a flat
// instruction list with resolved operands and branch targets.
package bytecode

// OpFormat describes an opcode's operand encoding.
type OpFormat uint8

const (
	FmtNone OpFormat = iota
	FmtNoneInt
	FmtNoneLoc
	FmtNoneArg
	FmtNoneVarRef
	FmtU8
	FmtI8
	FmtLoc8
	FmtConst8
	FmtLabel8
	FmtU16
	FmtI16
	FmtLabel16
	FmtNPop
	FmtNPopX
	FmtNPopU16
	FmtLoc
	FmtArg
	FmtVarRef
	FmtU32
	FmtI32
	FmtConst
	FmtLabel
	FmtAtom
	FmtAtomU8
	FmtAtomU16
	FmtAtomLabelU8
	FmtAtomLabelU16
	FmtLabelU16
)

var fmtNames = [...]string{
	FmtNone:         "none",
	FmtNoneInt:      "none_int",
	FmtNoneLoc:      "none_loc",
	FmtNoneArg:      "none_arg",
	FmtNoneVarRef:   "none_var_ref",
	FmtU8:           "u8",
	FmtI8:           "i8",
	FmtLoc8:         "loc8",
	FmtConst8:       "const8",
	FmtLabel8:       "label8",
	FmtU16:          "u16",
	FmtI16:          "i16",
	FmtLabel16:      "label16",
	FmtNPop:         "npop",
	FmtNPopX:        "npopx",
	FmtNPopU16:      "npop_u16",
	FmtLoc:          "loc",
	FmtArg:          "arg",
	FmtVarRef:       "var_ref",
	FmtU32:          "u32",
	FmtI32:          "i32",
	FmtConst:        "const",
	FmtLabel:        "label",
	FmtAtom:         "atom",
	FmtAtomU8:       "atom_u8",
	FmtAtomU16:      "atom_u16",
	FmtAtomLabelU8:  "atom_label_u8",
	FmtAtomLabelU16: "atom_label_u16",
	FmtLabelU16:     "label_u16",
}

func (f OpFormat) String() string {
	if int(f) < len(fmtNames) {
		return fmtNames[f]
	}
	return "unknown"
}

// OpInfo is the static description of one opcode.
type OpInfo struct {
	Name  string
	Size  uint8
	NPop  uint8
	NPush uint8
	Fmt   OpFormat
}

// opcodeTable is indexed directly by opcode byte. The layout follows the
// interpreter's dispatch table, short forms included.
var opcodeTable = []OpInfo{
	{"invalid", 1, 0, 0, FmtNone},
	{"push_i32", 5, 0, 1, FmtI32},
	{"push_const", 5, 0, 1, FmtConst},
	{"fclosure", 5, 0, 1, FmtConst},
	{"push_atom_value", 5, 0, 1, FmtAtom},
	{"private_symbol", 5, 0, 1, FmtAtom},
	{"undefined", 1, 0, 1, FmtNone},
	{"null", 1, 0, 1, FmtNone},
	{"push_this", 1, 0, 1, FmtNone},
	{"push_false", 1, 0, 1, FmtNone},
	{"push_true", 1, 0, 1, FmtNone},
	{"object", 1, 0, 1, FmtNone},
	{"special_object", 2, 0, 1, FmtU8},
	{"rest", 3, 0, 1, FmtU16},
	{"drop", 1, 1, 0, FmtNone},
	{"nip", 1, 2, 1, FmtNone},
	{"nip1", 1, 3, 2, FmtNone},
	{"dup", 1, 1, 2, FmtNone},
	{"dup1", 1, 2, 3, FmtNone},
	{"dup2", 1, 2, 4, FmtNone},
	{"dup3", 1, 3, 6, FmtNone},
	{"insert2", 1, 2, 3, FmtNone},
	{"insert3", 1, 3, 4, FmtNone},
	{"insert4", 1, 4, 5, FmtNone},
	{"perm3", 1, 3, 3, FmtNone},
	{"perm4", 1, 4, 4, FmtNone},
	{"perm5", 1, 5, 5, FmtNone},
	{"swap", 1, 2, 2, FmtNone},
	{"swap2", 1, 4, 4, FmtNone},
	{"rot3l", 1, 3, 3, FmtNone},
	{"rot3r", 1, 3, 3, FmtNone},
	{"rot4l", 1, 4, 4, FmtNone},
	{"rot5l", 1, 5, 5, FmtNone},
	{"call_constructor", 3, 2, 1, FmtNPop},
	{"call", 3, 1, 1, FmtNPop},
	{"tail_call", 3, 1, 0, FmtNPop},
	{"call_method", 3, 2, 1, FmtNPop},
	{"tail_call_method", 3, 2, 0, FmtNPop},
	{"array_from", 3, 0, 1, FmtNPop},
	{"apply", 3, 3, 1, FmtU16},
	{"return", 1, 1, 0, FmtNone},
	{"return_undef", 1, 0, 0, FmtNone},
	{"check_ctor_return", 1, 1, 2, FmtNone},
	{"check_ctor", 1, 0, 0, FmtNone},
	{"check_brand", 1, 2, 2, FmtNone},
	{"add_brand", 1, 2, 0, FmtNone},
	{"return_async", 1, 1, 0, FmtNone},
	{"throw", 1, 1, 0, FmtNone},
	{"throw_error", 6, 0, 0, FmtAtomU8},
	{"eval", 5, 1, 1, FmtNPopU16},
	{"apply_eval", 3, 2, 1, FmtU16},
	{"regexp", 1, 2, 1, FmtNone},
	{"get_super", 1, 1, 1, FmtNone},
	{"import", 1, 1, 1, FmtNone},
	{"check_var", 5, 0, 1, FmtAtom},
	{"get_var_undef", 5, 0, 1, FmtAtom},
	{"get_var", 5, 0, 1, FmtAtom},
	{"put_var", 5, 1, 0, FmtAtom},
	{"put_var_init", 5, 1, 0, FmtAtom},
	{"put_var_strict", 5, 2, 0, FmtAtom},
	{"get_ref_value", 1, 2, 3, FmtNone},
	{"put_ref_value", 1, 3, 0, FmtNone},
	{"define_var", 6, 0, 0, FmtAtomU8},
	{"check_define_var", 6, 0, 0, FmtAtomU8},
	{"define_func", 6, 1, 0, FmtAtomU8},
	{"get_field", 5, 1, 1, FmtAtom},
	{"get_field2", 5, 1, 2, FmtAtom},
	{"put_field", 5, 2, 0, FmtAtom},
	{"get_private_field", 1, 2, 1, FmtNone},
	{"put_private_field", 1, 3, 0, FmtNone},
	{"define_private_field", 1, 3, 1, FmtNone},
	{"get_array_el", 1, 2, 1, FmtNone},
	{"get_array_el2", 1, 2, 2, FmtNone},
	{"put_array_el", 1, 3, 0, FmtNone},
	{"get_super_value", 1, 3, 1, FmtNone},
	{"put_super_value", 1, 4, 0, FmtNone},
	{"define_field", 5, 2, 1, FmtAtom},
	{"set_name", 5, 1, 1, FmtAtom},
	{"set_name_computed", 1, 2, 2, FmtNone},
	{"set_proto", 1, 2, 1, FmtNone},
	{"set_home_object", 1, 2, 2, FmtNone},
	{"define_array_el", 1, 3, 2, FmtNone},
	{"append", 1, 3, 2, FmtNone},
	{"copy_data_properties", 2, 3, 3, FmtU8},
	{"define_method", 6, 2, 1, FmtAtomU8},
	{"define_method_computed", 2, 3, 1, FmtU8},
	{"define_class", 6, 2, 2, FmtAtomU8},
	{"define_class_computed", 6, 3, 3, FmtAtomU8},
	{"get_loc", 3, 0, 1, FmtLoc},
	{"put_loc", 3, 1, 0, FmtLoc},
	{"set_loc", 3, 1, 1, FmtLoc},
	{"get_arg", 3, 0, 1, FmtArg},
	{"put_arg", 3, 1, 0, FmtArg},
	{"set_arg", 3, 1, 1, FmtArg},
	{"get_var_ref", 3, 0, 1, FmtVarRef},
	{"put_var_ref", 3, 1, 0, FmtVarRef},
	{"set_var_ref", 3, 1, 1, FmtVarRef},
	{"set_loc_uninitialized", 3, 0, 0, FmtLoc},
	{"get_loc_check", 3, 0, 1, FmtLoc},
	{"put_loc_check", 3, 1, 0, FmtLoc},
	{"put_loc_check_init", 3, 1, 0, FmtLoc},
	{"get_var_ref_check", 3, 0, 1, FmtVarRef},
	{"put_var_ref_check", 3, 1, 0, FmtVarRef},
	{"put_var_ref_check_init", 3, 1, 0, FmtVarRef},
	{"close_loc", 3, 0, 0, FmtLoc},
	{"if_false", 5, 1, 0, FmtLabel},
	{"if_true", 5, 1, 0, FmtLabel},
	{"goto", 5, 0, 0, FmtLabel},
	{"catch", 5, 0, 1, FmtLabel},
	{"gosub", 5, 0, 0, FmtLabel},
	{"ret", 1, 1, 0, FmtNone},
	{"to_object", 1, 1, 1, FmtNone},
	{"to_propkey", 1, 1, 1, FmtNone},
	{"to_propkey2", 1, 2, 2, FmtNone},
	{"with_get_var", 10, 1, 0, FmtAtomLabelU8},
	{"with_put_var", 10, 2, 1, FmtAtomLabelU8},
	{"with_delete_var", 10, 1, 0, FmtAtomLabelU8},
	{"with_make_ref", 10, 1, 0, FmtAtomLabelU8},
	{"with_get_ref", 10, 1, 0, FmtAtomLabelU8},
	{"with_get_ref_undef", 10, 1, 0, FmtAtomLabelU8},
	{"make_loc_ref", 7, 0, 2, FmtAtomU16},
	{"make_arg_ref", 7, 0, 2, FmtAtomU16},
	{"make_var_ref_ref", 7, 0, 2, FmtAtomU16},
	{"make_var_ref", 5, 0, 2, FmtAtom},
	{"for_in_start", 1, 1, 1, FmtNone},
	{"for_of_start", 1, 1, 3, FmtNone},
	{"for_await_of_start", 1, 1, 3, FmtNone},
	{"for_in_next", 1, 1, 3, FmtNone},
	{"for_of_next", 2, 3, 5, FmtU8},
	{"iterator_check_object", 1, 1, 1, FmtNone},
	{"iterator_get_value_done", 1, 1, 2, FmtNone},
	{"iterator_close", 1, 3, 0, FmtNone},
	{"iterator_close_return", 1, 4, 4, FmtNone},
	{"iterator_next", 1, 4, 4, FmtNone},
	{"iterator_call", 2, 4, 5, FmtU8},
	{"initial_yield", 1, 0, 0, FmtNone},
	{"yield", 1, 1, 2, FmtNone},
	{"yield_star", 1, 1, 2, FmtNone},
	{"async_yield_star", 1, 1, 2, FmtNone},
	{"await", 1, 1, 1, FmtNone},
	{"neg", 1, 1, 1, FmtNone},
	{"plus", 1, 1, 1, FmtNone},
	{"dec", 1, 1, 1, FmtNone},
	{"inc", 1, 1, 1, FmtNone},
	{"post_dec", 1, 1, 2, FmtNone},
	{"post_inc", 1, 1, 2, FmtNone},
	{"dec_loc", 2, 0, 0, FmtLoc8},
	{"inc_loc", 2, 0, 0, FmtLoc8},
	{"add_loc", 2, 1, 0, FmtLoc8},
	{"not", 1, 1, 1, FmtNone},
	{"lnot", 1, 1, 1, FmtNone},
	{"typeof", 1, 1, 1, FmtNone},
	{"delete", 1, 2, 1, FmtNone},
	{"delete_var", 5, 0, 1, FmtAtom},
	{"mul", 1, 2, 1, FmtNone},
	{"div", 1, 2, 1, FmtNone},
	{"mod", 1, 2, 1, FmtNone},
	{"add", 1, 2, 1, FmtNone},
	{"sub", 1, 2, 1, FmtNone},
	{"pow", 1, 2, 1, FmtNone},
	{"shl", 1, 2, 1, FmtNone},
	{"sar", 1, 2, 1, FmtNone},
	{"shr", 1, 2, 1, FmtNone},
	{"lt", 1, 2, 1, FmtNone},
	{"lte", 1, 2, 1, FmtNone},
	{"gt", 1, 2, 1, FmtNone},
	{"gte", 1, 2, 1, FmtNone},
	{"instanceof", 1, 2, 1, FmtNone},
	{"in", 1, 2, 1, FmtNone},
	{"eq", 1, 2, 1, FmtNone},
	{"neq", 1, 2, 1, FmtNone},
	{"strict_eq", 1, 2, 1, FmtNone},
	{"strict_neq", 1, 2, 1, FmtNone},
	{"and", 1, 2, 1, FmtNone},
	{"xor", 1, 2, 1, FmtNone},
	{"or", 1, 2, 1, FmtNone},
	{"is_undefined_or_null", 1, 1, 1, FmtNone},
	{"nop", 1, 0, 0, FmtNone},
	{"push_minus1", 1, 0, 1, FmtNoneInt},
	{"push_0", 1, 0, 1, FmtNoneInt},
	{"push_1", 1, 0, 1, FmtNoneInt},
	{"push_2", 1, 0, 1, FmtNoneInt},
	{"push_3", 1, 0, 1, FmtNoneInt},
	{"push_4", 1, 0, 1, FmtNoneInt},
	{"push_5", 1, 0, 1, FmtNoneInt},
	{"push_6", 1, 0, 1, FmtNoneInt},
	{"push_7", 1, 0, 1, FmtNoneInt},
	{"push_i8", 2, 0, 1, FmtI8},
	{"push_i16", 3, 0, 1, FmtI16},
	{"push_const8", 2, 0, 1, FmtConst8},
	{"fclosure8", 2, 0, 1, FmtConst8},
	{"push_empty_string", 1, 0, 1, FmtNone},
	{"get_loc8", 2, 0, 1, FmtLoc8},
	{"put_loc8", 2, 1, 0, FmtLoc8},
	{"set_loc8", 2, 1, 1, FmtLoc8},
	{"get_loc0", 1, 0, 1, FmtNoneLoc},
	{"get_loc1", 1, 0, 1, FmtNoneLoc},
	{"get_loc2", 1, 0, 1, FmtNoneLoc},
	{"get_loc3", 1, 0, 1, FmtNoneLoc},
	{"put_loc0", 1, 1, 0, FmtNoneLoc},
	{"put_loc1", 1, 1, 0, FmtNoneLoc},
	{"put_loc2", 1, 1, 0, FmtNoneLoc},
	{"put_loc3", 1, 1, 0, FmtNoneLoc},
	{"set_loc0", 1, 1, 1, FmtNoneLoc},
	{"set_loc1", 1, 1, 1, FmtNoneLoc},
	{"set_loc2", 1, 1, 1, FmtNoneLoc},
	{"set_loc3", 1, 1, 1, FmtNoneLoc},
	{"get_arg0", 1, 0, 1, FmtNoneArg},
	{"get_arg1", 1, 0, 1, FmtNoneArg},
	{"get_arg2", 1, 0, 1, FmtNoneArg},
	{"get_arg3", 1, 0, 1, FmtNoneArg},
	{"put_arg0", 1, 1, 0, FmtNoneArg},
	{"put_arg1", 1, 1, 0, FmtNoneArg},
	{"put_arg2", 1, 1, 0, FmtNoneArg},
	{"put_arg3", 1, 1, 0, FmtNoneArg},
	{"set_arg0", 1, 1, 1, FmtNoneArg},
	{"set_arg1", 1, 1, 1, FmtNoneArg},
	{"set_arg2", 1, 1, 1, FmtNoneArg},
	{"set_arg3", 1, 1, 1, FmtNoneArg},
	{"get_var_ref0", 1, 0, 1, FmtNoneVarRef},
	{"get_var_ref1", 1, 0, 1, FmtNoneVarRef},
	{"get_var_ref2", 1, 0, 1, FmtNoneVarRef},
	{"get_var_ref3", 1, 0, 1, FmtNoneVarRef},
	{"put_var_ref0", 1, 1, 0, FmtNoneVarRef},
	{"put_var_ref1", 1, 1, 0, FmtNoneVarRef},
	{"put_var_ref2", 1, 1, 0, FmtNoneVarRef},
	{"put_var_ref3", 1, 1, 0, FmtNoneVarRef},
	{"set_var_ref0", 1, 1, 1, FmtNoneVarRef},
	{"set_var_ref1", 1, 1, 1, FmtNoneVarRef},
	{"set_var_ref2", 1, 1, 1, FmtNoneVarRef},
	{"set_var_ref3", 1, 1, 1, FmtNoneVarRef},
	{"get_length", 1, 1, 1, FmtNone},
	{"if_false8", 2, 1, 0, FmtLabel8},
	{"if_true8", 2, 1, 0, FmtLabel8},
	{"goto8", 2, 0, 0, FmtLabel8},
	{"goto16", 3, 0, 0, FmtLabel16},
	{"call0", 1, 1, 1, FmtNPopX},
	{"call1", 1, 1, 1, FmtNPopX},
	{"call2", 1, 1, 1, FmtNPopX},
	{"call3", 1, 1, 1, FmtNPopX},
	{"is_undefined", 1, 1, 1, FmtNone},
	{"is_null", 1, 1, 1, FmtNone},
	{"typeof_is_undefined", 1, 1, 1, FmtNone},
	{"typeof_is_function", 1, 1, 1, FmtNone},
}

// Info returns the static description for an opcode byte, or false when
// the byte falls outside the table.
func Info(op byte) (OpInfo, bool) {
	if int(op) >= len(opcodeTable) {
		return OpInfo{}, false
	}
	return opcodeTable[op], true
}

var opByName map[string]byte

func init() {
	opByName = make(map[string]byte, len(opcodeTable))
	for i, info := range opcodeTable {
		opByName[info.Name] = byte(i)
	}
}

// OpByName maps an opcode mnemonic back to its byte. Used mostly by tests
// and fixture builders.
func OpByName(name string) (byte, bool) {
	op, ok := opByName[name]
	return op, ok
}
