package container

import (
	"fmt"

	"deqjs/internal/qjs"
)

// Serialized object tags, current format.
const (
	tagNull              = 1
	tagUndefined         = 2
	tagBoolFalse         = 3
	tagBoolTrue          = 4
	tagInt32             = 5
	tagFloat64           = 6
	tagString            = 7
	tagObject            = 8
	tagArray             = 9
	tagBigInt            = 10
	tagTemplateObject    = 11
	tagFunctionBytecode  = 12
	tagModule            = 13
	tagTypedArray        = 14
	tagArrayBuffer       = 15
	tagSharedArrayBuffer = 16
	tagRegExp            = 17
	tagDate              = 18
	tagObjectValue       = 19
	tagObjectReference   = 20
	tagMap               = 21
	tagSet               = 22
	tagSymbol            = 23
)

// Format version bytes.
const (
	versionCurrent = 23
	versionLegacy  = 1
)

// VarDef capture flag in the current format's local records.
const localCapturedFlag = 0x40

// Decode parses a serialized module with default (Strict) options.
func Decode(data []byte) (*qjs.Module, error) {
	res, err := DecodeOpt(data, qjs.DefaultOptions())
	return res.Value, err
}

// DecodeOpt parses a serialized module. The container version is taken from
// opts.Version, or sniffed from the leading byte when VersionAuto.
func DecodeOpt(data []byte, opts qjs.Options) (qjs.Result[*qjs.Module], error) {
	version := opts.Version
	if version == qjs.VersionAuto {
		version = qjs.VersionCurrent
		if len(data) > 0 && data[0] == versionLegacy {
			version = qjs.VersionLegacy
		}
	}
	if version == qjs.VersionLegacy {
		return decodeLegacy(data, opts)
	}
	return decodeCurrent(data, opts)
}

func decodeCurrent(data []byte, opts qjs.Options) (qjs.Result[*qjs.Module], error) {
	r := newReader(data, opts.Mode)

	atoms, err := readAtomTable(r)
	if err != nil {
		return qjs.Result[*qjs.Module]{Diags: r.diags}, err
	}
	root, err := readValue(r, atoms)
	if err != nil {
		return qjs.Result[*qjs.Module]{Diags: r.diags}, err
	}
	m := &qjs.Module{Version: qjs.VersionCurrent, Atoms: atoms, Root: root}
	return qjs.Result[*qjs.Module]{Value: m, Diags: r.diags}, nil
}

// readAtomTable decodes the version byte and per-module atom entries.
// Entry layout: type byte (0 = raw u32 atom id, 1 = string, else symbol),
// followed by a QuickJS string for the textual kinds.
func readAtomTable(r *reader) (*qjs.AtomTable, error) {
	version, err := r.u8()
	if err != nil {
		return nil, err
	}
	if version != versionCurrent {
		return nil, &qjs.FormatError{Offset: r.pos - 1, Msg: fmt.Sprintf("unsupported bytecode version %d", version)}
	}

	count, err := r.leb128()
	if err != nil {
		return nil, fmt.Errorf("atom count: %w", err)
	}
	count, err = r.clampCount(count, 2, "atom table")
	if err != nil {
		return nil, err
	}

	atoms := make([]qjs.Atom, 0, count)
	for i := uint32(0); i < count; i++ {
		typ, err := r.u8()
		if err != nil {
			return nil, fmt.Errorf("atom %d type: %w", i, err)
		}
		if typ == 0 {
			raw, err := r.u32()
			if err != nil {
				return nil, fmt.Errorf("atom %d ref: %w", i, err)
			}
			atoms = append(atoms, qjs.Atom{Kind: qjs.AtomRaw, Num: raw})
			continue
		}
		desc, err := r.qstring()
		if err != nil {
			return nil, fmt.Errorf("atom %d text: %w", i, err)
		}
		if typ == 1 {
			atoms = append(atoms, qjs.StringAtom(desc))
		} else {
			atoms = append(atoms, qjs.Atom{Kind: qjs.AtomSymbol, Typ: typ, Str: desc})
		}
	}
	return &qjs.AtomTable{FirstAtom: qjs.BuiltinEndAtom(), Atoms: atoms}, nil
}

// readAtomRef reads an inline atom operand: leb128 value, low bit set means
// tagged integer, otherwise an atom table index.
func readAtomRef(r *reader, atoms *qjs.AtomTable) (qjs.Atom, error) {
	v, err := r.leb128()
	if err != nil {
		return qjs.Atom{}, err
	}
	if v&1 == 1 {
		return qjs.Atom{Kind: qjs.AtomTaggedInt, Num: v >> 1}, nil
	}
	a, err := atoms.Resolve(v >> 1)
	if err != nil {
		return qjs.Atom{}, &qjs.FormatError{Offset: r.pos, Msg: err.Error()}
	}
	return a, nil
}

func readValue(r *reader, atoms *qjs.AtomTable) (qjs.Value, error) {
	r.depth++
	defer func() { r.depth-- }()
	if exceeded, err := r.checkDepth("value"); exceeded {
		return qjs.Value{Kind: qjs.ValUndefined}, err
	}

	tagOff := r.pos
	tag, err := r.u8()
	if err != nil {
		return qjs.Value{}, err
	}
	switch tag {
	case tagNull:
		return qjs.Value{Kind: qjs.ValNull}, nil
	case tagUndefined:
		return qjs.Value{Kind: qjs.ValUndefined}, nil
	case tagBoolFalse:
		return qjs.Value{Kind: qjs.ValBool, Bool: false}, nil
	case tagBoolTrue:
		return qjs.Value{Kind: qjs.ValBool, Bool: true}, nil
	case tagInt32:
		v, err := r.sleb128()
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValInt32, Int: v}, nil
	case tagFloat64:
		v, err := r.f64()
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValFloat64, Float: v}, nil
	case tagString:
		s, err := r.qstring()
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValString, Str: s}, nil
	case tagObject:
		count, err := r.leb128()
		if err != nil {
			return qjs.Value{}, err
		}
		count, err = r.clampCount(count, 2, "object properties")
		if err != nil {
			return qjs.Value{}, err
		}
		props := make([]qjs.Property, 0, count)
		for i := uint32(0); i < count; i++ {
			name, err := readAtomRef(r, atoms)
			if err != nil {
				return qjs.Value{}, err
			}
			val, err := readValue(r, atoms)
			if err != nil {
				return qjs.Value{}, err
			}
			props = append(props, qjs.Property{Name: name, Value: val})
		}
		return qjs.Value{Kind: qjs.ValObject, Props: props}, nil
	case tagArray, tagTemplateObject:
		n, err := r.leb128()
		if err != nil {
			return qjs.Value{}, err
		}
		n, err = r.clampCount(n, 1, "array elements")
		if err != nil {
			return qjs.Value{}, err
		}
		items := make([]qjs.Value, 0, n)
		for i := uint32(0); i < n; i++ {
			v, err := readValue(r, atoms)
			if err != nil {
				return qjs.Value{}, err
			}
			items = append(items, v)
		}
		if tag == tagTemplateObject {
			// Trailing raw-strings value, not surfaced.
			if _, err := readValue(r, atoms); err != nil {
				return qjs.Value{}, err
			}
		}
		return qjs.Value{Kind: qjs.ValArray, Items: items}, nil
	case tagRegExp:
		pattern, err := r.qstring()
		if err != nil {
			return qjs.Value{}, err
		}
		bc, err := r.qstring()
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValRegExp, Str: pattern, RegExpBytecode: bc}, nil
	case tagBigInt:
		n, err := r.leb128()
		if err != nil {
			return qjs.Value{}, err
		}
		b, err := r.bytes(int(n))
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValBigInt, Bytes: b}, nil
	case tagSymbol:
		a, err := readAtomRef(r, atoms)
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValSymbol, Atom: a}, nil
	case tagArrayBuffer:
		n, err := r.leb128()
		if err != nil {
			return qjs.Value{}, err
		}
		if _, err := r.leb128(); err != nil { // max byte length
			return qjs.Value{}, err
		}
		b, err := r.bytes(int(n))
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValArrayBuffer, Bytes: b}, nil
	case tagTypedArray:
		kind, err := r.u8()
		if err != nil {
			return qjs.Value{}, err
		}
		n, err := r.leb128()
		if err != nil {
			return qjs.Value{}, err
		}
		off, err := r.leb128()
		if err != nil {
			return qjs.Value{}, err
		}
		buf, err := readValue(r, atoms)
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValTypedArray, TypedKind: kind, TypedLen: n, TypedOffset: off, Sub: &buf}, nil
	case tagDate:
		v, err := readValue(r, atoms)
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValDate, Sub: &v}, nil
	case tagModule:
		return readModuleValue(r, atoms)
	case tagFunctionBytecode:
		fn, err := readFunction(r, atoms)
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValFunction, Func: fn}, nil
	case tagSharedArrayBuffer, tagObjectValue, tagObjectReference, tagMap, tagSet:
		return qjs.Value{}, &qjs.FormatError{Offset: tagOff, Msg: fmt.Sprintf("unsupported object tag %d", tag)}
	default:
		return qjs.Value{Kind: qjs.ValUnsupported, Tag: tag}, nil
	}
}

// readModuleValue decodes a module record: name, require/export/star/import
// metadata (skipped), the top-level-await flag, and the entry function.
func readModuleValue(r *reader, atoms *qjs.AtomTable) (qjs.Value, error) {
	name, err := readAtomRef(r, atoms)
	if err != nil {
		return qjs.Value{}, err
	}

	reqCount, err := r.leb128()
	if err != nil {
		return qjs.Value{}, err
	}
	reqCount, err = r.clampCount(reqCount, 1, "module requires")
	if err != nil {
		return qjs.Value{}, err
	}
	for i := uint32(0); i < reqCount; i++ {
		if _, err := readAtomRef(r, atoms); err != nil {
			return qjs.Value{}, err
		}
	}

	exportCount, err := r.leb128()
	if err != nil {
		return qjs.Value{}, err
	}
	exportCount, err = r.clampCount(exportCount, 2, "module exports")
	if err != nil {
		return qjs.Value{}, err
	}
	for i := uint32(0); i < exportCount; i++ {
		exportType, err := r.u8()
		if err != nil {
			return qjs.Value{}, err
		}
		if _, err := r.leb128(); err != nil {
			return qjs.Value{}, err
		}
		if exportType != 0 {
			if _, err := readAtomRef(r, atoms); err != nil {
				return qjs.Value{}, err
			}
		}
		if _, err := readAtomRef(r, atoms); err != nil {
			return qjs.Value{}, err
		}
	}

	starCount, err := r.leb128()
	if err != nil {
		return qjs.Value{}, err
	}
	starCount, err = r.clampCount(starCount, 1, "module star exports")
	if err != nil {
		return qjs.Value{}, err
	}
	for i := uint32(0); i < starCount; i++ {
		if _, err := r.leb128(); err != nil {
			return qjs.Value{}, err
		}
	}

	importCount, err := r.leb128()
	if err != nil {
		return qjs.Value{}, err
	}
	importCount, err = r.clampCount(importCount, 3, "module imports")
	if err != nil {
		return qjs.Value{}, err
	}
	for i := uint32(0); i < importCount; i++ {
		if _, err := r.leb128(); err != nil {
			return qjs.Value{}, err
		}
		if _, err := readAtomRef(r, atoms); err != nil {
			return qjs.Value{}, err
		}
		if _, err := r.leb128(); err != nil {
			return qjs.Value{}, err
		}
	}

	if _, err := r.u8(); err != nil { // has top-level await
		return qjs.Value{}, err
	}

	fn, err := readValue(r, atoms)
	if err != nil {
		return qjs.Value{}, err
	}
	return qjs.Value{Kind: qjs.ValModule, Atom: name, Sub: &fn}, nil
}

// readFunction decodes one FunctionBytecode record in the current layout:
// header counts, locals, closure vars, constant pool, then raw bytecode.
func readFunction(r *reader, atoms *qjs.AtomTable) (*qjs.FunctionInfo, error) {
	flags, err := r.u16()
	if err != nil {
		return nil, err
	}
	strict, err := r.u8()
	if err != nil {
		return nil, err
	}
	name, err := readAtomRef(r, atoms)
	if err != nil {
		return nil, err
	}

	var header [6]uint32 // argCount, varCount, definedArgCount, stackSize, varRefCount, closureVarCount
	for i := range header {
		header[i], err = r.leb128()
		if err != nil {
			return nil, fmt.Errorf("function header: %w", err)
		}
	}
	cpoolCount, err := r.leb128()
	if err != nil {
		return nil, err
	}
	bytecodeLen, err := r.leb128()
	if err != nil {
		return nil, err
	}
	localCount, err := r.leb128()
	if err != nil {
		return nil, err
	}

	localCount, err = r.clampCount(localCount, 4, "locals")
	if err != nil {
		return nil, err
	}
	locals := make([]qjs.VarDef, 0, localCount)
	for i := uint32(0); i < localCount; i++ {
		lname, err := readAtomRef(r, atoms)
		if err != nil {
			return nil, err
		}
		scopeLevel, err := r.leb128()
		if err != nil {
			return nil, err
		}
		scopeNext, err := r.leb128()
		if err != nil {
			return nil, err
		}
		if scopeNext > 0 {
			scopeNext--
		}
		lflags, err := r.u8()
		if err != nil {
			return nil, err
		}
		varRefIdx := -1
		if lflags&localCapturedFlag != 0 {
			idx, err := r.leb128()
			if err != nil {
				return nil, err
			}
			varRefIdx = int(idx)
		}
		locals = append(locals, qjs.VarDef{
			Name:       lname,
			ScopeLevel: scopeLevel,
			ScopeNext:  scopeNext,
			Flags:      lflags,
			VarRefIdx:  varRefIdx,
		})
	}

	closureCount, err := r.clampCount(header[5], 3, "closure vars")
	if err != nil {
		return nil, err
	}
	closureVars := make([]qjs.ClosureVar, 0, closureCount)
	for i := uint32(0); i < closureCount; i++ {
		cname, err := readAtomRef(r, atoms)
		if err != nil {
			return nil, err
		}
		varIdx, err := r.leb128()
		if err != nil {
			return nil, err
		}
		cflags, err := r.leb128()
		if err != nil {
			return nil, err
		}
		closureVars = append(closureVars, qjs.ClosureVar{Name: cname, VarIdx: varIdx, Flags: cflags})
	}

	cpoolCount, err = r.clampCount(cpoolCount, 1, "constant pool")
	if err != nil {
		return nil, err
	}
	cpool := make([]qjs.Value, 0, cpoolCount)
	for i := uint32(0); i < cpoolCount; i++ {
		v, err := readValue(r, atoms)
		if err != nil {
			return nil, err
		}
		cpool = append(cpool, v)
	}

	bytecode, err := r.bytes(int(bytecodeLen))
	if err != nil {
		return nil, err
	}

	return &qjs.FunctionInfo{
		Name:            name,
		StrictMode:      strict != 0,
		ArgCount:        uint16(header[0]),
		VarCount:        uint16(header[1]),
		DefinedArgCount: uint16(header[2]),
		StackSize:       uint16(header[3]),
		VarRefCount:     uint16(header[4]),
		ClosureVarCount: uint16(header[5]),
		Flags:           flags,
		Locals:          locals,
		ClosureVars:     closureVars,
		ConstPool:       cpool,
		Bytecode:        bytecode,
	}, nil
}
