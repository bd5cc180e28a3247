package container

import (
	"fmt"

	"deqjs/internal/qjs"
)

// Legacy (version 1) object tags. The tail of the tree shifts because
// REGEXP, BIG_INT and SYMBOL entries were added later.
const (
	tagTemplateObjectV1    = 13
	tagFunctionBytecodeV1  = 14
	tagModuleV1            = 15
	tagTypedArrayV1        = 16
	tagArrayBufferV1       = 17
	tagSharedArrayBufferV1 = 18
	tagDateV1              = 19
	tagObjectValueV1       = 20
	tagObjectReferenceV1   = 21
)

const hasDebugFlag = 0x8000

func decodeLegacy(data []byte, opts qjs.Options) (qjs.Result[*qjs.Module], error) {
	r := newReader(data, opts.Mode)

	atoms, err := readAtomTableLegacy(r)
	if err != nil {
		return qjs.Result[*qjs.Module]{Diags: r.diags}, err
	}
	root, err := readValueLegacy(r, atoms)
	if err != nil {
		return qjs.Result[*qjs.Module]{Diags: r.diags}, err
	}
	m := &qjs.Module{Version: qjs.VersionLegacy, Atoms: atoms, Root: root}
	return qjs.Result[*qjs.Module]{Value: m, Diags: r.diags}, nil
}

// readAtomTableLegacy builds the full legacy atom set: the fixed builtin
// list followed by the module's own strings, addressed by 1-based atom id.
func readAtomTableLegacy(r *reader) (*qjs.AtomTable, error) {
	version, err := r.u8()
	if err != nil {
		return nil, err
	}
	if version != versionLegacy {
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

	atoms := make([]qjs.Atom, 0, len(qjs.BuiltinAtoms)+int(count))
	for _, s := range qjs.BuiltinAtoms {
		atoms = append(atoms, qjs.StringAtom(s))
	}
	for i := uint32(0); i < count; i++ {
		s, err := r.qstring()
		if err != nil {
			return nil, fmt.Errorf("atom %d text: %w", i, err)
		}
		atoms = append(atoms, qjs.StringAtom(s))
	}
	return &qjs.AtomTable{FirstAtom: 1, Atoms: atoms}, nil
}

// readAtomIDLegacy reads a direct leb128 atom id: 0 is the null atom,
// anything else indexes the combined table. Ids past the table are kept
// as raw values rather than rejected.
func readAtomIDLegacy(r *reader, atoms *qjs.AtomTable) (qjs.Atom, error) {
	id, err := r.leb128()
	if err != nil {
		return qjs.Atom{}, err
	}
	return atoms.ResolveOrRaw(id), nil
}

func readValueLegacy(r *reader, atoms *qjs.AtomTable) (qjs.Value, error) {
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
			name, err := readAtomIDLegacy(r, atoms)
			if err != nil {
				return qjs.Value{}, err
			}
			val, err := readValueLegacy(r, atoms)
			if err != nil {
				return qjs.Value{}, err
			}
			props = append(props, qjs.Property{Name: name, Value: val})
		}
		return qjs.Value{Kind: qjs.ValObject, Props: props}, nil
	case tagArray, tagTemplateObjectV1:
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
			v, err := readValueLegacy(r, atoms)
			if err != nil {
				return qjs.Value{}, err
			}
			items = append(items, v)
		}
		if tag == tagTemplateObjectV1 {
			if _, err := readValueLegacy(r, atoms); err != nil {
				return qjs.Value{}, err
			}
		}
		return qjs.Value{Kind: qjs.ValArray, Items: items}, nil
	case tagFunctionBytecodeV1:
		fn, err := readFunctionLegacy(r, atoms)
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValFunction, Func: fn}, nil
	case tagModuleV1:
		return readModuleValueLegacy(r, atoms)
	case tagTypedArrayV1:
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
		buf, err := readValueLegacy(r, atoms)
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValTypedArray, TypedKind: kind, TypedLen: n, TypedOffset: off, Sub: &buf}, nil
	case tagArrayBufferV1:
		n, err := r.leb128()
		if err != nil {
			return qjs.Value{}, err
		}
		b, err := r.bytes(int(n))
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValArrayBuffer, Bytes: b}, nil
	case tagSharedArrayBufferV1:
		// Length plus a host pointer, neither recoverable offline.
		if _, err := r.leb128(); err != nil {
			return qjs.Value{}, err
		}
		if _, err := r.u64(); err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValUnsupported, Tag: tag}, nil
	case tagDateV1:
		v, err := readValueLegacy(r, atoms)
		if err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValDate, Sub: &v}, nil
	case tagObjectValueV1:
		return readValueLegacy(r, atoms)
	case tagObjectReferenceV1:
		if _, err := r.leb128(); err != nil {
			return qjs.Value{}, err
		}
		return qjs.Value{Kind: qjs.ValUnsupported, Tag: tag}, nil
	default:
		return qjs.Value{}, &qjs.FormatError{Offset: tagOff, Msg: fmt.Sprintf("unsupported object tag %d", tag)}
	}
}

func readModuleValueLegacy(r *reader, atoms *qjs.AtomTable) (qjs.Value, error) {
	name, err := readAtomIDLegacy(r, atoms)
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
		if _, err := readAtomIDLegacy(r, atoms); err != nil {
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
			if _, err := readAtomIDLegacy(r, atoms); err != nil {
				return qjs.Value{}, err
			}
		}
		if _, err := readAtomIDLegacy(r, atoms); err != nil {
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
		if _, err := readAtomIDLegacy(r, atoms); err != nil {
			return qjs.Value{}, err
		}
		if _, err := r.leb128(); err != nil {
			return qjs.Value{}, err
		}
	}

	fn, err := readValueLegacy(r, atoms)
	if err != nil {
		return qjs.Value{}, err
	}
	return qjs.Value{Kind: qjs.ValModule, Atom: name, Sub: &fn}, nil
}

// readFunctionLegacy decodes the v1 function layout. Unlike the current
// format it has no varRefCount or strict byte, locals carry no ref index,
// the raw bytecode and optional debug block precede the constant pool,
// and closure var flags are one byte.
func readFunctionLegacy(r *reader, atoms *qjs.AtomTable) (*qjs.FunctionInfo, error) {
	flags, err := r.u16()
	if err != nil {
		return nil, err
	}
	if _, err := r.u8(); err != nil { // js mode
		return nil, err
	}
	name, err := readAtomIDLegacy(r, atoms)
	if err != nil {
		return nil, err
	}

	var header [5]uint32 // argCount, varCount, definedArgCount, stackSize, closureVarCount
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

	localCount, err = r.clampCount(localCount, 3, "locals")
	if err != nil {
		return nil, err
	}
	locals := make([]qjs.VarDef, 0, localCount)
	for i := uint32(0); i < localCount; i++ {
		lname, err := readAtomIDLegacy(r, atoms)
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
		lflags, err := r.u8()
		if err != nil {
			return nil, err
		}
		locals = append(locals, qjs.VarDef{
			Name:       lname,
			ScopeLevel: scopeLevel,
			ScopeNext:  scopeNext,
			Flags:      lflags,
			VarRefIdx:  -1,
		})
	}

	closureCount, err := r.clampCount(header[4], 2, "closure vars")
	if err != nil {
		return nil, err
	}
	closureVars := make([]qjs.ClosureVar, 0, closureCount)
	for i := uint32(0); i < closureCount; i++ {
		cname, err := readAtomIDLegacy(r, atoms)
		if err != nil {
			return nil, err
		}
		varIdx, err := r.leb128()
		if err != nil {
			return nil, err
		}
		cflags, err := r.u8()
		if err != nil {
			return nil, err
		}
		closureVars = append(closureVars, qjs.ClosureVar{Name: cname, VarIdx: varIdx, Flags: uint32(cflags)})
	}

	bytecode, err := r.bytes(int(bytecodeLen))
	if err != nil {
		return nil, err
	}

	if flags&hasDebugFlag != 0 {
		if _, err := readAtomIDLegacy(r, atoms); err != nil { // filename
			return nil, err
		}
		if _, err := r.leb128(); err != nil { // line number
			return nil, err
		}
		mapLen, err := r.leb128()
		if err != nil {
			return nil, err
		}
		if _, err := r.bytes(int(mapLen)); err != nil { // pc2line map
			return nil, err
		}
	}

	cpoolCount, err = r.clampCount(cpoolCount, 1, "constant pool")
	if err != nil {
		return nil, err
	}
	cpool := make([]qjs.Value, 0, cpoolCount)
	for i := uint32(0); i < cpoolCount; i++ {
		v, err := readValueLegacy(r, atoms)
		if err != nil {
			return nil, err
		}
		cpool = append(cpool, v)
	}

	return &qjs.FunctionInfo{
		Name:            name,
		ArgCount:        uint16(header[0]),
		VarCount:        uint16(header[1]),
		DefinedArgCount: uint16(header[2]),
		StackSize:       uint16(header[3]),
		ClosureVarCount: uint16(header[4]),
		Flags:           flags,
		Locals:          locals,
		ClosureVars:     closureVars,
		ConstPool:       cpool,
		Bytecode:        bytecode,
	}, nil
}
