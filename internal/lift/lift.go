package lift

import (
	"fmt"
	"strconv"
	"strings"

	"deqjs/internal/bytecode"
	"deqjs/internal/cfg"
	"deqjs/internal/ir"
	"deqjs/internal/qjs"
)

// Options configures lifting of one function.
type Options struct {
	Mode        qjs.Mode
	Deobfuscate bool
	FuncName    string
}

// Lifted is the flat statement list for one function, before structuring.
type Lifted struct {
	Stmts    []ir.Stmt
	Bindings []Binding
	Calls    []cfg.CallSummary

	// StringTables maps bindings assigned a constant all-string array to
	// that array's contents, for string-table deobfuscation.
	StringTables map[string][]string
}

// Function lifts the graph's instructions into a flat statement list.
// Each basic block is walked with an abstract operand stack. Values that
// flow in from predecessors are reconciled from the predecessors' exit
// stacks: identical values pass through, and a two-way join whose arms
// pushed different values becomes a ternary or short-circuit expression.
// Handler entries and irreconcilable joins appear as positional
// placeholders, the latter with a diagnostic. Blocks that are jump
// targets are preceded by a Label artifact.
//
// In Strict mode a stack depth disagreement at a block boundary returns
// StackMismatchError; BestEffort records a diagnostic and keeps the
// first depth seen.
func Function(fn *qjs.FunctionInfo, atoms *qjs.AtomTable, g *cfg.Graph, opts Options) (qjs.Result[*Lifted], error) {
	scope := NewScope(fn)
	out := &Lifted{Bindings: scope.Bindings()}

	depths, diags, err := entryDepths(g, opts.FuncName, opts.Mode)
	if err != nil {
		return qjs.Result[*Lifted]{}, err
	}

	targets := make(map[int]bool)
	for i := range g.Instrs {
		if g.Instrs[i].HasTarget() {
			targets[g.Instrs[i].Target] = true
		}
	}

	preds := make([][]predEdge, len(g.Blocks))
	for i := range g.Blocks {
		for _, s := range g.Blocks[i].Succs {
			preds[s.BlockID] = append(preds[s.BlockID], predEdge{block: i, cond: s.Cond})
		}
	}

	l := &lifter{
		fn: fn, atoms: atoms, scope: scope, opts: opts,
		g: g, preds: preds, info: make([]blockInfo, len(g.Blocks)),
	}
	for bi := range g.Blocks {
		blk := &g.Blocks[bi]
		if targets[blk.Start] {
			l.stmt(&ir.Label{PC: blk.Start})
		}
		start := len(l.out)
		l.stack = l.stack[:0]
		l.seedEntry(bi, depths[bi])
		for i := blk.First; i < blk.End; i++ {
			l.instr(&g.Instrs[i])
		}
		in := &l.info[bi]
		in.done = true
		in.stmtStart = start
		in.stmtEnd = len(l.out)
		in.branch = -1
		if len(l.out) > start {
			if _, ok := l.out[len(l.out)-1].(*ir.CondGoto); ok {
				in.branch = len(l.out) - 1
			}
		}
		in.exit = append([]ir.Expr(nil), l.stack...)
	}

	// Join folds blank out consumed artifacts in place.
	out.Stmts = make([]ir.Stmt, 0, len(l.out))
	for _, s := range l.out {
		if s != nil {
			out.Stmts = append(out.Stmts, s)
		}
	}
	out.Calls = l.calls
	out.StringTables = l.tables
	return qjs.Result[*Lifted]{Value: out, Diags: append(diags, l.diags...)}, nil
}

// entryDepths propagates abstract stack depth from the entry block along
// control edges. Exception edges enter the handler with the depth at the
// registration point plus the pushed exception value.
func entryDepths(g *cfg.Graph, funcName string, mode qjs.Mode) ([]int, []qjs.Diagnostic, error) {
	depths := make([]int, len(g.Blocks))
	for i := range depths {
		depths[i] = -1
	}
	if len(g.Blocks) == 0 {
		return depths, nil, nil
	}

	var diags []qjs.Diagnostic
	depths[0] = 0
	work := []int{0}
	for len(work) > 0 {
		bi := work[len(work)-1]
		work = work[:len(work)-1]
		blk := &g.Blocks[bi]

		handlerDepth := make(map[int]int)
		d := depths[bi]
		for i := blk.First; i < blk.End; i++ {
			ins := &g.Instrs[i]
			if ins.Name == "catch" || ins.Name == "gosub" {
				if hb := g.BlockAt(ins.Target); hb >= 0 {
					handlerDepth[hb] = d + 1
				}
			}
			d -= pops(ins)
			if d < 0 {
				d = 0
			}
			d += ins.NPush
		}

		for _, s := range blk.Succs {
			nd := d
			if s.Cond == "E" {
				if hd, ok := handlerDepth[s.BlockID]; ok {
					nd = hd
				}
			}
			switch prev := depths[s.BlockID]; {
			case prev == -1:
				depths[s.BlockID] = nd
				work = append(work, s.BlockID)
			case prev != nd:
				err := &qjs.StackMismatchError{
					Func:   funcName,
					Offset: g.Blocks[s.BlockID].Start,
					Want:   prev,
					Got:    nd,
				}
				if mode == qjs.Strict {
					return nil, nil, err
				}
				diags = append(diags, qjs.Diagnostic{
					Offset: g.Blocks[s.BlockID].Start,
					Kind:   "stack_mismatch",
					Msg:    err.Error(),
					Func:   funcName,
				})
			}
		}
	}

	// Blocks reached only through unknown control flow start empty.
	for i := range depths {
		if depths[i] == -1 {
			depths[i] = 0
		}
	}
	return depths, diags, nil
}

// pops returns the instruction's true pop count. The npop formats carry
// the call argument count in the operand, on top of the table's fixed
// pops for the callee and receiver.
func pops(ins *bytecode.Instr) int {
	switch ins.Fmt {
	case bytecode.FmtNPop, bytecode.FmtNPopX, bytecode.FmtNPopU16:
		return ins.NPop + callArgc(ins)
	}
	return ins.NPop
}

// callArgc extracts the argument count of a call-family instruction,
// folded into the mnemonic for the short forms (call0..call3).
func callArgc(ins *bytecode.Instr) int {
	if ins.Fmt == bytecode.FmtNPopX {
		return int(ins.Name[len(ins.Name)-1] - '0')
	}
	return int(ins.Imm)
}

// predEdge is an incoming control edge, keyed by the successor
// condition recorded on the predecessor ("", "T", "F", "E").
type predEdge struct {
	block int
	cond  string
}

// blockInfo records per-block lifting state used to reconcile stack
// values at join points after the block has been walked.
type blockInfo struct {
	done      bool
	stmtStart int
	stmtEnd   int
	branch    int // index in out of a trailing CondGoto, -1 if none
	exit      []ir.Expr
}

type lifter struct {
	fn    *qjs.FunctionInfo
	atoms *qjs.AtomTable
	scope *Scope
	opts  Options

	g     *cfg.Graph
	preds [][]predEdge
	info  []blockInfo

	stack []ir.Expr
	out   []ir.Stmt
	calls []cfg.CallSummary
	diags []qjs.Diagnostic

	// arrayLits tracks constant all-string array literals by node, so a
	// following store can register the binding as a string table.
	arrayLits map[*ir.Literal][]string
	tables    map[string][]string
}

func (l *lifter) push(e ir.Expr) { l.stack = append(l.stack, e) }

func (l *lifter) pop() ir.Expr {
	if n := len(l.stack); n > 0 {
		e := l.stack[n-1]
		l.stack = l.stack[:n-1]
		return e
	}
	return &ir.Unknown{Text: "stack?"}
}

// seedEntry fills the abstract stack at a block entry. Values flowing in
// from processed predecessors are substituted directly; handler entries
// and joins that cannot be reconciled get positional placeholders.
func (l *lifter) seedEntry(bi, depth int) {
	if depth <= 0 {
		return
	}
	if vals, ok := l.joinValues(bi, depth); ok {
		l.stack = append(l.stack, vals...)
		return
	}
	for i := 0; i < depth; i++ {
		l.push(&ir.Unknown{Text: fmt.Sprintf("stack%d", i)})
	}
}

// joinValues reconciles the entry stack of block bi from its
// predecessors' exit stacks. Slots where every flowed-in value agrees
// pass through; a disagreeing top slot at a two-way join is folded into
// a ternary or short-circuit expression. Exception edges keep the
// placeholder seeding so catch handlers can rename the pushed value.
func (l *lifter) joinValues(bi, depth int) ([]ir.Expr, bool) {
	var done []int
	for _, p := range l.preds[bi] {
		if p.cond == "E" {
			return nil, false
		}
		if l.info[p.block].done && len(l.info[p.block].exit) == depth {
			done = append(done, p.block)
		}
	}
	if len(done) == 0 {
		l.joinDiag(bi, depth)
		return nil, false
	}

	vals := make([]ir.Expr, depth)
	for i := 0; i < depth; i++ {
		v := l.info[done[0]].exit[i]
		agree := true
		for _, p := range done[1:] {
			if !sameExpr(l.info[p].exit[i], v) {
				agree = false
				break
			}
		}
		if agree {
			vals[i] = v
			continue
		}
		if i == depth-1 && len(done) == 2 && len(l.preds[bi]) == 2 {
			if m, ok := l.mergeBranchValue(bi, done[0], done[1]); ok {
				vals[i] = m
				continue
			}
		}
		l.joinDiag(bi, depth)
		return nil, false
	}
	return vals, true
}

func (l *lifter) joinDiag(bi, depth int) {
	start := l.g.Blocks[bi].Start
	l.diags = append(l.diags, qjs.Diagnostic{
		Offset: start,
		Kind:   "stack_join",
		Msg:    fmt.Sprintf("cannot reconcile %d stack value(s) flowing into block at %d", depth, start),
		Func:   l.opts.FuncName,
	})
}

// mergeBranchValue folds the disagreeing top-of-stack values of a
// two-way join into a single expression, removing the branch artifacts
// it consumes.
func (l *lifter) mergeBranchValue(join, a, b int) (ir.Expr, bool) {
	if e, ok := l.shortCircuit(join, a, b); ok {
		return e, true
	}
	if e, ok := l.shortCircuit(join, b, a); ok {
		return e, true
	}
	return l.ternaryJoin(join, a, b)
}

// shortCircuit matches the dup/branch/drop encoding of && and ||: the
// branching block b0 jumps straight to the join with the tested value
// still on its stack, and the fallthrough arm q replaces that value.
func (l *lifter) shortCircuit(join, b0, q int) (ir.Expr, bool) {
	bin := &l.info[b0]
	if bin.branch < 0 {
		return nil, false
	}
	cg, ok := l.out[bin.branch].(*ir.CondGoto)
	if !ok || cg.Target != l.g.Blocks[join].Start {
		return nil, false
	}
	left := bin.exit[len(bin.exit)-1]
	if !sameExpr(cg.Cond, left) {
		return nil, false
	}
	if !l.soleFeeder(q, b0) || l.info[q].stmtEnd != l.info[q].stmtStart {
		return nil, false
	}
	op := "||"
	if cg.IfFalse {
		op = "&&"
	}
	right := l.info[q].exit[len(l.info[q].exit)-1]
	l.out[bin.branch] = nil
	return &ir.BinaryOp{Op: op, Lhs: left, Rhs: right}, true
}

// ternaryJoin matches a diamond whose arms each pushed one value for the
// join: cond ? thenVal : elseVal.
func (l *lifter) ternaryJoin(join, a, b int) (ir.Expr, bool) {
	b0 := l.soleFeederOf(a)
	if b0 < 0 || b0 != l.soleFeederOf(b) {
		return nil, false
	}
	bin := &l.info[b0]
	if bin.branch < 0 {
		return nil, false
	}
	cg, ok := l.out[bin.branch].(*ir.CondGoto)
	if !ok {
		return nil, false
	}
	joinStart := l.g.Blocks[join].Start
	aGoto, aOK := l.armExit(a, joinStart)
	bGoto, bOK := l.armExit(b, joinStart)
	if !aOK || !bOK {
		return nil, false
	}
	jump, fall := a, b
	if l.g.Blocks[b].Start == cg.Target {
		jump, fall = b, a
	} else if l.g.Blocks[a].Start != cg.Target {
		return nil, false
	}
	thenArm, elseArm := jump, fall
	if cg.IfFalse {
		thenArm, elseArm = fall, jump
	}
	l.out[bin.branch] = nil
	if aGoto >= 0 {
		l.out[aGoto] = nil
	}
	if bGoto >= 0 {
		l.out[bGoto] = nil
	}
	return &ir.Conditional{
		Cond: cg.Cond,
		Then: l.info[thenArm].exit[len(l.info[thenArm].exit)-1],
		Else: l.info[elseArm].exit[len(l.info[elseArm].exit)-1],
	}, true
}

// soleFeeder reports whether block bi's only predecessor is from.
func (l *lifter) soleFeeder(bi, from int) bool {
	return len(l.preds[bi]) == 1 && l.preds[bi][0].block == from
}

// soleFeederOf returns bi's only predecessor, or -1.
func (l *lifter) soleFeederOf(bi int) int {
	if len(l.preds[bi]) != 1 {
		return -1
	}
	return l.preds[bi][0].block
}

// armExit checks that an arm block emitted at most a trailing jump to
// the join, returning that statement's index (or -1 if it fell through).
func (l *lifter) armExit(bi, joinStart int) (int, bool) {
	in := &l.info[bi]
	switch in.stmtEnd - in.stmtStart {
	case 0:
		return -1, true
	case 1:
		if g, ok := l.out[in.stmtStart].(*ir.Goto); ok && g.Target == joinStart {
			return in.stmtStart, true
		}
	}
	return -1, false
}

// sameExpr reports structural equality for the pure expression shapes a
// block can leave on its exit stack. Anything with possible side effects
// never compares equal, so a value is only carried across a join when
// re-stating it cannot change behavior.
func sameExpr(a, b ir.Expr) bool {
	if a == b {
		return true
	}
	switch x := a.(type) {
	case *ir.Identifier:
		y, ok := b.(*ir.Identifier)
		return ok && x.Name == y.Name
	case *ir.Literal:
		y, ok := b.(*ir.Literal)
		return ok && x.Kind == y.Kind && x.Bool == y.Bool && x.Int == y.Int &&
			x.Num == y.Num && x.Str == y.Str
	case *ir.MemberAccess:
		y, ok := b.(*ir.MemberAccess)
		return ok && !x.Computed && !y.Computed && x.Prop == y.Prop &&
			sameExpr(x.Object, y.Object)
	case *ir.Unknown:
		y, ok := b.(*ir.Unknown)
		return ok && x.Text == y.Text
	}
	return false
}

// popN pops n values and returns them in push order.
func (l *lifter) popN(n int) []ir.Expr {
	vals := make([]ir.Expr, n)
	for i := n - 1; i >= 0; i-- {
		vals[i] = l.pop()
	}
	return vals
}

func (l *lifter) stmt(s ir.Stmt) { l.out = append(l.out, s) }

func (l *lifter) assign(target ir.Expr, value ir.Expr) {
	if id, ok := target.(*ir.Identifier); ok {
		if lit, ok := value.(*ir.Literal); ok {
			if items, ok := l.arrayLits[lit]; ok {
				if l.tables == nil {
					l.tables = make(map[string][]string)
				}
				l.tables[id.Name] = items
			}
		}
	}
	l.stmt(&ir.ExpressionStatement{X: &ir.Assignment{Op: "=", Target: target, Value: value}})
}

func (l *lifter) atom(ins *bytecode.Instr) qjs.Atom {
	return l.atoms.ResolveOrRaw(ins.Atom)
}

func (l *lifter) atomText(ins *bytecode.Instr) string {
	a := l.atom(ins)
	if name, ok := a.Ident(); ok {
		return name
	}
	return a.String()
}

// member builds obj.name, falling back to obj["text"] for keys that are
// not valid identifiers.
func member(obj ir.Expr, a qjs.Atom) ir.Expr {
	if a.Kind == qjs.AtomTaggedInt {
		return &ir.MemberAccess{Object: obj, Index: ir.Int(int64(a.Num)), Computed: true}
	}
	if raw := a.String(); raw != "" && qjs.SanitizeIdent(raw) == raw {
		return &ir.MemberAccess{Object: obj, Prop: raw}
	}
	return &ir.MemberAccess{Object: obj, Index: ir.Str(a.String()), Computed: true}
}

// memberExpr builds obj[key], collapsing string literal keys to dot form.
func memberExpr(obj, key ir.Expr) ir.Expr {
	if s, ok := key.(*ir.Literal); ok && s.Kind == ir.LitString {
		return member(obj, qjs.StringAtom(s.Str))
	}
	return &ir.MemberAccess{Object: obj, Index: key, Computed: true}
}

// slotIndex extracts the slot operand, including the index folded into
// short mnemonics like get_loc0.
func slotIndex(ins *bytecode.Instr) int {
	switch ins.Fmt {
	case bytecode.FmtNoneLoc, bytecode.FmtNoneArg, bytecode.FmtNoneVarRef:
		return int(ins.Name[len(ins.Name)-1] - '0')
	default:
		return int(ins.Imm)
	}
}

// sideEffects reports whether discarding e loses observable work.
func sideEffects(e ir.Expr) bool {
	switch e := e.(type) {
	case *ir.Call, *ir.New, *ir.Assignment, *ir.Sequence:
		return true
	case *ir.UnaryOp:
		return e.Op == "++" || e.Op == "--" || e.Op == "delete" || e.Op == "await" || e.Op == "yield"
	}
	return false
}

// calleeText flattens a callee expression for call-graph summaries.
func calleeText(e ir.Expr) string {
	switch e := e.(type) {
	case *ir.Identifier:
		return e.Name
	case *ir.FunctionRef:
		return e.Name
	case *ir.MemberAccess:
		if !e.Computed {
			return calleeText(e.Object) + "." + e.Prop
		}
		return calleeText(e.Object) + "[...]"
	default:
		return "?"
	}
}

var binaryOps = map[string]string{
	"add": "+", "sub": "-", "mul": "*", "div": "/", "mod": "%", "pow": "**",
	"shl": "<<", "sar": ">>", "shr": ">>>",
	"and": "&", "or": "|", "xor": "^",
	"lt": "<", "lte": "<=", "gt": ">", "gte": ">=",
	"eq": "==", "neq": "!=", "strict_eq": "===", "strict_neq": "!==",
	"instanceof": "instanceof", "in": "in",
}

var unaryOps = map[string]string{
	"neg": "-", "plus": "+", "not": "~", "lnot": "!", "typeof": "typeof",
}

var smallInts = map[string]int64{
	"push_minus1": -1, "push_0": 0, "push_1": 1, "push_2": 2, "push_3": 3,
	"push_4": 4, "push_5": 5, "push_6": 6, "push_7": 7,
}

func (l *lifter) instr(ins *bytecode.Instr) {
	if op, ok := binaryOps[ins.Name]; ok {
		rhs := l.pop()
		lhs := l.pop()
		l.push(&ir.BinaryOp{Op: op, Lhs: lhs, Rhs: rhs})
		return
	}
	if op, ok := unaryOps[ins.Name]; ok {
		l.push(&ir.UnaryOp{Op: op, Operand: l.pop()})
		return
	}
	if v, ok := smallInts[ins.Name]; ok {
		l.push(ir.Int(v))
		return
	}

	switch ins.Name {
	case "invalid", "nop", "initial_yield", "check_ctor", "close_loc",
		"check_define_var", "to_propkey", "set_home_object":
		// No value or statement effect worth surfacing.

	case "unknown":
		l.stmt(&ir.ExpressionStatement{X: &ir.Unknown{
			Text: fmt.Sprintf("/* unknown opcode 0x%02x */", ins.Op),
		}})

	case "push_i8", "push_i16", "push_i32":
		l.push(ir.Int(ins.Imm))
	case "push_const", "push_const8":
		l.push(l.constExpr(int(ins.Imm)))
	case "fclosure", "fclosure8":
		idx := int(ins.Imm)
		l.push(&ir.FunctionRef{Name: closureName(l.fn, idx, l.opts.Deobfuscate), Index: idx})
	case "push_atom_value":
		l.push(atomValue(l.atom(ins)))
	case "private_symbol":
		l.push(ir.Ident("#" + l.atomText(ins)))
	case "undefined":
		l.push(ir.Undefined())
	case "null":
		l.push(ir.Null())
	case "push_false":
		l.push(ir.Bool(false))
	case "push_true":
		l.push(ir.Bool(true))
	case "push_this":
		l.push(ir.Ident("this"))
	case "push_empty_string":
		l.push(ir.Str(""))
	case "object":
		l.push(ir.Raw("{}"))
	case "special_object":
		l.push(&ir.Unknown{Text: fmt.Sprintf("special_object(%d)", ins.Imm)})
	case "rest":
		l.push(&ir.Unknown{Text: fmt.Sprintf("rest(%d)", ins.Imm)})

	// Pure stack shuffles.
	case "drop":
		if v := l.pop(); sideEffects(v) {
			l.stmt(&ir.ExpressionStatement{X: v})
		}
	case "dup":
		v := l.pop()
		l.push(v)
		l.push(v)
	case "dup1":
		b, a := l.pop(), l.pop()
		l.push(a)
		l.push(a)
		l.push(b)
	case "dup2":
		b, a := l.pop(), l.pop()
		l.push(a)
		l.push(b)
		l.push(a)
		l.push(b)
	case "dup3":
		c, b, a := l.pop(), l.pop(), l.pop()
		l.push(a)
		l.push(b)
		l.push(c)
		l.push(a)
		l.push(b)
		l.push(c)
	case "nip":
		b := l.pop()
		l.pop()
		l.push(b)
	case "nip1":
		c, b := l.pop(), l.pop()
		l.pop()
		l.push(b)
		l.push(c)
	case "swap":
		b, a := l.pop(), l.pop()
		l.push(b)
		l.push(a)
	case "swap2":
		d, c, b, a := l.pop(), l.pop(), l.pop(), l.pop()
		l.push(c)
		l.push(d)
		l.push(a)
		l.push(b)
	case "insert2":
		b, a := l.pop(), l.pop()
		l.push(b)
		l.push(a)
		l.push(b)
	case "insert3":
		c, b, a := l.pop(), l.pop(), l.pop()
		l.push(c)
		l.push(a)
		l.push(b)
		l.push(c)
	case "insert4":
		d, c, b, a := l.pop(), l.pop(), l.pop(), l.pop()
		l.push(d)
		l.push(a)
		l.push(b)
		l.push(c)
		l.push(d)
	case "perm3": // a b c -> b a c
		c, b, a := l.pop(), l.pop(), l.pop()
		l.push(b)
		l.push(a)
		l.push(c)
	case "perm4": // a b c d -> c a b d
		d, c, b, a := l.pop(), l.pop(), l.pop(), l.pop()
		l.push(c)
		l.push(a)
		l.push(b)
		l.push(d)
	case "perm5": // a b c d e -> c a b d e
		e, d, c, b, a := l.pop(), l.pop(), l.pop(), l.pop(), l.pop()
		l.push(c)
		l.push(a)
		l.push(b)
		l.push(d)
		l.push(e)
	case "rot3l": // a b c -> b c a
		c, b, a := l.pop(), l.pop(), l.pop()
		l.push(b)
		l.push(c)
		l.push(a)
	case "rot3r": // a b c -> c a b
		c, b, a := l.pop(), l.pop(), l.pop()
		l.push(c)
		l.push(a)
		l.push(b)
	case "rot4l": // a b c d -> b c d a
		d, c, b, a := l.pop(), l.pop(), l.pop(), l.pop()
		l.push(b)
		l.push(c)
		l.push(d)
		l.push(a)
	case "rot5l":
		e, d, c, b, a := l.pop(), l.pop(), l.pop(), l.pop(), l.pop()
		l.push(b)
		l.push(c)
		l.push(d)
		l.push(e)
		l.push(a)

	// Calls.
	case "call", "call0", "call1", "call2", "call3", "tail_call":
		args := l.popN(l.argc(ins))
		fnv := l.pop()
		l.recordCall(ins.PC, fnv)
		call := &ir.Call{Callee: fnv, Args: args}
		if ins.Name == "tail_call" {
			l.stmt(&ir.Return{X: call})
		} else {
			l.push(call)
		}
	case "call_method", "tail_call_method":
		args := l.popN(int(ins.Imm))
		fnv := l.pop()
		l.pop() // receiver, already folded into the callee by get_field2
		l.recordCall(ins.PC, fnv)
		call := &ir.Call{Callee: fnv, Args: args}
		if ins.Name == "tail_call_method" {
			l.stmt(&ir.Return{X: call})
		} else {
			l.push(call)
		}
	case "call_constructor":
		args := l.popN(int(ins.Imm))
		l.pop() // new.target
		fnv := l.pop()
		l.recordCall(ins.PC, fnv)
		l.push(&ir.New{Callee: fnv, Args: args})
	case "array_from":
		args := l.popN(int(ins.Imm))
		l.push(&ir.Call{Callee: &ir.MemberAccess{Object: ir.Ident("Array"), Prop: "of"}, Args: args})
	case "apply":
		arr := l.pop()
		thisv := l.pop()
		fnv := l.pop()
		l.recordCall(ins.PC, fnv)
		l.push(&ir.Call{
			Callee: &ir.MemberAccess{Object: fnv, Prop: "apply"},
			Args:   []ir.Expr{thisv, arr},
		})
	case "eval":
		args := l.popN(int(ins.Imm))
		l.pop() // eval function object
		l.recordCall(ins.PC, ir.Ident("eval"))
		l.push(&ir.Call{Callee: ir.Ident("eval"), Args: args})
	case "apply_eval":
		arr := l.pop()
		l.pop()
		l.recordCall(ins.PC, ir.Ident("eval"))
		l.push(&ir.Call{Callee: ir.Ident("eval"), Args: []ir.Expr{&ir.UnaryOp{Op: "...", Operand: arr}}})

	case "return", "return_async":
		l.stmt(&ir.Return{X: l.pop()})
	case "return_undef":
		l.stmt(&ir.Return{})
	case "throw":
		l.stmt(&ir.Throw{X: l.pop()})
	case "throw_error":
		l.stmt(&ir.Throw{X: &ir.New{Callee: ir.Ident("Error"), Args: []ir.Expr{ir.Str(l.atom(ins).String())}}})
	case "ret":
		l.pop()
		l.stmt(&ir.ExpressionStatement{X: &ir.Unknown{Text: "ret"}})

	// Control transfers stay as artifacts for the structurer.
	case "if_true", "if_true8":
		l.stmt(&ir.CondGoto{Cond: l.pop(), Target: ins.Target})
	case "if_false", "if_false8":
		l.stmt(&ir.CondGoto{Cond: l.pop(), IfFalse: true, Target: ins.Target})
	case "goto", "goto8", "goto16":
		l.stmt(&ir.Goto{Target: ins.Target})
	case "catch":
		l.stmt(&ir.TryMarker{HandlerPC: ins.Target})
		l.push(&ir.Unknown{Text: "catch_ctx"})
	case "gosub":
		l.stmt(&ir.ExpressionStatement{X: &ir.Unknown{Text: fmt.Sprintf("gosub L%d", ins.Target)}})

	// Globals.
	case "get_var", "get_var_undef", "check_var":
		l.push(l.globalRef(ins))
	case "put_var", "put_var_init":
		l.assign(l.globalRef(ins), l.pop())
	case "put_var_strict":
		val := l.pop()
		l.pop() // strict-existence check result
		l.assign(l.globalRef(ins), val)
	case "delete_var":
		l.push(&ir.UnaryOp{Op: "delete", Operand: l.globalRef(ins)})
	case "define_var":
		l.stmt(&ir.VariableDeclaration{Kind: "var", Name: l.atomText(ins)})
	case "define_func":
		fnv := l.pop()
		if ref, ok := fnv.(*ir.FunctionRef); ok {
			l.stmt(&ir.FunctionDeclaration{Name: l.atomText(ins), Index: ref.Index})
		} else {
			l.stmt(&ir.VariableDeclaration{Kind: "var", Name: l.atomText(ins), Init: fnv})
		}

	// Properties.
	case "get_field":
		l.push(member(l.pop(), l.atom(ins)))
	case "get_field2":
		obj := l.pop()
		l.push(obj)
		l.push(member(obj, l.atom(ins)))
	case "put_field":
		val := l.pop()
		obj := l.pop()
		l.assign(member(obj, l.atom(ins)), val)
	case "get_array_el":
		idx := l.pop()
		l.push(memberExpr(l.pop(), idx))
	case "get_array_el2":
		idx := l.pop()
		obj := l.pop()
		l.push(obj)
		l.push(memberExpr(obj, idx))
	case "put_array_el":
		val := l.pop()
		idx := l.pop()
		l.assign(memberExpr(l.pop(), idx), val)
	case "get_length":
		l.push(&ir.MemberAccess{Object: l.pop(), Prop: "length"})
	case "delete":
		prop := l.pop()
		l.push(&ir.UnaryOp{Op: "delete", Operand: memberExpr(l.pop(), prop)})
	case "define_field":
		val := l.pop()
		obj := l.pop()
		l.assign(member(obj, l.atom(ins)), val)
		l.push(obj)
	case "define_array_el":
		val := l.pop()
		idx := l.pop()
		obj := l.pop()
		l.assign(memberExpr(obj, idx), val)
		l.push(obj)
		l.push(idx)
	case "append":
		enum := l.pop()
		pos := l.pop()
		obj := l.pop()
		l.stmt(&ir.ExpressionStatement{X: &ir.Call{
			Callee: &ir.MemberAccess{Object: obj, Prop: "push"},
			Args:   []ir.Expr{&ir.UnaryOp{Op: "...", Operand: enum}},
		}})
		l.push(obj)
		l.push(pos)
	case "define_method":
		fnv := l.pop()
		obj := l.pop()
		l.assign(member(obj, l.atom(ins)), fnv)
		l.push(obj)
	case "define_method_computed":
		fnv := l.pop()
		key := l.pop()
		obj := l.pop()
		l.assign(memberExpr(obj, key), fnv)
		l.push(obj)
	case "set_name":
		// Attaches a name to the function value below; transparent here.
	case "set_name_computed":
		// Same, with a computed key above the value.
	case "set_proto":
		proto := l.pop()
		obj := l.pop()
		l.assign(member(obj, qjs.StringAtom("__proto__")), proto)
		l.push(obj)
	case "get_private_field":
		prop := l.pop()
		l.push(memberExpr(l.pop(), prop))
	case "put_private_field":
		name := l.pop()
		val := l.pop()
		obj := l.pop()
		l.assign(memberExpr(obj, name), val)
	case "define_private_field":
		val := l.pop()
		name := l.pop()
		obj := l.pop()
		l.assign(memberExpr(obj, name), val)
		l.push(obj)
	case "get_super":
		l.pop()
		l.push(ir.Ident("super"))
	case "get_super_value":
		prop := l.pop()
		l.pop()
		l.pop()
		l.push(memberExpr(ir.Ident("super"), prop))
	case "put_super_value":
		val := l.pop()
		prop := l.pop()
		l.pop()
		l.pop()
		l.assign(memberExpr(ir.Ident("super"), prop), val)

	// Local slots.
	case "get_loc", "get_loc8", "get_loc_check", "get_loc0", "get_loc1", "get_loc2", "get_loc3":
		l.push(ir.Ident(l.scope.Loc(slotIndex(ins))))
	case "put_loc", "put_loc8", "put_loc_check", "put_loc_check_init",
		"put_loc0", "put_loc1", "put_loc2", "put_loc3":
		l.assign(ir.Ident(l.scope.Loc(slotIndex(ins))), l.pop())
	case "set_loc", "set_loc8", "set_loc0", "set_loc1", "set_loc2", "set_loc3":
		name := l.scope.Loc(slotIndex(ins))
		l.assign(ir.Ident(name), l.pop())
		l.push(ir.Ident(name))
	case "set_loc_uninitialized":
		l.stmt(&ir.VariableDeclaration{Kind: "let", Name: l.scope.Loc(slotIndex(ins))})
	case "add_loc":
		l.stmt(&ir.ExpressionStatement{X: &ir.Assignment{
			Op: "+=", Target: ir.Ident(l.scope.Loc(slotIndex(ins))), Value: l.pop(),
		}})
	case "inc_loc":
		l.stmt(&ir.ExpressionStatement{X: &ir.UnaryOp{
			Op: "++", Operand: ir.Ident(l.scope.Loc(slotIndex(ins))), Postfix: true,
		}})
	case "dec_loc":
		l.stmt(&ir.ExpressionStatement{X: &ir.UnaryOp{
			Op: "--", Operand: ir.Ident(l.scope.Loc(slotIndex(ins))), Postfix: true,
		}})

	// Argument slots.
	case "get_arg", "get_arg0", "get_arg1", "get_arg2", "get_arg3":
		l.push(ir.Ident(l.scope.Arg(slotIndex(ins))))
	case "put_arg", "put_arg0", "put_arg1", "put_arg2", "put_arg3":
		l.assign(ir.Ident(l.scope.Arg(slotIndex(ins))), l.pop())
	case "set_arg", "set_arg0", "set_arg1", "set_arg2", "set_arg3":
		name := l.scope.Arg(slotIndex(ins))
		l.assign(ir.Ident(name), l.pop())
		l.push(ir.Ident(name))

	// Captured slots.
	case "get_var_ref", "get_var_ref_check",
		"get_var_ref0", "get_var_ref1", "get_var_ref2", "get_var_ref3":
		l.push(ir.Ident(l.scope.VarRef(slotIndex(ins))))
	case "put_var_ref", "put_var_ref_check", "put_var_ref_check_init",
		"put_var_ref0", "put_var_ref1", "put_var_ref2", "put_var_ref3":
		l.assign(ir.Ident(l.scope.VarRef(slotIndex(ins))), l.pop())
	case "set_var_ref", "set_var_ref0", "set_var_ref1", "set_var_ref2", "set_var_ref3":
		name := l.scope.VarRef(slotIndex(ins))
		l.assign(ir.Ident(name), l.pop())
		l.push(ir.Ident(name))

	// Arithmetic variants without a direct operator mapping.
	case "inc":
		l.push(&ir.BinaryOp{Op: "+", Lhs: l.pop(), Rhs: ir.Int(1)})
	case "dec":
		l.push(&ir.BinaryOp{Op: "-", Lhs: l.pop(), Rhs: ir.Int(1)})
	case "post_inc":
		v := l.pop()
		l.push(v)
		l.push(&ir.BinaryOp{Op: "+", Lhs: v, Rhs: ir.Int(1)})
	case "post_dec":
		v := l.pop()
		l.push(v)
		l.push(&ir.BinaryOp{Op: "-", Lhs: v, Rhs: ir.Int(1)})

	case "is_undefined":
		l.push(&ir.BinaryOp{Op: "===", Lhs: l.pop(), Rhs: ir.Undefined()})
	case "is_null":
		l.push(&ir.BinaryOp{Op: "===", Lhs: l.pop(), Rhs: ir.Null()})
	case "is_undefined_or_null":
		l.push(&ir.BinaryOp{Op: "==", Lhs: l.pop(), Rhs: ir.Null()})
	case "typeof_is_undefined":
		l.push(&ir.BinaryOp{Op: "===", Lhs: &ir.UnaryOp{Op: "typeof", Operand: l.pop()}, Rhs: ir.Str("undefined")})
	case "typeof_is_function":
		l.push(&ir.BinaryOp{Op: "===", Lhs: &ir.UnaryOp{Op: "typeof", Operand: l.pop()}, Rhs: ir.Str("function")})

	case "to_object":
		l.push(&ir.Call{Callee: ir.Ident("Object"), Args: []ir.Expr{l.pop()}})
	case "regexp":
		l.pop() // compiled bytecode form
		l.push(&ir.New{Callee: ir.Ident("RegExp"), Args: []ir.Expr{l.pop()}})
	case "import":
		l.push(&ir.Call{Callee: ir.Ident("import"), Args: []ir.Expr{l.pop()}})

	case "await":
		l.push(&ir.UnaryOp{Op: "await", Operand: l.pop()})
	case "yield", "yield_star", "async_yield_star":
		op := "yield"
		if ins.Name != "yield" {
			op = "yield*"
		}
		l.push(&ir.UnaryOp{Op: op, Operand: l.pop()})
		l.push(&ir.Unknown{Text: "yield_done"})

	// Reference pairs for with/eval scope access.
	case "make_loc_ref", "make_arg_ref", "make_var_ref_ref", "make_var_ref":
		l.push(&ir.Unknown{Text: "ref"})
		l.push(ir.Str(l.atomText(ins)))
	case "get_ref_value":
		prop := l.pop()
		obj := l.pop()
		l.push(obj)
		l.push(prop)
		l.push(refValue(obj, prop))
	case "put_ref_value":
		val := l.pop()
		prop := l.pop()
		obj := l.pop()
		l.assign(refValue(obj, prop), val)

	default:
		l.generic(ins)
	}
}

// argc extracts the call argument count, including counts folded into
// short mnemonics like call2.
func (l *lifter) argc(ins *bytecode.Instr) int { return callArgc(ins) }

func (l *lifter) recordCall(pc int, callee ir.Expr) {
	l.calls = append(l.calls, cfg.CallSummary{PC: pc, Callee: calleeText(callee)})
}

func (l *lifter) globalRef(ins *bytecode.Instr) ir.Expr {
	a := l.atom(ins)
	if name, ok := a.Ident(); ok {
		return ir.Ident(name)
	}
	return &ir.Unknown{Text: a.String()}
}

// generic lowers an unmodeled opcode as an intrinsic-style call so that
// operand flow stays visible in the output.
func (l *lifter) generic(ins *bytecode.Instr) {
	args := l.popN(ins.NPop)
	call := &ir.Call{Callee: ir.Ident(ins.Name), Args: args}
	if ins.NPush == 0 {
		l.stmt(&ir.ExpressionStatement{X: call})
		return
	}
	l.push(call)
	for i := 1; i < ins.NPush; i++ {
		l.push(&ir.Unknown{Text: fmt.Sprintf("%s_r%d", ins.Name, i)})
	}
}

// refValue resolves a (scope, name) reference pair. Pairs built by
// make_*_ref target a plain binding, not a real object property.
func refValue(obj, prop ir.Expr) ir.Expr {
	if u, ok := obj.(*ir.Unknown); ok && u.Text == "ref" {
		if s, ok := prop.(*ir.Literal); ok && s.Kind == ir.LitString {
			return ir.Ident(qjs.SanitizeIdent(s.Str))
		}
	}
	return memberExpr(obj, prop)
}

// atomValue converts a pushed atom operand to a literal.
func atomValue(a qjs.Atom) ir.Expr {
	switch a.Kind {
	case qjs.AtomTaggedInt:
		return ir.Int(int64(a.Num))
	case qjs.AtomString, qjs.AtomBuiltin:
		return ir.Str(a.String())
	default:
		return &ir.Unknown{Text: a.String()}
	}
}

// constExpr converts a constant-pool entry to an expression.
func (l *lifter) constExpr(idx int) ir.Expr {
	if idx < 0 || idx >= len(l.fn.ConstPool) {
		return &ir.Unknown{Text: fmt.Sprintf("const(%d)", idx)}
	}
	v := &l.fn.ConstPool[idx]
	switch v.Kind {
	case qjs.ValNull:
		return ir.Null()
	case qjs.ValUndefined:
		return ir.Undefined()
	case qjs.ValBool:
		return ir.Bool(v.Bool)
	case qjs.ValInt32:
		return ir.Int(int64(v.Int))
	case qjs.ValFloat64:
		return ir.Float(v.Float)
	case qjs.ValString:
		return ir.Str(v.Str)
	case qjs.ValRegExp:
		return ir.Raw("/" + v.Str + "/")
	case qjs.ValArray:
		if items, ok := stringItems(v); ok {
			quoted := make([]string, len(items))
			for i, s := range items {
				quoted[i] = strconv.Quote(s)
			}
			lit := ir.Raw("[" + strings.Join(quoted, ", ") + "]")
			if l.arrayLits == nil {
				l.arrayLits = make(map[*ir.Literal][]string)
			}
			l.arrayLits[lit] = items
			return lit
		}
		return ir.Raw(v.String())
	case qjs.ValFunction:
		return &ir.FunctionRef{Name: closureName(l.fn, idx, l.opts.Deobfuscate), Index: idx}
	default:
		return ir.Raw(v.String())
	}
}

// stringItems extracts an all-string array's contents.
func stringItems(v *qjs.Value) ([]string, bool) {
	if len(v.Items) == 0 {
		return nil, false
	}
	items := make([]string, len(v.Items))
	for i := range v.Items {
		if v.Items[i].Kind != qjs.ValString {
			return nil, false
		}
		items[i] = v.Items[i].Str
	}
	return items, true
}
