package cfg

import (
	"encoding/binary"
	"testing"

	"deqjs/internal/bytecode"
	"deqjs/internal/qjs"
)

func mustAsm(t *testing.T, parts ...any) []bytecode.Instr {
	t.Helper()
	var code []byte
	for _, p := range parts {
		switch v := p.(type) {
		case string:
			op, ok := bytecode.OpByName(v)
			if !ok {
				t.Fatalf("unknown opcode %q", v)
			}
			code = append(code, op)
		case byte:
			code = append(code, v)
		case uint32:
			code = binary.LittleEndian.AppendUint32(code, v)
		default:
			t.Fatalf("bad fixture part %T", p)
		}
	}
	res, err := bytecode.Decode(code, qjs.Strict)
	if err != nil {
		t.Fatalf("decode fixture: %v", err)
	}
	return res.Value
}

func TestBuildStraightLine(t *testing.T) {
	instrs := mustAsm(t, "push_1", "push_2", "add", "return")
	g := Build(instrs)
	if len(g.Blocks) != 1 {
		t.Fatalf("blocks = %d, want 1", len(g.Blocks))
	}
	b := g.Blocks[0]
	if !b.IsEntry || !b.IsTerm {
		t.Errorf("entry=%v term=%v", b.IsEntry, b.IsTerm)
	}
	if len(b.Succs) != 0 {
		t.Errorf("succs = %v", b.Succs)
	}
}

func TestBuildDiamond(t *testing.T) {
	// 0: push_true
	// 1: if_false +6  -> 8
	// 6: push_1
	// 7: return
	// 8: return_undef
	instrs := mustAsm(t,
		"push_true",
		"if_false", uint32(6),
		"push_1",
		"return",
		"return_undef",
	)
	g := Build(instrs)
	if len(g.Blocks) != 3 {
		t.Fatalf("blocks = %d, want 3", len(g.Blocks))
	}
	head := g.Blocks[0]
	if len(head.Succs) != 2 {
		t.Fatalf("head succs = %v", head.Succs)
	}
	var taken, fall Succ
	for _, s := range head.Succs {
		switch s.Cond {
		case "T":
			taken = s
		case "F":
			fall = s
		}
	}
	if g.Blocks[taken.BlockID].Start != 8 {
		t.Errorf("taken leads to %d", g.Blocks[taken.BlockID].Start)
	}
	if g.Blocks[fall.BlockID].Start != 6 {
		t.Errorf("fallthrough leads to %d", g.Blocks[fall.BlockID].Start)
	}
	if !g.Blocks[1].IsTerm || !g.Blocks[2].IsTerm {
		t.Error("both arms should terminate")
	}
}

func TestBuildLoop(t *testing.T) {
	// 0: push_true
	// 1: if_false +7  -> 9
	// 6: nop
	// 7: goto8 -8     -> 0
	// 9: return_undef
	instrs := mustAsm(t,
		"push_true",
		"if_false", uint32(7),
		"nop",
		"goto8", byte(0xf8),
		"return_undef",
	)
	g := Build(instrs)
	edges := g.BackEdges()
	if len(edges) != 1 {
		t.Fatalf("back edges = %v", edges)
	}
	if g.Blocks[edges[0].Head].Start != 0 {
		t.Errorf("loop head at %d", g.Blocks[edges[0].Head].Start)
	}
	if len(g.Unreachable()) != 0 {
		t.Errorf("unreachable = %v", g.Unreachable())
	}
}

func TestUnreachableBlock(t *testing.T) {
	// 0: return_undef
	// 1: push_1       (decoy, no edge in)
	// 2: return
	instrs := mustAsm(t, "return_undef", "push_1", "return")
	g := Build(instrs)
	un := g.Unreachable()
	if len(un) != 1 {
		t.Fatalf("unreachable = %v", un)
	}
	if g.Blocks[un[0]].Start != 1 {
		t.Errorf("decoy starts at %d", g.Blocks[un[0]].Start)
	}
}

func TestExceptionEdge(t *testing.T) {
	// 0: catch +7    -> handler at 8
	// 5: nop
	// 6: goto8 +2    -> 9
	// 8: throw
	// 9: return_undef
	instrs := mustAsm(t,
		"catch", uint32(7),
		"nop",
		"goto8", byte(0x02),
		"throw",
		"return_undef",
	)
	g := Build(instrs)
	entry := g.Blocks[0]
	hasE := false
	for _, s := range entry.Succs {
		if s.Cond == "E" && g.Blocks[s.BlockID].Start == 8 {
			hasE = true
		}
	}
	if !hasE {
		t.Errorf("no exception edge to handler: %v", entry.Succs)
	}
}

func TestDominators(t *testing.T) {
	instrs := mustAsm(t,
		"push_true",
		"if_false", uint32(6),
		"push_1",
		"return",
		"return_undef",
	)
	g := Build(instrs)
	idom := g.Dominators()
	for b := 1; b < len(g.Blocks); b++ {
		if idom[b] != 0 {
			t.Errorf("idom[%d] = %d, want 0", b, idom[b])
		}
	}
	if !Dominates(idom, 0, 2) || Dominates(idom, 1, 2) {
		t.Error("dominance relation wrong")
	}
}

func TestIrreducibleEdges(t *testing.T) {
	// 0: if_true8 +3  -> 4
	// 2: goto8 +1     -> 4
	// 4: goto8 -3     -> 2
	// The two-block cycle {2, 4} is entered at both ends, so neither
	// retreating edge closes a natural loop.
	instrs := mustAsm(t,
		"if_true8", byte(3),
		"goto8", byte(1),
		"goto8", byte(0xfd),
	)
	g := Build(instrs)
	edges := g.IrreducibleEdges()
	if len(edges) != 1 {
		t.Fatalf("irreducible edges = %v, want 1", edges)
	}
	tail := g.Blocks[edges[0].Tail].Start
	head := g.Blocks[edges[0].Head].Start
	if tail == head || (tail != 2 && tail != 4) || (head != 2 && head != 4) {
		t.Errorf("edge %d -> %d, want the cycle between 2 and 4", tail, head)
	}

	// A natural loop retreats only through its dominating header.
	loop := mustAsm(t,
		"push_true",
		"if_false", uint32(7),
		"nop",
		"goto8", byte(0xf8),
		"return_undef",
	)
	if got := Build(loop).IrreducibleEdges(); len(got) != 0 {
		t.Errorf("natural loop reported irreducible edges %v", got)
	}
}

func TestToLattice(t *testing.T) {
	instrs := mustAsm(t, "push_1", "return")
	g := Build(instrs)
	lcfg := ToLattice("f", g, []CallSummary{{PC: 0, Callee: "g"}})
	if lcfg.Name != "f" || len(lcfg.Blocks) != 1 {
		t.Fatalf("lcfg = %+v", lcfg)
	}
	if len(lcfg.Blocks[0].Calls) != 1 || lcfg.Blocks[0].Calls[0].Callee != "g" {
		t.Errorf("calls = %+v", lcfg.Blocks[0].Calls)
	}
}
