package cfg

import (
	"github.com/zboralski/lattice"
)

// CallSummary names a call made at a byte offset, supplied by the lifter
// so the exported graph can label call sites.
type CallSummary struct {
	PC     int
	Callee string
}

// ToLattice converts the graph for DOT rendering. Call summaries are
// mapped into blocks by offset.
func ToLattice(name string, g *Graph, calls []CallSummary) *lattice.FuncCFG {
	lcfg := &lattice.FuncCFG{Name: name}
	for i := range g.Blocks {
		b := &g.Blocks[i]
		lb := &lattice.BasicBlock{
			ID:    b.ID,
			Start: b.Start,
			End:   b.EndPC,
			Term:  b.IsTerm,
		}
		for _, s := range b.Succs {
			lb.Succs = append(lb.Succs, lattice.Successor{
				BlockID: s.BlockID,
				Cond:    s.Cond,
			})
		}
		for _, c := range calls {
			if c.PC >= b.Start && c.PC < b.EndPC {
				lb.Calls = append(lb.Calls, lattice.CallSite{
					Offset: c.PC,
					Callee: c.Callee,
				})
			}
		}
		lcfg.Blocks = append(lcfg.Blocks, lb)
	}
	return lcfg
}

// ModuleGraph bundles per-function CFGs for whole-module DOT export.
func ModuleGraph(funcs []*lattice.FuncCFG) *lattice.CFGGraph {
	return &lattice.CFGGraph{Funcs: funcs}
}
