// Package cfg builds per-function control flow graphs over decoded
// instruction streams and provides dominator analysis for the
// structurer.
package cfg

import (
	"sort"

	"deqjs/internal/bytecode"
)

// BasicBlock is a maximal single-entry instruction run. Start and End are
// byte offsets; First and End index into Graph.Instrs (End exclusive).
type BasicBlock struct {
	ID      int
	Start   int
	EndPC   int
	First   int
	End     int
	Succs   []Succ
	IsEntry bool
	IsTerm  bool // ends with return/throw and has no successors
}

// Succ describes a control-flow successor edge.
type Succ struct {
	BlockID int
	Cond    string // "" = unconditional, "T" = taken, "F" = fallthrough, "E" = exception handler
}

// Graph is a per-function control flow graph.
type Graph struct {
	Blocks []BasicBlock
	Instrs []bytecode.Instr
}

// BlockAt returns the index of the block whose first instruction sits at
// byte offset pc, or -1.
func (g *Graph) BlockAt(pc int) int {
	for i := range g.Blocks {
		if g.Blocks[i].Start == pc {
			return i
		}
	}
	return -1
}

// Build constructs the graph:
//  1. Find block leaders: index 0, jump and handler targets, instructions
//     after jumps and terminators.
//  2. Partition instructions into blocks by leaders.
//  3. Compute successor edges from each block's last instruction, plus
//     exception edges for in-block handler registrations.
func Build(instrs []bytecode.Instr) *Graph {
	if len(instrs) == 0 {
		return &Graph{}
	}

	pcToIdx := make(map[int]int, len(instrs))
	for i := range instrs {
		pcToIdx[instrs[i].PC] = i
	}

	leaders := map[int]bool{0: true}
	for i := range instrs {
		ins := &instrs[i]
		if ins.HasTarget() {
			if idx, ok := pcToIdx[ins.Target]; ok {
				leaders[idx] = true
			}
			if i+1 < len(instrs) {
				leaders[i+1] = true
			}
		}
		if ins.Terminates() && i+1 < len(instrs) {
			leaders[i+1] = true
		}
	}

	sorted := make([]int, 0, len(leaders))
	for idx := range leaders {
		sorted = append(sorted, idx)
	}
	sort.Ints(sorted)

	blocks := make([]BasicBlock, len(sorted))
	leaderToBlock := make(map[int]int, len(sorted))
	for i, first := range sorted {
		end := len(instrs)
		if i+1 < len(sorted) {
			end = sorted[i+1]
		}
		last := instrs[end-1]
		blocks[i] = BasicBlock{
			ID:      i,
			Start:   instrs[first].PC,
			EndPC:   last.PC + last.Size,
			First:   first,
			End:     end,
			IsEntry: first == 0,
		}
		leaderToBlock[first] = i
	}

	targetBlock := func(pc int) int {
		if idx, ok := pcToIdx[pc]; ok {
			if bid, ok := leaderToBlock[idx]; ok {
				return bid
			}
		}
		return -1
	}

	for i := range blocks {
		blk := &blocks[i]
		last := &instrs[blk.End-1]

		// Handler registrations anywhere in the block add exception edges.
		for j := blk.First; j < blk.End; j++ {
			ins := &instrs[j]
			if (ins.Name == "catch" || ins.Name == "gosub") && ins.HasTarget() {
				if bid := targetBlock(ins.Target); bid >= 0 {
					blk.Succs = append(blk.Succs, Succ{BlockID: bid, Cond: "E"})
				}
			}
		}

		switch {
		case last.Name == "goto" || last.Name == "goto8" || last.Name == "goto16":
			if bid := targetBlock(last.Target); bid >= 0 {
				blk.Succs = append(blk.Succs, Succ{BlockID: bid})
			} else {
				blk.IsTerm = true
			}
		case last.Name == "if_true" || last.Name == "if_false" || last.Name == "if_true8" || last.Name == "if_false8":
			if bid := targetBlock(last.Target); bid >= 0 {
				blk.Succs = append(blk.Succs, Succ{BlockID: bid, Cond: "T"})
			}
			if next, ok := leaderToBlock[blk.End]; ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: next, Cond: "F"})
			}
		case last.Terminates():
			blk.IsTerm = true
		default:
			if next, ok := leaderToBlock[blk.End]; ok {
				blk.Succs = append(blk.Succs, Succ{BlockID: next})
			}
		}
	}

	return &Graph{Blocks: blocks, Instrs: instrs}
}
