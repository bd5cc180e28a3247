package cfg

// Dominators computes the immediate dominator of every block with the
// iterative dataflow algorithm. idom[0] == 0; unreachable blocks get -1.
func (g *Graph) Dominators() []int {
	n := len(g.Blocks)
	idom := make([]int, n)
	for i := range idom {
		idom[i] = -1
	}
	if n == 0 {
		return idom
	}

	preds := make([][]int, n)
	for i := range g.Blocks {
		for _, s := range g.Blocks[i].Succs {
			preds[s.BlockID] = append(preds[s.BlockID], i)
		}
	}

	order := g.reversePostorder()
	rpoNum := make([]int, n)
	for i := range rpoNum {
		rpoNum[i] = -1
	}
	for i, b := range order {
		rpoNum[b] = i
	}

	intersect := func(a, b int) int {
		for a != b {
			for rpoNum[a] > rpoNum[b] {
				a = idom[a]
			}
			for rpoNum[b] > rpoNum[a] {
				b = idom[b]
			}
		}
		return a
	}

	idom[0] = 0
	for changed := true; changed; {
		changed = false
		for _, b := range order {
			if b == 0 {
				continue
			}
			newIdom := -1
			for _, p := range preds[b] {
				if idom[p] < 0 {
					continue
				}
				if newIdom < 0 {
					newIdom = p
				} else {
					newIdom = intersect(newIdom, p)
				}
			}
			if newIdom >= 0 && idom[b] != newIdom {
				idom[b] = newIdom
				changed = true
			}
		}
	}
	return idom
}

// Dominates reports whether a dominates b under the given idom tree.
func Dominates(idom []int, a, b int) bool {
	for {
		if b == a {
			return true
		}
		if b <= 0 || idom[b] < 0 {
			return false
		}
		if idom[b] == b {
			return b == a
		}
		b = idom[b]
	}
}

// BackEdge is a loop-forming edge: the head dominates the tail.
type BackEdge struct {
	Tail int
	Head int
}

// BackEdges returns the graph's back edges, identifying natural loops.
func (g *Graph) BackEdges() []BackEdge {
	idom := g.Dominators()
	var out []BackEdge
	for i := range g.Blocks {
		for _, s := range g.Blocks[i].Succs {
			if Dominates(idom, s.BlockID, i) {
				out = append(out, BackEdge{Tail: i, Head: s.BlockID})
			}
		}
	}
	return out
}

// IrreducibleEdges returns retreating edges whose head does not dominate
// the tail. Such edges form loops with multiple entries, which the
// structurer cannot express as while/for; control-flow flattening and
// hand-written jump tables produce them.
func (g *Graph) IrreducibleEdges() []BackEdge {
	if len(g.Blocks) == 0 {
		return nil
	}
	idom := g.Dominators()
	rpoNum := make([]int, len(g.Blocks))
	for i := range rpoNum {
		rpoNum[i] = -1
	}
	for i, b := range g.reversePostorder() {
		rpoNum[b] = i
	}
	var out []BackEdge
	for i := range g.Blocks {
		if rpoNum[i] < 0 {
			continue
		}
		for _, s := range g.Blocks[i].Succs {
			if rpoNum[s.BlockID] < 0 || rpoNum[s.BlockID] > rpoNum[i] {
				continue
			}
			if !Dominates(idom, s.BlockID, i) {
				out = append(out, BackEdge{Tail: i, Head: s.BlockID})
			}
		}
	}
	return out
}

// Unreachable lists blocks not reachable from the entry. They are
// reported rather than dropped: obfuscated bytecode plants decoys there.
func (g *Graph) Unreachable() []int {
	n := len(g.Blocks)
	if n == 0 {
		return nil
	}
	seen := make([]bool, n)
	stack := []int{0}
	seen[0] = true
	for len(stack) > 0 {
		b := stack[len(stack)-1]
		stack = stack[:len(stack)-1]
		for _, s := range g.Blocks[b].Succs {
			if !seen[s.BlockID] {
				seen[s.BlockID] = true
				stack = append(stack, s.BlockID)
			}
		}
	}
	var out []int
	for i, ok := range seen {
		if !ok {
			out = append(out, i)
		}
	}
	return out
}

func (g *Graph) reversePostorder() []int {
	n := len(g.Blocks)
	seen := make([]bool, n)
	post := make([]int, 0, n)
	var visit func(int)
	visit = func(b int) {
		seen[b] = true
		for _, s := range g.Blocks[b].Succs {
			if !seen[s.BlockID] {
				visit(s.BlockID)
			}
		}
		post = append(post, b)
	}
	visit(0)
	for i, j := 0, len(post)-1; i < j; i, j = i+1, j-1 {
		post[i], post[j] = post[j], post[i]
	}
	return post
}
