// Package coalesce eliminates phi moves and copies by chunk-based
// recoloring (spec.md §4.10): affinity-related Vars are grouped into
// interference-free chunks, and each chunk is pushed toward a single
// color, cascading neighbors out of the way where the interference
// graph permits and rolling back whole clusters where it does not.
package coalesce

import (
	"sort"

	"github.com/nc-labs/ssabe/ir"
)

// Run coalesces one register class. reservoir is the class's admissible
// color set; coloring must already be complete for the class. Spill
// slots are left alone: slot-to-slot phi moves are rare enough that the
// recoloring machinery is not worth pointing at them.
func Run(f *ir.Function, class ir.Class, reservoir []int) {
	c := &coalescer{
		f:         f,
		class:     class,
		reservoir: reservoir,
		neighbors: map[*ir.Var]map[*ir.Var]bool{},
		pinned:    map[*ir.Var]bool{},
		fixed:     map[*ir.Var]bool{},
	}
	c.buildInterference()
	c.findPinned()
	edges := c.affinityEdges()
	chunks := c.buildChunks(edges)
	c.recolorChunks(chunks, edges)
}

type coalescer struct {
	f         *ir.Function
	class     ir.Class
	reservoir []int
	neighbors map[*ir.Var]map[*ir.Var]bool
	pinned    map[*ir.Var]bool // constraint-colored: never moved
	fixed     map[*ir.Var]bool // committed during the current attempt
	journal   []journalEntry
}

type journalEntry struct {
	v        *ir.Var
	oldColor int
	oldFixed bool
}

type edge struct {
	u, v *ir.Var
	cost int
}

func (c *coalescer) wants(v *ir.Var) bool {
	return v != nil && !v.IsMem && !v.IsSpilled && v.Color >= 0 &&
		ir.ClassOf(v.Typ) == c.class
}

// buildInterference derives the interference relation from the live
// sets: values simultaneously live interfere, and every result
// interferes with everything live out of its defining instruction.
func (c *coalescer) buildInterference() {
	addPair := func(u, v *ir.Var) {
		if u == v || !c.wants(u) || !c.wants(v) {
			return
		}
		if c.neighbors[u] == nil {
			c.neighbors[u] = map[*ir.Var]bool{}
		}
		if c.neighbors[v] == nil {
			c.neighbors[v] = map[*ir.Var]bool{}
		}
		c.neighbors[u][v] = true
		c.neighbors[v][u] = true
	}

	for i := c.f.Instrs.Front(); i != nil; i = i.Next() {
		var in []*ir.Var
		for v := range i.LiveIn {
			if c.wants(v) {
				in = append(in, v)
			}
		}
		for x := 0; x < len(in); x++ {
			for y := x + 1; y < len(in); y++ {
				addPair(in[x], in[y])
			}
		}
		for _, r := range i.Results {
			for v := range i.LiveOut {
				addPair(r.Var, v)
			}
		}
	}
}

// findPinned marks vars whose color was dictated by an operand
// constraint; the recolorer must route around them.
func (c *coalescer) findPinned() {
	for i := c.f.Instrs.Front(); i != nil; i = i.Next() {
		for _, r := range i.Results {
			if r.Constraint != ir.NoConstraint && c.wants(r.Var) {
				c.pinned[r.Var] = true
			}
		}
		for _, a := range i.Args {
			if a.Constraint == ir.NoConstraint {
				continue
			}
			if v, ok := a.Val.(*ir.Var); ok && c.wants(v) {
				c.pinned[v] = true
			}
		}
	}
}

// affinityEdges collects phi argument-to-result relations and explicit
// copies. Phi edges always cross a block boundary (and usually a
// dominance frontier) so they cost more than same-block copies.
func (c *coalescer) affinityEdges() []edge {
	var edges []edge
	for i := c.f.Instrs.Front(); i != nil; i = i.Next() {
		switch {
		case i.Op == ir.OpPhi:
			r := i.Results[0].Var
			if !c.wants(r) {
				continue
			}
			for _, a := range i.Args {
				if v, ok := a.Val.(*ir.Var); ok && c.wants(v) {
					edges = append(edges, edge{u: r, v: v, cost: 2})
				}
			}
		case i.Op == ir.OpAssign && i.Sub == ir.AssignMove && len(i.Results) == 1:
			r := i.Results[0].Var
			if !c.wants(r) {
				continue
			}
			if v, ok := i.Args[0].Val.(*ir.Var); ok && c.wants(v) {
				edges = append(edges, edge{u: r, v: v, cost: 1})
			}
		}
	}
	return edges
}

// buildChunks unions affinity-connected vars into interference-free
// chunks, highest-cost edges first.
func (c *coalescer) buildChunks(edges []edge) [][]*ir.Var {
	sorted := append([]edge(nil), edges...)
	sort.SliceStable(sorted, func(i, j int) bool { return sorted[i].cost > sorted[j].cost })

	parent := map[*ir.Var]*ir.Var{}
	var find func(v *ir.Var) *ir.Var
	find = func(v *ir.Var) *ir.Var {
		p, ok := parent[v]
		if !ok || p == v {
			parent[v] = v
			return v
		}
		root := find(p)
		parent[v] = root
		return root
	}
	members := map[*ir.Var][]*ir.Var{}
	membersOf := func(v *ir.Var) []*ir.Var {
		root := find(v)
		if m := members[root]; m != nil {
			return m
		}
		members[root] = []*ir.Var{root}
		return members[root]
	}

	for _, e := range sorted {
		ru, rv := find(e.u), find(e.v)
		if ru == rv {
			continue
		}
		mu, mv := membersOf(e.u), membersOf(e.v)
		if interferes(c.neighbors, mu, mv) {
			continue
		}
		parent[rv] = ru
		members[ru] = append(mu, mv...)
		delete(members, rv)
	}

	var chunks [][]*ir.Var
	for root, m := range members {
		if find(root) != root || len(m) < 2 {
			continue
		}
		sort.Slice(m, func(i, j int) bool { return m[i].Number < m[j].Number })
		chunks = append(chunks, m)
	}
	sort.Slice(chunks, func(i, j int) bool { return chunks[i][0].Number < chunks[j][0].Number })
	return chunks
}

func interferes(neighbors map[*ir.Var]map[*ir.Var]bool, a, b []*ir.Var) bool {
	for _, u := range a {
		for _, v := range b {
			if neighbors[u][v] {
				return true
			}
		}
	}
	return false
}

// recolorChunks works the chunk queue highest-total-cost first: for
// each chunk, try every reservoir color, keep the color that
// admissibly recolors the largest sub-chunk, and requeue the leftover
// as its own (strictly smaller) chunk.
func (c *coalescer) recolorChunks(chunks [][]*ir.Var, edges []edge) {
	cost := func(chunk []*ir.Var) int {
		in := map[*ir.Var]bool{}
		for _, v := range chunk {
			in[v] = true
		}
		total := 0
		for _, e := range edges {
			if in[e.u] && in[e.v] {
				total += e.cost
			}
		}
		return total
	}

	queue := append([][]*ir.Var(nil), chunks...)
	for len(queue) > 0 {
		sort.SliceStable(queue, func(i, j int) bool { return cost(queue[i]) > cost(queue[j]) })
		chunk := queue[0]
		queue = queue[1:]

		bestColor, bestCount := ir.NotColored, 0
		var bestAssign map[*ir.Var]int
		var bestDone map[*ir.Var]bool

		for _, col := range c.reservoir {
			count := 0
			done := map[*ir.Var]bool{}
			for _, n := range chunk {
				if c.tryRecolor(n, col) {
					count++
					done[n] = true
				}
			}
			if count > bestCount {
				bestCount, bestColor = count, col
				bestAssign = c.snapshot()
				bestDone = done
			}
			c.rollback(0)
		}

		if bestColor == ir.NotColored || bestCount == 0 {
			continue
		}
		for v, col := range bestAssign {
			v.Color = col
		}
		var rest []*ir.Var
		for _, n := range chunk {
			if !bestDone[n] {
				rest = append(rest, n)
			}
		}
		if len(rest) >= 2 && len(rest) < len(chunk) {
			queue = append(queue, rest)
		}
	}
}

// snapshot captures every color the current attempt has changed.
func (c *coalescer) snapshot() map[*ir.Var]int {
	m := map[*ir.Var]int{}
	for _, e := range c.journal {
		m[e.v] = e.v.Color
	}
	return m
}

func (c *coalescer) set(v *ir.Var, color int) {
	c.journal = append(c.journal, journalEntry{v: v, oldColor: v.Color, oldFixed: c.fixed[v]})
	v.Color = color
	c.fixed[v] = true
}

func (c *coalescer) rollback(mark int) {
	for i := len(c.journal) - 1; i >= mark; i-- {
		e := c.journal[i]
		e.v.Color = e.oldColor
		if e.oldFixed {
			c.fixed[e.v] = true
		} else {
			delete(c.fixed, e.v)
		}
	}
	c.journal = c.journal[:mark]
}

// tryRecolor attempts to move n to color, cascading conflicting
// neighbors to other colors; on any failure the whole cluster of
// changes for n is rolled back.
func (c *coalescer) tryRecolor(n *ir.Var, color int) bool {
	if n.Color == color {
		c.journal = append(c.journal, journalEntry{v: n, oldColor: n.Color, oldFixed: c.fixed[n]})
		c.fixed[n] = true
		return true
	}
	if c.fixed[n] || c.pinned[n] {
		return false
	}
	mark := len(c.journal)
	c.set(n, color)
	for m := range c.neighbors[n] {
		if m.Color != color {
			continue
		}
		if !c.avoidColor(m, color) {
			c.rollback(mark)
			return false
		}
	}
	return true
}

// avoidColor moves m off the contested color, choosing the alternative
// least used among m's own neighbors and cascading further as needed.
func (c *coalescer) avoidColor(m *ir.Var, contested int) bool {
	if c.fixed[m] || c.pinned[m] {
		return false
	}
	alt := c.leastUsedAlternative(m, contested)
	if alt == ir.NotColored {
		return false
	}
	mark := len(c.journal)
	c.set(m, alt)
	for nb := range c.neighbors[m] {
		if nb.Color != alt {
			continue
		}
		if !c.avoidColor(nb, alt) {
			c.rollback(mark)
			return false
		}
	}
	return true
}

func (c *coalescer) leastUsedAlternative(m *ir.Var, contested int) int {
	best, bestUses := ir.NotColored, int(^uint(0)>>1)
	for _, col := range c.reservoir {
		if col == contested || col == m.Color {
			continue
		}
		uses := 0
		for nb := range c.neighbors[m] {
			if nb.Color == col {
				uses++
			}
		}
		if uses < bestUses {
			best, bestUses = col, uses
		}
	}
	return best
}
