package light

// Refill accumulates, across every chunk a removal pass touches, the
// voxels that stayed lit by another source and must flood back outward
// once the retract finishes. One Refill is threaded through the whole
// pass; entries keep first-touch order so the rebuild is deterministic.
type Refill struct {
	order  []*refillEntry
	byGrid map[*Grid]*refillEntry
}

type refillEntry struct {
	grid     *Grid
	cells    []Voxel
	darkened bool
}

func newRefill() *Refill {
	return &Refill{byGrid: make(map[*Grid]*refillEntry)}
}

func (r *Refill) touch(g *Grid) *refillEntry {
	if e, ok := r.byGrid[g]; ok {
		return e
	}
	e := &refillEntry{grid: g}
	r.byGrid[g] = e
	r.order = append(r.order, e)
	return e
}

func (r *Refill) flag(g *Grid, v Voxel) {
	e := r.touch(g)
	e.cells = append(e.cells, v)
}

// apply floods surviving light back into the retracted region and fires
// the mesh notifications the retract deferred, one per touched grid.
func (r *Refill) apply() {
	for _, e := range r.order {
		changed := e.grid.refillFrom(e.cells)
		if changed || e.darkened {
			e.grid.deps.Mesh.LightChanged(e.grid.host)
		}
	}
}

// refillFrom expands an additive flood outward from each cell's
// now-current value. The cells themselves are not reseeded: a flagged
// voxel already stores the survivor's correct value, only the region
// around it went dark. Cells a later retract branch cleared after
// flagging read zero here and are skipped. Reports whether anything
// brightened; the caller owns notification.
func (g *Grid) refillFrom(cells []Voxel) bool {
	if len(cells) == 0 {
		return false
	}
	q := newFrontier()
	var b borders
	g.mu.Lock()
	for _, c := range cells {
		v := g.load(CellIndex(int(c.X), int(c.Y), int(c.Z)))
		if v == 0 {
			continue
		}
		g.expand(int(c.X), int(c.Y), int(c.Z), v, q, &b)
	}
	changed := g.drainDirect(q, &b)
	g.mu.Unlock()
	g.forwardDirect(&b)
	return changed
}

// drainUndo runs the removal flood until the local queue empties. Caller
// holds mu. root marks the drain seeded from the edited voxels; only its
// first dequeue may consume a zero-valued entry, the root removal of a
// cell that was already dark on this channel. Any later zero entry is
// dropped: it carries no light to retract, and reprocessing cleared cells
// would loop.
func (g *Grid) drainUndo(q *frontier, b *borders, re *Refill, root bool) {
	e := re.touch(g)
	first := true
	for {
		n, ok := q.pop()
		if !ok {
			return
		}
		rootFirst := root && first
		first = false

		idx := CellIndex(int(n.x), int(n.y), int(n.z))
		cur := g.load(idx)
		if n.value != cur {
			// Still lit from elsewhere, or already cleared by another
			// branch. Flood back out of here once the retract is done.
			re.flag(g, Voxel{n.x, n.y, n.z})
			continue
		}
		if cur == 0 {
			if !rootFirst {
				continue
			}
		} else {
			g.store(idx, 0)
			e.darkened = true
		}
		g.expand(int(n.x), int(n.y), int(n.z), n.value, q, b)
	}
}

// propagateUndo retracts q under the grid mutex, then carries the removal
// into loaded neighbors. Mesh notification waits until Refill.apply has
// rebuilt the survivors.
func (g *Grid) propagateUndo(q *frontier, re *Refill, root bool) {
	var b borders
	g.mu.Lock()
	g.drainUndo(q, &b, re, root)
	g.mu.Unlock()
	for d := Direction(0); d < NumDirections; d++ {
		if len(b[d]) == 0 {
			continue
		}
		nb, release, ok := g.deps.Resolver.Acquire(g.host.Pos(), d, g.host.Scale(), g.channel)
		if !ok {
			continue
		}
		nb.acceptUndo(b[d], re)
		release()
	}
}

// acceptUndo continues a removal flood arriving through a face, charging
// the entry voxel's absorption exactly like the additive side does.
func (g *Grid) acceptUndo(in []entry, re *Refill) {
	q := newFrontier()
	for _, e := range in {
		v := g.absorb(e.value, int(e.x), int(e.y), int(e.z))
		if v == 0 {
			continue
		}
		q.push(entry{e.x, e.y, e.z, v})
	}
	if q.empty() {
		return
	}
	g.propagateUndo(q, re, false)
}

// PropagateLightsDestructive retracts the light fed by the given cells,
// seeding from whatever each currently stores, then floods back in from
// every surviving source the retract uncovered. Mesh notifications fire
// once per touched chunk after the field settles.
func (g *Grid) PropagateLightsDestructive(cells []Voxel) {
	if len(cells) == 0 {
		return
	}
	q := newFrontier()
	for _, c := range cells {
		v := g.load(CellIndex(int(c.X), int(c.Y), int(c.Z)))
		q.push(entry{c.X, c.Y, c.Z, v})
	}
	re := newRefill()
	g.propagateUndo(q, re, true)
	re.apply()
}
