package light

// satSub subtracts loss from v, saturating at 0.
func satSub(v uint8, loss int) uint8 {
	r := int(v) - loss
	if r <= 0 {
		return 0
	}
	return uint8(r)
}

// travel is the value light at v keeps after moving one voxel in dir,
// before destination absorption. Full-strength sunlight falls straight
// down for free; everything else pays step per voxel, scaled by LOD.
func (g *Grid) travel(v uint8, dir Direction) uint8 {
	if v == Max && dir == Down && g.channel.Sun() {
		return v
	}
	return satSub(v, step*g.host.Scale())
}

// absorb applies the absorption the voxel's material imposes on this
// channel, scaled by LOD.
func (g *Grid) absorb(v uint8, x, y, z int) uint8 {
	if v == 0 {
		return 0
	}
	a := g.channel.Slice(g.deps.Blocks.AbsorptionRGB(g.host.BlockAt(x, y, z)))
	if a == 0 {
		return v
	}
	return satSub(v, int(a)*g.host.Scale())
}

func inChunk(x, y, z int) bool {
	return uint(x) < Edge && uint(y) < Edge && uint(z) < Edge
}

// wrap translates a one-step out-of-range coordinate into the adjacent
// chunk's frame: -1 becomes Edge-1 and Edge becomes 0. In-range values
// pass through.
func wrap(c int) int { return c & (Edge - 1) }

// borders collects candidates that left the chunk, keyed by exit face.
// Coordinates are already in the neighbor's frame; the neighbor applies
// its own voxel absorption when it seeds from them.
type borders [NumDirections][]entry

func (b *borders) add(dir Direction, e entry) { b[dir] = append(b[dir], e) }

// expand pushes the six candidates light of value v at (x,y,z) produces:
// in-chunk candidates onto q with destination absorption applied,
// out-of-chunk candidates onto the matching border list with absorption
// deferred to the neighbor. Candidates that reach zero are dropped.
func (g *Grid) expand(x, y, z int, v uint8, q *frontier, b *borders) {
	for d := Direction(0); d < NumDirections; d++ {
		vt := g.travel(v, d)
		if vt == 0 {
			continue
		}
		dx, dy, dz := d.Offset()
		nx, ny, nz := x+dx, y+dy, z+dz
		if !inChunk(nx, ny, nz) {
			b.add(d, entry{uint8(wrap(nx)), uint8(wrap(ny)), uint8(wrap(nz)), vt})
			continue
		}
		va := g.absorb(vt, nx, ny, nz)
		if va == 0 {
			continue
		}
		q.push(entry{uint8(nx), uint8(ny), uint8(nz), va})
	}
}

// drainDirect runs the additive flood until the local queue empties.
// Caller holds mu. An entry only lands if it is strictly brighter than
// what the voxel already stores, which keeps repeated seeding idempotent
// and guarantees termination. Reports whether any voxel changed.
func (g *Grid) drainDirect(q *frontier, b *borders) bool {
	changed := false
	for {
		e, ok := q.pop()
		if !ok {
			return changed
		}
		idx := CellIndex(int(e.x), int(e.y), int(e.z))
		if e.value <= g.load(idx) {
			continue
		}
		g.store(idx, e.value)
		changed = true
		g.expand(int(e.x), int(e.y), int(e.z), e.value, q, b)
	}
}

// propagateDirect floods q outward under the grid mutex, hands whatever
// crossed a chunk face to the neighbors, and schedules a mesh rebuild if
// anything changed here. The mutex is never held while a neighbor works.
func (g *Grid) propagateDirect(q *frontier) {
	var b borders
	g.mu.Lock()
	changed := g.drainDirect(q, &b)
	g.mu.Unlock()
	g.forwardDirect(&b)
	if changed {
		g.deps.Mesh.LightChanged(g.host)
	}
}

// forwardDirect hands border candidates to loaded neighbors. Unloaded
// neighbors are skipped; their own seeding pulls the light across later.
func (g *Grid) forwardDirect(b *borders) {
	for d := Direction(0); d < NumDirections; d++ {
		if len(b[d]) == 0 {
			continue
		}
		nb, release, ok := g.deps.Resolver.Acquire(g.host.Pos(), d, g.host.Scale(), g.channel)
		if !ok {
			continue
		}
		nb.acceptDirect(b[d])
		release()
	}
}

// acceptDirect seeds an additive pass from candidates arriving through a
// face, charging each entry voxel's own absorption on the way in.
func (g *Grid) acceptDirect(in []entry) {
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
	g.propagateDirect(q)
}

// PropagateLights seeds light sources at the given cells and floods them
// outward: full strength for sunlight channels, the cell material's own
// emission for emitted channels. With checkNeighbors it also pulls in
// whatever loaded neighbors already shine across the six faces, so a
// freshly generated chunk splices into the surrounding field.
func (g *Grid) PropagateLights(cells []Voxel, checkNeighbors bool) {
	q := newFrontier()
	for _, c := range cells {
		v := g.seedValue(int(c.X), int(c.Y), int(c.Z))
		if v == 0 {
			continue
		}
		q.push(entry{c.X, c.Y, c.Z, v})
	}
	if checkNeighbors {
		g.seedFromNeighbors(q)
	}
	if q.empty() {
		return
	}
	g.propagateDirect(q)
}

func (g *Grid) seedValue(x, y, z int) uint8 {
	if g.channel.Sun() {
		return Max
	}
	return g.channel.Slice(g.deps.Blocks.EmissionRGB(g.host.BlockAt(x, y, z)))
}

// seedFromNeighbors peeks the stored intensity just across each loaded
// face and seeds the local boundary voxels with what would arrive. The
// peeks are plain atomic reads without the neighbor's mutex; that is what
// the per-voxel atomics are for.
func (g *Grid) seedFromNeighbors(q *frontier) {
	for d := Direction(0); d < NumDirections; d++ {
		nb, release, ok := g.deps.Resolver.Acquire(g.host.Pos(), d, g.host.Scale(), g.channel)
		if !ok {
			continue
		}
		g.seedFace(d, nb, q)
		release()
	}
}

// seedFace walks the 32x32 boundary voxel pairs of face d. Light moves
// from the neighbor into this chunk, so it travels opposite to d: for the
// top face that is straight down, which keeps full sunlight free.
func (g *Grid) seedFace(d Direction, nb *Grid, q *frontier) {
	axis, positive := d.axis()
	ownFace, nbFace := 0, Edge-1
	if positive {
		ownFace, nbFace = Edge-1, 0
	}
	in := d.Opposite()

	var p [3]int
	for u := 0; u < Edge; u++ {
		for w := 0; w < Edge; w++ {
			p[axis] = nbFace
			p[(axis+1)%3] = u
			p[(axis+2)%3] = w
			v := nb.At(p[0], p[1], p[2])
			if v == 0 {
				continue
			}
			vt := g.travel(v, in)
			if vt == 0 {
				continue
			}
			p[axis] = ownFace
			va := g.absorb(vt, p[0], p[1], p[2])
			if va == 0 {
				continue
			}
			q.push(entry{uint8(p[0]), uint8(p[1]), uint8(p[2]), va})
		}
	}
}

// Reflood pulls light back into cells whose voxel stopped blocking it:
// every in-chunk face neighbor floods from its current value, and cells
// sitting on a chunk face also take the peeked inbound value from the
// adjacent chunk. The cells end up holding whatever their surroundings
// deliver.
func (g *Grid) Reflood(cells []Voxel) {
	if len(cells) == 0 {
		return
	}
	q := newFrontier()
	for _, c := range cells {
		g.seedInbound(int(c.X), int(c.Y), int(c.Z), q)
	}

	var b borders
	g.mu.Lock()
	for _, c := range cells {
		x, y, z := int(c.X), int(c.Y), int(c.Z)
		for d := Direction(0); d < NumDirections; d++ {
			dx, dy, dz := d.Offset()
			sx, sy, sz := x+dx, y+dy, z+dz
			if !inChunk(sx, sy, sz) {
				continue
			}
			v := g.load(CellIndex(sx, sy, sz))
			if v == 0 {
				continue
			}
			g.expand(sx, sy, sz, v, q, &b)
		}
	}
	changed := g.drainDirect(q, &b)
	g.mu.Unlock()
	g.forwardDirect(&b)
	if changed {
		g.deps.Mesh.LightChanged(g.host)
	}
}

// seedInbound peeks across every chunk face (x,y,z) touches and pushes
// what the neighbor's boundary voxel would deliver into it. Runs before
// the grid mutex is taken; the resolver is never called under it.
func (g *Grid) seedInbound(x, y, z int, q *frontier) {
	for d := Direction(0); d < NumDirections; d++ {
		dx, dy, dz := d.Offset()
		sx, sy, sz := x+dx, y+dy, z+dz
		if inChunk(sx, sy, sz) {
			continue
		}
		nb, release, ok := g.deps.Resolver.Acquire(g.host.Pos(), d, g.host.Scale(), g.channel)
		if !ok {
			continue
		}
		v := nb.At(wrap(sx), wrap(sy), wrap(sz))
		release()
		if v == 0 {
			continue
		}
		vt := g.travel(v, d.Opposite())
		if vt == 0 {
			continue
		}
		va := g.absorb(vt, x, y, z)
		if va == 0 {
			continue
		}
		q.push(entry{uint8(x), uint8(y), uint8(z), va})
	}
}
