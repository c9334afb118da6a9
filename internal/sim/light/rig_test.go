package light

import (
	"sync"
	"sync/atomic"
	"testing"
)

// Test materials. Absorption and emission pack as 0xRRGGBB.
const (
	mAir uint16 = iota
	mStone
	mWater
	mTorch
	mLampBlue
	mRedGlass
)

type materialTable struct{}

func (materialTable) AbsorptionRGB(id uint16) uint32 {
	switch id {
	case mStone:
		return 0xFFFFFF
	case mWater:
		return 0x201008 // 32 red, 16 green, 8 blue
	case mRedGlass:
		return 0x00FFFF // red passes, green and blue die
	}
	return 0
}

func (materialTable) EmissionRGB(id uint16) uint32 {
	switch id {
	case mTorch:
		return 0xFFE0A0 // 255, 224, 160
	case mLampBlue:
		return 0x2020FF
	}
	return 0
}

type meshCounter struct {
	mu    sync.Mutex
	byPos map[ChunkPos]int
}

func (m *meshCounter) LightChanged(h Host) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.byPos == nil {
		m.byPos = make(map[ChunkPos]int)
	}
	m.byPos[h.Pos()]++
}

func (m *meshCounter) count(p ChunkPos) int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.byPos[p]
}

func (m *meshCounter) total() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	n := 0
	for _, c := range m.byPos {
		n += c
	}
	return n
}

type testChunk struct {
	pos    ChunkPos
	scale  int
	blocks [cellCount]uint16
	grids  [NumChannels]*Grid
}

func (c *testChunk) Pos() ChunkPos { return c.pos }
func (c *testChunk) Scale() int    { return c.scale }
func (c *testChunk) BlockAt(x, y, z int) uint16 {
	return c.blocks[CellIndex(x, y, z)]
}

func (c *testChunk) set(x, y, z int, id uint16) {
	c.blocks[CellIndex(x, y, z)] = id
}

func (c *testChunk) fill(id uint16) {
	for i := range c.blocks {
		c.blocks[i] = id
	}
}

func (c *testChunk) grid(ch Channel) *Grid { return c.grids[ch] }

// testRig wires chunks, materials and counters into a Deps the engine can
// run against. It is its own Resolver so borrow accounting is visible.
type testRig struct {
	deps   *Deps
	chunks map[ChunkPos]*testChunk
	mesh   *meshCounter

	acquires   atomic.Int64
	releases   atomic.Int64
	reReleases atomic.Int64
}

func newTestRig() *testRig {
	r := &testRig{chunks: make(map[ChunkPos]*testChunk), mesh: &meshCounter{}}
	r.deps = &Deps{Blocks: materialTable{}, Resolver: r, Mesh: r.mesh}
	return r
}

func (r *testRig) addChunk(pos ChunkPos) *testChunk {
	c := &testChunk{pos: pos, scale: 1}
	for _, ch := range Channels() {
		c.grids[ch] = New(r.deps, c, ch)
	}
	r.chunks[pos] = c
	return c
}

func (r *testRig) Acquire(pos ChunkPos, dir Direction, scale int, ch Channel) (*Grid, func(), bool) {
	dx, dy, dz := dir.Offset()
	c := r.chunks[ChunkPos{pos.X + dx, pos.Y + dy, pos.Z + dz}]
	if c == nil {
		return nil, nil, false
	}
	r.acquires.Add(1)
	var done atomic.Bool
	release := func() {
		if !done.CompareAndSwap(false, true) {
			r.reReleases.Add(1)
			return
		}
		r.releases.Add(1)
	}
	return c.grids[ch], release, true
}

// balanced fails the test if any borrow leaked or was released twice.
func (r *testRig) balanced(t *testing.T) {
	t.Helper()
	if a, rel := r.acquires.Load(), r.releases.Load(); a != rel {
		t.Fatalf("borrows: %d acquires, %d releases", a, rel)
	}
	if n := r.reReleases.Load(); n != 0 {
		t.Fatalf("borrows: %d double releases", n)
	}
}

func v(x, y, z int) Voxel {
	return Voxel{uint8(x), uint8(y), uint8(z)}
}

func nonZeroCells(g *Grid) int {
	n := 0
	for _, b := range g.Bytes() {
		if b != 0 {
			n++
		}
	}
	return n
}
