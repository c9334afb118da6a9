// Package light floods sunlight and block-emitted light through chunked
// voxel grids, one 8-bit intensity per voxel per channel. Each chunk owns
// six independent Grids; floods cross chunk faces through a Resolver that
// lends out neighbor grids.
package light

import (
	"fmt"
	"sync"
	"sync/atomic"
)

// Edge is the chunk side length in voxels. Local coordinates fit 5 bits.
const Edge = 32

// Max is full intensity. Sunlight seeds at Max and keeps it while falling
// straight down through non-absorbing voxels.
const Max = 255

// step is the intensity lost per voxel traveled at LOD scale 1.
const step = 16

const (
	cellCount = Edge * Edge * Edge
	wordCount = cellCount / 4
)

// ChunkPos identifies a chunk in chunk coordinates.
type ChunkPos struct {
	X, Y, Z int
}

// Voxel is a local cell coordinate within a chunk, each axis in [0,Edge).
type Voxel struct {
	X, Y, Z uint8
}

// CellIndex flattens a local coordinate into grid order: x fastest, then
// z, then y. Block arrays and snapshot layouts use the same order.
func CellIndex(x, y, z int) int { return (y*Edge+z)*Edge + x }

// BlockSource is the material attribute lookup the engine consults per
// voxel. Both values pack 8 bits per color component as 0xRRGGBB.
type BlockSource interface {
	// AbsorptionRGB is how much of each component the material swallows
	// when light enters one of its voxels.
	AbsorptionRGB(id uint16) uint32
	// EmissionRGB is the light the material gives off on the emitted
	// channels.
	EmissionRGB(id uint16) uint32
}

// Host is a grid's non-owning back-reference to the chunk carrying it.
type Host interface {
	Pos() ChunkPos
	// Scale is the LOD voxel-size factor. Attenuation and absorption are
	// multiplied by it so coarse chunks lose light at the same world-space
	// rate as fine ones.
	Scale() int
	// BlockAt returns the material id of a local voxel.
	BlockAt(x, y, z int) uint16
}

// Resolver lends out the same-channel grid of an adjacent chunk. The
// release func must be called exactly once for every ok borrow. A missing
// neighbor reports ok=false and is skipped; its own seeding pulls the
// light across once it loads.
type Resolver interface {
	Acquire(pos ChunkPos, dir Direction, scale int, ch Channel) (g *Grid, release func(), ok bool)
}

// Notifier is told when a chunk's light field settled after a change so
// dependent render data can be rebuilt lazily. Implementations must be
// cheap: schedule, never rebuild inline.
type Notifier interface {
	LightChanged(h Host)
}

// Deps are the engine's injected collaborators, shared by every grid of a
// world. None of them may be nil.
type Deps struct {
	Blocks   BlockSource
	Resolver Resolver
	Mesh     Notifier
}

// Grid holds one channel's intensity for every voxel of one chunk, packed
// four cells per word. Stores happen only under mu; loads may come from
// any goroutine, so all word access is atomic.
type Grid struct {
	channel Channel
	host    Host
	deps    *Deps

	mu    sync.Mutex
	words [wordCount]uint32
}

// New returns an all-dark grid for one channel of one chunk.
func New(deps *Deps, host Host, ch Channel) *Grid {
	return &Grid{channel: ch, host: host, deps: deps}
}

// Channel returns the channel this grid carries.
func (g *Grid) Channel() Channel { return g.channel }

// Host returns the owning chunk handle the grid was built with.
func (g *Grid) Host() Host { return g.host }

// At returns the stored intensity of a local voxel. Safe to call from any
// goroutine, including while a flood is running.
func (g *Grid) At(x, y, z int) uint8 { return g.load(CellIndex(x, y, z)) }

func (g *Grid) load(idx int) uint8 {
	w := atomic.LoadUint32(&g.words[idx>>2])
	return uint8(w >> (uint(idx&3) * 8))
}

// store writes one cell. Callers hold mu, so the word read cannot race
// another writer; the atomic store keeps concurrent readers safe.
func (g *Grid) store(idx int, v uint8) {
	wi := idx >> 2
	shift := uint(idx&3) * 8
	w := atomic.LoadUint32(&g.words[wi])
	w = w&^(0xff<<shift) | uint32(v)<<shift
	atomic.StoreUint32(&g.words[wi], w)
}

// Bytes copies the grid out as Edge cubed intensities in CellIndex order.
// Snapshots and the wire format carry this layout.
func (g *Grid) Bytes() []byte {
	out := make([]byte, cellCount)
	for i := range out {
		out[i] = g.load(i)
	}
	return out
}

// SetBytes restores a grid captured by Bytes.
func (g *Grid) SetBytes(data []byte) error {
	if len(data) != cellCount {
		return fmt.Errorf("light grid: want %d cells, got %d", cellCount, len(data))
	}
	g.mu.Lock()
	for i, v := range data {
		g.store(i, v)
	}
	g.mu.Unlock()
	return nil
}

// Clear darkens the whole grid. Relight tooling calls this before a full
// recompute.
func (g *Grid) Clear() {
	g.mu.Lock()
	for i := range g.words {
		atomic.StoreUint32(&g.words[i], 0)
	}
	g.mu.Unlock()
}
