package world

import (
	"crypto/sha256"
	"encoding/binary"
	"sync/atomic"

	"voxlight.dev/internal/sim/light"
)

const chunkCells = light.Edge * light.Edge * light.Edge

// Chunk owns one 32^3 cube of block ids plus the six light grids layered
// over it. Block data is written only from the world loop goroutine; the
// light grids carry their own locking.
type Chunk struct {
	pos   light.ChunkPos
	scale int

	Blocks [chunkCells]uint16

	grids [light.NumChannels]*light.Grid

	// borrows counts outstanding neighbor loans; the store refuses to
	// evict a chunk while any are live.
	borrows atomic.Int32

	// lightV bumps every time a flood settles here. LIGHT notifications
	// and CHUNK payloads carry it so clients can discard stale fetches.
	lightV atomic.Uint64

	// edited marks chunks that diverged from worldgen; the store will
	// not evict them, since regeneration would lose the edit.
	edited bool

	dirty bool
	hash  [32]byte
}

func newChunk(deps *light.Deps, pos light.ChunkPos, scale int) *Chunk {
	c := &Chunk{pos: pos, scale: scale, dirty: true}
	for _, ch := range light.Channels() {
		c.grids[ch] = light.New(deps, c, ch)
	}
	return c
}

// Pos implements light.Host.
func (c *Chunk) Pos() light.ChunkPos { return c.pos }

// Scale implements light.Host.
func (c *Chunk) Scale() int { return c.scale }

// BlockAt implements light.Host.
func (c *Chunk) BlockAt(x, y, z int) uint16 {
	return c.Blocks[light.CellIndex(x, y, z)]
}

// Get returns the block id at a local voxel.
func (c *Chunk) Get(v light.Voxel) uint16 {
	return c.Blocks[light.CellIndex(int(v.X), int(v.Y), int(v.Z))]
}

// Set writes a local voxel and reports whether it changed.
func (c *Chunk) Set(v light.Voxel, id uint16) bool {
	i := light.CellIndex(int(v.X), int(v.Y), int(v.Z))
	if c.Blocks[i] == id {
		return false
	}
	c.Blocks[i] = id
	c.edited = true
	c.dirty = true
	return true
}

// Grid returns the chunk's grid for one channel.
func (c *Chunk) Grid(ch light.Channel) *light.Grid { return c.grids[ch] }

// LightVersion returns the current light revision.
func (c *Chunk) LightVersion() uint64 { return c.lightV.Load() }

// LightBytes copies out all six channel grids in channel order.
func (c *Chunk) LightBytes() [light.NumChannels][]byte {
	var out [light.NumChannels][]byte
	for _, ch := range light.Channels() {
		out[ch] = c.grids[ch].Bytes()
	}
	return out
}

// Digest hashes the block data, cached until the next Set.
func (c *Chunk) Digest() [32]byte {
	if c.dirty || c.hash == ([32]byte{}) {
		h := sha256.New()
		var tmp [2]byte
		for _, v := range c.Blocks {
			binary.LittleEndian.PutUint16(tmp[:], v)
			h.Write(tmp[:])
		}
		copy(c.hash[:], h.Sum(nil))
		c.dirty = false
	}
	return c.hash
}

// NonAirCells counts occupied voxels, for snapshot bookkeeping.
func (c *Chunk) NonAirCells() int {
	n := 0
	for _, b := range c.Blocks {
		if b != 0 {
			n++
		}
	}
	return n
}
