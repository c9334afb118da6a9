package world

import (
	"fmt"
	"sort"
	"sync"

	"github.com/alitto/pond/v2"

	"voxlight.dev/internal/sim/block"
	"voxlight.dev/internal/sim/light"
)

// Gen produces block data for a chunk position. Implementations must be
// pure functions of (seed, pos) so regenerated chunks are identical.
type Gen interface {
	Generate(pos light.ChunkPos, blocks *[chunkCells]uint16)
}

// StoreConfig wires a chunk store.
type StoreConfig struct {
	Registry     *block.Registry
	Gen          Gen // nil means chunks come up all air
	HeightChunks int
	MaxLoaded    int
}

// Store owns the resident chunks. It is the engine's Resolver (neighbor
// borrows) and Notifier (light-change fan-in): floods running on any
// goroutine reach neighbors and report settles through here.
type Store struct {
	cfg  StoreConfig
	deps *light.Deps

	mu     sync.RWMutex
	chunks map[light.ChunkPos]*Chunk

	dirtyMu sync.Mutex
	dirty   map[light.ChunkPos]uint64
}

func NewStore(cfg StoreConfig) *Store {
	s := &Store{
		cfg:    cfg,
		chunks: map[light.ChunkPos]*Chunk{},
		dirty:  map[light.ChunkPos]uint64{},
	}
	s.deps = &light.Deps{Blocks: cfg.Registry, Resolver: s, Mesh: s}
	return s
}

// InBounds reports whether a chunk position is inside the world column
// range. The world is bounded vertically and open horizontally.
func (s *Store) InBounds(pos light.ChunkPos) bool {
	return pos.Y >= 0 && pos.Y < s.cfg.HeightChunks
}

// At returns a loaded chunk or nil.
func (s *Store) At(pos light.ChunkPos) *Chunk {
	s.mu.RLock()
	c := s.chunks[pos]
	s.mu.RUnlock()
	return c
}

// GetOrGen returns the chunk at pos, generating and light-seeding it on
// first touch. Out-of-bounds positions return nil.
func (s *Store) GetOrGen(pos light.ChunkPos) *Chunk {
	c, fresh := s.materialize(pos)
	if fresh {
		s.seedLight(c)
	}
	return c
}

// Materialize generates and inserts a chunk without seeding its light.
// Bulk loaders use it to stage many chunks and then relight them all on
// the worker pool in one pass.
func (s *Store) Materialize(pos light.ChunkPos) *Chunk {
	c, _ := s.materialize(pos)
	return c
}

// materialize inserts the chunk at pos if absent. Generation runs
// outside the store lock; the fresh result reports whether this call
// created the chunk (and so still owes it a light seed).
func (s *Store) materialize(pos light.ChunkPos) (*Chunk, bool) {
	if !s.InBounds(pos) {
		return nil, false
	}
	if c := s.At(pos); c != nil {
		return c, false
	}

	c := newChunk(s.deps, pos, 1)
	if s.cfg.Gen != nil {
		s.cfg.Gen.Generate(pos, &c.Blocks)
	}

	s.mu.Lock()
	if existing := s.chunks[pos]; existing != nil {
		s.mu.Unlock()
		return existing, false
	}
	s.chunks[pos] = c
	s.mu.Unlock()
	return c, true
}

// seedLight runs the initial floods for a chunk: the sky boundary on the
// top face for top-layer chunks, the chunk's own emitters, and on every
// channel a peek across loaded faces so the chunk splices into fields
// that already crossed its position.
func (s *Store) seedLight(c *Chunk) {
	var sunCells []light.Voxel
	if c.pos.Y == s.cfg.HeightChunks-1 {
		sunCells = make([]light.Voxel, 0, light.Edge*light.Edge)
		for z := 0; z < light.Edge; z++ {
			for x := 0; x < light.Edge; x++ {
				sunCells = append(sunCells, light.Voxel{X: uint8(x), Y: light.Edge - 1, Z: uint8(z)})
			}
		}
	}

	var emitCells []light.Voxel
	for y := 0; y < light.Edge; y++ {
		for z := 0; z < light.Edge; z++ {
			for x := 0; x < light.Edge; x++ {
				if s.cfg.Registry.Emits(c.BlockAt(x, y, z)) {
					emitCells = append(emitCells, light.Voxel{X: uint8(x), Y: uint8(y), Z: uint8(z)})
				}
			}
		}
	}

	for _, ch := range light.Channels() {
		cells := emitCells
		if ch.Sun() {
			cells = sunCells
		}
		c.grids[ch].PropagateLights(cells, true)
	}
}

// Acquire implements light.Resolver. The borrow is counted before the
// store lock drops so eviction cannot race it.
func (s *Store) Acquire(pos light.ChunkPos, dir light.Direction, scale int, ch light.Channel) (*light.Grid, func(), bool) {
	dx, dy, dz := dir.Offset()
	np := light.ChunkPos{X: pos.X + dx, Y: pos.Y + dy, Z: pos.Z + dz}

	s.mu.RLock()
	c := s.chunks[np]
	if c == nil {
		s.mu.RUnlock()
		return nil, nil, false
	}
	c.borrows.Add(1)
	s.mu.RUnlock()

	return c.grids[ch], func() { c.borrows.Add(-1) }, true
}

// LightChanged implements light.Notifier: bump the chunk's light
// revision and remember it for the next broadcast drain.
func (s *Store) LightChanged(h light.Host) {
	c, ok := h.(*Chunk)
	if !ok {
		return
	}
	v := c.lightV.Add(1)
	s.dirtyMu.Lock()
	s.dirty[c.pos] = v
	s.dirtyMu.Unlock()
}

// DrainDirtyLight returns and clears the set of chunks whose light
// settled since the last drain, with the revision each reached.
func (s *Store) DrainDirtyLight() map[light.ChunkPos]uint64 {
	s.dirtyMu.Lock()
	out := s.dirty
	s.dirty = map[light.ChunkPos]uint64{}
	s.dirtyMu.Unlock()
	return out
}

// DirtyCount reports how many chunks are awaiting a light broadcast.
// Sampling it around a propagation pass gives the pass's reach.
func (s *Store) DirtyCount() int {
	s.dirtyMu.Lock()
	n := len(s.dirty)
	s.dirtyMu.Unlock()
	return n
}

// Evict drops a chunk. It refuses while any neighbor borrow is live and
// refuses chunks that hold player edits.
func (s *Store) Evict(pos light.ChunkPos) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	c := s.chunks[pos]
	if c == nil || c.edited || c.borrows.Load() != 0 {
		return false
	}
	delete(s.chunks, pos)
	return true
}

// EvictExcess drops unkept chunks until the store is back under its
// residency cap. Returns how many were dropped.
func (s *Store) EvictExcess(keep func(light.ChunkPos) bool) int {
	if s.cfg.MaxLoaded <= 0 || s.Count() <= s.cfg.MaxLoaded {
		return 0
	}
	var victims []light.ChunkPos
	s.mu.RLock()
	for pos := range s.chunks {
		if keep == nil || !keep(pos) {
			victims = append(victims, pos)
		}
	}
	over := len(s.chunks) - s.cfg.MaxLoaded
	s.mu.RUnlock()

	sort.Slice(victims, func(i, j int) bool {
		a, b := victims[i], victims[j]
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})

	dropped := 0
	for _, pos := range victims {
		if dropped >= over {
			break
		}
		if s.Evict(pos) {
			dropped++
		}
	}
	return dropped
}

// Count returns the number of resident chunks.
func (s *Store) Count() int {
	s.mu.RLock()
	n := len(s.chunks)
	s.mu.RUnlock()
	return n
}

// Loaded returns the resident chunks in key order.
func (s *Store) Loaded() []*Chunk {
	s.mu.RLock()
	out := make([]*Chunk, 0, len(s.chunks))
	for _, c := range s.chunks {
		out = append(out, c)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool {
		a, b := out[i].pos, out[j].pos
		if a.X != b.X {
			return a.X < b.X
		}
		if a.Y != b.Y {
			return a.Y < b.Y
		}
		return a.Z < b.Z
	})
	return out
}

// RelightAll darkens every loaded grid, then reseeds chunk by chunk on a
// worker pool. Grid mutexes serialize overlapping floods, so chunks can
// relight concurrently. Returns the number of chunks processed.
func (s *Store) RelightAll(workers int) int {
	chunks := s.Loaded()
	for _, c := range chunks {
		for _, ch := range light.Channels() {
			c.grids[ch].Clear()
		}
	}

	pool := pond.NewPool(workers)
	for _, c := range chunks {
		pool.Submit(func() { s.seedLight(c) })
	}
	pool.StopAndWait()
	return len(chunks)
}

// InsertRestored adds a chunk rebuilt from a snapshot, light grids
// included, without reseeding. It refuses to replace a loaded chunk.
func (s *Store) InsertRestored(pos light.ChunkPos, blocks []uint16, grids [light.NumChannels][]byte, lightV uint64) error {
	if !s.InBounds(pos) {
		return fmt.Errorf("chunk %v out of bounds", pos)
	}
	if len(blocks) != chunkCells {
		return fmt.Errorf("chunk %v: want %d blocks, got %d", pos, chunkCells, len(blocks))
	}
	c := newChunk(s.deps, pos, 1)
	copy(c.Blocks[:], blocks)
	for _, ch := range light.Channels() {
		if err := c.grids[ch].SetBytes(grids[ch]); err != nil {
			return fmt.Errorf("chunk %v %s: %w", pos, ch, err)
		}
	}
	c.lightV.Store(lightV)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.chunks[pos]; exists {
		return fmt.Errorf("chunk %v already loaded", pos)
	}
	s.chunks[pos] = c
	return nil
}
