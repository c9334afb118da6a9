package world

import (
	"crypto/sha256"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"voxlight.dev/internal/persistence/snapshot"
	"voxlight.dev/internal/protocol"
	"voxlight.dev/internal/sim/block"
	simenc "voxlight.dev/internal/sim/encoding"
	"voxlight.dev/internal/sim/light"
)

type Config struct {
	WorldID      string
	TickRateHz   int
	Seed         int64
	HeightChunks int
	ViewRadius   int
	SeaLevel     int
	MaxLoaded    int

	TerrainScale float64
	TorchDensity float64

	EditsPerTick       int
	ChunksPerTick      int
	PendingEdits       int
	SnapshotEveryTicks int
}

type JoinRequest struct {
	Name       string
	ViewRadius int
	Out        chan []byte
	Resp       chan JoinResponse
}

type JoinResponse struct {
	Welcome protocol.WelcomeMsg
}

type EditRequest struct {
	Session string
	Pos     Vec3i
	Block   uint16
	Tag     string
}

type ChunkRequest struct {
	Session string
	Pos     light.ChunkPos
}

// World is a single-threaded authoritative simulation. All state must be
// accessed only from the world loop goroutine; the light grids carry
// their own synchronization so flood passes may fan out to workers.
type World struct {
	cfg    Config
	blocks *block.Registry
	store  *Store

	tick    atomic.Uint64
	metrics atomic.Value // Metrics

	clients map[string]*clientState

	edits     chan EditRequest
	chunkReqs chan ChunkRequest
	join      chan JoinRequest
	leave     chan string
	stop      chan struct{}

	// Optional loggers (may be nil). Implemented in internal/persistence/*.
	editLogger    EditLogger
	relightLogger RelightLogger

	// Optional snapshot sink (may be nil). Snapshot writing should be off-thread.
	snapshotSink chan<- snapshot.SnapshotV1
}

type EditLogger interface {
	WriteEdit(entry EditEntry) error
}

type RelightLogger interface {
	WriteRelight(entry RelightEntry) error
}

type EditEntry struct {
	Tick    uint64 `json:"tick"`
	Session string `json:"session,omitempty"`
	Pos     [3]int `json:"pos"`
	From    uint16 `json:"from"`
	To      uint16 `json:"to"`
	Code    string `json:"code,omitempty"`
}

type RelightEntry struct {
	Tick          uint64 `json:"tick"`
	Chunk         [3]int `json:"chunk"`
	Channels      uint8  `json:"channels"`
	ChunksTouched int    `json:"chunks_touched"`
	DurationUS    int64  `json:"duration_us"`
	Cause         string `json:"cause"` // "edit", "load", "bulk"
}

const allChannelsMask uint8 = 1<<light.NumChannels - 1

type clientState struct {
	Out  chan []byte
	Name string
	Subs map[light.ChunkPos]struct{}
}

func New(cfg Config, reg *block.Registry) (*World, error) {
	gen, err := NewTerrainGen(reg, cfg.Seed, cfg.SeaLevel, cfg.TerrainScale, cfg.TorchDensity)
	if err != nil {
		return nil, err
	}
	w := &World{
		cfg:    cfg,
		blocks: reg,
		store: NewStore(StoreConfig{
			Registry:     reg,
			Gen:          gen,
			HeightChunks: cfg.HeightChunks,
			MaxLoaded:    cfg.MaxLoaded,
		}),
		clients:   map[string]*clientState{},
		edits:     make(chan EditRequest, cfg.PendingEdits),
		chunkReqs: make(chan ChunkRequest, 256),
		join:      make(chan JoinRequest, 64),
		leave:     make(chan string, 64),
		stop:      make(chan struct{}),
	}
	return w, nil
}

func (w *World) SetEditLogger(l EditLogger)                    { w.editLogger = l }
func (w *World) SetRelightLogger(l RelightLogger)              { w.relightLogger = l }
func (w *World) SetSnapshotSink(ch chan<- snapshot.SnapshotV1) { w.snapshotSink = ch }

func (w *World) Edits() chan<- EditRequest      { return w.edits }
func (w *World) ChunkReqs() chan<- ChunkRequest { return w.chunkReqs }
func (w *World) Join() chan<- JoinRequest       { return w.join }
func (w *World) Leave() chan<- string           { return w.leave }

func (w *World) CurrentTick() uint64     { return w.tick.Load() }
func (w *World) Store() *Store           { return w.store }
func (w *World) Blocks() *block.Registry { return w.blocks }
func (w *World) ID() string              { return w.cfg.WorldID }
func (w *World) TickRateHz() int         { return w.cfg.TickRateHz }

func (w *World) handleJoin(req JoinRequest) {
	sid := uuid.NewString()
	radius := req.ViewRadius
	if radius <= 0 || radius > w.cfg.ViewRadius {
		radius = w.cfg.ViewRadius
	}
	w.clients[sid] = &clientState{
		Out:  req.Out,
		Name: req.Name,
		Subs: map[light.ChunkPos]struct{}{},
	}
	welcome := protocol.WelcomeMsg{
		Type:            protocol.TypeWelcome,
		ProtocolVersion: protocol.Version,
		SessionID:       sid,
		WorldParams: protocol.WorldParams{
			TickRateHz:   w.cfg.TickRateHz,
			ChunkSize:    [3]int{light.Edge, light.Edge, light.Edge},
			HeightChunks: w.cfg.HeightChunks,
			ViewRadius:   radius,
			SeaLevel:     w.cfg.SeaLevel,
			Seed:         w.cfg.Seed,
		},
		BlockPalette: protocol.DigestRef{
			Digest: w.blocks.PaletteDigest,
			Count:  w.blocks.Count(),
		},
	}
	req.Resp <- JoinResponse{Welcome: welcome}
}

func (w *World) handleLeave(session string) {
	delete(w.clients, session)
}

// SetBlock applies one block edit and drives the lighting that follows
// from it: retract on every channel at the cell, seed the new block's
// emission, and pull surrounding light back in on channels where the
// edit lowered absorption. The empty code means accepted; from reports
// the replaced block id.
func (w *World) SetBlock(tick uint64, pos Vec3i, id uint16) (code string, from uint16) {
	cp, lv := pos.Split()
	if !w.store.InBounds(cp) {
		return protocol.ErrOutOfWorld, 0
	}
	if int(id) >= w.blocks.Count() {
		return protocol.ErrBadBlock, 0
	}
	c := w.store.GetOrGen(cp)
	from = c.Get(lv)
	if from == id {
		return "", from
	}

	start := time.Now()
	before := w.store.DirtyCount()
	c.Set(lv, id)

	oldAbs := w.blocks.AbsorptionRGB(from)
	newAbs := w.blocks.AbsorptionRGB(id)
	emits := w.blocks.Emits(id)
	cells := []light.Voxel{lv}

	for _, ch := range light.Channels() {
		g := c.Grid(ch)
		g.PropagateLightsDestructive(cells)
		if emits && !ch.Sun() {
			g.PropagateLights(cells, false)
		}
		if ch.Slice(newAbs) < ch.Slice(oldAbs) {
			g.Reflood(cells)
		}
	}

	if w.relightLogger != nil {
		_ = w.relightLogger.WriteRelight(RelightEntry{
			Tick:          tick,
			Chunk:         [3]int{cp.X, cp.Y, cp.Z},
			Channels:      allChannelsMask,
			ChunksTouched: w.store.DirtyCount() - before,
			DurationUS:    time.Since(start).Microseconds(),
			Cause:         "edit",
		})
	}
	return "", from
}

func (w *World) applyEdit(tick uint64, req EditRequest) {
	code, from := w.SetBlock(tick, req.Pos, req.Block)
	if w.editLogger != nil {
		_ = w.editLogger.WriteEdit(EditEntry{
			Tick:    tick,
			Session: req.Session,
			Pos:     [3]int{req.Pos.X, req.Pos.Y, req.Pos.Z},
			From:    from,
			To:      req.Block,
			Code:    code,
		})
	}
	if c := w.clients[req.Session]; c != nil {
		w.sendAck(c, protocol.TypeEdit, req.Tag, code, tick)
	}
}

func (w *World) sendAck(c *clientState, ackFor, tag, code string, tick uint64) {
	b, _ := json.Marshal(protocol.AckMsg{
		Type:            protocol.TypeAck,
		ProtocolVersion: protocol.Version,
		AckFor:          ackFor,
		Tag:             tag,
		Accepted:        code == "",
		Code:            code,
		ServerTick:      tick,
	})
	sendLatest(c.Out, b)
}

func (w *World) handleChunkReq(tick uint64, req ChunkRequest) {
	c := w.clients[req.Session]
	if c == nil {
		return
	}
	if !w.store.InBounds(req.Pos) {
		w.sendAck(c, protocol.TypeChunkReq, "", protocol.ErrOutOfWorld, tick)
		return
	}

	fresh := w.store.At(req.Pos) == nil
	start := time.Now()
	before := w.store.DirtyCount()
	chunk := w.store.GetOrGen(req.Pos)
	if fresh && w.relightLogger != nil {
		_ = w.relightLogger.WriteRelight(RelightEntry{
			Tick:          tick,
			Chunk:         [3]int{req.Pos.X, req.Pos.Y, req.Pos.Z},
			Channels:      allChannelsMask,
			ChunksTouched: w.store.DirtyCount() - before,
			DurationUS:    time.Since(start).Microseconds(),
			Cause:         "load",
		})
	}

	b, _ := json.Marshal(w.chunkMsg(chunk))
	sendLatest(c.Out, b)
	c.Subs[req.Pos] = struct{}{}
}

func (w *World) chunkMsg(c *Chunk) protocol.ChunkMsg {
	msg := protocol.ChunkMsg{
		Type:            protocol.TypeChunk,
		ProtocolVersion: protocol.Version,
		Pos:             [3]int{c.pos.X, c.pos.Y, c.pos.Z},
		Encoding:        "RLE",
		Blocks:          simenc.EncodeBlocks(c.Blocks[:]),
		LightVersion:    c.LightVersion(),
	}
	lb := c.LightBytes()
	for i, g := range lb {
		msg.Light[i] = simenc.EncodeLight(g)
	}
	return msg
}

// broadcastLight drains the settled-chunk set and fans LIGHT messages
// out to every session subscribed to each chunk.
func (w *World) broadcastLight() {
	dirty := w.store.DrainDirtyLight()
	if len(dirty) == 0 || len(w.clients) == 0 {
		return
	}
	for pos, v := range dirty {
		b, _ := json.Marshal(protocol.LightMsg{
			Type:            protocol.TypeLight,
			ProtocolVersion: protocol.Version,
			Pos:             [3]int{pos.X, pos.Y, pos.Z},
			LightVersion:    v,
		})
		for _, c := range w.clients {
			if _, ok := c.Subs[pos]; ok {
				sendLatest(c.Out, b)
			}
		}
	}
}

// Preload stages every chunk within radius of the origin column, then
// relights the lot on a worker pool. Returns how many chunks were
// generated. Call before the loop starts.
func (w *World) Preload(radius, workers int) int {
	count := 0
	for cy := 0; cy < w.cfg.HeightChunks; cy++ {
		for cz := -radius; cz <= radius; cz++ {
			for cx := -radius; cx <= radius; cx++ {
				pos := light.ChunkPos{X: cx, Y: cy, Z: cz}
				if w.store.At(pos) == nil {
					w.store.Materialize(pos)
					count++
				}
			}
		}
	}
	if count == 0 {
		return 0
	}

	start := time.Now()
	before := w.store.DirtyCount()
	w.store.RelightAll(workers)
	if w.relightLogger != nil {
		_ = w.relightLogger.WriteRelight(RelightEntry{
			Tick:          w.tick.Load(),
			Channels:      allChannelsMask,
			ChunksTouched: w.store.DirtyCount() - before,
			DurationUS:    time.Since(start).Microseconds(),
			Cause:         "bulk",
		})
	}
	return count
}

// ExportSnapshot captures the whole world. Call from the loop goroutine
// or after the loop has stopped.
func (w *World) ExportSnapshot() snapshot.SnapshotV1 {
	tick := w.tick.Load()
	snap := snapshot.SnapshotV1{
		Header:        snapshot.Header{Version: 1, WorldID: w.cfg.WorldID, Tick: tick},
		Seed:          w.cfg.Seed,
		TickRate:      w.cfg.TickRateHz,
		HeightChunks:  w.cfg.HeightChunks,
		SeaLevel:      w.cfg.SeaLevel,
		ViewRadius:    w.cfg.ViewRadius,
		PaletteDigest: w.blocks.PaletteDigest,
	}
	for _, c := range w.store.Loaded() {
		sc := snapshot.ChunkV1{
			X: c.pos.X, Y: c.pos.Y, Z: c.pos.Z,
			Blocks:       simenc.EncodeBlocks(c.Blocks[:]),
			LightVersion: c.LightVersion(),
			NonAir:       c.NonAirCells(),
		}
		lb := c.LightBytes()
		for i, g := range lb {
			sc.Light[i] = simenc.EncodeLight(g)
		}
		snap.Chunks = append(snap.Chunks, sc)
	}
	return snap
}

// ImportSnapshot rebuilds world state from a snapshot into an empty
// store. Light grids come from the snapshot verbatim; nothing reseeds.
func (w *World) ImportSnapshot(snap snapshot.SnapshotV1) error {
	if snap.PaletteDigest != "" && snap.PaletteDigest != w.blocks.PaletteDigest {
		return fmt.Errorf("snapshot palette digest %s does not match registry %s",
			snap.PaletteDigest, w.blocks.PaletteDigest)
	}
	for _, sc := range snap.Chunks {
		blocks, err := simenc.DecodeBlocks(sc.Blocks, chunkCells)
		if err != nil {
			return fmt.Errorf("chunk (%d,%d,%d) blocks: %w", sc.X, sc.Y, sc.Z, err)
		}
		var grids [light.NumChannels][]byte
		for i, enc := range sc.Light {
			g, err := simenc.DecodeLight(enc, chunkCells)
			if err != nil {
				return fmt.Errorf("chunk (%d,%d,%d) light %s: %w", sc.X, sc.Y, sc.Z, light.Channel(i), err)
			}
			grids[i] = g
		}
		pos := light.ChunkPos{X: sc.X, Y: sc.Y, Z: sc.Z}
		if err := w.store.InsertRestored(pos, blocks, grids, sc.LightVersion); err != nil {
			return err
		}
	}
	w.tick.Store(snap.Header.Tick)
	return nil
}

// BlockAt reads a block by world position; unloaded chunks read as AIR.
func (w *World) BlockAt(pos Vec3i) uint16 {
	cp, lv := pos.Split()
	c := w.store.At(cp)
	if c == nil {
		return block.Air
	}
	return c.Get(lv)
}

// LightAt reads one channel's intensity at a world position.
func (w *World) LightAt(ch light.Channel, pos Vec3i) uint8 {
	cp, lv := pos.Split()
	c := w.store.At(cp)
	if c == nil {
		return 0
	}
	return c.Grid(ch).At(int(lv.X), int(lv.Y), int(lv.Z))
}

func (w *World) stateDigest(nowTick uint64) string {
	h := sha256.New()
	var tmp [8]byte
	binary.LittleEndian.PutUint64(tmp[:], nowTick)
	h.Write(tmp[:])
	binary.LittleEndian.PutUint64(tmp[:], uint64(w.cfg.Seed))
	h.Write(tmp[:])

	for _, c := range w.store.Loaded() {
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(c.pos.X)))
		h.Write(tmp[:])
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(c.pos.Y)))
		h.Write(tmp[:])
		binary.LittleEndian.PutUint64(tmp[:], uint64(int64(c.pos.Z)))
		h.Write(tmp[:])
		d := c.Digest()
		h.Write(d[:])
		for _, ch := range light.Channels() {
			h.Write(c.grids[ch].Bytes())
		}
	}
	return hex.EncodeToString(h.Sum(nil))
}
