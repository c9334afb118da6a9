package world

import (
	"context"
	"time"

	"voxlight.dev/internal/sim/light"
)

func (w *World) Run(ctx context.Context) error {
	interval := time.Second / time.Duration(w.cfg.TickRateHz)
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	var pendingJoins []JoinRequest
	var pendingLeaves []string

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-w.stop:
			return nil
		case req := <-w.join:
			pendingJoins = append(pendingJoins, req)
		case id := <-w.leave:
			pendingLeaves = append(pendingLeaves, id)
		case <-ticker.C:
			w.step(pendingJoins, pendingLeaves)
			pendingJoins = pendingJoins[:0]
			pendingLeaves = pendingLeaves[:0]
		}
	}
}

func (w *World) Stop() { close(w.stop) }

// step runs one tick: joins and leaves first, then the edit and chunk
// budgets, then the light broadcast and the snapshot cadence. Requests
// past a budget stay queued in their channel for the next tick.
func (w *World) step(joins []JoinRequest, leaves []string) {
	start := time.Now()
	t := w.tick.Load()

	for _, req := range joins {
		w.handleJoin(req)
	}
	for _, id := range leaves {
		w.handleLeave(id)
	}

edits:
	for n := 0; n < w.cfg.EditsPerTick; n++ {
		select {
		case req := <-w.edits:
			w.applyEdit(t, req)
		default:
			break edits
		}
	}

chunks:
	for n := 0; n < w.cfg.ChunksPerTick; n++ {
		select {
		case req := <-w.chunkReqs:
			w.handleChunkReq(t, req)
		default:
			break chunks
		}
	}

	w.broadcastLight()

	if w.snapshotSink != nil && w.cfg.SnapshotEveryTicks > 0 && t > 0 && t%uint64(w.cfg.SnapshotEveryTicks) == 0 {
		select {
		case w.snapshotSink <- w.ExportSnapshot():
		default:
		}
	}

	if w.cfg.MaxLoaded > 0 && t%64 == 0 {
		w.store.EvictExcess(w.subscribedKeep())
	}

	next := w.tick.Add(1)
	w.storeMetrics(next, float64(time.Since(start).Microseconds())/1000.0)
}

func (w *World) subscribedKeep() func(light.ChunkPos) bool {
	subs := map[light.ChunkPos]struct{}{}
	for _, c := range w.clients {
		for pos := range c.Subs {
			subs[pos] = struct{}{}
		}
	}
	return func(pos light.ChunkPos) bool {
		_, ok := subs[pos]
		return ok
	}
}

// StepOnce advances the world by a single tick using the same ordering
// semantics as the server. It is primarily intended for deterministic
// replays/tests.
func (w *World) StepOnce(joins []JoinRequest, leaves []string) (tick uint64, digest string) {
	tick = w.tick.Load()
	w.step(joins, leaves)
	return tick, w.stateDigest(tick)
}

func sendLatest(ch chan []byte, b []byte) {
	select {
	case ch <- b:
		return
	default:
	}
	// Drop one.
	select {
	case <-ch:
	default:
	}
	select {
	case ch <- b:
	default:
	}
}
