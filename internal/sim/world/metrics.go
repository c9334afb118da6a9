package world

// Metrics is a read-only view of the world loop's runtime signals. It is
// stored from the loop goroutine at the end of every step and read from
// HTTP handlers and tests without locking.
type Metrics struct {
	Tick uint64 `json:"tick"`

	Clients      int `json:"clients"`
	LoadedChunks int `json:"loaded_chunks"`

	// PendingLight is how many chunks settled light since the last
	// broadcast drain.
	PendingLight int `json:"pending_light"`

	QueueDepths QueueDepths `json:"queue_depths"`

	StepMS float64 `json:"step_ms"`
}

type QueueDepths struct {
	Edits     int `json:"edits"`
	ChunkReqs int `json:"chunk_reqs"`
	Join      int `json:"join"`
	Leave     int `json:"leave"`
}

func (w *World) Metrics() Metrics {
	if w == nil {
		return Metrics{}
	}
	v, ok := w.metrics.Load().(Metrics)
	if !ok {
		return Metrics{}
	}
	return v
}

func (w *World) storeMetrics(nextTick uint64, stepMS float64) {
	w.metrics.Store(Metrics{
		Tick:         nextTick,
		Clients:      len(w.clients),
		LoadedChunks: w.store.Count(),
		PendingLight: w.store.DirtyCount(),
		QueueDepths: QueueDepths{
			Edits:     len(w.edits),
			ChunkReqs: len(w.chunkReqs),
			Join:      len(w.join),
			Leave:     len(w.leave),
		},
		StepMS: stepMS,
	})
}
