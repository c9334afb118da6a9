package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"net"
	"net/http"
	"net/http/pprof"
	"os"
	"os/signal"
	"path/filepath"
	"strconv"
	"strings"
	"syscall"
	"time"

	persistlog "voxlight.dev/internal/persistence/log"
	"voxlight.dev/internal/persistence/snapshot"
	"voxlight.dev/internal/protocol"
	"voxlight.dev/internal/sim/block"
	"voxlight.dev/internal/sim/tuning"
	"voxlight.dev/internal/sim/world"
	"voxlight.dev/internal/transport/ws"
)

func main() {
	var (
		addr       = flag.String("addr", ":8080", "http listen address")
		worldID    = flag.String("world", "world_1", "world id")
		seed       = flag.Int64("seed", 0, "world seed override (0 keeps the tuning seed; ignored on snapshot resume)")
		configDir  = flag.String("configs", "./configs", "config directory (blocks.json, tuning.yaml)")
		schemaDir  = flag.String("schemas", "./schemas", "message schema directory")
		dataDir    = flag.String("data", "./data", "runtime data directory")
		tuningPath = flag.String("tuning", "", "path to tuning.yaml (default: <configs>/tuning.yaml)")
		disableDB  = flag.Bool("disable_db", false, "disable the sqlite read-model index")

		radius     = flag.Int("radius", -1, "pregenerate chunks within this radius of the origin (-1 to skip)")
		snapPath   = flag.String("snapshot", "", "path to snapshot to load (optional)")
		loadLatest = flag.Bool("load_latest_snapshot", true, "load latest snapshot from data dir if present (when -snapshot is empty)")
	)
	flag.Parse()

	logger := log.New(os.Stdout, "[server] ", log.LstdFlags|log.Lmicroseconds)

	reg, err := block.Load(*configDir)
	if err != nil {
		logger.Fatalf("load blocks: %v", err)
	}

	worldDir := filepath.Join(*dataDir, "worlds", *worldID)
	_ = os.MkdirAll(worldDir, 0o755)

	tp := strings.TrimSpace(*tuningPath)
	if tp == "" {
		tp = filepath.Join(*configDir, "tuning.yaml")
	}

	snapshotToLoad := strings.TrimSpace(*snapPath)
	if snapshotToLoad == "" && *loadLatest {
		snapshotToLoad = latestSnapshot(filepath.Join(worldDir, "snapshots"))
	}

	// Load tuning (required for fresh worlds; snapshot resumes carry their
	// own world parameters and may run on defaults).
	tune, tuneErr := tuning.Load(tp)
	if tuneErr != nil {
		if snapshotToLoad == "" {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
		if os.IsNotExist(tuneErr) {
			logger.Printf("tuning not found (%s); using defaults", tp)
			tune = tuning.Defaults()
		} else {
			logger.Fatalf("load tuning: %v", tuneErr)
		}
	}
	if tune.ProtocolVersion != protocol.Version {
		logger.Fatalf("tuning protocol_version %q does not match server %q", tune.ProtocolVersion, protocol.Version)
	}

	schemas, err := protocol.CompileSchemas(*schemaDir)
	if err != nil {
		logger.Fatalf("compile schemas: %v", err)
	}

	// Optional: read-model index backend (does not affect sim determinism).
	idx, err := openRuntimeIndex(worldDir, tune, *disableDB)
	if err != nil {
		logger.Fatalf("open index backend: %v", err)
	}
	if idx != nil {
		defer idx.Close()
		if err := idx.UpsertCatalogs(*configDir, reg, tune); err != nil {
			logger.Printf("index backend: upsert catalogs: %v", err)
		}
	}

	// Create world (fresh or resumed from snapshot).
	var w *world.World
	if snapshotToLoad != "" {
		snap, err := snapshot.ReadSnapshot(snapshotToLoad)
		if err != nil {
			logger.Fatalf("read snapshot: %v", err)
		}
		if snap.Header.WorldID != "" && snap.Header.WorldID != *worldID {
			logger.Fatalf("snapshot world id mismatch: flag=%s snap=%s", *worldID, snap.Header.WorldID)
		}
		w, err = world.New(world.Config{
			WorldID:            *worldID,
			TickRateHz:         snap.TickRate,
			Seed:               snap.Seed,
			HeightChunks:       snap.HeightChunks,
			ViewRadius:         snap.ViewRadius,
			SeaLevel:           snap.SeaLevel,
			MaxLoaded:          tune.World.MaxLoaded,
			TerrainScale:       tune.World.TerrainScale,
			TorchDensity:       tune.World.TorchDensity,
			EditsPerTick:       tune.Limits.EditsPerTick,
			ChunksPerTick:      tune.Limits.ChunksPerTick,
			PendingEdits:       tune.Limits.PendingEdits,
			SnapshotEveryTicks: tune.SnapshotEveryTicks,
		}, reg)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		if err := w.ImportSnapshot(snap); err != nil {
			logger.Fatalf("import snapshot: %v", err)
		}
		logger.Printf("resumed from snapshot=%s tick=%d chunks=%d",
			filepath.Base(snapshotToLoad), w.CurrentTick(), w.Store().Count())
	} else {
		worldSeed := tune.Seed
		if *seed != 0 {
			worldSeed = *seed
		}
		w, err = world.New(world.Config{
			WorldID:            *worldID,
			TickRateHz:         tune.TickRateHz,
			Seed:               worldSeed,
			HeightChunks:       tune.World.HeightChunks,
			ViewRadius:         tune.World.ViewRadius,
			SeaLevel:           tune.World.SeaLevel,
			MaxLoaded:          tune.World.MaxLoaded,
			TerrainScale:       tune.World.TerrainScale,
			TorchDensity:       tune.World.TorchDensity,
			EditsPerTick:       tune.Limits.EditsPerTick,
			ChunksPerTick:      tune.Limits.ChunksPerTick,
			PendingEdits:       tune.Limits.PendingEdits,
			SnapshotEveryTicks: tune.SnapshotEveryTicks,
		}, reg)
		if err != nil {
			logger.Fatalf("world: %v", err)
		}
		if *radius >= 0 {
			start := time.Now()
			n := w.Preload(*radius, tune.RelightPoolSize())
			logger.Printf("preloaded %d chunks (radius=%d) in %s", n, *radius, time.Since(start).Round(time.Millisecond))
		}
	}

	ctx, cancel := signalContext()
	defer cancel()

	eventsDir := resolvePath(worldDir, tune.Paths.EventsDir)
	var editLog *persistlog.EditLogger
	var relightLog *persistlog.RelightLogger
	if eventsDir != "" {
		editLog = persistlog.NewEditLogger(eventsDir)
		relightLog = persistlog.NewRelightLogger(eventsDir)
		defer editLog.Close()
		defer relightLog.Close()
	}
	w.SetEditLogger(multiEditLogger{a: editLog, b: idx})
	w.SetRelightLogger(multiRelightLogger{a: relightLog, b: idx})

	// Snapshot writer. The loop hands finished snapshots over a small
	// channel so disk and index writes never stall a tick.
	snapDir := resolvePath(worldDir, tune.Paths.SnapshotDir)
	if snapDir != "" {
		snapCh := make(chan snapshot.SnapshotV1, 2)
		w.SetSnapshotSink(snapCh)
		go func() {
			for {
				select {
				case <-ctx.Done():
					return
				case snap := <-snapCh:
					path := filepath.Join(snapDir, fmt.Sprintf("%d.snap.zst", snap.Header.Tick))
					if err := snapshot.WriteSnapshot(path, snap); err != nil {
						logger.Printf("snapshot write: %v", err)
						continue
					}
					if idx != nil {
						idx.RecordSnapshot(path, snap)
					}
				}
			}
		}()
	}

	worldDone := make(chan struct{})
	go func() {
		defer close(worldDone)
		if err := w.Run(ctx); err != nil && err != context.Canceled {
			logger.Printf("world stopped: %v", err)
		}
	}()

	mux := http.NewServeMux()
	mux.HandleFunc("/healthz", func(rw http.ResponseWriter, r *http.Request) {
		rw.WriteHeader(200)
		_, _ = rw.Write([]byte("ok"))
	})
	mux.HandleFunc("/metrics", func(rw http.ResponseWriter, r *http.Request) {
		rw.Header().Set("Content-Type", "text/plain; version=0.0.4")

		m := w.Metrics()
		tick := w.CurrentTick()
		if m.Tick != 0 {
			tick = m.Tick
		}

		// Minimal Prometheus exposition format.
		fmt.Fprintf(rw, "# HELP voxlight_world_tick Current world tick.\n")
		fmt.Fprintf(rw, "# TYPE voxlight_world_tick gauge\n")
		fmt.Fprintf(rw, "voxlight_world_tick{world=%q} %d\n", *worldID, tick)

		fmt.Fprintf(rw, "# HELP voxlight_world_clients Current number of connected sessions.\n")
		fmt.Fprintf(rw, "# TYPE voxlight_world_clients gauge\n")
		fmt.Fprintf(rw, "voxlight_world_clients{world=%q} %d\n", *worldID, m.Clients)

		fmt.Fprintf(rw, "# HELP voxlight_world_loaded_chunks Loaded chunk count.\n")
		fmt.Fprintf(rw, "# TYPE voxlight_world_loaded_chunks gauge\n")
		fmt.Fprintf(rw, "voxlight_world_loaded_chunks{world=%q} %d\n", *worldID, m.LoadedChunks)

		fmt.Fprintf(rw, "# HELP voxlight_world_pending_light Chunks waiting for a light broadcast.\n")
		fmt.Fprintf(rw, "# TYPE voxlight_world_pending_light gauge\n")
		fmt.Fprintf(rw, "voxlight_world_pending_light{world=%q} %d\n", *worldID, m.PendingLight)

		fmt.Fprintf(rw, "# HELP voxlight_world_queue_depth Channel backlog depth.\n")
		fmt.Fprintf(rw, "# TYPE voxlight_world_queue_depth gauge\n")
		fmt.Fprintf(rw, "voxlight_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "edits", m.QueueDepths.Edits)
		fmt.Fprintf(rw, "voxlight_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "chunk_reqs", m.QueueDepths.ChunkReqs)
		fmt.Fprintf(rw, "voxlight_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "join", m.QueueDepths.Join)
		fmt.Fprintf(rw, "voxlight_world_queue_depth{world=%q,queue=%q} %d\n", *worldID, "leave", m.QueueDepths.Leave)

		fmt.Fprintf(rw, "# HELP voxlight_world_step_ms Last tick step duration in milliseconds.\n")
		fmt.Fprintf(rw, "# TYPE voxlight_world_step_ms gauge\n")
		fmt.Fprintf(rw, "voxlight_world_step_ms{world=%q} %.3f\n", *worldID, m.StepMS)
	})

	if envBool("VL_ENABLE_ADMIN_HTTP", true) {
		// Local-only admin endpoints (do not affect simulation determinism).
		mux.HandleFunc("/admin/v1/state", func(rw http.ResponseWriter, r *http.Request) {
			if !isLoopbackRemote(r.RemoteAddr) {
				http.Error(rw, "forbidden", http.StatusForbidden)
				return
			}
			rw.Header().Set("Content-Type", "application/json")
			resp := struct {
				WorldID string        `json:"world_id"`
				Tick    uint64        `json:"tick"`
				Metrics world.Metrics `json:"metrics"`
			}{
				WorldID: *worldID,
				Tick:    w.CurrentTick(),
				Metrics: w.Metrics(),
			}
			_ = json.NewEncoder(rw).Encode(resp)
		})
	} else {
		logger.Printf("admin endpoints disabled (VL_ENABLE_ADMIN_HTTP=false)")
	}
	if envBool("VL_ENABLE_PPROF_HTTP", false) {
		mux.HandleFunc("/debug/pprof/", pprof.Index)
		mux.HandleFunc("/debug/pprof/cmdline", pprof.Cmdline)
		mux.HandleFunc("/debug/pprof/profile", pprof.Profile)
		mux.HandleFunc("/debug/pprof/symbol", pprof.Symbol)
		mux.HandleFunc("/debug/pprof/trace", pprof.Trace)
	}
	mux.HandleFunc("/v1/ws", ws.NewServer(w, schemas, logger).Handler())

	srv := &http.Server{
		Addr:              *addr,
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
	}

	go func() {
		<-ctx.Done()
		ctx2, cancel2 := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel2()
		_ = srv.Shutdown(ctx2)
	}()

	logger.Printf("listening on %s (world=%s chunks=%d)", *addr, *worldID, w.Store().Count())
	if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		logger.Fatalf("ListenAndServe: %v", err)
	}

	// Wait for the loop to finish its tick, then persist the final state.
	<-worldDone
	if snapDir != "" {
		final := w.ExportSnapshot()
		path := filepath.Join(snapDir, fmt.Sprintf("%d.snap.zst", final.Header.Tick))
		if err := snapshot.WriteSnapshot(path, final); err != nil {
			logger.Printf("final snapshot: %v", err)
		} else {
			if idx != nil {
				idx.RecordSnapshot(path, final)
			}
			logger.Printf("final snapshot written: %s", filepath.Base(path))
		}
	}
}

func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())
	ch := make(chan os.Signal, 2)
	signal.Notify(ch, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-ch
		cancel()
	}()
	return ctx, cancel
}

// latestSnapshot scans a snapshot directory for the highest-tick
// "<tick>.snap.zst" entry.
func latestSnapshot(dir string) string {
	ents, err := os.ReadDir(dir)
	if err != nil {
		return ""
	}
	var best string
	var bestTick uint64
	for _, e := range ents {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		if !strings.HasSuffix(name, ".snap.zst") {
			continue
		}
		base := strings.TrimSuffix(name, ".snap.zst")
		tick, err := strconv.ParseUint(base, 10, 64)
		if err != nil {
			continue
		}
		if best == "" || tick > bestTick {
			bestTick = tick
			best = filepath.Join(dir, name)
		}
	}
	return best
}

// resolvePath anchors relative tuning paths at the world data directory.
// Empty stays empty: the sink is disabled.
func resolvePath(worldDir, p string) string {
	if strings.TrimSpace(p) == "" {
		return ""
	}
	if filepath.IsAbs(p) {
		return p
	}
	return filepath.Join(worldDir, p)
}

func isLoopbackRemote(remoteAddr string) bool {
	host := remoteAddr
	if h, _, err := net.SplitHostPort(remoteAddr); err == nil {
		host = h
	}
	host = strings.TrimPrefix(host, "[")
	host = strings.TrimSuffix(host, "]")
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func envBool(key string, def bool) bool {
	v := strings.TrimSpace(os.Getenv(key))
	if v == "" {
		return def
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return def
	}
	return b
}

type multiEditLogger struct {
	a *persistlog.EditLogger
	b runtimeIndex
}

func (m multiEditLogger) WriteEdit(entry world.EditEntry) error {
	if m.a != nil {
		_ = m.a.WriteEdit(entry)
	}
	if m.b != nil {
		_ = m.b.WriteEdit(entry)
	}
	return nil
}

type multiRelightLogger struct {
	a *persistlog.RelightLogger
	b runtimeIndex
}

func (m multiRelightLogger) WriteRelight(entry world.RelightEntry) error {
	if m.a != nil {
		_ = m.a.WriteRelight(entry)
	}
	if m.b != nil {
		_ = m.b.WriteRelight(entry)
	}
	return nil
}
