package tuning

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"runtime"
	"strings"

	"gopkg.in/yaml.v3"
)

// Tuning is the server's runtime configuration. Absent fields keep their
// defaults, so a minimal tuning.yaml only overrides what it cares about.
type Tuning struct {
	ProtocolVersion string `yaml:"protocol_version"`

	TickRateHz         int   `yaml:"tick_rate_hz"`
	Seed               int64 `yaml:"seed"`
	SnapshotEveryTicks int   `yaml:"snapshot_every_ticks"`

	World  World  `yaml:"world"`
	Limits Limits `yaml:"limits"`
	Paths  Paths  `yaml:"paths"`
}

// World shapes generation and chunk residency.
type World struct {
	// HeightChunks is the world height in chunks. Sunlight enters through
	// the top layer.
	HeightChunks int `yaml:"height_chunks"`
	// ViewRadius is how many chunks around a subscription get streamed.
	ViewRadius int `yaml:"view_radius"`
	// MaxLoaded caps resident chunks before the store starts evicting.
	MaxLoaded int `yaml:"max_loaded"`
	// SeaLevel is the terrain midline in voxels from world bottom.
	SeaLevel int `yaml:"sea_level"`
	// TerrainScale is the noise frequency; smaller stretches terrain.
	TerrainScale float64 `yaml:"terrain_scale"`
	// TorchDensity is the chance a surface voxel grows a light source.
	TorchDensity float64 `yaml:"torch_density"`
}

// Limits bounds per-tick work. RelightWorkers 0 means one per CPU.
type Limits struct {
	EditsPerTick   int `yaml:"edits_per_tick"`
	ChunksPerTick  int `yaml:"chunks_per_tick"`
	RelightWorkers int `yaml:"relight_workers"`
	PendingEdits   int `yaml:"pending_edits"`
}

// Paths locates persistence outputs. Relative entries resolve against
// the world's data directory; empty strings disable a sink.
type Paths struct {
	SnapshotDir string `yaml:"snapshot_dir"`
	EventsDir   string `yaml:"events_dir"`
	IndexDB     string `yaml:"index_db"`
}

// Defaults returns the built-in tuning.
func Defaults() Tuning {
	return Tuning{
		ProtocolVersion:    "1.0",
		TickRateHz:         10,
		Seed:               1337,
		SnapshotEveryTicks: 3000,
		World: World{
			HeightChunks: 4,
			ViewRadius:   2,
			MaxLoaded:    1024,
			SeaLevel:     40,
			TerrainScale: 0.013,
			TorchDensity: 0.002,
		},
		Limits: Limits{
			EditsPerTick:   32,
			ChunksPerTick:  16,
			RelightWorkers: 0,
			PendingEdits:   1024,
		},
		Paths: Paths{
			SnapshotDir: "snapshots",
			EventsDir:   "events",
			IndexDB:     "index/world.sqlite",
		},
	}
}

// Load reads tuning from path. An empty path returns the defaults.
func Load(path string) (Tuning, error) {
	t := Defaults()
	if strings.TrimSpace(path) == "" {
		return t, nil
	}
	raw, err := os.ReadFile(path)
	if err != nil {
		return t, err
	}
	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)
	if err := dec.Decode(&t); err != nil && err != io.EOF {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	if err := t.Validate(); err != nil {
		return t, fmt.Errorf("tuning.yaml: %w", err)
	}
	return t, nil
}

func (t Tuning) Validate() error {
	if strings.TrimSpace(t.ProtocolVersion) == "" {
		return fmt.Errorf("protocol_version must not be empty")
	}
	if t.TickRateHz < 1 || t.TickRateHz > 1000 {
		return fmt.Errorf("tick_rate_hz must be in [1, 1000]")
	}
	if t.SnapshotEveryTicks < 0 {
		return fmt.Errorf("snapshot_every_ticks must be >= 0")
	}
	if t.World.HeightChunks < 1 {
		return fmt.Errorf("world.height_chunks must be >= 1")
	}
	if t.World.ViewRadius < 0 {
		return fmt.Errorf("world.view_radius must be >= 0")
	}
	if t.World.MaxLoaded < 1 {
		return fmt.Errorf("world.max_loaded must be >= 1")
	}
	if t.World.SeaLevel < 0 || t.World.SeaLevel >= t.World.HeightChunks*32 {
		return fmt.Errorf("world.sea_level must be in [0, height_chunks*32)")
	}
	if t.World.TerrainScale <= 0 {
		return fmt.Errorf("world.terrain_scale must be > 0")
	}
	if t.World.TorchDensity < 0 || t.World.TorchDensity > 1 {
		return fmt.Errorf("world.torch_density must be in [0, 1]")
	}
	if t.Limits.EditsPerTick < 1 {
		return fmt.Errorf("limits.edits_per_tick must be >= 1")
	}
	if t.Limits.ChunksPerTick < 1 {
		return fmt.Errorf("limits.chunks_per_tick must be >= 1")
	}
	if t.Limits.RelightWorkers < 0 {
		return fmt.Errorf("limits.relight_workers must be >= 0")
	}
	if t.Limits.PendingEdits < 1 {
		return fmt.Errorf("limits.pending_edits must be >= 1")
	}
	return nil
}

// TickIntervalMs returns the tick period implied by TickRateHz in
// milliseconds.
func (t Tuning) TickIntervalMs() int { return 1000 / t.TickRateHz }

// RelightPoolSize resolves the relight worker count, defaulting to one
// worker per CPU.
func (t Tuning) RelightPoolSize() int {
	if t.Limits.RelightWorkers > 0 {
		return t.Limits.RelightWorkers
	}
	return runtime.NumCPU()
}
