package tuning

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
)

func TestLoad_EmptyPathGivesDefaults(t *testing.T) {
	got, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.ProtocolVersion != "1.0" {
		t.Fatalf("protocol_version = %q", got.ProtocolVersion)
	}
	if got.TickRateHz != 10 || got.TickIntervalMs() != 100 {
		t.Fatalf("tick rate = %d (%dms)", got.TickRateHz, got.TickIntervalMs())
	}
	if err := got.Validate(); err != nil {
		t.Fatalf("defaults do not validate: %v", err)
	}
}

func TestLoad_FileOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "tuning.yaml")
	body := `
tick_rate_hz: 20
world:
  height_chunks: 8
  sea_level: 100
limits:
  edits_per_tick: 4
`
	if err := os.WriteFile(path, []byte(body), 0o644); err != nil {
		t.Fatalf("write tuning.yaml: %v", err)
	}

	got, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if got.TickRateHz != 20 {
		t.Fatalf("tick_rate_hz = %d, want 20", got.TickRateHz)
	}
	if got.World.HeightChunks != 8 || got.World.SeaLevel != 100 {
		t.Fatalf("world overrides lost: %+v", got.World)
	}
	if got.Limits.EditsPerTick != 4 {
		t.Fatalf("limits.edits_per_tick = %d, want 4", got.Limits.EditsPerTick)
	}
	// Untouched fields keep their defaults.
	if got.World.ViewRadius != 2 || got.Limits.ChunksPerTick != 16 {
		t.Fatalf("defaults clobbered: %+v %+v", got.World, got.Limits)
	}
}

func TestRelightPoolSize(t *testing.T) {
	var tn Tuning
	tn.Limits.RelightWorkers = 3
	if got := tn.RelightPoolSize(); got != 3 {
		t.Fatalf("pool size = %d, want 3", got)
	}
	tn.Limits.RelightWorkers = 0
	if got := tn.RelightPoolSize(); got < 1 {
		t.Fatalf("default pool size = %d, want >= 1", got)
	}
}

func TestLoad_RejectsBadValues(t *testing.T) {
	cases := []struct {
		name string
		body string
		want string
	}{
		{"zero tick rate", "tick_rate_hz: 0", "tick_rate_hz"},
		{"sea level above world", "world:\n  sea_level: 500", "sea_level"},
		{"negative torch density", "world:\n  torch_density: -0.5", "torch_density"},
		{"negative workers", "limits:\n  relight_workers: -1", "relight_workers"},
		{"unknown key", "tick_rate_hz: 10\nshiny: true", "shiny"},
		{"not yaml", "{{{", "tuning.yaml"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			path := filepath.Join(t.TempDir(), "tuning.yaml")
			if err := os.WriteFile(path, []byte(tc.body), 0o644); err != nil {
				t.Fatalf("write: %v", err)
			}
			_, err := Load(path)
			if err == nil {
				t.Fatalf("accepted %s", tc.name)
			}
			if !strings.Contains(err.Error(), tc.want) {
				t.Fatalf("error %q does not mention %q", err, tc.want)
			}
		})
	}
}
