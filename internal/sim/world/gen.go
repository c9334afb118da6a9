package world

import (
	"fmt"

	opensimplex "github.com/ojrac/opensimplex-go"

	"voxlight.dev/internal/sim/block"
	"voxlight.dev/internal/sim/light"
)

// TerrainGen fills chunks from layered simplex noise. Everything is
// derived from (seed, position), so a regenerated chunk always matches
// the one that was evicted.
type TerrainGen struct {
	noise        opensimplex.Noise32
	seed         int64
	seaLevel     int
	scale        float32
	torchDensity float64

	stone, dirt, grass, sand uint16
	water, glowstone, torch  uint16
}

func NewTerrainGen(reg *block.Registry, seed int64, seaLevel int, scale, torchDensity float64) (*TerrainGen, error) {
	g := &TerrainGen{
		noise:        opensimplex.New32(seed),
		seed:         seed,
		seaLevel:     seaLevel,
		scale:        float32(scale),
		torchDensity: torchDensity,
	}
	for _, want := range []struct {
		name string
		id   *uint16
	}{
		{"STONE", &g.stone},
		{"DIRT", &g.dirt},
		{"GRASS", &g.grass},
		{"SAND", &g.sand},
		{"WATER", &g.water},
		{"GLOWSTONE", &g.glowstone},
		{"TORCH", &g.torch},
	} {
		id, ok := reg.IDOf(want.name)
		if !ok {
			return nil, fmt.Errorf("blocks.json: terrain generator needs %s", want.name)
		}
		*want.id = id
	}
	return g, nil
}

// height returns the terrain surface height at a world column.
func (g *TerrainGen) height(wx, wz int) int {
	x := float32(wx) * g.scale
	z := float32(wz) * g.scale
	var sum, amp, freq float32 = 0, 1, 1
	for o := 0; o < 4; o++ {
		sum += amp * g.noise.Eval2(x*freq, z*freq)
		amp *= 0.5
		freq *= 2
	}
	return g.seaLevel + 2 + int(sum*10)
}

// Generate implements Gen.
func (g *TerrainGen) Generate(pos light.ChunkPos, blocks *[chunkCells]uint16) {
	baseX := pos.X * light.Edge
	baseY := pos.Y * light.Edge
	baseZ := pos.Z * light.Edge

	for z := 0; z < light.Edge; z++ {
		for x := 0; x < light.Edge; x++ {
			wx, wz := baseX+x, baseZ+z
			h := g.height(wx, wz)
			for y := 0; y < light.Edge; y++ {
				wy := baseY + y
				blocks[light.CellIndex(x, y, z)] = g.blockFor(wx, wy, wz, h)
			}
		}
	}
}

func (g *TerrainGen) blockFor(wx, wy, wz, h int) uint16 {
	switch {
	case wy > h:
		if wy <= g.seaLevel {
			return g.water
		}
		if wy == h+1 && h > g.seaLevel && g.torchDensity > 0 {
			if float64(hash3(g.seed, wx, wy, wz)%1_000_000) < g.torchDensity*1_000_000 {
				return g.torch
			}
		}
		return block.Air
	case wy == h:
		if h <= g.seaLevel+1 {
			return g.sand
		}
		return g.grass
	case wy >= h-3:
		return g.dirt
	default:
		// Buried glowstone pockets keep the deep stone from being
		// uniformly dark, which exercises relight passes.
		if wy < h-16 && hash3(g.seed, wx, wy, wz)%4096 == 0 {
			return g.glowstone
		}
		return g.stone
	}
}
