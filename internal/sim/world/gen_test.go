package world

import (
	"testing"

	"voxlight.dev/internal/sim/block"
	"voxlight.dev/internal/sim/light"
)

func TestGen_Deterministic(t *testing.T) {
	reg := testRegistry(t)
	g1, err := NewTerrainGen(reg, 42, 20, 0.05, 0.01)
	if err != nil {
		t.Fatalf("NewTerrainGen: %v", err)
	}
	g2, _ := NewTerrainGen(reg, 42, 20, 0.05, 0.01)
	g3, _ := NewTerrainGen(reg, 43, 20, 0.05, 0.01)

	pos := light.ChunkPos{X: 3, Y: 0, Z: -2}
	var a, b, c, again [chunkCells]uint16
	g1.Generate(pos, &a)
	g2.Generate(pos, &b)
	g3.Generate(pos, &c)
	g1.Generate(pos, &again)

	if a != b {
		t.Fatalf("same seed produced different chunks")
	}
	if a != again {
		t.Fatalf("generator is not pure")
	}
	if a == c {
		t.Fatalf("different seeds produced identical chunks")
	}
}

func TestGen_ColumnStructure(t *testing.T) {
	reg := testRegistry(t)
	g, err := NewTerrainGen(reg, 7, 20, 0.05, 0)
	if err != nil {
		t.Fatalf("NewTerrainGen: %v", err)
	}

	var lower, upper [chunkCells]uint16
	g.Generate(light.ChunkPos{}, &lower)
	g.Generate(light.ChunkPos{Y: 1}, &upper)
	at := func(x, wy, z int) uint16 {
		if wy < light.Edge {
			return lower[light.CellIndex(x, wy, z)]
		}
		return upper[light.CellIndex(x, wy-light.Edge, z)]
	}

	grass := blockID(t, reg, "GRASS")
	sand := blockID(t, reg, "SAND")
	dirt := blockID(t, reg, "DIRT")
	stone := blockID(t, reg, "STONE")
	water := blockID(t, reg, "WATER")

	for z := 0; z < light.Edge; z++ {
		for x := 0; x < light.Edge; x++ {
			h := g.height(x, z)
			if h < 1 || h > 62 {
				t.Fatalf("column (%d,%d): height %d out of band", x, z, h)
			}

			surface := at(x, h, z)
			if h <= 21 {
				if surface != sand {
					t.Fatalf("column (%d,%d) h=%d: surface %d want SAND", x, z, h, surface)
				}
			} else if surface != grass {
				t.Fatalf("column (%d,%d) h=%d: surface %d want GRASS", x, z, h, surface)
			}

			if got := at(x, h-1, z); got != dirt {
				t.Fatalf("column (%d,%d): under surface %d want DIRT", x, z, got)
			}
			if h >= 4 {
				if got := at(x, h-4, z); got != stone {
					t.Fatalf("column (%d,%d): depth 4 %d want STONE", x, z, got)
				}
			}

			if h < 20 {
				if got := at(x, h+1, z); got != water {
					t.Fatalf("column (%d,%d) h=%d: above surface %d want WATER", x, z, h, got)
				}
			} else if h > 21 {
				if got := at(x, h+1, z); got != block.Air {
					t.Fatalf("column (%d,%d) h=%d: above surface %d want AIR", x, z, h, got)
				}
			}
			if got := at(x, 63, z); got != block.Air {
				t.Fatalf("column (%d,%d): sky cell %d want AIR", x, z, got)
			}
		}
	}
}

func TestGen_TorchSprinkleOnLand(t *testing.T) {
	reg := testRegistry(t)
	torch := blockID(t, reg, "TORCH")
	g, err := NewTerrainGen(reg, 7, 20, 0.05, 1.0)
	if err != nil {
		t.Fatalf("NewTerrainGen: %v", err)
	}

	var lower, upper [chunkCells]uint16
	g.Generate(light.ChunkPos{}, &lower)
	g.Generate(light.ChunkPos{Y: 1}, &upper)
	at := func(x, wy, z int) uint16 {
		if wy < light.Edge {
			return lower[light.CellIndex(x, wy, z)]
		}
		return upper[light.CellIndex(x, wy-light.Edge, z)]
	}

	for z := 0; z < light.Edge; z++ {
		for x := 0; x < light.Edge; x++ {
			h := g.height(x, z)
			got := at(x, h+1, z)
			if h > 20 {
				if got != torch {
					t.Fatalf("column (%d,%d): density 1 land column has %d want TORCH", x, z, got)
				}
			} else if got == torch {
				t.Fatalf("column (%d,%d): torch under water", x, z)
			}
		}
	}
}

func TestGen_RequiresPaletteBlocks(t *testing.T) {
	reg, err := block.New([]block.Def{
		{ID: "AIR"},
		{ID: "STONE", Solid: true, Absorption: [3]uint8{255, 255, 255}},
	})
	if err != nil {
		t.Fatalf("block.New: %v", err)
	}
	if _, err := NewTerrainGen(reg, 1, 20, 0.05, 0); err == nil {
		t.Fatalf("expected missing-block error")
	}
}
