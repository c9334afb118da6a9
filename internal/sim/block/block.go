// Package block loads the block palette and the per-material light
// attributes the propagation engine consults.
package block

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
)

// Def is one material as written in blocks.json. Absorption and emission
// are [R,G,B] with each component in 0..255.
type Def struct {
	ID         string   `json:"id"`
	Solid      bool     `json:"solid"`
	Absorption [3]uint8 `json:"absorption"`
	Emission   [3]uint8 `json:"emission"`
}

// Registry maps numeric block ids to names and light attributes. The
// palette is stable for a given blocks.json: AIR is id 0, everything else
// sorted by name. Lookups by id are plain slice reads so the light engine
// can call them per voxel.
type Registry struct {
	Palette       []string
	Index         map[string]uint16
	Defs          map[string]Def
	PaletteDigest string
	DefsDigest    string

	absorption []uint32
	emission   []uint32
	solid      []bool
}

// Air is the palette id of AIR in every registry.
const Air uint16 = 0

func sha256Hex(b []byte) string {
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:])
}

// Load reads and validates blocks.json from configDir and builds the
// registry.
func Load(configDir string) (*Registry, error) {
	path := filepath.Join(configDir, "blocks.json")
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var doc any
	if err := json.Unmarshal(raw, &doc); err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}
	if err := blocksSchema.Validate(doc); err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}

	var defs []Def
	if err := json.Unmarshal(raw, &defs); err != nil {
		return nil, fmt.Errorf("blocks.json: %w", err)
	}

	r, err := New(defs)
	if err != nil {
		return nil, err
	}
	r.DefsDigest = sha256Hex(raw)
	return r, nil
}

// New builds a registry from in-memory defs. Tooling and tests use it;
// servers load from disk with Load.
func New(defs []Def) (*Registry, error) {
	r := &Registry{Defs: map[string]Def{}}
	for _, d := range defs {
		if d.ID == "" {
			return nil, fmt.Errorf("blocks.json: empty id")
		}
		if _, dup := r.Defs[d.ID]; dup {
			return nil, fmt.Errorf("blocks.json: duplicate id %q", d.ID)
		}
		r.Defs[d.ID] = d
	}

	air, ok := r.Defs["AIR"]
	if !ok {
		return nil, fmt.Errorf("blocks.json: missing AIR")
	}
	if air.Absorption != [3]uint8{} || air.Emission != [3]uint8{} {
		return nil, fmt.Errorf("blocks.json: AIR must not absorb or emit")
	}

	ids := make([]string, 0, len(r.Defs))
	for id := range r.Defs {
		if id == "AIR" {
			continue
		}
		ids = append(ids, id)
	}
	sort.Strings(ids)

	// AIR is always palette id 0.
	r.Palette = append([]string{"AIR"}, ids...)
	r.Index = make(map[string]uint16, len(r.Palette))
	r.absorption = make([]uint32, len(r.Palette))
	r.emission = make([]uint32, len(r.Palette))
	r.solid = make([]bool, len(r.Palette))
	for i, id := range r.Palette {
		d := r.Defs[id]
		r.Index[id] = uint16(i)
		r.absorption[i] = packRGB(d.Absorption)
		r.emission[i] = packRGB(d.Emission)
		r.solid[i] = d.Solid
	}

	palJSON, _ := json.Marshal(r.Palette)
	r.PaletteDigest = sha256Hex(palJSON)
	defsJSON, _ := json.Marshal(defs)
	r.DefsDigest = sha256Hex(defsJSON)
	return r, nil
}

func packRGB(c [3]uint8) uint32 {
	return uint32(c[0])<<16 | uint32(c[1])<<8 | uint32(c[2])
}

// AbsorptionRGB returns the packed 0xRRGGBB absorption of a block id.
// Ids outside the palette read as fully absorbing so corrupt chunk data
// cannot leak light.
func (r *Registry) AbsorptionRGB(id uint16) uint32 {
	if int(id) >= len(r.absorption) {
		return 0xFFFFFF
	}
	return r.absorption[id]
}

// EmissionRGB returns the packed 0xRRGGBB emission of a block id.
func (r *Registry) EmissionRGB(id uint16) uint32 {
	if int(id) >= len(r.emission) {
		return 0
	}
	return r.emission[id]
}

// Emits reports whether a block id gives off light on any channel.
func (r *Registry) Emits(id uint16) bool { return r.EmissionRGB(id) != 0 }

// Solid reports whether a block id is solid for collision purposes.
func (r *Registry) Solid(id uint16) bool {
	return int(id) < len(r.solid) && r.solid[id]
}

// Name returns the palette name of a block id.
func (r *Registry) Name(id uint16) string {
	if int(id) >= len(r.Palette) {
		return ""
	}
	return r.Palette[id]
}

// IDOf resolves a palette name to its numeric id.
func (r *Registry) IDOf(name string) (uint16, bool) {
	id, ok := r.Index[name]
	return id, ok
}

// Count returns the palette size.
func (r *Registry) Count() int { return len(r.Palette) }
