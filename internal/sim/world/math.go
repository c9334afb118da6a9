package world

import "voxlight.dev/internal/sim/light"

// Vec3i is a world-space voxel position.
type Vec3i struct {
	X int `json:"x"`
	Y int `json:"y"`
	Z int `json:"z"`
}

// Split separates a world position into its chunk and the local voxel
// within it.
func (v Vec3i) Split() (light.ChunkPos, light.Voxel) {
	cp := light.ChunkPos{
		X: floorDiv(v.X, light.Edge),
		Y: floorDiv(v.Y, light.Edge),
		Z: floorDiv(v.Z, light.Edge),
	}
	lv := light.Voxel{
		X: uint8(floorMod(v.X, light.Edge)),
		Y: uint8(floorMod(v.Y, light.Edge)),
		Z: uint8(floorMod(v.Z, light.Edge)),
	}
	return cp, lv
}

func floorDiv(a, b int) int {
	// b > 0
	q := a / b
	r := a % b
	if r < 0 {
		q--
	}
	return q
}

func floorMod(a, b int) int {
	// b > 0
	m := a % b
	if m < 0 {
		m += b
	}
	return m
}

func mix64(z uint64) uint64 {
	z += 0x9e3779b97f4a7c15
	z = (z ^ (z >> 30)) * 0xbf58476d1ce4e5b9
	z = (z ^ (z >> 27)) * 0x94d049bb133111eb
	return z ^ (z >> 31)
}

func hash3(seed int64, x, y, z int) uint64 {
	ux := uint64(uint32(int32(x)))
	uy := uint64(uint32(int32(y)))
	uz := uint64(uint32(int32(z)))
	v := uint64(seed) ^ (ux * 0x9e3779b97f4a7c15) ^ (uy * 0xc2b2ae3d27d4eb4f) ^ (uz * 0xbf58476d1ce4e5b9)
	return mix64(v)
}
