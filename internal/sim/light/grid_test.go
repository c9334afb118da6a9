package light

import (
	"bytes"
	"sync"
	"testing"
)

func TestGrid_BytesRoundTrip(t *testing.T) {
	rig := newTestRig()
	c := rig.addChunk(ChunkPos{})
	g := c.grid(EmitR)

	data := make([]byte, cellCount)
	for i := range data {
		data[i] = byte(i * 7)
	}
	if err := g.SetBytes(data); err != nil {
		t.Fatalf("SetBytes: %v", err)
	}
	if !bytes.Equal(g.Bytes(), data) {
		t.Fatalf("Bytes does not round-trip")
	}
	// Cells packed into the same word must not clobber each other.
	for i := 0; i < 8; i++ {
		if got := g.Bytes()[i]; got != byte(i*7) {
			t.Fatalf("cell %d = %d, want %d", i, got, i*7)
		}
	}
	if err := g.SetBytes(data[:10]); err == nil {
		t.Fatalf("SetBytes accepted a short slice")
	}
}

func TestPropagateLights_PointSourceFalloff(t *testing.T) {
	rig := newTestRig()
	c := rig.addChunk(ChunkPos{})
	c.set(16, 16, 16, mTorch)
	g := c.grid(EmitR)

	g.PropagateLights([]Voxel{v(16, 16, 16)}, false)

	cases := []struct {
		x, y, z int
		want    uint8
	}{
		{16, 16, 16, 255}, // the source itself
		{17, 16, 16, 239}, // one step
		{17, 17, 16, 223}, // two steps, diagonal via faces
		{16, 16, 31, 15},  // fifteen steps
		{1, 16, 16, 15},
		{0, 16, 16, 0}, // sixteen steps, candidate hits zero and drops
	}
	for _, tc := range cases {
		if got := g.At(tc.x, tc.y, tc.z); got != tc.want {
			t.Fatalf("At(%d,%d,%d) = %d, want %d", tc.x, tc.y, tc.z, got, tc.want)
		}
	}
}

func TestPropagateLights_EmissionSlicedPerChannel(t *testing.T) {
	rig := newTestRig()
	c := rig.addChunk(ChunkPos{})
	c.set(16, 16, 16, mTorch) // emits 255, 224, 160

	want := map[Channel]uint8{EmitR: 255, EmitG: 224, EmitB: 160}
	for ch, w := range want {
		g := c.grid(ch)
		g.PropagateLights([]Voxel{v(16, 16, 16)}, false)
		if got := g.At(16, 16, 16); got != w {
			t.Fatalf("%s at source = %d, want %d", ch, got, w)
		}
		if got := g.At(18, 16, 16); got != w-2*step {
			t.Fatalf("%s two steps out = %d, want %d", ch, got, w-2*step)
		}
	}
}

func TestPropagateLights_Idempotent(t *testing.T) {
	rig := newTestRig()
	c := rig.addChunk(ChunkPos{})
	c.set(16, 16, 16, mTorch)
	g := c.grid(EmitR)

	seeds := []Voxel{v(16, 16, 16)}
	g.PropagateLights(seeds, false)
	first := g.Bytes()
	if got := rig.mesh.count(ChunkPos{}); got != 1 {
		t.Fatalf("mesh notifications after first pass = %d, want 1", got)
	}

	g.PropagateLights(seeds, false)
	if !bytes.Equal(g.Bytes(), first) {
		t.Fatalf("second pass changed the field")
	}
	if got := rig.mesh.count(ChunkPos{}); got != 1 {
		t.Fatalf("idle pass notified the mesh: %d notifications", got)
	}
	rig.balanced(t)
}

func TestPropagateLights_AbsorptionAtEntry(t *testing.T) {
	rig := newTestRig()
	c := rig.addChunk(ChunkPos{})
	c.set(16, 16, 16, mTorch)
	c.set(18, 16, 16, mWater) // 32 red absorption
	g := c.grid(EmitR)

	g.PropagateLights([]Voxel{v(16, 16, 16)}, false)

	if got := g.At(17, 16, 16); got != 239 {
		t.Fatalf("before water = %d, want 239", got)
	}
	// Entering the water costs one step plus the material's absorption.
	if got := g.At(18, 16, 16); got != 191 {
		t.Fatalf("water cell = %d, want 191", got)
	}
	if got := g.At(19, 16, 16); got != 175 {
		t.Fatalf("behind water = %d, want 175", got)
	}
}

func TestPropagateLights_ColoredAbsorption(t *testing.T) {
	rig := newTestRig()
	c := rig.addChunk(ChunkPos{})
	c.set(16, 16, 16, mTorch)
	c.set(17, 16, 16, mRedGlass)

	for _, ch := range []Channel{EmitR, EmitG, EmitB} {
		c.grid(ch).PropagateLights([]Voxel{v(16, 16, 16)}, false)
	}

	// Red continues through the glass, green and blue stop dead.
	if got := c.grid(EmitR).At(18, 16, 16); got != 223 {
		t.Fatalf("red behind glass = %d, want 223", got)
	}
	if got := c.grid(EmitG).At(17, 16, 16); got != 0 {
		t.Fatalf("green inside glass = %d, want 0", got)
	}
	if got := c.grid(EmitB).At(17, 16, 16); got != 0 {
		t.Fatalf("blue inside glass = %d, want 0", got)
	}
}

func TestPropagateLights_SunColumnFreeFall(t *testing.T) {
	rig := newTestRig()
	c := rig.addChunk(ChunkPos{})
	c.fill(mStone)
	for y := 0; y < Edge; y++ {
		c.set(5, y, 5, mAir) // a shaft down the whole chunk
	}
	g := c.grid(SunR)

	g.PropagateLights([]Voxel{v(5, 31, 5)}, false)

	for y := Edge - 1; y >= 0; y-- {
		if got := g.At(5, y, 5); got != Max {
			t.Fatalf("shaft y=%d = %d, want %d", y, got, Max)
		}
	}
	// Stone swallows every sideways candidate, so only the shaft is lit.
	if got := nonZeroCells(g); got != Edge {
		t.Fatalf("lit cells = %d, want %d", got, Edge)
	}
}

func TestPropagateLights_SunLosesFreeFallAfterDimming(t *testing.T) {
	rig := newTestRig()
	c := rig.addChunk(ChunkPos{})
	c.fill(mStone)
	for y := 0; y < Edge; y++ {
		c.set(5, y, 5, mAir)
	}
	c.set(5, 20, 5, mWater)
	g := c.grid(SunR)

	g.PropagateLights([]Voxel{v(5, 31, 5)}, false)

	cases := []struct {
		y    int
		want uint8
	}{
		{21, 255}, // still falling free
		{20, 223}, // water charges its absorption, the fall itself stays free
		{19, 207}, // below full strength every step costs
		{7, 15},
		{6, 0},
	}
	for _, tc := range cases {
		if got := g.At(5, tc.y, 5); got != tc.want {
			t.Fatalf("shaft y=%d = %d, want %d", tc.y, got, tc.want)
		}
	}
}

func TestReflood_OpenedPath(t *testing.T) {
	rig := newTestRig()
	c := rig.addChunk(ChunkPos{})
	c.set(10, 16, 16, mTorch)
	c.set(12, 16, 16, mStone)
	g := c.grid(EmitR)

	g.PropagateLights([]Voxel{v(10, 16, 16)}, false)
	if got := g.At(12, 16, 16); got != 0 {
		t.Fatalf("stone cell lit: %d", got)
	}

	c.set(12, 16, 16, mAir)
	g.Reflood([]Voxel{v(12, 16, 16)})

	cases := []struct {
		x    int
		want uint8
	}{
		{12, 223}, // refilled from the neighbor at 239
		{13, 207}, // the flood keeps going past the opened cell
		{14, 191},
	}
	for _, tc := range cases {
		if got := g.At(tc.x, 16, 16); got != tc.want {
			t.Fatalf("At(%d,16,16) = %d, want %d", tc.x, got, tc.want)
		}
	}
	rig.balanced(t)
}

func TestGrid_ConcurrentReadsDuringFlood(t *testing.T) {
	rig := newTestRig()
	c := rig.addChunk(ChunkPos{})
	c.set(16, 16, 16, mTorch)
	g := c.grid(EmitR)

	stop := make(chan struct{})
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for {
			select {
			case <-stop:
				return
			default:
				_ = g.At(16, 16, 16)
				_ = g.At(31, 0, 31)
			}
		}
	}()

	g.PropagateLights([]Voxel{v(16, 16, 16)}, false)
	close(stop)
	wg.Wait()

	if got := g.At(16, 16, 16); got != 255 {
		t.Fatalf("source = %d, want 255", got)
	}
}
