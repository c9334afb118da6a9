// Command relight verifies the light data stored in a snapshot: it
// rebuilds the world from the snapshot's blocks, darkens every grid,
// recomputes all six channels from scratch, and diffs the result
// against what the snapshot stored. A clean run proves the stored
// fields equal the flood fixpoint of the stored blocks.
package main

import (
	"flag"
	"fmt"
	"os"

	"voxlight.dev/internal/persistence/snapshot"
	"voxlight.dev/internal/sim/block"
	simenc "voxlight.dev/internal/sim/encoding"
	"voxlight.dev/internal/sim/light"
	"voxlight.dev/internal/sim/tuning"
	"voxlight.dev/internal/sim/world"
)

const maxSampleDiffs = 10

func main() {
	var (
		snapPath  = flag.String("snapshot", "", "path to .snap.zst")
		configDir = flag.String("configs", "./configs", "config directory (must hold the palette the snapshot was taken with)")
		workers   = flag.Int("workers", 0, "relight worker count (0 = one per CPU)")
		writePath = flag.String("write", "", "write the recomputed snapshot to this path (optional)")
	)
	flag.Parse()

	if *snapPath == "" {
		fmt.Fprintln(os.Stderr, "missing -snapshot")
		os.Exit(2)
	}

	snap, err := snapshot.ReadSnapshot(*snapPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, "read snapshot:", err)
		os.Exit(1)
	}

	fmt.Printf("snapshot v%d world=%s tick=%d seed=%d height=%d chunks=%d\n",
		snap.Header.Version, snap.Header.WorldID, snap.Header.Tick, snap.Seed,
		snap.HeightChunks, len(snap.Chunks))

	reg, err := block.Load(*configDir)
	if err != nil {
		fmt.Fprintln(os.Stderr, "load blocks:", err)
		os.Exit(1)
	}

	tune := tuning.Defaults()
	w, err := world.New(world.Config{
		WorldID:       snap.Header.WorldID,
		TickRateHz:    snap.TickRate,
		Seed:          snap.Seed,
		HeightChunks:  snap.HeightChunks,
		ViewRadius:    snap.ViewRadius,
		SeaLevel:      snap.SeaLevel,
		TerrainScale:  tune.World.TerrainScale,
		TorchDensity:  tune.World.TorchDensity,
		EditsPerTick:  tune.Limits.EditsPerTick,
		ChunksPerTick: tune.Limits.ChunksPerTick,
		PendingEdits:  tune.Limits.PendingEdits,
	}, reg)
	if err != nil {
		fmt.Fprintln(os.Stderr, "world:", err)
		os.Exit(1)
	}
	if err := w.ImportSnapshot(snap); err != nil {
		fmt.Fprintln(os.Stderr, "import snapshot:", err)
		os.Exit(1)
	}

	poolSize := *workers
	if poolSize <= 0 {
		poolSize = tune.RelightPoolSize()
	}
	relit := w.Store().RelightAll(poolSize)
	fmt.Printf("relit %d chunks (%d workers)\n", relit, poolSize)

	var (
		chunksBad    int
		cellsBad     [light.NumChannels]uint64
		totalBad     uint64
		samplesShown int
	)
	for _, sc := range snap.Chunks {
		pos := light.ChunkPos{X: sc.X, Y: sc.Y, Z: sc.Z}
		c := w.Store().At(pos)
		if c == nil {
			fmt.Fprintf(os.Stderr, "chunk (%d,%d,%d) missing after import\n", sc.X, sc.Y, sc.Z)
			os.Exit(1)
		}
		chunkBad := false
		for _, ch := range light.Channels() {
			want, err := simenc.DecodeLight(sc.Light[ch], light.Edge*light.Edge*light.Edge)
			if err != nil {
				fmt.Fprintf(os.Stderr, "chunk (%d,%d,%d) %s: %v\n", sc.X, sc.Y, sc.Z, ch, err)
				os.Exit(1)
			}
			got := c.Grid(ch).Bytes()
			for i := range want {
				if want[i] == got[i] {
					continue
				}
				chunkBad = true
				cellsBad[ch]++
				totalBad++
				if samplesShown < maxSampleDiffs {
					samplesShown++
					x, z, y := i%light.Edge, (i/light.Edge)%light.Edge, i/(light.Edge*light.Edge)
					fmt.Printf("  diff chunk=(%d,%d,%d) cell=(%d,%d,%d) ch=%s stored=%d computed=%d\n",
						sc.X, sc.Y, sc.Z, x, y, z, ch, want[i], got[i])
				}
			}
		}
		if chunkBad {
			chunksBad++
		}
	}

	if *writePath != "" {
		out := w.ExportSnapshot()
		if err := snapshot.WriteSnapshot(*writePath, out); err != nil {
			fmt.Fprintln(os.Stderr, "write snapshot:", err)
			os.Exit(1)
		}
		fmt.Printf("wrote recomputed snapshot: %s (%d chunks)\n", *writePath, len(out.Chunks))
	}

	if totalBad > 0 {
		fmt.Printf("relight mismatch: %d cells across %d/%d chunks", totalBad, chunksBad, len(snap.Chunks))
		for _, ch := range light.Channels() {
			if cellsBad[ch] > 0 {
				fmt.Printf(" %s=%d", ch, cellsBad[ch])
			}
		}
		fmt.Println()
		os.Exit(1)
	}
	fmt.Printf("relight ok: %d chunks, all channels match\n", len(snap.Chunks))
}
