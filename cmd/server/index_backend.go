package main

import (
	"fmt"
	"os"
	"strings"

	"voxlight.dev/internal/persistence/indexdb"
	"voxlight.dev/internal/persistence/snapshot"
	"voxlight.dev/internal/sim/block"
	"voxlight.dev/internal/sim/tuning"
	"voxlight.dev/internal/sim/world"
)

type runtimeIndex interface {
	world.EditLogger
	world.RelightLogger
	Close() error
	UpsertCatalogs(configDir string, reg *block.Registry, tune tuning.Tuning) error
	RecordSnapshot(path string, snap snapshot.SnapshotV1)
}

func openRuntimeIndex(worldDir string, tune tuning.Tuning, disableDB bool) (runtimeIndex, error) {
	if disableDB {
		return nil, nil
	}

	backend := strings.ToLower(strings.TrimSpace(os.Getenv("VL_INDEX_BACKEND")))
	if backend == "" {
		backend = "sqlite"
	}

	switch backend {
	case "none", "off", "disabled":
		return nil, nil
	case "sqlite":
		dbPath := resolvePath(worldDir, tune.Paths.IndexDB)
		if dbPath == "" {
			return nil, nil
		}
		return indexdb.OpenSQLite(dbPath)
	default:
		return nil, fmt.Errorf("unsupported VL_INDEX_BACKEND: %s", backend)
	}
}
