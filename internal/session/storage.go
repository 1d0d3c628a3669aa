package session

import (
	"errors"
	"fmt"
	"os"
)

// RemoveStorage deletes the durable storage partition for a database name,
// including engine sidecar files. Missing files are not an error; a database
// that was never written has no partition.
func RemoveStorage(dataDir, engine, name string) error {
	var paths []string
	switch engine {
	case "sqlite":
		base := sqlitePartition(dataDir, name)
		paths = []string{base, base + "-wal", base + "-shm"}
	case "duckdb":
		base := duckdbPartition(dataDir, name)
		paths = []string{base, base + ".wal"}
	default:
		return &UnknownEngineError{Engine: engine, Available: Engines()}
	}

	var errs []error
	for _, path := range paths {
		if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
			errs = append(errs, fmt.Errorf("failed to remove %s: %w", path, err))
		}
	}
	return errors.Join(errs...)
}
