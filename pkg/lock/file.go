package lock

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/cuemby/burrow/pkg/log"
)

// retryInterval is how often a contended flock is retried
const retryInterval = 100 * time.Millisecond

// File combines an in-process lock with an advisory file lock under dir
type File struct {
	dir    string
	memory *Memory
}

// NewFile creates a locker keeping one lock file per key under dir
func NewFile(dir string) (*File, error) {
	if err := os.MkdirAll(dir, 0700); err != nil {
		return nil, fmt.Errorf("failed to create lock directory: %w", err)
	}
	return &File{dir: dir, memory: NewMemory()}, nil
}

// Path returns the lock file used for key
func (f *File) Path(key string) string {
	return filepath.Join(f.dir, key+".lock")
}

// Lock takes the in-process lock first, then the file lock
func (f *File) Lock(ctx context.Context, key string) (func(), error) {
	unlockMemory, err := f.memory.Lock(ctx, key)
	if err != nil {
		return nil, err
	}

	file, err := flock(ctx, f.Path(key))
	if err != nil {
		unlockMemory()
		return nil, fmt.Errorf("failed to lock %s: %w", key, err)
	}

	return func() {
		if err := funlock(file); err != nil {
			log.Logger.Warn().Err(err).Str("component", "lock").Str("key", key).Msg("Failed to release file lock")
		}
		unlockMemory()
	}, nil
}
