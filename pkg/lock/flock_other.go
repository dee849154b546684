//go:build !unix

package lock

import (
	"context"
	"os"
)

// flock is a no-op on non-Unix platforms; only the in-process lock applies
func flock(_ context.Context, _ string) (*os.File, error) {
	return nil, nil
}

func funlock(_ *os.File) error {
	return nil
}
