package lock

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestMemorySerializesSameKey(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	var active, maxActive int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			unlock, err := m.Lock(ctx, "app")
			require.NoError(t, err)
			defer unlock()

			n := atomic.AddInt32(&active, 1)
			for {
				cur := atomic.LoadInt32(&maxActive)
				if n <= cur || atomic.CompareAndSwapInt32(&maxActive, cur, n) {
					break
				}
			}
			time.Sleep(time.Millisecond)
			atomic.AddInt32(&active, -1)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxActive)
	assert.Equal(t, 0, m.Held(), "idle keys are released")
}

func TestMemoryIndependentKeys(t *testing.T) {
	m := NewMemory()
	ctx := context.Background()

	unlockA, err := m.Lock(ctx, "a")
	require.NoError(t, err)
	defer unlockA()

	ctx, cancel := context.WithTimeout(ctx, time.Second)
	defer cancel()
	unlockB, err := m.Lock(ctx, "b")
	require.NoError(t, err)
	unlockB()
}

func TestMemoryContextCancel(t *testing.T) {
	m := NewMemory()

	unlock, err := m.Lock(context.Background(), "app")
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = m.Lock(ctx, "app")
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	unlock()
	unlock() // release is idempotent
	assert.Equal(t, 0, m.Held())
}

func TestFileLockAcrossLockers(t *testing.T) {
	dir := t.TempDir()
	first, err := NewFile(dir)
	require.NoError(t, err)
	second, err := NewFile(dir)
	require.NoError(t, err)

	unlock, err := first.Lock(context.Background(), "app")
	require.NoError(t, err)
	assert.FileExists(t, first.Path("app"))

	ctx, cancel := context.WithTimeout(context.Background(), 250*time.Millisecond)
	defer cancel()
	_, err = second.Lock(ctx, "app")
	if err == nil {
		t.Skip("platform without advisory file locks")
	}
	assert.True(t, errors.Is(err, context.DeadlineExceeded))

	unlock()

	unlock2, err := second.Lock(context.Background(), "app")
	require.NoError(t, err)
	unlock2()
}
