package sync

import (
	"context"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestGateCapsConcurrency(t *testing.T) {
	t.Parallel()

	gate := NewGate(2)

	var inFlight, peak atomic.Int32
	var wg sync.WaitGroup
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			release, err := gate.Acquire(context.Background())
			require.NoError(t, err)
			defer release()

			now := inFlight.Add(1)
			defer inFlight.Add(-1)
			for {
				old := peak.Load()
				if now <= old || peak.CompareAndSwap(old, now) {
					break
				}
			}
			time.Sleep(5 * time.Millisecond)
		}()
	}
	wg.Wait()

	require.LessOrEqual(t, peak.Load(), int32(2))
	require.Positive(t, peak.Load())
}

func TestGateAcquireHonorsContext(t *testing.T) {
	t.Parallel()

	gate := NewGate(1)
	release, err := gate.Acquire(context.Background())
	require.NoError(t, err)
	defer release()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	_, err = gate.Acquire(ctx)
	require.ErrorIs(t, err, context.DeadlineExceeded)
}
