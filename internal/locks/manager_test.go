// SPDX-License-Identifier: MIT

package locks

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestManager_AcquireRelease(t *testing.T) {
	m := NewManager()

	assert.True(t, m.AcquireTimeout("chapter-1", time.Second))
	assert.True(t, m.Held("chapter-1"))

	m.Release("chapter-1")
	assert.False(t, m.Held("chapter-1"))
}

func TestManager_AcquireTimesOut(t *testing.T) {
	m := NewManager()
	require.True(t, m.AcquireTimeout("chapter-1", time.Second))

	// Second caller must fail after its deadline without acquiring.
	start := time.Now()
	ok := m.AcquireTimeout("chapter-1", 50*time.Millisecond)
	assert.False(t, ok)
	assert.GreaterOrEqual(t, time.Since(start), 50*time.Millisecond)

	// The holder is unaffected.
	assert.True(t, m.Held("chapter-1"))
	m.Release("chapter-1")
}

func TestManager_MutualExclusion(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewManager()
	var inSection atomic.Int32
	var maxSeen atomic.Int32

	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, err := WithLock(context.Background(), m, "chapter-1", "stress", func() (struct{}, error) {
				cur := inSection.Add(1)
				if cur > maxSeen.Load() {
					maxSeen.Store(cur)
				}
				time.Sleep(time.Millisecond)
				inSection.Add(-1)
				return struct{}{}, nil
			})
			assert.NoError(t, err)
		}()
	}
	wg.Wait()

	assert.Equal(t, int32(1), maxSeen.Load(), "critical sections overlapped")
}

func TestManager_FIFOGrantOrder(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewManager()
	require.True(t, m.AcquireTimeout("chapter-1", time.Second))

	order := make(chan string, 3)
	var wg sync.WaitGroup
	for _, name := range []string{"A", "B", "C"} {
		name := name
		wg.Add(1)
		go func() {
			defer wg.Done()
			require.True(t, m.Acquire(context.Background(), "chapter-1"))
			order <- name
			m.Release("chapter-1")
		}()
		// Wait until this waiter is queued before starting the next,
		// so submission order is deterministic.
		require.Eventually(t, func() bool {
			return m.Waiters("chapter-1") == countQueued(name)
		}, time.Second, time.Millisecond)
	}

	m.Release("chapter-1")
	wg.Wait()
	close(order)

	var got []string
	for name := range order {
		got = append(got, name)
	}
	assert.Equal(t, []string{"A", "B", "C"}, got)
}

func countQueued(name string) int {
	switch name {
	case "A":
		return 1
	case "B":
		return 2
	default:
		return 3
	}
}

func TestWithLock_ReleasesOnError(t *testing.T) {
	m := NewManager()
	wantErr := errors.New("mutation failed")

	_, err := WithLock(context.Background(), m, "chapter-1", "failing", func() (int, error) {
		return 0, wantErr
	})
	assert.ErrorIs(t, err, wantErr, "operation errors must not be swallowed")

	// Lock must be free immediately after.
	assert.True(t, m.AcquireTimeout("chapter-1", 10*time.Millisecond))
	m.Release("chapter-1")
}

func TestWithLock_ReleasesOnPanic(t *testing.T) {
	m := NewManager()

	assert.Panics(t, func() {
		_, _ = WithLock(context.Background(), m, "chapter-1", "panicking", func() (int, error) {
			panic("boom")
		})
	})

	assert.False(t, m.Held("chapter-1"))
	assert.True(t, m.AcquireTimeout("chapter-1", 10*time.Millisecond))
	m.Release("chapter-1")
}

func TestWithLock_TimeoutSentinel(t *testing.T) {
	m := NewManager()
	require.True(t, m.AcquireTimeout("chapter-1", time.Second))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := WithLock(ctx, m, "chapter-1", "blocked", func() (int, error) {
		t.Fatal("operation must not run without the lock")
		return 0, nil
	})
	assert.ErrorIs(t, err, ErrLockTimeout)
	m.Release("chapter-1")
}

func TestManager_QueueRunsAfterRelease(t *testing.T) {
	m := NewManager()
	require.True(t, m.AcquireTimeout("chapter-1", time.Second))

	ran := make(chan struct{})
	m.Queue("chapter-1", func() { close(ran) })

	select {
	case <-ran:
		t.Fatal("queued thunk ran while the lock was held")
	case <-time.After(30 * time.Millisecond):
	}

	m.Release("chapter-1")
	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queued thunk did not run after release")
	}
}

func TestManager_QueueRunsImmediatelyWhenFree(t *testing.T) {
	m := NewManager()

	ran := make(chan struct{})
	m.Queue("chapter-1", func() { close(ran) })

	select {
	case <-ran:
	case <-time.After(time.Second):
		t.Fatal("queued thunk did not run on a free lock")
	}
}

func TestManager_AbandonedWaiterIsSkipped(t *testing.T) {
	defer goleak.VerifyNone(t, goleak.IgnoreCurrent())

	m := NewManager()
	require.True(t, m.AcquireTimeout("chapter-1", time.Second))

	// First waiter gives up before the release.
	gaveUp := make(chan struct{})
	go func() {
		assert.False(t, m.AcquireTimeout("chapter-1", 20*time.Millisecond))
		close(gaveUp)
	}()
	require.Eventually(t, func() bool { return m.Waiters("chapter-1") == 1 }, time.Second, time.Millisecond)
	<-gaveUp

	// Second waiter must still be granted.
	granted := make(chan struct{})
	go func() {
		require.True(t, m.Acquire(context.Background(), "chapter-1"))
		close(granted)
	}()
	require.Eventually(t, func() bool { return m.Waiters("chapter-1") == 1 }, time.Second, time.Millisecond)

	m.Release("chapter-1")
	select {
	case <-granted:
	case <-time.After(time.Second):
		t.Fatal("live waiter was not granted after an abandoned one")
	}
	m.Release("chapter-1")
}

func TestManager_IndependentResourcesDoNotBlock(t *testing.T) {
	m := NewManager()
	require.True(t, m.AcquireTimeout("chapter-1", time.Second))
	assert.True(t, m.AcquireTimeout("chapter-2", 10*time.Millisecond))
	m.Release("chapter-1")
	m.Release("chapter-2")
}
