package governor

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTryAcquire_RespectsCapacity(t *testing.T) {
	g := New(2, 1)

	s1, err := g.TryAcquireConcurrencySlot()
	require.NoError(t, err)
	s2, err := g.TryAcquireConcurrencySlot()
	require.NoError(t, err)

	_, err = g.TryAcquireConcurrencySlot()
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, 2, g.Stats().SlotsInUse)

	require.NoError(t, g.ReleaseConcurrencySlot(s1))
	s3, err := g.TryAcquireConcurrencySlot()
	require.NoError(t, err)

	require.NoError(t, g.ReleaseConcurrencySlot(s2))
	require.NoError(t, g.ReleaseConcurrencySlot(s3))
	assert.Equal(t, 0, g.Stats().SlotsInUse)
}

func TestRelease_DoubleReleaseRejected(t *testing.T) {
	g := New(1, 1)

	s, err := g.TryAcquireConcurrencySlot()
	require.NoError(t, err)
	require.NoError(t, g.ReleaseConcurrencySlot(s))

	err = g.ReleaseConcurrencySlot(s)
	assert.ErrorIs(t, err, ErrDoubleRelease)

	// The pool must still hold exactly one slot.
	_, err = g.TryAcquireConcurrencySlot()
	require.NoError(t, err)
	_, err = g.TryAcquireConcurrencySlot()
	assert.ErrorIs(t, err, ErrWouldBlock)
}

func TestRelease_UnknownToken(t *testing.T) {
	g := New(1, 1)
	assert.ErrorIs(t, g.ReleaseConcurrencySlot(Slot{}), ErrUnknownToken)
	assert.ErrorIs(t, g.ReleaseDepth(DepthToken{}), ErrUnknownToken)

	d, err := g.AcquireDepth(0)
	require.NoError(t, err)
	// A depth token's ID cannot be used to free a slot.
	assert.ErrorIs(t, g.ReleaseConcurrencySlot(Slot{id: d.id}), ErrUnknownToken)
}

func TestAcquireDepth(t *testing.T) {
	g := New(4, 1)

	tok, err := g.AcquireDepth(0)
	require.NoError(t, err)
	assert.Equal(t, 1, tok.Depth())

	_, err = g.AcquireDepth(1)
	assert.ErrorIs(t, err, ErrDepthExceeded)

	require.NoError(t, g.ReleaseDepth(tok))
	assert.ErrorIs(t, g.ReleaseDepth(tok), ErrDoubleRelease)
	assert.Equal(t, 0, g.Stats().DepthTokens)
}

func TestAcquireDepth_ZeroMaxForbidsChildren(t *testing.T) {
	g := New(4, 0)
	_, err := g.AcquireDepth(0)
	assert.ErrorIs(t, err, ErrDepthExceeded)
}

func TestAcquire_WaitersServedFIFO(t *testing.T) {
	g := New(1, 1)
	held, err := g.TryAcquireConcurrencySlot()
	require.NoError(t, err)

	var mu sync.Mutex
	var order []int
	var wg sync.WaitGroup
	slots := make(chan Slot, 3)

	for i := 1; i <= 3; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			s, err := g.AcquireConcurrencySlot(context.Background())
			if err != nil {
				t.Errorf("waiter %d: %v", n, err)
				return
			}
			mu.Lock()
			order = append(order, n)
			mu.Unlock()
			slots <- s
		}(i)
		// Give each waiter time to enqueue before the next one.
		time.Sleep(20 * time.Millisecond)
	}

	// A queued waiter means TryAcquire must not jump the line.
	_, err = g.TryAcquireConcurrencySlot()
	assert.ErrorIs(t, err, ErrWouldBlock)

	require.NoError(t, g.ReleaseConcurrencySlot(held))
	for i := 0; i < 3; i++ {
		s := <-slots
		require.NoError(t, g.ReleaseConcurrencySlot(s))
	}
	wg.Wait()

	assert.Equal(t, []int{1, 2, 3}, order)
}

func TestAcquire_ContextCancelled(t *testing.T) {
	g := New(1, 1)
	_, err := g.TryAcquireConcurrencySlot()
	require.NoError(t, err)

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err = g.AcquireConcurrencySlot(ctx)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, 1, g.Stats().SlotsInUse)
}

func TestReserve(t *testing.T) {
	g := New(1, 1)

	r, err := g.Reserve(context.Background(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, r.Depth.Depth())

	// Slot exhausted: the depth token taken first must be given back.
	_, err = g.Reserve(context.Background(), 0, false)
	assert.ErrorIs(t, err, ErrWouldBlock)
	assert.Equal(t, 1, g.Stats().DepthTokens)

	// Depth exceeded never touches the slot pool.
	_, err = g.Reserve(context.Background(), 1, true)
	assert.ErrorIs(t, err, ErrDepthExceeded)

	require.NoError(t, g.Release(r))
	assert.Equal(t, Stats{Capacity: 1, MaxDepth: 1}, g.Stats())
	assert.Error(t, g.Release(r))
}

func TestObserver(t *testing.T) {
	var last Stats
	g := New(3, 1, WithObserver(func(s Stats) { last = s }))

	r, err := g.Reserve(context.Background(), 0, false)
	require.NoError(t, err)
	assert.Equal(t, 1, last.SlotsInUse)
	assert.Equal(t, 1, last.DepthTokens)

	require.NoError(t, g.Release(r))
	assert.Equal(t, 0, last.SlotsInUse)
	assert.Equal(t, 0, last.DepthTokens)
}

func TestNew_ClampsCapacity(t *testing.T) {
	g := New(0, -1)
	assert.Equal(t, 1, g.Capacity())
	assert.Equal(t, 0, g.MaxDepth())
}
