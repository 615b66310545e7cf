package cart

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/armorline/storefront/internal/cart/storage"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestService() (*Service, storage.Store, *Bus) {
	store := storage.NewMemoryStore()
	bus := NewBus()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewService(store, bus, 20*time.Millisecond, logger), store, bus
}

func TestKey(t *testing.T) {
	assert.Equal(t, "cart:anonymous", Key(""))
	assert.Equal(t, "cart:anonymous", Key(AnonymousBucket))
	assert.Equal(t, "cart:7c9e6679-7425-40de-944b-e07fc1f90ae7", Key("7c9e6679-7425-40de-944b-e07fc1f90ae7"))
}

func TestService_Get_AbsentBucketIsEmptyCart(t *testing.T) {
	svc, _, _ := newTestService()

	cart, err := svc.Get(context.Background(), "")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
}

func TestService_Add(t *testing.T) {
	t.Run("inserts new line with quantity one", func(t *testing.T) {
		svc, _, _ := newTestService()

		cart, err := svc.Add(context.Background(), "", "p1")
		require.NoError(t, err)
		require.Len(t, cart.Lines, 1)
		assert.Equal(t, Line{ProductID: "p1", Quantity: 1}, cart.Lines[0])
	})

	t.Run("increments existing line", func(t *testing.T) {
		svc, _, _ := newTestService()
		ctx := context.Background()

		_, err := svc.Add(ctx, "", "p1")
		require.NoError(t, err)
		cart, err := svc.Add(ctx, "", "p1")
		require.NoError(t, err)

		require.Len(t, cart.Lines, 1)
		assert.Equal(t, int32(2), cart.Lines[0].Quantity)
	})

	t.Run("keeps distinct products on separate lines", func(t *testing.T) {
		svc, _, _ := newTestService()
		ctx := context.Background()

		_, err := svc.Add(ctx, "", "p1")
		require.NoError(t, err)
		cart, err := svc.Add(ctx, "", "p2")
		require.NoError(t, err)

		require.Len(t, cart.Lines, 2)
	})
}

func TestService_Decrement(t *testing.T) {
	t.Run("lowers quantity by one", func(t *testing.T) {
		svc, _, _ := newTestService()
		ctx := context.Background()

		_, err := svc.Add(ctx, "", "p1")
		require.NoError(t, err)
		_, err = svc.Add(ctx, "", "p1")
		require.NoError(t, err)

		cart, err := svc.Decrement(ctx, "", "p1")
		require.NoError(t, err)
		require.Len(t, cart.Lines, 1)
		assert.Equal(t, int32(1), cart.Lines[0].Quantity)
	})

	t.Run("removes line when quantity reaches zero", func(t *testing.T) {
		svc, _, _ := newTestService()
		ctx := context.Background()

		_, err := svc.Add(ctx, "", "p1")
		require.NoError(t, err)

		cart, err := svc.Decrement(ctx, "", "p1")
		require.NoError(t, err)
		assert.Empty(t, cart.Lines)
	})

	t.Run("missing line is a no-op", func(t *testing.T) {
		svc, _, _ := newTestService()

		cart, err := svc.Decrement(context.Background(), "", "absent")
		require.NoError(t, err)
		assert.Empty(t, cart.Lines)
	})
}

func TestService_Remove(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Add(ctx, "", "p1")
	require.NoError(t, err)
	_, err = svc.Add(ctx, "", "p1")
	require.NoError(t, err)
	_, err = svc.Add(ctx, "", "p2")
	require.NoError(t, err)

	// Remove deletes the whole line regardless of quantity.
	cart, err := svc.Remove(ctx, "", "p1")
	require.NoError(t, err)
	require.Len(t, cart.Lines, 1)
	assert.Equal(t, "p2", cart.Lines[0].ProductID)

	cart, err = svc.Remove(ctx, "", "absent")
	require.NoError(t, err)
	assert.Len(t, cart.Lines, 1)
}

func TestService_Clear(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	_, err := svc.Add(ctx, "", "p1")
	require.NoError(t, err)

	require.NoError(t, svc.Clear(ctx, ""))

	cart, err := svc.Get(ctx, "")
	require.NoError(t, err)
	assert.Empty(t, cart.Lines)
}

func TestService_BucketsAreIsolated(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	userID := "7c9e6679-7425-40de-944b-e07fc1f90ae7"

	_, err := svc.Add(ctx, "", "p1")
	require.NoError(t, err)

	userCart, err := svc.Get(ctx, userID)
	require.NoError(t, err)
	assert.Empty(t, userCart.Lines, "user bucket must not see anonymous lines")

	anonCart, err := svc.Get(ctx, "")
	require.NoError(t, err)
	assert.Len(t, anonCart.Lines, 1)
}

func TestCart_Total(t *testing.T) {
	cart := &Cart{Lines: []Line{
		{ProductID: "p1", Quantity: 2},
		{ProductID: "p2", Quantity: 1},
	}}
	prices := map[string]int64{"p1": 8999}

	// p2 has no price and is excluded from the sum.
	assert.Equal(t, int64(17998), cart.Total(prices))

	prices["p2"] = 199
	assert.Equal(t, int64(18197), cart.Total(prices))
}

func TestBus_Broadcast(t *testing.T) {
	bus := NewBus()
	signals, cancel := bus.Subscribe()
	defer cancel()

	bus.Broadcast("cart:anonymous")

	select {
	case key := <-signals:
		assert.Equal(t, "cart:anonymous", key)
	case <-time.After(time.Second):
		t.Fatal("expected a broadcast signal")
	}
}

func TestBus_SlowSubscriberDoesNotBlock(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe()
	defer cancel()

	// A subscriber that never drains must not stall the publisher.
	done := make(chan struct{})
	go func() {
		for i := 0; i < 100; i++ {
			bus.Broadcast("cart:anonymous")
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("broadcast blocked on a slow subscriber")
	}
}

func TestBus_CancelIsIdempotent(t *testing.T) {
	bus := NewBus()
	_, cancel := bus.Subscribe()
	cancel()
	assert.NotPanics(t, func() { cancel() })
}

func TestMirror_RefreshTracksStorage(t *testing.T) {
	svc, store, bus := newTestService()
	ctx := context.Background()

	mirror := NewMirror(store, bus, time.Minute, "")
	require.NoError(t, mirror.Refresh(ctx))
	assert.Empty(t, mirror.Lines())

	_, err := svc.Add(ctx, "", "p2")
	require.NoError(t, err)

	require.NoError(t, mirror.Refresh(ctx))
	lines := mirror.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, Line{ProductID: "p2", Quantity: 1}, lines[0])
}

func TestMirror_SwitchIdentity(t *testing.T) {
	svc, store, bus := newTestService()
	ctx := context.Background()
	userID := "7c9e6679-7425-40de-944b-e07fc1f90ae7"

	_, err := svc.Add(ctx, "", "p2")
	require.NoError(t, err)

	mirror := NewMirror(store, bus, time.Minute, "")
	require.NoError(t, mirror.Refresh(ctx))
	require.Len(t, mirror.Lines(), 1)

	// Logging in swaps the view to the user's own (empty) bucket.
	require.NoError(t, mirror.SwitchIdentity(ctx, userID))
	assert.Empty(t, mirror.Lines())

	// Logging back out restores the anonymous selection untouched.
	require.NoError(t, mirror.SwitchIdentity(ctx, ""))
	lines := mirror.Lines()
	require.Len(t, lines, 1)
	assert.Equal(t, Line{ProductID: "p2", Quantity: 1}, lines[0])
}

func TestMirror_RunRefreshesOnBroadcast(t *testing.T) {
	svc, store, bus := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mirror := NewMirror(store, bus, time.Hour, "")
	done := make(chan struct{})
	go func() {
		_ = mirror.Run(ctx)
		close(done)
	}()

	_, err := svc.Add(ctx, "", "p1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(mirror.Lines()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("mirror did not stop on context cancellation")
	}
}

func TestMirror_RunPollsWithoutBroadcast(t *testing.T) {
	_, store, bus := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mirror := NewMirror(store, bus, 20*time.Millisecond, "")
	go func() { _ = mirror.Run(ctx) }()

	// Write behind the bus's back; only the interval poll can observe it.
	cart := &Cart{Lines: []Line{{ProductID: "p9", Quantity: 3}}}
	data, err := cart.marshal()
	require.NoError(t, err)
	require.NoError(t, store.Save(ctx, Key(""), data))

	assert.Eventually(t, func() bool {
		lines := mirror.Lines()
		return len(lines) == 1 && lines[0].ProductID == "p9"
	}, 2*time.Second, 10*time.Millisecond)
}

func TestService_WatchUsesServiceBusAndInterval(t *testing.T) {
	svc, _, _ := newTestService()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	mirror := svc.Watch("")
	go func() { _ = mirror.Run(ctx) }()

	// A mutation through the service must reach the watched mirror.
	_, err := svc.Add(ctx, "", "p1")
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(mirror.Lines()) == 1
	}, 2*time.Second, 10*time.Millisecond)
}

func TestMirror_ChangedSignalsOnNewLineSet(t *testing.T) {
	svc, store, bus := newTestService()
	ctx := context.Background()

	mirror := NewMirror(store, bus, time.Minute, "")
	require.NoError(t, mirror.Refresh(ctx))

	_, err := svc.Add(ctx, "", "p1")
	require.NoError(t, err)
	require.NoError(t, mirror.Refresh(ctx))

	select {
	case <-mirror.Changed():
	case <-time.After(time.Second):
		t.Fatal("expected a change signal after the line set changed")
	}

	// A refresh that observes the same lines stays quiet.
	require.NoError(t, mirror.Refresh(ctx))
	select {
	case <-mirror.Changed():
		t.Fatal("unchanged line set must not signal")
	default:
	}
}
