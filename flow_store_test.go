package accounts_test

import (
	"context"
	"testing"
	"time"

	accounts "github.com/goliatone/go-accounts"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newFlowStore(clock *testClock, opts ...accounts.FlowStoreOption) *accounts.FlowStore {
	opts = append([]accounts.FlowStoreOption{
		accounts.WithFlowTTL(10 * time.Minute),
		accounts.WithFlowStoreClock(clock.Now),
		accounts.WithFlowStoreLogger(nopLogger{}),
	}, opts...)
	return accounts.NewFlowStore(&MockIdentityBridge{}, &MockReconciler{}, opts...)
}

func TestFlowStore_StartAndGet(t *testing.T) {
	clock := newTestClock()
	store := newFlowStore(clock)

	flow := store.Start()
	assert.Equal(t, accounts.StepTypeSelection, flow.Step())
	assert.Equal(t, 1, store.Len())

	got, err := store.Get(flow.ID())
	require.NoError(t, err)
	assert.Same(t, flow, got)

	_, err = store.Get("missing")
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeFlowNotFound))

	store.Delete(flow.ID())
	_, err = store.Get(flow.ID())
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeFlowNotFound))
}

func TestFlowStore_IdleFlowsExpire(t *testing.T) {
	ctx := context.Background()
	clock := newTestClock()
	store := newFlowStore(clock)

	idle := store.Start()
	busy := store.Start()

	clock.Advance(6 * time.Minute)
	require.NoError(t, busy.SelectType(ctx, accounts.UserTypeOwner))
	clock.Advance(6 * time.Minute)

	_, err := store.Get(idle.ID())
	assert.True(t, accounts.HasTextCode(err, accounts.TextCodeFlowNotFound))

	got, err := store.Get(busy.ID())
	require.NoError(t, err)
	assert.Equal(t, accounts.StepAccountDetails, got.Step())
}

func TestFlowStore_Purge(t *testing.T) {
	clock := newTestClock()
	store := newFlowStore(clock)

	store.Start()
	store.Start()
	clock.Advance(11 * time.Minute)
	kept := store.Start()

	assert.Equal(t, 2, store.Purge())
	assert.Equal(t, 1, store.Len())

	_, err := store.Get(kept.ID())
	assert.NoError(t, err)
}

func TestFlowStore_RunStopsWithContext(t *testing.T) {
	clock := newTestClock()
	store := newFlowStore(clock)

	store.Start()
	clock.Advance(time.Hour)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		store.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	assert.Eventually(t, func() bool { return store.Len() == 0 }, time.Second, 5*time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}

func TestFlowStore_AppliesFlowOptions(t *testing.T) {
	clock := newTestClock()
	store := newFlowStore(clock, accounts.WithFlowOptions(accounts.WithMaxCodeAttempts(3)))

	flow := store.Start()
	assert.Equal(t, 3, flow.State().AttemptsLeft)
}
