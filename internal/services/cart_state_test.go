package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/eduardoezequieel/Desafio2-LIC/internal/models"
)

var decimalEqual = cmp.Comparer(func(a, b decimal.Decimal) bool { return a.Equal(b) })

func withProduct(l models.CartLine, p models.Product) models.CartLineWithProduct {
	return models.CartLineWithProduct{CartLine: l, Product: &p}
}

func TestCartStateRefreshReplacesSnapshot(t *testing.T) {
	store := newMemoryStore(product(7, "Desk Lamp", "10.00"), product(3, "Coffee Mug", "5.00"))
	store.put(line("a", 7, "10.00", 2))
	state := NewCartState(store)
	defer state.Close()

	initial := state.Snapshot()
	assert.True(t, initial.IsEmpty())
	assert.NotNil(t, initial.Lines)
	assert.Equal(t, uint64(0), initial.Generation)

	var seen []CartSnapshot
	unsubscribe := state.Subscribe(func(s CartSnapshot) { seen = append(seen, s) })

	require.NoError(t, state.Refresh(context.Background()))
	snap := state.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, "Desk Lamp", snap.Lines[0].Name())
	assert.Equal(t, 2, snap.ItemCount())
	assert.Equal(t, "20.00", snap.Total().StringFixed(2))
	assert.Equal(t, uint64(1), snap.Generation)
	assert.NotEqual(t, initial.Fingerprint, snap.Fingerprint)
	require.Len(t, seen, 1)
	assert.Equal(t, snap.Fingerprint, seen[0].Fingerprint)

	store.put(line("b", 3, "5.00", 1))
	unsubscribe()
	require.NoError(t, state.Refresh(context.Background()))
	assert.Len(t, state.Snapshot().Lines, 2)
	assert.Len(t, seen, 1)

	_, ok := findByProduct(state.Snapshot().Lines, 3)
	assert.True(t, ok)
	_, ok = state.Snapshot().Find("missing")
	assert.False(t, ok)
}

func TestCartStateSnapshotIsACopy(t *testing.T) {
	store := newMemoryStore(product(7, "Desk Lamp", "10.00"))
	store.put(line("a", 7, "10.00", 2))
	state := NewCartState(store)
	require.NoError(t, state.Refresh(context.Background()))

	snap := state.Snapshot()
	snap.Lines[0].Quantity = 50
	snap.Lines[0].Product.Name = "changed"

	again := state.Snapshot()
	assert.Equal(t, 2, again.Lines[0].Quantity)
	assert.Equal(t, "Desk Lamp", again.Lines[0].Product.Name)
}

func TestCartStateFailedRefreshKeepsSnapshot(t *testing.T) {
	store := newMemoryStore(product(7, "Desk Lamp", "10.00"))
	store.put(line("a", 7, "10.00", 2))
	state := NewCartState(store)
	require.NoError(t, state.Refresh(context.Background()))
	before := state.Snapshot()

	boom := errors.New("store down")
	store.fetchErr = boom
	err := state.Refresh(context.Background())
	require.Error(t, err)
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, state.Err(), boom)
	if diff := cmp.Diff(before, state.Snapshot(), decimalEqual); diff != "" {
		t.Errorf("snapshot changed after failed refresh (-before +after):\n%s", diff)
	}

	store.fetchErr = nil
	require.NoError(t, state.Refresh(context.Background()))
	assert.NoError(t, state.Err())
}

func TestCartStateFingerprintIgnoresOrder(t *testing.T) {
	a := withProduct(line("a", 7, "10.00", 2), product(7, "Desk Lamp", "10.00"))
	b := withProduct(line("b", 3, "5.00", 1), product(3, "Coffee Mug", "5.00"))

	assert.Equal(t, fingerprint([]models.CartLineWithProduct{a, b}), fingerprint([]models.CartLineWithProduct{b, a}))
	assert.NotEqual(t, fingerprint([]models.CartLineWithProduct{a}), fingerprint([]models.CartLineWithProduct{a, b}))

	bumped := a
	bumped.Quantity = 3
	assert.NotEqual(t, fingerprint([]models.CartLineWithProduct{a}), fingerprint([]models.CartLineWithProduct{bumped}))
}

func TestCartStateDropsSupersededResult(t *testing.T) {
	fetcher := newGatedFetcher()
	state := NewCartState(fetcher)
	defer state.Close()

	stale := []models.CartLineWithProduct{withProduct(line("a", 7, "10.00", 2), product(7, "Desk Lamp", "10.00"))}
	fresh := []models.CartLineWithProduct{withProduct(line("a", 7, "10.00", 1), product(7, "Desk Lamp", "10.00"))}

	first := make(chan error, 1)
	go func() { first <- state.Refresh(context.Background()) }()
	firstReply := <-fetcher.calls

	second := make(chan error, 1)
	go func() { second <- state.Refresh(context.Background()) }()
	secondReply := <-fetcher.calls

	secondReply <- fetchResult{lines: fresh}
	require.NoError(t, <-second)

	firstReply <- fetchResult{lines: stale}
	require.NoError(t, <-first)

	snap := state.Snapshot()
	require.Len(t, snap.Lines, 1)
	assert.Equal(t, 1, snap.Lines[0].Quantity)
	assert.Equal(t, uint64(2), snap.Generation)
}

func TestCartStateCloseDiscardsInFlightRefresh(t *testing.T) {
	fetcher := newGatedFetcher()
	state := NewCartState(fetcher)

	done := make(chan error, 1)
	go func() { done <- state.Refresh(context.Background()) }()
	<-fetcher.calls

	state.Close()
	select {
	case err := <-done:
		assert.ErrorIs(t, err, ErrStateClosed)
	case <-time.After(2 * time.Second):
		t.Fatal("refresh was not cancelled by Close")
	}

	assert.True(t, state.Closed())
	select {
	case <-state.Done():
	default:
		t.Fatal("Done not closed")
	}
	assert.True(t, state.Snapshot().IsEmpty())
	assert.ErrorIs(t, state.Refresh(context.Background()), ErrStateClosed)
}
