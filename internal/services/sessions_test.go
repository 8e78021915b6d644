package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionRegistryGet(t *testing.T) {
	reg := NewSessionRegistry(newMemoryStore())
	defer reg.Close()

	a := reg.Get("a")
	assert.Same(t, a, reg.Get("a"))
	assert.NotSame(t, a, reg.Get("b"))
	assert.Equal(t, 2, reg.Len())
	assert.Equal(t, "a", a.ID)
	require.NotNil(t, a.Cart)
	require.NotNil(t, a.Notices)
}

func TestSessionRegistryEvictsIdle(t *testing.T) {
	now := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	reg := NewSessionRegistry(newMemoryStore())
	reg.now = func() time.Time { return now }

	idle := reg.Get("idle")
	now = now.Add(20 * time.Minute)
	active := reg.Get("active")
	now = now.Add(5 * time.Minute)

	assert.Equal(t, 1, reg.Evict(15*time.Minute))
	assert.Equal(t, 1, reg.Len())
	assert.True(t, idle.Cart.State().Closed())
	assert.False(t, active.Cart.State().Closed())
	assert.Same(t, active, reg.Get("active"))

	reg.Close()
	assert.Equal(t, 0, reg.Len())
	assert.True(t, active.Cart.State().Closed())
}

func TestSessionRegistryRunStopsWithContext(t *testing.T) {
	reg := NewSessionRegistry(newMemoryStore())
	reg.Get("a")

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		reg.Run(ctx, time.Millisecond, 0)
		close(done)
	}()

	assert.Eventually(t, func() bool { return reg.Len() == 0 }, time.Second, time.Millisecond)
	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
}
