package netstatus

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/events"
	"github.com/dmitrijs2005/poleshift/internal/logging"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type changes struct {
	mu  sync.Mutex
	got []Change
}

func (c *changes) add(ch Change) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.got = append(c.got, ch)
}

func (c *changes) list() []Change {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Change(nil), c.got...)
}

func TestSetMode_PublishesOnlyTransitions(t *testing.T) {
	m := NewMonitor(PingFunc(func(context.Context) error { return nil }), events.NewBus(), logging.Nop())
	var seen changes
	sub := m.OnChange(seen.add)
	defer sub.Unsubscribe()

	ctx := context.Background()
	assert.True(t, m.SetMode(ctx, ModeOnline))
	assert.False(t, m.SetMode(ctx, ModeOnline))
	assert.True(t, m.SetMode(ctx, ModeOffline))

	got := seen.list()
	require.Len(t, got, 2)
	assert.True(t, got[0].Online())
	assert.False(t, got[1].Online())
	assert.False(t, m.IsOnline())
}

func TestCheck_FollowsPing(t *testing.T) {
	var fail atomic.Bool
	m := NewMonitor(PingFunc(func(context.Context) error {
		if fail.Load() {
			return errors.New("down")
		}
		return nil
	}), events.NewBus(), logging.Nop())

	ctx := context.Background()
	assert.Equal(t, ModeOnline, m.Check(ctx))
	assert.True(t, m.IsOnline())

	fail.Store(true)
	assert.Equal(t, ModeOffline, m.Check(ctx))
	assert.False(t, m.IsOnline())
}

func TestSetSyncing(t *testing.T) {
	m := NewMonitor(PingFunc(func(context.Context) error { return nil }), events.NewBus(), logging.Nop())
	var seen changes
	m.OnChange(seen.add)

	m.SetSyncing(true)
	m.SetSyncing(true)
	assert.True(t, m.IsSyncing())
	m.SetSyncing(false)
	assert.False(t, m.IsSyncing())

	got := seen.list()
	require.Len(t, got, 2)
	assert.True(t, got[0].Syncing)
	assert.False(t, got[1].Syncing)
}

func TestRun_StopsOnCancel(t *testing.T) {
	var pings atomic.Int32
	m := NewMonitor(PingFunc(func(context.Context) error {
		pings.Add(1)
		return nil
	}), events.NewBus(), logging.Nop())

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		m.Run(ctx, 5*time.Millisecond)
		close(done)
	}()

	require.Eventually(t, func() bool { return pings.Load() >= 3 }, time.Second, time.Millisecond)
	cancel()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	assert.True(t, m.IsOnline())
}
