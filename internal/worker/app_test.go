package worker

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/dmitrijs2005/poleshift/internal/worker/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewApp_AndRunStopsOnCancel(t *testing.T) {
	lis, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	addr := lis.Addr().String()
	require.NoError(t, lis.Close())

	var c config.Config
	c.LoadDefaults()
	c.ListenAddr = addr
	c.TempDir = t.TempDir()

	app, err := NewApp(&c)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		app.Run(ctx)
		close(done)
	}()

	require.Eventually(t, func() bool {
		conn, err := net.Dial("tcp", addr)
		if err != nil {
			return false
		}
		conn.Close()
		return true
	}, 2*time.Second, 10*time.Millisecond)

	cancel()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("worker did not stop")
	}
}

func TestNewApp_BadLogLevel(t *testing.T) {
	var c config.Config
	c.LoadDefaults()
	c.LogLevel = "loud"

	_, err := NewApp(&c)
	assert.Error(t, err)
}
