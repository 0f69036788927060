package ingest

import (
	"context"
	"io"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spcguard/internal/config"
	"spcguard/internal/model"
)

func TestTCPStreamConn(t *testing.T) {
	server, client := net.Pipe()
	out := make(chan model.Measurement, 4)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan lineStats, 1)
	go func() {
		done <- handleTCPStreamConn(ctx, server, config.NewStaticManager(config.DefaultConfig()), NewParser(), out, nil)
	}()
	_, err := io.WriteString(client, "2026-02-23 12:00:00 ph value=3.4 batch=L1\n"+
		"garbage\n"+
		"\n"+
		"2026-02-23 12:01:00 ph value=3.5 valid=false\n"+
		"2026-02-23 12:02:00 ph value=3.6\n")
	require.NoError(t, err)
	require.NoError(t, client.Close())
	stats := <-done

	assert.Equal(t, lineStats{accepted: 2, excluded: 1, rejected: 1}, stats)
	require.Len(t, out, 2)
	first := <-out
	assert.Equal(t, "ph", first.ParameterID)
	assert.Equal(t, 3.4, first.Value)
	assert.Equal(t, "L1", first.BatchID)
	assert.Equal(t, "tcp", first.Source)
	second := <-out
	assert.Equal(t, 3.6, second.Value)
}

func TestTCPStreamCancelClosesConnections(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	out := make(chan model.Measurement, 4)
	ctx, cancel := context.WithCancel(context.Background())

	served := make(chan struct{})
	go func() {
		serveTCPStream(ctx, ln, config.NewStaticManager(config.DefaultConfig()), out, nil)
		close(served)
	}()

	conn, err := net.Dial("tcp", ln.Addr().String())
	require.NoError(t, err)
	defer conn.Close()
	_, err = io.WriteString(conn, "2026-02-23 12:00:00 ph value=3.41\n")
	require.NoError(t, err)

	select {
	case m := <-out:
		assert.Equal(t, 3.41, m.Value)
	case <-time.After(2 * time.Second):
		t.Fatal("no measurement received")
	}

	cancel()
	select {
	case <-served:
	case <-time.After(2 * time.Second):
		t.Fatal("listener did not stop")
	}
}
