// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"
)

type echoParams struct {
	Tag string `graphwire:"tag"`
}

// serveAck answers every request with an empty ack, except methods named
// "reject" which get an error batch.
func serveAck(conn io.ReadWriteCloser) {
	defer conn.Close()
	for {
		req, err := ReadRequest(conn)
		if err != nil {
			return
		}
		if req.Method == "reject" {
			WriteError(conn, req.RequestID, rejectedf("TestRejection", "not allowed"))
		} else {
			WriteAck(conn, req.RequestID)
		}
		req.Release()
	}
}

func testChannel(t *testing.T, serve func(io.ReadWriteCloser)) *channel {
	t.Helper()
	client, server := net.Pipe()
	go serve(server)
	ch := newChannel(client, slog.Default(), nil, "test", nil)
	t.Cleanup(ch.close)
	return ch
}

// sequencingConn records the write/read call pattern on a connection.
// Exchanges are serialized iff the pattern is strictly "one write, then the
// response reads" with no overlapping calls: a second write before any read
// of the previous response, or any concurrent I/O call, is a violation.
type sequencingConn struct {
	net.Conn
	mu           sync.Mutex
	inCall       bool
	lastWasWrite bool
	writes       int
	violations   []string
}

func (c *sequencingConn) enter(isWrite bool) func() {
	c.mu.Lock()
	if c.inCall {
		c.violations = append(c.violations, "overlapping I/O calls")
	}
	c.inCall = true
	if isWrite {
		if c.lastWasWrite {
			c.violations = append(c.violations, "two requests written back to back")
		}
		c.writes++
	}
	c.lastWasWrite = isWrite
	c.mu.Unlock()
	return func() {
		c.mu.Lock()
		c.inCall = false
		c.mu.Unlock()
	}
}

func (c *sequencingConn) Write(p []byte) (int, error) {
	defer c.enter(true)()
	return c.Conn.Write(p)
}

func (c *sequencingConn) Read(p []byte) (int, error) {
	defer c.enter(false)()
	return c.Conn.Read(p)
}

func (c *sequencingConn) report() (int, []string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.writes, append([]string(nil), c.violations...)
}

func TestExchangeConcurrentCallersQueue(t *testing.T) {
	client, server := net.Pipe()
	go serveAck(server)
	seq := &sequencingConn{Conn: client}
	ch := newChannel(seq, slog.Default(), nil, "test", nil)
	defer ch.close()

	var g errgroup.Group
	for i := 0; i < 8; i++ {
		g.Go(func() error {
			for j := 0; j < 5; j++ {
				resp, err := ch.exchange(context.Background(), "ping", echoParams{Tag: "x"})
				if err != nil {
					return err
				}
				resp.release()
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	writes, violations := seq.report()
	assert.Equal(t, 40, writes, "every exchange is exactly one request write")
	assert.Empty(t, violations, "exchanges must serialize, never interleave wire messages")
}

type countingConn struct {
	net.Conn
	writes atomic.Int64
}

func (c *countingConn) Write(p []byte) (int, error) {
	c.writes.Add(1)
	return c.Conn.Write(p)
}

func TestMarshalDefectProducesNoTraffic(t *testing.T) {
	client, server := net.Pipe()
	go serveAck(server)
	counting := &countingConn{Conn: client}
	ch := newChannel(counting, slog.Default(), nil, "test", nil)
	defer ch.close()

	type badParams struct {
		M map[string]string `graphwire:"m"`
	}
	_, err := ch.exchange(context.Background(), "ping", badParams{M: map[string]string{"a": "b"}})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrDefect))
	assert.Zero(t, counting.writes.Load(), "defective request must never touch the wire")

	// the channel is still usable
	resp, err := ch.exchange(context.Background(), "ping", echoParams{Tag: "after"})
	require.NoError(t, err)
	resp.release()
}

func TestServerRejectionLeavesChannelOpen(t *testing.T) {
	ch := testChannel(t, serveAck)

	_, err := ch.exchange(context.Background(), "reject", echoParams{Tag: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrServerRejected))

	var gwErr *Error
	require.ErrorAs(t, err, &gwErr)
	assert.Equal(t, "TestRejection", gwErr.Type)
	assert.Equal(t, "not allowed", gwErr.Message)

	resp, err := ch.exchange(context.Background(), "ping", echoParams{Tag: "x"})
	require.NoError(t, err)
	resp.release()
}

func TestConnectionLossBecomesTransportThenClosed(t *testing.T) {
	ch := testChannel(t, func(conn io.ReadWriteCloser) {
		// read one request, then drop the connection without answering
		req, err := ReadRequest(conn)
		if err == nil {
			req.Release()
		}
		conn.Close()
	})

	_, err := ch.exchange(context.Background(), "ping", echoParams{Tag: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrTransport))

	_, err = ch.exchange(context.Background(), "ping", echoParams{Tag: "x"})
	require.Error(t, err)
	assert.True(t, errors.Is(err, ErrChannelClosed))
	assert.True(t, errors.Is(err, ErrTransport), "closed error chains the original failure")
}

func TestCloseUnblocksPendingExchange(t *testing.T) {
	stall := make(chan struct{})
	ch := testChannel(t, func(conn io.ReadWriteCloser) {
		req, err := ReadRequest(conn)
		if err == nil {
			req.Release()
		}
		<-stall // never answer
		conn.Close()
	})
	defer close(stall)

	done := make(chan error, 1)
	go func() {
		_, err := ch.exchange(context.Background(), "ping", echoParams{Tag: "x"})
		done <- err
	}()

	time.Sleep(20 * time.Millisecond) // let the exchange reach the blocking read
	ch.close()

	select {
	case err := <-done:
		require.Error(t, err)
		assert.True(t, errors.Is(err, ErrChannelClosed))
	case <-time.After(5 * time.Second):
		t.Fatal("pending exchange was not unblocked by close")
	}
}
