// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import (
	"context"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/ipc"
	"github.com/google/uuid"
)

// channel owns one duplex byte stream and serializes request/response
// exchanges over it: exactly one request is in flight at a time, and
// concurrent callers queue on the exchange lock in arrival order. A channel
// that observes a transport failure closes permanently; a server rejection
// leaves it open.
type channel struct {
	conn     io.ReadWriteCloser
	logger   *slog.Logger
	hook     CallHook
	keyspace string
	ipcOpts  []ipc.Option

	mu        sync.Mutex // serializes exchanges
	closeOnce sync.Once
	closed    atomic.Bool
	failure   atomic.Pointer[Error] // first transport failure, if any
}

func newChannel(conn io.ReadWriteCloser, logger *slog.Logger, hook CallHook, keyspace string, ipcOpts []ipc.Option) *channel {
	return &channel{
		conn:     conn,
		logger:   logger,
		hook:     hook,
		keyspace: keyspace,
		ipcOpts:  ipcOpts,
	}
}

// closedErr builds the error for an operation on a closed channel, chaining
// the original transport failure when the close was not deliberate.
func (c *channel) closedErr() *Error {
	var cause error
	if f := c.failure.Load(); f != nil {
		cause = f
	}
	return channelClosedf(cause, "channel is closed")
}

// fail records the first transport failure and closes the channel. Later
// operations report ChannelClosed with the failure as cause.
func (c *channel) fail(cause *Error) {
	c.failure.CompareAndSwap(nil, cause)
	c.close()
}

// close shuts the underlying stream down. Closing the stream unblocks any
// exchange waiting in conn I/O; that exchange then reports ChannelClosed.
func (c *channel) close() {
	c.closeOnce.Do(func() {
		c.closed.Store(true)
		c.conn.Close()
	})
}

// exchange sends one request and reads its complete response stream. The
// request is fully serialized before any bytes are written, so a marshalling
// defect produces no wire traffic and leaves the channel usable.
func (c *channel) exchange(ctx context.Context, method string, params any) (*response, error) {
	if c.closed.Load() {
		return nil, c.closedErr()
	}

	requestID := uuid.NewString()
	payload, err := buildRequest(method, requestID, params, tracingMetadata(ctx), c.ipcOpts...)
	if err != nil {
		return nil, err
	}

	info := CallInfo{Method: method, RequestID: requestID, Keyspace: c.keyspace}
	ctx, token := callStart(ctx, c.hook, info)

	resp, err := c.send(ctx, payload)
	callEnd(ctx, c.hook, token, info, err)
	return resp, err
}

func (c *channel) send(ctx context.Context, payload []byte) (*response, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.closed.Load() {
		return nil, c.closedErr()
	}
	if err := ctx.Err(); err != nil {
		return nil, transportf(err, "request abandoned before send")
	}

	if _, err := c.conn.Write(payload); err != nil {
		return nil, c.ioFailure(err, "writing request")
	}

	resp, err := readResponse(c.conn, c.logger)
	if err != nil {
		var gwErr *Error
		if e, ok := err.(*Error); ok {
			gwErr = e
		}
		if gwErr != nil && gwErr.Kind == ErrorServerRejected {
			// semantic rejection: the channel stays open
			return nil, err
		}
		return nil, c.ioFailure(err, "reading response")
	}
	return resp, nil
}

// ioFailure maps an I/O error during an exchange: if the channel was closed
// underneath the blocked call, the caller sees ChannelClosed; otherwise this
// is the channel's first transport failure.
func (c *channel) ioFailure(err error, during string) *Error {
	if c.closed.Load() {
		return c.closedErr()
	}
	failure, ok := err.(*Error)
	if !ok || failure.Kind != ErrorTransport {
		failure = transportf(err, "%s", during)
	}
	c.fail(failure)
	return failure
}
