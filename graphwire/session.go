// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphwire

import (
	"context"
	"io"
	"log/slog"
	"sync/atomic"

	"github.com/apache/arrow-go/v18/arrow/ipc"
)

// Transport dials one duplex byte stream per exchange channel. A net.Conn
// factory satisfies it via TransportFunc.
type Transport interface {
	Dial(ctx context.Context) (io.ReadWriteCloser, error)
}

// TransportFunc adapts a dial function to the Transport interface.
type TransportFunc func(ctx context.Context) (io.ReadWriteCloser, error)

func (f TransportFunc) Dial(ctx context.Context) (io.ReadWriteCloser, error) {
	return f(ctx)
}

type options struct {
	logger   *slog.Logger
	hook     CallHook
	compress bool
	username string
	password string
}

func resolveOptions(opts []Option) options {
	o := options{logger: slog.Default()}
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

func (o options) ipcOpts() []ipc.Option {
	if o.compress {
		return []ipc.Option{ipc.WithZstd()}
	}
	return nil
}

// Option configures a session or a keyspace administration call.
type Option func(*options)

// WithLogger sets the logger that receives server-directed log batches and
// driver diagnostics. Defaults to slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(o *options) { o.logger = logger }
}

// WithCallHook installs an observability hook invoked around every exchange.
func WithCallHook(hook CallHook) Option {
	return func(o *options) { o.hook = hook }
}

// WithCompression enables zstd compression of request streams.
func WithCompression() Option {
	return func(o *options) { o.compress = true }
}

// WithCredentials attaches a username and password to keyspace
// administration calls.
func WithCredentials(username, password string) Option {
	return func(o *options) {
		o.username = username
		o.password = password
	}
}

// Session is a registered handle to one keyspace and the factory for
// transactions against it. Transactions opened from one session are
// independent; each gets its own channel. Closing the session invalidates
// the handle but does not reach into transactions already open.
type Session struct {
	transport Transport
	keyspace  string
	sessionID string
	opts      options
	closed    atomic.Bool
}

// Open registers a session against the given keyspace, creating the
// keyspace if the server does not know it yet.
func Open(ctx context.Context, transport Transport, keyspace string, opts ...Option) (*Session, error) {
	o := resolveOptions(opts)

	resp, err := exchangeOnce(ctx, transport, o, keyspace, MethodSessionOpen, SessionOpenParams{Keyspace: keyspace})
	if err != nil {
		return nil, err
	}
	defer resp.release()

	var result SessionOpenResult
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}

	o.logger.Debug("session opened", "keyspace", keyspace, "session_id", result.SessionID)
	return &Session{
		transport: transport,
		keyspace:  keyspace,
		sessionID: result.SessionID,
		opts:      o,
	}, nil
}

// Keyspace returns the keyspace this session is bound to.
func (s *Session) Keyspace() string {
	return s.keyspace
}

// Transaction opens a new transaction in the given mode on a fresh channel.
func (s *Session) Transaction(ctx context.Context, mode TransactionMode) (*Transaction, error) {
	if s.closed.Load() {
		return nil, channelClosedf(nil, "session is closed")
	}

	conn, err := s.transport.Dial(ctx)
	if err != nil {
		return nil, transportf(err, "dialling transport")
	}
	ch := newChannel(conn, s.opts.logger, s.opts.hook, s.keyspace, s.opts.ipcOpts())

	params := TransactionOpenParams{SessionID: s.sessionID, Mode: string(mode)}
	resp, err := ch.exchange(ctx, MethodTransactionOpen, params)
	if err != nil {
		ch.close()
		return nil, err
	}
	resp.release()

	return &Transaction{ch: ch, mode: mode}, nil
}

// Close deregisters the session. Closing twice is a no-op.
func (s *Session) Close(ctx context.Context) error {
	if !s.closed.CompareAndSwap(false, true) {
		return nil
	}
	resp, err := exchangeOnce(ctx, s.transport, s.opts, s.keyspace, MethodSessionClose, SessionCloseParams{SessionID: s.sessionID})
	resp.release()
	return err
}

// DeleteKeyspace removes a keyspace and everything in it.
func DeleteKeyspace(ctx context.Context, transport Transport, name string, opts ...Option) error {
	o := resolveOptions(opts)
	params := KeyspaceDeleteParams{Name: name}
	if o.username != "" {
		params.Username = &o.username
		params.Password = &o.password
	}
	resp, err := exchangeOnce(ctx, transport, o, name, MethodKeyspaceDelete, params)
	resp.release()
	return err
}

// Keyspaces lists the keyspaces the server knows.
func Keyspaces(ctx context.Context, transport Transport, opts ...Option) ([]string, error) {
	o := resolveOptions(opts)
	params := KeyspaceRetrieveParams{}
	if o.username != "" {
		params.Username = &o.username
		params.Password = &o.password
	}
	resp, err := exchangeOnce(ctx, transport, o, "", MethodKeyspaceRetrieve, params)
	if err != nil {
		return nil, err
	}
	defer resp.release()

	var result KeyspacesResult
	if err := decodeResult(resp, &result); err != nil {
		return nil, err
	}
	return result.Names, nil
}

// exchangeOnce performs one exchange over an ephemeral channel.
func exchangeOnce(ctx context.Context, transport Transport, o options, keyspace, method string, params any) (*response, error) {
	conn, err := transport.Dial(ctx)
	if err != nil {
		return nil, transportf(err, "dialling transport")
	}
	ch := newChannel(conn, o.logger, o.hook, keyspace, o.ipcOpts())
	defer ch.close()
	return ch.exchange(ctx, method, params)
}
