// © Copyright 2025-2026, the graphwire authors
// SPDX-License-Identifier: Apache-2.0

package graphtest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"sync"

	"github.com/google/uuid"

	"github.com/graphwire/graphwire-go/graphwire"
)

// DefaultBatchSize is the number of answers packed into each streamed batch
// when the client does not ask for a specific size.
const DefaultBatchSize = 50

// Server speaks the graphwire protocol over byte streams against an
// in-memory Store. One Server may serve many connections; each connection
// carries at most one transaction, matching the driver's
// one-channel-per-transaction layout.
type Server struct {
	store  *Store
	logger *slog.Logger

	mu  sync.Mutex
	log []string // method names, in arrival order
}

// NewServer wraps a store. A nil logger falls back to slog.Default().
func NewServer(store *Store, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{store: store, logger: logger}
}

// Store exposes the backing store for seeding.
func (s *Server) Store() *Store {
	return s.store
}

// RequestLog returns the method names of every request served so far.
func (s *Server) RequestLog() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]string(nil), s.log...)
}

// RequestCount reports how many requests of one method have been served.
func (s *Server) RequestCount(method string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, m := range s.log {
		if m == method {
			n++
		}
	}
	return n
}

func (s *Server) record(method string) {
	s.mu.Lock()
	s.log = append(s.log, method)
	s.mu.Unlock()
}

// Transport returns a driver transport whose every dial spawns a served
// in-process pipe connection.
func (s *Server) Transport() graphwire.Transport {
	return graphwire.TransportFunc(func(_ context.Context) (io.ReadWriteCloser, error) {
		client, server := net.Pipe()
		go s.ServeConn(server)
		return client, nil
	})
}

// cursor is the server-side continuation state of one streamed answer.
type cursor struct {
	items     []*graphwire.Concept
	pos       int
	batchSize int
}

// txState is the per-connection transaction, if one is open. A READ
// transaction holds a reference to the committed keyspace; a WRITE
// transaction holds a private clone until commit swaps it in.
type txState struct {
	ks      *keyspace
	mode    graphwire.TransactionMode
	cursors map[string]*cursor
}

// ServeConn serves requests from one connection until the peer closes it.
// A connection that ends with an uncommitted WRITE transaction discards the
// staged state, which is how the driver expresses rollback.
func (s *Server) ServeConn(conn io.ReadWriteCloser) {
	defer conn.Close()

	var tx *txState
	for {
		req, err := graphwire.ReadRequest(conn)
		if errors.Is(err, io.EOF) {
			return
		}
		if err != nil {
			// mid-stream failure leaves the framing unusable
			graphwire.WriteError(conn, "", err)
			return
		}

		s.record(req.Method)
		tx, err = s.dispatch(conn, req, tx)
		req.Release()
		if err != nil {
			s.logger.Debug("connection ended", "error", err)
			return
		}
	}
}

// dispatch handles one request, writing exactly one response stream. The
// returned txState replaces the connection's current one. A non-nil error
// means the connection is unusable.
func (s *Server) dispatch(conn io.Writer, req *graphwire.Request, tx *txState) (*txState, error) {
	reply, newTx, err := s.handle(req, tx)
	if err != nil {
		return tx, graphwire.WriteError(conn, req.RequestID, err)
	}
	return newTx, reply(conn, req.RequestID)
}

// replyFunc writes one response stream.
type replyFunc func(w io.Writer, requestID string) error

func ack() replyFunc {
	return func(w io.Writer, requestID string) error {
		return graphwire.WriteAck(w, requestID)
	}
}

func result(payload any) replyFunc {
	return func(w io.Writer, requestID string) error {
		return graphwire.WriteResult(w, requestID, payload)
	}
}

// handle decodes and executes one request. Errors returned here become
// EXCEPTION batches; the connection survives them.
func (s *Server) handle(req *graphwire.Request, tx *txState) (replyFunc, *txState, error) {
	switch req.Method {
	case graphwire.MethodSessionOpen:
		var p graphwire.SessionOpenParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, tx, err
		}
		id := s.store.openSession(p.Keyspace)
		return result(graphwire.SessionOpenResult{SessionID: id}), tx, nil

	case graphwire.MethodSessionClose:
		var p graphwire.SessionCloseParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, tx, err
		}
		if err := s.store.closeSession(p.SessionID); err != nil {
			return nil, tx, err
		}
		return ack(), tx, nil

	case graphwire.MethodKeyspaceDelete:
		var p graphwire.KeyspaceDeleteParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, tx, err
		}
		s.store.deleteKeyspace(p.Name)
		return ack(), tx, nil

	case graphwire.MethodKeyspaceRetrieve:
		return result(graphwire.KeyspacesResult{Names: s.store.keyspaceNames()}), tx, nil

	case graphwire.MethodTransactionOpen:
		var p graphwire.TransactionOpenParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, tx, err
		}
		if tx != nil {
			return nil, tx, fmt.Errorf("connection already carries a transaction")
		}
		ksName, ok := s.store.sessionKeyspace(p.SessionID)
		if !ok {
			return nil, tx, fmt.Errorf("unknown session %q", p.SessionID)
		}
		newTx, err := s.openTx(ksName, graphwire.TransactionMode(p.Mode))
		if err != nil {
			return nil, tx, err
		}
		return ack(), newTx, nil

	case graphwire.MethodTransactionCommit:
		if tx == nil {
			return nil, tx, fmt.Errorf("no open transaction")
		}
		if tx.mode != graphwire.ModeWrite {
			return nil, tx, fmt.Errorf("commit on a %s transaction", tx.mode)
		}
		s.store.commit(tx.ks)
		return ack(), nil, nil

	case graphwire.MethodIterContinue:
		var p graphwire.IterContinueParams
		if err := req.DecodeParams(&p); err != nil {
			return nil, tx, err
		}
		if tx == nil {
			return nil, tx, fmt.Errorf("no open transaction")
		}
		cur, ok := tx.cursors[p.Token]
		if !ok {
			return nil, tx, fmt.Errorf("unknown continuation token %q", p.Token)
		}
		return s.page(tx, p.Token, cur), tx, nil
	}

	if tx == nil {
		return nil, tx, fmt.Errorf("method %q requires an open transaction", req.Method)
	}
	reply, err := s.handleTx(req, tx)
	return reply, tx, err
}

func (s *Server) openTx(ksName string, mode graphwire.TransactionMode) (*txState, error) {
	switch mode {
	case graphwire.ModeRead:
		ks, ok := s.store.snapshot(ksName)
		if !ok {
			return nil, fmt.Errorf("unknown keyspace %q", ksName)
		}
		return &txState{ks: ks, mode: mode, cursors: make(map[string]*cursor)}, nil
	case graphwire.ModeWrite:
		ks, ok := s.store.stage(ksName)
		if !ok {
			return nil, fmt.Errorf("unknown keyspace %q", ksName)
		}
		return &txState{ks: ks, mode: mode, cursors: make(map[string]*cursor)}, nil
	default:
		return nil, fmt.Errorf("unknown transaction mode %q", mode)
	}
}

// stream starts a cursor over the answers and writes its first page.
func (s *Server) stream(tx *txState, items []*graphwire.Concept, batchSize int64) replyFunc {
	size := int(batchSize)
	if size <= 0 {
		size = DefaultBatchSize
	}
	cur := &cursor{items: items, batchSize: size}
	token := uuid.NewString()
	tx.cursors[token] = cur
	return s.page(tx, token, cur)
}

// page writes one batch of a cursor's answers, with either a continuation
// token or the end marker. An exhausted cursor is dropped.
func (s *Server) page(tx *txState, token string, cur *cursor) replyFunc {
	end := cur.pos + cur.batchSize
	if end > len(cur.items) {
		end = len(cur.items)
	}
	slice := cur.items[cur.pos:end]
	cur.pos = end
	done := cur.pos >= len(cur.items)
	if done {
		delete(tx.cursors, token)
	}

	wire := make([]graphwire.WireConcept, 0, len(slice))
	for _, c := range slice {
		wc, err := graphwire.EncodeConcept(c)
		if err != nil {
			return func(w io.Writer, requestID string) error {
				return graphwire.WriteError(w, requestID, err)
			}
		}
		wire = append(wire, *wc)
	}
	return func(w io.Writer, requestID string) error {
		return graphwire.WriteConceptBatch(w, requestID, wire, token, done)
	}
}
