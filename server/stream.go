// File: server/stream.go
// Package server: StreamServer implements spec §4.5's start()/accept loop
// over plain TCP, with admission control, per-connection socket option
// application, and a connection table keyed by id (handlers capture the
// id, not the *conn.Connection pointer, so a lookup stays the single
// source of truth for "is this connection still registered").
// Grounded in the teacher's server/server.go accept-loop shape (a
// goroutine looping on listener.Accept, one goroutine per connection)
// and in original_source/include/uv_net/server_config.h for the default
// values DefaultConfig returns.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package server

import (
	"context"
	"errors"
	"log"
	"net"
	"sync"

	"github.com/momentics/netcore/api"
	"github.com/momentics/netcore/conn"
	"github.com/momentics/netcore/internal/sockopt"
	"github.com/momentics/netcore/pool"
	"github.com/momentics/netcore/protocol"
	"github.com/momentics/netcore/reactor"
)

// StreamServer accepts plain TCP connections framed with a Protocol
// (FixedSize by default).
type StreamServer struct {
	cfg     Config
	handler api.Handler
	logger  *log.Logger
	proto   protocol.Protocol

	rx      reactor.Reactor
	bufPool *pool.BufferPool

	listener net.Listener

	mu     sync.Mutex
	conns  map[uint32]*conn.Connection
	nextID uint32
}

// NewStreamServer constructs a StreamServer. handler receives lifecycle
// and message events for every accepted connection.
func NewStreamServer(handler api.Handler, opts ...Option) *StreamServer {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &StreamServer{
		cfg:     cfg,
		handler: handler,
		logger:  log.Default(),
		proto:   protocol.FixedSize{MaxLen: cfg.MaxPackageSize},
		rx:      reactor.NewLoop(),
		bufPool: pool.NewBufferPool(cfg.ReadBufferSize),
		conns:   make(map[uint32]*conn.Connection),
	}
}

// WithLogger overrides the server's logger (default log.Default()).
func (s *StreamServer) WithLogger(l *log.Logger) *StreamServer {
	s.logger = l
	return s
}

// WithProtocol overrides the framing protocol (default protocol.FixedSize).
func (s *StreamServer) WithProtocol(p protocol.Protocol) *StreamServer {
	s.proto = p
	return s
}

// ConnectionCount reports how many connections are currently registered.
func (s *StreamServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Broadcast sends payload to every currently registered connection,
// returning the number it was successfully queued to. A connection whose
// queue is full or that has since closed simply doesn't receive it — this
// mirrors Send's own drop-on-backpressure contract, just fanned out.
func (s *StreamServer) Broadcast(payload []byte) int {
	s.mu.Lock()
	targets := make([]*conn.Connection, 0, len(s.conns))
	for _, c := range s.conns {
		targets = append(targets, c)
	}
	s.mu.Unlock()

	sent := 0
	for _, c := range targets {
		if c.Send(payload) == nil {
			sent++
		}
	}
	return sent
}

// Run listens on cfg.ListenAddr, runs the reactor, and accepts
// connections until ctx is cancelled.
func (s *StreamServer) Run(ctx context.Context) error {
	lc := net.ListenConfig{Control: sockopt.ReusePortControl(s.cfg.ReusePort)}
	ln, err := lc.Listen(ctx, "tcp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	s.listener = ln

	reactorDone := make(chan struct{})
	go func() {
		_ = s.rx.Run(ctx)
		close(reactorDone)
	}()

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	s.acceptLoop()
	<-reactorDone
	return ctx.Err()
}

func (s *StreamServer) acceptLoop() {
	for {
		rawConn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Printf("netcore: accept error: %v", err)
			continue
		}
		s.handleAccept(rawConn)
	}
}

func (s *StreamServer) handleAccept(rawConn net.Conn) {
	s.mu.Lock()
	if len(s.conns) >= s.cfg.MaxConnections {
		s.mu.Unlock()
		s.logger.Printf("netcore: max connections (%d) reached, rejecting %s", s.cfg.MaxConnections, rawConn.RemoteAddr())
		_ = rawConn.Close()
		return
	}
	id := s.nextID
	s.nextID++
	s.mu.Unlock()

	applyTCPOptions(rawConn, s.cfg)

	c := conn.New(conn.Config{
		ID:                id,
		Socket:            rawConn,
		Reactor:           s.rx,
		Protocol:          s.proto,
		Handler:           trackingHandler{s: s, id: id, real: s.handler},
		MaxSendQueue:      s.cfg.MaxSendQueueSize,
		HeartbeatInterval: s.cfg.HeartbeatInterval,
		Logger:            s.logger,
		Hooks:             conn.Hooks{WrapOutbound: s.wrapOutbound},
	})

	s.mu.Lock()
	s.conns[id] = c
	s.mu.Unlock()

	c.Start(s.bufPool)
}

// wrapOutbound frames an outbound Send payload the same way s.proto parses
// inbound ones, so a FixedSize-framed client sees length-prefixed replies.
// Protocols other than FixedSize have no generic encode step, so payloads
// pass through unframed — it's up to the embedder to frame them itself via
// its own Hooks if it swapped in a custom Protocol that needs one.
func (s *StreamServer) wrapOutbound(payload []byte) ([]byte, error) {
	if fs, ok := s.proto.(protocol.FixedSize); ok {
		return fs.Encode(payload)
	}
	return payload, nil
}

func applyTCPOptions(rawConn net.Conn, cfg Config) {
	tcpConn, ok := rawConn.(*net.TCPConn)
	if !ok {
		return
	}
	_ = tcpConn.SetNoDelay(cfg.TCPNoDelay)
	if cfg.ReadBufferSize > 0 {
		_ = tcpConn.SetReadBuffer(cfg.ReadBufferSize)
	}
	if cfg.WriteBufferSize > 0 {
		_ = tcpConn.SetWriteBuffer(cfg.WriteBufferSize)
	}
}

// trackingHandler wraps the embedder's Handler so the connection table
// entry is removed exactly when OnClose fires, regardless of whether the
// close was user-initiated, a transport error, or an idle timeout.
type trackingHandler struct {
	s    *StreamServer
	id   uint32
	real api.Handler
}

func (t trackingHandler) OnOpen(c api.Connection) {
	if t.real != nil {
		t.real.OnOpen(c)
	}
}

func (t trackingHandler) OnMessage(c api.Connection, payload []byte) {
	if t.real != nil {
		t.real.OnMessage(c, payload)
	}
}

func (t trackingHandler) OnClose(c api.Connection) {
	t.s.mu.Lock()
	delete(t.s.conns, t.id)
	t.s.mu.Unlock()
	if t.real != nil {
		t.real.OnClose(c)
	}
}

var _ api.Handler = trackingHandler{}
