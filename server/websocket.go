// File: server/websocket.go
// Package server: WebSocketServer accepts plain TCP sockets and upgrades
// each one to a WebSocket connection through websocket.Accept,
// sharing StreamServer's admission control, socket option application, and
// connection table shape. The handshake read/write happens on its own
// goroutine per accepted socket (so one slow or malicious handshake can't
// stall the accept loop), and only a connection that completes it is ever
// registered or started.
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
	"github.com/momentics/netcore/internal/sockopt"
	"github.com/momentics/netcore/pool"
	"github.com/momentics/netcore/reactor"
	"github.com/momentics/netcore/websocket"
)

// WebSocketServer accepts TCP connections and performs the RFC 6455
// upgrade handshake on each before handing it to the embedder's Handler.
type WebSocketServer struct {
	cfg     Config
	handler api.Handler
	logger  *log.Logger

	rx      reactor.Reactor
	bufPool *pool.BufferPool

	listener net.Listener

	mu     sync.Mutex
	conns  map[uint32]*websocket.Connection
	nextID uint32
}

// NewWebSocketServer constructs a WebSocketServer.
func NewWebSocketServer(handler api.Handler, opts ...Option) *WebSocketServer {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &WebSocketServer{
		cfg:     cfg,
		handler: handler,
		logger:  log.Default(),
		rx:      reactor.NewLoop(),
		bufPool: pool.NewBufferPool(cfg.ReadBufferSize),
		conns:   make(map[uint32]*websocket.Connection),
	}
}

// WithLogger overrides the server's logger (default log.Default()).
func (s *WebSocketServer) WithLogger(l *log.Logger) *WebSocketServer {
	s.logger = l
	return s
}

// ConnectionCount reports how many upgraded connections are registered.
func (s *WebSocketServer) ConnectionCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.conns)
}

// Broadcast sends payload, wrapped as a WebSocket binary frame, to every
// currently registered connection. See StreamServer.Broadcast for the
// drop-on-backpressure semantics.
func (s *WebSocketServer) Broadcast(payload []byte) int {
	s.mu.Lock()
	targets := make([]*websocket.Connection, 0, len(s.conns))
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
// connections — performing the WebSocket upgrade on each — until ctx is
// cancelled.
func (s *WebSocketServer) Run(ctx context.Context) error {
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

func (s *WebSocketServer) acceptLoop() {
	for {
		rawConn, err := s.listener.Accept()
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return
			}
			s.logger.Printf("netcore: accept error: %v", err)
			continue
		}
		go s.handleAccept(rawConn)
	}
}

func (s *WebSocketServer) handleAccept(rawConn net.Conn) {
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

	c, err := websocket.Accept(websocket.AcceptConfig{
		ID:                id,
		Socket:            rawConn,
		Reactor:           s.rx,
		Handler:           wsTrackingHandler{s: s, id: id, real: s.handler},
		MaxSendQueue:      s.cfg.MaxSendQueueSize,
		HeartbeatInterval: s.cfg.HeartbeatInterval,
		Logger:            s.logger,
	})
	if err != nil {
		s.logger.Printf("netcore: websocket handshake failed for %s: %v", rawConn.RemoteAddr(), err)
		_ = rawConn.Close()
		return
	}

	s.mu.Lock()
	s.conns[id] = c
	s.mu.Unlock()

	c.Start(s.bufPool)
}

type wsTrackingHandler struct {
	s    *WebSocketServer
	id   uint32
	real api.Handler
}

func (t wsTrackingHandler) OnOpen(c api.Connection) {
	if t.real != nil {
		t.real.OnOpen(c)
	}
}

func (t wsTrackingHandler) OnMessage(c api.Connection, payload []byte) {
	if t.real != nil {
		t.real.OnMessage(c, payload)
	}
}

func (t wsTrackingHandler) OnClose(c api.Connection) {
	t.s.mu.Lock()
	delete(t.s.conns, t.id)
	t.s.mu.Unlock()
	if t.real != nil {
		t.real.OnClose(c)
	}
}

var _ api.Handler = wsTrackingHandler{}
