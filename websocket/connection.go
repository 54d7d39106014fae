// File: websocket/connection.go
// Package websocket: Connection wraps conn.Connection with RFC 6455
// framing, overriding its Hooks so that inbound bytes run through
// ParseFrame instead of a length-prefixed protocol, and outbound payloads
// are wrapped as unmasked data frames (a server never masks its own
// frames, per RFC 6455 §5.1). Control frames (ping/pong/close) are
// handled here and never reach the embedder's Handler.
// Grounded in the teacher's protocol/connection.go, whose handleControl
// dispatches ping/pong/close the same way; rebuilt on top of
// conn.Connection's single send queue instead of the teacher's separate
// inbox/outbox channels, so control and data frames share one
// write-in-flight slot and can't be reordered on the wire.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package websocket

import (
	"io"
	"log"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/momentics/netcore/api"
	"github.com/momentics/netcore/conn"
	"github.com/momentics/netcore/protocol"
	"github.com/momentics/netcore/reactor"
)

// Connection is a WebSocket connection: conn.Connection's lifecycle,
// queueing, and heartbeat, framed per RFC 6455.
type Connection struct {
	*conn.Connection
	handler     api.Handler
	buf         []byte
	subprotocol string
	logger      *log.Logger
}

// Subprotocol returns the negotiated Sec-WebSocket-Protocol value, or the
// empty string if the client didn't request one.
func (w *Connection) Subprotocol() string { return w.subprotocol }

// AcceptConfig bundles the arguments Accept needs.
type AcceptConfig struct {
	ID                uint32
	Socket            net.Conn
	Reactor           reactor.Reactor
	Handler           api.Handler
	MaxSendQueue      int
	HeartbeatInterval time.Duration
	Logger            *log.Logger
}

// Accept performs the HTTP upgrade handshake on cfg.Socket and, on
// success, returns a Connection in the Open state ready for Start. The
// handshake read/write happens synchronously on the caller's goroutine
// (ordinarily the server's accept loop, handing off to a fresh goroutine
// per connection before calling Accept), since it must complete before
// any reactor-driven read loop takes over the socket.
func Accept(cfg AcceptConfig) (*Connection, error) {
	hs, err := DoHandshake(cfg.Socket)
	if err != nil {
		return nil, err
	}
	if err := writeHandshakeResponse(cfg.Socket, hs.ResponseHeader); err != nil {
		return nil, err
	}

	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}
	w := &Connection{handler: cfg.Handler, subprotocol: hs.Subprotocol, logger: logger}
	lowerCfg := conn.Config{
		ID:                cfg.ID,
		Socket:            cfg.Socket,
		Reactor:           cfg.Reactor,
		Protocol:          protocol.Raw{},
		Handler:           handlerShim{w: w},
		MaxSendQueue:      cfg.MaxSendQueue,
		HeartbeatInterval: cfg.HeartbeatInterval,
		Logger:            logger,
		Hooks: conn.Hooks{
			Consume:      func(_ *conn.Connection, data []byte) { w.consume(data) },
			WrapOutbound: func(payload []byte) ([]byte, error) { return EncodeFrame(OpBinary, payload, false) },
		},
	}
	w.Connection = conn.New(lowerCfg)
	return w, nil
}

func writeHandshakeResponse(w io.Writer, hdr http.Header) error {
	var b strings.Builder
	b.WriteString("HTTP/1.1 101 Switching Protocols\r\n")
	for k, vs := range hdr {
		for _, v := range vs {
			b.WriteString(k)
			b.WriteString(": ")
			b.WriteString(v)
			b.WriteString("\r\n")
		}
	}
	b.WriteString("\r\n")
	_, err := io.WriteString(w, b.String())
	return err
}

// consume runs on the reactor goroutine (invoked via conn.Connection's
// Hooks.Consume), parsing as many complete frames as are buffered and
// dispatching each in arrival order before returning.
func (w *Connection) consume(data []byte) {
	w.buf = append(w.buf, data...)
	for {
		frame, n, status := ParseFrame(w.buf)
		switch status {
		case protocol.Incomplete:
			return
		case protocol.Fatal:
			w.logger.Printf("netcore: connection %d: invalid websocket frame, closing", w.ID())
			w.Connection.Close()
			return
		case protocol.Complete:
			w.dispatch(frame)
			remaining := copy(w.buf, w.buf[n:])
			w.buf = w.buf[:remaining]
		}
	}
}

func (w *Connection) dispatch(f Frame) {
	switch f.Opcode {
	case OpText, OpBinary:
		if w.handler != nil {
			w.handler.OnMessage(w, f.Payload)
		}
	case OpPing:
		pong, err := EncodeFrame(OpPong, f.Payload, false)
		if err != nil {
			w.logger.Printf("netcore: connection %d: failed to encode pong: %v", w.ID(), err)
			return
		}
		_ = w.Connection.SendRaw(pong)
	case OpPong:
		// Heartbeat tracks last-active off every read, not specifically
		// off pongs; nothing further to do.
	case OpClose:
		closeFrame, err := EncodeFrame(OpClose, f.Payload, false)
		if err == nil {
			_ = w.Connection.SendRaw(closeFrame)
		}
		w.Connection.Close()
	default:
		w.logger.Printf("netcore: connection %d: unsupported opcode %#x, closing", w.ID(), f.Opcode)
		w.Connection.Close()
	}
}

// handlerShim adapts conn.Connection's OnOpen/OnClose calls — which pass
// the *conn.Connection itself as the api.Connection argument — into the
// wrapping *websocket.Connection the embedder actually registered a
// Handler against. OnMessage is never invoked through conn.Connection for
// a WebSocket connection (consume/dispatch call the real handler
// directly), but the method is implemented to satisfy api.Handler.
type handlerShim struct {
	w *Connection
}

func (s handlerShim) OnOpen(api.Connection) {
	if s.w.handler != nil {
		s.w.handler.OnOpen(s.w)
	}
}

func (s handlerShim) OnMessage(_ api.Connection, payload []byte) {
	if s.w.handler != nil {
		s.w.handler.OnMessage(s.w, payload)
	}
}

func (s handlerShim) OnClose(api.Connection) {
	if s.w.handler != nil {
		s.w.handler.OnClose(s.w)
	}
}

var _ api.Connection = (*Connection)(nil)
var _ api.Handler = handlerShim{}
