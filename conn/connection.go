// File: conn/connection.go
// Package conn implements the Connection lifecycle spec §3/§4.3 describe:
// a socket wrapped in a receive buffer + stateless framing protocol, a
// bounded non-blocking send queue, a write-in-flight flag, a heartbeat
// timer, and a one-way close state machine. Read processing, OnMessage
// dispatch, write completions, and heartbeat checks run on the reactor
// goroutine. Start fires OnOpen on the goroutine that calls it, and Send
// and Close change state under a mutex on whichever goroutine calls them,
// so a Close with nothing left to write fires OnClose on the caller's
// goroutine. A per-connection driver goroutine owns the blocking socket reads and
// hands bytes to the reactor via Post, the way the teacher's
// protocol/connection.go hands inbound frames from its recvLoop goroutine
// to channel-driven dispatch. The send queue itself is guarded by a plain
// mutex rather than reactor-thread-only discipline, since Send must be
// callable from any embedder goroutine (a timer, an HTTP handler, a
// broadcast loop) without requiring the caller to know about Post.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package conn

import (
	"errors"
	"io"
	"log"
	"net"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/eapache/queue"
	"github.com/momentics/netcore/api"
	"github.com/momentics/netcore/pool"
	"github.com/momentics/netcore/protocol"
	"github.com/momentics/netcore/reactor"
)

// Hooks lets a wrapping type (websocket.Connection) override how inbound
// bytes are consumed and how outbound payloads are framed, without
// Connection needing to know about WebSocket framing itself. The zero
// Hooks value is filled in with framing-protocol defaults by New.
type Hooks struct {
	// Consume is invoked with each chunk of freshly-read bytes. The default
	// appends to the connection's receive buffer and runs the attached
	// Protocol's Parse loop, dispatching complete frames to the handler.
	Consume func(c *Connection, data []byte)

	// WrapOutbound transforms a payload before it is queued for write. The
	// default is the identity function.
	WrapOutbound func(payload []byte) ([]byte, error)
}

// Connection is one accepted socket: TCP or the lower layer of a WebSocket
// upgrade. Exported methods are safe to call from any goroutine.
type Connection struct {
	id         uint32
	remoteIP   string
	remotePort int
	socket     net.Conn
	rx         reactor.Reactor
	proto      protocol.Protocol
	handler    api.Handler
	hooks      Hooks
	logger     *log.Logger

	maxQueue int

	mu            sync.Mutex
	state         State
	recvBuf       []byte
	sendQueue     *queue.Queue
	queueLen      int
	writeInFlight bool

	heartbeatInterval time.Duration
	heartbeatRunning  bool
	heartbeatTimer    reactor.Timer

	createdAt time.Time
	lastActiveNanos int64

	closeOnce sync.Once
}

// Config bundles the arguments New needs; grouped into a struct since the
// list is long and most callers only customize a few fields.
type Config struct {
	ID                uint32
	Socket            net.Conn
	Reactor           reactor.Reactor
	Protocol          protocol.Protocol
	Handler           api.Handler
	MaxSendQueue      int
	HeartbeatInterval time.Duration
	Hooks             Hooks
	Logger            *log.Logger
}

// New constructs a Connection in the Open state. It does not start the
// driver goroutine, the heartbeat, or fire OnOpen — call Start for that,
// once the connection is actually ready (immediately for TCP, after a
// successful handshake for WebSocket).
func New(cfg Config) *Connection {
	proto := cfg.Protocol
	if proto == nil {
		proto = protocol.Raw{}
	}
	hooks := cfg.Hooks
	if hooks.Consume == nil {
		hooks.Consume = defaultConsume
	}
	if hooks.WrapOutbound == nil {
		hooks.WrapOutbound = identityWrap
	}
	maxQueue := cfg.MaxSendQueue
	if maxQueue <= 0 {
		maxQueue = 1000
	}
	logger := cfg.Logger
	if logger == nil {
		logger = log.Default()
	}

	host, portStr, _ := net.SplitHostPort(cfg.Socket.RemoteAddr().String())
	port, _ := strconv.Atoi(portStr) // malformed RemoteAddr leaves port at 0

	c := &Connection{
		id:                cfg.ID,
		remoteIP:          host,
		remotePort:        port,
		socket:            cfg.Socket,
		rx:                cfg.Reactor,
		proto:             proto,
		handler:           cfg.Handler,
		hooks:             hooks,
		logger:            logger,
		maxQueue:          maxQueue,
		sendQueue:         queue.New(),
		heartbeatInterval: cfg.HeartbeatInterval,
		createdAt:         time.Now(),
	}
	c.touchLastActive()
	return c
}

func identityWrap(payload []byte) ([]byte, error) { return payload, nil }

// ID implements api.Connection.
func (c *Connection) ID() uint32 { return c.id }

// RemoteIP implements api.Connection.
func (c *Connection) RemoteIP() string { return c.remoteIP }

// RemotePort implements api.Connection.
func (c *Connection) RemotePort() int { return c.remotePort }

// CreatedAt reports when the connection was constructed.
func (c *Connection) CreatedAt() time.Time { return c.createdAt }

// State reports the connection's current close state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Start fires OnOpen, starts the heartbeat timer (if configured), and
// launches the driver goroutine that performs blocking reads from bufPool
// buffers.
func (c *Connection) Start(bufPool *pool.BufferPool) {
	if c.handler != nil {
		c.handler.OnOpen(c)
	}
	c.startHeartbeat()
	go c.readLoop(bufPool)
}

// Send implements api.Connection. Safe to call from any goroutine: the
// payload is wrapped and queued under c.mu, and a write is kicked off in a
// new goroutine if none is already in flight. Returns ErrConnectionClosed
// once the connection is no longer Open, or ErrQueueFull if the queue is
// already at capacity — in both cases the payload is dropped, per spec's
// back-pressure contract.
func (c *Connection) Send(payload []byte) error {
	wrapped, err := c.hooks.WrapOutbound(payload)
	if err != nil {
		return err
	}
	return c.enqueue(wrapped)
}

// SendRaw queues frame for write exactly as given, bypassing
// Hooks.WrapOutbound. It shares Send's queue and write-in-flight
// machinery, so out-of-band frames (a WebSocket pong, a close frame)
// enqueued this way still interleave correctly with application payloads
// instead of racing a concurrent write against them.
func (c *Connection) SendRaw(frame []byte) error {
	return c.enqueue(frame)
}

func (c *Connection) enqueue(wrapped []byte) error {
	owned := append([]byte(nil), wrapped...)

	c.mu.Lock()
	if c.state != Open {
		c.mu.Unlock()
		return api.ErrConnectionClosed
	}
	if c.queueLen >= c.maxQueue {
		c.mu.Unlock()
		c.logger.Printf("netcore: connection %d: send queue full (max %d), dropping %d bytes", c.id, c.maxQueue, len(owned))
		return api.ErrQueueFull
	}
	c.sendQueue.Add(owned)
	c.queueLen++
	c.mu.Unlock()

	c.touchLastActive()
	c.trySend()
	return nil
}

// trySend pops the next queued buffer and issues its write, unless a write
// is already in flight or the queue is empty.
func (c *Connection) trySend() {
	c.mu.Lock()
	if c.writeInFlight || c.queueLen == 0 {
		c.mu.Unlock()
		return
	}
	buf := c.sendQueue.Remove().([]byte)
	c.queueLen--
	c.writeInFlight = true
	c.mu.Unlock()

	go c.doWrite(buf)
}

// doWrite performs the actual blocking socket write off the reactor
// goroutine, then posts the completion back so that queue state and
// handler callbacks stay single-threaded.
func (c *Connection) doWrite(buf []byte) {
	_, err := c.socket.Write(buf)
	if postErr := c.rx.Post(func() { c.onWriteComplete(err) }); postErr != nil {
		// Reactor already stopped; nothing left to notify.
		return
	}
}

// onWriteComplete runs on the reactor goroutine.
func (c *Connection) onWriteComplete(err error) {
	c.mu.Lock()
	c.writeInFlight = false
	state := c.state
	c.mu.Unlock()

	if err != nil {
		if state == Closed {
			// Benign: this write overlapped our own close() and the
			// resulting error is just the socket reporting that.
			return
		}
		c.logger.Printf("netcore: connection %d: write error: %v", c.id, err)
		c.forceClose()
		return
	}

	c.touchLastActive()
	c.trySend()

	c.mu.Lock()
	drained := c.state == ClosingGracefully && c.queueLen == 0 && !c.writeInFlight
	if drained {
		c.state = Closed
	}
	c.mu.Unlock()
	if drained {
		c.teardown()
	}
}

// Close implements api.Connection: idempotent graceful close. If nothing
// is queued and no write is in flight, transitions straight to Closed;
// otherwise transitions to ClosingGracefully and lets onWriteComplete
// finish the job once the queue drains.
func (c *Connection) Close() {
	c.mu.Lock()
	switch c.state {
	case Closed, ClosingGracefully:
		c.mu.Unlock()
		return
	}
	if c.queueLen == 0 && !c.writeInFlight {
		c.state = Closed
		c.mu.Unlock()
		c.teardown()
		return
	}
	c.state = ClosingGracefully
	c.mu.Unlock()
	c.stopHeartbeat()
}

// forceClose transitions straight to Closed regardless of queue state,
// used for transport errors, fatal frames, and idle timeout — none of
// which leave a socket worth draining writes to.
func (c *Connection) forceClose() {
	c.mu.Lock()
	if c.state == Closed {
		c.mu.Unlock()
		return
	}
	c.state = Closed
	c.mu.Unlock()
	c.teardown()
}

// teardown stops the heartbeat, closes the socket, and fires OnClose
// exactly once.
func (c *Connection) teardown() {
	c.stopHeartbeat()
	c.closeOnce.Do(func() {
		_ = c.socket.Close()
		if c.handler != nil {
			c.handler.OnClose(c)
		}
	})
}

// onDataReceived runs on the reactor goroutine, dispatched from readLoop.
func (c *Connection) onDataReceived(data []byte) {
	if c.State() == Closed {
		return
	}
	c.touchLastActive()
	c.hooks.Consume(c, data)
}

// defaultConsume is the framing-protocol Hooks.Consume used for plain TCP
// connections: append to the receive buffer, then run Parse in a loop,
// dispatching each complete frame and compacting the buffer.
func defaultConsume(c *Connection, data []byte) {
	c.recvBuf = append(c.recvBuf, data...)
	for {
		res := c.proto.Parse(c.recvBuf)
		switch res.Status {
		case protocol.Incomplete:
			return
		case protocol.Fatal:
			c.logger.Printf("netcore: connection %d: unparseable frame, closing", c.id)
			c.forceClose()
			return
		case protocol.Complete:
			payloadStart := res.FrameLen - res.PayloadLen
			payload := c.recvBuf[payloadStart:res.FrameLen]
			if c.handler != nil {
				c.handler.OnMessage(c, payload)
			}
			remaining := copy(c.recvBuf, c.recvBuf[res.FrameLen:])
			c.recvBuf = c.recvBuf[:remaining]
		}
	}
}

// readLoop is the driver goroutine: blocking reads off a pooled buffer,
// copied into owned storage and posted to the reactor. The driver waits
// for each posted chunk to finish processing before issuing the next
// read, so the pooled buffer is never reused while the reactor might
// still be looking at a copy taken from it, and frames are delivered to
// the handler in the order they arrived on the wire.
func (c *Connection) readLoop(bufPool *pool.BufferPool) {
	for {
		buf := bufPool.Acquire()
		n, err := c.socket.Read(buf)
		if n > 0 {
			data := make([]byte, n)
			copy(data, buf[:n])
			bufPool.Release(buf)

			done := make(chan struct{})
			if postErr := c.rx.Post(func() {
				c.onDataReceived(data)
				close(done)
			}); postErr != nil {
				return
			}
			<-done
		} else {
			bufPool.Release(buf)
		}
		if err != nil {
			if postErr := c.rx.Post(func() { c.onReadError(err) }); postErr != nil {
				return
			}
			return
		}
	}
}

func (c *Connection) onReadError(err error) {
	if !isBenignReadError(err) {
		c.logger.Printf("netcore: connection %d: read error: %v", c.id, err)
	}
	c.forceClose()
}

func isBenignReadError(err error) bool {
	return errors.Is(err, io.EOF) ||
		errors.Is(err, io.ErrClosedPipe) ||
		errors.Is(err, net.ErrClosed) ||
		errors.Is(err, syscall.ECONNRESET)
}

func (c *Connection) startHeartbeat() {
	if c.heartbeatInterval <= 0 {
		return
	}
	c.mu.Lock()
	if c.heartbeatRunning {
		c.mu.Unlock()
		return
	}
	c.heartbeatRunning = true
	c.mu.Unlock()
	c.heartbeatTimer = c.rx.ScheduleRepeating(c.heartbeatInterval, c.checkHeartbeat)
}

func (c *Connection) checkHeartbeat() {
	if time.Since(c.lastActiveTime()) > 2*c.heartbeatInterval {
		c.logger.Printf("netcore: connection %d: idle timeout", c.id)
		c.forceClose()
	}
}

func (c *Connection) stopHeartbeat() {
	c.mu.Lock()
	running := c.heartbeatRunning
	timer := c.heartbeatTimer
	c.heartbeatRunning = false
	c.mu.Unlock()
	if running && timer != nil {
		timer.Stop()
	}
}

func (c *Connection) touchLastActive() {
	atomic.StoreInt64(&c.lastActiveNanos, time.Now().UnixNano())
}

func (c *Connection) lastActiveTime() time.Time {
	return time.Unix(0, atomic.LoadInt64(&c.lastActiveNanos))
}

var _ api.Connection = (*Connection)(nil)
