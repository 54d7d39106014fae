// File: conn/connection_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package conn

import (
	"context"
	"net"
	"sync"
	"testing"
	"time"

	"github.com/momentics/netcore/api"
	"github.com/momentics/netcore/pool"
	"github.com/momentics/netcore/protocol"
	"github.com/momentics/netcore/reactor"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// recordingHandler captures lifecycle and message events for assertions.
type recordingHandler struct {
	mu       sync.Mutex
	opened   int
	closed   int
	messages [][]byte
	closedCh chan struct{}
}

func newRecordingHandler() *recordingHandler {
	return &recordingHandler{closedCh: make(chan struct{})}
}

func (h *recordingHandler) OnOpen(api.Connection) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.opened++
}

func (h *recordingHandler) OnMessage(_ api.Connection, payload []byte) {
	h.mu.Lock()
	defer h.mu.Unlock()
	cp := append([]byte(nil), payload...)
	h.messages = append(h.messages, cp)
}

func (h *recordingHandler) OnClose(api.Connection) {
	h.mu.Lock()
	h.closed++
	h.mu.Unlock()
	close(h.closedCh)
}

func (h *recordingHandler) messageCount() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return len(h.messages)
}

// startLoop runs a reactor.Loop in the background and returns it along
// with a cancel func that stops it and waits for Run to return.
func startLoop(t *testing.T) (*reactor.Loop, func()) {
	t.Helper()
	l := reactor.NewLoop()
	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})
	go func() {
		_ = l.Run(ctx)
		close(runDone)
	}()
	return l, func() {
		cancel()
		<-runDone
	}
}

func newTestConnection(t *testing.T, rx reactor.Reactor, h api.Handler) (*Connection, net.Conn) {
	t.Helper()
	server, client := net.Pipe()
	c := New(Config{
		ID:           1,
		Socket:       server,
		Reactor:      rx,
		Protocol:     protocol.FixedSize{},
		Handler:      h,
		MaxSendQueue: 4,
	})
	return c, client
}

func TestConnection_OnOpenFiresBeforeMessages(t *testing.T) {
	rx, stop := startLoop(t)
	defer stop()

	h := newRecordingHandler()
	c, client := newTestConnection(t, rx, h)
	defer client.Close()

	bufPool := pool.NewBufferPool(256)
	c.Start(bufPool)

	require.Eventually(t, func() bool {
		h.mu.Lock()
		defer h.mu.Unlock()
		return h.opened == 1
	}, time.Second, time.Millisecond)

	frame, err := protocol.Encode([]byte("hello"))
	require.NoError(t, err)
	_, err = client.Write(frame)
	require.NoError(t, err)

	require.Eventually(t, func() bool { return h.messageCount() == 1 }, time.Second, time.Millisecond)
	h.mu.Lock()
	assert.Equal(t, []byte("hello"), h.messages[0])
	h.mu.Unlock()
}

func TestConnection_SendWrapsAndWrites(t *testing.T) {
	rx, stop := startLoop(t)
	defer stop()

	h := newRecordingHandler()
	c, client := newTestConnection(t, rx, h)
	defer client.Close()
	// New's default WrapOutbound is the identity; install FixedSize framing.
	c.hooks.WrapOutbound = protocol.Encode

	bufPool := pool.NewBufferPool(256)
	c.Start(bufPool)

	readDone := make(chan []byte, 1)
	go func() {
		buf := make([]byte, 64)
		n, _ := client.Read(buf)
		readDone <- buf[:n]
	}()

	require.NoError(t, c.Send([]byte("ping")))

	select {
	case got := <-readDone:
		res := protocol.FixedSize{}.Parse(got)
		require.Equal(t, protocol.Complete, res.Status)
		assert.Equal(t, "ping", string(got[res.FrameLen-res.PayloadLen:res.FrameLen]))
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for write")
	}
}

func TestConnection_SendAfterCloseFails(t *testing.T) {
	rx, stop := startLoop(t)
	defer stop()

	h := newRecordingHandler()
	c, client := newTestConnection(t, rx, h)
	defer client.Close()

	bufPool := pool.NewBufferPool(256)
	c.Start(bufPool)

	c.Close()
	<-h.closedCh

	err := c.Send([]byte("too late"))
	assert.ErrorIs(t, err, api.ErrConnectionClosed)
}

func TestConnection_QueueFullDropsAndReturnsError(t *testing.T) {
	rx, stop := startLoop(t)
	defer stop()

	h := newRecordingHandler()
	server, client := net.Pipe()
	defer client.Close()
	c := New(Config{
		ID:           2,
		Socket:       server,
		Reactor:      rx,
		Protocol:     protocol.FixedSize{},
		Handler:      h,
		MaxSendQueue: 1,
	})

	// No reader drains client, and nothing calls Start, so the first Send
	// occupies the write-in-flight slot on a pipe write that blocks until
	// something reads. The in-flight buffer is not counted against
	// MaxSendQueue, so the second Send fills the one queue slot and the
	// third should see the queue full.
	go func() { _ = c.Send([]byte("a")) }()
	time.Sleep(20 * time.Millisecond)
	require.NoError(t, c.Send([]byte("b")))
	err := c.Send([]byte("c"))
	assert.ErrorIs(t, err, api.ErrQueueFull)
}

func TestConnection_OnCloseFiresExactlyOnce(t *testing.T) {
	rx, stop := startLoop(t)
	defer stop()

	h := newRecordingHandler()
	c, client := newTestConnection(t, rx, h)
	defer client.Close()

	bufPool := pool.NewBufferPool(256)
	c.Start(bufPool)

	c.Close()
	c.Close()
	<-h.closedCh
	time.Sleep(20 * time.Millisecond)

	h.mu.Lock()
	defer h.mu.Unlock()
	assert.Equal(t, 1, h.closed)
}

func TestConnection_HeartbeatClosesIdleConnection(t *testing.T) {
	rx, stop := startLoop(t)
	defer stop()

	h := newRecordingHandler()
	server, client := net.Pipe()
	defer client.Close()
	c := New(Config{
		ID:                3,
		Socket:            server,
		Reactor:           rx,
		Protocol:          protocol.FixedSize{},
		Handler:           h,
		MaxSendQueue:      4,
		HeartbeatInterval: 10 * time.Millisecond,
	})
	bufPool := pool.NewBufferPool(256)
	c.Start(bufPool)

	select {
	case <-h.closedCh:
	case <-time.After(time.Second):
		t.Fatal("expected idle timeout to close connection")
	}
	assert.Equal(t, Closed, c.State())
}
