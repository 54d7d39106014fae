// File: server/datagram.go
// Package server: DatagramServer implements spec §4.6's trivial UDP flow:
// one socket, one blocking ReadFrom loop, an ephemeral connection object
// per datagram carrying the source address, and a reply path that writes
// straight back to that address. There is no send queue, no heartbeat,
// and no close state — a DatagramConnection exists only for the duration
// of the single on_message dispatch that created it.
// Grounded in original_source/include/uv_net/udp_server.h and
// udp_connection.h, simplified per SPEC_FULL.md to the single-listener
// shape (no per-worker multi-socket SO_REUSEPORT fan-out, since the
// original's thread_count parameter carries no core design weight here).
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package server

import (
	"context"
	"errors"
	"log"
	"net"

	"github.com/momentics/netcore/api"
)

// DatagramConnection is the ephemeral handle a DatagramServer passes to
// OnMessage for one received datagram. Send writes a reply to the
// datagram's source address on the same socket; Close is a no-op since a
// datagram connection carries no lifecycle to tear down.
type DatagramConnection struct {
	socket *net.UDPConn
	addr   *net.UDPAddr
}

func (d *DatagramConnection) ID() uint32       { return 0 }
func (d *DatagramConnection) RemoteIP() string { return d.addr.IP.String() }
func (d *DatagramConnection) RemotePort() int  { return d.addr.Port }

// Send writes payload back to the datagram's source address. Unlike
// conn.Connection.Send, this is a direct synchronous WriteTo: there is no
// queue to back up, since nothing tracks write-in-flight state for a
// connection that only lives for the one call.
func (d *DatagramConnection) Send(payload []byte) error {
	_, err := d.socket.WriteToUDP(payload, d.addr)
	return err
}

// Close is a no-op: spec §4.6 gives DatagramConnection no close state.
func (d *DatagramConnection) Close() {}

var _ api.Connection = (*DatagramConnection)(nil)

// DatagramServer is a trivial UDP request/reply server: bind, read, hand
// the datagram and a reply handle to the Handler, repeat.
type DatagramServer struct {
	cfg     Config
	handler api.Handler
	logger  *log.Logger
}

// NewDatagramServer constructs a DatagramServer.
func NewDatagramServer(handler api.Handler, opts ...Option) *DatagramServer {
	cfg := DefaultConfig()
	for _, o := range opts {
		o(&cfg)
	}
	return &DatagramServer{cfg: cfg, handler: handler, logger: log.Default()}
}

// WithLogger overrides the server's logger (default log.Default()).
func (s *DatagramServer) WithLogger(l *log.Logger) *DatagramServer {
	s.logger = l
	return s
}

// Run binds a UDP socket on cfg.ListenAddr and reads datagrams until ctx
// is cancelled.
func (s *DatagramServer) Run(ctx context.Context) error {
	addr, err := net.ResolveUDPAddr("udp", s.cfg.ListenAddr)
	if err != nil {
		return err
	}
	socket, err := net.ListenUDP("udp", addr)
	if err != nil {
		return err
	}
	defer socket.Close()

	go func() {
		<-ctx.Done()
		_ = socket.Close()
	}()

	bufSize := s.cfg.ReadBufferSize
	if bufSize <= 0 {
		bufSize = 8 * 1024
	}
	buf := make([]byte, bufSize)

	for {
		n, src, err := socket.ReadFromUDP(buf)
		if err != nil {
			if errors.Is(err, net.ErrClosed) {
				return ctx.Err()
			}
			s.logger.Printf("netcore: udp read error: %v", err)
			continue
		}
		payload := make([]byte, n)
		copy(payload, buf[:n])

		dc := &DatagramConnection{socket: socket, addr: src}
		if s.handler != nil {
			s.handler.OnMessage(dc, payload)
		}
	}
}
