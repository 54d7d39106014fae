// File: server/config.go
// Package server implements the stream (TCP/WebSocket) and datagram (UDP)
// server facades spec §4.5/§4.6 describe: accept loop, admission control,
// per-connection socket option application, and a connection table keyed
// by id.
// Config follows the teacher's server/types.go shape (a plain struct plus
// a DefaultConfig constructor); default values are taken from
// original_source/include/uv_net/server_config.h rather than the
// teacher's throughput-tuned NUMA defaults, since this module targets the
// spec's libuv-derived server, not the teacher's NUMA/DPDK one.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package server

import "time"

// Config holds the immutable parameters a Server is constructed with.
// Once a server is constructed from it, a Config is never mutated — Option
// values customize a Config before construction, not after.
type Config struct {
	ListenAddr string

	ReadBufferSize  int
	WriteBufferSize int

	MaxConnections   int
	MaxSendQueueSize int
	MaxPackageSize   int

	ConnectionReadTimeout time.Duration
	HeartbeatInterval     time.Duration

	TCPNoDelay bool
	ReusePort  bool
}

// DefaultConfig returns the defaults original_source's ServerConfig uses:
// 8 KiB buffers, 10000 max connections, a 1000-deep send queue, a 64 KiB
// package ceiling, a 30s read timeout, and a 60s heartbeat interval.
func DefaultConfig() Config {
	return Config{
		ListenAddr:            ":9000",
		ReadBufferSize:        8 * 1024,
		WriteBufferSize:       8 * 1024,
		MaxConnections:        10000,
		MaxSendQueueSize:      1000,
		MaxPackageSize:        64 * 1024,
		ConnectionReadTimeout: 30 * time.Second,
		HeartbeatInterval:     60 * time.Second,
		TCPNoDelay:            true,
		ReusePort:             false,
	}
}
