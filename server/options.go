// File: server/options.go
// Package server: functional options, mirroring the teacher's
// server/options.go shape (ServerOption func(*Server)) but operating over
// the new Config fields instead of the teacher's NUMA/affinity knobs.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package server

import "time"

// Option customizes a Config before a Server is constructed.
type Option func(*Config)

// WithListenAddr overrides the default listen address.
func WithListenAddr(addr string) Option {
	return func(c *Config) { c.ListenAddr = addr }
}

// WithBufferSizes overrides the per-connection read/write buffer sizes.
func WithBufferSizes(read, write int) Option {
	return func(c *Config) { c.ReadBufferSize = read; c.WriteBufferSize = write }
}

// WithMaxConnections overrides the admission-control ceiling.
func WithMaxConnections(n int) Option {
	return func(c *Config) { c.MaxConnections = n }
}

// WithMaxSendQueueSize overrides the per-connection send queue bound.
func WithMaxSendQueueSize(n int) Option {
	return func(c *Config) { c.MaxSendQueueSize = n }
}

// WithMaxPackageSize overrides the framing protocol's maximum frame size.
func WithMaxPackageSize(n int) Option {
	return func(c *Config) { c.MaxPackageSize = n }
}

// WithConnectionReadTimeout sets Config.ConnectionReadTimeout. No server
// consults it: no read deadline is set, and idle detection uses
// HeartbeatInterval.
func WithConnectionReadTimeout(d time.Duration) Option {
	return func(c *Config) { c.ConnectionReadTimeout = d }
}

// WithHeartbeatInterval overrides the idle-check interval; idle timeout
// fires at 2x this value.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(c *Config) { c.HeartbeatInterval = d }
}

// WithTCPNoDelay toggles TCP_NODELAY on accepted connections.
func WithTCPNoDelay(enabled bool) Option {
	return func(c *Config) { c.TCPNoDelay = enabled }
}

// WithReusePort toggles SO_REUSEPORT on the listening socket, letting
// multiple processes (or multiple listeners in one process) share the
// same port. Only honored on platforms internal/sockopt supports; see
// DESIGN.md.
func WithReusePort(enabled bool) Option {
	return func(c *Config) { c.ReusePort = enabled }
}
