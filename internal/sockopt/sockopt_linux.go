// File: internal/sockopt/sockopt_linux.go
// Package sockopt applies SO_REUSEPORT to a listening socket before bind.
// TCP_NODELAY / SO_RCVBUF / SO_SNDBUF on accepted connections are set by
// package server through the stdlib net.TCPConn setters, not here.
// SO_REUSEPORT has no portable stdlib API, so this file uses
// golang.org/x/sys/unix the way the
// teacher's go.mod pulls it in for raw socket control.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package sockopt

import (
	"syscall"

	"golang.org/x/sys/unix"
)

// ReusePortControl returns a net.ListenConfig.Control function that sets
// SO_REUSEPORT on the listening socket before bind, if enabled.
func ReusePortControl(enabled bool) func(network, address string, c syscall.RawConn) error {
	if !enabled {
		return nil
	}
	return func(_, _ string, c syscall.RawConn) error {
		var sockErr error
		err := c.Control(func(fd uintptr) {
			sockErr = unix.SetsockoptInt(int(fd), unix.SOL_SOCKET, unix.SO_REUSEPORT, 1)
		})
		if err != nil {
			return err
		}
		return sockErr
	}
}
