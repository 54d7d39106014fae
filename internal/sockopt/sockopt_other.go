// File: internal/sockopt/sockopt_other.go
// Package sockopt: non-Linux fallback. SO_REUSEPORT is Linux/BSD-specific
// and golang.org/x/sys/unix's SO_REUSEPORT constant isn't available on
// every GOOS this module might cross-compile for (notably Windows), so
// the non-Linux build just declines the option rather than failing the
// build.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0

//go:build !linux

package sockopt

import "syscall"

// ReusePortControl always returns nil on non-Linux platforms: enabling
// ReusePort in Config is a no-op there rather than an error, since most
// embedders only run one process per port outside of Linux deployments.
func ReusePortControl(enabled bool) func(network, address string, c syscall.RawConn) error {
	return nil
}
