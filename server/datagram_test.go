// File: server/datagram_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package server

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func freeUDPAddr(t *testing.T) string {
	t.Helper()
	conn, err := net.ListenUDP("udp", &net.UDPAddr{IP: net.ParseIP("127.0.0.1"), Port: 0})
	require.NoError(t, err)
	addr := conn.LocalAddr().String()
	require.NoError(t, conn.Close())
	return addr
}

func TestDatagramServer_EchoesToSourceAddress(t *testing.T) {
	addr := freeUDPAddr(t)
	srv := NewDatagramServer(echoHandler{}, WithListenAddr(addr))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() { _ = srv.Run(ctx) }()

	remoteAddr, err := net.ResolveUDPAddr("udp", addr)
	require.NoError(t, err)

	var client *net.UDPConn
	require.Eventually(t, func() bool {
		client, err = net.DialUDP("udp", nil, remoteAddr)
		return err == nil
	}, time.Second, 5*time.Millisecond)
	defer client.Close()

	require.Eventually(t, func() bool {
		_, werr := client.Write([]byte("hello"))
		return werr == nil
	}, time.Second, 5*time.Millisecond)

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	buf := make([]byte, 64)
	n, err := client.Read(buf)
	require.NoError(t, err)
	assert.Equal(t, "hello", string(buf[:n]))
}
