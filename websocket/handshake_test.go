// File: websocket/handshake_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package websocket

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// TestAcceptKey_RFC6455WorkedExample checks the exact example RFC 6455
// §1.3 gives: key "dGhlIHNhbXBsZSBub25jZQ==" must accept as
// "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=".
func TestAcceptKey_RFC6455WorkedExample(t *testing.T) {
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", acceptKey("dGhlIHNhbXBsZSBub25jZQ=="))
}

func TestDoHandshake_ValidUpgradeRequest(t *testing.T) {
	req := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n"

	hs, err := DoHandshake(strings.NewReader(req))
	require.NoError(t, err)
	assert.Equal(t, "s3pPLMBiTxaQ9kYGzzhZRbK+xOo=", hs.ResponseHeader.Get("Sec-WebSocket-Accept"))
	assert.Equal(t, "websocket", hs.ResponseHeader.Get("Upgrade"))
	assert.Equal(t, "Upgrade", hs.ResponseHeader.Get("Connection"))
}

func TestDoHandshake_MultiTokenConnectionHeader(t *testing.T) {
	req := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: keep-alive, Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n"

	_, err := DoHandshake(strings.NewReader(req))
	require.NoError(t, err)
}

func TestDoHandshake_RejectsMissingUpgradeToken(t *testing.T) {
	req := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n"

	_, err := DoHandshake(strings.NewReader(req))
	assert.Error(t, err)
}

func TestDoHandshake_RejectsWrongVersion(t *testing.T) {
	req := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Key: dGhlIHNhbXBsZSBub25jZQ==\r\n" +
		"Sec-WebSocket-Version: 8\r\n" +
		"\r\n"

	_, err := DoHandshake(strings.NewReader(req))
	assert.Error(t, err)
}

func TestDoHandshake_RejectsMissingKey(t *testing.T) {
	req := "GET /chat HTTP/1.1\r\n" +
		"Host: example.com\r\n" +
		"Upgrade: websocket\r\n" +
		"Connection: Upgrade\r\n" +
		"Sec-WebSocket-Version: 13\r\n" +
		"\r\n"

	_, err := DoHandshake(strings.NewReader(req))
	assert.Error(t, err)
}
