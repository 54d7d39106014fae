// File: websocket/handshake.go
// Package websocket implements the RFC 6455 WebSocket layer spec §4.4
// describes: the HTTP upgrade handshake and the binary frame codec, built
// directly on conn.Connection via its Hooks indirection rather than as a
// separate transport.
// Grounded in the teacher's protocol/upgrader.go (handshake validation and
// Sec-WebSocket-Accept computation) and protocol/handshake.go (the same
// logic read straight off a raw io.Reader, which is the shape needed here
// since the upgrade happens on a Connection's socket before any HTTP
// server machinery is involved). Connection/Upgrade header token scanning
// uses github.com/gobwas/httphead instead of the teacher's hand-rolled
// comma-splitter, matching how github.com/gobwas/ws (also present in the
// example pack, at coder-websocket's indirect dependency) scans the same
// headers.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package websocket

import (
	"bufio"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"net/http"

	"github.com/gobwas/httphead"
	"github.com/momentics/netcore/api"
)

// acceptGUID is the fixed RFC 6455 magic string XORed, so to speak, into
// every handshake: concatenated onto the client's Sec-WebSocket-Key before
// hashing to produce Sec-WebSocket-Accept.
const acceptGUID = "258EAFA5-E914-47DA-95CA-C5AB0DC85B11"

// MaxHandshakeHeaderBytes is the bufio buffer size DoHandshake reads with
// and the limit on the combined length of header names and values; a
// request over that limit is rejected after its headers have been read.
const MaxHandshakeHeaderBytes = 8192

// Handshake is the result of a successful upgrade: the subprotocol the
// client asked for (if any) and the response headers to write back.
type Handshake struct {
	ResponseHeader http.Header
	Subprotocol    string
}

// DoHandshake reads one HTTP request off r, validates it as a WebSocket
// upgrade per RFC 6455 §4.2.1, and computes the Sec-WebSocket-Accept
// response value. It does not write anything; the caller is responsible
// for writing the 101 response using ResponseHeader.
func DoHandshake(r io.Reader) (Handshake, error) {
	br := bufio.NewReaderSize(r, MaxHandshakeHeaderBytes)
	req, err := http.ReadRequest(br)
	if err != nil {
		return Handshake{}, fmt.Errorf("websocket: read handshake request: %w", err)
	}

	if headerSize(req.Header) > MaxHandshakeHeaderBytes {
		return Handshake{}, api.NewError(api.ErrCodeHandshake, "handshake headers too large")
	}
	if !headerContainsToken(req.Header, "Connection", "Upgrade") ||
		!headerContainsToken(req.Header, "Upgrade", "websocket") {
		return Handshake{}, fmt.Errorf("%w: missing Connection/Upgrade tokens", api.ErrHandshakeFailed)
	}
	if req.Header.Get("Sec-WebSocket-Version") != "13" {
		return Handshake{}, fmt.Errorf("%w: unsupported Sec-WebSocket-Version", api.ErrHandshakeFailed)
	}
	key := req.Header.Get("Sec-WebSocket-Key")
	if key == "" {
		return Handshake{}, fmt.Errorf("%w: missing Sec-WebSocket-Key", api.ErrHandshakeFailed)
	}

	resp := make(http.Header)
	resp.Set("Upgrade", "websocket")
	resp.Set("Connection", "Upgrade")
	resp.Set("Sec-WebSocket-Accept", acceptKey(key))

	return Handshake{ResponseHeader: resp, Subprotocol: req.Header.Get("Sec-WebSocket-Protocol")}, nil
}

// acceptKey computes the RFC 6455 Sec-WebSocket-Accept value for a given
// Sec-WebSocket-Key.
func acceptKey(key string) string {
	h := sha1.New()
	h.Write([]byte(key))
	h.Write([]byte(acceptGUID))
	return base64.StdEncoding.EncodeToString(h.Sum(nil))
}

func headerSize(h http.Header) int {
	total := 0
	for k, vs := range h {
		total += len(k)
		for _, v := range vs {
			total += len(v)
		}
	}
	return total
}

// headerContainsToken reports whether any value of header name contains
// token as a comma-separated entry, case-insensitively — the check RFC
// 6455 requires for both Connection: Upgrade and Upgrade: websocket.
func headerContainsToken(h http.Header, name, token string) bool {
	for _, v := range h[http.CanonicalHeaderKey(name)] {
		found := false
		httphead.ScanTokens([]byte(v), func(t []byte) bool {
			if asciiEqualFold(t, token) {
				found = true
				return false
			}
			return true
		})
		if found {
			return true
		}
	}
	return false
}

func asciiEqualFold(b []byte, s string) bool {
	if len(b) != len(s) {
		return false
	}
	for i := range b {
		c1, c2 := b[i], s[i]
		if 'A' <= c1 && c1 <= 'Z' {
			c1 += 'a' - 'A'
		}
		if 'A' <= c2 && c2 <= 'Z' {
			c2 += 'a' - 'A'
		}
		if c1 != c2 {
			return false
		}
	}
	return true
}
