// File: websocket/frame.go
// Package websocket: the RFC 6455 frame codec. ParseFrame walks a buffered
// byte window through the four stages original_source's WebSocketConnection
// enumerates as ParseState (READ_HEADER, READ_PAYLOAD_LENGTH,
// READ_MASKING_KEY, READ_PAYLOAD) — expressed here as sequential checks
// over one window rather than a resumable state machine, since the caller
// (conn.Connection's receive buffer) already accumulates bytes across
// reads the way FixedSize's Parse does.
// Grounded in the teacher's protocol/frame_codec.go (DecodeFrameFromBytes /
// EncodeFrameToBytesWithMask) for the wire-format bit-twiddling; the
// teacher's hardcoded example mask key in EncodeFrameToBufferWithMask is
// not carried over — EncodeFrame draws a fresh key from crypto/rand
// whenever masking is requested.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package websocket

import (
	"crypto/rand"
	"encoding/binary"

	"github.com/momentics/netcore/api"
	"github.com/momentics/netcore/protocol"
)

// Opcode identifies a WebSocket frame's payload interpretation.
type Opcode byte

const (
	OpContinuation Opcode = 0x0
	OpText         Opcode = 0x1
	OpBinary       Opcode = 0x2
	OpClose        Opcode = 0x8
	OpPing         Opcode = 0x9
	OpPong         Opcode = 0xA
)

func (op Opcode) isControl() bool { return op&0x8 != 0 }

// MaxFramePayload bounds a single frame's payload, guarding against a
// malicious length field driving an unbounded allocation.
const MaxFramePayload = 1 << 20 // 1 MiB

// Frame is one decoded WebSocket frame.
type Frame struct {
	Fin     bool
	Opcode  Opcode
	Payload []byte
}

// ParseFrame attempts to decode one frame from the front of window. It
// never mutates window. The returned frameLen is only meaningful when
// status is protocol.Complete.
func ParseFrame(window []byte) (frame Frame, frameLen int, status protocol.Status) {
	// Stage 1: READ_HEADER — the two mandatory header bytes.
	if len(window) < 2 {
		return Frame{}, 0, protocol.Incomplete
	}
	fin := window[0]&0x80 != 0
	opcode := Opcode(window[0] & 0x0F)
	masked := window[1]&0x80 != 0
	length := int64(window[1] & 0x7F)
	offset := 2

	// Fragmentation is out of scope: a FIN bit of 0 can never be parsed
	// into a deliverable frame.
	if !fin {
		return Frame{}, 0, protocol.Fatal
	}

	// Stage 2: READ_PAYLOAD_LENGTH — the extended length, if any.
	switch length {
	case 126:
		if len(window) < offset+2 {
			return Frame{}, 0, protocol.Incomplete
		}
		length = int64(binary.BigEndian.Uint16(window[offset:]))
		offset += 2
	case 127:
		if len(window) < offset+8 {
			return Frame{}, 0, protocol.Incomplete
		}
		length = int64(binary.BigEndian.Uint64(window[offset:]))
		offset += 8
	}
	if length < 0 || length > MaxFramePayload {
		return Frame{}, 0, protocol.Fatal
	}

	// Stage 3: READ_MASKING_KEY — present on every client->server frame.
	var maskKey [4]byte
	if masked {
		if len(window) < offset+4 {
			return Frame{}, 0, protocol.Incomplete
		}
		copy(maskKey[:], window[offset:offset+4])
		offset += 4
	}

	// Stage 4: READ_PAYLOAD.
	total := offset + int(length)
	if len(window) < total {
		return Frame{}, 0, protocol.Incomplete
	}

	payload := make([]byte, length)
	if masked {
		src := window[offset:total]
		for i := int64(0); i < length; i++ {
			payload[i] = src[i] ^ maskKey[i%4]
		}
	} else {
		copy(payload, window[offset:total])
	}

	return Frame{Fin: fin, Opcode: opcode, Payload: payload}, total, protocol.Complete
}

// EncodeFrame serializes one unfragmented frame. mask is true for
// client->server frames and false for server->client frames; this module
// only ever plays the server role, so EncodeFrame is always called with
// mask=false in practice, but the masking path is implemented for
// completeness and tested directly.
func EncodeFrame(opcode Opcode, payload []byte, mask bool) ([]byte, error) {
	if len(payload) > MaxFramePayload {
		return nil, api.ErrFrameTooLarge
	}

	b0 := byte(0x80) | byte(opcode&0x0F) // FIN always set: no fragmentation support
	n := len(payload)

	var hdr [10]byte
	var header []byte
	switch {
	case n <= 125:
		header = hdr[:2]
		header[0] = b0
		header[1] = byte(n)
	case n <= 0xFFFF:
		header = hdr[:4]
		header[0] = b0
		header[1] = 126
		binary.BigEndian.PutUint16(header[2:], uint16(n))
	default:
		header = hdr[:10]
		header[0] = b0
		header[1] = 127
		binary.BigEndian.PutUint64(header[2:], uint64(n))
	}
	if mask {
		header[1] |= 0x80
	}

	out := make([]byte, 0, len(header)+4+n)
	out = append(out, header...)

	if !mask {
		out = append(out, payload...)
		return out, nil
	}

	var key [4]byte
	if _, err := rand.Read(key[:]); err != nil {
		return nil, err
	}
	out = append(out, key[:]...)
	start := len(out)
	out = append(out, payload...)
	for i := 0; i < n; i++ {
		out[start+i] ^= key[i%4]
	}
	return out, nil
}
