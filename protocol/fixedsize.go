// File: protocol/fixedsize.go
// Package protocol: FixedSize implements the 4-byte big-endian length-
// prefixed framing protocol spec §4.2 and §6 specify as the wire format for
// plain TCP connections.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package protocol

import "encoding/binary"

// HeaderSize is the width of the length prefix, in bytes.
const HeaderSize = 4

// MinFrameLen and MaxFrameLen bound the total on-wire frame length
// (header included) that FixedSize will accept, per spec §4.2 and §6.
const (
	MinFrameLen = HeaderSize
	MaxFrameLen = 65535
)

// FixedSize reads a 4-byte big-endian unsigned length from the front of the
// window; that length is the total frame size, header included. MaxLen caps
// the total frame size Parse and Encode will accept; a zero MaxLen falls
// back to MaxFrameLen, so the zero value FixedSize{} keeps behaving exactly
// as before for callers that never set it explicitly.
type FixedSize struct {
	MaxLen int
}

func (f FixedSize) maxLen() int {
	if f.MaxLen <= 0 {
		return MaxFrameLen
	}
	return f.MaxLen
}

// Parse implements Protocol.
func (f FixedSize) Parse(window []byte) Result {
	if len(window) < HeaderSize {
		return Result{Status: Incomplete}
	}
	total := int(binary.BigEndian.Uint32(window[:HeaderSize]))
	if total < MinFrameLen || total > f.maxLen() {
		return Result{Status: Fatal}
	}
	if len(window) < total {
		return Result{Status: Incomplete}
	}
	return Result{Status: Complete, FrameLen: total, PayloadLen: total - HeaderSize}
}

var _ Protocol = FixedSize{}

// Encode wraps payload in the 4-byte big-endian length prefix f.Parse
// expects, returning the full wire-format frame. Mirrors f.Parse's decoding
// so f.Parse(f.Encode(p)) round-trips to p.
func (f FixedSize) Encode(payload []byte) ([]byte, error) {
	total := len(payload) + HeaderSize
	if total > f.maxLen() {
		return nil, ErrPayloadTooLarge
	}
	frame := make([]byte, total)
	binary.BigEndian.PutUint32(frame[:HeaderSize], uint32(total))
	copy(frame[HeaderSize:], payload)
	return frame, nil
}

// Encode is the package-level equivalent of FixedSize{}.Encode, kept for
// callers (tests, simple embedders) that don't need a configurable MaxLen.
func Encode(payload []byte) ([]byte, error) {
	return FixedSize{}.Encode(payload)
}
