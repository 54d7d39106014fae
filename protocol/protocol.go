// File: protocol/protocol.go
// Package protocol defines the stateless framing-protocol contract spec §4.2
// describes, and the fixed-size length-prefixed implementation built on it.
// Grounded in the teacher's protocol/frame_codec.go shape (decode returns a
// status plus consumed length) and in original_source/include/fix_size_protocol.h,
// whose FixSizeProtocol::ParsePackage this module's FixedSize.Parse mirrors.
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package protocol

// Status is the outcome of parsing a byte window against a Protocol.
type Status int

const (
	// Incomplete means the window does not yet hold a full frame; the
	// caller should wait for more bytes and try again.
	Incomplete Status = iota
	// Complete means the window's prefix holds exactly one full frame.
	Complete
	// Fatal means the window can never parse to a valid frame; the
	// caller must close the connection.
	Fatal
)

// Result is what Parse reports back.
type Result struct {
	Status Status
	// FrameLen is the total on-wire size of the frame, header included.
	// Only meaningful when Status == Complete.
	FrameLen int
	// PayloadLen is the portion of the frame handed to the user message
	// handler. Only meaningful when Status == Complete.
	PayloadLen int
}

// Protocol is a stateless frame parser: given a byte window (the
// connection's current receive buffer), it reports whether a complete
// frame sits at the front of the window. Implementations must not mutate
// window.
type Protocol interface {
	Parse(window []byte) Result
}

// Raw is the degenerate protocol spec §4.2 describes: a Connection with no
// protocol attached treats each readable event's bytes as one logical
// message, delivered immediately. Raw.Parse always reports the entire
// window as one complete frame provided it is non-empty.
type Raw struct{}

func (Raw) Parse(window []byte) Result {
	if len(window) == 0 {
		return Result{Status: Incomplete}
	}
	return Result{Status: Complete, FrameLen: len(window), PayloadLen: len(window)}
}

var _ Protocol = Raw{}
