// File: websocket/frame_test.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package websocket

import (
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/momentics/netcore/protocol"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodeParseFrame_RoundTrip_SmallPayload(t *testing.T) {
	payload := []byte("hello, websocket")
	encoded, err := EncodeFrame(OpText, payload, false)
	require.NoError(t, err)

	frame, n, status := ParseFrame(encoded)
	require.Equal(t, protocol.Complete, status)
	assert.Equal(t, len(encoded), n)

	want := Frame{Fin: true, Opcode: OpText, Payload: payload}
	if diff := cmp.Diff(want, frame); diff != "" {
		t.Errorf("parsed frame mismatch (-want +got):\n%s", diff)
	}
}

func TestEncodeParseFrame_RoundTrip_ExtendedLength16(t *testing.T) {
	payload := make([]byte, 1000)
	for i := range payload {
		payload[i] = byte(i)
	}
	encoded, err := EncodeFrame(OpBinary, payload, false)
	require.NoError(t, err)

	frame, n, status := ParseFrame(encoded)
	require.Equal(t, protocol.Complete, status)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, payload, frame.Payload)
}

func TestEncodeParseFrame_RoundTrip_ExtendedLength64(t *testing.T) {
	payload := make([]byte, 70000)
	encoded, err := EncodeFrame(OpBinary, payload, false)
	require.NoError(t, err)

	frame, n, status := ParseFrame(encoded)
	require.Equal(t, protocol.Complete, status)
	assert.Equal(t, len(encoded), n)
	assert.Len(t, frame.Payload, len(payload))
}

func TestEncodeParseFrame_Masked(t *testing.T) {
	payload := []byte("client frame")
	encoded, err := EncodeFrame(OpText, payload, true)
	require.NoError(t, err)
	assert.NotEqual(t, byte(0), encoded[1]&0x80, "mask bit must be set")

	frame, n, status := ParseFrame(encoded)
	require.Equal(t, protocol.Complete, status)
	assert.Equal(t, len(encoded), n)
	assert.Equal(t, payload, frame.Payload)
}

func TestParseFrame_Incomplete(t *testing.T) {
	encoded, err := EncodeFrame(OpText, []byte("abc"), false)
	require.NoError(t, err)

	_, _, status := ParseFrame(encoded[:1])
	assert.Equal(t, protocol.Incomplete, status)

	_, _, status = ParseFrame(encoded[:len(encoded)-1])
	assert.Equal(t, protocol.Incomplete, status)
}

func TestParseFrame_FatalOnOversizedLength(t *testing.T) {
	// A 64-bit length field claiming far more than MaxFramePayload.
	window := []byte{0x82, 127, 0, 0, 0, 0, 0x7F, 0xFF, 0xFF, 0xFF}
	_, _, status := ParseFrame(window)
	assert.Equal(t, protocol.Fatal, status)
}

func TestEncodeFrame_RejectsOversizedPayload(t *testing.T) {
	_, err := EncodeFrame(OpBinary, make([]byte, MaxFramePayload+1), false)
	assert.Error(t, err)
}

func TestParseFrame_FatalOnUnsetFinBit(t *testing.T) {
	encoded, err := EncodeFrame(OpText, []byte("abc"), false)
	require.NoError(t, err)
	encoded[0] &^= 0x80 // clear FIN: fragmentation is out of scope

	_, _, status := ParseFrame(encoded)
	assert.Equal(t, protocol.Fatal, status)
}
