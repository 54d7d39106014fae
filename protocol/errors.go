// File: protocol/errors.go
// Author: momentics <momentics@gmail.com>
// License: Apache-2.0
package protocol

import "errors"

// ErrPayloadTooLarge is returned by Encode when the framed payload would
// exceed the FixedSize's MaxLen (MaxFrameLen when MaxLen is zero).
var ErrPayloadTooLarge = errors.New("protocol: payload exceeds maximum frame size")
