package realtime

import "errors"

// Realtime channel error types.
var (
	ErrNotConnected   = errors.New("realtime channel is not connected")
	ErrWriteTimeout   = errors.New("realtime write timed out")
	ErrInvalidPayload = errors.New("realtime payload cannot be encoded")
)
