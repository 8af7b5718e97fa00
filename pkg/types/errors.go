package types

import "errors"

// Validation and decoding error types shared across components.
var (
	ErrInvalidRole        = errors.New("invalid role: must be 'student' or 'instructor'")
	ErrUnknownEvent       = errors.New("unknown realtime event")
	ErrMalformedEvent     = errors.New("malformed realtime event payload")
	ErrEmptyMessage       = errors.New("message body cannot be empty")
	ErrMissingRecipient   = errors.New("recipient email or phone number is required")
	ErrAmbiguousRecipient = errors.New("recipient email and phone number are mutually exclusive")
	ErrInvalidEmail       = errors.New("invalid email address")
	ErrInvalidPhone       = errors.New("invalid phone number")
)
