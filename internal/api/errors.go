package api

import "errors"

// ErrRejected marks a well-formed backend response that reports failure
// in its envelope rather than via an HTTP status.
var ErrRejected = errors.New("request rejected")
