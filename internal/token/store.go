// Package token persists the bearer token issued after access-code
// verification, together with its absolute expiry and the session role.
// Expiry is lazy: it is detected when the token is next read, not by a
// background timer. The session guard layers its own periodic sweep on top.
package token

import (
	"time"

	"classboard/pkg/types"
)

// Storage keys for the three durable entries. They are cleared together
// on logout or detected expiry.
const (
	keyAccessToken = "accessToken"
	keyTokenExpiry = "tokenExpiry"
	keyUserType    = "userType"
)

// Store is the session state contract shared by the durable and
// in-memory implementations.
type Store interface {
	// SetToken persists the token and stamps its expiry at now plus the
	// configured duration, unconditionally overwriting prior state.
	SetToken(token string) error

	// Token returns the stored token, or "" when none is stored or the
	// stored one has expired. An expired read evicts all session state.
	Token() (string, error)

	// SetRole records the role flag alongside the token.
	SetRole(role types.Role) error

	// Role returns the stored role flag, or "" when none is stored.
	Role() (types.Role, error)

	// IsAuthenticated reports whether a live token is stored.
	IsAuthenticated() bool

	// RemainingTime returns how long the current token stays valid,
	// floored at zero.
	RemainingTime() time.Duration

	// Clear removes all session state. Safe to call repeatedly.
	Clear() error
}

// expired reports whether a stored expiry (unix milliseconds) has passed.
func expired(expiryMillis int64, now time.Time) bool {
	return now.UnixMilli() >= expiryMillis
}
