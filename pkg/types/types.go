package types

import (
	"strings"
	"time"
)

// Role identifies which side of the classroom a user is on.
type Role string

const (
	RoleInstructor Role = "instructor"
	RoleStudent    Role = "student"
)

// ParseRole converts a wire-level role string into a Role.
func ParseRole(s string) (Role, error) {
	switch Role(s) {
	case RoleInstructor, RoleStudent:
		return Role(s), nil
	default:
		return "", ErrInvalidRole
	}
}

// Valid reports whether the role is one of the two known roles.
func (r Role) Valid() bool {
	return r == RoleInstructor || r == RoleStudent
}

// Counterpart returns the role a user of this role chats with.
func (r Role) Counterpart() Role {
	if r == RoleInstructor {
		return RoleStudent
	}
	return RoleInstructor
}

// Contact is a chat counterpart: a student seen by an instructor, or an
// instructor seen by a student. The routing key depends on the variant:
// students are addressed by email, instructors by phone number.
type Contact struct {
	ID          string `json:"id"`
	DisplayName string `json:"name"`
	Role        Role   `json:"role"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Online      bool   `json:"isOnline"`
}

// Key returns the identity key used to address this contact for history
// fetches and message sends.
func (c Contact) Key() string {
	if c.Role == RoleInstructor {
		return c.PhoneNumber
	}
	return c.Email
}

// Matches reports whether the contact matches a search query by display
// name or identity key, case-insensitively. An empty query matches all.
func (c Contact) Matches(query string) bool {
	if query == "" {
		return true
	}
	q := strings.ToLower(query)
	return strings.Contains(strings.ToLower(c.DisplayName), q) ||
		strings.Contains(strings.ToLower(c.Key()), q)
}

// Message is a single entry in a conversation timeline, normalized from
// either a history fetch or a live push event. Timelines keep arrival
// order; messages are never re-sorted by timestamp.
type Message struct {
	ID         string    `json:"id"`
	SenderKey  string    `json:"senderKey"`
	SenderName string    `json:"senderName"`
	Body       string    `json:"body"`
	SentAt     time.Time `json:"sentAt"`
	Own        bool      `json:"own"`
}
