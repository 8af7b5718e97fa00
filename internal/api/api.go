// Package api holds the typed REST clients for the classroom backend.
// Every call goes through the shared transport pipeline, which owns
// bearer-token injection and error observation.
package api

import (
	"fmt"

	"classboard/internal/transport"
)

// Client bundles the per-resource services.
type Client struct {
	Auth        *AuthService
	Students    *StudentService
	Lessons     *LessonService
	Assignments *AssignmentService
	Chat        *ChatService
}

// New creates the full REST client surface over one transport.
func New(t *transport.Client) *Client {
	return &Client{
		Auth:        &AuthService{http: t},
		Students:    &StudentService{http: t},
		Lessons:     &LessonService{http: t},
		Assignments: &AssignmentService{http: t},
		Chat:        &ChatService{http: t},
	}
}

// envelope is the common response wrapper the backend uses.
type envelope struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
	Error   string `json:"error,omitempty"`
}

// reject converts an unsuccessful envelope into an error.
func (e envelope) reject(op string) error {
	if e.Success {
		return nil
	}
	reason := e.Error
	if reason == "" {
		reason = e.Message
	}
	return fmt.Errorf("%w: %s: %s", ErrRejected, op, reason)
}
