package api

import (
	"context"
	"net/url"

	"classboard/internal/transport"
	"classboard/pkg/types"
)

// ChatService fetches conversation history. History is keyed by the
// counterpart's identity key: email for a student, phone number for an
// instructor.
type ChatService struct {
	http *transport.Client
}

// History returns the past messages of the conversation with contact,
// in the order the backend stored them.
func (s *ChatService) History(ctx context.Context, contact types.Contact) ([]types.ServerMessage, error) {
	query := url.Values{}
	if contact.Role == types.RoleInstructor {
		query.Set("recipientPhone", contact.PhoneNumber)
	} else {
		query.Set("recipientEmail", contact.Email)
	}

	var out struct {
		envelope
		Data []types.ServerMessage `json:"data"`
	}
	if err := s.http.Get(ctx, "/chat/history?"+query.Encode(), &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}
