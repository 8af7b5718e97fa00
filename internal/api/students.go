package api

import (
	"context"
	"net/url"

	"classboard/internal/transport"
	"classboard/pkg/types"
)

// StudentService covers the instructor's roster management. Students are
// addressed by email throughout, matching their chat identity key.
type StudentService struct {
	http *transport.Client
}

// Student is a roster entry.
type Student struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Email       string `json:"email"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
	Online      bool   `json:"isOnline"`
}

// UpdateStudent carries the editable roster fields.
type UpdateStudent struct {
	Name        string `json:"name,omitempty"`
	Email       string `json:"email,omitempty"`
	PhoneNumber string `json:"phoneNumber,omitempty"`
}

// List returns the full roster.
func (s *StudentService) List(ctx context.Context) ([]Student, error) {
	var out struct {
		envelope
		Students []Student `json:"students"`
	}
	if err := s.http.Get(ctx, "/students", &out); err != nil {
		return nil, err
	}
	return out.Students, nil
}

// Contacts returns the roster shaped for the contact directory, with
// the fallbacks the chat panel expects for missing names and ids.
func (s *StudentService) Contacts(ctx context.Context) ([]types.Contact, error) {
	students, err := s.List(ctx)
	if err != nil {
		return nil, err
	}

	contacts := make([]types.Contact, 0, len(students))
	for _, st := range students {
		id := st.ID
		if id == "" {
			id = st.Email
		}
		name := st.Name
		if name == "" {
			name = "Unknown"
		}
		contacts = append(contacts, types.Contact{
			ID:          id,
			DisplayName: name,
			Role:        types.RoleStudent,
			Email:       st.Email,
			Online:      st.Online,
		})
	}
	return contacts, nil
}

// Add invites a student by email.
func (s *StudentService) Add(ctx context.Context, email string) error {
	if !types.IsValidEmail(email) {
		return types.ErrInvalidEmail
	}
	var out envelope
	if err := s.http.Post(ctx, "/students", map[string]string{"email": email}, &out); err != nil {
		return err
	}
	return out.reject("add student")
}

// Edit updates the student currently identified by currentEmail.
func (s *StudentService) Edit(ctx context.Context, currentEmail string, update UpdateStudent) error {
	var out envelope
	if err := s.http.Put(ctx, "/students/"+url.PathEscape(currentEmail), update, &out); err != nil {
		return err
	}
	return out.reject("edit student")
}

// Delete removes a student from the roster.
func (s *StudentService) Delete(ctx context.Context, email string) error {
	var out envelope
	if err := s.http.Delete(ctx, "/students/"+url.PathEscape(email), &out); err != nil {
		return err
	}
	return out.reject("delete student")
}
