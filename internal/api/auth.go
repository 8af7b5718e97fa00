package api

import (
	"context"

	"classboard/internal/transport"
	"classboard/pkg/types"
)

// AuthService covers session introspection, phone/access-code login for
// instructors, email/access-code login for students, and account setup.
type AuthService struct {
	http *transport.Client
}

// Profile is the "who am I" response.
type Profile struct {
	Name        string     `json:"name"`
	UserType    types.Role `json:"userType"`
	Email       string     `json:"email,omitempty"`
	PhoneNumber string     `json:"phoneNumber,omitempty"`
}

// AuthResult is the outcome of a successful access-code verification or
// student login.
type AuthResult struct {
	Success     bool       `json:"success"`
	UserType    types.Role `json:"userType"`
	AccessToken string     `json:"accessToken"`
}

// SetupAccountRequest completes a student's invited account.
type SetupAccountRequest struct {
	Name        string `json:"name"`
	PhoneNumber string `json:"phoneNumber"`
	Password    string `json:"password"`
}

// Me fetches the authenticated user's profile.
func (s *AuthService) Me(ctx context.Context) (*Profile, error) {
	var out struct {
		envelope
		Data *Profile `json:"data"`
	}
	if err := s.http.Get(ctx, "/auth/me", &out); err != nil {
		return nil, err
	}
	return out.Data, nil
}

// CreateAccessCode asks the backend to issue an access code for the
// instructor's phone number. The code itself travels out of band; some
// environments echo it back for development.
func (s *AuthService) CreateAccessCode(ctx context.Context, phoneNumber string) (string, error) {
	if !types.IsValidPhone(phoneNumber) {
		return "", types.ErrInvalidPhone
	}
	var out struct {
		envelope
		AccessCode string `json:"accessCode,omitempty"`
	}
	body := map[string]string{"phoneNumber": phoneNumber}
	if err := s.http.Post(ctx, "/auth/instructor/login", body, &out); err != nil {
		return "", err
	}
	if out.Error != "" {
		return "", out.envelope.reject("create access code")
	}
	return out.AccessCode, nil
}

// VerifyAccessCode exchanges an instructor's phone number and access
// code for a bearer token.
func (s *AuthService) VerifyAccessCode(ctx context.Context, phoneNumber, accessCode string) (*AuthResult, error) {
	var out AuthResult
	body := map[string]string{"phoneNumber": phoneNumber, "accessCode": accessCode}
	if err := s.http.Post(ctx, "/auth/instructor/verify", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// StudentLogin signs a student in with email and password.
func (s *AuthService) StudentLogin(ctx context.Context, email, password string) (*AuthResult, error) {
	var out AuthResult
	body := map[string]string{"email": email, "password": password}
	if err := s.http.Post(ctx, "/auth/student/login", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// ValidateStudentAccessCode exchanges a student's email and access code
// for a bearer token.
func (s *AuthService) ValidateStudentAccessCode(ctx context.Context, email, accessCode string) (*AuthResult, error) {
	var out AuthResult
	body := map[string]string{"email": email, "accessCode": accessCode}
	if err := s.http.Post(ctx, "/auth/student/verify", body, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

// SetupAccount completes an invited student account using the
// verification token from the invite link.
func (s *AuthService) SetupAccount(ctx context.Context, verificationToken string, req SetupAccountRequest) error {
	var out envelope
	if err := s.http.Post(ctx, "/auth/setup/"+verificationToken, req, &out); err != nil {
		return err
	}
	return out.reject("setup account")
}

// ListInstructors returns the instructor counterpart list for a student
// session, ready for the contact directory.
func (s *AuthService) ListInstructors(ctx context.Context) ([]types.Contact, error) {
	var out struct {
		envelope
		Instructors []struct {
			ID          string `json:"id"`
			Name        string `json:"name"`
			PhoneNumber string `json:"phoneNumber"`
			Online      bool   `json:"isOnline"`
		} `json:"instructors"`
	}
	if err := s.http.Get(ctx, "/instructors", &out); err != nil {
		return nil, err
	}

	contacts := make([]types.Contact, 0, len(out.Instructors))
	for _, in := range out.Instructors {
		id := in.ID
		if id == "" {
			id = in.PhoneNumber
		}
		name := in.Name
		if name == "" {
			name = "Instructor"
		}
		contacts = append(contacts, types.Contact{
			ID:          id,
			DisplayName: name,
			Role:        types.RoleInstructor,
			PhoneNumber: in.PhoneNumber,
			Online:      in.Online,
		})
	}
	return contacts, nil
}
