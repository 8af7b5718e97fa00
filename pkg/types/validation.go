package types

import "regexp"

var (
	emailRegex = regexp.MustCompile(`^[^@\s]+@[^@\s]+\.[^@\s]+$`)
	phoneRegex = regexp.MustCompile(`^\+?[0-9][0-9 .-]{5,19}$`)
)

// IsValidEmail checks the minimal shape expected of a student identity key.
func IsValidEmail(email string) bool {
	return len(email) <= 254 && emailRegex.MatchString(email)
}

// IsValidPhone checks the minimal shape expected of an instructor identity key.
func IsValidPhone(phone string) bool {
	return phoneRegex.MatchString(phone)
}

// Validate ensures a contact carries the identity key its variant requires.
func (c Contact) Validate() error {
	if !c.Role.Valid() {
		return ErrInvalidRole
	}
	if c.Role == RoleInstructor {
		if !IsValidPhone(c.PhoneNumber) {
			return ErrInvalidPhone
		}
		return nil
	}
	if !IsValidEmail(c.Email) {
		return ErrInvalidEmail
	}
	return nil
}
