package roster

import (
	"fmt"
	"strings"
	"time"
)

const maxNameLength = 100

// ValidateUser checks the fields a caller supplies when creating a user.
func ValidateUser(u *User, now time.Time) error {
	name := strings.TrimSpace(u.Name)
	if name == "" {
		return fmt.Errorf("%w: name is required", ErrInvalidUser)
	}
	if len(name) > maxNameLength {
		return fmt.Errorf("%w: name exceeds %d characters", ErrInvalidUser, maxNameLength)
	}
	if !u.Gender.Valid() {
		return fmt.Errorf("%w: gender must be M or F, got %q", ErrInvalidUser, u.Gender)
	}
	if u.BirthDate.IsZero() {
		return fmt.Errorf("%w: birth_date is required", ErrInvalidUser)
	}
	if u.BirthDate.After(now) {
		return fmt.Errorf("%w: birth_date is in the future", ErrInvalidUser)
	}
	if u.Weight < 0 || u.Height < 0 {
		return fmt.Errorf("%w: weight and height must not be negative", ErrInvalidUser)
	}
	return nil
}
