package app

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidCredentials is returned for every credential failure:
	// unknown username, disabled account, or password mismatch. One
	// message for all causes so responses do not enable enumeration.
	ErrInvalidCredentials = errors.New("incorrect username or password")

	ErrUsernameAndPasswordRequired = errors.New("username and password required")
	ErrUsernameTaken               = errors.New("username already exists")

	ErrBookNotFound = errors.New("book not found")
	// ErrBookAlreadyRented reports a rent attempt on a rented book.
	ErrBookAlreadyRented = errors.New("book already rented")
)

// ValidationError carries field-level detail for malformed input.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

func validationErr(field, message string) error {
	return &ValidationError{Field: field, Message: message}
}
