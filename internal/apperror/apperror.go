package apperror

import (
	"errors"
	"fmt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrValidation         = errors.New("validation error")
	ErrConflict           = errors.New("conflict")
	ErrAlreadyVerified    = errors.New("already verified")
	ErrExpired            = errors.New("otp expired")
	ErrInvalidCode        = errors.New("invalid otp")
	ErrInvalidCredentials = errors.New("invalid credentials")
	ErrNotVerified        = errors.New("email not verified")
	ErrNotificationFailed = errors.New("notification failed")
	ErrUnauthenticated    = errors.New("unauthenticated")
	ErrMissingEmail       = errors.New("missing email")
)

type AppError struct {
	Err     error  // actual error
	Message string // Human-readable error message
	Field   string // Optional: field causing the error
}

func (e *AppError) Error() string {
	return e.Message
}

func (e *AppError) Unwrap() error {
	return e.Err
}

func NotFound(resource, id string) *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: fmt.Sprintf("%s not found with id %s", resource, id),
	}
}

func ValidationFailed(field, message string) *AppError {
	return &AppError{
		Err:     ErrValidation,
		Message: message,
		Field:   field,
	}
}

func Conflict(resource, id string) *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: fmt.Sprintf("%s conflict with id %s", resource, id),
	}
}

// AccountExists is returned by signup when the email is already registered.
func AccountExists() *AppError {
	return &AppError{
		Err:     ErrConflict,
		Message: "user already exists",
		Field:   "email",
	}
}

// AccountNotFound is returned by the OTP flows when no account matches the email.
func AccountNotFound() *AppError {
	return &AppError{
		Err:     ErrNotFound,
		Message: "user not found",
		Field:   "email",
	}
}

func AlreadyVerified() *AppError {
	return &AppError{
		Err:     ErrAlreadyVerified,
		Message: "email already verified, please login",
	}
}

func Expired() *AppError {
	return &AppError{
		Err:     ErrExpired,
		Message: "otp has expired, please request a new one",
		Field:   "otp",
	}
}

func InvalidCode() *AppError {
	return &AppError{
		Err:     ErrInvalidCode,
		Message: "invalid otp, please try again",
		Field:   "otp",
	}
}

// InvalidCredentials is the single login failure. It never says whether the
// email or the password was wrong.
func InvalidCredentials() *AppError {
	return &AppError{
		Err:     ErrInvalidCredentials,
		Message: "incorrect password or email",
	}
}

func NotVerified() *AppError {
	return &AppError{
		Err:     ErrNotVerified,
		Message: "email not verified, please verify your email first",
	}
}

func NotificationFailed(message string) *AppError {
	return &AppError{
		Err:     ErrNotificationFailed,
		Message: message,
	}
}

func Unauthenticated(message string) *AppError {
	return &AppError{
		Err:     ErrUnauthenticated,
		Message: message,
	}
}

func MissingEmail(provider string) *AppError {
	return &AppError{
		Err:     ErrMissingEmail,
		Message: fmt.Sprintf("no email provided by %s", provider),
		Field:   "email",
	}
}
