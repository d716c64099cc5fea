package errors

import (
	"errors"
	"fmt"
)

// default error is internal service error at handler level
// if error has different status code use ErrorWithStatusCode
type ErrorWithStatusCode struct {
	Message    string
	StatusCode int
}

func (e *ErrorWithStatusCode) Error() string {
	return e.Message
}

// ValidationError is a user-correctable input problem. Its message is safe to show.
type ValidationError struct {
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("Validation error: %s", e.Message)
}

var (
	ErrEmptyComment       = &ValidationError{Message: "Comment cannot be empty."}
	ErrRulesBoard         = &ValidationError{Message: "Posting new threads is not allowed on the /rules/ board."}
	ErrUploadFailed       = errors.New("Failed to upload image. Please try again.")
	ErrThreadNotFound     = errors.New("thread not found")
	ErrNotConfirmed       = errors.New("action not confirmed")
	ErrConnectFailed      = errors.New("Failed to connect. Please try again.")
	ErrInvalidCredentials = errors.New("invalid credentials")
)

// Is reports whether err is of concrete type T anywhere in its chain.
func Is[T error](err error) bool {
	var target T
	return errors.As(err, &target)
}
