package common

import (
	"errors"
	"fmt"
)

// ErrorKind is the pipeline failure taxonomy carried in AppError.Code.
type ErrorKind = string

const (
	KindDownloadFailure         ErrorKind = "DownloadFailure"
	KindUnsupportedMimeType     ErrorKind = "UnsupportedMimeType"
	KindNoStructuredOutput      ErrorKind = "NoStructuredOutput"
	KindSchemaValidationWarning ErrorKind = "SchemaValidationWarning"
	KindReconciliationFailure   ErrorKind = "ReconciliationFailure"
	KindPersistenceFailure      ErrorKind = "PersistenceFailure"
	KindModelFailure            ErrorKind = "ModelFailure"
	KindConfig                  ErrorKind = "CONFIG_ERROR"
)

// AppError represents application-specific errors
type AppError struct {
	Code    string
	Message string
	Cause   error
}

func (e *AppError) Error() string {
	if e.Cause != nil {
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Message, e.Cause)
	}
	return fmt.Sprintf("%s: %s", e.Code, e.Message)
}

func (e *AppError) Unwrap() error {
	return e.Cause
}

// Common application errors
var (
	ErrNotFound     = errors.New("resource not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrInternal     = errors.New("internal error")
	ErrDatabase     = errors.New("database error")
	ErrValidation   = errors.New("validation failed")
)

// Error constructors
func NewAppError(code, message string, cause error) *AppError {
	return &AppError{
		Code:    code,
		Message: message,
		Cause:   cause,
	}
}

func WrapError(err error, message string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", message, err)
}

// KindOf returns the Code of the outermost AppError in err's chain, or "".
func KindOf(err error) ErrorKind {
	var ae *AppError
	if errors.As(err, &ae) {
		return ae.Code
	}
	return ""
}

// IsKind reports whether any AppError in err's chain carries kind.
func IsKind(err error, kind ErrorKind) bool {
	for err != nil {
		var ae *AppError
		if !errors.As(err, &ae) {
			return false
		}
		if ae.Code == kind {
			return true
		}
		err = ae.Cause
	}
	return false
}

func DownloadFailure(message string, cause error) error {
	return NewAppError(KindDownloadFailure, message, cause)
}

func UnsupportedMimeType(mimeType string) error {
	return NewAppError(KindUnsupportedMimeType, fmt.Sprintf("unsupported mime type %q", mimeType), ErrInvalidInput)
}

func NoStructuredOutput(message string, cause error) error {
	return NewAppError(KindNoStructuredOutput, message, cause)
}

func ReconciliationFailure(message string, cause error) error {
	return NewAppError(KindReconciliationFailure, message, cause)
}

func PersistenceFailure(message string, cause error) error {
	return NewAppError(KindPersistenceFailure, message, cause)
}
