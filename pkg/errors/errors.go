package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// ErrorType classifies domain errors
type ErrorType string

const (
	ErrorTypeConfig     ErrorType = "config"
	ErrorTypeValidation ErrorType = "validation"
	ErrorTypeIO         ErrorType = "io"
	ErrorTypeInternal   ErrorType = "internal"
)

// DomainError is the error type returned by all packages of this module
type DomainError struct {
	Type    ErrorType
	Message string
	Cause   error
	Context map[string]string
}

func (e *DomainError) Error() string {
	var sb strings.Builder
	sb.WriteString(string(e.Type))
	sb.WriteString(" error: ")
	sb.WriteString(e.Message)

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		sb.WriteString(" [")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%s", k, e.Context[k]))
		}
		sb.WriteString("]")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

func (e *DomainError) Unwrap() error {
	return e.Cause
}

// Is matches any DomainError of the same type, so callers can write
// errors.Is(err, &DomainError{Type: ErrorTypeConfig})
func (e *DomainError) Is(target error) bool {
	t, ok := target.(*DomainError)
	if !ok {
		return false
	}
	return t.Type == e.Type && t.Message == ""
}

// WithContext attaches a key/value pair and returns the same error for chaining
func (e *DomainError) WithContext(key, value string) *DomainError {
	if e.Context == nil {
		e.Context = make(map[string]string)
	}
	e.Context[key] = value
	return e
}

func newDomainError(errorType ErrorType, message string, cause error) *DomainError {
	return &DomainError{
		Type:    errorType,
		Message: message,
		Cause:   cause,
	}
}

// NewConfigError reports a malformed or missing configuration field
func NewConfigError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeConfig, message, cause)
}

func NewValidationError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeValidation, message, cause)
}

func NewIOError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeIO, message, cause)
}

func NewInternalError(message string, cause error) *DomainError {
	return newDomainError(ErrorTypeInternal, message, cause)
}

// IsType reports whether any error in the chain is a DomainError of the given type
func IsType(err error, errorType ErrorType) bool {
	return errors.Is(err, &DomainError{Type: errorType})
}

func IsConfigError(err error) bool {
	return IsType(err, ErrorTypeConfig)
}

func IsValidationError(err error) bool {
	return IsType(err, ErrorTypeValidation)
}

func IsIOError(err error) bool {
	return IsType(err, ErrorTypeIO)
}

// ContextValue looks up a context key on the outermost DomainError carrying it
func ContextValue(err error, key string) (string, bool) {
	for err != nil {
		var de *DomainError
		if !errors.As(err, &de) {
			return "", false
		}
		if v, ok := de.Context[key]; ok {
			return v, true
		}
		err = de.Cause
	}
	return "", false
}
