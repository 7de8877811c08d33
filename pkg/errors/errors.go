// Package errors provides coded errors for the indexer.
// Codes group failures by how the build treats them: structural problems
// degrade to defaults, format problems exclude a single file, setup problems
// abort the build.
package errors

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

// Error codes for programmatic handling
type Code string

const (
	// Archive-structural errors (1xx), never fatal.
	CodeStaticMetaMissing   Code = "E101"
	CodeStaticMetaAmbiguous Code = "E102"
	CodeStaticMetaMalformed Code = "E103"

	// File-format errors (2xx), exclude one file.
	CodeUnknownFormat     Code = "E201"
	CodeUnsupportedFormat Code = "E202"
	CodeTruncatedFile     Code = "E203"
	CodeMissingKey        Code = "E204"
	CodeMalformedFilename Code = "E205"
	CodeInvalidNumber     Code = "E206"
	CodeInvalidTimestamp  Code = "E207"
	CodeReadFailed        Code = "E208"

	// Lookup errors (3xx)
	CodeNotFound      Code = "E301"
	CodeInvalidFilter Code = "E302"
	CodeInvalidTable  Code = "E303"

	// Setup errors (4xx), abort the build.
	CodeArchiveOpen Code = "E401"
	CodeScratchDir  Code = "E402"
	CodeOutputDir   Code = "E403"
	CodePanic       Code = "E404"

	// Unknown
	CodeUnknown Code = "E999"
)

// Error is the base error type for all indexer errors.
type Error struct {
	Code    Code
	Message string
	Cause   error
	Context map[string]interface{}
}

// Error implements the error interface.
func (e *Error) Error() string {
	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("[%s] %s", e.Code, e.Message))

	if len(e.Context) > 0 {
		keys := make([]string, 0, len(e.Context))
		for k := range e.Context {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		sb.WriteString(" (")
		for i, k := range keys {
			if i > 0 {
				sb.WriteString(", ")
			}
			sb.WriteString(fmt.Sprintf("%s=%v", k, e.Context[k]))
		}
		sb.WriteString(")")
	}

	if e.Cause != nil {
		sb.WriteString(": ")
		sb.WriteString(e.Cause.Error())
	}

	return sb.String()
}

// Unwrap returns the underlying cause.
func (e *Error) Unwrap() error {
	return e.Cause
}

// Is checks if this error matches a target error.
func (e *Error) Is(target error) bool {
	if t, ok := target.(*Error); ok {
		return e.Code == t.Code
	}
	return false
}

// WithContext adds context to the error.
func (e *Error) WithContext(key string, value interface{}) *Error {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// New creates a new Error.
func New(code Code, message string) *Error {
	return &Error{Code: code, Message: message}
}

// Newf creates a new Error with a formatted message.
func Newf(code Code, format string, args ...interface{}) *Error {
	return New(code, fmt.Sprintf(format, args...))
}

// Wrap wraps an existing error with a code and message.
func Wrap(err error, code Code, message string) *Error {
	if err == nil {
		return nil
	}
	return &Error{Code: code, Message: message, Cause: err}
}

// Wrapf wraps an error with a formatted message.
func Wrapf(err error, code Code, format string, args ...interface{}) *Error {
	return Wrap(err, code, fmt.Sprintf(format, args...))
}

// --- Convenience constructors ---

// NotFound creates a lookup error for an absent metadata name.
func NotFound(name string) *Error {
	return New(CodeNotFound, "metadata variable not found").WithContext("name", name)
}

// MissingKey creates a reconciliation error for a required key.
func MissingKey(key string) *Error {
	return New(CodeMissingKey, "required metadata key missing").WithContext("key", key)
}

// InvalidNumber creates a number parsing error.
func InvalidNumber(field, value string) *Error {
	return New(CodeInvalidNumber, "failed to parse number").
		WithContext("field", field).
		WithContext("value", value)
}

// InvalidTimestamp creates a timestamp parsing error.
func InvalidTimestamp(value string) *Error {
	return New(CodeInvalidTimestamp, "failed to parse timestamp").
		WithContext("value", value)
}

// --- Error checking utilities ---

// IsCode checks if an error has a specific code.
func IsCode(err error, code Code) bool {
	var e *Error
	if errors.As(err, &e) {
		return e.Code == code
	}
	return false
}

// GetCode extracts the error code from an error.
func GetCode(err error) Code {
	var e *Error
	if errors.As(err, &e) {
		return e.Code
	}
	return CodeUnknown
}

// IsSetup returns true if the error must abort a build.
func IsSetup(err error) bool {
	return strings.HasPrefix(string(GetCode(err)), "E4")
}

// IsFormat returns true if the error excludes a single file from the index.
func IsFormat(err error) bool {
	return strings.HasPrefix(string(GetCode(err)), "E2")
}

// IsStructural returns true if the error degrades to default metadata.
func IsStructural(err error) bool {
	return strings.HasPrefix(string(GetCode(err)), "E1")
}

// MultiError collects multiple errors.
type MultiError struct {
	Errors []error
}

// Error implements the error interface.
func (m *MultiError) Error() string {
	if len(m.Errors) == 0 {
		return "no errors"
	}
	if len(m.Errors) == 1 {
		return m.Errors[0].Error()
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("%d errors occurred:\n", len(m.Errors)))
	for i, err := range m.Errors {
		sb.WriteString(fmt.Sprintf("  %d. %s\n", i+1, err.Error()))
	}
	return sb.String()
}

// Add adds an error to the collection.
func (m *MultiError) Add(err error) {
	if err != nil {
		m.Errors = append(m.Errors, err)
	}
}

// Unwrap exposes the collected errors to errors.Is and errors.As.
func (m *MultiError) Unwrap() []error {
	return m.Errors
}

// HasErrors returns true if any errors were collected.
func (m *MultiError) HasErrors() bool {
	return len(m.Errors) > 0
}

// Combined returns nil if no errors, the single error if one, or the MultiError.
func (m *MultiError) Combined() error {
	switch len(m.Errors) {
	case 0:
		return nil
	case 1:
		return m.Errors[0]
	default:
		return m
	}
}
