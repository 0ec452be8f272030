package protocol

import (
	"fmt"
	"strings"
)

// ErrorCode enumerates the wire-level error codes carried in an
// ErrorRecord, per spec §7's error taxonomy.
type ErrorCode string

const (
	ErrConfigInvalid              ErrorCode = "CONFIG_INVALID"
	ErrSchemaBuildError            ErrorCode = "SCHEMA_BUILD_ERROR"
	ErrVersionIncompatible        ErrorCode = "VERSION_INCOMPAT"
	ErrUnknownOperation           ErrorCode = "UNKNOWN_OPERATION"
	ErrRequestValidationFailed    ErrorCode = "REQUEST_VALIDATION_FAILED"
	ErrResponseSerializationFailed ErrorCode = "RESPONSE_SERIALIZATION_FAILED"
	ErrDataFetchFailed            ErrorCode = "DATA_FETCH_FAILED"
	ErrDataStoreFailed            ErrorCode = "DATA_STORE_FAILED"
	ErrHandlerError               ErrorCode = "HANDLER_ERROR"
	ErrTimeout                    ErrorCode = "TIMEOUT"
	ErrShutdown                   ErrorCode = "SHUTDOWN"
)

// ErrorRecord is the structured payload of a reply whose headers carry
// has_error=true. Clients must treat such a reply as an error regardless
// of its declared content-type (spec §4.B).
type ErrorRecord struct {
	Code    ErrorCode `json:"code"`
	Message string    `json:"message"`
	Detail  string    `json:"detail,omitempty"`
}

func (e *ErrorRecord) Error() string {
	if e.Detail == "" {
		return fmt.Sprintf("%s: %s", e.Code, e.Message)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Code, e.Message, e.Detail)
}

// FieldError names one invalid or missing field, identified by its
// json-path and the kind of failure observed.
type FieldError struct {
	Path string `json:"path"`
	Kind string `json:"kind"`
}

// ValidationError collects FieldErrors discovered while validating a
// message envelope. The dispatch engine sends its Error() text, which
// lists every field, as the message of a REQUEST_VALIDATION_FAILED
// reply; the reply carries no structured field list. Payload schema
// failures are reported by the jsonschema validator, not by this type.
type ValidationError struct {
	Fields []FieldError
}

func (e *ValidationError) Error() string {
	parts := make([]string, len(e.Fields))
	for i, f := range e.Fields {
		parts[i] = fmt.Sprintf("%s: %s", f.Path, f.Kind)
	}
	return "validation failed: " + strings.Join(parts, "; ")
}

func (e *ValidationError) Add(path, kind string) {
	e.Fields = append(e.Fields, FieldError{Path: path, Kind: kind})
}

func (e *ValidationError) Empty() bool { return len(e.Fields) == 0 }

// First returns at most n field errors, matching spec §4.G's
// "first N validation errors attached" wording.
func (e *ValidationError) First(n int) []FieldError {
	if n >= len(e.Fields) {
		return e.Fields
	}
	return e.Fields[:n]
}
