// SPDX-License-Identifier: Apache-2.0
// Package errors provides typed errors with context for adept components.
package errors

import (
	"encoding/json"
	stderrors "errors"
	"fmt"
)

// ErrorCode classifies adept errors for logging and recovery.
type ErrorCode string

const (
	// CodeInternal indicates an internal error.
	CodeInternal ErrorCode = "INTERNAL_ERROR"

	// CodeInvalidInput indicates invalid configuration or arguments.
	CodeInvalidInput ErrorCode = "INVALID_INPUT"

	// CodeToolFailure indicates a tool execution failed.
	CodeToolFailure ErrorCode = "TOOL_FAILURE"

	// CodeNotFound indicates a requested item does not exist.
	CodeNotFound ErrorCode = "NOT_FOUND"

	// CodeTimeout indicates an operation exceeded its time limit.
	CodeTimeout ErrorCode = "TIMEOUT"

	// CodeCapabilityNotFound indicates no capability matched a name.
	CodeCapabilityNotFound ErrorCode = "CAPABILITY_NOT_FOUND"

	// CodeSessionNotInitialised indicates an MCP session was used before setup.
	CodeSessionNotInitialised ErrorCode = "SESSION_NOT_INITIALISED"

	// CodeMCP indicates an MCP transport or protocol failure.
	CodeMCP ErrorCode = "MCP_ERROR"

	// CodeTemplate indicates a system prompt template failed to parse or render.
	CodeTemplate ErrorCode = "TEMPLATE_ERROR"

	// CodeLLM indicates an LLM provider error.
	CodeLLM ErrorCode = "LLM_ERROR"

	// CodeMaxIterations indicates an agent run hit its iteration limit.
	CodeMaxIterations ErrorCode = "MAX_ITERATIONS"

	// CodeStore indicates a session store failure.
	CodeStore ErrorCode = "STORE_ERROR"
)

// AdeptError is a typed error carrying a code and structured context.
// It can be unwrapped with errors.As.
type AdeptError struct {
	Code        ErrorCode
	Message     string
	Err         error
	Context     map[string]interface{}
	Attributes  map[string]string
	Recoverable bool
}

// Error implements the error interface.
func (e *AdeptError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("[%s] %s: %v", e.Code, e.Message, e.Err)
	}
	return fmt.Sprintf("[%s] %s", e.Code, e.Message)
}

// Unwrap implements errors.Unwrap for error chain traversal.
func (e *AdeptError) Unwrap() error {
	return e.Err
}

// MarshalJSON renders the error for structured logs.
func (e *AdeptError) MarshalJSON() ([]byte, error) {
	out := struct {
		Message     string                 `json:"message"`
		Code        string                 `json:"code"`
		Err         string                 `json:"error,omitempty"`
		Recoverable bool                   `json:"recoverable"`
		Context     map[string]interface{} `json:"context,omitempty"`
		Attributes  map[string]string      `json:"attributes,omitempty"`
	}{
		Message:     e.Error(),
		Code:        string(e.Code),
		Recoverable: e.Recoverable,
		Context:     e.Context,
		Attributes:  e.Attributes,
	}
	if e.Err != nil {
		out.Err = e.Err.Error()
	}
	return json.Marshal(out)
}

// New creates a new AdeptError with the given code, message, and cause.
func New(code ErrorCode, msg string, cause error) *AdeptError {
	return &AdeptError{
		Code:       code,
		Message:    msg,
		Err:        cause,
		Context:    make(map[string]interface{}),
		Attributes: make(map[string]string),
	}
}

// Newf is New with a formatted message and no cause.
func Newf(code ErrorCode, format string, args ...any) *AdeptError {
	return New(code, fmt.Sprintf(format, args...), nil)
}

// WithContext adds a key-value pair to the error context.
func (e *AdeptError) WithContext(key string, value interface{}) *AdeptError {
	if e.Context == nil {
		e.Context = make(map[string]interface{})
	}
	e.Context[key] = value
	return e
}

// WithAttribute adds a string attribute for OTel spans.
func (e *AdeptError) WithAttribute(key, value string) *AdeptError {
	if e.Attributes == nil {
		e.Attributes = make(map[string]string)
	}
	e.Attributes[key] = value
	return e
}

// WithRecoverable sets whether the error can be retried.
func (e *AdeptError) WithRecoverable(recoverable bool) *AdeptError {
	e.Recoverable = recoverable
	return e
}

// RecoverableString returns "true" or "false" for metric attributes.
func (e *AdeptError) RecoverableString() string {
	if e.Recoverable {
		return "true"
	}
	return "false"
}

// AsAdeptError returns err as an AdeptError, searching the chain first and
// wrapping unknown errors as internal.
func AsAdeptError(err error) *AdeptError {
	if err == nil {
		return nil
	}
	var ae *AdeptError
	if stderrors.As(err, &ae) {
		return ae
	}
	return New(CodeInternal, "wrapped error", err)
}

// HasCode reports whether any AdeptError in err's chain carries code.
func HasCode(err error, code ErrorCode) bool {
	var ae *AdeptError
	for err != nil {
		if !stderrors.As(err, &ae) {
			return false
		}
		if ae.Code == code {
			return true
		}
		err = ae.Err
	}
	return false
}
