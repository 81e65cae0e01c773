// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

// Package main implements the adept CLI.
package main

import (
	stderrors "errors"
	"fmt"
	"io"

	"github.com/Finndersen/adept-ai/pkg/errors"
)

// CLIError wraps AdeptError with CLI-specific formatting and hints.
type CLIError struct {
	*errors.AdeptError
	Hint string
}

// NewCLIError creates a new CLI error.
func NewCLIError(ae *errors.AdeptError, hint string) *CLIError {
	return &CLIError{
		AdeptError: ae,
		Hint:       hint,
	}
}

// Error returns the formatted error message with hints.
func (e *CLIError) Error() string {
	if e.AdeptError == nil {
		return "unknown error"
	}

	msg := e.AdeptError.Error()
	if e.Hint != "" {
		msg += "\n  Hint: " + e.Hint
	}
	return msg
}

// Unwrap exposes the AdeptError to errors.As.
func (e *CLIError) Unwrap() error {
	if e.AdeptError == nil {
		return nil
	}
	return e.AdeptError
}

// NewConfigError creates a configuration error with CLI hints.
func NewConfigError(err error, configPath string) *CLIError {
	ae := errors.New(errors.CodeInvalidInput, "configuration error", err).
		WithContext("config_path", configPath).
		WithRecoverable(false)

	hint := "check your configuration file syntax"
	if configPath != "" {
		hint = fmt.Sprintf("check %s for syntax errors", configPath)
	}
	return NewCLIError(ae, hint)
}

// NewProviderError reports an unusable llm section.
func NewProviderError(provider string) *CLIError {
	ae := errors.Newf(errors.CodeInvalidInput, "unknown llm provider %q", provider).
		WithContext("provider", provider).
		WithRecoverable(false)
	return NewCLIError(ae, "set llm.provider to one of ollama, openai, anthropic or mock")
}

// NewInvalidArgumentError creates an invalid argument error with CLI hints.
func NewInvalidArgumentError(arg, reason string) *CLIError {
	ae := errors.New(errors.CodeInvalidInput, fmt.Sprintf("invalid argument: %s", reason), nil).
		WithContext("argument", arg).
		WithContext("reason", reason).
		WithRecoverable(false)
	return NewCLIError(ae, "run 'adept help' for usage information")
}

// hintFor suggests a next step for errors raised outside the CLI.
func hintFor(code errors.ErrorCode) string {
	switch code {
	case errors.CodeLLM:
		return "check llm.base_url and llm.api_key, or that the model server is running"
	case errors.CodeMCP, errors.CodeSessionNotInitialised:
		return "check the mcp_servers entry and that the server command starts"
	case errors.CodeStore:
		return "check the session backend settings"
	case errors.CodeTemplate:
		return "check agent.template for template syntax errors"
	case errors.CodeMaxIterations:
		return "raise agent.max_iterations or simplify the request"
	default:
		return ""
	}
}

// PrintError writes err to w with its code and a hint when one applies.
func PrintError(w io.Writer, err error) {
	if err == nil {
		return
	}
	var cliErr *CLIError
	if !stderrors.As(err, &cliErr) {
		ae := errors.AsAdeptError(err)
		cliErr = NewCLIError(ae, hintFor(ae.Code))
	}
	ae := cliErr.AdeptError
	msg := ae.Message
	if ae.Err != nil {
		msg += ": " + ae.Err.Error()
	}
	fmt.Fprintf(w, "%s %s\n", red("Error ["+FormatErrorCode(ae.Code)+"]:"), msg)
	if cliErr.Hint != "" {
		fmt.Fprintf(w, "  %s %s\n", gray("Hint:"), cliErr.Hint)
	}
}

// FormatErrorCode returns a user-friendly name for error codes.
func FormatErrorCode(code errors.ErrorCode) string {
	switch code {
	case errors.CodeInternal:
		return "Internal Error"
	case errors.CodeInvalidInput:
		return "Invalid Input"
	case errors.CodeNotFound:
		return "Not Found"
	case errors.CodeTimeout:
		return "Timeout"
	case errors.CodeToolFailure:
		return "Tool Failure"
	case errors.CodeCapabilityNotFound:
		return "Capability Not Found"
	case errors.CodeSessionNotInitialised:
		return "Session Not Initialised"
	case errors.CodeMCP:
		return "MCP Error"
	case errors.CodeTemplate:
		return "Template Error"
	case errors.CodeLLM:
		return "LLM Error"
	case errors.CodeMaxIterations:
		return "Max Iterations"
	case errors.CodeStore:
		return "Session Store Error"
	default:
		return string(code)
	}
}
