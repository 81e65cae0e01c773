// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

package agent

import (
	"github.com/Finndersen/adept-ai/pkg/errors"
)

// WrapLLMError wraps a provider error with the model that was called.
func WrapLLMError(err error, model string) *errors.AdeptError {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeLLM, "LLM call failed", err).
		WithContext("model", model).
		WithAttribute("llm.model", model).
		WithRecoverable(true)
}

// WrapToolError wraps a tool execution error with the call that produced it.
func WrapToolError(err error, toolName, toolCallID string) *errors.AdeptError {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeToolFailure, "tool execution failed", err).
		WithContext("tool_name", toolName).
		WithContext("tool_call_id", toolCallID).
		WithAttribute("tool.name", toolName).
		WithRecoverable(true)
}

// WrapStoreError wraps a session store error with the failed operation.
func WrapStoreError(err error, operation, sessionID string) *errors.AdeptError {
	if err == nil {
		return nil
	}
	return errors.New(errors.CodeStore, "session operation failed", err).
		WithContext("operation", operation).
		WithContext("session_id", sessionID).
		WithAttribute("session.operation", operation).
		WithRecoverable(true)
}

// NewMaxIterationsError reports a run that hit its iteration limit.
func NewMaxIterationsError(maxIterations int) *errors.AdeptError {
	return errors.Newf(errors.CodeMaxIterations, "agent stopped after %d iterations without a final answer", maxIterations).
		WithContext("max_iterations", maxIterations).
		WithRecoverable(false)
}

// NewInvalidInputError creates a new invalid input error.
func NewInvalidInputError(msg string) *errors.AdeptError {
	return errors.New(errors.CodeInvalidInput, msg, nil).
		WithRecoverable(false)
}
