// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

// Package tool defines the callable tools that capabilities expose to an LLM.
package tool

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Finndersen/adept-ai/pkg/telemetry"
)

// Func is the implementation behind a Tool.
type Func func(ctx context.Context, args map[string]any) (string, error)

// Tool is a named function with a JSON schema describing its arguments.
type Tool struct {
	Name        string
	Description string
	InputSchema InputSchema
	Func        Func
	// UpdatesSystemPrompt marks tools whose calls change the system prompt,
	// so callers re-render it before the next model turn.
	UpdatesSystemPrompt bool
}

// Error is a failure that is reported back to the model as text so it can
// correct itself, rather than aborting the run.
type Error struct {
	Message string
}

func (e *Error) Error() string { return e.Message }

// Errorf builds a tool Error.
func Errorf(format string, args ...any) *Error {
	return &Error{Message: fmt.Sprintf(format, args...)}
}

// Option adjusts a Tool at construction time.
type Option func(*Tool)

// WithNamePrefix renames the tool to prefix-name.
func WithNamePrefix(prefix string) Option {
	return func(t *Tool) {
		if prefix != "" {
			t.Name = prefix + "-" + t.Name
		}
	}
}

// WithUpdatesSystemPrompt flags the tool as changing the system prompt.
func WithUpdatesSystemPrompt() Option {
	return func(t *Tool) { t.UpdatesSystemPrompt = true }
}

// New builds a Tool from an explicit schema.
func New(name, description string, schema InputSchema, fn Func, opts ...Option) Tool {
	t := Tool{
		Name:        name,
		Description: description,
		InputSchema: schema,
		Func:        fn,
	}
	for _, opt := range opts {
		opt(&t)
	}
	return t
}

type callIDKey struct{}

// WithCallID attaches the LLM tool call ID to ctx for tracing.
func WithCallID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, callIDKey{}, id)
}

func callIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(callIDKey{}).(string)
	return id
}

// Call runs the tool. A *Error returned by Func becomes an "Error: ..."
// result with a nil error; any other error is returned as is.
func (t Tool) Call(ctx context.Context, args map[string]any) (string, error) {
	ctx, span := telemetry.Tracer("tool").Start(ctx, "tool.call",
		trace.WithAttributes(attribute.String(telemetry.AttrToolName, t.Name)))
	defer span.End()

	if args == nil {
		args = map[string]any{}
	}
	slog.DebugContext(ctx, "calling tool", "tool", t.Name, "args", args)

	if t.Func == nil {
		err := fmt.Errorf("tool %s has no implementation", t.Name)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	start := time.Now()
	out, err := t.Func(ctx, args)
	elapsed := float64(time.Since(start).Microseconds()) / 1000

	var toolErr *Error
	if errors.As(err, &toolErr) {
		out = "Error: " + toolErr.Message
		slog.InfoContext(ctx, "tool reported error", "tool", t.Name, "error", toolErr.Message)
		span.SetAttributes(telemetry.ToolCallAttributes(t.Name, callIDFromContext(ctx), elapsed, false)...)
		span.SetAttributes(telemetry.ToolCallArgsResult("", out, 0)...)
		return out, nil
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		span.SetAttributes(telemetry.ToolCallAttributes(t.Name, callIDFromContext(ctx), elapsed, false)...)
		slog.WarnContext(ctx, "tool call failed", "tool", t.Name, "error", err)
		return "", err
	}

	span.SetAttributes(telemetry.ToolCallAttributes(t.Name, callIDFromContext(ctx), elapsed, true)...)
	span.SetAttributes(telemetry.ToolCallArgsResult("", out, 0)...)
	return out, nil
}

// Names returns the names of tools in order.
func Names(tools []Tool) []string {
	names := make([]string, 0, len(tools))
	for _, t := range tools {
		names = append(names, t.Name)
	}
	return names
}

// Find returns the tool called name.
func Find(tools []Tool, name string) (Tool, bool) {
	for _, t := range tools {
		if t.Name == name {
			return t, true
		}
	}
	return Tool{}, false
}
