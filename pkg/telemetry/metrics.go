// SPDX-License-Identifier: Apache-2.0
package telemetry

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	"github.com/Finndersen/adept-ai/pkg/errors"
)

// ToolMetrics counts tool calls, tool failures and capability enables.
// A nil *ToolMetrics is valid and records nothing.
type ToolMetrics struct {
	calls       metric.Int64Counter
	failures    metric.Int64Counter
	duration    metric.Float64Histogram
	enables     metric.Int64Counter
	promptBytes metric.Int64Histogram
}

// NewToolMetrics creates tool metrics on the global meter provider.
func NewToolMetrics() (*ToolMetrics, error) {
	meter := otel.Meter(InstrumentationName + "/tools")

	calls, err := meter.Int64Counter(
		"adept.tool.calls",
		metric.WithDescription("Tool calls by tool name"),
	)
	if err != nil {
		return nil, err
	}

	failures, err := meter.Int64Counter(
		"adept.tool.errors",
		metric.WithDescription("Failed tool calls by tool name and error code"),
	)
	if err != nil {
		return nil, err
	}

	duration, err := meter.Float64Histogram(
		"adept.tool.duration",
		metric.WithDescription("Tool call latency"),
		metric.WithUnit("ms"),
	)
	if err != nil {
		return nil, err
	}

	enables, err := meter.Int64Counter(
		"adept.capability.enables",
		metric.WithDescription("Capability enable transitions by capability name"),
	)
	if err != nil {
		return nil, err
	}

	promptBytes, err := meter.Int64Histogram(
		"adept.prompt.size",
		metric.WithDescription("Rendered system prompt size"),
		metric.WithUnit("By"),
	)
	if err != nil {
		return nil, err
	}

	return &ToolMetrics{
		calls:       calls,
		failures:    failures,
		duration:    duration,
		enables:     enables,
		promptBytes: promptBytes,
	}, nil
}

// RecordCall records a finished tool call. A non-nil err also counts as a failure.
func (m *ToolMetrics) RecordCall(ctx context.Context, name string, durationMs float64, err error) {
	if m == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(AttrToolName, name))
	m.calls.Add(ctx, 1, attrs)
	m.duration.Record(ctx, durationMs, attrs)
	if err == nil {
		return
	}

	code := "UNKNOWN"
	recoverable := "unknown"
	if ae := errors.AsAdeptError(err); ae != nil && ae.Code != errors.CodeInternal {
		code = string(ae.Code)
		recoverable = ae.RecoverableString()
	}
	m.failures.Add(ctx, 1, metric.WithAttributes(
		attribute.String(AttrToolName, name),
		attribute.String("error.code", code),
		attribute.String("recoverable", recoverable),
	))
}

// RecordEnable records a capability being switched on.
func (m *ToolMetrics) RecordEnable(ctx context.Context, capability string) {
	if m == nil {
		return
	}
	m.enables.Add(ctx, 1, metric.WithAttributes(attribute.String(AttrCapabilityName, capability)))
}

// RecordPrompt records the size of a rendered system prompt.
func (m *ToolMetrics) RecordPrompt(ctx context.Context, size int) {
	if m == nil {
		return
	}
	m.promptBytes.Record(ctx, int64(size))
}
