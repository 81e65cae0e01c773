// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

// Package telemetry provides OpenTelemetry setup, attribute helpers and a
// trace-aware slog handler for adept components.
package telemetry

import (
	"go.opentelemetry.io/otel/attribute"
)

// Attribute keys used on adept spans and metrics.
const (
	// Agent attributes
	AttrAgentModel     = "adept.agent.model"
	AttrAgentRunID     = "adept.agent.run_id"
	AttrAgentIteration = "adept.agent.iteration"
	AttrAgentMaxIter   = "adept.agent.max_iterations"

	AttrSessionID       = "adept.session.id"
	AttrSessionMsgCount = "adept.session.message_count"
	AttrSessionBackend  = "adept.session.backend"

	// Capability attributes
	AttrCapabilityName    = "adept.capability.name"
	AttrCapabilityEnabled = "adept.capability.enabled"
	AttrCapabilityKind    = "adept.capability.kind" // "static", "mcp", "filesystem", "skill", "project"
	AttrCapabilityCount   = "adept.capabilities.count"
	AttrCapabilityActive  = "adept.capabilities.enabled_count"

	// Tool attributes
	AttrToolName       = "adept.tool.name"
	AttrToolCallID     = "adept.tool.call_id"
	AttrToolArgs       = "adept.tool.arguments"
	AttrToolResult     = "adept.tool.result"
	AttrToolDurationMs = "adept.tool.duration_ms"
	AttrToolSuccess    = "adept.tool.success"
	AttrToolRefresh    = "adept.tool.updates_system_prompt"

	AttrToolsCount = "adept.tools.count"
	AttrToolsNames = "adept.tools.names"

	// MCP attributes
	AttrMCPServer    = "adept.mcp.server"
	AttrMCPMethod    = "adept.mcp.method"
	AttrMCPResource  = "adept.mcp.resource_uri"
	AttrMCPTransport = "adept.mcp.transport"

	// LLM attributes (extending standard gen_ai conventions)
	AttrLLMModel        = "gen_ai.request.model"
	AttrLLMProvider     = "gen_ai.system"
	AttrLLMMessages     = "gen_ai.request.messages"
	AttrLLMTokensInput  = "gen_ai.usage.input_tokens"
	AttrLLMTokensOutput = "gen_ai.usage.output_tokens"
	AttrLLMTokensTotal  = "gen_ai.usage.total_tokens"
	AttrLLMToolCalls    = "gen_ai.tool_calls"
	AttrLLMDurationMs   = "gen_ai.duration_ms"

	AttrPromptTokens = "adept.prompt.tokens"
)

// RunAttributes returns common attributes for agent run spans.
func RunAttributes(runID, model, sessionID string, iteration, maxIter int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrAgentRunID, runID),
	}
	if model != "" {
		attrs = append(attrs, attribute.String(AttrAgentModel, model))
	}
	if sessionID != "" {
		attrs = append(attrs, attribute.String(AttrSessionID, sessionID))
	}
	if iteration > 0 {
		attrs = append(attrs, attribute.Int(AttrAgentIteration, iteration))
	}
	if maxIter > 0 {
		attrs = append(attrs, attribute.Int(AttrAgentMaxIter, maxIter))
	}
	return attrs
}

// SessionAttributes returns attributes for session persistence.
func SessionAttributes(sessionID, backend string, msgCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrSessionID, sessionID),
		attribute.Int(AttrSessionMsgCount, msgCount),
	}
	if backend != "" {
		attrs = append(attrs, attribute.String(AttrSessionBackend, backend))
	}
	return attrs
}

// CapabilityAttributes returns attributes for a capability state change.
func CapabilityAttributes(name, kind string, enabled bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrCapabilityName, name),
		attribute.Bool(AttrCapabilityEnabled, enabled),
	}
	if kind != "" {
		attrs = append(attrs, attribute.String(AttrCapabilityKind, kind))
	}
	return attrs
}

// CapabilitySetAttributes summarises the capabilities behind a prompt render.
func CapabilitySetAttributes(total, enabled int) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.Int(AttrCapabilityCount, total),
		attribute.Int(AttrCapabilityActive, enabled),
	}
}

// ToolCallAttributes returns attributes for a tool call span.
func ToolCallAttributes(name, callID string, durationMs float64, success bool) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrToolName, name),
		attribute.Float64(AttrToolDurationMs, durationMs),
		attribute.Bool(AttrToolSuccess, success),
	}
	if callID != "" {
		attrs = append(attrs, attribute.String(AttrToolCallID, callID))
	}
	return attrs
}

// ToolCallArgsResult returns attributes with tool arguments and result (truncated).
func ToolCallArgsResult(args, result string, maxLen int) []attribute.KeyValue {
	if maxLen <= 0 {
		maxLen = 500
	}
	attrs := []attribute.KeyValue{}
	if args != "" {
		attrs = append(attrs, attribute.String(AttrToolArgs, truncate(args, maxLen)))
	}
	if result != "" {
		attrs = append(attrs, attribute.String(AttrToolResult, truncate(result, maxLen)))
	}
	return attrs
}

// ToolsetAttributes returns attributes describing the tools offered to a model.
func ToolsetAttributes(names []string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.Int(AttrToolsCount, len(names)),
	}
	if len(names) > 0 {
		attrs = append(attrs, attribute.StringSlice(AttrToolsNames, names))
	}
	return attrs
}

// MCPAttributes returns attributes for MCP requests.
func MCPAttributes(server, method, resourceURI string) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrMCPMethod, method),
	}
	if server != "" {
		attrs = append(attrs, attribute.String(AttrMCPServer, server))
	}
	if resourceURI != "" {
		attrs = append(attrs, attribute.String(AttrMCPResource, resourceURI))
	}
	return attrs
}

// LLMAttributes returns attributes for LLM call spans.
func LLMAttributes(model, provider string, msgCount, toolCallCount int) []attribute.KeyValue {
	attrs := []attribute.KeyValue{
		attribute.String(AttrLLMModel, model),
		attribute.Int(AttrLLMMessages, msgCount),
	}
	if provider != "" {
		attrs = append(attrs, attribute.String(AttrLLMProvider, provider))
	}
	if toolCallCount > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMToolCalls, toolCallCount))
	}
	return attrs
}

// LLMUsageAttributes returns token usage attributes.
func LLMUsageAttributes(inputTokens, outputTokens int, durationMs float64) []attribute.KeyValue {
	attrs := []attribute.KeyValue{}
	if inputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensInput, inputTokens))
	}
	if outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensOutput, outputTokens))
	}
	if inputTokens > 0 || outputTokens > 0 {
		attrs = append(attrs, attribute.Int(AttrLLMTokensTotal, inputTokens+outputTokens))
	}
	if durationMs > 0 {
		attrs = append(attrs, attribute.Float64(AttrLLMDurationMs, durationMs))
	}
	return attrs
}

func truncate(s string, maxLen int) string {
	if len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "..."
}
