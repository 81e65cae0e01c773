// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

// Package agent implements the LLM tool-calling loop over a builder's
// capabilities.
package agent

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Finndersen/adept-ai/pkg/builder"
	adepterrors "github.com/Finndersen/adept-ai/pkg/errors"
	"github.com/Finndersen/adept-ai/pkg/llm"
	"github.com/Finndersen/adept-ai/pkg/session"
	"github.com/Finndersen/adept-ai/pkg/telemetry"
	"github.com/Finndersen/adept-ai/pkg/tool"
)

// DefaultMaxIterations bounds the LLM calls made by one Run.
const DefaultMaxIterations = 10

// Agent answers user input by calling an LLM with the builder's system
// prompt and tools until the model stops calling tools.
type Agent struct {
	builder       *builder.Builder
	provider      llm.Provider
	model         string
	temperature   float64
	maxIterations int
	store         session.Store
	sessionID     string
	truncator     session.Truncator
	logger        *slog.Logger
	tracer        trace.Tracer
}

// Option configures an Agent instance.
type Option func(*Agent) error

// New creates an Agent over b and provider.
func New(b *builder.Builder, provider llm.Provider, opts ...Option) (*Agent, error) {
	if b == nil {
		return nil, NewInvalidInputError("agent builder is required")
	}
	if provider == nil {
		return nil, NewInvalidInputError("agent provider is required")
	}
	a := &Agent{
		builder:       b,
		provider:      provider,
		maxIterations: DefaultMaxIterations,
		tracer:        telemetry.Tracer("agent"),
	}
	for _, opt := range opts {
		if err := opt(a); err != nil {
			return nil, err
		}
	}
	if a.store != nil && a.sessionID == "" {
		a.sessionID = b.SessionID()
		if a.sessionID == "" {
			a.sessionID = session.NewID()
		}
	}
	a.logger = telemetry.LoggerOr(a.logger)
	return a, nil
}

// WithModel sets the model name sent to the provider.
func WithModel(model string) Option {
	return func(a *Agent) error {
		a.model = model
		return nil
	}
}

// WithTemperature sets the sampling temperature.
func WithTemperature(temperature float64) Option {
	return func(a *Agent) error {
		a.temperature = temperature
		return nil
	}
}

// WithMaxIterations caps the LLM calls per Run. Zero keeps the default.
func WithMaxIterations(n int) Option {
	return func(a *Agent) error {
		if n < 0 {
			return NewInvalidInputError("max iterations must not be negative")
		}
		if n > 0 {
			a.maxIterations = n
		}
		return nil
	}
}

// WithSession keeps the conversation in store under sessionID. An empty
// sessionID reuses the builder's session.
func WithSession(store session.Store, sessionID string) Option {
	return func(a *Agent) error {
		a.store = store
		a.sessionID = sessionID
		return nil
	}
}

// WithTruncation trims the messages sent to the provider.
func WithTruncation(t session.Truncator) Option {
	return func(a *Agent) error {
		a.truncator = t
		return nil
	}
}

// WithLogger sets the logger; nil means slog.Default().
func WithLogger(logger *slog.Logger) Option {
	return func(a *Agent) error {
		a.logger = logger
		return nil
	}
}

// SessionID returns the session the conversation is stored under, or ""
// without a store.
func (a *Agent) SessionID() string { return a.sessionID }

// Builder returns the agent's builder.
func (a *Agent) Builder() *builder.Builder { return a.builder }

// History returns the stored conversation.
func (a *Agent) History(ctx context.Context) ([]llm.Message, error) {
	if a.store == nil {
		return nil, nil
	}
	msgs, err := a.store.Messages(ctx, a.sessionID)
	if err != nil {
		return nil, WrapStoreError(err, "load", a.sessionID)
	}
	return msgs, nil
}

// Run sends input to the model and executes its tool calls until it
// answers without any, returning that answer.
func (a *Agent) Run(ctx context.Context, input string) (string, error) {
	runID := uuid.NewString()
	ctx, span := a.tracer.Start(ctx, "agent.run",
		trace.WithAttributes(telemetry.RunAttributes(runID, a.model, a.sessionID, 0, a.maxIterations)...))
	defer span.End()

	// Builder, capability and tool records logged under ctx carry the run too.
	attrs := []slog.Attr{slog.String("run_id", runID)}
	if a.sessionID != "" {
		attrs = append(attrs, slog.String("session_id", a.sessionID))
	}
	ctx = telemetry.ContextWithLogAttrs(ctx, attrs...)
	log := a.logger
	log.InfoContext(ctx, "agent.run.start", "model", a.model)

	answer, err := a.run(ctx, log, input)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		log.ErrorContext(ctx, "agent.run.failed", "error", err)
		return "", err
	}
	span.SetStatus(codes.Ok, "")
	log.InfoContext(ctx, "agent.run.done")
	return answer, nil
}

func (a *Agent) run(ctx context.Context, log *slog.Logger, input string) (string, error) {
	history, err := a.History(ctx)
	if err != nil {
		return "", err
	}
	turn := []llm.Message{llm.UserMessage(input)}

	systemPrompt := ""
	stale := true
	for i := 1; i <= a.maxIterations; i++ {
		if stale {
			if systemPrompt, err = a.builder.SystemPrompt(ctx); err != nil {
				return "", err
			}
			stale = false
		}
		tools, err := a.builder.LLMTools(ctx)
		if err != nil {
			return "", err
		}

		msgs := make([]llm.Message, 0, len(history)+len(turn)+1)
		msgs = append(msgs, llm.SystemMessage(systemPrompt))
		msgs = append(msgs, history...)
		msgs = append(msgs, turn...)
		if a.truncator != nil {
			msgs = a.truncator.Truncate(msgs)
		}

		resp, err := a.chat(ctx, i, llm.ChatRequest{
			Model:       a.model,
			Messages:    msgs,
			Tools:       tools,
			Temperature: a.temperature,
		})
		if err != nil {
			return "", err
		}
		turn = append(turn, resp.Message())

		if len(resp.ToolCalls) == 0 {
			a.save(ctx, log, turn)
			return resp.Content, nil
		}

		for j, call := range resp.ToolCalls {
			out, refresh, err := a.callTool(ctx, log, call)
			if err != nil {
				turn = append(turn, unansweredResults(resp.ToolCalls[j:], err)...)
				a.save(ctx, log, turn)
				return "", err
			}
			turn = append(turn, llm.ToolResultMessage(call.ID, out))
			if refresh {
				stale = true
			}
		}
	}

	a.save(ctx, log, turn)
	return "", NewMaxIterationsError(a.maxIterations)
}

func (a *Agent) chat(ctx context.Context, iteration int, req llm.ChatRequest) (*llm.ChatResponse, error) {
	provider := llm.ProviderName(a.provider)
	ctx, span := a.tracer.Start(ctx, "agent.llm",
		trace.WithAttributes(telemetry.LLMAttributes(a.model, provider, len(req.Messages), 0)...),
		trace.WithAttributes(attribute.Int(telemetry.AttrAgentIteration, iteration)))
	defer span.End()

	start := time.Now()
	resp, err := a.provider.Chat(ctx, req)
	elapsed := float64(time.Since(start).Microseconds()) / 1000
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, WrapLLMError(err, a.model)
	}

	span.SetAttributes(telemetry.LLMUsageAttributes(resp.Usage.PromptTokens, resp.Usage.CompletionTokens, elapsed)...)
	if n := len(resp.ToolCalls); n > 0 {
		span.SetAttributes(telemetry.LLMAttributes(a.model, provider, len(req.Messages), n)...)
	}
	a.logger.DebugContext(ctx, "agent.llm.response",
		"iteration", iteration,
		"tool_calls", len(resp.ToolCalls),
		"duration_ms", elapsed,
	)
	return resp, nil
}

// callTool runs one tool call. Argument and tool failures are reported to
// the model as "Error: ..." output; only errors outside the tool abort the run.
func (a *Agent) callTool(ctx context.Context, log *slog.Logger, call llm.ToolCall) (string, bool, error) {
	name := call.Function.Name
	log = log.With("tool", name, "tool_call_id", call.ID)

	args, err := tool.ParseArguments(call.Function.Arguments)
	if err != nil {
		log.WarnContext(ctx, "agent.tool.bad_arguments", "error", err)
		return "Error: invalid arguments: " + err.Error(), false, nil
	}

	log.InfoContext(ctx, "agent.tool.call")
	res, err := a.builder.CallTool(tool.WithCallID(ctx, call.ID), name, args)
	if err != nil {
		if !adepterrors.HasCode(err, adepterrors.CodeToolFailure) {
			return "", false, WrapToolError(err, name, call.ID)
		}
		log.WarnContext(ctx, "agent.tool.failed", "error", err)
		return "Error: " + rootMessage(err), false, nil
	}
	return res.Output, res.RefreshPrompt, nil
}

func (a *Agent) save(ctx context.Context, log *slog.Logger, msgs []llm.Message) {
	if a.store == nil {
		return
	}
	if err := a.store.AppendMessages(ctx, a.sessionID, msgs...); err != nil {
		log.WarnContext(ctx, "agent.session.save_failed", "error", WrapStoreError(err, "append", a.sessionID))
	}
}

// unansweredResults answers the tool calls left open by an aborted run, so
// the stored conversation never holds a tool call without its result.
func unansweredResults(calls []llm.ToolCall, err error) []llm.Message {
	out := make([]llm.Message, 0, len(calls))
	for _, call := range calls {
		out = append(out, llm.ToolResultMessage(call.ID, "Error: "+rootMessage(err)))
	}
	return out
}

// rootMessage returns the message of the innermost error in err's chain.
func rootMessage(err error) string {
	ae := adepterrors.AsAdeptError(err)
	if ae == nil {
		return err.Error()
	}
	for ae != nil && ae.Err != nil {
		next, ok := ae.Err.(*adepterrors.AdeptError)
		if !ok {
			return ae.Err.Error()
		}
		ae = next
	}
	return ae.Message
}
