// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

// Package builder composes capabilities into a system prompt and a tool set
// for an LLM agent, and lets the model enable further capabilities at runtime.
package builder

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"

	"github.com/Finndersen/adept-ai/pkg/capability"
	adepterrors "github.com/Finndersen/adept-ai/pkg/errors"
	"github.com/Finndersen/adept-ai/pkg/governance"
	"github.com/Finndersen/adept-ai/pkg/llm"
	"github.com/Finndersen/adept-ai/pkg/prompt"
	"github.com/Finndersen/adept-ai/pkg/session"
	"github.com/Finndersen/adept-ai/pkg/telemetry"
	"github.com/Finndersen/adept-ai/pkg/tool"
)

// EnableCapabilityToolName is the meta-tool the model calls to enable a
// disabled capability.
const EnableCapabilityToolName = "enable_capability"

// Builder holds the agent role and its capabilities.
type Builder struct {
	role       string
	caps       []capability.Capability
	template   *prompt.Template
	watcher    *prompt.Watcher
	toolFilter *governance.ToolFilter
	store      session.Store
	sessionID  string
	metrics    *telemetry.ToolMetrics
	logger     *slog.Logger

	// mu serialises enable/disable so the persisted set matches.
	mu sync.Mutex
}

// Option configures a Builder.
type Option func(*Builder)

// WithTemplate renders the system prompt with t instead of the default.
func WithTemplate(t *prompt.Template) Option {
	return func(b *Builder) {
		if t != nil {
			b.template = t
		}
	}
}

// WithTemplateWatcher renders with the watcher's current template. The
// builder starts the watcher in Setup and stops it in Close.
func WithTemplateWatcher(w *prompt.Watcher) Option {
	return func(b *Builder) { b.watcher = w }
}

// WithToolFilter applies allow/deny rules to capability tools.
func WithToolFilter(f *governance.ToolFilter) Option {
	return func(b *Builder) { b.toolFilter = f }
}

// WithSessionStore persists the enabled capability set under sessionID.
func WithSessionStore(store session.Store, sessionID string) Option {
	return func(b *Builder) {
		b.store = store
		b.sessionID = sessionID
	}
}

// WithMetrics records tool calls and capability enables.
func WithMetrics(m *telemetry.ToolMetrics) Option {
	return func(b *Builder) { b.metrics = m }
}

// WithLogger sets the logger.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Builder) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New returns a Builder for role and caps. Capability names must be unique
// ignoring case.
func New(role string, caps []capability.Capability, opts ...Option) (*Builder, error) {
	seen := make(map[string]string, len(caps))
	for _, c := range caps {
		key := strings.ToLower(c.Name())
		if prev, ok := seen[key]; ok {
			return nil, adepterrors.New(adepterrors.CodeInvalidInput,
				fmt.Sprintf("duplicate capability name %q (already used by %q)", c.Name(), prev), nil)
		}
		seen[key] = c.Name()
	}

	b := &Builder{
		role:     role,
		caps:     append([]capability.Capability(nil), caps...),
		template: prompt.Default(),
		logger:   slog.Default(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.store != nil && b.sessionID == "" {
		b.sessionID = session.NewID()
	}
	return b, nil
}

func (b *Builder) Role() string { return b.role }

// SessionID is the ID the enabled set is persisted under, or "".
func (b *Builder) SessionID() string { return b.sessionID }

// Capabilities returns every capability in order.
func (b *Builder) Capabilities() []capability.Capability {
	return append([]capability.Capability(nil), b.caps...)
}

func (b *Builder) EnabledCapabilities() []capability.Capability {
	return capability.Enabled(b.caps)
}

func (b *Builder) DisabledCapabilities() []capability.Capability {
	return capability.Disabled(b.caps)
}

// Template returns the template used for the next render.
func (b *Builder) Template() *prompt.Template {
	if b.watcher != nil {
		return b.watcher.Current()
	}
	return b.template
}

// EnableCapability enables the named capability. An unknown name is
// reported as a tool error so the model can retry.
func (b *Builder) EnableCapability(ctx context.Context, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := capability.Find(b.caps, name)
	if !ok {
		return "", tool.Errorf("Capability %s not found", name)
	}
	if err := c.Enable(ctx); err != nil {
		return "", fmt.Errorf("enable capability %s: %w", c.Name(), err)
	}
	b.metrics.RecordEnable(ctx, c.Name())
	b.logger.InfoContext(ctx, "capability enabled", "capability", c.Name())
	if err := b.persistLocked(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("Capability %s enabled", name), nil
}

// DisableCapability disables the named capability.
func (b *Builder) DisableCapability(ctx context.Context, name string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	c, ok := capability.Find(b.caps, name)
	if !ok {
		return "", tool.Errorf("Capability %s not found", name)
	}
	if err := c.Disable(ctx); err != nil {
		return "", fmt.Errorf("disable capability %s: %w", c.Name(), err)
	}
	b.logger.InfoContext(ctx, "capability disabled", "capability", c.Name())
	if err := b.persistLocked(ctx); err != nil {
		return "", err
	}
	return fmt.Sprintf("Capability %s disabled", name), nil
}

func (b *Builder) persistLocked(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	return b.store.SaveEnabledCapabilities(ctx, b.sessionID, capability.Names(capability.Enabled(b.caps)))
}

// EnableCapabilityTool returns the enable_capability tool. Its name enum
// lists the capabilities disabled at the time of the call.
func (b *Builder) EnableCapabilityTool() tool.Tool {
	schema := tool.Object(map[string]tool.ParameterSpec{
		"name": {
			Type:        "string",
			Description: "Name of the capability to enable",
			Enum:        capability.Names(b.DisabledCapabilities()),
		},
	}, "name")
	return tool.New(EnableCapabilityToolName, "Enable a capability", schema,
		func(ctx context.Context, args map[string]any) (string, error) {
			name, _ := args["name"].(string)
			if name == "" {
				return "", tool.Errorf("Capability name is required")
			}
			return b.EnableCapability(ctx, name)
		}, tool.WithUpdatesSystemPrompt())
}

// SystemPrompt renders the current template.
func (b *Builder) SystemPrompt(ctx context.Context) (string, error) {
	out, err := prompt.Render(ctx, b.Template(), b.role, b.caps)
	if err != nil {
		return "", err
	}
	b.metrics.RecordPrompt(ctx, len(out))
	return out, nil
}

// Tools returns enable_capability when any capability is disabled,
// followed by the tools of each enabled capability in order.
func (b *Builder) Tools(ctx context.Context) ([]tool.Tool, error) {
	enabled := b.EnabledCapabilities()
	perCap := make([][]tool.Tool, len(enabled))

	g, gctx := errgroup.WithContext(ctx)
	for i, c := range enabled {
		g.Go(func() error {
			tools, err := c.Tools(gctx)
			if err != nil {
				return fmt.Errorf("tools of capability %s: %w", c.Name(), err)
			}
			perCap[i] = tools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	var out []tool.Tool
	if len(enabled) < len(b.caps) {
		out = append(out, b.EnableCapabilityTool())
	}
	for _, tools := range perCap {
		out = append(out, b.filter(tools)...)
	}
	return out, nil
}

func (b *Builder) filter(tools []tool.Tool) []tool.Tool {
	if b.toolFilter == nil {
		return tools
	}
	return b.toolFilter.Filter(tools)
}

// GatedTool is a tool paired with a check of whether it is usable now.
type GatedTool struct {
	Tool    tool.Tool
	Enabled func() bool
}

// toolLister is implemented by capabilities that can list tools without
// being enabled, such as MCP capabilities through a temporary session.
type toolLister interface {
	ListTools(ctx context.Context) ([]tool.Tool, error)
}

// AllTools returns the tools of every capability, enabled or not, gated on
// the owning capability's state. The enable tool is always usable. It is
// meant for frameworks that register tools once up front.
func (b *Builder) AllTools(ctx context.Context) ([]GatedTool, error) {
	perCap := make([][]tool.Tool, len(b.caps))
	g, gctx := errgroup.WithContext(ctx)
	for i, c := range b.caps {
		g.Go(func() error {
			var (
				tools []tool.Tool
				err   error
			)
			if lister, ok := c.(toolLister); ok && !c.Enabled() {
				tools, err = lister.ListTools(gctx)
			} else {
				tools, err = c.Tools(gctx)
			}
			if err != nil {
				return fmt.Errorf("tools of capability %s: %w", c.Name(), err)
			}
			perCap[i] = tools
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}

	always := func() bool { return true }
	out := []GatedTool{{Tool: b.EnableCapabilityTool(), Enabled: always}}
	for i, c := range b.caps {
		for _, t := range b.filter(perCap[i]) {
			out = append(out, GatedTool{Tool: t, Enabled: c.Enabled})
		}
	}
	return out, nil
}

// LLMTools returns Tools as provider tool definitions.
func (b *Builder) LLMTools(ctx context.Context) ([]llm.Tool, error) {
	tools, err := b.Tools(ctx)
	if err != nil {
		return nil, err
	}
	return ToLLMTools(tools), nil
}

// ToLLMTools converts tools to provider tool definitions.
func ToLLMTools(tools []tool.Tool) []llm.Tool {
	out := make([]llm.Tool, 0, len(tools))
	for _, t := range tools {
		out = append(out, llm.Tool{
			Type: llm.ToolTypeFunction,
			Function: llm.FunctionDef{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  t.InputSchema,
			},
		})
	}
	return out
}

// CallResult is the outcome of CallTool.
type CallResult struct {
	Output string
	// RefreshPrompt is set when the tool changed the system prompt.
	RefreshPrompt bool
}

// CallTool calls the named tool from the current tool set. Tool errors,
// including an unknown name, come back as "Error: ..." output.
func (b *Builder) CallTool(ctx context.Context, name string, args map[string]any) (CallResult, error) {
	tools, err := b.Tools(ctx)
	if err != nil {
		return CallResult{}, err
	}
	t, ok := tool.Find(tools, name)
	if !ok {
		b.logger.InfoContext(ctx, "model called unknown tool", "tool", name)
		return CallResult{Output: fmt.Sprintf("Error: Tool %s not found", name)}, nil
	}

	start := time.Now()
	out, err := t.Call(ctx, args)
	b.metrics.RecordCall(ctx, name, float64(time.Since(start).Microseconds())/1000, err)
	if err != nil {
		return CallResult{}, adepterrors.New(adepterrors.CodeToolFailure, "tool "+name+" failed", err).
			WithContext("tool", name)
	}
	return CallResult{Output: out, RefreshPrompt: t.UpdatesSystemPrompt}, nil
}

// Setup restores the persisted enabled set, then sets up every capability
// in order. On failure the capabilities already set up are torn down.
func (b *Builder) Setup(ctx context.Context) error {
	ctx, span := telemetry.Tracer("builder").Start(ctx, "builder.setup",
		trace.WithAttributes(telemetry.CapabilitySetAttributes(len(b.caps), len(b.EnabledCapabilities()))...))
	defer span.End()

	if err := b.restore(ctx); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return err
	}

	for i, c := range b.caps {
		if err := c.Setup(ctx); err != nil {
			err = fmt.Errorf("setup capability %s: %w", c.Name(), err)
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			for j := i - 1; j >= 0; j-- {
				if terr := b.caps[j].Teardown(ctx); terr != nil {
					b.logger.WarnContext(ctx, "teardown after failed setup", "capability", b.caps[j].Name(), "error", terr)
				}
			}
			return err
		}
		b.logger.DebugContext(ctx, "capability set up", "capability", c.Name(), "enabled", c.Enabled())
	}

	if b.watcher != nil {
		if err := b.watcher.Start(context.WithoutCancel(ctx)); err != nil {
			b.logger.WarnContext(ctx, "template watcher not started", "error", err)
		}
	}
	return nil
}

func (b *Builder) restore(ctx context.Context) error {
	if b.store == nil {
		return nil
	}
	names, ok, err := b.store.EnabledCapabilities(ctx, b.sessionID)
	if err != nil {
		return err
	}
	if !ok {
		return nil
	}
	want := make(map[string]bool, len(names))
	for _, n := range names {
		want[strings.ToLower(n)] = true
	}
	for _, c := range b.caps {
		switch on := want[strings.ToLower(c.Name())]; {
		case on && !c.Enabled():
			err = c.Enable(ctx)
		case !on && c.Enabled():
			err = c.Disable(ctx)
		}
		if err != nil {
			return fmt.Errorf("restore capability %s: %w", c.Name(), err)
		}
	}
	b.logger.InfoContext(ctx, "restored enabled capabilities", "session_id", b.sessionID, "capabilities", names)
	return nil
}

// Close tears down every capability and joins the errors.
func (b *Builder) Close(ctx context.Context) error {
	if b.watcher != nil {
		b.watcher.Stop()
	}
	var errs []error
	for _, c := range b.caps {
		if err := c.Teardown(ctx); err != nil {
			errs = append(errs, fmt.Errorf("teardown capability %s: %w", c.Name(), err))
		}
	}
	return errors.Join(errs...)
}
