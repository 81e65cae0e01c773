// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

// Package capability defines the unit an agent is composed from: a named,
// switchable bundle of tools, prompt instructions and live context.
package capability

import (
	"context"
	"strings"
	"sync/atomic"

	"github.com/Finndersen/adept-ai/pkg/tool"
)

// Capability is a group of tools and prompt content that can be enabled
// at runtime.
type Capability interface {
	Name() string
	Description() string
	Enabled() bool
	Enable(ctx context.Context) error
	Disable(ctx context.Context) error
	// Tools returns the tools offered while the capability is enabled.
	Tools(ctx context.Context) ([]tool.Tool, error)
	// Instructions are added to the system prompt. Nil means none.
	Instructions() []string
	UsageExamples() []string
	// ContextData is live context for the system prompt. "" means none.
	ContextData(ctx context.Context) (string, error)
	Setup(ctx context.Context) error
	Teardown(ctx context.Context) error
}

// Base provides the name, description and enabled flag of a capability
// with no-op defaults for everything else. Embed it and override.
// Construct it with NewBase.
type Base struct {
	name        string
	description string
	enabled     *atomic.Bool
}

// NewBase returns a disabled Base.
func NewBase(name, description string) Base {
	return Base{name: name, description: description, enabled: new(atomic.Bool)}
}

func (b *Base) Name() string        { return b.name }
func (b *Base) Description() string { return b.description }

func (b *Base) Enabled() bool {
	return b.enabled != nil && b.enabled.Load()
}

// SetEnabled changes the flag without side effects.
func (b *Base) SetEnabled(enabled bool) {
	if b.enabled == nil {
		b.enabled = new(atomic.Bool)
	}
	b.enabled.Store(enabled)
}

func (b *Base) Enable(context.Context) error {
	b.SetEnabled(true)
	return nil
}

func (b *Base) Disable(context.Context) error {
	b.SetEnabled(false)
	return nil
}

func (b *Base) Tools(context.Context) ([]tool.Tool, error)  { return nil, nil }
func (b *Base) Instructions() []string                      { return nil }
func (b *Base) UsageExamples() []string                     { return nil }
func (b *Base) ContextData(context.Context) (string, error) { return "", nil }
func (b *Base) Setup(context.Context) error                 { return nil }
func (b *Base) Teardown(context.Context) error              { return nil }

// Enabled filters caps to the enabled ones, keeping order.
func Enabled(caps []Capability) []Capability {
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		if c.Enabled() {
			out = append(out, c)
		}
	}
	return out
}

// Disabled filters caps to the disabled ones, keeping order.
func Disabled(caps []Capability) []Capability {
	out := make([]Capability, 0, len(caps))
	for _, c := range caps {
		if !c.Enabled() {
			out = append(out, c)
		}
	}
	return out
}

// Find returns the capability whose name matches name case-insensitively.
func Find(caps []Capability, name string) (Capability, bool) {
	for _, c := range caps {
		if strings.EqualFold(c.Name(), name) {
			return c, true
		}
	}
	return nil, false
}

// Names returns capability names in order.
func Names(caps []Capability) []string {
	names := make([]string, 0, len(caps))
	for _, c := range caps {
		names = append(names, c.Name())
	}
	return names
}
