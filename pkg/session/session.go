// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

// Package session persists agent sessions: which capabilities are enabled
// and the conversation so far.
package session

import (
	"context"

	"github.com/google/uuid"

	adepterrors "github.com/Finndersen/adept-ai/pkg/errors"
	"github.com/Finndersen/adept-ai/pkg/llm"
	"github.com/Finndersen/adept-ai/pkg/tokens"
)

// Store persists session state keyed by session ID.
type Store interface {
	// EnabledCapabilities returns the saved enabled set. ok is false when
	// nothing has been saved for the session yet.
	EnabledCapabilities(ctx context.Context, sessionID string) (names []string, ok bool, err error)

	// SaveEnabledCapabilities replaces the saved enabled set.
	SaveEnabledCapabilities(ctx context.Context, sessionID string, names []string) error

	// Messages returns the conversation in order.
	Messages(ctx context.Context, sessionID string) ([]llm.Message, error)

	// AppendMessages adds messages to the end of the conversation.
	AppendMessages(ctx context.Context, sessionID string, msgs ...llm.Message) error

	// Clear removes everything stored for the session.
	Clear(ctx context.Context, sessionID string) error

	Close() error
}

// NewID returns a random session ID.
func NewID() string {
	return uuid.NewString()
}

func storeError(op, sessionID string, err error) error {
	return adepterrors.New(adepterrors.CodeStore, op, err).WithContext("session_id", sessionID)
}

// Truncator trims a conversation before it is sent to a model.
type Truncator interface {
	Truncate(msgs []llm.Message) []llm.Message
}

// WindowStrategy keeps the last MaxMessages messages. System messages are
// kept regardless and count towards the window.
type WindowStrategy struct {
	MaxMessages int
}

// Window returns a WindowStrategy.
func Window(maxMessages int) *WindowStrategy {
	return &WindowStrategy{MaxMessages: maxMessages}
}

func (w *WindowStrategy) Truncate(msgs []llm.Message) []llm.Message {
	if w.MaxMessages <= 0 || len(msgs) <= w.MaxMessages {
		return msgs
	}
	system, other := splitSystem(msgs)
	available := max(w.MaxMessages-len(system), 0)
	if len(other) > available {
		other = other[len(other)-available:]
	}
	return dropOrphanToolResults(append(system, other...))
}

// TokenStrategy keeps the most recent messages that fit in MaxTokens.
// System messages are always kept.
type TokenStrategy struct {
	MaxTokens int
	// Counter defaults to tokens.Count.
	Counter func(string) int
}

// TokenBudget returns a TokenStrategy counting with tokens.Count.
func TokenBudget(maxTokens int) *TokenStrategy {
	return &TokenStrategy{MaxTokens: maxTokens}
}

func (t *TokenStrategy) Truncate(msgs []llm.Message) []llm.Message {
	if t.MaxTokens <= 0 {
		return msgs
	}
	counter := t.Counter
	if counter == nil {
		counter = tokens.Count
	}
	count := func(m llm.Message) int {
		n := counter(m.Content)
		for _, call := range m.ToolCalls {
			n += counter(call.Function.Name) + counter(call.Function.Arguments)
		}
		return n
	}

	total := 0
	for _, m := range msgs {
		total += count(m)
	}
	if total <= t.MaxTokens {
		return msgs
	}

	system, other := splitSystem(msgs)
	budget := t.MaxTokens
	for _, m := range system {
		budget -= count(m)
	}

	start := len(other)
	used := 0
	for i := len(other) - 1; i >= 0; i-- {
		n := count(other[i])
		if used+n > budget {
			break
		}
		used += n
		start = i
	}
	return dropOrphanToolResults(append(system, other[start:]...))
}

func splitSystem(msgs []llm.Message) (system, other []llm.Message) {
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			system = append(system, m)
		} else {
			other = append(other, m)
		}
	}
	return system, other
}

// dropOrphanToolResults removes leading tool results whose assistant call
// was cut off, since providers reject them.
func dropOrphanToolResults(msgs []llm.Message) []llm.Message {
	out := make([]llm.Message, 0, len(msgs))
	leading := true
	for _, m := range msgs {
		if m.Role == llm.RoleSystem {
			out = append(out, m)
			continue
		}
		if leading && m.Role == llm.RoleTool {
			continue
		}
		leading = false
		out = append(out, m)
	}
	return out
}
