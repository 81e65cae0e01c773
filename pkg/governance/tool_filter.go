// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

// Package governance controls which tools are exposed to a model.
package governance

import (
	"path"
	"strings"

	"github.com/Finndersen/adept-ai/pkg/tool"
)

// Decision is the outcome of a filter check.
type Decision struct {
	Allowed bool
	Reason  string
}

// ToolFilter provides tool-level filtering based on allow and deny lists.
// Entries may be glob patterns as understood by path.Match.
type ToolFilter struct {
	allowlist map[string]bool
	denylist  map[string]bool
	// restricted is set once an allowlist is configured, even an empty one.
	restricted bool
}

// ToolFilterOption configures a ToolFilter.
type ToolFilterOption func(*ToolFilter)

// NewToolFilter creates a new ToolFilter with the given options.
// With no options every tool is allowed.
func NewToolFilter(opts ...ToolFilterOption) *ToolFilter {
	tf := &ToolFilter{
		allowlist: make(map[string]bool),
		denylist:  make(map[string]bool),
	}
	for _, opt := range opts {
		opt(tf)
	}
	return tf
}

// WithAllowlist restricts tools to the given names or patterns. An empty
// list allows nothing.
func WithAllowlist(tools []string) ToolFilterOption {
	return func(tf *ToolFilter) {
		tf.AddToAllowlist(tools...)
		tf.restricted = true
	}
}

// WithDenylist forbids the given names or patterns.
func WithDenylist(tools []string) ToolFilterOption {
	return func(tf *ToolFilter) {
		tf.AddToDenylist(tools...)
	}
}

// IsAllowed checks if a tool name is permitted by the filter.
// Evaluation order:
// 1. If denylist contains tool → deny
// 2. If an allowlist is set and doesn't contain tool → deny
// 3. Otherwise → allow
func (tf *ToolFilter) IsAllowed(toolName string) Decision {
	if tf == nil {
		return Decision{Allowed: true}
	}
	if matchesList(toolName, tf.denylist) {
		return Decision{Allowed: false, Reason: "tool is in denylist"}
	}
	if tf.restricted && !matchesList(toolName, tf.allowlist) {
		return Decision{Allowed: false, Reason: "tool is not in allowlist"}
	}
	return Decision{Allowed: true}
}

// Active reports whether the filter can reject anything.
func (tf *ToolFilter) Active() bool {
	return tf != nil && (tf.restricted || len(tf.denylist) > 0)
}

// FilterNames returns only the names that pass the filter, in order.
func (tf *ToolFilter) FilterNames(toolNames []string) []string {
	if !tf.Active() {
		return toolNames
	}
	filtered := make([]string, 0, len(toolNames))
	for _, name := range toolNames {
		if tf.IsAllowed(name).Allowed {
			filtered = append(filtered, name)
		}
	}
	return filtered
}

// Filter returns only the tools that pass the filter, in order.
func (tf *ToolFilter) Filter(tools []tool.Tool) []tool.Tool {
	if !tf.Active() {
		return tools
	}
	filtered := make([]tool.Tool, 0, len(tools))
	for _, t := range tools {
		if tf.IsAllowed(t.Name).Allowed {
			filtered = append(filtered, t)
		}
	}
	return filtered
}

// matchesList checks if toolName matches any entry, exactly or as a glob.
func matchesList(toolName string, list map[string]bool) bool {
	if list[toolName] {
		return true
	}
	for pattern := range list {
		if ok, err := path.Match(pattern, toolName); err == nil && ok {
			return true
		}
	}
	return false
}

// AddToAllowlist adds tools to the allowlist.
func (tf *ToolFilter) AddToAllowlist(tools ...string) {
	for _, name := range tools {
		name = strings.TrimSpace(name)
		if name != "" {
			tf.allowlist[name] = true
		}
	}
	tf.restricted = true
}

// AddToDenylist adds tools to the denylist.
func (tf *ToolFilter) AddToDenylist(tools ...string) {
	for _, name := range tools {
		name = strings.TrimSpace(name)
		if name != "" {
			tf.denylist[name] = true
		}
	}
}

// AllowlistFromSkills merges the allowed-tools lists of several skills,
// dropping duplicates.
func AllowlistFromSkills(allowedTools [][]string) []string {
	seen := make(map[string]bool)
	var result []string

	for _, tools := range allowedTools {
		for _, name := range tools {
			name = strings.TrimSpace(name)
			if name != "" && !seen[name] {
				seen[name] = true
				result = append(result, name)
			}
		}
	}

	return result
}
