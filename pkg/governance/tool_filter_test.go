// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

package governance

import (
	"testing"

	"github.com/Finndersen/adept-ai/pkg/tool"
)

func TestToolFilter_EmptyFilter(t *testing.T) {
	filter := NewToolFilter()

	if !filter.IsAllowed("any-tool").Allowed {
		t.Error("empty filter should allow all tools")
	}
	if filter.Active() {
		t.Error("empty filter should not be active")
	}

	var nilFilter *ToolFilter
	if !nilFilter.IsAllowed("any-tool").Allowed {
		t.Error("nil filter should allow all tools")
	}
}

func TestToolFilter_Allowlist(t *testing.T) {
	filter := NewToolFilter(
		WithAllowlist([]string{"search_repositories", "read_file"}),
	)

	tests := []struct {
		name    string
		tool    string
		allowed bool
	}{
		{"allowed tool", "search_repositories", true},
		{"another allowed", "read_file", true},
		{"not in list", "create_issue", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			decision := filter.IsAllowed(tc.tool)
			if decision.Allowed != tc.allowed {
				t.Errorf("tool %q: expected allowed=%v, got %v", tc.tool, tc.allowed, decision.Allowed)
			}
		})
	}
}

func TestToolFilter_EmptyAllowlistDeniesAll(t *testing.T) {
	filter := NewToolFilter(WithAllowlist([]string{}))

	decision := filter.IsAllowed("read_file")
	if decision.Allowed {
		t.Error("empty allowlist should deny everything")
	}
	if decision.Reason != "tool is not in allowlist" {
		t.Errorf("unexpected reason %q", decision.Reason)
	}
}

func TestToolFilter_DenylistTakesPrecedence(t *testing.T) {
	filter := NewToolFilter(
		WithAllowlist([]string{"tool-a", "tool-b"}),
		WithDenylist([]string{"tool-b"}),
	)

	if !filter.IsAllowed("tool-a").Allowed {
		t.Error("tool-a should be allowed (in allowlist, not in denylist)")
	}
	if filter.IsAllowed("tool-b").Allowed {
		t.Error("tool-b should be denied (denylist takes precedence)")
	}
}

func TestToolFilter_GlobPatterns(t *testing.T) {
	filter := NewToolFilter(
		WithAllowlist([]string{"github-*", "read_file"}),
		WithDenylist([]string{"*_delete"}),
	)

	tests := []struct {
		name    string
		tool    string
		allowed bool
	}{
		{"glob match", "github-search_code", true},
		{"exact match", "read_file", true},
		{"denied by glob", "github-repo_delete", false},
		{"no match", "create_file", false},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			if got := filter.IsAllowed(tc.tool).Allowed; got != tc.allowed {
				t.Errorf("tool %q: expected allowed=%v, got %v", tc.tool, tc.allowed, got)
			}
		})
	}
}

func TestToolFilter_Filter(t *testing.T) {
	filter := NewToolFilter(
		WithAllowlist([]string{"tool-a", "tool-c"}),
	)

	names := filter.FilterNames([]string{"tool-a", "tool-b", "tool-c", "tool-d"})
	if len(names) != 2 || names[0] != "tool-a" || names[1] != "tool-c" {
		t.Fatalf("unexpected filtered names %v", names)
	}

	tools := filter.Filter([]tool.Tool{{Name: "tool-c"}, {Name: "tool-b"}, {Name: "tool-a"}})
	got := tool.Names(tools)
	if len(got) != 2 || got[0] != "tool-c" || got[1] != "tool-a" {
		t.Fatalf("unexpected filtered tools %v", got)
	}
}

func TestToolFilter_AddToLists(t *testing.T) {
	filter := NewToolFilter()

	filter.AddToAllowlist("new-tool")
	filter.AddToDenylist("bad-tool")

	if !filter.IsAllowed("new-tool").Allowed {
		t.Error("new-tool should be allowed after AddToAllowlist")
	}
	if filter.IsAllowed("bad-tool").Allowed {
		t.Error("bad-tool should be denied after AddToDenylist")
	}
	if filter.IsAllowed("other-tool").Allowed {
		t.Error("other-tool should be denied (not in allowlist)")
	}
}

func TestAllowlistFromSkills(t *testing.T) {
	allowedTools := [][]string{
		{"Bash(git:*)", "Read"},
		{"Bash(jq:*)", "Read"}, // Read is duplicate
		{"Write"},
	}

	result := AllowlistFromSkills(allowedTools)

	expected := map[string]bool{
		"Bash(git:*)": true,
		"Read":        true,
		"Bash(jq:*)":  true,
		"Write":       true,
	}

	if len(result) != len(expected) {
		t.Errorf("expected %d tools, got %d: %v", len(expected), len(result), result)
	}

	for _, name := range result {
		if !expected[name] {
			t.Errorf("unexpected tool: %q", name)
		}
	}
}
