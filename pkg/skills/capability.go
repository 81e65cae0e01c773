// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

package skills

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/Finndersen/adept-ai/pkg/capability"
	"github.com/Finndersen/adept-ai/pkg/tool"
)

// Capability exposes a skill. Its body becomes prompt instructions while
// enabled, and its bundled files are readable through two tools.
type Capability struct {
	capability.Base
	skill Skill
	tools []tool.Tool
}

// NewCapability returns a disabled capability named after the skill.
func NewCapability(skill Skill) *Capability {
	c := &Capability{
		Base:  capability.NewBase(skill.Name, skill.Description),
		skill: skill,
	}
	c.tools = []tool.Tool{
		tool.MustFromFunc("list_resources",
			fmt.Sprintf("List the files bundled with the %s skill.", skill.Name),
			c.listResources, tool.WithNamePrefix(skill.Name)),
		tool.MustFromFunc("read_resource",
			fmt.Sprintf("Read a file bundled with the %s skill.", skill.Name),
			c.readResource, tool.WithNamePrefix(skill.Name)),
	}
	return c
}

// LoadCapabilities loads the skills under root as capabilities.
func LoadCapabilities(root string) ([]*Capability, error) {
	loaded, err := LoadDir(root)
	if err != nil {
		return nil, err
	}
	out := make([]*Capability, len(loaded))
	for i, s := range loaded {
		out[i] = NewCapability(s)
	}
	return out, nil
}

// Skill returns the underlying skill definition.
func (c *Capability) Skill() Skill { return c.skill }

func (c *Capability) Tools(context.Context) ([]tool.Tool, error) {
	return c.tools, nil
}

func (c *Capability) Instructions() []string {
	if c.skill.Body == "" {
		return nil
	}
	return []string{c.skill.Body}
}

func (c *Capability) UsageExamples() []string {
	if len(c.skill.AllowedTools) == 0 {
		return nil
	}
	return []string{"This skill is pre-approved to use: " + strings.Join(c.skill.AllowedTools, ", ")}
}

type listResourcesArgs struct{}

func (c *Capability) listResources(context.Context, listResourcesArgs) (string, error) {
	files, err := c.skill.Resources()
	if err != nil {
		return "", tool.Errorf("Error listing resources: %v", err)
	}
	if len(files) == 0 {
		return "No resources bundled with this skill", nil
	}
	return strings.Join(files, "\n"), nil
}

type readResourceArgs struct {
	Path string `json:"path" jsonschema:"description=Path of the resource relative to the skill directory"`
}

func (c *Capability) readResource(_ context.Context, in readResourceArgs) (string, error) {
	if in.Path == "" {
		return "", tool.Errorf("Resource path is required")
	}
	if filepath.IsAbs(in.Path) {
		return "", tool.Errorf("Resource path must be relative: %s", in.Path)
	}

	dir, err := filepath.EvalSymlinks(c.skill.Dir)
	if err != nil {
		return "", tool.Errorf("Error reading resource: %v", err)
	}
	full, err := filepath.EvalSymlinks(filepath.Join(dir, filepath.FromSlash(in.Path)))
	if errors.Is(err, fs.ErrNotExist) {
		return "", tool.Errorf("Resource not found: %s", in.Path)
	}
	if err != nil {
		return "", tool.Errorf("Error reading resource: %v", err)
	}
	rel, err := filepath.Rel(dir, full)
	if err != nil || rel == ".." || strings.HasPrefix(rel, ".."+string(filepath.Separator)) {
		return "", tool.Errorf("Resource path is outside the skill directory: %s", in.Path)
	}

	data, err := os.ReadFile(full)
	if err != nil {
		return "", tool.Errorf("Error reading resource: %v", err)
	}
	return string(data), nil
}

var _ capability.Capability = (*Capability)(nil)
