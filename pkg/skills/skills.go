// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

// Package skills loads Agent Skills directories (a SKILL.md with YAML
// frontmatter plus bundled files) and exposes each one as a capability.
package skills

import (
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"
	"unicode/utf8"

	"gopkg.in/yaml.v3"

	adepterrors "github.com/Finndersen/adept-ai/pkg/errors"
)

// FileName is the skill definition file inside a skill directory.
const FileName = "SKILL.md"

// Skill is a parsed SKILL.md.
type Skill struct {
	Name          string
	Description   string
	License       string
	Compatibility string
	Metadata      map[string]string
	AllowedTools  []string
	// Body is the markdown after the frontmatter.
	Body string
	Path string
	Dir  string
}

const (
	maxNameLen        = 64
	maxDescriptionLen = 1024
	maxCompatLen      = 500
)

var namePattern = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)

// LoadDir loads every subdirectory of root that holds a SKILL.md, sorted by
// name. Directories without one are skipped; an invalid SKILL.md is an error.
func LoadDir(root string) ([]Skill, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		return nil, adepterrors.New(adepterrors.CodeNotFound, "read skills directory", err).
			WithContext("dir", root)
	}
	var out []Skill
	for _, entry := range entries {
		if !entry.IsDir() {
			continue
		}
		path := filepath.Join(root, entry.Name(), FileName)
		if _, err := os.Stat(path); err != nil {
			slog.Debug("skipping directory without skill file", "dir", entry.Name())
			continue
		}
		skill, err := LoadFile(path)
		if err != nil {
			return nil, err
		}
		out = append(out, skill)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

// LoadFile parses and validates a single SKILL.md.
func LoadFile(path string) (Skill, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Skill{}, adepterrors.New(adepterrors.CodeNotFound, "read skill file", err).WithContext("path", path)
	}
	fm, body, err := splitFrontmatter(string(data))
	if err != nil {
		return Skill{}, invalid(path, err)
	}
	var parsed frontmatter
	if err := yaml.Unmarshal([]byte(fm), &parsed); err != nil {
		return Skill{}, invalid(path, fmt.Errorf("parse frontmatter: %w", err))
	}
	allowed, err := normalizeAllowedTools(parsed.AllowedTools)
	if err != nil {
		return Skill{}, invalid(path, err)
	}

	skill := Skill{
		Name:          strings.TrimSpace(parsed.Name),
		Description:   strings.TrimSpace(parsed.Description),
		License:       parsed.License,
		Compatibility: strings.TrimSpace(parsed.Compatibility),
		Metadata:      parsed.Metadata,
		AllowedTools:  allowed,
		Body:          body,
		Path:          path,
		Dir:           filepath.Dir(path),
	}
	if err := skill.Validate(); err != nil {
		return Skill{}, invalid(path, err)
	}
	return skill, nil
}

func invalid(path string, err error) error {
	return adepterrors.New(adepterrors.CodeInvalidInput, "invalid skill", err).WithContext("path", path)
}

type frontmatter struct {
	Name          string            `yaml:"name"`
	Description   string            `yaml:"description"`
	License       string            `yaml:"license"`
	Compatibility string            `yaml:"compatibility"`
	Metadata      map[string]string `yaml:"metadata"`
	AllowedTools  any               `yaml:"allowed-tools"`
}

// splitFrontmatter separates the leading "---" delimited block from the body.
func splitFrontmatter(content string) (string, string, error) {
	content = strings.TrimPrefix(content, "\ufeff")
	trimmed := strings.TrimSpace(content)
	if !strings.HasPrefix(trimmed, "---") {
		return "", "", errors.New("missing frontmatter")
	}
	rest := strings.TrimPrefix(trimmed, "---")
	idx := strings.Index(rest, "\n---")
	if idx < 0 {
		return "", "", errors.New("unterminated frontmatter")
	}
	fm := rest[:idx]
	body := rest[idx+len("\n---"):]
	return strings.TrimSpace(fm), strings.TrimSpace(body), nil
}

// Validate checks the frontmatter fields against the Agent Skills rules.
func (s Skill) Validate() error {
	if s.Name == "" {
		return errors.New("name is required")
	}
	if utf8.RuneCountInString(s.Name) > maxNameLen {
		return fmt.Errorf("name exceeds %d characters", maxNameLen)
	}
	if !namePattern.MatchString(s.Name) {
		return fmt.Errorf("name must match %s", namePattern.String())
	}
	if s.Dir != "" {
		if dirName := filepath.Base(s.Dir); dirName != s.Name {
			return fmt.Errorf("name must match directory name (%s)", dirName)
		}
	}
	if s.Description == "" {
		return errors.New("description is required")
	}
	if utf8.RuneCountInString(s.Description) > maxDescriptionLen {
		return fmt.Errorf("description exceeds %d characters", maxDescriptionLen)
	}
	if utf8.RuneCountInString(s.Compatibility) > maxCompatLen {
		return fmt.Errorf("compatibility exceeds %d characters", maxCompatLen)
	}
	return nil
}

// Resources lists the files bundled with the skill, relative to its
// directory and slash separated. SKILL.md itself and hidden entries are left out.
func (s Skill) Resources() ([]string, error) {
	if s.Dir == "" {
		return nil, nil
	}
	var out []string
	err := filepath.WalkDir(s.Dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if path == s.Dir {
			return nil
		}
		if strings.HasPrefix(d.Name(), ".") {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		rel, err := filepath.Rel(s.Dir, path)
		if err != nil {
			return err
		}
		if rel == FileName {
			return nil
		}
		out = append(out, filepath.ToSlash(rel))
		return nil
	})
	return out, err
}

// AllowedToolNames returns the tool names from allowed-tools with any
// argument pattern removed, so "Bash(git:*)" yields "Bash".
func (s Skill) AllowedToolNames() []string {
	names := make([]string, 0, len(s.AllowedTools))
	for _, t := range s.AllowedTools {
		if i := strings.IndexByte(t, '('); i > 0 {
			t = t[:i]
		}
		names = append(names, t)
	}
	return dedupe(names)
}

func normalizeAllowedTools(value any) ([]string, error) {
	switch v := value.(type) {
	case nil:
		return nil, nil
	case string:
		return dedupe(strings.Fields(sanitizeAllowed(v))), nil
	case []any:
		out := make([]string, 0, len(v))
		for _, item := range v {
			str, ok := item.(string)
			if !ok {
				return nil, errors.New("allowed-tools must be a list of strings")
			}
			out = append(out, sanitizeAllowed(strings.TrimSpace(str)))
		}
		return dedupe(out), nil
	default:
		return nil, errors.New("allowed-tools must be a string or a list")
	}
}

var allowedReplacer = strings.NewReplacer(
	"( ", "(",
	" )", ")",
	": ", ":",
	" :", ":",
)

func sanitizeAllowed(input string) string { return allowedReplacer.Replace(input) }

func dedupe(items []string) []string {
	seen := make(map[string]bool, len(items))
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" || seen[item] {
			continue
		}
		seen[item] = true
		out = append(out, item)
	}
	return out
}
