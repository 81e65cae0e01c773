// Copyright 2026 © The Adept Authors
// SPDX-License-Identifier: Apache-2.0

// Package prompt renders the agent system prompt from a role and the
// current set of capabilities.
package prompt

import (
	"bytes"
	_ "embed"
	"io"
	"os"
	"path/filepath"
	"strings"
	"text/template"

	adepterrors "github.com/Finndersen/adept-ai/pkg/errors"
)

//go:embed default.tmpl
var defaultTemplate string

// DefaultName is the name of the embedded template.
const DefaultName = "default"

// Template is a parsed system prompt template.
type Template struct {
	name string
	tmpl *template.Template
}

// Funcs are the helpers available inside templates.
var Funcs = template.FuncMap{
	"join":   func(items []string, sep string) string { return strings.Join(items, sep) },
	"indent": indent,
	"trim":   strings.TrimSpace,
	"bullet": bullet,
}

var defaultParsed = MustParse(DefaultName, defaultTemplate)

// Default returns the embedded template.
func Default() *Template { return defaultParsed }

// DefaultSource returns the text of the embedded template, as a starting
// point for custom templates.
func DefaultSource() string { return defaultTemplate }

// Parse parses text as a template. Unknown fields fail at render time.
func Parse(name, text string) (*Template, error) {
	tmpl, err := template.New(name).Funcs(Funcs).Option("missingkey=error").Parse(text)
	if err != nil {
		return nil, adepterrors.New(adepterrors.CodeTemplate, "parse prompt template", err).
			WithContext("template", name)
	}
	return &Template{name: name, tmpl: tmpl}, nil
}

// MustParse is Parse for templates known to be valid. It panics on error.
func MustParse(name, text string) *Template {
	t, err := Parse(name, text)
	if err != nil {
		panic(err)
	}
	return t
}

// Load reads and parses a template file.
func Load(path string) (*Template, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, adepterrors.New(adepterrors.CodeTemplate, "read prompt template", err).
			WithContext("path", path)
	}
	return Parse(filepath.Base(path), string(raw))
}

// Name returns the template name.
func (t *Template) Name() string { return t.name }

// Render executes the template with data.
func (t *Template) Render(w io.Writer, data Data) error {
	if err := t.tmpl.Execute(w, data); err != nil {
		return adepterrors.New(adepterrors.CodeTemplate, "render prompt template", err).
			WithContext("template", t.name)
	}
	return nil
}

// RenderString renders to a string with surrounding whitespace removed.
func (t *Template) RenderString(data Data) (string, error) {
	var buf bytes.Buffer
	if err := t.Render(&buf, data); err != nil {
		return "", err
	}
	return strings.TrimSpace(buf.String()), nil
}

func indent(n int, s string) string {
	if n <= 0 || s == "" {
		return s
	}
	pad := strings.Repeat(" ", n)
	lines := strings.Split(s, "\n")
	for i, line := range lines {
		if line != "" {
			lines[i] = pad + line
		}
	}
	return strings.Join(lines, "\n")
}

// bullet renders items as a markdown list, indenting continuation lines.
func bullet(items []string) string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, "- "+strings.TrimPrefix(indent(2, item), "  "))
	}
	return strings.Join(out, "\n")
}
