package skills

import (
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"

	adepterrors "github.com/Finndersen/adept-ai/pkg/errors"
)

func writeSkill(t *testing.T, root, dirName, content string) string {
	t.Helper()
	dir := filepath.Join(root, dirName)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	path := filepath.Join(dir, FileName)
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("write: %v", err)
	}
	return path
}

func TestLoadFile(t *testing.T) {
	path := writeSkill(t, t.TempDir(), "pdf-processing", `---
name: pdf-processing
description: Extracts text and tables from PDF files.
license: Apache-2.0
compatibility: Requires pdftotext
metadata:
  author: example-org
allowed-tools: Bash(pdf:* ) Bash(ocr:*)
---

Use this skill when dealing with PDFs.

---

A horizontal rule above stays in the body.
`)

	skill, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if skill.Name != "pdf-processing" {
		t.Fatalf("unexpected name: %s", skill.Name)
	}
	if want := []string{"Bash(pdf:*)", "Bash(ocr:*)"}; !reflect.DeepEqual(skill.AllowedTools, want) {
		t.Fatalf("allowed tools = %v, want %v", skill.AllowedTools, want)
	}
	if got := skill.AllowedToolNames(); !reflect.DeepEqual(got, []string{"Bash"}) {
		t.Fatalf("allowed tool names = %v", got)
	}
	if skill.Metadata["author"] != "example-org" {
		t.Fatalf("metadata not parsed: %v", skill.Metadata)
	}
	if !strings.HasPrefix(skill.Body, "Use this skill") || !strings.Contains(skill.Body, "horizontal rule") {
		t.Fatalf("unexpected body: %q", skill.Body)
	}
}

func TestLoadFileAllowedToolsList(t *testing.T) {
	path := writeSkill(t, t.TempDir(), "git-helper", `---
name: git-helper
description: Git workflows.
allowed-tools:
  - Read
  - "Bash(git: *)"
  - Read
---
Body.
`)
	skill, err := LoadFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if want := []string{"Read", "Bash(git:*)"}; !reflect.DeepEqual(skill.AllowedTools, want) {
		t.Fatalf("allowed tools = %v, want %v", skill.AllowedTools, want)
	}
}

func TestLoadFileInvalid(t *testing.T) {
	cases := map[string]struct {
		dir     string
		content string
	}{
		"no frontmatter":   {"plain", "just text"},
		"unterminated":     {"open", "---\nname: open\n"},
		"name mismatch":    {"other", "---\nname: mine\ndescription: x\n---\n"},
		"bad name":         {"Bad_Name", "---\nname: Bad_Name\ndescription: x\n---\n"},
		"no description":   {"empty", "---\nname: empty\n---\n"},
		"bad allowed list": {"nums", "---\nname: nums\ndescription: x\nallowed-tools: [1, 2]\n---\n"},
	}
	for name, tc := range cases {
		t.Run(name, func(t *testing.T) {
			path := writeSkill(t, t.TempDir(), tc.dir, tc.content)
			_, err := LoadFile(path)
			if err == nil {
				t.Fatal("expected error")
			}
			if !adepterrors.HasCode(err, adepterrors.CodeInvalidInput) {
				t.Fatalf("expected INVALID_INPUT, got %v", err)
			}
		})
	}
}

func TestLoadDir(t *testing.T) {
	dir := t.TempDir()
	writeSkill(t, dir, "code-review", "---\nname: code-review\ndescription: Review code changes.\n---\n")
	writeSkill(t, dir, "api-design", "---\nname: api-design\ndescription: Design APIs.\n---\n")
	if err := os.MkdirAll(filepath.Join(dir, "not-a-skill"), 0o755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}

	skills, err := LoadDir(dir)
	if err != nil {
		t.Fatalf("load dir: %v", err)
	}
	if len(skills) != 2 {
		t.Fatalf("expected 2 skills, got %d", len(skills))
	}
	if skills[0].Name != "api-design" || skills[1].Name != "code-review" {
		t.Fatalf("skills not sorted: %s, %s", skills[0].Name, skills[1].Name)
	}
}

func TestLoadDirMissing(t *testing.T) {
	_, err := LoadDir(filepath.Join(t.TempDir(), "nope"))
	if !adepterrors.HasCode(err, adepterrors.CodeNotFound) {
		t.Fatalf("expected NOT_FOUND, got %v", err)
	}
}
