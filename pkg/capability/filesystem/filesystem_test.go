package filesystem

import (
	"context"
	"os"
	"os/exec"
	"path/filepath"
	"reflect"
	"slices"
	"strings"
	"testing"

	"github.com/Finndersen/adept-ai/pkg/tool"
)

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		t.Fatal(err)
	}
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}
}

func newFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	writeFile(t, filepath.Join(root, "b.txt"), "bee")
	writeFile(t, filepath.Join(root, "A.txt"), "ay")
	writeFile(t, filepath.Join(root, "src", "main.go"), "package main")
	writeFile(t, filepath.Join(root, "src", "deep", "deeper", "x.go"), "package x")
	writeFile(t, filepath.Join(root, ".git", "HEAD"), "ref: refs/heads/main")
	return root
}

func newCapability(t *testing.T, root string, opts ...Option) *Capability {
	t.Helper()
	opts = append([]Option{WithRoot(root), WithGitignore(false)}, opts...)
	c, err := New(context.Background(), opts...)
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	return c
}

func callTool(t *testing.T, c *Capability, name string, args map[string]any) string {
	t.Helper()
	tools, err := c.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	tl, ok := tool.Find(tools, name)
	if !ok {
		t.Fatalf("tool %s not found", name)
	}
	out, err := tl.Call(context.Background(), args)
	if err != nil {
		t.Fatalf("%s failed: %v", name, err)
	}
	return out
}

func TestDirectoryTreeOrderingAndDepth(t *testing.T) {
	root := newFixture(t)
	tree, err := NewDirectoryTree(context.Background(), root, 1, false)
	if err != nil {
		t.Fatalf("NewDirectoryTree failed: %v", err)
	}

	paths := strings.Split(tree.FormatPaths(), "\n")
	want := []string{
		"src/",
		"src/deep/ [not expanded]",
		"src/main.go",
		"A.txt",
		"b.txt",
	}
	if !reflect.DeepEqual(paths, want) {
		t.Fatalf("paths = %q, want %q", paths, want)
	}
	if strings.Contains(tree.FormatPaths(), ".git") {
		t.Fatal(".git should be hidden")
	}
}

func TestDirectoryTreeFormatTree(t *testing.T) {
	root := newFixture(t)
	tree, err := NewDirectoryTree(context.Background(), root, 1, false)
	if err != nil {
		t.Fatalf("NewDirectoryTree failed: %v", err)
	}

	want := strings.Join([]string{
		filepath.Base(tree.Root()) + "/",
		"├─ src/",
		"│  ├─ deep/ [not expanded]",
		"│  └─ main.go",
		"├─ A.txt",
		"└─ b.txt",
	}, "\n")
	if got := tree.FormatTree(); got != want {
		t.Fatalf("FormatTree:\n%s\nwant:\n%s", got, want)
	}
}

func TestDirectoryTreeExpand(t *testing.T) {
	root := newFixture(t)
	ctx := context.Background()
	tree, err := NewDirectoryTree(ctx, root, 0, false)
	if err != nil {
		t.Fatalf("NewDirectoryTree failed: %v", err)
	}
	if !strings.Contains(tree.FormatPaths(), "src/ [not expanded]") {
		t.Fatalf("src should start collapsed:\n%s", tree.FormatPaths())
	}

	if !tree.Expand(ctx, filepath.Join(tree.Root(), "src")) {
		t.Fatal("expected src to expand")
	}
	paths := tree.FormatPaths()
	for _, p := range []string{"src/main.go", "src/deep/ [not expanded]"} {
		if !strings.Contains(paths, p) {
			t.Fatalf("missing %q in:\n%s", p, paths)
		}
	}

	// Not reachable until its parent is expanded.
	if tree.Expand(ctx, filepath.Join(tree.Root(), "src", "deep", "deeper")) {
		t.Fatal("unreachable directory expanded")
	}
	if tree.Expand(ctx, filepath.Join(tree.Root(), "A.txt")) {
		t.Fatal("file expanded")
	}
	if tree.Expand(ctx, t.TempDir()) {
		t.Fatal("directory outside root expanded")
	}
}

func TestDirectoryTreeGitignore(t *testing.T) {
	if _, err := exec.LookPath("git"); err != nil {
		t.Skip("git not installed")
	}
	root := t.TempDir()
	cmd := exec.Command("git", "init", "-q")
	cmd.Dir = root
	if out, err := cmd.CombinedOutput(); err != nil {
		t.Skipf("git init failed: %v: %s", err, out)
	}
	writeFile(t, filepath.Join(root, ".gitignore"), "build/\n*.log\n")
	writeFile(t, filepath.Join(root, "build", "out.bin"), "")
	writeFile(t, filepath.Join(root, "debug.log"), "")
	writeFile(t, filepath.Join(root, "keep.go"), "")

	tree, err := NewDirectoryTree(context.Background(), root, 2, true)
	if err != nil {
		t.Fatalf("NewDirectoryTree failed: %v", err)
	}
	paths := tree.FormatPaths()
	for _, p := range []string{"keep.go", ".gitignore"} {
		if !strings.Contains(paths, p) {
			t.Fatalf("missing %q in:\n%s", p, paths)
		}
	}
	for _, p := range []string{"build", "debug.log"} {
		if strings.Contains(paths, p) {
			t.Fatalf("ignored %q listed in:\n%s", p, paths)
		}
	}

	unfiltered, err := NewDirectoryTree(context.Background(), root, 2, false)
	if err != nil {
		t.Fatalf("NewDirectoryTree failed: %v", err)
	}
	if !strings.Contains(unfiltered.FormatPaths(), "debug.log") {
		t.Fatal("debug.log should be listed without gitignore")
	}
}

func TestCapabilityDefaults(t *testing.T) {
	root := newFixture(t)
	c := newCapability(t, root)

	if c.Name() != Name || c.Description() != Description {
		t.Fatalf("unexpected identity %q / %q", c.Name(), c.Description())
	}
	if c.Enabled() {
		t.Fatal("capability should start disabled")
	}

	tools, err := c.Tools(context.Background())
	if err != nil {
		t.Fatalf("Tools failed: %v", err)
	}
	if names := tool.Names(tools); !reflect.DeepEqual(names, []string{"create_file", "read_file", "expand_directory"}) {
		t.Fatalf("tool names = %v", names)
	}
	create, _ := tool.Find(tools, "create_file")
	required := slices.Sorted(slices.Values(create.InputSchema.Required))
	if !reflect.DeepEqual(required, []string{"content", "path"}) {
		t.Fatalf("required = %v", required)
	}

	data, err := c.ContextData(context.Background())
	if err != nil {
		t.Fatalf("ContextData failed: %v", err)
	}
	if !strings.HasPrefix(data, "Current working directory: "+c.Root()+"\nDirectory structure:\n") {
		t.Fatalf("unexpected context data:\n%s", data)
	}
	if !strings.Contains(data, "src/deep/deeper/x.go") {
		t.Fatalf("tree missing from context data:\n%s", data)
	}
}

func TestCreateAndReadFile(t *testing.T) {
	root := newFixture(t)
	c := newCapability(t, root)

	out := callTool(t, c, "create_file", map[string]any{"path": "notes/todo.md", "content": "- ship it"})
	if out != "File created at notes/todo.md" {
		t.Fatalf("create_file = %q", out)
	}

	raw, err := os.ReadFile(filepath.Join(root, "notes", "todo.md"))
	if err != nil {
		t.Fatal(err)
	}
	if string(raw) != "- ship it" {
		t.Fatalf("file content = %q", raw)
	}

	out = callTool(t, c, "create_file", map[string]any{"path": "notes/todo.md", "content": "overwrite"})
	if out != "Error: File already exists at notes/todo.md" {
		t.Fatalf("second create_file = %q", out)
	}

	if out := callTool(t, c, "read_file", map[string]any{"path": "notes/todo.md"}); out != "- ship it" {
		t.Fatalf("read_file = %q", out)
	}
	if out := callTool(t, c, "read_file", map[string]any{"path": "missing.txt"}); !strings.HasPrefix(out, "Error: Error reading file: ") {
		t.Fatalf("read_file of missing file = %q", out)
	}
}

func TestPathValidation(t *testing.T) {
	root := newFixture(t)
	c := newCapability(t, root)

	for _, name := range []string{"create_file", "read_file", "expand_directory"} {
		args := map[string]any{"path": "/etc/passwd", "content": "x"}
		if out := callTool(t, c, name, args); out != "Error: Path must be relative, not absolute: /etc/passwd" {
			t.Fatalf("%s absolute = %q", name, out)
		}

		args["path"] = "../outside"
		if out := callTool(t, c, name, args); out != "Error: Path must be inside the working directory: ../outside" {
			t.Fatalf("%s parent = %q", name, out)
		}
	}
}

func TestSymlinkEscapeRejected(t *testing.T) {
	root := newFixture(t)
	outside := t.TempDir()
	writeFile(t, filepath.Join(outside, "secret.txt"), "TOP SECRET")
	if err := os.Symlink(outside, filepath.Join(root, "link")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	c := newCapability(t, root)

	tests := []struct {
		tool string
		path string
	}{
		{"read_file", "link/secret.txt"},
		{"create_file", "link/planted.txt"},
		{"create_file", "link/nested/planted.txt"},
		{"expand_directory", "link"},
	}
	for _, tc := range tests {
		out := callTool(t, c, tc.tool, map[string]any{"path": tc.path, "content": "x"})
		if want := "Error: Path must be inside the working directory: " + tc.path; out != want {
			t.Fatalf("%s(%s) = %q, want %q", tc.tool, tc.path, out, want)
		}
	}
	if _, err := os.Stat(filepath.Join(outside, "planted.txt")); !os.IsNotExist(err) {
		t.Fatalf("file planted outside root: %v", err)
	}
	if _, err := os.Stat(filepath.Join(outside, "nested")); !os.IsNotExist(err) {
		t.Fatalf("directory created outside root: %v", err)
	}
}

func TestSymlinkInsideRootAllowed(t *testing.T) {
	root := newFixture(t)
	if err := os.Symlink(filepath.Join(root, "src"), filepath.Join(root, "alias")); err != nil {
		t.Skipf("symlinks unsupported: %v", err)
	}
	c := newCapability(t, root)

	if out := callTool(t, c, "read_file", map[string]any{"path": "alias/main.go"}); out != "package main" {
		t.Fatalf("read_file via internal link = %q", out)
	}
	if out := callTool(t, c, "create_file", map[string]any{"path": "alias/new.go", "content": "package src"}); out != "File created at alias/new.go" {
		t.Fatalf("create_file via internal link = %q", out)
	}
	if _, err := os.Stat(filepath.Join(root, "src", "new.go")); err != nil {
		t.Fatalf("file not created in link target: %v", err)
	}
}

func TestExpandDirectoryTool(t *testing.T) {
	root := newFixture(t)
	c := newCapability(t, root, WithDepth(0))

	tests := []struct {
		path string
		want string
	}{
		{"nope", "Error: Directory does not exist: nope"},
		{"b.txt", "Error: Path is not a directory: b.txt"},
		{"src/deep", "Directory not found or could not be expanded: src/deep"},
		{".git", "Directory not found or could not be expanded: .git"},
	}
	for _, tc := range tests {
		if out := callTool(t, c, "expand_directory", map[string]any{"path": tc.path}); out != tc.want {
			t.Fatalf("expand_directory(%s) = %q, want %q", tc.path, out, tc.want)
		}
	}

	if out := callTool(t, c, "expand_directory", map[string]any{"path": "src"}); out != "Expanded directory: src" {
		t.Fatalf("expand_directory(src) = %q", out)
	}
	data, err := c.ContextData(context.Background())
	if err != nil {
		t.Fatalf("ContextData failed: %v", err)
	}
	if !strings.Contains(data, "src/main.go") {
		t.Fatalf("expanded entries missing:\n%s", data)
	}
}

func TestNewRejectsFileRoot(t *testing.T) {
	root := newFixture(t)
	if _, err := New(context.Background(), WithRoot(filepath.Join(root, "b.txt"))); err == nil {
		t.Fatal("expected error for file root")
	}
}
