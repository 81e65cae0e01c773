package filesystem

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"
	"sync"
)

// Item is a file or directory in a DirectoryTree.
type Item struct {
	Path  string
	IsDir bool
	// Children is nil for files and unexpanded directories.
	Children []*Item
	// Expanded reports whether a directory's children are listed.
	Expanded bool
}

// Name returns the base name of the item.
func (i *Item) Name() string { return filepath.Base(i.Path) }

// DirectoryTree is a partially expanded view of a directory.
type DirectoryTree struct {
	root  string
	depth int
	// gitTop is the enclosing work tree when gitignore rules apply.
	gitTop string

	mu         sync.Mutex
	rootItem   *Item
	tree       string
	paths      string
	treeValid  bool
	pathsValid bool
}

// NewDirectoryTree builds a tree of root, expanding directories up to depth
// levels below it. With gitignore set and root inside a git work tree,
// ignored entries are left out.
func NewDirectoryTree(ctx context.Context, root string, depth int, gitignore bool) (*DirectoryTree, error) {
	abs, err := resolve(root)
	if err != nil {
		return nil, err
	}
	info, err := os.Stat(abs)
	if err != nil {
		return nil, err
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("root is not a directory: %s", abs)
	}

	t := &DirectoryTree{root: abs, depth: depth}
	if gitignore {
		if top, err := gitOutput(ctx, abs, nil, "rev-parse", "--show-toplevel"); err == nil {
			t.gitTop = strings.TrimSpace(string(top))
			slog.DebugContext(ctx, "respecting gitignore rules", "repository", t.gitTop)
		}
	}
	t.rootItem = t.build(ctx, abs, 0)
	return t, nil
}

// Root returns the root directory.
func (t *DirectoryTree) Root() string { return t.root }

// Expand rebuilds the subtree at target, an absolute directory path, so its
// children are listed. It reports false when target is not reachable in the tree.
func (t *DirectoryTree) Expand(ctx context.Context, target string) bool {
	target = filepath.Clean(target)

	t.mu.Lock()
	defer t.mu.Unlock()
	defer t.invalidate()
	return t.expand(ctx, t.rootItem, target, 0)
}

func (t *DirectoryTree) expand(ctx context.Context, item *Item, target string, depth int) bool {
	if !isWithin(item.Path, target) {
		return false
	}
	if item.Path == target {
		if !item.IsDir {
			return false
		}
		item.Children = t.build(ctx, item.Path, depth).Children
		item.Expanded = true
		return true
	}
	for _, child := range item.Children {
		if t.expand(ctx, child, target, depth+1) {
			return true
		}
	}
	return false
}

func (t *DirectoryTree) build(ctx context.Context, dir string, depth int) *Item {
	item := &Item{Path: dir, IsDir: true, Expanded: true, Children: []*Item{}}

	entries, err := t.entries(ctx, dir)
	if err != nil {
		slog.DebugContext(ctx, "skipping unreadable directory", "path", dir, "error", err)
		return item
	}
	for _, e := range entries {
		if !e.isDir {
			item.Children = append(item.Children, &Item{Path: e.path})
			continue
		}
		if depth < t.depth {
			item.Children = append(item.Children, t.build(ctx, e.path, depth+1))
		} else {
			item.Children = append(item.Children, &Item{Path: e.path, IsDir: true})
		}
	}
	return item
}

type entry struct {
	path  string
	name  string
	isDir bool
}

// entries lists dir with directories first, then by case-insensitive name.
func (t *DirectoryTree) entries(ctx context.Context, dir string) ([]entry, error) {
	des, err := os.ReadDir(dir)
	if err != nil {
		return nil, err
	}
	out := make([]entry, 0, len(des))
	for _, de := range des {
		if de.Name() == ".git" {
			continue
		}
		e := entry{path: filepath.Join(dir, de.Name()), name: de.Name(), isDir: de.IsDir()}
		if de.Type()&os.ModeSymlink != 0 {
			if info, err := os.Stat(e.path); err == nil {
				e.isDir = info.IsDir()
			}
		}
		out = append(out, e)
	}

	out = t.dropIgnored(ctx, out)
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].isDir != out[j].isDir {
			return out[i].isDir
		}
		return strings.ToLower(out[i].name) < strings.ToLower(out[j].name)
	})
	return out, nil
}

func (t *DirectoryTree) dropIgnored(ctx context.Context, in []entry) []entry {
	if t.gitTop == "" || len(in) == 0 {
		return in
	}

	var stdin bytes.Buffer
	query := make([]string, len(in))
	for i, e := range in {
		rel, err := filepath.Rel(t.gitTop, e.path)
		if err != nil {
			return in
		}
		rel = filepath.ToSlash(rel)
		if e.isDir {
			rel += "/"
		}
		query[i] = rel
		stdin.WriteString(rel)
		stdin.WriteByte(0)
	}

	out, err := gitOutput(ctx, t.gitTop, &stdin, "check-ignore", "-z", "--stdin")
	if err != nil {
		// Exit status 1 means nothing matched.
		var exitErr *exec.ExitError
		if !errors.As(err, &exitErr) || exitErr.ExitCode() != 1 {
			slog.DebugContext(ctx, "git check-ignore failed", "error", err)
		}
		return in
	}

	ignored := map[string]bool{}
	for _, p := range strings.Split(string(out), "\x00") {
		if p != "" {
			ignored[p] = true
		}
	}
	kept := in[:0]
	for i, e := range in {
		if !ignored[query[i]] {
			kept = append(kept, e)
		}
	}
	return kept
}

// FormatTree renders the tree with box-drawing prefixes.
func (t *DirectoryTree) FormatTree() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.treeValid {
		t.tree = strings.Join(formatTree(t.rootItem), "\n")
		t.treeValid = true
	}
	return t.tree
}

func formatTree(root *Item) []string {
	lines := []string{root.Name() + "/"}
	var walk func(item *Item, prefix string)
	walk = func(item *Item, prefix string) {
		for i, child := range item.Children {
			last := i == len(item.Children)-1
			branch, next := "├─ ", "│  "
			if last {
				branch, next = "└─ ", "   "
			}
			lines = append(lines, prefix+branch+displayName(child))
			if child.IsDir && child.Expanded && len(child.Children) > 0 {
				walk(child, prefix+next)
			}
		}
	}
	walk(root, "")
	return lines
}

func displayName(item *Item) string {
	if !item.IsDir {
		return item.Name()
	}
	if !item.Expanded {
		return item.Name() + "/ [not expanded]"
	}
	return item.Name() + "/"
}

// FormatPaths lists every item as a path relative to the root, one per line.
func (t *DirectoryTree) FormatPaths() string {
	t.mu.Lock()
	defer t.mu.Unlock()
	if !t.pathsValid {
		var paths []string
		t.collectPaths(t.rootItem, &paths)
		t.paths = strings.Join(paths, "\n")
		t.pathsValid = true
	}
	return t.paths
}

func (t *DirectoryTree) collectPaths(item *Item, paths *[]string) {
	if item.Path != t.root {
		rel, err := filepath.Rel(t.root, item.Path)
		if err == nil {
			rel = filepath.ToSlash(rel)
			if item.IsDir {
				rel += "/"
				if !item.Expanded {
					rel += " [not expanded]"
				}
			}
			*paths = append(*paths, rel)
		}
	}
	for _, child := range item.Children {
		t.collectPaths(child, paths)
	}
}

func (t *DirectoryTree) invalidate() {
	t.treeValid = false
	t.pathsValid = false
}

// resolve makes path absolute with symlinks evaluated, so it compares
// cleanly with paths reported by git.
func resolve(path string) (string, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return "", err
	}
	return filepath.EvalSymlinks(abs)
}

// isWithin reports whether target is dir or below it.
func isWithin(dir, target string) bool {
	rel, err := filepath.Rel(dir, target)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}

func gitOutput(ctx context.Context, dir string, stdin *bytes.Buffer, args ...string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, "git", args...)
	cmd.Dir = dir
	if stdin != nil {
		cmd.Stdin = stdin
	}
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("git %s: %w: %s", strings.Join(args, " "), err, strings.TrimSpace(stderr.String()))
	}
	return out, nil
}
