// Package project exposes a repository's AGENTS.md as a capability.
package project

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// FileName is the instruction file searched for.
const FileName = "AGENTS.md"

// Instructions holds the contents of an AGENTS.md file.
type Instructions struct {
	Path     string
	Raw      string
	LoadedAt time.Time
}

// FindAGENTS returns the path of the nearest AGENTS.md at or above startDir,
// or "" when there is none.
func FindAGENTS(startDir string) (string, error) {
	if strings.TrimSpace(startDir) == "" {
		return "", errors.New("startDir is required")
	}
	dir, err := filepath.Abs(startDir)
	if err != nil {
		return "", err
	}
	for {
		candidate := filepath.Join(dir, FileName)
		if info, err := os.Stat(candidate); err == nil && !info.IsDir() {
			return candidate, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			return "", nil
		}
		dir = parent
	}
}

// LoadAGENTS searches for AGENTS.md starting at startDir and walking upwards.
// It returns nil with no error when no file is found.
func LoadAGENTS(startDir string) (*Instructions, error) {
	path, err := FindAGENTS(startDir)
	if err != nil || path == "" {
		return nil, err
	}
	return readInstructions(path)
}

func readInstructions(path string) (*Instructions, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return &Instructions{
		Path:     path,
		Raw:      string(raw),
		LoadedAt: time.Now().UTC(),
	}, nil
}
