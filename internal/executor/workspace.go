package executor

import (
	"fmt"
	"os"
	"path/filepath"
	"sync"
)

// Workspace is a uniquely named scratch directory owned by one run. Close
// removes it with everything inside; callers defer Close right after
// NewWorkspace so removal also happens on panics.
type Workspace struct {
	dir  string
	once sync.Once
	err  error
}

// NewWorkspace creates a fresh directory under root (os.TempDir when empty).
func NewWorkspace(root, prefix string) (*Workspace, error) {
	if root != "" {
		if err := os.MkdirAll(root, 0o755); err != nil {
			return nil, fmt.Errorf("create work root: %w", err)
		}
	}
	dir, err := os.MkdirTemp(root, prefix+"*")
	if err != nil {
		return nil, fmt.Errorf("create work dir: %w", err)
	}
	return &Workspace{dir: dir}, nil
}

// Dir returns the absolute path of the workspace.
func (w *Workspace) Dir() string {
	return w.dir
}

// WriteFile writes content to name inside the workspace and returns its path.
func (w *Workspace) WriteFile(name, content string) (string, error) {
	path := filepath.Join(w.dir, filepath.Base(name))
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		return "", fmt.Errorf("write %s: %w", name, err)
	}
	return path, nil
}

// Close removes the workspace. It is safe to call more than once.
func (w *Workspace) Close() error {
	w.once.Do(func() {
		w.err = os.RemoveAll(w.dir)
	})
	return w.err
}
