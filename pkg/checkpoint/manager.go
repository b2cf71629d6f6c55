package checkpoint

import (
	"context"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

// Config controls checkpoint behavior.
type Config struct {
	Enabled bool `yaml:"enabled" json:"enabled"`
	// MaxAuto caps retained automatic checkpoints.
	MaxAuto int `yaml:"maxAuto" json:"maxAuto"`
	// MaxNamed caps retained named checkpoints.
	MaxNamed int `yaml:"maxNamed" json:"maxNamed"`
}

// DefaultConfig returns the default checkpoint configuration.
func DefaultConfig() *Config {
	return &Config{Enabled: true, MaxAuto: 20, MaxNamed: 50}
}

// Manager fronts a Storage backend with file tracking, retention pruning
// and the best-effort auto-checkpoint hook the tool dispatcher calls before
// every mutating tool. It implements agent.Checkpointer.
type Manager struct {
	mu      sync.Mutex
	storage Storage
	cfg     *Config
	workDir string
	tracked map[string]struct{}
}

// NewManager builds a manager for workDir, picking the git backend when the
// directory is inside a repository and the archive backend otherwise.
func NewManager(ctx context.Context, workDir string, cfg *Config) (*Manager, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	var storage Storage
	if InGitRepo(ctx, workDir) {
		storage = NewGitStorage(workDir)
		slog.Info("[Checkpoint] using git stash backend", "dir", workDir)
	} else {
		as, err := NewArchiveStorage(workDir)
		if err != nil {
			return nil, fmt.Errorf("init archive storage: %w", err)
		}
		storage = as
		slog.Info("[Checkpoint] using archive backend", "dir", workDir)
	}
	return &Manager{
		storage: storage,
		cfg:     cfg,
		workDir: workDir,
		tracked: make(map[string]struct{}),
	}, nil
}

// NewManagerWithStorage builds a manager on an explicit backend.
func NewManagerWithStorage(storage Storage, workDir string, cfg *Config) *Manager {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Manager{
		storage: storage,
		cfg:     cfg,
		workDir: workDir,
		tracked: make(map[string]struct{}),
	}
}

// TrackFile registers a file for inclusion in archive snapshots. Paths are
// stored relative to the working directory.
func (m *Manager) TrackFile(path string) {
	rel := path
	if filepath.IsAbs(path) {
		if r, err := filepath.Rel(m.workDir, path); err == nil {
			rel = r
		}
	}
	m.mu.Lock()
	m.tracked[rel] = struct{}{}
	m.mu.Unlock()
}

func (m *Manager) trackedFiles() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	files := make([]string, 0, len(m.tracked))
	for f := range m.tracked {
		files = append(files, f)
	}
	sort.Strings(files)
	return files
}

// Create saves a named checkpoint.
func (m *Manager) Create(ctx context.Context, name, description string) (*Checkpoint, error) {
	return m.save(ctx, name, description, false)
}

func (m *Manager) save(ctx context.Context, name, description string, auto bool) (*Checkpoint, error) {
	if !m.cfg.Enabled {
		return nil, nil
	}
	cp := &Checkpoint{
		ID:          newID(),
		Name:        name,
		Timestamp:   time.Now(),
		Auto:        auto,
		Description: description,
	}
	if err := m.storage.Save(ctx, cp, m.trackedFiles()); err != nil {
		return nil, err
	}
	m.prune(ctx)
	return cp, nil
}

// AutoCheckpoint saves an automatic snapshot before a mutating tool runs.
// Failures are reported to the caller, which logs and continues; a broken
// checkpoint never blocks a tool.
func (m *Manager) AutoCheckpoint(description string) error {
	if !m.cfg.Enabled {
		return nil
	}
	_, err := m.save(context.Background(), "auto", description, true)
	return err
}

// prune enforces the retention caps, oldest entries first. Errors are
// logged and swallowed; retention is housekeeping, not correctness.
func (m *Manager) prune(ctx context.Context) {
	cps, err := m.storage.List(ctx)
	if err != nil {
		slog.Warn("[Checkpoint] prune: list failed", "error", err)
		return
	}
	autoSeen, namedSeen := 0, 0
	for _, cp := range cps {
		over := false
		if cp.Auto {
			autoSeen++
			over = autoSeen > m.cfg.MaxAuto
		} else {
			namedSeen++
			over = namedSeen > m.cfg.MaxNamed
		}
		if !over {
			continue
		}
		if err := m.storage.Delete(ctx, cp); err != nil {
			slog.Warn("[Checkpoint] prune: delete failed", "id", cp.ID, "error", err)
		}
	}
}

// List returns all checkpoints, newest first.
func (m *Manager) List(ctx context.Context) ([]*Checkpoint, error) {
	return m.storage.List(ctx)
}

func (m *Manager) find(ctx context.Context, idOrName string) (*Checkpoint, error) {
	cps, err := m.storage.List(ctx)
	if err != nil {
		return nil, err
	}
	if len(cps) == 0 {
		return nil, ErrNoCheckpoints
	}
	if idOrName == "" {
		return cps[0], nil
	}
	for _, cp := range cps {
		if cp.ID == idOrName || cp.Name == idOrName {
			return cp, nil
		}
	}
	return nil, fmt.Errorf("%q: %w", idOrName, ErrNotFound)
}

// Restore brings the working tree back to the given checkpoint.
func (m *Manager) Restore(ctx context.Context, idOrName string) error {
	cp, err := m.find(ctx, idOrName)
	if err != nil {
		return err
	}
	return m.storage.Restore(ctx, cp)
}

// Rewind restores the checkpoint matching idOrName, or the most recent one
// when idOrName is empty. It returns whether the rewind happened plus a
// human-readable status line for the UI.
func (m *Manager) Rewind(ctx context.Context, idOrName string) (bool, string) {
	cp, err := m.find(ctx, idOrName)
	if err != nil {
		return false, fmt.Sprintf("rewind failed: %v", err)
	}
	if err := m.storage.Restore(ctx, cp); err != nil {
		return false, fmt.Sprintf("rewind failed: %v", err)
	}
	return true, fmt.Sprintf("rewound to checkpoint %s (%s, %s)",
		cp.ID, cp.Name, cp.Timestamp.Format(time.RFC3339))
}

// Delete removes one checkpoint.
func (m *Manager) Delete(ctx context.Context, idOrName string) error {
	cp, err := m.find(ctx, idOrName)
	if err != nil {
		return err
	}
	return m.storage.Delete(ctx, cp)
}
