// Package checkpoint snapshots the working tree so tool-driven edits can be
// rewound. Inside a git repository snapshots ride on the stash; elsewhere
// they are tar.gz archives in the user cache directory. Checkpointing is
// best effort: a failed snapshot is logged and never blocks tool execution.
package checkpoint

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
)

var (
	// ErrNotFound means no checkpoint matches the given id or name.
	ErrNotFound = errors.New("checkpoint not found")
	// ErrNoCheckpoints means the store is empty.
	ErrNoCheckpoints = errors.New("no checkpoints available")
)

// Checkpoint describes one saved snapshot.
type Checkpoint struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Timestamp   time.Time `json:"timestamp"`
	Files       []string  `json:"files,omitempty"`
	Auto        bool      `json:"auto"`
	Description string    `json:"description,omitempty"`
	// Ref is backend specific: a stash tag for git, an archive file name
	// otherwise.
	Ref string `json:"ref,omitempty"`
}

// Storage is a snapshot backend. Implementations keep their own metadata
// index next to the snapshot data.
type Storage interface {
	Save(ctx context.Context, cp *Checkpoint, files []string) error
	Restore(ctx context.Context, cp *Checkpoint) error
	List(ctx context.Context) ([]*Checkpoint, error)
	Delete(ctx context.Context, cp *Checkpoint) error
}

func newID() string {
	return "cp_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8]
}

// index is the JSON metadata ledger shared by both backends. It lives at a
// backend-chosen path and holds entries newest first.
type index struct {
	path string
}

func (ix *index) load() ([]*Checkpoint, error) {
	data, err := os.ReadFile(ix.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read checkpoint index: %w", err)
	}
	var cps []*Checkpoint
	if err := json.Unmarshal(data, &cps); err != nil {
		return nil, fmt.Errorf("parse checkpoint index: %w", err)
	}
	return cps, nil
}

func (ix *index) save(cps []*Checkpoint) error {
	data, err := json.MarshalIndent(cps, "", "  ")
	if err != nil {
		return err
	}
	if err := os.MkdirAll(filepath.Dir(ix.path), 0o755); err != nil {
		return err
	}
	tmp := ix.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return fmt.Errorf("write checkpoint index: %w", err)
	}
	return os.Rename(tmp, ix.path)
}

// add prepends cp so the index stays newest first.
func (ix *index) add(cp *Checkpoint) error {
	cps, err := ix.load()
	if err != nil {
		return err
	}
	return ix.save(append([]*Checkpoint{cp}, cps...))
}

func (ix *index) remove(id string) error {
	cps, err := ix.load()
	if err != nil {
		return err
	}
	kept := cps[:0]
	for _, cp := range cps {
		if cp.ID != id {
			kept = append(kept, cp)
		}
	}
	return ix.save(kept)
}
