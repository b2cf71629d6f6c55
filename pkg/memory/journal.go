// Package memory persists a change journal under .aide/ in the working
// directory: a record of what mutating tools did across sessions, so a
// fresh conversation can be told what recently changed.
package memory

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"
)

// ChangeEntry is one recorded mutation.
type ChangeEntry struct {
	Time        time.Time `json:"time"`
	Description string    `json:"description"`
}

// Journal is an append-only change log stored as JSON. It implements
// agent.ChangeRecorder. Record failures are logged and swallowed; the
// journal is advisory.
type Journal struct {
	mu   sync.Mutex
	path string
}

// NewJournal creates a journal rooted at workDir/.aide/changelog.json.
func NewJournal(workDir string) *Journal {
	return &Journal{path: filepath.Join(workDir, ".aide", "changelog.json")}
}

// maxJournalEntries bounds the stored log; oldest entries roll off.
const maxJournalEntries = 500

func (j *Journal) load() ([]ChangeEntry, error) {
	data, err := os.ReadFile(j.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read change journal: %w", err)
	}
	var entries []ChangeEntry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse change journal: %w", err)
	}
	return entries, nil
}

// RecordChange appends one entry to the journal.
func (j *Journal) RecordChange(description string) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.load()
	if err != nil {
		slog.Warn("[Memory] change journal unreadable, starting fresh", "error", err)
		entries = nil
	}
	entries = append(entries, ChangeEntry{Time: time.Now(), Description: description})
	if len(entries) > maxJournalEntries {
		entries = entries[len(entries)-maxJournalEntries:]
	}

	data, err := json.MarshalIndent(entries, "", "  ")
	if err != nil {
		slog.Warn("[Memory] marshal change journal failed", "error", err)
		return
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		slog.Warn("[Memory] create journal directory failed", "error", err)
		return
	}
	if err := os.WriteFile(j.path, data, 0o644); err != nil {
		slog.Warn("[Memory] write change journal failed", "error", err)
	}
}

// RecentChanges returns the newest n entries, most recent last.
func (j *Journal) RecentChanges(n int) ([]ChangeEntry, error) {
	j.mu.Lock()
	defer j.mu.Unlock()

	entries, err := j.load()
	if err != nil {
		return nil, err
	}
	if n > 0 && len(entries) > n {
		entries = entries[len(entries)-n:]
	}
	return entries, nil
}

// Summary renders the newest n entries as a text block suitable for
// inclusion in a system prompt. Empty string when there is no history.
func (j *Journal) Summary(n int) string {
	entries, err := j.RecentChanges(n)
	if err != nil || len(entries) == 0 {
		return ""
	}
	var b strings.Builder
	b.WriteString("Recent changes in this project:\n")
	for _, e := range entries {
		fmt.Fprintf(&b, "- %s %s\n", e.Time.Format("2006-01-02 15:04"), e.Description)
	}
	return b.String()
}
