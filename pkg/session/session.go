// Package session persists conversation history as an append-only JSONL
// file under .aide/sessions/. A session survives process restarts; loading
// one replays its messages into a fresh engine.
package session

import (
	"bufio"
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/aide-dev/aide/pkg/agent"
)

// Header is the first line of a session file.
type Header struct {
	Type      string    `json:"type"` // "header"
	ID        string    `json:"id"`
	WorkDir   string    `json:"workDir"`
	CreatedAt time.Time `json:"createdAt"`
}

// entry is one JSONL line after the header.
type entry struct {
	Type    string         `json:"type"` // "message"
	Message *agent.Message `json:"message,omitempty"`
}

// Session is an append-only conversation log backed by a JSONL file.
type Session struct {
	mu       sync.Mutex
	path     string
	header   Header
	messages []agent.Message
}

func sessionsDir(workDir string) string {
	return filepath.Join(workDir, ".aide", "sessions")
}

// New creates a fresh session file for workDir.
func New(workDir string) (*Session, error) {
	id := "sess_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:12]
	s := &Session{
		path: filepath.Join(sessionsDir(workDir), id+".jsonl"),
		header: Header{
			Type:      "header",
			ID:        id,
			WorkDir:   workDir,
			CreatedAt: time.Now(),
		},
	}
	if err := os.MkdirAll(filepath.Dir(s.path), 0o755); err != nil {
		return nil, fmt.Errorf("create sessions dir: %w", err)
	}
	if err := s.appendLine(s.header); err != nil {
		return nil, err
	}
	return s, nil
}

// Load reads an existing session file.
func Load(path string) (*Session, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read session: %w", err)
	}

	s := &Session{path: path}
	scanner := bufio.NewScanner(bytes.NewReader(data))
	scanner.Buffer(make([]byte, 0, 64*1024), 16*1024*1024)
	first := true
	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		if first {
			first = false
			if err := json.Unmarshal(line, &s.header); err != nil || s.header.Type != "header" {
				return nil, errors.New("session file has no valid header")
			}
			continue
		}
		var e entry
		if err := json.Unmarshal(line, &e); err != nil {
			// A torn final line from a crashed process is tolerable.
			continue
		}
		if e.Type == "message" && e.Message != nil {
			s.messages = append(s.messages, *e.Message)
		}
	}
	if first {
		return nil, errors.New("session file is empty")
	}
	return s, scanner.Err()
}

// Latest returns the most recently created session for workDir, or nil
// when none exists.
func Latest(workDir string) (*Session, error) {
	entries, err := os.ReadDir(sessionsDir(workDir))
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	var names []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".jsonl") {
			names = append(names, e.Name())
		}
	}
	if len(names) == 0 {
		return nil, nil
	}

	type candidate struct {
		name string
		mod  time.Time
	}
	cands := make([]candidate, 0, len(names))
	for _, name := range names {
		info, err := os.Stat(filepath.Join(sessionsDir(workDir), name))
		if err != nil {
			continue
		}
		cands = append(cands, candidate{name: name, mod: info.ModTime()})
	}
	sort.Slice(cands, func(i, j int) bool { return cands[i].mod.After(cands[j].mod) })
	return Load(filepath.Join(sessionsDir(workDir), cands[0].name))
}

// ID returns the session identifier.
func (s *Session) ID() string { return s.header.ID }

// Path returns the backing file path.
func (s *Session) Path() string { return s.path }

// Messages returns a copy of the recorded messages.
func (s *Session) Messages() []agent.Message {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]agent.Message, len(s.messages))
	copy(out, s.messages)
	return out
}

// Append records messages and flushes them to the file.
func (s *Session) Append(messages ...agent.Message) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i := range messages {
		if err := s.appendLine(entry{Type: "message", Message: &messages[i]}); err != nil {
			return err
		}
		s.messages = append(s.messages, messages[i])
	}
	return nil
}

func (s *Session) appendLine(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	f, err := os.OpenFile(s.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return fmt.Errorf("open session file: %w", err)
	}
	defer f.Close()
	if _, err := f.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("append session entry: %w", err)
	}
	return f.Close()
}
