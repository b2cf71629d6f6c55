// Package background runs shell commands detached from the conversation
// turn. The pool bounds concurrent tasks and retains a window of completed
// task records for inspection.
package background

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Status is the lifecycle state of a background task.
type Status string

const (
	StatusRunning Status = "running"
	StatusDone    Status = "done"
	StatusFailed  Status = "failed"
	StatusKilled  Status = "killed"
)

var (
	// ErrPoolFull means the concurrent task cap is reached.
	ErrPoolFull = errors.New("background pool is full")
	// ErrTaskNotFound means no task matches the given id.
	ErrTaskNotFound = errors.New("background task not found")
)

// Task is one background command and its captured outcome.
type Task struct {
	ID         string    `json:"id"`
	Command    string    `json:"command"`
	Status     Status    `json:"status"`
	StartedAt  time.Time `json:"startedAt"`
	FinishedAt time.Time `json:"finishedAt,omitempty"`
	Output     string    `json:"output,omitempty"`
	Error      string    `json:"error,omitempty"`
	ReturnCode int       `json:"returnCode"`
}

// Config controls pool limits.
type Config struct {
	// MaxConcurrent caps simultaneously running tasks.
	MaxConcurrent int `yaml:"maxConcurrent" json:"maxConcurrent"`
	// MaxCompleted caps retained finished task records.
	MaxCompleted int `yaml:"maxCompleted" json:"maxCompleted"`
}

// DefaultConfig returns the default pool configuration.
func DefaultConfig() *Config {
	return &Config{MaxConcurrent: 10, MaxCompleted: 20}
}

type running struct {
	task   *Task
	cancel context.CancelFunc
	buf    *lockedBuffer
}

// Pool runs and tracks background tasks.
type Pool struct {
	mu      sync.Mutex
	cfg     *Config
	cwd     string
	active  map[string]*running
	history []*Task
}

// NewPool creates a pool executing commands in cwd.
func NewPool(cwd string, cfg *Config) *Pool {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	return &Pool{cfg: cfg, cwd: cwd, active: make(map[string]*running)}
}

// Run starts a command in the background and returns its task record.
func (p *Pool) Run(command string) (*Task, error) {
	p.mu.Lock()
	if len(p.active) >= p.cfg.MaxConcurrent {
		p.mu.Unlock()
		return nil, fmt.Errorf("%w (max %d)", ErrPoolFull, p.cfg.MaxConcurrent)
	}

	ctx, cancel := context.WithCancel(context.Background())
	task := &Task{
		ID:        "bg_" + strings.ReplaceAll(uuid.NewString(), "-", "")[:8],
		Command:   command,
		Status:    StatusRunning,
		StartedAt: time.Now(),
	}
	r := &running{task: task, cancel: cancel, buf: &lockedBuffer{}}
	p.active[task.ID] = r
	p.mu.Unlock()

	cmd := exec.CommandContext(ctx, "/bin/sh", "-c", command)
	cmd.Dir = p.cwd
	cmd.Stdout = r.buf
	cmd.Stderr = r.buf

	go func() {
		defer cancel()
		err := cmd.Run()
		p.finish(r, err, ctx.Err() != nil)
	}()

	slog.Info("[Background] task started", "id", task.ID, "command", command)
	return task, nil
}

func (p *Pool) finish(r *running, runErr error, cancelled bool) {
	p.mu.Lock()
	defer p.mu.Unlock()

	t := r.task
	t.FinishedAt = time.Now()
	t.Output = r.buf.String()
	switch {
	case cancelled:
		t.Status = StatusKilled
		t.ReturnCode = -1
	case runErr != nil:
		t.Status = StatusFailed
		t.Error = runErr.Error()
		var exitErr *exec.ExitError
		if errors.As(runErr, &exitErr) {
			t.ReturnCode = exitErr.ExitCode()
		} else {
			t.ReturnCode = -1
		}
	default:
		t.Status = StatusDone
	}

	delete(p.active, t.ID)
	p.history = append(p.history, t)
	if len(p.history) > p.cfg.MaxCompleted {
		p.history = p.history[len(p.history)-p.cfg.MaxCompleted:]
	}
	slog.Info("[Background] task finished", "id", t.ID, "status", t.Status, "returnCode", t.ReturnCode)
}

// Kill cancels a running task.
func (p *Pool) Kill(id string) error {
	p.mu.Lock()
	r, ok := p.active[id]
	p.mu.Unlock()
	if !ok {
		return fmt.Errorf("%s: %w", id, ErrTaskNotFound)
	}
	r.cancel()
	return nil
}

// Get returns a snapshot of a task, running or completed.
func (p *Pool) Get(id string) (*Task, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if r, ok := p.active[id]; ok {
		return snapshot(r), nil
	}
	for _, t := range p.history {
		if t.ID == id {
			cp := *t
			return &cp, nil
		}
	}
	return nil, fmt.Errorf("%s: %w", id, ErrTaskNotFound)
}

// List returns all known tasks, running first, newest first within each
// group.
func (p *Pool) List() []*Task {
	p.mu.Lock()
	defer p.mu.Unlock()

	tasks := make([]*Task, 0, len(p.active)+len(p.history))
	for _, r := range p.active {
		tasks = append(tasks, snapshot(r))
	}
	sort.Slice(tasks, func(i, j int) bool { return tasks[i].StartedAt.After(tasks[j].StartedAt) })
	for i := len(p.history) - 1; i >= 0; i-- {
		cp := *p.history[i]
		tasks = append(tasks, &cp)
	}
	return tasks
}

// Output returns the last n lines of a task's captured output, or all of
// it when n <= 0.
func (p *Pool) Output(id string, n int) (string, error) {
	t, err := p.Get(id)
	if err != nil {
		return "", err
	}
	out := t.Output
	if n <= 0 {
		return out, nil
	}
	lines := strings.Split(strings.TrimRight(out, "\n"), "\n")
	if len(lines) > n {
		lines = lines[len(lines)-n:]
	}
	return strings.Join(lines, "\n"), nil
}

func snapshot(r *running) *Task {
	cp := *r.task
	cp.Output = r.buf.String()
	return &cp
}

// lockedBuffer is a goroutine-safe output sink shared by the command's
// stdout and stderr.
type lockedBuffer struct {
	mu  sync.Mutex
	buf bytes.Buffer
}

func (b *lockedBuffer) Write(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.Write(p)
}

func (b *lockedBuffer) String() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.buf.String()
}
