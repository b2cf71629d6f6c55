package agent

import (
	"context"
	"fmt"
	"log/slog"
	"sort"
	"strings"

	"github.com/aide-dev/aide/pkg/llm"
)

// Tool is a named, schema-described capability the model can request.
type Tool interface {
	Name() string
	Description() string
	Parameters() map[string]any
	// Mutating reports whether the tool writes persisted state. Mutating
	// calls are preceded by a best-effort checkpoint.
	Mutating() bool
	Execute(ctx context.Context, args map[string]any) (string, error)
}

// ToolResolver resolves tool names and aggregates the per-request schema
// list sent to the provider.
type ToolResolver interface {
	Lookup(name string) (Tool, bool)
	Schemas() []llm.ToolSchema
}

// Checkpointer is the checkpoint subsystem surface the dispatcher needs.
type Checkpointer interface {
	TrackFile(path string)
	AutoCheckpoint(description string) error
}

// FileToucher is implemented by tools that can name the files a call will
// modify before running. The dispatcher registers those paths with the
// checkpoint subsystem first, so the pre-mutation snapshot still holds
// their current contents.
type FileToucher interface {
	TouchedPaths(args map[string]any) []string
}

// ChangeRecorder receives a change-log entry after each successful
// mutating tool call.
type ChangeRecorder interface {
	RecordChange(description string)
}

// Dispatcher resolves tool-call requests, executes them, and converts every
// failure mode into a structured result. It never returns an error to the
// caller: unknown tools, tool errors and panics all become failure results
// fed back to the model.
type Dispatcher struct {
	resolver    ToolResolver
	checkpoints Checkpointer
	journal     ChangeRecorder
}

// NewDispatcher creates a dispatcher. checkpoints and journal may be nil,
// disabling the respective hook.
func NewDispatcher(resolver ToolResolver, checkpoints Checkpointer, journal ChangeRecorder) *Dispatcher {
	return &Dispatcher{resolver: resolver, checkpoints: checkpoints, journal: journal}
}

// Execute runs one tool call to completion and returns its result.
func (d *Dispatcher) Execute(ctx context.Context, name string, args map[string]any) (result ToolExecutionResult) {
	tool, ok := d.resolver.Lookup(name)
	if !ok {
		return ToolExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("tool not found: %s", name),
		}
	}

	action := fmt.Sprintf("%s(%s)", name, summarizeArgs(args))

	if tool.Mutating() && d.checkpoints != nil {
		if ft, ok := tool.(FileToucher); ok {
			for _, p := range ft.TouchedPaths(args) {
				d.checkpoints.TrackFile(p)
			}
		}
		// Best effort: a checkpoint failure must never block or fail
		// the primary action.
		if err := d.checkpoints.AutoCheckpoint("before " + action); err != nil {
			slog.Warn("[Dispatcher] auto checkpoint failed, continuing", "tool", name, "error", err)
		}
	}

	defer func() {
		if r := recover(); r != nil {
			slog.Error("[Dispatcher] tool panicked", "tool", name, "panic", r)
			result = ToolExecutionResult{
				Success: false,
				Error:   fmt.Sprintf("tool %s panicked: %v", name, r),
			}
		}
	}()

	output, err := tool.Execute(ctx, args)
	if err != nil {
		return ToolExecutionResult{
			Success: false,
			Error:   fmt.Sprintf("tool error (%s): %v", name, err),
		}
	}

	if tool.Mutating() && d.journal != nil {
		d.journal.RecordChange(action)
	}

	return ToolExecutionResult{Success: true, Output: output}
}

// summarizeArgs renders arguments compactly for checkpoint descriptions and
// change-log entries. Long values are truncated; keys are sorted so the
// summary is stable.
func summarizeArgs(args map[string]any) string {
	if len(args) == 0 {
		return ""
	}
	keys := make([]string, 0, len(args))
	for k := range args {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		v := fmt.Sprintf("%v", args[k])
		if len(v) > 40 {
			v = v[:40] + "..."
		}
		parts = append(parts, k+"="+v)
	}
	return strings.Join(parts, ", ")
}
