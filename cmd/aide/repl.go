package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/aide-dev/aide/pkg/agent"
	"github.com/aide-dev/aide/pkg/background"
	"github.com/aide-dev/aide/pkg/compact"
)

const helpText = `Slash commands:
  /checkpoint [name]   Save a named checkpoint of the working tree
  /checkpoints         List saved checkpoints
  /rewind [id|name]    Restore a checkpoint (most recent when omitted)
  /compact             Force a history compaction now
  /bg <command>        Run a shell command in the background
  /jobs                List background tasks
  /kill <id>           Kill a running background task
  /output <id> [n]     Show a background task's output (last n lines)
  /reset               Clear the conversation history
  /stats               Show token usage and session stats
  /help                Show this help
  /quit                Exit`

// runREPL is the interactive read-eval loop. Ctrl-C during a turn cancels
// the turn at the next iteration boundary; at the prompt it exits.
func runREPL(ctx context.Context, a *app) error {
	fmt.Printf("aide %s · %s · %s\n", version, a.cfg.Model.ID, a.workDir)
	fmt.Println(dimStyle.Render("type /help for commands"))

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for {
		fmt.Print(promptStyle.Render("> "))
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}

		if strings.HasPrefix(line, "/") {
			if quit := a.handleCommand(ctx, line); quit {
				return nil
			}
			continue
		}

		if err := a.runTurn(ctx, line); err != nil {
			if errors.Is(err, agent.ErrEngineBusy) {
				fmt.Println(errorStyle.Render("a turn is already running"))
				continue
			}
			fmt.Println(errorStyle.Render("error: " + err.Error()))
		}
	}
}

// runTurn submits one user message and renders the event stream until the
// turn completes.
func (a *app) runTurn(ctx context.Context, input string) error {
	turnCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, os.Interrupt, syscall.SIGTERM)
	defer signal.Stop(sigs)
	go func() {
		select {
		case <-sigs:
			fmt.Println(noticeStyle.Render("\ninterrupting at the next step..."))
			cancel()
		case <-turnCtx.Done():
		}
	}()

	stream, err := a.engine.Submit(turnCtx, input)
	if err != nil {
		return err
	}
	var turnMessages []agent.Message
	for item := range stream.Iterator(turnCtx) {
		renderEvent(item.Value)
		if item.Value.Type == agent.EventTurnComplete {
			turnMessages = item.Value.Messages
		}
	}
	if len(turnMessages) > 0 {
		if err := a.sess.Append(turnMessages...); err != nil {
			slog.Warn("[Session] persist turn failed", "error", err)
		}
	}
	return nil
}

// handleCommand executes one slash command. It returns true when the
// session should end.
func (a *app) handleCommand(ctx context.Context, line string) bool {
	cmd, rest, _ := strings.Cut(line, " ")
	rest = strings.TrimSpace(rest)

	switch cmd {
	case "/quit", "/exit":
		return true

	case "/help":
		fmt.Println(helpText)

	case "/checkpoint":
		name := rest
		if name == "" {
			name = "manual"
		}
		cp, err := a.checkpoints.Create(ctx, name, "manual checkpoint")
		if err != nil {
			fmt.Println(errorStyle.Render("checkpoint failed: " + err.Error()))
			break
		}
		if cp == nil {
			fmt.Println(dimStyle.Render("checkpoints are disabled"))
			break
		}
		fmt.Println(successStyle.Render(fmt.Sprintf("saved checkpoint %s (%s)", cp.ID, cp.Name)))

	case "/checkpoints":
		cps, err := a.checkpoints.List(ctx)
		if err != nil {
			fmt.Println(errorStyle.Render("list failed: " + err.Error()))
			break
		}
		if len(cps) == 0 {
			fmt.Println(dimStyle.Render("no checkpoints yet"))
			break
		}
		for _, cp := range cps {
			kind := "named"
			if cp.Auto {
				kind = "auto"
			}
			fmt.Printf("%s  %-5s %-20s %s\n",
				cp.ID, kind, cp.Name, cp.Timestamp.Format(time.RFC3339))
		}

	case "/rewind":
		ok, msg := a.checkpoints.Rewind(ctx, rest)
		if ok {
			fmt.Println(successStyle.Render(msg))
		} else {
			fmt.Println(errorStyle.Render(msg))
		}

	case "/compact":
		a.forceCompact(ctx)

	case "/bg":
		if rest == "" {
			fmt.Println(errorStyle.Render("usage: /bg <command>"))
			break
		}
		task, err := a.pool.Run(rest)
		if err != nil {
			fmt.Println(errorStyle.Render("background run failed: " + err.Error()))
			break
		}
		fmt.Println(successStyle.Render("started " + task.ID))

	case "/jobs":
		tasks := a.pool.List()
		if len(tasks) == 0 {
			fmt.Println(dimStyle.Render("no background tasks"))
			break
		}
		for _, t := range tasks {
			fmt.Printf("%s  %-8s %s\n", t.ID, t.Status, t.Command)
		}

	case "/kill":
		if err := a.pool.Kill(rest); err != nil {
			fmt.Println(errorStyle.Render("kill failed: " + err.Error()))
		} else {
			fmt.Println(successStyle.Render("killed " + rest))
		}

	case "/output":
		id, nStr, _ := strings.Cut(rest, " ")
		n := 0
		if nStr != "" {
			n, _ = strconv.Atoi(strings.TrimSpace(nStr))
		}
		out, err := a.pool.Output(id, n)
		if err != nil {
			fmt.Println(errorStyle.Render("output failed: " + err.Error()))
			break
		}
		fmt.Println(out)

	case "/reset":
		a.engine.Reset()
		fmt.Println(successStyle.Render("conversation reset"))

	case "/stats":
		a.printStats(ctx)

	default:
		fmt.Println(errorStyle.Render("unknown command " + cmd + ", try /help"))
	}
	return false
}

// forceCompact runs one compaction outside the usual token gate.
func (a *app) forceCompact(ctx context.Context) {
	before := len(a.engine.History())
	if err := a.engine.CompactNow(ctx); err != nil {
		if errors.Is(err, compact.ErrNothingToCompact) {
			fmt.Println(dimStyle.Render("nothing to compact"))
		} else {
			fmt.Println(errorStyle.Render("compaction failed: " + err.Error()))
		}
		return
	}
	fmt.Println(successStyle.Render(fmt.Sprintf("history compacted: %d -> %d messages",
		before, len(a.engine.History()))))
}

func (a *app) printStats(ctx context.Context) {
	usage := a.engine.Usage()
	fmt.Printf("model:       %s\n", a.cfg.Model.ID)
	fmt.Printf("messages:    %d\n", len(a.engine.History()))
	fmt.Printf("tokens:      %d prompt / %d completion / %d total\n",
		usage.PromptTokens, usage.CompletionTokens, usage.TotalTokens)
	if cps, err := a.checkpoints.List(ctx); err == nil {
		fmt.Printf("checkpoints: %d\n", len(cps))
	}
	running := 0
	for _, t := range a.pool.List() {
		if t.Status == background.StatusRunning {
			running++
		}
	}
	fmt.Printf("background:  %d running\n", running)
	if entries, err := a.journal.RecentChanges(5); err == nil && len(entries) > 0 {
		fmt.Println("recent changes:")
		for _, e := range entries {
			fmt.Printf("  %s %s\n", e.Time.Format("15:04"), e.Description)
		}
	}
}
