package main

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/aide-dev/aide/pkg/agent"
	"github.com/aide-dev/aide/pkg/background"
	"github.com/aide-dev/aide/pkg/checkpoint"
	"github.com/aide-dev/aide/pkg/compact"
	"github.com/aide-dev/aide/pkg/config"
	"github.com/aide-dev/aide/pkg/llm"
	"github.com/aide-dev/aide/pkg/memory"
	"github.com/aide-dev/aide/pkg/prompt"
	"github.com/aide-dev/aide/pkg/session"
	"github.com/aide-dev/aide/pkg/tools"
)

// app bundles the wired session components the REPL drives.
type app struct {
	cfg         *config.Config
	engine      *agent.Engine
	checkpoints *checkpoint.Manager
	pool        *background.Pool
	journal     *memory.Journal
	sess        *session.Session
	workDir     string
}

func newApp(ctx context.Context, cfg *config.Config, dir string) (*app, error) {
	workDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	apiKey, err := cfg.ResolveAPIKey()
	if err != nil {
		return nil, err
	}

	model := llm.Model{ID: cfg.Model.ID, BaseURL: cfg.Model.BaseURL}
	client := llm.NewClient(model, apiKey)

	cpManager, err := checkpoint.NewManager(ctx, workDir, cfg.Checkpoints)
	if err != nil {
		return nil, fmt.Errorf("init checkpoints: %w", err)
	}
	journal := memory.NewJournal(workDir)

	registry := tools.NewRegistry()
	registry.Register(tools.NewReadTool(workDir))
	registry.Register(tools.NewWriteTool(workDir))
	registry.Register(tools.NewEditTool(workDir))
	registry.Register(tools.NewBashTool(workDir))
	registry.Register(tools.NewListDirTool(workDir))
	registry.Register(tools.NewGrepTool(workDir))

	dispatcher := agent.NewDispatcher(registry, cpManager, journal)
	compactor := compact.NewCompactor(cfg.Compactor, client)

	toolInfos := make([]prompt.ToolInfo, 0)
	for _, tool := range registry.All() {
		toolInfos = append(toolInfos, tool)
	}
	systemPrompt := prompt.NewBuilder(workDir).
		WithTools(toolInfos).
		WithRecentChanges(journal.Summary(10)).
		Build()

	engine := agent.NewEngine(client, registry, dispatcher, compactor, agent.Config{
		MaxIterations: cfg.Engine.MaxIterations,
		SystemPrompt:  systemPrompt,
	})

	sess, err := session.New(workDir)
	if err != nil {
		return nil, fmt.Errorf("init session: %w", err)
	}

	return &app{
		cfg:         cfg,
		engine:      engine,
		checkpoints: cpManager,
		pool:        background.NewPool(workDir, cfg.Background),
		journal:     journal,
		sess:        sess,
		workDir:     workDir,
	}, nil
}

func runSession(ctx context.Context) error {
	cfg, closeLog, err := loadConfig()
	if err != nil {
		return err
	}
	defer closeLog()

	a, err := newApp(ctx, cfg, workDir)
	if err != nil {
		return err
	}
	return runREPL(ctx, a)
}
