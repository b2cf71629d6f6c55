// Command aide is an interactive coding assistant. It drives an
// OpenAI-compatible chat endpoint through a tool-calling loop with
// checkpointing, history compaction and background task execution.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aide-dev/aide/pkg/config"
	"github.com/aide-dev/aide/pkg/logger"
)

var (
	configPath string
	workDir    string
	debug      bool

	version = "dev"
)

var rootCmd = &cobra.Command{
	Use:   "aide",
	Short: "An AI coding assistant for your terminal",
	Long: `aide is an interactive coding assistant. It connects to an
OpenAI-compatible chat endpoint, lets the model read, write and edit files,
run shell commands and search the project, and keeps automatic checkpoints
so any change can be rewound.

Type your request at the prompt; use /help inside the session for the list
of slash commands.`,
	Version:      version,
	SilenceUsage: true,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runSession(cmd.Context())
	},
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Config file path")
	rootCmd.PersistentFlags().StringVarP(&workDir, "dir", "C", ".", "Working directory for the session")
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}

func loadConfig() (*config.Config, func() error, error) {
	cfg, err := config.Load(configPath)
	if err != nil {
		return nil, nil, err
	}
	if debug {
		cfg.Log.Level = "debug"
	}
	closeLog, err := logger.Setup(&logger.Config{Level: cfg.Log.Level, FilePath: cfg.Log.File})
	if err != nil {
		return nil, nil, err
	}
	return cfg, closeLog, nil
}
