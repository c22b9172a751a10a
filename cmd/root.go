package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/abhisek/vizlearn/internal/config"
	"github.com/abhisek/vizlearn/internal/store"
)

var rootCmd = &cobra.Command{
	Use:   "vizlearn",
	Short: "Turn learning material into interactive visualizations and quizzes",
	Long: "vizlearn generates visualization code (Mermaid, p5.js, three.js, D3.js) and " +
		"multiple-choice questions from text, Wikipedia references or images using an LLM.",
	SilenceUsage: true,
}

func Execute() error {
	return rootCmd.Execute()
}

func init() {
	rootCmd.PersistentFlags().String("config", "", "Path to YAML config file (overrides VIZLEARN_CONFIG env var)")
	rootCmd.PersistentFlags().String("events-db", "", "Path to SQLite LLM event log (overrides events.path)")

	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(generateCmd)
	rootCmd.AddCommand(llmCmd)
	rootCmd.AddCommand(versionCmd)
}

// loadConfig loads the configuration named by --config and applies the
// command-line overrides.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	path, _ := cmd.Flags().GetString("config")
	cfg, err := config.Load(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if p, _ := cmd.Flags().GetString("events-db"); p != "" {
		cfg.Events.Path = p
	}
	if cmd.Flags().Lookup("addr") != nil {
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.Server.Addr = addr
		}
	}
	return cfg, nil
}

// resolveDBPath returns the event log path using --events-db (highest
// priority), then events.path from config, then the default XDG path.
func resolveDBPath(cmd *cobra.Command) (string, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return "", err
	}
	return eventsPath(cfg)
}

func eventsPath(cfg *config.Config) (string, error) {
	if cfg.Events.Path != "" {
		return cfg.Events.Path, store.EnsureDir(cfg.Events.Path)
	}
	return store.DefaultDBPath()
}
