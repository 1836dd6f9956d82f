package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/nestauk/discovery-genai/internal/config"
	"github.com/nestauk/discovery-genai/internal/observability"
)

// version is set at build time with -ldflags "-X main.version=...".
var version = "dev"

type rootOptions struct {
	configPath string
	envFile    string
	logLevel   string
	logFormat  string
}

// load reads configuration and builds the process logger. Config
// warnings are logged, never fatal.
func (o *rootOptions) load() (*config.Config, *zap.Logger, error) {
	cfg, err := config.Load(o.configPath, o.envFile)
	if err != nil {
		return nil, nil, err
	}
	if o.logLevel != "" {
		cfg.Log.Level = o.logLevel
	}
	if o.logFormat != "" {
		cfg.Log.Format = o.logFormat
	}

	logger, err := observability.NewLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		return nil, nil, fmt.Errorf("setup logger: %w", err)
	}
	for _, w := range cfg.Validate() {
		logger.Warn("configuration warning", zap.String("warning", w))
	}
	return cfg, logger, nil
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}

	rootCmd := &cobra.Command{
		Use:           "genai",
		Short:         "Prompt-templated text generation with optional retrieval grounding",
		Version:       version,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringVar(&opts.configPath, "config", "", "Config file path (YAML)")
	rootCmd.PersistentFlags().StringVar(&opts.envFile, "env-file", ".env", "Optional .env file with GENAI_ variables")
	rootCmd.PersistentFlags().StringVar(&opts.logLevel, "log-level", "", "Override log.level")
	rootCmd.PersistentFlags().StringVar(&opts.logFormat, "log-format", "", "Override log.format (json or console)")

	rootCmd.AddCommand(
		newGenerateCmd(opts),
		newIndexCmd(opts),
		newServeCmd(opts),
		newPromptCmd(opts),
		newProvidersCmd(),
	)
	return rootCmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
