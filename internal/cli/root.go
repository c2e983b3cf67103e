// Package cli implements the newsingest command tree.
package cli

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/user/news-ingest/internal/config"
)

var cfgFile string

// NewRootCommand builds the command tree. Split out from Execute so tests
// can drive commands with their own arguments.
func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:   "newsingest",
		Short: "Checkpointed crawler for news archives",
		Long: `newsingest walks news-site archives day by day or page by page,
extracts article text, and commits it to Postgres. Progress is checkpointed
per source, so an interrupted run resumes where it stopped.`,
		SilenceUsage: true,
	}

	root.PersistentFlags().StringVar(&cfgFile, "config", "config.yaml", "path to the YAML configuration file")

	root.AddCommand(newRunCommand())
	root.AddCommand(newStatusCommand())
	root.AddCommand(newValidateCommand())
	return root
}

// Execute runs the CLI.
func Execute() error {
	return NewRootCommand().ExecuteContext(context.Background())
}

func buildLogger(cfg config.EngineConfig) (*zap.Logger, error) {
	zc := zap.NewProductionConfig()
	if cfg.Development {
		zc = zap.NewDevelopmentConfig()
	}
	if cfg.LogLevel != "" {
		lvl, err := zapcore.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, fmt.Errorf("parse log_level %q: %w", cfg.LogLevel, err)
		}
		zc.Level = zap.NewAtomicLevelAt(lvl)
	}
	return zc.Build()
}
