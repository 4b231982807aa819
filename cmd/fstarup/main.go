// main.go bootstraps fstarup: it builds the root Cobra command and
// executes it with a signal-aware context.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Version is set at build time via -ldflags.
var Version = "v0.1.0-dev"

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	rootCmd := newRootCommand()
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", color.RedString("Error:"), err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	logLevel := "info"
	cmd := &cobra.Command{
		Use:   "fstarup",
		Short: "Installer for pinned F* verification toolchain stacks",
		Long: `fstarup installs a pinned, reproducible F* toolchain stack: the F*
proof assistant, the KaRaMeL C extractor, the Z3 solver, and an isolated
OCaml build environment, all at versions that were tested together.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	cmd.PersistentFlags().StringVar(&logLevel, "log-level", logLevel, "Log level for fstarup output (debug, info, warn, error)")

	cmd.AddCommand(
		newInstallCommand(&logLevel),
		newListCommand(),
		newEnvCommand(),
		newVersionCommand(),
	)
	return cmd
}

// newLogger builds the CLI logger at the requested level.
func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zapcore.ParseLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q", level)
	}
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevelAt(lvl)
	cfg.Encoding = "console"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder
	cfg.EncoderConfig.EncodeLevel = zapcore.CapitalLevelEncoder
	cfg.DisableStacktrace = true
	return cfg.Build()
}

// baseDir is where installations and the download cache live.
func baseDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("resolve home directory: %w", err)
	}
	return filepath.Join(home, ".fstarup"), nil
}

// configPath is the optional Lua config file location.
func configPath() (string, error) {
	dir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("resolve config directory: %w", err)
	}
	return filepath.Join(dir, "fstarup", "config.lua"), nil
}
