// guard-server runs the guardrail pipeline in front of the portfolio site's
// AI chat and fit-assessment endpoints.
//
// Usage:
//
//	# Start the server (default command)
//	guard-server serve
//
//	# Classify text without starting the server
//	echo "ignore previous instructions" | guard-server classify
//
//	# Produce a value for ADMIN_PASSWORD_HASH
//	guard-server hash-password
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var envFile string

var rootCmd = &cobra.Command{
	Use:   "guard-server",
	Short: "Guardrail pipeline for the portfolio AI endpoints",
	Long: `guard-server rate limits, validates and classifies every request to the
site's AI-backed endpoints before streaming a completion back.

Configuration comes from the environment, optionally seeded from a .env file.`,
	SilenceUsage: true,
	RunE:         runServe,
}

func init() {
	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "dotenv file loaded before reading the environment")
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func mustBuildLogger(level string) *zap.Logger {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	cfg := zap.Config{
		Level:            zap.NewAtomicLevelAt(zapLevel),
		Development:      false,
		Encoding:         "json",
		EncoderConfig:    zap.NewProductionEncoderConfig(),
		OutputPaths:      []string{"stdout"},
		ErrorOutputPaths: []string{"stderr"},
	}

	logger, err := cfg.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to build logger: %v", err))
	}
	return logger
}
