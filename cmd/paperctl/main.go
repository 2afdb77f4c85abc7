package main

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/Harshitk-cp/paper-agent/internal/app"
	"github.com/Harshitk-cp/paper-agent/internal/cli"
	"github.com/Harshitk-cp/paper-agent/internal/config"
)

// newLogger writes to stderr so it never mixes with command output. The CLI
// only shows warnings unless LOG_LEVEL asks for more.
func newLogger() *zap.Logger {
	cfg := zap.NewDevelopmentConfig()
	cfg.Level = zap.NewAtomicLevelAt(zapcore.WarnLevel)
	if lvl, err := zapcore.ParseLevel(os.Getenv("LOG_LEVEL")); err == nil {
		cfg.Level = zap.NewAtomicLevelAt(lvl)
	}
	cfg.OutputPaths = []string{"stderr"}
	logger, err := cfg.Build()
	if err != nil {
		return zap.NewNop()
	}
	return logger
}

func main() {
	_ = config.Load()
	logger := newLogger()
	defer func() { _ = logger.Sync() }()

	if err := cli.NewRootCommand(app.OptionsFromEnv(), logger).Execute(); err != nil {
		os.Exit(1)
	}
}
