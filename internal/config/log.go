package config

import (
	"fmt"
	"os"
	"path/filepath"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/term"

	"github.com/mulltray/mulltray/internal/models"
)

// LogToStderr as log.file sends logs to the console.
const LogToStderr = "stderr"

// NewLogger builds the process logger from cfg. Logs go to
// ~/.mulltray/logs/mulltray.log unless cfg.File says otherwise.
func NewLogger(cfg models.LogConfig) (*zap.Logger, error) {
	level, err := zapcore.ParseLevel(cfg.Level)
	if err != nil {
		return nil, &ConfigError{Field: "log level", Value: cfg.Level, Reason: "unknown level"}
	}

	output := cfg.File
	if output == "" {
		if err := EnsureGlobalLogsDir(); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
		if output, err = GlobalLogFile(); err != nil {
			return nil, err
		}
	} else if output != LogToStderr {
		if err := os.MkdirAll(filepath.Dir(output), 0755); err != nil {
			return nil, fmt.Errorf("failed to create log directory: %w", err)
		}
	}

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(level)
	config.Encoding = "json"
	config.EncoderConfig = zapcore.EncoderConfig{
		TimeKey:        "timestamp",
		LevelKey:       "level",
		NameKey:        "logger",
		CallerKey:      "caller",
		FunctionKey:    zapcore.OmitKey,
		MessageKey:     "message",
		StacktraceKey:  "stacktrace",
		LineEnding:     zapcore.DefaultLineEnding,
		EncodeLevel:    zapcore.LowercaseLevelEncoder,
		EncodeTime:     zapcore.ISO8601TimeEncoder,
		EncodeDuration: zapcore.StringDurationEncoder,
		EncodeCaller:   zapcore.ShortCallerEncoder,
	}
	// Human-readable output when a person is watching stderr.
	if output == LogToStderr && term.IsTerminal(int(os.Stderr.Fd())) {
		config.Encoding = "console"
		config.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
	}
	config.OutputPaths = []string{output}
	config.ErrorOutputPaths = []string{"stderr"}

	logger, err := config.Build()
	if err != nil {
		return nil, fmt.Errorf("failed to build logger: %w", err)
	}
	return logger, nil
}
