package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/natefinch/lumberjack.v2"
)

type logFileConfig struct {
	path       string
	maxSizeMB  int
	maxBackups int
	maxAgeDays int
	compress   bool
}

func defaultLogFileConfig() logFileConfig {
	return logFileConfig{
		maxSizeMB:  100,
		maxBackups: 3,
		maxAgeDays: 28,
		compress:   true,
	}
}

func applyLogFileConfig(cfg *logFileConfig, parsed fileLogConfig) error {
	cfg.path = strings.TrimSpace(parsed.Path)
	if parsed.MaxSizeMB != nil {
		if *parsed.MaxSizeMB <= 0 {
			return fmt.Errorf("parse log_file.max_size_mb: must be > 0")
		}
		cfg.maxSizeMB = *parsed.MaxSizeMB
	}
	if parsed.MaxBackups != nil {
		if *parsed.MaxBackups < 0 {
			return fmt.Errorf("parse log_file.max_backups: must be >= 0")
		}
		cfg.maxBackups = *parsed.MaxBackups
	}
	if parsed.MaxAgeDays != nil {
		if *parsed.MaxAgeDays < 0 {
			return fmt.Errorf("parse log_file.max_age_days: must be >= 0")
		}
		cfg.maxAgeDays = *parsed.MaxAgeDays
	}
	if parsed.Compress != nil {
		cfg.compress = *parsed.Compress
	}

	return nil
}

// newLogger builds the JSON process logger writing to stdout and, when a
// path is configured, to a rotated log file.
func newLogger(level slog.Level, file logFileConfig) (*slog.Logger, func(), error) {
	var out io.Writer = os.Stdout
	closeFn := func() {}

	if file.path != "" {
		if err := os.MkdirAll(filepath.Dir(file.path), 0o755); err != nil {
			return nil, nil, fmt.Errorf("create log directory: %w", err)
		}
		rotator := &lumberjack.Logger{
			Filename:   file.path,
			MaxSize:    file.maxSizeMB,
			MaxBackups: file.maxBackups,
			MaxAge:     file.maxAgeDays,
			Compress:   file.compress,
		}
		out = io.MultiWriter(os.Stdout, rotator)
		closeFn = func() {
			_ = rotator.Close()
		}
	}

	return slog.New(slog.NewJSONHandler(out, &slog.HandlerOptions{Level: level})), closeFn, nil
}
