// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// Rotation limits for --log-file.
const (
	logMaxSizeMB  = 10
	logMaxBackups = 3
	logMaxAgeDays = 7
)

// newLogger builds the JSON logger for the process and installs it as
// the slog default. With a path, records go to a rotating file.
func newLogger(path, level string) (*slog.Logger, func(), error) {
	var slogLevel slog.Level
	if err := slogLevel.UnmarshalText([]byte(level)); err != nil {
		return nil, nil, fmt.Errorf("--log-level: %w", err)
	}

	var output io.Writer = os.Stderr
	closeOutput := func() {}
	if path != "" {
		rotating := &lumberjack.Logger{
			Filename:   path,
			MaxSize:    logMaxSizeMB,
			MaxBackups: logMaxBackups,
			MaxAge:     logMaxAgeDays,
			Compress:   true,
		}
		output = rotating
		closeOutput = func() { rotating.Close() }
	}

	logger := slog.New(slog.NewJSONHandler(output, &slog.HandlerOptions{Level: slogLevel}))
	slog.SetDefault(logger)
	return logger, closeOutput, nil
}
