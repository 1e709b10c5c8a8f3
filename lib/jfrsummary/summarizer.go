// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jfrsummary

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"time"

	"github.com/bureau-foundation/bureau-profiler/lib/recording"
)

// DefaultToolTimeout bounds a "jfr summary" run.
const DefaultToolTimeout = 30 * time.Second

// Summarizer logs recording summaries.
type Summarizer struct {
	// ToolPath is the jfr executable. When empty, "jfr" is looked up
	// on PATH; when it is not found only the built-in scan runs.
	ToolPath string

	// ToolTimeout bounds the tool run. Zero means DefaultToolTimeout.
	ToolTimeout time.Duration

	Logger *slog.Logger
}

// Log writes a summary of data to the logger. It reads the recording
// through fresh streams and never releases it. Failures are logged and
// otherwise ignored.
func (summarizer *Summarizer) Log(ctx context.Context, data recording.Data) {
	logger := summarizer.Logger
	if logger == nil {
		logger = slog.Default()
	}

	if summary, err := scanRecording(data); err != nil {
		logger.Warn("recording summary unavailable", "error", err)
	} else {
		for _, line := range summary.Lines() {
			logger.Info("recording summary", "line", line)
		}
	}

	lines, err := summarizer.runTool(ctx, data)
	if err != nil {
		logger.Debug("jfr tool summary unavailable", "error", err)
		return
	}
	for _, line := range lines {
		logger.Info("jfr summary", "line", line)
	}
}

func scanRecording(data recording.Data) (Summary, error) {
	stream, err := data.Stream()
	if err != nil {
		return Summary{}, err
	}
	defer stream.Close()
	return Scan(stream)
}

func (summarizer *Summarizer) runTool(ctx context.Context, data recording.Data) ([]string, error) {
	tool := summarizer.ToolPath
	if tool == "" {
		found, err := exec.LookPath("jfr")
		if err != nil {
			return nil, fmt.Errorf("jfr tool not found: %w", err)
		}
		tool = found
	}

	path, cleanup, err := recordingFile(data)
	if err != nil {
		return nil, err
	}
	defer cleanup()

	timeout := summarizer.ToolTimeout
	if timeout <= 0 {
		timeout = DefaultToolTimeout
	}
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	output, err := exec.CommandContext(ctx, tool, "summary", path).CombinedOutput()
	if err != nil {
		return nil, fmt.Errorf("running %s summary: %w (output: %s)", tool, err, bytes.TrimSpace(output))
	}

	var lines []string
	scanner := bufio.NewScanner(bytes.NewReader(output))
	for scanner.Scan() {
		if line := bytes.TrimSpace(scanner.Bytes()); len(line) > 0 {
			lines = append(lines, string(line))
		}
	}
	return lines, nil
}

// recordingFile returns a path to the recording on disk, copying it to
// a temporary file when it is not file-backed.
func recordingFile(data recording.Data) (string, func(), error) {
	if pather, ok := data.(recording.Pather); ok && pather.Path() != "" {
		return pather.Path(), func() {}, nil
	}

	stream, err := data.Stream()
	if err != nil {
		return "", nil, err
	}
	defer stream.Close()

	file, err := os.CreateTemp("", "recording-*.jfr")
	if err != nil {
		return "", nil, fmt.Errorf("creating temporary recording: %w", err)
	}
	cleanup := func() { os.Remove(file.Name()) }
	if _, err := io.Copy(file, stream); err != nil {
		file.Close()
		cleanup()
		return "", nil, fmt.Errorf("copying recording: %w", err)
	}
	if err := file.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("closing temporary recording: %w", err)
	}
	return file.Name(), cleanup, nil
}
