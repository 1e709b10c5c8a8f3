// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"log/slog"
	"sync"
	"time"

	"github.com/bureau-foundation/bureau-profiler/lib/clock"
)

// failureLogInterval is the window in which only the first upload
// failure is logged at Error.
const failureLogInterval = 5 * time.Minute

// ioLogger rate-limits upload logging. A collector that is down fails
// every upload; one Error per window is enough to surface that, and
// the rest go to Debug with a count of what was suppressed. The first
// success after a failure is logged at Info so recovery is visible.
type ioLogger struct {
	logger *slog.Logger
	clock  clock.Clock

	mu         sync.Mutex
	lastError  time.Time
	suppressed int
	failing    bool
}

func newIOLogger(logger *slog.Logger, clk clock.Clock) *ioLogger {
	return &ioLogger{logger: logger, clock: clk}
}

func (l *ioLogger) failure(message string, args ...any) {
	l.mu.Lock()
	now := l.clock.Now()
	l.failing = true
	if l.lastError.IsZero() || now.Sub(l.lastError) >= failureLogInterval {
		suppressed := l.suppressed
		l.lastError = now
		l.suppressed = 0
		l.mu.Unlock()
		if suppressed > 0 {
			args = append(args, "suppressed_since_last_error", suppressed)
		}
		l.logger.Error(message, args...)
		return
	}
	l.suppressed++
	suppressed := l.suppressed
	l.mu.Unlock()
	l.logger.Debug(message, append(args, "suppressed", suppressed)...)
}

func (l *ioLogger) success(message string, args ...any) {
	l.mu.Lock()
	recovered := l.failing
	l.failing = false
	l.mu.Unlock()
	if recovered {
		l.logger.Info(message, args...)
		return
	}
	l.logger.Debug(message, args...)
}
