// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"errors"

	"github.com/bureau-foundation/bureau-profiler/lib/recording"
)

var (
	// ErrQueueFull is the Outcome.Err of an upload rejected because
	// MaxQueued requests were already waiting.
	ErrQueueFull = errors.New("too many queued uploads")

	// ErrShutdown is the Outcome.Err of an upload rejected after
	// Shutdown, and the cancellation cause of requests it aborts.
	ErrShutdown = errors.New("uploader shut down")
)

// tryAdmit checks capacity. The read is advisory: concurrent callers
// may each see room for one more and over-admit by a few.
func (u *Uploader) tryAdmit() error {
	if u.dispatcher.isClosed() {
		return ErrShutdown
	}
	if u.dispatcher.queued.Load() >= int64(u.config.MaxQueued) {
		return ErrQueueFull
	}
	return nil
}

// reject releases a recording that will not be sent. The completion
// hook is deliberately not called.
func (u *Uploader) reject(kind recording.Kind, data recording.Data, reason error) *Handle {
	u.logger.Warn("profile upload rejected",
		"kind", kind,
		"reason", reason,
		"queued", u.dispatcher.queued.Load(),
		"max_queued", u.config.MaxQueued,
	)
	u.releaseRecording(data)
	u.config.Metrics.IncRejected()
	return resolvedHandle(Outcome{Status: RejectedByAdmission, Err: reason})
}
