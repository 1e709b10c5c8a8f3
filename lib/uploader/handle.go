// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"context"
	"fmt"
)

// Status classifies the result of one upload.
type Status int

const (
	// Success means the collector answered with a 2xx status.
	Success Status = iota

	// RejectedByAdmission means the upload never reached the network:
	// too many requests were queued, or the uploader was shut down.
	RejectedByAdmission

	// TransportFailure covers connection-level errors, including
	// requests cancelled by Shutdown.
	TransportFailure

	// ServerError means the collector answered with a non-2xx status.
	// Outcome.Code carries the status code.
	ServerError

	// EmptyReply means the connection closed before any response
	// bytes arrived.
	EmptyReply
)

func (status Status) String() string {
	switch status {
	case Success:
		return "success"
	case RejectedByAdmission:
		return "rejected"
	case TransportFailure:
		return "transport_failure"
	case ServerError:
		return "server_error"
	case EmptyReply:
		return "empty_reply"
	default:
		return fmt.Sprintf("status(%d)", int(status))
	}
}

// Outcome is the classified result of one upload.
type Outcome struct {
	Status Status

	// Code is the HTTP status code for Success and ServerError, zero
	// otherwise.
	Code int

	// Err describes the failure. Nil for Success.
	Err error
}

// Handle is the pending result of an Upload. It resolves once, after
// the recording has been released and the completion hook has run.
type Handle struct {
	done    chan struct{}
	outcome Outcome
}

func newHandle() *Handle {
	return &Handle{done: make(chan struct{})}
}

func resolvedHandle(outcome Outcome) *Handle {
	handle := newHandle()
	handle.resolve(outcome)
	return handle
}

// resolve publishes the outcome. It must be called exactly once.
func (handle *Handle) resolve(outcome Outcome) {
	handle.outcome = outcome
	close(handle.done)
}

// Done returns a channel closed when the outcome is available.
func (handle *Handle) Done() <-chan struct{} { return handle.done }

// Outcome returns the outcome and true once the handle has resolved,
// or a zero Outcome and false while the upload is still pending.
func (handle *Handle) Outcome() (Outcome, bool) {
	select {
	case <-handle.done:
		return handle.outcome, true
	default:
		return Outcome{}, false
	}
}

// Wait blocks until the handle resolves or ctx is done. A resolved
// handle returns its outcome even if ctx is already done. Abandoning
// the wait does not cancel the upload.
func (handle *Handle) Wait(ctx context.Context) (Outcome, error) {
	if outcome, resolved := handle.Outcome(); resolved {
		return outcome, nil
	}
	select {
	case <-handle.done:
		return handle.outcome, nil
	case <-ctx.Done():
		return Outcome{}, ctx.Err()
	}
}
