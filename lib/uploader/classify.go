// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/bureau-foundation/bureau-profiler/lib/netutil"
	"github.com/bureau-foundation/bureau-profiler/lib/recording"
)

// send performs the request and classifies the result. Body producers
// are stopped before classification, so the recording is no longer
// being read once send returns.
func (u *Uploader) send(ctx context.Context, kind recording.Kind, data recording.Data) Outcome {
	if err := ctx.Err(); err != nil {
		return u.classifyTransportError(ctx, err)
	}
	request, source, err := u.encoder.newRequest(ctx, data)
	if err != nil {
		u.io.failure("failed to build profile upload", "url", u.config.URL, "error", err)
		return Outcome{Status: TransportFailure, Err: err}
	}

	response, err := u.config.Client.Do(request)
	source.finish()
	u.config.Metrics.AddBytes(kind.String(), int(source.streamed()))
	if err != nil {
		return u.classifyTransportError(ctx, err)
	}
	return u.classifyResponse(ctx, request, response, data)
}

// classifyTransportError handles a request that produced no response.
// A connection closed before any response bytes is an empty reply
// unless the request was cancelled or the recording itself failed to
// read, both of which are transport failures.
func (u *Uploader) classifyTransportError(ctx context.Context, err error) Outcome {
	if cause := context.Cause(ctx); cause != nil && !errors.Is(err, cause) {
		err = fmt.Errorf("%w (%w)", err, cause)
	}
	var readFailure *recordingError
	if errors.As(err, &readFailure) {
		u.io.failure("failed to upload profile, could not read recording", "url", u.config.URL, "error", err)
		return Outcome{Status: TransportFailure, Err: err}
	}
	if ctx.Err() == nil && netutil.IsEmptyReply(err) {
		u.io.failure("failed to upload profile, received empty reply after uploading profile",
			"url", u.config.URL, "error", err)
		return Outcome{Status: EmptyReply, Err: err}
	}
	u.io.failure("failed to upload profile", "url", u.config.URL, "error", err)
	return Outcome{Status: TransportFailure, Err: err}
}

// classifyResponse logs the response and closes its body. A success
// body is drained unread so the connection returns to the pool.
func (u *Uploader) classifyResponse(ctx context.Context, request *http.Request, response *http.Response, data recording.Data) Outcome {
	defer response.Body.Close()
	code := response.StatusCode

	if code >= 200 && code < 300 {
		netutil.DrainAndClose(response.Body)
		u.io.success("profile upload done", "url", u.config.URL, "status", code)
		return Outcome{Status: Success, Code: code}
	}

	err := fmt.Errorf("upload to %s: %d %s", u.config.URL, code, http.StatusText(code))
	switch {
	case code == http.StatusNotFound && request.Header.Get(HeaderAPIKey) == "":
		// Without an API key the destination is a local agent, and a
		// 404 means that agent predates profile intake.
		u.io.failure("failed to upload profile: the collector is not accepting profiles, upgrade the agent",
			"url", u.config.URL, "status", code)
	case code == http.StatusRequestEntityTooLarge && u.config.SummaryOn413:
		u.io.failure("failed to upload profile: recording too large, logging its summary",
			"url", u.config.URL, "status", code)
		u.summarize(ctx, data)
	default:
		u.io.failure("failed to upload profile",
			"url", u.config.URL,
			"status", code,
			"message", http.StatusText(code),
			"body", netutil.ErrorBody(response.Body),
		)
	}
	return Outcome{Status: ServerError, Code: code, Err: err}
}

// summarize runs the configured summarizer, containing any panic.
func (u *Uploader) summarize(ctx context.Context, data recording.Data) {
	defer func() {
		if recovered := recover(); recovered != nil {
			u.logger.Warn("recording summary panicked", "panic", recovered)
		}
	}()
	u.config.Summarizer.Log(ctx, data)
}
