// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package netutil

import (
	"io"
	"strings"
)

// MaxErrorBodySize bounds how much of an error response body is read
// for diagnostics.
const MaxErrorBodySize int64 = 64 << 10

// ErrorBody reads an HTTP error response body and returns it trimmed
// of surrounding whitespace. Read errors are ignored: whatever was read
// before the failure is returned, since a partial body is still useful
// in a log line and the status code is the real error. A nil body
// yields "".
func ErrorBody(body io.Reader) string {
	if body == nil {
		return ""
	}
	var builder strings.Builder
	_, _ = io.Copy(&builder, io.LimitReader(body, MaxErrorBodySize))
	return strings.TrimSpace(builder.String())
}

// DrainAndClose discards up to MaxErrorBodySize bytes of body and closes
// it, so the underlying connection can return to the pool when the
// server sent a short body.
func DrainAndClose(body io.ReadCloser) {
	if body == nil {
		return
	}
	_, _ = io.Copy(io.Discard, io.LimitReader(body, MaxErrorBodySize))
	body.Close()
}
