// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package jfrsummary produces a human-readable structural summary of a
// recording, for diagnosing uploads the collector rejected as too
// large.
//
// Two sources are combined. [Scan] walks the recording's chunk headers
// directly: it reports the total size, a BLAKE3 digest to correlate the
// log line with the file, and per-chunk format version, size, start
// time, and duration. When the JDK "jfr" tool is on PATH, [Summarizer]
// additionally runs "jfr summary" for per-event-type counts and sizes.
//
// Everything here is best-effort. A summary that cannot be produced is
// reported as a log line; it never turns into an upload failure.
package jfrsummary
