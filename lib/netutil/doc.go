// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package netutil provides HTTP and connection error helpers shared
// by the uploader and the mock collector.
//
// Response body reads are bounded: [ErrorBody] reads at most
// MaxErrorBodySize bytes, since an error body only exists to be
// quoted in a log line and a misbehaving collector must not be able to
// make the uploader allocate without limit.
//
// [IsEmptyReply] recognizes the failure shape produced when a server
// accepts the request and closes the connection without writing a
// status line. Collectors do this when they drop a payload, and
// operators need it reported differently from a refused connection.
package netutil
