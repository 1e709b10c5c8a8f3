// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package transport builds the single HTTP client the uploader uses for
// the process lifetime.
//
// The physical channel is chosen from configuration, in order:
//
//   - a Unix domain socket to the local agent (explicit, or the default
//     agent socket when it exists and uploads are not agentless),
//   - a Windows named pipe to the local agent,
//   - TCP, optionally through an HTTP proxy with basic credentials.
//
// The connection pool is capped at the uploader's in-flight ceiling.
// A pool smaller than the number of concurrently executing uploads
// would make them queue on sockets behind each other; a larger pool
// only holds idle connections.
//
// Plain http:// endpoints never negotiate TLS or HTTP/2, so hosts
// without a working TLS stack can still reach a local agent.
package transport
