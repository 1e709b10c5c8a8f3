// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package testutil provides shared test helpers for the uploader
// packages.
//
// [RequireReceive] and [RequireClosed] encapsulate the timeout safety
// valve pattern (select with a wall-clock fallback) so that individual
// tests do not need direct time.After calls. A hung upload fails the
// test with a message instead of stalling the suite.
//
// [SocketDir] creates a short temporary directory for Unix domain
// sockets, whose paths are limited to 108 bytes; t.TempDir() paths can
// exceed that under some build systems.
//
// [Counter] records how many times a hook ran, for exactly-once
// assertions on Release and completion callbacks.
package testutil
