// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package collector implements the receiving side of the profile
// upload protocol for tests and local debugging.
//
// [Collector] is an http.Handler that decodes each multipart upload,
// detects the recording's compression by magic number, decompresses
// it, and keeps the result in memory. It answers 200 by default; a
// forced status lets tests and the mock binary exercise the
// uploader's error classification.
package collector
