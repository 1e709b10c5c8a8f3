// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package compression provides the streaming codecs used for profile
// uploads.
//
// Unlike block compression, every codec here is a stream: NewWriter
// wraps a destination writer and compresses incrementally as bytes
// are written, so memory use is bounded by the codec window rather
// than by the size of the recording. The encoder settings pin that
// bound: zstd runs single-threaded with a 1 MiB window, lz4 uses
// 64 KiB blocks without concurrency, gzip keeps its fixed 32 KiB
// window.
//
// The codec is chosen once from configuration ([Parse]) and reused
// for every upload. Collectors do not get a Content-Encoding header;
// they identify the codec from the payload's magic number, which
// [Sniff] reproduces for the mock collector and tests.
package compression
