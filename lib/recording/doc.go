// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package recording defines the handle the profiler hands to the
// uploader: an opaque, re-openable byte stream covering the window
// [Start, End), plus the Release hook that frees whatever backs it.
//
// Ownership moves with the handle. The recorder creates a [Data] and
// passes it to exactly one upload call; from then on the uploader is
// responsible for calling Release exactly once, whatever the outcome.
// [File] and [Bytes] are the two stock implementations. Both tolerate
// a repeated Release, but callers must not depend on that.
package recording
