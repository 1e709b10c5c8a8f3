// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package uploader ships profiling recordings to a collector.
//
// An [Uploader] turns each [recording.Data] handed to [Uploader.Upload]
// into one streaming multipart POST: a small JSON event part followed by
// the recording, compressed on the fly as the transport pulls bytes.
// Nothing is retried. A missed recording is replaced by the next one
// the producer emits.
//
// Ownership of the recording passes to the uploader on every call.
// Release is called exactly once per Upload on every path: success,
// server rejection, transport failure, and admission rejection. The
// completion hook runs exactly once on every admitted path and never
// for a rejected upload. The returned [Handle] resolves after both.
//
// Concurrency is bounded in two places. Admission rejects new uploads
// once MaxQueued requests are waiting for an execution slot; the
// dispatcher runs at most MaxInFlight requests at once and sizes
// nothing else. Asynchronous uploads never block the caller.
//
// [Uploader.Shutdown] stops admission, cancels outstanding work, waits
// a bounded time for tasks to unwind, and closes pooled connections.
package uploader
