// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package process provides process-level helpers for Bureau binaries
// and the profile uploader: the standard fatal-error entrypoint, and
// identity discovery (PID, container ID) used to tag uploads.
//
// Identity discovery is best-effort. A process that is not in a
// container, or that cannot read /proc, simply has no container ID;
// the uploader omits the corresponding header.
package process
