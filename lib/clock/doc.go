// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source for the uploader.
//
// The uploader reads time in two places: the shutdown drain deadline
// and the failure-log suppression window. Both take a Clock so tests
// can drive them deterministically. Production code injects Real();
// tests inject Fake() and advance it explicitly:
//
//	c := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	go uploader.Shutdown(ctx)
//	c.WaitForTimers(1)          // the drain wait has registered
//	c.Advance(5 * time.Second)  // expire the drain deadline
package clock
