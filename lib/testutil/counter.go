// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package testutil

import "sync/atomic"

// Counter counts invocations of a hook. The zero value is ready to use
// and safe for concurrent use.
type Counter struct {
	count atomic.Int64
}

// Inc records one invocation.
func (c *Counter) Inc() { c.count.Add(1) }

// Load returns the number of invocations so far.
func (c *Counter) Load() int64 { return c.count.Load() }
