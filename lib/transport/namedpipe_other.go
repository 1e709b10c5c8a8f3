// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build !windows

package transport

import (
	"context"
	"fmt"
	"net"
	"os"
)

// dialNamedPipe opens name as a plain file (a FIFO in tests). Agents
// serve named pipes only on Windows, so elsewhere a configured pipe
// fails at dial time instead of falling back to TCP.
func dialNamedPipe(ctx context.Context, name string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	file, err := os.OpenFile(name, os.O_RDWR, 0)
	if err != nil {
		return nil, fmt.Errorf("opening named pipe %q: %w", name, err)
	}
	return &pipeConn{file: file, name: name}, nil
}
