// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

//go:build windows

package transport

import (
	"context"
	"fmt"
	"net"
	"os"

	"golang.org/x/sys/windows"
)

func dialNamedPipe(ctx context.Context, name string) (net.Conn, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	path, err := windows.UTF16PtrFromString(name)
	if err != nil {
		return nil, fmt.Errorf("named pipe %q: %w", name, err)
	}
	handle, err := windows.CreateFile(
		path,
		windows.GENERIC_READ|windows.GENERIC_WRITE,
		0,
		nil,
		windows.OPEN_EXISTING,
		windows.FILE_ATTRIBUTE_NORMAL,
		0,
	)
	if err != nil {
		return nil, fmt.Errorf("opening named pipe %q: %w", name, err)
	}
	return &pipeConn{file: os.NewFile(uintptr(handle), name), name: name}, nil
}
