// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package transport

import (
	"net"
	"os"
	"time"
)

// pipeConn adapts an opened named pipe file to net.Conn.
type pipeConn struct {
	file *os.File
	name string
}

func (conn *pipeConn) Read(data []byte) (int, error)  { return conn.file.Read(data) }
func (conn *pipeConn) Write(data []byte) (int, error) { return conn.file.Write(data) }
func (conn *pipeConn) Close() error                   { return conn.file.Close() }
func (conn *pipeConn) LocalAddr() net.Addr            { return pipeAddr(conn.name) }
func (conn *pipeConn) RemoteAddr() net.Addr           { return pipeAddr(conn.name) }

// Deadlines are best-effort: a pipe opened without overlapped I/O is
// not pollable, and the request timeout still bounds the exchange.
func (conn *pipeConn) SetDeadline(deadline time.Time) error {
	_ = conn.file.SetDeadline(deadline)
	return nil
}

func (conn *pipeConn) SetReadDeadline(deadline time.Time) error {
	_ = conn.file.SetReadDeadline(deadline)
	return nil
}

func (conn *pipeConn) SetWriteDeadline(deadline time.Time) error {
	_ = conn.file.SetWriteDeadline(deadline)
	return nil
}

type pipeAddr string

func (pipeAddr) Network() string     { return "pipe" }
func (addr pipeAddr) String() string { return string(addr) }
