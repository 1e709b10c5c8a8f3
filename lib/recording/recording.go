// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package recording

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// Kind classifies a recording. It is carried through to log records
// and metric labels; the wire format does not depend on it.
type Kind string

const (
	// Continuous recordings are produced periodically for the
	// process lifetime.
	Continuous Kind = "continuous"

	// OneShot recordings are produced on demand (for example, by an
	// operator request) and are not part of the periodic cycle.
	OneShot Kind = "oneshot"
)

// String returns the kind name.
func (kind Kind) String() string { return string(kind) }

// Data is a recording awaiting upload.
//
// Stream opens a fresh reader positioned at the beginning of the
// recording each time it is called, so a request body can be rebuilt
// if the transport needs to resend. The caller closes each reader.
//
// Release frees the backing resource. After Release, Stream may fail.
type Data interface {
	Stream() (io.ReadCloser, error)
	Start() time.Time
	End() time.Time
	Release()
}

// Pather is implemented by recordings backed by a file on disk.
// Diagnostics that need to hand the recording to an external tool use
// the path directly instead of copying the stream.
type Pather interface {
	Path() string
}

// File is a recording stored in a file.
type File struct {
	path            string
	start           time.Time
	end             time.Time
	removeOnRelease bool

	releaseOnce sync.Once
	removeErr   error
}

// NewFile returns a recording backed by the file at path. When
// removeOnRelease is true, Release deletes the file; the recorder uses
// this for spool files it does not keep after upload.
func NewFile(path string, start, end time.Time, removeOnRelease bool) *File {
	return &File{
		path:            path,
		start:           start,
		end:             end,
		removeOnRelease: removeOnRelease,
	}
}

// Stream opens the file for reading.
func (file *File) Stream() (io.ReadCloser, error) {
	handle, err := os.Open(file.path)
	if err != nil {
		return nil, fmt.Errorf("opening recording %s: %w", file.path, err)
	}
	return handle, nil
}

// Start returns the beginning of the recorded window.
func (file *File) Start() time.Time { return file.start }

// End returns the end of the recorded window (exclusive).
func (file *File) End() time.Time { return file.end }

// Path returns the path of the backing file.
func (file *File) Path() string { return file.path }

// Release removes the backing file if the recording was created with
// removeOnRelease. Only the first call has any effect.
func (file *File) Release() {
	file.releaseOnce.Do(func() {
		if !file.removeOnRelease {
			return
		}
		if err := os.Remove(file.path); err != nil && !os.IsNotExist(err) {
			file.removeErr = err
		}
	})
}

// ReleaseError returns the error from removing the backing file during
// Release, or nil.
func (file *File) ReleaseError() error { return file.removeErr }

// Bytes is a recording held in memory.
type Bytes struct {
	mu       sync.Mutex
	data     []byte
	start    time.Time
	end      time.Time
	released bool
}

// NewBytes returns an in-memory recording. The slice is retained, not
// copied; the caller must not modify it afterwards.
func NewBytes(data []byte, start, end time.Time) *Bytes {
	return &Bytes{data: data, start: start, end: end}
}

// ErrReleased is returned by Stream after the recording has been
// released.
var ErrReleased = fmt.Errorf("recording already released")

// Stream returns a reader over the recording bytes.
func (recording *Bytes) Stream() (io.ReadCloser, error) {
	recording.mu.Lock()
	defer recording.mu.Unlock()
	if recording.released {
		return nil, ErrReleased
	}
	return io.NopCloser(bytes.NewReader(recording.data)), nil
}

// Start returns the beginning of the recorded window.
func (recording *Bytes) Start() time.Time { return recording.start }

// End returns the end of the recorded window (exclusive).
func (recording *Bytes) End() time.Time { return recording.end }

// Release drops the reference to the recording bytes.
func (recording *Bytes) Release() {
	recording.mu.Lock()
	defer recording.mu.Unlock()
	recording.released = true
	recording.data = nil
}

// Size returns the number of bytes held, or zero once released.
func (recording *Bytes) Size() int {
	recording.mu.Lock()
	defer recording.mu.Unlock()
	return len(recording.data)
}
