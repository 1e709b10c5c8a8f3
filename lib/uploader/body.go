// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package uploader

import (
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"sync"

	"github.com/bureau-foundation/bureau-profiler/lib/compression"
	"github.com/bureau-foundation/bureau-profiler/lib/recording"
)

var errBodyFinished = errors.New("upload body already finished")

// body produces the multipart request body. Each open starts a
// producer goroutine that streams the recording through the codec into
// an io.Pipe, so memory use is the pipe handoff plus the codec window
// regardless of recording size. Reopening (for GetBody) re-streams from
// the recording rather than replaying buffered bytes.
type body struct {
	boundary    string
	event       []byte
	compression compression.Kind
	data        recording.Data

	mu        sync.Mutex
	finished  bool
	readers   []*io.PipeReader
	copied    []int64
	producers sync.WaitGroup
}

// recordingError marks a failure reading the recording itself, as
// opposed to a failure of the connection carrying it.
type recordingError struct {
	err error
}

func (e *recordingError) Error() string { return e.err.Error() }

func (e *recordingError) Unwrap() error { return e.err }

func (b *body) open() (io.ReadCloser, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.finished {
		return nil, errBodyFinished
	}

	reader, writer := io.Pipe()
	attempt := len(b.readers)
	b.readers = append(b.readers, reader)
	b.copied = append(b.copied, 0)
	b.producers.Add(1)
	go func() {
		defer b.producers.Done()
		writer.CloseWithError(b.produce(writer, attempt))
	}()
	return reader, nil
}

// finish stops every producer and waits for them to close their
// recording streams. After finish the recording may be released.
func (b *body) finish() {
	b.mu.Lock()
	b.finished = true
	for _, reader := range b.readers {
		reader.CloseWithError(errBodyFinished)
	}
	b.mu.Unlock()
	b.producers.Wait()
}

// streamed returns the recording bytes copied by the most recent
// attempt. Earlier attempts were abandoned by the transport and are
// not counted. Call it after finish.
func (b *body) streamed() int64 {
	b.mu.Lock()
	defer b.mu.Unlock()
	if len(b.copied) == 0 {
		return 0
	}
	return b.copied[len(b.copied)-1]
}

func (b *body) produce(destination io.Writer, attempt int) error {
	form := multipart.NewWriter(destination)
	if err := form.SetBoundary(b.boundary); err != nil {
		return fmt.Errorf("setting multipart boundary: %w", err)
	}

	eventPart, err := form.CreatePart(partHeader(EventPartName, EventFileName, "application/json"))
	if err != nil {
		return err
	}
	if _, err := eventPart.Write(b.event); err != nil {
		return err
	}

	recordingPart, err := form.CreatePart(partHeader(RecordingPartName, RecordingFileName, "application/octet-stream"))
	if err != nil {
		return err
	}
	compressor, err := b.compression.NewWriter(recordingPart)
	if err != nil {
		return fmt.Errorf("creating %s writer: %w", b.compression, err)
	}

	stream, err := b.data.Stream()
	if err != nil {
		compressor.Close()
		return &recordingError{err: fmt.Errorf("opening recording: %w", err)}
	}
	copied, readErr, writeErr := copyRecording(compressor, stream)
	stream.Close()
	b.mu.Lock()
	b.copied[attempt] = copied
	b.mu.Unlock()
	if readErr != nil {
		compressor.Close()
		return &recordingError{err: fmt.Errorf("streaming recording: %w", readErr)}
	}
	if writeErr != nil {
		compressor.Close()
		return fmt.Errorf("streaming recording: %w", writeErr)
	}
	if err := compressor.Close(); err != nil {
		return fmt.Errorf("closing %s writer: %w", b.compression, err)
	}
	return form.Close()
}

// copyRecording copies source into destination, reporting read and
// write failures separately so a failing recording is not mistaken for
// a failing connection.
func copyRecording(destination io.Writer, source io.Reader) (copied int64, readErr, writeErr error) {
	buffer := make([]byte, 32<<10)
	for {
		n, err := source.Read(buffer)
		if n > 0 {
			written, werr := destination.Write(buffer[:n])
			copied += int64(written)
			if werr != nil {
				return copied, nil, werr
			}
			if written != n {
				return copied, nil, io.ErrShortWrite
			}
		}
		if errors.Is(err, io.EOF) {
			return copied, nil, nil
		}
		if err != nil {
			return copied, err, nil
		}
	}
}
