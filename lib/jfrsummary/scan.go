// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package jfrsummary

import (
	"encoding/binary"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/zeebo/blake3"
)

// chunkMagic opens every chunk of a recording.
var chunkMagic = [4]byte{'F', 'L', 'R', 0}

// chunkHeaderSize is the fixed size of a chunk header: magic, major and
// minor version, then eight 64-bit fields and a 32-bit feature mask.
const chunkHeaderSize = 68

// Chunk describes one chunk of a recording.
type Chunk struct {
	Offset       int64
	MajorVersion uint16
	MinorVersion uint16
	Size         int64
	Start        time.Time
	Duration     time.Duration
}

// Summary is the result of scanning a recording.
type Summary struct {
	Size   int64
	Digest string
	Chunks []Chunk

	// Trailing is the number of bytes after the last complete chunk
	// that do not form a chunk (truncated or foreign data).
	Trailing int64
}

// Lines renders the summary as log lines.
func (summary Summary) Lines() []string {
	lines := []string{
		fmt.Sprintf("recording: %d bytes, %d chunks, blake3 %s", summary.Size, len(summary.Chunks), summary.Digest),
	}
	for index, chunk := range summary.Chunks {
		lines = append(lines, fmt.Sprintf("chunk %d: offset %d, version %d.%d, %d bytes, start %s, duration %s",
			index, chunk.Offset, chunk.MajorVersion, chunk.MinorVersion, chunk.Size,
			chunk.Start.UTC().Format(time.RFC3339Nano), chunk.Duration))
	}
	if summary.Trailing > 0 {
		lines = append(lines, fmt.Sprintf("trailing: %d bytes not part of any chunk", summary.Trailing))
	}
	return lines
}

// Scan reads source to the end, hashing it and walking chunk headers.
// Content that stops looking like a chunk sequence is counted as
// trailing bytes rather than treated as an error; only read failures
// return an error.
func Scan(source io.Reader) (Summary, error) {
	hasher := blake3.New()
	counter := &countingReader{reader: io.TeeReader(source, hasher)}

	var summary Summary
	var header [chunkHeaderSize]byte
	for {
		offset := counter.count
		_, err := io.ReadFull(counter, header[:])
		if errors.Is(err, io.EOF) {
			break
		}
		if errors.Is(err, io.ErrUnexpectedEOF) {
			summary.Trailing = counter.count - offset
			break
		}
		if err != nil {
			return Summary{}, fmt.Errorf("reading chunk header at %d: %w", offset, err)
		}

		chunk, ok := parseHeader(header[:])
		if !ok || chunk.Size < chunkHeaderSize {
			rest, err := io.Copy(io.Discard, counter)
			if err != nil {
				return Summary{}, fmt.Errorf("reading trailing data: %w", err)
			}
			summary.Trailing = chunkHeaderSize + rest
			break
		}
		chunk.Offset = offset

		skipped, err := io.CopyN(io.Discard, counter, chunk.Size-chunkHeaderSize)
		if err != nil && !errors.Is(err, io.EOF) {
			return Summary{}, fmt.Errorf("reading chunk at %d: %w", offset, err)
		}
		if skipped < chunk.Size-chunkHeaderSize {
			summary.Trailing = chunkHeaderSize + skipped
			break
		}
		summary.Chunks = append(summary.Chunks, chunk)
	}

	summary.Size = counter.count
	summary.Digest = hex.EncodeToString(hasher.Sum(nil))
	return summary, nil
}

func parseHeader(header []byte) (Chunk, bool) {
	if [4]byte(header[0:4]) != chunkMagic {
		return Chunk{}, false
	}
	startNanos := int64(binary.BigEndian.Uint64(header[36:44]))
	durationNanos := int64(binary.BigEndian.Uint64(header[44:52]))
	return Chunk{
		MajorVersion: binary.BigEndian.Uint16(header[4:6]),
		MinorVersion: binary.BigEndian.Uint16(header[6:8]),
		Size:         int64(binary.BigEndian.Uint64(header[8:16])),
		Start:        time.Unix(0, startNanos),
		Duration:     time.Duration(durationNanos),
	}, true
}

type countingReader struct {
	reader io.Reader
	count  int64
}

func (counter *countingReader) Read(data []byte) (int, error) {
	n, err := counter.reader.Read(data)
	counter.count += int64(n)
	return n, err
}
