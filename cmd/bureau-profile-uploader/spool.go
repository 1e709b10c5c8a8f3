// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"

	"github.com/bureau-foundation/bureau-profiler/lib/recording"
	"github.com/bureau-foundation/bureau-profiler/lib/uploader"
)

// recordingExtension selects spool files to upload.
const recordingExtension = ".jfr"

// profileUploader is the part of *uploader.Uploader the spool uses.
type profileUploader interface {
	Upload(ctx context.Context, kind recording.Kind, data recording.Data, options ...uploader.Option) *uploader.Handle
}

// spoolWatcher uploads recordings that appear in a directory. Each
// file is removed when the uploader releases it, whatever the outcome;
// a rejected upload removes it too, since the producer will emit the
// next window soon.
type spoolWatcher struct {
	dir      string
	kind     recording.Kind
	period   time.Duration
	uploader profileUploader
	logger   *slog.Logger

	mu      sync.Mutex
	pending map[string]os.FileInfo
}

// run uploads files already in the directory, then watches for new
// ones until ctx is done.
func (s *spoolWatcher) run(ctx context.Context) error {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return fmt.Errorf("creating spool watcher: %w", err)
	}
	defer watcher.Close()

	// Watch before scanning so that a file renamed in between is seen
	// at least once; pending deduplicates the overlap.
	if err := watcher.Add(s.dir); err != nil {
		return fmt.Errorf("watching spool directory %s: %w", s.dir, err)
	}
	if err := s.scan(ctx); err != nil {
		return err
	}

	for {
		select {
		case <-ctx.Done():
			return nil
		case event, ok := <-watcher.Events:
			if !ok {
				return nil
			}
			if event.Has(fsnotify.Create) {
				s.submit(ctx, event.Name)
			}
		case err, ok := <-watcher.Errors:
			if !ok {
				return nil
			}
			s.logger.Warn("spool watcher error", "dir", s.dir, "error", err)
		}
	}
}

func (s *spoolWatcher) scan(ctx context.Context) error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return fmt.Errorf("reading spool directory %s: %w", s.dir, err)
	}
	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		if entry.Type().IsRegular() {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)
	for _, name := range names {
		s.submit(ctx, filepath.Join(s.dir, name))
	}
	return nil
}

// submit uploads path unless it is not a recording or that same file
// is already being uploaded. A new file renamed over a pending one is
// a different recording and is uploaded too.
func (s *spoolWatcher) submit(ctx context.Context, path string) {
	if !strings.HasSuffix(path, recordingExtension) {
		return
	}
	info, err := os.Stat(path)
	if err == nil && !info.Mode().IsRegular() {
		err = fmt.Errorf("%s is not a regular file", path)
	}
	if err != nil {
		s.logger.Warn("skipping spool file", "path", path, "error", err)
		return
	}

	s.mu.Lock()
	if s.pending == nil {
		s.pending = make(map[string]os.FileInfo)
	}
	if current, ok := s.pending[path]; ok && os.SameFile(current, info) {
		s.mu.Unlock()
		return
	}
	s.pending[path] = info
	s.mu.Unlock()

	s.logger.Debug("uploading spool file", "path", path)
	s.uploader.Upload(ctx, s.kind, &spoolFile{
		File:  newFileRecording(path, info, s.period, false),
		info:  info,
		spool: s,
	})
}

// done forgets path if it still names the file described by info.
func (s *spoolWatcher) done(path string, info os.FileInfo) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if current, ok := s.pending[path]; ok && os.SameFile(current, info) {
		delete(s.pending, path)
	}
}

// spoolFile is a spool recording. Release runs on every outcome,
// rejection included: it clears the pending entry first, then removes
// the file unless another recording has since been renamed over it.
type spoolFile struct {
	*recording.File
	info  os.FileInfo
	spool *spoolWatcher
}

func (f *spoolFile) Release() {
	path := f.Path()
	f.spool.done(path, f.info)

	current, err := os.Stat(path)
	if err != nil || !os.SameFile(current, f.info) {
		return
	}
	if err := os.Remove(path); err != nil && !os.IsNotExist(err) {
		f.spool.logger.Warn("removing spool file", "path", path, "error", err)
	}
}

// inFlight returns the number of spool files being uploaded.
func (s *spoolWatcher) inFlight() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.pending)
}

// fileRecording wraps path as a recording whose window ends at the
// file's modification time and spans period.
func fileRecording(path string, period time.Duration, removeOnRelease bool) (*recording.File, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, err
	}
	if !info.Mode().IsRegular() {
		return nil, fmt.Errorf("%s is not a regular file", path)
	}
	return newFileRecording(path, info, period, removeOnRelease), nil
}

func newFileRecording(path string, info os.FileInfo, period time.Duration, removeOnRelease bool) *recording.File {
	end := info.ModTime()
	return recording.NewFile(path, end.Add(-period), end, removeOnRelease)
}
