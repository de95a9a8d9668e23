// Copyright 2025 Vulntor Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");

// Package report persists run reports in the workspace.
package report

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/klauspost/compress/zstd"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/vulntor/fwrecon/pkg/recon"
)

const (
	jsonExt   = ".json"
	zstdExt   = ".json.zst"
	lockName  = ".fwrecon.lock"
	lockRetry = 50 * time.Millisecond
)

// ErrNotFound is returned when no stored report matches.
var ErrNotFound = errors.New("report not found")

// Entry describes one stored report.
type Entry struct {
	ID         string
	Path       string
	Timestamp  time.Time
	Compressed bool
}

// Store writes reports as JSON files, optionally zstd-compressed, under a
// directory guarded by an advisory file lock.
type Store struct {
	dir      string
	compress bool
	mu       sync.Mutex
	lock     *flock.Flock
	logger   zerolog.Logger
}

// NewStore creates dir if needed.
func NewStore(dir string, compress bool) (*Store, error) {
	if dir == "" {
		return nil, errors.New("report directory is required")
	}
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create report directory: %w", err)
	}
	return &Store{
		dir:      dir,
		compress: compress,
		lock:     flock.New(filepath.Join(dir, lockName)),
		logger:   log.With().Str("component", "report").Logger(),
	}, nil
}

// Dir returns the store's directory.
func (s *Store) Dir() string { return s.dir }

// Save writes r and returns the file path. Concurrent processes serialise
// on the directory lock; the file appears atomically via rename.
func (s *Store) Save(ctx context.Context, r *recon.RunReport) (string, error) {
	if r == nil {
		return "", errors.New("nil report")
	}
	if r.ID == "" {
		return "", errors.New("report has no id")
	}

	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", fmt.Errorf("encode report: %w", err)
	}
	ext := jsonExt
	if s.compress {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			return "", fmt.Errorf("zstd encoder: %w", err)
		}
		data = enc.EncodeAll(data, nil)
		_ = enc.Close()
		ext = zstdExt
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	locked, err := s.lock.TryLockContext(ctx, lockRetry)
	if err != nil {
		return "", fmt.Errorf("lock report directory: %w", err)
	}
	if !locked {
		return "", errors.New("lock report directory: not acquired")
	}
	defer func() { _ = s.lock.Unlock() }()

	name := fileName(r.Timestamp, r.ID) + ext
	path := filepath.Join(s.dir, name)

	tmp, err := os.CreateTemp(s.dir, "."+r.ID+"-*.tmp")
	if err != nil {
		return "", fmt.Errorf("create temp report: %w", err)
	}
	if _, err := tmp.Write(data); err != nil {
		_ = tmp.Close()
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("write report: %w", err)
	}
	if err := tmp.Close(); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("close report: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		_ = os.Remove(tmp.Name())
		return "", fmt.Errorf("store report: %w", err)
	}

	s.logger.Info().Str("id", r.ID).Str("path", path).Bool("compressed", s.compress).Msg("report saved")
	return path, nil
}

// Load reads a report file written by Save.
func Load(path string) (*recon.RunReport, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read report: %w", err)
	}
	if strings.HasSuffix(path, zstdExt) {
		dec, err := zstd.NewReader(nil)
		if err != nil {
			return nil, fmt.Errorf("zstd decoder: %w", err)
		}
		defer dec.Close()
		if data, err = dec.DecodeAll(data, nil); err != nil {
			return nil, fmt.Errorf("decompress report: %w", err)
		}
	}

	var r recon.RunReport
	if err := json.Unmarshal(data, &r); err != nil {
		return nil, fmt.Errorf("decode report %s: %w", filepath.Base(path), err)
	}
	return &r, nil
}

// List returns stored reports, newest first.
func (s *Store) List() ([]Entry, error) {
	dirents, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("list reports: %w", err)
	}

	var entries []Entry
	for _, de := range dirents {
		if de.IsDir() {
			continue
		}
		e, ok := parseFileName(de.Name())
		if !ok {
			continue
		}
		e.Path = filepath.Join(s.dir, de.Name())
		entries = append(entries, e)
	}
	sort.SliceStable(entries, func(i, j int) bool {
		return entries[i].Timestamp.After(entries[j].Timestamp)
	})
	return entries, nil
}

// Get loads the report with the given id, or the newest when id is empty.
func (s *Store) Get(id string) (*recon.RunReport, error) {
	entries, err := s.List()
	if err != nil {
		return nil, err
	}
	for _, e := range entries {
		if id == "" || e.ID == id {
			return Load(e.Path)
		}
	}
	if id == "" {
		return nil, ErrNotFound
	}
	return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
}

const stampLayout = "20060102T150405Z"

func fileName(ts time.Time, id string) string {
	return ts.UTC().Format(stampLayout) + "_" + id
}

func parseFileName(name string) (Entry, bool) {
	var (
		base       string
		compressed bool
	)
	switch {
	case strings.HasSuffix(name, zstdExt):
		base, compressed = strings.TrimSuffix(name, zstdExt), true
	case strings.HasSuffix(name, jsonExt):
		base = strings.TrimSuffix(name, jsonExt)
	default:
		return Entry{}, false
	}
	stamp, id, ok := strings.Cut(base, "_")
	if !ok || id == "" {
		return Entry{}, false
	}
	ts, err := time.Parse(stampLayout, stamp)
	if err != nil {
		return Entry{}, false
	}
	return Entry{ID: id, Timestamp: ts, Compressed: compressed}, true
}
