package wal

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/V4T54L/audit-trail/internal/domain"
)

const (
	segmentPrefix = "segment-"
	filePerm      = 0644
	// Envelopes carry whole audit payloads; allow lines well above bufio's 64KB default.
	maxLineSize = 4 << 20
)

// WALRepository is a segmented, file-based spill log for task envelopes
// that could not be enqueued. One JSON envelope per line.
type WALRepository struct {
	dir            string
	maxSegmentSize int64
	maxTotalSize   int64
	logger         *slog.Logger

	mu             sync.Mutex
	currentSegment *os.File
	currentSize    int64
	replayed       []string // segments handed out by the last Replay
}

// NewWALRepository creates a new WALRepository.
func NewWALRepository(dir string, maxSegmentSize, maxTotalSize int64, logger *slog.Logger) (*WALRepository, error) {
	if err := os.MkdirAll(dir, 0755); err != nil {
		return nil, fmt.Errorf("failed to create WAL directory %s: %w", dir, err)
	}

	w := &WALRepository{
		dir:            dir,
		maxSegmentSize: maxSegmentSize,
		maxTotalSize:   maxTotalSize,
		logger:         logger.With("component", "wal_repository"),
	}

	if err := w.openLatestSegment(); err != nil {
		return nil, err
	}

	return w, nil
}

// Write appends an envelope to the current WAL segment and syncs it.
func (w *WALRepository) Write(ctx context.Context, env domain.Envelope) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	data, err := env.Marshal()
	if err != nil {
		return err
	}
	data = append(data, '\n')

	if w.currentSegment == nil {
		if err := w.rotate(); err != nil {
			return err
		}
	}

	totalSize, err := w.calculateTotalSize()
	if err != nil {
		w.logger.Error("failed to calculate total WAL size", "error", err)
		return fmt.Errorf("could not verify WAL disk space: %w", err)
	}
	if totalSize+int64(len(data)) > w.maxTotalSize {
		return fmt.Errorf("WAL max total size exceeded (%d > %d)", totalSize, w.maxTotalSize)
	}

	n, err := w.currentSegment.Write(data)
	if err != nil {
		return fmt.Errorf("failed to write to WAL segment: %w", err)
	}
	w.currentSize += int64(n)
	if err := w.currentSegment.Sync(); err != nil {
		return fmt.Errorf("failed to sync WAL segment: %w", err)
	}

	if w.currentSize >= w.maxSegmentSize {
		if err := w.rotate(); err != nil {
			w.logger.Error("failed to rotate WAL segment", "error", err)
		}
	}

	return nil
}

// Replay seals the active segment and calls handler for every envelope in
// the sealed segments, oldest first. Writes that arrive during the replay
// land in a new segment and are left alone by the following Truncate.
func (w *WALRepository) Replay(ctx context.Context, handler func(env domain.Envelope) error) error {
	w.mu.Lock()
	if w.currentSegment != nil {
		w.currentSegment.Close()
		w.currentSegment = nil
	}
	segments, err := w.getSortedSegments()
	if err == nil {
		// Non-nil even when empty: Truncate must only touch what was replayed.
		w.replayed = append([]string{}, segments...)
	}
	w.mu.Unlock()
	if err != nil {
		return err
	}

	if len(segments) == 0 {
		w.logger.Debug("WAL is empty, nothing to replay")
		return nil
	}
	w.logger.Info("starting WAL replay", "segment_count", len(segments))

	for _, segmentPath := range segments {
		if err := w.replaySegment(ctx, segmentPath, handler); err != nil {
			return err
		}
	}

	w.logger.Info("WAL replay completed")
	return nil
}

func (w *WALRepository) replaySegment(ctx context.Context, segmentPath string, handler func(env domain.Envelope) error) error {
	file, err := os.Open(segmentPath)
	if err != nil {
		return fmt.Errorf("failed to open segment %s for replay: %w", segmentPath, err)
	}
	defer file.Close()

	scanner := bufio.NewScanner(file)
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineSize)
	for scanner.Scan() {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		env, err := domain.ParseEnvelope(scanner.Bytes())
		if err != nil {
			w.logger.Warn("failed to decode envelope from WAL, skipping", "error", err, "segment", segmentPath)
			continue
		}
		if err := handler(env); err != nil {
			w.logger.Error("WAL replay handler failed, stopping replay", "error", err)
			return fmt.Errorf("replay handler failed: %w", err)
		}
	}
	if err := scanner.Err(); err != nil {
		return fmt.Errorf("error scanning segment %s: %w", segmentPath, err)
	}
	return nil
}

// Truncate removes the segments returned by the last Replay, or every
// segment if Replay has not run.
func (w *WALRepository) Truncate(ctx context.Context) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	segments := w.replayed
	w.replayed = nil
	if segments == nil {
		if w.currentSegment != nil {
			w.currentSegment.Close()
			w.currentSegment = nil
		}
		var err error
		if segments, err = w.getSortedSegments(); err != nil {
			return err
		}
	}

	for _, segmentPath := range segments {
		if w.currentSegment != nil && w.currentSegment.Name() == segmentPath {
			continue
		}
		if err := os.Remove(segmentPath); err != nil && !os.IsNotExist(err) {
			w.logger.Error("failed to remove WAL segment", "path", segmentPath, "error", err)
		}
	}

	w.logger.Info("WAL truncated", "segments", len(segments))
	if w.currentSegment != nil {
		return nil
	}
	return w.openLatestSegment()
}

func (w *WALRepository) rotate() error {
	if w.currentSegment != nil {
		if err := w.currentSegment.Sync(); err != nil {
			w.logger.Error("failed to sync WAL segment before rotating", "error", err)
		}
		if err := w.currentSegment.Close(); err != nil {
			w.logger.Error("failed to close WAL segment before rotating", "error", err)
		}
		w.currentSegment = nil
	}

	segmentName := fmt.Sprintf("%s%d.log", segmentPrefix, time.Now().UnixNano())
	path := filepath.Join(w.dir, segmentName)

	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to create new WAL segment %s: %w", path, err)
	}

	w.currentSegment = f
	w.currentSize = 0
	w.logger.Debug("rotated to new WAL segment", "path", path)
	return nil
}

func (w *WALRepository) openLatestSegment() error {
	segments, err := w.getSortedSegments()
	if err != nil {
		return err
	}

	if len(segments) == 0 {
		return w.rotate()
	}

	latestSegmentPath := segments[len(segments)-1]
	stat, err := os.Stat(latestSegmentPath)
	if err != nil {
		return fmt.Errorf("failed to stat latest segment %s: %w", latestSegmentPath, err)
	}

	f, err := os.OpenFile(latestSegmentPath, os.O_APPEND|os.O_WRONLY, filePerm)
	if err != nil {
		return fmt.Errorf("failed to open latest segment %s: %w", latestSegmentPath, err)
	}

	w.currentSegment = f
	w.currentSize = stat.Size()
	w.logger.Info("opened existing WAL segment", "path", latestSegmentPath, "size", w.currentSize)

	if w.currentSize >= w.maxSegmentSize {
		return w.rotate()
	}

	return nil
}

func (w *WALRepository) getSortedSegments() ([]string, error) {
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read WAL directory: %w", err)
	}

	var segments []string
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), segmentPrefix) {
			segments = append(segments, filepath.Join(w.dir, entry.Name()))
		}
	}
	sort.Strings(segments)
	return segments, nil
}

func (w *WALRepository) calculateTotalSize() (int64, error) {
	var totalSize int64
	entries, err := os.ReadDir(w.dir)
	if err != nil {
		return 0, err
	}
	for _, entry := range entries {
		if !entry.IsDir() && strings.HasPrefix(entry.Name(), segmentPrefix) {
			info, err := entry.Info()
			if err != nil {
				return 0, err
			}
			totalSize += info.Size()
		}
	}
	return totalSize, nil
}

// Close ensures the current segment is closed gracefully.
func (w *WALRepository) Close() error {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.currentSegment != nil {
		err := w.currentSegment.Close()
		w.currentSegment = nil
		return err
	}
	return nil
}
