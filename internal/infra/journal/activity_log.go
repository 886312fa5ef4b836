package journal

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"arbscan/internal/domain"

	"gopkg.in/natefinch/lumberjack.v2"
)

// ActivityLog is the human-readable narrative of every cycle. It rotates by
// size and never prunes old files.
type ActivityLog struct {
	mu sync.Mutex
	w  io.WriteCloser
}

// OpenActivityLog opens the narrative log at path rotating every maxSizeMB.
func OpenActivityLog(path string, maxSizeMB int) (*ActivityLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create activity log dir: %w", err)
	}
	if maxSizeMB <= 0 {
		maxSizeMB = 50
	}
	return &ActivityLog{w: &lumberjack.Logger{
		Filename:   path,
		MaxSize:    maxSizeMB, // Megabytes
		MaxBackups: 0,         // keep every rotated file
		MaxAge:     0,
		Compress:   false,
		LocalTime:  false,
	}}, nil
}

// NewActivityLog writes the narrative to w (tests, stdout).
func NewActivityLog(w io.WriteCloser) *ActivityLog {
	return &ActivityLog{w: w}
}

// Persist implements domain.ResultSink.
func (l *ActivityLog) Persist(ctx context.Context, result *domain.ScanCycleResult) error {
	return l.write(RenderCycle(result))
}

// SessionStarted implements domain.SessionRecorder.
func (l *ActivityLog) SessionStarted(ctx context.Context, info domain.SessionInfo) error {
	return l.write(fmt.Sprintf("##### SESSION START %s | interval %s | assets %s | venues %s\n",
		info.StartedAt.UTC().Format(time.RFC3339), info.Interval, strings.Join(info.Assets, ","), joinVenues(info.Venues)))
}

// SessionStopped implements domain.SessionRecorder.
func (l *ActivityLog) SessionStopped(ctx context.Context, info domain.SessionInfo) error {
	return l.write(fmt.Sprintf("##### SESSION STOP %s | cycles %d | reason %s\n",
		info.StoppedAt.UTC().Format(time.RFC3339), info.Cycles, info.Reason))
}

// Close closes the underlying writer.
func (l *ActivityLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Close()
}

func (l *ActivityLog) write(s string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	_, err := io.WriteString(l.w, s)
	return err
}

func joinVenues(venues []domain.Venue) string {
	parts := make([]string, len(venues))
	for i, v := range venues {
		parts[i] = v.String()
	}
	return strings.Join(parts, ",")
}
