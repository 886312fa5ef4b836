// Package journal writes the append-only opportunity log and the
// human-readable activity log.
package journal

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"arbscan/internal/domain"
)

// OpportunityLog appends one JSON object per opportunity (NDJSON). Lines are
// written with a single write call on an O_APPEND file so concurrent readers
// never see a torn record; the file is synced once per cycle.
type OpportunityLog struct {
	mu   sync.Mutex
	path string
	f    logFile
}

// logFile is the part of *os.File the log uses.
type logFile interface {
	Write(p []byte) (int, error)
	Stat() (os.FileInfo, error)
	Truncate(size int64) error
	Sync() error
	Close() error
}

// OpenOpportunityLog opens (or creates) the log for appending.
func OpenOpportunityLog(path string) (*OpportunityLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return nil, fmt.Errorf("create opportunity log dir: %w", err)
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0644)
	if err != nil {
		return nil, fmt.Errorf("open opportunity log: %w", err)
	}
	return &OpportunityLog{path: path, f: f}, nil
}

// Path returns the log file path.
func (l *OpportunityLog) Path() string {
	return l.path
}

// Persist implements domain.ResultSink. A line that fails to encode or write
// is dropped; the remaining lines are still written.
func (l *OpportunityLog) Persist(ctx context.Context, result *domain.ScanCycleResult) error {
	if len(result.Opportunities) == 0 {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	var errs []error
	for _, o := range result.Opportunities {
		line, err := json.Marshal(o.Record())
		if err != nil {
			errs = append(errs, fmt.Errorf("encode opportunity: %w", err))
			continue
		}
		if err := l.appendLine(append(line, '\n')); err != nil {
			errs = append(errs, err)
		}
	}
	if err := l.f.Sync(); err != nil {
		errs = append(errs, fmt.Errorf("sync opportunity log: %w", err))
	}
	return errors.Join(errs...)
}

// appendLine writes one record. A failed write is cut back to the previous
// end of file so a partial line never prefixes the next record.
func (l *OpportunityLog) appendLine(line []byte) error {
	info, err := l.f.Stat()
	if err != nil {
		return fmt.Errorf("stat opportunity log: %w", err)
	}
	if _, err := l.f.Write(line); err != nil {
		if terr := l.f.Truncate(info.Size()); terr != nil {
			return fmt.Errorf("write opportunity: %w (truncate failed: %v)", err, terr)
		}
		return fmt.Errorf("write opportunity: %w", err)
	}
	return nil
}

// Close closes the file.
func (l *OpportunityLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.f.Close()
}
