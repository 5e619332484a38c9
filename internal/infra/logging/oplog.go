// Package logging provides the console logger and the JSONL operation log.
package logging

import (
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/oklog/ulid/v2"

	"nixcfg/internal/domain/model"
)

const OperationLogFile = "operations.log"

// OperationLog records one entry per state-changing operation.
type OperationLog interface {
	Log(ctx context.Context, entry model.OperationLogEntry) error
	Close() error
}

type noopLog struct{}

func (noopLog) Log(context.Context, model.OperationLogEntry) error { return nil }
func (noopLog) Close() error                                      { return nil }

func NewNoopLog() OperationLog { return noopLog{} }

type fileLog struct {
	mu   sync.Mutex
	file *os.File
}

// NewOperationLog appends JSONL to dir/operations.log.
func NewOperationLog(dir string, disabled bool) (OperationLog, error) {
	if disabled {
		return noopLog{}, nil
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	f, err := os.OpenFile(filepath.Join(dir, OperationLogFile), os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
	if err != nil {
		return nil, err
	}
	return &fileLog{file: f}, nil
}

// NewOpID returns a sortable identifier shared by the entries of one run.
func NewOpID() string { return ulid.Make().String() }

func (l *fileLog) Log(_ context.Context, entry model.OperationLogEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}
	if entry.OpID == "" {
		entry.OpID = NewOpID()
	}

	b, err := json.Marshal(entry)
	if err != nil {
		return err
	}
	_, err = l.file.Write(append(b, '\n'))
	return err
}

func (l *fileLog) Close() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.file.Close()
}
