// Package audit provides append-only structured logging for secret operations.
//
// Every vault access (read, write, delete, lock) is recorded to an audit
// log at ~/.secretkit/audit.log as newline-delimited JSON. Secret payloads
// are never written; only ids, labels and schema names.
package audit

import (
	"encoding/json"
	"fmt"
	"os"
	"sync"
	"time"
)

// Action describes what happened.
type Action string

const (
	ActionItemRead         Action = "item_read"
	ActionItemWrite        Action = "item_write"
	ActionItemDelete       Action = "item_delete"
	ActionCollectionCreate Action = "collection_create"
	ActionCollectionDelete Action = "collection_delete"
	ActionCollectionLock   Action = "collection_lock"
	ActionCollectionUnlock Action = "collection_unlock"
)

// Entry is a single audit log record.
type Entry struct {
	Timestamp  time.Time `json:"ts"`
	Action     Action    `json:"action"`
	Collection string    `json:"collection,omitempty"`
	Item       string    `json:"item,omitempty"`
	Label      string    `json:"label,omitempty"`
	Schema     string    `json:"schema,omitempty"`
	Count      int       `json:"count,omitempty"` // items returned by a search
	Actor      string    `json:"actor,omitempty"` // "cli", "daemon"
	Error      string    `json:"error,omitempty"`
}

// Logger writes audit entries to an append-only file.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	path string
}

// NewLogger creates or opens an audit log file for appending.
func NewLogger(path string) (*Logger, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0600)
	if err != nil {
		return nil, fmt.Errorf("opening audit log: %w", err)
	}
	return &Logger{file: f, path: path}, nil
}

// Log writes an audit entry.
func (l *Logger) Log(entry Entry) error {
	if entry.Timestamp.IsZero() {
		entry.Timestamp = time.Now().UTC()
	}

	data, err := json.Marshal(entry)
	if err != nil {
		return fmt.Errorf("marshaling audit entry: %w", err)
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if _, err := l.file.Write(append(data, '\n')); err != nil {
		return fmt.Errorf("writing audit entry: %w", err)
	}
	return nil
}

// Path returns the audit log location.
func (l *Logger) Path() string {
	return l.path
}

// Close closes the audit log file.
func (l *Logger) Close() error {
	return l.file.Close()
}
