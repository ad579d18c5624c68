// Package transcript appends conversation turns to a per-session JSONL
// file so sessions can be reviewed after the fact.
package transcript

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// Entry is one line of the transcript file.
type Entry struct {
	Time time.Time `json:"ts"`
	Kind string    `json:"kind"`
	Text string    `json:"text"`
}

// Entry kinds.
const (
	KindUser      = "user"
	KindAssistant = "assistant"
	KindTool      = "tool"
)

// Logger writes transcript entries. A nil Logger is a valid no-op, so
// callers can leave transcripts disabled without branching.
type Logger struct {
	mu   sync.Mutex
	file *os.File
	enc  *json.Encoder
	log  *slog.Logger
}

// New creates dir if needed and opens a session-stamped transcript file
// inside it.
func New(dir string, log *slog.Logger) (*Logger, error) {
	if log == nil {
		log = slog.Default()
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create transcript dir: %w", err)
	}
	name := fmt.Sprintf("session-%s.jsonl", time.Now().Format("20060102-150405"))
	file, err := os.OpenFile(filepath.Join(dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return nil, fmt.Errorf("open transcript file: %w", err)
	}
	return &Logger{
		file: file,
		enc:  json.NewEncoder(file),
		log:  log,
	}, nil
}

// Record appends one entry. Failures are logged, never fatal: losing a
// transcript line must not disturb the conversation.
func (l *Logger) Record(kind, text string) {
	if l == nil || text == "" {
		return
	}
	entry := Entry{Time: time.Now().UTC(), Kind: kind, Text: text}

	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return
	}
	if err := l.enc.Encode(entry); err != nil {
		l.log.Warn("transcript write failed", "error", err)
	}
}

// Path returns the transcript file location, or empty for a nil logger.
func (l *Logger) Path() string {
	if l == nil {
		return ""
	}
	return l.file.Name()
}

// Close flushes and closes the file. Safe on nil and after Close.
func (l *Logger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.file == nil {
		return nil
	}
	err := l.file.Close()
	l.file = nil
	return err
}
