package recorder

import (
	"bufio"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"
)

// JSONLRecorder appends every journal record as one JSON line to a file.
type JSONLRecorder struct {
	mu   sync.Mutex
	path string
	file *os.File
	w    *bufio.Writer
}

// NewJSONLRecorder returns a recorder appending to path, or nil for a blank path.
// A nil *JSONLRecorder records nothing.
func NewJSONLRecorder(path string) *JSONLRecorder {
	path = strings.TrimSpace(path)
	if path == "" {
		return nil
	}
	return &JSONLRecorder{path: path}
}

type line struct {
	Type string `json:"type"`
	Data any    `json:"data"`
}

func (j *JSONLRecorder) RecordRun(evt *RunEvent) error     { return j.write("run", evt) }
func (j *JSONLRecorder) RecordSkip(evt *SkipEvent) error   { return j.write("skip", evt) }
func (j *JSONLRecorder) RecordTrade(evt *TradeEvent) error { return j.write("trade", evt) }

func (j *JSONLRecorder) openLocked() error {
	if j.file != nil {
		return nil
	}
	if err := os.MkdirAll(filepath.Dir(j.path), 0o755); err != nil {
		return err
	}
	f, err := os.OpenFile(j.path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		return err
	}
	j.file = f
	j.w = bufio.NewWriterSize(f, 64*1024)
	return nil
}

func (j *JSONLRecorder) write(kind string, v any) error {
	if j == nil {
		return nil
	}
	b, err := json.Marshal(line{Type: kind, Data: v})
	if err != nil {
		return fmt.Errorf("jsonl %s: %w", kind, err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if err := j.openLocked(); err != nil {
		return err
	}
	if _, err := j.w.Write(b); err != nil {
		return err
	}
	if err := j.w.WriteByte('\n'); err != nil {
		return err
	}
	// flushed per record so tailers see it immediately
	return j.w.Flush()
}

func (j *JSONLRecorder) Close() error {
	if j == nil {
		return nil
	}
	j.mu.Lock()
	defer j.mu.Unlock()

	var firstErr error
	if j.w != nil {
		firstErr = j.w.Flush()
	}
	if j.file != nil {
		if err := j.file.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	j.w = nil
	j.file = nil
	if errors.Is(firstErr, os.ErrClosed) {
		return nil
	}
	return firstErr
}
