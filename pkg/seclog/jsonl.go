package seclog

import (
	"encoding/json"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"
)

// JSONLSink appends events to per-category JSONL files under a storage
// directory. Appends to each file are serialized; a failed append is logged
// and dropped rather than surfaced to the caller.
type JSONLSink struct {
	dir string
	mu  sync.Mutex
}

// NewJSONLSink creates the storage directory if needed and returns a sink
// writing into it.
func NewJSONLSink(dir string) (*JSONLSink, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}
	return &JSONLSink{dir: dir}, nil
}

// Record implements Sink.
func (s *JSONLSink) Record(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.Category == "" {
		event.Category = CategoryIncident
	}

	line, err := json.Marshal(event)
	if err != nil {
		slog.Error("Failed to marshal security event", "type", event.Type, "error", err)
		return
	}

	path := filepath.Join(s.dir, string(event.Category)+".jsonl")

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
	if err != nil {
		slog.Error("Failed to open security event log", "path", path, "error", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(line, '\n')); err != nil {
		slog.Error("Failed to append security event", "path", path, "error", err)
	}
}
