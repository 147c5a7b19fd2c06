package seclog

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/jmoiron/sqlx"
)

const insertDetection = `
	INSERT INTO security_detections
		(detection_type, severity, pattern, sample, metadata_json, action_taken, detected_at)
	VALUES ($1, $2, $3, $4, $5, $6, $7)`

// PostgresSink mirrors events into the security_detections table.
// Inserts are best-effort: a database failure is logged and the event is
// dropped from the mirror (the JSONL file remains the primary record).
type PostgresSink struct {
	db      *sqlx.DB
	timeout time.Duration
}

// NewPostgresSink returns a sink writing to db. db may be shared with the
// store adapter; the sink only ever inserts.
func NewPostgresSink(db *sqlx.DB) *PostgresSink {
	return &PostgresSink{db: db, timeout: 5 * time.Second}
}

// Record implements Sink.
func (s *PostgresSink) Record(event Event) {
	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}

	var metadata []byte
	if event.Metadata != nil {
		var err error
		metadata, err = json.Marshal(event.Metadata)
		if err != nil {
			slog.Error("Failed to marshal detection metadata", "type", event.Type, "error", err)
			metadata = nil
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), s.timeout)
	defer cancel()

	_, err := s.db.ExecContext(ctx, insertDetection,
		event.Type, string(event.Severity), event.Pattern, event.Sample,
		metadata, event.ActionTaken, event.Timestamp)
	if err != nil {
		slog.Warn("Failed to mirror security event to database",
			"type", event.Type, "severity", event.Severity, "error", err)
	}
}

// MultiSink fans an event out to several sinks in order. The JSONL sink
// should come first so the primary record is written even when the
// database mirror is down.
type MultiSink []Sink

// Record implements Sink.
func (m MultiSink) Record(event Event) {
	for _, s := range m {
		s.Record(event)
	}
}
