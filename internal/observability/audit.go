package observability

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"
)

// AuditEventType categorizes audit events.
type AuditEventType string

const (
	AuditEventIngestStart    AuditEventType = "entry.ingest.start"
	AuditEventIngestComplete AuditEventType = "entry.ingest.complete"
	AuditEventDelete         AuditEventType = "entry.delete"
	AuditEventResync         AuditEventType = "entry.resync"
	AuditEventIndexDelete    AuditEventType = "index.delete"
	AuditEventSearch         AuditEventType = "search"
)

// AuditEvent is a single audit log entry. Events are written as one JSON
// object per line so downstream log collectors can ingest them unmodified.
type AuditEvent struct {
	Timestamp   time.Time      `json:"timestamp"`
	EventType   AuditEventType `json:"event_type"`
	SessionID   string         `json:"session_id"`
	EntryID     string         `json:"entry_id,omitempty"`
	Index       string         `json:"index,omitempty"`
	Success     bool           `json:"success"`
	Duration    time.Duration  `json:"duration_ms,omitempty"`
	Message     string         `json:"message,omitempty"`
	Details     map[string]any `json:"details,omitempty"`
	ErrorDetail string         `json:"error_detail,omitempty"`
}

// AuditLogger writes ingestion audit events.
type AuditLogger struct {
	mu        sync.Mutex
	writer    io.Writer
	sessionID string
	enabled   bool
}

// AuditConfig configures the audit logger.
type AuditConfig struct {
	Enabled    bool
	OutputPath string // file path, or "stdout"/"stderr"
	SessionID  string
}

// DefaultAuditConfig enables auditing to stdout.
func DefaultAuditConfig() *AuditConfig {
	return &AuditConfig{Enabled: true, OutputPath: "stdout"}
}

// NewAuditLogger creates an audit logger.
func NewAuditLogger(config *AuditConfig) (*AuditLogger, error) {
	if config == nil {
		config = DefaultAuditConfig()
	}

	var writer io.Writer
	switch config.OutputPath {
	case "stdout", "":
		writer = os.Stdout
	case "stderr":
		writer = os.Stderr
	default:
		f, err := os.OpenFile(config.OutputPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
		writer = f
	}

	sessionID := config.SessionID
	if sessionID == "" {
		sessionID = fmt.Sprintf("session-%d", time.Now().UnixNano())
	}

	return &AuditLogger{
		writer:    writer,
		sessionID: sessionID,
		enabled:   config.Enabled,
	}, nil
}

// Log writes one audit event. A nil logger is a no-op so call sites need no
// guard.
func (l *AuditLogger) Log(event *AuditEvent) error {
	if l == nil || !l.enabled {
		return nil
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if event.Timestamp.IsZero() {
		event.Timestamp = time.Now().UTC()
	}
	if event.SessionID == "" {
		event.SessionID = l.sessionID
	}

	data, err := json.Marshal(event)
	if err != nil {
		return fmt.Errorf("marshal audit event: %w", err)
	}
	_, err = fmt.Fprintf(l.writer, "%s\n", data)
	return err
}

// LogIngest records the outcome of one entry ingestion.
func (l *AuditLogger) LogIngest(entryID, index string, duration time.Duration, chunks int, sizeBytes int64, errSummary string) {
	_ = l.Log(&AuditEvent{
		EventType: AuditEventIngestComplete,
		EntryID:   entryID,
		Index:     index,
		Success:   errSummary == "",
		Duration:  duration,
		Message:   fmt.Sprintf("entry %s ingested", entryID),
		Details: map[string]any{
			"chunks":     chunks,
			"size_bytes": sizeBytes,
		},
		ErrorDetail: errSummary,
	})
}

// LogDelete records the removal of one entry's documents.
func (l *AuditLogger) LogDelete(entryID, index string, count int, err error) {
	event := &AuditEvent{
		EventType: AuditEventDelete,
		EntryID:   entryID,
		Index:     index,
		Success:   err == nil,
		Message:   fmt.Sprintf("entry %s deleted", entryID),
		Details:   map[string]any{"documents": count},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	_ = l.Log(event)
}

// LogResync records an entry refresh.
func (l *AuditLogger) LogResync(entryID, index string, duration time.Duration, chunks int, errSummary string) {
	_ = l.Log(&AuditEvent{
		EventType:   AuditEventResync,
		EntryID:     entryID,
		Index:       index,
		Success:     errSummary == "",
		Duration:    duration,
		Message:     fmt.Sprintf("entry %s resynced", entryID),
		Details:     map[string]any{"chunks": chunks},
		ErrorDetail: errSummary,
	})
}

// LogSearch records one retrieval request.
func (l *AuditLogger) LogSearch(index string, hybrid bool, results int, duration time.Duration, err error) {
	event := &AuditEvent{
		EventType: AuditEventSearch,
		Index:     index,
		Success:   err == nil,
		Duration:  duration,
		Details: map[string]any{
			"hybrid":  hybrid,
			"results": results,
		},
	}
	if err != nil {
		event.ErrorDetail = err.Error()
	}
	_ = l.Log(event)
}

// Close releases the underlying file when one was opened.
func (l *AuditLogger) Close() error {
	if l == nil {
		return nil
	}
	l.mu.Lock()
	defer l.mu.Unlock()
	if closer, ok := l.writer.(io.Closer); ok && l.writer != os.Stdout && l.writer != os.Stderr {
		return closer.Close()
	}
	return nil
}
