package pipeline

import (
	"encoding/json"
	"log"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Event is one structured audit record emitted by the pipeline.
type Event struct {
	ID             string         `json:"id"`
	EventType      string         `json:"event_type"`
	Context        string         `json:"context"`
	UserID         string         `json:"user_id,omitempty"`
	ConversationID string         `json:"conversation_id,omitempty"`
	Details        map[string]any `json:"details,omitempty"`
	Timestamp      time.Time      `json:"timestamp"`
}

// EventSink receives audit events. Implementations are fire-and-forget:
// Record must not block the analysis path and must not panic.
type EventSink interface {
	Record(ev Event)
}

// LogSink writes audit events to the process log. The zero value is
// ready to use.
type LogSink struct{}

// Record logs the event as a single JSON line.
func (LogSink) Record(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[WARN] audit event marshal failed: %v", err)
		return
	}
	log.Printf("SECURITY_EVENT %s", payload)
}

// FileSink appends audit events to a JSONL file. Write failures are
// downgraded to a log line; the analysis path never sees them.
type FileSink struct {
	mu   sync.Mutex
	path string
}

// NewFileSink creates a sink appending to the given path.
func NewFileSink(path string) *FileSink {
	return &FileSink{path: path}
}

// Record appends the event as one JSON line.
func (s *FileSink) Record(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		log.Printf("[WARN] audit event marshal failed: %v", err)
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	f, err := os.OpenFile(s.path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		log.Printf("[WARN] audit log open failed: %v", err)
		return
	}
	defer f.Close()

	if _, err := f.Write(append(payload, '\n')); err != nil {
		log.Printf("[WARN] audit log write failed: %v", err)
	}
}

// newEvent stamps an Event with a fresh ID and timestamp.
func newEvent(eventType, context, userID, conversationID string, details map[string]any) Event {
	return Event{
		ID:             uuid.NewString(),
		EventType:      eventType,
		Context:        context,
		UserID:         userID,
		ConversationID: conversationID,
		Details:        details,
		Timestamp:      time.Now().UTC(),
	}
}
