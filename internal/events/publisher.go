// Package events publishes document lifecycle events for downstream consumers.
package events

import (
	"context"
	"log/slog"
	"time"

	"github.com/google/uuid"
)

const (
	TypeDocumentProcessing = "document.processing"
	TypeDocumentCompleted  = "document.completed"
	TypeDocumentFailed     = "document.failed"
	TypeDocumentEnriched   = "document.enriched"
)

const source = "care-records.pipeline"

type Event struct {
	ID         string         `json:"id"`
	Type       string         `json:"type"`
	Source     string         `json:"source"`
	DocumentID uuid.UUID      `json:"documentId"`
	FamilyID   uuid.UUID      `json:"familyId"`
	Data       map[string]any `json:"data,omitempty"`
	Timestamp  time.Time      `json:"timestamp"`
}

// NewEvent stamps an event with a fresh id and the current time.
func NewEvent(typ string, documentID, familyID uuid.UUID, data map[string]any) Event {
	return Event{
		ID:         uuid.NewString(),
		Type:       typ,
		Source:     source,
		DocumentID: documentID,
		FamilyID:   familyID,
		Data:       data,
		Timestamp:  time.Now().UTC(),
	}
}

type Publisher interface {
	Publish(ctx context.Context, e Event) error
	Close() error
}

// LogPublisher writes events to the logger. It is used when no brokers are configured.
type LogPublisher struct {
	logger *slog.Logger
}

func NewLogPublisher(logger *slog.Logger) *LogPublisher {
	if logger == nil {
		logger = slog.Default()
	}
	return &LogPublisher{logger: logger}
}

func (p *LogPublisher) Publish(_ context.Context, e Event) error {
	p.logger.Info("event", "event_id", e.ID, "event_type", e.Type, "document_id", e.DocumentID, "data", e.Data)
	return nil
}

func (p *LogPublisher) Close() error { return nil }
