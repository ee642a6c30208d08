package events

import (
	"encoding/json"
	"testing"

	"github.com/google/uuid"
)

func TestMessageKeyedByDocument(t *testing.T) {
	doc := uuid.New()
	e := NewEvent(TypeDocumentCompleted, doc, uuid.New(), map[string]any{"medications": 3})
	msg, err := message(e)
	if err != nil {
		t.Fatalf("message: %v", err)
	}
	if string(msg.Key) != doc.String() {
		t.Errorf("key = %s, want %s", msg.Key, doc)
	}
	var decoded Event
	if err := json.Unmarshal(msg.Value, &decoded); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if decoded.Type != TypeDocumentCompleted || decoded.DocumentID != doc {
		t.Errorf("decoded = %+v", decoded)
	}
	if len(msg.Headers) != 2 || string(msg.Headers[0].Value) != TypeDocumentCompleted {
		t.Errorf("headers = %+v", msg.Headers)
	}
}

func TestNewWithoutBrokersLogs(t *testing.T) {
	if _, ok := New(nil, "topic", nil).(*LogPublisher); !ok {
		t.Fatal("expected log publisher without brokers")
	}
	if _, ok := New([]string{"localhost:9092"}, "topic", nil).(*KafkaPublisher); !ok {
		t.Fatal("expected kafka publisher with brokers")
	}
}
