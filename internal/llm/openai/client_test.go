package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/joseph-ayodele/care-records/constants"
	"github.com/joseph-ayodele/care-records/internal/llm"
)

func TestCompleteStreaming(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer test-key" {
			http.Error(w, "bad request", http.StatusBadRequest)
			return
		}
		b, _ := io.ReadAll(r.Body)
		_ = json.Unmarshal(b, &got)

		w.Header().Set("Content-Type", "text/event-stream")
		for _, part := range []string{`{\"documentType\":`, `\"OTHER\"}`} {
			fmt.Fprintf(w, "data: {\"choices\":[{\"delta\":{\"content\":\"%s\"}}]}\n\n", part)
		}
		fmt.Fprint(w, "data: [DONE]\n\n")
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "test-key", BaseURL: srv.URL, Model: "test-model", Stream: true}, nil)
	var deltas []string
	out, err := c.Complete(context.Background(), llm.Request{
		Kind:       constants.InputText,
		Text:       "Visit summary",
		DomainHint: "medical",
	}, func(d string) { deltas = append(deltas, d) })
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"documentType":"OTHER"}` {
		t.Fatalf("content = %q", out)
	}
	if len(deltas) != 2 {
		t.Fatalf("deltas = %v", deltas)
	}
	if got["model"] != "test-model" || got["stream"] != true {
		t.Errorf("request body = %v", got)
	}
}

func TestCompleteNonStreamingWithImages(t *testing.T) {
	var body string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		b, _ := io.ReadAll(r.Body)
		body = string(b)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprint(w, `{"choices":[{"message":{"content":"  {\"warnings\":[]}  "}}]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	var delta string
	out, err := c.Complete(context.Background(), llm.Request{
		Kind:   constants.InputPDFImages,
		Images: []llm.Attachment{{MIMEType: "image/png", Data: []byte{0x89, 'P', 'N', 'G'}}},
	}, func(d string) { delta += d })
	if err != nil {
		t.Fatalf("Complete: %v", err)
	}
	if out != `{"warnings":[]}` {
		t.Fatalf("content = %q", out)
	}
	if delta == "" {
		t.Error("non-streaming response not reported as a delta")
	}
	if !strings.Contains(body, "data:image/png;base64,") {
		t.Errorf("image not attached as a data URL: %s", body)
	}
}

func TestCompleteStatusError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, `{"error":"rate limited"}`, http.StatusTooManyRequests)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL, Stream: true}, nil)
	_, err := c.Complete(context.Background(), llm.Request{Kind: constants.InputText, Text: "x"}, nil)
	var se *llm.StatusError
	if !errors.As(err, &se) || se.Status != http.StatusTooManyRequests || !se.Retryable() {
		t.Fatalf("err = %v, want retryable 429 StatusError", err)
	}
}

func TestCompleteEmptyContent(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `{"choices":[{"message":{"content":"   "}}]}`)
	}))
	defer srv.Close()

	c := NewClient(Config{APIKey: "k", BaseURL: srv.URL}, nil)
	if _, err := c.Complete(context.Background(), llm.Request{Kind: constants.InputText, Text: "x"}, nil); err == nil {
		t.Fatal("empty content accepted")
	}
}
