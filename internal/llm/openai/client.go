package openai

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/joseph-ayodele/care-records/internal/llm"
)

// Complete implements llm.Capability over chat/completions. Text goes in the user
// message; images and PDFs are attached as data URLs.
func (c *Client) Complete(ctx context.Context, req llm.Request, onDelta func(string)) (string, error) {
	rid := uuid.New().String()
	start := time.Now()

	c.logger.Info("llm.extract.start",
		"req_id", rid,
		"model", c.cfg.Model,
		"kind", req.Kind,
		"text_len", len(req.Text),
		"images", len(req.Images),
		"has_file", req.File != nil,
		"stream", c.cfg.Stream,
	)

	body := map[string]any{
		"model":           c.cfg.Model,
		"temperature":     c.cfg.Temperature,
		"response_format": map[string]any{"type": "json_object"},
		"messages": []map[string]any{
			{"role": "system", "content": llm.BuildSystemPrompt(req.DomainHint)},
			{"role": "system", "content": "JSON Schema:\n" + mustJSON(llm.BuildExtractionJSONSchema())},
			{"role": "user", "content": userContent(req)},
		},
	}
	if c.cfg.Stream {
		body["stream"] = true
	}

	endpoint := strings.TrimRight(c.cfg.BaseURL, "/") + "/chat/completions"
	headers := map[string]string{"Authorization": "Bearer " + c.cfg.APIKey}

	var (
		content string
		err     error
	)
	if c.cfg.Stream {
		content, err = c.stream(ctx, endpoint, body, headers, onDelta)
	} else {
		content, err = c.complete(ctx, endpoint, body, headers)
		if err == nil && onDelta != nil {
			onDelta(content)
		}
	}
	if err != nil {
		c.logger.Error("llm.extract.failed",
			"req_id", rid, "error", err,
			"elapsed_ms", time.Since(start).Milliseconds(),
		)
		return "", err
	}

	content = strings.TrimSpace(content)
	if content == "" {
		c.logger.Error("llm.extract.empty", "req_id", rid, "elapsed_ms", time.Since(start).Milliseconds())
		return "", errors.New("openai returned empty content")
	}

	c.logger.Info("llm.extract.ok",
		"req_id", rid,
		"content_len", len(content),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return content, nil
}

func (c *Client) complete(ctx context.Context, endpoint string, body map[string]any, headers map[string]string) (string, error) {
	raw, err := llm.SendJSON(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	var cc struct {
		Choices []struct {
			Message struct {
				Content string `json:"content"`
			} `json:"message"`
		} `json:"choices"`
	}
	if err := json.Unmarshal(raw, &cc); err != nil {
		return "", fmt.Errorf("decode openai response: %w", err)
	}
	if len(cc.Choices) == 0 {
		return "", errors.New("no choices in openai response")
	}
	return cc.Choices[0].Message.Content, nil
}

func (c *Client) stream(ctx context.Context, endpoint string, body map[string]any, headers map[string]string, onDelta func(string)) (string, error) {
	rc, err := llm.OpenStream(ctx, c.http, endpoint, body, headers, c.logger)
	if err != nil {
		return "", fmt.Errorf("openai request: %w", err)
	}
	defer func() {
		if err := rc.Close(); err != nil {
			c.logger.Warn("openai response body close error", "error", err)
		}
	}()

	var b strings.Builder
	err = llm.ReadSSE(rc, func(payload []byte) error {
		var chunk struct {
			Choices []struct {
				Delta struct {
					Content string `json:"content"`
				} `json:"delta"`
			} `json:"choices"`
		}
		if err := json.Unmarshal(payload, &chunk); err != nil {
			return fmt.Errorf("decode stream chunk: %w", err)
		}
		for _, ch := range chunk.Choices {
			if ch.Delta.Content == "" {
				continue
			}
			b.WriteString(ch.Delta.Content)
			if onDelta != nil {
				onDelta(ch.Delta.Content)
			}
		}
		return nil
	})
	if err != nil {
		return "", err
	}
	return b.String(), nil
}

func userContent(req llm.Request) []map[string]any {
	parts := []map[string]any{{"type": "text", "text": llm.BuildUserPrompt(req)}}
	for _, img := range req.Images {
		parts = append(parts, map[string]any{
			"type":      "image_url",
			"image_url": map[string]any{"url": img.DataURL(), "detail": "high"},
		})
	}
	if req.File != nil {
		parts = append(parts, map[string]any{
			"type": "file",
			"file": map[string]any{
				"filename":  req.File.FilenameOrDefault(),
				"file_data": req.File.DataURL(),
			},
		})
	}
	return parts
}

func mustJSON(v any) string {
	b, _ := json.MarshalIndent(v, "", "  ")
	return string(b)
}
