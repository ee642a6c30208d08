package storage

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"time"
)

// HTTPFetcher downloads documents over http(s), e.g. pre-signed URLs.
type HTTPFetcher struct {
	client   *http.Client
	maxBytes int64
}

func NewHTTPFetcher(timeout time.Duration, maxBytes int64) *HTTPFetcher {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTPFetcher{client: &http.Client{Timeout: timeout}, maxBytes: maxBytes}
}

func (f *HTTPFetcher) Fetch(ctx context.Context, rawURL string) (Blob, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return Blob{}, fmt.Errorf("build request: %w", err)
	}
	resp, err := f.client.Do(req)
	if err != nil {
		return Blob{}, err
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return Blob{}, ErrNotFound
	case resp.StatusCode/100 != 2:
		return Blob{}, fmt.Errorf("unexpected status %d", resp.StatusCode)
	}

	data, err := readLimited(resp.Body, f.maxBytes)
	if err != nil {
		return Blob{}, err
	}
	name := ""
	if u, err := url.Parse(rawURL); err == nil {
		name = baseName(u.Path)
	}
	return Blob{Name: name, ContentType: resp.Header.Get("Content-Type"), Data: data}, nil
}
