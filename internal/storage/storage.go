// Package storage fetches document bytes from the location named in a job's fileUrl.
package storage

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"path"
	"strings"

	"github.com/joseph-ayodele/care-records/internal/common"
)

var (
	ErrNotFound   = errors.New("object not found")
	ErrTooLarge   = errors.New("object exceeds size limit")
	ErrNoBackend  = errors.New("no backend for url")
	ErrInvalidURL = errors.New("invalid url")
)

// Blob is a downloaded document.
type Blob struct {
	Name        string
	ContentType string
	Data        []byte
}

// Fetcher downloads the bytes behind a document URL.
type Fetcher interface {
	Fetch(ctx context.Context, rawURL string) (Blob, error)
}

// Router dispatches on URL scheme: http(s) to the HTTP client, azblob:// and Azure
// blob hosts to the blob client, file:// and bare paths to the local filesystem.
type Router struct {
	HTTP   Fetcher
	Azure  Fetcher
	Local  Fetcher
	logger *slog.Logger
}

func NewRouter(httpF, azureF, localF Fetcher, logger *slog.Logger) *Router {
	if logger == nil {
		logger = slog.Default()
	}
	return &Router{HTTP: httpF, Azure: azureF, Local: localF, logger: logger}
}

// Fetch downloads rawURL. Every failure is a DownloadFailure.
func (r *Router) Fetch(ctx context.Context, rawURL string) (Blob, error) {
	backend, err := r.pick(rawURL)
	if err != nil {
		return Blob{}, common.DownloadFailure("resolve "+redact(rawURL), err)
	}
	b, err := backend.Fetch(ctx, rawURL)
	if err != nil {
		r.logger.Error("storage.fetch.failed", "url", redact(rawURL), "error", err)
		return Blob{}, common.DownloadFailure("fetch "+redact(rawURL), err)
	}
	r.logger.Debug("storage.fetch.ok", "url", redact(rawURL), "bytes", len(b.Data))
	return b, nil
}

func (r *Router) pick(rawURL string) (Fetcher, error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	var f Fetcher
	switch {
	case u.Scheme == "azblob", isAzureBlobHost(u.Host) && r.Azure != nil:
		f = r.Azure
	case u.Scheme == "http" || u.Scheme == "https":
		f = r.HTTP
	case u.Scheme == "file" || u.Scheme == "":
		f = r.Local
	}
	if f == nil {
		return nil, fmt.Errorf("%w: scheme %q", ErrNoBackend, u.Scheme)
	}
	return f, nil
}

func isAzureBlobHost(host string) bool {
	return strings.HasSuffix(strings.ToLower(host), ".blob.core.windows.net")
}

// readLimited reads at most limit bytes and fails if there is more.
func readLimited(rd io.Reader, limit int64) ([]byte, error) {
	if limit <= 0 {
		return io.ReadAll(rd)
	}
	b, err := io.ReadAll(io.LimitReader(rd, limit+1))
	if err != nil {
		return nil, err
	}
	if int64(len(b)) > limit {
		return nil, ErrTooLarge
	}
	return b, nil
}

// redact drops query strings, which often carry SAS tokens.
func redact(rawURL string) string {
	if i := strings.IndexByte(rawURL, '?'); i >= 0 {
		return rawURL[:i]
	}
	return rawURL
}

func baseName(p string) string {
	if p == "" {
		return ""
	}
	return path.Base(p)
}
