package storage

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/joseph-ayodele/care-records/internal/common"
)

func TestHTTPFetcher(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/docs/visit.pdf":
			w.Header().Set("Content-Type", "application/pdf")
			_, _ = w.Write([]byte("%PDF-1.4 body"))
		case "/docs/big.pdf":
			_, _ = w.Write(make([]byte, 64))
		case "/docs/broken.pdf":
			http.Error(w, "boom", http.StatusInternalServerError)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	f := NewHTTPFetcher(0, 32)
	b, err := f.Fetch(context.Background(), srv.URL+"/docs/visit.pdf?sig=secret")
	if err != nil {
		t.Fatalf("Fetch: %v", err)
	}
	if b.Name != "visit.pdf" || b.ContentType != "application/pdf" || string(b.Data) != "%PDF-1.4 body" {
		t.Fatalf("blob = %+v", b)
	}

	if _, err := f.Fetch(context.Background(), srv.URL+"/docs/missing.pdf"); !errors.Is(err, ErrNotFound) {
		t.Errorf("missing: err = %v", err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/docs/big.pdf"); !errors.Is(err, ErrTooLarge) {
		t.Errorf("big: err = %v", err)
	}
	if _, err := f.Fetch(context.Background(), srv.URL+"/docs/broken.pdf"); err == nil {
		t.Error("500 accepted")
	}
}

func TestLocalFetcher(t *testing.T) {
	dir := t.TempDir()
	p := filepath.Join(dir, "note.txt")
	if err := os.WriteFile(p, []byte("follow up in 2 weeks"), 0o600); err != nil {
		t.Fatal(err)
	}
	f := NewLocalFetcher(0)
	for _, src := range []string{p, "file://" + p} {
		b, err := f.Fetch(context.Background(), src)
		if err != nil {
			t.Fatalf("Fetch(%s): %v", src, err)
		}
		if b.Name != "note.txt" || b.ContentType != "text/plain" || string(b.Data) != "follow up in 2 weeks" {
			t.Fatalf("blob = %+v", b)
		}
	}
	if _, err := f.Fetch(context.Background(), filepath.Join(dir, "nope.txt")); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v", err)
	}
}

type fakeFetcher struct{ name string }

func (f fakeFetcher) Fetch(context.Context, string) (Blob, error) {
	return Blob{Name: f.name}, nil
}

type failingFetcher struct{}

func (failingFetcher) Fetch(context.Context, string) (Blob, error) {
	return Blob{}, ErrNotFound
}

func TestRouter(t *testing.T) {
	r := NewRouter(fakeFetcher{"http"}, fakeFetcher{"azure"}, fakeFetcher{"local"}, nil)
	tests := map[string]string{
		"https://example.org/a.pdf":                     "http",
		"https://acct.blob.core.windows.net/docs/a.pdf": "azure",
		"azblob://docs/a.pdf":                           "azure",
		"file:///tmp/a.pdf":                             "local",
		"/tmp/a.pdf":                                    "local",
	}
	for url, want := range tests {
		b, err := r.Fetch(context.Background(), url)
		if err != nil {
			t.Fatalf("Fetch(%s): %v", url, err)
		}
		if b.Name != want {
			t.Errorf("Fetch(%s) routed to %s, want %s", url, b.Name, want)
		}
	}

	if _, err := r.Fetch(context.Background(), "ftp://example.org/a.pdf"); !common.IsKind(err, common.KindDownloadFailure) || !errors.Is(err, ErrNoBackend) {
		t.Errorf("ftp: err = %v", err)
	}

	noAzure := NewRouter(fakeFetcher{"http"}, nil, failingFetcher{}, nil)
	b, err := noAzure.Fetch(context.Background(), "https://acct.blob.core.windows.net/docs/a.pdf?sv=token")
	if err != nil || b.Name != "http" {
		t.Errorf("blob host without azure client: %+v, %v", b, err)
	}
	if _, err := noAzure.Fetch(context.Background(), "/missing.pdf"); !common.IsKind(err, common.KindDownloadFailure) || !errors.Is(err, ErrNotFound) {
		t.Errorf("local miss: err = %v", err)
	}
}
