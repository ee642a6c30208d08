package storage

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"net/url"
	"os"
	"path/filepath"

	"github.com/joseph-ayodele/care-records/constants"
)

// LocalFetcher reads documents from the filesystem (file:// URLs and bare paths).
type LocalFetcher struct {
	maxBytes int64
}

func NewLocalFetcher(maxBytes int64) *LocalFetcher {
	return &LocalFetcher{maxBytes: maxBytes}
}

func (f *LocalFetcher) Fetch(ctx context.Context, rawURL string) (Blob, error) {
	if err := ctx.Err(); err != nil {
		return Blob{}, err
	}
	p := rawURL
	if u, err := url.Parse(rawURL); err == nil && u.Scheme == "file" {
		p = u.Path
	}
	fh, err := os.Open(p)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return Blob{}, ErrNotFound
		}
		return Blob{}, fmt.Errorf("open: %w", err)
	}
	defer fh.Close()

	data, err := readLimited(fh, f.maxBytes)
	if err != nil {
		return Blob{}, err
	}
	return Blob{
		Name:        filepath.Base(p),
		ContentType: constants.MIMEFromExt(filepath.Ext(p)),
		Data:        data,
	}, nil
}
