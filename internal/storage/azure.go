package storage

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/bloberror"
)

// AzureFetcher downloads documents from Azure Blob Storage.
// Accepts azblob://<container>/<key> and https://<account>.blob.core.windows.net/<container>/<key>;
// a bare key resolves against the default container.
type AzureFetcher struct {
	client    *azblob.Client
	container string
	maxBytes  int64
	logger    *slog.Logger
}

func NewAzureFetcher(connectionString, container string, maxBytes int64, logger *slog.Logger) (*AzureFetcher, error) {
	client, err := azblob.NewClientFromConnectionString(connectionString, nil)
	if err != nil {
		return nil, fmt.Errorf("create storage client: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &AzureFetcher{
		client:    client,
		container: container,
		maxBytes:  maxBytes,
		logger:    logger.With("system", "storage"),
	}, nil
}

func (a *AzureFetcher) Fetch(ctx context.Context, rawURL string) (Blob, error) {
	container, key, err := a.locate(rawURL)
	if err != nil {
		return Blob{}, err
	}

	resp, err := a.client.DownloadStream(ctx, container, key, nil)
	if err != nil {
		if bloberror.HasCode(err, bloberror.BlobNotFound, bloberror.ContainerNotFound) {
			return Blob{}, ErrNotFound
		}
		return Blob{}, fmt.Errorf("download blob %s: %w", key, err)
	}
	defer resp.Body.Close()

	data, err := readLimited(resp.Body, a.maxBytes)
	if err != nil {
		return Blob{}, fmt.Errorf("read blob %s: %w", key, err)
	}
	ct := ""
	if resp.ContentType != nil {
		ct = *resp.ContentType
	}
	return Blob{Name: baseName(key), ContentType: ct, Data: data}, nil
}

func (a *AzureFetcher) locate(rawURL string) (container, key string, err error) {
	u, err := url.Parse(rawURL)
	if err != nil {
		return "", "", fmt.Errorf("%w: %v", ErrInvalidURL, err)
	}
	switch u.Scheme {
	case "azblob":
		container, key = u.Host, strings.TrimPrefix(u.Path, "/")
	case "http", "https":
		parts := strings.SplitN(strings.TrimPrefix(u.Path, "/"), "/", 2)
		if len(parts) == 2 {
			container, key = parts[0], parts[1]
		}
	default:
		container, key = a.container, strings.TrimPrefix(rawURL, "/")
	}
	if container == "" {
		container = a.container
	}
	if key == "" || strings.Contains(key, "..") {
		return "", "", fmt.Errorf("%w: blob key %q", ErrInvalidURL, key)
	}
	return container, key, nil
}
