package export

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/rvcleanup/rv-cleanup/internal/config"
	"github.com/rvcleanup/rv-cleanup/internal/http"
	"github.com/rvcleanup/rv-cleanup/internal/logging"
)

// Sink stores one encoded export and returns where it went.
type Sink interface {
	Write(ctx context.Context, data []byte, contentType string) (location string, err error)
}

// Destination is a parsed export target.
type Destination struct {
	Scheme    string // "file", "s3" or "azblob"
	Path      string // local path
	Container string // bucket or blob container
	Key       string // object key or blob name
}

// ParseDestination understands local paths, s3://bucket/key and
// azblob://container/blob.
func ParseDestination(dest string) (Destination, error) {
	dest = strings.TrimSpace(dest)
	if dest == "" {
		return Destination{}, errors.New("export destination is empty")
	}
	if !strings.Contains(dest, "://") {
		return Destination{Scheme: "file", Path: dest}, nil
	}

	u, err := url.Parse(dest)
	if err != nil {
		return Destination{}, fmt.Errorf("invalid export destination %q: %w", dest, err)
	}
	key := strings.TrimPrefix(u.Path, "/")

	switch u.Scheme {
	case "file":
		return Destination{Scheme: "file", Path: u.Path}, nil
	case "s3", "azblob":
		if u.Host == "" || key == "" || strings.HasSuffix(key, "/") {
			return Destination{}, fmt.Errorf("%s destination needs a container and an object name: %q", u.Scheme, dest)
		}
		return Destination{Scheme: u.Scheme, Container: u.Host, Key: key}, nil
	}
	return Destination{}, fmt.Errorf("unsupported export scheme %q", u.Scheme)
}

// OpenSink builds the sink for dest. Object-store sinks share one transfer
// HTTP client so proxy settings apply to them too.
func OpenSink(ctx context.Context, dest string, cfg *config.Config, logger *logging.Logger) (Sink, error) {
	d, err := ParseDestination(dest)
	if err != nil {
		return nil, err
	}
	if d.Scheme == "file" {
		return NewLocalSink(d.Path, nil), nil
	}

	httpClient, err := http.CreateTransferClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to create transfer client: %w", err)
	}

	switch d.Scheme {
	case "s3":
		return NewS3Sink(ctx, cfg.Export, d.Container, d.Key, httpClient, logger)
	default:
		return NewAzureSink(cfg.Export.AzureServiceURL, d.Container, d.Key, httpClient, logger)
	}
}
