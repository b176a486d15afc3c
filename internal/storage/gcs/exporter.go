// Package gcs uploads run exports to a Google Cloud Storage bucket.
package gcs

import (
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to export to GCS.
type Config struct {
	Bucket string `mapstructure:"bucket" yaml:"bucket"`
	// Prefix is prepended to every object path, e.g. "exports".
	Prefix string `mapstructure:"prefix" yaml:"prefix"`
}

// Exporter writes run exports to a configured GCS bucket.
type Exporter struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed exporter.
func New(client *storage.Client, cfg Config) (*Exporter, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Exporter{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
	}, nil
}

// Upload streams r to the configured bucket under name and returns the
// resulting gs:// URI.
func (e *Exporter) Upload(ctx context.Context, name, contentType string, r io.Reader) (string, error) {
	if strings.TrimSpace(name) == "" {
		return "", fmt.Errorf("object name is required")
	}
	object := name
	if e.prefix != "" {
		object = path.Join(e.prefix, name)
	}
	writer := e.client.Bucket(e.bucket).Object(object).NewWriter(ctx)
	if contentType != "" {
		writer.ContentType = contentType
	}
	if _, err := io.Copy(writer, r); err != nil {
		closeErr := writer.Close()
		if closeErr != nil {
			return "", fmt.Errorf("write export: %w (close writer: %v)", err, closeErr)
		}
		return "", fmt.Errorf("write export: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("close writer: %w", err)
	}
	return fmt.Sprintf("gs://%s/%s", e.bucket, object), nil
}
