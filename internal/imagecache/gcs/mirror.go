// Package gcs provides an image mirror backed by Google Cloud Storage.
package gcs

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"path"
	"strings"

	"cloud.google.com/go/storage"
)

// Config captures the parameters required to connect to GCS. Prefix is
// prepended to every object name so one bucket can hold the menu and
// restaurant image trees side by side.
type Config struct {
	Bucket string
	Prefix string
}

// Mirror uploads cached images to a configured GCS bucket.
type Mirror struct {
	client *storage.Client
	bucket string
	prefix string
}

// New creates a GCS-backed mirror. The prefix is normalized to a clean,
// slash-separated, relative object path segment.
func New(client *storage.Client, cfg Config) (*Mirror, error) {
	if client == nil {
		return nil, fmt.Errorf("storage client is required")
	}
	if cfg.Bucket == "" {
		return nil, fmt.Errorf("bucket name is required")
	}
	return &Mirror{
		client: client,
		bucket: cfg.Bucket,
		prefix: normalizePrefix(cfg.Prefix),
	}, nil
}

// Put uploads the image bytes to the bucket under the prefixed objectPath.
func (m *Mirror) Put(ctx context.Context, objectPath string, data []byte) error {
	if strings.TrimSpace(objectPath) == "" {
		return fmt.Errorf("object path is required")
	}
	writer := m.client.Bucket(m.bucket).Object(m.objectName(objectPath)).NewWriter(ctx)
	if _, err := io.Copy(writer, bytes.NewReader(data)); err != nil {
		if closeErr := writer.Close(); closeErr != nil {
			return fmt.Errorf("copy object: %w (close writer: %v)", err, closeErr)
		}
		return fmt.Errorf("copy object: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("close writer: %w", err)
	}
	return nil
}

func (m *Mirror) objectName(objectPath string) string {
	if m.prefix == "" {
		return objectPath
	}
	return path.Join(m.prefix, objectPath)
}

// normalizePrefix turns a local directory path into an object prefix:
// OS separators become slashes, leading/trailing slashes and "." are
// dropped, nested directories are preserved.
func normalizePrefix(prefix string) string {
	cleaned := path.Clean(strings.ReplaceAll(prefix, "\\", "/"))
	cleaned = strings.Trim(cleaned, "/")
	if cleaned == "." {
		return ""
	}
	return cleaned
}
