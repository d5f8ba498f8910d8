// Package imagecache stores downloaded images on disk, keyed by the
// derived file path. Presence of the file is the only freshness signal:
// an existing file is authoritative and never re-fetched.
package imagecache

import (
	"context"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"strings"

	"go.uber.org/zap"

	"github.com/mvoronin/menusync/internal/menu"
	"github.com/mvoronin/menusync/internal/metrics"
	"github.com/mvoronin/menusync/internal/textutil"
)

// Mirror replicates cached images to a secondary store (e.g. a GCS
// bucket the chat front end serves from). Mirror failures never fail the
// cache write.
type Mirror interface {
	Put(ctx context.Context, objectPath string, data []byte) error
}

// Cache downloads images through the shared fetcher and keeps them under
// a root directory, one subdirectory per group.
type Cache struct {
	root    string
	fetcher menu.Fetcher
	logger  *zap.Logger
	mirror  Mirror
}

// New builds a Cache rooted at dir. mirror may be nil.
func New(dir string, fetcher menu.Fetcher, logger *zap.Logger, mirror Mirror) *Cache {
	return &Cache{
		root:    dir,
		fetcher: fetcher,
		logger:  logger,
		mirror:  mirror,
	}
}

// EnsureImage resolves a remote image URL to a local path. On a cache hit
// no network call is made. On any failure the original remote URL is
// returned so the owning record still persists.
//
// Two concurrent calls for the same missing file may both download it;
// the last write wins, which is harmless beyond the wasted transfer.
func (c *Cache) EnsureImage(ctx context.Context, remoteURL, group, name string) string {
	if remoteURL == "" || remoteURL == menu.NoImage {
		return menu.NoImage
	}

	target := c.targetPath(remoteURL, group, name)
	if _, err := os.Stat(target); err == nil {
		c.logger.Debug("image already cached", zap.String("path", target))
		metrics.ObserveImage("hit")
		return target
	}

	body, err := c.fetcher.Fetch(ctx, remoteURL)
	if err != nil {
		c.logger.Error("image download failed",
			zap.String("url", remoteURL),
			zap.Error(err),
		)
		metrics.ObserveImage("download_failed")
		return remoteURL
	}

	if err := os.MkdirAll(filepath.Dir(target), 0o750); err != nil {
		c.logger.Error("create image directory failed",
			zap.String("path", target),
			zap.Error(err),
		)
		metrics.ObserveImage("write_failed")
		return remoteURL
	}
	if err := os.WriteFile(target, body, 0o600); err != nil {
		c.logger.Error("write image failed",
			zap.String("path", target),
			zap.Error(err),
		)
		metrics.ObserveImage("write_failed")
		return remoteURL
	}
	metrics.ObserveImage("downloaded")

	if c.mirror != nil {
		// Object keys are relative to the cache: the mirror carries its
		// own prefix, so nested cache roots survive the round trip.
		object := path.Join(group, filepath.Base(target))
		if err := c.mirror.Put(ctx, object, body); err != nil {
			c.logger.Warn("mirror image failed",
				zap.String("object", object),
				zap.Error(err),
			)
		}
	}

	return target
}

func (c *Cache) targetPath(remoteURL, group, name string) string {
	safe := textutil.SafeFileName(name)
	return filepath.Join(c.root, group, safe+extension(remoteURL))
}

// extension derives the file extension from the URL path, defaulting to
// ".jpg" when the URL carries none.
func extension(remoteURL string) string {
	candidate := remoteURL
	if u, err := url.Parse(remoteURL); err == nil && u.Path != "" {
		candidate = u.Path
	}
	ext := strings.ToLower(path.Ext(candidate))
	if ext == "" {
		return ".jpg"
	}
	return ext
}
