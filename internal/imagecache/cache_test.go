package imagecache

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/mvoronin/menusync/internal/menu"
	"github.com/mvoronin/menusync/internal/metrics"
)

type fakeFetcher struct {
	calls atomic.Int32
	body  []byte
	err   error
}

func (f *fakeFetcher) Fetch(_ context.Context, _ string) ([]byte, error) {
	f.calls.Add(1)
	if f.err != nil {
		return nil, f.err
	}
	return f.body, nil
}

type fakeMirror struct {
	objects map[string][]byte
	err     error
}

func (m *fakeMirror) Put(_ context.Context, objectPath string, data []byte) error {
	if m.err != nil {
		return m.err
	}
	if m.objects == nil {
		m.objects = map[string][]byte{}
	}
	m.objects[objectPath] = data
	return nil
}

func TestEnsureImagePassesThroughSentinel(t *testing.T) {
	t.Parallel()
	metrics.Init()

	fetch := &fakeFetcher{body: []byte("png")}
	cache := New(t.TempDir(), fetch, zap.NewNop(), nil)

	require.Equal(t, menu.NoImage, cache.EnsureImage(context.Background(), "", "Десерты", "Эклер"))
	require.Equal(t, menu.NoImage, cache.EnsureImage(context.Background(), menu.NoImage, "Десерты", "Эклер"))
	require.EqualValues(t, 0, fetch.calls.Load())
}

func TestEnsureImageDownloadsAndWrites(t *testing.T) {
	t.Parallel()
	metrics.Init()

	root := t.TempDir()
	fetch := &fakeFetcher{body: []byte("image-bytes")}
	cache := New(root, fetch, zap.NewNop(), nil)

	got := cache.EnsureImage(context.Background(), "https://cdn.example.com/img/eclair.png", "Десерты", "Эклер")
	want := filepath.Join(root, "Десерты", "Эклер.png")
	require.Equal(t, want, got)

	data, err := os.ReadFile(want)
	require.NoError(t, err)
	require.Equal(t, "image-bytes", string(data))
}

func TestEnsureImageCacheHitSkipsNetwork(t *testing.T) {
	t.Parallel()
	metrics.Init()

	root := t.TempDir()
	target := filepath.Join(root, "Десерты", "Эклер.jpg")
	require.NoError(t, os.MkdirAll(filepath.Dir(target), 0o750))
	require.NoError(t, os.WriteFile(target, []byte("cached"), 0o600))

	fetch := &fakeFetcher{body: []byte("fresh")}
	cache := New(root, fetch, zap.NewNop(), nil)

	got := cache.EnsureImage(context.Background(), "https://cdn.example.com/img/eclair.jpg", "Десерты", "Эклер")
	require.Equal(t, target, got)
	require.EqualValues(t, 0, fetch.calls.Load())

	data, err := os.ReadFile(target)
	require.NoError(t, err)
	require.Equal(t, "cached", string(data))
}

func TestEnsureImageDownloadFailureReturnsRemoteURL(t *testing.T) {
	t.Parallel()
	metrics.Init()

	fetch := &fakeFetcher{err: errors.New("boom")}
	cache := New(t.TempDir(), fetch, zap.NewNop(), nil)

	remote := "https://cdn.example.com/img/eclair.jpg"
	require.Equal(t, remote, cache.EnsureImage(context.Background(), remote, "Десерты", "Эклер"))
}

func TestEnsureImageDefaultsExtensionToJpg(t *testing.T) {
	t.Parallel()
	metrics.Init()

	root := t.TempDir()
	fetch := &fakeFetcher{body: []byte("x")}
	cache := New(root, fetch, zap.NewNop(), nil)

	got := cache.EnsureImage(context.Background(), "https://cdn.example.com/noext", "Десерты", "Эклер")
	require.Equal(t, filepath.Join(root, "Десерты", "Эклер.jpg"), got)
}

func TestEnsureImageMirrorsOnDownload(t *testing.T) {
	t.Parallel()
	metrics.Init()

	root := t.TempDir()
	fetch := &fakeFetcher{body: []byte("img")}
	mirror := &fakeMirror{}
	cache := New(root, fetch, zap.NewNop(), mirror)

	cache.EnsureImage(context.Background(), "https://cdn.example.com/a.jpg", "Десерты", "Эклер")
	require.Len(t, mirror.objects, 1)
	// Keys are group-relative; the mirror prepends its own prefix, so a
	// nested cache root never leaks into (or vanishes from) object names.
	require.Contains(t, mirror.objects, "Десерты/Эклер.jpg")

	// Mirror failures must not change the returned path.
	mirror.err = errors.New("denied")
	got := cache.EnsureImage(context.Background(), "https://cdn.example.com/b.jpg", "Десерты", "Тарт")
	require.Equal(t, filepath.Join(root, "Десерты", "Тарт.jpg"), got)
}
