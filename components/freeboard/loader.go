package freeboard

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strings"
	"sync"

	"golang.org/x/sync/singleflight"
)

// ResourceLoader fetches external scripts and plugin sources. Implementations
// are expected to load a given URL at most once.
type ResourceLoader interface {
	Fetch(ctx context.Context, url string) ([]byte, error)
}

// PluginSourceLoader loads a plugin source URL and registers what it declares.
type PluginSourceLoader interface {
	LoadPluginSource(ctx context.Context, url string) error
}

// CachingLoader fetches http(s) URLs with an HTTP client and everything else
// from the filesystem. Concurrent requests for the same URL share one fetch
// and successful results are cached.
type CachingLoader struct {
	client *http.Client
	group  singleflight.Group

	mu    sync.RWMutex
	cache map[string][]byte
}

// NewCachingLoader builds a loader. A nil client uses http.DefaultClient.
func NewCachingLoader(client *http.Client) *CachingLoader {
	if client == nil {
		client = http.DefaultClient
	}
	return &CachingLoader{
		client: client,
		cache:  map[string][]byte{},
	}
}

// Fetch returns the content at url.
func (l *CachingLoader) Fetch(ctx context.Context, url string) ([]byte, error) {
	l.mu.RLock()
	data, ok := l.cache[url]
	l.mu.RUnlock()
	if ok {
		return data, nil
	}
	v, err, _ := l.group.Do(url, func() (any, error) {
		data, err := l.fetch(ctx, url)
		if err != nil {
			return nil, err
		}
		l.mu.Lock()
		l.cache[url] = data
		l.mu.Unlock()
		return data, nil
	})
	if err != nil {
		return nil, err
	}
	return v.([]byte), nil
}

func (l *CachingLoader) fetch(ctx context.Context, url string) ([]byte, error) {
	if !strings.HasPrefix(url, "http://") && !strings.HasPrefix(url, "https://") {
		data, err := os.ReadFile(strings.TrimPrefix(url, "file://"))
		if err != nil {
			return nil, fmt.Errorf("freeboard: read resource %s: %w", url, err)
		}
		return data, nil
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, fmt.Errorf("freeboard: build request %s: %w", url, err)
	}
	resp, err := l.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("freeboard: fetch %s: %w", url, err)
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("freeboard: fetch %s: unexpected status %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("freeboard: read %s: %w", url, err)
	}
	return data, nil
}

// ManifestSourceLoader treats plugin sources as manifest documents and
// registers their plugins into a Registry. Each source is loaded once.
type ManifestSourceLoader struct {
	registry *Registry
	fetcher  ResourceLoader

	mu     sync.Mutex
	loaded map[string]struct{}
}

// NewManifestSourceLoader builds a loader bound to registry.
func NewManifestSourceLoader(registry *Registry, fetcher ResourceLoader) *ManifestSourceLoader {
	if fetcher == nil {
		fetcher = NewCachingLoader(nil)
	}
	return &ManifestSourceLoader{
		registry: registry,
		fetcher:  fetcher,
		loaded:   map[string]struct{}{},
	}
}

// LoadPluginSource fetches url, decodes it as a manifest and registers it.
func (l *ManifestSourceLoader) LoadPluginSource(ctx context.Context, url string) error {
	l.mu.Lock()
	if _, ok := l.loaded[url]; ok {
		l.mu.Unlock()
		return nil
	}
	l.mu.Unlock()

	data, err := l.fetcher.Fetch(ctx, url)
	if err != nil {
		return err
	}
	doc, err := DecodeManifestBytes(url, data)
	if err != nil {
		return fmt.Errorf("freeboard: plugin source %s: %w", url, err)
	}
	if err := l.registry.LoadManifestDocument(doc); err != nil {
		return err
	}
	l.mu.Lock()
	l.loaded[url] = struct{}{}
	l.mu.Unlock()
	return nil
}

type noopPluginSourceLoader struct{}

func (noopPluginSourceLoader) LoadPluginSource(context.Context, string) error { return nil }
