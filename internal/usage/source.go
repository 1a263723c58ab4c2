package usage

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"sync"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultCacheTTL matches the catalog's upstream refresh cadence.
	DefaultCacheTTL = 24 * time.Hour

	catalogCacheFilename = "model-catalog.json"
	maxCatalogBytes      = 32 << 20
)

// CatalogSource fetches the remote model catalog, caching it in memory and
// on disk for TTL. Failures fall back to the last good copy and finally to
// DefaultCatalog, so Get never fails.
type CatalogSource struct {
	URL      string
	TTL      time.Duration
	CacheDir string
	Client   *http.Client

	logger *zap.Logger
	now    func() time.Time

	mu        sync.Mutex
	catalog   *Catalog
	fetchedAt time.Time
}

// NewCatalogSource creates a source. An empty url disables fetching.
func NewCatalogSource(url, cacheDir string, ttl time.Duration, logger *zap.Logger) *CatalogSource {
	if ttl <= 0 {
		ttl = DefaultCacheTTL
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CatalogSource{
		URL:      url,
		TTL:      ttl,
		CacheDir: cacheDir,
		Client:   &http.Client{Timeout: 15 * time.Second},
		logger:   logger,
		now:      time.Now,
	}
}

// Get returns the freshest catalog available.
func (s *CatalogSource) Get(ctx context.Context) *Catalog {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now()
	if s.catalog != nil && now.Sub(s.fetchedAt) < s.TTL {
		return s.catalog
	}

	if cat, modTime, err := s.readDisk(); err == nil && now.Sub(modTime) < s.TTL {
		s.catalog, s.fetchedAt = cat, modTime
		return cat
	}

	if s.URL != "" {
		data, err := s.fetch(ctx)
		if err == nil {
			var cat *Catalog
			cat, err = ParseCatalog(data)
			if err == nil {
				s.catalog, s.fetchedAt = cat, now
				if werr := s.writeDisk(data); werr != nil {
					s.logger.Warn("catalog cache write failed", zap.Error(werr))
				}
				return cat
			}
		}
		s.logger.Warn("catalog fetch failed, using default catalog", zap.String("url", s.URL), zap.Error(err))
	}

	if s.catalog != nil {
		return s.catalog
	}
	// A stale disk copy beats the built-in one.
	if cat, _, err := s.readDisk(); err == nil {
		return cat
	}
	return DefaultCatalog()
}

func (s *CatalogSource) fetch(ctx context.Context) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.URL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	resp, err := s.Client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("unexpected status %s", resp.Status)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxCatalogBytes))
}

func (s *CatalogSource) cachePath() string {
	if s.CacheDir == "" {
		return ""
	}
	return filepath.Join(s.CacheDir, catalogCacheFilename)
}

func (s *CatalogSource) readDisk() (*Catalog, time.Time, error) {
	path := s.cachePath()
	if path == "" {
		return nil, time.Time{}, os.ErrNotExist
	}
	info, err := os.Stat(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, time.Time{}, err
	}
	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, time.Time{}, err
	}
	return cat, info.ModTime(), nil
}

func (s *CatalogSource) writeDisk(data []byte) error {
	if s.CacheDir == "" {
		return nil
	}
	if err := os.MkdirAll(s.CacheDir, 0o755); err != nil {
		return err
	}
	// Atomic write via temp file + rename
	tmp, err := os.CreateTemp(s.CacheDir, "model-catalog-*.tmp")
	if err != nil {
		return err
	}
	defer os.Remove(tmp.Name())
	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	return os.Rename(tmp.Name(), s.cachePath())
}
