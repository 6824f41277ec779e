package manifest

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/pithecene-io/buildout/log"
	"github.com/pithecene-io/buildout/metrics"
	"github.com/pithecene-io/buildout/types"
)

// DefaultCacheSize is the number of decoded manifests a Loader keeps.
const DefaultCacheSize = 128

// Loader reads manifests. With a cache, a manifest whose size and
// modification time are unchanged is not decoded again.
type Loader struct {
	strict  bool
	cache   *lru.Cache[string, cachedManifest]
	logger  *log.Logger
	metrics *metrics.Collector
}

type cachedManifest struct {
	size     int64
	modTime  time.Time
	elements BuildElements
}

// Option configures loading.
type Option func(*Loader)

// Strict makes unreadable manifest files an error instead of an empty
// collection. Missing files are empty either way.
func Strict() Option {
	return func(l *Loader) { l.strict = true }
}

// WithLogger sets the logger.
func WithLogger(logger *log.Logger) Option {
	return func(l *Loader) { l.logger = logger }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(l *Loader) { l.metrics = c }
}

// NewLoader creates a loader caching up to cacheSize decoded manifests.
// A cacheSize of zero disables caching.
func NewLoader(cacheSize int, opts ...Option) (*Loader, error) {
	l := &Loader{}
	for _, opt := range opts {
		opt(l)
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, cachedManifest](cacheSize)
		if err != nil {
			return nil, fmt.Errorf("create manifest cache: %w", err)
		}
		l.cache = cache
	}
	return l, nil
}

// From loads the outputs of artifact type t from src.
func From(t types.ArtifactType, src Source, opts ...Option) (BuildElements, error) {
	l, _ := NewLoader(0, opts...)
	return l.From(t, src)
}

// FromAll loads every output from src regardless of type.
func FromAll(src Source, opts ...Option) (BuildElements, error) {
	l, _ := NewLoader(0, opts...)
	return l.FromAll(src)
}

// From loads the outputs of artifact type t from src.
func (l *Loader) From(t types.ArtifactType, src Source) (BuildElements, error) {
	all, err := l.FromAll(src)
	if err != nil {
		return BuildElements{}, err
	}
	return all.OfType(t), nil
}

// FromAll loads every output from src regardless of type.
func (l *Loader) FromAll(src Source) (BuildElements, error) {
	var result BuildElements
	for _, path := range src.manifestFiles() {
		elements, err := l.loadFile(path)
		if err != nil {
			return BuildElements{}, err
		}
		result = result.Append(elements.outputs...)
	}
	return result, nil
}

func (l *Loader) loadFile(path string) (BuildElements, error) {
	info, err := os.Stat(path)
	if errors.Is(err, fs.ErrNotExist) {
		l.metrics.IncManifestMissing()
		return BuildElements{}, nil
	}
	if err != nil {
		return l.unreadable(path, err)
	}

	key, err := filepath.Abs(path)
	if err != nil {
		key = path
	}
	if l.cache != nil {
		if c, ok := l.cache.Get(key); ok && c.size == info.Size() && c.modTime.Equal(info.ModTime()) {
			l.metrics.IncManifestLoaded()
			return c.elements.clone(), nil
		}
	}

	data, err := os.ReadFile(path)
	if errors.Is(err, fs.ErrNotExist) {
		l.metrics.IncManifestMissing()
		return BuildElements{}, nil
	}
	if err != nil {
		return l.unreadable(path, err)
	}

	elements, err := Decode(data, filepath.Dir(key))
	if err != nil {
		return BuildElements{}, fmt.Errorf("%s: %w", path, err)
	}
	if l.cache != nil {
		l.cache.Add(key, cachedManifest{size: info.Size(), modTime: info.ModTime(), elements: elements.clone()})
	}
	l.metrics.IncManifestLoaded()
	l.logger.Debug("manifest loaded", map[string]any{
		"path":    path,
		"outputs": elements.Len(),
	})
	return elements, nil
}

func (l *Loader) unreadable(path string, err error) (BuildElements, error) {
	if l.strict {
		return BuildElements{}, fmt.Errorf("read manifest %s: %w", path, err)
	}
	l.logger.Warn("unreadable manifest treated as empty", map[string]any{
		"path":  path,
		"error": err.Error(),
	})
	return BuildElements{}, nil
}
