package lode

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/justapithecus/lode/lode"

	"github.com/pithecene-io/buildout/iox"
	"github.com/pithecene-io/buildout/log"
	"github.com/pithecene-io/buildout/manifest"
	"github.com/pithecene-io/buildout/metrics"
	"github.com/pithecene-io/buildout/types"
)

const (
	manifestsRoot = "manifests"
	filesDir      = "files"
	indexName     = "index.json"
)

// Publication describes one published manifest.
type Publication struct {
	Scope        string    `json:"scope"`
	ArtifactType string    `json:"artifact_type"`
	Revision     string    `json:"revision"`
	InvocationID string    `json:"invocation_id,omitempty"`
	PublishedAt  time.Time `json:"published_at"`
	Outputs      int       `json:"outputs"`
	// Files lists every stored file, slash-separated and relative to the
	// manifest directory.
	Files []string `json:"files"`
	Bytes int64    `json:"bytes"`
}

// Key returns the storage prefix of the publication.
func (p *Publication) Key() string {
	return revisionPrefix(p.Scope, p.ArtifactType, p.Revision)
}

// ManifestStore publishes and fetches manifests over a lode store.
type ManifestStore struct {
	store        lode.Store
	invocationID string
	logger       *log.Logger
	metrics      *metrics.Collector
}

// StoreOption configures a ManifestStore.
type StoreOption func(*ManifestStore)

// WithLogger sets the logger.
func WithLogger(l *log.Logger) StoreOption {
	return func(s *ManifestStore) { s.logger = l }
}

// WithMetrics sets the metrics collector.
func WithMetrics(c *metrics.Collector) StoreOption {
	return func(s *ManifestStore) { s.metrics = c }
}

// WithInvocationID records the build invocation on every publication.
func WithInvocationID(id string) StoreOption {
	return func(s *ManifestStore) { s.invocationID = id }
}

// NewManifestStore creates a manifest store on the store made by factory.
// Use lode.NewMemoryFactory() for testing.
func NewManifestStore(factory lode.StoreFactory, opts ...StoreOption) (*ManifestStore, error) {
	store, err := factory()
	if err != nil {
		return nil, wrap("init", "", err)
	}
	s := &ManifestStore{store: store}
	for _, opt := range opts {
		opt(s)
	}
	return s, nil
}

func typePrefix(scope, artifactType string) string {
	return path.Join(manifestsRoot, scope, artifactType) + "/"
}

func revisionPrefix(scope, artifactType, revision string) string {
	return path.Join(manifestsRoot, scope, artifactType, revision) + "/"
}

// Publish stores the outputs of type t recorded in dir/output.json and
// every file they reference, as a new revision.
func (s *ManifestStore) Publish(ctx context.Context, scope string, t types.ArtifactType, dir string) (*Publication, error) {
	pub, err := s.publish(ctx, scope, t, dir)
	if err != nil {
		s.metrics.IncStorePublishFailure()
		s.logger.Error("manifest publish failed", map[string]any{
			"scope":         scope,
			"artifact_type": t.Name,
			"error":         err.Error(),
		})
		return nil, err
	}
	s.metrics.IncStorePublishSuccess()
	s.logger.Info("manifest published", map[string]any{
		"scope":         scope,
		"artifact_type": t.Name,
		"revision":      pub.Revision,
		"files":         len(pub.Files),
		"bytes":         pub.Bytes,
	})
	return pub, nil
}

func (s *ManifestStore) publish(ctx context.Context, scope string, t types.ArtifactType, dir string) (*Publication, error) {
	elements, err := manifest.From(t, manifest.Dir(dir), manifest.Strict())
	if err != nil {
		return nil, err
	}
	if elements.IsEmpty() {
		return nil, fmt.Errorf("no %s outputs in %s", t.Name, dir)
	}
	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}

	revision, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("generate revision: %w", err)
	}
	pub := &Publication{
		Scope:        scope,
		ArtifactType: t.Name,
		Revision:     revision.String(),
		InvocationID: s.invocationID,
		PublishedAt:  time.Now().UTC(),
		Outputs:      elements.Len(),
	}
	prefix := pub.Key()

	for _, o := range elements.Outputs() {
		if !within(absDir, o.Path) {
			return nil, fmt.Errorf("%s: %w", o.Path, ErrOutsideManifestDir)
		}
		err = filepath.WalkDir(o.Path, func(p string, d fs.DirEntry, err error) error {
			if err != nil {
				return err
			}
			if d.IsDir() {
				return nil
			}
			fileRel, err := filepath.Rel(absDir, p)
			if err != nil {
				return err
			}
			if fileRel == manifest.FileName {
				return nil
			}
			n, err := s.putFile(ctx, prefix+filesDir+"/"+filepath.ToSlash(fileRel), p)
			if err != nil {
				return err
			}
			pub.Files = append(pub.Files, filepath.ToSlash(fileRel))
			pub.Bytes += n
			return nil
		})
		if err != nil {
			return nil, err
		}
	}

	data, err := manifest.Encode(elements, absDir)
	if err != nil {
		return nil, err
	}
	if err := s.put(ctx, prefix+manifest.FileName, data); err != nil {
		return nil, err
	}

	// The index is written last: a revision without one is incomplete and
	// never selected by Fetch.
	index, err := json.Marshal(pub)
	if err != nil {
		return nil, err
	}
	if err := s.put(ctx, prefix+indexName, index); err != nil {
		return nil, err
	}
	return pub, nil
}

func (s *ManifestStore) put(ctx context.Context, key string, data []byte) error {
	return wrap("put", key, s.store.Put(ctx, key, bytes.NewReader(data)))
}

func (s *ManifestStore) putFile(ctx context.Context, key, src string) (int64, error) {
	f, err := os.Open(src)
	if err != nil {
		return 0, err
	}
	defer iox.DiscardClose(f)
	info, err := f.Stat()
	if err != nil {
		return 0, err
	}
	if err := s.store.Put(ctx, key, f); err != nil {
		return 0, wrap("put", key, err)
	}
	return info.Size(), nil
}

// Revisions returns the complete revisions of (scope, type), oldest first.
func (s *ManifestStore) Revisions(ctx context.Context, scope string, t types.ArtifactType) ([]string, error) {
	prefix := typePrefix(scope, t.Name)
	keys, err := s.store.List(ctx, prefix)
	if err != nil {
		return nil, wrap("list", prefix, err)
	}

	var revisions []string
	for _, key := range keys {
		rest := strings.TrimPrefix(key, prefix)
		revision, name, ok := strings.Cut(rest, "/")
		if ok && name == indexName {
			revisions = append(revisions, revision)
		}
	}
	slices.Sort(revisions)
	return slices.Compact(revisions), nil
}

// Fetch downloads a publication of (scope, type) into dir and installs its
// manifest there. An empty revision selects the latest. Fails with an
// error matching ErrNotFound when nothing was published.
func (s *ManifestStore) Fetch(ctx context.Context, scope string, t types.ArtifactType, revision, dir string) (*Publication, error) {
	pub, err := s.fetch(ctx, scope, t, revision, dir)
	if err != nil {
		s.metrics.IncStoreFetchFailure()
		s.logger.Error("manifest fetch failed", map[string]any{
			"scope":         scope,
			"artifact_type": t.Name,
			"revision":      revision,
			"error":         err.Error(),
		})
		return nil, err
	}
	s.metrics.IncStoreFetchSuccess()
	s.logger.Info("manifest fetched", map[string]any{
		"scope":         scope,
		"artifact_type": t.Name,
		"revision":      pub.Revision,
		"dir":           dir,
	})
	return pub, nil
}

func (s *ManifestStore) fetch(ctx context.Context, scope string, t types.ArtifactType, revision, dir string) (*Publication, error) {
	if revision == "" {
		revisions, err := s.Revisions(ctx, scope, t)
		if err != nil {
			return nil, err
		}
		if len(revisions) == 0 {
			return nil, &StorageError{
				Kind: ErrNotFound,
				Op:   "get",
				Path: typePrefix(scope, t.Name),
				Err:  fmt.Errorf("no %s manifest published for %s", t.Name, scope),
			}
		}
		revision = revisions[len(revisions)-1]
	}
	prefix := revisionPrefix(scope, t.Name, revision)

	indexData, err := s.get(ctx, prefix+indexName)
	if err != nil {
		return nil, err
	}
	var pub Publication
	if err := json.Unmarshal(indexData, &pub); err != nil {
		return nil, fmt.Errorf("invalid publication index %s: %w", prefix, err)
	}

	absDir, err := filepath.Abs(dir)
	if err != nil {
		return nil, err
	}
	data, err := s.get(ctx, prefix+manifest.FileName)
	if err != nil {
		return nil, err
	}
	elements, err := manifest.Decode(data, absDir)
	if err != nil {
		return nil, err
	}

	// Everything is checked before the first write into dir.
	targets := make([]string, len(pub.Files))
	for i, rel := range pub.Files {
		target := filepath.Join(absDir, filepath.FromSlash(rel))
		if filepath.IsAbs(filepath.FromSlash(rel)) || !within(absDir, target) || target == absDir {
			return nil, fmt.Errorf("%s: stored file %q: %w", prefix, rel, ErrOutsideManifestDir)
		}
		targets[i] = target
	}
	for _, o := range elements.Outputs() {
		if !within(absDir, o.Path) {
			return nil, fmt.Errorf("%s: %s: %w", prefix, o.Path, ErrOutsideManifestDir)
		}
	}

	for i, rel := range pub.Files {
		if err := s.getFile(ctx, prefix+filesDir+"/"+rel, targets[i]); err != nil {
			return nil, err
		}
	}
	if err := elements.Save(dir); err != nil {
		return nil, err
	}
	return &pub, nil
}

// within reports whether p is dir or lies below it. Both must be absolute.
func within(dir, p string) bool {
	rel, err := filepath.Rel(dir, p)
	if err != nil {
		return false
	}
	return rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator))
}

func (s *ManifestStore) get(ctx context.Context, key string) ([]byte, error) {
	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return nil, wrap("get", key, err)
	}
	defer iox.DiscardClose(rc)
	data, err := io.ReadAll(rc)
	if err != nil {
		return nil, wrap("get", key, err)
	}
	return data, nil
}

func (s *ManifestStore) getFile(ctx context.Context, key, target string) error {
	rc, err := s.store.Get(ctx, key)
	if err != nil {
		return wrap("get", key, err)
	}
	defer iox.DiscardClose(rc)

	if err := os.MkdirAll(filepath.Dir(target), 0o755); err != nil {
		return err
	}
	f, err := os.Create(target)
	if err != nil {
		return err
	}
	if _, err := io.Copy(f, rc); err != nil {
		_ = f.Close()
		return wrap("get", key, err)
	}
	return f.Close()
}
