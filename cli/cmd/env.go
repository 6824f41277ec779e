package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/google/uuid"
	"github.com/urfave/cli/v2"

	"github.com/pithecene-io/buildout/cli/config"
	"github.com/pithecene-io/buildout/lode"
	"github.com/pithecene-io/buildout/log"
	"github.com/pithecene-io/buildout/manifest"
	"github.com/pithecene-io/buildout/metrics"
	"github.com/pithecene-io/buildout/types"
)

// Exit codes.
const (
	exitSuccess       = 0
	exitFailure       = 1
	exitConfigError   = 2
	exitStorageFailed = 3
)

// defaultScope is used when neither --scope nor the config names one.
const defaultScope = "main"

// buildEnv is the state shared by the commands of one invocation.
type buildEnv struct {
	cfg     *config.Config
	meta    *types.BuildMeta
	logger  *log.Logger
	metrics *metrics.Collector
}

// newBuildEnv loads the config and derives the invocation identity.
// Config problems exit with exitConfigError.
func newBuildEnv(c *cli.Context) (*buildEnv, error) {
	cfg, err := config.LoadOptional(c.String("config"))
	if err != nil {
		return nil, cli.Exit(err.Error(), exitConfigError)
	}

	scope := firstNonEmpty(c.String("scope"), cfg.Scope, defaultScope)
	id, err := uuid.NewV7()
	if err != nil {
		return nil, fmt.Errorf("failed to create invocation id: %w", err)
	}
	meta := &types.BuildMeta{InvocationID: id.String(), Scope: scope}
	if cfg.Project != "" {
		project := cfg.Project
		meta.Project = &project
	}
	if err := meta.Validate(); err != nil {
		return nil, cli.Exit(fmt.Sprintf("invalid build identity: %v", err), exitConfigError)
	}

	logger := log.NewNop()
	if c.Bool("verbose") {
		logger = log.NewLogger(meta)
	}

	return &buildEnv{
		cfg:     cfg,
		meta:    meta,
		logger:  logger,
		metrics: metrics.NewCollector(scope, workerMode(cfg), storageBackend(cfg), meta.InvocationID),
	}, nil
}

func workerMode(cfg *config.Config) string {
	return firstNonEmpty(cfg.Workers.Mode, config.WorkerModeInProcess)
}

func storageBackend(cfg *config.Config) string {
	return firstNonEmpty(cfg.Storage.Backend, lode.BackendFS)
}

// loader builds a manifest loader from the manifest config section.
func (e *buildEnv) loader(strict bool) (*manifest.Loader, error) {
	size := e.cfg.Manifest.CacheSize
	if size == 0 {
		size = manifest.DefaultCacheSize
	}
	opts := []manifest.Option{
		manifest.WithLogger(e.logger),
		manifest.WithMetrics(e.metrics),
	}
	if strict || e.cfg.Manifest.Strict {
		opts = append(opts, manifest.Strict())
	}
	return manifest.NewLoader(size, opts...)
}

// store opens the manifest store configured in the storage section.
func (e *buildEnv) store(ctx context.Context) (*lode.ManifestStore, error) {
	s := e.cfg.Storage
	storeCfg := lode.StoreConfig{
		Backend: storageBackend(e.cfg),
		Path:    s.Path,
	}
	if storeCfg.Backend == lode.BackendS3 {
		bucket, prefix := lode.ParseS3Path(s.Path)
		storeCfg.S3 = lode.S3Config{
			Bucket:       bucket,
			Prefix:       prefix,
			Region:       s.Region,
			Endpoint:     s.Endpoint,
			UsePathStyle: s.S3PathStyle,
		}
	}

	factory, err := lode.NewStoreFactory(ctx, storeCfg)
	if err != nil {
		return nil, cli.Exit(fmt.Sprintf("storage: %v", err), exitConfigError)
	}
	return lode.NewManifestStore(factory,
		lode.WithLogger(e.logger),
		lode.WithMetrics(e.metrics),
		lode.WithInvocationID(e.meta.InvocationID),
	)
}

// close flushes the logger.
func (e *buildEnv) close() {
	_ = e.logger.Sync()
}

// signalContext returns a context canceled on SIGINT or SIGTERM.
func signalContext(parent context.Context) (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(parent)
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
		case <-ctx.Done():
		}
		signal.Stop(sigCh)
	}()
	return ctx, cancel
}

// lookupType resolves an artifact type name given on the command line.
func lookupType(name string) (types.ArtifactType, error) {
	t, err := types.LookupArtifactTypeName(name)
	if err != nil {
		return types.ArtifactType{}, cli.Exit(err.Error(), exitConfigError)
	}
	return t, nil
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
