// Package lode publishes build-output manifests, together with the files
// they reference, to a lode store and fetches them back.
//
// A publication lives under manifests/{scope}/{type}/{revision}/. Revisions
// are time-ordered UUIDs, so the latest publication is the greatest
// revision and nothing is ever overwritten. Because manifest paths are
// relative, a fetched manifest is valid in whatever directory it lands in.
package lode

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/justapithecus/lode/lode"
	lodes3 "github.com/justapithecus/lode/lode/s3"
)

// Storage backends.
const (
	BackendFS     = "fs"
	BackendMemory = "memory"
	BackendS3     = "s3"
)

// S3Config holds configuration for the S3 storage backend.
type S3Config struct {
	// Bucket is the S3 bucket name (required).
	Bucket string
	// Prefix is the key prefix within the bucket (optional).
	Prefix string
	// Region is the AWS region (optional, uses default chain if empty).
	Region string
	// Endpoint is a custom endpoint for S3-compatible providers
	// (e.g. Cloudflare R2, MinIO). Empty uses the default AWS endpoint.
	Endpoint string
	// UsePathStyle forces path-style addressing (bucket in path, not subdomain).
	UsePathStyle bool
}

// Validate checks that required S3 configuration is present.
func (c *S3Config) Validate() error {
	if c.Bucket == "" {
		return errors.New("S3 bucket is required")
	}
	return nil
}

// ParseS3Path parses a path in format "bucket/prefix" or "bucket".
func ParseS3Path(path string) (bucket, prefix string) {
	bucket, prefix, _ = strings.Cut(path, "/")
	return bucket, prefix
}

// StoreConfig selects and configures a storage backend.
type StoreConfig struct {
	// Backend is one of "fs", "memory" or "s3".
	Backend string
	// Path is the root directory of the fs backend.
	Path string
	S3   S3Config
}

// NewStoreFactory creates the lode store factory for cfg.
func NewStoreFactory(ctx context.Context, cfg StoreConfig) (lode.StoreFactory, error) {
	switch cfg.Backend {
	case BackendFS, "":
		if cfg.Path == "" {
			return nil, errors.New("fs storage path is required")
		}
		return lode.NewFSFactory(cfg.Path), nil
	case BackendMemory:
		return lode.NewMemoryFactory(), nil
	case BackendS3:
		return newS3Factory(ctx, cfg.S3)
	default:
		return nil, fmt.Errorf("unknown storage backend %q", cfg.Backend)
	}
}

// newS3Factory uses the AWS SDK default credential chain
// (env vars, shared config, IAM role).
func newS3Factory(ctx context.Context, s3cfg S3Config) (lode.StoreFactory, error) {
	if err := s3cfg.Validate(); err != nil {
		return nil, err
	}

	var opts []func(*config.LoadOptions) error
	if s3cfg.Region != "" {
		opts = append(opts, config.WithRegion(s3cfg.Region))
	}
	awsConfig, err := config.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, wrap("init", BackendS3, fmt.Errorf("failed to load AWS config: %w", err))
	}

	var s3Opts []func(*s3.Options)
	if s3cfg.Endpoint != "" {
		endpoint := s3cfg.Endpoint
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.BaseEndpoint = &endpoint
		})
	}
	if s3cfg.UsePathStyle {
		s3Opts = append(s3Opts, func(o *s3.Options) {
			o.UsePathStyle = true
		})
	}
	client := s3.NewFromConfig(awsConfig, s3Opts...)

	return func() (lode.Store, error) {
		return lodes3.New(client, lodes3.Config{
			Bucket: s3cfg.Bucket,
			Prefix: s3cfg.Prefix,
		})
	}, nil
}
