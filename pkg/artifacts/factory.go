package artifacts

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
)

// StoreType represents the type of artifact storage backend.
type StoreType string

const (
	StoreTypeFS    StoreType = "fs"
	StoreTypeS3    StoreType = "s3"
	StoreTypeGCS   StoreType = "gcs"
	StoreTypeRedis StoreType = "redis"
)

// GCSStoreConfig holds configuration for GCSStore.
type GCSStoreConfig struct {
	Bucket string `yaml:"bucket"`
	Prefix string `yaml:"prefix"` // Optional key prefix
}

// StoreConfig selects and configures a storage backend.
type StoreConfig struct {
	Type    StoreType        `yaml:"type"`
	DataDir string           `yaml:"data_dir"`
	S3      S3StoreConfig    `yaml:"s3"`
	GCS     GCSStoreConfig   `yaml:"gcs"`
	Redis   RedisStoreConfig `yaml:"redis"`
}

// StoreConfigFromEnv reads the storage configuration from the environment.
//
// Environment variables:
//   - ARTIFACT_STORAGE_TYPE: "fs" (default), "s3", "gcs" or "redis"
//   - DATA_DIR: Base directory for filesystem store (default: "data")
//
// For S3:
//   - AWS_REGION or ARTIFACT_S3_REGION
//   - ARTIFACT_S3_BUCKET (required)
//   - ARTIFACT_S3_ENDPOINT (optional, for MinIO/LocalStack)
//   - ARTIFACT_S3_PREFIX (optional)
//
// For GCS:
//   - ARTIFACT_GCS_BUCKET (required)
//   - ARTIFACT_GCS_PREFIX (optional)
//
// For Redis:
//   - ARTIFACT_REDIS_URL (default: redis://localhost:6379)
//   - ARTIFACT_REDIS_PREFIX (optional)
func StoreConfigFromEnv() StoreConfig {
	cfg := StoreConfig{
		Type:    StoreType(os.Getenv("ARTIFACT_STORAGE_TYPE")),
		DataDir: os.Getenv("DATA_DIR"),
		S3: S3StoreConfig{
			Bucket:   os.Getenv("ARTIFACT_S3_BUCKET"),
			Region:   os.Getenv("ARTIFACT_S3_REGION"),
			Endpoint: os.Getenv("ARTIFACT_S3_ENDPOINT"),
			Prefix:   os.Getenv("ARTIFACT_S3_PREFIX"),
		},
		GCS: GCSStoreConfig{
			Bucket: os.Getenv("ARTIFACT_GCS_BUCKET"),
			Prefix: os.Getenv("ARTIFACT_GCS_PREFIX"),
		},
		Redis: RedisStoreConfig{
			URL:    os.Getenv("ARTIFACT_REDIS_URL"),
			Prefix: os.Getenv("ARTIFACT_REDIS_PREFIX"),
		},
	}
	if cfg.S3.Region == "" {
		cfg.S3.Region = os.Getenv("AWS_REGION")
	}
	return cfg
}

// NewStoreFromEnv creates an artifact store based on environment variables.
func NewStoreFromEnv(ctx context.Context) (Store, error) {
	return NewStore(ctx, StoreConfigFromEnv())
}

// NewStore creates the artifact store described by cfg.
func NewStore(ctx context.Context, cfg StoreConfig) (Store, error) {
	storeType := cfg.Type
	if storeType == "" {
		storeType = StoreTypeFS
	}

	switch storeType {
	case StoreTypeFS:
		dataDir := cfg.DataDir
		if dataDir == "" {
			dataDir = "data"
		}
		return NewFileStore(filepath.Join(dataDir, "artifacts"))
	case StoreTypeS3:
		if cfg.S3.Bucket == "" {
			return nil, fmt.Errorf("ARTIFACT_S3_BUCKET is required for S3 storage")
		}
		s3cfg := cfg.S3
		if s3cfg.Region == "" {
			s3cfg.Region = "us-east-1"
		}
		return NewS3Store(ctx, s3cfg)
	case StoreTypeGCS:
		return newGCSStore(ctx, cfg.GCS)
	case StoreTypeRedis:
		return NewRedisStore(ctx, cfg.Redis)
	default:
		return nil, fmt.Errorf("unsupported artifact storage type: %s", storeType)
	}
}
