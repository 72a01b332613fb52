package artifacts

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/aws/aws-sdk-go-v2/service/s3/types"
	"github.com/aws/smithy-go"
)

// S3API is the subset of the S3 client used by S3Store.
type S3API interface {
	HeadObject(ctx context.Context, in *s3.HeadObjectInput, optFns ...func(*s3.Options)) (*s3.HeadObjectOutput, error)
	PutObject(ctx context.Context, in *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Store implements Store using AWS S3 (or any S3-compatible endpoint).
// Keys follow the sharded layout under an optional prefix.
type S3Store struct {
	client S3API
	bucket string
	prefix string // Optional key prefix (e.g., "artifacts/")
}

// S3StoreConfig holds configuration for S3Store.
type S3StoreConfig struct {
	Bucket   string `yaml:"bucket"`
	Region   string `yaml:"region"`
	Endpoint string `yaml:"endpoint"` // Optional custom endpoint (for MinIO, LocalStack, etc.)
	Prefix   string `yaml:"prefix"`   // Optional key prefix
}

// NewS3Store creates a new S3-backed artifact store.
func NewS3Store(ctx context.Context, cfg S3StoreConfig) (*S3Store, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("s3 store requires a bucket")
	}
	awsCfg, err := config.LoadDefaultConfig(ctx, config.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	clientOpts := func(o *s3.Options) {
		if cfg.Endpoint != "" {
			o.BaseEndpoint = aws.String(cfg.Endpoint)
			o.UsePathStyle = true // Required for MinIO/LocalStack
		}
	}

	return NewS3StoreWithClient(s3.NewFromConfig(awsCfg, clientOpts), cfg.Bucket, cfg.Prefix), nil
}

// NewS3StoreWithClient wraps an existing client.
func NewS3StoreWithClient(client S3API, bucket, prefix string) *S3Store {
	return &S3Store{client: client, bucket: bucket, prefix: prefix}
}

func (s *S3Store) location(key string) string {
	return "s3://" + s.bucket + "/" + key
}

func (s *S3Store) keyFor(location string) (string, error) {
	want := "s3://" + s.bucket + "/" + s.prefix
	if !strings.HasPrefix(location, want) || !validObjectKey(strings.TrimPrefix(location, want)) {
		return "", fmt.Errorf("%w: %s", ErrInvalidLocation, location)
	}
	return strings.TrimPrefix(location, "s3://"+s.bucket+"/"), nil
}

func (s *S3Store) StoreBytes(ctx context.Context, data []byte) (string, error) {
	key := s.prefix + ObjectKey(Digest(data))
	loc := s.location(key)

	_, err := s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return loc, nil
	}
	if !isS3NotFound(err) {
		return "", fmt.Errorf("s3 head failed: %w", err)
	}

	// If-None-Match makes the put a create-if-absent; losing the race is fine.
	_, err = s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:      aws.String(s.bucket),
		Key:         aws.String(key),
		Body:        bytes.NewReader(data),
		ContentType: aws.String("application/octet-stream"),
		IfNoneMatch: aws.String("*"),
	})
	if err != nil {
		if isS3Conflict(err) {
			return loc, nil
		}
		return "", fmt.Errorf("s3 put failed: %w", err)
	}
	return loc, nil
}

func (s *S3Store) ReadBytes(ctx context.Context, location string) ([]byte, error) {
	return s.get(ctx, location, "")
}

func (s *S3Store) ReadHead(ctx context.Context, location string, limit int) ([]byte, error) {
	if limit <= 0 {
		if _, err := s.keyFor(location); err != nil {
			return nil, err
		}
		return []byte{}, nil
	}
	return s.get(ctx, location, fmt.Sprintf("bytes=0-%d", limit-1))
}

func (s *S3Store) get(ctx context.Context, location, rangeHeader string) ([]byte, error) {
	key, err := s.keyFor(location)
	if err != nil {
		return nil, err
	}
	in := &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}
	if rangeHeader != "" {
		in.Range = aws.String(rangeHeader)
	}
	result, err := s.client.GetObject(ctx, in)
	if err != nil {
		if isS3NotFound(err) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, location)
		}
		// A range request against an empty object is unsatisfiable.
		if rangeHeader != "" && apiErrorCode(err) == "InvalidRange" {
			return []byte{}, nil
		}
		return nil, fmt.Errorf("s3 get failed for %s: %w", location, err)
	}
	defer func() { _ = result.Body.Close() }()

	return io.ReadAll(result.Body)
}

func (s *S3Store) Exists(ctx context.Context, location string) (bool, error) {
	key, err := s.keyFor(location)
	if err != nil {
		return false, err
	}
	_, err = s.client.HeadObject(ctx, &s3.HeadObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if isS3NotFound(err) {
		return false, nil
	}
	return false, fmt.Errorf("s3 head failed: %w", err)
}

func apiErrorCode(err error) string {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		return apiErr.ErrorCode()
	}
	return ""
}

func isS3NotFound(err error) bool {
	var nsk *types.NoSuchKey
	var nf *types.NotFound
	if errors.As(err, &nsk) || errors.As(err, &nf) {
		return true
	}
	code := apiErrorCode(err)
	return code == "NotFound" || code == "NoSuchKey"
}

func isS3Conflict(err error) bool {
	code := apiErrorCode(err)
	return code == "PreconditionFailed" || code == "ConditionalRequestConflict"
}
