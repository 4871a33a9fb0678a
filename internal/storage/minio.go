package storage

import (
	"bytes"
	"context"
	"fmt"
	"io"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"

	"github.com/estately/priceuq/internal/config"
	"github.com/estately/priceuq/internal/pkg/circuitbreaker"
	apperrors "github.com/estately/priceuq/internal/pkg/errors"
	"github.com/estately/priceuq/internal/pkg/metrics"
)

// MinIOStore is an ArtifactStore backed by one MinIO bucket
type MinIOStore struct {
	client  *minio.Client
	bucket  string
	breaker *circuitbreaker.CircuitBreaker
}

// NewMinIOClient connects to MinIO and creates the bucket if needed
func NewMinIOClient(ctx context.Context, cfg config.MinIOConfig) (*minio.Client, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create minio client: %w", err)
	}

	exists, err := client.BucketExists(ctx, cfg.Bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		if err := client.MakeBucket(ctx, cfg.Bucket, minio.MakeBucketOptions{}); err != nil {
			return nil, fmt.Errorf("failed to create bucket: %w", err)
		}
	}

	return client, nil
}

// NewMinIOStore wraps client, guarding every call with a circuit breaker
func NewMinIOStore(client *minio.Client, bucket string) *MinIOStore {
	cfg := circuitbreaker.DefaultConfig("minio")
	cfg.OnStateChange = func(name string, _, to circuitbreaker.State) {
		metrics.RecordBreakerState(name, int(to))
	}
	return &MinIOStore{client: client, bucket: bucket, breaker: circuitbreaker.New(cfg)}
}

// Put uploads data under key
func (s *MinIOStore) Put(ctx context.Context, key string, data []byte, contentType string) error {
	return s.breaker.Execute(ctx, func() error {
		_, err := s.client.PutObject(ctx, s.bucket, key, bytes.NewReader(data), int64(len(data)),
			minio.PutObjectOptions{ContentType: contentType})
		if err != nil {
			return fmt.Errorf("failed to upload %s: %w", key, err)
		}
		return nil
	})
}

// Get downloads the object at key; a missing key is NotFound
func (s *MinIOStore) Get(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.breaker.Execute(ctx, func() error {
		obj, err := s.client.GetObject(ctx, s.bucket, key, minio.GetObjectOptions{})
		if err != nil {
			return fmt.Errorf("failed to open %s: %w", key, err)
		}
		defer obj.Close()

		data, err = io.ReadAll(obj)
		if err != nil {
			if isNoSuchKey(err) {
				return nil
			}
			return fmt.Errorf("failed to read %s: %w", key, err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, apperrors.NotFound("artifact " + key)
	}
	return data, nil
}

// Copy duplicates src to dst inside the bucket
func (s *MinIOStore) Copy(ctx context.Context, src, dst string) error {
	err := s.breaker.Execute(ctx, func() error {
		_, err := s.client.CopyObject(ctx,
			minio.CopyDestOptions{Bucket: s.bucket, Object: dst},
			minio.CopySrcOptions{Bucket: s.bucket, Object: src},
		)
		if err != nil && !isNoSuchKey(err) {
			return fmt.Errorf("failed to copy %s to %s: %w", src, dst, err)
		}
		if err != nil {
			return apperrors.NotFound("artifact " + src)
		}
		return nil
	})
	return err
}

// Ping checks the bucket is reachable
func (s *MinIOStore) Ping(ctx context.Context) error {
	_, err := s.client.BucketExists(ctx, s.bucket)
	return err
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}
