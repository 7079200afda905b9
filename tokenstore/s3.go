package tokenstore

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
)

// S3Config holds connection settings for an S3-compatible endpoint.
type S3Config struct {
	Endpoint  string
	Bucket    string
	AccessKey string
	SecretKey string
	UseSSL    bool
	Prefix    string
}

// S3 stores one JSON object per key. Expiry is checked on read.
type S3 struct {
	client *minio.Client
	bucket string
	prefix string
	now    func() time.Time
}

// NewS3 creates a store backed by an S3-compatible bucket.
func NewS3(cfg S3Config) (*S3, error) {
	client, err := minio.New(cfg.Endpoint, &minio.Options{
		Creds:  credentials.NewStaticV4(cfg.AccessKey, cfg.SecretKey, ""),
		Secure: cfg.UseSSL,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create MinIO client: %w", err)
	}

	return &S3{
		client: client,
		bucket: cfg.Bucket,
		prefix: strings.Trim(cfg.Prefix, "/"),
		now:    time.Now,
	}, nil
}

func (s *S3) objectKey(key string) string {
	if s.prefix == "" {
		return key + ".json"
	}
	return s.prefix + "/" + key + ".json"
}

func isNoSuchKey(err error) bool {
	return minio.ToErrorResponse(err).Code == "NoSuchKey"
}

// Get returns the value stored under key, or ErrNotFound when it is absent or expired.
func (s *S3) Get(ctx context.Context, key string) ([]byte, error) {
	object, err := s.client.GetObject(ctx, s.bucket, s.objectKey(key), minio.GetObjectOptions{})
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get token state from S3: %w", err)
	}
	defer func() { _ = object.Close() }()

	// GetObject is lazy; a missing key surfaces on first read.
	data, err := io.ReadAll(object)
	if err != nil {
		if isNoSuchKey(err) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to read token state: %w", err)
	}

	r, err := decodeRecord(data)
	if err != nil {
		return nil, err
	}

	if r.expired(s.now()) {
		_ = s.client.RemoveObject(ctx, s.bucket, s.objectKey(key), minio.RemoveObjectOptions{})
		return nil, ErrNotFound
	}

	return r.Value, nil
}

// Put stores value under key. A non-positive ttl keeps it until Forget.
func (s *S3) Put(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	data, err := encodeRecord(newRecord(value, ttl, s.now()))
	if err != nil {
		return err
	}

	_, err = s.client.PutObject(ctx, s.bucket, s.objectKey(key), bytes.NewReader(data), int64(len(data)), minio.PutObjectOptions{
		ContentType: "application/json",
	})
	if err != nil {
		return fmt.Errorf("failed to save token state to S3: %w", err)
	}

	return nil
}

// Forget removes key. Removing an absent key is not an error.
func (s *S3) Forget(ctx context.Context, key string) error {
	err := s.client.RemoveObject(ctx, s.bucket, s.objectKey(key), minio.RemoveObjectOptions{})
	if err != nil && !isNoSuchKey(err) {
		return fmt.Errorf("failed to delete token state from S3: %w", err)
	}
	return nil
}

var _ Store = (*S3)(nil)
