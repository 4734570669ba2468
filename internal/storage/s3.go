// Package storage persists generated artifacts in an S3 compatible bucket.
package storage

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"time"

	"outreach/internal/clients"
	"outreach/internal/config"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	awsmiddleware "github.com/aws/smithy-go/middleware"
)

// maxPresignLifetime is the longest expiry SigV4 accepts for a presigned URL.
const maxPresignLifetime = 7 * 24 * time.Hour

// BlobStore saves artifacts and hands out signed read URLs for them.
type BlobStore interface {
	Save(ctx context.Context, path string, data []byte, contentType string) error
	SignedReadURL(ctx context.Context, path string, ttl time.Duration) (string, error)
}

var _ BlobStore = (*S3Store)(nil)

// S3Store implements BlobStore on one bucket.
type S3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
}

func NewS3Store(client *s3.Client, bucket string) *S3Store {
	return &S3Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
	}
}

// NewS3Client builds a path-style client for the configured endpoint, which is what
// Supabase and MinIO expect.
func NewS3Client(ctx context.Context, cfg *config.Config) (*s3.Client, error) {
	if !cfg.BlobStoreEnabled() {
		return nil, errors.New("S3 bucket and credentials are not configured")
	}
	s3Config, err := awsconfig.LoadDefaultConfig(ctx,
		awsconfig.WithRegion(cfg.S3Region),
		awsconfig.WithCredentialsProvider(credentials.NewStaticCredentialsProvider(cfg.S3AccessKey, cfg.S3SecretKey, "")),
		awsconfig.WithAPIOptions([]func(*awsmiddleware.Stack) error{removeDisableGzip()}),
	)
	if err != nil {
		return nil, fmt.Errorf("loading S3 config: %w", err)
	}
	return s3.NewFromConfig(s3Config, func(o *s3.Options) {
		if cfg.S3URL != "" {
			o.BaseEndpoint = aws.String(cfg.S3URL)
		}
		o.UsePathStyle = true
	}), nil
}

func (s *S3Store) Save(ctx context.Context, path string, data []byte, contentType string) error {
	_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
		Bucket:        aws.String(s.bucket),
		Key:           aws.String(path),
		Body:          bytes.NewReader(data),
		ContentType:   aws.String(contentType),
		ContentLength: aws.Int64(int64(len(data))),
	})
	if err != nil {
		return fmt.Errorf("uploading %s: %w", path, err)
	}
	return nil
}

// SignedReadURL presigns a GET for path. ttl is clamped to the SigV4 maximum.
func (s *S3Store) SignedReadURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	if ttl <= 0 || ttl > maxPresignLifetime {
		ttl = maxPresignLifetime
	}
	resp, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(path),
	}, s3.WithPresignExpires(ttl))
	if err != nil {
		return "", fmt.Errorf("presigning %s: %w", path, err)
	}
	return resp.URL, nil
}

// removeDisableGzip is a workaround for S3 signature errors with some S3-compatible services.
// See: https://github.com/supabase/storage/issues/577
func removeDisableGzip() func(*awsmiddleware.Stack) error {
	return func(stack *awsmiddleware.Stack) error {
		// Presigning inspects the stack too, so only remove the step when present.
		if _, ok := stack.Finalize.Get("DisableAcceptEncodingGzip"); ok {
			_, err := stack.Finalize.Remove("DisableAcceptEncodingGzip")
			return err
		}
		return nil
	}
}

// LazyS3Store builds its S3 client on the first save.
type LazyS3Store struct {
	store *clients.Lazy[*S3Store]
}

var _ BlobStore = (*LazyS3Store)(nil)

func NewLazyS3Store(cfg *config.Config) *LazyS3Store {
	return &LazyS3Store{store: clients.NewLazy("s3", func(ctx context.Context) (*S3Store, error) {
		client, err := NewS3Client(ctx, cfg)
		if err != nil {
			return nil, err
		}
		return NewS3Store(client, cfg.S3Bucket), nil
	})}
}

func (l *LazyS3Store) Save(ctx context.Context, path string, data []byte, contentType string) error {
	s, err := l.store.GetOrCreate(ctx)
	if err != nil {
		return err
	}
	return s.Save(ctx, path, data, contentType)
}

func (l *LazyS3Store) SignedReadURL(ctx context.Context, path string, ttl time.Duration) (string, error) {
	s, err := l.store.GetOrCreate(ctx)
	if err != nil {
		return "", err
	}
	return s.SignedReadURL(ctx, path, ttl)
}
