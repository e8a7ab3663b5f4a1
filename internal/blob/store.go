package blob

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"
)

// Store is the object-storage collaborator. Uploads and downloads carry
// bounded retry with exponential backoff internally, so callers see a single
// failure after retries are exhausted.
type Store interface {
	Upload(ctx context.Context, key string, data []byte, contentType string) error
	Download(ctx context.Context, key string) ([]byte, error)
	PresignPut(ctx context.Context, key string) (string, error)
	PresignGet(ctx context.Context, key string) (string, error)
}

// RetryPolicy bounds the store's internal retries.
type RetryPolicy struct {
	MaxRetries     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

type s3Store struct {
	client        *s3.Client
	presignClient *s3.PresignClient
	bucket        string
	retry         RetryPolicy
	logger        zerolog.Logger
}

// NewS3Store creates a Store on the given S3 client and bucket.
func NewS3Store(client *s3.Client, bucket string, retry RetryPolicy, logger zerolog.Logger) Store {
	if retry.MaxRetries <= 0 {
		retry.MaxRetries = 3
	}
	if retry.InitialBackoff <= 0 {
		retry.InitialBackoff = time.Second
	}
	if retry.MaxBackoff <= 0 {
		retry.MaxBackoff = time.Minute
	}
	return &s3Store{
		client:        client,
		presignClient: s3.NewPresignClient(client),
		bucket:        bucket,
		retry:         retry,
		logger:        logger.With().Str("service", "BlobStore").Logger(),
	}
}

func (s *s3Store) Upload(ctx context.Context, key string, data []byte, contentType string) error {
	return s.withRetry(ctx, "upload", key, func(ctx context.Context) error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:      aws.String(s.bucket),
			Key:         aws.String(key),
			Body:        bytes.NewReader(data),
			ContentType: aws.String(contentType),
		})
		return err
	})
}

func (s *s3Store) Download(ctx context.Context, key string) ([]byte, error) {
	var data []byte
	err := s.withRetry(ctx, "download", key, func(ctx context.Context) error {
		out, err := s.client.GetObject(ctx, &s3.GetObjectInput{
			Bucket: aws.String(s.bucket),
			Key:    aws.String(key),
		})
		if err != nil {
			return err
		}
		defer out.Body.Close()
		data, err = io.ReadAll(out.Body)
		return err
	})
	if err != nil {
		return nil, err
	}
	return data, nil
}

func (s *s3Store) PresignPut(ctx context.Context, key string) (string, error) {
	req, err := s.presignClient.PresignPutObject(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("presigning PUT for %s: %w", key, err)
	}
	return req.URL, nil
}

func (s *s3Store) PresignGet(ctx context.Context, key string) (string, error) {
	req, err := s.presignClient.PresignGetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(key),
	}, s3.WithPresignExpires(15*time.Minute))
	if err != nil {
		return "", fmt.Errorf("presigning GET for %s: %w", key, err)
	}
	return req.URL, nil
}

// withRetry runs op with exponential backoff up to the policy's bound.
func (s *s3Store) withRetry(ctx context.Context, opName, key string, op func(context.Context) error) error {
	backoff := s.retry.InitialBackoff
	var lastErr error
	for attempt := 1; attempt <= s.retry.MaxRetries; attempt++ {
		if err := op(ctx); err == nil {
			return nil
		} else {
			lastErr = err
		}
		if attempt == s.retry.MaxRetries {
			break
		}
		s.logger.Warn().Err(lastErr).Str("key", key).Int("attempt", attempt).
			Msgf("Blob %s failed, retrying", opName)

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > s.retry.MaxBackoff {
			backoff = s.retry.MaxBackoff
		}
	}
	return fmt.Errorf("blob %s for %s exhausted %d attempts: %w", opName, key, s.retry.MaxRetries, lastErr)
}
