package storage

import (
	"bytes"
	"context"
	"fmt"
	"log/slog"
	"path"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awscfg "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/s3"
)

const (
	initialBackoff = 200 * time.Millisecond
	maxBackoff     = 2 * time.Second
)

// PutObjectAPI is the subset of the S3 client used by S3Store.
type PutObjectAPI interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Config configures an S3Store.
type S3Config struct {
	Bucket  string
	Prefix  string
	Region  string
	Timeout time.Duration
	Retries int
}

// S3Store uploads artifacts with PutObject, retrying with exponential backoff.
type S3Store struct {
	client  PutObjectAPI
	cfg     S3Config
	backoff time.Duration
	logger  *slog.Logger
}

// NewS3Store loads the default AWS credential chain for cfg.Region. SDK-level
// retries are disabled; the store applies its own.
func NewS3Store(ctx context.Context, cfg S3Config, logger *slog.Logger) (*S3Store, error) {
	awsCfg, err := awscfg.LoadDefaultConfig(ctx, awscfg.WithRegion(cfg.Region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 1
	})
	return NewS3StoreWithClient(client, cfg, logger), nil
}

// NewS3StoreWithClient creates an S3Store around an existing client.
func NewS3StoreWithClient(client PutObjectAPI, cfg S3Config, logger *slog.Logger) *S3Store {
	if cfg.Retries < 1 {
		cfg.Retries = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &S3Store{client: client, cfg: cfg, backoff: initialBackoff, logger: logger}
}

func (s *S3Store) Put(ctx context.Context, name string, data []byte) error {
	key := s.key(name)
	backoff := s.backoff
	var lastErr error

	for attempt := 1; attempt <= s.cfg.Retries; attempt++ {
		if err := ctx.Err(); err != nil {
			return err
		}

		err := s.putObject(ctx, key, data)
		if err == nil {
			return nil
		}
		lastErr = err
		s.logger.Warn("s3 put failed", "key", key, "attempt", attempt, "error", err)

		if attempt == s.cfg.Retries {
			break
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(backoff):
			backoff = min(backoff*2, maxBackoff)
		}
	}
	return fmt.Errorf("put s3://%s/%s after %d attempts: %w", s.cfg.Bucket, key, s.cfg.Retries, lastErr)
}

func (s *S3Store) putObject(ctx context.Context, key string, data []byte) error {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.Timeout)
	defer cancel()

	input := &s3.PutObjectInput{
		Bucket:        aws.String(s.cfg.Bucket),
		Key:           aws.String(key),
		Body:          bytes.NewReader(data),
		ContentLength: aws.Int64(int64(len(data))),
		ContentType:   aws.String("application/json"),
	}
	if strings.HasSuffix(key, ".gz") {
		input.ContentEncoding = aws.String("gzip")
	}
	_, err := s.client.PutObject(ctx, input)
	return err
}

func (s *S3Store) key(name string) string {
	if s.cfg.Prefix == "" {
		return name
	}
	return path.Join(s.cfg.Prefix, name)
}
