package export

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path"
	"path/filepath"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/cenkalti/backoff/v5"

	"github.com/sentimetry/pipeline/internal/metrics"
)

type S3Config struct {
	Logger *slog.Logger
	Region string
	Bucket string
	// KeyPrefix is prepended to every uploaded object key.
	KeyPrefix string
	// AccessKeyID and SecretAccessKey override the default credential chain
	// when set.
	AccessKeyID     string
	SecretAccessKey string
	// EndpointURL points the client at an S3-compatible service such as
	// MinIO; path-style addressing is forced when set.
	EndpointURL string

	MaxAttempts uint
}

func (cfg *S3Config) Validate() error {
	if cfg.Logger == nil {
		return errors.New("logger is required")
	}
	if cfg.Bucket == "" {
		return errors.New("bucket is required")
	}
	if cfg.Region == "" {
		return errors.New("region is required")
	}
	if cfg.MaxAttempts == 0 {
		cfg.MaxAttempts = 5
	}
	return nil
}

// S3Uploader pushes exported files to an S3 bucket.
type S3Uploader struct {
	log    *slog.Logger
	cfg    S3Config
	client *s3.Client
}

func NewS3Uploader(ctx context.Context, cfg S3Config) (*S3Uploader, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("failed to validate config: %w", err)
	}

	loadOpts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(cfg.Region),
	}
	if cfg.AccessKeyID != "" {
		loadOpts = append(loadOpts, awsconfig.WithCredentialsProvider(
			credentials.NewStaticCredentialsProvider(cfg.AccessKeyID, cfg.SecretAccessKey, ""),
		))
	}
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, loadOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	var client *s3.Client
	if cfg.EndpointURL != "" {
		client = s3.NewFromConfig(awsCfg, func(o *s3.Options) {
			o.BaseEndpoint = aws.String(cfg.EndpointURL)
			o.UsePathStyle = true
		})
	} else {
		client = s3.NewFromConfig(awsCfg)
	}

	return &S3Uploader{log: cfg.Logger, cfg: cfg, client: client}, nil
}

// Upload puts each file into the bucket under KeyPrefix/basename.
func (u *S3Uploader) Upload(ctx context.Context, paths []string) error {
	for _, p := range paths {
		if err := u.uploadFile(ctx, p); err != nil {
			metrics.ExportRunsTotal.WithLabelValues("s3", "error").Inc()
			return err
		}
	}
	metrics.ExportRunsTotal.WithLabelValues("s3", "success").Inc()
	u.log.Info("export: uploaded files to s3", "bucket", u.cfg.Bucket, "count", len(paths))
	return nil
}

func (u *S3Uploader) uploadFile(ctx context.Context, filePath string) error {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filePath, err)
	}
	key := path.Join(u.cfg.KeyPrefix, filepath.Base(filePath))

	attempt := 0
	_, err = backoff.Retry(ctx, func() (struct{}, error) {
		if attempt > 1 {
			u.log.Warn("export: s3 upload failed, retrying", "key", key, "attempt", attempt)
		}
		attempt++
		_, err := u.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket: aws.String(u.cfg.Bucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader(data),
		})
		return struct{}{}, err
	}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(u.cfg.MaxAttempts))
	if err != nil {
		return fmt.Errorf("failed to upload %s: %w", key, err)
	}

	u.log.Debug("export: uploaded file", "bucket", u.cfg.Bucket, "key", key, "bytes", len(data))
	return nil
}
