package export

import (
	"bytes"
	"context"
	"fmt"
	nethttp "net/http"
	"os"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	awscreds "github.com/aws/aws-sdk-go-v2/credentials"
	"github.com/aws/aws-sdk-go-v2/service/s3"

	"github.com/rvcleanup/rv-cleanup/internal/config"
	"github.com/rvcleanup/rv-cleanup/internal/http"
	"github.com/rvcleanup/rv-cleanup/internal/logging"
)

// Static credentials for S3 exports. When unset the default AWS chain
// (shared config, profile, instance role) is used.
const (
	EnvS3AccessKey    = "RV_CLEANUP_S3_ACCESS_KEY_ID"
	EnvS3SecretKey    = "RV_CLEANUP_S3_SECRET_ACCESS_KEY"
	EnvS3SessionToken = "RV_CLEANUP_S3_SESSION_TOKEN"
)

type s3Putter interface {
	PutObject(ctx context.Context, params *s3.PutObjectInput, optFns ...func(*s3.Options)) (*s3.PutObjectOutput, error)
}

// S3Sink uploads the export as a single object.
type S3Sink struct {
	client s3Putter
	bucket string
	key    string
	retry  http.RetryConfig
	logger *logging.Logger
}

// NewS3Sink loads AWS configuration and creates the sink.
func NewS3Sink(ctx context.Context, ec config.ExportConfig, bucket, key string, httpClient *nethttp.Client, logger *logging.Logger) (*S3Sink, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithHTTPClient(httpClient),
	}
	if ec.S3Region != "" {
		opts = append(opts, awsconfig.WithRegion(ec.S3Region))
	}
	if ec.S3Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(ec.S3Profile))
	}
	if id := os.Getenv(EnvS3AccessKey); id != "" {
		opts = append(opts, awsconfig.WithCredentialsProvider(awscreds.NewStaticCredentialsProvider(
			id,
			os.Getenv(EnvS3SecretKey),
			os.Getenv(EnvS3SessionToken),
		)))
	}

	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("failed to load AWS config: %w", err)
	}

	// ExecuteWithRetry owns retries
	client := s3.NewFromConfig(awsCfg, func(o *s3.Options) {
		o.RetryMaxAttempts = 1
	})
	return newS3Sink(client, bucket, key, logger), nil
}

func newS3Sink(client s3Putter, bucket, key string, logger *logging.Logger) *S3Sink {
	logger = logging.OrNop(logger).Component("export.s3")
	retry := http.DefaultRetryConfig()
	retry.OnRetry = func(attempt int, err error, errType http.ErrorType) {
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("type", http.ErrorTypeName(errType)).
			Msg("Retrying S3 upload")
	}
	return &S3Sink{client: client, bucket: bucket, key: key, retry: retry, logger: logger}
}

func (s *S3Sink) Write(ctx context.Context, data []byte, contentType string) (string, error) {
	err := http.ExecuteWithRetry(ctx, s.retry, func() error {
		_, err := s.client.PutObject(ctx, &s3.PutObjectInput{
			Bucket:        aws.String(s.bucket),
			Key:           aws.String(s.key),
			Body:          bytes.NewReader(data),
			ContentLength: aws.Int64(int64(len(data))),
			ContentType:   aws.String(contentType),
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload s3://%s/%s: %w", s.bucket, s.key, err)
	}

	location := fmt.Sprintf("s3://%s/%s", s.bucket, s.key)
	s.logger.Info().Str("location", location).Int("bytes", len(data)).Msg("Export uploaded")
	return location, nil
}
