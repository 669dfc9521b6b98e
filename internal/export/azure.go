package export

import (
	"context"
	"errors"
	"fmt"
	nethttp "net/http"
	"strings"

	"github.com/Azure/azure-sdk-for-go/sdk/azcore"
	"github.com/Azure/azure-sdk-for-go/sdk/azcore/policy"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob/blob"

	"github.com/rvcleanup/rv-cleanup/internal/http"
	"github.com/rvcleanup/rv-cleanup/internal/logging"
)

type blobUploader interface {
	UploadBuffer(ctx context.Context, containerName, blobName string, buffer []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error)
}

// AzureSink uploads the export as a block blob.
type AzureSink struct {
	client    blobUploader
	container string
	blob      string
	retry     http.RetryConfig
	logger    *logging.Logger
}

// NewAzureSink creates the sink. serviceURL is the account blob endpoint
// with a SAS token, e.g. https://acct.blob.core.windows.net/?sv=...
func NewAzureSink(serviceURL, container, blobName string, httpClient *nethttp.Client, logger *logging.Logger) (*AzureSink, error) {
	if strings.TrimSpace(serviceURL) == "" {
		return nil, errors.New("azblob export needs [export] azure_service_url")
	}

	client, err := azblob.NewClientWithNoCredential(serviceURL, &azblob.ClientOptions{
		ClientOptions: azcore.ClientOptions{
			Transport: httpClient,
			// ExecuteWithRetry owns retries
			Retry: policy.RetryOptions{MaxRetries: -1},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create Azure client: %w", err)
	}
	return newAzureSink(client, container, blobName, logger), nil
}

func newAzureSink(client blobUploader, container, blobName string, logger *logging.Logger) *AzureSink {
	logger = logging.OrNop(logger).Component("export.azure")
	retry := http.DefaultRetryConfig()
	retry.OnRetry = func(attempt int, err error, errType http.ErrorType) {
		logger.Warn().
			Err(err).
			Int("attempt", attempt).
			Str("type", http.ErrorTypeName(errType)).
			Msg("Retrying blob upload")
	}
	return &AzureSink{client: client, container: container, blob: blobName, retry: retry, logger: logger}
}

func (s *AzureSink) Write(ctx context.Context, data []byte, contentType string) (string, error) {
	err := http.ExecuteWithRetry(ctx, s.retry, func() error {
		_, err := s.client.UploadBuffer(ctx, s.container, s.blob, data, &azblob.UploadBufferOptions{
			HTTPHeaders: &blob.HTTPHeaders{BlobContentType: &contentType},
		})
		return err
	})
	if err != nil {
		return "", fmt.Errorf("failed to upload azblob://%s/%s: %w", s.container, s.blob, err)
	}

	location := fmt.Sprintf("azblob://%s/%s", s.container, s.blob)
	s.logger.Info().Str("location", location).Int("bytes", len(data)).Msg("Export uploaded")
	return location, nil
}
