package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	nethttp "net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-retryablehttp"

	"github.com/rvcleanup/rv-cleanup/internal/config"
	"github.com/rvcleanup/rv-cleanup/internal/constants"
	"github.com/rvcleanup/rv-cleanup/internal/http"
	"github.com/rvcleanup/rv-cleanup/internal/logging"
	"github.com/rvcleanup/rv-cleanup/internal/models"
	"github.com/rvcleanup/rv-cleanup/internal/ratelimit"
)

// Operation names used in errors and metrics.
const (
	OpUploadBrand   = "upload brand file"
	OpListMaster    = "list master emails"
	OpListInvalid   = "list invalid emails"
	OpUploadInvalid = "upload invalid emails"
	OpPing          = "ping"
)

// retryLogger implements the retryablehttp.LeveledLogger interface on top of zerolog.
type retryLogger struct {
	logger *logging.Logger
}

func (l *retryLogger) Error(msg string, keysAndValues ...interface{}) {
	l.logger.Error().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Info(msg string, keysAndValues ...interface{}) {
	// Request-level chatter stays at debug
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Debug(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l *retryLogger) Warn(msg string, keysAndValues ...interface{}) {
	l.logger.Warn().Fields(keysAndValues).Msg(msg)
}

// apiMetrics tracks request counts per path.
type apiMetrics struct {
	sync.Mutex
	totalCalls  int64
	failures    int64
	callsByPath map[string]int64
}

// Stats is a snapshot of client usage.
type Stats struct {
	TotalCalls  int64
	Failures    int64
	CallsByPath map[string]int64
}

// Client is the REST client for the merge service.
//
// Reads (GET) go through a retrying client whose budget comes from
// [service] read_retries (default 0). Writes are never retried: a
// duplicate upload would merge the same file twice.
type Client struct {
	readClient  *retryablehttp.Client
	writeClient *retryablehttp.Client
	baseURL     string
	limiter     *ratelimit.RateLimiter
	logger      *logging.Logger
	metrics     *apiMetrics
}

// NewClient creates a client from configuration.
func NewClient(cfg *config.Config, logger *logging.Logger) (*Client, error) {
	if strings.TrimSpace(cfg.BaseURL) == "" {
		return nil, errors.New("service base URL is empty")
	}
	logger = logging.OrNop(logger).Component("api")

	httpClient, err := http.ConfigureHTTPClient(cfg, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to configure HTTP client: %w", err)
	}

	return &Client{
		readClient:  newRetryClient(httpClient, cfg.ReadRetries, logger),
		writeClient: newRetryClient(httpClient, 0, logger),
		baseURL:     strings.TrimSuffix(cfg.BaseURL, "/"),
		limiter:     ratelimit.NewRateLimiter(cfg.RequestsPerSecond, cfg.Burst, logger),
		logger:      logger,
		metrics:     &apiMetrics{callsByPath: make(map[string]int64)},
	}, nil
}

func newRetryClient(httpClient *nethttp.Client, retries int, logger *logging.Logger) *retryablehttp.Client {
	rc := retryablehttp.NewClient()
	rc.HTTPClient = httpClient
	rc.RetryMax = retries
	rc.RetryWaitMin = constants.RetryWaitMin
	rc.RetryWaitMax = constants.RetryWaitMax
	rc.Logger = &retryLogger{logger: logger}
	// Hand the final response back so non-2xx bodies reach ServerError.
	rc.ErrorHandler = retryablehttp.PassthroughErrorHandler
	return rc
}

// BaseURL returns the service root this client talks to.
func (c *Client) BaseURL() string {
	return c.baseURL
}

// Stats returns a copy of the usage counters.
func (c *Client) Stats() Stats {
	c.metrics.Lock()
	defer c.metrics.Unlock()
	byPath := make(map[string]int64, len(c.metrics.callsByPath))
	for k, v := range c.metrics.callsByPath {
		byPath[k] = v
	}
	return Stats{TotalCalls: c.metrics.totalCalls, Failures: c.metrics.failures, CallsByPath: byPath}
}

// doRequest performs one paced request and returns the body of a 2xx response.
func (c *Client) doRequest(ctx context.Context, rc *retryablehttp.Client, op, method, path string, query url.Values, body []byte, contentType string) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("rate limiter cancelled: %w", err)}
	}

	c.metrics.Lock()
	c.metrics.totalCalls++
	c.metrics.callsByPath[path]++
	c.metrics.Unlock()

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}

	var rawBody interface{}
	if body != nil {
		rawBody = body
	}
	req, err := retryablehttp.NewRequestWithContext(ctx, method, target, rawBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}

	requestID := uuid.NewString()
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-Request-ID", requestID)
	if contentType != "" {
		req.Header.Set("Content-Type", contentType)
	}

	start := time.Now()
	resp, err := rc.Do(req)
	if err != nil {
		c.recordFailure()
		c.logger.Debug().Err(err).Str("op", op).Str("request_id", requestID).Msg("Request failed")
		return nil, &NetworkError{Op: op, Err: err}
	}
	defer resp.Body.Close()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		c.recordFailure()
		return nil, &NetworkError{Op: op, Err: fmt.Errorf("failed to read response: %w", err)}
	}

	c.logger.Debug().
		Str("op", op).
		Str("request_id", requestID).
		Int("status", resp.StatusCode).
		Dur("elapsed", time.Since(start)).
		Msg("Request completed")

	if resp.StatusCode == nethttp.StatusTooManyRequests {
		if wait := parseRetryAfter(resp.Header.Get("Retry-After")); wait > 0 {
			c.logger.Warn().Str("op", op).Dur("retry_after", wait).Msg("Throttled by service")
			c.limiter.Cooldown(wait)
		}
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		c.recordFailure()
		return nil, &ServerError{Op: op, StatusCode: resp.StatusCode, Message: errorMessage(data)}
	}
	return data, nil
}

func (c *Client) recordFailure() {
	c.metrics.Lock()
	c.metrics.failures++
	c.metrics.Unlock()
}

func parseRetryAfter(v string) time.Duration {
	v = strings.TrimSpace(v)
	if v == "" {
		return 0
	}
	if secs, err := strconv.Atoi(v); err == nil && secs > 0 {
		return time.Duration(secs) * time.Second
	}
	if t, err := nethttp.ParseTime(v); err == nil {
		return time.Until(t)
	}
	return 0
}

// buildMultipart encodes fields (in order) followed by the file part.
func buildMultipart(fields [][2]string, fileField string, file models.FileHandle) ([]byte, string, error) {
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)

	for _, f := range fields {
		if err := w.WriteField(f[0], f[1]); err != nil {
			return nil, "", fmt.Errorf("failed to write form field %s: %w", f[0], err)
		}
	}

	src, err := file.Open()
	if err != nil {
		return nil, "", &ValidationError{Field: "file", Reason: fmt.Sprintf("cannot open %s: %v", file.Name(), err)}
	}
	defer src.Close()

	part, err := w.CreateFormFile(fileField, file.Name())
	if err != nil {
		return nil, "", fmt.Errorf("failed to create file part: %w", err)
	}
	if _, err := io.Copy(part, src); err != nil {
		return nil, "", &ValidationError{Field: "file", Reason: fmt.Sprintf("cannot read %s: %v", file.Name(), err)}
	}
	if err := w.Close(); err != nil {
		return nil, "", fmt.Errorf("failed to finalize form: %w", err)
	}
	return buf.Bytes(), w.FormDataContentType(), nil
}

// uploadResponse is the wire shape of POST /upload.
type uploadResponse struct {
	Status                  string   `json:"status"`
	Brand                   *string  `json:"brand"`
	RowsUploaded            *int     `json:"rows_uploaded"`
	RowsAfterInvalidRemoval *int     `json:"rows_after_invalid_removal"`
	InvalidCount            *int     `json:"invalid_count"`
	InvalidEmails           []string `json:"invalid_emails"`
	InsertedToBrand         *int     `json:"inserted_to_brand"`
	TransformedFile         string   `json:"transformed_file"`
	MergeResult             *struct {
		Updated  *int `json:"updated"`
		Inserted *int `json:"inserted"`
	} `json:"merge_result"`
}

func (r *uploadResponse) result() (*models.UploadResult, error) {
	required := []struct {
		name    string
		present bool
	}{
		{"brand", r.Brand != nil},
		{"rows_uploaded", r.RowsUploaded != nil},
		{"rows_after_invalid_removal", r.RowsAfterInvalidRemoval != nil},
		{"invalid_count", r.InvalidCount != nil},
		{"inserted_to_brand", r.InsertedToBrand != nil},
	}
	for _, f := range required {
		if !f.present {
			return nil, &MalformedResponseError{Op: OpUploadBrand, Field: f.name}
		}
	}

	res := &models.UploadResult{
		Brand:                   *r.Brand,
		RowsUploaded:            *r.RowsUploaded,
		RowsAfterInvalidRemoval: *r.RowsAfterInvalidRemoval,
		InvalidCount:            *r.InvalidCount,
		InsertedToBrand:         *r.InsertedToBrand,
		InvalidSample:           r.InvalidEmails,
		TransformedFile:         r.TransformedFile,
	}
	if r.MergeResult != nil {
		res.MergeUpdated = r.MergeResult.Updated
		res.MergeInserted = r.MergeResult.Inserted
	}
	return res, nil
}

// UploadBrandFile sends one brand CSV to POST /upload. It is never retried.
func (c *Client) UploadBrandFile(ctx context.Context, brand models.Brand, file models.FileHandle) (*models.UploadResult, error) {
	if brand == "" {
		return nil, &ValidationError{Field: "brand", Reason: "a brand must be selected"}
	}
	if file == nil {
		return nil, &ValidationError{Field: "file", Reason: "a file must be selected"}
	}

	body, contentType, err := buildMultipart([][2]string{{"brand", string(brand)}}, "file", file)
	if err != nil {
		return nil, err
	}

	data, err := c.doRequest(ctx, c.writeClient, OpUploadBrand, nethttp.MethodPost, "/upload", nil, body, contentType)
	if err != nil {
		return nil, err
	}

	var resp uploadResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &MalformedResponseError{Op: OpUploadBrand, Err: err}
	}
	return resp.result()
}

// ListMaster fetches one page of the master registry.
func (c *Client) ListMaster(ctx context.Context, q models.MasterQuery) (*models.MasterPage, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	params.Set("offset", strconv.Itoa(q.Offset))
	if s := strings.TrimSpace(q.Filters.Search); s != "" {
		params.Set("search", s)
	}
	if code := q.Filters.Brand.Code(); code != "" {
		params.Set("brand", code)
	}
	if q.Filters.Segment != "" {
		params.Set("segment", string(q.Filters.Segment))
	}
	if q.FullExport {
		params.Set("full_export", "true")
	}

	data, err := c.doRequest(ctx, c.readClient, OpListMaster, nethttp.MethodGet, "/master-emails", params, nil, "")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Total *int                   `json:"total"`
		Data  *[]models.MasterRecord `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &MalformedResponseError{Op: OpListMaster, Err: err}
	}
	if resp.Data == nil {
		return nil, &MalformedResponseError{Op: OpListMaster, Field: "data"}
	}
	if resp.Total == nil {
		return nil, &MalformedResponseError{Op: OpListMaster, Field: "total"}
	}
	if *resp.Total < 0 {
		return nil, &MalformedResponseError{Op: OpListMaster, Field: "total", Err: fmt.Errorf("negative total %d", *resp.Total)}
	}
	for _, rec := range *resp.Data {
		if raw := rec.LastUpdated.Unparsed(); raw != "" {
			c.logger.Debug().Str("op", OpListMaster).Str("email", rec.Email).Str("last_updated", raw).Msg("Unrecognized timestamp")
		}
	}
	return &models.MasterPage{Records: *resp.Data, Total: *resp.Total}, nil
}

// ListInvalid fetches one page of rejected addresses. A response without
// total reports offset+len(data).
func (c *Client) ListInvalid(ctx context.Context, q models.InvalidQuery) (*models.InvalidPage, error) {
	params := url.Values{}
	if q.Limit > 0 {
		params.Set("limit", strconv.Itoa(q.Limit))
	}
	params.Set("offset", strconv.Itoa(q.Offset))

	data, err := c.doRequest(ctx, c.readClient, OpListInvalid, nethttp.MethodGet, "/invalid-emails", params, nil, "")
	if err != nil {
		return nil, err
	}

	var resp struct {
		Total *int                    `json:"total"`
		Data  *[]models.InvalidRecord `json:"data"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &MalformedResponseError{Op: OpListInvalid, Err: err}
	}
	if resp.Data == nil {
		return nil, &MalformedResponseError{Op: OpListInvalid, Field: "data"}
	}

	page := &models.InvalidPage{Records: *resp.Data, Total: q.Offset + len(*resp.Data)}
	if resp.Total != nil && *resp.Total >= 0 {
		page.Total = *resp.Total
	}
	return page, nil
}

// UploadInvalidList sends a list of known-bad addresses. An empty brand is sent as Unknown.
// A missing added count in the acknowledgement reads as 0.
func (c *Client) UploadInvalidList(ctx context.Context, brand string, file models.FileHandle) (*models.InvalidUploadAck, error) {
	if file == nil {
		return nil, &ValidationError{Field: "file", Reason: "a file must be selected"}
	}
	if strings.TrimSpace(brand) == "" {
		brand = models.BrandUnknown
	}

	body, contentType, err := buildMultipart([][2]string{{"brand", brand}}, "file", file)
	if err != nil {
		return nil, err
	}

	data, err := c.doRequest(ctx, c.writeClient, OpUploadInvalid, nethttp.MethodPost, "/invalid-emails/upload", nil, body, contentType)
	if err != nil {
		return nil, err
	}

	var resp struct {
		Status string  `json:"status"`
		Brand  *string `json:"brand"`
		Added  *int    `json:"added"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, &MalformedResponseError{Op: OpUploadInvalid, Err: err}
	}
	ack := &models.InvalidUploadAck{Status: resp.Status, Brand: brand}
	if resp.Added != nil {
		ack.Added = *resp.Added
	} else {
		c.logger.Debug().Str("op", OpUploadInvalid).Msg("Acknowledgement has no added count")
	}
	if resp.Brand != nil {
		ack.Brand = *resp.Brand
	}
	return ack, nil
}

// Ping calls the liveness endpoint and returns its message.
func (c *Client) Ping(ctx context.Context) (string, error) {
	data, err := c.doRequest(ctx, c.readClient, OpPing, nethttp.MethodGet, "/", nil, nil, "")
	if err != nil {
		return "", err
	}
	var resp struct {
		Message string `json:"message"`
	}
	if err := json.Unmarshal(data, &resp); err != nil {
		return "", &MalformedResponseError{Op: OpPing, Err: err}
	}
	return resp.Message, nil
}

// SortedPaths returns the paths in s ordered by call count, highest first.
func (s Stats) SortedPaths() []string {
	paths := make([]string, 0, len(s.CallsByPath))
	for p := range s.CallsByPath {
		paths = append(paths, p)
	}
	sort.Slice(paths, func(i, j int) bool {
		if s.CallsByPath[paths[i]] == s.CallsByPath[paths[j]] {
			return paths[i] < paths[j]
		}
		return s.CallsByPath[paths[i]] > s.CallsByPath[paths[j]]
	})
	return paths
}
