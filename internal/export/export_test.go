package export

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/Azure/azure-sdk-for-go/sdk/storage/azblob"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"github.com/rvcleanup/rv-cleanup/internal/api"
	"github.com/rvcleanup/rv-cleanup/internal/config"
	"github.com/rvcleanup/rv-cleanup/internal/models"
	"github.com/rvcleanup/rv-cleanup/internal/stubserver"
)

func sampleRecords() []models.MasterRecord {
	return []models.MasterRecord{
		{
			Email:       "alice@example.com",
			CardNumber:  "C-1",
			Name:        "Alice",
			SegmentTR:   "Champions",
			IsTR:        true,
			IsNYSS:      true,
			LastUpdated: models.Timestamp{Time: time.Date(2025, 1, 2, 3, 4, 5, 0, time.UTC)},
		},
		{Email: "bob@example.com", IsMFM: true},
	}
}

func TestParseFormat(t *testing.T) {
	tests := []struct {
		in, dest string
		want     Format
		wantErr  bool
	}{
		{"csv", "out.xlsx", FormatCSV, false},
		{"XLSX", "out.csv", FormatXLSX, false},
		{"", "reports/master.xlsx", FormatXLSX, false},
		{"", "s3://bucket/master.XLSX", FormatXLSX, false},
		{"", "master.csv", FormatCSV, false},
		{"", "master", FormatCSV, false},
		{"json", "x", "", true},
	}
	for _, tt := range tests {
		t.Run(tt.in+"|"+tt.dest, func(t *testing.T) {
			got, err := ParseFormat(tt.in, tt.dest)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDestination(t *testing.T) {
	tests := []struct {
		in      string
		want    Destination
		wantErr bool
	}{
		{"out/master.csv", Destination{Scheme: "file", Path: "out/master.csv"}, false},
		{"file:///tmp/m.csv", Destination{Scheme: "file", Path: "/tmp/m.csv"}, false},
		{"s3://exports/2025/master.xlsx", Destination{Scheme: "s3", Container: "exports", Key: "2025/master.xlsx"}, false},
		{"azblob://reports/master.csv", Destination{Scheme: "azblob", Container: "reports", Key: "master.csv"}, false},
		{"s3://bucket-only", Destination{}, true},
		{"s3://bucket/dir/", Destination{}, true},
		{"gs://bucket/key", Destination{}, true},
		{"  ", Destination{}, true},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDestination(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

// pagedLister ignores full_export and serves pages of at most pageSize.
type pagedLister struct {
	records  []models.MasterRecord
	pageSize int
	queries  []models.MasterQuery
	failAt   int
}

func (p *pagedLister) ListMaster(ctx context.Context, q models.MasterQuery) (*models.MasterPage, error) {
	p.queries = append(p.queries, q)
	if p.failAt > 0 && len(p.queries) == p.failAt {
		return nil, &api.ServerError{Op: api.OpListMaster, StatusCode: 503, Message: "busy"}
	}
	end := min(len(p.records), q.Offset+p.pageSize)
	return &models.MasterPage{Records: p.records[q.Offset:end], Total: len(p.records)}, nil
}

func manyRecords(n int) []models.MasterRecord {
	out := make([]models.MasterRecord, n)
	for i := range out {
		out[i].Email = fmt.Sprintf("u%04d@example.com", i)
	}
	return out
}

func TestCollectPagesPastPartialFullExport(t *testing.T) {
	lister := &pagedLister{records: manyRecords(25), pageSize: 10}
	filters := models.MasterFilters{Brand: models.BrandTonyRomas}

	got, err := Collect(context.Background(), lister, filters, nil)
	require.NoError(t, err)
	assert.Len(t, got, 25)
	require.Len(t, lister.queries, 3)
	assert.True(t, lister.queries[0].FullExport)
	assert.Equal(t, 10, lister.queries[1].Offset)
	assert.Equal(t, 20, lister.queries[2].Offset)
	for _, q := range lister.queries {
		assert.Equal(t, filters, q.Filters)
	}
}

func TestCollectFailure(t *testing.T) {
	lister := &pagedLister{records: manyRecords(25), pageSize: 10, failAt: 2}
	_, err := Collect(context.Background(), lister, models.MasterFilters{}, nil)
	var serr *api.ServerError
	require.True(t, errors.As(err, &serr))
	assert.Equal(t, 503, serr.StatusCode)
}

func TestEncodeCSV(t *testing.T) {
	data, err := Encode(sampleRecords(), FormatCSV, nil)
	require.NoError(t, err)

	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, []string{
		"alice@example.com", "C-1", "Alice", "",
		"Champions", "", "",
		"true", "false", "true", "TR NYSS", "2025-01-02 03:04:05",
	}, rows[1])
	assert.Equal(t, "", rows[2][len(Columns)-1], "missing timestamp is blank")
}

func TestEncodeXLSX(t *testing.T) {
	data, err := Encode(sampleRecords(), FormatXLSX, nil)
	require.NoError(t, err)

	f, err := excelize.OpenReader(bytes.NewReader(data))
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetName)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, Columns, rows[0])
	assert.Equal(t, "alice@example.com", rows[1][0])
	assert.Equal(t, "TRUE", rows[1][7])
	assert.Equal(t, "MFM", rows[2][10])
}

func TestLocalSink(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "nested", "master.csv")

	loc, err := NewLocalSink(path, nil).Write(context.Background(), []byte("email\n"), FormatCSV.ContentType())
	require.NoError(t, err)
	assert.True(t, filepath.IsAbs(loc))

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Equal(t, "email\n", string(data))

	entries, err := os.ReadDir(filepath.Dir(path))
	require.NoError(t, err)
	assert.Len(t, entries, 1, "temp file is cleaned up")
}

type fakePutter struct {
	calls int
	errs  []error
	input *s3.PutObjectInput
	body  []byte
}

func (f *fakePutter) PutObject(ctx context.Context, in *s3.PutObjectInput, _ ...func(*s3.Options)) (*s3.PutObjectOutput, error) {
	f.calls++
	if f.calls <= len(f.errs) {
		return nil, f.errs[f.calls-1]
	}
	f.input = in
	buf := new(bytes.Buffer)
	_, _ = buf.ReadFrom(in.Body)
	f.body = buf.Bytes()
	return &s3.PutObjectOutput{}, nil
}

func TestS3SinkRetriesTransientErrors(t *testing.T) {
	putter := &fakePutter{errs: []error{errors.New("api error SlowDown: please reduce your request rate")}}
	sink := newS3Sink(putter, "exports", "master.csv", nil)
	sink.retry.InitialDelay = time.Millisecond
	sink.retry.MaxDelay = time.Millisecond

	loc, err := sink.Write(context.Background(), []byte("a,b\n"), FormatCSV.ContentType())
	require.NoError(t, err)
	assert.Equal(t, "s3://exports/master.csv", loc)
	assert.Equal(t, 2, putter.calls)
	assert.Equal(t, "a,b\n", string(putter.body))
	assert.Equal(t, int64(4), *putter.input.ContentLength)
	assert.Equal(t, "text/csv; charset=utf-8", *putter.input.ContentType)
}

func TestS3SinkFatalErrorNotRetried(t *testing.T) {
	putter := &fakePutter{errs: []error{errors.New("api error AccessDenied: Access Denied")}}
	sink := newS3Sink(putter, "exports", "master.csv", nil)

	_, err := sink.Write(context.Background(), []byte("x"), FormatCSV.ContentType())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "AccessDenied")
	assert.Equal(t, 1, putter.calls)
}

type fakeBlob struct {
	container, name string
	data            []byte
	contentType     string
}

func (f *fakeBlob) UploadBuffer(ctx context.Context, container, name string, buf []byte, o *azblob.UploadBufferOptions) (azblob.UploadBufferResponse, error) {
	f.container, f.name, f.data = container, name, buf
	if o != nil && o.HTTPHeaders != nil && o.HTTPHeaders.BlobContentType != nil {
		f.contentType = *o.HTTPHeaders.BlobContentType
	}
	return azblob.UploadBufferResponse{}, nil
}

func TestAzureSink(t *testing.T) {
	blob := &fakeBlob{}
	loc, err := newAzureSink(blob, "reports", "master.xlsx", nil).Write(context.Background(), []byte("PK"), FormatXLSX.ContentType())
	require.NoError(t, err)
	assert.Equal(t, "azblob://reports/master.xlsx", loc)
	assert.Equal(t, "reports", blob.container)
	assert.Equal(t, "master.xlsx", blob.name)
	assert.Equal(t, FormatXLSX.ContentType(), blob.contentType)
}

func TestNewAzureSinkNeedsServiceURL(t *testing.T) {
	_, err := NewAzureSink("", "c", "b", nil, nil)
	assert.Error(t, err)
}

func TestRunAgainstStub(t *testing.T) {
	stub := stubserver.New(stubserver.Options{})
	stub.Store().SeedMaster(
		models.MasterRecord{Email: "a@example.com", IsTR: true},
		models.MasterRecord{Email: "b@example.com", IsMFM: true},
		models.MasterRecord{Email: "c@example.com", IsTR: true, IsMFM: true},
	)
	ts := httptest.NewServer(stub.Handler())
	defer ts.Close()

	cfg := config.New()
	cfg.BaseURL = ts.URL
	client, err := api.NewClient(cfg, nil)
	require.NoError(t, err)

	out := filepath.Join(t.TempDir(), "tr.csv")
	sink, err := OpenSink(context.Background(), out, cfg, nil)
	require.NoError(t, err)

	res, err := Run(context.Background(), client, sink, Options{
		Filters: models.MasterFilters{Brand: models.BrandTonyRomas},
		Format:  FormatCSV,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, res.Rows)
	assert.Equal(t, FormatCSV, res.Format)

	data, err := os.ReadFile(out)
	require.NoError(t, err)
	rows, err := csv.NewReader(bytes.NewReader(data)).ReadAll()
	require.NoError(t, err)
	assert.Len(t, rows, 3)
	assert.Equal(t, len(data), res.Bytes)
}
