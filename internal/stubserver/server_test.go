package stubserver

import (
	"bytes"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rvcleanup/rv-cleanup/internal/models"
)

func postCSV(t *testing.T, h http.Handler, path, brand, body string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	w := multipart.NewWriter(&buf)
	if brand != "" {
		require.NoError(t, w.WriteField("brand", brand))
	}
	part, err := w.CreateFormFile("file", "list.csv")
	require.NoError(t, err)
	_, err = part.Write([]byte(body))
	require.NoError(t, err)
	require.NoError(t, w.Close())

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", w.FormDataContentType())
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func get(t *testing.T, h http.Handler, path string) map[string]interface{} {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, path, nil))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return out
}

func TestUploadMergesAndReportsCounts(t *testing.T) {
	fixed := time.Date(2025, 3, 1, 8, 0, 0, 0, time.UTC)
	srv := New(Options{Now: func() time.Time { return fixed }})
	srv.Store().SeedInvalid("Unknown", "blocked@example.com")
	srv.Store().SeedMaster(models.MasterRecord{Email: "old@example.com", IsMFM: true})

	csv := "Email,Name,Segment\n" +
		"a@example.com,Ann,Champions\n" +
		"OLD@example.com,Old,Loyal\n" +
		"not-an-email,X,Loyal\n" +
		"blocked@example.com,B,Loyal\n" +
		"a@example.com,Ann,Champions\n"
	rec := postCSV(t, srv.Handler(), "/upload", "Tony Romas", csv)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	var resp struct {
		Brand                   string   `json:"brand"`
		RowsUploaded            int      `json:"rows_uploaded"`
		RowsAfterInvalidRemoval int      `json:"rows_after_invalid_removal"`
		InvalidCount            int      `json:"invalid_count"`
		InvalidEmails           []string `json:"invalid_emails"`
		InsertedToBrand         int      `json:"inserted_to_brand"`
		MergeResult             struct {
			Updated  int `json:"updated"`
			Inserted int `json:"inserted"`
		} `json:"merge_result"`
	}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	assert.Equal(t, "Tony Romas", resp.Brand)
	assert.Equal(t, 5, resp.RowsUploaded)
	assert.Equal(t, 3, resp.RowsAfterInvalidRemoval)
	assert.Equal(t, 2, resp.InvalidCount)
	assert.Equal(t, []string{"not-an-email", "blocked@example.com"}, resp.InvalidEmails)
	assert.Equal(t, 2, resp.InsertedToBrand)
	assert.Equal(t, 1, resp.MergeResult.Updated)
	assert.Equal(t, 1, resp.MergeResult.Inserted)

	out := get(t, srv.Handler(), "/master-emails?brand=TR")
	assert.EqualValues(t, 2, out["total"])

	out = get(t, srv.Handler(), "/master-emails?brand=MFM&segment=loyal")
	assert.EqualValues(t, 1, out["total"])
}

func TestUploadRejectsUnknownBrand(t *testing.T) {
	srv := New(Options{})
	rec := postCSV(t, srv.Handler(), "/upload", "Burger Palace", "email\na@b.co\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error"`)
}

func TestMasterPagination(t *testing.T) {
	srv := New(Options{})
	base := time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC)
	for i := 0; i < 25; i++ {
		srv.Store().SeedMaster(models.MasterRecord{
			Email:       string(rune('a'+i)) + "@example.com",
			LastUpdated: models.Timestamp{Time: base.Add(time.Duration(i) * time.Minute)},
		})
	}

	out := get(t, srv.Handler(), "/master-emails?limit=10&offset=20")
	assert.EqualValues(t, 25, out["total"])
	data := out["data"].([]interface{})
	require.Len(t, data, 5)
	// Newest first
	assert.Equal(t, "e@example.com", data[0].(map[string]interface{})["email"])

	out = get(t, srv.Handler(), "/master-emails?limit=10&full_export=true")
	assert.Len(t, out["data"].([]interface{}), 25)

	out = get(t, srv.Handler(), "/master-emails?offset=100")
	assert.Empty(t, out["data"].([]interface{}))

	rec := httptest.NewRecorder()
	srv.Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/master-emails?limit=5000", nil))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestInvalidUpload(t *testing.T) {
	srv := New(Options{})

	rec := postCSV(t, srv.Handler(), "/invalid-emails/upload", "Unknown", "email\nX@bad.co\nx@bad.co\ny@bad.co\n")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"status":"success","brand":"Unknown","added":2}`, rec.Body.String())

	rec = postCSV(t, srv.Handler(), "/invalid-emails/upload", "Unknown", "address\nz@bad.co\n")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Contains(t, rec.Body.String(), "Missing 'email' column.")

	out := get(t, srv.Handler(), "/invalid-emails?limit=1&offset=1")
	assert.EqualValues(t, 2, out["total"])
	assert.Len(t, out["data"].([]interface{}), 1)
}

func TestLiveness(t *testing.T) {
	srv := New(Options{})
	out := get(t, srv.Handler(), "/")
	assert.Equal(t, "Email Cleanup API is live!", out["message"])
}
