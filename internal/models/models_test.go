package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseBrand(t *testing.T) {
	tests := []struct {
		in      string
		want    Brand
		wantErr bool
	}{
		{"Tony Romas", BrandTonyRomas, false},
		{"tony roma's", BrandTonyRomas, false},
		{"TR", BrandTonyRomas, false},
		{"mfm", BrandManhattanFishMarket, false},
		{"The Manhattan FISH MARKET", BrandManhattanFishMarket, false},
		{"NY Steak Shack", BrandNewYorkSteakShack, false},
		{"  New York Steak Shack ", BrandNewYorkSteakShack, false},
		{"", "", false},
		{"Burger Palace", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseBrand(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestBrandCodesRoundTrip(t *testing.T) {
	for _, b := range Brands() {
		require.NotEmpty(t, b.Code())
		got, ok := BrandFromCode(b.Code())
		require.True(t, ok)
		assert.Equal(t, b, got)
	}
	assert.False(t, Brand("Unknown").Valid())
	assert.Equal(t, "", Brand("Unknown").Code())
}

func TestParseSegment(t *testing.T) {
	seg, err := ParseSegment("can't lose them")
	require.NoError(t, err)
	assert.Equal(t, SegmentCantLoseThem, seg)

	_, err = ParseSegment("Whales")
	assert.Error(t, err)

	assert.Len(t, Segments(), 7)
	for _, s := range Segments() {
		assert.True(t, s.Valid())
	}
}

func TestUploadResultMergeAbsent(t *testing.T) {
	var r *UploadResult
	assert.False(t, r.HasMerge())

	r = &UploadResult{Brand: "Tony Romas"}
	assert.False(t, r.HasMerge())
	updated, inserted := r.MergeCounts()
	assert.Zero(t, updated)
	assert.Zero(t, inserted)

	ten := 10
	r.MergeUpdated = &ten
	assert.True(t, r.HasMerge())
	updated, inserted = r.MergeCounts()
	assert.Equal(t, 10, updated)
	assert.Zero(t, inserted)
}

func TestTimestampUnmarshal(t *testing.T) {
	var rec MasterRecord
	err := json.Unmarshal([]byte(`{"email":"a@b.co","last_updated":"2024-05-01T10:11:12.123456"}`), &rec)
	require.NoError(t, err)
	assert.Equal(t, time.Date(2024, 5, 1, 10, 11, 12, 123456000, time.UTC), rec.LastUpdated.Time)

	err = json.Unmarshal([]byte(`{"email":"a@b.co","last_updated":null}`), &rec)
	require.NoError(t, err)
	assert.True(t, rec.LastUpdated.IsZero())
	assert.Equal(t, "-", rec.LastUpdated.String())

	err = json.Unmarshal([]byte(`{"email":"a@b.co","last_updated":"yesterday"}`), &rec)
	require.NoError(t, err)
	assert.True(t, rec.LastUpdated.IsZero())
	assert.Equal(t, "yesterday", rec.LastUpdated.Unparsed())

	err = json.Unmarshal([]byte(`{"email":"a@b.co","last_updated":"2024-05-01"}`), &rec)
	require.NoError(t, err)
	assert.Empty(t, rec.LastUpdated.Unparsed())

	err = json.Unmarshal([]byte(`{"email":"a@b.co","last_updated":12}`), &rec)
	assert.Error(t, err)
}

func TestMasterRecordBrandCodes(t *testing.T) {
	rec := MasterRecord{IsTR: true, IsNYSS: true}
	assert.Equal(t, []string{"TR", "NYSS"}, rec.BrandCodes())
}

func TestMemoryFile(t *testing.T) {
	f := &MemoryFile{FileName: "list.csv", Data: []byte("email\na@b.co\n")}
	rc, err := f.Open()
	require.NoError(t, err)
	defer rc.Close()
	assert.Equal(t, "list.csv", f.Name())
}
