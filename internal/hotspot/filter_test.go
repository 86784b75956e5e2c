package hotspot

import (
	"bytes"
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

func row(line int, lat, lon, conf, frp string) RawRecord {
	return RawRecord{Line: line, Fields: map[string]string{
		ColLatitude:   lat,
		ColLongitude:  lon,
		ColConfidence: conf,
		ColFRP:        frp,
		ColAcqDate:    "2024-08-01",
		ColAcqTime:    "0342",
	}}
}

func quietFilter(minConf, minFRP float64, opts ...FilterOption) *Filter {
	opts = append(opts, WithLogger(logger.NewSlogLogger(&bytes.Buffer{}, logger.LogLevelError, time.UTC)))
	return NewFilter(minConf, minFRP, opts...)
}

func TestParse(t *testing.T) {
	t.Parallel()

	rec, err := Parse(row(3, "37.5", "-119.25", "85", "31.4"))
	require.NoError(t, err)
	assert.InDelta(t, 37.5, rec.Lat, 1e-9)
	assert.InDelta(t, -119.25, rec.Lon, 1e-9)
	assert.InDelta(t, 85.0, rec.Confidence, 1e-9)
	assert.InDelta(t, 31.4, rec.FRP, 1e-9)
	assert.Equal(t, "2024-08-01", rec.Date)
	assert.Equal(t, "0342", rec.Time)
	assert.Equal(t, 3, rec.Line)
	assert.Nil(t, rec.Verification)
}

func TestParseMalformed(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name   string
		raw    RawRecord
		column string
	}{
		{"missing latitude", RawRecord{Line: 1, Fields: map[string]string{ColLongitude: "1", ColConfidence: "90", ColFRP: "10"}}, ColLatitude},
		{"empty frp", row(2, "1", "1", "90", " "), ColFRP},
		{"letter confidence", row(3, "1", "1", "h", "10"), ColConfidence},
		{"nan frp", row(4, "1", "1", "90", "NaN"), ColFRP},
		{"latitude out of range", row(5, "91", "1", "90", "10"), ColLatitude},
		{"negative frp", row(6, "1", "1", "90", "-2"), ColFRP},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := Parse(tt.raw)
			var mre *MalformedRowError
			require.ErrorAs(t, err, &mre)
			assert.Equal(t, tt.column, mre.Column)
			assert.Equal(t, tt.raw.Line, mre.Line)
		})
	}
}

func TestFilterThresholdsAreInclusive(t *testing.T) {
	t.Parallel()

	f := quietFilter(50, 5)
	rows := []RawRecord{
		row(1, "1", "1", "50", "5"),  // exactly at both thresholds
		row(2, "2", "2", "49.9", "50"),
		row(3, "3", "3", "99", "4.99"),
		row(4, "4", "4", "70", "12"),
	}

	out, err := f.Apply(rows)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, 1, out[0].Line)
	assert.Equal(t, 4, out[1].Line)
}

func TestFilterDropMalformedKeepsOrder(t *testing.T) {
	t.Parallel()

	buf := &bytes.Buffer{}
	f := NewFilter(50, 5, WithLogger(logger.NewSlogLogger(buf, logger.LogLevelWarn, time.UTC)))

	out, err := f.Apply([]RawRecord{
		row(1, "1", "1", "90", "30"),
		row(2, "x", "1", "90", "30"),
		row(3, "3", "3", "90", "30"),
	})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, []int{1, 3}, []int{out[0].Line, out[1].Line})

	var entry map[string]any
	require.NoError(t, json.Unmarshal(bytes.TrimSpace(buf.Bytes()), &entry))
	assert.Equal(t, "dropping malformed hotspot row", entry["msg"])
	assert.InDelta(t, 2, entry["line"], 1e-9)
}

func TestFilterFailOnMalformed(t *testing.T) {
	t.Parallel()

	f := quietFilter(50, 5, WithPolicy(FailOnMalformed))
	out, err := f.Apply([]RawRecord{
		row(1, "1", "1", "90", "30"),
		row(2, "1", "1", "", "30"),
		row(3, "1", "1", "n", "30"),
	})
	require.Error(t, err)
	assert.Nil(t, out)
	assert.True(t, errors.IsCategory(err, errors.CategoryValidation))

	var mre *MalformedRowError
	require.ErrorAs(t, err, &mre)
	assert.Equal(t, 2, mre.Line)
}

func TestSelectIsIdempotentAndSound(t *testing.T) {
	t.Parallel()

	f := quietFilter(60, 10)
	records := []Record{
		{Confidence: 59, FRP: 100, Line: 1},
		{Confidence: 60, FRP: 10, Line: 2},
		{Confidence: 100, FRP: 9, Line: 3},
		{Confidence: 75, FRP: 11, Line: 4},
	}

	once := f.Select(records)
	twice := f.Select(once)
	assert.Equal(t, once, twice)
	for _, r := range once {
		assert.GreaterOrEqual(t, r.Confidence, f.MinConfidence)
		assert.GreaterOrEqual(t, r.FRP, f.MinFRP)
	}
	assert.Len(t, once, 2)
	// input untouched
	assert.Len(t, records, 4)
}

func TestFilterEmptyInput(t *testing.T) {
	t.Parallel()

	out, err := quietFilter(50, 5).Apply(nil)
	require.NoError(t, err)
	assert.Empty(t, out)
}

func TestParsePolicy(t *testing.T) {
	t.Parallel()

	p, err := ParsePolicy("")
	require.NoError(t, err)
	assert.Equal(t, DropMalformed, p)

	p, err = ParsePolicy("FAIL")
	require.NoError(t, err)
	assert.Equal(t, FailOnMalformed, p)
	assert.Equal(t, "fail", p.String())

	_, err = ParsePolicy("skip")
	require.Error(t, err)
}

func TestRecordJSON(t *testing.T) {
	t.Parallel()

	rec := Record{Lat: 1.5, Lon: 2.5, Confidence: 90, FRP: 30, Date: "2024-08-01", Time: "0342", Line: 9}
	data, err := json.Marshal(rec)
	require.NoError(t, err)
	assert.JSONEq(t, `{"lat":1.5,"lon":2.5,"confidence":90,"frp":30,"date":"2024-08-01","time":"0342"}`, string(data))

	verified := rec.WithVerification(VerificationResult{
		IsVerified:        true,
		ThermalConfidence: 90,
		VisualConfidence:  60,
		Method:            MethodThermalAndVisual,
		Status:            StatusVerifiedWildfire,
	})
	assert.Nil(t, rec.Verification)

	data, err = json.Marshal(verified)
	require.NoError(t, err)
	assert.JSONEq(t, `{"lat":1.5,"lon":2.5,"confidence":90,"frp":30,"date":"2024-08-01","time":"0342",
		"verification":{"is_verified":true,"thermal_confidence":90,"visual_confidence":60,
		"verification_method":"thermal_and_visual","status":"verified_wildfire"}}`, string(data))
}
