// Package hotspot defines the thermal hotspot records produced by satellite
// sensors and the alert filter that turns raw FIRMS rows into candidates.
package hotspot

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Method records which signals a verification decision was based on.
type Method string

const (
	MethodThermalOnly      Method = "thermal_only"
	MethodThermalAndVisual Method = "thermal_and_visual"
	MethodVisualRejected   Method = "visual_rejected"
)

// Status is the routing outcome of a verification.
type Status string

const (
	StatusVerifiedWildfire        Status = "verified_wildfire"
	StatusFalseAlarmRejected      Status = "false_alarm_rejected"
	StatusUnverifiedNoImagery     Status = "unverified_no_imagery"
	StatusUnverifiedDetectorError Status = "unverified_detector_error"
)

// VerificationResult is attached to a Record exactly once by the verifier.
type VerificationResult struct {
	IsVerified        bool    `json:"is_verified"`
	ThermalConfidence float64 `json:"thermal_confidence"`
	VisualConfidence  float64 `json:"visual_confidence"`
	Method            Method  `json:"verification_method"`
	Status            Status  `json:"status"`
	Error             string  `json:"error,omitempty"`
}

// Record is a candidate hotspot. Records are values; the verifier returns
// copies with Verification set rather than mutating its input.
type Record struct {
	Lat          float64             `json:"lat"`
	Lon          float64             `json:"lon"`
	Confidence   float64             `json:"confidence"` // 0-100
	FRP          float64             `json:"frp"`        // MW
	Date         string              `json:"date"`
	Time         string              `json:"time"`
	Verification *VerificationResult `json:"verification,omitempty"`

	// Line is the 1-based data row the record came from, 0 when not from a file.
	Line int `json:"-"`
}

// WithVerification returns a copy of r carrying v.
func (r Record) WithVerification(v VerificationResult) Record {
	r.Verification = &v
	return r
}

// Column names of the FIRMS area CSV.
const (
	ColLatitude   = "latitude"
	ColLongitude  = "longitude"
	ColConfidence = "confidence"
	ColFRP        = "frp"
	ColAcqDate    = "acq_date"
	ColAcqTime    = "acq_time"
)

// RawRecord is one data row of a hotspot CSV keyed by lower-cased header name.
type RawRecord struct {
	Line   int
	Fields map[string]string
}

// Get returns the trimmed value of column name.
func (r RawRecord) Get(name string) (string, bool) {
	v, ok := r.Fields[name]
	return strings.TrimSpace(v), ok
}

// MalformedRowError names the row and column that could not be parsed.
type MalformedRowError struct {
	Line   int
	Column string
	Value  string
	Reason string
}

func (e *MalformedRowError) Error() string {
	return fmt.Sprintf("row %d: column %q value %q: %s", e.Line, e.Column, e.Value, e.Reason)
}

// Parse converts a raw row into a Record. Latitude, longitude, confidence and
// frp are required and must be finite numbers; coordinates must be in range.
func Parse(raw RawRecord) (Record, error) {
	rec := Record{Line: raw.Line}

	fields := []struct {
		column   string
		dst      *float64
		min, max float64
	}{
		{ColLatitude, &rec.Lat, -90, 90},
		{ColLongitude, &rec.Lon, -180, 180},
		{ColConfidence, &rec.Confidence, 0, 100},
		{ColFRP, &rec.FRP, 0, math.Inf(1)},
	}
	for _, f := range fields {
		v, err := parseRequired(raw, f.column)
		if err != nil {
			return Record{}, err
		}
		if v < f.min || v > f.max {
			return Record{}, &MalformedRowError{
				Line:   raw.Line,
				Column: f.column,
				Value:  strconv.FormatFloat(v, 'g', -1, 64),
				Reason: fmt.Sprintf("out of range [%g, %g]", f.min, f.max),
			}
		}
		*f.dst = v
	}

	rec.Date, _ = raw.Get(ColAcqDate)
	rec.Time, _ = raw.Get(ColAcqTime)
	return rec, nil
}

func parseRequired(raw RawRecord, column string) (float64, error) {
	s, ok := raw.Get(column)
	if !ok || s == "" {
		return 0, &MalformedRowError{Line: raw.Line, Column: column, Value: s, Reason: "missing"}
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, &MalformedRowError{Line: raw.Line, Column: column, Value: s, Reason: "not a number"}
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, &MalformedRowError{Line: raw.Line, Column: column, Value: s, Reason: "not finite"}
	}
	return v, nil
}
