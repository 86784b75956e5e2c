package hotspot

import (
	"fmt"
	"strings"

	"github.com/firewatch-ai/firewatch/internal/errors"
	"github.com/firewatch-ai/firewatch/internal/logger"
)

// MalformedPolicy decides what Apply does with rows that fail to parse.
type MalformedPolicy int

const (
	// DropMalformed skips bad rows and logs them with their line number.
	DropMalformed MalformedPolicy = iota
	// FailOnMalformed rejects the batch at the first bad row.
	FailOnMalformed
)

func (p MalformedPolicy) String() string {
	if p == FailOnMalformed {
		return "fail"
	}
	return "drop"
}

// ParsePolicy maps the configuration strings "drop" and "fail" to a policy.
func ParsePolicy(s string) (MalformedPolicy, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "drop":
		return DropMalformed, nil
	case "fail":
		return FailOnMalformed, nil
	}
	return DropMalformed, errors.Newf("unknown malformed row policy %q", s).
		Component("hotspot").
		Category(errors.CategoryValidation).
		Build()
}

// Filter keeps hotspots with confidence >= MinConfidence and frp >= MinFRP.
type Filter struct {
	MinConfidence float64
	MinFRP        float64
	Policy        MalformedPolicy

	log logger.Logger
}

// FilterOption configures a Filter.
type FilterOption func(*Filter)

// WithPolicy sets the malformed row policy.
func WithPolicy(p MalformedPolicy) FilterOption {
	return func(f *Filter) { f.Policy = p }
}

// WithLogger overrides the package logger.
func WithLogger(l logger.Logger) FilterOption {
	return func(f *Filter) { f.log = l }
}

// NewFilter creates a filter with the given thresholds, dropping malformed rows by default.
func NewFilter(minConfidence, minFRP float64, opts ...FilterOption) *Filter {
	f := &Filter{MinConfidence: minConfidence, MinFRP: minFRP, Policy: DropMalformed}
	for _, opt := range opts {
		opt(f)
	}
	if f.log == nil {
		f.log = GetLogger()
	}
	return f
}

// Keep reports whether a parsed record passes both thresholds.
func (f *Filter) Keep(r Record) bool {
	return r.Confidence >= f.MinConfidence && r.FRP >= f.MinFRP
}

// Select returns the records that pass Keep, in input order. It is pure and
// idempotent: Select(Select(x)) == Select(x).
func (f *Filter) Select(records []Record) []Record {
	out := make([]Record, 0, len(records))
	for _, r := range records {
		if f.Keep(r) {
			out = append(out, r)
		}
	}
	return out
}

// Apply parses rows and returns the candidates in input order. Under
// DropMalformed bad rows are skipped; under FailOnMalformed the first bad row
// aborts with a validation error naming it.
func (f *Filter) Apply(rows []RawRecord) ([]Record, error) {
	out := make([]Record, 0, len(rows))
	dropped := 0
	for _, row := range rows {
		rec, err := Parse(row)
		if err != nil {
			if f.Policy == FailOnMalformed {
				return nil, errors.New(fmt.Errorf("malformed hotspot row: %w", err)).
					Component("hotspot").
					Category(errors.CategoryValidation).
					Context("line", row.Line).
					Build()
			}
			dropped++
			f.log.Warn("dropping malformed hotspot row",
				logger.Int("line", row.Line),
				logger.Error(err))
			continue
		}
		if f.Keep(rec) {
			out = append(out, rec)
		}
	}

	f.log.Debug("hotspot rows filtered",
		logger.Int("rows", len(rows)),
		logger.Int("candidates", len(out)),
		logger.Int("malformed", dropped),
		logger.Float64("min_confidence", f.MinConfidence),
		logger.Float64("min_frp", f.MinFRP))
	return out, nil
}
