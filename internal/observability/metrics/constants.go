// Package metrics provides constants used across metric definitions.
package metrics

// Operation label values.
const (
	// OpVerify is one hotspot verification.
	OpVerify = "verify"
	// OpBatch is one verification batch.
	OpBatch = "batch"
	// OpImageryFetch is a request to the imagery source.
	OpImageryFetch = "imagery_fetch"
	// OpDetect is a detector invocation.
	OpDetect = "detect"
	// OpClassify is a satellite classifier invocation.
	OpClassify = "classify"
	// OpStream is one detection stream.
	OpStream = "stream"
	// OpFrame is one frame of a detection stream.
	OpFrame = "frame"
)

// Status label values.
const (
	StatusSuccess = "success"
	StatusError   = "error"
	StatusHit     = "hit"
	StatusMiss    = "miss"
)

// Histogram bucket configuration constants.
const (
	// BucketStart1ms is the starting bucket for 1ms histograms (1ms to ~1s range).
	BucketStart1ms = 0.001
	// BucketStart10ms is the starting bucket for 10ms histograms (10ms to ~40s range).
	BucketStart10ms = 0.01
	// BucketStart100ms is the starting bucket for 100ms histograms (100ms to ~100s range).
	BucketStart100ms = 0.1
	// BucketStart64B is the starting bucket for 64 byte histograms.
	BucketStart64B = 64.0

	// BucketFactor2 is the common exponential growth factor of 2 for histogram buckets.
	BucketFactor2 = 2

	// BucketCount10 defines 10 exponential buckets.
	BucketCount10 = 10
	// BucketCount12 defines 12 exponential buckets.
	BucketCount12 = 12
)
