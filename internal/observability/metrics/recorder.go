// Package metrics provides custom Prometheus metrics for firewatch components.
package metrics

// Recorder defines a minimal interface for recording metrics.
// Components depend on it rather than on concrete collectors so tests can
// substitute a recording fake.
type Recorder interface {
	// RecordOperation records an operation with its status, e.g. ("detect", "success").
	RecordOperation(operation, status string)

	// RecordDuration records the duration of an operation in seconds.
	RecordDuration(operation string, seconds float64)

	// RecordError records an error occurrence with its type.
	// errorType is usually an errors.ErrorCategory value.
	RecordError(operation, errorType string)
}
