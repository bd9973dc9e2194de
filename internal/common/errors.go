package common

import "errors"

// Error kinds shared across services. Callers classify failures by errors.Is
// against these sentinels; wrapped messages carry the detail.
var (
	// ErrInvalidInput marks malformed caller input (unknown entity key,
	// malformed date, empty ticker). Raised before any I/O.
	ErrInvalidInput = errors.New("invalid input")

	// ErrNotFound marks a missing entity or artifact.
	ErrNotFound = errors.New("not found")

	// ErrUpstream marks a failed upstream call where stale data may still
	// be served from L2.
	ErrUpstream = errors.New("upstream error")

	// ErrUpstreamUnavailable marks a failed upstream call with no L2 to
	// fall back on. Surfaces as a 502-class failure.
	ErrUpstreamUnavailable = errors.New("upstream unavailable")
)
