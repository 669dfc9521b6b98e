package constants

import (
	"time"
)

// Service defaults
const (
	// DefaultBaseURL is where the merge service listens in the standard deployment.
	DefaultBaseURL = "http://localhost:8001"

	// DefaultRequestTimeout bounds a single REST call, upload included.
	// The merge service processes the whole CSV inside the request, so this is generous.
	DefaultRequestTimeout = 120 * time.Second

	// DefaultReadRetries is the retry budget for idempotent GETs.
	// Zero keeps failures visible to the operator instead of silently retrying.
	DefaultReadRetries = 0

	// RetryWaitMin / RetryWaitMax bound the backoff when read retries are enabled.
	RetryWaitMin = 500 * time.Millisecond
	RetryWaitMax = 5 * time.Second

	// APIConnectionTestTimeout is used by `config test`.
	APIConnectionTestTimeout = 10 * time.Second
)

// Client-side request pacing (token bucket in front of every REST call)
const (
	// DefaultRequestsPerSecond is the steady refill rate.
	DefaultRequestsPerSecond = 5.0

	// DefaultRequestBurst lets a short burst of page flips through without waiting.
	DefaultRequestBurst = 10.0
)

// Upload progress estimate
const (
	// DefaultEstimateSeconds is the fixed estimate T shown while an upload is in flight.
	// The service exposes no byte-level progress, so the bar counts down T ticks.
	DefaultEstimateSeconds = 8

	// DefaultTickInterval is the period of one estimate tick.
	DefaultTickInterval = 1 * time.Second

	// MaxEstimateSeconds caps user-provided estimates.
	MaxEstimateSeconds = 3600
)

// Browser defaults
const (
	// DefaultPageLimit matches the service's default page size.
	DefaultPageLimit = 100

	// MaxPageLimit is the largest page the service accepts (Query(le=1000)).
	MaxPageLimit = 1000
)

// Event bus buffer sizes
const (
	// EventBusDefaultBuffer is the per-subscriber channel size.
	EventBusDefaultBuffer = 256

	// EventBusMaxBuffer caps caller-provided buffer sizes.
	EventBusMaxBuffer = 4096
)

// HTTP transport timeouts
const (
	HTTPIdleConnTimeout = 90 * time.Second

	HTTPTLSHandshakeTimeout = 30 * time.Second

	HTTPExpectContinueTimeout = 1 * time.Second

	HTTPDialTimeout = 30 * time.Second

	HTTPDialKeepAlive = 30 * time.Second
)

// Upload history
const (
	// HistoryMaxEntries bounds the history file; older entries are dropped on write.
	HistoryMaxEntries = 500
)
