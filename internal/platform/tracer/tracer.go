// Package tracer provides a small tracing abstraction over OpenTelemetry.
//
// Admission checks run on every request, so callers depend on this interface
// rather than the OpenTelemetry API directly. Tests use NoopTracer.
package tracer

import (
	"context"
	"time"
)

// Span represents an active trace span.
type Span interface {
	// End completes the span. A non-nil err marks the span as failed.
	// End must be called exactly once.
	End(err error)

	SetAttributes(attrs ...Attribute)

	AddEvent(name string, attrs ...Attribute)
}

// Tracer creates spans. Implementations must be safe for concurrent use.
type Tracer interface {
	// Start creates a new span with the given name and attributes. The returned
	// context carries the span for child operations.
	//
	// Example:
	//   ctx, span := tr.Start(ctx, tracer.SpanAdmissionCheck,
	//       tracer.String(tracer.AttrEndpointType, "payment"),
	//   )
	//   defer span.End(nil)
	Start(ctx context.Context, name string, attrs ...Attribute) (context.Context, Span)
}

// Attribute represents a key-value pair attached to spans.
type Attribute struct {
	Key   string
	Value any
}

func String(key, value string) Attribute {
	return Attribute{Key: key, Value: value}
}

func Bool(key string, value bool) Attribute {
	return Attribute{Key: key, Value: value}
}

func Int64(key string, value int64) Attribute {
	return Attribute{Key: key, Value: value}
}

func Float64(key string, value float64) Attribute {
	return Attribute{Key: key, Value: value}
}

// Duration creates a duration attribute in milliseconds.
func Duration(key string, value time.Duration) Attribute {
	return Attribute{Key: key, Value: value.Milliseconds()}
}

// Span names.
const (
	SpanAdmissionCheck = "ratelimit.admission.check"
	SpanCounterStore   = "ratelimit.counter.increment"
	SpanPenaltyRecord  = "ratelimit.penalty.record"
)

// Attribute keys.
const (
	AttrEndpointType = "ratelimit.endpoint_type"
	AttrStrategy     = "ratelimit.identity_strategy"
	AttrClientKind   = "ratelimit.client_kind"
	AttrAllowed      = "ratelimit.allowed"
	AttrReason       = "ratelimit.reason"
	AttrCount        = "ratelimit.count"
	AttrLimit        = "ratelimit.limit"
	AttrMultiplier   = "ratelimit.penalty_multiplier"
	AttrRetryAfterMs = "ratelimit.retry_after_ms"
)

// Event names.
const (
	EventAccessListHit = "ratelimit.access_list_hit"
)
