// Package middleware adapts the admission engine to HTTP: it sets the
// informational headers, maps decisions to typed errors and applies the
// fail-open or fail-closed policy when the engine cannot decide.
package middleware

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/netip"
	"strconv"
	"time"

	"golang.org/x/time/rate"

	"boxoffice/internal/ratelimit/metrics"
	"boxoffice/internal/ratelimit/models"
	"boxoffice/internal/ratelimit/observability"
	"boxoffice/internal/ratelimit/service/admission"
	dErrors "boxoffice/pkg/domain-errors"
	"boxoffice/pkg/platform/circuit"
	"boxoffice/pkg/platform/privacy"
)

// Response headers.
const (
	HeaderEndpoint      = "X-RateLimit-Endpoint"
	HeaderClient        = "X-RateLimit-Client"
	HeaderLimit         = "X-RateLimit-Limit"
	HeaderRemaining     = "X-RateLimit-Remaining"
	HeaderReset         = "X-RateLimit-Reset"
	HeaderExceeded      = "X-RateLimit-Exceeded"
	HeaderRetryAfter    = "Retry-After"
	HeaderRLRetryAfter  = "X-RateLimit-Retry-After"
	HeaderCheckDuration = "X-RateLimit-Check-Duration"
	HeaderStatus        = "X-RateLimit-Status"
)

type RateLimiter interface {
	CheckRateLimit(ctx context.Context, req *http.Request, endpointType models.EndpointType, opts admission.Options) (models.Decision, error)
}

// Options adjusts enforcement for one call site.
type Options struct {
	// ClientType overrides the policy's identity strategy.
	ClientType models.IdentityStrategy
	// Skip bypasses admission control entirely for this call site.
	Skip bool
	// FailOpen overrides the middleware default when set.
	FailOpen *bool
}

type Middleware struct {
	limiter  RateLimiter
	logger   *slog.Logger
	metrics  *metrics.Metrics
	breaker  *circuit.Breaker
	failOpen bool
	skip     func(*http.Request) bool
	errorLog *rate.Sometimes
}

type Option func(*Middleware)

func WithLogger(logger *slog.Logger) Option {
	return func(m *Middleware) {
		m.logger = logger
	}
}

func WithMetrics(metrics *metrics.Metrics) Option {
	return func(m *Middleware) {
		m.metrics = metrics
	}
}

// WithFailOpen sets the default behaviour when the engine fails: true admits
// the request, false answers 503.
func WithFailOpen(failOpen bool) Option {
	return func(m *Middleware) {
		m.failOpen = failOpen
	}
}

// WithSkip bypasses admission control for requests where skip returns true.
func WithSkip(skip func(*http.Request) bool) Option {
	return func(m *Middleware) {
		m.skip = skip
	}
}

// WithBreaker replaces the degraded-state breaker.
func WithBreaker(b *circuit.Breaker) Option {
	return func(m *Middleware) {
		m.breaker = b
	}
}

func New(limiter RateLimiter, opts ...Option) (*Middleware, error) {
	if limiter == nil {
		return nil, errors.New("rate limiter is required")
	}
	m := &Middleware{
		limiter:  limiter,
		logger:   slog.Default(),
		failOpen: true,
		errorLog: &rate.Sometimes{First: 3, Interval: 10 * time.Second},
	}
	for _, opt := range opts {
		opt(m)
	}
	if m.breaker == nil {
		m.breaker = newStoreBreaker(m.logger, m.metrics)
	}
	return m, nil
}

// Degraded reports whether recent admission checks have been failing.
func (m *Middleware) Degraded() bool {
	return m.breaker.IsOpen()
}

// SkipLocal reports whether the transport peer is a loopback address, for
// local development where no proxy sits in front of the service.
func SkipLocal(r *http.Request) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	addr, err := netip.ParseAddr(host)
	return err == nil && addr.Unmap().IsLoopback()
}

// RateLimit enforces the policy for endpointType before calling next.
// Denials are rendered as JSON and next is not called.
func (m *Middleware) RateLimit(endpointType models.EndpointType, opts ...Options) func(http.Handler) http.Handler {
	o := firstOptions(opts)
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := m.Enforce(w, r, endpointType, o); err != nil {
				if !errors.Is(err, context.Canceled) {
					WriteError(w, err)
				}
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// Enforce checks r against the policy for endpointType and sets the rate
// limit headers on w. It returns nil when the request may proceed and an
// *Error otherwise, leaving the response for the caller to write. Handlers
// that are not wrapped by RateLimit call it directly. A check abandoned
// because the client went away returns the context error and counts as
// neither a store failure nor a decision.
func (m *Middleware) Enforce(w http.ResponseWriter, r *http.Request, endpointType models.EndpointType, opts Options) error {
	if opts.Skip || (m.skip != nil && m.skip(r)) {
		return nil
	}

	ctx := r.Context()
	start := time.Now()
	decision, err := m.limiter.CheckRateLimit(ctx, r, endpointType, admission.Options{ClientType: opts.ClientType})
	elapsed := time.Since(start)

	if err != nil && errors.Is(err, context.Canceled) && ctx.Err() != nil {
		m.logger.DebugContext(ctx, "client went away during admission check",
			"endpoint_type", endpointType,
		)
		return ctx.Err()
	}

	w.Header().Set(HeaderCheckDuration, strconv.FormatInt(elapsed.Milliseconds(), 10)+"ms")
	if m.metrics != nil {
		m.metrics.ObserveCheckDuration(string(endpointType), elapsed.Seconds())
	}

	m.breaker.Record(err)
	if m.breaker.IsOpen() {
		w.Header().Set(HeaderStatus, "degraded")
	}

	if err != nil {
		setFailureHeaders(w, endpointType, decision)
		return m.handleFailure(ctx, endpointType, opts, err)
	}

	setDecisionHeaders(w, decision)
	if decision.Allowed {
		return nil
	}

	if decision.Reason == models.ReasonBlacklisted {
		return accessDenied()
	}

	retryAfter := decision.RetryAfterSeconds()
	retry := strconv.FormatInt(retryAfter, 10)
	w.Header().Set(HeaderExceeded, "true")
	w.Header().Set(HeaderRetryAfter, retry)
	w.Header().Set(HeaderRLRetryAfter, retry)

	details := map[string]any{
		"endpoint":  string(decision.EndpointType),
		"limit":     decision.Limit,
		"resetTime": decision.ResetTime.UTC().Format(time.RFC3339),
	}
	if decision.PenaltyMultiplier > 1 {
		details["penaltyMultiplier"] = decision.PenaltyMultiplier
	}
	return rateLimitExceeded(
		"Too many requests. Please try again in "+FormatWait(retryAfter)+".",
		retryAfter,
		details,
	)
}

func (m *Middleware) handleFailure(ctx context.Context, endpointType models.EndpointType, opts Options, err error) error {
	failOpen := m.failOpen
	if opts.FailOpen != nil {
		failOpen = *opts.FailOpen
	}
	if m.metrics != nil {
		m.metrics.IncrementStoreError(string(endpointType), failOpen)
	}
	m.errorLog.Do(func() {
		observability.LogAudit(ctx, m.logger, slog.LevelError, observability.EventStoreFailure,
			"endpoint_type", endpointType,
			"fail_open", failOpen,
			"error_code", dErrors.CodeOf(err),
			"error", err,
		)
	})
	if failOpen {
		return nil
	}
	return serviceUnavailable()
}

func setDecisionHeaders(w http.ResponseWriter, d models.Decision) {
	h := w.Header()
	h.Set(HeaderEndpoint, string(d.EndpointType))
	h.Set(HeaderClient, clientHeader(d.ClientID))
	h.Set(HeaderLimit, strconv.Itoa(d.Limit))
	h.Set(HeaderRemaining, strconv.Itoa(max(d.Remaining, 0)))
	h.Set(HeaderReset, strconv.FormatInt(d.ResetTime.Unix(), 10))
}

// setFailureHeaders labels a failed check with whatever the engine resolved
// before its stores failed. Quota headers are omitted since no count is known.
func setFailureHeaders(w http.ResponseWriter, requested models.EndpointType, d models.Decision) {
	h := w.Header()
	endpoint := d.EndpointType
	if endpoint == "" {
		endpoint = requested
	}
	h.Set(HeaderEndpoint, string(endpoint))
	if d.ClientID != "" {
		h.Set(HeaderClient, clientHeader(d.ClientID))
	}
}

// clientHeader echoes address identities as resolved; device tokens are
// replaced by their fingerprint.
func clientHeader(id models.ClientIdentity) string {
	if id.Kind() == models.StrategyDevice {
		return string(models.StrategyDevice) + ":" + privacy.FingerprintToken(id.Value())
	}
	return string(id)
}

// FormatWait renders a retry-after in seconds as human-readable text.
func FormatWait(seconds int64) string {
	switch {
	case seconds <= 1:
		return "1 second"
	case seconds < 60:
		return fmt.Sprintf("%d seconds", seconds)
	}
	minutes := (seconds + 59) / 60
	if minutes == 1 {
		return "1 minute"
	}
	return fmt.Sprintf("%d minutes", minutes)
}

func firstOptions(opts []Options) Options {
	if len(opts) == 0 {
		return Options{}
	}
	return opts[0]
}
