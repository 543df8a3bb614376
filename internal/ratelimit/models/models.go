package models

import (
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	dErrors "boxoffice/pkg/domain-errors"
)

// EndpointType names a class of API surface with its own limit policy.
// The built-in types are listed below; callers may register custom ones.
type EndpointType string

const (
	// EndpointGeneral is the fallback policy for any unclassified route.
	EndpointGeneral EndpointType = "general"
	// EndpointPayment covers checkout and payment intents.
	EndpointPayment EndpointType = "payment"
	// EndpointAuth covers login, signup and password reset.
	EndpointAuth EndpointType = "auth"
	// EndpointEmail covers endpoints that send mail on the caller's behalf.
	EndpointEmail EndpointType = "email"
	// EndpointQRValidation covers ticket scanning at the venue door.
	EndpointQRValidation EndpointType = "qrValidation"
)

// IsValid reports whether t is usable as an endpoint type name.
func (t EndpointType) IsValid() bool {
	return t != "" && len(t) <= 64 && !strings.ContainsAny(string(t), " \t\r\n")
}

func (t EndpointType) String() string {
	return string(t)
}

// IdentityStrategy selects how a request's ClientIdentity is derived.
type IdentityStrategy string

const (
	StrategyIP     IdentityStrategy = "ip"
	StrategyDevice IdentityStrategy = "device"
)

func (s IdentityStrategy) IsValid() bool {
	return s == StrategyIP || s == StrategyDevice
}

// ParseIdentityStrategy creates an IdentityStrategy from a string, validating it.
func ParseIdentityStrategy(s string) (IdentityStrategy, error) {
	strategy := IdentityStrategy(strings.ToLower(strings.TrimSpace(s)))
	if !strategy.IsValid() {
		return "", dErrors.New(dErrors.CodeInvalidInput, "identity strategy must be 'ip' or 'device'")
	}
	return strategy, nil
}

// EndpointPolicy is the limit applied to one endpoint type.
type EndpointPolicy struct {
	EndpointType EndpointType     `json:"endpointType"`
	Strategy     IdentityStrategy `json:"identityStrategy"`
	Limit        int              `json:"limit"`
	Window       time.Duration    `json:"-"`
}

// NewEndpointPolicy creates an EndpointPolicy with domain invariant validation.
func NewEndpointPolicy(endpointType EndpointType, strategy IdentityStrategy, limit int, window time.Duration) (EndpointPolicy, error) {
	if !endpointType.IsValid() {
		return EndpointPolicy{}, dErrors.New(dErrors.CodeInvariantViolation, "invalid endpoint type")
	}
	if !strategy.IsValid() {
		return EndpointPolicy{}, dErrors.New(dErrors.CodeInvariantViolation, "invalid identity strategy for "+string(endpointType))
	}
	if limit <= 0 {
		return EndpointPolicy{}, dErrors.New(dErrors.CodeInvariantViolation, "limit must be positive for "+string(endpointType))
	}
	if window <= 0 {
		return EndpointPolicy{}, dErrors.New(dErrors.CodeInvariantViolation, "window must be positive for "+string(endpointType))
	}
	return EndpointPolicy{
		EndpointType: endpointType,
		Strategy:     strategy,
		Limit:        limit,
		Window:       window,
	}, nil
}

// WindowMs returns the window length in milliseconds.
func (p EndpointPolicy) WindowMs() int64 {
	return p.Window.Milliseconds()
}

// WindowCounter is the state of one fixed window for one counter key.
type WindowCounter struct {
	Count       int64     `json:"count"`
	WindowStart time.Time `json:"windowStart"`
	ExpiresAt   time.Time `json:"expiresAt"`
}

// IsExpired reports whether the window has ended at now.
func (c WindowCounter) IsExpired(now time.Time) bool {
	return !now.Before(c.ExpiresAt)
}

// PenaltyRecord tracks repeat violations for one client.
type PenaltyRecord struct {
	ClientID        ClientIdentity `json:"clientId"`
	Violations      int            `json:"violationCount"`
	Multiplier      float64        `json:"multiplier"`
	LastViolationAt time.Time      `json:"lastViolationAt"`
}

// Decayed returns the record as seen at now: one violation is forgiven per
// full decay period elapsed since the last (possibly already decayed) violation.
func (r PenaltyRecord) Decayed(now time.Time, decay time.Duration) PenaltyRecord {
	if r.Violations <= 0 || decay <= 0 || !now.After(r.LastViolationAt) {
		return r
	}
	steps := int(now.Sub(r.LastViolationAt) / decay)
	if steps <= 0 {
		return r
	}
	if steps >= r.Violations {
		r.Violations = 0
		r.LastViolationAt = now
		return r
	}
	r.Violations -= steps
	r.LastViolationAt = r.LastViolationAt.Add(time.Duration(steps) * decay)
	return r
}

// DecisionReason explains why a decision was made, when it is not a plain admit.
type DecisionReason string

const (
	ReasonNone              DecisionReason = ""
	ReasonWhitelisted       DecisionReason = "whitelisted"
	ReasonBlacklisted       DecisionReason = "blacklisted"
	ReasonRateLimitExceeded DecisionReason = "rate_limit_exceeded"
)

// Decision is the ephemeral outcome of one admission check.
type Decision struct {
	Allowed           bool           `json:"allowed"`
	ClientID          ClientIdentity `json:"clientId"`
	EndpointType      EndpointType   `json:"endpointType"`
	Limit             int            `json:"limit"`
	Remaining         int            `json:"remaining"`
	Window            time.Duration  `json:"-"`
	ResetTime         time.Time      `json:"resetTime"`
	Reason            DecisionReason `json:"reason,omitempty"`
	RetryAfter        time.Duration  `json:"-"`
	PenaltyMultiplier float64        `json:"penaltyMultiplier,omitempty"`
}

// RetryAfterSeconds rounds RetryAfter up to whole seconds, never below 1 for a
// denial that carries retry semantics.
func (d Decision) RetryAfterSeconds() int64 {
	if d.RetryAfter <= 0 {
		return 0
	}
	secs := int64(math.Ceil(d.RetryAfter.Seconds()))
	return max(secs, 1)
}

// AnalyticsSnapshot is a point-in-time copy of the process-wide counters.
type AnalyticsSnapshot struct {
	Allowed   int64 `json:"allowed"`
	Blocked   int64 `json:"blocked"`
	Penalties int64 `json:"penalties"`
}

// ListKind says which override list an entry belongs to.
type ListKind string

const (
	ListWhitelist ListKind = "whitelist"
	ListBlacklist ListKind = "blacklist"
)

func (k ListKind) IsValid() bool {
	return k == ListWhitelist || k == ListBlacklist
}

// AccessListEntry is one whitelist or blacklist rule. Pattern is either an
// exact identity ("ip:203.0.113.7", "device:abc") or an IP range ("ip:10.0.0.0/8").
type AccessListEntry struct {
	ID        string     `json:"id"`
	Kind      ListKind   `json:"kind"`
	Pattern   string     `json:"pattern"`
	Reason    string     `json:"reason,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

// NewAccessListEntry creates an AccessListEntry with domain invariant validation.
func NewAccessListEntry(kind ListKind, pattern, reason string, expiresAt *time.Time, now time.Time) (*AccessListEntry, error) {
	if !kind.IsValid() {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "invalid access list kind")
	}
	pattern = strings.TrimSpace(pattern)
	if pattern == "" {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "pattern cannot be empty")
	}
	if len(pattern) > 255 {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "pattern must be 255 characters or less")
	}
	if expiresAt != nil && !expiresAt.After(now) {
		return nil, dErrors.New(dErrors.CodeInvariantViolation, "expiry must be in the future")
	}
	return &AccessListEntry{
		ID:        uuid.NewString(),
		Kind:      kind,
		Pattern:   pattern,
		Reason:    reason,
		ExpiresAt: expiresAt,
		CreatedAt: now,
	}, nil
}

// IsExpiredAt reports whether the entry no longer applies at now.
func (e *AccessListEntry) IsExpiredAt(now time.Time) bool {
	return e.ExpiresAt != nil && !now.Before(*e.ExpiresAt)
}
