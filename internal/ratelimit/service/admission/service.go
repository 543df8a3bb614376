// Package admission implements the admission decision engine: for every
// request it resolves the endpoint policy and client identity, applies the
// access lists, counts the request in its fixed window and, on overflow,
// scales the retry-after by the client's penalty multiplier.
//
// Infrastructure failures are returned to the caller as CodeInternal errors.
// The engine never decides between failing open and failing closed.
package admission

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"boxoffice/internal/platform/tracer"
	"boxoffice/internal/ratelimit/config"
	"boxoffice/internal/ratelimit/models"
	"boxoffice/internal/ratelimit/observability"
	"boxoffice/internal/ratelimit/ports"
	dErrors "boxoffice/pkg/domain-errors"
	"boxoffice/pkg/platform/privacy"
	"boxoffice/pkg/requestcontext"
)

// PolicyRegistry resolves the policy for an endpoint type. GetPolicy falls
// back to general; Lookup reports whether the type is registered.
type PolicyRegistry interface {
	GetPolicy(endpointType models.EndpointType) models.EndpointPolicy
	Lookup(endpointType models.EndpointType) (models.EndpointPolicy, bool)
}

// IdentityResolver derives the client identity of a request. It never fails.
type IdentityResolver interface {
	Resolve(req *http.Request, strategy models.IdentityStrategy) models.ClientIdentity
}

// PenaltyTracker records violations and reports the current multiplier.
type PenaltyTracker interface {
	GetMultiplier(ctx context.Context, client models.ClientIdentity) (float64, error)
	RecordViolation(ctx context.Context, client models.ClientIdentity) (models.PenaltyRecord, error)
}

// Options adjusts a single admission check.
type Options struct {
	// ClientType overrides the policy's identity strategy when set.
	ClientType models.IdentityStrategy
}

type Service struct {
	registry      PolicyRegistry
	resolver      IdentityResolver
	counters      ports.CounterStore
	lists         ports.AccessList
	penalties     PenaltyTracker
	recorder      ports.DecisionRecorder
	tracer        tracer.Tracer
	logger        *slog.Logger
	storeTimeout  time.Duration
	minRetryAfter time.Duration
	unknownLog    *rate.Sometimes
}

type Option func(*Service)

func WithLogger(logger *slog.Logger) Option {
	return func(s *Service) {
		s.logger = logger
	}
}

// WithRecorder forwards every counted or blacklisted decision to recorder.
func WithRecorder(recorder ports.DecisionRecorder) Option {
	return func(s *Service) {
		s.recorder = recorder
	}
}

func WithTracer(t tracer.Tracer) Option {
	return func(s *Service) {
		s.tracer = t
	}
}

// WithConfig applies the store timeout and retry-after floor from cfg.
func WithConfig(cfg *config.Config) Option {
	return func(s *Service) {
		s.storeTimeout = cfg.StoreTimeout
		s.minRetryAfter = cfg.MinRetryAfter
	}
}

func New(
	registry PolicyRegistry,
	resolver IdentityResolver,
	counters ports.CounterStore,
	lists ports.AccessList,
	penalties PenaltyTracker,
	opts ...Option,
) (*Service, error) {
	if registry == nil {
		return nil, fmt.Errorf("policy registry is required")
	}
	if resolver == nil {
		return nil, fmt.Errorf("identity resolver is required")
	}
	if counters == nil {
		return nil, fmt.Errorf("counter store is required")
	}
	if lists == nil {
		return nil, fmt.Errorf("access list is required")
	}
	if penalties == nil {
		return nil, fmt.Errorf("penalty tracker is required")
	}

	defaults := config.DefaultConfig()
	svc := &Service{
		registry:      registry,
		resolver:      resolver,
		counters:      counters,
		lists:         lists,
		penalties:     penalties,
		tracer:        tracer.NewNoop(),
		logger:        slog.Default(),
		storeTimeout:  defaults.StoreTimeout,
		minRetryAfter: defaults.MinRetryAfter,
		unknownLog:    &rate.Sometimes{First: 1, Interval: time.Minute},
	}

	for _, opt := range opts {
		opt(svc)
	}

	return svc, nil
}

// CheckRateLimit decides whether req may proceed against the policy for
// endpointType. A denied decision carries Reason and, for quota overflow,
// RetryAfter and PenaltyMultiplier. When a store fails the returned decision
// is not allowed and carries only the client, endpoint type and policy.
func (s *Service) CheckRateLimit(ctx context.Context, req *http.Request, endpointType models.EndpointType, opts Options) (models.Decision, error) {
	policy, known := s.registry.Lookup(endpointType)
	if !known {
		policy = s.registry.GetPolicy(endpointType)
		s.unknownLog.Do(func() {
			s.logger.WarnContext(ctx, "unregistered endpoint type, applying general policy",
				"endpoint_type", endpointType,
			)
		})
	}
	strategy := policy.Strategy
	if opts.ClientType.IsValid() {
		strategy = opts.ClientType
	}
	client := s.resolver.Resolve(req, strategy)

	ctx, span := s.tracer.Start(ctx, tracer.SpanAdmissionCheck,
		tracer.String(tracer.AttrEndpointType, string(policy.EndpointType)),
		tracer.String(tracer.AttrStrategy, string(strategy)),
		tracer.String(tracer.AttrClientKind, string(client.Kind())),
		tracer.Int64(tracer.AttrLimit, int64(policy.Limit)),
	)

	if s.storeTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, s.storeTimeout)
		defer cancel()
	}

	decision, err := s.check(ctx, policy, client)
	if err == nil {
		span.SetAttributes(
			tracer.Bool(tracer.AttrAllowed, decision.Allowed),
			tracer.String(tracer.AttrReason, string(decision.Reason)),
		)
	}
	span.End(err)
	return decision, err
}

func (s *Service) check(ctx context.Context, policy models.EndpointPolicy, client models.ClientIdentity) (models.Decision, error) {
	now := requestcontext.Now(ctx)
	decision := models.Decision{
		ClientID:     client,
		EndpointType: policy.EndpointType,
		Limit:        policy.Limit,
		Window:       policy.Window,
		ResetTime:    now.Add(policy.Window),
	}

	blacklisted, err := s.lists.IsBlacklisted(ctx, client)
	if err != nil {
		return identified(decision), dErrors.Wrap(err, dErrors.CodeInternal, "failed to check blacklist")
	}
	if blacklisted {
		decision.Reason = models.ReasonBlacklisted
		s.record(ctx, decision, false)
		observability.LogAudit(ctx, s.logger, slog.LevelWarn, observability.EventBlacklistDenied,
			"client", privacy.AnonymizeIdentity(string(client)),
			"endpoint_type", policy.EndpointType,
		)
		return decision, nil
	}

	whitelisted, err := s.lists.IsWhitelisted(ctx, client)
	if err != nil {
		return identified(decision), dErrors.Wrap(err, dErrors.CodeInternal, "failed to check whitelist")
	}
	if whitelisted {
		decision.Allowed = true
		decision.Remaining = policy.Limit
		decision.Reason = models.ReasonWhitelisted
		observability.LogAudit(ctx, s.logger, slog.LevelDebug, observability.EventWhitelistBypass,
			"client", privacy.AnonymizeIdentity(string(client)),
			"endpoint_type", policy.EndpointType,
		)
		return decision, nil
	}

	counter, err := s.counters.IncrementAndCheck(ctx, models.NewCounterKey(policy.EndpointType, client), policy.Window)
	if err != nil {
		return identified(decision), dErrors.Wrap(err, dErrors.CodeInternal, "failed to increment window counter")
	}
	decision.ResetTime = counter.ExpiresAt

	if counter.Count <= int64(policy.Limit) {
		decision.Allowed = true
		decision.Remaining = policy.Limit - int(counter.Count)
		s.record(ctx, decision, false)
		return decision, nil
	}

	// The multiplier in force before this violation scales its retry-after;
	// recording the violation escalates the next one.
	multiplier, err := s.penalties.GetMultiplier(ctx, client)
	if err != nil {
		return identified(decision), dErrors.Wrap(err, dErrors.CodeInternal, "failed to read penalty multiplier")
	}
	base := max(counter.ExpiresAt.Sub(now), s.minRetryAfter)
	decision.Reason = models.ReasonRateLimitExceeded
	decision.RetryAfter = time.Duration(float64(base) * multiplier)
	decision.PenaltyMultiplier = multiplier

	record, err := s.penalties.RecordViolation(ctx, client)
	if err != nil {
		return identified(decision), dErrors.Wrap(err, dErrors.CodeInternal, "failed to record violation")
	}

	penalized := multiplier > 1
	s.record(ctx, decision, penalized)

	observability.LogAudit(ctx, s.logger, slog.LevelInfo, observability.EventRateLimitExceeded,
		"client", privacy.AnonymizeIdentity(string(client)),
		"endpoint_type", policy.EndpointType,
		"limit", policy.Limit,
		"count", counter.Count,
		"retry_after_seconds", decision.RetryAfterSeconds(),
	)
	if penalized {
		observability.LogAudit(ctx, s.logger, slog.LevelWarn, observability.EventPenaltyEscalated,
			"client", privacy.AnonymizeIdentity(string(client)),
			"violations", record.Violations,
			"multiplier", multiplier,
			"next_multiplier", record.Multiplier,
		)
	}
	return decision, nil
}

// identified strips d down to what is known before any store answered.
func identified(d models.Decision) models.Decision {
	return models.Decision{
		ClientID:     d.ClientID,
		EndpointType: d.EndpointType,
		Limit:        d.Limit,
		Window:       d.Window,
	}
}

func (s *Service) record(ctx context.Context, decision models.Decision, penalized bool) {
	if s.recorder != nil {
		s.recorder.Record(ctx, decision, penalized)
	}
}
