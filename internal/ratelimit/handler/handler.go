package handler

import (
	"context"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/mssola/useragent"

	"boxoffice/internal/ratelimit/models"
	"boxoffice/pkg/platform/httputil"
	"boxoffice/pkg/platform/privacy"
	"boxoffice/pkg/requestcontext"
)

// PolicySource lists the configured endpoint policies.
type PolicySource interface {
	Policies() []models.EndpointPolicy
}

// IdentityResolver exposes how the limiter sees the caller.
type IdentityResolver interface {
	Resolve(req *http.Request, strategy models.IdentityStrategy) models.ClientIdentity
	ClientIP(req *http.Request) string
}

// AnalyticsSource reports the process-wide decision counters.
type AnalyticsSource interface {
	Snapshot() models.AnalyticsSnapshot
}

// UsageSource reads live window counters without counting.
type UsageSource interface {
	Get(ctx context.Context, key string) (models.WindowCounter, bool, error)
}

// FleetSource reads the decision counts every instance shares.
type FleetSource interface {
	Minute(ctx context.Context, at time.Time) (map[string]int64, error)
}

// Handler serves the read-only diagnostics endpoint. Hardened environments get
// policies and an anonymised client summary; detailed mode adds the raw client
// identity and analytics counters.
type Handler struct {
	policies  PolicySource
	resolver  IdentityResolver
	analytics AnalyticsSource
	usage     UsageSource
	fleet     FleetSource
	logger    *slog.Logger
	detailed  bool
}

type Option func(*Handler)

// WithDetailedStatus enables the raw client identity and analytics counters.
// Only permissive environments should enable it.
func WithDetailedStatus(detailed bool) Option {
	return func(h *Handler) {
		h.detailed = detailed
	}
}

// WithUsage reports the caller's live count per endpoint in detailed mode.
func WithUsage(usage UsageSource) Option {
	return func(h *Handler) {
		h.usage = usage
	}
}

// WithFleet reports the shared counts for the current minute in detailed mode.
func WithFleet(fleet FleetSource) Option {
	return func(h *Handler) {
		h.fleet = fleet
	}
}

func New(policies PolicySource, resolver IdentityResolver, analytics AnalyticsSource, logger *slog.Logger, opts ...Option) *Handler {
	h := &Handler{
		policies:  policies,
		resolver:  resolver,
		analytics: analytics,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(h)
	}
	return h
}

func (h *Handler) Register(r chi.Router) {
	r.Get("/rate-limit/status", h.HandleStatus)
}

// HandleStatus implements GET /rate-limit/status.
// Output: { "timestamp": "...", "client": {...}, "endpoints": [...], "analytics"?: {...}, "fleet"?: {...} }
func (h *Handler) HandleStatus(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	policies := h.policies.Policies()
	endpoints := make([]models.EndpointSummary, 0, len(policies))
	for _, p := range policies {
		endpoints = append(endpoints, models.NewEndpointSummary(p))
	}

	resp := models.StatusResponse{
		Timestamp: requestcontext.Now(ctx).UTC(),
		Client:    summarizeClient(r.UserAgent()),
		Endpoints: endpoints,
	}
	resp.Client.IPPrefix = privacy.AnonymizeIP(h.resolver.ClientIP(r))

	if h.detailed {
		resp.Client.ID = string(h.resolver.Resolve(r, models.StrategyDevice))
		if h.analytics != nil {
			snapshot := h.analytics.Snapshot()
			resp.Analytics = &snapshot
		}
		if h.usage != nil {
			h.fillUsage(r, policies, resp.Endpoints)
		}
		if h.fleet != nil {
			fleet, err := h.fleet.Minute(ctx, resp.Timestamp)
			if err != nil {
				h.logger.WarnContext(ctx, "failed to read fleet analytics", "error", err)
			} else {
				resp.Fleet = fleet
			}
		}
	}

	h.logger.DebugContext(ctx, "rate limit status served",
		"detailed", h.detailed,
		"request_id", requestcontext.RequestID(ctx),
	)
	httputil.WriteJSON(w, http.StatusOK, resp)
}

// fillUsage sets Used on each summary from the counter the caller would hit.
// Unreadable counters are left nil.
func (h *Handler) fillUsage(r *http.Request, policies []models.EndpointPolicy, endpoints []models.EndpointSummary) {
	ctx := r.Context()
	for i, p := range policies {
		client := h.resolver.Resolve(r, p.Strategy)
		counter, ok, err := h.usage.Get(ctx, models.NewCounterKey(p.EndpointType, client))
		if err != nil {
			h.logger.WarnContext(ctx, "failed to read window usage",
				"endpoint_type", p.EndpointType,
				"error", err,
			)
			continue
		}
		var used int64
		if ok {
			used = counter.Count
		}
		endpoints[i].Used = &used
	}
}

func summarizeClient(userAgent string) models.ClientSummary {
	if strings.TrimSpace(userAgent) == "" {
		return models.ClientSummary{}
	}
	ua := useragent.New(userAgent)
	browser, _ := ua.Browser()
	return models.ClientSummary{
		Browser: browser,
		OS:      ua.OS(),
		Mobile:  ua.Mobile(),
		Bot:     ua.Bot(),
	}
}
