package httptransport

import (
	"errors"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"boxoffice/internal/platform/health"
	"boxoffice/internal/ratelimit/handler"
	"boxoffice/internal/ratelimit/middleware"
	"boxoffice/internal/ratelimit/models"
	"boxoffice/pkg/platform/middleware/metadata"
	"boxoffice/pkg/platform/middleware/request"
	"boxoffice/pkg/platform/middleware/requesttime"
)

const defaultMaxBodyBytes = 1 << 20

// Dependencies are the collaborators the router wires together.
type Dependencies struct {
	Logger    *slog.Logger
	RateLimit *middleware.Middleware
	Status    *handler.Handler
	Health    *health.Handler
	Metadata  *metadata.Middleware
	Metrics   *request.Metrics
	// MetricsHandler serves /metrics. Omitted when nil.
	MetricsHandler http.Handler
	// Backend is the ticketing application the rate-limited routes front.
	// Requests that pass admission control are forwarded to it unchanged.
	Backend http.Handler

	RequestTimeout time.Duration
	MaxBodyBytes   int64
	// Clock overrides the request clock. Defaults to time.Now.
	Clock func() time.Time
}

// NewRouter wires all public endpoints with middleware.
func NewRouter(deps Dependencies) (http.Handler, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.RateLimit == nil {
		return nil, errors.New("rate limit middleware is required")
	}
	if deps.Backend == nil {
		deps.Backend = http.HandlerFunc(notImplemented)
	}
	if deps.RequestTimeout <= 0 {
		deps.RequestTimeout = 30 * time.Second
	}
	if deps.MaxBodyBytes <= 0 {
		deps.MaxBodyBytes = defaultMaxBodyBytes
	}
	if deps.Clock == nil {
		deps.Clock = time.Now
	}

	r := chi.NewRouter()
	r.Use(request.Recovery(deps.Logger))
	r.Use(request.RequestID)
	r.Use(request.Logger(deps.Logger))
	r.Use(request.Timeout(deps.RequestTimeout))
	r.Use(request.BodyLimit(deps.MaxBodyBytes))
	r.Use(requesttime.WithClock(deps.Clock))
	if deps.Metadata != nil {
		r.Use(deps.Metadata.Handler)
	}

	if deps.Health != nil {
		deps.Health.Register(r)
	}
	if deps.MetricsHandler != nil {
		r.Handle("/metrics", deps.MetricsHandler)
	}

	r.Route("/api", func(r chi.Router) {
		if deps.Status != nil {
			deps.Status.Register(r)
		}
		for _, route := range ticketingRoutes {
			r.With(
				request.LatencyMiddleware(deps.Metrics, string(route.endpoint)),
				deps.RateLimit.RateLimit(route.endpoint),
			).Method(route.method, route.pattern, deps.Backend)
		}
	})

	return r, nil
}

type ticketingRoute struct {
	method   string
	pattern  string
	endpoint models.EndpointType
}

// ticketingRoutes maps the public ticketing surface to endpoint classes.
var ticketingRoutes = []ticketingRoute{
	{http.MethodPost, "/auth/login", models.EndpointAuth},
	{http.MethodPost, "/auth/password-reset", models.EndpointAuth},
	{http.MethodPost, "/payments", models.EndpointPayment},
	{http.MethodPost, "/orders/{orderID}/checkout", models.EndpointPayment},
	{http.MethodPost, "/email/send", models.EndpointEmail},
	{http.MethodPost, "/tickets/validate", models.EndpointQRValidation},
	{http.MethodGet, "/events", models.EndpointGeneral},
	{http.MethodGet, "/events/{eventID}", models.EndpointGeneral},
}

func notImplemented(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusNotImplemented)
	_, _ = w.Write([]byte(`{"type":"not_implemented","message":"No backend configured"}`))
}
