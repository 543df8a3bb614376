package httptransport

import (
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/stretchr/testify/suite"

	"boxoffice/internal/platform/health"
	"boxoffice/internal/ratelimit/analytics"
	"boxoffice/internal/ratelimit/config"
	"boxoffice/internal/ratelimit/handler"
	"boxoffice/internal/ratelimit/identity"
	"boxoffice/internal/ratelimit/metrics"
	"boxoffice/internal/ratelimit/middleware"
	"boxoffice/internal/ratelimit/models"
	"boxoffice/internal/ratelimit/policy"
	"boxoffice/internal/ratelimit/service/admission"
	"boxoffice/internal/ratelimit/service/penalty"
	"boxoffice/internal/ratelimit/store/accesslist"
	"boxoffice/internal/ratelimit/store/counter"
	penaltystore "boxoffice/internal/ratelimit/store/penalty"
	"boxoffice/pkg/platform/middleware/metadata"
	"boxoffice/pkg/platform/middleware/request"
)

type RouterSuite struct {
	suite.Suite
	now     time.Time
	router  http.Handler
	backend int
}

func TestRouterSuite(t *testing.T) {
	suite.Run(t, new(RouterSuite))
}

func (s *RouterSuite) SetupTest() {
	s.now = time.Date(2026, 3, 14, 19, 30, 0, 0, time.UTC)
	s.backend = 0
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	reg := prometheus.NewRegistry()
	m := metrics.NewWithRegistry(reg)

	cfg := config.DefaultConfig()
	cfg.Blacklist = []string{"ip:198.51.100.66"}

	registry, err := policy.NewRegistry(cfg.Policies)
	s.Require().NoError(err)
	extractor, err := metadata.NewExtractor(nil)
	s.Require().NoError(err)
	resolver, err := identity.New(extractor, identity.WithLogger(logger))
	s.Require().NoError(err)
	lists, err := accesslist.NewInMemoryAccessList(cfg.Whitelist, cfg.Blacklist)
	s.Require().NoError(err)
	penaltyStore, err := penaltystore.NewInMemoryPenaltyStore(cfg.Penalty.MaxTracked)
	s.Require().NoError(err)
	tracker, err := penalty.New(penaltyStore, penalty.WithConfig(cfg.Penalty), penalty.WithLogger(logger))
	s.Require().NoError(err)
	agg := analytics.New(analytics.WithLogger(logger), analytics.WithMetrics(m))

	engine, err := admission.New(registry, resolver, counter.NewInMemoryCounterStore(), lists, tracker,
		admission.WithLogger(logger),
		admission.WithConfig(cfg),
		admission.WithRecorder(agg),
	)
	s.Require().NoError(err)
	rl, err := middleware.New(engine, middleware.WithLogger(logger), middleware.WithMetrics(m))
	s.Require().NoError(err)

	router, err := NewRouter(Dependencies{
		Logger:         logger,
		RateLimit:      rl,
		Status:         handler.New(registry, resolver, agg, logger, handler.WithDetailedStatus(true)),
		Health:         health.New("test"),
		Metadata:       metadata.NewMiddleware(extractor),
		Metrics:        request.NewMetricsWithRegistry(reg),
		MetricsHandler: promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		Backend: http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
			s.backend++
			w.WriteHeader(http.StatusNoContent)
		}),
		Clock:        func() time.Time { return s.now },
		MaxBodyBytes: 256,
	})
	s.Require().NoError(err)
	s.router = router
}

func (s *RouterSuite) do(method, path, remoteAddr string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, nil)
	req.RemoteAddr = remoteAddr
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)
	return rec
}

func (s *RouterSuite) TestTicketingRoutes() {
	s.Run("allowed request reaches the backend with rate limit headers", func() {
		rec := s.do(http.MethodPost, "/api/auth/login", "203.0.113.7:4000")

		s.Equal(http.StatusNoContent, rec.Code)
		s.Equal(1, s.backend)
		s.Equal("auth", rec.Header().Get(middleware.HeaderEndpoint))
		s.Equal("5", rec.Header().Get(middleware.HeaderLimit))
		s.Equal("4", rec.Header().Get(middleware.HeaderRemaining))
		s.NotEmpty(rec.Header().Get("X-Request-ID"))
	})

	s.Run("routes of one class share a bucket", func() {
		rec := s.do(http.MethodPost, "/api/auth/password-reset", "203.0.113.7:4000")
		s.Equal("3", rec.Header().Get(middleware.HeaderRemaining))
	})

	s.Run("exhausted class is rejected before the backend", func() {
		for range 3 {
			s.do(http.MethodPost, "/api/auth/login", "203.0.113.7:4000")
		}
		before := s.backend

		rec := s.do(http.MethodPost, "/api/auth/login", "203.0.113.7:4000")

		s.Equal(http.StatusTooManyRequests, rec.Code)
		s.Equal(before, s.backend)
		s.Equal("60", rec.Header().Get(middleware.HeaderRetryAfter))
	})

	s.Run("other classes are unaffected", func() {
		rec := s.do(http.MethodGet, "/api/events/evt-42", "203.0.113.7:4000")
		s.Equal(http.StatusNoContent, rec.Code)
		s.Equal("general", rec.Header().Get(middleware.HeaderEndpoint))
	})

	s.Run("blacklisted client is denied", func() {
		rec := s.do(http.MethodGet, "/api/events", "198.51.100.66:4000")

		s.Equal(http.StatusForbidden, rec.Code)
		var body map[string]any
		s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
		s.Equal(middleware.TypeAccessDenied, body["type"])
	})
}

func (s *RouterSuite) TestOversizedBodyIsRefusedBeforeAdmission() {
	payload := `{"orderId":"ord_7Qx2","note":"` + strings.Repeat("x", 300) + `"}`
	req := httptest.NewRequest(http.MethodPost, "/api/payments", strings.NewReader(payload))
	req.RemoteAddr = "203.0.113.9:4000"
	rec := httptest.NewRecorder()
	s.router.ServeHTTP(rec, req)

	s.Equal(http.StatusRequestEntityTooLarge, rec.Code)
	s.Equal(0, s.backend)
	s.Empty(rec.Header().Get(middleware.HeaderEndpoint), "the rate limiter never saw the request")

	rec = s.do(http.MethodPost, "/api/payments", "203.0.113.9:4000")
	s.Equal(http.StatusNoContent, rec.Code)
	limit, err := strconv.Atoi(rec.Header().Get(middleware.HeaderLimit))
	s.Require().NoError(err)
	s.Equal(strconv.Itoa(limit-1), rec.Header().Get(middleware.HeaderRemaining))
}

func (s *RouterSuite) TestStatusEndpoint() {
	s.do(http.MethodPost, "/api/payments", "203.0.113.7:4000")

	rec := s.do(http.MethodGet, "/api/rate-limit/status", "203.0.113.7:4000")

	s.Require().Equal(http.StatusOK, rec.Code)
	var body models.StatusResponse
	s.Require().NoError(json.Unmarshal(rec.Body.Bytes(), &body))
	s.Equal("ip:203.0.113.7", body.Client.ID)
	s.True(body.Timestamp.Equal(s.now))
	s.Len(body.Endpoints, 5)
	s.Require().NotNil(body.Analytics)
	s.Equal(int64(1), body.Analytics.Allowed)
}

func (s *RouterSuite) TestOperationalEndpoints() {
	s.Run("health", func() {
		rec := s.do(http.MethodGet, "/health/live", "127.0.0.1:1")
		s.Equal(http.StatusOK, rec.Code)
	})

	s.Run("metrics exposes decisions", func() {
		s.do(http.MethodGet, "/api/events", "203.0.113.9:4000")

		rec := s.do(http.MethodGet, "/metrics", "127.0.0.1:1")
		s.Equal(http.StatusOK, rec.Code)
		s.True(strings.Contains(rec.Body.String(), "boxoffice_endpoint_latency_seconds"))
	})
}

func TestNewRouter_RequiresDependencies(t *testing.T) {
	_, err := NewRouter(Dependencies{})
	require.Error(t, err)

	_, err = NewRouter(Dependencies{Logger: slog.Default()})
	assert.Error(t, err)
}
