package admission

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/netip"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"boxoffice/internal/ratelimit/config"
	"boxoffice/internal/ratelimit/identity"
	"boxoffice/internal/ratelimit/models"
	"boxoffice/internal/ratelimit/policy"
	penaltySvc "boxoffice/internal/ratelimit/service/penalty"
	"boxoffice/internal/ratelimit/store/accesslist"
	"boxoffice/internal/ratelimit/store/counter"
	penaltyStore "boxoffice/internal/ratelimit/store/penalty"
	"boxoffice/pkg/platform/middleware/metadata"
	"boxoffice/pkg/requestcontext"
	"boxoffice/pkg/testutil"
)

// =============================================================================
// Admission Engine Behaviour Suite
// =============================================================================
// Justification: The engine is the single decision point for every request on
// payment, auth, email and ticket scanning routes. These tests run it against
// the real in-memory stores so quota, window, penalty and access list
// semantics are verified end to end.

type AdmissionSuite struct {
	suite.Suite
	cfg      *config.Config
	counters *counter.InMemoryCounterStore
	lists    *accesslist.InMemoryAccessList
	recorder *fakeRecorder
	service  *Service
	proxies  *metadata.Config
	logs     *bytes.Buffer
}

func TestAdmissionSuite(t *testing.T) {
	suite.Run(t, new(AdmissionSuite))
}

func (s *AdmissionSuite) SetupTest() {
	s.cfg = config.DefaultConfig()
	s.proxies = metadata.DefaultConfig()
	s.build(s.cfg.Policies, []string{"ip:203.0.113.50", "device:venue-scanner-01"}, []string{"ip:198.51.100.0/24"})
}

func (s *AdmissionSuite) build(policies map[models.EndpointType]models.EndpointPolicy, whitelist, blacklist []string) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	registry, err := policy.NewRegistry(policies)
	s.Require().NoError(err)

	extractor, err := metadata.NewExtractor(s.proxies)
	s.Require().NoError(err)
	resolver, err := identity.New(extractor, identity.WithLogger(logger))
	s.Require().NoError(err)

	s.counters = counter.NewInMemoryCounterStore()
	s.lists, err = accesslist.NewInMemoryAccessList(whitelist, blacklist)
	s.Require().NoError(err)

	penalties, err := penaltyStore.NewInMemoryPenaltyStore(1000)
	s.Require().NoError(err)
	tracker, err := penaltySvc.New(penalties, penaltySvc.WithConfig(s.cfg.Penalty))
	s.Require().NoError(err)

	s.recorder = &fakeRecorder{}
	s.logs = &bytes.Buffer{}
	s.service, err = New(registry, resolver, s.counters, s.lists, tracker,
		WithConfig(s.cfg),
		WithLogger(slog.New(slog.NewJSONHandler(s.logs, nil))),
		WithRecorder(s.recorder),
	)
	s.Require().NoError(err)
}

func (s *AdmissionSuite) check(at time.Duration, req *http.Request, endpoint models.EndpointType) models.Decision {
	ctx := requestcontext.WithTime(context.Background(), testutil.At(at))
	d, err := s.service.CheckRateLimit(ctx, req.WithContext(ctx), endpoint, Options{})
	s.Require().NoError(err)
	return d
}

func (s *AdmissionSuite) TestForwardedForRotationBehindProxy() {
	s.proxies = &metadata.Config{TrustedProxies: []netip.Prefix{netip.MustParsePrefix("10.0.0.0/8")}}
	s.build(s.cfg.Policies, nil, nil)

	allowed := 0
	for i := 0; i < 50; i++ {
		req := testutil.NewRequest(http.MethodPost, "/api/auth/login", "10.0.0.1",
			"X-Forwarded-For", fmt.Sprintf("203.0.113.%d, 198.51.100.7", i))
		d := s.check(time.Duration(i)*100*time.Millisecond, req, models.EndpointAuth)
		if d.Allowed {
			allowed++
		}
		s.Equal(models.ClientIdentity("ip:198.51.100.7"), d.ClientID)
	}
	s.Equal(5, allowed)
}

func (s *AdmissionSuite) TestNew() {
	s.Run("nil dependencies rejected", func() {
		_, err := New(nil, nil, nil, nil, nil)
		s.Error(err)
	})
}

// =============================================================================
// Quota and Window Behaviour
// =============================================================================

func (s *AdmissionSuite) TestAuthLoginScenario() {
	req := testutil.NewRequest(http.MethodPost, "/api/auth/login", "192.0.2.10")

	s.Run("five attempts in ten seconds are admitted", func() {
		for i := 0; i < 5; i++ {
			d := s.check(time.Duration(i*2)*time.Second, req, models.EndpointAuth)
			s.True(d.Allowed, "attempt %d", i+1)
			s.Equal(5, d.Limit)
			s.Equal(4-i, d.Remaining)
			s.True(d.ResetTime.Equal(testutil.At(time.Minute)))
		}
	})

	s.Run("sixth attempt at fifteen seconds waits out the window", func() {
		d := s.check(15*time.Second, req, models.EndpointAuth)
		s.False(d.Allowed)
		s.Equal(models.ReasonRateLimitExceeded, d.Reason)
		s.Equal(0, d.Remaining)
		s.Equal(45*time.Second, d.RetryAfter)
		s.Equal(int64(45), d.RetryAfterSeconds())
		s.Equal(1.0, d.PenaltyMultiplier)
	})

	s.Run("a fresh window opens after sixty seconds", func() {
		d := s.check(61*time.Second, req, models.EndpointAuth)
		s.True(d.Allowed)
		s.Equal(4, d.Remaining)
		s.True(d.ResetTime.Equal(testutil.At(121 * time.Second)))
	})
}

func (s *AdmissionSuite) TestEndpointsAreCountedSeparately() {
	req := testutil.NewRequest(http.MethodPost, "/api/email/send", "192.0.2.11")

	for i := 0; i < 3; i++ {
		s.True(s.check(0, req, models.EndpointEmail).Allowed)
	}
	s.False(s.check(time.Second, req, models.EndpointEmail).Allowed)

	d := s.check(time.Second, req, models.EndpointAuth)
	s.True(d.Allowed)
	s.Equal(4, d.Remaining)
}

func (s *AdmissionSuite) TestUnknownEndpointUsesGeneralPolicy() {
	req := testutil.NewRequest(http.MethodGet, "/api/events", "192.0.2.12")

	d := s.check(0, req, "seatMap")
	s.True(d.Allowed)
	s.Equal(models.EndpointGeneral, d.EndpointType)
	s.Equal(100, d.Limit)
	s.Equal(99, d.Remaining)
	s.Contains(s.logs.String(), "unregistered endpoint type")
	s.Contains(s.logs.String(), `"endpoint_type":"seatMap"`)

	s.Run("registered types are not reported", func() {
		s.logs.Reset()
		s.check(0, req, models.EndpointGeneral)
		s.NotContains(s.logs.String(), "unregistered endpoint type")
	})
}

func (s *AdmissionSuite) TestMinimumRetryAfter() {
	req := testutil.NewRequest(http.MethodPost, "/api/auth/login", "192.0.2.13")
	for i := 0; i < 5; i++ {
		s.check(0, req, models.EndpointAuth)
	}

	d := s.check(time.Minute-100*time.Millisecond, req, models.EndpointAuth)
	s.False(d.Allowed)
	s.Equal(s.cfg.MinRetryAfter, d.RetryAfter)
}

// =============================================================================
// Penalty Escalation
// =============================================================================

func (s *AdmissionSuite) TestRepeatOffendersWaitLonger() {
	req := testutil.NewRequest(http.MethodPost, "/api/auth/login", "192.0.2.14")
	for i := 0; i < 5; i++ {
		s.check(0, req, models.EndpointAuth)
	}

	first := s.check(10*time.Second, req, models.EndpointAuth)
	s.Equal(50*time.Second, first.RetryAfter)
	s.Equal(1.0, first.PenaltyMultiplier)

	second := s.check(20*time.Second, req, models.EndpointAuth)
	s.Equal(2.0, second.PenaltyMultiplier)
	s.Equal(80*time.Second, second.RetryAfter)

	third := s.check(30*time.Second, req, models.EndpointAuth)
	s.Equal(4.0, third.PenaltyMultiplier)
	s.Equal(120*time.Second, third.RetryAfter)

	s.Run("quota is not reduced by penalties", func() {
		d := s.check(61*time.Second, req, models.EndpointAuth)
		s.True(d.Allowed)
		s.Equal(4, d.Remaining)
	})

	s.Equal(int64(2), s.recorder.penalized())
}

func (s *AdmissionSuite) TestPenaltiesAreSharedAcrossEndpoints() {
	req := testutil.NewRequest(http.MethodPost, "/api/email/send", "192.0.2.15")
	for i := 0; i < 4; i++ {
		s.check(0, req, models.EndpointEmail)
	}
	for i := 0; i < 6; i++ {
		s.check(time.Second, req, models.EndpointAuth)
	}

	d := s.check(2*time.Second, req, models.EndpointAuth)
	s.False(d.Allowed)
	s.Equal(4.0, d.PenaltyMultiplier)
}

// =============================================================================
// Access Lists
// =============================================================================

func (s *AdmissionSuite) TestWhitelistBypassesCounting() {
	req := testutil.NewRequest(http.MethodPost, "/api/auth/login", "203.0.113.50")

	for i := 0; i < 200; i++ {
		d := s.check(time.Duration(i)*time.Millisecond, req, models.EndpointAuth)
		s.Require().True(d.Allowed)
		s.Equal(models.ReasonWhitelisted, d.Reason)
		s.Equal(5, d.Remaining)
	}

	_, ok, err := s.counters.Get(context.Background(), models.NewCounterKey(models.EndpointAuth, "ip:203.0.113.50"))
	s.Require().NoError(err)
	s.False(ok, "whitelisted requests must not create a window counter")
	s.Equal(0, s.counters.Len())
	s.Zero(s.recorder.count())
}

func (s *AdmissionSuite) TestWhitelistedDevice() {
	req := testutil.NewRequest(http.MethodPost, "/api/tickets/validate", "192.0.2.16",
		identity.DefaultDeviceHeader, "venue-scanner-01")

	for i := 0; i < 100; i++ {
		s.Require().True(s.check(0, req, models.EndpointQRValidation).Allowed)
	}
	s.Equal(0, s.counters.Len())
}

func (s *AdmissionSuite) TestBlacklistIsAbsolute() {
	req := testutil.NewRequest(http.MethodGet, "/api/events", "198.51.100.77")

	d := s.check(0, req, models.EndpointGeneral)
	s.False(d.Allowed)
	s.Equal(models.ReasonBlacklisted, d.Reason)
	s.Zero(d.RetryAfter)
	s.Equal(0, s.counters.Len(), "blacklisted requests must not touch counters")
	s.Equal(int64(1), s.recorder.count())
}

func (s *AdmissionSuite) TestBlacklistWinsOverWhitelist() {
	s.build(s.cfg.Policies, []string{"ip:198.51.100.8"}, []string{"ip:198.51.100.0/24"})

	d := s.check(0, testutil.NewRequest(http.MethodGet, "/", "198.51.100.8"), models.EndpointGeneral)
	s.False(d.Allowed)
	s.Equal(models.ReasonBlacklisted, d.Reason)
}

func (s *AdmissionSuite) TestRuntimeListChanges() {
	req := testutil.NewRequest(http.MethodGet, "/api/events", "192.0.2.17")
	ctx := requestcontext.WithTime(context.Background(), testutil.At(0))
	expiry := testutil.At(time.Minute)

	entry, err := models.NewAccessListEntry(models.ListBlacklist, "ip:192.0.2.17", "card testing", &expiry, testutil.At(0))
	s.Require().NoError(err)
	s.Require().NoError(s.lists.Add(ctx, entry))

	s.Equal(models.ReasonBlacklisted, s.check(time.Second, req, models.EndpointGeneral).Reason)
	s.True(s.check(time.Minute, req, models.EndpointGeneral).Allowed, "expired entries no longer apply")
}

// =============================================================================
// Identity Strategy
// =============================================================================

func (s *AdmissionSuite) TestDeviceStrategy() {
	s.Run("device token keys the bucket", func() {
		req := testutil.NewRequest(http.MethodPost, "/api/payments", "192.0.2.20",
			identity.DefaultDeviceHeader, "device-aaaaaaaa")
		d := s.check(0, req, models.EndpointPayment)
		s.Equal(models.ClientIdentity("device:device-aaaaaaaa"), d.ClientID)
	})

	s.Run("missing token falls back to address", func() {
		req := testutil.NewRequest(http.MethodPost, "/api/payments", "192.0.2.20")
		d := s.check(0, req, models.EndpointPayment)
		s.Equal(models.ClientIdentity("ip:192.0.2.20"), d.ClientID)
	})

	s.Run("client type override", func() {
		req := testutil.NewRequest(http.MethodPost, "/api/payments", "192.0.2.21",
			identity.DefaultDeviceHeader, "device-bbbbbbbb")
		ctx := requestcontext.WithTime(context.Background(), testutil.At(0))
		d, err := s.service.CheckRateLimit(ctx, req, models.EndpointPayment, Options{ClientType: models.StrategyIP})
		s.Require().NoError(err)
		s.Equal(models.ClientIdentity("ip:192.0.2.21"), d.ClientID)
	})

	s.Run("requests without an address share one bucket", func() {
		req := testutil.NewRequest(http.MethodGet, "/", "")
		d := s.check(0, req, models.EndpointGeneral)
		s.Equal(models.UnknownIdentity, d.ClientID)
		s.Equal(99, d.Remaining)
		d = s.check(0, testutil.NewRequest(http.MethodGet, "/", ""), models.EndpointGeneral)
		s.Equal(98, d.Remaining)
	})
}

// =============================================================================
// Concurrency
// =============================================================================
// Concurrency test: limit+1 simultaneous requests for one client must admit
// exactly limit of them.

func (s *AdmissionSuite) TestConcurrentRequestsRespectLimit() {
	const n = 50
	general, err := models.NewEndpointPolicy(models.EndpointGeneral, models.StrategyIP, n-1, time.Minute)
	s.Require().NoError(err)
	s.build(map[models.EndpointType]models.EndpointPolicy{models.EndpointGeneral: general}, nil, nil)

	ctx := requestcontext.WithTime(context.Background(), testutil.At(0))
	result := testutil.RunConcurrentCtx(ctx, n, func(ctx context.Context, _ int) error {
		req := testutil.NewRequest(http.MethodGet, "/api/events", "192.0.2.30").WithContext(ctx)
		d, err := s.service.CheckRateLimit(ctx, req, models.EndpointGeneral, Options{})
		if err != nil {
			return err
		}
		if !d.Allowed {
			return testutil.ErrDenied
		}
		return nil
	})

	s.Equal(int32(n-1), result.Successes)
	s.Equal(int32(1), result.Denied)
	s.Equal(int32(0), result.Errors)
	s.Equal(int64(n), s.recorder.count())
}

// fakeRecorder collects recorded decisions.
type fakeRecorder struct {
	mu        sync.Mutex
	decisions []models.Decision
	penalties int64
}

func (r *fakeRecorder) Record(_ context.Context, decision models.Decision, penalized bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.decisions = append(r.decisions, decision)
	if penalized {
		r.penalties++
	}
}

func (r *fakeRecorder) count() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return int64(len(r.decisions))
}

func (r *fakeRecorder) penalized() int64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.penalties
}
