// Package identity derives the ClientIdentity a request is counted under.
package identity

import (
	"errors"
	"log/slog"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"boxoffice/internal/ratelimit/models"
	"boxoffice/pkg/platform/middleware/metadata"
	"boxoffice/pkg/requestcontext"
)

// DefaultDeviceHeader carries the device/session token for device-keyed policies.
const DefaultDeviceHeader = "X-Device-Token"

// maxTokenLength bounds opaque tokens and device ids before they reach a store key.
const maxTokenLength = 256

var validToken = regexp.MustCompile(`^[A-Za-z0-9._~+/=-]{8,256}$`)

var errInvalidDeviceToken = errors.New("invalid device token")

// Resolver maps requests to client identities. It never fails: anything it
// cannot use degrades to the IP identity, and an unusable address degrades to
// the shared models.UnknownIdentity bucket.
type Resolver struct {
	extractor *metadata.Extractor
	header    string
	secret    []byte
	logger    *slog.Logger
}

// Option configures a Resolver.
type Option func(*Resolver)

// WithDeviceHeader sets the header the device token is read from.
func WithDeviceHeader(name string) Option {
	return func(r *Resolver) {
		if name != "" {
			r.header = name
		}
	}
}

// WithDeviceTokenSecret makes device tokens signed: only HS256 tokens verified
// with secret are accepted, and their subject becomes the device id.
func WithDeviceTokenSecret(secret []byte) Option {
	return func(r *Resolver) {
		r.secret = secret
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(r *Resolver) {
		r.logger = logger
	}
}

// New creates a Resolver. extractor is used when the metadata middleware has
// not already stored the client address in the request context.
func New(extractor *metadata.Extractor, opts ...Option) (*Resolver, error) {
	if extractor == nil {
		return nil, errors.New("address extractor is required")
	}
	r := &Resolver{
		extractor: extractor,
		header:    DefaultDeviceHeader,
		logger:    slog.Default(),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r, nil
}

// Resolve returns the identity of req under strategy.
func (r *Resolver) Resolve(req *http.Request, strategy models.IdentityStrategy) models.ClientIdentity {
	if strategy == models.StrategyDevice {
		if id, ok := r.deviceIdentity(req); ok {
			return id
		}
	}
	return r.ipIdentity(req)
}

// ClientIP returns the address the IP identity is derived from.
func (r *Resolver) ClientIP(req *http.Request) string {
	if ip := requestcontext.ClientIP(req.Context()); ip != "" {
		return ip
	}
	return r.extractor.ClientIP(req)
}

func (r *Resolver) ipIdentity(req *http.Request) models.ClientIdentity {
	ip := r.ClientIP(req)
	if ip == "" || ip == metadata.UnknownIP {
		return models.UnknownIdentity
	}
	return models.NewIPIdentity(ip)
}

func (r *Resolver) deviceIdentity(req *http.Request) (models.ClientIdentity, bool) {
	token := strings.TrimSpace(req.Header.Get(r.header))
	if token == "" || len(token) > 4*maxTokenLength {
		return "", false
	}

	if len(r.secret) == 0 {
		if !validToken.MatchString(token) {
			return "", false
		}
		return models.NewDeviceIdentity(token), true
	}

	deviceID, err := r.verify(token, requestcontext.Now(req.Context()))
	if err != nil {
		r.logger.DebugContext(req.Context(), "device token rejected, using ip identity",
			"error", err,
			"request_id", requestcontext.RequestID(req.Context()),
		)
		return "", false
	}
	return models.NewDeviceIdentity(deviceID), true
}

func (r *Resolver) verify(token string, now time.Time) (string, error) {
	claims := &jwt.RegisteredClaims{}
	_, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (any, error) {
		if t.Method.Alg() != jwt.SigningMethodHS256.Alg() {
			return nil, jwt.ErrTokenUnverifiable
		}
		return r.secret, nil
	},
		jwt.WithTimeFunc(func() time.Time { return now }),
		jwt.WithExpirationRequired(),
	)
	if err != nil {
		return "", err
	}
	if !validToken.MatchString(claims.Subject) {
		return "", errInvalidDeviceToken
	}
	return claims.Subject, nil
}

// SignDeviceToken issues a device token that a Resolver configured with the
// same secret accepts until issuedAt+ttl.
func SignDeviceToken(secret []byte, deviceID string, issuedAt time.Time, ttl time.Duration) (string, error) {
	if !validToken.MatchString(deviceID) {
		return "", errInvalidDeviceToken
	}
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   deviceID,
		IssuedAt:  jwt.NewNumericDate(issuedAt),
		ExpiresAt: jwt.NewNumericDate(issuedAt.Add(ttl)),
	})
	return token.SignedString(secret)
}
