// Package metadata resolves the originating client address of a request and
// stores it, with the User-Agent, in the request context.
package metadata

import (
	"fmt"
	"net/http"
	"net/netip"
	"strings"

	"go4.org/netipx"

	"boxoffice/pkg/requestcontext"
)

// MaxXFFHeaderLength caps forwarded-for headers; longer values are ignored.
const MaxXFFHeaderLength = 500

// UnknownIP is returned when no usable address can be derived from a request.
const UnknownIP = "unknown"

// Config holds configuration for client address extraction.
type Config struct {
	// TrustedProxies lists the peers allowed to set forwarded-for headers.
	TrustedProxies []netip.Prefix
	// TrustForwardedFor trusts forwarded-for headers from any peer. It only
	// applies when TrustedProxies is empty, e.g. behind a serverless edge that
	// always overwrites the header.
	TrustForwardedFor bool
}

// DefaultConfig returns a Config with no trusted proxies (secure by default).
func DefaultConfig() *Config {
	return &Config{}
}

// Extractor derives the client IP from a request.
type Extractor struct {
	trusted  *netipx.IPSet
	trustAll bool
}

// NewExtractor builds an Extractor from cfg. A nil cfg means DefaultConfig.
func NewExtractor(cfg *Config) (*Extractor, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	var b netipx.IPSetBuilder
	for _, p := range cfg.TrustedProxies {
		if !p.IsValid() {
			return nil, fmt.Errorf("invalid trusted proxy prefix %q", p)
		}
		b.AddPrefix(p.Masked())
	}
	set, err := b.IPSet()
	if err != nil {
		return nil, fmt.Errorf("build trusted proxy set: %w", err)
	}
	return &Extractor{
		trusted:  set,
		trustAll: cfg.TrustForwardedFor && len(cfg.TrustedProxies) == 0,
	}, nil
}

// ClientIP returns the canonical client address, or UnknownIP.
// Forwarded headers are consulted only when the transport peer is trusted.
// Behind trusted proxies X-Forwarded-For is read right to left and the first
// address outside the trusted set wins, since appending proxies put the real
// client last and everything left of it is client-supplied. In edge mode the
// edge overwrites the header, so its first address wins. X-Real-IP is the
// fallback in both modes.
func (e *Extractor) ClientIP(r *http.Request) string {
	peer, peerOK := parseRemoteAddr(r.RemoteAddr)

	if e.trusts(peer, peerOK) {
		if addr, ok := e.forwardedAddr(r.Header); ok {
			return addr.String()
		}
	}
	if peerOK {
		return peer.String()
	}
	return UnknownIP
}

func (e *Extractor) trusts(peer netip.Addr, ok bool) bool {
	if e.trustAll {
		return true
	}
	return ok && e.trusted.Contains(peer)
}

func (e *Extractor) forwardedAddr(h http.Header) (netip.Addr, bool) {
	if xff := h.Get("X-Forwarded-For"); xff != "" && len(xff) <= MaxXFFHeaderLength {
		if addr, ok := e.forwardedFor(strings.Split(xff, ",")); ok {
			return addr, true
		}
	}
	if xri := h.Get("X-Real-IP"); xri != "" && len(xri) <= MaxXFFHeaderLength {
		return parseAddr(strings.TrimSpace(xri))
	}
	return netip.Addr{}, false
}

func (e *Extractor) forwardedFor(parts []string) (netip.Addr, bool) {
	if e.trustAll {
		for _, part := range parts {
			if addr, ok := parseAddr(strings.TrimSpace(part)); ok {
				return addr, true
			}
		}
		return netip.Addr{}, false
	}

	// A chain made only of trusted hops resolves to its leftmost hop.
	var leftmost netip.Addr
	for i := len(parts) - 1; i >= 0; i-- {
		addr, ok := parseAddr(strings.TrimSpace(parts[i]))
		if !ok {
			continue
		}
		if !e.trusted.Contains(addr) {
			return addr, true
		}
		leftmost = addr
	}
	return leftmost, leftmost.IsValid()
}

// parseRemoteAddr extracts the IP from RemoteAddr, with or without a port.
func parseRemoteAddr(remoteAddr string) (netip.Addr, bool) {
	if remoteAddr == "" {
		return netip.Addr{}, false
	}
	if ap, err := netip.ParseAddrPort(remoteAddr); err == nil {
		return canonical(ap.Addr()), true
	}
	return parseAddr(strings.Trim(remoteAddr, "[]"))
}

func parseAddr(s string) (netip.Addr, bool) {
	addr, err := netip.ParseAddr(s)
	if err != nil {
		return netip.Addr{}, false
	}
	return canonical(addr), true
}

// canonical drops zones and unmaps IPv4-mapped IPv6 so one host has one key.
func canonical(addr netip.Addr) netip.Addr {
	return addr.WithZone("").Unmap()
}

// Middleware stores client metadata in the request context.
type Middleware struct {
	extractor *Extractor
}

// NewMiddleware creates the metadata middleware around an Extractor.
func NewMiddleware(extractor *Extractor) *Middleware {
	return &Middleware{extractor: extractor}
}

// Handler extracts client IP address and User-Agent from the request
// and adds them to the context for use by handlers and services.
func (m *Middleware) Handler(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := requestcontext.WithClientMetadata(r.Context(), m.extractor.ClientIP(r), r.Header.Get("User-Agent"))
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
