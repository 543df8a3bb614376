package config

import (
	"fmt"
	"net/netip"
	"os"
	"strconv"
	"strings"
	"time"
)

// Environment names. Production and staging are hardened: diagnostics omit
// client identities and counters.
const (
	EnvProduction  = "production"
	EnvStaging     = "staging"
	EnvDevelopment = "development"
	EnvTest        = "test"
)

// Server captures process level configuration.
type Server struct {
	Addr        string
	Environment string
	LogLevel    string
	LogFile     string

	// ShutdownTimeout bounds graceful HTTP shutdown.
	ShutdownTimeout time.Duration
	// RequestTimeout bounds every HTTP handler.
	RequestTimeout time.Duration

	Redis     RedisConfig
	RateLimit RateLimitConfig
}

// RedisConfig configures the shared store. An empty URL selects in-memory stores.
type RedisConfig struct {
	URL          string
	Namespace    string
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration
}

// RateLimitConfig holds the process-level switches around the limiter. Policy
// parameters live in the file named by ConfigPath.
type RateLimitConfig struct {
	ConfigPath string
	// FailOpen overrides the policy file's failOpen when set.
	FailOpen *bool
	// SkipLocal bypasses limits for loopback clients.
	SkipLocal         bool
	TrustedProxies    []netip.Prefix
	TrustForwardedFor bool
	DeviceTokenHeader string
	DeviceTokenSecret string
}

// Hardened reports whether the environment must not disclose diagnostics detail.
func (s Server) Hardened() bool {
	switch s.Environment {
	case EnvDevelopment, EnvTest:
		return false
	default:
		return true
	}
}

// FromEnv builds a Server config from environment variables so main stays lean.
func FromEnv() (Server, error) {
	cfg := Server{
		Addr:            getEnv("BOXOFFICE_ADDR", ":8080"),
		Environment:     strings.ToLower(getEnv("ENVIRONMENT", EnvProduction)),
		LogLevel:        getEnv("LOG_LEVEL", "info"),
		LogFile:         os.Getenv("LOG_FILE"),
		ShutdownTimeout: 15 * time.Second,
		RequestTimeout:  30 * time.Second,
		Redis: RedisConfig{
			URL:          os.Getenv("REDIS_URL"),
			Namespace:    getEnv("REDIS_NAMESPACE", "boxoffice"),
			PoolSize:     20,
			MinIdleConns: 5,
			DialTimeout:  2 * time.Second,
			ReadTimeout:  500 * time.Millisecond,
			WriteTimeout: 500 * time.Millisecond,
		},
		RateLimit: RateLimitConfig{
			ConfigPath:        os.Getenv("RATE_LIMIT_CONFIG"),
			DeviceTokenHeader: os.Getenv("DEVICE_TOKEN_HEADER"),
			DeviceTokenSecret: os.Getenv("DEVICE_TOKEN_SECRET"),
		},
	}

	var err error
	if cfg.Redis.PoolSize, err = envInt("REDIS_POOL_SIZE", cfg.Redis.PoolSize); err != nil {
		return Server{}, err
	}
	if cfg.ShutdownTimeout, err = envDuration("SHUTDOWN_TIMEOUT", cfg.ShutdownTimeout); err != nil {
		return Server{}, err
	}
	if v := os.Getenv("RATE_LIMIT_FAIL_OPEN"); v != "" {
		failOpen, err := strconv.ParseBool(v)
		if err != nil {
			return Server{}, fmt.Errorf("RATE_LIMIT_FAIL_OPEN: %w", err)
		}
		cfg.RateLimit.FailOpen = &failOpen
	}
	if cfg.RateLimit.SkipLocal, err = envBool("RATE_LIMIT_SKIP_LOCAL", false); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.TrustForwardedFor, err = envBool("TRUST_FORWARDED_FOR", false); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.TrustedProxies, err = parsePrefixes(os.Getenv("TRUSTED_PROXIES")); err != nil {
		return Server{}, err
	}
	if cfg.RateLimit.SkipLocal && !cfg.Hardened() {
		return cfg, nil
	}
	// Skipping limits is a development convenience only.
	cfg.RateLimit.SkipLocal = false
	return cfg, nil
}

func getEnv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return n, nil
}

func envBool(key string, fallback bool) (bool, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	b, err := strconv.ParseBool(v)
	if err != nil {
		return false, fmt.Errorf("%s: %w", key, err)
	}
	return b, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	v := os.Getenv(key)
	if v == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(v)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// parsePrefixes reads a comma separated list of CIDRs or bare addresses.
func parsePrefixes(s string) ([]netip.Prefix, error) {
	var out []netip.Prefix
	for _, part := range strings.Split(s, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		if !strings.Contains(part, "/") {
			addr, err := netip.ParseAddr(part)
			if err != nil {
				return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
			}
			out = append(out, netip.PrefixFrom(addr.Unmap(), addr.Unmap().BitLen()))
			continue
		}
		p, err := netip.ParsePrefix(part)
		if err != nil {
			return nil, fmt.Errorf("TRUSTED_PROXIES: %w", err)
		}
		out = append(out, p.Masked())
	}
	return out, nil
}
