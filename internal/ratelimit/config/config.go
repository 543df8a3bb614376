package config

import (
	"fmt"
	"maps"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"

	"github.com/knadh/koanf/parsers/json"
	"github.com/knadh/koanf/parsers/yaml"
	"github.com/knadh/koanf/providers/rawbytes"
	"github.com/knadh/koanf/v2"

	"boxoffice/internal/ratelimit/models"
	dErrors "boxoffice/pkg/domain-errors"
)

// Config holds admission-control configuration. It is read once at startup.
type Config struct {
	// Policies maps every known endpoint type to its limit. Must contain general.
	Policies map[models.EndpointType]models.EndpointPolicy

	Penalty PenaltyConfig

	// FailOpen is the default behaviour when the counter store fails.
	FailOpen bool

	// StoreTimeout bounds each admission check's store calls.
	StoreTimeout time.Duration

	// MinRetryAfter is the floor of the base retry-after (the window remainder)
	// before the penalty multiplier is applied.
	MinRetryAfter time.Duration

	// Whitelist and Blacklist seed the access list: exact identities
	// ("ip:203.0.113.7", "device:abc") or address ranges ("ip:10.0.0.0/8").
	Whitelist []string
	Blacklist []string
}

// PenaltyConfig defines escalation parameters: multiplier = min(Cap, Base^violations).
type PenaltyConfig struct {
	Base  float64
	Cap   float64
	Decay time.Duration
	// MaxTracked bounds the in-memory penalty store; least recently
	// penalised clients are evicted first.
	MaxTracked int
}

// DefaultConfig returns the ticketing platform defaults.
func DefaultConfig() *Config {
	return &Config{
		Policies: map[models.EndpointType]models.EndpointPolicy{
			models.EndpointGeneral:      mustPolicy(models.EndpointGeneral, models.StrategyIP, 100, time.Minute),
			models.EndpointPayment:      mustPolicy(models.EndpointPayment, models.StrategyDevice, 10, time.Minute),
			models.EndpointAuth:         mustPolicy(models.EndpointAuth, models.StrategyIP, 5, time.Minute),
			models.EndpointEmail:        mustPolicy(models.EndpointEmail, models.StrategyIP, 3, 5*time.Minute),
			models.EndpointQRValidation: mustPolicy(models.EndpointQRValidation, models.StrategyDevice, 60, time.Minute),
		},
		Penalty: PenaltyConfig{
			Base:       2,
			Cap:        8,
			Decay:      15 * time.Minute,
			MaxTracked: 100_000,
		},
		FailOpen:      true,
		StoreTimeout:  100 * time.Millisecond,
		MinRetryAfter: time.Second,
	}
}

func mustPolicy(t models.EndpointType, s models.IdentityStrategy, limit int, window time.Duration) models.EndpointPolicy {
	p, err := models.NewEndpointPolicy(t, s, limit, window)
	if err != nil {
		panic(err)
	}
	return p
}

// Validate checks the configuration invariants.
func (c *Config) Validate() error {
	if _, ok := c.Policies[models.EndpointGeneral]; !ok {
		return dErrors.New(dErrors.CodeValidation, "a general policy is required")
	}
	for _, t := range slices.Sorted(maps.Keys(c.Policies)) {
		p := c.Policies[t]
		if p.EndpointType != t {
			return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("policy %q is registered under %q", p.EndpointType, t))
		}
		if _, err := models.NewEndpointPolicy(p.EndpointType, p.Strategy, p.Limit, p.Window); err != nil {
			return dErrors.New(dErrors.CodeValidation, err.Error())
		}
	}
	if c.Penalty.Base < 1 {
		return dErrors.New(dErrors.CodeValidation, "penalty base must be >= 1")
	}
	if c.Penalty.Cap < 1 {
		return dErrors.New(dErrors.CodeValidation, "penalty cap must be >= 1")
	}
	if c.Penalty.Decay <= 0 {
		return dErrors.New(dErrors.CodeValidation, "penalty decay must be positive")
	}
	if c.StoreTimeout <= 0 {
		return dErrors.New(dErrors.CodeValidation, "store timeout must be positive")
	}
	return nil
}

// fileConfig is the on-disk shape of a policy file. Durations are Go duration
// strings ("60s", "15m").
type fileConfig struct {
	Policies      map[string]filePolicy `koanf:"policies"`
	Penalty       filePenalty           `koanf:"penalty"`
	FailOpen      *bool                 `koanf:"failOpen"`
	StoreTimeout  string                `koanf:"storeTimeout"`
	MinRetryAfter string                `koanf:"minRetryAfter"`
	Whitelist     []string              `koanf:"whitelist"`
	Blacklist     []string              `koanf:"blacklist"`
}

type filePolicy struct {
	Limit    int    `koanf:"limit"`
	Window   string `koanf:"window"`
	WindowMs int64  `koanf:"windowMs"`
	Strategy string `koanf:"identityStrategy"`
}

type filePenalty struct {
	Base       float64 `koanf:"base"`
	Cap        float64 `koanf:"cap"`
	Decay      string  `koanf:"decay"`
	MaxTracked int     `koanf:"maxTracked"`
}

// Format is a policy file encoding.
type Format string

const (
	FormatYAML Format = "yaml"
	FormatJSON Format = "json"
)

// Load reads a YAML or JSON policy file and merges it onto DefaultConfig.
// The format is taken from the file extension.
func Load(path string) (*Config, error) {
	var format Format
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		format = FormatYAML
	case ".json":
		format = FormatJSON
	default:
		return nil, fmt.Errorf("unsupported config extension %q", filepath.Ext(path))
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read rate limit config: %w", err)
	}
	return LoadBytes(data, format)
}

// LoadBytes parses data in the given format and merges it onto DefaultConfig.
// Policies named in the file override only the fields they set.
func LoadBytes(data []byte, format Format) (*Config, error) {
	var parser koanf.Parser
	switch format {
	case FormatYAML:
		parser = yaml.Parser()
	case FormatJSON:
		parser = json.Parser()
	default:
		return nil, fmt.Errorf("unsupported config format %q", format)
	}

	k := koanf.New(".")
	if len(data) > 0 {
		if err := k.Load(rawbytes.Provider(data), parser); err != nil {
			return nil, fmt.Errorf("parse rate limit config: %w", err)
		}
	}

	var fc fileConfig
	if err := k.UnmarshalWithConf("", &fc, koanf.UnmarshalConf{Tag: "koanf"}); err != nil {
		return nil, fmt.Errorf("decode rate limit config: %w", err)
	}

	cfg := DefaultConfig()
	if err := fc.applyTo(cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (fc fileConfig) applyTo(cfg *Config) error {
	for name, fp := range fc.Policies {
		t := models.EndpointType(name)
		p, ok := cfg.Policies[t]
		if !ok {
			p = models.EndpointPolicy{EndpointType: t, Strategy: models.StrategyIP}
		}
		if fp.Limit != 0 {
			p.Limit = fp.Limit
		}
		switch {
		case fp.Window != "":
			d, err := parseDuration("policies."+name+".window", fp.Window)
			if err != nil {
				return err
			}
			p.Window = d
		case fp.WindowMs != 0:
			p.Window = time.Duration(fp.WindowMs) * time.Millisecond
		}
		if fp.Strategy != "" {
			s, err := models.ParseIdentityStrategy(fp.Strategy)
			if err != nil {
				return dErrors.New(dErrors.CodeValidation, fmt.Sprintf("policies.%s: %s", name, err.Error()))
			}
			p.Strategy = s
		}
		cfg.Policies[t] = p
	}

	if fc.Penalty.Base != 0 {
		cfg.Penalty.Base = fc.Penalty.Base
	}
	if fc.Penalty.Cap != 0 {
		cfg.Penalty.Cap = fc.Penalty.Cap
	}
	if fc.Penalty.MaxTracked != 0 {
		cfg.Penalty.MaxTracked = fc.Penalty.MaxTracked
	}
	if fc.Penalty.Decay != "" {
		d, err := parseDuration("penalty.decay", fc.Penalty.Decay)
		if err != nil {
			return err
		}
		cfg.Penalty.Decay = d
	}

	if fc.FailOpen != nil {
		cfg.FailOpen = *fc.FailOpen
	}
	if fc.StoreTimeout != "" {
		d, err := parseDuration("storeTimeout", fc.StoreTimeout)
		if err != nil {
			return err
		}
		cfg.StoreTimeout = d
	}
	if fc.MinRetryAfter != "" {
		d, err := parseDuration("minRetryAfter", fc.MinRetryAfter)
		if err != nil {
			return err
		}
		cfg.MinRetryAfter = d
	}

	cfg.Whitelist = append(cfg.Whitelist, fc.Whitelist...)
	cfg.Blacklist = append(cfg.Blacklist, fc.Blacklist...)
	return nil
}

func parseDuration(field, value string) (time.Duration, error) {
	d, err := time.ParseDuration(value)
	if err != nil {
		return 0, dErrors.New(dErrors.CodeValidation, fmt.Sprintf("%s: invalid duration %q", field, value))
	}
	return d, nil
}
