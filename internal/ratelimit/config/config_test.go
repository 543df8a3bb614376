package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/suite"

	"boxoffice/internal/ratelimit/models"
	dErrors "boxoffice/pkg/domain-errors"
)

type ConfigSuite struct {
	suite.Suite
}

func TestConfigSuite(t *testing.T) {
	suite.Run(t, new(ConfigSuite))
}

func (s *ConfigSuite) TestDefaultConfig() {
	cfg := DefaultConfig()
	s.Require().NoError(cfg.Validate())

	auth := cfg.Policies[models.EndpointAuth]
	s.Equal(5, auth.Limit)
	s.Equal(time.Minute, auth.Window)
	s.Equal(models.StrategyIP, auth.Strategy)

	s.Equal(models.StrategyDevice, cfg.Policies[models.EndpointPayment].Strategy)
	s.Equal(5*time.Minute, cfg.Policies[models.EndpointEmail].Window)
	s.True(cfg.FailOpen)
	s.Equal(float64(8), cfg.Penalty.Cap)
}

func (s *ConfigSuite) TestLoadBytesYAML() {
	data := []byte(`
policies:
  auth:
    limit: 3
  scanner:
    limit: 500
    window: 10s
    identityStrategy: device
penalty:
  base: 3
  cap: 27
  decay: 30m
failOpen: false
storeTimeout: 250ms
whitelist:
  - ip:10.0.0.0/8
blacklist:
  - device:stolen-scanner
`)

	cfg, err := LoadBytes(data, FormatYAML)
	s.Require().NoError(err)

	s.Run("partial override keeps unspecified fields", func() {
		auth := cfg.Policies[models.EndpointAuth]
		s.Equal(3, auth.Limit)
		s.Equal(time.Minute, auth.Window)
	})

	s.Run("custom endpoint type is registered", func() {
		scanner := cfg.Policies["scanner"]
		s.Equal(500, scanner.Limit)
		s.Equal(10*time.Second, scanner.Window)
		s.Equal(models.StrategyDevice, scanner.Strategy)
	})

	s.Run("scalars override defaults", func() {
		s.False(cfg.FailOpen)
		s.Equal(250*time.Millisecond, cfg.StoreTimeout)
		s.Equal(float64(3), cfg.Penalty.Base)
		s.Equal(30*time.Minute, cfg.Penalty.Decay)
		s.Equal([]string{"ip:10.0.0.0/8"}, cfg.Whitelist)
		s.Equal([]string{"device:stolen-scanner"}, cfg.Blacklist)
	})
}

func (s *ConfigSuite) TestLoadJSONFile() {
	path := filepath.Join(s.T().TempDir(), "limits.json")
	s.Require().NoError(os.WriteFile(path, []byte(`{"policies":{"email":{"windowMs":60000}}}`), 0o600))

	cfg, err := Load(path)
	s.Require().NoError(err)
	s.Equal(time.Minute, cfg.Policies[models.EndpointEmail].Window)
	s.Equal(3, cfg.Policies[models.EndpointEmail].Limit)
}

func (s *ConfigSuite) TestLoadRejectsInvalid() {
	cases := map[string]string{
		"zero limit custom type": "policies:\n  scanner:\n    window: 10s\n",
		"negative limit":         "policies:\n  auth:\n    limit: -1\n",
		"bad strategy":           "policies:\n  auth:\n    identityStrategy: cookie\n",
		"bad duration":           "penalty:\n  decay: soon\n",
		"base below one":         "penalty:\n  base: 0.5\n",
	}
	for name, doc := range cases {
		s.Run(name, func() {
			_, err := LoadBytes([]byte(doc), FormatYAML)
			s.Require().Error(err)
			s.True(dErrors.HasCode(err, dErrors.CodeValidation), "got %v", err)
		})
	}
}

func (s *ConfigSuite) TestLoadUnsupportedExtension() {
	_, err := Load("limits.toml")
	s.Error(err)
}

func (s *ConfigSuite) TestValidateRequiresGeneral() {
	cfg := DefaultConfig()
	delete(cfg.Policies, models.EndpointGeneral)
	s.True(dErrors.HasCode(cfg.Validate(), dErrors.CodeValidation))
}
