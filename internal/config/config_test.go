package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/FairForge/ssoload/internal/loadtest"
)

func clearEnv(t *testing.T) {
	t.Helper()
	for _, key := range []string{
		"TARGET_URL", "SLCM_USERNAME", "SLCM_PASSWORD", "IS_HEADLESS",
		"CHROME_BIN", "SSOLOAD_METRICS_ADDR", "SSOLOAD_LOG_LEVEL", "SSOLOAD_MAX_VUS",
	} {
		t.Setenv(key, "")
	}
}

func validConfig() *Config {
	cfg := Default()
	cfg.Credentials = CredentialsConfig{Username: "alice", Password: "secret"}
	return cfg
}

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "https://slcm.pusilkom.com", cfg.Target)
	require.Len(t, cfg.Phases, 1)
	assert.Equal(t, 30*time.Second, cfg.Phases[0].Duration)
	assert.Equal(t, float64(2), cfg.Phases[0].ArrivalRate)
	assert.True(t, cfg.Browser.Headless)
	assert.Contains(t, cfg.Browser.Args, "--no-sandbox")
	assert.Equal(t, 30*time.Second, cfg.TotalDuration())
}

func TestLoadFromEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("TARGET_URL", "https://example-slcm.test")
	t.Setenv("SLCM_USERNAME", "alice")
	t.Setenv("SLCM_PASSWORD", "secret")
	t.Setenv("CHROME_BIN", "/usr/bin/chromium")
	t.Setenv("SSOLOAD_METRICS_ADDR", ":9090")
	t.Setenv("SSOLOAD_LOG_LEVEL", "debug")
	t.Setenv("SSOLOAD_MAX_VUS", "7")

	cfg := Default()
	LoadFromEnv(cfg)

	assert.Equal(t, "https://example-slcm.test", cfg.Target)
	assert.Equal(t, "alice", cfg.Credentials.Username)
	assert.Equal(t, "secret", cfg.Credentials.Password)
	assert.Equal(t, "/usr/bin/chromium", cfg.Browser.ExecPath)
	assert.Equal(t, ":9090", cfg.MetricsAddr)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, 7, cfg.MaxVUs)
}

func TestLoadFromEnv_Headless(t *testing.T) {
	tests := []struct {
		value string
		want  bool
	}{
		{"false", false},
		{"true", true},
		{"0", true},
		{"", true},
	}

	for _, tt := range tests {
		t.Run("IS_HEADLESS="+tt.value, func(t *testing.T) {
			clearEnv(t)
			t.Setenv("IS_HEADLESS", tt.value)

			cfg := Default()
			LoadFromEnv(cfg)
			assert.Equal(t, tt.want, cfg.Browser.Headless)
		})
	}
}

func TestLoad_YAML(t *testing.T) {
	clearEnv(t)
	t.Setenv("SLCM_PASSWORD", "from-env")

	path := filepath.Join(t.TempDir(), "ssoload.yaml")
	data := `
target: https://example-slcm.test
max_vus: 3
credentials:
  username: alice
  password: from-file
phases:
  - name: warmup
    duration: 10s
    arrival_rate: 1
  - name: heavy
    duration: 1m
    arrival_rate: 5
flow:
  sso_host_pattern: 'login\.example-sso\.test'
  login_timeout: 20s
`
	require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)

	assert.Equal(t, "https://example-slcm.test", cfg.Target)
	assert.Equal(t, 3, cfg.MaxVUs)
	assert.Equal(t, "alice", cfg.Credentials.Username)
	assert.Equal(t, "from-env", cfg.Credentials.Password, "env overrides file")
	require.Len(t, cfg.Phases, 2)
	assert.Equal(t, "heavy", cfg.Phases[1].Name)
	assert.Equal(t, time.Minute, cfg.Phases[1].Duration)
	assert.Equal(t, 70*time.Second, cfg.TotalDuration())
	assert.Equal(t, 20*time.Second, cfg.Flow.LoginTimeout)
	// Untouched keys keep their defaults.
	assert.Equal(t, 10*time.Second, cfg.Flow.FieldTimeout)
	assert.True(t, cfg.Browser.Headless)

	require.NoError(t, cfg.Validate())
}

func TestLoad_Errors(t *testing.T) {
	clearEnv(t)

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
		assert.Error(t, err)
	})

	t.Run("bad yaml", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "bad.yaml")
		require.NoError(t, os.WriteFile(path, []byte("phases: [oops"), 0o600))
		_, err := Load(path)
		assert.Error(t, err)
	})

	t.Run("no file uses defaults", func(t *testing.T) {
		cfg, err := Load("")
		require.NoError(t, err)
		assert.Equal(t, Default().Target, cfg.Target)
	})
}

func TestValidate(t *testing.T) {
	t.Run("valid config passes", func(t *testing.T) {
		assert.NoError(t, validConfig().Validate())
	})

	tests := []struct {
		name   string
		mutate func(*Config)
		substr string
	}{
		{"missing credentials", func(c *Config) { c.Credentials.Password = "" }, "credentials"},
		{"missing target", func(c *Config) { c.Target = "" }, "target"},
		{"no phases", func(c *Config) { c.Phases = nil }, "phase"},
		{"zero rate", func(c *Config) { c.Phases[0].ArrivalRate = 0 }, "arrival rate"},
		{"zero duration", func(c *Config) { c.Phases[0].Duration = 0 }, "duration"},
		{"zero max vus", func(c *Config) { c.MaxVUs = 0 }, "max_vus"},
		{"bad sso pattern", func(c *Config) { c.Flow.SSOHostPattern = "(" }, "sso_host_pattern"},
		{"empty sso pattern", func(c *Config) { c.Flow.SSOHostPattern = "" }, "sso_host_pattern"},
		{"bad app pattern", func(c *Config) { c.Flow.AppHostPattern = "[" }, "app_host_pattern"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}

func TestFlowOptions(t *testing.T) {
	cfg := validConfig()
	cfg.Flow.AppHostPattern = `slcm\.pusilkom\.com`

	opts, err := cfg.FlowOptions()
	require.NoError(t, err)

	assert.Equal(t, cfg.Target, opts.BaseURL)
	assert.True(t, opts.SSOHostPattern.MatchString("login.ui.ac.id"))
	assert.True(t, opts.AppHostPattern.MatchString("https://slcm.pusilkom.com/dashboard"))
	assert.Equal(t, cfg.Flow.LoginTimeout, opts.LoginTimeout)
}

func TestGetEnvOrDefault(t *testing.T) {
	t.Setenv("SSOLOAD_TEST_KEY", "")
	assert.Equal(t, "fallback", GetEnvOrDefault("SSOLOAD_TEST_KEY", "fallback"))

	t.Setenv("SSOLOAD_TEST_KEY", "set")
	assert.Equal(t, "set", GetEnvOrDefault("SSOLOAD_TEST_KEY", "fallback"))
}

func TestLoadTest(t *testing.T) {
	cfg := validConfig()
	cfg.Phases = append(cfg.Phases, PhaseConfig{Name: "ramp", Duration: time.Minute, ArrivalRate: 5})

	lt := cfg.LoadTest()
	assert.Equal(t, "SLCM Login Journey", lt.Name)
	assert.Equal(t, cfg.MaxVUs, lt.MaxVUs)
	require.Len(t, lt.Phases, 2)
	assert.Equal(t, "ramp", lt.Phases[1].Name)
	assert.Equal(t, float64(5), lt.Phases[1].ArrivalRate)
}

func TestSLA(t *testing.T) {
	t.Run("none configured", func(t *testing.T) {
		sla, err := validConfig().SLA()
		require.NoError(t, err)
		assert.Nil(t, sla)
	})

	t.Run("from yaml", func(t *testing.T) {
		clearEnv(t)
		path := filepath.Join(t.TempDir(), "ssoload.yaml")
		data := `
ensure:
  - stat: login_duration
    measure: p95
    target: 3000
    critical: true
  - measure: error_rate
    comparator: "<"
    target: 5
`
		require.NoError(t, os.WriteFile(path, []byte(data), 0o600))

		cfg, err := Load(path)
		require.NoError(t, err)

		sla, err := cfg.SLA()
		require.NoError(t, err)
		require.Len(t, sla.Objectives, 2)

		first := sla.Objectives[0]
		assert.Equal(t, "login_duration p95", first.Name)
		assert.Equal(t, loadtest.MeasureP95, first.Measure)
		assert.Equal(t, loadtest.ComparatorLessOrEqual, first.Comparator)
		assert.True(t, first.Critical)

		second := sla.Objectives[1]
		assert.Equal(t, "error_rate", second.Name)
		assert.Equal(t, loadtest.ComparatorLessThan, second.Comparator)
		assert.Equal(t, float64(5), second.Target)
	})

	tests := []struct {
		name   string
		ensure EnsureConfig
		substr string
	}{
		{"unknown measure", EnsureConfig{Stat: "login_duration", Measure: "p42"}, "unknown measure"},
		{"unknown comparator", EnsureConfig{Stat: "login_duration", Measure: "p95", Comparator: "=="}, "unknown comparator"},
		{"latency without stat", EnsureConfig{Measure: "max"}, "stat is required"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			cfg.Ensure = []EnsureConfig{tt.ensure}
			err := cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.substr)
		})
	}
}
