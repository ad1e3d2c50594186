package config

import (
	"errors"
	"fmt"
	"os"
	"regexp"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/FairForge/ssoload/internal/loadtest"
	"github.com/FairForge/ssoload/internal/loginflow"
)

type Config struct {
	Target      string            `yaml:"target"`
	Scenario    string            `yaml:"scenario"`
	Phases      []PhaseConfig     `yaml:"phases"`
	MaxVUs      int               `yaml:"max_vus"`
	Credentials CredentialsConfig `yaml:"credentials"`
	Browser     BrowserConfig     `yaml:"browser"`
	Flow        FlowConfig        `yaml:"flow"`
	Log         LogConfig         `yaml:"log"`
	MetricsAddr string            `yaml:"metrics_addr"`
	Ensure      []EnsureConfig    `yaml:"ensure"`
}

type PhaseConfig struct {
	Name        string        `yaml:"name"`
	Duration    time.Duration `yaml:"duration"`
	ArrivalRate float64       `yaml:"arrival_rate"` // virtual users per second
}

type CredentialsConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

type BrowserConfig struct {
	Headless  bool     `yaml:"headless"`
	Args      []string `yaml:"args"`
	ExecPath  string   `yaml:"exec_path"`
	UserAgent string   `yaml:"user_agent"` // preset name or raw string
}

type FlowConfig struct {
	SSOHostPattern   string `yaml:"sso_host_pattern"`
	AppHostPattern   string `yaml:"app_host_pattern"` // empty derives from target
	LoginText        string `yaml:"login_text"`
	UsernameSelector string `yaml:"username_selector"`
	PasswordSelector string `yaml:"password_selector"`
	SubmitLabel      string `yaml:"submit_label"`

	NavigationTimeout time.Duration `yaml:"navigation_timeout"`
	RedirectTimeout   time.Duration `yaml:"redirect_timeout"`
	FieldTimeout      time.Duration `yaml:"field_timeout"`
	SubmitTimeout     time.Duration `yaml:"submit_timeout"`
	LoginTimeout      time.Duration `yaml:"login_timeout"`
}

// EnsureConfig is one pass/fail threshold checked after the run, e.g.
// {stat: login_duration, measure: p95, target: 3000}.
type EnsureConfig struct {
	Stat       string  `yaml:"stat"`
	Measure    string  `yaml:"measure"`
	Comparator string  `yaml:"comparator"` // defaults to <=
	Target     float64 `yaml:"target"`     // milliseconds or percent
	Critical   bool    `yaml:"critical"`
}

type LogConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
}

// Default is the SLCM proof of concept profile: 2 users per second for 30s.
func Default() *Config {
	return &Config{
		Target:   "https://slcm.pusilkom.com",
		Scenario: "SLCM Login Journey",
		Phases: []PhaseConfig{
			{Name: "POC test - 2 users per second", Duration: 30 * time.Second, ArrivalRate: 2},
		},
		MaxVUs: 50,
		Browser: BrowserConfig{
			Headless: true,
			Args:     []string{"--no-sandbox", "--disable-setuid-sandbox"},
		},
		Flow: FlowConfig{
			SSOHostPattern:    `login\.ui\.ac\.id`,
			LoginText:         loginflow.DefaultLoginText,
			UsernameSelector:  loginflow.DefaultUsernameSelector,
			PasswordSelector:  loginflow.DefaultPasswordSelector,
			SubmitLabel:       loginflow.DefaultSubmitLabel,
			NavigationTimeout: loginflow.DefaultNavigationTimeout,
			RedirectTimeout:   loginflow.DefaultRedirectTimeout,
			FieldTimeout:      loginflow.DefaultFieldTimeout,
			SubmitTimeout:     loginflow.DefaultSubmitTimeout,
			LoginTimeout:      loginflow.DefaultLoginTimeout,
		},
		Log: LogConfig{Level: "info", Format: "json"},
	}
}

// Load reads an optional YAML file over the defaults, then applies env overrides.
func Load(path string) (*Config, error) {
	cfg := Default()
	if path != "" {
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: reading %s: %w", path, err)
		}
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("config: parsing %s: %w", path, err)
		}
	}
	LoadFromEnv(cfg)
	return cfg, nil
}

// Validate checks that a run can start.
func (c *Config) Validate() error {
	var errs []error
	if c.Target == "" {
		errs = append(errs, errors.New("target is required"))
	}
	if c.Credentials.Username == "" || c.Credentials.Password == "" {
		errs = append(errs, errors.New("credentials are required (SLCM_USERNAME, SLCM_PASSWORD)"))
	}
	if len(c.Phases) == 0 {
		errs = append(errs, errors.New("at least one phase is required"))
	}
	for i, p := range c.Phases {
		if p.Duration <= 0 {
			errs = append(errs, fmt.Errorf("phase %d: duration must be positive", i))
		}
		if p.ArrivalRate <= 0 {
			errs = append(errs, fmt.Errorf("phase %d: arrival rate must be positive", i))
		}
	}
	if c.MaxVUs <= 0 {
		errs = append(errs, errors.New("max_vus must be positive"))
	}
	if _, err := c.FlowOptions(); err != nil {
		errs = append(errs, err)
	}
	if _, err := c.SLA(); err != nil {
		errs = append(errs, err)
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %w", errors.Join(errs...))
	}
	return nil
}

// FlowOptions converts the flow section into runner options.
func (c *Config) FlowOptions() (loginflow.Options, error) {
	opts := loginflow.Options{
		BaseURL:           c.Target,
		LoginText:         c.Flow.LoginText,
		UsernameSelector:  c.Flow.UsernameSelector,
		PasswordSelector:  c.Flow.PasswordSelector,
		SubmitLabel:       c.Flow.SubmitLabel,
		NavigationTimeout: c.Flow.NavigationTimeout,
		RedirectTimeout:   c.Flow.RedirectTimeout,
		FieldTimeout:      c.Flow.FieldTimeout,
		SubmitTimeout:     c.Flow.SubmitTimeout,
		LoginTimeout:      c.Flow.LoginTimeout,
	}

	if c.Flow.SSOHostPattern == "" {
		return opts, errors.New("sso_host_pattern is required")
	}
	sso, err := regexp.Compile(c.Flow.SSOHostPattern)
	if err != nil {
		return opts, fmt.Errorf("sso_host_pattern: %w", err)
	}
	opts.SSOHostPattern = sso

	if c.Flow.AppHostPattern != "" {
		app, err := regexp.Compile(c.Flow.AppHostPattern)
		if err != nil {
			return opts, fmt.Errorf("app_host_pattern: %w", err)
		}
		opts.AppHostPattern = app
	}
	return opts, nil
}

// TotalDuration is the sum of all phase durations.
func (c *Config) TotalDuration() time.Duration {
	var total time.Duration
	for _, p := range c.Phases {
		total += p.Duration
	}
	return total
}

// LoadTest converts the phases into a framework config.
func (c *Config) LoadTest() *loadtest.Config {
	phases := make([]loadtest.Phase, 0, len(c.Phases))
	for _, p := range c.Phases {
		phases = append(phases, loadtest.Phase{Name: p.Name, Duration: p.Duration, ArrivalRate: p.ArrivalRate})
	}
	return &loadtest.Config{Name: c.Scenario, Phases: phases, MaxVUs: c.MaxVUs}
}

// SLA builds the thresholds from the ensure section. It returns nil when
// none are configured.
func (c *Config) SLA() (*loadtest.SLA, error) {
	if len(c.Ensure) == 0 {
		return nil, nil
	}
	sla := &loadtest.SLA{Name: c.Scenario}
	for i, e := range c.Ensure {
		measure, err := loadtest.ParseMeasure(e.Measure)
		if err != nil {
			return nil, fmt.Errorf("ensure %d: %w", i, err)
		}
		comparator, err := loadtest.ParseComparator(e.Comparator)
		if err != nil {
			return nil, fmt.Errorf("ensure %d: %w", i, err)
		}
		rate := measure == loadtest.MeasureErrorRate || measure == loadtest.MeasureSuccessRate
		if !rate && e.Stat == "" {
			return nil, fmt.Errorf("ensure %d: stat is required for %s", i, measure)
		}

		name := string(measure)
		if e.Stat != "" && !rate {
			name = e.Stat + " " + name
		}
		sla.Objectives = append(sla.Objectives, loadtest.SLO{
			Name:       name,
			Stat:       e.Stat,
			Measure:    measure,
			Target:     e.Target,
			Comparator: comparator,
			Critical:   e.Critical,
		})
	}
	return sla, nil
}
