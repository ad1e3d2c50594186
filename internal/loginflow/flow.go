// Package loginflow drives one virtual user through the SSO login journey
// and measures how long each checkpoint takes.
package loginflow

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"regexp"
	"time"
)

// Default step bounds.
const (
	DefaultNavigationTimeout = 30 * time.Second
	DefaultRedirectTimeout   = 10 * time.Second
	DefaultFieldTimeout      = 10 * time.Second
	DefaultSubmitTimeout     = 10 * time.Second
	DefaultLoginTimeout      = 15 * time.Second
)

// Default page selectors.
const (
	DefaultLoginText        = "Login"
	DefaultUsernameSelector = `input[placeholder*="Username"], input[name="username"]`
	DefaultPasswordSelector = `input[placeholder*="Password"], input[name="password"], input[type="password"]`
	DefaultSubmitLabel      = "Sign In"
)

// Options describe the target application and how to find its controls.
type Options struct {
	BaseURL string

	// SSOHostPattern matches the identity provider location.
	SSOHostPattern *regexp.Regexp
	// AppHostPattern matches the application location after login. When nil
	// it is derived from the host of BaseURL.
	AppHostPattern *regexp.Regexp

	LoginText        string
	UsernameSelector string
	PasswordSelector string
	SubmitLabel      string

	NavigationTimeout time.Duration
	RedirectTimeout   time.Duration
	FieldTimeout      time.Duration
	SubmitTimeout     time.Duration
	LoginTimeout      time.Duration
}

func (o *Options) applyDefaults() error {
	if o.BaseURL == "" {
		return errors.New("loginflow: base url is required")
	}
	if o.SSOHostPattern == nil {
		return errors.New("loginflow: sso host pattern is required")
	}
	if o.AppHostPattern == nil {
		u, err := url.Parse(o.BaseURL)
		if err != nil || u.Host == "" {
			return fmt.Errorf("loginflow: invalid base url %q", o.BaseURL)
		}
		o.AppHostPattern = regexp.MustCompile(regexp.QuoteMeta(u.Host))
	}
	setDefault(&o.LoginText, DefaultLoginText)
	setDefault(&o.UsernameSelector, DefaultUsernameSelector)
	setDefault(&o.PasswordSelector, DefaultPasswordSelector)
	setDefault(&o.SubmitLabel, DefaultSubmitLabel)
	setDefaultDuration(&o.NavigationTimeout, DefaultNavigationTimeout)
	setDefaultDuration(&o.RedirectTimeout, DefaultRedirectTimeout)
	setDefaultDuration(&o.FieldTimeout, DefaultFieldTimeout)
	setDefaultDuration(&o.SubmitTimeout, DefaultSubmitTimeout)
	setDefaultDuration(&o.LoginTimeout, DefaultLoginTimeout)
	return nil
}

func setDefault(v *string, def string) {
	if *v == "" {
		*v = def
	}
}

func setDefaultDuration(v *time.Duration, def time.Duration) {
	if *v <= 0 {
		*v = def
	}
}

// FlowContext is fixed when a run starts.
type FlowContext struct {
	BaseURL   string
	StartTime time.Time
}

// Result is what a run produced. On failure State is where it stopped and
// Metrics holds what was recorded before that.
type Result struct {
	State   State
	Metrics []Metric
}

// Option configures a Runner.
type Option func(*Runner)

// WithSink sets where metrics are pushed.
func WithSink(sink MetricsSink) Option {
	return func(r *Runner) { r.sink = sink }
}

// WithReporter sets the step grouping collaborator.
func WithReporter(reporter StepReporter) Option {
	return func(r *Runner) { r.reporter = reporter }
}

// WithLogger sets the lifecycle logger.
func WithLogger(logger FlowLogger) Option {
	return func(r *Runner) { r.logger = logger }
}

// WithClock replaces time.Now.
func WithClock(now func() time.Time) Option {
	return func(r *Runner) { r.now = now }
}

// Runner executes the login journey. It holds no per-run state and may be
// shared by concurrent virtual users, each with its own Page.
type Runner struct {
	opts     Options
	sink     MetricsSink
	reporter StepReporter
	logger   FlowLogger
	now      func() time.Time
	handlers map[State]handler
}

type handler func(ctx context.Context, r *run) (State, error)

// NewRunner validates opts and builds a Runner.
func NewRunner(opts Options, options ...Option) (*Runner, error) {
	if err := opts.applyDefaults(); err != nil {
		return nil, err
	}
	r := &Runner{
		opts:     opts,
		sink:     nopSink{},
		reporter: directReporter{},
		logger:   nopLogger{},
		now:      time.Now,
	}
	for _, o := range options {
		o(r)
	}
	r.handlers = map[State]handler{
		StateStart:             handleStart,
		StateHomepageLoaded:    handleHomepageLoaded,
		StateOnSSOPage:         handleOnSSOPage,
		StateCredentialsFilled: handleCredentialsFilled,
	}
	return r, nil
}

// With returns a copy of r with options applied. Use it to give each
// virtual user its own collaborators.
func (r *Runner) With(options ...Option) *Runner {
	c := *r
	for _, o := range options {
		o(&c)
	}
	return &c
}

// Options returns the effective options after defaults.
func (r *Runner) Options() Options {
	return r.opts
}

type run struct {
	*Runner
	page   Page
	creds  Credentials
	fc     FlowContext
	result *Result
}

// Run drives page through every state until login is verified. The returned
// Result is never nil.
func (r *Runner) Run(ctx context.Context, page Page, creds Credentials) (*Result, error) {
	x := &run{
		Runner: r,
		page:   page,
		creds:  creds,
		fc:     FlowContext{BaseURL: r.opts.BaseURL, StartTime: r.now()},
		result: &Result{State: StateStart},
	}
	userID := creds.UserID()

	for state := StateStart; !state.Terminal(); {
		h, ok := r.handlers[state]
		if !ok {
			return x.result, fmt.Errorf("loginflow: no handler for state %s", state)
		}

		step := state.Step()
		r.logger.StepStarted(userID, step)
		stepStart := r.now()

		next := state
		err := r.reporter.Step(ctx, step, func(ctx context.Context) error {
			var herr error
			next, herr = h(ctx, x)
			return herr
		})
		if err != nil {
			r.logger.StepFailed(userID, step, err)
			return x.result, err
		}
		r.logger.StepSucceeded(userID, step, r.now().Sub(stepStart))

		state = next
		x.result.State = next
	}

	total := r.now().Sub(x.fc.StartTime)
	x.emit(ctx, MetricDashboardLoadTime, total)
	r.logger.FlowCompleted(userID, total)
	return x.result, nil
}

func (x *run) emit(ctx context.Context, name string, value time.Duration) {
	if value < 0 {
		value = 0
	}
	m := Metric{Name: name, Value: value}
	x.result.Metrics = append(x.result.Metrics, m)
	x.sink.Emit(ctx, m)
}

func (x *run) settle(ctx context.Context) error {
	if err := x.page.WaitForLoadState(ctx, LoadStateDOMContentLoaded); err != nil {
		return err
	}
	return x.page.WaitForLoadState(ctx, LoadStateNetworkIdle)
}

// onSSOHost checks the host of raw, not the whole URL, so return-to query
// parameters cannot produce a false match.
func (x *run) onSSOHost(raw string) bool {
	return matchHost(x.opts.SSOHostPattern, raw)
}

// backOnApp accepts a location matching the application pattern whose host
// is not the identity provider. A CAS login URL carries the application
// address in its service parameter and must not count.
func (x *run) backOnApp(raw string) bool {
	return x.opts.AppHostPattern.MatchString(raw) && !x.onSSOHost(raw)
}

func matchHost(pattern *regexp.Regexp, raw string) bool {
	u, err := url.Parse(raw)
	if err != nil || u.Host == "" {
		return pattern.MatchString(raw)
	}
	return pattern.MatchString(u.Host)
}

func handleStart(ctx context.Context, x *run) (State, error) {
	const state = StateStart
	if err := x.page.Goto(ctx, x.fc.BaseURL, x.opts.NavigationTimeout); err != nil {
		return state, newFlowError(state, ErrNavigation, err)
	}
	if err := x.page.WaitForLoadState(ctx, LoadStateNetworkIdle); err != nil {
		return state, newFlowError(state, ErrNavigation, err)
	}
	return StateHomepageLoaded, nil
}

func handleHomepageLoaded(ctx context.Context, x *run) (State, error) {
	const state = StateHomepageLoaded
	clickStart := x.now()
	if err := x.page.ClickText(ctx, x.opts.LoginText, x.opts.RedirectTimeout); err != nil {
		return state, newFlowError(state, ErrRedirect, err)
	}
	if err := x.settle(ctx); err != nil {
		return state, newFlowError(state, ErrRedirect, err)
	}
	if err := x.page.WaitForURL(ctx, x.opts.SSOHostPattern.String(), x.onSSOHost, x.opts.RedirectTimeout); err != nil {
		return state, newFlowError(state, ErrRedirect,
			fmt.Errorf("%w %s: %w", ErrHostMismatch, x.opts.SSOHostPattern, err))
	}
	x.emit(ctx, MetricSSORedirectTime, x.now().Sub(clickStart))
	return StateOnSSOPage, nil
}

func handleOnSSOPage(ctx context.Context, x *run) (State, error) {
	const state = StateOnSSOPage
	for _, sel := range []string{x.opts.UsernameSelector, x.opts.PasswordSelector} {
		if err := x.page.WaitVisible(ctx, sel, x.opts.FieldTimeout); err != nil {
			return state, newFlowError(state, ErrCredentialFill, fmt.Errorf("waiting for %s: %w", sel, err))
		}
	}
	if err := x.page.Fill(ctx, x.opts.UsernameSelector, x.creds.Username); err != nil {
		return state, newFlowError(state, ErrCredentialFill, err)
	}
	if err := x.page.Fill(ctx, x.opts.PasswordSelector, x.creds.Password); err != nil {
		return state, newFlowError(state, ErrCredentialFill, err)
	}
	return StateCredentialsFilled, nil
}

func handleCredentialsFilled(ctx context.Context, x *run) (State, error) {
	const state = StateCredentialsFilled
	submitStart := x.now()
	if err := x.page.ClickButton(ctx, x.opts.SubmitLabel, x.opts.SubmitTimeout); err != nil {
		return state, newFlowError(state, ErrLoginVerification, err)
	}
	if err := x.settle(ctx); err != nil {
		return state, newFlowError(state, ErrLoginVerification, err)
	}

	waitErr := x.page.WaitForURL(ctx, x.opts.AppHostPattern.String(), x.backOnApp, x.opts.LoginTimeout)
	current, urlErr := x.page.URL(ctx)
	switch {
	case urlErr == nil && x.onSSOHost(current):
		return state, newFlowError(state, ErrLoginVerification, fmt.Errorf("%w: %s", ErrStillOnSSO, current))
	case waitErr != nil:
		return state, newFlowError(state, ErrLoginVerification,
			fmt.Errorf("%w %s: %w", ErrHostMismatch, x.opts.AppHostPattern, waitErr))
	case urlErr != nil:
		return state, newFlowError(state, ErrLoginVerification, urlErr)
	}

	x.emit(ctx, MetricLoginDuration, x.now().Sub(submitStart))
	return StateLoginVerified, nil
}
