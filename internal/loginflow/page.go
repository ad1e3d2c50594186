package loginflow

import (
	"context"
	"time"
)

// LoadState is a page lifecycle milestone the flow can wait for.
type LoadState string

const (
	LoadStateDOMContentLoaded LoadState = "domcontentloaded"
	LoadStateNetworkIdle      LoadState = "networkidle"
)

// Page is the browser capability the flow drives. Implementations bind to a
// single tab and are not shared between virtual users.
type Page interface {
	// Goto navigates to url and returns once the new document has been
	// parsed, without waiting for subresources.
	Goto(ctx context.Context, url string, timeout time.Duration) error
	WaitForLoadState(ctx context.Context, state LoadState) error
	// ClickText activates the first visible element whose text contains
	// text, ignoring case. If the click starts a navigation it returns once
	// that navigation has committed.
	ClickText(ctx context.Context, text string, timeout time.Duration) error
	// ClickButton is ClickText restricted to buttons.
	ClickButton(ctx context.Context, label string, timeout time.Duration) error
	// WaitVisible blocks until the first match of a CSS selector list is visible.
	WaitVisible(ctx context.Context, selector string, timeout time.Duration) error
	Fill(ctx context.Context, selector, value string) error
	URL(ctx context.Context) (string, error)
	// WaitForURL blocks until match accepts the current URL. what describes
	// the expected location in errors.
	WaitForURL(ctx context.Context, what string, match URLMatcher, timeout time.Duration) error
}

// URLMatcher reports whether a location is the one being waited for.
type URLMatcher func(rawURL string) bool

// Credentials identify one virtual user. They are opaque to the flow.
type Credentials struct {
	Username string
	Password string
}

// UserID is the identifier attached to log lines for this user.
func (c Credentials) UserID() string {
	if c.Username == "" {
		return "unknown"
	}
	return c.Username
}

// Metric names emitted by a run, in emission order.
const (
	MetricSSORedirectTime   = "sso_redirect_time"
	MetricLoginDuration     = "login_duration"
	MetricDashboardLoadTime = "dashboard_load_time"
)

// Metric is a named duration measured during a run.
type Metric struct {
	Name  string
	Value time.Duration
}

// MetricsSink receives metrics as soon as they are measured.
type MetricsSink interface {
	Emit(ctx context.Context, m Metric)
}

// StepReporter groups the actions of one step under a name. It must return
// the error from fn unchanged.
type StepReporter interface {
	Step(ctx context.Context, name string, fn func(ctx context.Context) error) error
}

// FlowLogger is told about lifecycle points of a run.
type FlowLogger interface {
	StepStarted(userID, step string)
	StepSucceeded(userID, step string, elapsed time.Duration)
	StepFailed(userID, step string, err error)
	FlowCompleted(userID string, total time.Duration)
}

type nopSink struct{}

func (nopSink) Emit(context.Context, Metric) {}

type directReporter struct{}

func (directReporter) Step(ctx context.Context, _ string, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type nopLogger struct{}

func (nopLogger) StepStarted(string, string) {}
func (nopLogger) StepSucceeded(string, string, time.Duration) {}
func (nopLogger) StepFailed(string, string, error) {}
func (nopLogger) FlowCompleted(string, time.Duration) {}
