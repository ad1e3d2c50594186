package loginflow

import (
	"context"
	"fmt"
	"sync"
	"time"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2026, 1, 1, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// fakePage simulates the target site on a fake clock. Every wait that would
// time out advances the clock by its timeout and fails.
type fakePage struct {
	clock *fakeClock

	gotoDelay time.Duration
	gotoErr   error

	loginLink     bool
	loginDelay    time.Duration
	loginRedirect string

	visible map[string]bool

	submitButton   bool
	submitDelay    time.Duration
	submitRedirect string
	// submitLag delays the post-submit redirect past the click, the way a
	// slow identity provider answers the form post.
	submitLag time.Duration

	pending   string
	pendingAt time.Time

	url   string
	fills map[string]string
	calls []string
}

func newFakePage(clock *fakeClock) *fakePage {
	return &fakePage{
		clock:          clock,
		gotoDelay:      200 * time.Millisecond,
		loginLink:      true,
		loginDelay:     150 * time.Millisecond,
		loginRedirect:  "https://login.example-sso.test/cas/login?service=https://example-slcm.test/",
		visible:        map[string]bool{DefaultUsernameSelector: true, DefaultPasswordSelector: true},
		submitButton:   true,
		submitDelay:    300 * time.Millisecond,
		submitRedirect: "https://example-slcm.test/dashboard",
		fills:          make(map[string]string),
	}
}

func (p *fakePage) timeout(what string, d time.Duration) error {
	p.clock.Advance(d)
	return fmt.Errorf("timeout %v exceeded waiting for %s: %w", d, what, context.DeadlineExceeded)
}

func (p *fakePage) Goto(_ context.Context, url string, timeout time.Duration) error {
	p.calls = append(p.calls, "goto")
	if p.gotoErr != nil {
		return p.gotoErr
	}
	if p.gotoDelay > timeout {
		return p.timeout("navigation", timeout)
	}
	p.clock.Advance(p.gotoDelay)
	p.url = url
	return nil
}

func (p *fakePage) WaitForLoadState(_ context.Context, state LoadState) error {
	p.calls = append(p.calls, "wait:"+string(state))
	return nil
}

func (p *fakePage) ClickText(_ context.Context, text string, timeout time.Duration) error {
	p.calls = append(p.calls, "click:"+text)
	if !p.loginLink {
		return p.timeout("text="+text, timeout)
	}
	p.clock.Advance(p.loginDelay)
	p.url = p.loginRedirect
	return nil
}

func (p *fakePage) ClickButton(_ context.Context, label string, timeout time.Duration) error {
	p.calls = append(p.calls, "button:"+label)
	if !p.submitButton {
		return p.timeout("button="+label, timeout)
	}
	p.clock.Advance(p.submitDelay)
	if p.submitLag > 0 {
		p.pending = p.submitRedirect
		p.pendingAt = p.clock.Now().Add(p.submitLag)
		return nil
	}
	p.url = p.submitRedirect
	return nil
}

// land applies a pending redirect once the clock has reached it.
func (p *fakePage) land() {
	if p.pending != "" && !p.clock.Now().Before(p.pendingAt) {
		p.url = p.pending
		p.pending = ""
	}
}

func (p *fakePage) WaitVisible(_ context.Context, selector string, timeout time.Duration) error {
	p.calls = append(p.calls, "visible:"+selector)
	if !p.visible[selector] {
		return p.timeout(selector, timeout)
	}
	return nil
}

func (p *fakePage) Fill(_ context.Context, selector, value string) error {
	p.calls = append(p.calls, "fill:"+selector)
	p.fills[selector] = value
	return nil
}

func (p *fakePage) URL(context.Context) (string, error) {
	p.land()
	return p.url, nil
}

func (p *fakePage) WaitForURL(_ context.Context, what string, match URLMatcher, timeout time.Duration) error {
	p.land()
	if match(p.url) {
		return nil
	}
	if p.pending != "" {
		if wait := p.pendingAt.Sub(p.clock.Now()); wait <= timeout {
			p.clock.Advance(wait)
			p.land()
			if match(p.url) {
				return nil
			}
			timeout -= wait
		}
	}
	return p.timeout("url "+what, timeout)
}

type recordingSink struct {
	mu      sync.Mutex
	metrics []Metric
}

func (s *recordingSink) Emit(_ context.Context, m Metric) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.metrics = append(s.metrics, m)
}

type recordingReporter struct {
	steps []string
}

func (r *recordingReporter) Step(ctx context.Context, name string, fn func(ctx context.Context) error) error {
	r.steps = append(r.steps, name)
	return fn(ctx)
}

type logEvent struct {
	kind   string
	userID string
	step   string
	err    error
}

type recordingLogger struct {
	events []logEvent
}

func (l *recordingLogger) StepStarted(userID, step string) {
	l.events = append(l.events, logEvent{kind: "start", userID: userID, step: step})
}

func (l *recordingLogger) StepSucceeded(userID, step string, _ time.Duration) {
	l.events = append(l.events, logEvent{kind: "ok", userID: userID, step: step})
}

func (l *recordingLogger) StepFailed(userID, step string, err error) {
	l.events = append(l.events, logEvent{kind: "fail", userID: userID, step: step, err: err})
}

func (l *recordingLogger) FlowCompleted(userID string, _ time.Duration) {
	l.events = append(l.events, logEvent{kind: "done", userID: userID})
}
