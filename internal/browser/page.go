package browser

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"

	"github.com/FairForge/ssoload/internal/loginflow"
)

const pollInterval = 50 * time.Millisecond

// navStartGrace is how long a click may take to start a navigation.
const navStartGrace = time.Second

var _ loginflow.Page = (*Page)(nil)

// Page drives one tab. It implements loginflow.Page.
type Page struct {
	tabCtx      context.Context
	net         *netTracker
	nav         *navTracker
	loadTimeout time.Duration
	idleQuiet   time.Duration
	navGrace    time.Duration
}

// bounded derives an action context from the tab that also ends when ctx
// does, so both the caller and the step timeout can abort it.
func (p *Page) bounded(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	actx, cancel := context.WithTimeout(p.tabCtx, timeout)
	stop := context.AfterFunc(ctx, cancel)
	return actx, func() {
		stop()
		cancel()
	}
}

func (p *Page) run(ctx context.Context, what string, timeout time.Duration, actions ...chromedp.Action) error {
	actx, cancel := p.bounded(ctx, timeout)
	defer cancel()
	if err := chromedp.Run(actx, actions...); err != nil {
		return wrapErr(actx, what, timeout, err)
	}
	return nil
}

func wrapErr(actx context.Context, what string, timeout time.Duration, err error) error {
	if actx.Err() == context.DeadlineExceeded {
		return fmt.Errorf("browser: %s: timeout %v exceeded: %w", what, timeout, context.DeadlineExceeded)
	}
	return fmt.Errorf("browser: %s: %w", what, err)
}

// poll evaluates cond until it holds or timeout elapses.
func (p *Page) poll(ctx context.Context, what string, timeout time.Duration, cond func(ctx context.Context) (bool, error)) error {
	actx, cancel := p.bounded(ctx, timeout)
	defer cancel()

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()
	for {
		ok, err := cond(actx)
		if err == nil && ok {
			return nil
		}
		select {
		case <-actx.Done():
			if err != nil {
				return wrapErr(actx, what, timeout, err)
			}
			return wrapErr(actx, what, timeout, actx.Err())
		case <-ticker.C:
		}
	}
}

func (p *Page) Goto(ctx context.Context, url string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	err := p.run(ctx, "navigate to "+url, timeout, chromedp.ActionFunc(func(actx context.Context) error {
		// page.navigate answers once the new document is committed, without
		// waiting for the load event.
		var res page.NavigateReturns
		if err := cdp.Execute(actx, page.CommandNavigate, page.Navigate(url), &res); err != nil {
			return err
		}
		if res.ErrorText != "" {
			return fmt.Errorf("page load error %s", res.ErrorText)
		}
		return nil
	}))
	if err != nil {
		return err
	}
	return p.poll(ctx, "domcontentloaded", time.Until(deadline), p.documentParsed)
}

func (p *Page) documentParsed(actx context.Context) (bool, error) {
	var ready string
	if err := chromedp.Run(actx, chromedp.Evaluate(`document.readyState`, &ready)); err != nil {
		return false, err
	}
	return ready == "interactive" || ready == "complete", nil
}

func (p *Page) WaitForLoadState(ctx context.Context, state loginflow.LoadState) error {
	switch state {
	case loginflow.LoadStateDOMContentLoaded:
		return p.poll(ctx, "domcontentloaded", p.loadTimeout, p.documentParsed)
	case loginflow.LoadStateNetworkIdle:
		return p.poll(ctx, "networkidle", p.loadTimeout, func(context.Context) (bool, error) {
			return p.net.idle(time.Now(), p.idleQuiet), nil
		})
	default:
		return fmt.Errorf("browser: unknown load state %q", state)
	}
}

func (p *Page) ClickText(ctx context.Context, text string, timeout time.Duration) error {
	return p.clickAndFollow(ctx, "click text="+text, textXPath(text), timeout)
}

func (p *Page) ClickButton(ctx context.Context, label string, timeout time.Duration) error {
	return p.clickAndFollow(ctx, "click button="+label, buttonXPath(label), timeout)
}

// clickAndFollow clicks the first visible match of xpath. When the click
// starts a main frame navigation it returns only after that navigation has
// committed, so later location reads see the new document.
func (p *Page) clickAndFollow(ctx context.Context, what, xpath string, timeout time.Duration) error {
	deadline := time.Now().Add(timeout)
	mark := p.nav.mark()

	err := p.poll(ctx, what, timeout, func(actx context.Context) (bool, error) {
		var nodes []*cdp.Node
		if err := chromedp.Run(actx, chromedp.Nodes(xpath, &nodes, chromedp.BySearch, chromedp.AtLeast(0))); err != nil {
			return false, err
		}
		node, err := firstVisible(actx, nodes, boxVisible)
		if err != nil || node == nil {
			return false, err
		}
		if err := chromedp.Run(actx, chromedp.MouseClickNode(node)); err != nil {
			return false, err
		}
		return true, nil
	})
	if err != nil {
		return err
	}
	p.waitNavigation(ctx, mark, time.Until(deadline))
	return nil
}

// waitNavigation waits up to navGrace for a navigation to begin after mark
// and then, within timeout, for it to commit or stop. A click that starts no
// navigation returns after the grace period.
func (p *Page) waitNavigation(ctx context.Context, mark navMark, timeout time.Duration) {
	grace := p.navGrace
	if grace > timeout {
		grace = timeout
	}
	began := time.NewTimer(grace)
	defer began.Stop()
	settled := time.NewTimer(timeout)
	defer settled.Stop()
	ticker := time.NewTicker(pollInterval / 5)
	defer ticker.Stop()

	for {
		started, done := p.nav.since(mark)
		if done {
			return
		}
		select {
		case <-ctx.Done():
			return
		case <-settled.C:
			return
		case <-began.C:
			if !started {
				return
			}
		case <-ticker.C:
		}
	}
}

// visibilityFunc reports whether a node is rendered.
type visibilityFunc func(ctx context.Context, node *cdp.Node) (bool, error)

// boxVisible treats a node as visible when it has a non-empty box model.
// Nodes under display:none have no box at all.
func boxVisible(ctx context.Context, node *cdp.Node) (bool, error) {
	box, err := dom.GetBoxModel().WithNodeID(node.NodeID).Do(ctx)
	if err != nil {
		return false, nil
	}
	return box != nil && box.Width > 0 && box.Height > 0, nil
}

// firstVisible returns the first rendered node in document order, or nil.
func firstVisible(ctx context.Context, nodes []*cdp.Node, visible visibilityFunc) (*cdp.Node, error) {
	for _, n := range nodes {
		ok, err := visible(ctx, n)
		if err != nil {
			return nil, err
		}
		if ok {
			return n, nil
		}
	}
	return nil, nil
}

func (p *Page) WaitVisible(ctx context.Context, selector string, timeout time.Duration) error {
	return p.run(ctx, "wait visible "+selector, timeout,
		chromedp.WaitVisible(selector, chromedp.ByQuery))
}

func (p *Page) Fill(ctx context.Context, selector, value string) error {
	return p.run(ctx, "fill "+selector, p.loadTimeout,
		chromedp.Clear(selector, chromedp.ByQuery),
		chromedp.SendKeys(selector, value, chromedp.ByQuery))
}

func (p *Page) URL(ctx context.Context) (string, error) {
	var loc string
	if err := p.run(ctx, "read location", p.loadTimeout, chromedp.Location(&loc)); err != nil {
		return "", err
	}
	return loc, nil
}

func (p *Page) WaitForURL(ctx context.Context, what string, match loginflow.URLMatcher, timeout time.Duration) error {
	return p.poll(ctx, "url "+what, timeout, func(actx context.Context) (bool, error) {
		var loc string
		if err := chromedp.Run(actx, chromedp.Location(&loc)); err != nil {
			return false, err
		}
		return match(loc), nil
	})
}

// Elements that never render text a user could click.
const nonRendered = `self::script or self::style or self::noscript or self::template or self::title`

const (
	upperAlpha = `"ABCDEFGHIJKLMNOPQRSTUVWXYZ"`
	lowerAlpha = `"abcdefghijklmnopqrstuvwxyz"`
)

// containsFold is an XPath 1.0 case-insensitive contains over expr.
func containsFold(expr, text string) string {
	return fmt.Sprintf(`contains(translate(%s, %s, %s), %s)`,
		expr, upperAlpha, lowerAlpha, xpathLiteral(strings.ToLower(text)))
}

// textXPath matches rendered elements in the body that own a text node
// containing text, ignoring case.
func textXPath(text string) string {
	return fmt.Sprintf(`//body//*[not(%s)][text()[%s]]`, nonRendered, containsFold("normalize-space(.)", text))
}

func buttonXPath(label string) string {
	return fmt.Sprintf(`//body//button[%s] | //body//*[@role="button"][%s] | //body//input[(@type="submit" or @type="button") and %s]`,
		containsFold("normalize-space(.)", label),
		containsFold("normalize-space(.)", label),
		containsFold("@value", label))
}

// xpathLiteral quotes s for XPath 1.0, which has no escape sequences.
func xpathLiteral(s string) string {
	if !strings.Contains(s, `"`) {
		return `"` + s + `"`
	}
	if !strings.Contains(s, `'`) {
		return `'` + s + `'`
	}
	parts := strings.Split(s, `"`)
	quoted := make([]string, 0, 2*len(parts))
	for i, part := range parts {
		if i > 0 {
			quoted = append(quoted, `'"'`)
		}
		if part != "" {
			quoted = append(quoted, `"`+part+`"`)
		}
	}
	return "concat(" + strings.Join(quoted, ", ") + ")"
}

// netTracker counts in-flight requests of a tab.
type netTracker struct {
	mu       sync.Mutex
	inflight map[string]struct{}
	last     time.Time
}

func newNetTracker() *netTracker {
	return &netTracker{inflight: make(map[string]struct{}), last: time.Now()}
}

func (t *netTracker) started(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.inflight[id] = struct{}{}
	t.last = time.Now()
}

func (t *netTracker) finished(id string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	delete(t.inflight, id)
	t.last = time.Now()
}

// idle reports whether nothing is in flight and nothing has changed for quiet.
func (t *netTracker) idle(now time.Time, quiet time.Duration) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.inflight) == 0 && now.Sub(t.last) >= quiet
}

// navTracker counts main frame navigation events of a tab.
type navTracker struct {
	mu        sync.Mutex
	mainFrame cdp.FrameID
	started   int
	committed int
	stopped   int
}

type navMark struct {
	started, committed, stopped int
}

func newNavTracker() *navTracker {
	return &navTracker{}
}

func (t *navTracker) setMainFrame(id cdp.FrameID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mainFrame = id
}

func (t *navTracker) isMain(id cdp.FrameID) bool {
	return t.mainFrame == "" || t.mainFrame == id
}

func (t *navTracker) startedLoading(id cdp.FrameID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isMain(id) {
		t.started++
	}
}

func (t *navTracker) navigated(frame *cdp.Frame) {
	if frame == nil || frame.ParentID != "" {
		return
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	t.mainFrame = frame.ID
	t.committed++
}

func (t *navTracker) stoppedLoading(id cdp.FrameID) {
	t.mu.Lock()
	defer t.mu.Unlock()
	if t.isMain(id) {
		t.stopped++
	}
}

func (t *navTracker) mark() navMark {
	t.mu.Lock()
	defer t.mu.Unlock()
	return navMark{started: t.started, committed: t.committed, stopped: t.stopped}
}

// since reports whether a navigation began after m and whether it has
// committed or stopped loading since.
func (t *navTracker) since(m navMark) (began, settled bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	settled = t.committed > m.committed || (t.started > m.started && t.stopped > m.stopped)
	began = settled || t.started > m.started
	return began, settled
}
