// Package browser runs the login journey in headless Chrome through the
// DevTools protocol.
package browser

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
)

// Options configure the shared browser process.
type Options struct {
	Headless bool
	// Args are extra command line switches such as "--no-sandbox".
	Args      []string
	ExecPath  string
	UserAgent string

	// LoadTimeout bounds WaitForLoadState and fills.
	LoadTimeout time.Duration
	// IdleQuiet is how long the network must stay quiet to count as idle.
	IdleQuiet time.Duration
}

// DefaultOptions returns headless settings suitable for containers.
func DefaultOptions() Options {
	return Options{
		Headless:    true,
		Args:        []string{"--no-sandbox", "--disable-setuid-sandbox"},
		LoadTimeout: 30 * time.Second,
		IdleQuiet:   500 * time.Millisecond,
	}
}

// Launcher owns one browser process. Each virtual user gets its own
// browser context from NewPage, so cookies and storage are never shared.
type Launcher struct {
	opts   Options
	logger *zap.Logger

	mu            sync.Mutex
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc
}

// NewLauncher creates a launcher. The browser starts on Start.
func NewLauncher(opts Options, logger *zap.Logger) *Launcher {
	def := DefaultOptions()
	if opts.LoadTimeout <= 0 {
		opts.LoadTimeout = def.LoadTimeout
	}
	if opts.IdleQuiet <= 0 {
		opts.IdleQuiet = def.IdleQuiet
	}
	return &Launcher{opts: opts, logger: logger.Named("browser")}
}

// parseFlag turns "--name=value" or "--name" into a chromedp flag.
func parseFlag(arg string) (string, interface{}) {
	arg = strings.TrimLeft(arg, "-")
	if name, value, ok := strings.Cut(arg, "="); ok {
		return name, value
	}
	return arg, true
}

func (l *Launcher) allocatorOptions() []chromedp.ExecAllocatorOption {
	opts := append([]chromedp.ExecAllocatorOption{}, chromedp.DefaultExecAllocatorOptions[:]...)
	opts = append(opts, chromedp.Flag("headless", l.opts.Headless))
	for _, arg := range l.opts.Args {
		name, value := parseFlag(arg)
		opts = append(opts, chromedp.Flag(name, value))
	}
	if l.opts.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(l.opts.ExecPath))
	}
	if l.opts.UserAgent != "" {
		opts = append(opts, chromedp.UserAgent(ResolveUserAgent(l.opts.UserAgent)))
	}
	return opts
}

// Start launches the browser process. The process lives until Close or
// until ctx is cancelled.
func (l *Launcher) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browserCtx != nil {
		return errors.New("browser: already started")
	}

	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, l.allocatorOptions()...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return fmt.Errorf("browser: launching: %w", err)
	}

	var ua string
	if err := chromedp.Run(browserCtx, chromedp.Evaluate(`navigator.userAgent`, &ua)); err != nil {
		l.logger.Warn("reading user agent", zap.Error(err))
	}
	parsed := ParseUserAgent(ua)
	l.logger.Info("browser launched",
		zap.Bool("headless", l.opts.Headless),
		zap.String("browser", string(parsed.Browser)),
		zap.String("version", parsed.Version))

	l.allocCancel = allocCancel
	l.browserCtx = browserCtx
	l.browserCancel = browserCancel
	return nil
}

// NewPage opens a tab in a fresh browser context. The returned close
// function disposes of the tab and its context.
func (l *Launcher) NewPage() (*Page, func(), error) {
	l.mu.Lock()
	browserCtx := l.browserCtx
	l.mu.Unlock()
	if browserCtx == nil {
		return nil, nil, errors.New("browser: not started")
	}

	tabCtx, cancel := chromedp.NewContext(browserCtx, chromedp.WithNewBrowserContext())
	p := &Page{
		tabCtx:      tabCtx,
		net:         newNetTracker(),
		nav:         newNavTracker(),
		loadTimeout: l.opts.LoadTimeout,
		idleQuiet:   l.opts.IdleQuiet,
		navGrace:    navStartGrace,
	}

	chromedp.ListenTarget(tabCtx, func(ev interface{}) {
		switch e := ev.(type) {
		case *network.EventRequestWillBeSent:
			p.net.started(string(e.RequestID))
		case *network.EventLoadingFinished:
			p.net.finished(string(e.RequestID))
		case *network.EventLoadingFailed:
			p.net.finished(string(e.RequestID))
		case *page.EventFrameStartedLoading:
			p.nav.startedLoading(e.FrameID)
		case *page.EventFrameNavigated:
			p.nav.navigated(e.Frame)
		case *page.EventFrameStoppedLoading:
			p.nav.stoppedLoading(e.FrameID)
		}
	})

	if err := chromedp.Run(tabCtx, network.Enable()); err != nil {
		cancel()
		return nil, nil, fmt.Errorf("browser: opening tab: %w", err)
	}
	// The main frame of a page target shares the target's id.
	if c := chromedp.FromContext(tabCtx); c != nil && c.Target != nil {
		p.nav.setMainFrame(cdp.FrameID(c.Target.TargetID))
	}
	return p, cancel, nil
}

// Close stops the browser process.
func (l *Launcher) Close() {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.browserCancel != nil {
		l.browserCancel()
		l.allocCancel()
		l.browserCtx = nil
		l.browserCancel = nil
		l.allocCancel = nil
	}
}
