// Package scenario binds the login journey to the load test framework: each
// virtual user opens an isolated page, runs the flow, and reports how far it
// got.
package scenario

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/ssoload/internal/browser"
	"github.com/FairForge/ssoload/internal/loadtest"
	"github.com/FairForge/ssoload/internal/loginflow"
	"github.com/FairForge/ssoload/internal/logging"
)

// StepOpenPage is reported when no page could be opened for a virtual user.
const StepOpenPage = "Open browser page"

// PageSource hands out isolated pages. The returned func releases the page.
type PageSource interface {
	NewPage() (loginflow.Page, func(), error)
}

type launcherSource struct {
	l *browser.Launcher
}

// FromLauncher adapts a started browser launcher to a PageSource.
func FromLauncher(l *browser.Launcher) PageSource {
	return launcherSource{l: l}
}

func (s launcherSource) NewPage() (loginflow.Page, func(), error) {
	page, release, err := s.l.NewPage()
	if err != nil {
		return nil, nil, err
	}
	return page, release, nil
}

// Login runs the login journey once per virtual user.
type Login struct {
	runner *loginflow.Runner
	pages  PageSource
	creds  loginflow.Credentials
	logger *zap.Logger
}

// NewLogin creates the scenario. runner carries the shared sink and logger;
// a step reporter is attached per virtual user.
func NewLogin(runner *loginflow.Runner, pages PageSource, creds loginflow.Credentials, logger *zap.Logger) *Login {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Login{runner: runner, pages: pages, creds: creds, logger: logger}
}

// Run executes one virtual user. It matches loadtest.Scenario.
func (l *Login) Run(ctx context.Context, vu loadtest.VU) loadtest.Result {
	result := loadtest.Result{VU: vu, StartTime: time.Now()}

	page, release, err := l.pages.NewPage()
	if err != nil {
		result.FailedStep = StepOpenPage
		result.Error = err
		l.logger.Warn("open page failed", zap.String("vu", vu.ID), zap.Error(err))
		result.Duration = time.Since(result.StartTime)
		return result
	}
	defer release()

	reporter := logging.NewStepReporter(l.logger, vu.ID)
	_, err = l.runner.With(loginflow.WithReporter(reporter)).Run(ctx, page, l.creds)
	result.Duration = time.Since(result.StartTime)
	if err != nil {
		result.Error = err
		if state, ok := loginflow.FailedState(err); ok {
			result.FailedStep = state.Step()
		}
	}
	l.logger.Debug("vu finished",
		zap.String("vu", vu.ID),
		zap.String("phase", vu.Phase),
		zap.Duration("duration", result.Duration),
		zap.Array("steps", logging.SpanList(reporter.Spans())))
	return result
}
