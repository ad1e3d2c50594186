package loadtest

import (
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/FairForge/ssoload/internal/metrics"
)

// Phase releases ArrivalRate new virtual users per second for Duration.
type Phase struct {
	Name        string
	Duration    time.Duration
	ArrivalRate float64
}

// Config defines load test parameters.
type Config struct {
	Name   string
	Phases []Phase
	MaxVUs int // Max concurrent virtual users
}

// DefaultConfig returns a short proof-of-concept profile.
func DefaultConfig(name string) *Config {
	return &Config{
		Name: name,
		Phases: []Phase{
			{Name: "warm up", Duration: 30 * time.Second, ArrivalRate: 2},
		},
		MaxVUs: 50,
	}
}

// VU identifies one virtual user.
type VU struct {
	ID    string
	Index int
	Phase string
}

// Result captures how one virtual user ended.
type Result struct {
	VU         VU
	StartTime  time.Time
	Duration   time.Duration
	FailedStep string // empty on success
	Error      error
}

// Scenario is what each virtual user executes.
type Scenario func(ctx context.Context, vu VU) Result

// Observer is told when virtual users start and finish.
type Observer interface {
	VUStarted()
	VUFinished(outcome, step string)
}

type nopObserver struct{}

func (nopObserver) VUStarted() {}
func (nopObserver) VUFinished(string, string) {}

// Summary aggregates results from a load test run.
type Summary struct {
	TestName    string                `json:"test_name"`
	StartTime   time.Time             `json:"start_time"`
	EndTime     time.Time             `json:"end_time"`
	Launched    int64                 `json:"launched"`
	Completed   int64                 `json:"completed"`
	Failed      int64                 `json:"failed"`
	Skipped     int64                 `json:"skipped"`
	ErrorRate   float64               `json:"error_rate"`
	ArrivalRate float64               `json:"arrival_rate"` // achieved launches per second
	Errors      map[string]int64      `json:"errors"`       // by failing step
	Stats       []metrics.StatSummary `json:"stats"`
}

// Option configures a Framework.
type Option func(*Framework)

// WithRecorder sets the recorder whose stats end up in the summary.
func WithRecorder(r *metrics.Recorder) Option {
	return func(f *Framework) { f.recorder = r }
}

// WithObserver sets the virtual user lifecycle observer.
func WithObserver(o Observer) Option {
	return func(f *Framework) { f.observer = o }
}

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(f *Framework) { f.logger = l.Named("loadtest") }
}

// Framework orchestrates load test execution.
type Framework struct {
	config   *Config
	scenario Scenario
	recorder *metrics.Recorder
	observer Observer
	logger   *zap.Logger
	results  chan Result

	// Metrics (atomic for thread safety)
	launched  atomic.Int64
	completed atomic.Int64
	failed    atomic.Int64
	skipped   atomic.Int64

	// State
	mu        sync.RWMutex
	running   bool
	startTime time.Time
	endTime   time.Time
	errors    map[string]int64
}

// New creates a new load testing framework.
func New(config *Config, scenario Scenario, opts ...Option) *Framework {
	if config == nil {
		config = DefaultConfig("default")
	}
	if config.MaxVUs <= 0 {
		config.MaxVUs = 1
	}

	f := &Framework{
		config:   config,
		scenario: scenario,
		recorder: metrics.NewRecorder(),
		observer: nopObserver{},
		logger:   zap.NewNop(),
		errors:   make(map[string]int64),
	}
	for _, o := range opts {
		o(f)
	}
	return f
}

// Recorder returns the recorder backing the summary stats.
func (f *Framework) Recorder() *metrics.Recorder {
	return f.recorder
}

// Run executes every phase in order and returns a summary once all
// launched virtual users have finished. Cancelling ctx stops arrivals and
// is passed on to running virtual users.
func (f *Framework) Run(ctx context.Context) (*Summary, error) {
	f.mu.Lock()
	if f.running {
		f.mu.Unlock()
		return nil, fmt.Errorf("load test already running")
	}
	f.running = true
	f.startTime = time.Now()
	f.endTime = time.Time{}
	f.results = make(chan Result, f.config.MaxVUs*10)
	f.mu.Unlock()

	defer func() {
		f.mu.Lock()
		f.running = false
		f.mu.Unlock()
	}()

	// Start result collector
	collectorDone := make(chan struct{})
	go f.collectResults(f.results, collectorDone)

	var wg sync.WaitGroup
	semaphore := make(chan struct{}, f.config.MaxVUs)
	index := 0

	for _, phase := range f.config.Phases {
		if ctx.Err() != nil {
			break
		}
		f.logger.Info("phase started",
			zap.String("phase", phase.Name),
			zap.Duration("duration", phase.Duration),
			zap.Float64("arrival_rate", phase.ArrivalRate))

		launched := f.runPhase(ctx, phase, semaphore, &wg, &index)

		f.logger.Info("phase finished", zap.String("phase", phase.Name), zap.Int("launched", launched))
	}

	// Wait for all virtual users to finish
	wg.Wait()
	close(f.results)
	<-collectorDone

	f.mu.Lock()
	f.endTime = time.Now()
	f.mu.Unlock()

	return f.Snapshot(), nil
}

// runPhase paces arrivals until the phase ends.
func (f *Framework) runPhase(ctx context.Context, phase Phase, semaphore chan struct{}, wg *sync.WaitGroup, index *int) int {
	if phase.ArrivalRate <= 0 || phase.Duration <= 0 {
		return 0
	}
	phaseCtx, cancel := context.WithTimeout(ctx, phase.Duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(phase.ArrivalRate), 1)
	launched := 0

	for {
		// Wait fails once the next arrival would land after the deadline
		if err := limiter.Wait(phaseCtx); err != nil {
			return launched
		}

		select {
		case semaphore <- struct{}{}:
		default:
			// At max concurrency, drop this arrival
			f.skipped.Add(1)
			f.observer.VUFinished(metrics.OutcomeSkipped, "")
			continue
		}

		*index++
		vu := VU{ID: uuid.NewString(), Index: *index, Phase: phase.Name}
		f.launched.Add(1)
		f.observer.VUStarted()
		launched++

		wg.Add(1)
		go func() {
			defer wg.Done()
			defer func() { <-semaphore }()
			f.results <- f.scenario(ctx, vu)
		}()
	}
}

// collectResults aggregates results from virtual users.
func (f *Framework) collectResults(results <-chan Result, done chan struct{}) {
	defer close(done)

	for result := range results {
		if result.Error != nil {
			f.failed.Add(1)
			key := result.FailedStep
			if key == "" {
				key = result.Error.Error()
				if len(key) > 100 {
					key = key[:100]
				}
			}
			f.mu.Lock()
			f.errors[key]++
			f.mu.Unlock()
			f.observer.VUFinished(metrics.OutcomeFailed, result.FailedStep)
		} else {
			f.completed.Add(1)
			f.observer.VUFinished(metrics.OutcomeCompleted, "")
		}
	}
}

// Snapshot returns the metrics collected so far. It is safe to call while
// the test is running.
func (f *Framework) Snapshot() *Summary {
	f.mu.RLock()
	defer f.mu.RUnlock()

	end := f.endTime
	if end.IsZero() {
		end = time.Now()
	}

	summary := &Summary{
		TestName:  f.config.Name,
		StartTime: f.startTime,
		EndTime:   end,
		Launched:  f.launched.Load(),
		Completed: f.completed.Load(),
		Failed:    f.failed.Load(),
		Skipped:   f.skipped.Load(),
		Errors:    make(map[string]int64, len(f.errors)),
		Stats:     f.recorder.Stats(),
	}

	// Copy errors
	for k, v := range f.errors {
		summary.Errors[k] = v
	}

	if finished := summary.Completed + summary.Failed; finished > 0 {
		summary.ErrorRate = float64(summary.Failed) / float64(finished)
	}
	if !f.startTime.IsZero() {
		if elapsed := end.Sub(f.startTime).Seconds(); elapsed > 0 {
			summary.ArrivalRate = float64(summary.Launched) / elapsed
		}
	}
	return summary
}

// IsRunning returns whether a test is currently executing.
func (f *Framework) IsRunning() bool {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.running
}
