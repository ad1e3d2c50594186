// cmd/ssoload/main.go
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"sort"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/FairForge/ssoload/internal/api"
	"github.com/FairForge/ssoload/internal/browser"
	"github.com/FairForge/ssoload/internal/config"
	"github.com/FairForge/ssoload/internal/loadtest"
	"github.com/FairForge/ssoload/internal/loginflow"
	"github.com/FairForge/ssoload/internal/logging"
	"github.com/FairForge/ssoload/internal/metrics"
	"github.com/FairForge/ssoload/internal/scenario"
)

// Exit codes
const (
	exitOK = iota
	exitFailed
	exitUsage
)

func main() {
	os.Exit(run(os.Args[1:], os.Stdout))
}

func run(args []string, stdout io.Writer) int {
	fs := flag.NewFlagSet("ssoload", flag.ContinueOnError)
	configPath := fs.String("config", config.GetEnvOrDefault("SSOLOAD_CONFIG", ""), "path to a YAML config file")
	listAgents := fs.Bool("list-user-agents", false, "print the user agent presets and exit")
	jsonOut := fs.Bool("json", false, "print the summary as JSON")
	if err := fs.Parse(args); err != nil {
		return exitUsage
	}

	if *listAgents {
		presets := browser.CommonUserAgents()
		for _, name := range browser.PresetNames() {
			fmt.Fprintf(stdout, "%-16s %s\n", name, presets[name])
		}
		return exitOK
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}

	logger, err := logging.NewLogger(&logging.LoggerConfig{Level: cfg.Log.Level, Format: cfg.Log.Format, Output: os.Stderr})
	if err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitUsage
	}
	defer func() { _ = logger.Sync() }()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	summary, err := execute(ctx, cfg, logger)
	if err != nil {
		logger.Error("load test aborted", zap.Error(err))
		return exitFailed
	}

	if *jsonOut {
		enc := json.NewEncoder(stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(summary)
	} else {
		printSummary(stdout, summary)
	}

	sla, _ := cfg.SLA()
	if sla == nil {
		return exitOK
	}
	result := loadtest.NewSLAValidator(sla).Validate(summary)
	fmt.Fprintln(stdout)
	fmt.Fprint(stdout, result.GenerateReport())
	if !result.CriticalPass {
		return exitFailed
	}
	return exitOK
}

func execute(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*loadtest.Summary, error) {
	flowOpts, err := cfg.FlowOptions()
	if err != nil {
		return nil, err
	}

	recorder := metrics.NewRecorder()
	prom := metrics.NewPrometheus(cfg.Scenario)

	runner, err := loginflow.NewRunner(flowOpts,
		loginflow.WithSink(metrics.Multi{recorder, prom}),
		loginflow.WithLogger(logging.NewFlowLogger(logger)),
	)
	if err != nil {
		return nil, err
	}

	bopts := browser.DefaultOptions()
	bopts.Headless = cfg.Browser.Headless
	bopts.Args = cfg.Browser.Args
	bopts.ExecPath = cfg.Browser.ExecPath
	bopts.UserAgent = cfg.Browser.UserAgent
	launcher := browser.NewLauncher(bopts, logger)
	if err := launcher.Start(ctx); err != nil {
		return nil, fmt.Errorf("starting browser: %w", err)
	}
	defer launcher.Close()

	creds := loginflow.Credentials{Username: cfg.Credentials.Username, Password: cfg.Credentials.Password}
	login := scenario.NewLogin(runner, scenario.FromLauncher(launcher), creds, logger)

	framework := loadtest.New(cfg.LoadTest(), login.Run,
		loadtest.WithRecorder(recorder),
		loadtest.WithObserver(prom),
		loadtest.WithLogger(logger),
	)

	if cfg.MetricsAddr != "" {
		server := api.NewServer(cfg.MetricsAddr, framework, prom.Handler(), logger)
		go func() {
			if err := server.Start(); err != nil {
				logger.Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			_ = server.Shutdown(shutdownCtx)
		}()
	}

	logger.Info("load test starting",
		zap.String("scenario", cfg.Scenario),
		zap.String("target", cfg.Target),
		zap.Int("phases", len(cfg.Phases)),
		zap.Duration("duration", cfg.TotalDuration()),
		zap.Int("max_vus", cfg.MaxVUs))

	summary, err := framework.Run(ctx)
	if err != nil {
		return nil, err
	}
	if errors.Is(ctx.Err(), context.Canceled) {
		logger.Warn("load test interrupted, summary is partial")
	}
	return summary, nil
}

func printSummary(w io.Writer, s *loadtest.Summary) {
	fmt.Fprintf(w, "\nScenario: %s\n", s.TestName)
	fmt.Fprintf(w, "Duration: %v\n", s.EndTime.Sub(s.StartTime).Round(time.Millisecond))
	fmt.Fprintf(w, "VUs: %d launched, %d completed, %d failed, %d skipped (%.1f/s)\n",
		s.Launched, s.Completed, s.Failed, s.Skipped, s.ArrivalRate)
	fmt.Fprintf(w, "Error rate: %.2f%%\n", s.ErrorRate*100)

	if len(s.Errors) > 0 {
		fmt.Fprintln(w, "\nFailures:")
		steps := make([]string, 0, len(s.Errors))
		for step := range s.Errors {
			steps = append(steps, step)
		}
		// Most frequent first, then by name.
		sort.Slice(steps, func(i, j int) bool {
			if s.Errors[steps[i]] != s.Errors[steps[j]] {
				return s.Errors[steps[i]] > s.Errors[steps[j]]
			}
			return steps[i] < steps[j]
		})
		for _, step := range steps {
			fmt.Fprintf(w, "  %-40s %d\n", step, s.Errors[step])
		}
	}

	if len(s.Stats) > 0 {
		fmt.Fprintf(w, "\n%-22s %6s %10s %10s %10s %10s %10s\n", "metric", "count", "min", "p50", "p95", "p99", "max")
		for _, st := range s.Stats {
			fmt.Fprintf(w, "%-22s %6d %10v %10v %10v %10v %10v\n",
				st.Name, st.Count,
				st.Min.Round(time.Millisecond), st.P50.Round(time.Millisecond),
				st.P95.Round(time.Millisecond), st.P99.Round(time.Millisecond),
				st.Max.Round(time.Millisecond))
		}
	}
}
