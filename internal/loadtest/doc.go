// Package loadtest releases virtual users at a configured arrival rate and
// aggregates how their journeys ended.
//
// # Overview
//
// A run is a list of phases. Each phase releases ArrivalRate new virtual
// users per second for its Duration, then hands over to the next phase.
// Virtual users that are still running when a phase ends keep running; the
// run returns once every launched user has finished.
//
//	config := &loadtest.Config{
//	    Name: "SLCM Login Journey",
//	    Phases: []loadtest.Phase{
//	        {Name: "warm up", Duration: 30 * time.Second, ArrivalRate: 1},
//	        {Name: "heavy", Duration: time.Minute, ArrivalRate: 5},
//	    },
//	    MaxVUs: 50,
//	}
//
//	framework := loadtest.New(config, func(ctx context.Context, vu loadtest.VU) loadtest.Result {
//	    // drive one browser page through the journey
//	    return loadtest.Result{VU: vu, Duration: elapsed, Error: err}
//	})
//	summary, err := framework.Run(ctx)
//
// # Concurrency
//
// MaxVUs caps the number of users alive at once. An arrival that finds the
// cap reached is dropped and counted in Summary.Skipped, which mirrors how
// open arrival models behave when the generator saturates.
//
// # Metrics
//
// Scenarios push named durations into the framework Recorder (see
// WithRecorder). The summary carries per-stat min/max/avg and percentiles
// next to the completed/failed counts. Failures are grouped by the step at
// which each user stopped.
//
// # SLAs
//
// SLAValidator checks a summary against latency and error-rate objectives:
//
//	sla := &loadtest.SLA{
//	    Name: "login",
//	    Objectives: []loadtest.SLO{
//	        loadtest.NewLatencySLO("login_duration", loadtest.MeasureP95, 3000, true),
//	        loadtest.NewErrorRateSLO(1, true),
//	    },
//	}
//	result := loadtest.NewSLAValidator(sla).Validate(summary)
//	fmt.Print(result.GenerateReport())
package loadtest
