// Package metrics collects the durations emitted by login flow runs.
package metrics

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/FairForge/ssoload/internal/loginflow"
)

// StatSummary aggregates the samples of one named stat.
type StatSummary struct {
	Name  string        `json:"name"`
	Count int           `json:"count"`
	Min   time.Duration `json:"min"`
	Max   time.Duration `json:"max"`
	Avg   time.Duration `json:"avg"`
	P50   time.Duration `json:"p50"`
	P95   time.Duration `json:"p95"`
	P99   time.Duration `json:"p99"`
}

// Recorder keeps every emitted sample in memory for the run summary.
type Recorder struct {
	mu      sync.RWMutex
	order   []string
	samples map[string][]time.Duration
}

// NewRecorder creates an empty recorder.
func NewRecorder() *Recorder {
	return &Recorder{samples: make(map[string][]time.Duration)}
}

// Emit implements loginflow.MetricsSink.
func (r *Recorder) Emit(_ context.Context, m loginflow.Metric) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.samples[m.Name]; !ok {
		r.order = append(r.order, m.Name)
	}
	r.samples[m.Name] = append(r.samples[m.Name], m.Value)
}

// Stats summarizes each stat in first-seen order.
func (r *Recorder) Stats() []StatSummary {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]StatSummary, 0, len(r.order))
	for _, name := range r.order {
		s := summarize(r.samples[name])
		s.Name = name
		out = append(out, s)
	}
	return out
}

func summarize(samples []time.Duration) StatSummary {
	if len(samples) == 0 {
		return StatSummary{}
	}

	// Sort a copy so Emit can keep appending
	sorted := make([]time.Duration, len(samples))
	copy(sorted, samples)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i] < sorted[j] })

	var total time.Duration
	for _, d := range sorted {
		total += d
	}

	n := len(sorted)
	return StatSummary{
		Count: n,
		Min:   sorted[0],
		Max:   sorted[n-1],
		Avg:   total / time.Duration(n),
		P50:   sorted[n*50/100],
		P95:   sorted[n*95/100],
		P99:   sorted[n*99/100],
	}
}

// Multi fans a metric out to several sinks in order.
type Multi []loginflow.MetricsSink

// Emit implements loginflow.MetricsSink.
func (m Multi) Emit(ctx context.Context, metric loginflow.Metric) {
	for _, sink := range m {
		sink.Emit(ctx, metric)
	}
}
