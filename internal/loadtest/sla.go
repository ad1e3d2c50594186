package loadtest

import (
	"fmt"
	"strings"
	"time"

	"github.com/FairForge/ssoload/internal/metrics"
)

// SLA is a named set of objectives a run must meet.
type SLA struct {
	Name       string
	Objectives []SLO
}

// SLO is one measurable target.
type SLO struct {
	Name string
	// Stat names an emitted metric such as "login_duration". Run-wide
	// measures leave it empty.
	Stat       string
	Measure    Measure
	Target     float64 // milliseconds for latencies, percent for rates
	Comparator Comparator
	Critical   bool
}

// Measure selects what an SLO reads from the summary.
type Measure string

const (
	MeasureP50         Measure = "p50"
	MeasureP95         Measure = "p95"
	MeasureP99         Measure = "p99"
	MeasureMax         Measure = "max"
	MeasureAvg         Measure = "avg"
	MeasureErrorRate   Measure = "error_rate"
	MeasureSuccessRate Measure = "success_rate"
)

// Comparator defines how to compare metric against target.
type Comparator string

const (
	ComparatorLessThan       Comparator = "<"
	ComparatorLessOrEqual    Comparator = "<="
	ComparatorGreaterThan    Comparator = ">"
	ComparatorGreaterOrEqual Comparator = ">="
)

// SLAResult captures the result of validating against an SLA.
type SLAResult struct {
	SLA              *SLA
	Timestamp        time.Time
	Duration         time.Duration
	ObjectiveResults []SLOResult
	OverallPass      bool
	CriticalPass     bool
	Score            float64 // Percentage of SLOs met
}

// SLOResult captures the result of a single SLO check.
type SLOResult struct {
	SLO         SLO
	ActualValue float64
	TargetMet   bool
	Margin      float64 // How far from target (negative = failed)
	Message     string
}

// NewLatencySLO bounds a percentile of stat in milliseconds.
func NewLatencySLO(stat string, measure Measure, maxMs float64, critical bool) SLO {
	return SLO{
		Name:       fmt.Sprintf("%s %s", stat, measure),
		Stat:       stat,
		Measure:    measure,
		Target:     maxMs,
		Comparator: ComparatorLessOrEqual,
		Critical:   critical,
	}
}

// NewErrorRateSLO bounds the share of failed virtual users in percent.
func NewErrorRateSLO(maxPercent float64, critical bool) SLO {
	return SLO{
		Name:       "error rate",
		Measure:    MeasureErrorRate,
		Target:     maxPercent,
		Comparator: ComparatorLessOrEqual,
		Critical:   critical,
	}
}

// SLAValidator validates test results against SLAs.
type SLAValidator struct {
	sla *SLA
}

// NewSLAValidator creates a validator for the given SLA.
func NewSLAValidator(sla *SLA) *SLAValidator {
	return &SLAValidator{sla: sla}
}

// Validate checks a test summary against the SLA.
func (v *SLAValidator) Validate(summary *Summary) *SLAResult {
	result := &SLAResult{
		SLA:              v.sla,
		Timestamp:        time.Now(),
		Duration:         summary.EndTime.Sub(summary.StartTime),
		ObjectiveResults: make([]SLOResult, 0, len(v.sla.Objectives)),
		OverallPass:      true,
		CriticalPass:     true,
	}

	passCount := 0
	for _, slo := range v.sla.Objectives {
		sloResult := v.checkSLO(slo, summary)
		result.ObjectiveResults = append(result.ObjectiveResults, sloResult)

		if sloResult.TargetMet {
			passCount++
		} else {
			result.OverallPass = false
			if slo.Critical {
				result.CriticalPass = false
			}
		}
	}

	if len(v.sla.Objectives) > 0 {
		result.Score = float64(passCount) / float64(len(v.sla.Objectives)) * 100
	}
	return result
}

func findStat(summary *Summary, name string) (metrics.StatSummary, bool) {
	for _, s := range summary.Stats {
		if s.Name == name {
			return s, true
		}
	}
	return metrics.StatSummary{}, false
}

func millis(d time.Duration) float64 {
	return float64(d) / float64(time.Millisecond)
}

// actual reads the measured value. ok is false when nothing was measured.
func actual(slo SLO, summary *Summary) (float64, bool) {
	switch slo.Measure {
	case MeasureErrorRate:
		return summary.ErrorRate * 100, summary.Completed+summary.Failed > 0
	case MeasureSuccessRate:
		return (1 - summary.ErrorRate) * 100, summary.Completed+summary.Failed > 0
	}

	stat, ok := findStat(summary, slo.Stat)
	if !ok || stat.Count == 0 {
		return 0, false
	}
	switch slo.Measure {
	case MeasureP50:
		return millis(stat.P50), true
	case MeasureP95:
		return millis(stat.P95), true
	case MeasureP99:
		return millis(stat.P99), true
	case MeasureMax:
		return millis(stat.Max), true
	case MeasureAvg:
		return millis(stat.Avg), true
	}
	return 0, false
}

// checkSLO validates a single SLO against the summary.
func (v *SLAValidator) checkSLO(slo SLO, summary *Summary) SLOResult {
	result := SLOResult{SLO: slo}

	value, ok := actual(slo, summary)
	if !ok {
		result.Message = fmt.Sprintf("%s: no samples ✗", slo.Name)
		return result
	}
	result.ActualValue = value
	result.TargetMet = compareValues(value, slo.Target, slo.Comparator)

	switch slo.Comparator {
	case ComparatorLessThan, ComparatorLessOrEqual:
		result.Margin = slo.Target - value
	case ComparatorGreaterThan, ComparatorGreaterOrEqual:
		result.Margin = value - slo.Target
	}

	if result.TargetMet {
		result.Message = fmt.Sprintf("%s: %.2f %s %.2f ✓",
			slo.Name, value, slo.Comparator, slo.Target)
	} else {
		result.Message = fmt.Sprintf("%s: %.2f %s %.2f ✗ (margin: %.2f)",
			slo.Name, value, slo.Comparator, slo.Target, result.Margin)
	}
	return result
}

// compareValues checks if actual meets target based on comparator.
func compareValues(actual, target float64, comp Comparator) bool {
	switch comp {
	case ComparatorLessThan:
		return actual < target
	case ComparatorLessOrEqual:
		return actual <= target
	case ComparatorGreaterThan:
		return actual > target
	case ComparatorGreaterOrEqual:
		return actual >= target
	default:
		return false
	}
}

// GenerateReport creates a human-readable SLA validation report.
func (r *SLAResult) GenerateReport() string {
	var sb strings.Builder
	sb.WriteString("SLA Validation Report\n")
	sb.WriteString("=====================\n\n")
	fmt.Fprintf(&sb, "SLA: %s\n", r.SLA.Name)
	fmt.Fprintf(&sb, "Test Duration: %v\n\n", r.Duration.Round(time.Millisecond))

	status := "PASS"
	if !r.OverallPass {
		status = "FAIL"
	}
	fmt.Fprintf(&sb, "Overall Status: %s\n", status)
	fmt.Fprintf(&sb, "Score: %.1f%% (%d/%d objectives met)\n",
		r.Score, len(r.ObjectiveResults)-len(r.GetAllFailed()), len(r.ObjectiveResults))
	if !r.CriticalPass {
		sb.WriteString("CRITICAL OBJECTIVES FAILED\n")
	}
	sb.WriteString("\n")

	for _, res := range r.ObjectiveResults {
		marker := " "
		if res.SLO.Critical {
			marker = "!"
		}
		fmt.Fprintf(&sb, "%s %s\n", marker, res.Message)
	}
	return sb.String()
}

// GetAllFailed returns all failed SLOs.
func (r *SLAResult) GetAllFailed() []SLOResult {
	failed := make([]SLOResult, 0)
	for _, res := range r.ObjectiveResults {
		if !res.TargetMet {
			failed = append(failed, res)
		}
	}
	return failed
}

// ParseComparator accepts the comparator symbols used in config files.
func ParseComparator(s string) (Comparator, error) {
	switch c := Comparator(strings.TrimSpace(s)); c {
	case ComparatorLessThan, ComparatorLessOrEqual, ComparatorGreaterThan, ComparatorGreaterOrEqual:
		return c, nil
	case "":
		return ComparatorLessOrEqual, nil
	default:
		return "", fmt.Errorf("loadtest: unknown comparator %q", s)
	}
}

// ParseMeasure validates a measure name.
func ParseMeasure(s string) (Measure, error) {
	switch m := Measure(strings.ToLower(strings.TrimSpace(s))); m {
	case MeasureP50, MeasureP95, MeasureP99, MeasureMax, MeasureAvg, MeasureErrorRate, MeasureSuccessRate:
		return m, nil
	default:
		return "", fmt.Errorf("loadtest: unknown measure %q", s)
	}
}
