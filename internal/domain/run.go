package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type DiagnosticKind string

const (
	DiagUnresolvableKey   DiagnosticKind = "UNRESOLVABLE_KEY"
	DiagAggregationNotice DiagnosticKind = "AGGREGATION_NOTICE"
)

// Diagnostic records a per-record issue that degraded gracefully instead of
// aborting the run: positions excluded for lacking any identifier, and
// duplicate-lot aggregations that mask per-lot detail.
type Diagnostic struct {
	Kind    DiagnosticKind `json:"kind"`
	Source  SourceID       `json:"source"`
	Key     string         `json:"key,omitempty"`
	Message string         `json:"message"`
}

// RunMetrics are derived once at aggregation and never updated.
type RunMetrics struct {
	BySeverity        map[Severity]int  `json:"by_severity"`
	ByType            map[BreakType]int `json:"by_type"`
	TotalVarianceAbs  decimal.Decimal   `json:"total_variance_abs"`
	TotalImpactUSD    decimal.Decimal   `json:"total_impact_usd"`
	PositionsCompared int               `json:"positions_compared"`
}

// ReconciliationRun is the immutable result of one engine invocation.
// Corrections require a new run; prior runs are preserved for audit.
type ReconciliationRun struct {
	ID          string       `json:"id"`
	RunDate     string       `json:"run_date"` // YYYY-MM-DD
	Sources     []SourceID   `json:"sources_included"`
	Pairs       []SourcePair `json:"source_pairs"`
	Breaks      []Break      `json:"breaks"`
	Diagnostics []Diagnostic `json:"diagnostics,omitempty"`
	Metrics     RunMetrics   `json:"metrics"`
	StartedAt   time.Time    `json:"started_at"`
	CompletedAt time.Time    `json:"completed_at"`
}

// BreaksWithMinSeverity returns the run's breaks at or above the given
// severity, preserving the run's severity-descending order.
func (r *ReconciliationRun) BreaksWithMinSeverity(min Severity) []Break {
	var out []Break
	for _, b := range r.Breaks {
		if b.Severity.AtLeast(min) {
			out = append(out, b)
		}
	}
	return out
}

// BreaksOfType returns the run's breaks of one type, in run order.
func (r *ReconciliationRun) BreaksOfType(t BreakType) []Break {
	var out []Break
	for _, b := range r.Breaks {
		if b.Type == t {
			out = append(out, b)
		}
	}
	return out
}
