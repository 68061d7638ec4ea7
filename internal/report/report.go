package report

import (
	"encoding/csv"
	"fmt"
	"io"
	"sort"
	"strings"

	"github.com/harborview/posrecon/internal/domain"
)

var csvHeader = []string{
	"break_id", "run_id", "security_id", "account_id", "trade_date",
	"source", "target", "break_type", "source_value", "target_value",
	"variance_abs", "variance_pct", "impact_usd", "severity", "currency", "description",
}

// WriteCSV renders every break in a run as one CSV row. Every field needed
// for a report row is guaranteed present; only source/target values may be
// empty, on the missing-position types.
func WriteCSV(w io.Writer, run *domain.ReconciliationRun) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(csvHeader); err != nil {
		return fmt.Errorf("write header: %w", err)
	}

	for _, b := range run.Breaks {
		var srcVal, tgtVal string
		if b.SourceValue != nil {
			srcVal = b.SourceValue.String()
		}
		if b.TargetValue != nil {
			tgtVal = b.TargetValue.String()
		}
		row := []string{
			b.ID, run.ID, b.Key.SecurityID, b.Key.AccountID, b.Key.TradeDate,
			string(b.Pair.Source), string(b.Pair.Target), string(b.Type),
			srcVal, tgtVal,
			b.VarianceAbs.String(), b.VariancePct.String(), b.ImpactUSD.String(),
			string(b.Severity), b.Currency, b.Description,
		}
		if err := cw.Write(row); err != nil {
			return fmt.Errorf("write break %s: %w", b.ID, err)
		}
	}

	cw.Flush()
	return cw.Error()
}

// RenderText renders the executive-summary text report for a run.
func RenderText(run *domain.ReconciliationRun) string {
	var b strings.Builder

	fmt.Fprintf(&b, "POSITION RECONCILIATION REPORT\n")
	fmt.Fprintf(&b, "Run %s  date %s\n", run.ID, run.RunDate)
	fmt.Fprintf(&b, "Sources: %s\n\n", joinSources(run.Sources))

	fmt.Fprintf(&b, "Positions compared: %d\n", run.Metrics.PositionsCompared)
	fmt.Fprintf(&b, "Breaks identified:  %d\n", len(run.Breaks))
	fmt.Fprintf(&b, "Total impact:       $%s\n\n", run.Metrics.TotalImpactUSD.StringFixed(2))

	fmt.Fprintf(&b, "BREAKS BY SEVERITY\n")
	for _, sev := range []domain.Severity{
		domain.SeverityCritical, domain.SeverityHigh, domain.SeverityMedium, domain.SeverityLow,
	} {
		fmt.Fprintf(&b, "  %-8s : %d\n", sev, run.Metrics.BySeverity[sev])
	}

	fmt.Fprintf(&b, "\nBREAKS BY TYPE\n")
	types := make([]domain.BreakType, 0, len(run.Metrics.ByType))
	for t := range run.Metrics.ByType {
		types = append(types, t)
	}
	sort.Slice(types, func(i, j int) bool {
		if ci, cj := run.Metrics.ByType[types[i]], run.Metrics.ByType[types[j]]; ci != cj {
			return ci > cj
		}
		return types[i] < types[j]
	})
	for _, t := range types {
		fmt.Fprintf(&b, "  %-24s : %d\n", t, run.Metrics.ByType[t])
	}

	if len(run.Diagnostics) > 0 {
		fmt.Fprintf(&b, "\nDIAGNOSTICS\n")
		for _, d := range run.Diagnostics {
			fmt.Fprintf(&b, "  [%s] %s: %s\n", d.Kind, d.Source, d.Message)
		}
	}

	fmt.Fprintf(&b, "\nDETAILED BREAK LIST\n")
	for _, brk := range run.Breaks {
		fmt.Fprintf(&b, "  %-10s [%-8s] %-22s %s/%s  $%s (%s%%)  %s\n",
			brk.ID, brk.Severity, brk.Type, brk.Key.SecurityID, brk.Key.AccountID,
			brk.ImpactUSD.StringFixed(2), brk.VariancePct.Shift(2).StringFixed(2),
			brk.Description,
		)
	}

	return b.String()
}

func joinSources(sources []domain.SourceID) string {
	parts := make([]string, len(sources))
	for i, s := range sources {
		parts[i] = string(s)
	}
	return strings.Join(parts, ", ")
}
