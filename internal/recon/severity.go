package recon

import (
	"github.com/shopspring/decimal"

	"github.com/harborview/posrecon/internal/config"
	"github.com/harborview/posrecon/internal/domain"
)

// classify maps a dollarized variance and a percentage variance to exactly
// one severity level. Rules run highest severity first; the first whose
// absolute OR percentage bound is met wins, and nothing matching means LOW.
// Bounds are inclusive, so a variance sitting exactly on a rule's threshold
// classifies at that rule's level. Pure and total: every input yields a
// level.
func classify(table config.SeverityTable, impactUSD, variancePct decimal.Decimal) domain.Severity {
	abs := impactUSD.Abs()
	pct := variancePct.Abs()
	for _, r := range table.Rules {
		if abs.GreaterThanOrEqual(r.MinAbsVariance) || pct.GreaterThanOrEqual(r.MinPctVariance) {
			return r.Level
		}
	}
	return domain.SeverityLow
}
