package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type BreakType string

const (
	BreakQuantityMismatch    BreakType = "QUANTITY_MISMATCH"
	BreakPriceMismatch       BreakType = "PRICE_MISMATCH"
	BreakMarketValueMismatch BreakType = "MARKET_VALUE_MISMATCH"
	BreakCurrencyMismatch    BreakType = "CURRENCY_MISMATCH"
	BreakMissingInSource     BreakType = "MISSING_IN_SOURCE"
	BreakMissingInTarget     BreakType = "MISSING_IN_TARGET"
)

type Severity string

const (
	SeverityLow      Severity = "LOW"
	SeverityMedium   Severity = "MEDIUM"
	SeverityHigh     Severity = "HIGH"
	SeverityCritical Severity = "CRITICAL"
)

var severityRank = map[Severity]int{
	SeverityLow:      0,
	SeverityMedium:   1,
	SeverityHigh:     2,
	SeverityCritical: 3,
}

// Rank returns the severity's position in the LOW < MEDIUM < HIGH < CRITICAL
// ordering. Unknown values rank below LOW.
func (s Severity) Rank() int {
	if r, ok := severityRank[s]; ok {
		return r
	}
	return -1
}

// AtLeast reports whether s is as severe as other.
func (s Severity) AtLeast(other Severity) bool {
	return s.Rank() >= other.Rank()
}

// SourcePair names the two sources a comparison ran between. Source is the
// reference side (typically internal), Target the side being checked.
type SourcePair struct {
	Source SourceID `json:"source"`
	Target SourceID `json:"target"`
}

func (sp SourcePair) String() string {
	return string(sp.Source) + " vs " + string(sp.Target)
}

// Break is one detected discrepancy between two sources for one position.
// SourceValue/TargetValue are the raw field values being compared; they are
// nil for the missing-position types. VarianceAbs is the raw field delta
// (share count for quantity breaks); ImpactUSD is the dollarized estimate
// used for de-minimis gating and severity classification.
type Break struct {
	ID          string           `json:"id"`
	Key         MatchKey         `json:"match_key"`
	Pair        SourcePair       `json:"source_pair"`
	Type        BreakType        `json:"break_type"`
	SourceValue *decimal.Decimal `json:"source_value,omitempty"`
	TargetValue *decimal.Decimal `json:"target_value,omitempty"`
	VarianceAbs decimal.Decimal  `json:"variance_abs"`
	VariancePct decimal.Decimal  `json:"variance_pct"`
	ImpactUSD   decimal.Decimal  `json:"impact_usd"`
	Severity    Severity         `json:"severity"`
	Currency    string           `json:"currency"`
	Description string           `json:"description"`
	CreatedAt   time.Time        `json:"created_at"`
}
