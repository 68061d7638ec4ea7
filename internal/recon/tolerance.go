package recon

import (
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborview/posrecon/internal/config"
	"github.com/harborview/posrecon/internal/domain"
)

var pctFull = decimal.NewFromInt(1) // 100%, used for currency and missing breaks

// evaluatePair compares one matched pair field by field and returns at most
// one break per violated field. Severity is assigned here so downstream
// consumers never construct it themselves.
func evaluatePair(
	pair MatchedPair,
	pairID domain.SourcePair,
	tol config.ToleranceConfig,
	table config.SeverityTable,
	now time.Time,
) []domain.Break {
	var breaks []domain.Break

	a, b := pair.A, pair.B

	// Quantity: dollar impact estimated by scaling the share delta with the
	// source price (target price when the source has none).
	refPrice := a.Price
	if refPrice.IsZero() {
		refPrice = b.Price
	}
	if brk, ok := fieldBreak(domain.BreakQuantityMismatch, a.Quantity, b.Quantity,
		tol.QuantityTolerance, refPrice, tol, table); ok {
		brk.Description = fmt.Sprintf("Quantity: %s=%s vs %s=%s",
			pairID.Source, a.Quantity, pairID.Target, b.Quantity)
		breaks = append(breaks, finish(brk, pair, pairID, a.Currency, now))
	}

	// Price: dollar impact is the price delta across the source quantity.
	refQty := a.Quantity.Abs()
	if refQty.IsZero() {
		refQty = b.Quantity.Abs()
	}
	if brk, ok := fieldBreak(domain.BreakPriceMismatch, a.Price, b.Price,
		tol.PriceTolerance, refQty, tol, table); ok {
		brk.Description = fmt.Sprintf("Price: %s=%s vs %s=%s",
			pairID.Source, a.Price, pairID.Target, b.Price)
		breaks = append(breaks, finish(brk, pair, pairID, a.Currency, now))
	}

	// Market value: the delta already is the dollar impact.
	if brk, ok := fieldBreak(domain.BreakMarketValueMismatch, a.MarketValue, b.MarketValue,
		tol.MarketValueTolerance, decimal.NewFromInt(1), tol, table); ok {
		brk.Description = fmt.Sprintf("Market value: %s=%s vs %s=%s",
			pairID.Source, a.MarketValue, pairID.Target, b.MarketValue)
		breaks = append(breaks, finish(brk, pair, pairID, a.Currency, now))
	}

	// Currency: binary, no tolerance band. A code difference invalidates any
	// value comparison, so the variance is the full market value at 100%.
	if a.Currency != b.Currency {
		impact := a.MarketValue.Abs()
		brk := domain.Break{
			Type:        domain.BreakCurrencyMismatch,
			VarianceAbs: impact,
			VariancePct: pctFull,
			ImpactUSD:   impact,
			Severity:    classify(table, impact, pctFull),
			Description: fmt.Sprintf("Currency: %s=%s vs %s=%s",
				pairID.Source, a.Currency, pairID.Target, b.Currency),
		}
		breaks = append(breaks, finish(brk, pair, pairID, a.Currency, now))
	}

	return breaks
}

// fieldBreak applies the per-field rule: break iff variance_pct strictly
// exceeds the tolerance AND the dollarized impact meets the de-minimis
// floor. scale converts the raw delta to dollars (1 for market value).
func fieldBreak(
	t domain.BreakType,
	valA, valB, tolerance, scale decimal.Decimal,
	tol config.ToleranceConfig,
	table config.SeverityTable,
) (domain.Break, bool) {
	varianceAbs := valA.Sub(valB).Abs()

	denom := decimal.Max(valA.Abs(), valB.Abs())
	variancePct := decimal.Zero
	if denom.IsPositive() {
		variancePct = varianceAbs.Div(denom)
	}

	if !variancePct.GreaterThan(tolerance) {
		return domain.Break{}, false
	}

	impact := varianceAbs.Mul(scale).Abs()
	if impact.LessThan(tol.AbsoluteThreshold) {
		return domain.Break{}, false
	}

	srcVal, tgtVal := valA, valB
	return domain.Break{
		Type:        t,
		SourceValue: &srcVal,
		TargetValue: &tgtVal,
		VarianceAbs: varianceAbs,
		VariancePct: variancePct,
		ImpactUSD:   impact,
		Severity:    classify(table, impact, variancePct),
	}, true
}

// orphanBreak emits the single break owed to a position present on only one
// side. The counterparty holds none of it, so the variance is the full
// market value at 100%.
func orphanBreak(
	pos domain.Position,
	pairID domain.SourcePair,
	t domain.BreakType,
	table config.SeverityTable,
	now time.Time,
) domain.Break {
	key, _ := pos.Key()
	impact := pos.MarketValue.Abs()
	mv := pos.MarketValue

	brk := domain.Break{
		Key:         key,
		Pair:        pairID,
		Type:        t,
		VarianceAbs: impact,
		VariancePct: pctFull,
		ImpactUSD:   impact,
		Severity:    classify(table, impact, pctFull),
		Currency:    pos.Currency,
		CreatedAt:   now,
	}
	if t == domain.BreakMissingInTarget {
		brk.SourceValue = &mv
		brk.Description = fmt.Sprintf("Position exists in %s but not in %s", pairID.Source, pairID.Target)
	} else {
		brk.TargetValue = &mv
		brk.Description = fmt.Sprintf("Position exists in %s but not in %s", pairID.Target, pairID.Source)
	}
	return brk
}

func finish(brk domain.Break, pair MatchedPair, pairID domain.SourcePair, currency string, now time.Time) domain.Break {
	brk.Key = pair.Key
	brk.Pair = pairID
	brk.Currency = currency
	brk.CreatedAt = now
	return brk
}
