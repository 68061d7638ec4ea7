package recon

import (
	"fmt"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview/posrecon/internal/config"
	"github.com/harborview/posrecon/internal/domain"
)

func threeSourceRequest() Request {
	internal := []domain.Position{
		testPos("internal", "AAPL", "037833100", "ACC1", "1000", "175.50", "175500.00", "USD"),
		testPos("internal", "MSFT", "594918104", "ACC1", "1500", "378.90", "568350.00", "USD"),
		testPos("internal", "TSLA", "88160R101", "ACC2", "500", "248.75", "124375.00", "USD"),
	}
	broker := []domain.Position{
		testPos("pb_meridian", "AAPL", "037833100", "ACC1", "950", "175.50", "166725.00", "USD"),
		testPos("pb_meridian", "MSFT", "594918104", "ACC1", "1500", "378.90", "568350.00", "USD"),
		// TSLA missing from the broker.
	}
	custodian := []domain.Position{
		testPos("cust_northbank", "AAPL", "037833100", "ACC1", "1000", "175.50", "175500.00", "USD"),
		testPos("cust_northbank", "MSFT", "594918104", "ACC1", "1500", "378.90", "568350.00", "USD"),
		testPos("cust_northbank", "TSLA", "88160R101", "ACC2", "500", "248.75", "124375.00", "CAD"),
	}

	return Request{
		RunDate: "2024-03-15",
		Positions: map[domain.SourceID][]domain.Position{
			"internal":       internal,
			"pb_meridian":    broker,
			"cust_northbank": custodian,
		},
		Pairs: []domain.SourcePair{
			{Source: "internal", Target: "pb_meridian"},
			{Source: "internal", Target: "cust_northbank"},
		},
	}
}

func TestReconcileEndToEnd(t *testing.T) {
	run, err := Reconcile(threeSourceRequest(), config.Default())
	require.NoError(t, err)
	require.NotNil(t, run)

	// internal-vs-broker: AAPL quantity + market value breaks, TSLA missing
	// in target. internal-vs-custodian: TSLA currency break.
	assert.Len(t, run.Breaks, 4)
	assert.Equal(t, "2024-03-15", run.RunDate)
	assert.ElementsMatch(t, []domain.SourceID{"internal", "pb_meridian", "cust_northbank"}, run.Sources)

	byPair := make(map[string]int)
	for _, b := range run.Breaks {
		byPair[b.Pair.String()]++
	}
	assert.Equal(t, 3, byPair["internal vs pb_meridian"])
	assert.Equal(t, 1, byPair["internal vs cust_northbank"], "pairs stay independent, never merged")

	// Metrics consistency: severity counts, type counts, and break count
	// all agree.
	sevTotal, typeTotal := 0, 0
	for _, n := range run.Metrics.BySeverity {
		sevTotal += n
	}
	for _, n := range run.Metrics.ByType {
		typeTotal += n
	}
	assert.Equal(t, len(run.Breaks), sevTotal)
	assert.Equal(t, len(run.Breaks), typeTotal)

	// Breaks arrive sorted by severity, ids monotonically increasing.
	for i, b := range run.Breaks {
		assert.Equal(t, fmt.Sprintf("BRK-%04d", i+1), b.ID)
		if i > 0 {
			assert.LessOrEqual(t, b.Severity.Rank(), run.Breaks[i-1].Severity.Rank())
		}
	}

	// Total impact is the sum over all breaks.
	total := decimal.Zero
	for _, b := range run.Breaks {
		total = total.Add(b.ImpactUSD)
	}
	assert.True(t, run.Metrics.TotalImpactUSD.Equal(total))
	assert.Equal(t, 5, run.Metrics.PositionsCompared)
	assert.False(t, run.CompletedAt.Before(run.StartedAt))
}

func TestReconcileDeterministicIDs(t *testing.T) {
	run1, err := Reconcile(threeSourceRequest(), config.Default())
	require.NoError(t, err)
	run2, err := Reconcile(threeSourceRequest(), config.Default())
	require.NoError(t, err)

	require.Equal(t, len(run1.Breaks), len(run2.Breaks))
	for i := range run1.Breaks {
		assert.Equal(t, run1.Breaks[i].ID, run2.Breaks[i].ID)
		assert.Equal(t, run1.Breaks[i].Key, run2.Breaks[i].Key)
		assert.Equal(t, run1.Breaks[i].Type, run2.Breaks[i].Type)
	}
	assert.NotEqual(t, run1.ID, run2.ID, "each invocation is its own run")
}

func TestReconcileMissingPositionCompleteness(t *testing.T) {
	req := threeSourceRequest()
	run, err := Reconcile(req, config.Default())
	require.NoError(t, err)

	missing := run.BreaksOfType(domain.BreakMissingInTarget)
	require.Len(t, missing, 1)
	assert.Equal(t, "88160R101", missing[0].Key.SecurityID)
	assert.True(t, missing[0].VarianceAbs.Equal(d("124375.00")))
	assert.True(t, missing[0].VariancePct.Equal(d("1")))
}

func TestReconcileInvalidConfigFailsFast(t *testing.T) {
	cfg := config.Default()
	cfg.Tolerance.QuantityTolerance = d("-0.01")

	run, err := Reconcile(threeSourceRequest(), cfg)
	assert.Nil(t, run, "no partial run on configuration error")
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestReconcileRequiresPairs(t *testing.T) {
	req := threeSourceRequest()
	req.Pairs = nil

	run, err := Reconcile(req, config.Default())
	assert.Nil(t, run)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestReconcileUnknownSourceInPair(t *testing.T) {
	req := threeSourceRequest()
	req.Pairs = append(req.Pairs, domain.SourcePair{Source: "internal", Target: "cust_ghost"})

	run, err := Reconcile(req, config.Default())
	assert.Nil(t, run)
	assert.ErrorIs(t, err, config.ErrConfiguration)
}

func TestRunQueriesAreFilters(t *testing.T) {
	run, err := Reconcile(threeSourceRequest(), config.Default())
	require.NoError(t, err)

	high := run.BreaksWithMinSeverity(domain.SeverityHigh)
	for _, b := range high {
		assert.True(t, b.Severity.AtLeast(domain.SeverityHigh))
	}
	all := run.BreaksWithMinSeverity(domain.SeverityLow)
	assert.Len(t, all, len(run.Breaks))

	qty := run.BreaksOfType(domain.BreakQuantityMismatch)
	require.Len(t, qty, 1)
	assert.Equal(t, "037833100", qty[0].Key.SecurityID)
}

func TestReconcileRecordsDiagnostics(t *testing.T) {
	req := threeSourceRequest()
	req.Positions["internal"] = append(req.Positions["internal"],
		testPos("internal", "", "", "ACC9", "10", "1", "10", "USD"))

	run, err := Reconcile(req, config.Default())
	require.NoError(t, err)
	require.Len(t, run.Diagnostics, 1)
	assert.Equal(t, domain.DiagUnresolvableKey, run.Diagnostics[0].Kind)
}
