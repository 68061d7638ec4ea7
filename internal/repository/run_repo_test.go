package repository

import (
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview/posrecon/internal/domain"
)

func newTestDB(t *testing.T) *RunRepo {
	t.Helper()
	db, err := InitDB(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return NewRunRepo(db)
}

func d(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleRun() *domain.ReconciliationRun {
	now := time.Date(2024, 3, 16, 6, 0, 0, 0, time.UTC)
	pair := domain.SourcePair{Source: "internal", Target: "pb_meridian"}
	key := domain.MatchKey{SecurityID: "037833100", AccountID: "HEDGE_FUND_01", TradeDate: "2024-03-15"}

	src := d("1000")
	tgt := d("950")
	mv := d("124375.00")

	return &domain.ReconciliationRun{
		ID:      "run-test-1",
		RunDate: "2024-03-15",
		Sources: []domain.SourceID{"internal", "pb_meridian"},
		Pairs:   []domain.SourcePair{pair},
		Breaks: []domain.Break{
			{
				ID: "BRK-0001", Key: key, Pair: pair,
				Type:        domain.BreakMissingInTarget,
				SourceValue: &mv,
				VarianceAbs: d("124375.00"), VariancePct: d("1"), ImpactUSD: d("124375.00"),
				Severity: domain.SeverityCritical, Currency: "USD",
				Description: "Position exists in internal but not in pb_meridian",
				CreatedAt:   now,
			},
			{
				ID: "BRK-0002", Key: key, Pair: pair,
				Type:        domain.BreakQuantityMismatch,
				SourceValue: &src, TargetValue: &tgt,
				VarianceAbs: d("50"), VariancePct: d("0.05"), ImpactUSD: d("8775"),
				Severity: domain.SeverityHigh, Currency: "USD",
				Description: "Quantity: internal=1000 vs pb_meridian=950",
				CreatedAt:   now,
			},
		},
		Diagnostics: []domain.Diagnostic{
			{Kind: domain.DiagAggregationNotice, Source: "internal", Key: key.String(), Message: "duplicate key aggregated"},
		},
		Metrics: domain.RunMetrics{
			BySeverity:        map[domain.Severity]int{domain.SeverityCritical: 1, domain.SeverityHigh: 1},
			ByType:            map[domain.BreakType]int{domain.BreakMissingInTarget: 1, domain.BreakQuantityMismatch: 1},
			TotalVarianceAbs:  d("124425.00"),
			TotalImpactUSD:    d("133150.00"),
			PositionsCompared: 2,
		},
		StartedAt:   now,
		CompletedAt: now.Add(50 * time.Millisecond),
	}
}

func TestSaveAndGetRun(t *testing.T) {
	repo := newTestDB(t)
	require.NoError(t, repo.Save(sampleRun()))

	got, err := repo.GetByID("run-test-1")
	require.NoError(t, err)
	require.NotNil(t, got)

	assert.Equal(t, "2024-03-15", got.RunDate)
	assert.Equal(t, []domain.SourceID{"internal", "pb_meridian"}, got.Sources)
	require.Len(t, got.Breaks, 2)

	// Stored order (severity descending) survives the round trip.
	assert.Equal(t, "BRK-0001", got.Breaks[0].ID)
	assert.Equal(t, domain.SeverityCritical, got.Breaks[0].Severity)
	assert.True(t, got.Breaks[1].VarianceAbs.Equal(d("50")))
	assert.True(t, got.Breaks[1].VariancePct.Equal(d("0.05")))
	require.NotNil(t, got.Breaks[1].SourceValue)
	assert.True(t, got.Breaks[1].SourceValue.Equal(d("1000")))
	assert.Nil(t, got.Breaks[0].TargetValue, "missing-type break has no target value")

	require.Len(t, got.Diagnostics, 1)
	assert.Equal(t, domain.DiagAggregationNotice, got.Diagnostics[0].Kind)

	assert.Equal(t, 1, got.Metrics.BySeverity[domain.SeverityCritical])
	assert.True(t, got.Metrics.TotalImpactUSD.Equal(d("133150.00")))
	assert.Equal(t, 2, got.Metrics.PositionsCompared)
}

func TestGetRunNotFound(t *testing.T) {
	repo := newTestDB(t)
	got, err := repo.GetByID("nope")
	require.NoError(t, err)
	assert.Nil(t, got)
}

func TestGetBreaksFiltered(t *testing.T) {
	repo := newTestDB(t)
	require.NoError(t, repo.Save(sampleRun()))

	critical, err := repo.GetBreaks("run-test-1", BreakFilter{MinSeverity: domain.SeverityCritical})
	require.NoError(t, err)
	require.Len(t, critical, 1)
	assert.Equal(t, domain.BreakMissingInTarget, critical[0].Type)

	atLeastHigh, err := repo.GetBreaks("run-test-1", BreakFilter{MinSeverity: domain.SeverityHigh})
	require.NoError(t, err)
	assert.Len(t, atLeastHigh, 2)

	byType, err := repo.GetBreaks("run-test-1", BreakFilter{Type: domain.BreakQuantityMismatch})
	require.NoError(t, err)
	require.Len(t, byType, 1)
	assert.Equal(t, "BRK-0002", byType[0].ID)
}

func TestListAndLatest(t *testing.T) {
	repo := newTestDB(t)

	first := sampleRun()
	require.NoError(t, repo.Save(first))

	second := sampleRun()
	second.ID = "run-test-2"
	second.CompletedAt = first.CompletedAt.Add(time.Hour)
	require.NoError(t, repo.Save(second))

	runs, total, err := repo.List(10, 0)
	require.NoError(t, err)
	assert.Equal(t, 2, total)
	require.Len(t, runs, 2)
	assert.Equal(t, "run-test-2", runs[0].ID, "newest first")
	assert.Equal(t, 2, runs[0].TotalBreaks)

	latest, err := repo.Latest()
	require.NoError(t, err)
	require.NotNil(t, latest)
	assert.Equal(t, "run-test-2", latest.ID)

	impact, err := repo.TotalImpact()
	require.NoError(t, err)
	assert.True(t, impact.Equal(d("266300.00")))
}

func TestRunsAreAppendOnly(t *testing.T) {
	repo := newTestDB(t)
	require.NoError(t, repo.Save(sampleRun()))
	assert.Error(t, repo.Save(sampleRun()), "saving the same run id twice must fail")
}
