package recon

import (
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/harborview/posrecon/internal/config"
	"github.com/harborview/posrecon/internal/domain"
)

// ErrInvariant marks an internal defect (duplicate break id, negative
// variance). It aborts the whole invocation; a run is never half-built.
var ErrInvariant = errors.New("internal invariant violation")

// Request is one engine invocation: positions per source, the source pairs
// to compare (typically internal-vs-broker and internal-vs-custodian), and
// the business date the run is for.
type Request struct {
	RunDate   string // YYYY-MM-DD
	Positions map[domain.SourceID][]domain.Position
	Pairs     []domain.SourcePair
}

// Reconcile runs matching, tolerance evaluation, severity classification,
// and aggregation for every requested source pair, producing one immutable
// run. It is pure and synchronous: no I/O, no shared state, deterministic
// for identical inputs apart from the run id and timestamps. Configuration
// errors fail the invocation before any matching occurs; per-record issues
// degrade into run diagnostics instead.
func Reconcile(req Request, cfg config.Config) (*domain.ReconciliationRun, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(req.Pairs) == 0 {
		return nil, fmt.Errorf("%w: no source pairs requested", config.ErrConfiguration)
	}
	for _, pair := range req.Pairs {
		if _, ok := req.Positions[pair.Source]; !ok {
			return nil, fmt.Errorf("%w: pair references unknown source %q", config.ErrConfiguration, pair.Source)
		}
		if _, ok := req.Positions[pair.Target]; !ok {
			return nil, fmt.Errorf("%w: pair references unknown source %q", config.ErrConfiguration, pair.Target)
		}
	}

	started := time.Now().UTC()
	var breaks []domain.Break
	var diags []domain.Diagnostic
	compared := 0

	indexes := make(map[domain.SourceID]index, len(req.Positions))
	indexOf := func(src domain.SourceID) index {
		idx, ok := indexes[src]
		if !ok {
			idx = buildIndex(src, req.Positions[src], &diags)
			indexes[src] = idx
		}
		return idx
	}

	// Each pair is reconciled independently; breaks stay tagged with their
	// own source pair and are never merged across pairs.
	for _, pairID := range req.Pairs {
		res := matchIndexes(indexOf(pairID.Source), indexOf(pairID.Target))
		compared += len(res.Pairs)

		for _, mp := range res.Pairs {
			breaks = append(breaks, evaluatePair(mp, pairID, cfg.Tolerance, cfg.Severity, started)...)
		}
		for _, pos := range res.MissingInB {
			breaks = append(breaks, orphanBreak(pos, pairID, domain.BreakMissingInTarget, cfg.Severity, started))
		}
		for _, pos := range res.MissingInA {
			breaks = append(breaks, orphanBreak(pos, pairID, domain.BreakMissingInSource, cfg.Severity, started))
		}
	}

	run, err := aggregate(req, breaks, diags, compared, started)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// aggregate orders breaks, assigns stable ids, derives metrics, and seals
// the run. Ordering is severity rank descending, then dollar impact
// descending, then match key and type, so identical inputs always yield
// identical break ids.
func aggregate(
	req Request,
	breaks []domain.Break,
	diags []domain.Diagnostic,
	compared int,
	started time.Time,
) (*domain.ReconciliationRun, error) {
	sort.SliceStable(breaks, func(i, j int) bool {
		bi, bj := breaks[i], breaks[j]
		if ri, rj := bi.Severity.Rank(), bj.Severity.Rank(); ri != rj {
			return ri > rj
		}
		if !bi.ImpactUSD.Equal(bj.ImpactUSD) {
			return bi.ImpactUSD.GreaterThan(bj.ImpactUSD)
		}
		if ki, kj := bi.Key.String(), bj.Key.String(); ki != kj {
			return ki < kj
		}
		return bi.Type < bj.Type
	})

	metrics := domain.RunMetrics{
		BySeverity:        make(map[domain.Severity]int),
		ByType:            make(map[domain.BreakType]int),
		TotalVarianceAbs:  decimal.Zero,
		TotalImpactUSD:    decimal.Zero,
		PositionsCompared: compared,
	}

	seen := make(map[string]struct{}, len(breaks))
	for i := range breaks {
		b := &breaks[i]
		if b.VarianceAbs.IsNegative() {
			return nil, fmt.Errorf("%w: negative variance %s on %s break for %s",
				ErrInvariant, b.VarianceAbs, b.Type, b.Key)
		}
		b.ID = fmt.Sprintf("BRK-%04d", i+1)
		if _, dup := seen[b.ID]; dup {
			return nil, fmt.Errorf("%w: duplicate break id %s", ErrInvariant, b.ID)
		}
		seen[b.ID] = struct{}{}

		metrics.BySeverity[b.Severity]++
		metrics.ByType[b.Type]++
		metrics.TotalVarianceAbs = metrics.TotalVarianceAbs.Add(b.VarianceAbs)
		metrics.TotalImpactUSD = metrics.TotalImpactUSD.Add(b.ImpactUSD)
	}

	sources := make([]domain.SourceID, 0, len(req.Positions))
	for src := range req.Positions {
		sources = append(sources, src)
	}
	sort.Slice(sources, func(i, j int) bool { return sources[i] < sources[j] })

	return &domain.ReconciliationRun{
		ID:          uuid.NewString(),
		RunDate:     req.RunDate,
		Sources:     sources,
		Pairs:       req.Pairs,
		Breaks:      breaks,
		Diagnostics: diags,
		Metrics:     metrics,
		StartedAt:   started,
		CompletedAt: time.Now().UTC(),
	}, nil
}
