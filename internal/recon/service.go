package recon

import (
	"fmt"

	"github.com/rs/zerolog/log"

	"github.com/harborview/posrecon/internal/config"
	"github.com/harborview/posrecon/internal/domain"
	"github.com/harborview/posrecon/internal/repository"
)

// Alerter receives completed runs for delivery of breaks at or above a
// minimum severity.
type Alerter interface {
	Dispatch(run *domain.ReconciliationRun, min domain.Severity) error
}

// Service orchestrates a reconciliation: load staged positions, invoke the
// engine, persist the run, hand it to alerting. The engine itself stays
// pure; all I/O lives here.
type Service struct {
	positionRepo *repository.PositionRepo
	runRepo      *repository.RunRepo
	alerter      Alerter
	cfg          config.Config
}

// NewService creates a new reconciliation service. alerter may be nil when
// no delivery channel is configured.
func NewService(
	positionRepo *repository.PositionRepo,
	runRepo *repository.RunRepo,
	alerter Alerter,
	cfg config.Config,
) *Service {
	return &Service{
		positionRepo: positionRepo,
		runRepo:      runRepo,
		alerter:      alerter,
		cfg:          cfg,
	}
}

// Run reconciles the staged positions for one trade date across the given
// source pairs. When pairs is empty, the internal source is compared
// against every other staged source for that date.
func (s *Service) Run(tradeDate string, pairs []domain.SourcePair) (*domain.ReconciliationRun, error) {
	positions, err := s.positionRepo.GetByDate(tradeDate)
	if err != nil {
		return nil, fmt.Errorf("load positions: %w", err)
	}
	if len(positions) == 0 {
		return nil, fmt.Errorf("no positions staged for %s", tradeDate)
	}

	if len(pairs) == 0 {
		pairs, err = s.defaultPairs(tradeDate)
		if err != nil {
			return nil, err
		}
	}

	run, err := Reconcile(Request{
		RunDate:   tradeDate,
		Positions: positions,
		Pairs:     pairs,
	}, s.cfg)
	if err != nil {
		return nil, fmt.Errorf("reconcile: %w", err)
	}

	if err := s.runRepo.Save(run); err != nil {
		return nil, fmt.Errorf("save run: %w", err)
	}

	log.Info().
		Str("run_id", run.ID).
		Str("run_date", run.RunDate).
		Int("breaks", len(run.Breaks)).
		Int("diagnostics", len(run.Diagnostics)).
		Int("critical", run.Metrics.BySeverity[domain.SeverityCritical]).
		Int("high", run.Metrics.BySeverity[domain.SeverityHigh]).
		Msg("reconciliation run complete")

	if s.alerter != nil {
		if err := s.alerter.Dispatch(run, domain.SeverityHigh); err != nil {
			// Alert delivery must not invalidate a completed, persisted run.
			log.Warn().Err(err).Str("run_id", run.ID).Msg("alert dispatch failed")
		}
	}

	return run, nil
}

// defaultPairs builds internal-vs-each-counterparty pairs from the staged
// sources for a date.
func (s *Service) defaultPairs(tradeDate string) ([]domain.SourcePair, error) {
	ids, kinds, err := s.positionRepo.SourcesForDate(tradeDate)
	if err != nil {
		return nil, fmt.Errorf("list sources: %w", err)
	}

	var internal domain.SourceID
	var others []domain.SourceID
	for i, id := range ids {
		if kinds[i] == domain.KindInternal {
			internal = id
		} else {
			others = append(others, id)
		}
	}
	if internal == "" {
		return nil, fmt.Errorf("no internal source staged for %s", tradeDate)
	}
	if len(others) == 0 {
		return nil, fmt.Errorf("no counterparty sources staged for %s", tradeDate)
	}

	pairs := make([]domain.SourcePair, 0, len(others))
	for _, o := range others {
		pairs = append(pairs, domain.SourcePair{Source: internal, Target: o})
	}
	return pairs, nil
}
