package repository

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborview/posrecon/internal/domain"
)

type RunRepo struct {
	db *sql.DB
}

func NewRunRepo(db *sql.DB) *RunRepo {
	return &RunRepo{db: db}
}

// Save persists a completed run with its breaks and diagnostics in one
// transaction. Runs are append-only; corrections are new runs.
func (r *RunRepo) Save(run *domain.ReconciliationRun) error {
	tx, err := r.db.Begin()
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	sources, err := json.Marshal(run.Sources)
	if err != nil {
		return fmt.Errorf("marshal sources: %w", err)
	}
	pairs, err := json.Marshal(run.Pairs)
	if err != nil {
		return fmt.Errorf("marshal pairs: %w", err)
	}
	bySev, err := json.Marshal(run.Metrics.BySeverity)
	if err != nil {
		return fmt.Errorf("marshal by_severity: %w", err)
	}
	byType, err := json.Marshal(run.Metrics.ByType)
	if err != nil {
		return fmt.Errorf("marshal by_type: %w", err)
	}

	_, err = tx.Exec(
		`INSERT INTO runs
		(id, run_date, sources, pairs, by_severity, by_type,
		 total_variance_abs, total_impact_usd, positions_compared, started_at, completed_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)`,
		run.ID, run.RunDate, string(sources), string(pairs), string(bySev), string(byType),
		run.Metrics.TotalVarianceAbs.String(), run.Metrics.TotalImpactUSD.String(),
		run.Metrics.PositionsCompared,
		run.StartedAt.Format(time.RFC3339Nano), run.CompletedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return fmt.Errorf("insert run: %w", err)
	}

	stmt, err := tx.Prepare(
		`INSERT INTO breaks
		(id, run_id, security_id, account_id, trade_date, pair_source, pair_target,
		 break_type, source_value, target_value, variance_abs, variance_pct,
		 impact_usd, severity, currency, description, created_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return fmt.Errorf("prepare breaks: %w", err)
	}
	defer stmt.Close()

	for i := range run.Breaks {
		b := &run.Breaks[i]
		var srcVal, tgtVal any
		if b.SourceValue != nil {
			srcVal = b.SourceValue.String()
		}
		if b.TargetValue != nil {
			tgtVal = b.TargetValue.String()
		}
		_, err := stmt.Exec(
			b.ID, run.ID, b.Key.SecurityID, b.Key.AccountID, b.Key.TradeDate,
			string(b.Pair.Source), string(b.Pair.Target), string(b.Type),
			srcVal, tgtVal, b.VarianceAbs.String(), b.VariancePct.String(),
			b.ImpactUSD.String(), string(b.Severity), b.Currency, b.Description,
			b.CreatedAt.Format(time.RFC3339Nano),
		)
		if err != nil {
			return fmt.Errorf("insert break %s: %w", b.ID, err)
		}
	}

	for _, d := range run.Diagnostics {
		_, err := tx.Exec(
			`INSERT INTO diagnostics (run_id, kind, source, key, message) VALUES (?,?,?,?,?)`,
			run.ID, string(d.Kind), string(d.Source), d.Key, d.Message,
		)
		if err != nil {
			return fmt.Errorf("insert diagnostic: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

// GetByID loads a full run with breaks and diagnostics. Returns nil when no
// run exists with the id.
func (r *RunRepo) GetByID(id string) (*domain.ReconciliationRun, error) {
	row := r.db.QueryRow(
		`SELECT id, run_date, sources, pairs, by_severity, by_type,
		        total_variance_abs, total_impact_usd, positions_compared, started_at, completed_at
		 FROM runs WHERE id = ?`, id,
	)
	run, err := scanRun(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	run.Breaks, err = r.GetBreaks(id, BreakFilter{})
	if err != nil {
		return nil, err
	}
	run.Diagnostics, err = r.getDiagnostics(id)
	if err != nil {
		return nil, err
	}
	return run, nil
}

// RunSummary is the list form of a run, without breaks.
type RunSummary struct {
	ID                string                   `json:"id"`
	RunDate           string                   `json:"run_date"`
	Sources           []domain.SourceID        `json:"sources_included"`
	Pairs             []domain.SourcePair      `json:"source_pairs"`
	BySeverity        map[domain.Severity]int  `json:"by_severity"`
	ByType            map[domain.BreakType]int `json:"by_type"`
	TotalBreaks       int                      `json:"total_breaks"`
	TotalImpactUSD    decimal.Decimal          `json:"total_impact_usd"`
	PositionsCompared int                      `json:"positions_compared"`
	StartedAt         time.Time                `json:"started_at"`
	CompletedAt       time.Time                `json:"completed_at"`
}

// List returns run summaries, newest first.
func (r *RunRepo) List(limit, offset int) ([]RunSummary, int, error) {
	var total int
	if err := r.db.QueryRow("SELECT COUNT(*) FROM runs").Scan(&total); err != nil {
		return nil, 0, err
	}

	if limit <= 0 {
		limit = 50
	}
	rows, err := r.db.Query(
		`SELECT id, run_date, sources, pairs, by_severity, by_type,
		        total_variance_abs, total_impact_usd, positions_compared, started_at, completed_at
		 FROM runs ORDER BY completed_at DESC LIMIT ? OFFSET ?`, limit, offset,
	)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []RunSummary
	for rows.Next() {
		run, err := scanRun(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, summarize(run))
	}
	return out, total, rows.Err()
}

// Latest returns the most recently completed run, or nil when none exist.
func (r *RunRepo) Latest() (*domain.ReconciliationRun, error) {
	var id string
	err := r.db.QueryRow("SELECT id FROM runs ORDER BY completed_at DESC LIMIT 1").Scan(&id)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return r.GetByID(id)
}

// BreakFilter narrows break queries; zero values mean no constraint.
type BreakFilter struct {
	MinSeverity domain.Severity
	Type        domain.BreakType
}

// GetBreaks returns a run's breaks in stored (severity-descending) order.
func (r *RunRepo) GetBreaks(runID string, f BreakFilter) ([]domain.Break, error) {
	q := `SELECT id, security_id, account_id, trade_date, pair_source, pair_target,
	             break_type, source_value, target_value, variance_abs, variance_pct,
	             impact_usd, severity, currency, description, created_at
	      FROM breaks WHERE run_id = ?`
	args := []any{runID}

	if f.Type != "" {
		q += " AND break_type = ?"
		args = append(args, string(f.Type))
	}
	if f.MinSeverity != "" {
		levels := atLeast(f.MinSeverity)
		q += " AND severity IN (?" + strings.Repeat(",?", len(levels)-1) + ")"
		for _, lv := range levels {
			args = append(args, string(lv))
		}
	}
	q += " ORDER BY rowid"

	rows, err := r.db.Query(q, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var breaks []domain.Break
	for rows.Next() {
		b, err := scanBreak(rows)
		if err != nil {
			return nil, err
		}
		breaks = append(breaks, b)
	}
	return breaks, rows.Err()
}

func (r *RunRepo) getDiagnostics(runID string) ([]domain.Diagnostic, error) {
	rows, err := r.db.Query(
		`SELECT kind, source, key, message FROM diagnostics WHERE run_id = ? ORDER BY rowid`, runID,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []domain.Diagnostic
	for rows.Next() {
		var d domain.Diagnostic
		var kind, source string
		if err := rows.Scan(&kind, &source, &d.Key, &d.Message); err != nil {
			return nil, err
		}
		d.Kind = domain.DiagnosticKind(kind)
		d.Source = domain.SourceID(source)
		out = append(out, d)
	}
	return out, rows.Err()
}

// TotalImpact sums the absolute dollar impact across all stored runs.
func (r *RunRepo) TotalImpact() (decimal.Decimal, error) {
	rows, err := r.db.Query("SELECT total_impact_usd FROM runs")
	if err != nil {
		return decimal.Zero, err
	}
	defer rows.Close()

	total := decimal.Zero
	for rows.Next() {
		var s string
		if err := rows.Scan(&s); err != nil {
			return decimal.Zero, err
		}
		v, err := decimal.NewFromString(s)
		if err != nil {
			return decimal.Zero, fmt.Errorf("total_impact_usd %q: %w", s, err)
		}
		total = total.Add(v)
	}
	return total, rows.Err()
}

// --- helpers ---

func atLeast(min domain.Severity) []domain.Severity {
	all := []domain.Severity{
		domain.SeverityLow, domain.SeverityMedium, domain.SeverityHigh, domain.SeverityCritical,
	}
	var out []domain.Severity
	for _, s := range all {
		if s.AtLeast(min) {
			out = append(out, s)
		}
	}
	return out
}

func summarize(run *domain.ReconciliationRun) RunSummary {
	total := 0
	for _, n := range run.Metrics.BySeverity {
		total += n
	}
	return RunSummary{
		ID:                run.ID,
		RunDate:           run.RunDate,
		Sources:           run.Sources,
		Pairs:             run.Pairs,
		BySeverity:        run.Metrics.BySeverity,
		ByType:            run.Metrics.ByType,
		TotalBreaks:       total,
		TotalImpactUSD:    run.Metrics.TotalImpactUSD,
		PositionsCompared: run.Metrics.PositionsCompared,
		StartedAt:         run.StartedAt,
		CompletedAt:       run.CompletedAt,
	}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanRun(row rowScanner) (*domain.ReconciliationRun, error) {
	var run domain.ReconciliationRun
	var sources, pairs, bySev, byType, totalVar, totalImpact, startedAt, completedAt string

	err := row.Scan(
		&run.ID, &run.RunDate, &sources, &pairs, &bySev, &byType,
		&totalVar, &totalImpact, &run.Metrics.PositionsCompared, &startedAt, &completedAt,
	)
	if err != nil {
		return nil, err
	}

	if err := json.Unmarshal([]byte(sources), &run.Sources); err != nil {
		return nil, fmt.Errorf("unmarshal sources: %w", err)
	}
	if err := json.Unmarshal([]byte(pairs), &run.Pairs); err != nil {
		return nil, fmt.Errorf("unmarshal pairs: %w", err)
	}
	if err := json.Unmarshal([]byte(bySev), &run.Metrics.BySeverity); err != nil {
		return nil, fmt.Errorf("unmarshal by_severity: %w", err)
	}
	if err := json.Unmarshal([]byte(byType), &run.Metrics.ByType); err != nil {
		return nil, fmt.Errorf("unmarshal by_type: %w", err)
	}
	if run.Metrics.TotalVarianceAbs, err = decimal.NewFromString(totalVar); err != nil {
		return nil, fmt.Errorf("total_variance_abs %q: %w", totalVar, err)
	}
	if run.Metrics.TotalImpactUSD, err = decimal.NewFromString(totalImpact); err != nil {
		return nil, fmt.Errorf("total_impact_usd %q: %w", totalImpact, err)
	}
	if run.StartedAt, err = time.Parse(time.RFC3339Nano, startedAt); err != nil {
		return nil, fmt.Errorf("started_at %q: %w", startedAt, err)
	}
	if run.CompletedAt, err = time.Parse(time.RFC3339Nano, completedAt); err != nil {
		return nil, fmt.Errorf("completed_at %q: %w", completedAt, err)
	}

	return &run, nil
}

func scanBreak(rows *sql.Rows) (domain.Break, error) {
	var b domain.Break
	var pairSource, pairTarget, breakType, severity, varAbs, varPct, impact, createdAt string
	var srcVal, tgtVal sql.NullString

	err := rows.Scan(
		&b.ID, &b.Key.SecurityID, &b.Key.AccountID, &b.Key.TradeDate,
		&pairSource, &pairTarget, &breakType, &srcVal, &tgtVal,
		&varAbs, &varPct, &impact, &severity, &b.Currency, &b.Description, &createdAt,
	)
	if err != nil {
		return b, err
	}

	b.Pair = domain.SourcePair{Source: domain.SourceID(pairSource), Target: domain.SourceID(pairTarget)}
	b.Type = domain.BreakType(breakType)
	b.Severity = domain.Severity(severity)

	if srcVal.Valid {
		v, err := decimal.NewFromString(srcVal.String)
		if err != nil {
			return b, fmt.Errorf("source_value %q: %w", srcVal.String, err)
		}
		b.SourceValue = &v
	}
	if tgtVal.Valid {
		v, err := decimal.NewFromString(tgtVal.String)
		if err != nil {
			return b, fmt.Errorf("target_value %q: %w", tgtVal.String, err)
		}
		b.TargetValue = &v
	}
	if b.VarianceAbs, err = decimal.NewFromString(varAbs); err != nil {
		return b, fmt.Errorf("variance_abs %q: %w", varAbs, err)
	}
	if b.VariancePct, err = decimal.NewFromString(varPct); err != nil {
		return b, fmt.Errorf("variance_pct %q: %w", varPct, err)
	}
	if b.ImpactUSD, err = decimal.NewFromString(impact); err != nil {
		return b, fmt.Errorf("impact_usd %q: %w", impact, err)
	}
	b.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdAt)

	return b, nil
}
