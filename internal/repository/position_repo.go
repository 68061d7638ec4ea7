package repository

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborview/posrecon/internal/domain"
)

// PositionFile records one ingested source file for idempotency and audit.
type PositionFile struct {
	ID          string            `json:"id"`
	Source      domain.SourceID   `json:"source"`
	Kind        domain.SourceKind `json:"kind"`
	FileHash    string            `json:"file_hash"`
	RecordCount int               `json:"record_count"`
	TradeDate   string            `json:"trade_date"`
	IngestedAt  time.Time         `json:"ingested_at"`
}

type PositionRepo struct {
	db *sql.DB
}

func NewPositionRepo(db *sql.DB) *PositionRepo {
	return &PositionRepo{db: db}
}

func (r *PositionRepo) FileExistsByHash(hash string) (bool, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM position_files WHERE file_hash = ?", hash).Scan(&n)
	return n > 0, err
}

func (r *PositionRepo) InsertFile(f *PositionFile) error {
	_, err := r.db.Exec(
		`INSERT INTO position_files (id, source, kind, file_hash, record_count, trade_date, ingested_at)
		VALUES (?,?,?,?,?,?,?)`,
		f.ID, string(f.Source), string(f.Kind), f.FileHash, f.RecordCount,
		f.TradeDate, f.IngestedAt.Format(time.RFC3339),
	)
	return err
}

// BulkInsert stores positions preserving file order; the autoincrement rowid
// keeps ingestion order stable for the engine's deterministic aggregation.
func (r *PositionRepo) BulkInsert(fileID string, positions []domain.Position) (int, error) {
	tx, err := r.db.Begin()
	if err != nil {
		return 0, fmt.Errorf("begin: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.Prepare(
		`INSERT INTO positions
		(file_id, source, kind, ticker, cusip, isin, account_id,
		 quantity, price, market_value, currency, trade_date, settle_date, asset_class)
		VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
	)
	if err != nil {
		return 0, fmt.Errorf("prepare: %w", err)
	}
	defer stmt.Close()

	inserted := 0
	for i := range positions {
		p := &positions[i]
		_, err := stmt.Exec(
			fileID, string(p.Source), string(p.Kind), p.Ticker, p.Cusip, p.Isin,
			p.AccountID, p.Quantity.String(), p.Price.String(), p.MarketValue.String(),
			p.Currency, p.TradeDate.Format("2006-01-02"), p.SettleDate.Format("2006-01-02"),
			p.AssetClass,
		)
		if err != nil {
			return inserted, fmt.Errorf("insert %d: %w", i, err)
		}
		inserted++
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit: %w", err)
	}
	return inserted, nil
}

// GetByDate loads every staged position for one trade date, grouped by
// source, in original ingestion order.
func (r *PositionRepo) GetByDate(tradeDate string) (map[domain.SourceID][]domain.Position, error) {
	rows, err := r.db.Query(
		`SELECT source, kind, ticker, cusip, isin, account_id,
		        quantity, price, market_value, currency, trade_date, settle_date, asset_class
		 FROM positions WHERE trade_date = ? ORDER BY id`, tradeDate,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[domain.SourceID][]domain.Position)
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, err
		}
		out[p.Source] = append(out[p.Source], p)
	}
	return out, rows.Err()
}

// SourcesForDate lists the distinct sources with staged positions for a
// trade date, ordered by first ingestion.
func (r *PositionRepo) SourcesForDate(tradeDate string) ([]domain.SourceID, []domain.SourceKind, error) {
	rows, err := r.db.Query(
		`SELECT source, kind, MIN(id) FROM positions WHERE trade_date = ? GROUP BY source, kind ORDER BY MIN(id)`,
		tradeDate,
	)
	if err != nil {
		return nil, nil, err
	}
	defer rows.Close()

	var ids []domain.SourceID
	var kinds []domain.SourceKind
	for rows.Next() {
		var src, kind string
		var minID int64
		if err := rows.Scan(&src, &kind, &minID); err != nil {
			return nil, nil, err
		}
		ids = append(ids, domain.SourceID(src))
		kinds = append(kinds, domain.SourceKind(kind))
	}
	return ids, kinds, rows.Err()
}

func (r *PositionRepo) CountByDate(tradeDate string) (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM positions WHERE trade_date = ?", tradeDate).Scan(&n)
	return n, err
}

func (r *PositionRepo) Count() (int, error) {
	var n int
	err := r.db.QueryRow("SELECT COUNT(*) FROM positions").Scan(&n)
	return n, err
}

func scanPosition(rows *sql.Rows) (domain.Position, error) {
	var p domain.Position
	var source, kind, qty, price, mv, tradeDate, settleDate string
	var ticker, cusip, isin, assetClass sql.NullString

	err := rows.Scan(
		&source, &kind, &ticker, &cusip, &isin, &p.AccountID,
		&qty, &price, &mv, &p.Currency, &tradeDate, &settleDate, &assetClass,
	)
	if err != nil {
		return p, err
	}

	p.Source = domain.SourceID(source)
	p.Kind = domain.SourceKind(kind)
	p.Ticker = ticker.String
	p.Cusip = cusip.String
	p.Isin = isin.String
	p.AssetClass = assetClass.String

	if p.Quantity, err = decimal.NewFromString(qty); err != nil {
		return p, fmt.Errorf("quantity %q: %w", qty, err)
	}
	if p.Price, err = decimal.NewFromString(price); err != nil {
		return p, fmt.Errorf("price %q: %w", price, err)
	}
	if p.MarketValue, err = decimal.NewFromString(mv); err != nil {
		return p, fmt.Errorf("market_value %q: %w", mv, err)
	}
	if p.TradeDate, err = time.Parse("2006-01-02", tradeDate); err != nil {
		return p, fmt.Errorf("trade_date %q: %w", tradeDate, err)
	}
	if p.SettleDate, err = time.Parse("2006-01-02", settleDate); err != nil {
		return p, fmt.Errorf("settle_date %q: %w", settleDate, err)
	}

	return p, nil
}
