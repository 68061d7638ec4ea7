package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/harborview/posrecon/internal/domain"
)

// ParseInternalCSV parses the internal book-of-record position export.
//
// Expected header:
//
//	symbol,cusip,isin,account_id,quantity,price,market_value,currency,trade_date,settle_date,asset_class
func ParseInternalCSV(data []byte, source domain.SourceID) ([]domain.Position, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 11 {
		return nil, fmt.Errorf("expected 11 columns, got %d", len(header))
	}

	var positions []domain.Position
	lineNum := 1

	for {
		lineNum++
		row, err := reader.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("line %d: %w", lineNum, err)
		}
		if len(row) < 11 {
			continue
		}

		qty, err := decimal.NewFromString(strings.TrimSpace(row[4]))
		if err != nil {
			return nil, fmt.Errorf("line %d quantity: %w", lineNum, err)
		}
		price, err := decimal.NewFromString(strings.TrimSpace(row[5]))
		if err != nil {
			return nil, fmt.Errorf("line %d price: %w", lineNum, err)
		}
		mv, err := decimal.NewFromString(strings.TrimSpace(row[6]))
		if err != nil {
			return nil, fmt.Errorf("line %d market_value: %w", lineNum, err)
		}

		tradeDate, err := parseDate(strings.TrimSpace(row[8]))
		if err != nil {
			return nil, fmt.Errorf("line %d trade_date: %w", lineNum, err)
		}
		settleDate, err := parseDate(strings.TrimSpace(row[9]))
		if err != nil {
			return nil, fmt.Errorf("line %d settle_date: %w", lineNum, err)
		}

		positions = append(positions, domain.Position{
			Source:      source,
			Kind:        domain.KindInternal,
			Ticker:      strings.TrimSpace(row[0]),
			Cusip:       strings.TrimSpace(row[1]),
			Isin:        strings.TrimSpace(row[2]),
			AccountID:   strings.TrimSpace(row[3]),
			Quantity:    qty,
			Price:       price,
			MarketValue: mv,
			Currency:    strings.ToUpper(strings.TrimSpace(row[7])),
			TradeDate:   tradeDate,
			SettleDate:  settleDate,
			AssetClass:  strings.TrimSpace(row[10]),
		})
	}

	return positions, nil
}

func parseDate(s string) (time.Time, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		t, err = time.Parse(time.RFC3339, s)
		if err != nil {
			return time.Time{}, err
		}
	}
	return t.UTC().Truncate(24 * time.Hour), nil
}
