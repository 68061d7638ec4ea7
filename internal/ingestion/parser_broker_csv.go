package ingestion

import (
	"encoding/csv"
	"fmt"
	"io"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/harborview/posrecon/internal/domain"
)

// ParseBrokerCSV parses the prime-broker position statement format. Brokers
// report no ISIN or asset class; the cusip falls back to the symbol for
// matching.
//
// Expected header:
//
//	SYMBOL,CUSIP,ACCT,QTY,PX,MKT_VAL,CCY,TRADE_DT,SETTLE_DT
func ParseBrokerCSV(data []byte, source domain.SourceID) ([]domain.Position, error) {
	reader := csv.NewReader(strings.NewReader(string(data)))
	reader.TrimLeadingSpace = true

	header, err := reader.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 9 {
		return nil, fmt.Errorf("expected 9 columns, got %d", len(header))
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
		if len(row) < 9 {
			continue
		}

		qty, err := decimal.NewFromString(strings.TrimSpace(row[3]))
		if err != nil {
			return nil, fmt.Errorf("line %d QTY: %w", lineNum, err)
		}
		px, err := decimal.NewFromString(strings.TrimSpace(row[4]))
		if err != nil {
			return nil, fmt.Errorf("line %d PX: %w", lineNum, err)
		}
		mv, err := decimal.NewFromString(strings.TrimSpace(row[5]))
		if err != nil {
			return nil, fmt.Errorf("line %d MKT_VAL: %w", lineNum, err)
		}

		tradeDate, err := parseDate(strings.TrimSpace(row[7]))
		if err != nil {
			return nil, fmt.Errorf("line %d TRADE_DT: %w", lineNum, err)
		}
		settleDate, err := parseDate(strings.TrimSpace(row[8]))
		if err != nil {
			return nil, fmt.Errorf("line %d SETTLE_DT: %w", lineNum, err)
		}

		positions = append(positions, domain.Position{
			Source:      source,
			Kind:        domain.KindPrimeBroker,
			Ticker:      strings.TrimSpace(row[0]),
			Cusip:       strings.TrimSpace(row[1]),
			AccountID:   strings.TrimSpace(row[2]),
			Quantity:    qty,
			Price:       px,
			MarketValue: mv,
			Currency:    strings.ToUpper(strings.TrimSpace(row[6])),
			TradeDate:   tradeDate,
			SettleDate:  settleDate,
		})
	}

	return positions, nil
}
