package ingestion

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/harborview/posrecon/internal/domain"
)

// custodianFile represents the top-level JSON structure custodians deliver.
type custodianFile struct {
	AsOf      string           `json:"as_of"`
	Custodian string           `json:"custodian"`
	Holdings  []custodianEntry `json:"holdings"`
}

type custodianEntry struct {
	SecurityID string          `json:"security_id"`
	Isin       string          `json:"isin"`
	Account    string          `json:"account"`
	Shares     decimal.Decimal `json:"shares"`
	UnitPrice  decimal.Decimal `json:"unit_price"`
	Value      decimal.Decimal `json:"value"`
	Ccy        string          `json:"ccy"`
	TradeDate  string          `json:"trade_date"`
	SettleDate string          `json:"settle_date"`
	Class      string          `json:"class"`
}

// ParseCustodianJSON parses the custodian holdings JSON format. Custodians
// key by their own security_id, which maps onto the cusip field.
func ParseCustodianJSON(data []byte, source domain.SourceID) ([]domain.Position, error) {
	var file custodianFile
	if err := json.Unmarshal(data, &file); err != nil {
		return nil, fmt.Errorf("unmarshal: %w", err)
	}

	var positions []domain.Position

	for i, entry := range file.Holdings {
		tradeDate, err := parseDate(entry.TradeDate)
		if err != nil {
			// Some custodians omit per-holding trade dates and rely on the
			// file-level as-of date.
			tradeDate, err = parseDate(file.AsOf)
			if err != nil {
				return nil, fmt.Errorf("holding %d trade_date: %w", i, err)
			}
		}
		settleDate := tradeDate
		if entry.SettleDate != "" {
			settleDate, err = parseDate(entry.SettleDate)
			if err != nil {
				return nil, fmt.Errorf("holding %d settle_date: %w", i, err)
			}
		}

		positions = append(positions, domain.Position{
			Source:      source,
			Kind:        domain.KindCustodian,
			Cusip:       strings.TrimSpace(entry.SecurityID),
			Isin:        strings.TrimSpace(entry.Isin),
			AccountID:   strings.TrimSpace(entry.Account),
			Quantity:    entry.Shares,
			Price:       entry.UnitPrice,
			MarketValue: entry.Value,
			Currency:    strings.ToUpper(strings.TrimSpace(entry.Ccy)),
			TradeDate:   tradeDate,
			SettleDate:  settleDate,
			AssetClass:  strings.TrimSpace(entry.Class),
		})
	}

	return positions, nil
}
