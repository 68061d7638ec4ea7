package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

// SourceKind identifies which class of system a position snapshot came from.
type SourceKind string

const (
	KindInternal    SourceKind = "internal"
	KindPrimeBroker SourceKind = "prime_broker"
	KindCustodian   SourceKind = "custodian"
)

// SourceID names a concrete source instance, e.g. "internal",
// "pb_meridian", "cust_northbank". Multiple brokers or custodians each get
// their own id; the kind is carried separately on the position.
type SourceID string

// Position is a single normalized position row as of one trade date.
// Parsers produce these; the engine never sees source-specific schemas.
// MarketValue is authoritative as reported by the source and is never
// recomputed from quantity and price.
type Position struct {
	Source      SourceID        `json:"source"`
	Kind        SourceKind      `json:"kind"`
	Ticker      string          `json:"ticker,omitempty"`
	Cusip       string          `json:"cusip,omitempty"`
	Isin        string          `json:"isin,omitempty"`
	AccountID   string          `json:"account_id"`
	Quantity    decimal.Decimal `json:"quantity"`
	Price       decimal.Decimal `json:"price"`
	MarketValue decimal.Decimal `json:"market_value"`
	Currency    string          `json:"currency"`
	TradeDate   time.Time       `json:"trade_date"`
	SettleDate  time.Time       `json:"settle_date"`
	AssetClass  string          `json:"asset_class,omitempty"`
}

// SecurityID resolves the identifier used for matching: cusip first, then
// isin, then ticker. The order is fixed so every source keys identically.
// Empty means the position cannot be matched.
func (p *Position) SecurityID() string {
	if p.Cusip != "" {
		return p.Cusip
	}
	if p.Isin != "" {
		return p.Isin
	}
	return p.Ticker
}

// MatchKey is the composite pairing key. Currency is deliberately not part
// of the key so a currency-mismatched pair still matches and gets flagged.
type MatchKey struct {
	SecurityID string `json:"security_id"`
	AccountID  string `json:"account_id"`
	TradeDate  string `json:"trade_date"` // YYYY-MM-DD
}

// Key builds the position's MatchKey. ok is false when no identifier
// resolves; such positions are excluded from pairing.
func (p *Position) Key() (MatchKey, bool) {
	sec := p.SecurityID()
	if sec == "" {
		return MatchKey{}, false
	}
	return MatchKey{
		SecurityID: sec,
		AccountID:  p.AccountID,
		TradeDate:  p.TradeDate.Format("2006-01-02"),
	}, true
}

func (k MatchKey) String() string {
	return k.SecurityID + "|" + k.AccountID + "|" + k.TradeDate
}
