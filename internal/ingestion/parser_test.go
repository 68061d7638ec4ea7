package ingestion

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harborview/posrecon/internal/domain"
)

const internalCSV = `symbol,cusip,isin,account_id,quantity,price,market_value,currency,trade_date,settle_date,asset_class
AAPL,037833100,US0378331005,HEDGE_FUND_01,1000,175.50,175500.00,USD,2024-03-15,2024-03-18,equity
GOOGL,02079K305,US02079K3059,HEDGE_FUND_01,-2400,141.25,-339000.00,usd,2024-03-15,2024-03-18,equity
`

func TestParseInternalCSV(t *testing.T) {
	positions, err := ParseInternalCSV([]byte(internalCSV), "internal")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	p := positions[0]
	assert.Equal(t, domain.SourceID("internal"), p.Source)
	assert.Equal(t, domain.KindInternal, p.Kind)
	assert.Equal(t, "AAPL", p.Ticker)
	assert.Equal(t, "037833100", p.Cusip)
	assert.Equal(t, "US0378331005", p.Isin)
	assert.Equal(t, "HEDGE_FUND_01", p.AccountID)
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(1000)))
	assert.True(t, p.Price.Equal(decimal.RequireFromString("175.50")))
	assert.True(t, p.MarketValue.Equal(decimal.RequireFromString("175500.00")))
	assert.Equal(t, "USD", p.Currency)
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), p.TradeDate)
	assert.Equal(t, "equity", p.AssetClass)

	// Short positions keep their sign; currency codes are upper-cased.
	assert.True(t, positions[1].Quantity.IsNegative())
	assert.Equal(t, "USD", positions[1].Currency)
}

func TestParseInternalCSVBadQuantity(t *testing.T) {
	bad := `symbol,cusip,isin,account_id,quantity,price,market_value,currency,trade_date,settle_date,asset_class
AAPL,037833100,US0378331005,HEDGE_FUND_01,abc,175.50,175500.00,USD,2024-03-15,2024-03-18,equity
`
	_, err := ParseInternalCSV([]byte(bad), "internal")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")
}

const brokerCSV = `SYMBOL,CUSIP,ACCT,QTY,PX,MKT_VAL,CCY,TRADE_DT,SETTLE_DT
AAPL,037833100,HEDGE_FUND_01,950,175.50,166725.00,USD,2024-03-15,2024-03-18
NFLX,64110L106,HEDGE_FUND_01,2500,625.00,1562500.00,USD,2024-03-15,2024-03-18
`

func TestParseBrokerCSV(t *testing.T) {
	positions, err := ParseBrokerCSV([]byte(brokerCSV), "pb_meridian")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	p := positions[0]
	assert.Equal(t, domain.KindPrimeBroker, p.Kind)
	assert.Equal(t, "AAPL", p.Ticker)
	assert.Equal(t, "037833100", p.Cusip)
	assert.Empty(t, p.Isin, "brokers report no ISIN")
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(950)))
	assert.True(t, p.MarketValue.Equal(decimal.RequireFromString("166725.00")))
}

const custodianJSON = `{
  "as_of": "2024-03-15",
  "custodian": "Northbank Trust",
  "holdings": [
    {"security_id": "037833100", "isin": "US0378331005", "account": "HEDGE_FUND_01",
     "shares": "1000", "unit_price": "175.50", "value": "175500.00", "ccy": "usd",
     "trade_date": "2024-03-15", "settle_date": "2024-03-18", "class": "equity"},
    {"security_id": "594918104", "isin": "US5949181045", "account": "HEDGE_FUND_01",
     "shares": "1500", "unit_price": "378.90", "value": "568350.00", "ccy": "USD", "class": "equity"}
  ]
}`

func TestParseCustodianJSON(t *testing.T) {
	positions, err := ParseCustodianJSON([]byte(custodianJSON), "cust_northbank")
	require.NoError(t, err)
	require.Len(t, positions, 2)

	p := positions[0]
	assert.Equal(t, domain.KindCustodian, p.Kind)
	assert.Equal(t, "037833100", p.Cusip)
	assert.Equal(t, "US0378331005", p.Isin)
	assert.True(t, p.Quantity.Equal(decimal.NewFromInt(1000)))
	assert.Equal(t, "USD", p.Currency)

	// Holdings without per-row dates fall back to the file's as-of date.
	p2 := positions[1]
	assert.Equal(t, time.Date(2024, 3, 15, 0, 0, 0, 0, time.UTC), p2.TradeDate)
	assert.Equal(t, p2.TradeDate, p2.SettleDate)
}

func TestParseCustodianJSONMalformed(t *testing.T) {
	_, err := ParseCustodianJSON([]byte(`{"holdings": [`), "cust_northbank")
	assert.Error(t, err)
}
