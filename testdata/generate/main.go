// Command generate rebuilds the sample position files in testdata/:
// a book-of-record export, a prime-broker statement with injected breaks,
// and a custodian holdings file. Run from the repo root:
//
//	go run ./testdata/generate
package main

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"math/rand"
	"os"
	"path/filepath"
)

const (
	tradeDate  = "2024-03-15"
	settleDate = "2024-03-18"
)

type security struct {
	symbol string
	cusip  string
	isin   string
	price  float64
}

var universe = []security{
	{"AAPL", "037833100", "US0378331005", 175.50},
	{"GOOGL", "02079K305", "US02079K3059", 141.25},
	{"MSFT", "594918104", "US5949181045", 378.90},
	{"AMZN", "023135106", "US0231351067", 178.25},
	{"META", "30303M102", "US30303M1027", 505.75},
	{"NVDA", "67066G104", "US67066G1040", 875.50},
	{"TSLA", "88160R101", "US88160R1014", 248.75},
	{"JPM", "46625H100", "US46625H1004", 198.40},
	{"V", "92826C839", "US92826C8394", 278.60},
	{"JNJ", "478160104", "US4781601046", 156.80},
}

var accounts = []string{"HEDGE_FUND_01", "HEDGE_FUND_02"}

type row struct {
	sec      security
	account  string
	quantity int
	price    float64
	value    float64
	currency string
}

func main() {
	rng := rand.New(rand.NewSource(42))
	dir := findTestdataDir()

	var internal []row
	for _, sec := range universe {
		for _, acct := range accounts {
			qty := 1000 + rng.Intn(14000)
			internal = append(internal, row{
				sec:      sec,
				account:  acct,
				quantity: qty,
				price:    sec.price,
				value:    round2(float64(qty) * sec.price),
				currency: "USD",
			})
		}
	}

	// Broker copy with injected breaks: ~20% quantity, ~15% price, one
	// currency flip, one dropped position, one extra position.
	broker := make([]row, len(internal))
	copy(broker, internal)
	for i := range broker {
		if rng.Float64() < 0.20 {
			broker[i].quantity += rng.Intn(1000) - 500
			broker[i].value = round2(float64(broker[i].quantity) * broker[i].price)
		}
		if rng.Float64() < 0.15 {
			broker[i].price = round2(broker[i].price * (1 + (rng.Float64()-0.5)*0.06))
			broker[i].value = round2(float64(broker[i].quantity) * broker[i].price)
		}
	}
	broker[3].currency = "CAD"
	broker = broker[:len(broker)-1]
	broker = append(broker, row{
		sec:      security{"NFLX", "64110L106", "US64110L1061", 625.00},
		account:  "HEDGE_FUND_01",
		quantity: 2500,
		price:    625.00,
		value:    1562500.00,
		currency: "USD",
	})

	// Custodian copy: fewer breaks, reports values only.
	custodian := make([]row, len(internal))
	copy(custodian, internal)
	for i := range custodian {
		if rng.Float64() < 0.10 {
			custodian[i].price = round2(custodian[i].price * (1 + (rng.Float64()-0.5)*0.04))
			custodian[i].value = round2(float64(custodian[i].quantity) * custodian[i].price)
		}
	}

	mustWriteInternal(filepath.Join(dir, "internal_positions.csv"), internal)
	mustWriteBroker(filepath.Join(dir, "broker_positions.csv"), broker)
	mustWriteCustodian(filepath.Join(dir, "custodian_holdings.json"), custodian)

	fmt.Printf("wrote %d internal, %d broker, %d custodian positions to %s\n",
		len(internal), len(broker), len(custodian), dir)
}

func mustWriteInternal(path string, rows []row) {
	f := mustCreate(path)
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"symbol", "cusip", "isin", "account_id", "quantity", "price",
		"market_value", "currency", "trade_date", "settle_date", "asset_class"})
	for _, r := range rows {
		w.Write([]string{
			r.sec.symbol, r.sec.cusip, r.sec.isin, r.account,
			fmt.Sprintf("%d", r.quantity),
			fmt.Sprintf("%.2f", r.price),
			fmt.Sprintf("%.2f", r.value),
			r.currency, tradeDate, settleDate, "equity",
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fatal(err)
	}
}

func mustWriteBroker(path string, rows []row) {
	f := mustCreate(path)
	defer f.Close()

	w := csv.NewWriter(f)
	w.Write([]string{"SYMBOL", "CUSIP", "ACCT", "QTY", "PX", "MKT_VAL", "CCY", "TRADE_DT", "SETTLE_DT"})
	for _, r := range rows {
		w.Write([]string{
			r.sec.symbol, r.sec.cusip, r.account,
			fmt.Sprintf("%d", r.quantity),
			fmt.Sprintf("%.2f", r.price),
			fmt.Sprintf("%.2f", r.value),
			r.currency, tradeDate, settleDate,
		})
	}
	w.Flush()
	if err := w.Error(); err != nil {
		fatal(err)
	}
}

func mustWriteCustodian(path string, rows []row) {
	type holding struct {
		SecurityID string `json:"security_id"`
		Isin       string `json:"isin"`
		Account    string `json:"account"`
		Shares     string `json:"shares"`
		UnitPrice  string `json:"unit_price"`
		Value      string `json:"value"`
		Ccy        string `json:"ccy"`
		TradeDate  string `json:"trade_date"`
		SettleDate string `json:"settle_date"`
		Class      string `json:"class"`
	}
	type file struct {
		AsOf      string    `json:"as_of"`
		Custodian string    `json:"custodian"`
		Holdings  []holding `json:"holdings"`
	}

	out := file{AsOf: tradeDate, Custodian: "Northbank Trust"}
	for _, r := range rows {
		out.Holdings = append(out.Holdings, holding{
			SecurityID: r.sec.cusip,
			Isin:       r.sec.isin,
			Account:    r.account,
			Shares:     fmt.Sprintf("%d", r.quantity),
			UnitPrice:  fmt.Sprintf("%.2f", r.price),
			Value:      fmt.Sprintf("%.2f", r.value),
			Ccy:        r.currency,
			TradeDate:  tradeDate,
			SettleDate: settleDate,
			Class:      "equity",
		})
	}

	data, err := json.MarshalIndent(out, "", "  ")
	if err != nil {
		fatal(err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		fatal(err)
	}
}

func mustCreate(path string) *os.File {
	f, err := os.Create(path)
	if err != nil {
		fatal(err)
	}
	return f
}

func findTestdataDir() string {
	for _, c := range []string{"testdata", filepath.Join("..", "..", "testdata"), "."} {
		if info, err := os.Stat(c); err == nil && info.IsDir() {
			return c
		}
	}
	return "."
}

func round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
