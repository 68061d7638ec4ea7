package config

import (
	"errors"
	"fmt"
	"os"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"

	"github.com/harborview/posrecon/internal/domain"
)

// ErrConfiguration marks invalid tolerance or severity settings. The engine
// fails the whole invocation on it before any matching occurs.
var ErrConfiguration = errors.New("configuration error")

// ToleranceConfig holds the relative per-field tolerances (fractions, so
// 0.01 means 1%) and the de-minimis dollar floor below which a discrepancy
// is never reported.
type ToleranceConfig struct {
	QuantityTolerance    decimal.Decimal `yaml:"quantity_tolerance"`
	PriceTolerance       decimal.Decimal `yaml:"price_tolerance"`
	MarketValueTolerance decimal.Decimal `yaml:"market_value_tolerance"`
	AbsoluteThreshold    decimal.Decimal `yaml:"absolute_threshold"`
}

// SeverityRule is one row of the severity table: a break at least this large
// in dollars OR percentage terms classifies at Level.
type SeverityRule struct {
	MinAbsVariance decimal.Decimal `yaml:"min_abs_variance"`
	MinPctVariance decimal.Decimal `yaml:"min_pct_variance"`
	Level          domain.Severity `yaml:"level"`
}

// SeverityTable is evaluated highest severity first; the first rule whose
// absolute or percentage bound is met wins, and anything that matches no
// rule is LOW.
type SeverityTable struct {
	Rules []SeverityRule `yaml:"rules"`
}

// Config is the full reconciliation configuration surface.
type Config struct {
	Tolerance ToleranceConfig `yaml:"tolerance"`
	Severity  SeverityTable   `yaml:"severity"`
}

// Default returns the shipped configuration: 1% quantity, 0.1% price, 2%
// market value, $100 de-minimis, and the standard severity ladder.
func Default() Config {
	return Config{
		Tolerance: ToleranceConfig{
			QuantityTolerance:    decimal.NewFromFloat(0.01),
			PriceTolerance:       decimal.NewFromFloat(0.001),
			MarketValueTolerance: decimal.NewFromFloat(0.02),
			AbsoluteThreshold:    decimal.NewFromInt(100),
		},
		Severity: SeverityTable{
			Rules: []SeverityRule{
				{MinAbsVariance: decimal.NewFromInt(100000), MinPctVariance: decimal.NewFromFloat(0.10), Level: domain.SeverityCritical},
				{MinAbsVariance: decimal.NewFromInt(50000), MinPctVariance: decimal.NewFromFloat(0.05), Level: domain.SeverityHigh},
				{MinAbsVariance: decimal.NewFromInt(10000), MinPctVariance: decimal.NewFromFloat(0.02), Level: domain.SeverityMedium},
			},
		},
	}
}

// Load reads a YAML config file and validates it.
func Load(path string) (Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Config{}, fmt.Errorf("read config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return Config{}, fmt.Errorf("parse config YAML: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks the whole configuration. All errors wrap ErrConfiguration.
func (c Config) Validate() error {
	if err := c.Tolerance.Validate(); err != nil {
		return err
	}
	return c.Severity.Validate()
}

// Validate rejects negative tolerances. Decimal values cannot be NaN or
// infinite, so non-negativity is the whole finiteness check.
func (t ToleranceConfig) Validate() error {
	fields := []struct {
		name string
		v    decimal.Decimal
	}{
		{"quantity_tolerance", t.QuantityTolerance},
		{"price_tolerance", t.PriceTolerance},
		{"market_value_tolerance", t.MarketValueTolerance},
		{"absolute_threshold", t.AbsoluteThreshold},
	}
	for _, f := range fields {
		if f.v.IsNegative() {
			return fmt.Errorf("%w: %s must be >= 0, got %s", ErrConfiguration, f.name, f.v)
		}
	}
	return nil
}

// Validate rejects tables that are empty of meaning or not ordered from the
// highest severity down with monotonically decreasing thresholds.
func (s SeverityTable) Validate() error {
	for i, r := range s.Rules {
		if r.Level.Rank() < 0 {
			return fmt.Errorf("%w: severity rule %d has unknown level %q", ErrConfiguration, i, r.Level)
		}
		if r.MinAbsVariance.IsNegative() || r.MinPctVariance.IsNegative() {
			return fmt.Errorf("%w: severity rule %d has negative threshold", ErrConfiguration, i)
		}
		if i == 0 {
			continue
		}
		prev := s.Rules[i-1]
		if r.Level.Rank() >= prev.Level.Rank() {
			return fmt.Errorf("%w: severity rules must be ordered highest first (%s before %s)",
				ErrConfiguration, prev.Level, r.Level)
		}
		if r.MinAbsVariance.GreaterThan(prev.MinAbsVariance) || r.MinPctVariance.GreaterThan(prev.MinPctVariance) {
			return fmt.Errorf("%w: severity rule %d thresholds exceed those of %s", ErrConfiguration, i, prev.Level)
		}
	}
	return nil
}
