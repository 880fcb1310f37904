package config

import (
	"fmt"
	"time"

	"github.com/spf13/pflag"
)

// QuoteConfig holds configuration for the quote command.
type QuoteConfig struct {
	AmountIn     string
	AmountOut    string
	ReserveIn    string
	ReserveOut   string
	RPCURL       string
	Pair         string
	TokenIn      string
	MaxRetries   int
	RetryBackoff time.Duration
	LogLevel     string
}

// LoadQuote merges config file, environment variables, and flags into QuoteConfig.
func LoadQuote(cfgFile string, flags *pflag.FlagSet) (QuoteConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"max-retries":   3,
		"retry-backoff": 500 * time.Millisecond,
	})
	if err != nil {
		return QuoteConfig{}, err
	}

	cfg := QuoteConfig{
		AmountIn:     v.GetString("amount-in"),
		AmountOut:    v.GetString("amount-out"),
		ReserveIn:    v.GetString("reserve-in"),
		ReserveOut:   v.GetString("reserve-out"),
		RPCURL:       v.GetString("rpc"),
		Pair:         v.GetString("pair"),
		TokenIn:      v.GetString("token-in"),
		MaxRetries:   v.GetInt("max-retries"),
		RetryBackoff: v.GetDuration("retry-backoff"),
		LogLevel:     v.GetString("log-level"),
	}
	return cfg, nil
}

// Live reports whether reserves should be read from a chain pair.
func (c QuoteConfig) Live() bool {
	return c.RPCURL != "" || c.Pair != ""
}

// Validate reports missing or conflicting settings.
func (c QuoteConfig) Validate() error {
	if (c.AmountIn == "") == (c.AmountOut == "") {
		return fmt.Errorf("exactly one of --amount-in or --amount-out is required")
	}
	if c.Live() {
		if c.RPCURL == "" || c.Pair == "" || c.TokenIn == "" {
			return fmt.Errorf("--rpc, --pair and --token-in are required for live quotes")
		}
		return nil
	}
	if c.ReserveIn == "" || c.ReserveOut == "" {
		return fmt.Errorf("--reserve-in and --reserve-out are required without --rpc")
	}
	return nil
}
