package config

import (
	"fmt"

	"github.com/spf13/pflag"
)

// ReplayConfig holds configuration for the replay command.
type ReplayConfig struct {
	Input            string
	AssetA           string
	AssetB           string
	EventsOut        string
	StateFile        string
	StateName        string
	PGDSN            string
	BatchSize        int
	MetricsOut       string
	EnforceAllowance bool
	LogLevel         string
}

// LoadReplay merges config file, environment variables, and flags into ReplayConfig.
func LoadReplay(cfgFile string, flags *pflag.FlagSet) (ReplayConfig, error) {
	v, err := load(cfgFile, flags, map[string]interface{}{
		"events-out":        "./data/pool_events.jsonl",
		"state-file":        "./data/replay_state.json",
		"state-name":        "replay",
		"batch-size":        500,
		"enforce-allowance": false,
	})
	if err != nil {
		return ReplayConfig{}, err
	}

	cfg := ReplayConfig{
		Input:            v.GetString("in"),
		AssetA:           v.GetString("asset-a"),
		AssetB:           v.GetString("asset-b"),
		EventsOut:        v.GetString("events-out"),
		StateFile:        v.GetString("state-file"),
		StateName:        v.GetString("state-name"),
		PGDSN:            v.GetString("pg-dsn"),
		BatchSize:        v.GetInt("batch-size"),
		MetricsOut:       v.GetString("metrics-out"),
		EnforceAllowance: v.GetBool("enforce-allowance"),
		LogLevel:         v.GetString("log-level"),
	}
	return cfg, nil
}

// Validate reports missing required settings.
func (c ReplayConfig) Validate() error {
	if c.Input == "" {
		return fmt.Errorf("--in is required")
	}
	if c.AssetA == "" || c.AssetB == "" {
		return fmt.Errorf("--asset-a and --asset-b are required")
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("batch size must be greater than zero")
	}
	return nil
}
