package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"

	"github.com/BurntSushi/toml"
	"github.com/ethereum/go-ethereum/common"

	"qstake/core/schedule"
)

// Config is the daemon configuration, decoded from TOML.
type Config struct {
	RPCAddress         string `toml:"RPCAddress"`
	DataDir            string `toml:"DataDir"`
	LogFile            string `toml:"LogFile,omitempty"`
	Environment        string `toml:"Environment,omitempty"`
	LedgerAddress      string `toml:"LedgerAddress"`
	TreasuryAddress    string `toml:"TreasuryAddress"`
	SweepAuthority     string `toml:"SweepAuthority"`
	ClaimWindowSeconds uint64 `toml:"ClaimWindowSeconds"`
	TotalRewardBudget  string `toml:"TotalRewardBudget"`

	Schedule ScheduleConfig `toml:"Schedule"`
}

// ScheduleConfig selects the emission calendar: either an explicit boundary
// list or the quarterly generator parameters. Explicit boundaries win when
// both are set.
type ScheduleConfig struct {
	Boundaries         []uint64 `toml:"Boundaries,omitempty"`
	QuarterlyStartYear int      `toml:"QuarterlyStartYear,omitempty"`
	QuarterlyEndYear   int      `toml:"QuarterlyEndYear,omitempty"`
}

const defaultConfig = `RPCAddress = "127.0.0.1:8545"
DataDir = "./qstake-data"
LedgerAddress = "0x00000000000000000000000000000000000000aa"
TreasuryAddress = "0x00000000000000000000000000000000000000bb"
SweepAuthority = "0x00000000000000000000000000000000000000cc"
ClaimWindowSeconds = 1209600
TotalRewardBudget = "450000000000000000000000000"

[Schedule]
QuarterlyStartYear = 2024
QuarterlyEndYear = 2044
`

// Load reads the configuration at path, writing the default file first when
// none exists.
func Load(path string) (*Config, error) {
	if _, err := os.Stat(path); os.IsNotExist(err) {
		if err := createDefault(path); err != nil {
			return nil, err
		}
	}
	cfg := &Config{}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func createDefault(path string) error {
	if dir := filepath.Dir(path); dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return err
		}
	}
	return os.WriteFile(path, []byte(defaultConfig), 0o644)
}

// Validate checks the addresses, budget and schedule selection.
func (c *Config) Validate() error {
	if strings.TrimSpace(c.RPCAddress) == "" {
		return errors.New("config: RPCAddress is required")
	}
	if strings.TrimSpace(c.DataDir) == "" {
		return errors.New("config: DataDir is required")
	}
	for _, field := range []struct {
		name  string
		value string
	}{
		{"LedgerAddress", c.LedgerAddress},
		{"TreasuryAddress", c.TreasuryAddress},
		{"SweepAuthority", c.SweepAuthority},
	} {
		if !common.IsHexAddress(field.value) {
			return fmt.Errorf("config: %s is not a valid address", field.name)
		}
	}
	if c.ClaimWindowSeconds == 0 {
		return errors.New("config: ClaimWindowSeconds must be positive")
	}
	if _, err := c.Budget(); err != nil {
		return err
	}
	if len(c.Schedule.Boundaries) == 0 {
		if c.Schedule.QuarterlyStartYear == 0 || c.Schedule.QuarterlyEndYear <= c.Schedule.QuarterlyStartYear {
			return errors.New("config: schedule needs explicit boundaries or a valid quarterly year range")
		}
	}
	return nil
}

// Budget parses the total reward budget as a base-10 integer.
func (c *Config) Budget() (*big.Int, error) {
	budget, ok := new(big.Int).SetString(strings.TrimSpace(c.TotalRewardBudget), 10)
	if !ok || budget.Sign() <= 0 {
		return nil, errors.New("config: TotalRewardBudget must be a positive integer")
	}
	return budget, nil
}

// Boundaries resolves the configured emission calendar.
func (c *Config) Boundaries() []uint64 {
	if len(c.Schedule.Boundaries) > 0 {
		out := make([]uint64, len(c.Schedule.Boundaries))
		copy(out, c.Schedule.Boundaries)
		return out
	}
	return schedule.QuarterlyBoundaries(c.Schedule.QuarterlyStartYear, c.Schedule.QuarterlyEndYear)
}

// Ledger returns the parsed ledger custody address.
func (c *Config) Ledger() common.Address {
	return common.HexToAddress(c.LedgerAddress)
}

// Treasury returns the parsed treasury funding address.
func (c *Config) Treasury() common.Address {
	return common.HexToAddress(c.TreasuryAddress)
}

// Authority returns the parsed sweep authority address.
func (c *Config) Authority() common.Address {
	return common.HexToAddress(c.SweepAuthority)
}
