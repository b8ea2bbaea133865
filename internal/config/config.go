// Package config loads the engine's process-start configuration: fee
// rates, the supported-pair set, admin principals and the listen address.
// Grounded on the polymarket-mm and gobet examples' layered
// viper+godotenv setup: a .env file is loaded first (if present), then
// viper binds environment variables and an optional config file over it.
package config

import (
	"fmt"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"clob/internal/admin"
	"clob/internal/fixed"
)

// PairConfig names one supported market and its decimal precision.
type PairConfig struct {
	Base          string
	Quote         string
	BaseDecimals  uint8
	QuoteDecimals uint8
}

// Config is the engine's fully resolved startup configuration.
type Config struct {
	ListenAddress string
	MetricsAddr   string
	LogLevel      string

	MakerBps  fixed.Bps
	TakerBps  fixed.Bps
	Recipient string

	AdminPrincipals []admin.Principal
	Pairs           []PairConfig
}

// Load reads .env (if present, ignored if missing), then binds CLOB_*
// environment variables and an optional config file at configPath (empty
// skips the file), and returns the resolved Config. Defaults follow the
// teacher's own listen address/port choice (0.0.0.0:9001).
func Load(configPath string) (Config, error) {
	_ = godotenv.Load() // a missing .env is not an error; env/file config still applies

	v := viper.New()
	v.SetEnvPrefix("clob")
	v.AutomaticEnv()
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	v.SetDefault("listen_address", "0.0.0.0:9001")
	v.SetDefault("metrics_address", "0.0.0.0:9090")
	v.SetDefault("log_level", "info")
	v.SetDefault("maker_bps", 10)
	v.SetDefault("taker_bps", 20)
	v.SetDefault("fee_recipient", "treasury")
	v.SetDefault("admin_principals", []string{"root"})

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: reading %s: %w", configPath, err)
		}
	}

	makerBps := v.GetUint32("maker_bps")
	takerBps := v.GetUint32("taker_bps")
	if makerBps > fixed.BpsDenominator || takerBps > fixed.BpsDenominator {
		return Config{}, fmt.Errorf("config: fee rate out of range [0, %d]", fixed.BpsDenominator)
	}

	var principals []admin.Principal
	for _, p := range v.GetStringSlice("admin_principals") {
		principals = append(principals, admin.Principal(p))
	}

	pairs, err := parsePairs(v.GetStringSlice("pairs"))
	if err != nil {
		return Config{}, err
	}
	if len(pairs) == 0 {
		pairs = []PairConfig{{Base: "BTC", Quote: "USD", BaseDecimals: 18, QuoteDecimals: 6}}
	}

	return Config{
		ListenAddress:   v.GetString("listen_address"),
		MetricsAddr:     v.GetString("metrics_address"),
		LogLevel:        v.GetString("log_level"),
		MakerBps:        fixed.Bps(makerBps),
		TakerBps:        fixed.Bps(takerBps),
		Recipient:       v.GetString("fee_recipient"),
		AdminPrincipals: principals,
		Pairs:           pairs,
	}, nil
}

// parsePairs accepts entries shaped "BASE/QUOTE:baseDecimals:quoteDecimals",
// e.g. "BTC/USD:18:6", as a compact way to configure pairs from a single
// environment variable or config-file list.
func parsePairs(entries []string) ([]PairConfig, error) {
	var out []PairConfig
	for _, e := range entries {
		fields := strings.Split(e, ":")
		if len(fields) != 3 {
			return nil, fmt.Errorf("config: malformed pair entry %q, want BASE/QUOTE:baseDecimals:quoteDecimals", e)
		}
		symbols := strings.SplitN(fields[0], "/", 2)
		if len(symbols) != 2 {
			return nil, fmt.Errorf("config: malformed pair symbol %q, want BASE/QUOTE", fields[0])
		}
		var baseDec, quoteDec uint8
		if _, err := fmt.Sscanf(fields[1], "%d", &baseDec); err != nil {
			return nil, fmt.Errorf("config: invalid base decimals in %q: %w", e, err)
		}
		if _, err := fmt.Sscanf(fields[2], "%d", &quoteDec); err != nil {
			return nil, fmt.Errorf("config: invalid quote decimals in %q: %w", e, err)
		}
		out = append(out, PairConfig{Base: symbols[0], Quote: symbols[1], BaseDecimals: baseDec, QuoteDecimals: quoteDec})
	}
	return out, nil
}
