package config

import (
	"errors"
	"fmt"
	"math/big"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/shopspring/decimal"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

// Config holds configuration values loaded from flags, env, or config file.
type Config struct {
	MaxTime            time.Duration
	GraceWindow        time.Duration
	DeviationThreshold decimal.Decimal
	PreferredProvider  string
	PreferredMargin    decimal.Decimal
	ReplayAttempts     int
	ReplayBackoff      time.Duration
	FundingAmount      *big.Int
	ReceiptPoll        time.Duration
	ReceiptTimeout     time.Duration

	TenderlyAPI       string
	TenderlyUser      string
	TenderlyProject   string
	TenderlyAccessKey string

	DebridgeAPI string
	LiFiAPI     string
	LiFiAPIKey  string
	RelayAPI    string

	PGDSN         string
	RedisURL      string
	PriceCacheTTL time.Duration
	Prices        map[string]decimal.Decimal

	MetricsAddr string
	LogLevel    string
}

// Load merges .env, config file, environment variables, and flags into Config.
func Load(cfgFile string, flags *pflag.FlagSet) (Config, error) {
	if err := godotenv.Load(); err != nil && !errors.Is(err, os.ErrNotExist) {
		return Config{}, fmt.Errorf("load .env: %w", err)
	}

	v := viper.New()
	v.SetEnvPrefix("BRIDGESCOPE")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	v.SetDefault("max-time", 23*time.Second)
	v.SetDefault("grace-window", 500*time.Millisecond)
	v.SetDefault("deviation-threshold", "0.05")
	v.SetDefault("preferred-provider", "reservoir")
	v.SetDefault("preferred-margin", "0.05")
	v.SetDefault("replay-attempts", 4)
	v.SetDefault("replay-backoff", time.Second)
	v.SetDefault("funding-amount", "1000000000000000000000000")
	v.SetDefault("receipt-poll", 500*time.Millisecond)
	v.SetDefault("receipt-timeout", 60*time.Second)
	v.SetDefault("tenderly-api", "https://api.tenderly.co/api/v1")
	v.SetDefault("price-cache-ttl", 5*time.Minute)
	v.SetDefault("log-level", "info")

	if flags != nil {
		if err := v.BindPFlags(flags); err != nil {
			return Config{}, fmt.Errorf("bind flags: %w", err)
		}
	}

	if cfgFile != "" {
		v.SetConfigFile(cfgFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("read config: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return Config{}, fmt.Errorf("read config: %w", err)
			}
		}
	}

	deviation, err := getDecimal(v, "deviation-threshold")
	if err != nil {
		return Config{}, err
	}
	margin, err := getDecimal(v, "preferred-margin")
	if err != nil {
		return Config{}, err
	}
	funding, ok := new(big.Int).SetString(strings.TrimSpace(v.GetString("funding-amount")), 10)
	if !ok || funding.Sign() <= 0 {
		return Config{}, fmt.Errorf("funding-amount must be a positive wei amount, got %q", v.GetString("funding-amount"))
	}
	prices, err := getPrices(v, "prices")
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		MaxTime:            v.GetDuration("max-time"),
		GraceWindow:        v.GetDuration("grace-window"),
		DeviationThreshold: deviation,
		PreferredProvider:  v.GetString("preferred-provider"),
		PreferredMargin:    margin,
		ReplayAttempts:     v.GetInt("replay-attempts"),
		ReplayBackoff:      v.GetDuration("replay-backoff"),
		FundingAmount:      funding,
		ReceiptPoll:        v.GetDuration("receipt-poll"),
		ReceiptTimeout:     v.GetDuration("receipt-timeout"),
		TenderlyAPI:        v.GetString("tenderly-api"),
		TenderlyUser:       v.GetString("tenderly-user"),
		TenderlyProject:    v.GetString("tenderly-project"),
		TenderlyAccessKey:  v.GetString("tenderly-access-key"),
		DebridgeAPI:        v.GetString("debridge-api"),
		LiFiAPI:            v.GetString("lifi-api"),
		LiFiAPIKey:         v.GetString("lifi-api-key"),
		RelayAPI:           v.GetString("relay-api"),
		PGDSN:              v.GetString("pg-dsn"),
		RedisURL:           v.GetString("redis-url"),
		PriceCacheTTL:      v.GetDuration("price-cache-ttl"),
		Prices:             prices,
		MetricsAddr:        v.GetString("metrics-addr"),
		LogLevel:           v.GetString("log-level"),
	}

	return cfg, nil
}

// Validate checks the settings needed to fork sandboxes.
func (c Config) Validate() error {
	if c.TenderlyUser == "" || c.TenderlyProject == "" || c.TenderlyAccessKey == "" {
		return fmt.Errorf("tenderly-user, tenderly-project and tenderly-access-key are required")
	}
	if c.ReplayAttempts <= 0 {
		return fmt.Errorf("replay-attempts must be positive")
	}
	return nil
}

func getDecimal(v *viper.Viper, key string) (decimal.Decimal, error) {
	d, err := decimal.NewFromString(strings.TrimSpace(v.GetString(key)))
	if err != nil {
		return decimal.Zero, fmt.Errorf("%s: %w", key, err)
	}
	return d, nil
}

// getPrices accepts a map from the config file or "symbol=price" pairs from flags and env.
func getPrices(v *viper.Viper, key string) (map[string]decimal.Decimal, error) {
	out := make(map[string]decimal.Decimal)
	if !v.IsSet(key) {
		return out, nil
	}

	raw := make(map[string]string)
	switch typed := v.Get(key).(type) {
	case map[string]interface{}:
		for symbol, value := range typed {
			raw[symbol] = fmt.Sprintf("%v", value)
		}
	default:
		for _, pair := range getStringSlice(v, key) {
			symbol, value, ok := strings.Cut(pair, "=")
			if !ok {
				return nil, fmt.Errorf("%s: expected symbol=price, got %q", key, pair)
			}
			raw[symbol] = value
		}
	}

	for symbol, value := range raw {
		d, err := decimal.NewFromString(strings.TrimSpace(value))
		if err != nil {
			return nil, fmt.Errorf("%s: price for %s: %w", key, symbol, err)
		}
		out[strings.ToLower(strings.TrimSpace(symbol))] = d
	}
	return out, nil
}

func getStringSlice(v *viper.Viper, key string) []string {
	if !v.IsSet(key) {
		return nil
	}

	val := v.Get(key)
	switch typed := val.(type) {
	case []string:
		return cleanStrings(typed)
	case string:
		return splitAndClean(typed)
	case []interface{}:
		items := make([]string, 0, len(typed))
		for _, item := range typed {
			items = append(items, fmt.Sprintf("%v", item))
		}
		return cleanStrings(items)
	default:
		return nil
	}
}

func splitAndClean(input string) []string {
	if input == "" {
		return nil
	}
	parts := strings.Split(input, ",")
	return cleanStrings(parts)
}

func cleanStrings(items []string) []string {
	out := make([]string, 0, len(items))
	for _, item := range items {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		out = append(out, item)
	}
	return out
}
