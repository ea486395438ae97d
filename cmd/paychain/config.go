package main

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-paychain/core"
	"github.com/spf13/viper"
)

const envPrefix = "PAYCHAIN"

type databaseConfig struct {
	Driver      string        `mapstructure:"driver"`
	DSN         string        `mapstructure:"dsn"`
	AutoMigrate bool          `mapstructure:"auto_migrate"`
	Debug       bool          `mapstructure:"debug"`
	PingTimeout time.Duration `mapstructure:"ping_timeout"`
}

func (c databaseConfig) GetDebug() bool                { return c.Debug }
func (c databaseConfig) GetDriver() string             { return c.Driver }
func (c databaseConfig) GetServer() string             { return c.DSN }
func (c databaseConfig) GetPingTimeout() time.Duration { return c.PingTimeout }
func (c databaseConfig) GetOtelIdentifier() string     { return "go-paychain" }

type httpConfig struct {
	Addr          string        `mapstructure:"addr"`
	MaxBodyBytes  int64         `mapstructure:"max_body_bytes"`
	SignatureSkew time.Duration `mapstructure:"signature_skew"`
}

type swapConfig struct {
	Adapter  string        `mapstructure:"adapter"`
	Endpoint string        `mapstructure:"endpoint"`
	Timeout  time.Duration `mapstructure:"timeout"`
}

type logConfig struct {
	Level string `mapstructure:"level"`
}

type secretsConfig struct {
	AppKey string `mapstructure:"app_key"`
}

type eventsConfig struct {
	SinkURL       string        `mapstructure:"sink_url"`
	SigningSecret string        `mapstructure:"signing_secret"`
	Timeout       time.Duration `mapstructure:"timeout"`
}

type dispatchConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval"`
}

type relayConfig struct {
	ReplayWindow time.Duration `mapstructure:"replay_window"`
}

type amountConfig struct {
	Decimals int32 `mapstructure:"decimals"`
}

type appConfig struct {
	Database databaseConfig `mapstructure:"database"`
	HTTP     httpConfig     `mapstructure:"http"`
	Swap     swapConfig     `mapstructure:"swap"`
	Log      logConfig      `mapstructure:"log"`
	Secrets  secretsConfig  `mapstructure:"secrets"`
	Events   eventsConfig   `mapstructure:"events"`
	Dispatch dispatchConfig `mapstructure:"dispatch"`
	Relay    relayConfig    `mapstructure:"relay"`
	Amount   amountConfig   `mapstructure:"amount"`
}

func (c appConfig) validate() error {
	switch c.Database.Driver {
	case driverSQLite, driverPostgres:
	default:
		return fmt.Errorf("paychain: database.driver must be %s or %s, got %q", driverSQLite, driverPostgres, c.Database.Driver)
	}
	if strings.TrimSpace(c.Database.DSN) == "" {
		return fmt.Errorf("paychain: database.dsn is required")
	}
	if c.Dispatch.PollInterval <= 0 {
		return fmt.Errorf("paychain: dispatch.poll_interval must be positive")
	}
	if c.HTTP.SignatureSkew <= 0 {
		return fmt.Errorf("paychain: http.signature_skew must be positive")
	}
	if c.Amount.Decimals < 0 || c.Amount.Decimals > 18 {
		return fmt.Errorf("paychain: amount.decimals must be between 0 and 18")
	}
	return nil
}

func newViper() *viper.Viper {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("database.driver", driverSQLite)
	v.SetDefault("database.dsn", "file:paychain.db?_foreign_keys=on")
	v.SetDefault("database.auto_migrate", true)
	v.SetDefault("database.debug", false)
	v.SetDefault("database.ping_timeout", 5*time.Second)
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.max_body_bytes", int64(1<<20))
	v.SetDefault("http.signature_skew", 5*time.Minute)
	v.SetDefault("swap.adapter", "")
	v.SetDefault("swap.endpoint", "")
	v.SetDefault("swap.timeout", 10*time.Second)
	v.SetDefault("log.level", "info")
	v.SetDefault("secrets.app_key", "")
	v.SetDefault("events.sink_url", "")
	v.SetDefault("events.signing_secret", "")
	v.SetDefault("events.timeout", 5*time.Second)
	v.SetDefault("dispatch.poll_interval", 2*time.Second)
	v.SetDefault("relay.replay_window", 10*time.Minute)
	v.SetDefault("amount.decimals", 6)

	defaults := core.DefaultConfig()
	v.SetDefault("service_name", defaults.ServiceName)
	v.SetDefault("fees.fixed_base_fee", defaults.Fees.FixedBaseFee)
	v.SetDefault("fees.fee_rate_bps", defaults.Fees.FeeRateBps)
	v.SetDefault("requests.expiry_seconds", defaults.Requests.ExpirySeconds)
	v.SetDefault("settlement.strict_amount_decoding", false)
	v.SetDefault("settlement.allow_duplicate_messages", false)
	v.SetDefault("custody.seed", "")
	v.SetDefault("custody.sealed", false)
	v.SetDefault("outbox.batch_size", defaults.Outbox.BatchSize)
	v.SetDefault("outbox.max_attempts", defaults.Outbox.MaxAttempts)
	v.SetDefault("outbox.initial_backoff", defaults.Outbox.InitialBackoff)
	v.SetDefault("outbox.max_backoff", defaults.Outbox.MaxBackoff)
	return v
}

// loadConfig reads path (when set) over the defaults and environment.
func loadConfig(v *viper.Viper, path string) (appConfig, error) {
	if path = strings.TrimSpace(path); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			return appConfig{}, fmt.Errorf("paychain: read config %s: %w", path, err)
		}
	}
	var cfg appConfig
	if err := v.Unmarshal(&cfg); err != nil {
		return appConfig{}, fmt.Errorf("paychain: decode config: %w", err)
	}
	cfg.Database.Driver = normalizeDriver(cfg.Database.Driver)
	if err := cfg.validate(); err != nil {
		return appConfig{}, err
	}
	return cfg, nil
}

// viperRawConfigLoader feeds the core config blocks to core.CfgxConfigProvider
// with typed values, so durations from yaml or env arrive decoded.
type viperRawConfigLoader struct {
	v *viper.Viper
}

func (l viperRawConfigLoader) LoadRaw(context.Context) (map[string]any, error) {
	if l.v == nil {
		return map[string]any{}, nil
	}
	v := l.v
	return map[string]any{
		"service_name": v.GetString("service_name"),
		"fees": map[string]any{
			"fixed_base_fee": v.GetUint64("fees.fixed_base_fee"),
			"fee_rate_bps":   uint16(v.GetUint("fees.fee_rate_bps")),
		},
		"requests": map[string]any{
			"expiry_seconds": v.GetInt64("requests.expiry_seconds"),
		},
		"settlement": map[string]any{
			"strict_amount_decoding":   v.GetBool("settlement.strict_amount_decoding"),
			"allow_duplicate_messages": v.GetBool("settlement.allow_duplicate_messages"),
		},
		"custody": map[string]any{
			"seed":   v.GetString("custody.seed"),
			"sealed": v.GetBool("custody.sealed"),
		},
		"outbox": map[string]any{
			"batch_size":      v.GetInt("outbox.batch_size"),
			"max_attempts":    v.GetInt("outbox.max_attempts"),
			"initial_backoff": v.GetDuration("outbox.initial_backoff"),
			"max_backoff":     v.GetDuration("outbox.max_backoff"),
		},
	}, nil
}

var _ core.RawConfigLoader = viperRawConfigLoader{}
