package core

import (
	"fmt"
	"strings"
	"time"
)

type FeeConfig struct {
	FixedBaseFee uint64 `koanf:"fixed_base_fee" mapstructure:"fixed_base_fee"`
	FeeRateBps   uint16 `koanf:"fee_rate_bps" mapstructure:"fee_rate_bps"`
}

type RequestConfig struct {
	ExpirySeconds int64 `koanf:"expiry_seconds" mapstructure:"expiry_seconds"`
}

func (c RequestConfig) Expiry() time.Duration {
	if c.ExpirySeconds <= 0 {
		return DefaultRequestExpiry
	}
	return time.Duration(c.ExpirySeconds) * time.Second
}

type SettlementConfig struct {
	StrictAmountDecoding   bool `koanf:"strict_amount_decoding" mapstructure:"strict_amount_decoding"`
	AllowDuplicateMessages bool `koanf:"allow_duplicate_messages" mapstructure:"allow_duplicate_messages"`
}

// CustodyConfig holds the seed the vault authority key is derived from. When
// Sealed is set, Seed is a security envelope opened with the SecretProvider.
type CustodyConfig struct {
	Seed   string `koanf:"seed" mapstructure:"seed"`
	Sealed bool   `koanf:"sealed" mapstructure:"sealed"`
}

type OutboxConfig struct {
	BatchSize      int           `koanf:"batch_size" mapstructure:"batch_size"`
	MaxAttempts    int           `koanf:"max_attempts" mapstructure:"max_attempts"`
	InitialBackoff time.Duration `koanf:"initial_backoff" mapstructure:"initial_backoff"`
	MaxBackoff     time.Duration `koanf:"max_backoff" mapstructure:"max_backoff"`
}

type Config struct {
	ServiceName string           `koanf:"service_name" mapstructure:"service_name"`
	Fees        FeeConfig        `koanf:"fees" mapstructure:"fees"`
	Requests    RequestConfig    `koanf:"requests" mapstructure:"requests"`
	Settlement  SettlementConfig `koanf:"settlement" mapstructure:"settlement"`
	Custody     CustodyConfig    `koanf:"custody" mapstructure:"custody"`
	Outbox      OutboxConfig     `koanf:"outbox" mapstructure:"outbox"`
}

func DefaultConfig() Config {
	return Config{
		ServiceName: "paychain",
		Fees: FeeConfig{
			FixedBaseFee: DefaultFixedBaseFee,
			FeeRateBps:   DefaultFeeRateBps,
		},
		Requests: RequestConfig{
			ExpirySeconds: int64(DefaultRequestExpiry / time.Second),
		},
		Outbox: OutboxConfig{
			BatchSize:      DefaultOutboxBatchSize,
			MaxAttempts:    DefaultOutboxMaxAttempts,
			InitialBackoff: DefaultOutboxInitialBackoff,
			MaxBackoff:     DefaultOutboxMaxBackoff,
		},
	}
}

func (c Config) Validate() error {
	if strings.TrimSpace(c.ServiceName) == "" {
		return fmt.Errorf("core: service_name is required")
	}
	if c.Fees.FeeRateBps > MaxFeeRateBps {
		return fmt.Errorf("core: fees.fee_rate_bps exceeds %d", MaxFeeRateBps)
	}
	if c.Requests.ExpirySeconds <= 0 {
		return fmt.Errorf("core: requests.expiry_seconds must be positive")
	}
	if c.Outbox.BatchSize < 0 || c.Outbox.MaxAttempts < 0 {
		return fmt.Errorf("core: outbox limits must not be negative")
	}
	if c.Outbox.InitialBackoff < 0 || c.Outbox.MaxBackoff < 0 {
		return fmt.Errorf("core: outbox backoff must not be negative")
	}
	return nil
}

// OutboxDispatcherConfig derives the dispatcher settings from the outbox block.
func (c Config) OutboxDispatcherConfig() OutboxDispatcherConfig {
	return OutboxDispatcherConfig{
		BatchSize:      c.Outbox.BatchSize,
		MaxAttempts:    c.Outbox.MaxAttempts,
		InitialBackoff: c.Outbox.InitialBackoff,
		MaxBackoff:     c.Outbox.MaxBackoff,
	}
}
