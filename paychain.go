package paychain

import "github.com/goliatone/go-paychain/core"

type Config = core.Config

type Option = core.Option

type Service = core.Service

type ServiceDependencies = core.ServiceDependencies
type SettlementStore = core.SettlementStore
type OutboxStore = core.OutboxStore
type TokenLedger = core.TokenLedger
type SwapExecutor = core.SwapExecutor
type EventSink = core.EventSink

type InitializeRequest = core.InitializeRequest
type CreatePaymentRequest = core.CreatePaymentRequest
type ProcessRefundRequest = core.ProcessRefundRequest

type CreatePaymentRequestInput = core.CreatePaymentRequestInput
type PayRequestInput = core.PayRequestInput

type ReceiveCrossChainRequest = core.ReceiveCrossChainRequest

var (
	WithLogger            = core.WithLogger
	WithLoggerProvider    = core.WithLoggerProvider
	WithMetricsRecorder   = core.WithMetricsRecorder
	WithErrorFactory      = core.WithErrorFactory
	WithErrorMapper       = core.WithErrorMapper
	WithSecretProvider    = core.WithSecretProvider
	WithPersistenceClient = core.WithPersistenceClient
	WithRepositoryFactory = core.WithRepositoryFactory
	WithConfigProvider    = core.WithConfigProvider
	WithOptionsResolver   = core.WithOptionsResolver
	WithSettlementStore   = core.WithSettlementStore
	WithOutboxStore       = core.WithOutboxStore
	WithTokenLedger       = core.WithTokenLedger
	WithSwapExecutor      = core.WithSwapExecutor
	WithClock             = core.WithClock
)

func DefaultConfig() Config {
	return core.DefaultConfig()
}

func NewService(cfg Config, opts ...Option) (*Service, error) {
	return core.NewService(cfg, opts...)
}

func Setup(cfg Config, opts ...Option) (*Service, error) {
	return core.Setup(cfg, opts...)
}
