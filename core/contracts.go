package core

import (
	"context"
	"fmt"
	"time"

	bin "github.com/gagliardetto/binary"
	"github.com/gagliardetto/solana-go"
	glog "github.com/goliatone/go-logger/glog"
)

type Logger = glog.Logger

type LoggerProvider = glog.LoggerProvider

type FieldsLogger = glog.FieldsLogger

type MetricsRecorder interface {
	IncCounter(ctx context.Context, name string, value int64, tags map[string]string)
	ObserveHistogram(ctx context.Context, name string, value float64, tags map[string]string)
}

type SecretProvider interface {
	Encrypt(ctx context.Context, plaintext []byte) ([]byte, error)
	Decrypt(ctx context.Context, ciphertext []byte) ([]byte, error)
}

type TransferKind string

const (
	TransferKindDeposit TransferKind = "deposit"
	TransferKindRelease TransferKind = "release"
	TransferKindRefund  TransferKind = "refund"
	TransferKindDirect  TransferKind = "direct"
)

// TransferInstruction asks the ledger to move Amount from From to To. Vault
// outflows carry a Signature by the vault authority over Digest().
type TransferInstruction struct {
	Kind      TransferKind
	From      solana.PublicKey
	To        solana.PublicKey
	Token     solana.PublicKey
	Amount    uint64
	Reference string
	Signature solana.Signature
}

type transferDigest struct {
	Kind      string
	From      solana.PublicKey
	To        solana.PublicKey
	Token     solana.PublicKey
	Amount    uint64
	Reference string
}

// Digest is the borsh encoding of every field except the signature.
func (i TransferInstruction) Digest() ([]byte, error) {
	encoded, err := bin.MarshalBorsh(&transferDigest{
		Kind:      string(i.Kind),
		From:      i.From,
		To:        i.To,
		Token:     i.Token,
		Amount:    i.Amount,
		Reference: i.Reference,
	})
	if err != nil {
		return nil, fmt.Errorf("core: encode transfer digest: %w", err)
	}
	return encoded, nil
}

type TransferReceipt struct {
	Reference string
	SettledAt time.Time
}

// TokenLedger performs the actual debit/credit of fungible balances. A
// returned error aborts the surrounding unit of work.
type TokenLedger interface {
	Transfer(ctx context.Context, instruction TransferInstruction) (TransferReceipt, error)
}

// SwapExecutor forwards an opaque instruction to an external exchange.
type SwapExecutor interface {
	Execute(ctx context.Context, caller solana.PublicKey, instruction SwapInstruction) (SwapResult, error)
}

type PaymentFilter struct {
	Sender solana.PublicKey
	Status PaymentStatus
	Limit  int
}

type SettlementFilter struct {
	PaymentID Bytes32
	Limit     int
}

type SettlementReader interface {
	GetDeployment(ctx context.Context) (Deployment, error)
	GetVault(ctx context.Context) (Vault, error)
	GetPayment(ctx context.Context, id Bytes32) (Payment, error)
	ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error)
	GetPaymentRequest(ctx context.Context, id string) (PaymentRequest, error)
	ListSettlements(ctx context.Context, filter SettlementFilter) ([]InboundSettlement, error)
}

// SettlementUnit is the view of storage inside one atomic unit. Every
// mutation either commits with the unit or not at all.
type SettlementUnit interface {
	Deployment(ctx context.Context) (Deployment, error)
	CreateDeployment(ctx context.Context, deployment Deployment) error
	UpdateDeployment(ctx context.Context, deployment Deployment) error

	Vault(ctx context.Context) (Vault, error)
	CreateVault(ctx context.Context, vault Vault) error
	CreditVault(ctx context.Context, amount uint64, at time.Time) (Vault, error)
	DebitVault(ctx context.Context, amount uint64, at time.Time) (Vault, error)

	Payment(ctx context.Context, id Bytes32) (Payment, error)
	CreatePayment(ctx context.Context, payment Payment) error
	TransitionPayment(ctx context.Context, id Bytes32, from PaymentStatus, to PaymentStatus, at time.Time) error

	PaymentRequest(ctx context.Context, id string) (PaymentRequest, error)
	CreatePaymentRequest(ctx context.Context, request PaymentRequest) error
	MarkPaymentRequestPaid(ctx context.Context, id string, payer solana.PublicKey, at time.Time) error

	ConsumeMessage(ctx context.Context, messageID Bytes32, at time.Time) (bool, error)
	RecordSettlement(ctx context.Context, settlement InboundSettlement) error

	Offramp(ctx context.Context, id Bytes32) (OfframpEntry, error)
	PutOfframp(ctx context.Context, entry OfframpEntry) error
	DeleteOfframp(ctx context.Context, id Bytes32) error

	AppendEvent(ctx context.Context, event LifecycleEvent) error
}

type SettlementStore interface {
	SettlementReader
	RunInUnit(ctx context.Context, fn func(ctx context.Context, unit SettlementUnit) error) error
}

type LifecycleEvent struct {
	ID          string
	Name        string
	AggregateID string
	Payload     map[string]any
	Metadata    map[string]any
	OccurredAt  time.Time
}

type OutboxStore interface {
	ClaimBatch(ctx context.Context, limit int) ([]LifecycleEvent, error)
	Ack(ctx context.Context, eventID string) error
	Retry(ctx context.Context, eventID string, cause error, nextAttemptAt time.Time) error
}

// EventSink publishes committed lifecycle events to the outside world.
type EventSink interface {
	Publish(ctx context.Context, event LifecycleEvent) error
}

type DispatchStats struct {
	Claimed   int
	Delivered int
	Retried   int
	Failed    int
}

type LifecycleDispatcher interface {
	DispatchPending(ctx context.Context, batchSize int) (DispatchStats, error)
}

type ReplayLedger interface {
	Claim(ctx context.Context, key string, ttl time.Duration) (bool, error)
}

type StoreProvider interface {
	SettlementStore() SettlementStore
	OutboxStore() OutboxStore
}

type RepositoryStoreFactory interface {
	BuildStores(persistenceClient any) (StoreProvider, error)
}

// SettlementService is the operation surface shared by the command, query,
// inbound and HTTP layers.
type SettlementService interface {
	Initialize(ctx context.Context, req InitializeRequest) (Deployment, error)
	UpdateFeeSchedule(ctx context.Context, req UpdateFeeScheduleRequest) (Deployment, error)

	CreatePayment(ctx context.Context, req CreatePaymentRequest) (Payment, error)
	ProcessRefund(ctx context.Context, req ProcessRefundRequest) (Payment, error)
	TransitionPayment(ctx context.Context, req TransitionPaymentRequest) (Payment, error)

	CreatePaymentRequest(ctx context.Context, in CreatePaymentRequestInput) (PaymentRequest, error)
	PayRequest(ctx context.Context, in PayRequestInput) (PaymentRequest, error)

	ReceiveCrossChain(ctx context.Context, req ReceiveCrossChainRequest) (InboundSettlement, error)
	AllowOfframp(ctx context.Context, req OfframpRequest) (OfframpEntry, error)
	RevokeOfframp(ctx context.Context, req OfframpRequest) error

	SwapTokens(ctx context.Context, req SwapTokensRequest) (SwapResult, error)

	SettlementReader
}
