package sqlstore

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/goliatone/go-paychain/core"
)

const (
	deploymentRowID = "deployment"
	vaultRowID      = "vault"
)

// Amounts are stored as signed 64-bit columns; values above MaxInt64 are
// refused rather than wrapped.
func toColumnAmount(field string, value uint64) (int64, error) {
	if value > math.MaxInt64 {
		return 0, fmt.Errorf("sqlstore: %s %d exceeds the storable range", field, value)
	}
	return int64(value), nil
}

func fromColumnAmount(field string, value int64) (uint64, error) {
	if value < 0 {
		return 0, fmt.Errorf("sqlstore: stored %s %d is negative", field, value)
	}
	return uint64(value), nil
}

func encodeKey(key solana.PublicKey) string {
	if key.IsZero() {
		return ""
	}
	return key.String()
}

func decodeKey(field string, value string) (solana.PublicKey, error) {
	value = strings.TrimSpace(value)
	if value == "" {
		return solana.PublicKey{}, nil
	}
	key, err := solana.PublicKeyFromBase58(value)
	if err != nil {
		return solana.PublicKey{}, fmt.Errorf("sqlstore: decode %s: %w", field, err)
	}
	return key, nil
}

func decodeBytes32(field string, value string) (core.Bytes32, error) {
	if strings.TrimSpace(value) == "" {
		return core.Bytes32{}, nil
	}
	parsed, err := core.ParseBytes32(value)
	if err != nil {
		return core.Bytes32{}, fmt.Errorf("sqlstore: decode %s: %w", field, err)
	}
	return parsed, nil
}

func encodeSelector(selector uint64) string {
	return strconv.FormatUint(selector, 10)
}

func decodeSelector(value string) (uint64, error) {
	selector, err := strconv.ParseUint(strings.TrimSpace(value), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("sqlstore: decode source chain selector: %w", err)
	}
	return selector, nil
}

func newDeploymentRecord(in core.Deployment) (*deploymentRecord, error) {
	fixedFee, err := toColumnAmount("fixed base fee", in.FixedBaseFee)
	if err != nil {
		return nil, err
	}
	return &deploymentRecord{
		ID:             deploymentRowID,
		Authority:      encodeKey(in.Authority),
		FeeRecipient:   encodeKey(in.FeeRecipient),
		Router:         encodeKey(in.Router),
		ProgramID:      encodeKey(in.ProgramID),
		VaultAuthority: encodeKey(in.VaultAuthority),
		ChainID:        in.ChainID,
		FixedBaseFee:   fixedFee,
		FeeRateBps:     int(in.FeeRateBps),
		CreatedAt:      in.CreatedAt.UTC(),
		UpdatedAt:      in.UpdatedAt.UTC(),
	}, nil
}

func (r *deploymentRecord) toDomain() (core.Deployment, error) {
	if r == nil {
		return core.Deployment{}, core.ErrNotInitialized
	}
	var err error
	out := core.Deployment{
		ChainID:   r.ChainID,
		CreatedAt: r.CreatedAt.UTC(),
		UpdatedAt: r.UpdatedAt.UTC(),
	}
	if out.Authority, err = decodeKey("authority", r.Authority); err != nil {
		return core.Deployment{}, err
	}
	if out.FeeRecipient, err = decodeKey("fee recipient", r.FeeRecipient); err != nil {
		return core.Deployment{}, err
	}
	if out.Router, err = decodeKey("router", r.Router); err != nil {
		return core.Deployment{}, err
	}
	if out.ProgramID, err = decodeKey("program id", r.ProgramID); err != nil {
		return core.Deployment{}, err
	}
	if out.VaultAuthority, err = decodeKey("vault authority", r.VaultAuthority); err != nil {
		return core.Deployment{}, err
	}
	if out.FixedBaseFee, err = fromColumnAmount("fixed base fee", r.FixedBaseFee); err != nil {
		return core.Deployment{}, err
	}
	if r.FeeRateBps < 0 || r.FeeRateBps > core.MaxFeeRateBps {
		return core.Deployment{}, fmt.Errorf("sqlstore: stored fee rate %d is out of range", r.FeeRateBps)
	}
	out.FeeRateBps = uint16(r.FeeRateBps)
	return out, nil
}

func newVaultRecord(in core.Vault) (*vaultRecord, error) {
	balance, err := toColumnAmount("vault balance", in.Balance)
	if err != nil {
		return nil, err
	}
	return &vaultRecord{
		ID:        vaultRowID,
		Authority: encodeKey(in.Authority),
		Balance:   balance,
		UpdatedAt: in.UpdatedAt.UTC(),
	}, nil
}

func (r *vaultRecord) toDomain() (core.Vault, error) {
	if r == nil {
		return core.Vault{}, core.ErrNotInitialized
	}
	authority, err := decodeKey("vault authority", r.Authority)
	if err != nil {
		return core.Vault{}, err
	}
	balance, err := fromColumnAmount("vault balance", r.Balance)
	if err != nil {
		return core.Vault{}, err
	}
	return core.Vault{Authority: authority, Balance: balance, UpdatedAt: r.UpdatedAt.UTC()}, nil
}

func newPaymentRecord(in core.Payment) (*paymentRecord, error) {
	amount, err := toColumnAmount("amount", in.Amount)
	if err != nil {
		return nil, err
	}
	fee, err := toColumnAmount("fee", in.Fee)
	if err != nil {
		return nil, err
	}
	return &paymentRecord{
		ID:            in.ID.String(),
		Sender:        encodeKey(in.Sender),
		Token:         encodeKey(in.Token),
		Receiver:      in.Receiver.String(),
		SourceChainID: in.SourceChainID,
		DestChainID:   in.DestChainID,
		DestToken:     in.DestToken.String(),
		Amount:        amount,
		Fee:           fee,
		Status:        string(in.Status),
		CreatedAt:     in.CreatedAt.UTC(),
		UpdatedAt:     in.UpdatedAt.UTC(),
	}, nil
}

func (r *paymentRecord) toDomain() (core.Payment, error) {
	if r == nil {
		return core.Payment{}, core.ErrPaymentNotFound
	}
	var err error
	out := core.Payment{
		SourceChainID: r.SourceChainID,
		DestChainID:   r.DestChainID,
		Status:        core.PaymentStatus(r.Status),
		CreatedAt:     r.CreatedAt.UTC(),
		UpdatedAt:     r.UpdatedAt.UTC(),
	}
	if out.ID, err = decodeBytes32("payment id", r.ID); err != nil {
		return core.Payment{}, err
	}
	if out.Sender, err = decodeKey("sender", r.Sender); err != nil {
		return core.Payment{}, err
	}
	if out.Token, err = decodeKey("token", r.Token); err != nil {
		return core.Payment{}, err
	}
	if out.Receiver, err = decodeBytes32("receiver", r.Receiver); err != nil {
		return core.Payment{}, err
	}
	if out.DestToken, err = decodeBytes32("dest token", r.DestToken); err != nil {
		return core.Payment{}, err
	}
	if out.Amount, err = fromColumnAmount("amount", r.Amount); err != nil {
		return core.Payment{}, err
	}
	if out.Fee, err = fromColumnAmount("fee", r.Fee); err != nil {
		return core.Payment{}, err
	}
	return out, nil
}

func newPaymentRequestRecord(in core.PaymentRequest) (*paymentRequestRecord, error) {
	amount, err := toColumnAmount("amount", in.Amount)
	if err != nil {
		return nil, err
	}
	record := &paymentRequestRecord{
		ID:          in.ID,
		Merchant:    encodeKey(in.Merchant),
		Receiver:    encodeKey(in.Receiver),
		Token:       encodeKey(in.Token),
		Amount:      amount,
		Description: in.Description,
		IsPaid:      in.IsPaid,
		ExpiresAt:   in.ExpiresAt.UTC(),
		CreatedAt:   in.CreatedAt.UTC(),
	}
	if in.Payer != nil {
		payer := encodeKey(*in.Payer)
		record.Payer = &payer
	}
	if in.PaidAt != nil {
		paidAt := in.PaidAt.UTC()
		record.PaidAt = &paidAt
	}
	return record, nil
}

func (r *paymentRequestRecord) toDomain() (core.PaymentRequest, error) {
	if r == nil {
		return core.PaymentRequest{}, core.ErrPaymentRequestNotFound
	}
	var err error
	out := core.PaymentRequest{
		ID:          r.ID,
		Description: r.Description,
		IsPaid:      r.IsPaid,
		ExpiresAt:   r.ExpiresAt.UTC(),
		CreatedAt:   r.CreatedAt.UTC(),
	}
	if out.Merchant, err = decodeKey("merchant", r.Merchant); err != nil {
		return core.PaymentRequest{}, err
	}
	if out.Receiver, err = decodeKey("receiver", r.Receiver); err != nil {
		return core.PaymentRequest{}, err
	}
	if out.Token, err = decodeKey("token", r.Token); err != nil {
		return core.PaymentRequest{}, err
	}
	if out.Amount, err = fromColumnAmount("amount", r.Amount); err != nil {
		return core.PaymentRequest{}, err
	}
	if r.Payer != nil {
		payer, err := decodeKey("payer", *r.Payer)
		if err != nil {
			return core.PaymentRequest{}, err
		}
		out.Payer = &payer
	}
	if r.PaidAt != nil {
		paidAt := r.PaidAt.UTC()
		out.PaidAt = &paidAt
	}
	return out, nil
}

func newSettlementRecord(id string, in core.InboundSettlement) (*settlementRecord, error) {
	amount, err := toColumnAmount("amount", in.Amount)
	if err != nil {
		return nil, err
	}
	return &settlementRecord{
		ID:                  id,
		MessageID:           in.MessageID.String(),
		PaymentID:           in.PaymentID.String(),
		SourceChainSelector: encodeSelector(in.SourceChainSelector),
		Relay:               encodeKey(in.Relay),
		Sender:              in.Sender.String(),
		Receiver:            in.Receiver.String(),
		Amount:              amount,
		TxHash:              in.TxHash,
		SettledAt:           in.SettledAt.UTC(),
	}, nil
}

func (r *settlementRecord) toDomain() (core.InboundSettlement, error) {
	var err error
	out := core.InboundSettlement{
		TxHash:    r.TxHash,
		SettledAt: r.SettledAt.UTC(),
	}
	if out.MessageID, err = decodeBytes32("message id", r.MessageID); err != nil {
		return core.InboundSettlement{}, err
	}
	if out.PaymentID, err = decodeBytes32("payment id", r.PaymentID); err != nil {
		return core.InboundSettlement{}, err
	}
	if out.SourceChainSelector, err = decodeSelector(r.SourceChainSelector); err != nil {
		return core.InboundSettlement{}, err
	}
	if out.Relay, err = decodeKey("relay", r.Relay); err != nil {
		return core.InboundSettlement{}, err
	}
	if out.Sender, err = decodeBytes32("sender", r.Sender); err != nil {
		return core.InboundSettlement{}, err
	}
	if out.Receiver, err = decodeBytes32("receiver", r.Receiver); err != nil {
		return core.InboundSettlement{}, err
	}
	if out.Amount, err = fromColumnAmount("amount", r.Amount); err != nil {
		return core.InboundSettlement{}, err
	}
	return out, nil
}

func newOfframpRecord(in core.OfframpEntry) *offrampRecord {
	return &offrampRecord{
		ID:                  in.ID.String(),
		Router:              encodeKey(in.Router),
		SourceChainSelector: encodeSelector(in.SourceChainSelector),
		Relay:               encodeKey(in.Relay),
		CreatedAt:           in.CreatedAt.UTC(),
	}
}

func (r *offrampRecord) toDomain() (core.OfframpEntry, error) {
	var err error
	out := core.OfframpEntry{CreatedAt: r.CreatedAt.UTC()}
	if out.ID, err = decodeBytes32("offramp id", r.ID); err != nil {
		return core.OfframpEntry{}, err
	}
	if out.Router, err = decodeKey("router", r.Router); err != nil {
		return core.OfframpEntry{}, err
	}
	if out.SourceChainSelector, err = decodeSelector(r.SourceChainSelector); err != nil {
		return core.OfframpEntry{}, err
	}
	if out.Relay, err = decodeKey("relay", r.Relay); err != nil {
		return core.OfframpEntry{}, err
	}
	return out, nil
}

func newOutboxRecord(id string, event core.LifecycleEvent, now time.Time) *lifecycleOutboxRecord {
	occurredAt := event.OccurredAt.UTC()
	if occurredAt.IsZero() {
		occurredAt = now
	}
	return &lifecycleOutboxRecord{
		ID:          id,
		EventID:     strings.TrimSpace(event.ID),
		EventName:   strings.TrimSpace(event.Name),
		AggregateID: strings.TrimSpace(event.AggregateID),
		Payload:     copyAnyMap(event.Payload),
		Metadata:    copyAnyMap(event.Metadata),
		Status:      outboxStatusPending,
		Attempts:    0,
		LastError:   "",
		OccurredAt:  occurredAt,
		CreatedAt:   now,
		UpdatedAt:   now,
	}
}

func outboxRecordToEvent(record lifecycleOutboxRecord) core.LifecycleEvent {
	event := core.LifecycleEvent{
		ID:          record.EventID,
		Name:        record.EventName,
		AggregateID: record.AggregateID,
		Payload:     copyAnyMap(record.Payload),
		Metadata:    copyAnyMap(record.Metadata),
		OccurredAt:  record.OccurredAt,
	}
	event.Metadata[core.MetadataKeyOutboxAttempts] = record.Attempts
	return event
}

func copyAnyMap(in map[string]any) map[string]any {
	if len(in) == 0 {
		return map[string]any{}
	}
	out := make(map[string]any, len(in))
	for key, value := range in {
		out[key] = value
	}
	return out
}
