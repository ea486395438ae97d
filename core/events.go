package core

import (
	"strconv"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/google/uuid"
)

const (
	EventDeploymentInitialized  = "paychain.deployment.initialized"
	EventFeeScheduleUpdated     = "paychain.deployment.fee_schedule_updated"
	EventPaymentCreated         = "paychain.payment.created"
	EventPaymentStatusChanged   = "paychain.payment.status_changed"
	EventPaymentCompleted       = "paychain.payment.completed"
	EventPaymentRefunded        = "paychain.payment.refunded"
	EventPaymentRequestCreated  = "paychain.request.created"
	EventRequestPaymentReceived = "paychain.request.paid"
	EventOfframpAllowed         = "paychain.offramp.allowed"
	EventOfframpRevoked         = "paychain.offramp.revoked"
)

// Amounts travel as base-10 strings so JSON consumers never round them.
func formatUint(value uint64) string {
	return strconv.FormatUint(value, 10)
}

func newLifecycleEvent(name string, aggregateID string, payload map[string]any, now time.Time) LifecycleEvent {
	return LifecycleEvent{
		ID:          uuid.NewString(),
		Name:        name,
		AggregateID: aggregateID,
		Payload:     payload,
		Metadata:    map[string]any{},
		OccurredAt:  now.UTC(),
	}
}

func deploymentInitializedEvent(deployment Deployment, now time.Time) LifecycleEvent {
	return newLifecycleEvent(EventDeploymentInitialized, deployment.ProgramID.String(), map[string]any{
		"authority":       deployment.Authority.String(),
		"router":          deployment.Router.String(),
		"chain_id":        deployment.ChainID,
		"fixed_base_fee":  formatUint(deployment.FixedBaseFee),
		"fee_rate_bps":    int(deployment.FeeRateBps),
		"vault_authority": deployment.VaultAuthority.String(),
	}, now)
}

func feeScheduleUpdatedEvent(deployment Deployment, now time.Time) LifecycleEvent {
	return newLifecycleEvent(EventFeeScheduleUpdated, deployment.ProgramID.String(), map[string]any{
		"fee_recipient":  deployment.FeeRecipient.String(),
		"fixed_base_fee": formatUint(deployment.FixedBaseFee),
		"fee_rate_bps":   int(deployment.FeeRateBps),
	}, now)
}

func paymentCreatedEvent(payment Payment, now time.Time) LifecycleEvent {
	return newLifecycleEvent(EventPaymentCreated, payment.ID.String(), map[string]any{
		"payment_id": payment.ID.String(),
		"sender":     payment.Sender.String(),
		"amount":     formatUint(payment.Amount),
		"fee":        formatUint(payment.Fee),
	}, now)
}

func paymentStatusChangedEvent(id Bytes32, from PaymentStatus, to PaymentStatus, now time.Time) LifecycleEvent {
	return newLifecycleEvent(EventPaymentStatusChanged, id.String(), map[string]any{
		"payment_id": id.String(),
		"from":       string(from),
		"to":         string(to),
	}, now)
}

func paymentCompletedEvent(paymentID Bytes32, txHash string, now time.Time) LifecycleEvent {
	return newLifecycleEvent(EventPaymentCompleted, paymentID.String(), map[string]any{
		"payment_id": paymentID.String(),
		"tx_hash":    txHash,
	}, now)
}

func paymentRefundedEvent(payment Payment, now time.Time) LifecycleEvent {
	return newLifecycleEvent(EventPaymentRefunded, payment.ID.String(), map[string]any{
		"payment_id":    payment.ID.String(),
		"refund_amount": formatUint(payment.Amount),
	}, now)
}

func paymentRequestCreatedEvent(request PaymentRequest, now time.Time) LifecycleEvent {
	return newLifecycleEvent(EventPaymentRequestCreated, request.ID, map[string]any{
		"request_id":  request.ID,
		"merchant":    request.Merchant.String(),
		"amount":      formatUint(request.Amount),
		"description": request.Description,
	}, now)
}

func requestPaymentReceivedEvent(requestID string, payer solana.PublicKey, now time.Time) LifecycleEvent {
	return newLifecycleEvent(EventRequestPaymentReceived, requestID, map[string]any{
		"request_id": requestID,
		"payer":      payer.String(),
	}, now)
}

func offrampEvent(name string, entry OfframpEntry, now time.Time) LifecycleEvent {
	return newLifecycleEvent(name, entry.ID.String(), map[string]any{
		"offramp_id":            entry.ID.String(),
		"router":                entry.Router.String(),
		"relay":                 entry.Relay.String(),
		"source_chain_selector": strconv.FormatUint(entry.SourceChainSelector, 10),
	}, now)
}
