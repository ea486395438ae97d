package command

import (
	"strings"

	"github.com/goliatone/go-paychain/core"
)

const (
	TypeInitialize           = "paychain.command.deployment.initialize"
	TypeUpdateFeeSchedule    = "paychain.command.deployment.update_fee_schedule"
	TypeCreatePayment        = "paychain.command.payment.create"
	TypeProcessRefund        = "paychain.command.payment.refund"
	TypeTransitionPayment    = "paychain.command.payment.transition"
	TypeCreatePaymentRequest = "paychain.command.request.create"
	TypePayRequest           = "paychain.command.request.pay"
	TypeReceiveCrossChain    = "paychain.command.relay.receive"
	TypeAllowOfframp         = "paychain.command.offramp.allow"
	TypeRevokeOfframp        = "paychain.command.offramp.revoke"
	TypeSwapTokens           = "paychain.command.swap"
	TypeDispatchLifecycle    = "paychain.command.outbox.dispatch"
)

type InitializeMessage struct {
	Request core.InitializeRequest
}

func (InitializeMessage) Type() string { return TypeInitialize }

func (m InitializeMessage) Validate() error {
	if m.Request.Caller.IsZero() {
		return commandValidationError("caller", "caller is required")
	}
	if m.Request.Router.IsZero() {
		return commandValidationError("router", "router is required")
	}
	if m.Request.ProgramID.IsZero() {
		return commandValidationError("program_id", "program id is required")
	}
	if err := validateChainID("chain_id", m.Request.ChainID); err != nil {
		return err
	}
	return nil
}

type UpdateFeeScheduleMessage struct {
	Request core.UpdateFeeScheduleRequest
}

func (UpdateFeeScheduleMessage) Type() string { return TypeUpdateFeeSchedule }

func (m UpdateFeeScheduleMessage) Validate() error {
	if m.Request.Caller.IsZero() {
		return commandValidationError("caller", "caller is required")
	}
	if err := core.ValidateFeeRate(m.Request.FeeRateBps); err != nil {
		return commandWrapValidation(err, "command: fee rate is invalid")
	}
	return nil
}

type CreatePaymentMessage struct {
	Request core.CreatePaymentRequest
}

func (CreatePaymentMessage) Type() string { return TypeCreatePayment }

func (m CreatePaymentMessage) Validate() error {
	if m.Request.PaymentID.IsZero() {
		return commandValidationError("payment_id", "payment id is required")
	}
	if m.Request.Sender.IsZero() {
		return commandValidationError("sender", "sender is required")
	}
	if m.Request.Amount == 0 {
		return commandValidationError("amount", "amount must be greater than zero")
	}
	return validateChainID("dest_chain_id", m.Request.DestChainID)
}

type ProcessRefundMessage struct {
	Request core.ProcessRefundRequest
}

func (ProcessRefundMessage) Type() string { return TypeProcessRefund }

func (m ProcessRefundMessage) Validate() error {
	if m.Request.Caller.IsZero() {
		return commandValidationError("caller", "caller is required")
	}
	if m.Request.PaymentID.IsZero() {
		return commandValidationError("payment_id", "payment id is required")
	}
	return nil
}

type TransitionPaymentMessage struct {
	Request core.TransitionPaymentRequest
}

func (TransitionPaymentMessage) Type() string { return TypeTransitionPayment }

func (m TransitionPaymentMessage) Validate() error {
	if m.Request.Caller.IsZero() {
		return commandValidationError("caller", "caller is required")
	}
	if m.Request.PaymentID.IsZero() {
		return commandValidationError("payment_id", "payment id is required")
	}
	if !m.Request.Status.Valid() {
		return commandValidationError("status", "status must be one of pending, processing, completed, failed, refunded")
	}
	return nil
}

type CreatePaymentRequestMessage struct {
	Input core.CreatePaymentRequestInput
}

func (CreatePaymentRequestMessage) Type() string { return TypeCreatePaymentRequest }

func (m CreatePaymentRequestMessage) Validate() error {
	id := strings.TrimSpace(m.Input.RequestID)
	if id == "" {
		return commandValidationError("request_id", "request id is required")
	}
	if len(id) > core.MaxRequestIDBytes {
		return commandValidationError("request_id", "request id exceeds 32 bytes")
	}
	if m.Input.Merchant.IsZero() {
		return commandValidationError("merchant", "merchant is required")
	}
	if m.Input.Amount == 0 {
		return commandValidationError("amount", "amount must be greater than zero")
	}
	if len(m.Input.Description) > core.MaxDescriptionBytes {
		return commandValidationError("description", "description exceeds 128 bytes")
	}
	return nil
}

type PayRequestMessage struct {
	Input core.PayRequestInput
}

func (PayRequestMessage) Type() string { return TypePayRequest }

func (m PayRequestMessage) Validate() error {
	if strings.TrimSpace(m.Input.RequestID) == "" {
		return commandValidationError("request_id", "request id is required")
	}
	if m.Input.Payer.IsZero() {
		return commandValidationError("payer", "payer is required")
	}
	return nil
}

type ReceiveCrossChainMessage struct {
	Request core.ReceiveCrossChainRequest
}

func (ReceiveCrossChainMessage) Type() string { return TypeReceiveCrossChain }

func (m ReceiveCrossChainMessage) Validate() error {
	if m.Request.Relay.IsZero() {
		return commandValidationError("relay", "relay is required")
	}
	if m.Request.Message.MessageID.IsZero() {
		return commandValidationError("message_id", "message id is required")
	}
	if len(m.Request.Message.Data) == 0 {
		return commandValidationError("data", "message data is required")
	}
	return nil
}

type AllowOfframpMessage struct {
	Request core.OfframpRequest
}

func (AllowOfframpMessage) Type() string { return TypeAllowOfframp }

func (m AllowOfframpMessage) Validate() error {
	return validateOfframp(m.Request)
}

type RevokeOfframpMessage struct {
	Request core.OfframpRequest
}

func (RevokeOfframpMessage) Type() string { return TypeRevokeOfframp }

func (m RevokeOfframpMessage) Validate() error {
	return validateOfframp(m.Request)
}

type SwapTokensMessage struct {
	Request core.SwapTokensRequest
}

func (SwapTokensMessage) Type() string { return TypeSwapTokens }

func (m SwapTokensMessage) Validate() error {
	if m.Request.Payer.IsZero() {
		return commandValidationError("payer", "payer is required")
	}
	if m.Request.Instruction.Program.IsZero() {
		return commandValidationError("program", "swap program is required")
	}
	return nil
}

// DispatchLifecycleMessage drains one batch of committed lifecycle events.
type DispatchLifecycleMessage struct {
	BatchSize int
}

func (DispatchLifecycleMessage) Type() string { return TypeDispatchLifecycle }

func (m DispatchLifecycleMessage) Validate() error {
	if m.BatchSize < 0 {
		return commandValidationError("batch_size", "batch size must be >= 0")
	}
	return nil
}

func validateOfframp(req core.OfframpRequest) error {
	if req.Caller.IsZero() {
		return commandValidationError("caller", "caller is required")
	}
	if req.Relay.IsZero() {
		return commandValidationError("relay", "relay is required")
	}
	return nil
}

func validateChainID(field string, value string) error {
	value = strings.TrimSpace(value)
	if value == "" {
		return commandValidationError(field, "chain id is required")
	}
	if len(value) > core.MaxChainIDBytes {
		return commandInvalidInputError("command: " + field + " exceeds 64 bytes")
	}
	return nil
}
