package query

import (
	"strings"

	"github.com/goliatone/go-paychain/core"
)

const (
	TypeGetDeployment     = "paychain.query.deployment.get"
	TypeGetVault          = "paychain.query.vault.get"
	TypeGetPayment        = "paychain.query.payment.get"
	TypeListPayments      = "paychain.query.payment.list"
	TypeGetPaymentRequest = "paychain.query.request.get"
	TypeListSettlements   = "paychain.query.settlement.list"

	MaxListLimit = 500
)

type GetDeploymentMessage struct{}

func (GetDeploymentMessage) Type() string { return TypeGetDeployment }

func (GetDeploymentMessage) Validate() error { return nil }

type GetVaultMessage struct{}

func (GetVaultMessage) Type() string { return TypeGetVault }

func (GetVaultMessage) Validate() error { return nil }

type GetPaymentMessage struct {
	PaymentID core.Bytes32
}

func (GetPaymentMessage) Type() string { return TypeGetPayment }

func (m GetPaymentMessage) Validate() error {
	if m.PaymentID.IsZero() {
		return queryValidationError("payment_id", "payment id is required")
	}
	return nil
}

type ListPaymentsMessage struct {
	Filter core.PaymentFilter
}

func (ListPaymentsMessage) Type() string { return TypeListPayments }

func (m ListPaymentsMessage) Validate() error {
	if m.Filter.Status != "" && !m.Filter.Status.Valid() {
		return queryValidationError("status", "unknown payment status")
	}
	return validateLimit(m.Filter.Limit)
}

type GetPaymentRequestMessage struct {
	RequestID string
}

func (GetPaymentRequestMessage) Type() string { return TypeGetPaymentRequest }

func (m GetPaymentRequestMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return queryValidationError("request_id", "request id is required")
	}
	return nil
}

type ListSettlementsMessage struct {
	Filter core.SettlementFilter
}

func (ListSettlementsMessage) Type() string { return TypeListSettlements }

func (m ListSettlementsMessage) Validate() error {
	return validateLimit(m.Filter.Limit)
}

func validateLimit(limit int) error {
	if limit < 0 {
		return queryValidationError("limit", "limit must be >= 0")
	}
	if limit > MaxListLimit {
		return queryInvalidInputError("query: limit exceeds 500")
	}
	return nil
}
