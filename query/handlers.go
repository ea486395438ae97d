package query

import (
	"context"
	"strings"

	"github.com/goliatone/go-paychain/core"
)

type DeploymentReader interface {
	GetDeployment(ctx context.Context) (core.Deployment, error)
	GetVault(ctx context.Context) (core.Vault, error)
}

type PaymentReader interface {
	GetPayment(ctx context.Context, id core.Bytes32) (core.Payment, error)
	ListPayments(ctx context.Context, filter core.PaymentFilter) ([]core.Payment, error)
}

type PaymentRequestReader interface {
	GetPaymentRequest(ctx context.Context, id string) (core.PaymentRequest, error)
}

type SettlementReader interface {
	ListSettlements(ctx context.Context, filter core.SettlementFilter) ([]core.InboundSettlement, error)
}

type GetDeploymentQuery struct {
	reader DeploymentReader
}

func NewGetDeploymentQuery(reader DeploymentReader) *GetDeploymentQuery {
	return &GetDeploymentQuery{reader: reader}
}

func (q *GetDeploymentQuery) Query(ctx context.Context, _ GetDeploymentMessage) (core.Deployment, error) {
	if q == nil || q.reader == nil {
		return core.Deployment{}, queryDependencyError("query: deployment reader is required")
	}
	return q.reader.GetDeployment(ctx)
}

type GetVaultQuery struct {
	reader DeploymentReader
}

func NewGetVaultQuery(reader DeploymentReader) *GetVaultQuery {
	return &GetVaultQuery{reader: reader}
}

func (q *GetVaultQuery) Query(ctx context.Context, _ GetVaultMessage) (core.Vault, error) {
	if q == nil || q.reader == nil {
		return core.Vault{}, queryDependencyError("query: deployment reader is required")
	}
	return q.reader.GetVault(ctx)
}

type GetPaymentQuery struct {
	reader PaymentReader
}

func NewGetPaymentQuery(reader PaymentReader) *GetPaymentQuery {
	return &GetPaymentQuery{reader: reader}
}

func (q *GetPaymentQuery) Query(ctx context.Context, msg GetPaymentMessage) (core.Payment, error) {
	if q == nil || q.reader == nil {
		return core.Payment{}, queryDependencyError("query: payment reader is required")
	}
	return q.reader.GetPayment(ctx, msg.PaymentID)
}

type ListPaymentsQuery struct {
	reader PaymentReader
}

func NewListPaymentsQuery(reader PaymentReader) *ListPaymentsQuery {
	return &ListPaymentsQuery{reader: reader}
}

func (q *ListPaymentsQuery) Query(ctx context.Context, msg ListPaymentsMessage) ([]core.Payment, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: payment reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListPayments(ctx, msg.Filter)
}

type GetPaymentRequestQuery struct {
	reader PaymentRequestReader
}

func NewGetPaymentRequestQuery(reader PaymentRequestReader) *GetPaymentRequestQuery {
	return &GetPaymentRequestQuery{reader: reader}
}

func (q *GetPaymentRequestQuery) Query(ctx context.Context, msg GetPaymentRequestMessage) (core.PaymentRequest, error) {
	if q == nil || q.reader == nil {
		return core.PaymentRequest{}, queryDependencyError("query: payment request reader is required")
	}
	return q.reader.GetPaymentRequest(ctx, strings.TrimSpace(msg.RequestID))
}

type ListSettlementsQuery struct {
	reader SettlementReader
}

func NewListSettlementsQuery(reader SettlementReader) *ListSettlementsQuery {
	return &ListSettlementsQuery{reader: reader}
}

func (q *ListSettlementsQuery) Query(ctx context.Context, msg ListSettlementsMessage) ([]core.InboundSettlement, error) {
	if q == nil || q.reader == nil {
		return nil, queryDependencyError("query: settlement reader is required")
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return q.reader.ListSettlements(ctx, msg.Filter)
}
