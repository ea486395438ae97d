package query

import (
	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-paychain/core"
)

var (
	_ gocmd.Querier[GetDeploymentMessage, core.Deployment]            = (*GetDeploymentQuery)(nil)
	_ gocmd.Querier[GetVaultMessage, core.Vault]                      = (*GetVaultQuery)(nil)
	_ gocmd.Querier[GetPaymentMessage, core.Payment]                  = (*GetPaymentQuery)(nil)
	_ gocmd.Querier[ListPaymentsMessage, []core.Payment]              = (*ListPaymentsQuery)(nil)
	_ gocmd.Querier[GetPaymentRequestMessage, core.PaymentRequest]    = (*GetPaymentRequestQuery)(nil)
	_ gocmd.Querier[ListSettlementsMessage, []core.InboundSettlement] = (*ListSettlementsQuery)(nil)
)
