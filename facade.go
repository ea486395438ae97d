package paychain

import (
	"fmt"

	paychaincommand "github.com/goliatone/go-paychain/command"
	"github.com/goliatone/go-paychain/core"
	paychainquery "github.com/goliatone/go-paychain/query"
)

type CommandQueryService interface {
	paychaincommand.MutatingService
	paychainquery.DeploymentReader
	paychainquery.PaymentReader
	paychainquery.PaymentRequestReader
	paychainquery.SettlementReader
}

type Commands struct {
	Initialize           *paychaincommand.InitializeCommand
	UpdateFeeSchedule    *paychaincommand.UpdateFeeScheduleCommand
	CreatePayment        *paychaincommand.CreatePaymentCommand
	ProcessRefund        *paychaincommand.ProcessRefundCommand
	TransitionPayment    *paychaincommand.TransitionPaymentCommand
	CreatePaymentRequest *paychaincommand.CreatePaymentRequestCommand
	PayRequest           *paychaincommand.PayRequestCommand
	ReceiveCrossChain    *paychaincommand.ReceiveCrossChainCommand
	AllowOfframp         *paychaincommand.AllowOfframpCommand
	RevokeOfframp        *paychaincommand.RevokeOfframpCommand
	SwapTokens           *paychaincommand.SwapTokensCommand
	DispatchLifecycle    *paychaincommand.DispatchLifecycleCommand
}

type Queries struct {
	GetDeployment     *paychainquery.GetDeploymentQuery
	GetVault          *paychainquery.GetVaultQuery
	GetPayment        *paychainquery.GetPaymentQuery
	ListPayments      *paychainquery.ListPaymentsQuery
	GetPaymentRequest *paychainquery.GetPaymentRequestQuery
	ListSettlements   *paychainquery.ListSettlementsQuery
}

type Facade struct {
	service  CommandQueryService
	commands Commands
	queries  Queries
}

type FacadeOption func(*facadeOptions)

type facadeOptions struct {
	dispatcher core.LifecycleDispatcher
	sinks      []core.EventSink
}

// WithLifecycleDispatcher sets the dispatcher behind Commands().DispatchLifecycle.
func WithLifecycleDispatcher(dispatcher core.LifecycleDispatcher) FacadeOption {
	return func(options *facadeOptions) {
		options.dispatcher = dispatcher
	}
}

// WithEventSinks is used when no dispatcher is given and the service can
// build one over its own outbox.
func WithEventSinks(sinks ...core.EventSink) FacadeOption {
	return func(options *facadeOptions) {
		options.sinks = append(options.sinks, sinks...)
	}
}

func NewFacade(service CommandQueryService, opts ...FacadeOption) (*Facade, error) {
	if service == nil {
		return nil, fmt.Errorf("paychain: command/query service is required")
	}
	cfg := facadeOptions{}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(&cfg)
	}

	dispatcher := cfg.dispatcher
	if dispatcher == nil {
		resolved, err := resolveLifecycleDispatcher(service, cfg.sinks)
		if err != nil {
			return nil, err
		}
		dispatcher = resolved
	}

	facade := &Facade{service: service}
	facade.commands = Commands{
		Initialize:           paychaincommand.NewInitializeCommand(service),
		UpdateFeeSchedule:    paychaincommand.NewUpdateFeeScheduleCommand(service),
		CreatePayment:        paychaincommand.NewCreatePaymentCommand(service),
		ProcessRefund:        paychaincommand.NewProcessRefundCommand(service),
		TransitionPayment:    paychaincommand.NewTransitionPaymentCommand(service),
		CreatePaymentRequest: paychaincommand.NewCreatePaymentRequestCommand(service),
		PayRequest:           paychaincommand.NewPayRequestCommand(service),
		ReceiveCrossChain:    paychaincommand.NewReceiveCrossChainCommand(service),
		AllowOfframp:         paychaincommand.NewAllowOfframpCommand(service),
		RevokeOfframp:        paychaincommand.NewRevokeOfframpCommand(service),
		SwapTokens:           paychaincommand.NewSwapTokensCommand(service),
		DispatchLifecycle:    paychaincommand.NewDispatchLifecycleCommand(dispatcher),
	}
	facade.queries = Queries{
		GetDeployment:     paychainquery.NewGetDeploymentQuery(service),
		GetVault:          paychainquery.NewGetVaultQuery(service),
		GetPayment:        paychainquery.NewGetPaymentQuery(service),
		ListPayments:      paychainquery.NewListPaymentsQuery(service),
		GetPaymentRequest: paychainquery.NewGetPaymentRequestQuery(service),
		ListSettlements:   paychainquery.NewListSettlementsQuery(service),
	}

	return facade, nil
}

func (f *Facade) Commands() Commands {
	if f == nil {
		return Commands{}
	}
	return f.commands
}

func (f *Facade) Queries() Queries {
	if f == nil {
		return Queries{}
	}
	return f.queries
}

func (f *Facade) Service() CommandQueryService {
	if f == nil {
		return nil
	}
	return f.service
}

// resolveLifecycleDispatcher returns nil, leaving DispatchLifecycle to report
// a dependency error, when the service cannot build a dispatcher.
func resolveLifecycleDispatcher(service CommandQueryService, sinks []core.EventSink) (core.LifecycleDispatcher, error) {
	if dispatcher, ok := service.(core.LifecycleDispatcher); ok {
		return dispatcher, nil
	}
	builder, ok := service.(interface {
		NewOutboxDispatcher(sinks ...core.EventSink) (*core.OutboxDispatcher, error)
	})
	if !ok || len(sinks) == 0 {
		return nil, nil
	}
	dispatcher, err := builder.NewOutboxDispatcher(sinks...)
	if err != nil {
		return nil, fmt.Errorf("paychain: build lifecycle dispatcher: %w", err)
	}
	return dispatcher, nil
}
