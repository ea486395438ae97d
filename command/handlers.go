package command

import (
	"context"

	gocmd "github.com/goliatone/go-command"
	"github.com/goliatone/go-paychain/core"
)

type MutatingService interface {
	Initialize(ctx context.Context, req core.InitializeRequest) (core.Deployment, error)
	UpdateFeeSchedule(ctx context.Context, req core.UpdateFeeScheduleRequest) (core.Deployment, error)
	CreatePayment(ctx context.Context, req core.CreatePaymentRequest) (core.Payment, error)
	ProcessRefund(ctx context.Context, req core.ProcessRefundRequest) (core.Payment, error)
	TransitionPayment(ctx context.Context, req core.TransitionPaymentRequest) (core.Payment, error)
	CreatePaymentRequest(ctx context.Context, in core.CreatePaymentRequestInput) (core.PaymentRequest, error)
	PayRequest(ctx context.Context, in core.PayRequestInput) (core.PaymentRequest, error)
	ReceiveCrossChain(ctx context.Context, req core.ReceiveCrossChainRequest) (core.InboundSettlement, error)
	AllowOfframp(ctx context.Context, req core.OfframpRequest) (core.OfframpEntry, error)
	RevokeOfframp(ctx context.Context, req core.OfframpRequest) error
	SwapTokens(ctx context.Context, req core.SwapTokensRequest) (core.SwapResult, error)
}

type InitializeCommand struct {
	service MutatingService
}

func NewInitializeCommand(service MutatingService) *InitializeCommand {
	return &InitializeCommand{service: service}
}

func (c *InitializeCommand) Execute(ctx context.Context, msg InitializeMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: initialize service is required")
	}
	out, err := c.service.Initialize(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type UpdateFeeScheduleCommand struct {
	service MutatingService
}

func NewUpdateFeeScheduleCommand(service MutatingService) *UpdateFeeScheduleCommand {
	return &UpdateFeeScheduleCommand{service: service}
}

func (c *UpdateFeeScheduleCommand) Execute(ctx context.Context, msg UpdateFeeScheduleMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: fee schedule service is required")
	}
	out, err := c.service.UpdateFeeSchedule(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreatePaymentCommand struct {
	service MutatingService
}

func NewCreatePaymentCommand(service MutatingService) *CreatePaymentCommand {
	return &CreatePaymentCommand{service: service}
}

func (c *CreatePaymentCommand) Execute(ctx context.Context, msg CreatePaymentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: create payment service is required")
	}
	out, err := c.service.CreatePayment(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ProcessRefundCommand struct {
	service MutatingService
}

func NewProcessRefundCommand(service MutatingService) *ProcessRefundCommand {
	return &ProcessRefundCommand{service: service}
}

func (c *ProcessRefundCommand) Execute(ctx context.Context, msg ProcessRefundMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: refund service is required")
	}
	out, err := c.service.ProcessRefund(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type TransitionPaymentCommand struct {
	service MutatingService
}

func NewTransitionPaymentCommand(service MutatingService) *TransitionPaymentCommand {
	return &TransitionPaymentCommand{service: service}
}

func (c *TransitionPaymentCommand) Execute(ctx context.Context, msg TransitionPaymentMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: payment transition service is required")
	}
	out, err := c.service.TransitionPayment(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type CreatePaymentRequestCommand struct {
	service MutatingService
}

func NewCreatePaymentRequestCommand(service MutatingService) *CreatePaymentRequestCommand {
	return &CreatePaymentRequestCommand{service: service}
}

func (c *CreatePaymentRequestCommand) Execute(ctx context.Context, msg CreatePaymentRequestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: payment request service is required")
	}
	out, err := c.service.CreatePaymentRequest(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type PayRequestCommand struct {
	service MutatingService
}

func NewPayRequestCommand(service MutatingService) *PayRequestCommand {
	return &PayRequestCommand{service: service}
}

func (c *PayRequestCommand) Execute(ctx context.Context, msg PayRequestMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: pay request service is required")
	}
	out, err := c.service.PayRequest(ctx, msg.Input)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type ReceiveCrossChainCommand struct {
	service MutatingService
}

func NewReceiveCrossChainCommand(service MutatingService) *ReceiveCrossChainCommand {
	return &ReceiveCrossChainCommand{service: service}
}

func (c *ReceiveCrossChainCommand) Execute(ctx context.Context, msg ReceiveCrossChainMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: relay receive service is required")
	}
	out, err := c.service.ReceiveCrossChain(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type AllowOfframpCommand struct {
	service MutatingService
}

func NewAllowOfframpCommand(service MutatingService) *AllowOfframpCommand {
	return &AllowOfframpCommand{service: service}
}

func (c *AllowOfframpCommand) Execute(ctx context.Context, msg AllowOfframpMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: allow offramp service is required")
	}
	out, err := c.service.AllowOfframp(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type RevokeOfframpCommand struct {
	service MutatingService
}

func NewRevokeOfframpCommand(service MutatingService) *RevokeOfframpCommand {
	return &RevokeOfframpCommand{service: service}
}

func (c *RevokeOfframpCommand) Execute(ctx context.Context, msg RevokeOfframpMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: revoke offramp service is required")
	}
	return c.service.RevokeOfframp(ctx, msg.Request)
}

type SwapTokensCommand struct {
	service MutatingService
}

func NewSwapTokensCommand(service MutatingService) *SwapTokensCommand {
	return &SwapTokensCommand{service: service}
}

func (c *SwapTokensCommand) Execute(ctx context.Context, msg SwapTokensMessage) error {
	if c == nil || c.service == nil {
		return commandDependencyError("command: swap service is required")
	}
	out, err := c.service.SwapTokens(ctx, msg.Request)
	if err != nil {
		return err
	}
	storeResult(ctx, out)
	return nil
}

type DispatchLifecycleCommand struct {
	dispatcher core.LifecycleDispatcher
}

func NewDispatchLifecycleCommand(dispatcher core.LifecycleDispatcher) *DispatchLifecycleCommand {
	return &DispatchLifecycleCommand{dispatcher: dispatcher}
}

func (c *DispatchLifecycleCommand) Execute(ctx context.Context, msg DispatchLifecycleMessage) error {
	if c == nil || c.dispatcher == nil {
		return commandDependencyError("command: lifecycle dispatcher is required")
	}
	stats, err := c.dispatcher.DispatchPending(ctx, msg.BatchSize)
	if err != nil {
		return err
	}
	storeResult(ctx, stats)
	return nil
}

func storeResult[T any](ctx context.Context, value T) {
	collector := gocmd.ResultFromContext[T](ctx)
	if collector == nil {
		return
	}
	collector.Store(value)
}
