package command

import gocmd "github.com/goliatone/go-command"

var (
	_ gocmd.Commander[InitializeMessage]           = (*InitializeCommand)(nil)
	_ gocmd.Commander[UpdateFeeScheduleMessage]    = (*UpdateFeeScheduleCommand)(nil)
	_ gocmd.Commander[CreatePaymentMessage]        = (*CreatePaymentCommand)(nil)
	_ gocmd.Commander[ProcessRefundMessage]        = (*ProcessRefundCommand)(nil)
	_ gocmd.Commander[TransitionPaymentMessage]    = (*TransitionPaymentCommand)(nil)
	_ gocmd.Commander[CreatePaymentRequestMessage] = (*CreatePaymentRequestCommand)(nil)
	_ gocmd.Commander[PayRequestMessage]           = (*PayRequestCommand)(nil)
	_ gocmd.Commander[ReceiveCrossChainMessage]    = (*ReceiveCrossChainCommand)(nil)
	_ gocmd.Commander[AllowOfframpMessage]         = (*AllowOfframpCommand)(nil)
	_ gocmd.Commander[RevokeOfframpMessage]        = (*RevokeOfframpCommand)(nil)
	_ gocmd.Commander[SwapTokensMessage]           = (*SwapTokensCommand)(nil)
	_ gocmd.Commander[DispatchLifecycleMessage]    = (*DispatchLifecycleCommand)(nil)
)
