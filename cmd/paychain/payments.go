package main

import (
	"context"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common/hexutil"
	paychain "github.com/goliatone/go-paychain"
	paychaincommand "github.com/goliatone/go-paychain/command"
	"github.com/goliatone/go-paychain/core"
	"github.com/goliatone/go-paychain/httpapi"
	paychainquery "github.com/goliatone/go-paychain/query"
	"github.com/spf13/cobra"
)

func (c *cli) paymentCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "payment", Short: "Create, refund and inspect outbound payments"}

	var id, sender, token, destChain, destToken, receiver string
	var amount uint64
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Escrow amount plus fee from the sender",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := core.CreatePaymentRequest{DestChainID: destChain, Amount: amount}
			var err error
			if req.PaymentID, err = parseBytes32("id", id); err != nil {
				return err
			}
			if req.PaymentID.IsZero() {
				req.PaymentID = newIdentifier()
			}
			if req.Sender, err = parsePublicKey("sender", sender); err != nil {
				return err
			}
			if req.Token, err = parsePublicKey("token", token); err != nil {
				return err
			}
			if req.DestToken, err = parseAddress("dest-token", destToken); err != nil {
				return err
			}
			if req.Receiver, err = parseAddress("receiver", receiver); err != nil {
				return err
			}
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				payment, err := runCommand[paychaincommand.CreatePaymentMessage, core.Payment](
					ctx, facade.Commands().CreatePayment, paychaincommand.CreatePaymentMessage{Request: req},
				)
				if err != nil {
					return err
				}
				return c.print(httpapi.NewPaymentView(payment, rt.cfg.Amount.Decimals))
			})
		},
	}
	createCmd.Flags().StringVar(&id, "id", "", "payment id, 32 bytes hex (generated when empty)")
	createCmd.Flags().StringVar(&sender, "sender", "", "sender public key")
	createCmd.Flags().StringVar(&token, "token", "", "token mint (native when empty)")
	createCmd.Flags().StringVar(&destChain, "dest-chain", "", "destination chain id")
	createCmd.Flags().StringVar(&destToken, "dest-token", "", "destination token address")
	createCmd.Flags().StringVar(&receiver, "receiver", "", "destination receiver address")
	createCmd.Flags().Uint64Var(&amount, "amount", 0, "amount in base units")

	var refundCaller, refundID string
	refundCmd := &cobra.Command{
		Use:   "refund",
		Short: "Return the amount of a failed payment to its sender",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := core.ProcessRefundRequest{}
			var err error
			if req.Caller, err = parsePublicKey("caller", refundCaller); err != nil {
				return err
			}
			if req.PaymentID, err = parseBytes32("id", refundID); err != nil {
				return err
			}
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				payment, err := runCommand[paychaincommand.ProcessRefundMessage, core.Payment](
					ctx, facade.Commands().ProcessRefund, paychaincommand.ProcessRefundMessage{Request: req},
				)
				if err != nil {
					return err
				}
				return c.print(httpapi.NewPaymentView(payment, rt.cfg.Amount.Decimals))
			})
		},
	}
	refundCmd.Flags().StringVar(&refundCaller, "caller", "", "authority public key")
	refundCmd.Flags().StringVar(&refundID, "id", "", "payment id")

	var transitionCaller, transitionID, status string
	transitionCmd := &cobra.Command{
		Use:   "transition",
		Short: "Move a payment to processing, completed or failed",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := core.TransitionPaymentRequest{Status: core.PaymentStatus(strings.ToLower(strings.TrimSpace(status)))}
			var err error
			if req.Caller, err = parsePublicKey("caller", transitionCaller); err != nil {
				return err
			}
			if req.PaymentID, err = parseBytes32("id", transitionID); err != nil {
				return err
			}
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				payment, err := runCommand[paychaincommand.TransitionPaymentMessage, core.Payment](
					ctx, facade.Commands().TransitionPayment, paychaincommand.TransitionPaymentMessage{Request: req},
				)
				if err != nil {
					return err
				}
				return c.print(httpapi.NewPaymentView(payment, rt.cfg.Amount.Decimals))
			})
		},
	}
	transitionCmd.Flags().StringVar(&transitionCaller, "caller", "", "authority public key")
	transitionCmd.Flags().StringVar(&transitionID, "id", "", "payment id")
	transitionCmd.Flags().StringVar(&status, "status", "", "target status")

	var getID string
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print one payment",
		RunE: func(cmd *cobra.Command, _ []string) error {
			paymentID, err := parseBytes32("id", getID)
			if err != nil {
				return err
			}
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				payment, err := runQuery[paychainquery.GetPaymentMessage, core.Payment](
					ctx, facade.Queries().GetPayment, paychainquery.GetPaymentMessage{PaymentID: paymentID},
				)
				if err != nil {
					return err
				}
				return c.print(httpapi.NewPaymentView(payment, rt.cfg.Amount.Decimals))
			})
		},
	}
	getCmd.Flags().StringVar(&getID, "id", "", "payment id")

	var listSender, listStatus string
	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List payments, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := core.PaymentFilter{Limit: limit}
			var err error
			if filter.Sender, err = parsePublicKey("sender", listSender); err != nil {
				return err
			}
			if strings.TrimSpace(listStatus) != "" {
				if filter.Status, err = core.ParsePaymentStatus(listStatus); err != nil {
					return err
				}
			}
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				payments, err := runQuery[paychainquery.ListPaymentsMessage, []core.Payment](
					ctx, facade.Queries().ListPayments, paychainquery.ListPaymentsMessage{Filter: filter},
				)
				if err != nil {
					return err
				}
				views := make([]httpapi.PaymentView, 0, len(payments))
				for _, payment := range payments {
					views = append(views, httpapi.NewPaymentView(payment, rt.cfg.Amount.Decimals))
				}
				return c.print(views)
			})
		},
	}
	listCmd.Flags().StringVar(&listSender, "sender", "", "filter by sender")
	listCmd.Flags().StringVar(&listStatus, "status", "", "filter by status")
	listCmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")

	cmd.AddCommand(createCmd, refundCmd, transitionCmd, getCmd, listCmd)
	return cmd
}

func (c *cli) requestCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "request", Short: "Merchant payment requests"}

	var id, merchant, receiver, token, description string
	var amount uint64
	createCmd := &cobra.Command{
		Use:   "create",
		Short: "Open a payment request that expires after requests.expiry_seconds",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := core.CreatePaymentRequestInput{RequestID: id, Amount: amount, Description: description}
			var err error
			if in.Merchant, err = parsePublicKey("merchant", merchant); err != nil {
				return err
			}
			if in.Receiver, err = parsePublicKey("receiver", receiver); err != nil {
				return err
			}
			if in.Token, err = parsePublicKey("token", token); err != nil {
				return err
			}
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				request, err := runCommand[paychaincommand.CreatePaymentRequestMessage, core.PaymentRequest](
					ctx, facade.Commands().CreatePaymentRequest, paychaincommand.CreatePaymentRequestMessage{Input: in},
				)
				if err != nil {
					return err
				}
				return c.print(httpapi.NewPaymentRequestView(request, rt.cfg.Amount.Decimals))
			})
		},
	}
	createCmd.Flags().StringVar(&id, "id", "", "request id, at most 32 bytes")
	createCmd.Flags().StringVar(&merchant, "merchant", "", "merchant public key")
	createCmd.Flags().StringVar(&receiver, "receiver", "", "receiver public key")
	createCmd.Flags().StringVar(&token, "token", "", "token mint (native when empty)")
	createCmd.Flags().StringVar(&description, "description", "", "free text, at most 128 bytes")
	createCmd.Flags().Uint64Var(&amount, "amount", 0, "amount in base units")

	var payID, payer string
	payCmd := &cobra.Command{
		Use:   "pay",
		Short: "Pay an open request from the payer's balance",
		RunE: func(cmd *cobra.Command, _ []string) error {
			in := core.PayRequestInput{RequestID: payID}
			var err error
			if in.Payer, err = parsePublicKey("payer", payer); err != nil {
				return err
			}
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				request, err := runCommand[paychaincommand.PayRequestMessage, core.PaymentRequest](
					ctx, facade.Commands().PayRequest, paychaincommand.PayRequestMessage{Input: in},
				)
				if err != nil {
					return err
				}
				return c.print(httpapi.NewPaymentRequestView(request, rt.cfg.Amount.Decimals))
			})
		},
	}
	payCmd.Flags().StringVar(&payID, "id", "", "request id")
	payCmd.Flags().StringVar(&payer, "payer", "", "payer public key")

	var getID string
	getCmd := &cobra.Command{
		Use:   "get",
		Short: "Print one payment request",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				request, err := runQuery[paychainquery.GetPaymentRequestMessage, core.PaymentRequest](
					ctx, facade.Queries().GetPaymentRequest, paychainquery.GetPaymentRequestMessage{RequestID: getID},
				)
				if err != nil {
					return err
				}
				return c.print(httpapi.NewPaymentRequestView(request, rt.cfg.Amount.Decimals))
			})
		},
	}
	getCmd.Flags().StringVar(&getID, "id", "", "request id")

	cmd.AddCommand(createCmd, payCmd, getCmd)
	return cmd
}

func (c *cli) offrampCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "offramp", Short: "Manage the router allow-list of relays"}

	build := func(caller, relay string, selector uint64) (core.OfframpRequest, error) {
		req := core.OfframpRequest{SourceChainSelector: selector}
		var err error
		if req.Caller, err = parsePublicKey("caller", caller); err != nil {
			return req, err
		}
		if req.Relay, err = parsePublicKey("relay", relay); err != nil {
			return req, err
		}
		return req, nil
	}

	var allowCaller, allowRelay string
	var allowSelector uint64
	allowCmd := &cobra.Command{
		Use:   "allow",
		Short: "Allow a relay for a source chain selector",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := build(allowCaller, allowRelay, allowSelector)
			if err != nil {
				return err
			}
			return c.withFacade(cmd, func(ctx context.Context, _ *runtime, facade *paychain.Facade) error {
				entry, err := runCommand[paychaincommand.AllowOfframpMessage, core.OfframpEntry](
					ctx, facade.Commands().AllowOfframp, paychaincommand.AllowOfframpMessage{Request: req},
				)
				if err != nil {
					return err
				}
				return c.print(httpapi.NewOfframpView(entry))
			})
		},
	}
	allowCmd.Flags().StringVar(&allowCaller, "caller", "", "router public key")
	allowCmd.Flags().StringVar(&allowRelay, "relay", "", "relay public key")
	allowCmd.Flags().Uint64Var(&allowSelector, "selector", 0, "source chain selector")

	var revokeCaller, revokeRelay string
	var revokeSelector uint64
	revokeCmd := &cobra.Command{
		Use:   "revoke",
		Short: "Remove a relay from the allow-list",
		RunE: func(cmd *cobra.Command, _ []string) error {
			req, err := build(revokeCaller, revokeRelay, revokeSelector)
			if err != nil {
				return err
			}
			return c.withFacade(cmd, func(ctx context.Context, _ *runtime, facade *paychain.Facade) error {
				msg := paychaincommand.RevokeOfframpMessage{Request: req}
				if err := msg.Validate(); err != nil {
					return err
				}
				if err := facade.Commands().RevokeOfframp.Execute(ctx, msg); err != nil {
					return err
				}
				return c.print(map[string]any{"revoked": true, "relay": req.Relay.String(), "source_chain_selector": fmt.Sprintf("%d", req.SourceChainSelector)})
			})
		},
	}
	revokeCmd.Flags().StringVar(&revokeCaller, "caller", "", "router public key")
	revokeCmd.Flags().StringVar(&revokeRelay, "relay", "", "relay public key")
	revokeCmd.Flags().Uint64Var(&revokeSelector, "selector", 0, "source chain selector")

	cmd.AddCommand(allowCmd, revokeCmd)
	return cmd
}

func (c *cli) settlementCmd() *cobra.Command {
	var paymentID string
	var limit int
	cmd := &cobra.Command{
		Use:   "settlements",
		Short: "List inbound settlements, newest first",
		RunE: func(cmd *cobra.Command, _ []string) error {
			filter := core.SettlementFilter{Limit: limit}
			var err error
			if filter.PaymentID, err = parseBytes32("payment-id", paymentID); err != nil {
				return err
			}
			return c.withFacade(cmd, func(ctx context.Context, rt *runtime, facade *paychain.Facade) error {
				settlements, err := runQuery[paychainquery.ListSettlementsMessage, []core.InboundSettlement](
					ctx, facade.Queries().ListSettlements, paychainquery.ListSettlementsMessage{Filter: filter},
				)
				if err != nil {
					return err
				}
				views := make([]httpapi.SettlementView, 0, len(settlements))
				for _, settlement := range settlements {
					views = append(views, httpapi.NewSettlementView(settlement, rt.cfg.Amount.Decimals))
				}
				return c.print(views)
			})
		},
	}
	cmd.Flags().StringVar(&paymentID, "payment-id", "", "filter by payment id")
	cmd.Flags().IntVar(&limit, "limit", 50, "maximum rows")
	return cmd
}

func (c *cli) swapCmd() *cobra.Command {
	var payer, program, data string
	var accounts []string
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Forward a swap instruction to the configured swap adapter",
		Long: `Forward a swap instruction to the configured swap adapter.

Accounts are pubkey[:s][:w] where s marks a signer and w a writable account.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			req := core.SwapTokensRequest{}
			var err error
			if req.Payer, err = parsePublicKey("payer", payer); err != nil {
				return err
			}
			if req.Instruction.Program, err = parsePublicKey("program", program); err != nil {
				return err
			}
			if strings.TrimSpace(data) != "" {
				if req.Instruction.Data, err = hexutil.Decode(strings.TrimSpace(data)); err != nil {
					return fmt.Errorf("paychain: --data: %w", err)
				}
			}
			for _, raw := range accounts {
				account, err := parseSwapAccount(raw)
				if err != nil {
					return err
				}
				req.Instruction.Accounts = append(req.Instruction.Accounts, account)
			}
			return c.withFacade(cmd, func(ctx context.Context, _ *runtime, facade *paychain.Facade) error {
				result, err := runCommand[paychaincommand.SwapTokensMessage, core.SwapResult](
					ctx, facade.Commands().SwapTokens, paychaincommand.SwapTokensMessage{Request: req},
				)
				if err != nil {
					return err
				}
				return c.print(map[string]any{"reference": result.Reference, "metadata": result.Metadata})
			})
		},
	}
	cmd.Flags().StringVar(&payer, "payer", "", "payer public key")
	cmd.Flags().StringVar(&program, "program", "", "swap program id")
	cmd.Flags().StringVar(&data, "data", "", "instruction data as 0x hex")
	cmd.Flags().StringSliceVar(&accounts, "account", nil, "instruction account, repeatable")
	return cmd
}

func parseSwapAccount(raw string) (core.SwapAccount, error) {
	parts := strings.Split(strings.TrimSpace(raw), ":")
	key, err := parsePublicKey("account", parts[0])
	if err != nil {
		return core.SwapAccount{}, err
	}
	account := core.SwapAccount{PublicKey: key}
	for _, flag := range parts[1:] {
		switch strings.ToLower(flag) {
		case "s", "signer":
			account.IsSigner = true
		case "w", "writable":
			account.IsWritable = true
		default:
			return core.SwapAccount{}, fmt.Errorf("paychain: --account flag %q is not s or w", flag)
		}
	}
	return account, nil
}

func (c *cli) dispatchCmd() *cobra.Command {
	var batchSize int
	cmd := &cobra.Command{
		Use:   "dispatch",
		Short: "Drain one batch of lifecycle events to the event sink",
		RunE: func(cmd *cobra.Command, _ []string) error {
			return c.withFacade(cmd, func(ctx context.Context, _ *runtime, facade *paychain.Facade) error {
				stats, err := runCommand[paychaincommand.DispatchLifecycleMessage, core.DispatchStats](
					ctx, facade.Commands().DispatchLifecycle, paychaincommand.DispatchLifecycleMessage{BatchSize: batchSize},
				)
				if err != nil {
					return err
				}
				return c.print(map[string]any{
					"claimed":   stats.Claimed,
					"delivered": stats.Delivered,
					"retried":   stats.Retried,
					"failed":    stats.Failed,
				})
			})
		},
	}
	cmd.Flags().IntVar(&batchSize, "batch-size", 0, "events per batch (outbox.batch_size when zero)")
	return cmd
}
