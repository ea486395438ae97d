package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/goliatone/go-paychain/core"
	"github.com/goliatone/go-paychain/httpapi"
	"github.com/goliatone/go-paychain/inbound"
	"github.com/spf13/cobra"
)

func (c *cli) relayCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "relay", Short: "Build and deliver cross-chain relay messages"}
	cmd.AddCommand(c.relayEncodeCmd(), c.relayReceiveCmd())
	return cmd
}

// relayEncodeCmd signs an execution capability with the relay key and prints
// the JSON envelope POST /v1/relay/messages and relay receive accept.
func (c *cli) relayEncodeCmd() *cobra.Command {
	var relayKey, program, messageID, sender, paymentID, receiver string
	var selector, amount uint64
	cmd := &cobra.Command{
		Use:   "encode",
		Short: "Print a signed relay envelope for a settlement payload",
		RunE: func(cmd *cobra.Command, _ []string) error {
			key, err := parsePrivateKey("relay-key", relayKey)
			if err != nil {
				return err
			}
			programID, err := parsePublicKey("program", program)
			if err != nil {
				return err
			}
			if programID.IsZero() {
				return fmt.Errorf("paychain: --program is required")
			}
			msgID, err := parseBytes32("message-id", messageID)
			if err != nil {
				return err
			}
			if msgID.IsZero() {
				msgID = newIdentifier()
			}
			senderWord, err := parseAddress("sender", sender)
			if err != nil {
				return err
			}
			payload := core.SettlementPayload{Amount: amount}
			if payload.PaymentID, err = parseBytes32("payment-id", paymentID); err != nil {
				return err
			}
			if payload.Receiver, err = parseAddress("receiver", receiver); err != nil {
				return err
			}
			data, err := core.EncodeSettlementPayload(payload)
			if err != nil {
				return err
			}
			delivery, err := core.NewRelayDelivery(key, programID, core.CrossChainMessage{
				MessageID:           msgID,
				SourceChainSelector: selector,
				Sender:              senderWord,
				Data:                data,
			})
			if err != nil {
				return err
			}
			envelope := inbound.NewEnvelope(delivery)
			encoder := json.NewEncoder(c.out)
			encoder.SetIndent("", "  ")
			return encoder.Encode(envelope)
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&relayKey, "relay-key", "", "relay private key (base58)")
	flags.StringVar(&program, "program", "", "program id the capability is scoped to")
	flags.StringVar(&messageID, "message-id", "", "message id, 32 bytes hex (generated when empty)")
	flags.Uint64Var(&selector, "selector", 0, "source chain selector")
	flags.StringVar(&sender, "sender", "", "source chain sender address")
	flags.StringVar(&paymentID, "payment-id", "", "payment id carried in the payload")
	flags.Uint64Var(&amount, "amount", 0, "amount to release in base units")
	flags.StringVar(&receiver, "receiver", "", "receiver address (0x hex or base58)")
	return cmd
}

func (c *cli) relayReceiveCmd() *cobra.Command {
	var file string
	cmd := &cobra.Command{
		Use:   "receive",
		Short: "Deliver a relay envelope read from --file or stdin",
		RunE: func(cmd *cobra.Command, _ []string) error {
			body, err := readInput(cmd.InOrStdin(), file)
			if err != nil {
				return err
			}
			rt, err := c.open(cmd)
			if err != nil {
				return err
			}
			defer rt.Close()
			dispatcher := inbound.NewDispatcher(rt.svc, core.NewMemoryReplayLedger(rt.cfg.Relay.ReplayWindow))
			dispatcher.KeyTTL = rt.cfg.Relay.ReplayWindow
			result, err := dispatcher.DispatchJSON(cmd.Context(), body)
			if err != nil {
				return err
			}
			out := map[string]any{
				"accepted":    result.Accepted,
				"status_code": result.StatusCode,
				"metadata":    result.Metadata,
			}
			if !result.Settlement.MessageID.IsZero() {
				out["settlement"] = httpapi.NewSettlementView(result.Settlement, rt.cfg.Amount.Decimals)
			}
			return c.print(out)
		},
	}
	cmd.Flags().StringVarP(&file, "file", "f", "-", "envelope file, - for stdin")
	return cmd
}

func readInput(stdin io.Reader, path string) ([]byte, error) {
	path = strings.TrimSpace(path)
	if path == "" || path == "-" {
		return io.ReadAll(stdin)
	}
	body, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("paychain: read %s: %w", path, err)
	}
	return body, nil
}
