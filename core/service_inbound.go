package core

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// ReceiveCrossChainRequest is one relay delivery: the relay identity, the
// execution capability it presents, the message it carries and the relay's
// signature over DeliveryDigest for this message.
type ReceiveCrossChainRequest struct {
	Relay             solana.PublicKey
	Attestation       Capability
	DeliverySignature solana.Signature
	Message           CrossChainMessage
}

// VerifyDelivery checks that the relay signed this exact message under the
// attestation it presents.
func (r ReceiveCrossChainRequest) VerifyDelivery() error {
	digest := DeliveryDigest(r.Attestation.ID(), r.Message)
	if !r.DeliverySignature.Verify(r.Relay, digest[:]) {
		return fmt.Errorf("%w: delivery signature does not match message %s", ErrUnauthorized, r.Message.MessageID)
	}
	return nil
}

type OfframpRequest struct {
	Caller              solana.PublicKey
	SourceChainSelector uint64
	Relay               solana.PublicKey
}

// ReceiveCrossChain authenticates a relay message and releases the encoded
// amount from custody to the encoded receiver. The local Payment record is
// not touched.
func (s *Service) ReceiveCrossChain(ctx context.Context, req ReceiveCrossChainRequest) (settlement InboundSettlement, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"message_id":            req.Message.MessageID.String(),
		"relay":                 req.Relay.String(),
		"source_chain_selector": req.Message.SourceChainSelector,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "receive_cross_chain", err, fields)
	}()

	if err = s.requireStore(); err != nil {
		err = s.mapError(err)
		return InboundSettlement{}, err
	}
	if err = s.requireLedger(); err != nil {
		err = s.mapError(err)
		return InboundSettlement{}, err
	}

	deployment, err := s.store.GetDeployment(ctx)
	if err != nil {
		err = s.mapError(err)
		return InboundSettlement{}, err
	}
	if err = req.Attestation.ExpectGrant(TagExternalExecutionConfig, req.Relay, deployment.ProgramID.Bytes()); err != nil {
		err = s.mapError(err)
		return InboundSettlement{}, err
	}
	if err = req.VerifyDelivery(); err != nil {
		err = s.mapError(err)
		return InboundSettlement{}, err
	}

	offrampID := OfframpCapabilityID(req.Message.SourceChainSelector, req.Relay)
	strict := s.config.Settlement.StrictAmountDecoding
	allowDuplicates := s.config.Settlement.AllowDuplicateMessages
	now := s.now()

	err = s.store.RunInUnit(ctx, func(ctx context.Context, unit SettlementUnit) error {
		deployment, err := unit.Deployment(ctx)
		if err != nil {
			return err
		}
		entry, err := unit.Offramp(ctx, offrampID)
		if err != nil {
			if errors.Is(err, ErrOfframpNotFound) {
				return fmt.Errorf("%w: relay %s is not an allowed offramp for selector %d",
					ErrUnauthorized, req.Relay, req.Message.SourceChainSelector)
			}
			return err
		}
		if !entry.Router.Equals(deployment.Router) {
			return fmt.Errorf("%w: offramp entry is not owned by the deployment router", ErrUnauthorized)
		}

		payload, err := DecodeSettlementPayload(req.Message.Data, strict)
		if err != nil {
			return err
		}
		if payload.Truncated {
			fields["amount_truncated"] = true
		}

		fresh, err := unit.ConsumeMessage(ctx, req.Message.MessageID, now)
		if err != nil {
			return err
		}
		if !fresh && !allowDuplicates {
			return fmt.Errorf("%w: %s", ErrDuplicateMessage, req.Message.MessageID)
		}

		receipt, err := s.custody.Release(
			ctx,
			unit,
			s.vaultAuthority(deployment),
			payload.Receiver.PublicKey(),
			releaseToken(req.Message),
			payload.Amount,
			"settle:"+req.Message.MessageID.String(),
			now,
		)
		if err != nil {
			return err
		}
		settlement = InboundSettlement{
			MessageID:           req.Message.MessageID,
			PaymentID:           payload.PaymentID,
			SourceChainSelector: req.Message.SourceChainSelector,
			Relay:               req.Relay,
			Sender:              req.Message.Sender,
			Receiver:            payload.Receiver,
			Amount:              payload.Amount,
			TxHash:              receipt.Reference,
			SettledAt:           now,
		}
		if err := unit.RecordSettlement(ctx, settlement); err != nil {
			return err
		}
		return unit.AppendEvent(ctx, paymentCompletedEvent(payload.PaymentID, receipt.Reference, now))
	})
	if err != nil {
		err = s.mapError(err)
		return InboundSettlement{}, err
	}
	fields["payment_id"] = settlement.PaymentID.String()
	fields["amount"] = settlement.Amount
	return settlement, nil
}

func releaseToken(message CrossChainMessage) solana.PublicKey {
	if len(message.TokenAmounts) == 0 {
		return solana.PublicKey{}
	}
	return message.TokenAmounts[0].Token
}

// AllowOfframp adds a relay to the router allow-list for one source chain.
func (s *Service) AllowOfframp(ctx context.Context, req OfframpRequest) (entry OfframpEntry, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"caller":                req.Caller.String(),
		"relay":                 req.Relay.String(),
		"source_chain_selector": req.SourceChainSelector,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "allow_offramp", err, fields)
	}()

	if err = s.requireStore(); err != nil {
		err = s.mapError(err)
		return OfframpEntry{}, err
	}
	if req.Relay.IsZero() {
		err = s.badInput("relay", "relay is required")
		return OfframpEntry{}, err
	}
	now := s.now()
	err = s.store.RunInUnit(ctx, func(ctx context.Context, unit SettlementUnit) error {
		deployment, err := unit.Deployment(ctx)
		if err != nil {
			return err
		}
		if req.Caller.IsZero() || !deployment.Router.Equals(req.Caller) {
			return fmt.Errorf("%w: only the router may manage offramps", ErrUnauthorized)
		}
		entry = OfframpEntry{
			ID:                  OfframpCapabilityID(req.SourceChainSelector, req.Relay),
			Router:              deployment.Router,
			SourceChainSelector: req.SourceChainSelector,
			Relay:               req.Relay,
			CreatedAt:           now,
		}
		if err := unit.PutOfframp(ctx, entry); err != nil {
			return err
		}
		return unit.AppendEvent(ctx, offrampEvent(EventOfframpAllowed, entry, now))
	})
	if err != nil {
		err = s.mapError(err)
		return OfframpEntry{}, err
	}
	fields["offramp_id"] = entry.ID.String()
	return entry, nil
}

func (s *Service) RevokeOfframp(ctx context.Context, req OfframpRequest) (err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"caller":                req.Caller.String(),
		"relay":                 req.Relay.String(),
		"source_chain_selector": req.SourceChainSelector,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "revoke_offramp", err, fields)
	}()

	if err = s.requireStore(); err != nil {
		err = s.mapError(err)
		return err
	}
	now := s.now()
	err = s.store.RunInUnit(ctx, func(ctx context.Context, unit SettlementUnit) error {
		deployment, err := unit.Deployment(ctx)
		if err != nil {
			return err
		}
		if req.Caller.IsZero() || !deployment.Router.Equals(req.Caller) {
			return fmt.Errorf("%w: only the router may manage offramps", ErrUnauthorized)
		}
		id := OfframpCapabilityID(req.SourceChainSelector, req.Relay)
		entry, err := unit.Offramp(ctx, id)
		if err != nil {
			return err
		}
		if err := unit.DeleteOfframp(ctx, id); err != nil {
			return err
		}
		return unit.AppendEvent(ctx, offrampEvent(EventOfframpRevoked, entry, now))
	})
	if err != nil {
		err = s.mapError(err)
		return err
	}
	return nil
}

func (s *Service) ListSettlements(ctx context.Context, filter SettlementFilter) ([]InboundSettlement, error) {
	if err := s.requireStore(); err != nil {
		return nil, s.mapError(err)
	}
	settlements, err := s.store.ListSettlements(ctx, filter)
	if err != nil {
		return nil, s.mapError(err)
	}
	return settlements, nil
}
