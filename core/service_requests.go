package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

type CreatePaymentRequestInput struct {
	RequestID   string
	Merchant    solana.PublicKey
	Receiver    solana.PublicKey
	Token       solana.PublicKey
	Amount      uint64
	Description string
}

type PayRequestInput struct {
	RequestID string
	Payer     solana.PublicKey
}

// CreatePaymentRequest opens a merchant invoice that expires after the
// configured request window.
func (s *Service) CreatePaymentRequest(ctx context.Context, in CreatePaymentRequestInput) (request PaymentRequest, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"request_id": in.RequestID,
		"merchant":   in.Merchant.String(),
		"amount":     in.Amount,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_payment_request", err, fields)
	}()

	if err = s.requireStore(); err != nil {
		err = s.mapError(err)
		return PaymentRequest{}, err
	}
	requestID := strings.TrimSpace(in.RequestID)
	switch {
	case requestID == "":
		err = s.badInput("request_id", "request id is required")
	case len(requestID) > MaxRequestIDBytes:
		err = s.badInput("request_id", fmt.Sprintf("request id exceeds %d bytes", MaxRequestIDBytes))
	case len(in.Description) > MaxDescriptionBytes:
		err = s.badInput("description", fmt.Sprintf("description exceeds %d bytes", MaxDescriptionBytes))
	case in.Merchant.IsZero():
		err = s.badInput("merchant", "merchant is required")
	}
	if err != nil {
		return PaymentRequest{}, err
	}
	receiver := in.Receiver
	if receiver.IsZero() {
		receiver = in.Merchant
	}

	now := s.now()
	request = PaymentRequest{
		ID:          requestID,
		Merchant:    in.Merchant,
		Receiver:    receiver,
		Token:       in.Token,
		Amount:      in.Amount,
		Description: in.Description,
		ExpiresAt:   now.Add(s.config.Requests.Expiry()),
		CreatedAt:   now,
	}
	err = s.store.RunInUnit(ctx, func(ctx context.Context, unit SettlementUnit) error {
		if _, err := unit.Deployment(ctx); err != nil {
			return err
		}
		if err := unit.CreatePaymentRequest(ctx, request); err != nil {
			return err
		}
		return unit.AppendEvent(ctx, paymentRequestCreatedEvent(request, now))
	})
	if err != nil {
		err = s.mapError(err)
		return PaymentRequest{}, err
	}
	return request, nil
}

// PayRequest settles an invoice by moving Amount straight from the payer to
// the request receiver. Custody is not involved.
func (s *Service) PayRequest(ctx context.Context, in PayRequestInput) (request PaymentRequest, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"request_id": in.RequestID,
		"payer":      in.Payer.String(),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "pay_request", err, fields)
	}()

	if err = s.requireStore(); err != nil {
		err = s.mapError(err)
		return PaymentRequest{}, err
	}
	if err = s.requireLedger(); err != nil {
		err = s.mapError(err)
		return PaymentRequest{}, err
	}
	if in.Payer.IsZero() {
		err = s.badInput("payer", "payer is required")
		return PaymentRequest{}, err
	}
	requestID := strings.TrimSpace(in.RequestID)

	now := s.now()
	err = s.store.RunInUnit(ctx, func(ctx context.Context, unit SettlementUnit) error {
		current, err := unit.PaymentRequest(ctx, requestID)
		if err != nil {
			return err
		}
		if err := current.MarkPaid(in.Payer, now); err != nil {
			return err
		}
		if err := unit.MarkPaymentRequestPaid(ctx, requestID, in.Payer, now); err != nil {
			return err
		}
		request = current
		if err := unit.AppendEvent(ctx, requestPaymentReceivedEvent(requestID, in.Payer, now)); err != nil {
			return err
		}
		_, err = s.ledger.Transfer(ctx, TransferInstruction{
			Kind:      TransferKindDirect,
			From:      in.Payer,
			To:        current.Receiver,
			Token:     current.Token,
			Amount:    current.Amount,
			Reference: "request:" + requestID,
		})
		return err
	})
	if err != nil {
		if errors.Is(err, ErrRequestExpired) {
			fields["expired"] = true
		}
		err = s.mapError(err)
		return PaymentRequest{}, err
	}
	return request, nil
}

func (s *Service) GetPaymentRequest(ctx context.Context, id string) (PaymentRequest, error) {
	if err := s.requireStore(); err != nil {
		return PaymentRequest{}, s.mapError(err)
	}
	request, err := s.store.GetPaymentRequest(ctx, strings.TrimSpace(id))
	if err != nil {
		return PaymentRequest{}, s.mapError(err)
	}
	return request, nil
}
