package core

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
)

type CreatePaymentRequest struct {
	PaymentID   Bytes32
	Sender      solana.PublicKey
	Token       solana.PublicKey
	DestChainID string
	DestToken   Bytes32
	Amount      uint64
	Receiver    Bytes32
}

type ProcessRefundRequest struct {
	Caller    solana.PublicKey
	PaymentID Bytes32
}

type TransitionPaymentRequest struct {
	Caller    solana.PublicKey
	PaymentID Bytes32
	Status    PaymentStatus
}

// CreatePayment escrows amount plus fee from the sender and records a pending
// payment.
func (s *Service) CreatePayment(ctx context.Context, req CreatePaymentRequest) (payment Payment, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"payment_id":    req.PaymentID.String(),
		"sender":        req.Sender.String(),
		"dest_chain_id": req.DestChainID,
		"amount":        req.Amount,
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "create_payment", err, fields)
	}()

	if err = s.requireStore(); err != nil {
		err = s.mapError(err)
		return Payment{}, err
	}
	if err = s.requireLedger(); err != nil {
		err = s.mapError(err)
		return Payment{}, err
	}
	if req.Sender.IsZero() {
		err = s.badInput("sender", "sender is required")
		return Payment{}, err
	}
	if err = validateChainID("dest chain id", req.DestChainID); err != nil {
		err = s.mapError(err)
		return Payment{}, err
	}

	now := s.now()
	err = s.store.RunInUnit(ctx, func(ctx context.Context, unit SettlementUnit) error {
		deployment, err := unit.Deployment(ctx)
		if err != nil {
			return err
		}
		if _, lookupErr := unit.Payment(ctx, req.PaymentID); lookupErr == nil {
			return fmt.Errorf("%w: %s", ErrPaymentExists, req.PaymentID)
		} else if !errors.Is(lookupErr, ErrPaymentNotFound) {
			return lookupErr
		}
		fee := ComputeFee(req.Amount, deployment.FeeRateBps, deployment.FixedBaseFee)
		principal, err := checkedAdd(req.Amount, fee)
		if err != nil {
			return err
		}
		payment = Payment{
			ID:            req.PaymentID,
			Sender:        req.Sender,
			Token:         req.Token,
			Receiver:      req.Receiver,
			SourceChainID: deployment.ChainID,
			DestChainID:   strings.TrimSpace(req.DestChainID),
			DestToken:     req.DestToken,
			Amount:        req.Amount,
			Fee:           fee,
			Status:        PaymentStatusPending,
			CreatedAt:     now,
			UpdatedAt:     now,
		}
		if err := unit.CreatePayment(ctx, payment); err != nil {
			return err
		}
		if err := unit.AppendEvent(ctx, paymentCreatedEvent(payment, now)); err != nil {
			return err
		}
		_, err = s.custody.Deposit(ctx, unit, req.Sender, req.Token, principal, payment.ID.String(), now)
		return err
	})
	if err != nil {
		err = s.mapError(err)
		return Payment{}, err
	}
	fields["fee"] = payment.Fee
	return payment, nil
}

// ProcessRefund returns Amount to the sender of a failed payment. The fee is
// retained by custody.
func (s *Service) ProcessRefund(ctx context.Context, req ProcessRefundRequest) (payment Payment, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"payment_id": req.PaymentID.String(),
		"caller":     req.Caller.String(),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "process_refund", err, fields)
	}()

	if err = s.requireStore(); err != nil {
		err = s.mapError(err)
		return Payment{}, err
	}
	if err = s.requireLedger(); err != nil {
		err = s.mapError(err)
		return Payment{}, err
	}

	now := s.now()
	err = s.store.RunInUnit(ctx, func(ctx context.Context, unit SettlementUnit) error {
		deployment, err := unit.Deployment(ctx)
		if err != nil {
			return err
		}
		if !deployment.IsAuthority(req.Caller) {
			return fmt.Errorf("%w: only the deployment authority may refund", ErrUnauthorized)
		}
		current, err := unit.Payment(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		if current.Status != PaymentStatusFailed {
			return fmt.Errorf("%w: payment %s is %s", ErrPaymentNotFailed, current.ID, current.Status)
		}
		if err := unit.TransitionPayment(ctx, current.ID, PaymentStatusFailed, PaymentStatusRefunded, now); err != nil {
			return err
		}
		payment = current
		payment.Status = PaymentStatusRefunded
		payment.UpdatedAt = now
		if err := unit.AppendEvent(ctx, paymentRefundedEvent(payment, now)); err != nil {
			return err
		}
		_, err = s.custody.Refund(
			ctx,
			unit,
			s.vaultAuthority(deployment),
			payment.Sender,
			payment.Token,
			payment.Amount,
			"refund:"+payment.ID.String(),
			now,
		)
		return err
	})
	if err != nil {
		err = s.mapError(err)
		return Payment{}, err
	}
	fields["refund_amount"] = payment.Amount
	return payment, nil
}

// TransitionPayment moves a payment along an externally driven edge. It never
// moves funds; refunds go through ProcessRefund.
func (s *Service) TransitionPayment(ctx context.Context, req TransitionPaymentRequest) (payment Payment, err error) {
	startedAt := time.Now().UTC()
	fields := map[string]any{
		"payment_id": req.PaymentID.String(),
		"caller":     req.Caller.String(),
		"status_to":  string(req.Status),
	}
	defer func() {
		s.observeOperation(ctx, startedAt, "transition_payment", err, fields)
	}()

	if err = s.requireStore(); err != nil {
		err = s.mapError(err)
		return Payment{}, err
	}
	if !req.Status.Valid() {
		err = s.badInput("status", fmt.Sprintf("unknown payment status %q", req.Status))
		return Payment{}, err
	}
	if req.Status == PaymentStatusRefunded {
		err = s.badInput("status", "refunds must go through process_refund")
		return Payment{}, err
	}

	now := s.now()
	err = s.store.RunInUnit(ctx, func(ctx context.Context, unit SettlementUnit) error {
		deployment, err := unit.Deployment(ctx)
		if err != nil {
			return err
		}
		if !deployment.IsAuthority(req.Caller) {
			return fmt.Errorf("%w: only the deployment authority may transition payments", ErrUnauthorized)
		}
		current, err := unit.Payment(ctx, req.PaymentID)
		if err != nil {
			return err
		}
		from := current.Status
		if err := current.TransitionTo(req.Status, now); err != nil {
			return err
		}
		if err := unit.TransitionPayment(ctx, current.ID, from, req.Status, now); err != nil {
			return err
		}
		payment = current
		return unit.AppendEvent(ctx, paymentStatusChangedEvent(current.ID, from, req.Status, now))
	})
	if err != nil {
		err = s.mapError(err)
		return Payment{}, err
	}
	return payment, nil
}

func (s *Service) GetPayment(ctx context.Context, id Bytes32) (Payment, error) {
	if err := s.requireStore(); err != nil {
		return Payment{}, s.mapError(err)
	}
	payment, err := s.store.GetPayment(ctx, id)
	if err != nil {
		return Payment{}, s.mapError(err)
	}
	return payment, nil
}

func (s *Service) ListPayments(ctx context.Context, filter PaymentFilter) ([]Payment, error) {
	if err := s.requireStore(); err != nil {
		return nil, s.mapError(err)
	}
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, s.badInput("status", fmt.Sprintf("unknown payment status %q", filter.Status))
	}
	payments, err := s.store.ListPayments(ctx, filter)
	if err != nil {
		return nil, s.mapError(err)
	}
	return payments, nil
}
