package core

import (
	"errors"
	"testing"
	"time"
)

func TestPaymentTransitions(t *testing.T) {
	allowed := [][2]PaymentStatus{
		{PaymentStatusPending, PaymentStatusProcessing},
		{PaymentStatusProcessing, PaymentStatusCompleted},
		{PaymentStatusPending, PaymentStatusFailed},
		{PaymentStatusFailed, PaymentStatusRefunded},
	}
	for _, edge := range allowed {
		payment := Payment{Status: edge[0]}
		if err := payment.TransitionTo(edge[1], time.Now()); err != nil {
			t.Fatalf("expected %s -> %s to be allowed: %v", edge[0], edge[1], err)
		}
	}

	rejected := [][2]PaymentStatus{
		{PaymentStatusPending, PaymentStatusCompleted},
		{PaymentStatusPending, PaymentStatusRefunded},
		{PaymentStatusProcessing, PaymentStatusFailed},
		{PaymentStatusCompleted, PaymentStatusRefunded},
		{PaymentStatusRefunded, PaymentStatusRefunded},
		{PaymentStatusFailed, PaymentStatusPending},
	}
	for _, edge := range rejected {
		payment := Payment{Status: edge[0]}
		if err := payment.TransitionTo(edge[1], time.Now()); !errors.Is(err, ErrInvalidPaymentTransition) {
			t.Fatalf("expected %s -> %s to be rejected, got %v", edge[0], edge[1], err)
		}
		if payment.Status != edge[0] {
			t.Fatalf("rejected transition must not change status")
		}
	}
}

func TestPaymentRequest_ExpiryBoundary(t *testing.T) {
	created := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	request := PaymentRequest{ExpiresAt: created.Add(DefaultRequestExpiry)}

	if err := request.CheckPayable(request.ExpiresAt); err != nil {
		t.Fatalf("expected request to be payable at exactly expires_at: %v", err)
	}
	if err := request.CheckPayable(request.ExpiresAt.Add(time.Second)); !errors.Is(err, ErrRequestExpired) {
		t.Fatalf("expected ErrRequestExpired after expires_at, got %v", err)
	}
}

func TestPaymentRequest_MarkPaidOnce(t *testing.T) {
	now := time.Now().UTC()
	first := newTestKey(t).PublicKey()
	second := newTestKey(t).PublicKey()
	request := PaymentRequest{ExpiresAt: now.Add(time.Minute)}

	if err := request.MarkPaid(first, now); err != nil {
		t.Fatalf("first payment: %v", err)
	}
	if err := request.MarkPaid(second, now); !errors.Is(err, ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
	if request.Payer == nil || !request.Payer.Equals(first) {
		t.Fatalf("expected payer to remain the first payer")
	}
}

func TestBytes32_ParseAndFormat(t *testing.T) {
	id := testBytes32(0x0f)
	parsed, err := ParseBytes32(id.String())
	if err != nil {
		t.Fatalf("parse: %v", err)
	}
	if parsed != id {
		t.Fatalf("expected parsed id to match")
	}
	bare, err := ParseBytes32(id.String()[2:])
	if err != nil || bare != id {
		t.Fatalf("expected bare hex to parse, err=%v", err)
	}
	if _, err := ParseBytes32("0x1234"); !errors.Is(err, ErrInvalidBytes32) {
		t.Fatalf("expected short value to fail, got %v", err)
	}
}

func TestDeploymentValidate(t *testing.T) {
	deployment := Deployment{
		Authority: newTestKey(t).PublicKey(),
		Router:    newTestKey(t).PublicKey(),
		ProgramID: newTestKey(t).PublicKey(),
		ChainID:   "solana-mainnet",
	}
	if err := deployment.Validate(); err != nil {
		t.Fatalf("expected valid deployment: %v", err)
	}
	deployment.ChainID = string(make([]byte, MaxChainIDBytes+1))
	if err := deployment.Validate(); err == nil {
		t.Fatalf("expected oversized chain id to fail")
	}
}
