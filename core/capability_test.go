package core

import (
	"errors"
	"testing"
)

func TestCapability_SignAndVerify(t *testing.T) {
	relay := newTestKey(t)
	program := newTestKey(t)

	capability, err := IssueExecutionCapability(relay, program.PublicKey())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	if err := capability.ExpectGrant(TagExternalExecutionConfig, relay.PublicKey(), program.PublicKey().Bytes()); err != nil {
		t.Fatalf("expected grant to verify: %v", err)
	}
	if capability.ID() != CapabilityID(TagExternalExecutionConfig, relay.PublicKey(), program.PublicKey().Bytes()) {
		t.Fatalf("expected deterministic capability id")
	}
}

func TestCapability_RejectsForgery(t *testing.T) {
	relay := newTestKey(t)
	impostor := newTestKey(t)
	program := newTestKey(t)

	forged, err := IssueExecutionCapability(impostor, program.PublicKey())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	forged.Issuer = relay.PublicKey()
	if err := forged.Verify(); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected forged signature to fail, got %v", err)
	}

	genuine, err := IssueExecutionCapability(relay, program.PublicKey())
	if err != nil {
		t.Fatalf("issue: %v", err)
	}
	other := newTestKey(t)
	if err := genuine.ExpectGrant(TagExternalExecutionConfig, relay.PublicKey(), other.PublicKey().Bytes()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected scope mismatch to fail, got %v", err)
	}
	if err := genuine.ExpectGrant(TagAllowedOfframp, relay.PublicKey(), program.PublicKey().Bytes()); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected tag mismatch to fail, got %v", err)
	}
}

func TestOfframpCapabilityID_DependsOnSelectorAndRelay(t *testing.T) {
	relay := newTestKey(t).PublicKey()
	other := newTestKey(t).PublicKey()
	base := OfframpCapabilityID(16015286601757825753, relay)
	if base == OfframpCapabilityID(16015286601757825754, relay) {
		t.Fatalf("expected selector to change the id")
	}
	if base == OfframpCapabilityID(16015286601757825753, other) {
		t.Fatalf("expected relay to change the id")
	}
	if base != OfframpCapabilityID(16015286601757825753, relay) {
		t.Fatalf("expected id to be deterministic")
	}
}

func TestVaultAuthority_DerivationIsStable(t *testing.T) {
	program := newTestKey(t).PublicKey()
	a := deriveVaultAuthority(program, []byte("seed"))
	b := deriveVaultAuthority(program, []byte("seed"))
	c := deriveVaultAuthority(program, []byte("other"))
	if !a.PublicKey().Equals(b.PublicKey()) {
		t.Fatalf("expected same seed to derive the same authority")
	}
	if a.PublicKey().Equals(c.PublicKey()) {
		t.Fatalf("expected different seeds to derive different authorities")
	}
	var zero VaultAuthority
	if zero.Valid() {
		t.Fatalf("zero authority must not be valid")
	}
	if _, err := zero.sign([]byte("x")); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected zero authority to refuse signing, got %v", err)
	}
}

func TestDeliveryDigest_CoversEveryMessageField(t *testing.T) {
	relay := newTestKey(t)
	program := newTestKey(t)
	base := CrossChainMessage{
		MessageID:           testBytes32(0x01),
		SourceChainSelector: 1,
		Sender:              testBytes32(0x02),
		Data:                []byte{0x01, 0x02},
		TokenAmounts:        []TokenAmount{{Token: program.PublicKey(), Amount: 5}},
	}
	req, err := NewRelayDelivery(relay, program.PublicKey(), base)
	if err != nil {
		t.Fatalf("new relay delivery: %v", err)
	}
	if err := req.VerifyDelivery(); err != nil {
		t.Fatalf("expected delivery to verify: %v", err)
	}

	edits := map[string]func(m *CrossChainMessage){
		"message_id": func(m *CrossChainMessage) { m.MessageID = testBytes32(0x09) },
		"selector":   func(m *CrossChainMessage) { m.SourceChainSelector = 2 },
		"sender":     func(m *CrossChainMessage) { m.Sender = testBytes32(0x09) },
		"data":       func(m *CrossChainMessage) { m.Data = []byte{0x01, 0x03} },
		"amount":     func(m *CrossChainMessage) { m.TokenAmounts = []TokenAmount{{Token: program.PublicKey(), Amount: 6}} },
	}
	for name, edit := range edits {
		edited := req
		edited.Message = base
		edited.Message.TokenAmounts = append([]TokenAmount(nil), base.TokenAmounts...)
		edit(&edited.Message)
		if err := edited.VerifyDelivery(); !errors.Is(err, ErrUnauthorized) {
			t.Fatalf("%s: expected edited message to fail verification, got %v", name, err)
		}
	}

	other, err := NewRelayDelivery(newTestKey(t), program.PublicKey(), base)
	if err != nil {
		t.Fatalf("new relay delivery: %v", err)
	}
	other.Relay = relay.PublicKey()
	if err := other.VerifyDelivery(); !errors.Is(err, ErrUnauthorized) {
		t.Fatalf("expected a foreign signer to fail, got %v", err)
	}
}
