package security

import (
	"bytes"
	"context"
	"strings"
	"testing"
	"time"
)

func TestAppKeySecretProvider_EncryptDecryptRoundTrip(t *testing.T) {
	provider, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("paychain-v1"), WithVersion(3))
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}

	plaintext := []byte("custody-seed-bytes")
	encrypted, err := provider.Encrypt(context.Background(), plaintext)
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if bytes.Equal(encrypted, plaintext) {
		t.Fatalf("expected encrypted payload to differ from plaintext")
	}
	if !bytes.HasPrefix(encrypted, []byte(envelopePrefix)) {
		t.Fatalf("expected envelope prefix")
	}

	meta, err := ParseEnvelopeMetadata(encrypted, false)
	if err != nil {
		t.Fatalf("parse metadata: %v", err)
	}
	if meta.KeyID != "paychain-v1" || meta.Version != 3 || meta.Purpose != DefaultPurpose {
		t.Fatalf("unexpected envelope metadata %#v", meta)
	}

	decrypted, err := provider.Decrypt(context.Background(), encrypted)
	if err != nil {
		t.Fatalf("decrypt: %v", err)
	}
	if !bytes.Equal(decrypted, plaintext) {
		t.Fatalf("expected roundtrip plaintext; got %q", string(decrypted))
	}
}

func TestAppKeySecretProvider_RejectsUnknownKey(t *testing.T) {
	issuer, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("paychain-v1"), WithVersion(1))
	if err != nil {
		t.Fatalf("new issuer provider: %v", err)
	}
	receiver, err := NewAppKeySecretProviderFromString("super-secret-test-key", WithKeyID("paychain-v2"), WithVersion(2))
	if err != nil {
		t.Fatalf("new receiver provider: %v", err)
	}

	encrypted, err := issuer.Encrypt(context.Background(), []byte("payload"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := receiver.Decrypt(context.Background(), encrypted); err == nil {
		t.Fatalf("expected unknown key error")
	}
}

func TestAppKeySecretProvider_RetiredKeyOpensOldEnvelopes(t *testing.T) {
	old, err := NewAppKeySecretProviderFromString("old-key-material", WithKeyID("paychain"), WithVersion(1))
	if err != nil {
		t.Fatalf("old provider: %v", err)
	}
	sealed, err := old.Encrypt(context.Background(), []byte("seed"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}

	rotated, err := NewAppKeySecretProviderFromString("new-key-material",
		WithKeyID("paychain"),
		WithVersion(2),
		WithRetiredKey("paychain", 1, []byte("old-key-material")),
	)
	if err != nil {
		t.Fatalf("rotated provider: %v", err)
	}
	opened, err := rotated.Decrypt(context.Background(), sealed)
	if err != nil {
		t.Fatalf("decrypt with retired key: %v", err)
	}
	if string(opened) != "seed" {
		t.Fatalf("expected seed, got %q", opened)
	}
}

func TestAppKeySecretProvider_PurposeBinding(t *testing.T) {
	sealer, err := NewAppKeySecretProviderFromString("shared-key", WithPurpose("paychain.other"))
	if err != nil {
		t.Fatalf("sealer: %v", err)
	}
	opener, err := NewAppKeySecretProviderFromString("shared-key")
	if err != nil {
		t.Fatalf("opener: %v", err)
	}
	sealed, err := sealer.Encrypt(context.Background(), []byte("seed"))
	if err != nil {
		t.Fatalf("encrypt: %v", err)
	}
	if _, err := opener.Decrypt(context.Background(), sealed); err == nil {
		t.Fatalf("expected purpose mismatch")
	}
}

func TestAppKeySecretProvider_KeyWindow(t *testing.T) {
	now := time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC)
	clock := now
	provider, err := NewAppKeySecretProviderFromString("windowed-key",
		WithKeyWindow(KeyWindow{ValidFrom: now.Add(-time.Hour), ValidUntil: now.Add(time.Hour)}),
		WithClock(func() time.Time { return clock }),
	)
	if err != nil {
		t.Fatalf("new provider: %v", err)
	}
	sealed, err := provider.Encrypt(context.Background(), []byte("seed"))
	if err != nil {
		t.Fatalf("encrypt inside window: %v", err)
	}

	clock = now.Add(time.Hour)
	if _, err := provider.Decrypt(context.Background(), sealed); err == nil || !strings.Contains(err.Error(), "expired") {
		t.Fatalf("expected expired key to refuse opening, got %v", err)
	}
	clock = now.Add(-2 * time.Hour)
	if _, err := provider.Encrypt(context.Background(), []byte("seed")); err == nil || !strings.Contains(err.Error(), "not valid before") {
		t.Fatalf("expected early key to refuse sealing, got %v", err)
	}
}
