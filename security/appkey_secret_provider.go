package security

import (
	"bytes"
	"context"
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"crypto/sha256"
	"fmt"
	"io"
	"strconv"
	"strings"
	"time"

	"github.com/goliatone/go-paychain/core"
)

const DefaultPurpose = "paychain.custody.seed"

type Option func(*AppKeySecretProvider)

type appKey struct {
	material []byte
	keyID    string
	version  int
	window   KeyWindow
}

// KeyWindow bounds when the active key may seal or open values. Zero bounds
// are open.
type KeyWindow struct {
	ValidFrom  time.Time
	ValidUntil time.Time
}

func (k appKey) usableAt(at time.Time) error {
	at = at.UTC()
	switch {
	case !k.window.ValidFrom.IsZero() && at.Before(k.window.ValidFrom.UTC()):
		return fmt.Errorf("security: key %s/%d is not valid before %s", k.keyID, k.version, k.window.ValidFrom.UTC().Format(time.RFC3339))
	case !k.window.ValidUntil.IsZero() && !at.Before(k.window.ValidUntil.UTC()):
		return fmt.Errorf("security: key %s/%d expired at %s", k.keyID, k.version, k.window.ValidUntil.UTC().Format(time.RFC3339))
	}
	return nil
}

// AppKeySecretProvider seals values with AES-GCM under an application key.
// Retired keys stay available for Decrypt so sealed seeds survive rotation.
type AppKeySecretProvider struct {
	active  appKey
	retired []appKey
	purpose string
	now     func() time.Time
}

func WithKeyID(id string) Option {
	return func(provider *AppKeySecretProvider) {
		trimmed := strings.TrimSpace(id)
		if trimmed != "" {
			provider.active.keyID = trimmed
		}
	}
}

func WithVersion(version int) Option {
	return func(provider *AppKeySecretProvider) {
		if version > 0 {
			provider.active.version = version
		}
	}
}

// WithKeyWindow limits when the active key may seal or open values.
func WithKeyWindow(window KeyWindow) Option {
	return func(provider *AppKeySecretProvider) {
		provider.active.window = window
	}
}

// WithRetiredKey registers a decrypt-only key from a previous rotation.
func WithRetiredKey(keyID string, version int, material []byte) Option {
	return func(provider *AppKeySecretProvider) {
		key := bytes.TrimSpace(material)
		if len(key) == 0 || strings.TrimSpace(keyID) == "" {
			return
		}
		provider.retired = append(provider.retired, appKey{
			material: normalizeKey(key),
			keyID:    strings.TrimSpace(keyID),
			version:  version,
		})
	}
}

// WithPurpose binds sealed values to a purpose string. Opening a value sealed
// for another purpose fails.
func WithPurpose(purpose string) Option {
	return func(provider *AppKeySecretProvider) {
		if trimmed := strings.TrimSpace(purpose); trimmed != "" {
			provider.purpose = trimmed
		}
	}
}

func WithClock(now func() time.Time) Option {
	return func(provider *AppKeySecretProvider) {
		if now != nil {
			provider.now = now
		}
	}
}

func NewAppKeySecretProvider(keyMaterial []byte, opts ...Option) (*AppKeySecretProvider, error) {
	key := bytes.TrimSpace(keyMaterial)
	if len(key) == 0 {
		return nil, fmt.Errorf("security: key material is required")
	}
	provider := &AppKeySecretProvider{
		active: appKey{
			material: normalizeKey(key),
			keyID:    "app-key",
			version:  1,
		},
		purpose: DefaultPurpose,
		now: func() time.Time {
			return time.Now().UTC()
		},
	}
	for _, opt := range opts {
		if opt == nil {
			continue
		}
		opt(provider)
	}
	return provider, nil
}

func NewAppKeySecretProviderFromString(key string, opts ...Option) (*AppKeySecretProvider, error) {
	return NewAppKeySecretProvider([]byte(key), opts...)
}

func (p *AppKeySecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("security: plaintext is required")
	}
	if err := p.active.usableAt(p.now()); err != nil {
		return nil, err
	}
	gcm, err := newGCM(p.active.material)
	if err != nil {
		return nil, err
	}

	nonce := make([]byte, gcm.NonceSize())
	if _, err := io.ReadFull(rand.Reader, nonce); err != nil {
		return nil, fmt.Errorf("security: nonce generation failed: %w", err)
	}

	sealed := gcm.Seal(nil, nonce, plaintext, additionalData(p.active.keyID, p.active.version, p.purpose))
	return encodeEnvelope(envelope{
		KeyID:      p.active.keyID,
		Version:    p.active.version,
		Algorithm:  envelopeAlgorithm,
		Nonce:      encodeCiphertextPayload(nonce),
		Ciphertext: encodeCiphertextPayload(sealed),
		Metadata:   map[string]string{"purpose": p.purpose},
	})
}

func (p *AppKeySecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	if p == nil {
		return nil, fmt.Errorf("security: secret provider is nil")
	}
	parsed, _, err := decodeEnvelope(ciphertext, envelopeDecodeOptions{
		AllowMissingPrefix: true,
		DefaultAlgorithm:   envelopeAlgorithm,
	})
	if err != nil {
		return nil, err
	}
	if parsed.Algorithm != envelopeAlgorithm {
		return nil, fmt.Errorf("security: unsupported envelope algorithm %q", parsed.Algorithm)
	}
	if purpose := parsed.Metadata["purpose"]; purpose != "" && purpose != p.purpose {
		return nil, fmt.Errorf("security: envelope purpose mismatch: got %q want %q", purpose, p.purpose)
	}

	key, err := p.keyFor(parsed.KeyID, parsed.Version)
	if err != nil {
		return nil, err
	}
	nonce, err := decodeCiphertextPayload(parsed.Nonce)
	if err != nil {
		return nil, fmt.Errorf("security: decode nonce: %w", err)
	}
	encryptedPayload, err := decodeCiphertextPayload(parsed.Ciphertext)
	if err != nil {
		return nil, err
	}
	gcm, err := newGCM(key.material)
	if err != nil {
		return nil, err
	}
	plaintext, err := gcm.Open(nil, nonce, encryptedPayload, additionalData(key.keyID, key.version, p.purpose))
	if err != nil {
		return nil, fmt.Errorf("security: decrypt payload: %w", err)
	}
	return plaintext, nil
}

// keyFor resolves the key that sealed an envelope. Empty key ids fall back to
// the active key.
func (p *AppKeySecretProvider) keyFor(keyID string, version int) (appKey, error) {
	if keyID == "" || (keyID == p.active.keyID && (version == 0 || version == p.active.version)) {
		if err := p.active.usableAt(p.now()); err != nil {
			return appKey{}, err
		}
		return p.active, nil
	}
	for _, candidate := range p.retired {
		if candidate.keyID == keyID && (version == 0 || candidate.version == version) {
			return candidate, nil
		}
	}
	return appKey{}, fmt.Errorf("security: no key for %q version %d", keyID, version)
}

func (p *AppKeySecretProvider) KeyID() string {
	if p == nil {
		return ""
	}
	return p.active.keyID
}

func (p *AppKeySecretProvider) Version() int {
	if p == nil {
		return 0
	}
	return p.active.version
}

func (p *AppKeySecretProvider) Metadata() (string, int) {
	return p.KeyID(), p.Version()
}

func newGCM(key []byte) (cipher.AEAD, error) {
	block, err := aes.NewCipher(key)
	if err != nil {
		return nil, fmt.Errorf("security: create cipher: %w", err)
	}
	gcm, err := cipher.NewGCM(block)
	if err != nil {
		return nil, fmt.Errorf("security: create gcm: %w", err)
	}
	return gcm, nil
}

func additionalData(keyID string, version int, purpose string) []byte {
	return []byte(keyID + "|" + strconv.Itoa(version) + "|" + purpose)
}

// normalizeKey keeps AES-sized material as is and hashes anything else down
// to 32 bytes.
func normalizeKey(value []byte) []byte {
	if len(value) == 16 || len(value) == 24 || len(value) == 32 {
		key := make([]byte, len(value))
		copy(key, value)
		return key
	}
	sum := sha256.Sum256(value)
	key := make([]byte, len(sum))
	copy(key, sum[:])
	return key
}

var _ core.SecretProvider = (*AppKeySecretProvider)(nil)
