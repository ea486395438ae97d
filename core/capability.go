package core

import (
	"bytes"
	"crypto/ed25519"
	"encoding/binary"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

const (
	TagExternalExecutionConfig = "external_execution_config"
	TagAllowedOfframp          = "allowed_offramp"
	tagVault                   = "vault"
)

// Capability is a signed grant: Issuer asserts Tag over Scope. Its identifier
// is keccak256(tag || scope || issuer) and the signature covers that id.
type Capability struct {
	Tag       string
	Scope     []byte
	Issuer    solana.PublicKey
	Signature solana.Signature
}

// CapabilityID derives the deterministic identifier for a capability.
func CapabilityID(tag string, issuer solana.PublicKey, scope ...[]byte) Bytes32 {
	parts := make([][]byte, 0, len(scope)+2)
	parts = append(parts, []byte(tag))
	parts = append(parts, scope...)
	parts = append(parts, issuer.Bytes())
	return Bytes32(crypto.Keccak256Hash(parts...))
}

func (c Capability) ID() Bytes32 {
	return CapabilityID(c.Tag, c.Issuer, c.Scope)
}

// IssueCapability signs a capability with the issuer key.
func IssueCapability(issuer solana.PrivateKey, tag string, scope []byte) (Capability, error) {
	if len(issuer) != ed25519.PrivateKeySize {
		return Capability{}, fmt.Errorf("core: capability issuer key is invalid")
	}
	tag = strings.TrimSpace(tag)
	if tag == "" {
		return Capability{}, fmt.Errorf("core: capability tag is required")
	}
	capability := Capability{
		Tag:    tag,
		Scope:  append([]byte(nil), scope...),
		Issuer: issuer.PublicKey(),
	}
	id := capability.ID()
	signature, err := issuer.Sign(id[:])
	if err != nil {
		return Capability{}, fmt.Errorf("core: sign capability: %w", err)
	}
	capability.Signature = signature
	return capability, nil
}

// Verify checks the issuer signature only; callers still match tag, scope,
// and issuer against what they expect.
func (c Capability) Verify() error {
	if c.Issuer.IsZero() {
		return fmt.Errorf("%w: capability issuer is empty", ErrUnauthorized)
	}
	id := c.ID()
	if !c.Signature.Verify(c.Issuer, id[:]) {
		return fmt.Errorf("%w: capability signature does not verify", ErrUnauthorized)
	}
	return nil
}

// ExpectGrant verifies c is a valid tag grant by issuer over scope.
func (c Capability) ExpectGrant(tag string, issuer solana.PublicKey, scope []byte) error {
	if c.Tag != tag {
		return fmt.Errorf("%w: expected %s capability, got %q", ErrUnauthorized, tag, c.Tag)
	}
	if !c.Issuer.Equals(issuer) {
		return fmt.Errorf("%w: capability issued by %s, expected %s", ErrUnauthorized, c.Issuer, issuer)
	}
	if !bytes.Equal(c.Scope, scope) {
		return fmt.Errorf("%w: capability scope mismatch", ErrUnauthorized)
	}
	return c.Verify()
}

// IssueExecutionCapability is what a relay presents when it invokes the
// engine identified by programID.
func IssueExecutionCapability(relay solana.PrivateKey, programID solana.PublicKey) (Capability, error) {
	return IssueCapability(relay, TagExternalExecutionConfig, programID.Bytes())
}

// DeliveryDigest binds one relay delivery to the capability presented with
// it: keccak256(capability id || message id || LE(selector) || sender ||
// keccak256(data) || token amounts).
func DeliveryDigest(capabilityID Bytes32, message CrossChainMessage) Bytes32 {
	parts := make([][]byte, 0, 5+2*len(message.TokenAmounts))
	parts = append(parts,
		capabilityID[:],
		message.MessageID[:],
		selectorBytes(message.SourceChainSelector),
		message.Sender[:],
		crypto.Keccak256(message.Data),
	)
	for _, item := range message.TokenAmounts {
		amount := make([]byte, 8)
		binary.LittleEndian.PutUint64(amount, item.Amount)
		parts = append(parts, item.Token.Bytes(), amount)
	}
	return Bytes32(crypto.Keccak256Hash(parts...))
}

// SignDelivery signs the delivery digest of message under attestation.
func SignDelivery(relay solana.PrivateKey, attestation Capability, message CrossChainMessage) (solana.Signature, error) {
	if len(relay) != ed25519.PrivateKeySize {
		return solana.Signature{}, fmt.Errorf("core: relay key is invalid")
	}
	digest := DeliveryDigest(attestation.ID(), message)
	signature, err := relay.Sign(digest[:])
	if err != nil {
		return solana.Signature{}, fmt.Errorf("core: sign delivery: %w", err)
	}
	return signature, nil
}

// NewRelayDelivery issues the execution capability for programID and signs
// message with the same relay key.
func NewRelayDelivery(relay solana.PrivateKey, programID solana.PublicKey, message CrossChainMessage) (ReceiveCrossChainRequest, error) {
	attestation, err := IssueExecutionCapability(relay, programID)
	if err != nil {
		return ReceiveCrossChainRequest{}, err
	}
	signature, err := SignDelivery(relay, attestation, message)
	if err != nil {
		return ReceiveCrossChainRequest{}, err
	}
	return ReceiveCrossChainRequest{
		Relay:             relay.PublicKey(),
		Attestation:       attestation,
		DeliverySignature: signature,
		Message:           message,
	}, nil
}

// OfframpCapabilityID keys the router allow-list by source chain and relay.
func OfframpCapabilityID(sourceChainSelector uint64, relay solana.PublicKey) Bytes32 {
	return CapabilityID(TagAllowedOfframp, relay, selectorBytes(sourceChainSelector))
}

func selectorBytes(selector uint64) []byte {
	out := make([]byte, 8)
	binary.LittleEndian.PutUint64(out, selector)
	return out
}

// VaultAuthority is the engine's custody signing capability. The zero value
// signs nothing; only Service constructs a usable one.
type VaultAuthority struct {
	key solana.PrivateKey
}

func deriveVaultAuthority(programID solana.PublicKey, seed []byte) VaultAuthority {
	material := crypto.Keccak256([]byte(tagVault), programID.Bytes(), seed)
	return VaultAuthority{key: solana.PrivateKey(ed25519.NewKeyFromSeed(material))}
}

func (a VaultAuthority) Valid() bool {
	return len(a.key) == ed25519.PrivateKeySize
}

func (a VaultAuthority) PublicKey() solana.PublicKey {
	if !a.Valid() {
		return solana.PublicKey{}
	}
	return a.key.PublicKey()
}

func (a VaultAuthority) sign(message []byte) (solana.Signature, error) {
	if !a.Valid() {
		return solana.Signature{}, fmt.Errorf("%w: vault authority is not configured", ErrUnauthorized)
	}
	return a.key.Sign(message)
}
