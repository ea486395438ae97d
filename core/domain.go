package core

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/gagliardetto/solana-go"
)

const (
	MaxChainIDBytes          = 64
	MaxDescriptionBytes      = 128
	MaxRequestIDBytes        = 32
	MaxFeeRateBps            = 10_000
	DefaultRequestExpiry     = 900 * time.Second
	DefaultFixedBaseFee      = 500_000
	DefaultFeeRateBps        = 30
	deploymentSingletonID    = "deployment"
	vaultSingletonID         = "vault"
	settlementPayloadMinSize = 96
)

var (
	ErrInvalidPaymentTransition = errors.New("core: invalid payment status transition")
	ErrInvalidBytes32           = errors.New("core: invalid 32-byte value")
)

// Bytes32 is an opaque fixed-width identifier (payment ids, message ids,
// foreign-chain receivers and tokens).
type Bytes32 [32]byte

func (b Bytes32) String() string {
	return hexutil.Encode(b[:])
}

func (b Bytes32) IsZero() bool {
	return b == Bytes32{}
}

func (b Bytes32) MarshalText() ([]byte, error) {
	return []byte(b.String()), nil
}

func (b *Bytes32) UnmarshalText(text []byte) error {
	parsed, err := ParseBytes32(string(text))
	if err != nil {
		return err
	}
	*b = parsed
	return nil
}

// ParseBytes32 accepts 0x-prefixed or bare hex of exactly 32 bytes.
func ParseBytes32(value string) (Bytes32, error) {
	value = strings.TrimSpace(value)
	if !strings.HasPrefix(value, "0x") && !strings.HasPrefix(value, "0X") {
		value = "0x" + value
	}
	decoded, err := hexutil.Decode(value)
	if err != nil {
		return Bytes32{}, fmt.Errorf("%w: %v", ErrInvalidBytes32, err)
	}
	return Bytes32FromSlice(decoded)
}

func Bytes32FromSlice(in []byte) (Bytes32, error) {
	if len(in) != 32 {
		return Bytes32{}, fmt.Errorf("%w: got %d bytes", ErrInvalidBytes32, len(in))
	}
	var out Bytes32
	copy(out[:], in)
	return out, nil
}

// Bytes32FromPublicKey widens a native identity into the opaque receiver form.
func Bytes32FromPublicKey(key solana.PublicKey) Bytes32 {
	var out Bytes32
	copy(out[:], key.Bytes())
	return out
}

func (b Bytes32) PublicKey() solana.PublicKey {
	return solana.PublicKeyFromBytes(b[:])
}

type PaymentStatus string

const (
	PaymentStatusPending    PaymentStatus = "pending"
	PaymentStatusProcessing PaymentStatus = "processing"
	PaymentStatusCompleted  PaymentStatus = "completed"
	PaymentStatusFailed     PaymentStatus = "failed"
	PaymentStatusRefunded   PaymentStatus = "refunded"
)

func (s PaymentStatus) Valid() bool {
	switch s {
	case PaymentStatusPending,
		PaymentStatusProcessing,
		PaymentStatusCompleted,
		PaymentStatusFailed,
		PaymentStatusRefunded:
		return true
	default:
		return false
	}
}

func ParsePaymentStatus(value string) (PaymentStatus, error) {
	status := PaymentStatus(strings.ToLower(strings.TrimSpace(value)))
	if !status.Valid() {
		return "", fmt.Errorf("core: unknown payment status %q", value)
	}
	return status, nil
}

// Deployment is the process-wide configuration record. It is created once and
// only its authority may change it.
type Deployment struct {
	Authority      solana.PublicKey
	FeeRecipient   solana.PublicKey
	Router         solana.PublicKey
	ProgramID      solana.PublicKey
	VaultAuthority solana.PublicKey
	ChainID        string
	FixedBaseFee   uint64
	FeeRateBps     uint16
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

func (d Deployment) Validate() error {
	if d.Authority.IsZero() {
		return fmt.Errorf("core: deployment authority is required")
	}
	if d.Router.IsZero() {
		return fmt.Errorf("core: deployment router is required")
	}
	if d.ProgramID.IsZero() {
		return fmt.Errorf("core: deployment program id is required")
	}
	if err := validateChainID("chain id", d.ChainID); err != nil {
		return err
	}
	return ValidateFeeRate(d.FeeRateBps)
}

func (d Deployment) IsAuthority(caller solana.PublicKey) bool {
	return !caller.IsZero() && d.Authority.Equals(caller)
}

type Vault struct {
	Authority solana.PublicKey
	Balance   uint64
	UpdatedAt time.Time
}

type Payment struct {
	ID            Bytes32
	Sender        solana.PublicKey
	Token         solana.PublicKey
	Receiver      Bytes32
	SourceChainID string
	DestChainID   string
	DestToken     Bytes32
	Amount        uint64
	Fee           uint64
	Status        PaymentStatus
	CreatedAt     time.Time
	UpdatedAt     time.Time
}

// Principal is what moved into custody when the payment was created.
func (p Payment) Principal() uint64 {
	return p.Amount + p.Fee
}

func (p *Payment) TransitionTo(status PaymentStatus, now time.Time) error {
	if p == nil {
		return nil
	}
	if !paymentTransitionAllowed(p.Status, status) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidPaymentTransition, p.Status, status)
	}
	p.Status = status
	p.UpdatedAt = now
	return nil
}

func paymentTransitionAllowed(current, next PaymentStatus) bool {
	allowed := map[PaymentStatus]map[PaymentStatus]struct{}{
		PaymentStatusPending: {
			PaymentStatusProcessing: {},
			PaymentStatusFailed:     {},
		},
		PaymentStatusProcessing: {
			PaymentStatusCompleted: {},
		},
		PaymentStatusFailed: {
			PaymentStatusRefunded: {},
		},
	}
	_, ok := allowed[current][next]
	return ok
}

type PaymentRequest struct {
	ID          string
	Merchant    solana.PublicKey
	Receiver    solana.PublicKey
	Token       solana.PublicKey
	Amount      uint64
	Description string
	IsPaid      bool
	Payer       *solana.PublicKey
	PaidAt      *time.Time
	ExpiresAt   time.Time
	CreatedAt   time.Time
}

// CheckPayable reports why the request cannot be settled at now, if at all.
// A request is still payable at exactly ExpiresAt.
func (r PaymentRequest) CheckPayable(now time.Time) error {
	if r.IsPaid {
		return ErrAlreadyPaid
	}
	if now.After(r.ExpiresAt) {
		return ErrRequestExpired
	}
	return nil
}

func (r *PaymentRequest) MarkPaid(payer solana.PublicKey, now time.Time) error {
	if r == nil {
		return nil
	}
	if err := r.CheckPayable(now); err != nil {
		return err
	}
	paidBy := payer
	paidAt := now
	r.IsPaid = true
	r.Payer = &paidBy
	r.PaidAt = &paidAt
	return nil
}

// InboundSettlement is the append-only record of one consumed relay message.
type InboundSettlement struct {
	MessageID           Bytes32
	PaymentID           Bytes32
	SourceChainSelector uint64
	Relay               solana.PublicKey
	Sender              Bytes32
	Receiver            Bytes32
	Amount              uint64
	TxHash              string
	SettledAt           time.Time
}

// OfframpEntry is one router allow-list row: the relay may deliver messages
// declared as coming from SourceChainSelector.
type OfframpEntry struct {
	ID                  Bytes32
	Router              solana.PublicKey
	SourceChainSelector uint64
	Relay               solana.PublicKey
	CreatedAt           time.Time
}

type SwapAccount struct {
	PublicKey  solana.PublicKey
	IsSigner   bool
	IsWritable bool
}

// SwapInstruction is forwarded verbatim to the configured swap executor.
type SwapInstruction struct {
	Program  solana.PublicKey
	Accounts []SwapAccount
	Data     []byte
}

type SwapResult struct {
	Reference string
	Metadata  map[string]any
}

func validateChainID(field string, value string) error {
	if strings.TrimSpace(value) == "" {
		return fmt.Errorf("core: %s is required", field)
	}
	if len(value) > MaxChainIDBytes {
		return fmt.Errorf("core: %s exceeds %d bytes", field, MaxChainIDBytes)
	}
	return nil
}
