package core

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
)

type ledgerAccount struct {
	owner solana.PublicKey
	token solana.PublicKey
}

// MemoryTokenLedger is an in-process TokenLedger. Balances are keyed by owner
// and token; the zero token is the default asset. Release and refund
// instructions must carry a valid signature by From.
type MemoryTokenLedger struct {
	mu       sync.Mutex
	balances map[ledgerAccount]uint64
	sequence uint64
	Now      func() time.Time
}

func NewMemoryTokenLedger() *MemoryTokenLedger {
	return &MemoryTokenLedger{
		balances: map[ledgerAccount]uint64{},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Fund mints amount into owner's token balance.
func (l *MemoryTokenLedger) Fund(owner solana.PublicKey, token solana.PublicKey, amount uint64) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	key := ledgerAccount{owner: owner, token: token}
	next, err := checkedAdd(l.balances[key], amount)
	if err != nil {
		return err
	}
	l.balances[key] = next
	return nil
}

func (l *MemoryTokenLedger) Balance(owner solana.PublicKey, token solana.PublicKey) uint64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.balances[ledgerAccount{owner: owner, token: token}]
}

func (l *MemoryTokenLedger) Transfer(_ context.Context, instruction TransferInstruction) (TransferReceipt, error) {
	if l == nil {
		return TransferReceipt{}, fmt.Errorf("core: token ledger is nil")
	}
	if instruction.From.IsZero() || instruction.To.IsZero() {
		return TransferReceipt{}, fmt.Errorf("core: transfer endpoints are required")
	}
	digest, err := instruction.Digest()
	if err != nil {
		return TransferReceipt{}, err
	}
	switch instruction.Kind {
	case TransferKindRelease, TransferKindRefund:
		if !instruction.Signature.Verify(instruction.From, digest) {
			return TransferReceipt{}, fmt.Errorf("%w: transfer signature does not match %s", ErrUnauthorized, instruction.From)
		}
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	from := ledgerAccount{owner: instruction.From, token: instruction.Token}
	to := ledgerAccount{owner: instruction.To, token: instruction.Token}
	if l.balances[from] < instruction.Amount {
		return TransferReceipt{}, fmt.Errorf(
			"%w: %s holds %d, transfer needs %d",
			ErrInsufficientFunds,
			instruction.From,
			l.balances[from],
			instruction.Amount,
		)
	}
	credited, err := checkedAdd(l.balances[to], instruction.Amount)
	if err != nil {
		return TransferReceipt{}, err
	}
	l.balances[from] -= instruction.Amount
	l.balances[to] = credited

	l.sequence++
	counter := make([]byte, 8)
	binary.BigEndian.PutUint64(counter, l.sequence)
	return TransferReceipt{
		Reference: crypto.Keccak256Hash(digest, counter).Hex(),
		SettledAt: l.now(),
	}, nil
}

func (l *MemoryTokenLedger) now() time.Time {
	if l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

var _ TokenLedger = (*MemoryTokenLedger)(nil)
