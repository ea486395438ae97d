package core

import (
	"context"
	"fmt"
	"time"

	"github.com/gagliardetto/solana-go"
)

// CustodyVault moves value in and out of the deployment escrow. The vault
// row and the ledger transfer change together inside the caller's unit.
type CustodyVault struct {
	ledger TokenLedger
}

func NewCustodyVault(ledger TokenLedger) *CustodyVault {
	return &CustodyVault{ledger: ledger}
}

// Deposit credits the vault and pulls amount from the depositor.
func (v *CustodyVault) Deposit(
	ctx context.Context,
	unit SettlementUnit,
	from solana.PublicKey,
	token solana.PublicKey,
	amount uint64,
	reference string,
	now time.Time,
) (TransferReceipt, error) {
	if v == nil || v.ledger == nil {
		return TransferReceipt{}, fmt.Errorf("core: token ledger is required")
	}
	vault, err := unit.CreditVault(ctx, amount, now)
	if err != nil {
		return TransferReceipt{}, err
	}
	return v.ledger.Transfer(ctx, TransferInstruction{
		Kind:      TransferKindDeposit,
		From:      from,
		To:        vault.Authority,
		Token:     token,
		Amount:    amount,
		Reference: reference,
	})
}

func (v *CustodyVault) Release(
	ctx context.Context,
	unit SettlementUnit,
	authority VaultAuthority,
	to solana.PublicKey,
	token solana.PublicKey,
	amount uint64,
	reference string,
	now time.Time,
) (TransferReceipt, error) {
	return v.withdraw(ctx, unit, authority, TransferKindRelease, to, token, amount, reference, now)
}

func (v *CustodyVault) Refund(
	ctx context.Context,
	unit SettlementUnit,
	authority VaultAuthority,
	to solana.PublicKey,
	token solana.PublicKey,
	amount uint64,
	reference string,
	now time.Time,
) (TransferReceipt, error) {
	return v.withdraw(ctx, unit, authority, TransferKindRefund, to, token, amount, reference, now)
}

func (v *CustodyVault) withdraw(
	ctx context.Context,
	unit SettlementUnit,
	authority VaultAuthority,
	kind TransferKind,
	to solana.PublicKey,
	token solana.PublicKey,
	amount uint64,
	reference string,
	now time.Time,
) (TransferReceipt, error) {
	if v == nil || v.ledger == nil {
		return TransferReceipt{}, fmt.Errorf("core: token ledger is required")
	}
	if to.IsZero() {
		return TransferReceipt{}, fmt.Errorf("core: %s destination is required", kind)
	}
	current, err := unit.Vault(ctx)
	if err != nil {
		return TransferReceipt{}, err
	}
	if !authority.Valid() || !current.Authority.Equals(authority.PublicKey()) {
		return TransferReceipt{}, fmt.Errorf("%w: vault authority does not control custody", ErrUnauthorized)
	}
	vault, err := unit.DebitVault(ctx, amount, now)
	if err != nil {
		return TransferReceipt{}, err
	}
	instruction := TransferInstruction{
		Kind:      kind,
		From:      vault.Authority,
		To:        to,
		Token:     token,
		Amount:    amount,
		Reference: reference,
	}
	digest, err := instruction.Digest()
	if err != nil {
		return TransferReceipt{}, err
	}
	signature, err := authority.sign(digest)
	if err != nil {
		return TransferReceipt{}, err
	}
	instruction.Signature = signature
	return v.ledger.Transfer(ctx, instruction)
}
