package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/ethereum/go-ethereum/crypto"
	"github.com/gagliardetto/solana-go"
	"github.com/goliatone/go-paychain/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// LedgerStore is a TokenLedger over the paychain_ledger_* tables. Inside a
// settlement unit it writes through the unit's transaction, so balances and
// settlement state commit together.
type LedgerStore struct {
	db        *bun.DB
	transfers repository.Repository[*ledgerTransferRecord]
	Now       func() time.Time
}

func NewLedgerStore(db *bun.DB) (*LedgerStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	transfers := repository.NewRepository[*ledgerTransferRecord](db, ledgerTransferHandlers())
	if validator, ok := transfers.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid ledger transfer repository wiring: %w", err)
		}
	}
	return &LedgerStore{
		db:        db,
		transfers: transfers,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// Fund mints amount into owner's token balance.
func (l *LedgerStore) Fund(ctx context.Context, owner solana.PublicKey, token solana.PublicKey, amount uint64) error {
	if l == nil || l.db == nil {
		return fmt.Errorf("sqlstore: ledger store is not configured")
	}
	return l.run(ctx, func(ctx context.Context, tx bun.Tx) error {
		return l.credit(ctx, tx, owner, token, amount)
	})
}

func (l *LedgerStore) Balance(ctx context.Context, owner solana.PublicKey, token solana.PublicKey) (uint64, error) {
	if l == nil || l.db == nil {
		return 0, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	var db bun.IDB = l.db
	if tx, ok := unitTxFromContext(ctx); ok {
		db = tx
	}
	return loadLedgerBalance(ctx, db, owner, token)
}

func (l *LedgerStore) Transfer(ctx context.Context, instruction core.TransferInstruction) (core.TransferReceipt, error) {
	if l == nil || l.db == nil {
		return core.TransferReceipt{}, fmt.Errorf("sqlstore: ledger store is not configured")
	}
	if instruction.From.IsZero() || instruction.To.IsZero() {
		return core.TransferReceipt{}, fmt.Errorf("sqlstore: transfer endpoints are required")
	}
	digest, err := instruction.Digest()
	if err != nil {
		return core.TransferReceipt{}, err
	}
	switch instruction.Kind {
	case core.TransferKindRelease, core.TransferKindRefund:
		if !instruction.Signature.Verify(instruction.From, digest) {
			return core.TransferReceipt{}, fmt.Errorf("%w: transfer signature does not match %s", core.ErrUnauthorized, instruction.From)
		}
	}
	amount, err := toColumnAmount("transfer amount", instruction.Amount)
	if err != nil {
		return core.TransferReceipt{}, err
	}

	var receipt core.TransferReceipt
	err = l.run(ctx, func(ctx context.Context, tx bun.Tx) error {
		if err := l.debit(ctx, tx, instruction.From, instruction.Token, instruction.Amount); err != nil {
			return err
		}
		if err := l.credit(ctx, tx, instruction.To, instruction.Token, instruction.Amount); err != nil {
			return err
		}
		id := uuid.New()
		now := l.now()
		receipt = core.TransferReceipt{
			Reference: crypto.Keccak256Hash(digest, id[:]).Hex(),
			SettledAt: now,
		}
		_, err := l.transfers.CreateTx(ctx, tx, &ledgerTransferRecord{
			ID:        id.String(),
			Kind:      string(instruction.Kind),
			FromOwner: encodeKey(instruction.From),
			ToOwner:   encodeKey(instruction.To),
			Token:     tokenColumn(instruction.Token),
			Amount:    amount,
			Reference: instruction.Reference,
			Receipt:   receipt.Reference,
			CreatedAt: now,
		})
		return err
	})
	if err != nil {
		return core.TransferReceipt{}, err
	}
	return receipt, nil
}

// run joins the settlement unit's transaction when ctx carries one.
func (l *LedgerStore) run(ctx context.Context, fn func(ctx context.Context, tx bun.Tx) error) error {
	if tx, ok := unitTxFromContext(ctx); ok {
		return fn(ctx, tx)
	}
	return l.db.RunInTx(ctx, nil, fn)
}

func (l *LedgerStore) credit(ctx context.Context, tx bun.Tx, owner solana.PublicKey, token solana.PublicKey, amount uint64) error {
	delta, err := toColumnAmount("ledger credit", amount)
	if err != nil {
		return err
	}
	result, err := tx.ExecContext(ctx, `
INSERT INTO paychain_ledger_balances (owner, token, balance, updated_at)
VALUES (?, ?, ?, ?)
ON CONFLICT (owner, token) DO UPDATE
SET balance = paychain_ledger_balances.balance + excluded.balance,
    updated_at = excluded.updated_at
WHERE paychain_ledger_balances.balance <= ?
`, encodeKey(owner), tokenColumn(token), delta, l.now(), int64(math.MaxInt64)-delta)
	if err != nil {
		return err
	}
	if affected(result) == 0 {
		return fmt.Errorf("sqlstore: ledger balance for %s cannot absorb credit %d", owner, amount)
	}
	return nil
}

func (l *LedgerStore) debit(ctx context.Context, tx bun.Tx, owner solana.PublicKey, token solana.PublicKey, amount uint64) error {
	delta, err := toColumnAmount("ledger debit", amount)
	if err != nil {
		return err
	}
	result, err := tx.NewUpdate().
		Model((*ledgerBalanceRecord)(nil)).
		Set("balance = balance - ?", delta).
		Set("updated_at = ?", l.now()).
		Where("owner = ?", encodeKey(owner)).
		Where("token = ?", tokenColumn(token)).
		Where("balance >= ?", delta).
		Exec(ctx)
	if err != nil {
		return err
	}
	if affected(result) == 1 {
		return nil
	}
	if amount == 0 {
		return nil
	}
	held, err := loadLedgerBalance(ctx, tx, owner, token)
	if err != nil {
		return err
	}
	return fmt.Errorf("%w: %s holds %d, transfer needs %d", core.ErrInsufficientFunds, owner, held, amount)
}

func (l *LedgerStore) now() time.Time {
	if l != nil && l.Now != nil {
		return l.Now().UTC()
	}
	return time.Now().UTC()
}

func loadLedgerBalance(ctx context.Context, db bun.IDB, owner solana.PublicKey, token solana.PublicKey) (uint64, error) {
	record := &ledgerBalanceRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.owner = ?", encodeKey(owner)).
		Where("?TableAlias.token = ?", tokenColumn(token)).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return 0, nil
		}
		return 0, err
	}
	return fromColumnAmount("ledger balance", record.Balance)
}

// tokenColumn keeps the zero token, the default asset, addressable as a
// primary key component.
func tokenColumn(token solana.PublicKey) string {
	return token.String()
}

var _ core.TokenLedger = (*LedgerStore)(nil)
