package sqlstore

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/goliatone/go-paychain/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/google/uuid"
	"github.com/uptrace/bun"
)

// sqlUnit is the SettlementUnit bound to one open transaction. Balance and
// status changes are guarded in the WHERE clause and checked through the
// affected row count.
type sqlUnit struct {
	tx       bun.Tx
	payments repository.Repository[*paymentRecord]
	requests repository.Repository[*paymentRequestRecord]
	now      func() time.Time
}

func (u *sqlUnit) Deployment(ctx context.Context) (core.Deployment, error) {
	return loadDeployment(ctx, u.tx)
}

func (u *sqlUnit) CreateDeployment(ctx context.Context, deployment core.Deployment) error {
	exists, err := u.tx.NewSelect().
		Model((*deploymentRecord)(nil)).
		Where("?TableAlias.id = ?", deploymentRowID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return core.ErrAlreadyInitialized
	}
	record, err := newDeploymentRecord(deployment)
	if err != nil {
		return err
	}
	_, err = u.tx.NewInsert().Model(record).Exec(ctx)
	return err
}

func (u *sqlUnit) UpdateDeployment(ctx context.Context, deployment core.Deployment) error {
	record, err := newDeploymentRecord(deployment)
	if err != nil {
		return err
	}
	result, err := u.tx.NewUpdate().
		Model(record).
		Column("authority", "fee_recipient", "router", "chain_id", "fixed_base_fee", "fee_rate_bps", "updated_at").
		Where("?TableAlias.id = ?", deploymentRowID).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(result, core.ErrNotInitialized)
}

func (u *sqlUnit) Vault(ctx context.Context) (core.Vault, error) {
	return loadVault(ctx, u.tx)
}

func (u *sqlUnit) CreateVault(ctx context.Context, vault core.Vault) error {
	exists, err := u.tx.NewSelect().
		Model((*vaultRecord)(nil)).
		Where("?TableAlias.id = ?", vaultRowID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return core.ErrAlreadyInitialized
	}
	record, err := newVaultRecord(vault)
	if err != nil {
		return err
	}
	_, err = u.tx.NewInsert().Model(record).Exec(ctx)
	return err
}

func (u *sqlUnit) CreditVault(ctx context.Context, amount uint64, at time.Time) (core.Vault, error) {
	delta, err := toColumnAmount("vault credit", amount)
	if err != nil {
		return core.Vault{}, err
	}
	result, err := u.tx.NewUpdate().
		Model((*vaultRecord)(nil)).
		Set("balance = balance + ?", delta).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", vaultRowID).
		Where("balance <= ?", int64(math.MaxInt64)-delta).
		Exec(ctx)
	if err != nil {
		return core.Vault{}, err
	}
	if affected(result) == 0 {
		current, loadErr := loadVault(ctx, u.tx)
		if loadErr != nil {
			return core.Vault{}, loadErr
		}
		return core.Vault{}, fmt.Errorf("sqlstore: vault balance %d cannot absorb credit %d", current.Balance, amount)
	}
	return loadVault(ctx, u.tx)
}

func (u *sqlUnit) DebitVault(ctx context.Context, amount uint64, at time.Time) (core.Vault, error) {
	delta, err := toColumnAmount("vault debit", amount)
	if err != nil {
		return core.Vault{}, err
	}
	result, err := u.tx.NewUpdate().
		Model((*vaultRecord)(nil)).
		Set("balance = balance - ?", delta).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", vaultRowID).
		Where("balance >= ?", delta).
		Exec(ctx)
	if err != nil {
		return core.Vault{}, err
	}
	if affected(result) == 0 {
		current, loadErr := loadVault(ctx, u.tx)
		if loadErr != nil {
			return core.Vault{}, loadErr
		}
		return core.Vault{}, fmt.Errorf("%w: balance %d, debit %d", core.ErrCustodyInsufficient, current.Balance, amount)
	}
	return loadVault(ctx, u.tx)
}

func (u *sqlUnit) Payment(ctx context.Context, id core.Bytes32) (core.Payment, error) {
	return loadPayment(ctx, u.tx, id)
}

func (u *sqlUnit) CreatePayment(ctx context.Context, payment core.Payment) error {
	exists, err := u.tx.NewSelect().
		Model((*paymentRecord)(nil)).
		Where("?TableAlias.id = ?", payment.ID.String()).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", core.ErrPaymentExists, payment.ID)
	}
	record, err := newPaymentRecord(payment)
	if err != nil {
		return err
	}
	_, err = u.payments.CreateTx(ctx, u.tx, record)
	return err
}

func (u *sqlUnit) TransitionPayment(ctx context.Context, id core.Bytes32, from core.PaymentStatus, to core.PaymentStatus, at time.Time) error {
	current, err := loadPayment(ctx, u.tx, id)
	if err != nil {
		return err
	}
	if current.Status != from {
		return fmt.Errorf("%w: payment is %s, expected %s", core.ErrInvalidPaymentTransition, current.Status, from)
	}
	if err := current.TransitionTo(to, at); err != nil {
		return err
	}
	result, err := u.tx.NewUpdate().
		Model((*paymentRecord)(nil)).
		Set("status = ?", string(to)).
		Set("updated_at = ?", at.UTC()).
		Where("id = ?", id.String()).
		Where("status = ?", string(from)).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Errorf("%w: payment %s changed concurrently", core.ErrInvalidPaymentTransition, id))
}

func (u *sqlUnit) PaymentRequest(ctx context.Context, id string) (core.PaymentRequest, error) {
	return loadPaymentRequest(ctx, u.tx, id)
}

func (u *sqlUnit) CreatePaymentRequest(ctx context.Context, request core.PaymentRequest) error {
	exists, err := u.tx.NewSelect().
		Model((*paymentRequestRecord)(nil)).
		Where("?TableAlias.id = ?", request.ID).
		Exists(ctx)
	if err != nil {
		return err
	}
	if exists {
		return fmt.Errorf("%w: %s", core.ErrPaymentRequestExists, request.ID)
	}
	record, err := newPaymentRequestRecord(request)
	if err != nil {
		return err
	}
	_, err = u.requests.CreateTx(ctx, u.tx, record)
	return err
}

func (u *sqlUnit) MarkPaymentRequestPaid(ctx context.Context, id string, payer solana.PublicKey, at time.Time) error {
	current, err := loadPaymentRequest(ctx, u.tx, id)
	if err != nil {
		return err
	}
	if err := current.MarkPaid(payer, at); err != nil {
		return err
	}
	result, err := u.tx.NewUpdate().
		Model((*paymentRequestRecord)(nil)).
		Set("is_paid = ?", true).
		Set("payer = ?", encodeKey(payer)).
		Set("paid_at = ?", at.UTC()).
		Where("id = ?", id).
		Where("is_paid = ?", false).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(result, core.ErrAlreadyPaid)
}

func (u *sqlUnit) ConsumeMessage(ctx context.Context, messageID core.Bytes32, at time.Time) (bool, error) {
	result, err := u.tx.NewInsert().
		Model(&consumedMessageRecord{MessageID: messageID.String(), ConsumedAt: at.UTC()}).
		On("CONFLICT (message_id) DO NOTHING").
		Exec(ctx)
	if err != nil {
		return false, err
	}
	return affected(result) == 1, nil
}

func (u *sqlUnit) RecordSettlement(ctx context.Context, settlement core.InboundSettlement) error {
	record, err := newSettlementRecord(uuid.NewString(), settlement)
	if err != nil {
		return err
	}
	_, err = u.tx.NewInsert().Model(record).Exec(ctx)
	return err
}

func (u *sqlUnit) Offramp(ctx context.Context, id core.Bytes32) (core.OfframpEntry, error) {
	record := &offrampRecord{}
	err := u.tx.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if err == sql.ErrNoRows {
			return core.OfframpEntry{}, fmt.Errorf("%w: %s", core.ErrOfframpNotFound, id)
		}
		return core.OfframpEntry{}, err
	}
	return record.toDomain()
}

func (u *sqlUnit) PutOfframp(ctx context.Context, entry core.OfframpEntry) error {
	if _, err := u.tx.NewDelete().
		Model((*offrampRecord)(nil)).
		Where("id = ?", entry.ID.String()).
		Exec(ctx); err != nil {
		return err
	}
	_, err := u.tx.NewInsert().Model(newOfframpRecord(entry)).Exec(ctx)
	return err
}

func (u *sqlUnit) DeleteOfframp(ctx context.Context, id core.Bytes32) error {
	result, err := u.tx.NewDelete().
		Model((*offrampRecord)(nil)).
		Where("id = ?", id.String()).
		Exec(ctx)
	if err != nil {
		return err
	}
	return requireAffected(result, fmt.Errorf("%w: %s", core.ErrOfframpNotFound, id))
}

func (u *sqlUnit) AppendEvent(ctx context.Context, event core.LifecycleEvent) error {
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("sqlstore: lifecycle event id is required")
	}
	if strings.TrimSpace(event.Name) == "" {
		return fmt.Errorf("sqlstore: lifecycle event name is required")
	}
	_, err := u.tx.NewInsert().Model(newOutboxRecord(uuid.NewString(), event, u.now())).Exec(ctx)
	return err
}

func affected(result sql.Result) int64 {
	if result == nil {
		return 0
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0
	}
	return rows
}

func requireAffected(result sql.Result, missing error) error {
	if affected(result) == 0 {
		return missing
	}
	return nil
}

var _ core.SettlementUnit = (*sqlUnit)(nil)
