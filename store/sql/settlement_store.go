package sqlstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/goliatone/go-paychain/core"
	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"
)

type unitTxKey struct{}

// withUnitTx marks ctx as running inside a settlement unit so that the SQL
// ledger joins the same transaction.
func withUnitTx(ctx context.Context, tx bun.Tx) context.Context {
	return context.WithValue(ctx, unitTxKey{}, tx)
}

func unitTxFromContext(ctx context.Context) (bun.Tx, bool) {
	if ctx == nil {
		return bun.Tx{}, false
	}
	tx, ok := ctx.Value(unitTxKey{}).(bun.Tx)
	return tx, ok
}

type SettlementStore struct {
	db          *bun.DB
	payments    repository.Repository[*paymentRecord]
	requests    repository.Repository[*paymentRequestRecord]
	settlements repository.Repository[*settlementRecord]
	Now         func() time.Time
}

func NewSettlementStore(db *bun.DB) (*SettlementStore, error) {
	if db == nil {
		return nil, fmt.Errorf("sqlstore: bun db is required")
	}
	payments := repository.NewRepository[*paymentRecord](db, paymentHandlers())
	if validator, ok := payments.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid payment repository wiring: %w", err)
		}
	}
	requests := repository.NewRepository[*paymentRequestRecord](db, paymentRequestHandlers())
	if validator, ok := requests.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid payment request repository wiring: %w", err)
		}
	}
	settlements := repository.NewRepository[*settlementRecord](db, settlementHandlers())
	if validator, ok := settlements.(repository.Validator); ok {
		if err := validator.Validate(); err != nil {
			return nil, fmt.Errorf("sqlstore: invalid settlement repository wiring: %w", err)
		}
	}
	return &SettlementStore{
		db:          db,
		payments:    payments,
		requests:    requests,
		settlements: settlements,
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}, nil
}

// RunInUnit executes fn inside one database transaction. A unit started
// while another is active on ctx joins it.
func (s *SettlementStore) RunInUnit(ctx context.Context, fn func(ctx context.Context, unit core.SettlementUnit) error) error {
	if s == nil || s.db == nil {
		return fmt.Errorf("sqlstore: settlement store is not configured")
	}
	if fn == nil {
		return fmt.Errorf("sqlstore: unit function is required")
	}
	if tx, ok := unitTxFromContext(ctx); ok {
		return fn(ctx, s.unit(tx))
	}
	return s.db.RunInTx(ctx, nil, func(ctx context.Context, tx bun.Tx) error {
		return fn(withUnitTx(ctx, tx), s.unit(tx))
	})
}

func (s *SettlementStore) unit(tx bun.Tx) *sqlUnit {
	return &sqlUnit{
		tx:       tx,
		payments: s.payments,
		requests: s.requests,
		now:      s.now,
	}
}

func (s *SettlementStore) GetDeployment(ctx context.Context) (core.Deployment, error) {
	if s == nil || s.db == nil {
		return core.Deployment{}, fmt.Errorf("sqlstore: settlement store is not configured")
	}
	return loadDeployment(ctx, s.db)
}

func (s *SettlementStore) GetVault(ctx context.Context) (core.Vault, error) {
	if s == nil || s.db == nil {
		return core.Vault{}, fmt.Errorf("sqlstore: settlement store is not configured")
	}
	return loadVault(ctx, s.db)
}

func (s *SettlementStore) GetPayment(ctx context.Context, id core.Bytes32) (core.Payment, error) {
	if s == nil || s.db == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: settlement store is not configured")
	}
	return loadPayment(ctx, s.db, id)
}

func (s *SettlementStore) ListPayments(ctx context.Context, filter core.PaymentFilter) ([]core.Payment, error) {
	if s == nil || s.payments == nil {
		return nil, fmt.Errorf("sqlstore: settlement store is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("created_at ASC"),
		repository.OrderBy("id ASC"),
	}
	if !filter.Sender.IsZero() {
		selectors = append(selectors, repository.SelectBy("sender", "=", encodeKey(filter.Sender)))
	}
	if filter.Status != "" {
		selectors = append(selectors, repository.SelectBy("status", "=", string(filter.Status)))
	}
	if filter.Limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(filter.Limit, 0))
	}
	records, _, err := s.payments.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.Payment, 0, len(records))
	for _, record := range records {
		payment, err := record.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, payment)
	}
	return out, nil
}

func (s *SettlementStore) GetPaymentRequest(ctx context.Context, id string) (core.PaymentRequest, error) {
	if s == nil || s.db == nil {
		return core.PaymentRequest{}, fmt.Errorf("sqlstore: settlement store is not configured")
	}
	return loadPaymentRequest(ctx, s.db, strings.TrimSpace(id))
}

func (s *SettlementStore) ListSettlements(ctx context.Context, filter core.SettlementFilter) ([]core.InboundSettlement, error) {
	if s == nil || s.settlements == nil {
		return nil, fmt.Errorf("sqlstore: settlement store is not configured")
	}
	selectors := []repository.SelectCriteria{
		repository.OrderBy("settled_at ASC"),
	}
	if !filter.PaymentID.IsZero() {
		selectors = append(selectors, repository.SelectBy("payment_id", "=", filter.PaymentID.String()))
	}
	if filter.Limit > 0 {
		selectors = append(selectors, repository.SelectPaginate(filter.Limit, 0))
	}
	records, _, err := s.settlements.List(ctx, selectors...)
	if err != nil {
		return nil, err
	}
	out := make([]core.InboundSettlement, 0, len(records))
	for _, record := range records {
		settlement, err := record.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, settlement)
	}
	return out, nil
}

func (s *SettlementStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

func loadDeployment(ctx context.Context, db bun.IDB) (core.Deployment, error) {
	record := &deploymentRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", deploymentRowID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Deployment{}, core.ErrNotInitialized
		}
		return core.Deployment{}, err
	}
	return record.toDomain()
}

func loadVault(ctx context.Context, db bun.IDB) (core.Vault, error) {
	record := &vaultRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", vaultRowID).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Vault{}, core.ErrNotInitialized
		}
		return core.Vault{}, err
	}
	return record.toDomain()
}

func loadPayment(ctx context.Context, db bun.IDB, id core.Bytes32) (core.Payment, error) {
	record := &paymentRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id.String()).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.Payment{}, fmt.Errorf("%w: %s", core.ErrPaymentNotFound, id)
		}
		return core.Payment{}, err
	}
	return record.toDomain()
}

func loadPaymentRequest(ctx context.Context, db bun.IDB, id string) (core.PaymentRequest, error) {
	record := &paymentRequestRecord{}
	err := db.NewSelect().
		Model(record).
		Where("?TableAlias.id = ?", id).
		Limit(1).
		Scan(ctx)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return core.PaymentRequest{}, fmt.Errorf("%w: %s", core.ErrPaymentRequestNotFound, id)
		}
		return core.PaymentRequest{}, err
	}
	return record.toDomain()
}

var _ core.SettlementStore = (*SettlementStore)(nil)
