package sqlstore

import (
	"context"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/goliatone/go-paychain/core"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
)

const settlementCacheKeyPrefix = "go-paychain::settlement::v1"

// CachedSettlementStore serves deployment, payment and payment request reads
// from a cache. Keys touched by a unit are evicted once the unit commits.
type CachedSettlementStore struct {
	base  core.SettlementStore
	cache repositorycache.CacheService
}

func NewCachedSettlementStore(
	base core.SettlementStore,
	cacheService repositorycache.CacheService,
) (*CachedSettlementStore, error) {
	if base == nil {
		return nil, fmt.Errorf("sqlstore: base settlement store is required")
	}
	if cacheService == nil {
		return nil, fmt.Errorf("sqlstore: settlement cache service is required")
	}
	return &CachedSettlementStore{base: base, cache: cacheService}, nil
}

// SettlementCacheKey returns go-paychain::settlement::v1::<kind>[::<id>] with
// every segment URL-path escaped.
func SettlementCacheKey(kind string, id ...string) string {
	segments := []string{settlementCacheKeyPrefix, url.PathEscape(strings.TrimSpace(kind))}
	for _, segment := range id {
		segments = append(segments, url.PathEscape(strings.TrimSpace(segment)))
	}
	return strings.Join(segments, "::")
}

func (s *CachedSettlementStore) RunInUnit(ctx context.Context, fn func(ctx context.Context, unit core.SettlementUnit) error) error {
	if s == nil || s.base == nil || s.cache == nil {
		return fmt.Errorf("sqlstore: cached settlement store is not configured")
	}
	var touched []string
	err := s.base.RunInUnit(ctx, func(ctx context.Context, unit core.SettlementUnit) error {
		tracking := &evictingUnit{SettlementUnit: unit}
		if err := fn(ctx, tracking); err != nil {
			return err
		}
		touched = tracking.keys
		return nil
	})
	if err != nil {
		return err
	}
	for _, key := range touched {
		if err := s.cache.Delete(ctx, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *CachedSettlementStore) GetDeployment(ctx context.Context) (core.Deployment, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Deployment{}, fmt.Errorf("sqlstore: cached settlement store is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, SettlementCacheKey("deployment"), func(ctx context.Context) (core.Deployment, error) {
		return s.base.GetDeployment(ctx)
	})
}

// GetVault always reads through; the balance moves on every settlement.
func (s *CachedSettlementStore) GetVault(ctx context.Context) (core.Vault, error) {
	if s == nil || s.base == nil {
		return core.Vault{}, fmt.Errorf("sqlstore: cached settlement store is not configured")
	}
	return s.base.GetVault(ctx)
}

func (s *CachedSettlementStore) GetPayment(ctx context.Context, id core.Bytes32) (core.Payment, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.Payment{}, fmt.Errorf("sqlstore: cached settlement store is not configured")
	}
	return repositorycache.GetOrFetch(ctx, s.cache, SettlementCacheKey("payment", id.String()), func(ctx context.Context) (core.Payment, error) {
		return s.base.GetPayment(ctx, id)
	})
}

func (s *CachedSettlementStore) ListPayments(ctx context.Context, filter core.PaymentFilter) ([]core.Payment, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached settlement store is not configured")
	}
	return s.base.ListPayments(ctx, filter)
}

func (s *CachedSettlementStore) GetPaymentRequest(ctx context.Context, id string) (core.PaymentRequest, error) {
	if s == nil || s.base == nil || s.cache == nil {
		return core.PaymentRequest{}, fmt.Errorf("sqlstore: cached settlement store is not configured")
	}
	id = strings.TrimSpace(id)
	request, err := repositorycache.GetOrFetch(ctx, s.cache, SettlementCacheKey("payment_request", id), func(ctx context.Context) (core.PaymentRequest, error) {
		return s.base.GetPaymentRequest(ctx, id)
	})
	if err != nil {
		return core.PaymentRequest{}, err
	}
	return clonePaymentRequest(request), nil
}

func (s *CachedSettlementStore) ListSettlements(ctx context.Context, filter core.SettlementFilter) ([]core.InboundSettlement, error) {
	if s == nil || s.base == nil {
		return nil, fmt.Errorf("sqlstore: cached settlement store is not configured")
	}
	return s.base.ListSettlements(ctx, filter)
}

type evictingUnit struct {
	core.SettlementUnit
	keys []string
}

func (u *evictingUnit) touch(key string) {
	u.keys = append(u.keys, key)
}

func (u *evictingUnit) CreateDeployment(ctx context.Context, deployment core.Deployment) error {
	u.touch(SettlementCacheKey("deployment"))
	return u.SettlementUnit.CreateDeployment(ctx, deployment)
}

func (u *evictingUnit) UpdateDeployment(ctx context.Context, deployment core.Deployment) error {
	u.touch(SettlementCacheKey("deployment"))
	return u.SettlementUnit.UpdateDeployment(ctx, deployment)
}

func (u *evictingUnit) CreatePayment(ctx context.Context, payment core.Payment) error {
	u.touch(SettlementCacheKey("payment", payment.ID.String()))
	return u.SettlementUnit.CreatePayment(ctx, payment)
}

func (u *evictingUnit) TransitionPayment(ctx context.Context, id core.Bytes32, from core.PaymentStatus, to core.PaymentStatus, at time.Time) error {
	u.touch(SettlementCacheKey("payment", id.String()))
	return u.SettlementUnit.TransitionPayment(ctx, id, from, to, at)
}

func (u *evictingUnit) CreatePaymentRequest(ctx context.Context, request core.PaymentRequest) error {
	u.touch(SettlementCacheKey("payment_request", request.ID))
	return u.SettlementUnit.CreatePaymentRequest(ctx, request)
}

func (u *evictingUnit) MarkPaymentRequestPaid(ctx context.Context, id string, payer solana.PublicKey, at time.Time) error {
	u.touch(SettlementCacheKey("payment_request", id))
	return u.SettlementUnit.MarkPaymentRequestPaid(ctx, id, payer, at)
}

func clonePaymentRequest(request core.PaymentRequest) core.PaymentRequest {
	cloned := request
	if request.Payer != nil {
		payer := *request.Payer
		cloned.Payer = &payer
	}
	if request.PaidAt != nil {
		paidAt := request.PaidAt.UTC()
		cloned.PaidAt = &paidAt
	}
	return cloned
}

var (
	_ core.SettlementStore = (*CachedSettlementStore)(nil)
	_ core.SettlementUnit  = (*evictingUnit)(nil)
)
