package core

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/gagliardetto/solana-go"
)

type outboxRowStatus string

const (
	outboxRowPending    outboxRowStatus = "pending"
	outboxRowProcessing outboxRowStatus = "processing"
	outboxRowDelivered  outboxRowStatus = "delivered"
	outboxRowFailed     outboxRowStatus = "failed"
)

type memoryOutboxRow struct {
	event         LifecycleEvent
	status        outboxRowStatus
	attempts      int
	nextAttemptAt time.Time
	lastError     string
}

type memoryState struct {
	deployment   *Deployment
	vault        *Vault
	payments     map[Bytes32]Payment
	requests     map[string]PaymentRequest
	consumed     map[Bytes32]time.Time
	offramps     map[Bytes32]OfframpEntry
	settlements  []InboundSettlement
	pendingEvent []LifecycleEvent
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		payments:    make(map[Bytes32]Payment, len(s.payments)),
		requests:    make(map[string]PaymentRequest, len(s.requests)),
		consumed:    make(map[Bytes32]time.Time, len(s.consumed)),
		offramps:    make(map[Bytes32]OfframpEntry, len(s.offramps)),
		settlements: s.settlements[:len(s.settlements):len(s.settlements)],
	}
	if s.deployment != nil {
		deployment := *s.deployment
		out.deployment = &deployment
	}
	if s.vault != nil {
		vault := *s.vault
		out.vault = &vault
	}
	for key, value := range s.payments {
		out.payments[key] = value
	}
	for key, value := range s.requests {
		out.requests[key] = value
	}
	for key, value := range s.consumed {
		out.consumed[key] = value
	}
	for key, value := range s.offramps {
		out.offramps[key] = value
	}
	return out
}

// MemorySettlementStore keeps settlement state in process. Units are
// serialized and applied to a copy that replaces the live state only when the
// unit returns nil.
type MemorySettlementStore struct {
	mu     sync.Mutex
	state  *memoryState
	outbox []*memoryOutboxRow
	Now    func() time.Time
}

func NewMemorySettlementStore() *MemorySettlementStore {
	return &MemorySettlementStore{
		state: &memoryState{
			payments: map[Bytes32]Payment{},
			requests: map[string]PaymentRequest{},
			consumed: map[Bytes32]time.Time{},
			offramps: map[Bytes32]OfframpEntry{},
		},
		Now: func() time.Time {
			return time.Now().UTC()
		},
	}
}

func (s *MemorySettlementStore) RunInUnit(ctx context.Context, fn func(ctx context.Context, unit SettlementUnit) error) error {
	if s == nil {
		return fmt.Errorf("core: settlement store is nil")
	}
	if fn == nil {
		return fmt.Errorf("core: unit function is required")
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	working := s.state.clone()
	if err := fn(ctx, &memoryUnit{state: working}); err != nil {
		return err
	}
	for _, event := range working.pendingEvent {
		s.outbox = append(s.outbox, &memoryOutboxRow{
			event:  event,
			status: outboxRowPending,
		})
	}
	working.pendingEvent = nil
	s.state = working
	return nil
}

func (s *MemorySettlementStore) GetDeployment(_ context.Context) (Deployment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.deployment == nil {
		return Deployment{}, ErrNotInitialized
	}
	return *s.state.deployment, nil
}

func (s *MemorySettlementStore) GetVault(_ context.Context) (Vault, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state.vault == nil {
		return Vault{}, ErrNotInitialized
	}
	return *s.state.vault, nil
}

func (s *MemorySettlementStore) GetPayment(_ context.Context, id Bytes32) (Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	payment, ok := s.state.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return payment, nil
}

func (s *MemorySettlementStore) ListPayments(_ context.Context, filter PaymentFilter) ([]Payment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]Payment, 0, len(s.state.payments))
	for _, payment := range s.state.payments {
		if !filter.Sender.IsZero() && !payment.Sender.Equals(filter.Sender) {
			continue
		}
		if filter.Status != "" && payment.Status != filter.Status {
			continue
		}
		out = append(out, payment)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].ID.String() < out[j].ID.String()
		}
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	if filter.Limit > 0 && len(out) > filter.Limit {
		out = out[:filter.Limit]
	}
	return out, nil
}

func (s *MemorySettlementStore) GetPaymentRequest(_ context.Context, id string) (PaymentRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	request, ok := s.state.requests[strings.TrimSpace(id)]
	if !ok {
		return PaymentRequest{}, ErrPaymentRequestNotFound
	}
	return request, nil
}

func (s *MemorySettlementStore) ListSettlements(_ context.Context, filter SettlementFilter) ([]InboundSettlement, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]InboundSettlement, 0, len(s.state.settlements))
	for _, settlement := range s.state.settlements {
		if !filter.PaymentID.IsZero() && settlement.PaymentID != filter.PaymentID {
			continue
		}
		out = append(out, settlement)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (s *MemorySettlementStore) ClaimBatch(_ context.Context, limit int) ([]LifecycleEvent, error) {
	if limit <= 0 {
		limit = DefaultOutboxBatchSize
	}
	now := s.now()
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LifecycleEvent, 0, limit)
	for _, row := range s.outbox {
		if len(out) >= limit {
			break
		}
		if row.status != outboxRowPending || row.nextAttemptAt.After(now) {
			continue
		}
		row.status = outboxRowProcessing
		event := row.event
		event.Metadata = cloneFields(event.Metadata)
		event.Metadata[MetadataKeyOutboxAttempts] = row.attempts
		out = append(out, event)
	}
	return out, nil
}

func (s *MemorySettlementStore) Ack(_ context.Context, eventID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.findOutboxRowLocked(eventID)
	if err != nil {
		return err
	}
	row.status = outboxRowDelivered
	row.lastError = ""
	return nil
}

// Retry records a failed attempt. A zero nextAttemptAt parks the event as
// failed.
func (s *MemorySettlementStore) Retry(_ context.Context, eventID string, cause error, nextAttemptAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	row, err := s.findOutboxRowLocked(eventID)
	if err != nil {
		return err
	}
	row.attempts++
	if cause != nil {
		row.lastError = cause.Error()
	}
	if nextAttemptAt.IsZero() {
		row.status = outboxRowFailed
		return nil
	}
	row.status = outboxRowPending
	row.nextAttemptAt = nextAttemptAt.UTC()
	return nil
}

// Events returns every lifecycle event appended so far, in commit order.
func (s *MemorySettlementStore) Events() []LifecycleEvent {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]LifecycleEvent, 0, len(s.outbox))
	for _, row := range s.outbox {
		out = append(out, row.event)
	}
	return out
}

func (s *MemorySettlementStore) findOutboxRowLocked(eventID string) (*memoryOutboxRow, error) {
	eventID = strings.TrimSpace(eventID)
	for _, row := range s.outbox {
		if row.event.ID == eventID {
			return row, nil
		}
	}
	return nil, fmt.Errorf("core: outbox event %q not found", eventID)
}

func (s *MemorySettlementStore) now() time.Time {
	if s != nil && s.Now != nil {
		return s.Now().UTC()
	}
	return time.Now().UTC()
}

type memoryUnit struct {
	state *memoryState
}

func (u *memoryUnit) Deployment(context.Context) (Deployment, error) {
	if u.state.deployment == nil {
		return Deployment{}, ErrNotInitialized
	}
	return *u.state.deployment, nil
}

func (u *memoryUnit) CreateDeployment(_ context.Context, deployment Deployment) error {
	if u.state.deployment != nil {
		return ErrAlreadyInitialized
	}
	u.state.deployment = &deployment
	return nil
}

func (u *memoryUnit) UpdateDeployment(_ context.Context, deployment Deployment) error {
	if u.state.deployment == nil {
		return ErrNotInitialized
	}
	u.state.deployment = &deployment
	return nil
}

func (u *memoryUnit) Vault(context.Context) (Vault, error) {
	if u.state.vault == nil {
		return Vault{}, ErrNotInitialized
	}
	return *u.state.vault, nil
}

func (u *memoryUnit) CreateVault(_ context.Context, vault Vault) error {
	if u.state.vault != nil {
		return ErrAlreadyInitialized
	}
	u.state.vault = &vault
	return nil
}

func (u *memoryUnit) CreditVault(_ context.Context, amount uint64, at time.Time) (Vault, error) {
	if u.state.vault == nil {
		return Vault{}, ErrNotInitialized
	}
	balance, err := checkedAdd(u.state.vault.Balance, amount)
	if err != nil {
		return Vault{}, err
	}
	u.state.vault.Balance = balance
	u.state.vault.UpdatedAt = at
	return *u.state.vault, nil
}

func (u *memoryUnit) DebitVault(_ context.Context, amount uint64, at time.Time) (Vault, error) {
	if u.state.vault == nil {
		return Vault{}, ErrNotInitialized
	}
	if u.state.vault.Balance < amount {
		return Vault{}, fmt.Errorf("%w: balance %d, debit %d", ErrCustodyInsufficient, u.state.vault.Balance, amount)
	}
	u.state.vault.Balance -= amount
	u.state.vault.UpdatedAt = at
	return *u.state.vault, nil
}

func (u *memoryUnit) Payment(_ context.Context, id Bytes32) (Payment, error) {
	payment, ok := u.state.payments[id]
	if !ok {
		return Payment{}, ErrPaymentNotFound
	}
	return payment, nil
}

func (u *memoryUnit) CreatePayment(_ context.Context, payment Payment) error {
	if _, ok := u.state.payments[payment.ID]; ok {
		return ErrPaymentExists
	}
	u.state.payments[payment.ID] = payment
	return nil
}

func (u *memoryUnit) TransitionPayment(_ context.Context, id Bytes32, from PaymentStatus, to PaymentStatus, at time.Time) error {
	payment, ok := u.state.payments[id]
	if !ok {
		return ErrPaymentNotFound
	}
	if payment.Status != from {
		return fmt.Errorf("%w: payment is %s, expected %s", ErrInvalidPaymentTransition, payment.Status, from)
	}
	if err := payment.TransitionTo(to, at); err != nil {
		return err
	}
	u.state.payments[id] = payment
	return nil
}

func (u *memoryUnit) PaymentRequest(_ context.Context, id string) (PaymentRequest, error) {
	request, ok := u.state.requests[id]
	if !ok {
		return PaymentRequest{}, ErrPaymentRequestNotFound
	}
	return request, nil
}

func (u *memoryUnit) CreatePaymentRequest(_ context.Context, request PaymentRequest) error {
	if _, ok := u.state.requests[request.ID]; ok {
		return ErrPaymentRequestExists
	}
	u.state.requests[request.ID] = request
	return nil
}

func (u *memoryUnit) MarkPaymentRequestPaid(_ context.Context, id string, payer solana.PublicKey, at time.Time) error {
	request, ok := u.state.requests[id]
	if !ok {
		return ErrPaymentRequestNotFound
	}
	if err := request.MarkPaid(payer, at); err != nil {
		return err
	}
	u.state.requests[id] = request
	return nil
}

func (u *memoryUnit) ConsumeMessage(_ context.Context, messageID Bytes32, at time.Time) (bool, error) {
	if _, ok := u.state.consumed[messageID]; ok {
		return false, nil
	}
	u.state.consumed[messageID] = at
	return true, nil
}

func (u *memoryUnit) RecordSettlement(_ context.Context, settlement InboundSettlement) error {
	u.state.settlements = append(u.state.settlements, settlement)
	return nil
}

func (u *memoryUnit) Offramp(_ context.Context, id Bytes32) (OfframpEntry, error) {
	entry, ok := u.state.offramps[id]
	if !ok {
		return OfframpEntry{}, ErrOfframpNotFound
	}
	return entry, nil
}

func (u *memoryUnit) PutOfframp(_ context.Context, entry OfframpEntry) error {
	u.state.offramps[entry.ID] = entry
	return nil
}

func (u *memoryUnit) DeleteOfframp(_ context.Context, id Bytes32) error {
	if _, ok := u.state.offramps[id]; !ok {
		return ErrOfframpNotFound
	}
	delete(u.state.offramps, id)
	return nil
}

func (u *memoryUnit) AppendEvent(_ context.Context, event LifecycleEvent) error {
	if strings.TrimSpace(event.ID) == "" {
		return fmt.Errorf("core: lifecycle event id is required")
	}
	u.state.pendingEvent = append(u.state.pendingEvent, event)
	return nil
}

var (
	_ SettlementStore = (*MemorySettlementStore)(nil)
	_ OutboxStore     = (*MemorySettlementStore)(nil)
	_ SettlementUnit  = (*memoryUnit)(nil)
)
