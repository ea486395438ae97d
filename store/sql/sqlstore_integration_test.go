package sqlstore_test

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"io/fs"
	"sync"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/goliatone/go-paychain/core"
	paychainmigrations "github.com/goliatone/go-paychain/migrations"
	sqlstore "github.com/goliatone/go-paychain/store/sql"
	persistence "github.com/goliatone/go-persistence-bun"
	repositorycache "github.com/goliatone/go-repository-cache/cache"
	_ "github.com/mattn/go-sqlite3"
	"github.com/uptrace/bun/dialect/sqlitedialect"
)

const testSeedHex = "0x000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type testPersistenceConfig struct {
	driver string
	server string
}

func (c testPersistenceConfig) GetDebug() bool {
	return false
}

func (c testPersistenceConfig) GetDriver() string {
	return c.driver
}

func (c testPersistenceConfig) GetServer() string {
	return c.server
}

func (c testPersistenceConfig) GetPingTimeout() time.Duration {
	return time.Second
}

func (c testPersistenceConfig) GetOtelIdentifier() string {
	return "go-paychain-tests"
}

type sqlHarness struct {
	svc     *core.Service
	factory *sqlstore.RepositoryFactory
	ledger  *sqlstore.LedgerStore

	authority solana.PrivateKey
	router    solana.PrivateKey
	program   solana.PrivateKey
	relay     solana.PrivateKey
	sender    solana.PrivateKey
}

func newSQLHarness(t *testing.T, opts ...sqlstore.FactoryOption) *sqlHarness {
	t.Helper()
	client, cleanup := newSQLiteClient(t)
	t.Cleanup(cleanup)

	factory, err := sqlstore.NewRepositoryFactoryFromPersistence(client, opts...)
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	svc, err := core.NewService(core.Config{
		Custody: core.CustodyConfig{Seed: testSeedHex},
	},
		core.WithPersistenceClient(client),
		core.WithRepositoryFactory(factory),
		core.WithTokenLedger(factory.LedgerStore()),
	)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	h := &sqlHarness{
		svc:       svc,
		factory:   factory,
		ledger:    factory.LedgerStore(),
		authority: newKey(t),
		router:    newKey(t),
		program:   newKey(t),
		relay:     newKey(t),
		sender:    newKey(t),
	}
	if _, err := svc.Initialize(context.Background(), core.InitializeRequest{
		Caller:    h.authority.PublicKey(),
		Router:    h.router.PublicKey(),
		ProgramID: h.program.PublicKey(),
		ChainID:   "solana-devnet",
	}); err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return h
}

func (h *sqlHarness) fund(t *testing.T, owner solana.PublicKey, amount uint64) {
	t.Helper()
	if err := h.ledger.Fund(context.Background(), owner, solana.PublicKey{}, amount); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func (h *sqlHarness) balance(t *testing.T, owner solana.PublicKey) uint64 {
	t.Helper()
	balance, err := h.ledger.Balance(context.Background(), owner, solana.PublicKey{})
	if err != nil {
		t.Fatalf("balance: %v", err)
	}
	return balance
}

func (h *sqlHarness) vaultBalance(t *testing.T) uint64 {
	t.Helper()
	vault, err := h.svc.GetVault(context.Background())
	if err != nil {
		t.Fatalf("get vault: %v", err)
	}
	return vault.Balance
}

func TestMigrationSmokeApplySQLite(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	var tableName string
	if err := client.DB().NewRaw(
		"SELECT name FROM sqlite_master WHERE type = 'table' AND name = ?",
		"paychain_payments",
	).Scan(context.Background(), &tableName); err != nil {
		t.Fatalf("query sqlite master: %v", err)
	}
	if tableName != "paychain_payments" {
		t.Fatalf("expected paychain_payments table, got %q", tableName)
	}
}

func TestSQLStore_InitializeOnce(t *testing.T) {
	h := newSQLHarness(t)

	deployment, err := h.svc.GetDeployment(context.Background())
	if err != nil {
		t.Fatalf("get deployment: %v", err)
	}
	if !deployment.Authority.Equals(h.authority.PublicKey()) {
		t.Fatalf("expected stored authority to round-trip")
	}
	if deployment.FixedBaseFee != core.DefaultFixedBaseFee || deployment.FeeRateBps != core.DefaultFeeRateBps {
		t.Fatalf("unexpected stored fees: %+v", deployment)
	}
	if h.vaultBalance(t) != 0 {
		t.Fatalf("expected empty vault after initialize")
	}

	_, err = h.svc.Initialize(context.Background(), core.InitializeRequest{
		Caller:    newKey(t).PublicKey(),
		Router:    h.router.PublicKey(),
		ProgramID: h.program.PublicKey(),
		ChainID:   "solana-devnet",
	})
	if !errors.Is(err, core.ErrAlreadyInitialized) {
		t.Fatalf("expected ErrAlreadyInitialized, got %v", err)
	}
}

func TestSQLStore_PaymentLifecycleAndRefund(t *testing.T) {
	ctx := context.Background()
	h := newSQLHarness(t)
	h.fund(t, h.sender.PublicKey(), 20_000_000)

	payment, err := h.svc.CreatePayment(ctx, core.CreatePaymentRequest{
		PaymentID:   bytes32(0x01),
		Sender:      h.sender.PublicKey(),
		DestChainID: "eip155:8453",
		Amount:      10_000_000,
		Receiver:    bytes32(0xee),
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	if payment.Fee != core.DefaultFixedBaseFee {
		t.Fatalf("expected fixed fee to dominate, got %d", payment.Fee)
	}
	if got := h.vaultBalance(t); got != 10_500_000 {
		t.Fatalf("expected vault=10500000, got %d", got)
	}
	if got := h.balance(t, h.sender.PublicKey()); got != 9_500_000 {
		t.Fatalf("expected sender=9500000, got %d", got)
	}

	if _, err := h.svc.CreatePayment(ctx, core.CreatePaymentRequest{
		PaymentID:   bytes32(0x01),
		Sender:      h.sender.PublicKey(),
		DestChainID: "eip155:8453",
		Amount:      1,
	}); !errors.Is(err, core.ErrPaymentExists) {
		t.Fatalf("expected ErrPaymentExists, got %v", err)
	}

	if _, err := h.svc.ProcessRefund(ctx, core.ProcessRefundRequest{
		Caller:    h.authority.PublicKey(),
		PaymentID: payment.ID,
	}); !errors.Is(err, core.ErrPaymentNotFailed) {
		t.Fatalf("expected pending refund to fail, got %v", err)
	}

	if _, err := h.svc.TransitionPayment(ctx, core.TransitionPaymentRequest{
		Caller:    h.authority.PublicKey(),
		PaymentID: payment.ID,
		Status:    core.PaymentStatusFailed,
	}); err != nil {
		t.Fatalf("transition to failed: %v", err)
	}
	refunded, err := h.svc.ProcessRefund(ctx, core.ProcessRefundRequest{
		Caller:    h.authority.PublicKey(),
		PaymentID: payment.ID,
	})
	if err != nil {
		t.Fatalf("refund: %v", err)
	}
	if refunded.Status != core.PaymentStatusRefunded {
		t.Fatalf("expected refunded status, got %s", refunded.Status)
	}
	if got := h.vaultBalance(t); got != 500_000 {
		t.Fatalf("expected fee to stay in the vault, got %d", got)
	}
	if got := h.balance(t, h.sender.PublicKey()); got != 19_500_000 {
		t.Fatalf("expected sender=19500000 after refund, got %d", got)
	}

	stored, err := h.svc.GetPayment(ctx, payment.ID)
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if stored.Status != core.PaymentStatusRefunded || stored.Amount != 10_000_000 || !stored.Sender.Equals(h.sender.PublicKey()) {
		t.Fatalf("unexpected stored payment: %+v", stored)
	}

	listed, err := h.svc.ListPayments(ctx, core.PaymentFilter{Status: core.PaymentStatusRefunded})
	if err != nil {
		t.Fatalf("list payments: %v", err)
	}
	if len(listed) != 1 || listed[0].ID != payment.ID {
		t.Fatalf("expected one refunded payment, got %+v", listed)
	}
	pending, err := h.svc.ListPayments(ctx, core.PaymentFilter{Status: core.PaymentStatusPending})
	if err != nil {
		t.Fatalf("list pending payments: %v", err)
	}
	if len(pending) != 0 {
		t.Fatalf("expected no pending payments, got %d", len(pending))
	}
}

func TestSQLStore_FailedUnitRollsBack(t *testing.T) {
	ctx := context.Background()
	h := newSQLHarness(t)
	h.fund(t, h.sender.PublicKey(), 1_000_000)

	_, err := h.svc.CreatePayment(ctx, core.CreatePaymentRequest{
		PaymentID:   bytes32(0x02),
		Sender:      h.sender.PublicKey(),
		DestChainID: "eip155:8453",
		Amount:      1_000_000,
	})
	if !errors.Is(err, core.ErrInsufficientFunds) {
		t.Fatalf("expected ErrInsufficientFunds, got %v", err)
	}
	if _, err := h.svc.GetPayment(ctx, bytes32(0x02)); !errors.Is(err, core.ErrPaymentNotFound) {
		t.Fatalf("expected payment row to be rolled back, got %v", err)
	}
	if got := h.vaultBalance(t); got != 0 {
		t.Fatalf("expected vault credit to be rolled back, got %d", got)
	}
	if got := h.balance(t, h.sender.PublicKey()); got != 1_000_000 {
		t.Fatalf("expected sender balance untouched, got %d", got)
	}

	events, err := h.factory.OutboxStore().ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim outbox: %v", err)
	}
	for _, event := range events {
		if event.Name == core.EventPaymentCreated {
			t.Fatalf("expected rolled back payment event to be absent")
		}
	}
}

func TestSQLStore_ReceiveCrossChainConsumesOnce(t *testing.T) {
	ctx := context.Background()
	h := newSQLHarness(t)
	h.fund(t, h.sender.PublicKey(), 5_000_000)
	if _, err := h.svc.CreatePayment(ctx, core.CreatePaymentRequest{
		PaymentID:   bytes32(0x03),
		Sender:      h.sender.PublicKey(),
		DestChainID: "eip155:8453",
		Amount:      1_000_000,
	}); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	const selector = uint64(16015286601757825753)
	if _, err := h.svc.AllowOfframp(ctx, core.OfframpRequest{
		Caller:              h.router.PublicKey(),
		SourceChainSelector: selector,
		Relay:               h.relay.PublicKey(),
	}); err != nil {
		t.Fatalf("allow offramp: %v", err)
	}

	receiver := newKey(t).PublicKey()
	data, err := core.EncodeSettlementPayload(core.SettlementPayload{
		PaymentID: bytes32(0x03),
		Amount:    900_000,
		Receiver:  core.Bytes32FromPublicKey(receiver),
	})
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	request, err := core.NewRelayDelivery(h.relay, h.program.PublicKey(), core.CrossChainMessage{
		MessageID:           bytes32(0x77),
		SourceChainSelector: selector,
		Sender:              bytes32(0x51),
		Data:                data,
	})
	if err != nil {
		t.Fatalf("new relay delivery: %v", err)
	}

	settlement, err := h.svc.ReceiveCrossChain(ctx, request)
	if err != nil {
		t.Fatalf("receive cross chain: %v", err)
	}
	if settlement.Amount != 900_000 || settlement.SourceChainSelector != selector {
		t.Fatalf("unexpected settlement: %+v", settlement)
	}
	if got := h.balance(t, receiver); got != 900_000 {
		t.Fatalf("expected receiver=900000, got %d", got)
	}
	if got := h.vaultBalance(t); got != 600_000 {
		t.Fatalf("expected vault=600000, got %d", got)
	}

	if _, err := h.svc.ReceiveCrossChain(ctx, request); !errors.Is(err, core.ErrDuplicateMessage) {
		t.Fatalf("expected ErrDuplicateMessage, got %v", err)
	}
	if got := h.balance(t, receiver); got != 900_000 {
		t.Fatalf("expected duplicate delivery to release nothing, got %d", got)
	}

	settlements, err := h.svc.ListSettlements(ctx, core.SettlementFilter{PaymentID: bytes32(0x03)})
	if err != nil {
		t.Fatalf("list settlements: %v", err)
	}
	if len(settlements) != 1 {
		t.Fatalf("expected one settlement row, got %d", len(settlements))
	}
	if settlements[0].SourceChainSelector != selector || settlements[0].TxHash == "" {
		t.Fatalf("expected selector and tx hash to round-trip, got %+v", settlements[0])
	}

	payment, err := h.svc.GetPayment(ctx, bytes32(0x03))
	if err != nil {
		t.Fatalf("get payment: %v", err)
	}
	if payment.Status != core.PaymentStatusPending {
		t.Fatalf("expected inbound settlement to leave payment pending, got %s", payment.Status)
	}
}

func TestSQLStore_PayRequestOnce(t *testing.T) {
	ctx := context.Background()
	h := newSQLHarness(t)
	merchant := newKey(t).PublicKey()
	payer := newKey(t).PublicKey()
	second := newKey(t).PublicKey()
	h.fund(t, payer, 3_000_000)
	h.fund(t, second, 3_000_000)

	request, err := h.svc.CreatePaymentRequest(ctx, core.CreatePaymentRequestInput{
		RequestID:   "inv-001",
		Merchant:    merchant,
		Amount:      2_000_000,
		Description: "order 1",
	})
	if err != nil {
		t.Fatalf("create payment request: %v", err)
	}
	if request.IsPaid {
		t.Fatalf("expected new request to be unpaid")
	}

	paid, err := h.svc.PayRequest(ctx, core.PayRequestInput{RequestID: "inv-001", Payer: payer})
	if err != nil {
		t.Fatalf("pay request: %v", err)
	}
	if !paid.IsPaid || paid.Payer == nil || !paid.Payer.Equals(payer) {
		t.Fatalf("expected request paid by payer, got %+v", paid)
	}
	if _, err := h.svc.PayRequest(ctx, core.PayRequestInput{RequestID: "inv-001", Payer: second}); !errors.Is(err, core.ErrAlreadyPaid) {
		t.Fatalf("expected ErrAlreadyPaid, got %v", err)
	}
	if got := h.balance(t, merchant); got != 2_000_000 {
		t.Fatalf("expected merchant=2000000, got %d", got)
	}
	if got := h.balance(t, second); got != 3_000_000 {
		t.Fatalf("expected second payer untouched, got %d", got)
	}

	stored, err := h.svc.GetPaymentRequest(ctx, "inv-001")
	if err != nil {
		t.Fatalf("get payment request: %v", err)
	}
	if stored.PaidAt == nil || stored.Payer == nil || !stored.Payer.Equals(payer) {
		t.Fatalf("expected payer and paid_at to be persisted, got %+v", stored)
	}
}

func TestLedgerStore_RejectsUnsignedVaultRelease(t *testing.T) {
	h := newSQLHarness(t)
	vault := newKey(t).PublicKey()
	h.fund(t, vault, 100)

	_, err := h.ledger.Transfer(context.Background(), core.TransferInstruction{
		Kind:   core.TransferKindRelease,
		From:   vault,
		To:     newKey(t).PublicKey(),
		Amount: 50,
	})
	if !errors.Is(err, core.ErrUnauthorized) {
		t.Fatalf("expected unsigned release to be rejected, got %v", err)
	}
	if got := h.balance(t, vault); got != 100 {
		t.Fatalf("expected vault ledger balance untouched, got %d", got)
	}
}

func TestOutboxStore_DispatchesCommittedEvents(t *testing.T) {
	ctx := context.Background()
	h := newSQLHarness(t)
	h.fund(t, h.sender.PublicKey(), 5_000_000)
	if _, err := h.svc.CreatePayment(ctx, core.CreatePaymentRequest{
		PaymentID:   bytes32(0x04),
		Sender:      h.sender.PublicKey(),
		DestChainID: "eip155:8453",
		Amount:      1_000_000,
	}); err != nil {
		t.Fatalf("create payment: %v", err)
	}

	sink := &recordingSink{}
	dispatcher, err := core.NewOutboxDispatcher(h.factory.OutboxStore(), core.DefaultOutboxDispatcherConfig(), sink)
	if err != nil {
		t.Fatalf("new dispatcher: %v", err)
	}
	stats, err := dispatcher.DispatchPending(ctx, 10)
	if err != nil {
		t.Fatalf("dispatch: %v", err)
	}
	if stats.Claimed != 2 || stats.Delivered != 2 {
		t.Fatalf("expected two delivered events, got %+v", stats)
	}
	names := sink.names()
	if names[0] != core.EventDeploymentInitialized || names[1] != core.EventPaymentCreated {
		t.Fatalf("expected commit order, got %v", names)
	}
	if sink.events[1].Payload["payment_id"] != bytes32(0x04).String() {
		t.Fatalf("expected payload to round-trip through jsonb, got %+v", sink.events[1].Payload)
	}

	again, err := dispatcher.DispatchPending(ctx, 10)
	if err != nil {
		t.Fatalf("dispatch again: %v", err)
	}
	if again.Claimed != 0 {
		t.Fatalf("expected acked events to stay delivered, got %+v", again)
	}
}

func TestOutboxStore_RetryAndPark(t *testing.T) {
	ctx := context.Background()
	client, cleanup := newSQLiteClient(t)
	defer cleanup()
	store, err := sqlstore.NewOutboxStore(client.DB())
	if err != nil {
		t.Fatalf("new outbox store: %v", err)
	}
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store.Now = func() time.Time { return now }

	for _, id := range []string{"evt-1", "evt-2"} {
		if err := store.Enqueue(ctx, core.LifecycleEvent{
			ID:          id,
			Name:        core.EventPaymentCreated,
			AggregateID: "agg",
			Payload:     map[string]any{"amount": "1"},
			OccurredAt:  now,
		}); err != nil {
			t.Fatalf("enqueue %s: %v", id, err)
		}
	}

	claimed, err := store.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim: %v", err)
	}
	if len(claimed) != 2 {
		t.Fatalf("expected two claimed events, got %d", len(claimed))
	}
	if err := store.Retry(ctx, "evt-1", fmt.Errorf("sink down"), now.Add(time.Minute)); err != nil {
		t.Fatalf("retry: %v", err)
	}
	if err := store.Retry(ctx, "evt-2", fmt.Errorf("poison"), time.Time{}); err != nil {
		t.Fatalf("park: %v", err)
	}

	early, err := store.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim early: %v", err)
	}
	if len(early) != 0 {
		t.Fatalf("expected nothing claimable before backoff, got %d", len(early))
	}

	now = now.Add(2 * time.Minute)
	later, err := store.ClaimBatch(ctx, 10)
	if err != nil {
		t.Fatalf("claim later: %v", err)
	}
	if len(later) != 1 || later[0].ID != "evt-1" {
		t.Fatalf("expected evt-1 after backoff and evt-2 parked, got %+v", later)
	}
	if attempts := fmt.Sprint(later[0].Metadata[core.MetadataKeyOutboxAttempts]); attempts != "1" {
		t.Fatalf("expected attempts=1, got %s", attempts)
	}
}

func TestCachedSettlementStore_EvictsAfterCommit(t *testing.T) {
	ctx := context.Background()
	h := newSQLHarness(t, sqlstore.WithReadCache(newTestCacheService(t)))
	if _, ok := h.factory.SettlementStore().(*sqlstore.CachedSettlementStore); !ok {
		t.Fatalf("expected cached settlement store from factory")
	}

	before, err := h.svc.GetDeployment(ctx)
	if err != nil {
		t.Fatalf("get deployment: %v", err)
	}
	if before.FeeRateBps != core.DefaultFeeRateBps {
		t.Fatalf("unexpected fee rate %d", before.FeeRateBps)
	}

	if _, err := h.svc.UpdateFeeSchedule(ctx, core.UpdateFeeScheduleRequest{
		Caller:       h.authority.PublicKey(),
		FixedBaseFee: 250_000,
		FeeRateBps:   75,
	}); err != nil {
		t.Fatalf("update fee schedule: %v", err)
	}

	after, err := h.svc.GetDeployment(ctx)
	if err != nil {
		t.Fatalf("get deployment: %v", err)
	}
	if after.FeeRateBps != 75 || after.FixedBaseFee != 250_000 {
		t.Fatalf("expected committed fee schedule to evict the cached deployment, got %+v", after)
	}
}

func TestSettlementCacheKey_EscapesSegments(t *testing.T) {
	key := sqlstore.SettlementCacheKey("payment_request", "inv/01 a")
	if key != "go-paychain::settlement::v1::payment_request::inv%2F01%20a" {
		t.Fatalf("unexpected cache key %q", key)
	}
	if sqlstore.SettlementCacheKey("deployment") != "go-paychain::settlement::v1::deployment" {
		t.Fatalf("unexpected deployment cache key")
	}
}

type recordingSink struct {
	mu     sync.Mutex
	events []core.LifecycleEvent
}

func (s *recordingSink) Publish(_ context.Context, event core.LifecycleEvent) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, event)
	return nil
}

func (s *recordingSink) names() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, event := range s.events {
		out = append(out, event.Name)
	}
	return out
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("new private key: %v", err)
	}
	return key
}

func bytes32(fill byte) core.Bytes32 {
	var out core.Bytes32
	for i := range out {
		out[i] = fill
	}
	return out
}

func newTestCacheService(t *testing.T) repositorycache.CacheService {
	t.Helper()
	config := repositorycache.DefaultConfig()
	config.TTL = time.Minute
	service, err := repositorycache.NewCacheService(config)
	if err != nil {
		t.Fatalf("new cache service: %v", err)
	}
	return service
}

func newSQLiteClient(t *testing.T) (*persistence.Client, func()) {
	t.Helper()

	dsn := fmt.Sprintf(
		"file:paychain-test-%d?mode=memory&cache=shared&_foreign_keys=on",
		time.Now().UnixNano(),
	)
	sqlDB, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)

	cfg := testPersistenceConfig{
		driver: "sqlite3",
		server: dsn,
	}
	client, err := persistence.New(cfg, sqlDB, sqlitedialect.New())
	if err != nil {
		_ = sqlDB.Close()
		t.Fatalf("new persistence client: %v", err)
	}

	ctx := context.Background()
	_, err = paychainmigrations.Register(ctx, func(_ context.Context, dialect string, _ string, fsys fs.FS) error {
		if dialect != paychainmigrations.DialectSQLite {
			return nil
		}
		client.RegisterSQLMigrations(fsys)
		return nil
	}, paychainmigrations.WithValidationTargets(paychainmigrations.DialectSQLite))
	if err != nil {
		_ = client.Close()
		t.Fatalf("register migrations: %v", err)
	}
	if err := client.Migrate(ctx); err != nil {
		_ = client.Close()
		t.Fatalf("migrate: %v", err)
	}

	return client, func() {
		_ = client.Close()
	}
}

func TestRepositoryFactory_FromBunDB(t *testing.T) {
	client, cleanup := newSQLiteClient(t)
	defer cleanup()

	factory, err := sqlstore.NewRepositoryFactoryFromDB(client.DB())
	if err != nil {
		t.Fatalf("new repository factory: %v", err)
	}
	if factory.DB() != client.DB() {
		t.Fatalf("expected factory to reuse the bun db")
	}
	if _, ok := factory.SettlementStore().(*sqlstore.SettlementStore); !ok {
		t.Fatalf("expected uncached settlement store, got %T", factory.SettlementStore())
	}
	if factory.OutboxStore() == nil || factory.LedgerStore() == nil {
		t.Fatalf("expected outbox and ledger stores")
	}
	if _, err := sqlstore.NewRepositoryFactoryFromDB(nil); err == nil {
		t.Fatalf("expected nil db to be rejected")
	}
}
