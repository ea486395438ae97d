package core

import (
	"context"
	"encoding/base64"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
)

const testSeedHex = "0x000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type testSecretProvider struct{}

func (testSecretProvider) Encrypt(_ context.Context, plaintext []byte) ([]byte, error) {
	if len(plaintext) == 0 {
		return nil, fmt.Errorf("test secret provider: plaintext is required")
	}
	return []byte("enc:" + base64.StdEncoding.EncodeToString(plaintext)), nil
}

func (testSecretProvider) Decrypt(_ context.Context, ciphertext []byte) ([]byte, error) {
	value := strings.TrimSpace(string(ciphertext))
	if value == "" || !strings.HasPrefix(value, "enc:") {
		return nil, fmt.Errorf("test secret provider: invalid ciphertext")
	}
	decoded, err := base64.StdEncoding.DecodeString(strings.TrimPrefix(value, "enc:"))
	if err != nil {
		return nil, fmt.Errorf("test secret provider: decode ciphertext: %w", err)
	}
	return decoded, nil
}

type stubLogger struct{}

func (stubLogger) Trace(string, ...any) {}
func (stubLogger) Debug(string, ...any) {}
func (stubLogger) Info(string, ...any)  {}
func (stubLogger) Warn(string, ...any)  {}
func (stubLogger) Error(string, ...any) {}
func (stubLogger) Fatal(string, ...any) {}
func (s stubLogger) WithContext(context.Context) Logger {
	return s
}

type stubLoggerProvider struct {
	logger Logger
}

func (s stubLoggerProvider) GetLogger(string) Logger {
	return s.logger
}

type mapRawLoader struct {
	values map[string]any
}

func (l mapRawLoader) LoadRaw(context.Context) (map[string]any, error) {
	if len(l.values) == 0 {
		return map[string]any{}, nil
	}
	out := make(map[string]any, len(l.values))
	for key, value := range l.values {
		out[key] = value
	}
	return out, nil
}

var testClockStart = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type testClock struct {
	current time.Time
}

func newTestClock() *testClock {
	return &testClock{current: testClockStart}
}

func (c *testClock) Now() time.Time {
	return c.current
}

func (c *testClock) Advance(d time.Duration) {
	c.current = c.current.Add(d)
}

type testKeys struct {
	authority solana.PrivateKey
	router    solana.PrivateKey
	program   solana.PrivateKey
	relay     solana.PrivateKey
	sender    solana.PrivateKey
	merchant  solana.PrivateKey
	payer     solana.PrivateKey
}

func newTestKeys(t *testing.T) testKeys {
	t.Helper()
	return testKeys{
		authority: newTestKey(t),
		router:    newTestKey(t),
		program:   newTestKey(t),
		relay:     newTestKey(t),
		sender:    newTestKey(t),
		merchant:  newTestKey(t),
		payer:     newTestKey(t),
	}
}

func newTestKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	if err != nil {
		t.Fatalf("generate key: %v", err)
	}
	return key
}

type testEngine struct {
	svc    *Service
	store  *MemorySettlementStore
	ledger *MemoryTokenLedger
	clock  *testClock
	keys   testKeys
}

func newTestEngine(t *testing.T, cfg Config, opts ...Option) *testEngine {
	t.Helper()
	if strings.TrimSpace(cfg.Custody.Seed) == "" {
		cfg.Custody.Seed = testSeedHex
	}
	store := NewMemorySettlementStore()
	ledger := NewMemoryTokenLedger()
	clock := newTestClock()
	base := []Option{
		WithSettlementStore(store),
		WithTokenLedger(ledger),
		WithClock(clock.Now),
		WithLogger(stubLogger{}),
		WithLoggerProvider(stubLoggerProvider{logger: stubLogger{}}),
	}
	svc, err := NewService(cfg, append(base, opts...)...)
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	return &testEngine{
		svc:    svc,
		store:  store,
		ledger: ledger,
		clock:  clock,
		keys:   newTestKeys(t),
	}
}

func (e *testEngine) initialize(t *testing.T) Deployment {
	t.Helper()
	deployment, err := e.svc.Initialize(context.Background(), InitializeRequest{
		Caller:    e.keys.authority.PublicKey(),
		Router:    e.keys.router.PublicKey(),
		ProgramID: e.keys.program.PublicKey(),
		ChainID:   "solana-devnet",
	})
	if err != nil {
		t.Fatalf("initialize: %v", err)
	}
	return deployment
}

func (e *testEngine) fund(t *testing.T, owner solana.PublicKey, amount uint64) {
	t.Helper()
	if err := e.ledger.Fund(owner, solana.PublicKey{}, amount); err != nil {
		t.Fatalf("fund: %v", err)
	}
}

func (e *testEngine) allowRelay(t *testing.T, selector uint64) {
	t.Helper()
	_, err := e.svc.AllowOfframp(context.Background(), OfframpRequest{
		Caller:              e.keys.router.PublicKey(),
		SourceChainSelector: selector,
		Relay:               e.keys.relay.PublicKey(),
	})
	if err != nil {
		t.Fatalf("allow offramp: %v", err)
	}
}

func (e *testEngine) createPayment(t *testing.T, id byte, amount uint64) Payment {
	t.Helper()
	payment, err := e.svc.CreatePayment(context.Background(), CreatePaymentRequest{
		PaymentID:   testBytes32(id),
		Sender:      e.keys.sender.PublicKey(),
		DestChainID: "eip155:8453",
		Amount:      amount,
		Receiver:    testBytes32(0xee),
	})
	if err != nil {
		t.Fatalf("create payment: %v", err)
	}
	return payment
}

func (e *testEngine) relayRequest(t *testing.T, messageID byte, selector uint64, payload SettlementPayload) ReceiveCrossChainRequest {
	t.Helper()
	data, err := EncodeSettlementPayload(payload)
	if err != nil {
		t.Fatalf("encode payload: %v", err)
	}
	req, err := NewRelayDelivery(e.keys.relay, e.keys.program.PublicKey(), CrossChainMessage{
		MessageID:           testBytes32(messageID),
		SourceChainSelector: selector,
		Sender:              testBytes32(0x51),
		Data:                data,
	})
	if err != nil {
		t.Fatalf("new relay delivery: %v", err)
	}
	return req
}

// resign re-signs req after a test edits its message.
func (e *testEngine) resign(t *testing.T, req ReceiveCrossChainRequest) ReceiveCrossChainRequest {
	t.Helper()
	signature, err := SignDelivery(e.keys.relay, req.Attestation, req.Message)
	if err != nil {
		t.Fatalf("sign delivery: %v", err)
	}
	req.DeliverySignature = signature
	return req
}

func testBytes32(fill byte) Bytes32 {
	var out Bytes32
	for i := range out {
		out[i] = fill
	}
	return out
}
