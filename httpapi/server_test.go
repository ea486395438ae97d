package httpapi

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gagliardetto/solana-go"
	"github.com/gin-gonic/gin"
	paychain "github.com/goliatone/go-paychain"
	"github.com/goliatone/go-paychain/core"
	"github.com/goliatone/go-paychain/inbound"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSeedHex = "0x000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

type recordingSink struct {
	events []core.LifecycleEvent
}

func (s *recordingSink) Publish(_ context.Context, event core.LifecycleEvent) error {
	s.events = append(s.events, event)
	return nil
}

type fixture struct {
	t         *testing.T
	handler   http.Handler
	svc       *core.Service
	ledger    *core.MemoryTokenLedger
	sink      *recordingSink
	authority solana.PrivateKey
	router    solana.PrivateKey
	program   solana.PrivateKey
	relay     solana.PrivateKey
}

func newKey(t *testing.T) solana.PrivateKey {
	t.Helper()
	key, err := solana.NewRandomPrivateKey()
	require.NoError(t, err)
	return key
}

func bytes32(fill byte) core.Bytes32 {
	var out core.Bytes32
	for i := range out {
		out[i] = fill
	}
	return out
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	ledger := core.NewMemoryTokenLedger()
	svc, err := core.NewService(core.Config{Custody: core.CustodyConfig{Seed: testSeedHex}},
		core.WithTokenLedger(ledger),
	)
	require.NoError(t, err)

	sink := &recordingSink{}
	facade, err := paychain.NewFacade(svc, paychain.WithEventSinks(sink))
	require.NoError(t, err)

	relay := inbound.NewDispatcher(svc, core.NewMemoryReplayLedger(time.Minute))
	metrics := http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte("# paychain metrics\n"))
	})
	server, err := NewServer(facade, WithRelayDispatcher(relay), WithMetricsHandler(metrics))
	require.NoError(t, err)

	return &fixture{
		t:         t,
		handler:   server.Handler(),
		svc:       svc,
		ledger:    ledger,
		sink:      sink,
		authority: newKey(t),
		router:    newKey(t),
		program:   newKey(t),
		relay:     newKey(t),
	}
}

func (f *fixture) encode(body any) []byte {
	f.t.Helper()
	switch typed := body.(type) {
	case nil:
		return nil
	case []byte:
		return typed
	default:
		raw, err := json.Marshal(body)
		require.NoError(f.t, err)
		return raw
	}
}

func (f *fixture) newRequest(method string, path string, raw []byte) *http.Request {
	req := httptest.NewRequest(method, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func (f *fixture) serve(req *http.Request) (*httptest.ResponseRecorder, map[string]any) {
	f.t.Helper()
	rec := httptest.NewRecorder()
	f.handler.ServeHTTP(rec, req)

	decoded := map[string]any{}
	if rec.Body.Len() > 0 && rec.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(rec.Body.Bytes(), &decoded)
	}
	return rec, decoded
}

// do sends an unsigned request.
func (f *fixture) do(method string, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	f.t.Helper()
	return f.serve(f.newRequest(method, path, f.encode(body)))
}

// doAs sends a request signed by key.
func (f *fixture) doAs(key solana.PrivateKey, method string, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	f.t.Helper()
	raw := f.encode(body)
	req := f.newRequest(method, path, raw)
	require.NoError(f.t, SignRequest(req, key, raw, time.Now()))
	return f.serve(req)
}

func (f *fixture) initialize() {
	f.t.Helper()
	rec, body := f.doAs(f.authority, http.MethodPost, "/v1/deployment", map[string]any{
		"router":     f.router.PublicKey().String(),
		"program_id": f.program.PublicKey().String(),
		"chain_id":   "solana-devnet",
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	require.Equal(f.t, f.authority.PublicKey().String(), body["authority"])
}

func (f *fixture) createPayment(sender solana.PrivateKey, id core.Bytes32, amount uint64) map[string]any {
	f.t.Helper()
	rec, body := f.doAs(sender, http.MethodPost, "/v1/payments", map[string]any{
		"payment_id":    id.String(),
		"sender":        sender.PublicKey().String(),
		"dest_chain_id": "eip155:8453",
		"amount":        amount,
		"receiver":      bytes32(0xee).String(),
	})
	require.Equal(f.t, http.StatusCreated, rec.Code, rec.Body.String())
	return body
}

func errorTextCode(body map[string]any) string {
	payload, _ := body["error"].(map[string]any)
	code, _ := payload["text_code"].(string)
	return code
}

func TestServer_DeploymentLifecycle(t *testing.T) {
	f := newFixture(t)

	rec, body := f.do(http.MethodGet, "/v1/deployment", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, core.ErrorCodeNotInitialized, errorTextCode(body))

	f.initialize()

	rec, body = f.do(http.MethodGet, "/v1/deployment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "500000", body["fixed_base_fee"])
	assert.EqualValues(t, 30, body["fee_rate_bps"])

	rec, body = f.doAs(f.authority, http.MethodPatch, "/v1/deployment/fees", map[string]any{
		"fixed_base_fee": 1000,
		"fee_rate_bps":   50,
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "1000", body["fixed_base_fee"])

	outsider := newKey(t)
	rec, body = f.doAs(outsider, http.MethodPatch, "/v1/deployment/fees", map[string]any{
		"caller":       outsider.PublicKey().String(),
		"fee_rate_bps": 50,
	})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, core.ErrorCodeUnauthorized, errorTextCode(body))

	rec, body = f.do(http.MethodGet, "/v1/vault", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "0", body["balance"])
}

func TestServer_PaymentRefundFlow(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	sender := newKey(t)
	require.NoError(t, f.ledger.Fund(sender.PublicKey(), solana.PublicKey{}, 5_000_000))

	id := bytes32(0x07)
	created := f.createPayment(sender, id, 1_000_000)
	assert.Equal(t, "500000", created["fee"])
	assert.Equal(t, "1", created["amount_display"])
	assert.Equal(t, "pending", created["status"])

	rec, body := f.do(http.MethodGet, "/v1/payments?status=pending&sender="+sender.PublicKey().String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["payments"], 1)

	rec, body = f.doAs(f.authority, http.MethodPost, "/v1/payments/"+id.String()+"/refund", map[string]any{
		"caller": f.authority.PublicKey().String(),
	})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, core.ErrorCodePaymentNotFailed, errorTextCode(body))

	rec, body = f.doAs(f.authority, http.MethodPost, "/v1/payments/"+id.String()+"/transition", map[string]any{
		"caller": f.authority.PublicKey().String(),
		"status": "failed",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "failed", body["status"])

	rec, body = f.doAs(f.authority, http.MethodPost, "/v1/payments/"+id.String()+"/refund", map[string]any{
		"caller": f.authority.PublicKey().String(),
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "refunded", body["status"])
	assert.EqualValues(t, 4_500_000, f.ledger.Balance(sender.PublicKey(), solana.PublicKey{}))
}

func TestServer_PaymentValidationAndNotFound(t *testing.T) {
	f := newFixture(t)
	f.initialize()

	sender := newKey(t)
	rec, body := f.doAs(sender, http.MethodPost, "/v1/payments", map[string]any{
		"payment_id": bytes32(0x01).String(),
		"sender":     sender.PublicKey().String(),
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, core.ErrorCodeBadInput, errorTextCode(body))

	rec, _ = f.do(http.MethodGet, "/v1/payments/not-hex", nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, body = f.do(http.MethodGet, "/v1/payments/"+bytes32(0x09).String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, core.ErrorCodeNotFound, errorTextCode(body))

	rec, _ = f.doAs(sender, http.MethodPost, "/v1/payments", []byte("{not json"))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_PaymentRequestFlow(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	merchant := newKey(t)
	payer := newKey(t)
	require.NoError(t, f.ledger.Fund(payer.PublicKey(), solana.PublicKey{}, 10_000_000))

	rec, body := f.doAs(merchant, http.MethodPost, "/v1/requests", map[string]any{
		"request_id":  "inv-42",
		"amount":      2_500_000,
		"description": "coffee beans",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, false, body["is_paid"])
	assert.Equal(t, "2.5", body["amount_display"])

	assert.Equal(t, merchant.PublicKey().String(), body["merchant"])

	rec, body = f.doAs(payer, http.MethodPost, "/v1/requests/inv-42/pay", map[string]any{"payer": payer.PublicKey().String()})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, true, body["is_paid"])
	assert.Equal(t, payer.PublicKey().String(), body["payer"])

	rec, body = f.doAs(payer, http.MethodPost, "/v1/requests/inv-42/pay", map[string]any{})
	assert.Equal(t, http.StatusConflict, rec.Code)
	assert.Equal(t, core.ErrorCodeAlreadyPaid, errorTextCode(body))

	rec, body = f.do(http.MethodGet, "/v1/requests/inv-42", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "coffee beans", body["description"])

	rec, body = f.doAs(payer, http.MethodPost, "/v1/outbox/dispatch", map[string]any{"batch_size": 10})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Empty(t, f.sink.events)

	rec, body = f.doAs(f.authority, http.MethodPost, "/v1/outbox/dispatch", map[string]any{"batch_size": 10})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, len(f.sink.events), body["delivered"])
	names := make([]string, 0, len(f.sink.events))
	for _, event := range f.sink.events {
		names = append(names, event.Name)
	}
	assert.Contains(t, names, core.EventPaymentRequestCreated)
	assert.Contains(t, names, core.EventRequestPaymentReceived)
}

func TestServer_RelayDeliveryAndReplay(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	sender := newKey(t)
	require.NoError(t, f.ledger.Fund(sender.PublicKey(), solana.PublicKey{}, 5_000_000))
	f.createPayment(sender, bytes32(0x07), 1_000_000)

	const selector = uint64(5009297550715157269)
	rec, body := f.doAs(f.router, http.MethodPost, "/v1/offramps", map[string]any{
		"source_chain_selector": "5009297550715157269",
		"relay":                 f.relay.PublicKey().String(),
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	assert.Equal(t, "5009297550715157269", body["source_chain_selector"])

	receiver := newKey(t).PublicKey()
	data, err := core.EncodeSettlementPayload(core.SettlementPayload{
		PaymentID: bytes32(0x07),
		Amount:    900_000,
		Receiver:  core.Bytes32FromPublicKey(receiver),
	})
	require.NoError(t, err)
	delivery, err := core.NewRelayDelivery(f.relay, f.program.PublicKey(), core.CrossChainMessage{
		MessageID:           bytes32(0x21),
		SourceChainSelector: selector,
		Sender:              bytes32(0x51),
		Data:                data,
	})
	require.NoError(t, err)
	raw, err := json.Marshal(inbound.NewEnvelope(delivery))
	require.NoError(t, err)

	rec, body = f.do(http.MethodPost, "/v1/relay/messages", raw)
	require.Equal(t, http.StatusAccepted, rec.Code, rec.Body.String())
	settlement, _ := body["settlement"].(map[string]any)
	assert.Equal(t, "900000", settlement["amount"])
	assert.EqualValues(t, 900_000, f.ledger.Balance(receiver, solana.PublicKey{}))

	rec, body = f.do(http.MethodPost, "/v1/relay/messages", raw)
	require.Equal(t, http.StatusOK, rec.Code)
	metadata, _ := body["metadata"].(map[string]any)
	assert.Equal(t, true, metadata["deduped"])

	rec, body = f.do(http.MethodGet, "/v1/settlements?payment_id="+bytes32(0x07).String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Len(t, body["settlements"], 1)

	rec, _ = f.doAs(f.router, http.MethodDelete, "/v1/offramps", map[string]any{
		"source_chain_selector": "5009297550715157269",
		"relay":                 f.relay.PublicKey().String(),
	})
	assert.Equal(t, http.StatusNoContent, rec.Code)

	rec, _ = f.do(http.MethodPost, "/v1/relay/messages", []byte(`{"message_id":"0x01"}`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestServer_SwapWithoutExecutorAndMetrics(t *testing.T) {
	f := newFixture(t)

	payer := newKey(t)
	rec, body := f.doAs(payer, http.MethodPost, "/v1/swaps", map[string]any{
		"payer":   payer.PublicKey().String(),
		"program": newKey(t).PublicKey().String(),
		"data":    "0x0901",
	})
	assert.GreaterOrEqual(t, rec.Code, 400)
	assert.NotEmpty(t, errorTextCode(body))

	rec, _ = f.do(http.MethodGet, "/metrics", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "paychain metrics")

	rec, body = f.do(http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", body["status"])
}

func TestNewServer_RequiresFacade(t *testing.T) {
	_, err := NewServer(nil)
	require.Error(t, err)
}

func TestServer_RejectsSpoofedIdentities(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	victim := newKey(t)
	merchant := newKey(t)
	mallory := newKey(t)
	require.NoError(t, f.ledger.Fund(victim.PublicKey(), solana.PublicKey{}, 5_000_000))

	id := bytes32(0x07)
	f.createPayment(victim, id, 1_000_000)
	rec, _ := f.doAs(f.authority, http.MethodPost, "/v1/payments/"+id.String()+"/transition", map[string]any{
		"status": "failed",
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	rec, _ = f.doAs(merchant, http.MethodPost, "/v1/requests", map[string]any{
		"request_id": "inv-7",
		"amount":     2_000_000,
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
	balance := f.ledger.Balance(victim.PublicKey(), solana.PublicKey{})

	offramp := map[string]any{
		"caller":                f.router.PublicKey().String(),
		"source_chain_selector": "5009297550715157269",
		"relay":                 mallory.PublicKey().String(),
	}
	cases := []struct {
		name   string
		method string
		path   string
		body   map[string]any
		field  string
	}{
		{"refund", http.MethodPost, "/v1/payments/" + id.String() + "/refund",
			map[string]any{"caller": f.authority.PublicKey().String()}, "caller"},
		{"transition", http.MethodPost, "/v1/payments/" + id.String() + "/transition",
			map[string]any{"caller": f.authority.PublicKey().String(), "status": "refunded"}, "caller"},
		{"fees", http.MethodPatch, "/v1/deployment/fees",
			map[string]any{"caller": f.authority.PublicKey().String(), "fee_rate_bps": 0}, "caller"},
		{"allow offramp", http.MethodPost, "/v1/offramps", offramp, "caller"},
		{"revoke offramp", http.MethodDelete, "/v1/offramps", offramp, "caller"},
		{"create payment", http.MethodPost, "/v1/payments", map[string]any{
			"payment_id":    bytes32(0x08).String(),
			"sender":        victim.PublicKey().String(),
			"dest_chain_id": "eip155:8453",
			"amount":        1_000_000,
		}, "sender"},
		{"create request", http.MethodPost, "/v1/requests", map[string]any{
			"request_id": "inv-8",
			"merchant":   merchant.PublicKey().String(),
			"amount":     1_000_000,
		}, "merchant"},
		{"pay request", http.MethodPost, "/v1/requests/inv-7/pay",
			map[string]any{"payer": victim.PublicKey().String()}, "payer"},
		{"swap", http.MethodPost, "/v1/swaps", map[string]any{
			"payer":   victim.PublicKey().String(),
			"program": newKey(t).PublicKey().String(),
		}, "payer"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec, body := f.doAs(mallory, tc.method, tc.path, tc.body)
			assert.Equal(t, http.StatusUnauthorized, rec.Code, rec.Body.String())
			assert.Equal(t, core.ErrorCodeUnauthorized, errorTextCode(body))
			payload, _ := body["error"].(map[string]any)
			metadata, _ := payload["metadata"].(map[string]any)
			assert.Equal(t, tc.field, metadata["field"])
			assert.Equal(t, mallory.PublicKey().String(), metadata["signer"])
		})
	}

	rec, body := f.do(http.MethodGet, "/v1/payments/"+id.String(), nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "failed", body["status"])
	assert.Equal(t, balance, f.ledger.Balance(victim.PublicKey(), solana.PublicKey{}))

	rec, body = f.do(http.MethodGet, "/v1/requests/inv-7", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, false, body["is_paid"])

	rec, _ = f.do(http.MethodGet, "/v1/requests/inv-8", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	rec, _ = f.do(http.MethodGet, "/v1/payments/"+bytes32(0x08).String(), nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec, body = f.do(http.MethodGet, "/v1/deployment", nil)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.EqualValues(t, 30, body["fee_rate_bps"])

	// Acting as themselves does not give mallory authority rights either.
	rec, body = f.doAs(mallory, http.MethodPost, "/v1/payments/"+id.String()+"/refund", map[string]any{})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, core.ErrorCodeUnauthorized, errorTextCode(body))
}

func TestServer_RequestSignatureIsVerified(t *testing.T) {
	f := newFixture(t)
	f.initialize()
	fees := func(bps int) []byte {
		return f.encode(map[string]any{"fee_rate_bps": bps})
	}

	rec, body := f.do(http.MethodPatch, "/v1/deployment/fees", fees(40))
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, core.ErrorCodeUnauthorized, errorTextCode(body))

	req := f.newRequest(http.MethodPatch, "/v1/deployment/fees", fees(99))
	require.NoError(t, SignRequest(req, f.authority, fees(40), time.Now()))
	rec, _ = f.serve(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "body was changed after signing")

	req = f.newRequest(http.MethodPatch, "/v1/deployment/fees", fees(40))
	signedElsewhere := f.newRequest(http.MethodPatch, "/v1/deployment/fees?bps=1", fees(40))
	require.NoError(t, SignRequest(signedElsewhere, f.authority, fees(40), time.Now()))
	for _, name := range []string{HeaderSigner, HeaderTimestamp, HeaderNonce, HeaderSignature} {
		req.Header.Set(name, signedElsewhere.Header.Get(name))
	}
	rec, _ = f.serve(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "path was changed after signing")

	req = f.newRequest(http.MethodPatch, "/v1/deployment/fees", fees(40))
	require.NoError(t, SignRequest(req, f.authority, fees(40), time.Now().Add(-time.Hour)))
	rec, _ = f.serve(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "stale timestamp")

	mallory := newKey(t)
	req = f.newRequest(http.MethodPatch, "/v1/deployment/fees", fees(40))
	require.NoError(t, SignRequest(req, mallory, fees(40), time.Now()))
	req.Header.Set(HeaderSigner, f.authority.PublicKey().String())
	rec, _ = f.serve(req)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "signature by another key")

	req = f.newRequest(http.MethodPatch, "/v1/deployment/fees", fees(40))
	require.NoError(t, SignRequest(req, f.authority, fees(40), time.Now()))
	rec, body = f.serve(req)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.EqualValues(t, 40, body["fee_rate_bps"])

	replay := f.newRequest(http.MethodPatch, "/v1/deployment/fees", fees(40))
	replay.Header = req.Header.Clone()
	rec, body = f.serve(replay)
	assert.Equal(t, http.StatusUnauthorized, rec.Code, "nonce reuse")
	assert.Equal(t, core.ErrorCodeUnauthorized, errorTextCode(body))
}

func TestRequestDigest_CoversRequestParts(t *testing.T) {
	base := RequestDigest(http.MethodPost, "/v1/swaps", 1700000000, "n-1", []byte(`{"a":1}`))
	assert.Equal(t, base, RequestDigest("post", "/v1/swaps", 1700000000, "n-1", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, RequestDigest(http.MethodPut, "/v1/swaps", 1700000000, "n-1", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, RequestDigest(http.MethodPost, "/v1/swaps?x=1", 1700000000, "n-1", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, RequestDigest(http.MethodPost, "/v1/swaps", 1700000001, "n-1", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, RequestDigest(http.MethodPost, "/v1/swaps", 1700000000, "n-2", []byte(`{"a":1}`)))
	assert.NotEqual(t, base, RequestDigest(http.MethodPost, "/v1/swaps", 1700000000, "n-1", []byte(`{"a":2}`)))
}
