package transport

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gagliardetto/solana-go"
	"github.com/goliatone/go-paychain/core"
)

func TestSwapForwarder_PostsBorshAndReadsReference(t *testing.T) {
	payer := solana.NewWallet().PublicKey()
	program := solana.NewWallet().PublicKey()
	pool := solana.NewWallet().PublicKey()
	instruction := core.SwapInstruction{
		Program:  program,
		Accounts: []core.SwapAccount{{PublicKey: pool, IsWritable: true}},
		Data:     []byte{0x09, 0x01, 0x02},
	}

	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("Content-Type") != SwapContentType {
			t.Errorf("expected borsh content type, got %q", r.Header.Get("Content-Type"))
		}
		if r.Header.Get(HeaderSwapCaller) != payer.String() {
			t.Errorf("expected caller header")
		}
		if r.Header.Get("Authorization") != "Bearer token" {
			t.Errorf("expected configured header")
		}
		body, _ := io.ReadAll(r.Body)
		wire, err := DecodeSwap(body)
		if err != nil {
			t.Errorf("decode swap: %v", err)
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		if !wire.Caller.Equals(payer) || !wire.Program.Equals(program) {
			t.Errorf("unexpected wire identity %#v", wire)
		}
		if len(wire.Accounts) != 1 || !wire.Accounts[0].IsWritable || wire.Accounts[0].IsSigner {
			t.Errorf("unexpected wire accounts %#v", wire.Accounts)
		}
		if string(wire.Data) != string(instruction.Data) {
			t.Errorf("expected instruction data to pass through untouched")
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"reference":"swap-77","metadata":{"route":"direct"}}`))
	}))
	defer server.Close()

	forwarder, err := NewSwapForwarder(NewRESTAdapter(server.Client()), server.URL,
		WithSwapHeaders(map[string]string{"Authorization": "Bearer token"}),
	)
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	result, err := forwarder.Execute(context.Background(), payer, instruction)
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if result.Reference != "swap-77" {
		t.Fatalf("expected reference swap-77, got %q", result.Reference)
	}
	if result.Metadata["route"] != "direct" || result.Metadata["status_code"] != http.StatusOK {
		t.Fatalf("unexpected metadata %#v", result.Metadata)
	}
}

func TestSwapForwarder_NonSuccessIsExternalFailure(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusUnprocessableEntity)
		_, _ = w.Write([]byte("slippage exceeded"))
	}))
	defer server.Close()

	forwarder, err := NewSwapForwarder(NewRESTAdapter(server.Client()), server.URL)
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	_, err = forwarder.Execute(context.Background(), solana.NewWallet().PublicKey(), core.SwapInstruction{
		Program: solana.NewWallet().PublicKey(),
	})
	if !core.HasErrorCode(err, core.ErrorCodeExternalFailure) {
		t.Fatalf("expected external failure, got %v", err)
	}
	if core.ErrorStatus(err) != http.StatusBadGateway {
		t.Fatalf("expected 502, got %d", core.ErrorStatus(err))
	}
	if !strings.Contains(err.Error(), "422") {
		t.Fatalf("expected upstream status in message, got %v", err)
	}
}

func TestSwapForwarder_DryRunThroughService(t *testing.T) {
	dryRun := NewDryRunAdapter()
	forwarder, err := NewSwapForwarder(dryRun, "")
	if err != nil {
		t.Fatalf("new forwarder: %v", err)
	}
	svc, err := core.NewService(core.Config{}, core.WithSwapExecutor(forwarder))
	if err != nil {
		t.Fatalf("new service: %v", err)
	}
	payer := solana.NewWallet().PublicKey()
	result, err := svc.SwapTokens(context.Background(), core.SwapTokensRequest{
		Payer: payer,
		Instruction: core.SwapInstruction{
			Program: solana.NewWallet().PublicKey(),
			Data:    []byte("route"),
		},
	})
	if err != nil {
		t.Fatalf("swap tokens: %v", err)
	}
	if !strings.HasPrefix(result.Reference, "dryrun:0x") {
		t.Fatalf("expected dry-run reference, got %q", result.Reference)
	}
	last, ok := dryRun.LastRequest()
	if !ok || last.Headers[HeaderSwapCaller] != payer.String() {
		t.Fatalf("expected dry-run adapter to capture the forwarded request")
	}
}

func TestNewSwapForwarder_RequiresEndpointForREST(t *testing.T) {
	if _, err := NewSwapForwarder(NewRESTAdapter(nil), " "); err == nil {
		t.Fatalf("expected missing endpoint to fail")
	}
	if _, err := NewSwapForwarder(nil, "http://swap"); err == nil {
		t.Fatalf("expected missing adapter to fail")
	}
}
